package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/cashcached/auth-api/internal/domain"
	jwtinfra "github.com/cashcached/auth-api/internal/infrastructure/jwt"
)

// SessionCookieName carries the session id between requests.
const SessionCookieName = "CASHCACHED_SESSION"

const sessionCookieMaxAge = 3600

type contextKey string

const principalKey contextKey = "principal"

// Principal is the authenticated identity attached to a request after the
// session gateway validates its credential.
type Principal struct {
	Username  string
	UserID    string
	Role      string
	Email     string
	SessionID string
}

// SessionReader is the slice of the session store the gateway needs.
type SessionReader interface {
	IsValid(ctx context.Context, sessionID string) bool
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
}

// TokenVerifier resolves a bearer JWT back to its claims.
type TokenVerifier interface {
	Verify(token string) (*jwtinfra.Claims, error)
}

// Gateway resolves the request's credential into a Principal and refreshes
// session liveness. The session cookie wins over an Authorization: Bearer
// header when both are present. Requests without a valid credential proceed
// unauthenticated; authorization is decided downstream by RequireAuth and
// RequireRole.
func Gateway(sessions SessionReader, tokens TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := resolveSessionID(r, tokens)
			if sid == "" || !sessions.IsValid(r.Context(), sid) {
				next.ServeHTTP(w, r)
				return
			}
			sess, err := sessions.Get(r.Context(), sid)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			SetSessionCookie(w, sid)
			p := &Principal{
				Username:  sess.Username,
				UserID:    sess.UserID,
				Role:      sess.Role,
				Email:     sess.Email,
				SessionID: sid,
			}
			ctx := context.WithValue(r.Context(), principalKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// resolveSessionID extracts the session id from the cookie or bearer header.
// A bearer credential may be a signed token carrying the session id claim, or
// the raw session id itself.
func resolveSessionID(r *http.Request, tokens TokenVerifier) string {
	credential := ""
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		credential = c.Value
	} else if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		credential = strings.TrimPrefix(h, "Bearer ")
	}
	if credential == "" {
		return ""
	}
	if tokens != nil && strings.Count(credential, ".") == 2 {
		claims, err := tokens.Verify(credential)
		if err != nil {
			return ""
		}
		return claims.SessionID
	}
	return credential
}

// SetSessionCookie (re-)issues the session cookie on the response.
func SetSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   sessionCookieMaxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearSessionCookie expires the session cookie, used on logout.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// ContextWithPrincipal attaches a principal to the context, as the gateway
// does for authenticated requests.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext extracts the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}

// RequireAuth rejects requests that carry no authenticated principal.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); !ok {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
