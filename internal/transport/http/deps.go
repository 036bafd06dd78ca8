package http

import (
	"github.com/cashcached/auth-api/internal/application/audit"
	"github.com/cashcached/auth-api/internal/application/auth"
	jwtinfra "github.com/cashcached/auth-api/internal/infrastructure/jwt"
	"github.com/cashcached/auth-api/internal/infrastructure/kv"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo    auth.UserRepository
	KV          kv.Store
	Audit       audit.Log
	Mailer      auth.Mailer
	SMSSender   auth.SMSSender // nil when SMS delivery is not configured
	JWTProvider *jwtinfra.Provider
}
