package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/cashcached/auth-api/internal/domain"
	"github.com/cashcached/auth-api/internal/pkg/id"
)

// UserRepository is the contract consumed from the external credential store.
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Put(ctx context.Context, u *domain.User) error
	UpdatePassword(ctx context.Context, userID, newHash string) error
}

// SessionStore is the slice of the session service the orchestrator needs.
type SessionStore interface {
	Create(ctx context.Context, u *domain.User) (string, error)
	Invalidate(ctx context.Context, sessionID string)
	InvalidateAllForUser(ctx context.Context, username string)
}

// OTPService issues and single-use-validates one-time codes.
type OTPService interface {
	Issue(ctx context.Context, username string) (string, error)
	Validate(ctx context.Context, username, code string) bool
}

// AuditLog records completed logins.
type AuditLog interface {
	Record(ctx context.Context, username string, event domain.LoginEvent) error
	Recent(ctx context.Context, username string, limit int) ([]domain.LoginEvent, error)
}

// TokenIssuer produces signed bearer tokens.
type TokenIssuer interface {
	Issue(username, role, sessionID string) (string, error)
}

// Mailer sends emails; failures never abort an auth flow.
type Mailer interface {
	SendEmail(to, subject, body string) error
}

// SMSSender is the optional SMS delivery channel for OTP codes.
type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type VerifyOTPRequest struct {
	Username string `json:"username" validate:"required"`
	OTP      string `json:"otp" validate:"required,len=6,numeric"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

// RequestMeta carries per-request client details into the audit trail.
type RequestMeta struct {
	SourceIP  string
	UserAgent string
}

// Result is the outcome of a completed auth flow. SessionID feeds the session
// cookie and is never serialized into a response body.
type Result struct {
	Token             string
	SessionID         string
	Username          string
	Role              string
	TwoFactorRequired bool
}

// Service is the login/register/2FA state machine.
type Service interface {
	Register(ctx context.Context, req domain.RegisterRequest, meta RequestMeta) (*Result, error)
	Login(ctx context.Context, req LoginRequest, meta RequestMeta) (*Result, error)
	VerifyOTP(ctx context.Context, req VerifyOTPRequest, meta RequestMeta) (*Result, error)
	Logout(ctx context.Context, sessionID string)
	ChangePassword(ctx context.Context, username string, req ChangePasswordRequest) error
	RecentActivity(ctx context.Context, username string, limit int) ([]domain.LoginEvent, error)
}

// ServiceDeps bundles the collaborators the orchestrator composes.
type ServiceDeps struct {
	UserRepo  UserRepository
	Sessions  SessionStore
	OTPs      OTPService
	Audit     AuditLog
	Mailer    Mailer
	SMSSender SMSSender // optional
	Tokens    TokenIssuer
}

type service struct {
	userRepo  UserRepository
	sessions  SessionStore
	otps      OTPService
	audit     AuditLog
	mailer    Mailer
	smsSender SMSSender
	tokens    TokenIssuer
}

func NewService(deps ServiceDeps) Service {
	return &service{
		userRepo:  deps.UserRepo,
		sessions:  deps.Sessions,
		otps:      deps.OTPs,
		audit:     deps.Audit,
		mailer:    deps.Mailer,
		smsSender: deps.SMSSender,
		tokens:    deps.Tokens,
	}
}

func (s *service) Register(ctx context.Context, req domain.RegisterRequest, meta RequestMeta) (*Result, error) {
	if taken, err := s.userRepo.ExistsByUsername(ctx, req.Username); err != nil {
		return nil, fmt.Errorf("username lookup: %w", err)
	} else if taken {
		return nil, fmt.Errorf("username already registered: %w", domain.ErrConflict)
	}
	if taken, err := s.userRepo.ExistsByEmail(ctx, req.Email); err != nil {
		return nil, fmt.Errorf("email lookup: %w", err)
	} else if taken {
		return nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	u := &domain.User{
		UserID:           id.New(),
		Username:         req.Username,
		Email:            req.Email,
		Phone:            req.Phone,
		PasswordHash:     string(hash),
		Role:             domain.RoleCustomer,
		TwoFactorEnabled: false,
		Enable:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.userRepo.Put(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	// Registration never requires a second factor.
	return s.establish(ctx, u, domain.LoginEventPassword, meta)
}

func (s *service) Login(ctx context.Context, req LoginRequest, meta RequestMeta) (*Result, error) {
	u, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		return nil, invalidCredentials("user lookup", req.Username, err)
	}
	if !u.Enable {
		return nil, invalidCredentials("account disabled", req.Username, nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, invalidCredentials("password mismatch", req.Username, nil)
	}

	if u.TwoFactorEnabled {
		code, err := s.otps.Issue(ctx, u.Username)
		if err != nil {
			return nil, fmt.Errorf("issue otp: %w", err)
		}
		s.deliverOTP(ctx, u, code)
		return &Result{Username: u.Username, Role: u.Role, TwoFactorRequired: true}, nil
	}

	return s.establish(ctx, u, domain.LoginEventPassword, meta)
}

func (s *service) VerifyOTP(ctx context.Context, req VerifyOTPRequest, meta RequestMeta) (*Result, error) {
	u, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		return nil, invalidCredentials("user lookup", req.Username, err)
	}
	if !s.otps.Validate(ctx, req.Username, req.OTP) {
		return nil, invalidCredentials("otp rejected", req.Username, nil)
	}
	return s.establish(ctx, u, domain.LoginEventOTP, meta)
}

func (s *service) Logout(ctx context.Context, sessionID string) {
	s.sessions.Invalidate(ctx, sessionID)
}

func (s *service) ChangePassword(ctx context.Context, username string, req ChangePasswordRequest) error {
	u, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("user lookup: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.CurrentPassword)) != nil {
		return fmt.Errorf("current password mismatch: %w", domain.ErrUnauthorized)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.userRepo.UpdatePassword(ctx, u.UserID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	// Force re-authentication everywhere after a credential change.
	s.sessions.InvalidateAllForUser(ctx, username)
	return nil
}

func (s *service) RecentActivity(ctx context.Context, username string, limit int) ([]domain.LoginEvent, error) {
	return s.audit.Recent(ctx, username, limit)
}

// establish creates the session, signs a token bound to it, and records the
// login event. Audit failures are non-fatal.
func (s *service) establish(ctx context.Context, u *domain.User, eventType domain.LoginEventType, meta RequestMeta) (*Result, error) {
	sid, err := s.sessions.Create(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	tok, err := s.tokens.Issue(u.Username, u.Role, sid)
	if err != nil {
		s.sessions.Invalidate(ctx, sid)
		return nil, fmt.Errorf("issue token: %w", err)
	}
	event := domain.LoginEvent{
		Type:      eventType,
		SourceIP:  meta.SourceIP,
		UserAgent: meta.UserAgent,
		Timestamp: time.Now().UTC(),
	}
	if err := s.audit.Record(ctx, u.Username, event); err != nil {
		slog.Warn("login event not recorded", "username", u.Username, "err", err)
	}
	return &Result{Token: tok, SessionID: sid, Username: u.Username, Role: u.Role}, nil
}

// deliverOTP sends the code over every channel on record. Delivery failures
// are logged and swallowed; they never fail the login call.
func (s *service) deliverOTP(ctx context.Context, u *domain.User, code string) {
	body := fmt.Sprintf("Your CashCached verification code is %s.", code)
	if err := s.mailer.SendEmail(u.Email, "Your verification code", body); err != nil {
		slog.Warn("otp email delivery failed", "username", u.Username, "err", err)
	}
	if s.smsSender != nil && u.Phone != nil {
		if err := s.smsSender.SendSMS(ctx, *u.Phone, body); err != nil {
			slog.Warn("otp sms delivery failed", "username", u.Username, "err", err)
		}
	}
}

// invalidCredentials logs the real cause and collapses it into the uniform
// unauthorized outcome so callers cannot tell which check failed.
func invalidCredentials(cause, username string, err error) error {
	slog.Info("authentication rejected", "cause", cause, "username", username, "err", err)
	return fmt.Errorf("%s: %w", domain.InvalidCredentialsMessage, domain.ErrUnauthorized)
}
