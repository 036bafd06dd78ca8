package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cashcached/auth-api/internal/domain"
)

type mockUserRepo struct{ mock.Mock }

func (m *mockUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if u := args.Get(0); u != nil {
		return u.(*domain.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserRepo) Put(ctx context.Context, u *domain.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, userID, newHash string) error {
	args := m.Called(ctx, userID, newHash)
	return args.Error(0)
}

type mockSessions struct{ mock.Mock }

func (m *mockSessions) Create(ctx context.Context, u *domain.User) (string, error) {
	args := m.Called(ctx, u)
	return args.String(0), args.Error(1)
}

func (m *mockSessions) Invalidate(ctx context.Context, sessionID string) {
	m.Called(ctx, sessionID)
}

func (m *mockSessions) InvalidateAllForUser(ctx context.Context, username string) {
	m.Called(ctx, username)
}

type mockOTPs struct{ mock.Mock }

func (m *mockOTPs) Issue(ctx context.Context, username string) (string, error) {
	args := m.Called(ctx, username)
	return args.String(0), args.Error(1)
}

func (m *mockOTPs) Validate(ctx context.Context, username, code string) bool {
	args := m.Called(ctx, username, code)
	return args.Bool(0)
}

type mockAudit struct{ mock.Mock }

func (m *mockAudit) Record(ctx context.Context, username string, event domain.LoginEvent) error {
	args := m.Called(ctx, username, event)
	return args.Error(0)
}

func (m *mockAudit) Recent(ctx context.Context, username string, limit int) ([]domain.LoginEvent, error) {
	args := m.Called(ctx, username, limit)
	if v := args.Get(0); v != nil {
		return v.([]domain.LoginEvent), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockTokens struct{ mock.Mock }

func (m *mockTokens) Issue(username, role, sessionID string) (string, error) {
	args := m.Called(username, role, sessionID)
	return args.String(0), args.Error(1)
}

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(to, subject, body string) error {
	args := m.Called(to, subject, body)
	return args.Error(0)
}

type mockSMS struct{ mock.Mock }

func (m *mockSMS) SendSMS(ctx context.Context, to, message string) error {
	args := m.Called(ctx, to, message)
	return args.Error(0)
}

type fixture struct {
	userRepo *mockUserRepo
	sessions *mockSessions
	otps     *mockOTPs
	audit    *mockAudit
	tokens   *mockTokens
	mailer   *mockMailer
	sms      *mockSMS
	svc      Service
}

func newFixture() *fixture {
	f := &fixture{
		userRepo: new(mockUserRepo),
		sessions: new(mockSessions),
		otps:     new(mockOTPs),
		audit:    new(mockAudit),
		tokens:   new(mockTokens),
		mailer:   new(mockMailer),
		sms:      new(mockSMS),
	}
	f.svc = NewService(ServiceDeps{
		UserRepo:  f.userRepo,
		Sessions:  f.sessions,
		OTPs:      f.otps,
		Audit:     f.audit,
		Mailer:    f.mailer,
		SMSSender: f.sms,
		Tokens:    f.tokens,
	})
	return f
}

func hash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func activeUser(t *testing.T) *domain.User {
	return &domain.User{
		UserID:       "user-1",
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: hash(t, "s3cret-pass"),
		Role:         domain.RoleCustomer,
		Enable:       true,
	}
}

var meta = RequestMeta{SourceIP: "10.0.0.1", UserAgent: "test-agent"}

func TestLoginSuccess(t *testing.T) {
	f := newFixture()
	u := activeUser(t)

	f.userRepo.On("GetByUsername", mock.Anything, "alice").Return(u, nil)
	f.sessions.On("Create", mock.Anything, u).Return("sid-1", nil)
	f.tokens.On("Issue", "alice", domain.RoleCustomer, "sid-1").Return("signed-token", nil)
	f.audit.On("Record", mock.Anything, "alice", mock.MatchedBy(func(e domain.LoginEvent) bool {
		return e.Type == domain.LoginEventPassword && e.SourceIP == "10.0.0.1"
	})).Return(nil)

	res, err := f.svc.Login(context.Background(), LoginRequest{Username: "alice", Password: "s3cret-pass"}, meta)
	require.NoError(t, err)
	assert.Equal(t, "signed-token", res.Token)
	assert.Equal(t, "sid-1", res.SessionID)
	assert.False(t, res.TwoFactorRequired)
	f.audit.AssertExpectations(t)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture()
	u := activeUser(t)
	disabled := activeUser(t)
	disabled.Enable = false

	f.userRepo.On("GetByUsername", mock.Anything, "ghost").Return(nil, domain.ErrNotFound)
	f.userRepo.On("GetByUsername", mock.Anything, "alice").Return(u, nil)
	f.userRepo.On("GetByUsername", mock.Anything, "dora").Return(disabled, nil)

	_, unknownErr := f.svc.Login(context.Background(), LoginRequest{Username: "ghost", Password: "whatever"}, meta)
	_, badPassErr := f.svc.Login(context.Background(), LoginRequest{Username: "alice", Password: "wrong-pass"}, meta)
	_, disabledErr := f.svc.Login(context.Background(), LoginRequest{Username: "dora", Password: "s3cret-pass"}, meta)

	// An attacker probing usernames must see one uniform failure.
	require.ErrorIs(t, unknownErr, domain.ErrUnauthorized)
	assert.Equal(t, unknownErr.Error(), badPassErr.Error())
	assert.Equal(t, unknownErr.Error(), disabledErr.Error())
	f.sessions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestLoginWithTwoFactorDefersSession(t *testing.T) {
	f := newFixture()
	u := activeUser(t)
	u.TwoFactorEnabled = true

	f.userRepo.On("GetByUsername", mock.Anything, "alice").Return(u, nil)
	f.otps.On("Issue", mock.Anything, "alice").Return("123456", nil)
	f.mailer.On("SendEmail", "alice@example.com", mock.Anything, mock.MatchedBy(func(body string) bool {
		return body != "" // the code rides in the body
	})).Return(nil)

	res, err := f.svc.Login(context.Background(), LoginRequest{Username: "alice", Password: "s3cret-pass"}, meta)
	require.NoError(t, err)
	assert.True(t, res.TwoFactorRequired)
	assert.Empty(t, res.Token)
	assert.Empty(t, res.SessionID)
	f.sessions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.mailer.AssertExpectations(t)
}

func TestLoginTwoFactorSurvivesDeliveryFailure(t *testing.T) {
	f := newFixture()
	u := activeUser(t)
	u.TwoFactorEnabled = true
	phone := "+15550100"
	u.Phone = &phone

	f.userRepo.On("GetByUsername", mock.Anything, "alice").Return(u, nil)
	f.otps.On("Issue", mock.Anything, "alice").Return("123456", nil)
	f.mailer.On("SendEmail", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))
	f.sms.On("SendSMS", mock.Anything, phone, mock.Anything).Return(errors.New("sns down"))

	res, err := f.svc.Login(context.Background(), LoginRequest{Username: "alice", Password: "s3cret-pass"}, meta)
	require.NoError(t, err)
	assert.True(t, res.TwoFactorRequired)
	f.sms.AssertExpectations(t)
}

func TestVerifyOTPSuccess(t *testing.T) {
	f := newFixture()
	u := activeUser(t)
	u.TwoFactorEnabled = true

	f.userRepo.On("GetByUsername", mock.Anything, "alice").Return(u, nil)
	f.otps.On("Validate", mock.Anything, "alice", "123456").Return(true)
	f.sessions.On("Create", mock.Anything, u).Return("sid-2", nil)
	f.tokens.On("Issue", "alice", domain.RoleCustomer, "sid-2").Return("signed-token", nil)
	f.audit.On("Record", mock.Anything, "alice", mock.MatchedBy(func(e domain.LoginEvent) bool {
		return e.Type == domain.LoginEventOTP
	})).Return(nil)

	res, err := f.svc.VerifyOTP(context.Background(), VerifyOTPRequest{Username: "alice", OTP: "123456"}, meta)
	require.NoError(t, err)
	assert.Equal(t, "signed-token", res.Token)
	f.audit.AssertExpectations(t)
}

func TestVerifyOTPRejected(t *testing.T) {
	f := newFixture()
	u := activeUser(t)

	f.userRepo.On("GetByUsername", mock.Anything, "alice").Return(u, nil)
	f.otps.On("Validate", mock.Anything, "alice", "000000").Return(false)

	_, err := f.svc.VerifyOTP(context.Background(), VerifyOTPRequest{Username: "alice", OTP: "000000"}, meta)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	f.sessions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegisterSuccess(t *testing.T) {
	f := newFixture()

	f.userRepo.On("ExistsByUsername", mock.Anything, "bob").Return(false, nil)
	f.userRepo.On("ExistsByEmail", mock.Anything, "bob@example.com").Return(false, nil)
	f.userRepo.On("Put", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.Role == domain.RoleCustomer &&
			u.Enable &&
			!u.TwoFactorEnabled &&
			u.UserID != "" &&
			bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("new-pass-123")) == nil
	})).Return(nil)
	f.sessions.On("Create", mock.Anything, mock.Anything).Return("sid-3", nil)
	f.tokens.On("Issue", "bob", domain.RoleCustomer, "sid-3").Return("signed-token", nil)
	f.audit.On("Record", mock.Anything, "bob", mock.Anything).Return(nil)

	res, err := f.svc.Register(context.Background(), domain.RegisterRequest{
		Username: "bob",
		Password: "new-pass-123",
		Email:    "bob@example.com",
	}, meta)
	require.NoError(t, err)
	assert.Equal(t, "signed-token", res.Token)
	assert.Equal(t, domain.RoleCustomer, res.Role)
	f.userRepo.AssertExpectations(t)
}

func TestRegisterConflicts(t *testing.T) {
	f := newFixture()

	f.userRepo.On("ExistsByUsername", mock.Anything, "taken").Return(true, nil)
	f.userRepo.On("ExistsByUsername", mock.Anything, "bob").Return(false, nil)
	f.userRepo.On("ExistsByEmail", mock.Anything, "taken@example.com").Return(true, nil)

	_, err := f.svc.Register(context.Background(), domain.RegisterRequest{
		Username: "taken", Password: "new-pass-123", Email: "bob@example.com",
	}, meta)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.svc.Register(context.Background(), domain.RegisterRequest{
		Username: "bob", Password: "new-pass-123", Email: "taken@example.com",
	}, meta)
	assert.ErrorIs(t, err, domain.ErrConflict)
	f.userRepo.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestTokenFailureRollsBackSession(t *testing.T) {
	f := newFixture()
	u := activeUser(t)

	f.userRepo.On("GetByUsername", mock.Anything, "alice").Return(u, nil)
	f.sessions.On("Create", mock.Anything, u).Return("sid-4", nil)
	f.tokens.On("Issue", "alice", domain.RoleCustomer, "sid-4").Return("", errors.New("signing failed"))
	f.sessions.On("Invalidate", mock.Anything, "sid-4").Return()

	_, err := f.svc.Login(context.Background(), LoginRequest{Username: "alice", Password: "s3cret-pass"}, meta)
	require.Error(t, err)
	f.sessions.AssertCalled(t, "Invalidate", mock.Anything, "sid-4")
}

func TestChangePassword(t *testing.T) {
	f := newFixture()
	u := activeUser(t)

	f.userRepo.On("GetByUsername", mock.Anything, "alice").Return(u, nil)
	f.userRepo.On("UpdatePassword", mock.Anything, "user-1", mock.MatchedBy(func(h string) bool {
		return bcrypt.CompareHashAndPassword([]byte(h), []byte("brand-new-pass")) == nil
	})).Return(nil)
	f.sessions.On("InvalidateAllForUser", mock.Anything, "alice").Return()

	err := f.svc.ChangePassword(context.Background(), "alice", ChangePasswordRequest{
		CurrentPassword: "s3cret-pass",
		NewPassword:     "brand-new-pass",
	})
	require.NoError(t, err)
	f.sessions.AssertCalled(t, "InvalidateAllForUser", mock.Anything, "alice")
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	f := newFixture()
	u := activeUser(t)

	f.userRepo.On("GetByUsername", mock.Anything, "alice").Return(u, nil)

	err := f.svc.ChangePassword(context.Background(), "alice", ChangePasswordRequest{
		CurrentPassword: "wrong",
		NewPassword:     "brand-new-pass",
	})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	f.userRepo.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecentActivityPassesThrough(t *testing.T) {
	f := newFixture()
	events := []domain.LoginEvent{{Type: domain.LoginEventPassword, SourceIP: "10.0.0.1"}}

	f.audit.On("Recent", mock.Anything, "alice", 10).Return(events, nil)

	got, err := f.svc.RecentActivity(context.Background(), "alice", 10)
	require.NoError(t, err)
	assert.Equal(t, events, got)
}
