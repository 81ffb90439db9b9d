package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openloop/accounts/internal/model"
	"github.com/openloop/accounts/internal/repository"
	"github.com/openloop/accounts/internal/service"
)

type memoryUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[string]*model.User)}
}

func (m *memoryUserRepo) Create(user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

func (m *memoryUserRepo) ByID(id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (m *memoryUserRepo) ByEmail(email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memoryUserRepo) ByVerificationToken(token string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.VerificationToken != nil && *u.VerificationToken == token {
			clone := *u
			return &clone, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memoryUserRepo) Update(user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return repository.ErrUserNotFound
	}
	clone := *user
	m.users[user.ID] = &clone
	return nil
}

type memorySessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

func newMemorySessionRepo() *memorySessionRepo {
	return &memorySessionRepo{sessions: make(map[string]*model.Session)}
}

func (m *memorySessionRepo) Create(session *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session.ID == "" {
		session.ID = session.RefreshToken[:8]
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	clone := *session
	m.sessions[session.ID] = &clone
	return nil
}

func (m *memorySessionRepo) ByRefreshToken(refreshToken string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.RefreshToken == refreshToken {
			clone := *s
			return &clone, nil
		}
	}
	return nil, repository.ErrSessionNotFound
}

func (m *memorySessionRepo) Rotate(id, refreshToken string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.RevokedAt != nil {
		return repository.ErrSessionNotFound
	}
	s.RefreshToken = refreshToken
	s.ExpiresAt = expiresAt
	return nil
}

func (m *memorySessionRepo) Revoke(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok && s.RevokedAt == nil {
		now := time.Now()
		s.RevokedAt = &now
	}
	return nil
}

type recordingMailer struct {
	sent chan string
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{sent: make(chan string, 8)}
}

func (m *recordingMailer) SendVerificationEmail(email, name, token string) error {
	m.sent <- "verification:" + email
	return nil
}

func (m *recordingMailer) SendPasswordResetEmail(email, name, token string) error {
	m.sent <- "reset:" + email
	return nil
}

func (m *recordingMailer) await(t *testing.T) string {
	t.Helper()
	select {
	case got := <-m.sent:
		return got
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for mail send")
		return ""
	}
}

type fakeVerifier struct {
	identity *service.SocialIdentity
}

func (f *fakeVerifier) Verify(ctx context.Context, provider, token string) (*service.SocialIdentity, error) {
	if token == "good" {
		return f.identity, nil
	}
	return nil, nil
}

type fixture struct {
	auth     *service.AuthService
	users    *memoryUserRepo
	sessions *memorySessionRepo
	mailer   *recordingMailer
	verifier *fakeVerifier
}

func newFixture() *fixture {
	users := newMemoryUserRepo()
	sessions := newMemorySessionRepo()
	mailer := newRecordingMailer()
	verifier := &fakeVerifier{}

	auth := service.NewAuthService(users, sessions, mailer, verifier,
		"test-secret", time.Hour, 24*time.Hour)

	return &fixture{auth: auth, users: users, sessions: sessions, mailer: mailer, verifier: verifier}
}

func TestRegisterCreatesUnverifiedUserWithToken(t *testing.T) {
	f := newFixture()

	user, err := f.auth.Register("Alice", "a@b.com", "password1")
	require.NoError(t, err)
	require.False(t, user.Verified)
	require.NotNil(t, user.VerificationToken)
	require.NotEmpty(t, *user.VerificationToken)
	require.NotEqual(t, "password1", user.PasswordHash)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	f := newFixture()

	_, err := f.auth.Register("Alice", "a@b.com", "password1")
	require.NoError(t, err)

	_, err = f.auth.Register("Alice Again", "a@b.com", "password2")
	require.ErrorIs(t, err, service.ErrEmailAlreadyExists)
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	f := newFixture()

	_, err := f.auth.Register("Alice", "a@b.com", "short")
	var validationErr *service.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "password", validationErr.Field)
}

func TestVerifyAccountConsumesToken(t *testing.T) {
	f := newFixture()

	user, err := f.auth.Register("Alice", "a@b.com", "password1")
	require.NoError(t, err)
	token := *user.VerificationToken

	verified, err := f.auth.VerifyAccount(token)
	require.NoError(t, err)
	require.True(t, verified.Verified)
	require.Nil(t, verified.VerificationToken)

	// Single use: same token again fails
	_, err = f.auth.VerifyAccount(token)
	require.ErrorIs(t, err, service.ErrInvalidToken)
}

func TestReissueInvalidatesPreviousToken(t *testing.T) {
	f := newFixture()

	user, err := f.auth.Register("Alice", "a@b.com", "password1")
	require.NoError(t, err)
	first := *user.VerificationToken

	err = f.auth.ResendVerification("a@b.com")
	require.NoError(t, err)
	f.mailer.await(t)

	// Old token is gone, only the new one resolves
	_, err = f.auth.VerifyAccount(first)
	require.ErrorIs(t, err, service.ErrInvalidToken)

	current, err := f.users.ByEmail("a@b.com")
	require.NoError(t, err)
	require.NotEqual(t, first, *current.VerificationToken)
}

func TestLoginChecksVerifiedAfterCredentials(t *testing.T) {
	f := newFixture()

	_, err := f.auth.Register("Alice", "a@b.com", "password1")
	require.NoError(t, err)

	// Correct credentials, unverified account
	_, _, err = f.auth.Login("a@b.com", "password1")
	require.ErrorIs(t, err, service.ErrAccountNotVerified)

	// Wrong password never reveals verification state
	_, _, err = f.auth.Login("a@b.com", "wrong")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	// Unknown email reads the same as a wrong password
	_, _, err = f.auth.Login("nobody@b.com", "password1")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
}

func TestLoginMintsTokenPair(t *testing.T) {
	f := newFixture()

	user, err := f.auth.Register("Alice", "a@b.com", "password1")
	require.NoError(t, err)
	_, err = f.auth.VerifyAccount(*user.VerificationToken)
	require.NoError(t, err)

	logged, pair, err := f.auth.Login("a@b.com", "password1")
	require.NoError(t, err)
	require.Equal(t, user.ID, logged.ID)
	require.NotEmpty(t, pair.Token)
	require.NotEmpty(t, pair.RefreshToken)

	claims, err := f.auth.VerifyJWT(pair.Token)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims["user_id"])
}

func TestRefreshRotatesToken(t *testing.T) {
	f := newFixture()

	user, err := f.auth.Register("Alice", "a@b.com", "password1")
	require.NoError(t, err)
	_, err = f.auth.VerifyAccount(*user.VerificationToken)
	require.NoError(t, err)

	_, pair, err := f.auth.Login("a@b.com", "password1")
	require.NoError(t, err)

	_, next, err := f.auth.Refresh(pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// The old refresh token is dead after rotation
	_, _, err = f.auth.Refresh(pair.RefreshToken)
	require.ErrorIs(t, err, service.ErrInvalidRefreshToken)
}

func TestLogoutRevokesSession(t *testing.T) {
	f := newFixture()

	user, err := f.auth.Register("Alice", "a@b.com", "password1")
	require.NoError(t, err)
	_, err = f.auth.VerifyAccount(*user.VerificationToken)
	require.NoError(t, err)

	_, pair, err := f.auth.Login("a@b.com", "password1")
	require.NoError(t, err)

	session, err := f.sessions.ByRefreshToken(pair.RefreshToken)
	require.NoError(t, err)

	require.NoError(t, f.auth.Logout(session.ID))
	// Idempotent
	require.NoError(t, f.auth.Logout(session.ID))

	_, _, err = f.auth.Refresh(pair.RefreshToken)
	require.ErrorIs(t, err, service.ErrInvalidRefreshToken)
}

func TestSocialLoginCreatesVerifiedUser(t *testing.T) {
	f := newFixture()
	f.verifier.identity = &service.SocialIdentity{
		ID:     "fb-123",
		Email:  "social@b.com",
		Name:   "Bob",
		Locale: "en_US",
		Avatar: "https://graph.example/avatar.jpg",
	}

	user, pair, err := f.auth.SocialLogin(context.Background(), "facebook", "good")
	require.NoError(t, err)
	require.True(t, user.Verified)
	require.Equal(t, "Bob", user.Name)
	require.Equal(t, "en", user.Language)
	require.Equal(t, "https://graph.example/avatar.jpg", user.Avatar)
	require.NotEmpty(t, pair.Token)
	require.NotEmpty(t, pair.RefreshToken)

	// Placeholder password is unusable for direct login
	_, _, err = f.auth.Login("social@b.com", "")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	// Second social login reuses the account
	again, _, err := f.auth.SocialLogin(context.Background(), "facebook", "good")
	require.NoError(t, err)
	require.Equal(t, user.ID, again.ID)
}

func TestSocialLoginRejectsBadToken(t *testing.T) {
	f := newFixture()
	f.verifier.identity = &service.SocialIdentity{ID: "x", Email: "social@b.com"}

	_, _, err := f.auth.SocialLogin(context.Background(), "facebook", "bad")
	require.ErrorIs(t, err, service.ErrInvalidSocialToken)
}

func TestSocialLoginRejectsUnknownProvider(t *testing.T) {
	f := newFixture()

	_, _, err := f.auth.SocialLogin(context.Background(), "myspace", "good")
	require.ErrorIs(t, err, service.ErrUnknownProvider)
}

func TestResendVerificationUnknownEmail(t *testing.T) {
	f := newFixture()

	err := f.auth.ResendVerification("nobody@b.com")
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestForgotPasswordIssuesTokenAndMails(t *testing.T) {
	f := newFixture()

	user, err := f.auth.Register("Alice", "a@b.com", "password1")
	require.NoError(t, err)
	registrationToken := *user.VerificationToken

	err = f.auth.ForgotPassword("a@b.com")
	require.NoError(t, err)
	require.Equal(t, "reset:a@b.com", f.mailer.await(t))

	// One pending-token slot: the reset issue replaced the
	// registration token
	current, err := f.users.ByEmail("a@b.com")
	require.NoError(t, err)
	require.NotEqual(t, registrationToken, *current.VerificationToken)

	err = f.auth.ForgotPassword("nobody@b.com")
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestResolveResetToken(t *testing.T) {
	f := newFixture()

	user, err := f.auth.Register("Alice", "a@b.com", "password1")
	require.NoError(t, err)

	resolved, err := f.auth.ResolveResetToken(*user.VerificationToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, resolved.ID)

	_, err = f.auth.ResolveResetToken("")
	require.ErrorIs(t, err, service.ErrInvalidToken)

	_, err = f.auth.ResolveResetToken("bogus")
	require.ErrorIs(t, err, service.ErrInvalidToken)
}

func TestCompletePasswordReset(t *testing.T) {
	f := newFixture()

	user, err := f.auth.Register("Alice", "a@b.com", "password1")
	require.NoError(t, err)
	_, err = f.auth.VerifyAccount(*user.VerificationToken)
	require.NoError(t, err)

	err = f.auth.ForgotPassword("a@b.com")
	require.NoError(t, err)
	f.mailer.await(t)

	current, err := f.users.ByEmail("a@b.com")
	require.NoError(t, err)
	token := *current.VerificationToken

	_, err = f.auth.CompletePasswordReset(token, "newpassword", "different")
	require.ErrorIs(t, err, service.ErrPasswordConfirmation)

	reset, err := f.auth.CompletePasswordReset(token, "newpassword", "newpassword")
	require.NoError(t, err)
	require.Nil(t, reset.VerificationToken)

	// Token is consumed
	_, err = f.auth.CompletePasswordReset(token, "another1", "another1")
	require.ErrorIs(t, err, service.ErrInvalidToken)

	_, _, err = f.auth.Login("a@b.com", "newpassword")
	require.NoError(t, err)
	_, _, err = f.auth.Login("a@b.com", "password1")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
}

func TestChangePassword(t *testing.T) {
	f := newFixture()

	user, err := f.auth.Register("Alice", "a@b.com", "password1")
	require.NoError(t, err)
	_, err = f.auth.VerifyAccount(*user.VerificationToken)
	require.NoError(t, err)

	current, err := f.users.ByEmail("a@b.com")
	require.NoError(t, err)
	originalHash := current.PasswordHash

	// Wrong current password: stored hash must stay untouched
	err = f.auth.ChangePassword(current, "wrong", "newpassword")
	require.ErrorIs(t, err, service.ErrPasswordMismatch)

	stored, err := f.users.ByEmail("a@b.com")
	require.NoError(t, err)
	require.Equal(t, originalHash, stored.PasswordHash)

	err = f.auth.ChangePassword(current, "password1", "newpassword")
	require.NoError(t, err)

	_, _, err = f.auth.Login("a@b.com", "newpassword")
	require.NoError(t, err)
}

func TestChangePasswordClearsPendingToken(t *testing.T) {
	f := newFixture()

	user, err := f.auth.Register("Alice", "a@b.com", "password1")
	require.NoError(t, err)
	_, err = f.auth.VerifyAccount(*user.VerificationToken)
	require.NoError(t, err)

	// Open a reset flow, then change the password directly
	err = f.auth.ForgotPassword("a@b.com")
	require.NoError(t, err)
	f.mailer.await(t)

	current, err := f.users.ByEmail("a@b.com")
	require.NoError(t, err)
	staleToken := *current.VerificationToken

	err = f.auth.ChangePassword(current, "password1", "newpassword")
	require.NoError(t, err)

	// The stale reset link is dead
	_, err = f.auth.ResolveResetToken(staleToken)
	require.ErrorIs(t, err, service.ErrInvalidToken)
}

func TestMe(t *testing.T) {
	f := newFixture()

	user, err := f.auth.Register("Alice", "a@b.com", "password1")
	require.NoError(t, err)

	got, err := f.auth.Me(user.ID)
	require.NoError(t, err)
	require.Equal(t, user.Email, got.Email)

	_, err = f.auth.Me("missing")
	require.ErrorIs(t, err, service.ErrNotFound)
}
