package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/language"

	"github.com/openloop/accounts/internal/model"
	"github.com/openloop/accounts/internal/repository"
	"github.com/openloop/accounts/internal/validation"
)

// Mailer delivers transactional mail. Sends triggered by
// verification-resend and forgot-password are fired after the caller
// already has its response, failures are logged, never returned.
type Mailer interface {
	SendVerificationEmail(email, name, token string) error
	SendPasswordResetEmail(email, name, token string) error
}

// SocialIdentity is the profile a provider vouches for in exchange
// for a valid access token.
type SocialIdentity struct {
	ID     string
	Email  string
	Name   string
	Locale string
	Avatar string
}

// SocialVerifier resolves a provider access token to an identity.
// A nil identity with a nil error means the provider rejected the
// token.
type SocialVerifier interface {
	Verify(ctx context.Context, provider, token string) (*SocialIdentity, error)
}

// TokenPair is the session credential set minted after a successful
// authentication.
type TokenPair struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`

	sessionID string
}

var socialProviders = map[string]bool{
	"facebook": true,
	"google":   true,
}

// AuthService owns the credential and token lifecycle: registration,
// login, social login, verification tokens and password mutation.
type AuthService struct {
	userRepository    repository.UserRepository
	sessionRepository repository.SessionRepository
	mailer            Mailer
	socialVerifier    SocialVerifier
	jwtSecret         string
	jwtExpiry         time.Duration
	refreshExpiry     time.Duration
}

func NewAuthService(
	userRepository repository.UserRepository,
	sessionRepository repository.SessionRepository,
	mailer Mailer,
	socialVerifier SocialVerifier,
	jwtSecret string,
	jwtExpiry time.Duration,
	refreshExpiry time.Duration,
) *AuthService {
	return &AuthService{
		userRepository:    userRepository,
		sessionRepository: sessionRepository,
		mailer:            mailer,
		socialVerifier:    socialVerifier,
		jwtSecret:         jwtSecret,
		jwtExpiry:         jwtExpiry,
		refreshExpiry:     refreshExpiry,
	}
}

// IssueVerificationToken derives a fresh single-use token from a
// random UUID passed through SHA-256. Issuing replaces any pending
// token, at most one is live per user.
func (s *AuthService) IssueVerificationToken(user *model.User) string {
	sum := sha256.Sum256([]byte(uuid.New().String()))
	token := hex.EncodeToString(sum[:])
	user.VerificationToken = &token
	return token
}

// Register creates an unverified account with a pending verification
// token. No session is minted; the user logs in after verifying.
func (s *AuthService) Register(name, email, password string) (*model.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	err := validation.ValidateEmail(email)
	if err != nil {
		return nil, ErrInvalidEmail
	}
	err = validation.ValidatePassword(password)
	if err != nil {
		return nil, &ValidationError{Field: "password", Message: err.Error()}
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		Verified:     false,
		Name:         name,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.IssueVerificationToken(user)

	err = s.userRepository.Create(user)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, persistence("create user", err)
	}

	slog.Info("user registered", "user_id", user.ID, "email", user.Email)
	return user, nil
}

// Login authenticates email/password and mints a session token pair.
// The verified flag is checked only after the credentials match, so a
// wrong password never reveals whether the account exists or is
// pending verification.
func (s *AuthService) Login(email, password string) (*model.User, *TokenPair, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.userRepository.ByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, persistence("get user", err)
	}

	err = s.ComparePassword(password, user.PasswordHash)
	if err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.mintSession(user)
	if err != nil {
		return nil, nil, err
	}

	if !user.Verified {
		// Credentials were right; discard the freshly minted pair.
		err = s.Logout(pair.sessionID)
		if err != nil {
			slog.Warn("failed to revoke session for unverified login", "user_id", user.ID, "error", err)
		}
		return nil, nil, ErrAccountNotVerified
	}

	slog.Info("user logged in", "user_id", user.ID, "email", user.Email)
	return user, pair, nil
}

// Refresh rotates a refresh token and returns a new pair. The old
// refresh token stops working immediately.
func (s *AuthService) Refresh(refreshToken string) (*model.User, *TokenPair, error) {
	session, err := s.sessionRepository.ByRefreshToken(refreshToken)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, nil, ErrInvalidRefreshToken
		}
		return nil, nil, persistence("get session", err)
	}
	if !session.IsValid() {
		return nil, nil, ErrInvalidRefreshToken
	}

	user, err := s.userRepository.ByID(session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil, ErrInvalidRefreshToken
		}
		return nil, nil, persistence("get user", err)
	}

	next, err := generateRefreshToken()
	if err != nil {
		return nil, nil, err
	}
	err = s.sessionRepository.Rotate(session.ID, next, time.Now().Add(s.refreshExpiry))
	if err != nil {
		return nil, nil, persistence("rotate session", err)
	}

	accessToken, err := s.GenerateJWT(user, session.ID)
	if err != nil {
		return nil, nil, err
	}

	return user, &TokenPair{Token: accessToken, RefreshToken: next, sessionID: session.ID}, nil
}

// Logout revokes the session server-side. Revoking twice is fine.
func (s *AuthService) Logout(sessionID string) error {
	err := s.sessionRepository.Revoke(sessionID)
	if err != nil {
		return persistence("revoke session", err)
	}
	return nil
}

// SocialLogin verifies a provider token and signs the user in,
// creating a pre-verified account on first sight. The placeholder
// password is random and never usable for direct login.
func (s *AuthService) SocialLogin(ctx context.Context, provider, providerToken string) (*model.User, *TokenPair, error) {
	if !socialProviders[provider] {
		return nil, nil, ErrUnknownProvider
	}

	identity, err := s.socialVerifier.Verify(ctx, provider, providerToken)
	if err != nil {
		return nil, nil, fmt.Errorf("social token verification: %w", err)
	}
	if identity == nil {
		return nil, nil, ErrInvalidSocialToken
	}

	user, err := s.userRepository.ByEmail(identity.Email)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return nil, nil, persistence("get user", err)
	}

	if user == nil || errors.Is(err, repository.ErrUserNotFound) {
		placeholder, hashErr := s.HashPassword(uuid.New().String())
		if hashErr != nil {
			return nil, nil, fmt.Errorf("failed to hash placeholder password: %w", hashErr)
		}

		now := time.Now()
		user = &model.User{
			ID:           uuid.New().String(),
			Email:        identity.Email,
			PasswordHash: placeholder,
			Verified:     true,
			SocialID:     &identity.ID,
			Provider:     &provider,
			Name:         identity.Name,
			Language:     languageFromLocale(identity.Locale),
			Avatar:       identity.Avatar,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		err = s.userRepository.Create(user)
		if err != nil {
			return nil, nil, persistence("create user", err)
		}
		slog.Info("social user created", "user_id", user.ID, "email", user.Email, "provider", provider)
	}

	pair, err := s.mintSession(user)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("user logged in via social provider", "user_id", user.ID, "provider", provider)
	return user, pair, nil
}

// ResendVerification reissues the pending token and mails it. The
// mail send happens after this returns so provider latency never
// delays or fails the response.
func (s *AuthService) ResendVerification(email string) error {
	user, err := s.lookupByEmail(email)
	if err != nil {
		return err
	}

	token := s.IssueVerificationToken(user)
	err = s.userRepository.Update(user)
	if err != nil {
		return persistence("update user", err)
	}

	s.sendAsync("verification", user.Email, func() error {
		return s.mailer.SendVerificationEmail(user.Email, user.Name, token)
	})
	return nil
}

// VerifyAccount consumes a verification token. Tokens are single-use:
// the slot is cleared, so a second call with the same token fails.
func (s *AuthService) VerifyAccount(token string) (*model.User, error) {
	user, err := s.lookupByToken(token)
	if err != nil {
		return nil, err
	}

	user.Verified = true
	user.VerificationToken = nil
	err = s.userRepository.Update(user)
	if err != nil {
		return nil, persistence("update user", err)
	}

	slog.Info("account verified", "user_id", user.ID)
	return user, nil
}

// ForgotPassword issues a reset token into the same pending-token
// slot the verification flow uses; an open verification token is
// silently replaced. The reset mail is fire-and-forget.
func (s *AuthService) ForgotPassword(email string) error {
	user, err := s.lookupByEmail(email)
	if err != nil {
		return err
	}

	token := s.IssueVerificationToken(user)
	err = s.userRepository.Update(user)
	if err != nil {
		return persistence("update user", err)
	}

	s.sendAsync("password_reset", user.Email, func() error {
		return s.mailer.SendPasswordResetEmail(user.Email, user.Name, token)
	})
	return nil
}

// ResolveResetToken checks a reset token without consuming it, used
// to gate display of the reset form.
func (s *AuthService) ResolveResetToken(token string) (*model.User, error) {
	return s.lookupByToken(token)
}

// CompletePasswordReset consumes a reset token and stores the new
// password hash.
func (s *AuthService) CompletePasswordReset(token, newPassword, confirmation string) (*model.User, error) {
	if newPassword != confirmation {
		return nil, ErrPasswordConfirmation
	}
	err := validation.ValidatePassword(newPassword)
	if err != nil {
		return nil, &ValidationError{Field: "password", Message: err.Error()}
	}

	user, err := s.lookupByToken(token)
	if err != nil {
		return nil, err
	}

	hash, err := s.HashPassword(newPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user.PasswordHash = hash
	user.VerificationToken = nil
	err = s.userRepository.Update(user)
	if err != nil {
		return nil, persistence("update user", err)
	}

	slog.Info("password reset completed", "user_id", user.ID)
	return user, nil
}

// ChangePassword rotates the password of an authenticated user after
// re-checking the current one. Any pending token is invalidated so a
// stale reset link cannot undo the change.
func (s *AuthService) ChangePassword(user *model.User, oldPassword, newPassword string) error {
	err := validation.ValidatePassword(newPassword)
	if err != nil {
		return &ValidationError{Field: "newPassword", Message: err.Error()}
	}

	err = s.ComparePassword(oldPassword, user.PasswordHash)
	if err != nil {
		return ErrPasswordMismatch
	}

	hash, err := s.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user.PasswordHash = hash
	user.VerificationToken = nil
	err = s.userRepository.Update(user)
	if err != nil {
		return persistence("update user", err)
	}

	slog.Info("password changed", "user_id", user.ID)
	return nil
}

// Me resolves the current user by id, for the authenticated profile
// endpoint.
func (s *AuthService) Me(userID string) (*model.User, error) {
	user, err := s.userRepository.ByID(userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, persistence("get user", err)
	}
	return user, nil
}

func (s *AuthService) HashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

func (s *AuthService) ComparePassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// GenerateJWT mints an access token. The session id travels in the
// "sid" claim so logout can revoke the backing session.
func (s *AuthService) GenerateJWT(user *model.User, sessionID string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"sid":     sessionID,
		"exp":     time.Now().Add(s.jwtExpiry).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func (s *AuthService) VerifyJWT(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

func (s *AuthService) mintSession(user *model.User) (*TokenPair, error) {
	refreshToken, err := generateRefreshToken()
	if err != nil {
		return nil, err
	}

	session := &model.Session{
		UserID:       user.ID,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(s.refreshExpiry),
	}
	err = s.sessionRepository.Create(session)
	if err != nil {
		return nil, persistence("create session", err)
	}

	accessToken, err := s.GenerateJWT(user, session.ID)
	if err != nil {
		return nil, err
	}

	return &TokenPair{Token: accessToken, RefreshToken: refreshToken, sessionID: session.ID}, nil
}

func (s *AuthService) lookupByEmail(email string) (*model.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.userRepository.ByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, persistence("get user", err)
	}
	return user, nil
}

func (s *AuthService) lookupByToken(token string) (*model.User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	user, err := s.userRepository.ByVerificationToken(token)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, persistence("get user", err)
	}
	return user, nil
}

// sendAsync runs a mail send in the background. The caller's response
// must never wait on the mail provider; failures are logged so they
// stay observable.
func (s *AuthService) sendAsync(kind, email string, send func() error) {
	go func() {
		err := send()
		if err != nil {
			slog.Error("email send failed", "type", kind, "to", email, "error", err)
		}
	}()
}

func generateRefreshToken() (string, error) {
	bytes := make([]byte, 32)
	_, err := rand.Read(bytes)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// languageFromLocale reduces a provider locale like "en_US" to its
// primary language subtag.
func languageFromLocale(locale string) string {
	if locale == "" {
		return ""
	}
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return ""
	}
	base, _ := tag.Base()
	return base.String()
}
