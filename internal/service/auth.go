package service

import (
	"context"
	"errors"

	"helpinghands/api/internal/apperr"
	"helpinghands/api/internal/model"
	"helpinghands/api/internal/store"
	"helpinghands/api/internal/token"

	"go.uber.org/zap"
)

// MailDispatcher accepts mail for asynchronous delivery
type MailDispatcher interface {
	Enqueue(m *Mail) error
}

// AuthService runs the account lifecycle: registration, email verification,
// login with lockout, token refresh, password reset and change, logout.
// Every method returns *apperr.Error values for outcomes the caller is
// allowed to see and apperr.Internal for everything else.
type AuthService struct {
	users  *store.CredentialStore
	tokens *store.RefreshTokenStore
	issuer *token.Issuer
	mail   MailDispatcher
}

func NewAuthService(users *store.CredentialStore, tokens *store.RefreshTokenStore, issuer *token.Issuer, mail MailDispatcher) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		issuer: issuer,
		mail:   mail,
	}
}

type LoginResult struct {
	User   *model.User
	Tokens *token.Pair
}

func (s *AuthService) send(kind MailKind, to, tok string) {
	err := s.mail.Enqueue(&Mail{Kind: kind, To: to, Token: tok})
	if err != nil {
		zap.L().Error("Failed to queue mail", zap.String("kind", string(kind)), zap.Error(err))
	}
}

// Register creates a pending account and mails the verification link
func (s *AuthService) Register(ctx context.Context, email, password string, role model.Role) (*model.User, error) {
	u, verifyToken, err := s.users.Create(ctx, email, password, role)
	if err != nil {
		if errors.Is(err, apperr.ErrDuplicateEmail) {
			return nil, apperr.ErrDuplicateEmail
		}

		return nil, apperr.Internal(err)
	}

	registrationsTotal.Inc()
	s.send(MailVerification, u.Email, verifyToken)

	return u, nil
}

// Login checks the lock before the password so a locked account can't be
// brute forced. Unknown emails and wrong passwords look the same to the caller,
// both in the response and in the time spent hashing.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.users.VerifyDecoy(password)
			loginsTotal.WithLabelValues("invalid_credentials").Inc()
			return nil, apperr.ErrInvalidCredentials
		}

		return nil, apperr.Internal(err)
	}

	if s.users.IsLocked(u) {
		loginsTotal.WithLabelValues("locked").Inc()
		return nil, apperr.AccountLocked(*u.LockedUntil)
	}

	if !s.users.VerifyPassword(u, password) {
		if err := s.users.IncrementFailedAttempts(ctx, u); err != nil {
			return nil, apperr.Internal(err)
		}

		if s.users.IsLocked(u) {
			lockoutsTotal.Inc()
		}

		loginsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, apperr.ErrInvalidCredentials
	}

	if !u.EmailVerified {
		loginsTotal.WithLabelValues("not_verified").Inc()
		return nil, apperr.ErrEmailNotVerified
	}

	if !u.IsActive() {
		loginsTotal.WithLabelValues("inactive").Inc()
		return nil, apperr.ErrAccountInactive
	}

	if err := s.users.UpdateLastLogin(ctx, u); err != nil {
		return nil, apperr.Internal(err)
	}

	pair, err := s.issuer.IssueTokenPair(ctx, u)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	loginsTotal.WithLabelValues("success").Inc()
	return &LoginResult{User: u, Tokens: pair}, nil
}

// Logout revokes a single session. It never fails, store errors are logged.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}

	if err := s.tokens.DeleteByToken(ctx, refreshToken); err != nil {
		zap.L().Error("Failed to delete refresh token on logout", zap.Error(err))
	}
}

// LogoutAll revokes every session of userID. It never fails.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) {
	if err := s.tokens.DeleteAllForUser(ctx, userID); err != nil {
		zap.L().Error("Failed to delete refresh tokens on logout-all", zap.String("userID", userID), zap.Error(err))
	}
}

// Refresh rotates refreshToken. Every domain failure is reported as
// ErrInvalidRefreshToken, the cause is kept for logging.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*token.Pair, *model.User, error) {
	pair, u, err := s.issuer.Refresh(ctx, refreshToken)
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) && ae.Kind != apperr.KindInternal {
			refreshTotal.WithLabelValues("rejected").Inc()
			return nil, nil, apperr.Wrap(apperr.ErrInvalidRefreshToken, err)
		}

		refreshTotal.WithLabelValues("error").Inc()
		return nil, nil, apperr.Internal(err)
	}

	refreshTotal.WithLabelValues("success").Inc()
	return pair, u, nil
}

// RequestPasswordReset mails a reset link if the account exists. Callers
// get the same answer either way.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}

		return apperr.Internal(err)
	}

	resetToken, err := s.users.GeneratePasswordResetToken(ctx, u)
	if err != nil {
		return apperr.Internal(err)
	}

	s.send(MailPasswordReset, u.Email, resetToken)
	return nil
}

// ResetPassword consumes a reset token and signs the user out everywhere
func (s *AuthService) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	u, err := s.users.FindByResetToken(ctx, resetToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.ErrInvalidResetToken
		}

		return apperr.Internal(err)
	}

	if err := s.users.UpdatePasswordAndRevoke(ctx, u, newPassword); err != nil {
		return apperr.Internal(err)
	}

	passwordChangesTotal.WithLabelValues("reset").Inc()
	return nil
}

// VerifyEmail consumes a verification token and activates the account
func (s *AuthService) VerifyEmail(ctx context.Context, verifyToken string) (*model.User, error) {
	u, err := s.users.FindByVerificationToken(ctx, verifyToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrInvalidVerificationToken
		}

		return nil, apperr.Internal(err)
	}

	if err := s.users.VerifyEmail(ctx, u); err != nil {
		return nil, apperr.Internal(err)
	}

	s.send(MailWelcome, u.Email, "")
	return u, nil
}

// ResendVerification mails a fresh verification link to unverified
// accounts. Unknown and verified emails get the same silent success, except
// that a signed in caller asking about their own verified address is told
// so with ErrAlreadyVerified. caller may be nil.
func (s *AuthService) ResendVerification(ctx context.Context, email string, caller *model.User) error {
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}

		return apperr.Internal(err)
	}

	if u.EmailVerified {
		if caller != nil && caller.ID == u.ID {
			return apperr.ErrAlreadyVerified
		}

		return nil
	}

	verifyToken, err := s.users.GenerateVerificationToken(ctx, u)
	if err != nil {
		return apperr.Internal(err)
	}

	s.send(MailVerification, u.Email, verifyToken)
	return nil
}

// ChangePassword requires the current password and revokes every session
func (s *AuthService) ChangePassword(ctx context.Context, u *model.User, currentPassword, newPassword string) error {
	if !s.users.VerifyPassword(u, currentPassword) {
		return apperr.ErrInvalidCurrentPassword
	}

	if err := s.users.UpdatePasswordAndRevoke(ctx, u, newPassword); err != nil {
		return apperr.Internal(err)
	}

	passwordChangesTotal.WithLabelValues("change").Inc()
	return nil
}

// ActiveSessions counts the unexpired refresh tokens of userID
func (s *AuthService) ActiveSessions(ctx context.Context, userID string) (int64, error) {
	n, err := s.tokens.CountForUser(ctx, userID)
	if err != nil {
		return 0, apperr.Internal(err)
	}

	return n, nil
}

// ListUsers returns one page of users, page counts from 1
func (s *AuthService) ListUsers(ctx context.Context, page, limit int) ([]model.PublicUser, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	users, total, err := s.users.List(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, apperr.Internal(err)
	}

	out := make([]model.PublicUser, 0, len(users))
	for i := range users {
		out = append(out, users[i].Public())
	}

	return out, total, nil
}

// LoadUser resolves the user behind an access token's claims
func (s *AuthService) LoadUser(ctx context.Context, id string) (*model.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.ErrUserNotFound
		}

		return nil, apperr.Internal(err)
	}

	return u, nil
}

func (s *AuthService) Issuer() *token.Issuer {
	return s.issuer
}
