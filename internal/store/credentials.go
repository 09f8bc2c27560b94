// Package store owns every write to the users and refresh_tokens tables
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"helpinghands/api/internal/apperr"
	"helpinghands/api/internal/model"
	"helpinghands/api/pkg/security"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("record not found")

const (
	DefaultMaxFailedAttempts = 5
	DefaultLockDuration      = 15 * time.Minute
	DefaultVerificationTTL   = 24 * time.Hour
	DefaultResetTTL          = time.Hour
)

type CredentialOpts struct {
	MaxFailedAttempts int
	LockDuration      time.Duration
	VerificationTTL   time.Duration
	ResetTTL          time.Duration
	// Defaults to time.Now, tests swap it to move time forward
	Now func() time.Time
}

type CredentialStore struct {
	db     *gorm.DB
	hasher security.Hasher
	opts   CredentialOpts

	decoyOnce sync.Once
	decoy     string
}

func NewCredentialStore(db *gorm.DB, h security.Hasher, o *CredentialOpts) *CredentialStore {
	opts := CredentialOpts{}
	if o != nil {
		opts = *o
	}

	if opts.MaxFailedAttempts <= 0 {
		opts.MaxFailedAttempts = DefaultMaxFailedAttempts
	}
	if opts.LockDuration <= 0 {
		opts.LockDuration = DefaultLockDuration
	}
	if opts.VerificationTTL <= 0 {
		opts.VerificationTTL = DefaultVerificationTTL
	}
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = DefaultResetTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &CredentialStore{db: db, hasher: h, opts: opts}
}

func (s *CredentialStore) now() time.Time {
	return s.opts.Now().UTC()
}

// NormalizeEmail is the canonical form emails are stored and looked up in
func NormalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// Create registers a new pending user and returns it with the plaintext
// verification token. The existence check and insert share one transaction
// and the unique index catches anything that still races past it.
func (s *CredentialStore) Create(ctx context.Context, email, password string, role model.Role) (*model.User, string, error) {
	if !role.Valid() {
		return nil, "", fmt.Errorf("unknown role %q", role)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password, %w", err)
	}

	token, err := security.GenerateToken(security.OneTimeTokenSize)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate verification token, %w", err)
	}

	now := s.now()
	expires := now.Add(s.opts.VerificationTTL)
	digest := security.HashToken(token)

	user := &model.User{
		Email:                    NormalizeEmail(email),
		PasswordHash:             hash,
		Role:                     role,
		Status:                   model.StatusPending,
		EmailVerified:            false,
		EmailVerificationHash:    &digest,
		EmailVerificationExpires: &expires,
		CreatedAt:                now,
		UpdatedAt:                now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.User{}).
			Where("email = ?", user.Email).
			Count(&count).
			Error; err != nil {
			return err
		}

		if count > 0 {
			return apperr.ErrDuplicateEmail
		}

		return tx.Create(user).Error
	})
	if err != nil {
		if errors.Is(err, apperr.ErrDuplicateEmail) || errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, "", apperr.ErrDuplicateEmail
		}

		return nil, "", fmt.Errorf("failed to create user, %w", err)
	}

	return user, token, nil
}

func (s *CredentialStore) first(ctx context.Context, query string, args ...any) (*model.User, error) {
	var u model.User

	err := s.db.WithContext(ctx).
		Where(query, args...).
		First(&u).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, err
	}

	return &u, nil
}

func (s *CredentialStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.first(ctx, "email = ?", NormalizeEmail(email))
}

func (s *CredentialStore) FindByID(ctx context.Context, id string) (*model.User, error) {
	return s.first(ctx, "id = ?", id)
}

// FindByVerificationToken only returns users whose token has not expired
func (s *CredentialStore) FindByVerificationToken(ctx context.Context, token string) (*model.User, error) {
	now := s.now()

	u, err := s.first(ctx, "email_verification_hash = ? AND email_verification_expires > ?", security.HashToken(token), now)
	if err != nil {
		return nil, err
	}

	if u.EmailVerificationExpires == nil || !u.EmailVerificationExpires.After(now) {
		return nil, ErrNotFound
	}

	return u, nil
}

// FindByResetToken only returns users whose token has not expired
func (s *CredentialStore) FindByResetToken(ctx context.Context, token string) (*model.User, error) {
	now := s.now()

	u, err := s.first(ctx, "password_reset_hash = ? AND password_reset_expires > ?", security.HashToken(token), now)
	if err != nil {
		return nil, err
	}

	if u.PasswordResetExpires == nil || !u.PasswordResetExpires.After(now) {
		return nil, ErrNotFound
	}

	return u, nil
}

// VerifyPassword never fails on a mismatch. A corrupt stored hash is logged
// and treated as a mismatch.
func (s *CredentialStore) VerifyPassword(u *model.User, candidate string) bool {
	ok, err := s.hasher.Verify(candidate, u.PasswordHash)
	if err != nil {
		zap.L().Error("Stored password hash can't be verified", zap.String("userID", u.ID), zap.Error(err))
		return false
	}

	return ok
}

// VerifyDecoy runs a full password comparison against a throwaway hash
// made with the store's hasher. Login calls it for unknown emails so they
// cost as much as a wrong password.
func (s *CredentialStore) VerifyDecoy(candidate string) {
	s.decoyOnce.Do(func() {
		h, err := s.hasher.Hash("decoy-password-never-matches")
		if err != nil {
			zap.L().Error("Failed to build decoy password hash", zap.Error(err))
			return
		}

		s.decoy = h
	})

	if s.decoy == "" {
		return
	}

	_, _ = s.hasher.Verify(candidate, s.decoy)
}

// UpdatePasswordAndRevoke rehashes the password, consumes any pending reset
// token and deletes every refresh token of u in one transaction. u is only
// updated once the transaction commits.
func (s *CredentialStore) UpdatePasswordAndRevoke(ctx context.Context, u *model.User, newPassword string) error {
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password, %w", err)
	}

	now := s.now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&model.User{}).
			Where("id = ?", u.ID).
			Updates(map[string]any{
				"password_hash":          hash,
				"password_reset_hash":    nil,
				"password_reset_expires": nil,
				"updated_at":             now,
			}).
			Error
		if err != nil {
			return fmt.Errorf("failed to update password, %w", err)
		}

		err = tx.Where("user_id = ?", u.ID).
			Delete(&model.RefreshToken{}).
			Error
		if err != nil {
			return fmt.Errorf("failed to revoke refresh tokens, %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	u.PasswordHash = hash
	u.PasswordResetHash = nil
	u.PasswordResetExpires = nil
	u.UpdatedAt = now

	return nil
}

// VerifyEmail is the only transition out of pending
func (s *CredentialStore) VerifyEmail(ctx context.Context, u *model.User) error {
	now := s.now()

	err := s.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", u.ID).
		Updates(map[string]any{
			"email_verified":             true,
			"status":                     model.StatusActive,
			"email_verification_hash":    nil,
			"email_verification_expires": nil,
			"updated_at":                 now,
		}).
		Error
	if err != nil {
		return fmt.Errorf("failed to verify email, %w", err)
	}

	u.EmailVerified = true
	u.Status = model.StatusActive
	u.EmailVerificationHash = nil
	u.EmailVerificationExpires = nil
	u.UpdatedAt = now

	return nil
}

// GeneratePasswordResetToken replaces any previous reset token. The returned
// plaintext can't be recovered later.
func (s *CredentialStore) GeneratePasswordResetToken(ctx context.Context, u *model.User) (string, error) {
	token, err := security.GenerateToken(security.OneTimeTokenSize)
	if err != nil {
		return "", fmt.Errorf("failed to generate reset token, %w", err)
	}

	now := s.now()
	expires := now.Add(s.opts.ResetTTL)
	digest := security.HashToken(token)

	err = s.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", u.ID).
		Updates(map[string]any{
			"password_reset_hash":    digest,
			"password_reset_expires": expires,
			"updated_at":             now,
		}).
		Error
	if err != nil {
		return "", fmt.Errorf("failed to store reset token, %w", err)
	}

	u.PasswordResetHash = &digest
	u.PasswordResetExpires = &expires
	u.UpdatedAt = now

	return token, nil
}

// GenerateVerificationToken replaces the pending verification token with a
// fresh one, used when the user asks for the mail again
func (s *CredentialStore) GenerateVerificationToken(ctx context.Context, u *model.User) (string, error) {
	token, err := security.GenerateToken(security.OneTimeTokenSize)
	if err != nil {
		return "", fmt.Errorf("failed to generate verification token, %w", err)
	}

	now := s.now()
	expires := now.Add(s.opts.VerificationTTL)
	digest := security.HashToken(token)

	err = s.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ? AND email_verified = ?", u.ID, false).
		Updates(map[string]any{
			"email_verification_hash":    digest,
			"email_verification_expires": expires,
			"updated_at":                 now,
		}).
		Error
	if err != nil {
		return "", fmt.Errorf("failed to store verification token, %w", err)
	}

	u.EmailVerificationHash = &digest
	u.EmailVerificationExpires = &expires
	u.UpdatedAt = now

	return token, nil
}

// UpdateLastLogin records a successful login and clears the lockout state
func (s *CredentialStore) UpdateLastLogin(ctx context.Context, u *model.User) error {
	now := s.now()

	err := s.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", u.ID).
		Updates(map[string]any{
			"last_login":            now,
			"failed_login_attempts": 0,
			"locked_until":          nil,
			"updated_at":            now,
		}).
		Error
	if err != nil {
		return fmt.Errorf("failed to update last login, %w", err)
	}

	u.LastLogin = &now
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	u.UpdatedAt = now

	return nil
}

// IncrementFailedAttempts bumps the counter in a single statement so
// concurrent failures can't lose updates. Reaching the threshold locks the
// account for LockDuration. u is refreshed with the stored values.
func (s *CredentialStore) IncrementFailedAttempts(ctx context.Context, u *model.User) error {
	now := s.now()
	lockUntil := now.Add(s.opts.LockDuration)

	err := s.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", u.ID).
		Updates(map[string]any{
			"failed_login_attempts": gorm.Expr("failed_login_attempts + 1"),
			"locked_until": gorm.Expr("CASE WHEN failed_login_attempts + 1 >= ? THEN ? ELSE locked_until END",
				s.opts.MaxFailedAttempts, lockUntil),
			"updated_at": now,
		}).
		Error
	if err != nil {
		return fmt.Errorf("failed to increment failed attempts, %w", err)
	}

	var counters struct {
		FailedLoginAttempts int
		LockedUntil         *time.Time
	}

	err = s.db.WithContext(ctx).
		Model(&model.User{}).
		Select("failed_login_attempts", "locked_until").
		Where("id = ?", u.ID).
		Take(&counters).
		Error
	if err != nil {
		return fmt.Errorf("failed to read failed attempts, %w", err)
	}

	u.FailedLoginAttempts = counters.FailedLoginAttempts
	u.LockedUntil = counters.LockedUntil
	u.UpdatedAt = now

	if u.IsLocked(now) {
		zap.L().Warn("Account locked after repeated failed logins",
			zap.String("userID", u.ID),
			zap.Int("attempts", u.FailedLoginAttempts),
			zap.Time("lockedUntil", *u.LockedUntil))
	}

	return nil
}

// SetStatus moves u to suspended or deactivated. Activation only happens
// through VerifyEmail.
func (s *CredentialStore) SetStatus(ctx context.Context, u *model.User, status model.Status) error {
	if status != model.StatusSuspended && status != model.StatusDeactivated {
		return fmt.Errorf("status can't be set to %q directly", status)
	}

	now := s.now()

	err := s.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", u.ID).
		Updates(map[string]any{
			"status":     status,
			"updated_at": now,
		}).
		Error
	if err != nil {
		return fmt.Errorf("failed to update status, %w", err)
	}

	u.Status = status
	u.UpdatedAt = now

	return nil
}

// IsLocked reports whether u is locked right now
func (s *CredentialStore) IsLocked(u *model.User) bool {
	return u.IsLocked(s.now())
}

// List returns a page of users ordered by creation time
func (s *CredentialStore) List(ctx context.Context, limit, offset int) ([]model.User, int64, error) {
	var (
		users []model.User
		total int64
	)

	if err := s.db.WithContext(ctx).Model(&model.User{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users, %w", err)
	}

	err := s.db.WithContext(ctx).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&users).
		Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users, %w", err)
	}

	return users, total, nil
}
