package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"helpinghands/api/internal/model"
	"helpinghands/api/pkg/security"
	"helpinghands/api/pkg/util"

	"gorm.io/gorm"
)

type RefreshTokenStore struct {
	db  *gorm.DB
	Now func() time.Time
}

func NewRefreshTokenStore(db *gorm.DB) *RefreshTokenStore {
	return &RefreshTokenStore{db: db, Now: time.Now}
}

func (s *RefreshTokenStore) now() time.Time {
	return s.Now().UTC()
}

// Create persists a new refresh token for userID that lives for ttl
// ("7d", "12h", "30m", ...). The returned record carries the plaintext in
// Token, only its digest is stored.
func (s *RefreshTokenStore) Create(ctx context.Context, userID string, ttl string) (*model.RefreshToken, error) {
	rt, token, err := s.mint(userID, ttl)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Create(rt).Error; err != nil {
		return nil, fmt.Errorf("failed to store refresh token, %w", err)
	}

	rt.Token = token
	return rt, nil
}

func (s *RefreshTokenStore) mint(userID string, ttl string) (*model.RefreshToken, string, error) {
	d, err := util.ParseDuration(ttl)
	if err != nil {
		return nil, "", err
	}

	token, err := security.GenerateToken(security.RefreshTokenSize)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate refresh token, %w", err)
	}

	now := s.now()
	rt := &model.RefreshToken{
		UserID:    userID,
		TokenHash: security.HashToken(token),
		ExpiresAt: now.Add(d),
		CreatedAt: now,
	}

	return rt, token, nil
}

// FindByToken returns the token joined with its owner. Expired tokens are
// reported as ErrNotFound even while the row still exists.
func (s *RefreshTokenStore) FindByToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	now := s.now()

	var rt model.RefreshToken
	err := s.db.WithContext(ctx).
		Joins("User").
		Where("refresh_tokens.token_hash = ? AND refresh_tokens.expires_at > ?", security.HashToken(token), now).
		First(&rt).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, err
	}

	if rt.IsExpired(now) {
		return nil, ErrNotFound
	}

	return &rt, nil
}

// DeleteByToken is idempotent, unknown tokens are not an error
func (s *RefreshTokenStore) DeleteByToken(ctx context.Context, token string) error {
	return s.db.WithContext(ctx).
		Where("token_hash = ?", security.HashToken(token)).
		Delete(&model.RefreshToken{}).
		Error
}

// Rotate deletes token and stores its replacement for userID in one
// transaction. ErrNotFound means another call already consumed token, two
// concurrent rotations of the same token can't both win. If the insert
// fails the delete is rolled back and token stays usable.
func (s *RefreshTokenStore) Rotate(ctx context.Context, token string, userID string, ttl string) (*model.RefreshToken, error) {
	rt, next, err := s.mint(userID, ttl)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := tx.Where("token_hash = ?", security.HashToken(token)).
			Delete(&model.RefreshToken{})
		if r.Error != nil {
			return r.Error
		}

		if r.RowsAffected != 1 {
			return ErrNotFound
		}

		if err := tx.Create(rt).Error; err != nil {
			return fmt.Errorf("failed to store refresh token, %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	rt.Token = next
	return rt, nil
}

// DeleteAllForUser revokes every session of userID
func (s *RefreshTokenStore) DeleteAllForUser(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&model.RefreshToken{}).
		Error
}

// DeleteExpired removes rows that lookups already ignore and returns how
// many were deleted
func (s *RefreshTokenStore) DeleteExpired(ctx context.Context) (int64, error) {
	r := s.db.WithContext(ctx).
		Where("expires_at <= ?", s.now()).
		Delete(&model.RefreshToken{})

	return r.RowsAffected, r.Error
}

// CountForUser returns how many unexpired sessions userID holds
func (s *RefreshTokenStore) CountForUser(ctx context.Context, userID string) (int64, error) {
	var n int64

	err := s.db.WithContext(ctx).
		Model(&model.RefreshToken{}).
		Where("user_id = ? AND expires_at > ?", userID, s.now()).
		Count(&n).
		Error

	return n, err
}
