// Package token mints access tokens and rotates refresh tokens. It knows
// nothing about cookies or HTTP, callers decide how tokens travel.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"helpinghands/api/internal/apperr"
	"helpinghands/api/internal/model"
	"helpinghands/api/internal/store"
	"helpinghands/api/pkg/util"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultIssuer     = "helping-hands"
	DefaultAudience   = "helping-hands-users"
	DefaultAccessTTL  = "15m"
	DefaultRefreshTTL = "7d"
)

// Claims is the payload of an access token
type Claims struct {
	UserID string     `json:"userId"`
	Email  string     `json:"email"`
	Role   model.Role `json:"role"`
	jwt.RegisteredClaims
}

// Pair is what a successful login or refresh hands back
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresIn  string // As configured, e.g. "15m"
	RefreshExpiresIn string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
}

// RefreshStore is the subset of the refresh token store the issuer needs
type RefreshStore interface {
	Create(ctx context.Context, userID string, ttl string) (*model.RefreshToken, error)
	FindByToken(ctx context.Context, token string) (*model.RefreshToken, error)
	Rotate(ctx context.Context, token string, userID string, ttl string) (*model.RefreshToken, error)
}

// UserLoader loads the current state of a user
type UserLoader interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

type Opts struct {
	Secret     string
	Issuer     string
	Audience   string
	AccessTTL  string
	RefreshTTL string
	Now        func() time.Time
}

type Issuer struct {
	secret     []byte
	issuer     string
	audience   string
	accessRaw  string
	refreshRaw string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time

	refresh RefreshStore
	users   UserLoader
}

func NewIssuer(o Opts, refresh RefreshStore, users UserLoader) (*Issuer, error) {
	if o.Secret == "" {
		return nil, errors.New("no jwt secret provided")
	}

	if o.Issuer == "" {
		o.Issuer = DefaultIssuer
	}
	if o.Audience == "" {
		o.Audience = DefaultAudience
	}
	if o.AccessTTL == "" {
		o.AccessTTL = DefaultAccessTTL
	}
	if o.RefreshTTL == "" {
		o.RefreshTTL = DefaultRefreshTTL
	}
	if o.Now == nil {
		o.Now = time.Now
	}

	access, err := util.ParseDuration(o.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("bad access token ttl, %w", err)
	}

	refreshTTL, err := util.ParseDuration(o.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("bad refresh token ttl, %w", err)
	}

	return &Issuer{
		secret:     []byte(o.Secret),
		issuer:     o.Issuer,
		audience:   o.Audience,
		accessRaw:  o.AccessTTL,
		refreshRaw: o.RefreshTTL,
		accessTTL:  access,
		refreshTTL: refreshTTL,
		now:        o.Now,
		refresh:    refresh,
		users:      users,
	}, nil
}

func (i *Issuer) AccessTTL() time.Duration  { return i.accessTTL }
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// SignAccessToken creates a signed access token for u
func (i *Issuer) SignAccessToken(u *model.User) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.accessTTL)

	claims := &Claims{
		UserID: u.ID,
		Email:  u.Email,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token, %w", err)
	}

	return signed, exp, nil
}

// IssueTokenPair signs an access token and persists a new refresh token.
// Existing sessions of the user are left alone.
func (i *Issuer) IssueTokenPair(ctx context.Context, u *model.User) (*Pair, error) {
	access, accessExp, err := i.SignAccessToken(u)
	if err != nil {
		return nil, err
	}

	rt, err := i.refresh.Create(ctx, u.ID, i.refreshRaw)
	if err != nil {
		return nil, err
	}

	return i.pair(access, accessExp, rt), nil
}

func (i *Issuer) pair(access string, accessExp time.Time, rt *model.RefreshToken) *Pair {
	return &Pair{
		AccessToken:      access,
		RefreshToken:     rt.Token,
		AccessExpiresIn:  i.accessRaw,
		RefreshExpiresIn: i.refreshRaw,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: rt.ExpiresAt,
		AccessTTL:        i.accessTTL,
		RefreshTTL:       i.refreshTTL,
	}
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// swapped for its replacement in one store call, so each token works
// exactly once and a failed swap leaves it usable.
func (i *Issuer) Refresh(ctx context.Context, refreshToken string) (*Pair, *model.User, error) {
	rt, err := i.refresh.FindByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, apperr.ErrInvalidOrExpiredRefresh
		}

		return nil, nil, err
	}

	if rt.IsExpired(i.now()) {
		return nil, nil, apperr.ErrInvalidOrExpiredRefresh
	}

	u, err := i.users.FindByID(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, apperr.ErrUserInactive
		}

		return nil, nil, err
	}

	if !u.IsActive() {
		return nil, nil, apperr.ErrUserInactive
	}

	access, accessExp, err := i.SignAccessToken(u)
	if err != nil {
		return nil, nil, err
	}

	next, err := i.refresh.Rotate(ctx, refreshToken, u.ID, i.refreshRaw)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, apperr.ErrInvalidOrExpiredRefresh
		}

		return nil, nil, fmt.Errorf("failed to rotate refresh token, %w", err)
	}

	return i.pair(access, accessExp, next), u, nil
}

// ParseAccessToken checks signature, expiry, issuer and audience
func (i *Issuer) ParseAccessToken(raw string) (*Claims, error) {
	claims := &Claims{}

	t, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Wrap(apperr.ErrTokenExpired, err)
		}

		return nil, apperr.Wrap(apperr.ErrInvalidToken, err)
	}

	if !t.Valid || claims.UserID == "" {
		return nil, apperr.ErrInvalidToken
	}

	return claims, nil
}
