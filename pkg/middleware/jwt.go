package middleware

import (
	"context"
	"slices"
	"strings"

	"helpinghands/api/internal/apperr"
	"helpinghands/api/internal/model"
	"helpinghands/api/internal/token"

	"github.com/gin-gonic/gin"
)

const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"

	userKey   = "user"
	claimsKey = "claims"
)

type TokenParser interface {
	ParseAccessToken(raw string) (*token.Claims, error)
}

type UserLoader interface {
	LoadUser(ctx context.Context, id string) (*model.User, error)
}

// Auth resolves the user behind an access token. The token is read from the
// accessToken cookie first and from an "Authorization: Bearer" header
// otherwise.
type Auth struct {
	tokens TokenParser
	users  UserLoader
}

func NewAuth(tokens TokenParser, users UserLoader) *Auth {
	return &Auth{tokens: tokens, users: users}
}

func accessToken(c *gin.Context) string {
	if v, err := c.Cookie(AccessTokenCookie); err == nil && v != "" {
		return v
	}

	scheme, raw, ok := strings.Cut(c.GetHeader("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(raw)
	}

	return ""
}

func (a *Auth) resolve(c *gin.Context) (*model.User, *token.Claims, error) {
	raw := accessToken(c)
	if raw == "" {
		return nil, nil, apperr.ErrNoToken
	}

	claims, err := a.tokens.ParseAccessToken(raw)
	if err != nil {
		return nil, nil, err
	}

	u, err := a.users.LoadUser(c.Request.Context(), claims.UserID)
	if err != nil {
		return nil, nil, err
	}

	if !u.IsActive() {
		return nil, nil, apperr.ErrAccountInactive
	}

	if !u.EmailVerified {
		return nil, nil, apperr.ErrEmailNotVerified
	}

	return u, claims, nil
}

// Required rejects the request unless it carries a valid access token of an
// active, verified user
func (a *Auth) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, claims, err := a.resolve(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		setUser(c, u, claims)
		c.Next()
	}
}

// Optional resolves the user when it can and carries on anonymously when it
// can't
func (a *Auth) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, claims, err := a.resolve(c)
		if err == nil {
			setUser(c, u, claims)
		} else if apperr.KindOf(err) == apperr.KindInternal {
			// Still anonymous, but a broken database shouldn't go unnoticed
			_ = c.Error(err)
		}

		c.Next()
	}
}

func setUser(c *gin.Context, u *model.User, claims *token.Claims) {
	c.Set(userKey, u)
	c.Set(claimsKey, claims)
	c.Set("userID", u.ID)
}

// CurrentUser returns the user resolved by Auth
func CurrentUser(c *gin.Context) (*model.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}

	u, ok := v.(*model.User)
	return u, ok && u != nil
}

// Authorize lets the request through when the resolved user has one of
// roles. No roles means any authenticated user. Must run after Required.
func Authorize(roles ...model.Role) gin.HandlerFunc {
	required := make([]string, len(roles))
	for i, r := range roles {
		required[i] = string(r)
	}

	return func(c *gin.Context) {
		u, ok := CurrentUser(c)
		if !ok {
			AbortWithError(c, apperr.ErrNoUser)
			return
		}

		if len(roles) > 0 && !slices.Contains(roles, u.Role) {
			AbortWithError(c, apperr.InsufficientPermissions(required, string(u.Role)))
			return
		}

		c.Next()
	}
}
