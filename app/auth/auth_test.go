package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"helpinghands/api/app"
	"helpinghands/api/config"
	"helpinghands/api/db"
	"helpinghands/api/internal"
	"helpinghands/api/internal/model"
	"helpinghands/api/internal/service"
	"helpinghands/api/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	email    = "a@x.com"
	password = "Str0ng!Pass"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mailSink struct {
	mu   sync.Mutex
	sent []*service.Mail
}

func (m *mailSink) Enqueue(mail *service.Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = append(m.sent, mail)
	return nil
}

func (m *mailSink) token(kind service.MailKind, to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Kind == kind && m.sent[i].To == to {
			return m.sent[i].Token
		}
	}

	return ""
}

type server struct {
	router *gin.Engine
	deps   *internal.Deps
	mail   *mailSink
}

func testConfig() *config.Config {
	return &config.Config{
		Env:             "test",
		LogLevel:        "error",
		CORS:            []string{"http://localhost:3000"},
		JWTSecret:       "0123456789abcdef0123456789abcdef",
		JWTIssuer:       "helping-hands",
		JWTAudience:     "helping-hands-users",
		AccessTTL:       "15m",
		RefreshTTL:      "7d",
		HashAlgorithm:   "bcrypt",
		BcryptCost:      bcrypt.MinCost,
		MaxFailedLogins: 5,
		LockDuration:    15 * time.Minute,
		FrontendURL:     "http://localhost:3000",
		CleanupInterval: time.Hour,
	}
}

func newServer(t *testing.T, tweak ...func(*config.Config)) *server {
	t.Helper()

	cfg := testConfig()
	for _, fn := range tweak {
		fn(cfg)
	}

	conn, err := db.NewInMemory()
	require.NoError(t, err)

	d, err := internal.NewDeps(cfg, conn)
	require.NoError(t, err)

	// Deliver mail synchronously so tests can read the tokens
	sink := &mailSink{}
	d.Auth = service.NewAuthService(d.Users, d.Tokens, d.Issuer, sink)
	d.AuthMW = middleware.NewAuth(d.Issuer, d.Auth)

	router, err := app.NewRouter(d)
	require.NoError(t, err)

	return &server{router: router, deps: d, mail: sink}
}

type request struct {
	method  string
	path    string
	body    any
	cookies []*http.Cookie
	bearer  string
}

func (s *server) do(t *testing.T, r request) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if r.body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(r.body))
	}

	req := httptest.NewRequest(r.method, r.path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range r.cookies {
		req.AddCookie(c)
	}
	if r.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+r.bearer)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *server) post(t *testing.T, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	return s.do(t, request{method: http.MethodPost, path: path, body: body, cookies: cookies})
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func cookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}

	return nil
}

func registerBody(addr string) gin.H {
	return gin.H{
		"email":           addr,
		"password":        password,
		"confirmPassword": password,
		"role":            "sponsor",
		"acceptTerms":     true,
	}
}

// verified registers addr over HTTP and verifies it with the mailed token
func (s *server) verified(t *testing.T, addr string) {
	t.Helper()

	w := s.post(t, "/api/auth/register", registerBody(addr))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.post(t, "/api/auth/verify-email", gin.H{"token": s.mail.token(service.MailVerification, addr)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func (s *server) login(t *testing.T, addr string) *httptest.ResponseRecorder {
	t.Helper()

	w := s.post(t, "/api/auth/login", gin.H{"email": addr, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return w
}

func TestRegisterVerifyLogin(t *testing.T) {
	s := newServer(t)

	w := s.post(t, "/api/auth/register", registerBody(email))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decode(t, w)
	user := body["user"].(map[string]any)
	assert.Equal(t, email, user["email"])
	assert.Equal(t, "pending", user["status"])
	assert.Equal(t, false, user["emailVerified"])
	assert.NotContains(t, user, "passwordHash")

	w = s.post(t, "/api/auth/login", gin.H{"email": email, "password": password})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "EMAIL_NOT_VERIFIED", decode(t, w)["code"])

	w = s.post(t, "/api/auth/verify-email", gin.H{"token": s.mail.token(service.MailVerification, email)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, countKind(s.mail, service.MailWelcome))

	w = s.post(t, "/api/auth/login", gin.H{"email": email, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body = decode(t, w)
	assert.NotEmpty(t, body["accessToken"])
	assert.Equal(t, "15m", body["expiresIn"])
	assert.Len(t, w.Result().Header.Values("Set-Cookie"), 2)

	access := cookie(w, middleware.AccessTokenCookie)
	require.NotNil(t, access)
	assert.True(t, access.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, access.SameSite)
	assert.Equal(t, "/", access.Path)
	assert.Equal(t, 15*60, access.MaxAge)
	assert.False(t, access.Secure)

	refresh := cookie(w, middleware.RefreshTokenCookie)
	require.NotNil(t, refresh)
	assert.Equal(t, 7*24*60*60, refresh.MaxAge)
}

func countKind(m *mailSink, kind service.MailKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, mail := range m.sent {
		if mail.Kind == kind {
			n++
		}
	}

	return n
}

func TestRegisterValidation(t *testing.T) {
	s := newServer(t)

	tests := []struct {
		name  string
		body  gin.H
		field string
	}{
		{"weak password", gin.H{"password": "weakpass", "confirmPassword": "weakpass"}, "password"},
		{"mismatch", gin.H{"confirmPassword": "Str0ng!Pas"}, "confirmPassword"},
		{"admin role", gin.H{"role": "admin"}, "role"},
		{"terms", gin.H{"acceptTerms": false}, "acceptTerms"},
		{"email", gin.H{"email": "not-an-email"}, "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := registerBody("v@x.com")
			for k, v := range tt.body {
				body[k] = v
			}

			w := s.post(t, "/api/auth/register", body)
			require.Equal(t, http.StatusBadRequest, w.Code)

			res := decode(t, w)
			assert.Equal(t, "VALIDATION_ERROR", res["code"])

			var fields []string
			for _, d := range res["details"].([]any) {
				fields = append(fields, d.(map[string]any)["field"].(string))
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	s := newServer(t)

	require.Equal(t, http.StatusCreated, s.post(t, "/api/auth/register", registerBody(email)).Code)

	w := s.post(t, "/api/auth/register", registerBody("A@X.com"))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "EMAIL_EXISTS", decode(t, w)["code"])

	var count int64
	require.NoError(t, s.deps.DB.Model(&model.User{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestLoginLockout(t *testing.T) {
	s := newServer(t)
	s.verified(t, email)

	for i := 0; i < 5; i++ {
		w := s.post(t, "/api/auth/login", gin.H{"email": email, "password": "Wr0ng!Pass"})
		require.Equal(t, http.StatusUnauthorized, w.Code, i)
		assert.Equal(t, "INVALID_CREDENTIALS", decode(t, w)["code"])
	}

	w := s.post(t, "/api/auth/login", gin.H{"email": email, "password": password})
	require.Equal(t, http.StatusLocked, w.Code)

	body := decode(t, w)
	assert.Equal(t, "ACCOUNT_LOCKED", body["code"])
	assert.NotEmpty(t, body["lockedUntil"])
}

func TestLoginUnknownEmail(t *testing.T) {
	s := newServer(t)
	s.verified(t, email)

	unknown := s.post(t, "/api/auth/login", gin.H{"email": "nobody@x.com", "password": password})
	wrong := s.post(t, "/api/auth/login", gin.H{"email": email, "password": "Wr0ng!Pass"})

	assert.Equal(t, wrong.Code, unknown.Code)

	a, b := decode(t, unknown), decode(t, wrong)
	assert.Equal(t, a["code"], b["code"])
	assert.Equal(t, a["error"], b["error"])
}

func TestRequestPasswordResetIsUniform(t *testing.T) {
	s := newServer(t)
	s.verified(t, email)

	known := s.post(t, "/api/auth/request-password-reset", gin.H{"email": email})
	unknown := s.post(t, "/api/auth/request-password-reset", gin.H{"email": "nobody@x.com"})

	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, http.StatusOK, unknown.Code)
	assert.JSONEq(t, known.Body.String(), unknown.Body.String())

	assert.NotEmpty(t, s.mail.token(service.MailPasswordReset, email))
	assert.Empty(t, s.mail.token(service.MailPasswordReset, "nobody@x.com"))
}

func TestResetPasswordRevokesSessions(t *testing.T) {
	s := newServer(t)
	s.verified(t, email)

	old := cookie(s.login(t, email), middleware.RefreshTokenCookie)

	s.post(t, "/api/auth/request-password-reset", gin.H{"email": email})
	resetToken := s.mail.token(service.MailPasswordReset, email)

	const newPassword = "N3w!Passw0rd"
	w := s.post(t, "/api/auth/reset-password", gin.H{
		"token":           resetToken,
		"password":        newPassword,
		"confirmPassword": newPassword,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.post(t, "/api/auth/refresh", nil, old)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_REFRESH_TOKEN", decode(t, w)["code"])

	// The token is single use
	w = s.post(t, "/api/auth/reset-password", gin.H{
		"token":           resetToken,
		"password":        newPassword,
		"confirmPassword": newPassword,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_RESET_TOKEN", decode(t, w)["code"])

	w = s.post(t, "/api/auth/login", gin.H{"email": email, "password": newPassword})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestVerifyEmailBadToken(t *testing.T) {
	s := newServer(t)

	w := s.post(t, "/api/auth/verify-email", gin.H{"token": "short"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, w)["code"])

	w = s.post(t, "/api/auth/verify-email", gin.H{"token": "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_VERIFICATION_TOKEN", decode(t, w)["code"])
}

func TestRefreshRotation(t *testing.T) {
	s := newServer(t)
	s.verified(t, email)

	first := cookie(s.login(t, email), middleware.RefreshTokenCookie)

	w := s.post(t, "/api/auth/refresh", nil, first)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, decode(t, w)["accessToken"])

	second := cookie(w, middleware.RefreshTokenCookie)
	require.NotNil(t, second)
	assert.NotEqual(t, first.Value, second.Value)

	// Replaying the consumed token fails and clears the cookies
	w = s.post(t, "/api/auth/refresh", nil, first)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_REFRESH_TOKEN", decode(t, w)["code"])

	cleared := cookie(w, middleware.RefreshTokenCookie)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	// The body works too
	w = s.post(t, "/api/auth/refresh", gin.H{"refreshToken": second.Value})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRefreshWithoutToken(t *testing.T) {
	s := newServer(t)

	w := s.post(t, "/api/auth/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "NO_REFRESH_TOKEN", decode(t, w)["code"])
}

func TestProfileAndCheck(t *testing.T) {
	s := newServer(t)
	s.verified(t, email)

	w := s.do(t, request{method: http.MethodGet, path: "/api/auth/profile"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "NO_TOKEN", decode(t, w)["code"])

	login := s.login(t, email)
	s.login(t, email)

	w = s.do(t, request{method: http.MethodGet, path: "/api/auth/profile", cookies: []*http.Cookie{cookie(login, middleware.AccessTokenCookie)}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.EqualValues(t, 2, body["activeSessions"])
	assert.Equal(t, email, body["user"].(map[string]any)["email"])

	w = s.do(t, request{method: http.MethodGet, path: "/api/auth/check", bearer: decode(t, login)["accessToken"].(string)})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["authenticated"])

	w = s.do(t, request{method: http.MethodGet, path: "/api/auth/check", bearer: "not.a.jwt"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_TOKEN", decode(t, w)["code"])
}

func TestLogout(t *testing.T) {
	s := newServer(t)
	s.verified(t, email)

	login := s.login(t, email)
	access := cookie(login, middleware.AccessTokenCookie)
	refresh := cookie(login, middleware.RefreshTokenCookie)

	w := s.post(t, "/api/auth/logout", nil, access, refresh)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Logout successful", decode(t, w)["message"])
	assert.Empty(t, cookie(w, middleware.AccessTokenCookie).Value)

	w = s.post(t, "/api/auth/refresh", nil, refresh)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// A second logout with the same token still succeeds
	w = s.post(t, "/api/auth/logout", nil, access, refresh)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogoutAll(t *testing.T) {
	s := newServer(t)
	s.verified(t, email)

	phone := s.login(t, email)
	laptop := s.login(t, email)

	w := s.post(t, "/api/auth/logout-all", nil, cookie(phone, middleware.AccessTokenCookie))
	require.Equal(t, http.StatusOK, w.Code)

	for _, login := range []*httptest.ResponseRecorder{phone, laptop} {
		w = s.post(t, "/api/auth/refresh", nil, cookie(login, middleware.RefreshTokenCookie))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
}

func TestChangePassword(t *testing.T) {
	s := newServer(t)
	s.verified(t, email)

	login := s.login(t, email)
	access := cookie(login, middleware.AccessTokenCookie)

	w := s.post(t, "/api/auth/change-password", gin.H{
		"currentPassword": "Wr0ng!Pass",
		"newPassword":     "N3w!Passw0rd",
		"confirmPassword": "N3w!Passw0rd",
	}, access)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_CURRENT_PASSWORD", decode(t, w)["code"])

	w = s.post(t, "/api/auth/change-password", gin.H{
		"currentPassword": password,
		"newPassword":     "N3w!Passw0rd",
		"confirmPassword": "N3w!Passw0rd",
	}, access)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.post(t, "/api/auth/refresh", nil, cookie(login, middleware.RefreshTokenCookie))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.post(t, "/api/auth/login", gin.H{"email": email, "password": password})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestResendVerification(t *testing.T) {
	s := newServer(t)
	s.verified(t, email)

	const generic = "If an account with that email exists and is unverified, a new verification email has been sent."

	w := s.post(t, "/api/auth/resend-verification", gin.H{"email": email})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, generic, decode(t, w)["message"])

	w = s.post(t, "/api/auth/resend-verification", gin.H{"email": "nobody@x.com"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, generic, decode(t, w)["message"])

	access := cookie(s.login(t, email), middleware.AccessTokenCookie)
	w = s.post(t, "/api/auth/resend-verification", gin.H{"email": email}, access)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "ALREADY_VERIFIED", decode(t, w)["code"])

	require.Equal(t, http.StatusCreated, s.post(t, "/api/auth/register", registerBody("b@x.com")).Code)
	first := s.mail.token(service.MailVerification, "b@x.com")

	w = s.post(t, "/api/auth/resend-verification", gin.H{"email": "b@x.com"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEqual(t, first, s.mail.token(service.MailVerification, "b@x.com"))
}

func TestListUsersRequiresAdmin(t *testing.T) {
	s := newServer(t)
	s.verified(t, email)

	ctx := context.Background()
	admin, _, err := s.deps.Users.Create(ctx, "admin@x.com", password, model.RoleAdmin)
	require.NoError(t, err)
	require.NoError(t, s.deps.Users.VerifyEmail(ctx, admin))

	sponsor := cookie(s.login(t, email), middleware.AccessTokenCookie)
	w := s.do(t, request{method: http.MethodGet, path: "/api/auth/users", cookies: []*http.Cookie{sponsor}})
	require.Equal(t, http.StatusForbidden, w.Code)

	body := decode(t, w)
	assert.Equal(t, "INSUFFICIENT_PERMISSIONS", body["code"])
	assert.Equal(t, "sponsor", body["current"])

	adminCookie := cookie(s.login(t, "admin@x.com"), middleware.AccessTokenCookie)
	w = s.do(t, request{method: http.MethodGet, path: "/api/auth/users?page=1&limit=1", cookies: []*http.Cookie{adminCookie}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body = decode(t, w)
	assert.EqualValues(t, 2, body["total"])
	assert.Len(t, body["users"], 1)
}

func TestStrictRateLimit(t *testing.T) {
	s := newServer(t, func(c *config.Config) {
		c.RateLimitEnabled = true
		c.AuthLimit = config.RateLimit{Requests: 100, Window: time.Minute}
		c.StrictLimit = config.RateLimit{Requests: 2, Window: time.Minute}
		c.ResetLimit = config.RateLimit{Requests: 100, Window: time.Minute}
	})

	for i := 0; i < 2; i++ {
		w := s.post(t, "/api/auth/login", gin.H{"email": email, "password": password})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w := s.post(t, "/api/auth/login", gin.H{"email": email, "password": password})
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	body := decode(t, w)
	assert.Equal(t, "TOO_MANY_REQUESTS", body["code"])
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, body, "retryAfter")
}

func TestRootEndpoints(t *testing.T) {
	s := newServer(t)
	s.verified(t, email)

	w := s.do(t, request{method: http.MethodGet, path: "/"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["authenticated"])

	token := decode(t, s.login(t, email))["accessToken"].(string)
	w = s.do(t, request{method: http.MethodGet, path: "/", bearer: token})
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, email, body["user"].(map[string]any)["email"])

	w = s.do(t, request{method: http.MethodGet, path: "/health"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])

	w = s.do(t, request{method: http.MethodGet, path: "/api"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Helping Hands API", decode(t, w)["name"])

	w = s.do(t, request{method: http.MethodGet, path: "/nope"})
	require.Equal(t, http.StatusNotFound, w.Code)

	body = decode(t, w)
	assert.Equal(t, "NOT_FOUND", body["code"])
	assert.Equal(t, "/nope", body["url"])
	assert.Equal(t, "GET", body["method"])

	w = s.do(t, request{method: http.MethodGet, path: "/metrics"})
	assert.Equal(t, http.StatusOK, w.Code)
}
