package app

import (
	"time"

	"helpinghands/api/app/auth"
	"helpinghands/api/app/root"
	"helpinghands/api/config"
	"helpinghands/api/internal"
	"helpinghands/api/internal/model"
	"helpinghands/api/pkg/middleware"
	"helpinghands/api/validators"

	cache "github.com/chenyahui/gin-cache"
	"github.com/chenyahui/gin-cache/persist"
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const maxBodySize = 10 << 20

// NewRouter mounts every route on a fresh engine. It does not start the
// mail queue or the scheduled cleanup, main owns their lifetime.
func NewRouter(d *internal.Deps) (*gin.Engine, error) {
	cfg := d.Config

	validators.Register()
	middleware.ExposeInternalErrors = !cfg.IsProduction()

	router := gin.New()
	router.RedirectFixedPath = true

	router.Use(
		cors.New(cors.Config{
			AllowOrigins:     cfg.CORS,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "TurnstileToken"},
			ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == "HEAD" || c.Request.URL.Path == "/metrics"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				if v := c.GetString("userID"); v != "" {
					fields = append(fields, zap.String("userID", v))
				}

				return fields
			},
		}),
		ginzap.RecoveryWithZap(zap.L(), !cfg.IsProduction()),
		middleware.BodySizeLimiter(maxBodySize),
		middleware.OpportunisticCleanup(d.Janitor),
	)

	store := newCacheStore(cfg)

	authLimit, strictLimit, resetLimit := rateLimiters(cfg)
	turnstile := middleware.NewTurnstileMiddleware(middleware.TurnstileConfig{
		Enabled: cfg.TurnstileEnabled,
		Secret:  cfg.TurnstileSecret,
	})

	required := d.AuthMW.Required()
	optional := d.AuthMW.Optional()

	// HEAD /heartbeat		-> Used to check if the server is alive
	router.HEAD("/heartbeat", root.Heartbeat)

	// GET /health			-> Reports uptime and database connectivity
	router.GET("/health", func(c *gin.Context) { root.Health(c, d) })

	// GET /metrics			-> Prometheus scrape endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// GET /			-> API info, personalized when signed in
	router.GET("/", optional, root.Index)

	m := router.Group("/api")
	{
		// GET /api			-> Lists the public endpoints
		m.GET("", cache.CacheByRequestURI(store, 5*time.Minute), root.Info)
	}

	a := m.Group("/auth")
	{
		// POST /api/auth/register		-> Creates a pending account and mails a verification link
		a.POST("/register", authLimit, turnstile, func(c *gin.Context) { auth.Register(c, d) })

		// POST /api/auth/login			-> Issues an access/refresh token pair as cookies
		a.POST("/login", strictLimit, func(c *gin.Context) { auth.Login(c, d) })

		// POST /api/auth/refresh		-> Rotates the refresh token
		a.POST("/refresh", authLimit, func(c *gin.Context) { auth.Refresh(c, d) })

		// POST /api/auth/verify-email		-> Consumes a verification token
		a.POST("/verify-email", authLimit, func(c *gin.Context) { auth.VerifyEmail(c, d) })

		// POST /api/auth/resend-verification	-> Mails a fresh verification link
		a.POST("/resend-verification", authLimit, optional, func(c *gin.Context) { auth.ResendVerification(c, d) })

		// POST /api/auth/request-password-reset	-> Mails a password reset link
		a.POST("/request-password-reset", resetLimit, turnstile, func(c *gin.Context) { auth.RequestPasswordReset(c, d) })

		// POST /api/auth/reset-password	-> Consumes a reset token and sets a new password
		a.POST("/reset-password", strictLimit, func(c *gin.Context) { auth.ResetPassword(c, d) })

		// POST /api/auth/logout		-> Revokes the presented refresh token
		a.POST("/logout", required, func(c *gin.Context) { auth.Logout(c, d) })

		// POST /api/auth/logout-all		-> Revokes every refresh token of the user
		a.POST("/logout-all", required, func(c *gin.Context) { auth.LogoutAll(c, d) })

		// POST /api/auth/change-password	-> Changes the password and revokes every session
		a.POST("/change-password", strictLimit, required, func(c *gin.Context) { auth.ChangePassword(c, d) })

		// GET /api/auth/profile		-> Returns the current user and their session count
		a.GET("/profile", required, func(c *gin.Context) { auth.Profile(c, d) })

		// GET /api/auth/check			-> Confirms the access token is still good
		a.GET("/check", required, auth.Check)

		// GET /api/auth/users			-> Lists users, admins only
		a.GET("/users", required, middleware.Authorize(model.RoleAdmin), func(c *gin.Context) { auth.ListUsers(c, d) })
	}

	router.NoRoute(root.NotFound)

	return router, nil
}

// Redis backs the response cache when configured so every instance serves
// the same copy, otherwise each process keeps its own
func newCacheStore(cfg *config.Config) persist.CacheStore {
	if cfg.RedisAddr == "" {
		return persist.NewMemoryStore(time.Minute)
	}

	opts, err := redis.ParseURL(cfg.RedisAddr)
	if err != nil {
		// Plain host:port
		opts = &redis.Options{Addr: cfg.RedisAddr}
	}

	zap.L().Debug("Using redis response cache", zap.String("addr", opts.Addr))

	return persist.NewRedisStore(redis.NewClient(opts))
}

func rateLimiters(cfg *config.Config) (authLimit, strictLimit, resetLimit gin.HandlerFunc) {
	if !cfg.RateLimitEnabled {
		return middleware.Noop(), middleware.Noop(), middleware.Noop()
	}

	authLimit = middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Requests: cfg.AuthLimit.Requests,
		Window:   cfg.AuthLimit.Window,
		Message:  "Too many authentication attempts, please try again later.",
	}).Handler()

	strictLimit = middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Requests: cfg.StrictLimit.Requests,
		Window:   cfg.StrictLimit.Window,
		Message:  "Too many attempts, please try again later.",
	}).Handler()

	resetLimit = middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Requests: cfg.ResetLimit.Requests,
		Window:   cfg.ResetLimit.Window,
		Message:  "Too many password reset attempts, please try again later.",
	}).Handler()

	return authLimit, strictLimit, resetLimit
}
