// Package config contains code to set the default values and read
// config files to be used throughout the whole application
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"helpinghands/api/pkg/util"

	"github.com/spf13/pflag"
	v "github.com/spf13/viper"
)

var (
	configDir = pflag.String("config-dir", ".", "Directory containing config.toml")

	validLogLevels      = []string{"debug", "info", "warn", "error", "fatal"}
	validEnvironments   = []string{"development", "production", "test"}
	validDrivers        = []string{"sqlite", "postgres"}
	validHashAlgorithms = []string{"bcrypt", "argon2id"}
)

const minBcryptCost = 10

type RateLimit struct {
	Requests int
	Window   time.Duration
}

type Config struct {
	Env      string
	LogLevel string

	Port     int
	Domain   string
	CORS     []string
	SSL      bool
	CertPath string
	KeyPath  string

	DBDriver string
	DBDSN    string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	AccessTTL   string
	RefreshTTL  string

	HashAlgorithm   string
	BcryptCost      int
	MaxFailedLogins int
	LockDuration    time.Duration

	RateLimitEnabled bool
	AuthLimit        RateLimit
	StrictLimit      RateLimit
	ResetLimit       RateLimit

	TurnstileEnabled bool
	TurnstileSecret  string

	MailHost     string
	MailPort     int
	MailUsername string
	MailPassword string
	MailFrom     string
	MailWorkers  int
	MailQueue    int

	FrontendURL string

	CleanupInterval time.Duration
	CleanupSchedule string

	RedisAddr string
}

// IsProduction decides cookie security and how much error detail leaks
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func genSecret() string {
	b := make([]byte, 64)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func bindEnvs() {
	for _, k := range []string{
		"app.env", "app.log_level",
		"host.port", "host.domain", "host.cors",
		"host.ssl.enabled", "host.ssl.certificate_path", "host.ssl.certificate_key_path",
		"db.driver", "db.dsn",
		"jwt.secret", "jwt.issuer", "jwt.audience", "jwt.access_ttl", "jwt.refresh_ttl",
		"security.hash_algorithm", "security.bcrypt_cost",
		"security.max_failed_logins", "security.lock_duration",
		"security.rate_limit.enabled",
		"security.rate_limit.auth.requests", "security.rate_limit.auth.window",
		"security.rate_limit.strict.requests", "security.rate_limit.strict.window",
		"security.rate_limit.reset.requests", "security.rate_limit.reset.window",
		"security.turnstile.enabled", "security.turnstile.secret_token",
		"mail.host", "mail.port", "mail.username", "mail.password", "mail.sender_address",
		"mail.workers", "mail.queue_size",
		"frontend.url",
		"cleanup.interval", "cleanup.schedule",
		"cache.redis_addr",
	} {
		v.BindEnv(k, strings.ToUpper(strings.ReplaceAll(k, ".", "_")))
	}
}

func setDefaults() {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("host.port", 5000)
	v.SetDefault("host.domain", "localhost")
	v.SetDefault("host.cors", "http://localhost:3000")
	v.SetDefault("host.ssl.enabled", false)

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "database.db")

	v.SetDefault("jwt.issuer", "helping-hands")
	v.SetDefault("jwt.audience", "helping-hands-users")
	v.SetDefault("jwt.access_ttl", "15m")
	v.SetDefault("jwt.refresh_ttl", "7d")

	v.SetDefault("security.hash_algorithm", "bcrypt")
	v.SetDefault("security.bcrypt_cost", 12)
	v.SetDefault("security.max_failed_logins", 5)
	v.SetDefault("security.lock_duration", "15m")

	v.SetDefault("security.rate_limit.enabled", true)
	v.SetDefault("security.rate_limit.auth.requests", 10)
	v.SetDefault("security.rate_limit.auth.window", "15m")
	v.SetDefault("security.rate_limit.strict.requests", 5)
	v.SetDefault("security.rate_limit.strict.window", "15m")
	v.SetDefault("security.rate_limit.reset.requests", 3)
	v.SetDefault("security.rate_limit.reset.window", "1h")

	v.SetDefault("security.turnstile.enabled", false)

	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.workers", 2)
	v.SetDefault("mail.queue_size", 64)

	v.SetDefault("frontend.url", "http://localhost:3000")

	v.SetDefault("cleanup.interval", "1h")
	v.SetDefault("cleanup.schedule", "@every 6h")
}

// Setup prepares everything config-related so that the app can
// start working. Function will return an error if something
// is critically wrong and the application can't run because of
// that. A missing config.toml is fine, env vars and defaults cover
// everything.
func Setup() error {
	if !pflag.Parsed() {
		pflag.Parse()
	}
	v.BindPFlags(pflag.CommandLine)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(*configDir)

	v.AutomaticEnv()

	bindEnvs()
	setDefaults()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(v.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file, %w", err)
		}
	}

	if v.GetString("jwt.secret") == "" {
		fmt.Println("WARNING: You haven't set a JWT secret, so it has been generated for you. Please set it as an environment variable or in the config.toml file.\nYour random JWT secret:\n\n" + genSecret() + "\n\nPaste it into your config.toml file.")
		os.Exit(0)
	}

	_, err := Load()
	return err
}

// Load reads the current viper state into a Config and validates it
func Load() (*Config, error) {
	c := &Config{
		Env:      v.GetString("app.env"),
		LogLevel: v.GetString("app.log_level"),

		Port:     v.GetInt("host.port"),
		Domain:   v.GetString("host.domain"),
		CORS:     splitList(v.GetString("host.cors")),
		SSL:      v.GetBool("host.ssl.enabled"),
		CertPath: v.GetString("host.ssl.certificate_path"),
		KeyPath:  v.GetString("host.ssl.certificate_key_path"),

		DBDriver: v.GetString("db.driver"),
		DBDSN:    v.GetString("db.dsn"),

		JWTSecret:   v.GetString("jwt.secret"),
		JWTIssuer:   v.GetString("jwt.issuer"),
		JWTAudience: v.GetString("jwt.audience"),
		AccessTTL:   v.GetString("jwt.access_ttl"),
		RefreshTTL:  v.GetString("jwt.refresh_ttl"),

		HashAlgorithm:   v.GetString("security.hash_algorithm"),
		BcryptCost:      v.GetInt("security.bcrypt_cost"),
		MaxFailedLogins: v.GetInt("security.max_failed_logins"),

		RateLimitEnabled: v.GetBool("security.rate_limit.enabled"),

		TurnstileEnabled: v.GetBool("security.turnstile.enabled"),
		TurnstileSecret:  v.GetString("security.turnstile.secret_token"),

		MailHost:     v.GetString("mail.host"),
		MailPort:     v.GetInt("mail.port"),
		MailUsername: v.GetString("mail.username"),
		MailPassword: v.GetString("mail.password"),
		MailFrom:     v.GetString("mail.sender_address"),
		MailWorkers:  v.GetInt("mail.workers"),
		MailQueue:    v.GetInt("mail.queue_size"),

		FrontendURL: v.GetString("frontend.url"),

		CleanupSchedule: v.GetString("cleanup.schedule"),

		RedisAddr: v.GetString("cache.redis_addr"),
	}

	var err error

	if !slices.Contains(validEnvironments, c.Env) {
		return nil, fmt.Errorf("invalid app.env %q", c.Env)
	}

	if !slices.Contains(validLogLevels, c.LogLevel) {
		return nil, errors.New("invalid log level provided")
	}

	if c.Port <= 0 {
		return nil, errors.New("invalid port provided")
	}

	if len(c.CORS) == 0 {
		return nil, errors.New("at least one cors origin is required")
	}

	if c.SSL {
		if c.CertPath == "" {
			return nil, errors.New("no ssl certificate path provided")
		}

		if c.KeyPath == "" {
			return nil, errors.New("no ssl certificate key path provided")
		}
	}

	if !slices.Contains(validDrivers, c.DBDriver) {
		return nil, fmt.Errorf("invalid db.driver %q", c.DBDriver)
	}

	if c.DBDriver == "postgres" && c.DBDSN == "" {
		return nil, errors.New("db.dsn is required for postgres")
	}

	if c.JWTSecret == "" {
		return nil, errors.New("jwt.secret is required")
	}

	if len(c.JWTSecret) < 32 {
		return nil, errors.New("jwt.secret must be at least 32 characters long")
	}

	for _, ttl := range []string{c.AccessTTL, c.RefreshTTL} {
		if _, err := util.ParseDuration(ttl); err != nil {
			return nil, fmt.Errorf("invalid token ttl, %w", err)
		}
	}

	if !slices.Contains(validHashAlgorithms, c.HashAlgorithm) {
		return nil, fmt.Errorf("invalid security.hash_algorithm %q", c.HashAlgorithm)
	}

	if c.HashAlgorithm == "bcrypt" && c.BcryptCost < minBcryptCost {
		return nil, fmt.Errorf("security.bcrypt_cost must be at least %d", minBcryptCost)
	}

	if c.MaxFailedLogins <= 0 {
		return nil, errors.New("security.max_failed_logins must be bigger than 0")
	}

	if c.LockDuration, err = util.ParseDuration(v.GetString("security.lock_duration")); err != nil {
		return nil, fmt.Errorf("invalid security.lock_duration, %w", err)
	}

	if c.RateLimitEnabled {
		for name, dst := range map[string]*RateLimit{
			"auth":   &c.AuthLimit,
			"strict": &c.StrictLimit,
			"reset":  &c.ResetLimit,
		} {
			if *dst, err = readRateLimit(name); err != nil {
				return nil, err
			}
		}
	}

	if c.TurnstileEnabled && c.TurnstileSecret == "" {
		return nil, errors.New("turnstile secret token is missing")
	}

	// Without a host mail is written to the log, links included
	if c.IsProduction() && c.MailHost == "" {
		return nil, errors.New("mail.host is required in production")
	}

	if c.MailHost != "" && c.MailFrom == "" {
		return nil, errors.New("mail.sender_address is required when mail.host is set")
	}

	if c.CleanupInterval, err = util.ParseDuration(v.GetString("cleanup.interval")); err != nil {
		return nil, fmt.Errorf("invalid cleanup.interval, %w", err)
	}

	return c, nil
}

func readRateLimit(name string) (RateLimit, error) {
	prefix := "security.rate_limit." + name

	n := v.GetInt(prefix + ".requests")
	if n <= 0 {
		return RateLimit{}, fmt.Errorf("%s.requests must be bigger than 0", prefix)
	}

	w, err := util.ParseDuration(v.GetString(prefix + ".window"))
	if err != nil {
		return RateLimit{}, fmt.Errorf("invalid %s.window, %w", prefix, err)
	}

	return RateLimit{Requests: n, Window: w}, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}
