package config

import (
	"testing"
	"time"

	v "github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withDefaults(t *testing.T) {
	t.Helper()

	v.Reset()
	t.Cleanup(v.Reset)

	setDefaults()
	v.Set("jwt.secret", "0123456789abcdef0123456789abcdef")
}

func TestLoadDefaults(t *testing.T) {
	withDefaults(t)

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", c.Env)
	assert.False(t, c.IsProduction())
	assert.Equal(t, 12, c.BcryptCost)
	assert.Equal(t, 5, c.MaxFailedLogins)
	assert.Equal(t, 15*time.Minute, c.LockDuration)
	assert.Equal(t, time.Hour, c.CleanupInterval)
	assert.Equal(t, RateLimit{Requests: 10, Window: 15 * time.Minute}, c.AuthLimit)
	assert.Equal(t, RateLimit{Requests: 5, Window: 15 * time.Minute}, c.StrictLimit)
	assert.Equal(t, RateLimit{Requests: 3, Window: time.Hour}, c.ResetLimit)
	assert.Equal(t, []string{"http://localhost:3000"}, c.CORS)
}

func TestLoadRejects(t *testing.T) {
	cases := map[string]map[string]any{
		"weak bcrypt cost":  {"security.bcrypt_cost": 8},
		"short secret":      {"jwt.secret": "short"},
		"bad env":           {"app.env": "staging"},
		"bad driver":        {"db.driver": "mysql"},
		"postgres w/o dsn":  {"db.driver": "postgres", "db.dsn": ""},
		"bad access ttl":    {"jwt.access_ttl": "forever"},
		"bad hash":          {"security.hash_algorithm": "md5"},
		"ssl without cert":  {"host.ssl.enabled": true},
		"turnstile no key":  {"security.turnstile.enabled": true},
		"mail no sender":    {"mail.host": "smtp.example.com"},
		"bad lock duration": {"security.lock_duration": "-1m"},
		"zero rate limit":   {"security.rate_limit.strict.requests": 0},
		"no cors origin":    {"host.cors": " , "},
		"prod without smtp": {"app.env": "production"},
	}

	for name, overrides := range cases {
		t.Run(name, func(t *testing.T) {
			withDefaults(t)
			for k, val := range overrides {
				v.Set(k, val)
			}

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadProductionWithSMTP(t *testing.T) {
	withDefaults(t)
	v.Set("app.env", "production")
	v.Set("mail.host", "smtp.example.com")
	v.Set("mail.sender_address", "noreply@example.com")

	c, err := Load()
	require.NoError(t, err)
	assert.True(t, c.IsProduction())
	assert.Equal(t, "smtp.example.com", c.MailHost)
}

func TestLoadArgonIgnoresBcryptCost(t *testing.T) {
	withDefaults(t)
	v.Set("security.hash_algorithm", "argon2id")
	v.Set("security.bcrypt_cost", 4)

	_, err := Load()
	assert.NoError(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b ,"))
	assert.Nil(t, splitList(""))
}
