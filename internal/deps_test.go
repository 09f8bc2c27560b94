package internal

import (
	"testing"

	"helpinghands/api/config"
	"helpinghands/api/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDepsRefusesLogMailerInProduction(t *testing.T) {
	conn, err := db.NewInMemory()
	require.NoError(t, err)

	d, err := NewDeps(&config.Config{Env: "production", FrontendURL: "https://app"}, conn)
	assert.Error(t, err)
	assert.Nil(t, d)
}
