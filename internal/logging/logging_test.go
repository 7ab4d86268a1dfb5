package logging

import (
	"os"
	"path/filepath"
	"promptbank/internal/config"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWritesToDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	closer, err := Setup(config.LoggingConfig{Level: "debug", Format: "json", Directory: dir}, "promptbank")
	require.NoError(t, err)

	log.Debug().Str("operationId", "op-1").Msg("claimed")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, "promptbank.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"operationId":"op-1"`)
	assert.Contains(t, string(data), `"app":"promptbank"`)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestSetupFallsBackToInfo(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	closer, err := Setup(config.LoggingConfig{Level: "loud", Format: "console"}, "promptbank")
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
