package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, "termbase.db", cfg.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel())
}

func TestParse_OverridesDefaults(t *testing.T) {
	cfg, err := Parse("termbase.cue", []byte(`
backend: "badger"
path:    "/var/lib/termbase"
log: level: "debug"
`))
	require.NoError(t, err)
	assert.Equal(t, BackendBadger, cfg.Backend)
	assert.Equal(t, "/var/lib/termbase", cfg.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format, "unset fields keep their default")
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel())
}

func TestParse_RejectsUnknownBackend(t *testing.T) {
	_, err := Parse("termbase.cue", []byte(`backend: "postgres"`))
	require.Error(t, err)
	var le *LoadError
	require.ErrorAs(t, err, &le)
}

func TestParse_RejectsUnknownField(t *testing.T) {
	_, err := Parse("termbase.cue", []byte(`color: "blue"`))
	assert.Error(t, err, "#Config is closed")
}

func TestParse_SyntaxError(t *testing.T) {
	_, err := Parse("termbase.cue", []byte(`backend: `))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("missing file", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.cue"))
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "termbase.cue")
		require.NoError(t, os.WriteFile(path, []byte(`backend: "memory"`), 0o644))
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, BackendMemory, cfg.Backend)
	})
}
