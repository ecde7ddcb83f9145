// Package config loads termbase settings from an optional CUE file.
//
// The file is unified with an embedded #Config schema, so every field is
// optional, defaults come from the schema, and a value outside the
// allowed set is rejected with its CUE position.
//
//	backend: "badger"
//	path:    "/var/lib/termbase"
//	log: level: "debug"
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaSource string

// Backends.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Config is the decoded configuration.
type Config struct {
	Backend string `json:"backend"`
	Path    string `json:"path"`
	Log     Log    `json:"log"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// LoadError reports an invalid configuration file.
type LoadError struct {
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// Default returns the schema defaults.
func Default() Config {
	cfg, err := decode(cuecontext.New(), "", nil)
	if err != nil {
		// The embedded schema is fixed; failing here is a build defect.
		panic(fmt.Sprintf("config: embedded schema: %v", err))
	}
	return cfg
}

// Load reads path and returns the resulting configuration. An empty path
// or a missing file yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, data)
}

// Parse unifies data with the schema and decodes the result. filename is
// used in error positions.
func Parse(filename string, data []byte) (Config, error) {
	return decode(cuecontext.New(), filename, data)
}

func decode(ctx *cue.Context, filename string, data []byte) (Config, error) {
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, loadError(err)
	}
	v := schema.LookupPath(cue.ParsePath("#Config"))

	if data != nil {
		user := ctx.CompileBytes(data, cue.Filename(filename))
		if err := user.Err(); err != nil {
			return Config{}, loadError(err)
		}
		v = v.Unify(user)
	}
	if err := v.Validate(); err != nil {
		return Config{}, loadError(err)
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return Config{}, loadError(err)
	}
	return cfg, nil
}

func loadError(err error) error {
	le := &LoadError{Message: err.Error()}
	var cerr cueerrors.Error
	if errors.As(err, &cerr) {
		le.Pos = cerr.Position()
		le.Message = cerr.Error()
	}
	return le
}

// LogLevel maps Log.Level onto a slog level.
func (c Config) LogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
