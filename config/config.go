// Package config loads the ankibridge CLI configuration from YAML.
package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/anki-bridge/errors"
)

// Engine kinds.
const (
	EngineWasm   = "wasm"
	EngineRemote = "remote"
	EngineTest   = "test"
)

// Config is the on-disk configuration for the ankibridge CLI.
type Config struct {
	Collection Collection `yaml:"collection"`
	Engine     Engine     `yaml:"engine"`
	Log        Log        `yaml:"log"`
	Sync       Sync       `yaml:"sync"`
	Serve      Serve      `yaml:"serve"`
}

// Collection locates the collection and its media. Empty media paths are
// derived from the collection path.
type Collection struct {
	Path        string `yaml:"path"`
	MediaFolder string `yaml:"media_folder,omitempty"`
	MediaDB     string `yaml:"media_db,omitempty"`
}

// Engine selects and configures the engine.
type Engine struct {
	// Kind is "wasm", "remote" or "test".
	Kind string `yaml:"kind"`
	// Module is the engine wasm file for kind wasm.
	Module string `yaml:"module,omitempty"`
	// URL is the websocket endpoint for kind remote.
	URL              string `yaml:"url,omitempty"`
	MemoryLimitPages uint32 `yaml:"memory_limit_pages,omitempty"`
	CacheDir         string `yaml:"cache_dir,omitempty"`
}

// Log configures the zap logger.
type Log struct {
	// Level is "debug|info|warn|error".
	Level       string `yaml:"level"`
	Development bool   `yaml:"development,omitempty"`
}

// Sync holds media sync credentials.
type Sync struct {
	Endpoint string `yaml:"endpoint,omitempty"`
	HKey     string `yaml:"hkey,omitempty"`
}

// Serve configures the serve subcommand.
type Serve struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Engine: Engine{Kind: EngineTest},
		Log:    Log{Level: "info"},
		Serve:  Serve{Addr: "127.0.0.1:9017", Path: "/engine"},
	}
}

// DefaultPath returns the default config file path: ~/.ankibridge/config.yaml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return filepath.Join(".", ".ankibridge", "config.yaml")
	}
	return filepath.Join(home, ".ankibridge", "config.yaml")
}

// Load reads the YAML file at path over Default and validates the result.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "read "+path)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data into cfg and validates the result. Unknown keys are
// rejected.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !stderrors.Is(err, io.EOF) {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "parse yaml")
	}
	return cfg.Validate()
}

// Validate checks field combinations and fills derived media paths.
func (c *Config) Validate() error {
	switch c.Engine.Kind {
	case EngineWasm:
		if strings.TrimSpace(c.Engine.Module) == "" {
			return invalid("engine.module is required for the wasm engine")
		}
	case EngineRemote:
		if strings.TrimSpace(c.Engine.URL) == "" {
			return invalid("engine.url is required for the remote engine")
		}
	case EngineTest:
	default:
		return invalid(fmt.Sprintf("engine.kind %q: must be one of wasm, remote, test", c.Engine.Kind))
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return invalid(fmt.Sprintf("log.level %q: %v", c.Log.Level, err))
	}

	if p := c.Collection.Path; p != "" {
		base := strings.TrimSuffix(p, filepath.Ext(p))
		if c.Collection.MediaFolder == "" {
			c.Collection.MediaFolder = base + ".media"
		}
		if c.Collection.MediaDB == "" {
			c.Collection.MediaDB = base + ".media.db2"
		}
	}
	return nil
}

// NewLogger builds the logger described by Log. Verbose forces debug level.
func (l Log) NewLogger(verbose bool) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, invalid(fmt.Sprintf("log.level %q: %v", l.Level, err))
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

func invalid(detail string) *errors.Error {
	return errors.InvalidInput(errors.PhaseConfig, detail)
}
