// Package config loads geckode settings.
//
// Sources, lowest priority first: defaults, ~/.geckode/config.yaml,
// ./.geckode/config.yaml (or one explicit file), GECKODE_* environment
// variables. Command-line flags are applied by the CLI on top.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full configuration.
type Config struct {
	Relay  RelayConfig  `yaml:"relay"`
	Client ClientConfig `yaml:"client"`

	// UndoDepth bounds each undo stack.
	UndoDepth int    `yaml:"undo_depth" validate:"min=1,max=100000"`
	LogLevel  string `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// RelayConfig configures `geckode relay`.
type RelayConfig struct {
	Addr   string `yaml:"addr" validate:"required,hostname_port"`
	DBPath string `yaml:"db_path" validate:"required"`
	// Secret signs channel tokens. Empty runs an open relay that admits
	// every connection as an editor.
	Secret       string        `yaml:"secret" validate:"omitempty,min=16"`
	ReadLimit    int64         `yaml:"read_limit" validate:"min=1024"`
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gt=0"`
}

// ClientConfig configures channel connections.
type ClientConfig struct {
	RelayURL       string        `yaml:"relay_url" validate:"omitempty,url"`
	Actor          string        `yaml:"actor"`
	Token          string        `yaml:"token"`
	BackoffInitial time.Duration `yaml:"backoff_initial" validate:"gt=0"`
	BackoffMax     time.Duration `yaml:"backoff_max" validate:"gtefield=BackoffInitial"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Relay: RelayConfig{
			Addr:         "127.0.0.1:8787",
			DBPath:       "geckode.db",
			ReadLimit:    16 << 20,
			WriteTimeout: 5 * time.Second,
		},
		Client: ClientConfig{
			RelayURL:       "http://127.0.0.1:8787",
			BackoffInitial: 250 * time.Millisecond,
			BackoffMax:     30 * time.Second,
		},
		UndoDepth: 200,
		LogLevel:  "info",
	}
}

func globalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".geckode", "config.yaml")
	}
	return filepath.Join(home, ".geckode", "config.yaml")
}

func projectPath() string {
	return filepath.Join(".geckode", "config.yaml")
}

// Load builds the configuration. With explicit set, that file replaces the
// global and project files and must exist.
func Load(explicit string) (*Config, error) {
	cfg := Default()
	if explicit != "" {
		if err := mergeFile(cfg, explicit, true); err != nil {
			return nil, err
		}
	} else {
		for _, p := range []string{globalPath(), projectPath()} {
			if err := mergeFile(cfg, p, false); err != nil {
				return nil, err
			}
		}
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("GECKODE_RELAY_ADDR", &cfg.Relay.Addr)
	str("GECKODE_RELAY_DB", &cfg.Relay.DBPath)
	str("GECKODE_RELAY_SECRET", &cfg.Relay.Secret)
	str("GECKODE_RELAY_URL", &cfg.Client.RelayURL)
	str("GECKODE_ACTOR", &cfg.Client.Actor)
	str("GECKODE_TOKEN", &cfg.Client.Token)
	str("GECKODE_LOG_LEVEL", &cfg.LogLevel)
	if v, ok := lookup("GECKODE_UNDO_DEPTH"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GECKODE_UNDO_DEPTH: %w", err)
		}
		cfg.UndoDepth = n
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidationError lists every invalid setting.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

// Validate checks every setting.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		// Namespace is Config.relay.addr; drop the root.
		_, path, _ := strings.Cut(fe.Namespace(), ".")
		problem := fmt.Sprintf("%s failed %s", path, fe.Tag())
		if fe.Param() != "" {
			problem += "=" + fe.Param()
		}
		out.Problems = append(out.Problems, problem)
	}
	return out
}

// Logger returns a text logger at the configured level.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
