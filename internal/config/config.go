// Package config loads application settings layered from defaults, an
// optional yaml file, LEITNERBOX_ environment variables and command
// line flags, in that order of increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const envPrefix = "LEITNERBOX_"

// Session holds the tunables of the session state machine.
type Session struct {
	// TTL is how long an idle session survives before it is replaced.
	TTL time.Duration `koanf:"ttl" validate:"gt=0"`
	// MaxCards caps the size of an auto-built session.
	MaxCards int `koanf:"max_cards" validate:"gt=0"`
	// SecondsPerCard feeds the estimated study time shown to the user.
	SecondsPerCard int `koanf:"seconds_per_card" validate:"gt=0"`
}

// Config is the full application configuration.
type Config struct {
	DB       string  `koanf:"db" validate:"required"`
	Addr     string  `koanf:"addr" validate:"required"`
	ReposDir string  `koanf:"repos_dir" validate:"required"`
	Session  Session `koanf:"session"`
}

// Flags declares every config key as a pflag with its default value.
// The flag set doubles as the defaults layer.
func Flags() *pflag.FlagSet {
	f := pflag.NewFlagSet("leitnerbox", pflag.ExitOnError)
	f.String("config", "", "path to a yaml config file")
	f.String("db", "leitnerbox.db", "path to the sqlite database file")
	f.String("addr", ":8080", "address for the web server to listen on")
	f.String("repos_dir", "repos", "directory for git source checkouts")
	f.Duration("session.ttl", 5*time.Minute, "idle time before a session is replaced")
	f.Int("session.max_cards", 20, "maximum cards per auto-built session")
	f.Int("session.seconds_per_card", 30, "study-time estimate per card")
	return f
}

// Load resolves the configuration from the parsed flag set.
func Load(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path, _ := f.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// LEITNERBOX_SESSION_TTL=10m becomes session.ttl. Only the session
	// section nests; underscores in leaf keys like repos_dir and
	// max_cards must survive the mapping.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		if rest, ok := strings.CutPrefix(key, "session_"); ok {
			return "session." + rest
		}
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, fmt.Errorf("loading flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
