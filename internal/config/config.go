// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package config loads and validates Gatehouse configuration from a
// YAML file and command-line flags.
package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Authentication strategy names accepted in configuration.
const (
	AuthModeNone    = "none"
	AuthModeBasic   = "basic"
	AuthModeSession = "session"
)

// Config holds the full service configuration. Flag values override the
// file; both override the defaults.
type Config struct {
	// ListenAddr is the address the HTTP API binds to.
	ListenAddr string `koanf:"listen_addr" json:"listen_addr,omitempty" jsonschema:"default=:8080"`

	// MetricsAddr is the metrics/health HTTP address. Empty disables it.
	MetricsAddr string `koanf:"metrics_addr" json:"metrics_addr,omitempty" jsonschema:"default=127.0.0.1:9100"`

	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string `koanf:"database_url" json:"database_url,omitempty"`

	// AuthMode selects the authentication strategy: none, basic, or session.
	AuthMode string `koanf:"auth_mode" json:"auth_mode,omitempty" jsonschema:"enum=none,enum=basic,enum=session"`

	// SessionCookieName is the cookie carrying the session token. It has
	// no default and must be supplied when AuthMode is "session".
	SessionCookieName string `koanf:"session_cookie_name" json:"session_cookie_name,omitempty"`

	// ExcludedPaths are anchored regex patterns exempt from authentication.
	ExcludedPaths []string `koanf:"excluded_paths" json:"excluded_paths,omitempty"`

	// LogFormat is "json" or "text".
	LogFormat string `koanf:"log_format" json:"log_format,omitempty" jsonschema:"enum=json,enum=text"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		ListenAddr:  ":8080",
		MetricsAddr: "127.0.0.1:9100",
		AuthMode:    AuthModeSession,
		ExcludedPaths: []string{
			// "/$" anchors to the bare root so the landing page stays
			// open without excluding every path under it.
			"/$",
			"/status/",
			"/users/",
			"/sessions/",
			"/reset_password/",
		},
		LogFormat: "json",
	}
}

// Load builds the configuration from defaults, an optional YAML file,
// and the given flag set. The file, when present, is schema-validated
// before it is decoded.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	cfg := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, oops.Code("CONFIG_READ_FAILED").
				With("path", path).
				Wrap(err)
		}
		if err := ValidateYAML(raw); err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_PARSE_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		// Flag names use dashes; config keys use underscores.
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints the schema cannot express.
func (c *Config) Validate() error {
	switch c.AuthMode {
	case AuthModeNone, AuthModeBasic, AuthModeSession:
	default:
		return oops.Code("CONFIG_INVALID").
			With("auth_mode", c.AuthMode).
			Errorf("auth_mode must be one of none, basic, session")
	}

	if c.AuthMode == AuthModeSession && c.SessionCookieName == "" {
		return oops.Code("CONFIG_INVALID").
			Errorf("session_cookie_name is required when auth_mode is session")
	}

	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").
			With("log_format", c.LogFormat).
			Errorf("log_format must be 'json' or 'text'")
	}

	return nil
}
