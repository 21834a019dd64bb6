// Package config reads process settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"bidsmith/internal/llm"
)

const (
	keyStateTable         = "STATE_TABLE"
	keyParamPrefix        = "PARAM_PREFIX"
	keyRoutingMode        = "ROUTING_MODE"
	keyLocalBaseURL       = "LOCAL_BASE_URL"
	keyLocalModel         = "LOCAL_MODEL"
	keyStartingBalance    = "STARTING_BALANCE"
	keyMinSourceChars     = "MIN_SOURCE_CHARS"
	keyConcurrentPrescore = "CONCURRENT_PRESCORE"
	keyLogLevel           = "LOG_LEVEL"
	keyListenAddr         = "LISTEN_ADDR"
	keyIdentityHeader     = "IDENTITY_HEADER"
)

type Config struct {
	StateTable         string
	ParamPrefix        string
	RoutingMode        llm.RoutingMode
	LocalBaseURL       string
	LocalModel         string
	StartingBalance    int
	MinSourceChars     int
	ConcurrentPrescore bool
	LogLevel           slog.Level
	ListenAddr         string
	IdentityHeader     string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyRoutingMode, string(llm.ModeCloud))
	v.SetDefault(keyLocalBaseURL, "http://localhost:11434/v1")
	v.SetDefault(keyLocalModel, "llama3.2:3b")
	v.SetDefault(keyStartingBalance, 5)
	v.SetDefault(keyMinSourceChars, 100)
	v.SetDefault(keyConcurrentPrescore, false)
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyListenAddr, "127.0.0.1:8080")
	v.SetDefault(keyIdentityHeader, "x-caller-id")
}

// Load resolves settings from v, reading the environment when v has no
// explicit value. A nil v uses a fresh instance.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	v.AutomaticEnv()
	setDefaults(v)

	mode, err := llm.ParseRoutingMode(v.GetString(keyRoutingMode))
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(v.GetString(keyLogLevel)))); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", keyLogLevel, err)
	}

	cfg := Config{
		StateTable:         strings.TrimSpace(v.GetString(keyStateTable)),
		ParamPrefix:        strings.TrimRight(strings.TrimSpace(v.GetString(keyParamPrefix)), "/"),
		RoutingMode:        mode,
		LocalBaseURL:       strings.TrimSpace(v.GetString(keyLocalBaseURL)),
		LocalModel:         strings.TrimSpace(v.GetString(keyLocalModel)),
		StartingBalance:    v.GetInt(keyStartingBalance),
		MinSourceChars:     v.GetInt(keyMinSourceChars),
		ConcurrentPrescore: v.GetBool(keyConcurrentPrescore),
		LogLevel:           level,
		ListenAddr:         strings.TrimSpace(v.GetString(keyListenAddr)),
		IdentityHeader:     strings.TrimSpace(v.GetString(keyIdentityHeader)),
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	var errs []error
	if c.StateTable == "" {
		errs = append(errs, fmt.Errorf("%s is required", keyStateTable))
	}
	if c.ParamPrefix == "" {
		errs = append(errs, fmt.Errorf("%s is required", keyParamPrefix))
	}
	if c.StartingBalance <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", keyStartingBalance))
	}
	if c.MinSourceChars < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", keyMinSourceChars))
	}
	if c.RoutingMode == llm.ModeLocal && (c.LocalBaseURL == "" || c.LocalModel == "") {
		errs = append(errs, fmt.Errorf("%s and %s are required in local mode", keyLocalBaseURL, keyLocalModel))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
