package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
)

const (
	EngineMemory = "memory"
	EnginePion   = "pion"

	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// Config is the server configuration, read from CALLBRIDGE_* variables.
type Config struct {
	Addr            string        `env:"CALLBRIDGE_ADDR"             envDefault:":8080"`
	LogLevel        string        `env:"CALLBRIDGE_LOG_LEVEL"        envDefault:"info"`
	LogFormat       string        `env:"CALLBRIDGE_LOG_FORMAT"       envDefault:"console"`
	ShutdownTimeout time.Duration `env:"CALLBRIDGE_SHUTDOWN_TIMEOUT" envDefault:"5s"`
	MetricsEnabled  bool          `env:"CALLBRIDGE_METRICS_ENABLED"  envDefault:"true"`

	Engine     string   `env:"CALLBRIDGE_ENGINE"      envDefault:"memory"`
	ICEServers []string `env:"CALLBRIDGE_ICE_SERVERS" envSeparator:"," envDefault:"stun:stun.l.google.com:19302"`

	PromptOnJoin            bool   `env:"CALLBRIDGE_PROMPT_ON_JOIN"             envDefault:"true"`
	AutoEnableCameraOnGrant bool   `env:"CALLBRIDGE_AUTO_ENABLE_CAMERA_ON_GRANT" envDefault:"false"`
	PermissionPreset        string `env:"CALLBRIDGE_PERMISSION_PRESET"          envDefault:"ask"`
}

func Load() (Config, error) {
	return load(env.ToMap(os.Environ()))
}

func load(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Engine {
	case EngineMemory, EnginePion:
	default:
		return fmt.Errorf("CALLBRIDGE_ENGINE: unknown engine %q", c.Engine)
	}
	switch c.LogFormat {
	case LogFormatConsole, LogFormatJSON:
	default:
		return fmt.Errorf("CALLBRIDGE_LOG_FORMAT: unknown format %q", c.LogFormat)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("CALLBRIDGE_SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

func (c Config) Level() (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("CALLBRIDGE_LOG_LEVEL: %w", err)
	}
	return lvl, nil
}
