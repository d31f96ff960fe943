package app

import (
	"fmt"
	"strings"

	"github.com/specialistvlad/tilestackgo/internal/config"
	"github.com/specialistvlad/tilestackgo/internal/report"
)

// Config holds everything an App instance needs besides the pipeline
// configuration file itself.
type Config struct {
	ConfigPaths []string // .hcl, .yaml or directories of them; empty means defaults
	Overrides   config.Overrides

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	ReportMode      report.Mode
}

// NewConfig normalises and validates cfg.
func NewConfig(cfg Config) (*Config, error) {
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("invalid log-format %q: must be 'text' or 'json'", cfg.LogFormat)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if _, ok := parseLevel(cfg.LogLevel); !ok {
		return nil, fmt.Errorf("invalid log-level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}

	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("invalid healthcheck-port %d", cfg.HealthcheckPort)
	}
	if cfg.Overrides.Workers < 0 {
		return nil, fmt.Errorf("invalid workers %d: must not be negative", cfg.Overrides.Workers)
	}
	if cfg.Overrides.Stride < 0 {
		return nil, fmt.Errorf("invalid stride %d: must not be negative", cfg.Overrides.Stride)
	}
	return &cfg, nil
}
