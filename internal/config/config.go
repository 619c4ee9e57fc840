// Package config loads all runtime configuration from the environment.
// Everything has a default; the server runs offline-from-LLM out of the box.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the full server configuration.
type Config struct {
	Server ServerConfig
	LLM    LLMConfig
	Game   GameConfig
	Log    LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// LLMConfig holds the evaluation/conversation proxy settings. An empty URL
// disables the external collaborator entirely; the evaluator then always
// uses its local fallback.
type LLMConfig struct {
	ProxyURL string        `envconfig:"LLM_PROXY_URL" default:""`
	Timeout  time.Duration `envconfig:"LLM_TIMEOUT" default:"20s"`
}

// GameConfig holds the scenario and crisis tuning knobs. The pass score and
// starting meters vary between deployments, so both are configuration
// rather than constants.
type GameConfig struct {
	EvalPassScore      int           `envconfig:"EVAL_PASS_SCORE" default:"6"`
	AutoAdvanceDelay   time.Duration `envconfig:"AUTO_ADVANCE_DELAY" default:"1500ms"`
	ForcedVariety      bool          `envconfig:"FORCED_VARIETY" default:"true"`
	FreeformEvaluation bool          `envconfig:"FREEFORM_EVALUATION" default:"true"`
	TypingInterval     time.Duration `envconfig:"TYPING_INTERVAL" default:"30ms"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level    string `envconfig:"LOG_LEVEL" default:"info"`
	Encoding string `envconfig:"LOG_ENCODING" default:"json"`
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if cfg.Game.EvalPassScore < 1 || cfg.Game.EvalPassScore > 10 {
		return nil, fmt.Errorf("EVAL_PASS_SCORE must be within 1..10, got %d", cfg.Game.EvalPassScore)
	}
	return &cfg, nil
}
