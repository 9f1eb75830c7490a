// Package config loads interview console configuration from a YAML
// file and environment variables. Credentials are injected via config
// or environment only; there is deliberately no literal default for
// any API key.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Defaults for non-credential settings.
const (
	DefaultRealtimeURL        = "wss://api.openai.com/v1/realtime"
	DefaultRealtimeModel      = "gpt-4o-realtime-preview-2024-12-17"
	DefaultTranscriptionModel = "whisper-1"
	DefaultChatCompletionsURL = "https://api.openai.com/v1/chat/completions"
	DefaultReportModel        = "gpt-4o-mini"
	DefaultBackendURL         = "http://localhost:5000"
	DefaultDashboardPort      = "8181"
	DefaultSampleRate         = 24000
)

// ErrMissingCredentials indicates neither an API key nor a relay URL
// was configured for the realtime backend.
var ErrMissingCredentials = errors.New("config: realtime API key or relay URL is required")

// Config holds all settings for the interview console.
type Config struct {
	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `mapstructure:"log_level"`

	// Realtime backend settings.
	RealtimeURL   string `mapstructure:"realtime_url"`
	RealtimeModel string `mapstructure:"realtime_model"`

	// RealtimeAPIKey authenticates against the realtime backend.
	// Not needed when RelayURL is set.
	RealtimeAPIKey string `mapstructure:"realtime_api_key"`

	// RelayURL points at a local relay server that holds the key
	// server-side. When set, no key is required client-side.
	RelayURL string `mapstructure:"relay_url"`

	// TranscriptionModel transcribes user audio server-side.
	TranscriptionModel string `mapstructure:"transcription_model"`

	// Report generation settings.
	ChatCompletionsURL string `mapstructure:"chat_completions_url"`
	ReportModel        string `mapstructure:"report_model"`

	// BackendURL is the interview CRUD backend (candidate lookup,
	// report persistence).
	BackendURL string `mapstructure:"backend_url"`

	// DashboardPort is the local console dashboard port.
	DashboardPort string `mapstructure:"dashboard_port"`

	// SampleRate for capture and playback, in Hz.
	SampleRate int `mapstructure:"sample_rate"`
}

// Load reads configuration from the given file (optional) and the
// environment. Environment variables use the INTERVIEW_ prefix, e.g.
// INTERVIEW_REALTIME_API_KEY; OPENAI_API_KEY is honored as a fallback
// for the realtime key.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("log_level", "info")
	v.SetDefault("realtime_url", DefaultRealtimeURL)
	v.SetDefault("realtime_model", DefaultRealtimeModel)
	v.SetDefault("transcription_model", DefaultTranscriptionModel)
	v.SetDefault("chat_completions_url", DefaultChatCompletionsURL)
	v.SetDefault("report_model", DefaultReportModel)
	v.SetDefault("backend_url", DefaultBackendURL)
	v.SetDefault("dashboard_port", DefaultDashboardPort)
	v.SetDefault("sample_rate", DefaultSampleRate)

	v.SetEnvPrefix("INTERVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("realtime_api_key", "INTERVIEW_REALTIME_API_KEY", "OPENAI_API_KEY")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if c.RealtimeAPIKey == "" && c.RelayURL == "" {
		return ErrMissingCredentials
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("config: sample_rate must be positive, got %d", c.SampleRate)
	}
	return nil
}

// StreamURL returns the websocket URL the realtime client dials:
// the relay when configured, the provider endpoint otherwise.
func (c *Config) StreamURL() string {
	if c.RelayURL != "" {
		return c.RelayURL
	}
	return fmt.Sprintf("%s?model=%s", c.RealtimeURL, c.RealtimeModel)
}
