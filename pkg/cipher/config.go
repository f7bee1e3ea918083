package cipher

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	LogLevel  string        `mapstructure:"log_level"`
	LogFormat string        `mapstructure:"log_format"`
	Server    ServerConfig  `mapstructure:"server"`
	LLM       VendorConfig  `mapstructure:"llm"`
	Agent     AgentConfig   `mapstructure:"agent"`
	Ledger    VendorConfig  `mapstructure:"ledger"`
	Catalog   CatalogConfig `mapstructure:"catalog"`
	Improv    ImprovConfig  `mapstructure:"improv"`
	Notify    VendorConfig  `mapstructure:"notify"`
	Trace     TraceConfig   `mapstructure:"trace"`
	Privacy   PrivacyConfig `mapstructure:"privacy"`
}

// VendorConfig selects a provider and carries its free-form settings, which
// the provider validates against its own schema.
type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type ServerConfig struct {
	Addr               string   `mapstructure:"addr"`
	WSPath             string   `mapstructure:"ws_path"`
	AllowedOrigins     []string `mapstructure:"allowed_origins"`
	HandshakeTimeoutMS int      `mapstructure:"handshake_timeout_ms"`
	MaxMessageBytes    int64    `mapstructure:"max_message_bytes"`
	DrainTimeoutMS     int      `mapstructure:"drain_timeout_ms"`
}

type AgentConfig struct {
	MaxSteps      int    `mapstructure:"max_steps"`
	MaxHistory    int    `mapstructure:"max_history"`
	ToolTimeoutMS int    `mapstructure:"tool_timeout_ms"`
	Persona       string `mapstructure:"persona"`
	Style         string `mapstructure:"style"`
}

type CatalogConfig struct {
	Path      string `mapstructure:"path"`
	StoreName string `mapstructure:"store_name"`
}

type ImprovConfig struct {
	MaxRounds int `mapstructure:"max_rounds"`
}

type TraceConfig struct {
	Path       string  `mapstructure:"path"`
	SampleRate float64 `mapstructure:"sample_rate"`
	Buffer     int     `mapstructure:"buffer"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.ws_path", "/ws")
	v.SetDefault("server.handshake_timeout_ms", 5000)
	v.SetDefault("server.max_message_bytes", 65536)
	v.SetDefault("server.drain_timeout_ms", 5000)
	v.SetDefault("llm.provider", "mock")
	v.SetDefault("agent.max_steps", 6)
	v.SetDefault("agent.max_history", 24)
	v.SetDefault("agent.tool_timeout_ms", 5000)
	v.SetDefault("ledger.provider", "file")
	v.SetDefault("catalog.store_name", "Khan's Tech Store")
	v.SetDefault("improv.max_rounds", 3)
	v.SetDefault("notify.provider", "none")
	v.SetDefault("trace.sample_rate", 1.0)
	v.SetDefault("trace.buffer", 1024)
	v.SetDefault("privacy.redact_pii", true)
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

// LoadConfig reads a YAML file, applies defaults, expands ${ENV} references
// and validates the result. An empty path yields the defaults.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	expandEnvStrings(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.LLM.Provider) == "" {
		return fmt.Errorf("llm.provider is required")
	}
	if strings.TrimSpace(c.Ledger.Provider) == "" {
		return fmt.Errorf("ledger.provider is required")
	}
	if !strings.HasPrefix(c.Server.WSPath, "/") {
		return fmt.Errorf("server.ws_path must start with /")
	}
	if c.Server.WSPath == "/health" {
		return fmt.Errorf("server.ws_path collides with /health")
	}
	if c.Agent.MaxSteps < 1 {
		return fmt.Errorf("agent.max_steps must be at least 1")
	}
	if c.Agent.MaxHistory < 0 {
		return fmt.Errorf("agent.max_history must not be negative")
	}
	if c.Improv.MaxRounds < 1 {
		return fmt.Errorf("improv.max_rounds must be at least 1")
	}
	if c.Trace.SampleRate < 0 || c.Trace.SampleRate > 1 {
		return fmt.Errorf("trace.sample_rate must be between 0 and 1")
	}
	return nil
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.LLM.Settings = expandSettings(cfg.LLM.Settings)
	cfg.Ledger.Settings = expandSettings(cfg.Ledger.Settings)
	cfg.Notify.Settings = expandSettings(cfg.Notify.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	}
}
