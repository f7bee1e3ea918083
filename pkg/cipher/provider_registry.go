package cipher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/cipher/pkg/configutil"
	"github.com/harunnryd/cipher/pkg/ledger"
	"github.com/harunnryd/cipher/pkg/llm"
	"github.com/harunnryd/cipher/pkg/metrics"
	"github.com/harunnryd/cipher/pkg/notify"
	"github.com/harunnryd/cipher/pkg/providers/gemini"
	"github.com/harunnryd/cipher/pkg/providers/mock"
	"github.com/harunnryd/cipher/pkg/resilience"
)

// Deps are the shared collaborators handed to provider factories.
type Deps struct {
	Observer metrics.Observer
	Logger   *slog.Logger
	// StoreName is used by receipt notifiers.
	StoreName string
}

type LLMFactory func(ctx context.Context, settings map[string]any, deps Deps) (llm.LLMAdapter, error)
type LedgerFactory func(ctx context.Context, settings map[string]any, deps Deps) (ledger.Ledger, error)
type NotifierFactory func(ctx context.Context, settings map[string]any, deps Deps) (notify.Notifier, error)

type ProviderRegistry struct {
	llm      map[string]LLMFactory
	ledger   map[string]LedgerFactory
	notifier map[string]NotifierFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		llm:      make(map[string]LLMFactory),
		ledger:   make(map[string]LedgerFactory),
		notifier: make(map[string]NotifierFactory),
	}
}

func providerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *ProviderRegistry) RegisterLLM(name string, factory LLMFactory) {
	r.llm[providerKey(name)] = factory
}

func (r *ProviderRegistry) RegisterLedger(name string, factory LedgerFactory) {
	r.ledger[providerKey(name)] = factory
}

func (r *ProviderRegistry) RegisterNotifier(name string, factory NotifierFactory) {
	r.notifier[providerKey(name)] = factory
}

func (r *ProviderRegistry) BuildLLM(ctx context.Context, cfg VendorConfig, deps Deps) (llm.LLMAdapter, error) {
	fn := r.llm[providerKey(cfg.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("llm provider not registered: %s", cfg.Provider)
	}
	return fn(ctx, cfg.Settings, deps)
}

func (r *ProviderRegistry) BuildLedger(ctx context.Context, cfg VendorConfig, deps Deps) (ledger.Ledger, error) {
	fn := r.ledger[providerKey(cfg.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("ledger provider not registered: %s", cfg.Provider)
	}
	return fn(ctx, cfg.Settings, deps)
}

func (r *ProviderRegistry) BuildNotifier(ctx context.Context, cfg VendorConfig, deps Deps) (notify.Notifier, error) {
	fn := r.notifier[providerKey(cfg.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("notify provider not registered: %s", cfg.Provider)
	}
	return fn(ctx, cfg.Settings, deps)
}

func validateSettings(path string, input map[string]any, schema configutil.Schema) error {
	if err := configutil.ValidateSettings(input, schema); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// DefaultProviders registers every built-in provider.
func DefaultProviders() *ProviderRegistry {
	reg := NewProviderRegistry()
	registerLLMs(reg)
	registerLedgers(reg)
	registerNotifiers(reg)
	return reg
}

var llmResilienceKeys = []string{"retry_attempts", "retry_base_delay_ms", "breaker_threshold", "breaker_cooldown_ms"}

func registerLLMs(reg *ProviderRegistry) {
	reg.RegisterLLM("gemini", func(ctx context.Context, raw map[string]any, deps Deps) (llm.LLMAdapter, error) {
		if err := validateSettings("llm.settings", raw, configutil.Schema{
			Required: []string{"api_key"},
			Optional: append([]string{"model", "temperature", "max_tokens"}, llmResilienceKeys...),
		}); err != nil {
			return nil, err
		}
		var settings struct {
			APIKey      string   `mapstructure:"api_key"`
			Model       string   `mapstructure:"model"`
			Temperature *float32 `mapstructure:"temperature"`
			MaxTokens   int      `mapstructure:"max_tokens"`
		}
		if err := configutil.DecodeSettings(raw, &settings); err != nil {
			return nil, fmt.Errorf("llm.settings: %w", err)
		}
		if err := configutil.RequireString(settings.APIKey, "llm.settings.api_key"); err != nil {
			return nil, err
		}
		adapter, err := gemini.NewAdapter(ctx, gemini.Options{
			APIKey:      settings.APIKey,
			Model:       settings.Model,
			Temperature: settings.Temperature,
			MaxTokens:   settings.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		return withLLMResilience(adapter, raw, deps)
	})

	reg.RegisterLLM("mock", func(_ context.Context, raw map[string]any, deps Deps) (llm.LLMAdapter, error) {
		if err := validateSettings("llm.settings", raw, configutil.Schema{
			Optional: append([]string{"response_text"}, llmResilienceKeys...),
		}); err != nil {
			return nil, err
		}
		var settings struct {
			ResponseText string `mapstructure:"response_text"`
		}
		if err := configutil.DecodeSettings(raw, &settings); err != nil {
			return nil, fmt.Errorf("llm.settings: %w", err)
		}
		if settings.ResponseText == "" {
			settings.ResponseText = "I'm running without a language model right now. Try an action such as show_catalog."
		}
		return withLLMResilience(mock.NewLLMAdapter(mock.LLMConfig{ResponseText: settings.ResponseText}), raw, deps)
	})
}

func withLLMResilience(inner llm.LLMAdapter, raw map[string]any, deps Deps) (llm.LLMAdapter, error) {
	var settings struct {
		RetryAttempts     *int `mapstructure:"retry_attempts"`
		RetryBaseDelayMS  int  `mapstructure:"retry_base_delay_ms"`
		BreakerThreshold  *int `mapstructure:"breaker_threshold"`
		BreakerCooldownMS int  `mapstructure:"breaker_cooldown_ms"`
	}
	if err := configutil.DecodeSettings(raw, &settings); err != nil {
		return nil, fmt.Errorf("llm.settings: %w", err)
	}
	retried := llm.NewRetryAdapter(inner, llm.RetryConfig{
		MaxAttempts: configutil.IntValue(settings.RetryAttempts, 3),
		BaseDelay:   configutil.Millis(settings.RetryBaseDelayMS, 200*time.Millisecond),
	})
	breaker := resilience.NewCircuitBreaker(
		configutil.IntValue(settings.BreakerThreshold, 3),
		configutil.Millis(settings.BreakerCooldownMS, 30*time.Second),
	)
	guarded := llm.NewCircuitBreakerAdapter(retried, breaker)
	guarded.SetObserver(deps.Observer)
	return guarded, nil
}

var ledgerRetryKeys = []string{"read_retries", "read_backoff_ms"}

func registerLedgers(reg *ProviderRegistry) {
	reg.RegisterLedger("memory", func(_ context.Context, raw map[string]any, _ Deps) (ledger.Ledger, error) {
		if err := validateSettings("ledger.settings", raw, configutil.Schema{}); err != nil {
			return nil, err
		}
		return ledger.NewMemory(), nil
	})

	reg.RegisterLedger("file", func(_ context.Context, raw map[string]any, _ Deps) (ledger.Ledger, error) {
		if err := validateSettings("ledger.settings", raw, configutil.Schema{Optional: append([]string{"path"}, ledgerRetryKeys...)}); err != nil {
			return nil, err
		}
		var settings struct {
			Path string `mapstructure:"path"`
		}
		if err := configutil.DecodeSettings(raw, &settings); err != nil {
			return nil, fmt.Errorf("ledger.settings: %w", err)
		}
		l, err := ledger.NewFile(settings.Path)
		if err != nil {
			return nil, err
		}
		return withReadRetry(l, raw)
	})

	reg.RegisterLedger("sqlite", func(ctx context.Context, raw map[string]any, _ Deps) (ledger.Ledger, error) {
		if err := validateSettings("ledger.settings", raw, configutil.Schema{Optional: append([]string{"path"}, ledgerRetryKeys...)}); err != nil {
			return nil, err
		}
		var settings struct {
			Path string `mapstructure:"path"`
		}
		if err := configutil.DecodeSettings(raw, &settings); err != nil {
			return nil, fmt.Errorf("ledger.settings: %w", err)
		}
		if settings.Path == "" {
			settings.Path = "orders.db"
		}
		l, err := ledger.OpenSQLite(ctx, settings.Path)
		if err != nil {
			return nil, err
		}
		return withReadRetry(l, raw)
	})

	dsnLedger := func(name string, open func(ctx context.Context, dsn string) (ledger.Ledger, error)) LedgerFactory {
		return func(ctx context.Context, raw map[string]any, _ Deps) (ledger.Ledger, error) {
			if err := validateSettings("ledger.settings", raw, configutil.Schema{
				Required: []string{"dsn"},
				Optional: ledgerRetryKeys,
			}); err != nil {
				return nil, err
			}
			var settings struct {
				DSN string `mapstructure:"dsn"`
			}
			if err := configutil.DecodeSettings(raw, &settings); err != nil {
				return nil, fmt.Errorf("ledger.settings: %w", err)
			}
			if err := configutil.RequireString(settings.DSN, "ledger.settings.dsn"); err != nil {
				return nil, err
			}
			l, err := open(ctx, settings.DSN)
			if err != nil {
				return nil, fmt.Errorf("%s ledger: %w", name, err)
			}
			return withReadRetry(l, raw)
		}
	}
	reg.RegisterLedger("mysql", dsnLedger("mysql", func(ctx context.Context, dsn string) (ledger.Ledger, error) {
		return ledger.OpenMySQL(ctx, dsn)
	}))
	reg.RegisterLedger("postgres", dsnLedger("postgres", func(ctx context.Context, dsn string) (ledger.Ledger, error) {
		return ledger.OpenPostgres(ctx, dsn)
	}))

	reg.RegisterLedger("redis", func(ctx context.Context, raw map[string]any, _ Deps) (ledger.Ledger, error) {
		if err := validateSettings("ledger.settings", raw, configutil.Schema{
			Required: []string{"addr"},
			Optional: append([]string{"password", "db", "key"}, ledgerRetryKeys...),
		}); err != nil {
			return nil, err
		}
		var settings struct {
			Addr     string `mapstructure:"addr"`
			Password string `mapstructure:"password"`
			DB       int    `mapstructure:"db"`
			Key      string `mapstructure:"key"`
		}
		if err := configutil.DecodeSettings(raw, &settings); err != nil {
			return nil, fmt.Errorf("ledger.settings: %w", err)
		}
		if err := configutil.RequireString(settings.Addr, "ledger.settings.addr"); err != nil {
			return nil, err
		}
		l, err := ledger.OpenRedis(ctx, settings.Addr, settings.Password, settings.DB, settings.Key)
		if err != nil {
			return nil, fmt.Errorf("redis ledger: %w", err)
		}
		return withReadRetry(l, raw)
	})
}

func withReadRetry(inner ledger.Ledger, raw map[string]any) (ledger.Ledger, error) {
	var settings struct {
		ReadRetries   *int `mapstructure:"read_retries"`
		ReadBackoffMS int  `mapstructure:"read_backoff_ms"`
	}
	if err := configutil.DecodeSettings(raw, &settings); err != nil {
		return nil, fmt.Errorf("ledger.settings: %w", err)
	}
	retries := configutil.IntValue(settings.ReadRetries, 2)
	if retries <= 0 {
		return inner, nil
	}
	policy := resilience.NewRetryPolicy(retries, configutil.Millis(settings.ReadBackoffMS, 50*time.Millisecond))
	return ledger.WithReadRetry(inner, policy), nil
}

func registerNotifiers(reg *ProviderRegistry) {
	reg.RegisterNotifier("none", func(_ context.Context, raw map[string]any, _ Deps) (notify.Notifier, error) {
		if err := validateSettings("notify.settings", raw, configutil.Schema{}); err != nil {
			return nil, err
		}
		return notify.Noop{}, nil
	})

	reg.RegisterNotifier("twilio", func(_ context.Context, raw map[string]any, deps Deps) (notify.Notifier, error) {
		if err := validateSettings("notify.settings", raw, configutil.Schema{
			Required: []string{"account_sid", "auth_token", "from"},
		}); err != nil {
			return nil, err
		}
		var cfg notify.TwilioConfig
		if err := configutil.DecodeSettings(raw, &cfg); err != nil {
			return nil, fmt.Errorf("notify.settings: %w", err)
		}
		cfg.StoreName = deps.StoreName
		return notify.NewTwilioSMS(cfg, deps.Logger)
	})
}
