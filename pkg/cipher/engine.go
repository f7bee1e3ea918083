// Package cipher wires configuration, providers and the gateway into a
// runnable service.
package cipher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/harunnryd/cipher/pkg/agent"
	"github.com/harunnryd/cipher/pkg/catalog"
	"github.com/harunnryd/cipher/pkg/configutil"
	"github.com/harunnryd/cipher/pkg/gateway"
	"github.com/harunnryd/cipher/pkg/improv"
	"github.com/harunnryd/cipher/pkg/ledger"
	"github.com/harunnryd/cipher/pkg/llm"
	"github.com/harunnryd/cipher/pkg/logging"
	"github.com/harunnryd/cipher/pkg/metrics"
	"github.com/harunnryd/cipher/pkg/notify"
	"github.com/harunnryd/cipher/pkg/persona"
	"github.com/harunnryd/cipher/pkg/redact"
	"github.com/harunnryd/cipher/pkg/runner"
	"github.com/harunnryd/cipher/pkg/shop"
)

type EngineOptions struct {
	Config    Config
	Providers *ProviderRegistry
	Logger    *slog.Logger
	// Banner receives the startup banner on Run; nil disables it.
	Banner io.Writer
}

// Engine owns every long-lived component of the process.
type Engine struct {
	cfg        Config
	logger     *slog.Logger
	catalog    *catalog.Catalog
	ledger     ledger.Ledger
	notifier   notify.Notifier
	model      llm.LLMAdapter
	controller *shop.Controller
	personas   persona.Factory
	server     *gateway.Server
	banner     io.Writer

	observer metrics.Observer
	asyncObs *metrics.AsyncObserver
	traceObs *metrics.JSONLObserver
}

func NewEngine(ctx context.Context, opts EngineOptions) (*Engine, error) {
	cfg := opts.Config
	redact.SetEnabled(cfg.Privacy.RedactPII)
	logger := opts.Logger
	if logger == nil {
		logger = logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	}
	providers := opts.Providers
	if providers == nil {
		providers = DefaultProviders()
	}

	e := &Engine{cfg: cfg, logger: logger, banner: opts.Banner, observer: metrics.NoopObserver{}}
	if err := e.buildObservers(); err != nil {
		return nil, err
	}

	cat, err := catalog.LoadFile(cfg.Catalog.Path)
	if err != nil {
		e.closeObservers()
		return nil, err
	}
	e.catalog = cat

	deps := Deps{Observer: e.observer, Logger: logger, StoreName: cfg.Catalog.StoreName}
	if e.ledger, err = providers.BuildLedger(ctx, cfg.Ledger, deps); err != nil {
		e.closeObservers()
		return nil, fmt.Errorf("build ledger: %w", err)
	}
	if e.notifier, err = providers.BuildNotifier(ctx, cfg.Notify, deps); err != nil {
		e.Close()
		return nil, fmt.Errorf("build notifier: %w", err)
	}
	if e.model, err = providers.BuildLLM(ctx, cfg.LLM, deps); err != nil {
		e.Close()
		return nil, fmt.Errorf("build llm: %w", err)
	}

	e.controller = shop.NewController(cat, e.ledger, shop.Options{
		StoreName: cfg.Catalog.StoreName,
		Receipts:  e.notifier,
		Observer:  e.observer,
		Logger:    logger,
	})
	shopAgent := agent.New(e.model, persona.ShopPrompt(e.controller.StoreName(), cfg.Agent.Persona, cfg.Agent.Style), agent.Options{
		MaxSteps:    cfg.Agent.MaxSteps,
		MaxHistory:  cfg.Agent.MaxHistory,
		ToolTimeout: configutil.Millis(cfg.Agent.ToolTimeoutMS, 5*time.Second),
		Observer:    e.observer,
		Logger:      logger,
	})
	e.personas = persona.Factory{
		Controller: e.controller,
		Agent:      shopAgent,
		Chooser:    improv.NewRandomChooser(nil, nil),
		MaxRounds:  cfg.Improv.MaxRounds,
		Logger:     logger,
	}
	e.server = gateway.NewServer(gateway.Config{
		Addr:             cfg.Server.Addr,
		WSPath:           cfg.Server.WSPath,
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		HandshakeTimeout: configutil.Millis(cfg.Server.HandshakeTimeoutMS, 5*time.Second),
		MaxMessageBytes:  cfg.Server.MaxMessageBytes,
		DrainTimeout:     configutil.Millis(cfg.Server.DrainTimeoutMS, 5*time.Second),
	}, e.personas, e.observer, logger)

	logger.Info("cipher_init",
		"llm_provider", cfg.LLM.Provider,
		"ledger_provider", e.ledger.Name(),
		"notify_provider", cfg.Notify.Provider,
		"catalog_products", cat.Len(),
		"store_name", e.controller.StoreName(),
	)
	return e, nil
}

func (e *Engine) buildObservers() error {
	path := strings.TrimSpace(e.cfg.Trace.Path)
	if path == "" {
		return nil
	}
	obs, err := metrics.OpenJSONLFile(path)
	if err != nil {
		return err
	}
	e.traceObs = obs
	sampled := metrics.NewSamplingObserver(obs, e.cfg.Trace.SampleRate,
		metrics.EventAction, metrics.EventBreakerOpen, metrics.EventBreakerClose, metrics.EventSessionOpen, metrics.EventSessionClose)
	e.asyncObs = metrics.NewAsyncObserver(sampled, e.cfg.Trace.Buffer)
	e.observer = e.asyncObs
	return nil
}

func (e *Engine) Config() Config                { return e.cfg }
func (e *Engine) Ledger() ledger.Ledger         { return e.ledger }
func (e *Engine) Controller() *shop.Controller  { return e.controller }
func (e *Engine) Personas() persona.Factory     { return e.personas }
func (e *Engine) Gateway() *gateway.Server      { return e.server }
func (e *Engine) Observer() metrics.Observer    { return e.observer }
func (e *Engine) LanguageModel() llm.LLMAdapter { return e.model }

// Run serves the gateway until ctx is done, then releases every resource.
func (e *Engine) Run(ctx context.Context) error {
	r := runner.NewLifecycleRunner([]runner.Service{
		runner.ServiceFunc{ServiceName: "gateway", Fn: e.server.Run},
	}, runner.Options{
		Banner:       e.banner,
		Logger:       e.logger,
		DrainTimeout: configutil.Millis(e.cfg.Server.DrainTimeoutMS, 5*time.Second) + 2*time.Second,
		Hooks: runner.Hooks{
			OnStart: func() {
				e.logger.Info("engine_ready", "addr", e.cfg.Server.Addr, "ws_path", e.cfg.Server.WSPath)
			},
			OnStop: func() {
				err := e.Close()
				e.logger.Info("shutdown", "goroutines", runtime.NumGoroutine(), "error", err)
			},
		},
	})
	return r.Run(ctx)
}

// Close releases the ledger and flushes traces. Safe to call once.
func (e *Engine) Close() error {
	var errs []error
	if e.ledger != nil {
		if err := e.ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close ledger: %w", err))
		}
	}
	if err := e.closeObservers(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (e *Engine) closeObservers() error {
	if e.asyncObs != nil {
		e.asyncObs.Close()
	}
	if e.traceObs != nil {
		return e.traceObs.Close()
	}
	return nil
}
