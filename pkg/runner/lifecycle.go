package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/harunnryd/cipher/pkg/logging"
)

var ErrDrainTimeout = errors.New("runner: drain timeout")

// LifecycleRunner runs services together. The first failure or the end of
// the parent context stops all of them.
type LifecycleRunner struct {
	state    atomic.Int32
	services []Service
	hooks    Hooks
	timeout  time.Duration
	banner   io.Writer
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	stopCh chan struct{}
}

type Options struct {
	Hooks Hooks
	// DrainTimeout bounds how long services get to return after stop.
	DrainTimeout time.Duration
	// Banner receives the startup banner; nil disables it.
	Banner io.Writer
	Logger *slog.Logger
}

func NewLifecycleRunner(services []Service, opts Options) *LifecycleRunner {
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 10 * time.Second
	}
	return &LifecycleRunner{
		services: services,
		hooks:    opts.Hooks,
		timeout:  opts.DrainTimeout,
		banner:   opts.Banner,
		logger:   logging.NewComponentLogger(opts.Logger, "runner"),
		stopCh:   make(chan struct{}),
	}
}

func (r *LifecycleRunner) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateNew), int32(StateStarting)) {
		return errors.New("runner: invalid state transition")
	}
	if r.banner != nil {
		PrintBanner(r.banner)
	}
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer cancel()

	if r.hooks.OnStart != nil {
		r.hooks.OnStart()
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range r.services {
		svc := svc
		g.Go(func() error {
			r.logger.Info("service_started", "service", svc.Name())
			if err := svc.Run(gctx); err != nil {
				r.logger.Error("service_failed", "service", svc.Name(), "error", err)
				return fmt.Errorf("%s: %w", svc.Name(), err)
			}
			r.logger.Info("service_stopped", "service", svc.Name())
			return nil
		})
	}
	r.setState(StateRunning)

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-gctx.Done():
		r.setState(StateDraining)
		select {
		case err = <-done:
		case <-time.After(r.timeout):
			err = ErrDrainTimeout
		}
	}
	r.setState(StateDraining)
	if r.hooks.OnStop != nil {
		r.hooks.OnStop()
	}
	r.setState(StateStopped)
	close(r.stopCh)
	return err
}

// Stop cancels a running Run. It does not wait; use Done for that.
func (r *LifecycleRunner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done is closed once Run returned.
func (r *LifecycleRunner) Done() <-chan struct{} { return r.stopCh }

func (r *LifecycleRunner) State() State {
	return State(r.state.Load())
}

func (r *LifecycleRunner) setState(s State) {
	r.state.Store(int32(s))
}
