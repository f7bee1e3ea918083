package runner

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/dimiro1/banner"
)

type State int

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Runner interface {
	Run(ctx context.Context) error
	Stop()
	State() State
}

// Service is a long-running part of the process. Run blocks until ctx is
// done or the service fails.
type Service interface {
	Name() string
	Run(ctx context.Context) error
}

// ServiceFunc adapts a function into a named Service.
type ServiceFunc struct {
	ServiceName string
	Fn          func(ctx context.Context) error
}

func (s ServiceFunc) Name() string                  { return s.ServiceName }
func (s ServiceFunc) Run(ctx context.Context) error { return s.Fn(ctx) }

type Hooks struct {
	OnStart func()
	// OnStop runs once every service returned, or the drain timeout passed.
	OnStop func()
}

const Version = "dev"

// PrintBanner writes the startup banner to w, stdout when nil.
func PrintBanner(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	tpl := "{{ .Title \"CIPHER\" \"\" 0 }}\nKhan's Tech Store voice assistant\nVersion: " + Version + "\n"
	banner.Init(w, true, false, bytes.NewBufferString(tpl))
}
