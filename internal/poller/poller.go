package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/reims-io/docflow/internal/api"
	"github.com/reims-io/docflow/internal/document"
	"github.com/reims-io/docflow/internal/registry"
)

const (
	DefaultInterval    = 1500 * time.Millisecond
	DefaultMaxAttempts = 30
)

// ErrTimedOut is delivered through OnError when the attempt ceiling is
// reached without ever observing a terminal state.
var ErrTimedOut = errors.New("status polling timed out before a terminal state")

// ProcessingError is the terminal failed outcome, carrying the
// backend-reported message.
type ProcessingError struct {
	Message string
}

func (e *ProcessingError) Error() string {
	if e.Message == "" {
		return "document processing failed"
	}

	return "document processing failed: " + e.Message
}

// StatusFetcher is the slice of the API client the poller needs.
type StatusFetcher interface {
	GetStatus(ctx context.Context, id string) (*api.Status, error)
}

// Config tunes the poll loop. Zero values fall back to the defaults.
type Config struct {
	Interval    time.Duration
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}

	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}

	return c
}

// Callbacks receive the terminal outcome for a document. Each fires at
// most once, and never after Stop.
type Callbacks struct {
	// OnComplete receives the extracted-metrics payload when the
	// document reaches processed.
	OnComplete func(id string, metrics map[string]json.RawMessage)

	// OnError receives a *ProcessingError on terminal failure or
	// ErrTimedOut on ceiling exhaustion.
	OnError func(id string, err error)
}

// Poller drives the status checks for one document until a terminal
// state, the attempt ceiling, or cancellation. Requests never overlap:
// the next tick is scheduled only after the previous response resolves.
type Poller struct {
	id       string
	fetcher  StatusFetcher
	reg      *registry.Registry
	cfg      Config
	cb       Callbacks
	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

// Start launches the poll loop for id on its own goroutine. The first
// status request is issued after one interval, giving the backend a
// moment to pick the document up.
func Start(ctx context.Context, id string, fetcher StatusFetcher, reg *registry.Registry, cfg Config, cb Callbacks) *Poller {
	ctx, cancel := context.WithCancel(ctx)

	p := &Poller{
		id:      id,
		fetcher: fetcher,
		reg:     reg,
		cfg:     cfg.withDefaults(),
		cb:      cb,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go p.run(ctx)

	return p
}

// Stop cancels the poller. Idempotent; a response already in flight
// when Stop is called is discarded without touching the registry.
func (p *Poller) Stop() {
	p.stopOnce.Do(p.cancel)
}

// Done is closed once the poll loop has fully exited.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)
	defer p.cancel()

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if !p.wait(ctx) {
			return
		}

		status, err := p.fetcher.GetStatus(ctx, p.id)

		// A response that resolves after cancellation must not
		// mutate the registry.
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			// Transient: this tick is a no-op and polling continues.
			slog.Debug("status check failed", "id", p.id, "attempt", attempt, "error", err)
			continue
		}

		if terminal := p.apply(status); terminal {
			return
		}
	}

	slog.Warn("status polling exhausted", "id", p.id, "attempts", p.cfg.MaxAttempts)

	if p.cb.OnError != nil {
		p.cb.OnError(p.id, fmt.Errorf("%w after %d attempts", ErrTimedOut, p.cfg.MaxAttempts))
	}
}

// wait sleeps one interval, measured from the end of the previous
// response. Reports false when the poller was cancelled meanwhile.
func (p *Poller) wait(ctx context.Context) bool {
	t := time.NewTimer(p.cfg.Interval)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// apply folds one status response into the registry and fires the
// terminal callback when the document is done. Reports whether a
// terminal state was reached.
func (p *Poller) apply(status *api.Status) bool {
	patch := document.Patch{State: &status.State}

	if status.State == document.StateProcessed {
		count := len(status.Metrics)
		patch.MetricsCount = &count
	}

	if status.State == document.StateFailed && status.Error != "" {
		patch.Error = &status.Error
	}

	p.reg.Update(p.id, patch)

	if !status.State.Terminal() {
		return false
	}

	switch status.State {
	case document.StateProcessed:
		if p.cb.OnComplete != nil {
			p.cb.OnComplete(p.id, status.Metrics)
		}
	case document.StateFailed:
		if p.cb.OnError != nil {
			p.cb.OnError(p.id, &ProcessingError{Message: status.Error})
		}
	}

	return true
}
