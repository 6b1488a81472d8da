package provider

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/irregularchat/speech-memorization/pkg/logger"
)

// ErrBusy is returned when a dispatch is already in flight. The caller
// drops the chunk rather than queueing it; stale audio is worse than
// missing audio for live practice.
var ErrBusy = errors.New("dispatch already in flight")

// ErrNoProviders is returned when no registered provider is eligible
var ErrNoProviders = errors.New("no eligible providers")

// ExhaustedError reports that every eligible provider was tried and
// failed. Errs aggregates the per-provider failures.
type ExhaustedError struct {
	Attempts int
	Errs     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d providers failed: %v", e.Attempts, e.Errs)
}

func (e *ExhaustedError) Unwrap() error { return e.Errs }

// Dispatcher routes chunks to the best available provider and fails
// over down the candidate list. At most one dispatch runs at a time;
// concurrent calls get ErrBusy immediately.
type Dispatcher struct {
	registry *Registry
	timeout  time.Duration
	inFlight atomic.Bool
	logger   *logger.Logger
}

// NewDispatcher creates a dispatcher. timeout bounds each individual
// provider call, not the whole failover sequence.
func NewDispatcher(registry *Registry, timeout time.Duration, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		timeout:  timeout,
		logger:   log.Named("dispatcher"),
	}
}

// Dispatch tries eligible providers in order until one produces a
// transcript. Provider health is updated as a side effect: a success
// heals one earlier error, a failure counts against the provider.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Transcript, error) {
	if !d.inFlight.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer d.inFlight.Store(false)

	candidates := d.registry.Candidates(time.Now())
	if len(candidates) == 0 {
		return nil, ErrNoProviders
	}

	var errs error
	for _, p := range candidates {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		d.registry.RecordRequest(p.ID(), time.Now())
		transcript, err := d.tryProvider(ctx, p, req)
		if err != nil {
			d.registry.ReportFailure(p.ID(), err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", p.ID(), err))
			continue
		}

		d.registry.ReportSuccess(p.ID())
		d.logger.Debug("Transcription complete",
			logger.String("provider", p.ID()),
			logger.Duration("elapsed", transcript.Elapsed),
			logger.Int("chars", len(transcript.Text)))
		return transcript, nil
	}

	return nil, &ExhaustedError{Attempts: len(candidates), Errs: errs}
}

func (d *Dispatcher) tryProvider(ctx context.Context, p Provider, req Request) (*Transcript, error) {
	callCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	started := time.Now()
	transcript, err := p.Transcribe(callCtx, req)
	if err != nil {
		return nil, err
	}
	transcript.ProviderID = p.ID()
	transcript.Elapsed = time.Since(started)
	return transcript, nil
}
