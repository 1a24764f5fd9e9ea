// Package dispatcher runs reconciliation strategies in the background, one
// run per strategy at a time.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-linker/internal/linker"
)

// ErrAlreadyRunning is returned when a strategy is triggered while a run of
// the same strategy is still in progress.
var ErrAlreadyRunning = errors.New("run already in progress")

// Runner executes the reconciliation strategies.
type Runner interface {
	RunCatalogSweep(ctx context.Context) error
	RunSearchStream(ctx context.Context, startPage int) error
}

// Status describes the current or most recent run of a strategy.
type Status struct {
	Strategy   linker.Strategy `json:"strategy"`
	Running    bool            `json:"running"`
	RunID      string          `json:"run_id,omitempty"`
	StartPage  int             `json:"start_page,omitempty"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	LastError  string          `json:"last_error,omitempty"`
}

// Dispatcher owns the lifecycle of triggered runs.
type Dispatcher struct {
	runner Runner
	ids    linker.IDGenerator
	clock  linker.Clock
	logger *zap.Logger

	base   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	status map[linker.Strategy]*Status
	wg     sync.WaitGroup
}

// New creates a Dispatcher. Background runs derive their context from base
// and are cancelled by Shutdown.
func New(base context.Context, runner Runner, ids linker.IDGenerator, clock linker.Clock, logger *zap.Logger) *Dispatcher {
	if base == nil {
		base = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(base)
	return &Dispatcher{
		runner: runner,
		ids:    ids,
		clock:  clock,
		logger: logger.Named("dispatcher"),
		base:   ctx,
		cancel: cancel,
		status: map[linker.Strategy]*Status{
			linker.StrategySweep:  {Strategy: linker.StrategySweep},
			linker.StrategySearch: {Strategy: linker.StrategySearch},
		},
	}
}

// StartSweep launches a catalog sweep and returns its run ID.
func (d *Dispatcher) StartSweep() (string, error) {
	return d.start(linker.StrategySweep, 0)
}

// StartSearch launches a search stream from startPage and returns its run ID.
func (d *Dispatcher) StartSearch(startPage int) (string, error) {
	return d.start(linker.StrategySearch, startPage)
}

// Execute runs a strategy in the caller's goroutine. It shares the
// one-run-per-strategy guard with the background triggers.
func (d *Dispatcher) Execute(ctx context.Context, strategy linker.Strategy, startPage int) (string, error) {
	runID, err := d.claim(strategy, startPage, false)
	if err != nil {
		return "", err
	}
	err = d.execute(ctx, strategy, runID, startPage)
	return runID, err
}

func (d *Dispatcher) start(strategy linker.Strategy, startPage int) (string, error) {
	runID, err := d.claim(strategy, startPage, true)
	if err != nil {
		return "", err
	}
	go func() {
		defer d.wg.Done()
		_ = d.execute(d.base, strategy, runID, startPage)
	}()
	return runID, nil
}

// claim marks strategy as running under a fresh run ID. Background claims
// join the wait group under the same lock Shutdown cancels under, so no run
// is added once Shutdown has started waiting.
func (d *Dispatcher) claim(strategy linker.Strategy, startPage int, background bool) (string, error) {
	st, ok := d.status[strategy]
	if !ok {
		return "", fmt.Errorf("unknown strategy %q", strategy)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.base.Err(); err != nil {
		return "", fmt.Errorf("dispatcher stopped: %w", err)
	}
	if st.Running {
		return "", ErrAlreadyRunning
	}
	runID, err := d.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	now := d.clock.Now()
	*st = Status{
		Strategy:  strategy,
		Running:   true,
		RunID:     runID,
		StartPage: startPage,
		StartedAt: &now,
	}
	if background {
		d.wg.Add(1)
	}
	return runID, nil
}

func (d *Dispatcher) execute(ctx context.Context, strategy linker.Strategy, runID string, startPage int) error {
	ctx = linker.WithRunID(ctx, runID)
	logger := d.logger.With(zap.String("run_id", runID), zap.String("strategy", string(strategy)))
	logger.Info("run dispatched")

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("run panicked: %v", r)
			}
		}()
		switch strategy {
		case linker.StrategySweep:
			err = d.runner.RunCatalogSweep(ctx)
		case linker.StrategySearch:
			err = d.runner.RunSearchStream(ctx, startPage)
		}
	}()

	now := d.clock.Now()
	d.mu.Lock()
	st := d.status[strategy]
	st.Running = false
	st.FinishedAt = &now
	if err != nil {
		st.LastError = err.Error()
	}
	d.mu.Unlock()

	if err != nil {
		logger.Warn("run ended with error", zap.Error(err))
	}
	return err
}

// Status returns a copy of every strategy's status, sweep first.
func (d *Dispatcher) Status() []Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return []Status{*d.status[linker.StrategySweep], *d.status[linker.StrategySearch]}
}

// Wait blocks until every background run has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown cancels background runs and waits for them until ctx expires.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.cancel()
	d.mu.Unlock()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for runs: %w", ctx.Err())
	}
}
