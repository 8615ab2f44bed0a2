package faces

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/facesort/internal/observability"
)

// Status is the outcome of a controller Start or Stop.
type Status string

const (
	StatusStarted        Status = "started"
	StatusAlreadyRunning Status = "already running"
	StatusStopped        Status = "stopped"
	StatusNotRunning     Status = "not running"
)

// Runner is one batch pass. Processor implements it.
type Runner interface {
	RunOnce(ctx context.Context) (*RunStats, error)
}

type controllerState int

const (
	stateIdle controllerState = iota
	stateRunning
	// stateStopping holds the slot until the in-flight photo finishes.
	stateStopping
)

// RunReport is the outcome of the most recent completed pass.
type RunReport struct {
	Stats *RunStats `json:"stats,omitempty"`
	Error string    `json:"error,omitempty"`
}

// Controller runs a Runner in the background, at most one at a time.
// With a positive interval a started run repeats until stopped.
type Controller struct {
	runner   Runner
	interval time.Duration

	mu     sync.Mutex
	state  controllerState
	cancel context.CancelFunc
	done   chan struct{}
	last   *RunReport
}

func NewController(runner Runner, interval time.Duration) *Controller {
	return &Controller{runner: runner, interval: interval}
}

// Start launches a background run unless one is active. The run is detached
// from ctx's cancellation; use Stop to end it.
func (c *Controller) Start(ctx context.Context) Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateIdle {
		return StatusAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	c.state = stateRunning
	c.cancel = cancel
	c.done = done
	observability.BatchRunning.Set(1)

	go c.loop(runCtx, done)
	slog.Info("batch started", "interval", c.interval)
	return StatusStarted
}

// Stop signals the active run to finish after its current photo.
func (c *Controller) Stop() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateRunning {
		return StatusNotRunning
	}
	c.state = stateStopping
	c.cancel()
	slog.Info("batch stop requested")
	return StatusStopped
}

// Running reports whether a run holds the controller, including one that is stopping.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != stateIdle
}

// Wait blocks until the active run, if any, has exited.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// LastRun returns the report of the most recent completed pass, or nil.
func (c *Controller) LastRun() *RunReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return nil
	}
	cp := *c.last
	return &cp
}

func (c *Controller) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		c.state = stateIdle
		c.cancel()
		c.cancel = nil
		c.done = nil
		c.mu.Unlock()
		observability.BatchRunning.Set(0)
		close(done)
		slog.Info("batch exited")
	}()

	for {
		stats, err := c.runOnce(ctx)
		c.record(stats, err)

		if c.interval <= 0 || ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.interval):
		}
	}
}

func (c *Controller) runOnce(ctx context.Context) (stats *RunStats, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("batch run panic: %v", r)
		}
	}()
	return c.runner.RunOnce(ctx)
}

func (c *Controller) record(stats *RunStats, err error) {
	report := &RunReport{Stats: stats}
	switch {
	case err != nil:
		report.Error = err.Error()
		observability.BatchRuns.WithLabelValues("failed").Inc()
		slog.Error("batch run failed", "error", err)
	case stats != nil && stats.Cancelled:
		observability.BatchRuns.WithLabelValues("cancelled").Inc()
	default:
		observability.BatchRuns.WithLabelValues("completed").Inc()
	}

	c.mu.Lock()
	c.last = report
	c.mu.Unlock()
}
