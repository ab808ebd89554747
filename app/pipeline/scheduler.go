package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lysyi3m/opp-comb/app/apperr"
	"github.com/lysyi3m/opp-comb/app/status"
)

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type intervalTicker struct {
	t *time.Ticker
}

func NewIntervalTicker(d time.Duration) Ticker {
	return &intervalTicker{t: time.NewTicker(d)}
}

func (t *intervalTicker) C() <-chan time.Time { return t.t.C }
func (t *intervalTicker) Stop()               { t.t.Stop() }

// Scheduler drives the runner on a fixed interval and on demand.
type Scheduler struct {
	runner     Runner
	ticker     Ticker
	runOnStart bool
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	stopOnce   sync.Once

	mu      sync.Mutex
	stopped bool
}

func NewScheduler(runner Runner, ticker Ticker, runOnStart bool) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		runner:     runner,
		ticker:     ticker,
		runOnStart: runOnStart,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if s.runOnStart {
			s.execute(status.TriggerStartup)
		}

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-s.ticker.C():
				s.execute(status.TriggerScheduled)
			}
		}
	}()
}

// Stop halts any in-flight run and waits for it to return.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		s.cancel()
		s.runner.Halt()
		s.wg.Wait()
		s.ticker.Stop()
	})
}

// Trigger starts a manual run in the background. The run lock is taken
// before returning, so a concurrent run yields apperr.ErrRunInProgress here
// rather than in the background goroutine.
func (s *Scheduler) Trigger() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return errors.New("scheduler stopped")
	}

	execute, err := s.runner.Prepare(s.ctx, status.TriggerManual)
	if err != nil {
		if errors.Is(err, apperr.ErrRunInProgress) {
			return err
		}
		return errors.Wrap(err, "trigger run")
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.finish(status.TriggerManual, execute)
	}()

	return nil
}

func (s *Scheduler) execute(trigger status.Trigger) {
	execute, err := s.runner.Prepare(s.ctx, trigger)
	if err != nil {
		if errors.Is(err, apperr.ErrRunInProgress) {
			slog.Info("Run already in progress, skipping", "trigger", string(trigger))
			return
		}
		slog.Error("Run failed", "trigger", string(trigger), "error", err)
		return
	}
	s.finish(trigger, execute)
}

func (s *Scheduler) finish(trigger status.Trigger, execute func() (*status.RunReport, error)) {
	report, err := execute()
	if err != nil {
		slog.Error("Run failed", "trigger", string(trigger), "error", err)
		return
	}

	slog.Debug("Run finished", "trigger", string(trigger), "run", report.ID, "status", string(report.Status))
}
