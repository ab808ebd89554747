// Package status keeps pipeline run reports and the lock that allows one run at a time.
package status

import (
	"context"
	"errors"
	"time"
)

var ErrLockLost = errors.New("run lock lost")

type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
	TriggerStartup   Trigger = "startup"
)

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunHalted    RunStatus = "halted"
)

type Outcome string

const (
	OutcomeOK            Outcome = "ok"
	OutcomeFetchFailed   Outcome = "fetch_failed"
	OutcomeExtractFailed Outcome = "extract_failed"
	OutcomeDedupeFailed  Outcome = "dedupe_failed"
	OutcomeSkipped       Outcome = "skipped"
	OutcomeHalted        Outcome = "halted"
)

type SourceReport struct {
	TargetID        string  `json:"target_id"`
	URL             string  `json:"url"`
	Outcome         Outcome `json:"outcome"`
	Extracted       int     `json:"extracted"`
	Valid           int     `json:"valid"`
	Unique          int     `json:"unique"`
	Persisted       int     `json:"persisted"`
	PersistFailures int     `json:"persist_failures"`
	Error           string  `json:"error,omitempty"`
	DurationMs      int64   `json:"duration_ms"`
}

type Totals struct {
	Sources         int `json:"sources"`
	Succeeded       int `json:"succeeded"`
	Failed          int `json:"failed"`
	Skipped         int `json:"skipped"`
	Extracted       int `json:"extracted"`
	Persisted       int `json:"persisted"`
	PersistFailures int `json:"persist_failures"`
}

type RunReport struct {
	ID         string         `json:"id"`
	Trigger    Trigger        `json:"trigger"`
	Status     RunStatus      `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Error      string         `json:"error,omitempty"`
	Sources    []SourceReport `json:"sources"`
	Totals     Totals         `json:"totals"`
}

// Tally recomputes Totals from Sources.
func (r *RunReport) Tally() {
	t := Totals{Sources: len(r.Sources)}
	for _, s := range r.Sources {
		switch s.Outcome {
		case OutcomeOK:
			t.Succeeded++
		case OutcomeSkipped, OutcomeHalted:
			t.Skipped++
		default:
			t.Failed++
		}
		t.Extracted += s.Extracted
		t.Persisted += s.Persisted
		t.PersistFailures += s.PersistFailures
	}
	r.Totals = t
}

// Store persists run reports. Lookups return (nil, nil) when nothing is stored.
type Store interface {
	Save(ctx context.Context, report *RunReport) error
	Get(ctx context.Context, id string) (*RunReport, error)
	Latest(ctx context.Context) (*RunReport, error)
	Recent(ctx context.Context, limit int) ([]RunReport, error)
}

// Locker guards a pipeline run. TryLock reports false when a run already holds it.
// Refresh extends a held lock; it returns ErrLockLost when the lock has expired
// or been taken by another holder.
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
	Refresh(ctx context.Context) error
	Unlock(ctx context.Context) error
}
