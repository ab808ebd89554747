package api

import (
	"context"

	"github.com/lysyi3m/opp-comb/app/database"
	"github.com/lysyi3m/opp-comb/app/pipeline"
	"github.com/lysyi3m/opp-comb/app/registry"
	"github.com/lysyi3m/opp-comb/app/status"
)

// TargetService is the registry surface exposed to operators.
type TargetService interface {
	Create(ctx context.Context, in registry.NewTarget) (*database.CrawlTarget, error)
	Get(ctx context.Context, id string) (*database.CrawlTarget, error)
	List(ctx context.Context, page, perPage int) (*registry.TargetPage, error)
	Update(ctx context.Context, id string, patch database.TargetPatch) (*database.CrawlTarget, error)
	Toggle(ctx context.Context, id string) (*database.CrawlTarget, error)
	Delete(ctx context.Context, id string) error
	TargetCount(ctx context.Context) (int, error)
	ListingStats(ctx context.Context) (database.ListingStats, error)
	RecentListings(ctx context.Context, limit int) ([]database.Listing, error)
}

// RunController starts and halts pipeline runs.
type RunController interface {
	Trigger() error
	Running() bool
	Halt() bool
}

var (
	_ TargetService = (*registry.Registry)(nil)
	_ RunController = (*runControl)(nil)
)

type runControl struct {
	scheduler *pipeline.Scheduler
	runner    pipeline.Runner
}

// NewRunController combines the scheduler's manual trigger with the runner's halt.
func NewRunController(scheduler *pipeline.Scheduler, runner pipeline.Runner) RunController {
	return &runControl{scheduler: scheduler, runner: runner}
}

func (r *runControl) Trigger() error { return r.scheduler.Trigger() }
func (r *runControl) Running() bool  { return r.runner.Running() }
func (r *runControl) Halt() bool     { return r.runner.Halt() }

type Handler struct {
	targets   TargetService
	runs      RunController
	reports   status.Store
	generator *ListingFeedGenerator
	sources   int
	version   string
}

type errorBody struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
