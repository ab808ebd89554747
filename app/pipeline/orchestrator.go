package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lysyi3m/opp-comb/app/ai"
	"github.com/lysyi3m/opp-comb/app/apperr"
	"github.com/lysyi3m/opp-comb/app/database"
	"github.com/lysyi3m/opp-comb/app/events"
	"github.com/lysyi3m/opp-comb/app/seed"
	"github.com/lysyi3m/opp-comb/app/status"
)

const (
	DefaultSourceBudget  = 60 * time.Second
	DefaultSnapshotLimit = 200

	knownDescriptionLimit = 400
)

type Config struct {
	WorkerCount   int
	SourceBudget  time.Duration
	SnapshotLimit int
}

// Deps are the collaborators of an Orchestrator. Filters, Store, Lock and
// Publisher are optional.
type Deps struct {
	Registry   SourceRegistry
	Categories CategorySource
	Fetcher    PageFetcher
	Preparer   MarkupPreparer
	Extractor  CandidateExtractor
	Deduper    CandidateDeduper
	Persister  *Persister
	Validator  *Validator
	Filters    FilterSource
	Store      status.Store
	Lock       status.Locker
	Publisher  events.Publisher
}

var _ Runner = (*Orchestrator)(nil)

// Orchestrator runs the fetch, extract, dedupe and persist chain over every
// active crawl target. One failing source never aborts the run.
type Orchestrator struct {
	deps    Deps
	cfg     Config
	now     func() time.Time
	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewOrchestrator(deps Deps, cfg Config) *Orchestrator {
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	if cfg.SourceBudget <= 0 {
		cfg.SourceBudget = DefaultSourceBudget
	}
	if cfg.SnapshotLimit <= 0 {
		cfg.SnapshotLimit = DefaultSnapshotLimit
	}
	if deps.Validator == nil {
		deps.Validator = NewValidator()
	}
	if deps.Store == nil {
		deps.Store = status.NewMemoryStore(0)
	}
	if deps.Lock == nil {
		deps.Lock = &status.LocalLock{}
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Nop{}
	}

	return &Orchestrator{
		deps: deps,
		cfg:  cfg,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Halt cancels the in-flight run. The source being processed finishes;
// the remaining ones are reported as halted.
func (o *Orchestrator) Halt() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancel == nil {
		return false
	}
	o.cancel()
	return true
}

// Run performs one pass over the active crawl targets. It returns
// apperr.ErrRunInProgress when another run holds the lock, and an error when
// the targets or categories cannot be loaded.
func (o *Orchestrator) Run(ctx context.Context, trigger status.Trigger) (*status.RunReport, error) {
	execute, err := o.Prepare(ctx, trigger)
	if err != nil {
		return nil, err
	}
	return execute()
}

// Prepare takes the run lock and returns the function that performs the run
// and releases the lock. The returned function must be called exactly once.
func (o *Orchestrator) Prepare(ctx context.Context, trigger status.Trigger) (func() (*status.RunReport, error), error) {
	locked, err := o.deps.Lock.TryLock(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "acquire run lock")
	}
	if !locked {
		return nil, apperr.WithHint(errors.Wrap(apperr.ErrRunInProgress, "start run"), "A pipeline run is already in progress")
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()
	o.running.Store(true)

	return func() (*status.RunReport, error) {
		defer func() {
			if err := o.deps.Lock.Unlock(context.WithoutCancel(ctx)); err != nil {
				slog.Warn("Failed to release run lock", "error", err)
			}
		}()
		defer func() {
			o.mu.Lock()
			o.cancel = nil
			o.mu.Unlock()
			cancel()
			o.running.Store(false)
		}()

		return o.execute(ctx, runCtx, trigger)
	}, nil
}

func (o *Orchestrator) execute(ctx, runCtx context.Context, trigger status.Trigger) (*status.RunReport, error) {
	report := &status.RunReport{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		Status:    status.RunRunning,
		StartedAt: o.now(),
		Sources:   []status.SourceReport{},
	}
	o.saveReport(ctx, report)

	slog.Info("Run started", "run", report.ID, "trigger", string(trigger))

	targets, err := o.deps.Registry.ListActive(runCtx)
	if err != nil {
		return o.failRun(ctx, report, errors.Wrap(err, "load crawl targets"))
	}

	categories, err := o.deps.Categories.GetCategories(runCtx)
	if err != nil {
		return o.failRun(ctx, report, errors.Wrap(err, "load categories"))
	}
	aiCategories := make([]ai.Category, 0, len(categories))
	for _, c := range categories {
		aiCategories = append(aiCategories, ai.Category{ID: c.ID, Name: c.Name})
	}

	// scheduled ticks honour each target's cadence; operator and startup runs fetch everything
	ignoreCadence := trigger != status.TriggerScheduled

	results := make([]status.SourceReport, len(targets))
	var g errgroup.Group
	g.SetLimit(o.cfg.WorkerCount)

	for i, target := range targets {
		if runCtx.Err() != nil {
			results[i] = haltedReport(target)
			continue
		}

		g.Go(func() error {
			if runCtx.Err() != nil {
				results[i] = haltedReport(target)
				return nil
			}
			// keep a shared lock alive for runs longer than its ttl
			if err := o.deps.Lock.Refresh(context.WithoutCancel(runCtx)); err != nil {
				slog.Warn("Failed to refresh run lock", "run", report.ID, "error", err)
			}
			results[i] = o.processSource(runCtx, report.ID, target, aiCategories, ignoreCadence)
			return nil
		})
	}
	_ = g.Wait()

	report.Sources = results
	report.Tally()
	finished := o.now()
	report.FinishedAt = &finished
	report.Status = status.RunCompleted
	if runCtx.Err() != nil {
		report.Status = status.RunHalted
	}
	o.saveReport(ctx, report)

	slog.Info("Run completed",
		"run", report.ID,
		"status", string(report.Status),
		"duration", finished.Sub(report.StartedAt),
		"sources", report.Totals.Sources,
		"succeeded", report.Totals.Succeeded,
		"failed", report.Totals.Failed,
		"skipped", report.Totals.Skipped,
		"persisted", report.Totals.Persisted)

	return report, nil
}

func (o *Orchestrator) failRun(ctx context.Context, report *status.RunReport, err error) (*status.RunReport, error) {
	finished := o.now()
	report.FinishedAt = &finished
	report.Status = status.RunFailed
	report.Error = err.Error()
	o.saveReport(ctx, report)

	slog.Error("Run failed", "run", report.ID, "error", err)

	return report, err
}

func (o *Orchestrator) saveReport(ctx context.Context, report *status.RunReport) {
	if err := o.deps.Store.Save(context.WithoutCancel(ctx), report); err != nil {
		slog.Warn("Failed to save run report", "run", report.ID, "error", err)
	}
}

func haltedReport(target database.CrawlTarget) status.SourceReport {
	return status.SourceReport{TargetID: target.ID, URL: target.URL, Outcome: status.OutcomeHalted}
}

// processSource runs the stage chain for one target. Its context is detached
// from the run so that halting lets the current source finish within its budget.
func (o *Orchestrator) processSource(runCtx context.Context, runID string, target database.CrawlTarget, categories []ai.Category, ignoreCadence bool) status.SourceReport {
	task := NewSourceTask(runID, target)
	task.Start()

	report := status.SourceReport{TargetID: target.ID, URL: target.URL}
	finish := func(outcome status.Outcome, err error) status.SourceReport {
		report.Outcome = outcome
		report.DurationMs = task.GetDuration().Milliseconds()
		if err != nil {
			report.Error = err.Error()
			slog.Warn("Source failed",
				"run", runID,
				"target", target.ID,
				"url", target.URL,
				"outcome", string(outcome),
				"duration", task.GetDuration(),
				"error", err)
		}
		return report
	}

	if !ignoreCadence && !Due(target, o.now()) {
		slog.Debug("Crawl target not due yet", "target", target.ID, "frequency", target.Frequency, "last_scraped_at", target.LastScrapedAt)
		return finish(status.OutcomeSkipped, nil)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(runCtx), o.cfg.SourceBudget)
	defer cancel()

	page, err := o.deps.Fetcher.Fetch(ctx, target.URL)
	if err != nil {
		return finish(status.OutcomeFetchFailed, err)
	}

	if err := o.deps.Registry.MarkFetched(ctx, target.ID, page.FetchedAt); err != nil {
		slog.Warn("Failed to mark crawl target fetched", "target", target.ID, "error", err)
	}

	prepared := o.deps.Preparer.Prepare(page, target.Platform)
	if target.Label == "" && prepared.Title != "" {
		label := prepared.Title
		if _, err := o.deps.Registry.Update(ctx, target.ID, database.TargetPatch{Label: &label}); err != nil {
			slog.Warn("Failed to fill crawl target label", "target", target.ID, "error", err)
		}
	}

	candidates, err := o.deps.Extractor.Extract(ctx, prepared.Markup, categories)
	if err != nil {
		return finish(status.OutcomeExtractFailed, err)
	}
	report.Extracted = len(candidates)

	valid, rejected := o.deps.Validator.Run(candidates, o.filtersFor(target.URL))
	report.Valid = len(valid)
	for _, r := range rejected {
		slog.Debug("Candidate rejected", "target", target.ID, "title", r.Candidate.Title, "reason", r.Reason)
	}

	if len(valid) > 0 {
		existing, err := o.deps.Registry.RecentListings(ctx, o.cfg.SnapshotLimit)
		if err != nil {
			return finish(status.OutcomeDedupeFailed, err)
		}

		unique, err := o.deps.Deduper.Dedupe(ctx, valid, KnownListings(existing))
		if err != nil {
			return finish(status.OutcomeDedupeFailed, err)
		}
		report.Unique = len(unique)

		result := o.deps.Persister.Persist(ctx, target.URL, unique)
		report.Persisted = len(result.Stored)
		report.PersistFailures = len(result.Failures)

		o.publish(ctx, runID, result.Stored)
	}

	slog.Info("Source processed",
		"run", runID,
		"target", target.ID,
		"url", target.URL,
		"duration", task.GetDuration(),
		"truncated", prepared.Truncated,
		"extracted", report.Extracted,
		"valid", report.Valid,
		"unique", report.Unique,
		"persisted", report.Persisted,
		"persist_failures", report.PersistFailures)

	return finish(status.OutcomeOK, nil)
}

func (o *Orchestrator) filtersFor(url string) []seed.Filter {
	if o.deps.Filters == nil {
		return nil
	}
	return o.deps.Filters.FiltersFor(url)
}

func (o *Orchestrator) publish(ctx context.Context, runID string, stored []database.Listing) {
	if len(stored) == 0 {
		return
	}

	batch := make([]events.ListingEvent, 0, len(stored))
	for _, l := range stored {
		event := events.ListingEvent{
			Type:           events.TypeListingPending,
			ListingID:      l.ID,
			Title:          l.Title,
			CategoryID:     l.CategoryID,
			SourceURL:      l.SourceURL,
			ApplicationURL: l.ApplicationURL,
			RunID:          runID,
			CreatedAt:      l.CreatedAt,
		}
		if l.Deadline != nil {
			event.Deadline = l.Deadline.Format(time.DateOnly)
		}
		batch = append(batch, event)
	}

	if err := o.deps.Publisher.PublishListings(ctx, batch...); err != nil {
		slog.Warn("Failed to publish listing events", "run", runID, "count", len(batch), "error", err)
	}
}

// KnownListings projects stored listings to the compact form sent to the
// deduplication prompt.
func KnownListings(listings []database.Listing) []ai.KnownListing {
	known := make([]ai.KnownListing, 0, len(listings))
	for _, l := range listings {
		k := ai.KnownListing{
			Title:          l.Title,
			Description:    clip(l.Description, knownDescriptionLimit),
			ApplicationURL: l.ApplicationURL,
			Location:       l.Location,
			CategoryID:     l.CategoryID,
			Tags:           l.Tags,
		}
		if l.Deadline != nil {
			k.Deadline = l.Deadline.Format(time.DateOnly)
		}
		known = append(known, k)
	}
	return known
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
