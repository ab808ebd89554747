package pipeline

import (
	"context"
	"time"

	"github.com/lysyi3m/opp-comb/app/ai"
	"github.com/lysyi3m/opp-comb/app/crawl"
	"github.com/lysyi3m/opp-comb/app/database"
	"github.com/lysyi3m/opp-comb/app/seed"
	"github.com/lysyi3m/opp-comb/app/status"
)

// SourceRegistry is the part of the registry a run needs.
type SourceRegistry interface {
	ListActive(ctx context.Context) ([]database.CrawlTarget, error)
	MarkFetched(ctx context.Context, id string, ts time.Time) error
	Update(ctx context.Context, id string, patch database.TargetPatch) (*database.CrawlTarget, error)
	RecentListings(ctx context.Context, limit int) ([]database.Listing, error)
}

type CategorySource interface {
	GetCategories(ctx context.Context) ([]database.Category, error)
}

type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*crawl.Page, error)
}

type MarkupPreparer interface {
	Prepare(page *crawl.Page, platform string) crawl.Prepared
}

type CandidateExtractor interface {
	Extract(ctx context.Context, markup string, categories []ai.Category) ([]ai.Candidate, error)
}

type CandidateDeduper interface {
	Dedupe(ctx context.Context, incoming []ai.Candidate, existing []ai.KnownListing) ([]ai.Candidate, error)
}

type ListingStore interface {
	CreateListing(ctx context.Context, listing *database.Listing) error
}

// FilterSource supplies per-source keyword filters, keyed by target URL.
type FilterSource interface {
	FiltersFor(url string) []seed.Filter
}

// Runner is what the scheduler and the API drive.
type Runner interface {
	Run(ctx context.Context, trigger status.Trigger) (*status.RunReport, error)
	// Prepare takes the run lock and returns the run body.
	Prepare(ctx context.Context, trigger status.Trigger) (func() (*status.RunReport, error), error)
	Halt() bool
	Running() bool
}
