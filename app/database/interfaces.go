package database

import (
	"context"
	"time"
)

// Lookups return (nil, nil) when the record does not exist.
type TargetRepository interface {
	GetTarget(ctx context.Context, id string) (*CrawlTarget, error)
	GetTargetByURL(ctx context.Context, url string) (*CrawlTarget, error)
	GetTargets(ctx context.Context, limit, offset int) ([]CrawlTarget, error)
	GetActiveTargets(ctx context.Context) ([]CrawlTarget, error)
	GetTargetCount(ctx context.Context) (int, error)

	CreateTarget(ctx context.Context, target *CrawlTarget) error
	UpdateTarget(ctx context.Context, id string, patch TargetPatch) (bool, error)
	UpdateLastScraped(ctx context.Context, id string, at time.Time) (bool, error)
	SetTargetActive(ctx context.Context, id string, active bool) (bool, error)
	DeleteTarget(ctx context.Context, id string) (bool, error)
}

type ListingRepository interface {
	CreateListing(ctx context.Context, listing *Listing) error
	GetRecentListings(ctx context.Context, limit int) ([]Listing, error)
	GetListingStats(ctx context.Context) (ListingStats, error)
}

type CategoryRepository interface {
	GetCategories(ctx context.Context) ([]Category, error)
}
