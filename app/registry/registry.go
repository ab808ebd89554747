// Package registry manages the crawl targets visited by the pipeline and the
// bounded snapshot of stored listings used for deduplication.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/lysyi3m/opp-comb/app/apperr"
	"github.com/lysyi3m/opp-comb/app/database"
)

// DefaultFrequency has no cadence, so the target is fetched on every tick.
const DefaultFrequency = "always"

// Prober checks that a URL answers before it is registered.
type Prober interface {
	Probe(ctx context.Context, url string) error
}

type NewTarget struct {
	URL       string `json:"url" yaml:"url"`
	Label     string `json:"label" yaml:"label"`
	Platform  string `json:"platform" yaml:"platform"`
	Frequency string `json:"frequency" yaml:"frequency"`
	Active    *bool  `json:"is_active" yaml:"active"`
}

type TargetPage struct {
	Targets []database.CrawlTarget `json:"targets"`
	Total   int                    `json:"total"`
	Page    int                    `json:"page"`
	PerPage int                    `json:"per_page"`
}

type Registry struct {
	targets  database.TargetRepository
	listings database.ListingRepository
	prober   Prober
	now      func() time.Time
}

func New(targets database.TargetRepository, listings database.ListingRepository, prober Prober) *Registry {
	return &Registry{
		targets:  targets,
		listings: listings,
		prober:   prober,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ListActive returns the active crawl targets, newest first.
func (r *Registry) ListActive(ctx context.Context) ([]database.CrawlTarget, error) {
	targets, err := r.targets.GetActiveTargets(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list active crawl targets")
	}
	return targets, nil
}

// Create registers a new crawl target after checking that the URL is not
// taken and that it answers a HEAD probe.
func (r *Registry) Create(ctx context.Context, in NewTarget) (*database.CrawlTarget, error) {
	target, err := r.newTarget(in)
	if err != nil {
		return nil, err
	}

	existing, err := r.targets.GetTargetByURL(ctx, target.URL)
	if err != nil {
		return nil, errors.Wrap(err, "check existing crawl target")
	}
	if existing != nil {
		return nil, duplicateError(target.URL)
	}

	if r.prober != nil {
		if err := r.prober.Probe(ctx, target.URL); err != nil {
			return nil, apperr.WithHint(
				apperr.Mark(errors.Wrapf(err, "probe %s", target.URL), apperr.ErrUnreachableSource),
				fmt.Sprintf("No response received from URL %q", target.URL))
		}
	}

	if err := r.targets.CreateTarget(ctx, target); err != nil {
		if errors.Is(err, database.ErrDuplicateURL) {
			return nil, duplicateError(target.URL)
		}
		return nil, errors.Wrap(err, "create crawl target")
	}

	slog.Info("Crawl target registered", "id", target.ID, "url", target.URL, "frequency", target.Frequency)

	return target, nil
}

// Register creates the target without probing it, or returns the existing
// target with the same URL. The boolean reports whether a row was created.
func (r *Registry) Register(ctx context.Context, in NewTarget) (*database.CrawlTarget, bool, error) {
	target, err := r.newTarget(in)
	if err != nil {
		return nil, false, err
	}

	existing, err := r.targets.GetTargetByURL(ctx, target.URL)
	if err != nil {
		return nil, false, errors.Wrap(err, "check existing crawl target")
	}
	if existing != nil {
		return existing, false, nil
	}

	if err := r.targets.CreateTarget(ctx, target); err != nil {
		if errors.Is(err, database.ErrDuplicateURL) {
			existing, lookupErr := r.targets.GetTargetByURL(ctx, target.URL)
			if lookupErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, errors.Wrap(err, "register crawl target")
	}

	return target, true, nil
}

func (r *Registry) Get(ctx context.Context, id string) (*database.CrawlTarget, error) {
	target, err := r.targets.GetTarget(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get crawl target")
	}
	if target == nil {
		return nil, notFoundError(id)
	}
	return target, nil
}

func (r *Registry) List(ctx context.Context, page, perPage int) (*TargetPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	targets, err := r.targets.GetTargets(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, errors.Wrap(err, "list crawl targets")
	}

	total, err := r.targets.GetTargetCount(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "count crawl targets")
	}

	return &TargetPage{Targets: targets, Total: total, Page: page, PerPage: perPage}, nil
}

// MarkFetched records a successful fetch of the target at ts.
func (r *Registry) MarkFetched(ctx context.Context, id string, ts time.Time) error {
	ok, err := r.targets.UpdateLastScraped(ctx, id, ts)
	if err != nil {
		return errors.Wrap(err, "mark crawl target fetched")
	}
	if !ok {
		return notFoundError(id)
	}
	return nil
}

func (r *Registry) SetActive(ctx context.Context, id string, active bool) (*database.CrawlTarget, error) {
	ok, err := r.targets.SetTargetActive(ctx, id, active)
	if err != nil {
		return nil, errors.Wrap(err, "set crawl target active")
	}
	if !ok {
		return nil, notFoundError(id)
	}

	slog.Info("Crawl target state changed", "id", id, "active", active)

	return r.Get(ctx, id)
}

func (r *Registry) Toggle(ctx context.Context, id string) (*database.CrawlTarget, error) {
	target, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.SetActive(ctx, id, !target.IsActive)
}

func (r *Registry) Update(ctx context.Context, id string, patch database.TargetPatch) (*database.CrawlTarget, error) {
	if patch.Frequency != nil {
		freq := normalizeFrequency(*patch.Frequency)
		patch.Frequency = &freq
	}

	ok, err := r.targets.UpdateTarget(ctx, id, patch)
	if err != nil {
		return nil, errors.Wrap(err, "update crawl target")
	}
	if !ok {
		return nil, notFoundError(id)
	}

	return r.Get(ctx, id)
}

func (r *Registry) Delete(ctx context.Context, id string) error {
	ok, err := r.targets.DeleteTarget(ctx, id)
	if err != nil {
		return errors.Wrap(err, "delete crawl target")
	}
	if !ok {
		return notFoundError(id)
	}

	slog.Info("Crawl target deleted", "id", id)

	return nil
}

// RecentListings returns up to limit of the most recently stored listings.
func (r *Registry) RecentListings(ctx context.Context, limit int) ([]database.Listing, error) {
	listings, err := r.listings.GetRecentListings(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(err, "load recent listings")
	}
	return listings, nil
}

func (r *Registry) ListingStats(ctx context.Context) (database.ListingStats, error) {
	stats, err := r.listings.GetListingStats(ctx)
	if err != nil {
		return stats, errors.Wrap(err, "load listing stats")
	}
	return stats, nil
}

func (r *Registry) TargetCount(ctx context.Context) (int, error) {
	count, err := r.targets.GetTargetCount(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "count crawl targets")
	}
	return count, nil
}

func (r *Registry) newTarget(in NewTarget) (*database.CrawlTarget, error) {
	rawURL := strings.TrimSpace(in.URL)
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}

	active := true
	if in.Active != nil {
		active = *in.Active
	}

	now := r.now()
	return &database.CrawlTarget{
		ID:        uuid.NewString(),
		URL:       rawURL,
		Label:     strings.TrimSpace(in.Label),
		Platform:  strings.ToLower(strings.TrimSpace(in.Platform)),
		IsActive:  active,
		Frequency: normalizeFrequency(in.Frequency),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func validateURL(rawURL string) error {
	if rawURL == "" {
		return apperr.WithHint(errors.Wrap(apperr.ErrInvalidInput, "empty url"), "URL is required")
	}

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperr.WithHint(errors.Wrapf(apperr.ErrInvalidInput, "invalid url %q", rawURL),
			"URL must be an absolute http(s) address")
	}

	return nil
}

func normalizeFrequency(freq string) string {
	freq = strings.ToLower(strings.TrimSpace(freq))
	if freq == "" {
		return DefaultFrequency
	}
	return freq
}

func duplicateError(rawURL string) error {
	return apperr.WithHint(errors.Wrapf(apperr.ErrDuplicateSource, "crawl target %s", rawURL),
		"A crawl target with this URL already exists")
}

func notFoundError(id string) error {
	return apperr.WithHint(errors.Wrapf(apperr.ErrNotFound, "crawl target %s", id), "Crawl target not found")
}
