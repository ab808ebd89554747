package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/lysyi3m/opp-comb/app/ai"
	"github.com/lysyi3m/opp-comb/app/crawl"
	"github.com/lysyi3m/opp-comb/app/database"
	"github.com/lysyi3m/opp-comb/app/seed"
)

// MockRegistry is an in-memory SourceRegistry backed by a MockListingStore.
type MockRegistry struct {
	mu       sync.Mutex
	targets  []database.CrawlTarget
	fetched  map[string]time.Time
	labels   map[string]string
	listings *MockListingStore
	err      error
}

var _ SourceRegistry = (*MockRegistry)(nil)

func NewMockRegistry(listings *MockListingStore, targets ...database.CrawlTarget) *MockRegistry {
	return &MockRegistry{
		targets:  targets,
		fetched:  make(map[string]time.Time),
		labels:   make(map[string]string),
		listings: listings,
	}
}

func (m *MockRegistry) ListActive(ctx context.Context) ([]database.CrawlTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	active := []database.CrawlTarget{}
	for _, t := range m.targets {
		if t.IsActive {
			active = append(active, t)
		}
	}
	return active, nil
}

func (m *MockRegistry) MarkFetched(ctx context.Context, id string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetched[id] = ts
	return nil
}

func (m *MockRegistry) Update(ctx context.Context, id string, patch database.TargetPatch) (*database.CrawlTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if patch.Label != nil {
		m.labels[id] = *patch.Label
	}
	return &database.CrawlTarget{ID: id}, nil
}

func (m *MockRegistry) RecentListings(ctx context.Context, limit int) ([]database.Listing, error) {
	if m.listings == nil {
		return []database.Listing{}, nil
	}
	return m.listings.Recent(limit), nil
}

func (m *MockRegistry) FetchedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fetched)
}

type MockCategories struct {
	categories []database.Category
	err        error
}

func (m *MockCategories) GetCategories(ctx context.Context) ([]database.Category, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.categories, nil
}

func defaultCategories() *MockCategories {
	return &MockCategories{categories: []database.Category{
		{ID: "jobs", Name: "Jobs", Slug: "jobs"},
		{ID: "grants", Name: "Grants", Slug: "grants"},
		{ID: database.UncategorizedID, Name: "Other", Slug: "other"},
	}}
}

// MockListingStore mimics the foreign key on category_id.
type MockListingStore struct {
	mu         sync.Mutex
	listings   []database.Listing
	categories map[string]bool
}

var _ ListingStore = (*MockListingStore)(nil)

func NewMockListingStore(categoryIDs ...string) *MockListingStore {
	known := map[string]bool{database.UncategorizedID: true}
	for _, id := range categoryIDs {
		known[id] = true
	}
	return &MockListingStore{categories: known}
}

func (m *MockListingStore) CreateListing(ctx context.Context, listing *database.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.categories[listing.CategoryID] {
		return database.ErrUnknownCategory
	}
	m.listings = append(m.listings, *listing)
	return nil
}

func (m *MockListingStore) Recent(limit int) []database.Listing {
	m.mu.Lock()
	defer m.mu.Unlock()
	recent := []database.Listing{}
	for i := len(m.listings) - 1; i >= 0 && len(recent) < limit; i-- {
		recent = append(recent, m.listings[i])
	}
	return recent
}

func (m *MockListingStore) All() []database.Listing {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]database.Listing(nil), m.listings...)
}

// MockFetcher serves fixed bodies per URL; URLs listed in failures return a FetchError.
type MockFetcher struct {
	mu       sync.Mutex
	pages    map[string]string
	failures map[string]bool
	calls    []string
	hook     func(url string)
}

func NewMockFetcher() *MockFetcher {
	return &MockFetcher{pages: make(map[string]string), failures: make(map[string]bool)}
}

func (m *MockFetcher) Fetch(ctx context.Context, url string) (*crawl.Page, error) {
	m.mu.Lock()
	m.calls = append(m.calls, url)
	hook := m.hook
	m.mu.Unlock()

	if hook != nil {
		hook(url)
	}
	if m.failures[url] {
		return nil, &crawl.FetchError{URL: url, Cause: errors.New("connection refused")}
	}
	return &crawl.Page{
		URL:         url,
		FinalURL:    url,
		StatusCode:  200,
		ContentType: "text/html; charset=utf-8",
		Body:        []byte(m.pages[url]),
		FetchedAt:   time.Now().UTC(),
	}, nil
}

func (m *MockFetcher) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

type MockPreparer struct{}

func (MockPreparer) Prepare(page *crawl.Page, platform string) crawl.Prepared {
	return crawl.Prepared{Markup: string(page.Body), Title: "Fixture"}
}

// MockExtractor returns the candidates registered for the markup it receives.
type MockExtractor struct {
	byMarkup map[string][]ai.Candidate
	err      error
}

func (m *MockExtractor) Extract(ctx context.Context, markup string, categories []ai.Category) ([]ai.Candidate, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.byMarkup[markup], nil
}

// MockDeduper drops incoming candidates whose title is already known.
type MockDeduper struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (m *MockDeduper) Dedupe(ctx context.Context, incoming []ai.Candidate, existing []ai.KnownListing) ([]ai.Candidate, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	known := make(map[string]bool, len(existing))
	for _, k := range existing {
		known[strings.ToLower(k.Title)] = true
	}
	unique := []ai.Candidate{}
	for _, c := range incoming {
		if !known[strings.ToLower(c.Title)] {
			unique = append(unique, c)
		}
	}
	return unique, nil
}

// ScriptedGenerator answers extraction and deduplication prompts differently.
type ScriptedGenerator struct {
	mu           sync.Mutex
	ExtractReply string
	DedupeReply  string
	DedupeErr    error
	Prompts      []string
}

func (g *ScriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Prompts = append(g.Prompts, prompt)

	if strings.Contains(prompt, "List A (existing):") {
		return g.DedupeReply, g.DedupeErr
	}
	return g.ExtractReply, nil
}

type MockFilters map[string][]seed.Filter

func (m MockFilters) FiltersFor(url string) []seed.Filter {
	return m[url]
}

// FakeTicker is driven manually by tests.
type FakeTicker struct {
	ch      chan time.Time
	stopped bool
	mu      sync.Mutex
}

func NewFakeTicker() *FakeTicker {
	return &FakeTicker{ch: make(chan time.Time)}
}

func (f *FakeTicker) C() <-chan time.Time { return f.ch }

func (f *FakeTicker) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *FakeTicker) Tick() {
	f.ch <- time.Now()
}

func candidate(title, url string) ai.Candidate {
	return ai.Candidate{
		Title:          title,
		Description:    title + " description",
		ApplicationURL: url,
		CategoryID:     "jobs",
	}
}

func activeTarget(id, url string) database.CrawlTarget {
	return database.CrawlTarget{ID: id, URL: url, IsActive: true, Frequency: "daily"}
}
