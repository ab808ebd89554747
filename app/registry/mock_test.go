package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/lysyi3m/opp-comb/app/database"
)

type MockTargetRepository struct {
	mu      sync.Mutex
	targets map[string]*database.CrawlTarget
	err     error
}

func NewMockTargetRepository() *MockTargetRepository {
	return &MockTargetRepository{targets: make(map[string]*database.CrawlTarget)}
}

func (m *MockTargetRepository) GetTarget(ctx context.Context, id string) (*database.CrawlTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if t, ok := m.targets[id]; ok {
		c := *t
		return &c, nil
	}
	return nil, nil
}

func (m *MockTargetRepository) GetTargetByURL(ctx context.Context, url string) (*database.CrawlTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, t := range m.targets {
		if t.URL == url {
			c := *t
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MockTargetRepository) sorted() []database.CrawlTarget {
	all := make([]database.CrawlTarget, 0, len(m.targets))
	for _, t := range m.targets {
		all = append(all, *t)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return all
}

func (m *MockTargetRepository) GetTargets(ctx context.Context, limit, offset int) ([]database.CrawlTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted()
	if offset >= len(all) {
		return []database.CrawlTarget{}, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], nil
}

func (m *MockTargetRepository) GetActiveTargets(ctx context.Context) ([]database.CrawlTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	active := []database.CrawlTarget{}
	for _, t := range m.sorted() {
		if t.IsActive {
			active = append(active, t)
		}
	}
	return active, nil
}

func (m *MockTargetRepository) GetTargetCount(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.targets), nil
}

func (m *MockTargetRepository) CreateTarget(ctx context.Context, target *database.CrawlTarget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, t := range m.targets {
		if t.URL == target.URL {
			return database.ErrDuplicateURL
		}
	}
	c := *target
	m.targets[target.ID] = &c
	return nil
}

func (m *MockTargetRepository) UpdateTarget(ctx context.Context, id string, patch database.TargetPatch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[id]
	if !ok {
		return false, nil
	}
	if patch.Label != nil {
		t.Label = *patch.Label
	}
	if patch.Platform != nil {
		t.Platform = *patch.Platform
	}
	if patch.Frequency != nil {
		t.Frequency = *patch.Frequency
	}
	return true, nil
}

func (m *MockTargetRepository) UpdateLastScraped(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[id]
	if !ok {
		return false, nil
	}
	t.LastScrapedAt = &at
	return true, nil
}

func (m *MockTargetRepository) SetTargetActive(ctx context.Context, id string, active bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[id]
	if !ok {
		return false, nil
	}
	t.IsActive = active
	return true, nil
}

func (m *MockTargetRepository) DeleteTarget(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.targets[id]; !ok {
		return false, nil
	}
	delete(m.targets, id)
	return true, nil
}

type MockListingRepository struct {
	listings []database.Listing
	err      error
}

func (m *MockListingRepository) CreateListing(ctx context.Context, listing *database.Listing) error {
	m.listings = append(m.listings, *listing)
	return nil
}

func (m *MockListingRepository) GetRecentListings(ctx context.Context, limit int) ([]database.Listing, error) {
	if m.err != nil {
		return nil, m.err
	}
	if limit < len(m.listings) {
		return m.listings[:limit], nil
	}
	return m.listings, nil
}

func (m *MockListingRepository) GetListingStats(ctx context.Context) (database.ListingStats, error) {
	return database.ListingStats{Total: len(m.listings)}, nil
}

type MockProber struct {
	err   error
	calls []string
}

func (m *MockProber) Probe(ctx context.Context, url string) error {
	m.calls = append(m.calls, url)
	return m.err
}

var errProbe = errors.New("dial tcp: connection refused")
