package database

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newTarget(id, url string, createdAt time.Time) *CrawlTarget {
	return &CrawlTarget{
		ID:        id,
		URL:       url,
		IsActive:  true,
		Frequency: "daily",
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestTargetRepoCreateAndGet(t *testing.T) {
	repo := NewTargetRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	target := newTarget("t-1", "https://example.org/jobs", now)
	target.Label = "Example jobs"
	if err := repo.CreateTarget(ctx, target); err != nil {
		t.Fatalf("Failed to create target: %v", err)
	}

	got, err := repo.GetTarget(ctx, "t-1")
	if err != nil {
		t.Fatalf("Failed to get target: %v", err)
	}
	if got == nil {
		t.Fatal("Expected target, got nil")
	}
	if got.URL != "https://example.org/jobs" {
		t.Errorf("Expected URL 'https://example.org/jobs', got '%s'", got.URL)
	}
	if got.Label != "Example jobs" {
		t.Errorf("Expected label 'Example jobs', got '%s'", got.Label)
	}
	if got.Platform != "" {
		t.Errorf("Expected empty platform, got '%s'", got.Platform)
	}
	if !got.IsActive {
		t.Error("Expected target to be active")
	}
	if got.LastScrapedAt != nil {
		t.Errorf("Expected nil last scraped time, got %v", got.LastScrapedAt)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("Expected created_at %v, got %v", now, got.CreatedAt)
	}

	byURL, err := repo.GetTargetByURL(ctx, "https://example.org/jobs")
	if err != nil || byURL == nil || byURL.ID != "t-1" {
		t.Errorf("Expected lookup by URL to return t-1, got %v (err %v)", byURL, err)
	}

	missing, err := repo.GetTarget(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("Expected (nil, nil) for missing target, got (%v, %v)", missing, err)
	}
}

func TestTargetRepoDuplicateURL(t *testing.T) {
	repo := NewTargetRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repo.CreateTarget(ctx, newTarget("a", "https://example.org", now)); err != nil {
		t.Fatalf("Failed to create target: %v", err)
	}

	err := repo.CreateTarget(ctx, newTarget("b", "https://example.org", now))
	if !errors.Is(err, ErrDuplicateURL) {
		t.Errorf("Expected ErrDuplicateURL, got %v", err)
	}
}

func TestTargetRepoActiveTargetsNewestFirst(t *testing.T) {
	repo := NewTargetRepository(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, url := range []string{"https://a.example", "https://b.example", "https://c.example"} {
		target := newTarget(string(rune('a'+i)), url, base.Add(time.Duration(i)*time.Hour))
		if err := repo.CreateTarget(ctx, target); err != nil {
			t.Fatalf("Failed to create target: %v", err)
		}
	}

	if ok, err := repo.SetTargetActive(ctx, "b", false); err != nil || !ok {
		t.Fatalf("Failed to deactivate target: %v", err)
	}

	active, err := repo.GetActiveTargets(ctx)
	if err != nil {
		t.Fatalf("Failed to list active targets: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("Expected 2 active targets, got %d", len(active))
	}
	if active[0].ID != "c" || active[1].ID != "a" {
		t.Errorf("Expected order [c a], got [%s %s]", active[0].ID, active[1].ID)
	}

	all, err := repo.GetTargets(ctx, 2, 1)
	if err != nil {
		t.Fatalf("Failed to page targets: %v", err)
	}
	if len(all) != 2 || all[0].ID != "b" {
		t.Errorf("Expected page starting at b, got %v", all)
	}

	count, err := repo.GetTargetCount(ctx)
	if err != nil || count != 3 {
		t.Errorf("Expected count 3, got %d (err %v)", count, err)
	}
}

func TestTargetRepoMutations(t *testing.T) {
	repo := NewTargetRepository(newTestDB(t))
	ctx := context.Background()

	if err := repo.CreateTarget(ctx, newTarget("t-1", "https://example.org", time.Now().UTC())); err != nil {
		t.Fatalf("Failed to create target: %v", err)
	}

	scraped := time.Date(2025, 5, 5, 8, 30, 0, 0, time.UTC)
	if ok, err := repo.UpdateLastScraped(ctx, "t-1", scraped); err != nil || !ok {
		t.Fatalf("Failed to mark scraped: %v", err)
	}

	weekly := "weekly"
	label := "Renamed"
	if ok, err := repo.UpdateTarget(ctx, "t-1", TargetPatch{Label: &label, Frequency: &weekly}); err != nil || !ok {
		t.Fatalf("Failed to update target: %v", err)
	}

	got, _ := repo.GetTarget(ctx, "t-1")
	if got.LastScrapedAt == nil || !got.LastScrapedAt.Equal(scraped) {
		t.Errorf("Expected last scraped %v, got %v", scraped, got.LastScrapedAt)
	}
	if got.Frequency != "weekly" || got.Label != "Renamed" {
		t.Errorf("Expected weekly/Renamed, got %s/%s", got.Frequency, got.Label)
	}

	if ok, err := repo.UpdateLastScraped(ctx, "missing", scraped); err != nil || ok {
		t.Errorf("Expected no rows affected for missing target, got %v (err %v)", ok, err)
	}

	if ok, err := repo.DeleteTarget(ctx, "t-1"); err != nil || !ok {
		t.Fatalf("Failed to delete target: %v", err)
	}
	if ok, err := repo.DeleteTarget(ctx, "t-1"); err != nil || ok {
		t.Errorf("Expected second delete to affect nothing, got %v (err %v)", ok, err)
	}
}

func TestTargetRepoPostgresPlaceholders(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer mockDB.Close()

	repo := NewTargetRepository(&DB{DB: mockDB, Driver: DriverPostgres})

	mock.ExpectExec(regexp.QuoteMeta("UPDATE crawl_targets SET is_active = $1, updated_at = $2 WHERE id = $3")).
		WithArgs(false, sqlmock.AnyArg(), "t-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.SetTargetActive(context.Background(), "t-1", false)
	if err != nil || !ok {
		t.Errorf("Expected update to succeed, got %v (err %v)", ok, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestTargetRepoQueryFailure(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer mockDB.Close()

	repo := NewTargetRepository(&DB{DB: mockDB, Driver: DriverSQLite})

	mock.ExpectQuery("SELECT .* FROM crawl_targets").WillReturnError(errors.New("connection reset"))

	if _, err := repo.GetActiveTargets(context.Background()); err == nil {
		t.Error("Expected error when the query fails")
	}
}
