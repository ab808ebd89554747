package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

var _ TargetRepository = (*TargetRepo)(nil)

// TargetRepo handles database operations for crawl targets
type TargetRepo struct {
	db *DB
}

func NewTargetRepository(db *DB) *TargetRepo {
	return &TargetRepo{db: db}
}

const targetColumns = `id, url, COALESCE(label, ''), COALESCE(platform, ''), is_active, frequency,
	last_scraped_at, created_at, updated_at`

func scanTarget(row interface{ Scan(...any) error }) (*CrawlTarget, error) {
	var t CrawlTarget
	var lastScraped sql.NullTime

	err := row.Scan(&t.ID, &t.URL, &t.Label, &t.Platform, &t.IsActive, &t.Frequency,
		&lastScraped, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if lastScraped.Valid {
		ts := lastScraped.Time
		t.LastScrapedAt = &ts
	}

	return &t, nil
}

func (r *TargetRepo) GetTarget(ctx context.Context, id string) (*CrawlTarget, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT `+targetColumns+` FROM crawl_targets WHERE id = ?`), id)

	t, err := scanTarget(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl target: %w", err)
	}

	return t, nil
}

func (r *TargetRepo) GetTargetByURL(ctx context.Context, url string) (*CrawlTarget, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT `+targetColumns+` FROM crawl_targets WHERE url = ?`), url)

	t, err := scanTarget(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl target by url: %w", err)
	}

	return t, nil
}

func (r *TargetRepo) GetTargets(ctx context.Context, limit, offset int) ([]CrawlTarget, error) {
	return r.queryTargets(ctx, `SELECT `+targetColumns+` FROM crawl_targets
		ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, limit, offset)
}

// GetActiveTargets returns active targets, newest first.
func (r *TargetRepo) GetActiveTargets(ctx context.Context) ([]CrawlTarget, error) {
	return r.queryTargets(ctx, `SELECT `+targetColumns+` FROM crawl_targets
		WHERE is_active = ? ORDER BY created_at DESC, id`, true)
}

func (r *TargetRepo) queryTargets(ctx context.Context, query string, args ...any) ([]CrawlTarget, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query crawl targets: %w", err)
	}
	defer rows.Close()

	targets := []CrawlTarget{}
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan crawl target: %w", err)
		}
		targets = append(targets, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate crawl targets: %w", err)
	}

	return targets, nil
}

func (r *TargetRepo) GetTargetCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM crawl_targets`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count crawl targets: %w", err)
	}
	return count, nil
}

// CreateTarget inserts the target; the caller assigns ID and timestamps.
// A URL collision yields ErrDuplicateURL.
func (r *TargetRepo) CreateTarget(ctx context.Context, t *CrawlTarget) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO crawl_targets (id, url, label, platform, is_active, frequency, last_scraped_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), t.ID, t.URL, nullString(t.Label), nullString(t.Platform), t.IsActive, t.Frequency,
		nullTime(t.LastScrapedAt), t.CreatedAt.UTC(), t.UpdatedAt.UTC())

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to create crawl target %s: %w", t.URL, ErrDuplicateURL)
		}
		return fmt.Errorf("failed to create crawl target: %w", err)
	}

	return nil
}

func (r *TargetRepo) UpdateTarget(ctx context.Context, id string, patch TargetPatch) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE crawl_targets
		SET label = COALESCE(?, label), platform = COALESCE(?, platform),
			frequency = COALESCE(?, frequency), updated_at = ?
		WHERE id = ?
	`), patch.Label, patch.Platform, patch.Frequency, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("failed to update crawl target: %w", err)
	}

	return affected(res)
}

func (r *TargetRepo) UpdateLastScraped(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE crawl_targets SET last_scraped_at = ?, updated_at = ? WHERE id = ?
	`), at.UTC(), time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("failed to update last scraped time: %w", err)
	}

	return affected(res)
}

func (r *TargetRepo) SetTargetActive(ctx context.Context, id string, active bool) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE crawl_targets SET is_active = ?, updated_at = ? WHERE id = ?
	`), active, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("failed to set crawl target active state: %w", err)
	}

	return affected(res)
}

func (r *TargetRepo) DeleteTarget(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM crawl_targets WHERE id = ?`), id)
	if err != nil {
		return false, fmt.Errorf("failed to delete crawl target: %w", err)
	}

	return affected(res)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
