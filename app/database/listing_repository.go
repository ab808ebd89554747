package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

var _ ListingRepository = (*ListingRepo)(nil)

// ListingRepo handles database operations for stored opportunity listings
type ListingRepo struct {
	db *DB
}

func NewListingRepository(db *DB) *ListingRepo {
	return &ListingRepo{db: db}
}

// CreateListing inserts one listing. A category_id without a matching
// category yields ErrUnknownCategory.
func (r *ListingRepo) CreateListing(ctx context.Context, l *Listing) error {
	tags := l.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	_, err = r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO opportunities (id, title, description, location, deadline, source_url, application_url,
			category_id, thumbnail_url, tags, is_approved, source_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), l.ID, l.Title, l.Description, l.Location, nullTime(l.Deadline), l.SourceURL, l.ApplicationURL,
		l.CategoryID, l.ThumbnailURL, string(tagsJSON), l.IsApproved, string(l.SourceType),
		l.CreatedAt.UTC(), l.UpdatedAt.UTC())

	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("failed to create listing with category %q: %w", l.CategoryID, ErrUnknownCategory)
		}
		return fmt.Errorf("failed to create listing: %w", err)
	}

	return nil
}

// GetRecentListings returns the newest listings, most recent first.
func (r *ListingRepo) GetRecentListings(ctx context.Context, limit int) ([]Listing, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
		SELECT id, title, description, location, deadline, source_url, application_url,
			category_id, thumbnail_url, tags, is_approved, source_type, created_at, updated_at
		FROM opportunities
		ORDER BY created_at DESC, id
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent listings: %w", err)
	}
	defer rows.Close()

	listings := []Listing{}
	for rows.Next() {
		var l Listing
		var deadline sql.NullTime
		var tagsJSON, sourceType string

		err := rows.Scan(&l.ID, &l.Title, &l.Description, &l.Location, &deadline, &l.SourceURL,
			&l.ApplicationURL, &l.CategoryID, &l.ThumbnailURL, &tagsJSON, &l.IsApproved, &sourceType,
			&l.CreatedAt, &l.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}

		if deadline.Valid {
			d := deadline.Time
			l.Deadline = &d
		}
		l.SourceType = SourceType(sourceType)

		if err := json.Unmarshal([]byte(tagsJSON), &l.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags for listing %s: %w", l.ID, err)
		}

		listings = append(listings, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate listings: %w", err)
	}

	return listings, nil
}

// GetListingStats returns total, pending approval and automated listing counts
func (r *ListingRepo) GetListingStats(ctx context.Context) (ListingStats, error) {
	var stats ListingStats

	err := r.db.QueryRowContext(ctx, r.db.Rebind(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN is_approved = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN source_type = ? THEN 1 ELSE 0 END), 0)
		FROM opportunities
	`), false, string(SourceTypeAutomated)).Scan(&stats.Total, &stats.Pending, &stats.Automated)
	if err != nil {
		return stats, fmt.Errorf("failed to get listing stats: %w", err)
	}

	return stats, nil
}
