package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/lysyi3m/opp-comb/app/ai"
	"github.com/lysyi3m/opp-comb/app/database"
)

var deadlineLayouts = []string{
	time.DateOnly,
	time.RFC3339,
	"2006-01-02T15:04:05",
	time.DateTime,
}

type PersistFailure struct {
	Title string
	Err   error
}

type PersistResult struct {
	Stored   []database.Listing
	Failures []PersistFailure
}

// Persister writes candidates one by one; a failed insert does not affect the others.
type Persister struct {
	listings ListingStore
	now      func() time.Time
}

func NewPersister(listings ListingStore) *Persister {
	return &Persister{
		listings: listings,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *Persister) Persist(ctx context.Context, sourceURL string, candidates []ai.Candidate) PersistResult {
	result := PersistResult{Stored: []database.Listing{}}
	lower := cases.Lower(language.Und)

	for _, c := range candidates {
		now := p.now()
		listing := database.Listing{
			ID:             uuid.NewString(),
			Title:          c.Title,
			Description:    c.Description,
			Location:       c.Location,
			Deadline:       CoerceDeadline(c),
			SourceURL:      sourceURL,
			ApplicationURL: c.ApplicationURL,
			CategoryID:     c.CategoryID,
			ThumbnailURL:   c.ThumbnailURL,
			Tags:           normalizeTags(lower, c.Tags),
			IsApproved:     false,
			SourceType:     database.SourceTypeAutomated,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if strings.TrimSpace(listing.CategoryID) == "" {
			listing.CategoryID = database.UncategorizedID
		}

		if err := p.listings.CreateListing(ctx, &listing); err != nil {
			slog.Warn("Failed to store listing", "title", c.Title, "category", listing.CategoryID, "source", sourceURL, "error", err)
			result.Failures = append(result.Failures, PersistFailure{Title: c.Title, Err: err})
			continue
		}

		result.Stored = append(result.Stored, listing)
	}

	return result
}

// CoerceDeadline turns the raw deadline into a date. Anything other than an
// ISO date or timestamp string means no deadline.
func CoerceDeadline(c ai.Candidate) *time.Time {
	s, ok := c.DeadlineString()
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)

	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d
		}
	}

	return nil
}

func normalizeTags(lower cases.Caser, tags []string) []string {
	seen := make(map[string]bool, len(tags))
	normalized := make([]string, 0, len(tags))

	for _, tag := range tags {
		tag = strings.TrimSpace(lower.String(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		normalized = append(normalized, tag)
	}

	return normalized
}
