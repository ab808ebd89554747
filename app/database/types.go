package database

import (
	"time"
)

// UncategorizedID is the category the extraction prompt falls back to.
const UncategorizedID = "OTHER"

type SourceType string

const (
	SourceTypeAutomated SourceType = "automated"
	SourceTypeManual    SourceType = "manual"
)

type CrawlTarget struct {
	ID            string     `json:"id"`
	URL           string     `json:"url"`
	Label         string     `json:"label"`
	Platform      string     `json:"platform"`
	IsActive      bool       `json:"is_active"`
	Frequency     string     `json:"frequency"`
	LastScrapedAt *time.Time `json:"last_scraped_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TargetPatch carries the operator-editable fields; nil fields are left unchanged.
type TargetPatch struct {
	Label     *string `json:"label"`
	Platform  *string `json:"platform"`
	Frequency *string `json:"frequency"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type Listing struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Location       string     `json:"location"`
	Deadline       *time.Time `json:"deadline"`
	SourceURL      string     `json:"source_url"`
	ApplicationURL string     `json:"application_url"`
	CategoryID     string     `json:"category_id"`
	ThumbnailURL   string     `json:"thumbnail_url"`
	Tags           []string   `json:"tags"`
	IsApproved     bool       `json:"is_approved"`
	SourceType     SourceType `json:"source_type"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type ListingStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Automated int `json:"automated"`
}
