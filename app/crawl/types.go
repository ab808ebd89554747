package crawl

import (
	"fmt"
	"time"
)

type Page struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte // UTF-8
	Truncated   bool
	FetchedAt   time.Time
}

// FetchError reports any transport failure, timeout or non-2xx response for a page.
type FetchError struct {
	URL   string
	Cause error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.URL, e.Cause)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// Prepared is the markup handed to the extraction prompt.
type Prepared struct {
	Markup    string
	Title     string
	Feed      bool
	Truncated bool
}
