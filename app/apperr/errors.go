// Package apperr holds the sentinel errors shared by the registry, the pipeline and the
// operator API, and maps them to API classifications.
//
// Errors are built with github.com/cockroachdb/errors so that wrapping keeps the sentinel
// identity (errors.Is) and operator-facing hints survive across layers.
package apperr

import (
	"net/http"

	"github.com/cockroachdb/errors"
)

var (
	// ErrNotFound indicates the requested record does not exist
	ErrNotFound = errors.New("not found")

	// ErrDuplicateSource indicates a crawl target with the same URL is already registered
	ErrDuplicateSource = errors.New("source already registered")

	// ErrUnreachableSource indicates the reachability probe for a new target failed
	ErrUnreachableSource = errors.New("source unreachable")

	// ErrRunInProgress indicates a pipeline run is already executing
	ErrRunInProgress = errors.New("run already in progress")

	// ErrInvalidInput indicates a malformed operator request
	ErrInvalidInput = errors.New("invalid input")
)

// Classification is the structured form of an error returned to operators.
type Classification struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

// Mark tags err with a sentinel while keeping its own message.
func Mark(err error, sentinel error) error {
	return errors.Mark(err, sentinel)
}

// WithHint attaches an operator-readable message to err.
func WithHint(err error, hint string) error {
	return errors.WithHint(err, hint)
}

// Classify maps an error to its API code, HTTP status and human-readable message.
// Hints attached with WithHint take precedence over the raw error text.
func Classify(err error) Classification {
	c := Classification{Code: "internal_error", Status: http.StatusInternalServerError}

	switch {
	case errors.Is(err, ErrNotFound):
		c.Code, c.Status = "not_found", http.StatusNotFound
	case errors.Is(err, ErrDuplicateSource):
		c.Code, c.Status = "duplicate_source", http.StatusConflict
	case errors.Is(err, ErrUnreachableSource):
		c.Code, c.Status = "unreachable_source", http.StatusUnprocessableEntity
	case errors.Is(err, ErrRunInProgress):
		c.Code, c.Status = "run_in_progress", http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		c.Code, c.Status = "invalid_input", http.StatusBadRequest
	}

	if hint := errors.FlattenHints(err); hint != "" {
		c.Message = hint
	} else if c.Status == http.StatusInternalServerError {
		c.Message = "Internal server error"
	} else {
		c.Message = err.Error()
	}

	return c
}
