package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Candidate is one listing as returned by the model. Deadline is kept as the
// raw JSON value: an ISO date string, false, null or absent.
type Candidate struct {
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Deadline       json.RawMessage `json:"deadline,omitempty"`
	ApplicationURL string          `json:"application_url"`
	Location       string          `json:"location"`
	Tags           Tags            `json:"tags"`
	CategoryID     string          `json:"category_id"`
	ThumbnailURL   string          `json:"thumbnail_url"`
}

// DeadlineString returns the deadline when the model sent a JSON string.
func (c Candidate) DeadlineString() (string, bool) {
	var s string
	if len(c.Deadline) == 0 || json.Unmarshal(c.Deadline, &s) != nil {
		return "", false
	}
	return s, true
}

// Tags accepts either a JSON array of strings or a single comma separated string.
type Tags []string

func (t *Tags) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return fmt.Errorf("tags must be a string array: %w", err)
	}

	*t = nil
	for _, tag := range strings.Split(single, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			*t = append(*t, tag)
		}
	}
	return nil
}

type Category struct {
	ID   string
	Name string
}

// KnownListing is the compact form of a stored listing sent to the
// deduplication prompt.
type KnownListing struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Deadline       string   `json:"deadline,omitempty"`
	ApplicationURL string   `json:"application_url"`
	Location       string   `json:"location,omitempty"`
	CategoryID     string   `json:"category_id"`
	Tags           []string `json:"tags,omitempty"`
}

// ModelError reports a failed call to the model endpoint. Malformed replies
// are not errors.
type ModelError struct {
	Op    string
	Cause error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model %s call failed: %v", e.Op, e.Cause)
}

func (e *ModelError) Unwrap() error {
	return e.Cause
}
