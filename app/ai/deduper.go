package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
)

// UncategorizedID is the category the model is told to use when nothing matches.
const UncategorizedID = "OTHER"

// Deduper asks the model which incoming candidates are not already known.
type Deduper struct {
	model Generator
}

func NewDeduper(model Generator) *Deduper {
	return &Deduper{model: model}
}

// Dedupe returns the subset of incoming that does not describe an opportunity
// in existing. An empty incoming slice returns immediately without a model call.
func (d *Deduper) Dedupe(ctx context.Context, incoming []Candidate, existing []KnownListing) ([]Candidate, error) {
	if len(incoming) == 0 {
		return []Candidate{}, nil
	}

	prompt, err := BuildDedupPrompt(incoming, existing)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	reply, err := d.model.Generate(ctx, prompt)
	if err != nil {
		var modelErr *ModelError
		if errors.As(err, &modelErr) {
			return nil, &ModelError{Op: "dedupe", Cause: modelErr.Cause}
		}
		return nil, &ModelError{Op: "dedupe", Cause: err}
	}

	unique := ParseCandidates(reply)

	slog.Debug("Deduplication completed",
		"incoming", len(incoming),
		"existing", len(existing),
		"unique", len(unique),
		"duration", time.Since(start))

	return unique, nil
}

func BuildDedupPrompt(incoming []Candidate, existing []KnownListing) (string, error) {
	if existing == nil {
		existing = []KnownListing{}
	}

	listA, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal existing listings")
	}
	listB, err := json.MarshalIndent(incoming, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal incoming candidates")
	}

	return fmt.Sprintf(`You compare two lists of opportunity objects.
Given:
- List A: existing opportunities, already stored
- List B: newly extracted opportunities

Compare each opportunity in List B with every opportunity in List A.
A duplicate is an opportunity that refers to the same real-world opportunity as one in List A, even when some fields differ.
Return ONLY the opportunities from List B that are NOT duplicates, as a valid JSON array of the original List B objects. Do not include explanations, text or code fences. Return [] when every item is a duplicate.

List A (existing):
%s

List B (incoming):
%s
`, listA, listB), nil
}
