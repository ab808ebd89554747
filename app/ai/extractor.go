package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Extractor asks the model for the opportunity listings contained in a page.
type Extractor struct {
	model Generator
}

func NewExtractor(model Generator) *Extractor {
	return &Extractor{model: model}
}

// Extract returns the candidates found in markup. Only a failed model call is
// an error; an unusable reply yields an empty slice.
func (e *Extractor) Extract(ctx context.Context, markup string, categories []Category) ([]Candidate, error) {
	start := time.Now()

	reply, err := e.model.Generate(ctx, BuildExtractionPrompt(markup, categories))
	if err != nil {
		var modelErr *ModelError
		if errors.As(err, &modelErr) {
			return nil, &ModelError{Op: "extract", Cause: modelErr.Cause}
		}
		return nil, &ModelError{Op: "extract", Cause: err}
	}

	candidates := ParseCandidates(reply)

	slog.Debug("Extraction completed", "candidates", len(candidates), "markup_length", len(markup), "duration", time.Since(start))

	return candidates, nil
}

func BuildExtractionPrompt(markup string, categories []Category) string {
	var list strings.Builder
	for i, c := range categories {
		if i > 0 {
			list.WriteByte('\n')
		}
		fmt.Fprintf(&list, "- %q: %s", c.ID, c.Name)
	}

	return fmt.Sprintf(`From the following HTML block, extract every distinct opportunity it lists.
For each opportunity, return a JSON object with these fields:

"title": A concise, descriptive name of the opportunity. (REQUIRED)
"description": A brief summary of the opportunity, typically its first 2-3 sentences. (REQUIRED)
"deadline": The application deadline in YYYY-MM-DD format. If no deadline is given, use the boolean false.
"application_url": The full, absolute URL to apply. Prefer direct application links. (REQUIRED)
"location": The primary location (e.g. "Lagos, Nigeria", "Remote", "Multiple Cities"). List all when several are given.
"tags": An array of relevant lowercase keywords such as "internship", "full-time", "part-time", "remote", "entry-level", "senior", "finance", "tech". Use an empty array when none apply.
"category_id": The Category ID from the list below that best matches the opportunity. If nothing matches clearly, use %q.
"thumbnail_url": The URL of the main image for the opportunity, or an empty string.

Available Categories:
%s

Return ONLY a JSON array of these objects, with no introduction, explanation or code fences. If there are no opportunities, return an empty array: [].

HTML Block:
%s
`, UncategorizedID, list.String(), markup)
}
