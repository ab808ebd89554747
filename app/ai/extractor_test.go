package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestExtractBuildsPromptAndParses(t *testing.T) {
	model := &MockGenerator{Reply: "```json\n" + twoCandidates + "\n```"}
	extractor := NewExtractor(model)

	categories := []Category{{ID: "jobs", Name: "Jobs"}, {ID: "OTHER", Name: "Other"}}
	got, err := extractor.Extract(context.Background(), "<ul><li>Data Engineer</li></ul>", categories)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 candidates, got %d", len(got))
	}

	prompt := model.Prompts[0]
	for _, want := range []string{`- "jobs": Jobs`, `- "OTHER": Other`, "<ul><li>Data Engineer</li></ul>", "YYYY-MM-DD", `use "OTHER"`} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Expected prompt to contain %q", want)
		}
	}
}

func TestExtractMalformedReplyIsEmpty(t *testing.T) {
	extractor := NewExtractor(&MockGenerator{Reply: "Sorry, no JSON today"})

	got, err := extractor.Extract(context.Background(), "<p>hi</p>", nil)
	if err != nil {
		t.Fatalf("Expected no error for malformed reply, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no candidates, got %d", len(got))
	}
}

func TestExtractModelFailure(t *testing.T) {
	extractor := NewExtractor(&MockGenerator{Err: &ModelError{Op: "generate", Cause: errors.New("503")}})

	_, err := extractor.Extract(context.Background(), "<p>hi</p>", nil)

	var modelErr *ModelError
	if !errors.As(err, &modelErr) {
		t.Fatalf("Expected *ModelError, got %v", err)
	}
	if modelErr.Op != "extract" {
		t.Errorf("Expected op 'extract', got '%s'", modelErr.Op)
	}
}
