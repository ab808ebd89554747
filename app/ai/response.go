package ai

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("(?i)```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// StripFence returns the contents of the first fenced code block in reply,
// or the trimmed reply when it has none.
func StripFence(reply string) string {
	if m := fenceRe.FindStringSubmatch(reply); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(reply)
}

// ParseCandidates decodes a model reply into candidates. Anything that is not
// a JSON array yields an empty slice; array elements that are not candidate
// objects are skipped.
func ParseCandidates(reply string) []Candidate {
	body := StripFence(reply)
	candidates := []Candidate{}

	if body == "" {
		return candidates
	}

	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(body), &elements); err != nil {
		slog.Warn("Model reply is not a JSON array", "error", err, "length", len(body))
		return candidates
	}

	skipped := 0
	for _, element := range elements {
		element = bytes.TrimSpace(element)
		if len(element) == 0 || element[0] != '{' {
			skipped++
			continue
		}

		var c Candidate
		if err := json.Unmarshal(element, &c); err != nil {
			skipped++
			continue
		}
		candidates = append(candidates, c)
	}

	if skipped > 0 {
		slog.Warn("Skipped malformed candidates in model reply", "skipped", skipped, "kept", len(candidates))
	}

	return candidates
}
