package pipeline

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/lysyi3m/opp-comb/app/ai"
	"github.com/lysyi3m/opp-comb/app/seed"
)

type Rejection struct {
	Candidate ai.Candidate
	Reason    string
}

// Validator is the single place where candidates are dropped for missing
// required fields. It also applies the source's keyword filters.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) Run(candidates []ai.Candidate, filters []seed.Filter) ([]ai.Candidate, []Rejection) {
	valid := make([]ai.Candidate, 0, len(candidates))
	var rejected []Rejection

	for _, c := range candidates {
		if reason := v.checkRequired(c); reason != "" {
			rejected = append(rejected, Rejection{Candidate: c, Reason: reason})
			continue
		}
		if reason := v.applyFilters(c, filters); reason != "" {
			rejected = append(rejected, Rejection{Candidate: c, Reason: reason})
			continue
		}
		valid = append(valid, c)
	}

	return valid, rejected
}

func (v *Validator) checkRequired(c ai.Candidate) string {
	if strings.TrimSpace(c.Title) == "" {
		return "missing title"
	}
	if strings.TrimSpace(c.Description) == "" {
		return "missing description"
	}

	u, err := url.Parse(strings.TrimSpace(c.ApplicationURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Sprintf("application_url %q is not an absolute http(s) URL", c.ApplicationURL)
	}

	return ""
}

func (v *Validator) applyFilters(c ai.Candidate, filters []seed.Filter) string {
	for _, filter := range filters {
		value := v.getFieldValue(c, filter.Field)

		for _, exclude := range filter.Excludes {
			if v.matchesFilter(value, exclude) {
				return fmt.Sprintf("Excluded by %s filter: contains '%s'", filter.Field, exclude)
			}
		}

		if len(filter.Includes) > 0 {
			matched := false
			for _, include := range filter.Includes {
				if v.matchesFilter(value, include) {
					matched = true
					break
				}
			}
			if !matched {
				return fmt.Sprintf("Excluded by %s filter: does not contain any of %v", filter.Field, filter.Includes)
			}
		}
	}

	return ""
}

func (v *Validator) matchesFilter(value, pattern string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}

func (v *Validator) getFieldValue(c ai.Candidate, field string) string {
	switch field {
	case "title":
		return c.Title
	case "description":
		return c.Description
	case "location":
		return c.Location
	case "tags":
		return strings.Join(c.Tags, " ")
	case "category":
		return c.CategoryID
	case "url":
		return c.ApplicationURL
	default:
		return ""
	}
}
