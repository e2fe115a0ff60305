package template

import (
	"regexp"
	"sort"
	"strings"

	"conveyor/internal/queue"
)

// Match returns the first template whose rules accept the recording, or nil
// when none match. Only active, non-draft templates are considered, evaluated
// in CreatedAt order so the oldest-created template wins ties.
func Match(rec *queue.Recording, templates []*queue.Template) *queue.Template {
	if rec == nil {
		return nil
	}

	candidates := make([]*queue.Template, 0, len(templates))
	for _, tpl := range templates {
		if tpl == nil || !tpl.IsActive || tpl.IsDraft {
			continue
		}
		candidates = append(candidates, tpl)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		}
		return candidates[i].ID < candidates[j].ID
	})

	for _, tpl := range candidates {
		if Matches(rec, tpl) {
			return tpl
		}
	}
	return nil
}

// Matches evaluates a single template's rules against a recording.
func Matches(rec *queue.Recording, tpl *queue.Template) bool {
	if rec == nil || tpl == nil {
		return false
	}

	if len(tpl.SourceIDs) > 0 && !containsString(tpl.SourceIDs, rec.SourceID) {
		return false
	}

	name := rec.Name
	fold := func(s string) string { return strings.ToLower(s) }
	if tpl.CaseSensitive {
		fold = func(s string) string { return s }
	}
	folded := fold(name)

	// Negative rules short-circuit before any positive rule is considered.
	for _, keyword := range tpl.ExcludeKeywords {
		if keyword != "" && strings.Contains(folded, fold(keyword)) {
			return false
		}
	}
	for _, pattern := range tpl.ExcludePatterns {
		if patternMatches(pattern, name, tpl.CaseSensitive) {
			return false
		}
	}

	for _, exact := range tpl.ExactMatches {
		if exact != "" && fold(exact) == folded {
			return true
		}
	}
	for _, keyword := range tpl.Keywords {
		if keyword != "" && strings.Contains(folded, fold(keyword)) {
			return true
		}
	}
	for _, pattern := range tpl.Patterns {
		if patternMatches(pattern, name, tpl.CaseSensitive) {
			return true
		}
	}
	return false
}

// Validate reports the first invalid matching rule on a template. Invalid
// patterns are rejected at template-save time; Match silently treats them as
// non-matching so one bad rule cannot take matching down for every recording.
func Validate(tpl *queue.Template) error {
	if tpl == nil {
		return nil
	}
	for _, pattern := range append(append([]string{}, tpl.Patterns...), tpl.ExcludePatterns...) {
		if pattern == "" {
			continue
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return err
		}
	}
	return nil
}

func patternMatches(pattern, name string, caseSensitive bool) bool {
	if pattern == "" {
		return false
	}
	if !caseSensitive && !strings.HasPrefix(pattern, "(?i)") {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(name)
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
