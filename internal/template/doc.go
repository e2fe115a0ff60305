// Package template selects at most one template for a recording by
// evaluating ordered matching rules.
//
// Candidates are filtered to active, non-draft templates and evaluated oldest
// first (CreatedAt ascending, ID as the stable tie-break), so matching is
// deterministic and first-match-wins. Within a template, negative rules
// short-circuit before positive rules: an exclude hit disqualifies the
// template even when a keyword would match. Comparisons are case-insensitive
// unless the template opts into case sensitivity.
package template
