package stats

import (
	"strings"
	"unicode"

	"pulse-mcp/internal/jira"
)

// FilterByUser keeps issues assigned to the given email. An exact email match
// is preferred; otherwise the assignee display name and the email are compared
// as case-insensitive substrings in either direction, once verbatim and once
// with separators removed ("Jane Doe" ~ "jane.doe@example.com"). The fallback
// can produce false positives for short names.
func FilterByUser(issues []jira.Issue, email string) []jira.Issue {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil
	}

	var out []jira.Issue
	for _, issue := range issues {
		if MatchesUser(issue, email) {
			out = append(out, issue)
		}
	}
	return out
}

// MatchesUser applies the FilterByUser rule to a single issue.
func MatchesUser(issue jira.Issue, email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	if issue.AssigneeEmail != "" && strings.EqualFold(strings.TrimSpace(issue.AssigneeEmail), email) {
		return true
	}

	name := strings.ToLower(strings.TrimSpace(issue.AssigneeDisplayName))
	if name == "" {
		return false
	}
	if containsEither(name, email) {
		return true
	}
	return containsEither(alnum(name), alnum(email))
}

func containsEither(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func alnum(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
