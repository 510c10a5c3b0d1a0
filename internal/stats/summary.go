package stats

import (
	"slices"
	"time"

	"pulse-mcp/internal/jira"
)

// SeriesSummary rolls per-sprint results into one line for a sprint series.
type SeriesSummary struct {
	TotalSprints          int     `json:"total_sprints"`
	AvgVelocity           float64 `json:"avg_velocity"`
	MedianVelocity        float64 `json:"median_velocity"`
	AvgCompletionRate     float64 `json:"avg_completion_rate"`
	TotalIssues           int     `json:"total_issues_all_sprints"`
	TotalPoints           float64 `json:"total_points_all_sprints"`
	AvgTimeToCompleteDays float64 `json:"avg_time_to_complete_days"`
	CurrentStreak         int     `json:"current_streak"`
}

// Summarize averages velocity over sprints that delivered points and completion
// rate over sprints that had issues. Duration and streak use the pooled issues.
func Summarize(perSprint []Result, pooled []jira.Issue, today time.Time) SeriesSummary {
	s := SeriesSummary{TotalSprints: len(perSprint)}

	var velocities, rates []float64
	for _, r := range perSprint {
		if r.Velocity > 0 {
			velocities = append(velocities, r.Velocity)
		}
		if r.TotalIssues > 0 {
			rates = append(rates, r.CompletionRate)
		}
		s.TotalIssues += r.TotalIssues
		s.TotalPoints += r.CompletedStoryPoints
	}

	s.AvgVelocity = Round1(Mean(velocities))
	s.MedianVelocity = Round1(Median(velocities))
	s.AvgCompletionRate = Round1(Mean(rates))
	s.AvgTimeToCompleteDays = AvgTimeToComplete(pooled)
	s.CurrentStreak = CompletionStreak(pooled, today)
	return s
}

// Dedupe keeps the first issue seen for each key.
func Dedupe(issues []jira.Issue) []jira.Issue {
	seen := make(map[string]bool, len(issues))
	out := make([]jira.Issue, 0, len(issues))
	for _, issue := range issues {
		if issue.Key == "" || seen[issue.Key] {
			continue
		}
		seen[issue.Key] = true
		out = append(out, issue)
	}
	return out
}

// RecentCompleted returns up to n completed issues, newest resolution first.
// Issues whose resolution date cannot be parsed are skipped.
func RecentCompleted(issues []jira.Issue, n int) []jira.Issue {
	type dated struct {
		issue    jira.Issue
		resolved time.Time
	}

	var done []dated
	for _, issue := range issues {
		if !IsCompleted(issue.Status) || issue.Resolved == "" {
			continue
		}
		resolved, err := ParseNaive(issue.Resolved)
		if err != nil {
			continue
		}
		done = append(done, dated{issue, resolved})
	}

	slices.SortStableFunc(done, func(a, b dated) int {
		return b.resolved.Compare(a.resolved)
	})

	if n > 0 && len(done) > n {
		done = done[:n]
	}
	out := make([]jira.Issue, 0, len(done))
	for _, d := range done {
		out = append(out, d.issue)
	}
	return out
}

// GroupByStatus buckets issues by their raw status name.
func GroupByStatus(issues []jira.Issue) map[string][]jira.Issue {
	groups := make(map[string][]jira.Issue)
	for _, issue := range issues {
		status := orDefault(issue.Status, "Unknown")
		groups[status] = append(groups[status], issue)
	}
	return groups
}
