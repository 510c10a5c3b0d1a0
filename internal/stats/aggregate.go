package stats

import (
	"strings"
	"time"

	"pulse-mcp/internal/jira"
)

var (
	completedStatuses  = map[string]bool{"done": true, "closed": true, "resolved": true}
	inProgressStatuses = map[string]bool{"in progress": true, "in review": true}
)

// IsCompleted reports whether a status counts as finished work.
func IsCompleted(status string) bool {
	return completedStatuses[strings.ToLower(strings.TrimSpace(status))]
}

// IsInProgress reports whether a status counts as work underway.
func IsInProgress(status string) bool {
	return inProgressStatuses[strings.ToLower(strings.TrimSpace(status))]
}

// Result holds the metrics derived from a flat issue set.
type Result struct {
	TotalIssues          int            `json:"total_issues"`
	CompletedIssues      int            `json:"completed_issues"`
	InProgressIssues     int            `json:"in_progress_issues"`
	CompletionRate       float64        `json:"completion_rate"`
	TotalStoryPoints     float64        `json:"total_story_points"`
	CompletedStoryPoints float64        `json:"completed_story_points"`
	Velocity             float64        `json:"velocity"`
	ByType               map[string]int `json:"by_type"`
	ByPriority           map[string]int `json:"by_priority"`
	ByStatus             map[string]int `json:"by_status"`
	ByAssignee           map[string]int `json:"by_assignee"`

	// Only filled by AggregateWithDerived.
	AvgTimeToCompleteDays *float64 `json:"avg_time_to_complete_days,omitempty"`
	CurrentStreak         *int     `json:"current_streak,omitempty"`
}

// Aggregate computes totals, rates and histograms. It never fails: an empty
// set yields a zeroed result with a completion rate of 0.
func Aggregate(issues []jira.Issue) Result {
	r := Result{
		ByType:     make(map[string]int),
		ByPriority: make(map[string]int),
		ByStatus:   make(map[string]int),
		ByAssignee: make(map[string]int),
	}

	for _, issue := range issues {
		r.TotalIssues++
		points := issue.Points()
		r.TotalStoryPoints += points

		if IsCompleted(issue.Status) {
			r.CompletedIssues++
			r.CompletedStoryPoints += points
		} else if IsInProgress(issue.Status) {
			r.InProgressIssues++
		}

		r.ByType[orDefault(issue.IssueType, "Task")]++
		r.ByPriority[orDefault(issue.Priority, "None")]++
		r.ByStatus[orDefault(issue.Status, "Unknown")]++
		r.ByAssignee[orDefault(issue.AssigneeDisplayName, "Unassigned")]++
	}

	if r.TotalIssues > 0 {
		r.CompletionRate = Round1(float64(r.CompletedIssues) / float64(r.TotalIssues) * 100)
	}
	r.Velocity = r.CompletedStoryPoints
	return r
}

// AggregateWithDerived adds average time-to-complete and the completion streak as of today.
func AggregateWithDerived(issues []jira.Issue, today time.Time) Result {
	r := Aggregate(issues)
	avg := AvgTimeToComplete(issues)
	streak := CompletionStreak(issues, today)
	r.AvgTimeToCompleteDays = &avg
	r.CurrentStreak = &streak
	return r
}

// AvgTimeToComplete averages whole days from created to resolved over completed
// issues. Issues with a missing or unparsable date, or resolved before created,
// are left out.
func AvgTimeToComplete(issues []jira.Issue) float64 {
	var days []float64
	for _, issue := range issues {
		if !IsCompleted(issue.Status) || issue.Created == "" || issue.Resolved == "" {
			continue
		}
		created, err := ParseNaive(issue.Created)
		if err != nil {
			continue
		}
		resolved, err := ParseNaive(issue.Resolved)
		if err != nil {
			continue
		}
		span := resolved.Sub(created)
		if span < 0 {
			continue
		}
		days = append(days, float64(span/(24*time.Hour)))
	}
	return Round1(Mean(days))
}

// CompletionStreak counts consecutive days with at least one completed issue,
// walking back from today. When today has none, yesterday may start the streak.
func CompletionStreak(issues []jira.Issue, today time.Time) int {
	resolvedDays := make(map[time.Time]bool)
	for _, issue := range issues {
		if !IsCompleted(issue.Status) || issue.Resolved == "" {
			continue
		}
		resolved, err := ParseNaive(issue.Resolved)
		if err != nil {
			continue
		}
		resolvedDays[day(resolved)] = true
	}
	if len(resolvedDays) == 0 {
		return 0
	}

	current := day(Naive(today))
	if !resolvedDays[current] {
		current = current.AddDate(0, 0, -1)
		if !resolvedDays[current] {
			return 0
		}
	}

	streak := 0
	for resolvedDays[current] {
		streak++
		current = current.AddDate(0, 0, -1)
	}
	return streak
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
