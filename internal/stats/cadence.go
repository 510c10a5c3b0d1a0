package stats

import (
	"slices"
	"time"

	"pulse-mcp/internal/jira"
)

// DeliveryCadence is the number of issues completed in one week.
type DeliveryCadence struct {
	WeekStarting    time.Time `json:"weekStarting"`
	ItemsDelivered  int       `json:"itemsDelivered"`
	PointsDelivered float64   `json:"pointsDelivered"`
}

// WeekStart snaps a timestamp to Monday 00:00 of its week.
func WeekStart(t time.Time) time.Time {
	// Go's Weekday starts at Sunday=0. We want Monday to be the anchor.
	offset := int(t.Weekday()) - 1
	if offset < 0 {
		offset = 6
	}
	return time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, t.Location())
}

// CalculateDeliveryCadence buckets completed issues per week over the last
// windowWeeks weeks before today. Weeks without completions are included as zero.
func CalculateDeliveryCadence(issues []jira.Issue, windowWeeks int, today time.Time) []DeliveryCadence {
	if windowWeeks <= 0 {
		return nil
	}

	current := WeekStart(Naive(today))
	first := current.AddDate(0, 0, -7*(windowWeeks-1))

	weeks := make(map[time.Time]*DeliveryCadence, windowWeeks)
	for w := first; !w.After(current); w = w.AddDate(0, 0, 7) {
		weeks[w] = &DeliveryCadence{WeekStarting: w}
	}

	for _, issue := range issues {
		if !IsCompleted(issue.Status) || issue.Resolved == "" {
			continue
		}
		resolved, err := ParseNaive(issue.Resolved)
		if err != nil {
			continue
		}
		if bucket, ok := weeks[WeekStart(resolved)]; ok {
			bucket.ItemsDelivered++
			bucket.PointsDelivered += issue.Points()
		}
	}

	results := make([]DeliveryCadence, 0, len(weeks))
	for _, w := range weeks {
		results = append(results, *w)
	}
	slices.SortFunc(results, func(a, b DeliveryCadence) int {
		return a.WeekStarting.Compare(b.WeekStarting)
	})
	return results
}
