package stats

import (
	"slices"
	"time"

	"pulse-mcp/internal/cache"
	"pulse-mcp/internal/jira"
)

// Naive drops the zone but keeps the wall clock, so timestamps with and
// without offsets compare in the same frame.
func Naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// ParseNaive parses a source timestamp and strips its offset.
func ParseNaive(s string) (time.Time, error) {
	t, err := jira.ParseTime(s)
	if err != nil {
		return time.Time{}, err
	}
	return Naive(t), nil
}

// StitchResult is the deduplicated issue set assembled from overlapping snapshots.
type StitchResult struct {
	Issues          []jira.Issue `json:"issues"`
	SprintsIncluded int          `json:"sprints_included"`
}

// Overlaps reports whether a snapshot covers part of [start, end].
// Snapshots without both sprint dates always overlap.
func Overlaps(s cache.Snapshot, start, end time.Time) bool {
	if s.SprintStart == nil || s.SprintEnd == nil {
		return true
	}
	return !Naive(*s.SprintStart).After(Naive(end)) && !Naive(*s.SprintEnd).Before(Naive(start))
}

// Stitch merges the issues of every snapshot overlapping [start, end].
// The first occurrence of a key wins; the output keeps snapshot iteration order.
func Stitch(snapshots []cache.Snapshot, start, end time.Time) StitchResult {
	var res StitchResult
	seen := make(map[string]bool)

	for _, snap := range snapshots {
		if !Overlaps(snap, start, end) {
			continue
		}
		res.SprintsIncluded++
		for _, issue := range snap.Issues {
			if seen[issue.Key] {
				continue
			}
			seen[issue.Key] = true
			res.Issues = append(res.Issues, issue)
		}
	}
	return res
}

// StitchLatest is Stitch with the most recently captured snapshot winning key conflicts.
func StitchLatest(snapshots []cache.Snapshot, start, end time.Time) StitchResult {
	ordered := slices.Clone(snapshots)
	slices.SortStableFunc(ordered, func(a, b cache.Snapshot) int {
		return b.CapturedAt.Compare(a.CapturedAt)
	})
	return Stitch(ordered, start, end)
}
