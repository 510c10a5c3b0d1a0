package metrics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"pulse-mcp/internal/cache"
	"pulse-mcp/internal/jira"
)

// seedBoard gives the fake source sprints 1-4 closed, 5 active and 6 future,
// two weeks apart. Sprint n holds one of Jane's issues worth n points, one
// of Bob's worth 100 points and an unfinished issue shared by every sprint.
func seedBoard(f *fixture) {
	first := base.AddDate(0, 0, -4*14)
	for n := 1; n <= 6; n++ {
		state := jira.SprintClosed
		switch n {
		case 5:
			state = jira.SprintActive
		case 6:
			state = jira.SprintFuture
		}
		f.source.sprints = append(f.source.sprints, sprintAt(n, state, first.AddDate(0, 0, (n-1)*14)))

		resolved := base.AddDate(0, 0, n-5).Format("2006-01-02T15:04:05.000-0700")
		f.source.sprintIssues[n] = []jira.Issue{
			janeIssue(fmt.Sprintf("P-%d", n), "Done", float64(n), resolved),
			bobIssue(fmt.Sprintf("P-%d-b", n), "Done", 100),
			janeIssue("P-SHARED", "In Progress", 1, ""),
		}
	}
	// Shuffle listing order; callers sort by start date.
	f.source.sprints[0], f.source.sprints[3] = f.source.sprints[3], f.source.sprints[0]
}

func TestMySprints(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{MaxConcurrency: 2, Charts: true})
	seedBoard(f)

	// Sprint 3 is already cached.
	if err := f.store.Put(ctx, cache.Snapshot{
		UserID: "jane", ProjectKey: "P", SprintID: cache.SprintRef(3), SprintName: "Sprint 3",
		Issues: f.source.sprintIssues[3],
	}); err != nil {
		t.Fatal(err)
	}

	req := Request{UserID: "jane", Email: "jane.doe@example.com", ProjectKey: "P"}
	rep, err := f.svc.MySprints(ctx, req, 3)
	if err != nil {
		t.Fatalf("MySprints() error = %v", err)
	}

	var ids []int
	for _, s := range rep.Sprints {
		ids = append(ids, s.SprintID)
	}
	if fmt.Sprint(ids) != "[3 4 5]" {
		t.Fatalf("sprints = %v, want [3 4 5] oldest first", ids)
	}
	if rep.BoardID != 1 {
		t.Errorf("board = %d, want 1", rep.BoardID)
	}
	if rep.CacheStats != (CacheStats{Hits: 1, Misses: 2}) {
		t.Errorf("cache stats = %+v, want 1 hit, 2 misses", rep.CacheStats)
	}
	if !rep.Sprints[0].FromCache || rep.Sprints[1].FromCache {
		t.Error("only sprint 3 should come from cache")
	}
	if rep.Sprints[2].Velocity != 5 || rep.Sprints[2].TotalIssues != 2 {
		t.Errorf("sprint 5 = %+v, want Jane's 2 issues and velocity 5", rep.Sprints[2].Result)
	}

	sum := rep.Summary
	if sum.TotalSprints != 3 || sum.AvgVelocity != 4 || sum.AvgCompletionRate != 50 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.TotalIssues != 6 || sum.TotalPoints != 12 {
		t.Errorf("summary totals = %d issues / %v points, want 6 / 12", sum.TotalIssues, sum.TotalPoints)
	}
	if sum.CurrentStreak != 3 {
		t.Errorf("streak = %d, want 3 (resolved two days ago, yesterday and today)", sum.CurrentStreak)
	}
	if len(rep.Charts) != 2 || !strings.Contains(rep.Charts[0], `"Sprint 3"`) {
		t.Errorf("charts = %v", rep.Charts)
	}

	// The two misses were written back.
	entries, err := f.store.List(ctx, "jane")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("cache holds %d entries, want 3", len(entries))
	}
}

func TestMySprints_SourceFailure(t *testing.T) {
	f := newFixture(Options{})
	seedBoard(f)
	f.source.err = errors.New("timeout")

	_, err := f.svc.MySprints(context.Background(), Request{UserID: "jane", ProjectKey: "P"}, 3)
	if !errors.Is(err, jira.ErrSourceUnavailable) {
		t.Errorf("error = %v, want ErrSourceUnavailable", err)
	}
}

func TestCurrentSprint(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{})
	seedBoard(f)

	rep, err := f.svc.CurrentSprint(ctx, Request{UserID: "jane", Email: "jane.doe@example.com", ProjectKey: "P"})
	if err != nil {
		t.Fatalf("CurrentSprint() error = %v", err)
	}
	if rep.Sprint == nil || rep.Sprint.ID != 5 {
		t.Fatalf("sprint = %+v, want the active sprint 5", rep.Sprint)
	}
	if rep.FromCache {
		t.Error("first call should fetch")
	}
	if len(rep.IssuesByStatus["Done"]) != 1 || len(rep.IssuesByStatus["In Progress"]) != 1 {
		t.Errorf("groups = %v", rep.IssuesByStatus)
	}

	again, err := f.svc.CurrentSprint(ctx, Request{UserID: "jane", Email: "jane.doe@example.com", ProjectKey: "P"})
	if err != nil || !again.FromCache {
		t.Errorf("second call should hit the cache, got %+v, %v", again, err)
	}
}

func TestCurrentSprint_NoActiveSprint(t *testing.T) {
	f := newFixture(Options{})
	f.source.sprints = []jira.Sprint{sprintAt(1, jira.SprintClosed, base.AddDate(0, 0, -30))}

	rep, err := f.svc.CurrentSprint(context.Background(), Request{UserID: "jane", ProjectKey: "P"})
	if err != nil {
		t.Fatalf("CurrentSprint() error = %v", err)
	}
	if !rep.NoData || rep.Sprint != nil {
		t.Errorf("expected no-data report, got %+v", rep)
	}
}

func TestOverview(t *testing.T) {
	f := newFixture(Options{Charts: true})
	seedBoard(f)

	rep, err := f.svc.Overview(context.Background(), Request{UserID: "jane", Email: "jane.doe@example.com", ProjectKey: "P"})
	if err != nil {
		t.Fatalf("Overview() error = %v", err)
	}
	if rep.SprintsAnalyzed != 5 {
		t.Errorf("sprints analyzed = %d, want 5 (future sprint excluded)", rep.SprintsAnalyzed)
	}
	// Five sprint issues plus the shared one counted once.
	if rep.TotalIssues != 6 || rep.CompletedIssues != 5 || rep.InProgressIssues != 1 {
		t.Errorf("totals = %d/%d/%d, want 6/5/1", rep.TotalIssues, rep.CompletedIssues, rep.InProgressIssues)
	}
	if len(rep.RecentCompleted) != 5 || rep.RecentCompleted[0].Key != "P-5" {
		t.Errorf("recent completed = %v", rep.RecentCompleted)
	}
	if len(rep.WeeklyCadence) != cadenceWeeks {
		t.Errorf("cadence weeks = %d, want %d", len(rep.WeeklyCadence), cadenceWeeks)
	}
	if rep.CacheStats.Misses != 5 {
		t.Errorf("cache stats = %+v", rep.CacheStats)
	}
	if rep.CurrentStreak == nil || *rep.CurrentStreak != 5 {
		t.Errorf("streak = %v, want 5", rep.CurrentStreak)
	}
	if len(rep.Charts) != 1 {
		t.Errorf("charts = %d, want 1", len(rep.Charts))
	}
}

func TestVelocity(t *testing.T) {
	f := newFixture(Options{})
	seedBoard(f)

	rep, err := f.svc.Velocity(context.Background(), Request{UserID: "jane", Email: "jane.doe@example.com", ProjectKey: "P"}, 2)
	if err != nil {
		t.Fatalf("Velocity() error = %v", err)
	}
	if len(rep.Sprints) != 2 || rep.Sprints[0].SprintID != 3 || rep.Sprints[1].SprintID != 4 {
		t.Fatalf("sprints = %+v, want closed sprints 3 and 4", rep.Sprints)
	}
	// Team velocity ignores the user filter.
	if rep.Sprints[0].CompletedPoints != 103 || rep.Sprints[0].CommittedPoints != 104 {
		t.Errorf("sprint 3 = %+v", rep.Sprints[0])
	}
	if rep.AverageVelocity != 103.5 {
		t.Errorf("average velocity = %v, want 103.5", rep.AverageVelocity)
	}
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{})
	f.source.projects = []jira.Project{{Key: "P"}, {Key: "Q"}}
	f.source.rangeIssues["P"] = []jira.Issue{janeIssue("P-1", "Done", 1, ""), janeIssue("P-2", "Done", 1, "")}
	f.source.failProjects["Q"] = true

	res, err := f.svc.Refresh(ctx, "jane", nil, 0)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if res.Projects != 2 || len(res.Refreshed) != 1 || res.Refreshed[0] != "P" || len(res.Failed) != 1 || res.Failed[0] != "Q" {
		t.Errorf("refresh result = %+v", res)
	}
	if res.Issues != 2 {
		t.Errorf("issues = %d, want 2", res.Issues)
	}

	entries, err := f.svc.CacheEntries(ctx, "jane")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].ProjectKey != "P" || entries[0].SprintID != nil {
		t.Fatalf("entries = %+v", entries)
	}
	wantStart := base.Add(-DefaultRefreshWindow)
	if entries[0].RangeStart == nil || !entries[0].RangeStart.Equal(wantStart) {
		t.Errorf("range start = %v, want %v", entries[0].RangeStart, wantStart)
	}

	// A later range query inside the window is answered from the refreshed snapshot.
	rep, err := f.svc.ForRange(ctx, Request{UserID: "jane", ProjectKey: "P", Start: base.AddDate(0, 0, -7), End: base})
	if err != nil || !rep.FromCache || rep.TotalIssues != 2 {
		t.Errorf("range after refresh = %+v, %v", rep, err)
	}
}

func TestClearCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(Options{})
	for _, p := range []string{"P", "Q"} {
		if err := f.store.Put(ctx, cache.Snapshot{UserID: "jane", ProjectKey: p, SprintID: cache.SprintRef(1)}); err != nil {
			t.Fatal(err)
		}
	}

	if err := f.svc.ClearCache(ctx, "jane", "P"); err != nil {
		t.Fatal(err)
	}
	entries, _ := f.svc.CacheEntries(ctx, "jane")
	if len(entries) != 1 || entries[0].ProjectKey != "Q" {
		t.Errorf("after project clear: %+v", entries)
	}

	if err := f.svc.ClearCache(ctx, "jane", ""); err != nil {
		t.Fatal(err)
	}
	entries, _ = f.svc.CacheEntries(ctx, "jane")
	if len(entries) != 0 {
		t.Errorf("after full clear: %+v", entries)
	}

	if err := f.svc.ClearCache(ctx, "", ""); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("error = %v, want ErrInvalidRequest", err)
	}
}
