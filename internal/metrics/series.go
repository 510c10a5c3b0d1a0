package metrics

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"pulse-mcp/internal/jira"
	"pulse-mcp/internal/stats"
	"pulse-mcp/internal/visuals"
)

const (
	DefaultSeriesLength    = 6
	DefaultVelocitySprints = 5
	overviewSprints        = 10
	recentCompletedLimit   = 10
	cadenceWeeks           = 8
)

// CacheStats counts sprint loads served from the cache versus the source.
type CacheStats struct {
	Hits   int `json:"hits"`
	Misses int `json:"misses"`
}

// SprintReport is one sprint within a series.
type SprintReport struct {
	SprintID   int        `json:"sprint_id"`
	SprintName string     `json:"sprint_name"`
	State      string     `json:"state"`
	StartDate  *time.Time `json:"start_date,omitempty"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	FromCache  bool       `json:"from_cache"`
	stats.Result
}

// SeriesReport holds the user's recent sprints, oldest first, and their rollup.
type SeriesReport struct {
	ProjectKey string              `json:"project_key"`
	BoardID    int                 `json:"board_id"`
	Sprints    []SprintReport      `json:"sprints"`
	Summary    stats.SeriesSummary `json:"summary"`
	CacheStats CacheStats          `json:"cache_stats"`
	Charts     []string            `json:"charts,omitempty"`
}

// CurrentReport describes the active sprint for one user.
type CurrentReport struct {
	ProjectKey     string                  `json:"project_key"`
	Sprint         *jira.Sprint            `json:"sprint,omitempty"`
	FromCache      bool                    `json:"from_cache"`
	NoData         bool                    `json:"no_data,omitempty"`
	Message        string                  `json:"message,omitempty"`
	IssuesByStatus map[string][]jira.Issue `json:"issues_by_status,omitempty"`
	stats.Result
}

// OverviewReport pools the user's issues across recent sprints.
type OverviewReport struct {
	ProjectKey      string                  `json:"project_key"`
	SprintsAnalyzed int                     `json:"sprints_analyzed"`
	RecentCompleted []jira.Issue            `json:"recent_completed"`
	WeeklyCadence   []stats.DeliveryCadence `json:"weekly_cadence"`
	CacheStats      CacheStats              `json:"cache_stats"`
	Charts          []string                `json:"charts,omitempty"`
	stats.Result
}

// SprintVelocity is the team's delivery in one closed sprint.
type SprintVelocity struct {
	SprintID        int     `json:"sprint_id"`
	SprintName      string  `json:"sprint_name"`
	CommittedPoints float64 `json:"committed_points"`
	CompletedPoints float64 `json:"completed_points"`
	CompletionRate  float64 `json:"completion_rate"`
}

// VelocityReport is the team velocity over recent closed sprints.
type VelocityReport struct {
	ProjectKey      string           `json:"project_key"`
	Sprints         []SprintVelocity `json:"sprints"`
	AverageVelocity float64          `json:"average_velocity"`
	Charts          []string         `json:"charts,omitempty"`
}

type sprintLoad struct {
	sprint    jira.Sprint
	issues    []jira.Issue
	fromCache bool
}

// MySprints reports the user's last count closed or active sprints.
func (s *Service) MySprints(ctx context.Context, req Request, count int) (*SeriesReport, error) {
	if err := req.validate(false); err != nil {
		return nil, err
	}
	if count <= 0 {
		count = DefaultSeriesLength
	}

	board, sprints, err := s.recentSprints(ctx, req.ProjectKey, count, jira.SprintClosed, jira.SprintActive)
	if err != nil {
		return nil, err
	}

	loads, err := s.loadSprints(ctx, req, sprints)
	if err != nil {
		return nil, err
	}

	rep := &SeriesReport{ProjectKey: req.ProjectKey, BoardID: board.ID, Sprints: make([]SprintReport, 0, len(loads))}
	results := make([]stats.Result, 0, len(loads))
	var pooled []jira.Issue
	var points []visuals.SprintPoint

	for _, l := range loads {
		mine := s.mine(req, l.issues)
		r := stats.Aggregate(mine)
		results = append(results, r)
		pooled = append(pooled, mine...)
		rep.CacheStats.add(l.fromCache)

		rep.Sprints = append(rep.Sprints, SprintReport{
			SprintID:   l.sprint.ID,
			SprintName: l.sprint.Name,
			State:      l.sprint.State,
			StartDate:  l.sprint.StartDate,
			EndDate:    l.sprint.EndDate,
			FromCache:  l.fromCache,
			Result:     r,
		})
		points = append(points, visuals.SprintPoint{Label: l.sprint.Name, Velocity: r.Velocity, CompletionRate: r.CompletionRate})
	}

	rep.Summary = stats.Summarize(results, stats.Dedupe(pooled), s.opts.Now())
	if s.opts.Charts {
		rep.Charts = nonEmpty(visuals.GenerateVelocityChart(points), visuals.GenerateCompletionRateChart(points))
	}

	log.Info().Str("project", req.ProjectKey).Int("sprints", len(loads)).Int("hits", rep.CacheStats.Hits).Int("misses", rep.CacheStats.Misses).Msg("Sprint series computed")
	return rep, nil
}

// CurrentSprint reports the user's issues in the board's active sprint.
func (s *Service) CurrentSprint(ctx context.Context, req Request) (*CurrentReport, error) {
	if err := req.validate(false); err != nil {
		return nil, err
	}
	if s.source == nil {
		return nil, errNoSource
	}

	board, err := jira.BoardFor(ctx, s.source, req.ProjectKey)
	if err != nil {
		return nil, sourceErr(err)
	}
	active, err := s.source.Sprints(ctx, board.ID, jira.SprintActive)
	if err != nil {
		return nil, sourceErr(err)
	}
	if len(active) == 0 {
		return &CurrentReport{
			ProjectKey: req.ProjectKey,
			NoData:     true,
			Message:    "No active sprint found",
			Result:     stats.Aggregate(nil),
		}, nil
	}

	sprint := active[0]
	issues, snap, err := s.loadSprint(ctx, req, sprint, false)
	if err != nil {
		return nil, err
	}

	mine := s.mine(req, issues)
	return &CurrentReport{
		ProjectKey:     req.ProjectKey,
		Sprint:         &sprint,
		FromCache:      snap != nil,
		IssuesByStatus: stats.GroupByStatus(mine),
		Result:         stats.Aggregate(mine),
	}, nil
}

// Overview pools the user's issues over the last ten sprints, deduplicated by key.
func (s *Service) Overview(ctx context.Context, req Request) (*OverviewReport, error) {
	if err := req.validate(false); err != nil {
		return nil, err
	}

	_, sprints, err := s.recentSprints(ctx, req.ProjectKey, overviewSprints, jira.SprintClosed, jira.SprintActive)
	if err != nil {
		return nil, err
	}
	loads, err := s.loadSprints(ctx, req, sprints)
	if err != nil {
		return nil, err
	}

	rep := &OverviewReport{ProjectKey: req.ProjectKey, SprintsAnalyzed: len(loads)}
	var pooled []jira.Issue
	for _, l := range loads {
		pooled = append(pooled, s.mine(req, l.issues)...)
		rep.CacheStats.add(l.fromCache)
	}
	pooled = stats.Dedupe(pooled)

	now := s.opts.Now()
	rep.Result = stats.AggregateWithDerived(pooled, now)
	rep.RecentCompleted = stats.RecentCompleted(pooled, recentCompletedLimit)
	rep.WeeklyCadence = stats.CalculateDeliveryCadence(pooled, cadenceWeeks, now)
	if s.opts.Charts {
		rep.Charts = nonEmpty(visuals.GenerateCadenceChart(rep.WeeklyCadence))
	}
	return rep, nil
}

// Velocity reports team velocity (not filtered by user) over the last count closed sprints.
func (s *Service) Velocity(ctx context.Context, req Request, count int) (*VelocityReport, error) {
	if err := req.validate(false); err != nil {
		return nil, err
	}
	if count <= 0 {
		count = DefaultVelocitySprints
	}

	_, sprints, err := s.recentSprints(ctx, req.ProjectKey, count, jira.SprintClosed)
	if err != nil {
		return nil, err
	}
	loads, err := s.loadSprints(ctx, req, sprints)
	if err != nil {
		return nil, err
	}

	rep := &VelocityReport{ProjectKey: req.ProjectKey, Sprints: make([]SprintVelocity, 0, len(loads))}
	var velocities []float64
	var points []visuals.SprintPoint
	for _, l := range loads {
		r := stats.Aggregate(l.issues)
		rep.Sprints = append(rep.Sprints, SprintVelocity{
			SprintID:        l.sprint.ID,
			SprintName:      l.sprint.Name,
			CommittedPoints: r.TotalStoryPoints,
			CompletedPoints: r.Velocity,
			CompletionRate:  r.CompletionRate,
		})
		velocities = append(velocities, r.Velocity)
		points = append(points, visuals.SprintPoint{Label: l.sprint.Name, Velocity: r.Velocity, CompletionRate: r.CompletionRate})
	}
	rep.AverageVelocity = stats.Round1(stats.Mean(velocities))
	if s.opts.Charts {
		rep.Charts = nonEmpty(visuals.GenerateVelocityChart(points))
	}
	return rep, nil
}

// recentSprints returns the project's newest count sprints in the given
// states, ordered oldest first by start date.
func (s *Service) recentSprints(ctx context.Context, projectKey string, count int, states ...string) (jira.Board, []jira.Sprint, error) {
	if s.source == nil {
		return jira.Board{}, nil, errNoSource
	}

	board, err := jira.BoardFor(ctx, s.source, projectKey)
	if err != nil {
		return jira.Board{}, nil, sourceErr(err)
	}
	sprints, err := s.source.Sprints(ctx, board.ID, states...)
	if err != nil {
		return jira.Board{}, nil, sourceErr(err)
	}

	slices.SortStableFunc(sprints, func(a, b jira.Sprint) int {
		return startOf(a).Compare(startOf(b))
	})
	if len(sprints) > count {
		sprints = sprints[len(sprints)-count:]
	}
	return board, sprints, nil
}

// loadSprints loads every sprint concurrently, bounded by MaxConcurrency.
// The first failure cancels the rest.
func (s *Service) loadSprints(ctx context.Context, req Request, sprints []jira.Sprint) ([]sprintLoad, error) {
	loads := make([]sprintLoad, len(sprints))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxConcurrency)
	for i, sprint := range sprints {
		g.Go(func() error {
			issues, snap, err := s.loadSprint(gctx, req, sprint, false)
			if err != nil {
				return fmt.Errorf("sprint %d: %w", sprint.ID, err)
			}
			loads[i] = sprintLoad{sprint: sprint, issues: issues, fromCache: snap != nil}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return loads, nil
}

func (s *Service) mine(req Request, issues []jira.Issue) []jira.Issue {
	if req.Email == "" {
		return issues
	}
	return stats.FilterByUser(issues, req.Email)
}

func (c *CacheStats) add(fromCache bool) {
	if fromCache {
		c.Hits++
	} else {
		c.Misses++
	}
}

func startOf(sp jira.Sprint) time.Time {
	if sp.StartDate == nil {
		return time.Time{}
	}
	return *sp.StartDate
}

func nonEmpty(charts ...string) []string {
	var out []string
	for _, c := range charts {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}
