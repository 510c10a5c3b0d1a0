// Package metrics answers sprint and date-range metric requests from cached
// snapshots, falling back to the issue source on a miss and writing the
// fetched data back to the cache.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"pulse-mcp/internal/cache"
	"pulse-mcp/internal/jira"
	"pulse-mcp/internal/stats"
)

// ErrInvalidRequest is returned when a request lacks the fields its path needs.
var ErrInvalidRequest = errors.New("invalid metrics request")

var errNoSource = fmt.Errorf("%w: no issue source configured", jira.ErrSourceUnavailable)

// Options tunes the orchestrator.
type Options struct {
	// PreferRecent makes the most recently captured snapshot win key conflicts when stitching.
	PreferRecent bool
	// FetchOnMiss allows the date-range path to query the source when no snapshot overlaps.
	FetchOnMiss bool
	// MaxConcurrency bounds parallel sprint loads in series requests.
	MaxConcurrency int
	// Charts adds Mermaid charts to series reports.
	Charts bool
	// Now replaces time.Now for "today" in streaks and cadence windows.
	Now func() time.Time
}

// Request identifies whose metrics are wanted and over which scope.
type Request struct {
	UserID     string
	Email      string
	ProjectKey string
	SprintID   *int
	Start      time.Time
	End        time.Time
	Cadence    cache.Cadence

	IncludeIssues bool
}

// Report is a MetricsResult plus where it came from.
type Report struct {
	stats.Result
	ProjectKey      string       `json:"project_key"`
	SprintID        *int         `json:"sprint_id,omitempty"`
	SprintName      string       `json:"sprint_name,omitempty"`
	FromCache       bool         `json:"from_cache"`
	SprintsCombined int          `json:"sprints_combined,omitempty"`
	NoData          bool         `json:"no_data,omitempty"`
	Message         string       `json:"message,omitempty"`
	Issues          []jira.Issue `json:"issues,omitempty"`
}

// Service is the metrics orchestrator. The source may be nil, in which case
// only cached data is served.
type Service struct {
	store  cache.Store
	source jira.Client
	opts   Options
}

// NewService wires a store and an optional issue source.
func NewService(store cache.Store, source jira.Client, opts Options) *Service {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{store: store, source: source, opts: opts}
}

func (r Request) validate(needSprint bool) error {
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.ProjectKey) == "" {
		return fmt.Errorf("%w: project key is required", ErrInvalidRequest)
	}
	if needSprint && r.SprintID == nil {
		return fmt.Errorf("%w: sprint id is required", ErrInvalidRequest)
	}
	return nil
}

// ForSprint computes metrics for one sprint, from cache when fresh.
func (s *Service) ForSprint(ctx context.Context, req Request) (*Report, error) {
	if err := req.validate(true); err != nil {
		return nil, err
	}

	sprint := jira.Sprint{ID: *req.SprintID}
	issues, snap, err := s.loadSprint(ctx, req, sprint, true)
	if errors.Is(err, errNoSource) {
		return s.noData(req, "No fresh cached data for this sprint and no issue source is configured"), nil
	}
	if err != nil {
		return nil, err
	}

	rep := s.report(req, issues)
	rep.SprintID = req.SprintID
	rep.FromCache = snap != nil
	if snap != nil {
		rep.SprintName = snap.SprintName
	}
	return rep, nil
}

// ForRange computes metrics for a date range by stitching every cached
// snapshot that overlaps it. When the stitched set is empty it fetches the
// range from the source (if allowed) and caches it as a date-range snapshot.
func (s *Service) ForRange(ctx context.Context, req Request) (*Report, error) {
	if err := req.validate(false); err != nil {
		return nil, err
	}
	if req.Start.IsZero() || req.End.IsZero() {
		return nil, fmt.Errorf("%w: start and end dates are required", ErrInvalidRequest)
	}
	if req.End.Before(req.Start) {
		return nil, fmt.Errorf("%w: end date is before start date", ErrInvalidRequest)
	}

	snaps, err := s.store.GetAll(ctx, req.UserID, req.ProjectKey, cache.MaxAge(req.Cadence))
	if err != nil {
		log.Warn().Err(err).Str("project", req.ProjectKey).Msg("Cache read failed, treating as miss")
		snaps = nil
	}

	var stitched stats.StitchResult
	if s.opts.PreferRecent {
		stitched = stats.StitchLatest(snaps, req.Start, req.End)
	} else {
		stitched = stats.Stitch(snaps, req.Start, req.End)
	}

	if stitched.SprintsIncluded > 0 && len(stitched.Issues) > 0 {
		log.Debug().Str("project", req.ProjectKey).Int("snapshots", stitched.SprintsIncluded).Int("issues", len(stitched.Issues)).Msg("Range served from cache")
		rep := s.report(req, stitched.Issues)
		rep.FromCache = true
		rep.SprintsCombined = stitched.SprintsIncluded
		return rep, nil
	}

	if s.source == nil || !s.opts.FetchOnMiss {
		return s.noData(req, "No cached sprint data overlaps the requested range"), nil
	}

	log.Info().Str("project", req.ProjectKey).Time("start", req.Start).Time("end", req.End).Msg("Range cache miss, fetching from source")
	issues, err := s.source.SearchByDateRange(ctx, req.ProjectKey, req.Start, req.End)
	if err != nil {
		return nil, sourceErr(err)
	}

	s.persist(ctx, rangeSnapshot(req.UserID, req.ProjectKey, req.Start, req.End, issues))
	return s.report(req, issues), nil
}

// loadSprint returns a sprint's full issue set. The snapshot is non-nil when
// the issues came from the cache. With describe set, a miss looks the sprint
// up on the project board so the written snapshot carries its dates.
func (s *Service) loadSprint(ctx context.Context, req Request, sprint jira.Sprint, describe bool) ([]jira.Issue, *cache.Snapshot, error) {
	id := sprint.ID
	snap, err := s.store.Get(ctx, req.UserID, req.ProjectKey, &id, cache.MaxAge(req.Cadence))
	if err != nil {
		log.Warn().Err(err).Str("project", req.ProjectKey).Int("sprint", id).Msg("Cache read failed, treating as miss")
	} else if snap != nil {
		log.Debug().Str("project", req.ProjectKey).Int("sprint", id).Time("captured_at", snap.CapturedAt).Msg("Sprint cache hit")
		return snap.Issues, snap, nil
	}

	if s.source == nil {
		return nil, nil, errNoSource
	}

	if describe {
		sprint = s.describeSprint(ctx, req.ProjectKey, sprint)
	}

	log.Info().Str("project", req.ProjectKey).Int("sprint", id).Msg("Sprint cache miss, fetching from source")
	issues, err := s.source.SprintIssues(ctx, id)
	if err != nil {
		return nil, nil, sourceErr(err)
	}

	s.persist(ctx, cache.Snapshot{
		UserID:      req.UserID,
		ProjectKey:  req.ProjectKey,
		SprintID:    &id,
		SprintName:  sprint.Name,
		SprintStart: sprint.StartDate,
		SprintEnd:   sprint.EndDate,
		Issues:      issues,
	})
	return issues, nil, nil
}

// describeSprint fills in name and dates from the board listing. Lookup
// failures leave the sprint as given.
func (s *Service) describeSprint(ctx context.Context, projectKey string, sprint jira.Sprint) jira.Sprint {
	board, err := jira.BoardFor(ctx, s.source, projectKey)
	if err != nil {
		log.Debug().Err(err).Str("project", projectKey).Msg("Board lookup failed, sprint stored without dates")
		return sprint
	}
	sprints, err := s.source.Sprints(ctx, board.ID)
	if err != nil {
		log.Debug().Err(err).Int("board", board.ID).Msg("Sprint lookup failed, sprint stored without dates")
		return sprint
	}
	for _, sp := range sprints {
		if sp.ID == sprint.ID {
			return sp
		}
	}
	return sprint
}

// persist writes a snapshot. Failures are logged and otherwise ignored.
func (s *Service) persist(ctx context.Context, snap cache.Snapshot) {
	if err := s.store.Put(ctx, snap); err != nil {
		log.Warn().Err(err).Str("project", snap.ProjectKey).Int("issues", len(snap.Issues)).Msg("Failed to persist snapshot, returning fresh metrics anyway")
		return
	}
	log.Info().Str("project", snap.ProjectKey).Int("issues", len(snap.Issues)).Msg("Snapshot cached")
}

func (s *Service) report(req Request, issues []jira.Issue) *Report {
	issues = s.mine(req, issues)
	rep := &Report{
		Result:     stats.AggregateWithDerived(issues, s.opts.Now()),
		ProjectKey: req.ProjectKey,
	}
	if req.IncludeIssues {
		rep.Issues = issues
	}
	return rep
}

func (s *Service) noData(req Request, msg string) *Report {
	rep := s.report(req, nil)
	rep.SprintID = req.SprintID
	rep.NoData = true
	rep.Message = msg
	return rep
}

// rangeSnapshot records a date-range capture. The range doubles as the
// snapshot's sprint window so later stitching can test it for overlap.
func rangeSnapshot(userID, projectKey string, start, end time.Time, issues []jira.Issue) cache.Snapshot {
	return cache.Snapshot{
		UserID:      userID,
		ProjectKey:  projectKey,
		SprintStart: &start,
		SprintEnd:   &end,
		RangeStart:  &start,
		RangeEnd:    &end,
		Issues:      issues,
	}
}

// sourceErr keeps source sentinels and context errors, and classifies
// anything else as the source being unavailable.
func sourceErr(err error) error {
	switch {
	case errors.Is(err, jira.ErrSourceUnavailable), errors.Is(err, jira.ErrNotFound),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", jira.ErrSourceUnavailable, err)
	}
}
