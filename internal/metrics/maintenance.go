package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"pulse-mcp/internal/cache"
)

// DefaultRefreshWindow is how far back a refresh fetches.
const DefaultRefreshWindow = 30 * 24 * time.Hour

// RefreshResult summarises a cache warm-up run.
type RefreshResult struct {
	Projects  int      `json:"projects"`
	Refreshed []string `json:"refreshed"`
	Failed    []string `json:"failed,omitempty"`
	Issues    int      `json:"issues"`
}

// Refresh fetches the last window of activity for each project and stores it
// as a date-range snapshot. An empty project list means every project the
// source can see. A failing project is logged and skipped.
func (s *Service) Refresh(ctx context.Context, userID string, projects []string, window time.Duration) (*RefreshResult, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	if s.source == nil {
		return nil, errNoSource
	}
	if window <= 0 {
		window = DefaultRefreshWindow
	}

	if len(projects) == 0 {
		all, err := s.source.Projects(ctx)
		if err != nil {
			return nil, sourceErr(err)
		}
		for _, p := range all {
			projects = append(projects, p.Key)
		}
	}

	end := s.opts.Now()
	start := end.Add(-window)
	res := &RefreshResult{Projects: len(projects)}

	for _, key := range projects {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		issues, err := s.source.SearchByDateRange(ctx, key, start, end)
		if err != nil {
			log.Warn().Err(err).Str("project", key).Msg("Refresh failed for project")
			res.Failed = append(res.Failed, key)
			continue
		}
		if err := s.store.Put(ctx, rangeSnapshot(userID, key, start, end, issues)); err != nil {
			log.Warn().Err(err).Str("project", key).Msg("Failed to store refreshed snapshot")
			res.Failed = append(res.Failed, key)
			continue
		}
		res.Refreshed = append(res.Refreshed, key)
		res.Issues += len(issues)
	}

	log.Info().Int("projects", res.Projects).Int("refreshed", len(res.Refreshed)).Int("failed", len(res.Failed)).Msg("Cache refresh finished")
	return res, nil
}

// CacheEntries lists what is cached for a user.
func (s *Service) CacheEntries(ctx context.Context, userID string) ([]cache.Entry, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	return s.store.List(ctx, userID)
}

// ClearCache deletes one project's snapshots, or all of the user's when projectKey is empty.
func (s *Service) ClearCache(ctx context.Context, userID, projectKey string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	if err := s.store.Delete(ctx, userID, projectKey); err != nil {
		return err
	}
	log.Info().Str("user", userID).Str("project", projectKey).Msg("Cache cleared")
	return nil
}
