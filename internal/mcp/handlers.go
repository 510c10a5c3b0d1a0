package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pulse-mcp/internal/cache"
	"pulse-mcp/internal/metrics"
)

func (s *Server) handleGetMetrics(ctx context.Context, _ *sdk.CallToolRequest, in MetricsInput) (*sdk.CallToolResult, any, error) {
	return s.respond(s.getMetrics(ctx, in))
}

func (s *Server) handleMySprints(ctx context.Context, _ *sdk.CallToolRequest, in SeriesInput) (*sdk.CallToolResult, any, error) {
	return s.respond(s.mySprints(ctx, in))
}

func (s *Server) handleCurrentSprint(ctx context.Context, _ *sdk.CallToolRequest, in SeriesInput) (*sdk.CallToolResult, any, error) {
	return s.respond(s.currentSprint(ctx, in))
}

func (s *Server) handleOverview(ctx context.Context, _ *sdk.CallToolRequest, in SeriesInput) (*sdk.CallToolResult, any, error) {
	return s.respond(s.overview(ctx, in))
}

func (s *Server) handleVelocity(ctx context.Context, _ *sdk.CallToolRequest, in SeriesInput) (*sdk.CallToolResult, any, error) {
	return s.respond(s.velocity(ctx, in))
}

func (s *Server) handleRefresh(ctx context.Context, _ *sdk.CallToolRequest, in RefreshInput) (*sdk.CallToolResult, any, error) {
	return s.respond(s.refresh(ctx, in))
}

func (s *Server) handleListCache(ctx context.Context, _ *sdk.CallToolRequest, in CacheInput) (*sdk.CallToolResult, any, error) {
	return s.respond(s.listCache(ctx, in))
}

func (s *Server) handleClearCache(ctx context.Context, _ *sdk.CallToolRequest, in CacheInput) (*sdk.CallToolResult, any, error) {
	return s.respond(s.clearCache(ctx, in))
}

func (s *Server) getMetrics(ctx context.Context, in MetricsInput) (ResponseEnvelope, error) {
	req, p, err := s.request(in.UserID, in.ProjectKey)
	if err != nil {
		return ResponseEnvelope{}, err
	}
	req.IncludeIssues = in.IncludeIssues

	var guidance []string
	switch in.Scope {
	case "", "mine":
		if p.Email == "" {
			guidance = append(guidance, "The profile has no email, so team-wide metrics are shown.")
		}
	case "team":
		req.Email = ""
	default:
		return ResponseEnvelope{}, fmt.Errorf("%w: scope must be 'mine' or 'team'", metrics.ErrInvalidRequest)
	}

	var rep *metrics.Report
	if in.SprintID > 0 {
		req.SprintID = cache.SprintRef(in.SprintID)
		rep, err = s.svc.ForSprint(ctx, req)
	} else {
		req.Start, req.End, err = parseRange(in.StartDate, in.EndDate)
		if err != nil {
			return ResponseEnvelope{}, err
		}
		rep, err = s.svc.ForRange(ctx, req)
	}
	if err != nil {
		return ResponseEnvelope{}, err
	}

	if rep.NoData {
		guidance = append(guidance, "NO DATA: nothing cached covers this request and no fetch was possible. Report this to the user; do not estimate metrics.",
			"Next Step: run 'refresh_cache' or request a specific sprint_id.")
	} else {
		guidance = append(guidance, sourceGuidance(rep.FromCache, rep.SprintsCombined))
	}
	return ResponseEnvelope{Data: rep, Guidance: guidance}, nil
}

func (s *Server) mySprints(ctx context.Context, in SeriesInput) (ResponseEnvelope, error) {
	req, _, err := s.request(in.UserID, in.ProjectKey)
	if err != nil {
		return ResponseEnvelope{}, err
	}
	rep, err := s.svc.MySprints(ctx, req, in.Count)
	if err != nil {
		return ResponseEnvelope{}, err
	}
	return ResponseEnvelope{
		Data: rep,
		Guidance: []string{
			fmt.Sprintf("%d of %d sprints were served from cache.", rep.CacheStats.Hits, rep.CacheStats.Hits+rep.CacheStats.Misses),
			"avg_velocity only counts sprints where the user completed points; avg_completion_rate only counts sprints where the user had issues.",
		},
	}, nil
}

func (s *Server) currentSprint(ctx context.Context, in SeriesInput) (ResponseEnvelope, error) {
	req, _, err := s.request(in.UserID, in.ProjectKey)
	if err != nil {
		return ResponseEnvelope{}, err
	}
	rep, err := s.svc.CurrentSprint(ctx, req)
	if err != nil {
		return ResponseEnvelope{}, err
	}
	env := ResponseEnvelope{Data: rep}
	if !rep.NoData {
		env.Guidance = []string{sourceGuidance(rep.FromCache, 1)}
	}
	return env, nil
}

func (s *Server) overview(ctx context.Context, in SeriesInput) (ResponseEnvelope, error) {
	req, _, err := s.request(in.UserID, in.ProjectKey)
	if err != nil {
		return ResponseEnvelope{}, err
	}
	rep, err := s.svc.Overview(ctx, req)
	if err != nil {
		return ResponseEnvelope{}, err
	}
	return ResponseEnvelope{Data: rep}, nil
}

func (s *Server) velocity(ctx context.Context, in SeriesInput) (ResponseEnvelope, error) {
	req, _, err := s.request(in.UserID, in.ProjectKey)
	if err != nil {
		return ResponseEnvelope{}, err
	}
	rep, err := s.svc.Velocity(ctx, req, in.Count)
	if err != nil {
		return ResponseEnvelope{}, err
	}
	return ResponseEnvelope{Data: rep, Guidance: []string{"Velocity is team-wide: every assignee's completed points are counted."}}, nil
}

func (s *Server) refresh(ctx context.Context, in RefreshInput) (ResponseEnvelope, error) {
	p, err := s.users.Lookup(in.UserID)
	if err != nil {
		return ResponseEnvelope{}, err
	}
	projects := in.Projects
	if len(projects) == 0 {
		projects = p.Projects
	}
	window := time.Duration(in.Days) * 24 * time.Hour

	res, err := s.svc.Refresh(ctx, p.ID, projects, window)
	if err != nil {
		return ResponseEnvelope{}, err
	}
	env := ResponseEnvelope{Data: res}
	if len(res.Failed) > 0 {
		env.Guidance = []string{"Some projects failed to refresh; their previous cache entries (if any) were kept."}
	}
	return env, nil
}

// cacheView is a cache entry annotated with its freshness for the user's cadence.
type cacheView struct {
	cache.Entry
	Fresh bool `json:"fresh"`
}

func (s *Server) listCache(ctx context.Context, in CacheInput) (ResponseEnvelope, error) {
	p, err := s.users.Lookup(in.UserID)
	if err != nil {
		return ResponseEnvelope{}, err
	}
	entries, err := s.svc.CacheEntries(ctx, p.ID)
	if err != nil {
		return ResponseEnvelope{}, err
	}

	project := strings.ToUpper(strings.TrimSpace(in.ProjectKey))
	maxAge := cache.MaxAge(p.Cadence)
	now := time.Now()
	views := make([]cacheView, 0, len(entries))
	for _, e := range entries {
		if project != "" && e.ProjectKey != project {
			continue
		}
		views = append(views, cacheView{Entry: e, Fresh: now.Sub(e.CapturedAt) <= maxAge})
	}

	return ResponseEnvelope{
		Data: map[string]any{
			"entries":       views,
			"max_age_hours": cache.MaxAgeHours(p.Cadence),
		},
	}, nil
}

func (s *Server) clearCache(ctx context.Context, in CacheInput) (ResponseEnvelope, error) {
	p, err := s.users.Lookup(in.UserID)
	if err != nil {
		return ResponseEnvelope{}, err
	}
	project := strings.ToUpper(strings.TrimSpace(in.ProjectKey))
	if err := s.svc.ClearCache(ctx, p.ID, project); err != nil {
		return ResponseEnvelope{}, err
	}
	scope := "all projects"
	if project != "" {
		scope = project
	}
	return ResponseEnvelope{Data: map[string]any{"cleared": scope, "user_id": p.ID}}, nil
}
