package mcp

import (
	"github.com/google/jsonschema-go/jsonschema"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// MetricsInput selects one sprint or a date range.
type MetricsInput struct {
	UserID        string `json:"user_id,omitempty" jsonschema:"Profile id from the users file. Default: the default user."`
	ProjectKey    string `json:"project_key,omitempty" jsonschema:"The project key (e.g., PULSE). Default: the user's first project."`
	SprintID      int    `json:"sprint_id,omitempty" jsonschema:"Sprint id. When set, start_date and end_date are ignored."`
	StartDate     string `json:"start_date,omitempty" jsonschema:"Range start (YYYY-MM-DD)."`
	EndDate       string `json:"end_date,omitempty" jsonschema:"Range end, inclusive (YYYY-MM-DD)."`
	Scope         string `json:"scope,omitempty" jsonschema:"'mine' (default) keeps the user's issues, 'team' keeps every issue."`
	IncludeIssues bool   `json:"include_issues,omitempty" jsonschema:"If true, the issue list is returned with the metrics."`
}

// SeriesInput addresses a project for a user, optionally limiting the number of sprints.
type SeriesInput struct {
	UserID     string `json:"user_id,omitempty" jsonschema:"Profile id from the users file. Default: the default user."`
	ProjectKey string `json:"project_key,omitempty" jsonschema:"The project key. Default: the user's first project."`
	Count      int    `json:"count,omitempty" jsonschema:"Number of recent sprints to include."`
}

// RefreshInput warms the cache.
type RefreshInput struct {
	UserID   string   `json:"user_id,omitempty" jsonschema:"Profile id from the users file. Default: the default user."`
	Projects []string `json:"projects,omitempty" jsonschema:"Project keys to refresh. Default: the user's projects, or every accessible project."`
	Days     int      `json:"days,omitempty" jsonschema:"Days of history to fetch. Default: 30."`
}

// CacheInput addresses a user's cache, optionally one project.
type CacheInput struct {
	UserID     string `json:"user_id,omitempty" jsonschema:"Profile id from the users file. Default: the default user."`
	ProjectKey string `json:"project_key,omitempty" jsonschema:"Limit to one project. Omit to address the whole cache."`
}

func (s *Server) registerTools(srv *sdk.Server) error {
	metricsSchema, err := schemaFor[MetricsInput](map[string][]any{"scope": {"mine", "team"}})
	if err != nil {
		return err
	}
	seriesSchema, err := schemaFor[SeriesInput](nil)
	if err != nil {
		return err
	}
	refreshSchema, err := schemaFor[RefreshInput](nil)
	if err != nil {
		return err
	}
	cacheSchema, err := schemaFor[CacheInput](nil)
	if err != nil {
		return err
	}

	sdk.AddTool(srv, &sdk.Tool{
		Name: "get_metrics",
		Description: "Sprint or date-range metrics (totals, completion rate, velocity, histograms, average time to complete, streak). \n\n" +
			"Pass 'sprint_id' for one sprint, or 'start_date'/'end_date' for a range. Ranges are answered by stitching every cached sprint that overlaps them; " +
			"'from_cache' and 'sprints_combined' tell you where the numbers came from. If 'no_data' is true, report it to the user instead of estimating.",
		InputSchema: metricsSchema,
	}, s.handleGetMetrics)

	sdk.AddTool(srv, &sdk.Tool{
		Name:        "get_my_sprints",
		Description: "The user's last N closed or active sprints (default 6), oldest first, with per-sprint metrics, a summary (average velocity, average completion rate, streak) and cache hit statistics.",
		InputSchema: seriesSchema,
	}, s.handleMySprints)

	sdk.AddTool(srv, &sdk.Tool{
		Name:        "get_current_sprint",
		Description: "The active sprint of the project's board with the user's issues grouped by status.",
		InputSchema: seriesSchema,
	}, s.handleCurrentSprint)

	sdk.AddTool(srv, &sdk.Tool{
		Name:        "get_overview",
		Description: "The user's issues pooled across the last 10 sprints (deduplicated), with the most recently completed items and the weekly delivery cadence.",
		InputSchema: seriesSchema,
	}, s.handleOverview)

	sdk.AddTool(srv, &sdk.Tool{
		Name:        "get_velocity",
		Description: "Team velocity (completed story points, all assignees) over the last N closed sprints (default 5) and its average.",
		InputSchema: seriesSchema,
	}, s.handleVelocity)

	sdk.AddTool(srv, &sdk.Tool{
		Name:        "refresh_cache",
		Description: "Fetch recent activity for the user's projects and store it as date-range snapshots so later range queries are served from cache.",
		InputSchema: refreshSchema,
	}, s.handleRefresh)

	sdk.AddTool(srv, &sdk.Tool{
		Name:        "list_cache",
		Description: "List cached snapshots for the user (project, sprint, issue count, capture time) and the freshness window that applies to them.",
		InputSchema: cacheSchema,
	}, s.handleListCache)

	sdk.AddTool(srv, &sdk.Tool{
		Name:        "clear_cache",
		Description: "Delete cached snapshots for one project, or for every project when 'project_key' is omitted.",
		InputSchema: cacheSchema,
	}, s.handleClearCache)

	return nil
}

// schemaFor infers an object schema from T and pins the listed properties to enumerations.
func schemaFor[T any](enums map[string][]any) (*jsonschema.Schema, error) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, err
	}
	for name, values := range enums {
		if prop, ok := schema.Properties[name]; ok {
			prop.Enum = values
		}
	}
	return schema, nil
}
