package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pulse-mcp/internal/cache"
	"pulse-mcp/internal/jira"
	"pulse-mcp/internal/metrics"
	"pulse-mcp/internal/users"
)

const usersYAML = `
default_user: jane
users:
  - id: jane
    email: jane.doe@example.com
    display_name: Jane Doe
    projects: [P]
    schedule:
      enabled: true
      frequency: weekly
  - id: ops
    projects: []
`

func pts(v float64) *float64 { return &v }

func newTestServer(t *testing.T) (*Server, *cache.MemoryStore) {
	t.Helper()
	dir, err := users.Parse([]byte(usersYAML))
	if err != nil {
		t.Fatal(err)
	}
	store := cache.NewMemoryStore()
	svc := metrics.NewService(store, nil, metrics.Options{})
	return NewServer(svc, dir, "test"), store
}

func seed(t *testing.T, store cache.Store, sprintID int, start time.Time, issues ...jira.Issue) {
	t.Helper()
	end := start.AddDate(0, 0, 13)
	if err := store.Put(context.Background(), cache.Snapshot{
		UserID: "jane", ProjectKey: "P", SprintID: cache.SprintRef(sprintID),
		SprintName: "Sprint", SprintStart: &start, SprintEnd: &end, Issues: issues,
	}); err != nil {
		t.Fatal(err)
	}
}

func issue(key, status, email string, points float64) jira.Issue {
	return jira.Issue{Key: key, Status: status, IssueType: "Story", AssigneeEmail: email, StoryPoints: pts(points)}
}

func TestGetMetrics_SprintFromCache(t *testing.T) {
	s, store := newTestServer(t)
	seed(t, store, 7, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		issue("P-1", "Done", "jane.doe@example.com", 3),
		issue("P-2", "To Do", "jane.doe@example.com", 2),
		issue("P-3", "Done", "bob@example.com", 8),
	)

	tests := []struct {
		scope     string
		wantTotal int
		wantVel   float64
	}{
		{"", 2, 3},
		{"mine", 2, 3},
		{"team", 3, 11},
	}
	for _, tt := range tests {
		t.Run("scope="+tt.scope, func(t *testing.T) {
			env, err := s.getMetrics(context.Background(), MetricsInput{SprintID: 7, Scope: tt.scope})
			if err != nil {
				t.Fatalf("getMetrics() error = %v", err)
			}
			rep := env.Data.(*metrics.Report)
			if !rep.FromCache || rep.TotalIssues != tt.wantTotal || rep.Velocity != tt.wantVel {
				t.Errorf("report = %+v", rep)
			}
			if len(env.Guidance) == 0 || env.Guidance[0] != "Served from cache." {
				t.Errorf("guidance = %v", env.Guidance)
			}
		})
	}
}

func TestGetMetrics_RangeStitched(t *testing.T) {
	s, store := newTestServer(t)
	jan1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seed(t, store, 1, jan1, issue("P-1", "Done", "jane.doe@example.com", 1))
	seed(t, store, 2, jan1.AddDate(0, 0, 14), issue("P-1", "Done", "jane.doe@example.com", 1), issue("P-2", "Done", "jane.doe@example.com", 2))

	env, err := s.getMetrics(context.Background(), MetricsInput{StartDate: "2024-01-10", EndDate: "2024-01-15", IncludeIssues: true})
	if err != nil {
		t.Fatalf("getMetrics() error = %v", err)
	}
	rep := env.Data.(*metrics.Report)
	if rep.SprintsCombined != 2 || rep.TotalIssues != 2 || len(rep.Issues) != 2 {
		t.Errorf("report = %+v", rep)
	}
	if !strings.Contains(env.Guidance[0], "2 overlapping snapshots") {
		t.Errorf("guidance = %v", env.Guidance)
	}
}

func TestGetMetrics_NoData(t *testing.T) {
	s, _ := newTestServer(t)
	env, err := s.getMetrics(context.Background(), MetricsInput{StartDate: "2024-01-10", EndDate: "2024-01-15"})
	if err != nil {
		t.Fatalf("getMetrics() error = %v", err)
	}
	if rep := env.Data.(*metrics.Report); !rep.NoData {
		t.Errorf("expected no data, got %+v", rep)
	}
	if !strings.HasPrefix(env.Guidance[0], "NO DATA") {
		t.Errorf("guidance = %v", env.Guidance)
	}
}

func TestGetMetrics_Errors(t *testing.T) {
	s, _ := newTestServer(t)
	tests := []struct {
		name    string
		in      MetricsInput
		wantErr error
	}{
		{"bad scope", MetricsInput{SprintID: 1, Scope: "everyone"}, metrics.ErrInvalidRequest},
		{"no sprint or range", MetricsInput{}, metrics.ErrInvalidRequest},
		{"bad date", MetricsInput{StartDate: "yesterday", EndDate: "2024-01-01"}, metrics.ErrInvalidRequest},
		{"unknown user", MetricsInput{UserID: "nobody", SprintID: 1}, users.ErrUnknownUser},
		{"no default project", MetricsInput{UserID: "ops", SprintID: 1}, metrics.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.getMetrics(context.Background(), tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseRange(t *testing.T) {
	from, to, err := parseRange("2024-01-10", "2024-01-15")
	if err != nil {
		t.Fatal(err)
	}
	if !from.Equal(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("from = %v", from)
	}
	if !to.Equal(time.Date(2024, 1, 15, 23, 59, 59, 0, time.UTC)) {
		t.Errorf("date-only end should cover the whole day, got %v", to)
	}

	_, to, err = parseRange("2024-01-10", "2024-01-15T08:00:00Z")
	if err != nil || to.Hour() != 8 {
		t.Errorf("explicit end time should be kept, got %v, %v", to, err)
	}
}

func TestListAndClearCache(t *testing.T) {
	s, store := newTestServer(t)
	seed(t, store, 1, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), issue("P-1", "Done", "", 1))
	ctx := context.Background()

	env, err := s.listCache(ctx, CacheInput{})
	if err != nil {
		t.Fatal(err)
	}
	data := env.Data.(map[string]any)
	if data["max_age_hours"] != 192 {
		t.Errorf("max_age_hours = %v, want 192 for a weekly cadence", data["max_age_hours"])
	}
	views := data["entries"].([]cacheView)
	if len(views) != 1 || !views[0].Fresh || views[0].IssueCount != 1 {
		t.Errorf("entries = %+v", views)
	}

	if _, err := s.clearCache(ctx, CacheInput{ProjectKey: "P"}); err != nil {
		t.Fatal(err)
	}
	env, _ = s.listCache(ctx, CacheInput{})
	if views := env.Data.(map[string]any)["entries"].([]cacheView); len(views) != 0 {
		t.Errorf("entries after clear = %+v", views)
	}
}

func TestRefresh_WithoutSource(t *testing.T) {
	s, _ := newTestServer(t)
	_, err := s.refresh(context.Background(), RefreshInput{})
	if !errors.Is(err, jira.ErrSourceUnavailable) {
		t.Errorf("error = %v, want ErrSourceUnavailable", err)
	}
}

func TestTools_OverInMemoryTransport(t *testing.T) {
	s, store := newTestServer(t)
	seed(t, store, 7, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), issue("P-1", "Done", "jane.doe@example.com", 5))
	ctx := context.Background()

	srv, err := s.build()
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	clientTransport, serverTransport := sdk.NewInMemoryTransports()
	ss, err := srv.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ss.Close()

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cs.Close()

	tools, err := cs.ListTools(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	names := make(map[string]bool)
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"get_metrics", "get_my_sprints", "get_current_sprint", "get_overview", "get_velocity", "refresh_cache", "list_cache", "clear_cache"} {
		if !names[want] {
			t.Errorf("tool %s not registered", want)
		}
	}

	res, err := cs.CallTool(ctx, &sdk.CallToolParams{Name: "get_metrics", Arguments: map[string]any{"sprint_id": 7}})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %+v", res.Content)
	}
	var env struct {
		Data struct {
			FromCache bool    `json:"from_cache"`
			Velocity  float64 `json:"velocity"`
		} `json:"data"`
	}
	text := res.Content[0].(*sdk.TextContent).Text
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		t.Fatalf("unmarshal %q: %v", text, err)
	}
	if !env.Data.FromCache || env.Data.Velocity != 5 {
		t.Errorf("tool payload = %s", text)
	}

	res, err = cs.CallTool(ctx, &sdk.CallToolParams{Name: "get_metrics", Arguments: map[string]any{"user_id": "nobody", "sprint_id": 7}})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("unknown user should surface as a tool error")
	}
}

func TestServer_Call(t *testing.T) {
	s, store := newTestServer(t)
	seed(t, store, 7, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), issue("P-1", "Done", "jane.doe@example.com", 5))
	ctx := context.Background()

	text, err := s.Call(ctx, "list_cache", map[string]any{})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if !strings.Contains(text, `"entries"`) {
		t.Errorf("list_cache payload = %s", text)
	}

	if _, err := s.Call(ctx, "get_metrics", map[string]any{"user_id": "nobody", "sprint_id": 7}); err == nil {
		t.Error("expected an error for an unknown user")
	}
}

func TestSchemaFor_Enum(t *testing.T) {
	schema, err := schemaFor[MetricsInput](map[string][]any{"scope": {"mine", "team"}})
	if err != nil {
		t.Fatal(err)
	}
	if schema.Type != "object" {
		t.Errorf("type = %q, want object", schema.Type)
	}
	if got := schema.Properties["scope"].Enum; len(got) != 2 {
		t.Errorf("scope enum = %v", got)
	}
	if len(schema.Required) != 0 {
		t.Errorf("every input is optional, got required %v", schema.Required)
	}
}
