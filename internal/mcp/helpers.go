package mcp

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pulse-mcp/internal/jira"
	"pulse-mcp/internal/metrics"
	"pulse-mcp/internal/users"
)

// ResponseEnvelope wraps tool data with hints for the calling agent.
type ResponseEnvelope struct {
	Data     any      `json:"data"`
	Guidance []string `json:"_guidance,omitempty"`
}

func (s *Server) respond(env ResponseEnvelope, err error) (*sdk.CallToolResult, any, error) {
	if err != nil {
		return nil, nil, err
	}
	return &sdk.CallToolResult{
		Content: []sdk.Content{&sdk.TextContent{Text: formatResult(env)}},
	}, nil, nil
}

func formatResult(data any) string {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(out)
}

// request resolves the profile and project for a tool call.
func (s *Server) request(userID, projectKey string) (metrics.Request, users.Profile, error) {
	p, err := s.users.Lookup(strings.TrimSpace(userID))
	if err != nil {
		return metrics.Request{}, users.Profile{}, err
	}

	projectKey = strings.ToUpper(strings.TrimSpace(projectKey))
	if projectKey == "" {
		if len(p.Projects) == 0 {
			return metrics.Request{}, p, fmt.Errorf("%w: project_key is required (user %s has no default project)", metrics.ErrInvalidRequest, p.ID)
		}
		projectKey = p.Projects[0]
	}

	return metrics.Request{
		UserID:     p.ID,
		Email:      p.Email,
		ProjectKey: projectKey,
		Cadence:    p.Cadence,
	}, p, nil
}

// parseRange reads YYYY-MM-DD (or full timestamps). A date-only end covers the whole day.
func parseRange(start, end string) (time.Time, time.Time, error) {
	if start == "" || end == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: provide sprint_id, or both start_date and end_date", metrics.ErrInvalidRequest)
	}
	from, err := jira.ParseTime(start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start_date: %v", metrics.ErrInvalidRequest, err)
	}
	to, err := jira.ParseTime(end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end_date: %v", metrics.ErrInvalidRequest, err)
	}
	if len(strings.TrimSpace(end)) == len("2006-01-02") {
		to = to.Add(24*time.Hour - time.Second)
	}
	return from, to, nil
}

func sourceGuidance(fromCache bool, combined int) string {
	switch {
	case fromCache && combined > 1:
		return fmt.Sprintf("Served from cache: %d overlapping snapshots were stitched and deduplicated by issue key.", combined)
	case fromCache:
		return "Served from cache."
	default:
		return "Fetched from Jira and written to the cache."
	}
}
