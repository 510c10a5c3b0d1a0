package jira

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultStoryPointsField is the custom field most Jira Cloud sites use for estimates.
const DefaultStoryPointsField = "customfield_10016"

var timeLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime accepts the strict Jira format plus the ISO variants found in cached data.
// Anything else without a "T" is read as the date in its first 10 characters.
// The returned time keeps whatever offset the input carried.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	if !strings.Contains(s, "T") && len(s) >= 10 {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// ParseOptionalTime returns nil for empty or unparsable input.
func ParseOptionalTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := ParseTime(s)
	if err != nil {
		return nil
	}
	return &t
}

// MapIssue transforms a Jira DTO into a domain Issue and validates it.
func MapIssue(item IssueDTO, pointsField string) (Issue, error) {
	issue := Issue{
		Key:      item.Key,
		Summary:  item.Fields.Summary,
		Status:   "Unknown",
		Labels:   item.Fields.Labels,
		Created:  item.Fields.Created,
		Resolved: item.Fields.ResolutionDate,
	}

	if item.Fields.IssueType != nil && item.Fields.IssueType.Name != "" {
		issue.IssueType = item.Fields.IssueType.Name
	} else {
		issue.IssueType = "Task"
	}
	if item.Fields.Status != nil && item.Fields.Status.Name != "" {
		issue.Status = item.Fields.Status.Name
	}
	if item.Fields.Assignee != nil {
		issue.AssigneeDisplayName = item.Fields.Assignee.DisplayName
		issue.AssigneeEmail = item.Fields.Assignee.EmailAddress
	}
	if item.Fields.Priority != nil {
		issue.Priority = item.Fields.Priority.Name
	}

	if pointsField == "" {
		pointsField = DefaultStoryPointsField
	}
	if raw, ok := item.Fields.Custom[pointsField]; ok {
		issue.StoryPoints = parsePoints(raw)
	}

	if err := issue.Validate(); err != nil {
		return Issue{}, err
	}
	return issue, nil
}

func parsePoints(raw json.RawMessage) *float64 {
	var f *float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return &v
		}
	}
	return nil
}

// MapSprint converts the agile sprint payload.
func MapSprint(dto SprintDTO) Sprint {
	return Sprint{
		ID:           dto.ID,
		Name:         dto.Name,
		State:        dto.State,
		StartDate:    ParseOptionalTime(dto.StartDate),
		EndDate:      ParseOptionalTime(dto.EndDate),
		CompleteDate: ParseOptionalTime(dto.CompleteDate),
		BoardID:      dto.OriginBoardID,
	}
}

// MapBoard converts the agile board payload.
func MapBoard(dto BoardDTO) Board {
	return Board{
		ID:         dto.ID,
		Name:       dto.Name,
		Type:       dto.Type,
		ProjectKey: dto.Location.ProjectKey,
	}
}
