package jira

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2024-06-01T10:30:00.000+0200", time.Date(2024, 6, 1, 10, 30, 0, 0, time.FixedZone("", 2*3600)), false},
		{"2024-06-01T10:30:00Z", time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC), false},
		{"2024-06-01T10:30:00.123+02:00", time.Date(2024, 6, 1, 10, 30, 0, 123000000, time.FixedZone("", 2*3600)), false},
		{"2024-06-01T10:30:00", time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC), false},
		{"2024-06-01", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), false},
		{"2024-06-01T10:30", time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC), false},
		{"2024-06-01 10:00", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), false},
		{"2024-06-01 10:00:00+00:00", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), false},
		{"2024-06-01T10", time.Time{}, true},
		{"2024-06", time.Time{}, true},
		{"", time.Time{}, true},
		{"yesterday", time.Time{}, true},
	}

	for _, tt := range tests {
		got, err := ParseTime(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTime(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !got.Equal(tt.want) {
			t.Errorf("ParseTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMapIssue(t *testing.T) {
	raw := `{
		"key": "PULSE-7",
		"fields": {
			"summary": "Wire the cache",
			"issuetype": {"name": "Story"},
			"status": {"name": "In Review"},
			"assignee": {"displayName": "Jane Doe", "emailAddress": "jane.doe@example.com"},
			"priority": {"name": "High"},
			"labels": ["backend"],
			"created": "2024-06-01T09:00:00.000+0000",
			"resolutiondate": null,
			"customfield_10016": 5
		}
	}`

	var dto IssueDTO
	if err := json.Unmarshal([]byte(raw), &dto); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	issue, err := MapIssue(dto, "")
	if err != nil {
		t.Fatalf("MapIssue() error = %v", err)
	}
	if issue.Key != "PULSE-7" || issue.IssueType != "Story" || issue.Status != "In Review" {
		t.Errorf("MapIssue() basic fields = %+v", issue)
	}
	if issue.AssigneeEmail != "jane.doe@example.com" || issue.AssigneeDisplayName != "Jane Doe" {
		t.Errorf("MapIssue() assignee = %q/%q", issue.AssigneeDisplayName, issue.AssigneeEmail)
	}
	if issue.Points() != 5 {
		t.Errorf("Points() = %v, want 5", issue.Points())
	}
	if issue.Resolved != "" {
		t.Errorf("Resolved = %q, want empty", issue.Resolved)
	}
}

func TestMapIssue_Defaults(t *testing.T) {
	var dto IssueDTO
	if err := json.Unmarshal([]byte(`{"key":"PULSE-8","fields":{"story":"x","cf_pts":"3.5"}}`), &dto); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	issue, err := MapIssue(dto, "cf_pts")
	if err != nil {
		t.Fatalf("MapIssue() error = %v", err)
	}
	if issue.IssueType != "Task" {
		t.Errorf("IssueType = %q, want Task", issue.IssueType)
	}
	if issue.Status != "Unknown" {
		t.Errorf("Status = %q, want Unknown", issue.Status)
	}
	if issue.Points() != 3.5 {
		t.Errorf("Points() = %v, want 3.5", issue.Points())
	}
}

func TestMapIssue_RejectsMissingKey(t *testing.T) {
	if _, err := MapIssue(IssueDTO{}, ""); err == nil {
		t.Error("MapIssue() without key should fail")
	}
}

func TestMapSprint(t *testing.T) {
	s := MapSprint(SprintDTO{ID: 4, Name: "Sprint 4", State: "closed", StartDate: "2024-01-01T08:00:00.000Z", EndDate: "garbage"})
	if s.StartDate == nil || s.StartDate.Day() != 1 {
		t.Errorf("StartDate = %v, want 2024-01-01", s.StartDate)
	}
	if s.EndDate != nil {
		t.Errorf("EndDate = %v, want nil for unparsable input", s.EndDate)
	}
}
