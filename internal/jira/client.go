package jira

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrSourceUnavailable marks failures reaching Jira or authenticating against it.
	ErrSourceUnavailable = errors.New("jira source unavailable")
	// ErrNotFound is returned when a board, sprint or project does not exist.
	ErrNotFound = errors.New("jira resource not found")
)

// Issue is the normalized representation of one Jira work item.
// Created and Resolved keep the raw source timestamps so that a malformed
// date only degrades the metrics that depend on it.
type Issue struct {
	Key                 string   `json:"key" firestore:"key"`
	Summary             string   `json:"summary" firestore:"summary"`
	Status              string   `json:"status" firestore:"status"`
	IssueType           string   `json:"issue_type" firestore:"issue_type"`
	AssigneeDisplayName string   `json:"assignee,omitempty" firestore:"assignee,omitempty"`
	AssigneeEmail       string   `json:"assignee_email,omitempty" firestore:"assignee_email,omitempty"`
	StoryPoints         *float64 `json:"story_points,omitempty" firestore:"story_points,omitempty"`
	Priority            string   `json:"priority,omitempty" firestore:"priority,omitempty"`
	Labels              []string `json:"labels,omitempty" firestore:"labels,omitempty"`
	Created             string   `json:"created,omitempty" firestore:"created,omitempty"`
	Resolved            string   `json:"resolved,omitempty" firestore:"resolved,omitempty"`
}

// Points returns the story point estimate, 0 when absent.
func (i Issue) Points() float64 {
	if i.StoryPoints == nil {
		return 0
	}
	return *i.StoryPoints
}

// Validate checks the fields every downstream computation relies on.
func (i Issue) Validate() error {
	if strings.TrimSpace(i.Key) == "" {
		return fmt.Errorf("issue without key")
	}
	if i.StoryPoints != nil && *i.StoryPoints < 0 {
		return fmt.Errorf("issue %s has negative story points", i.Key)
	}
	return nil
}

// Sprint is an agile sprint as reported by a board.
type Sprint struct {
	ID           int        `json:"id"`
	Name         string     `json:"name"`
	State        string     `json:"state"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	CompleteDate *time.Time `json:"complete_date,omitempty"`
	BoardID      int        `json:"board_id,omitempty"`
}

// Board is an agile board attached to a project.
type Board struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	ProjectKey string `json:"project_key,omitempty"`
}

// Project is a Jira project the credentials can see.
type Project struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// User is the account behind the configured credentials.
type User struct {
	AccountID    string `json:"account_id"`
	DisplayName  string `json:"display_name"`
	EmailAddress string `json:"email_address"`
}

// Sprint states accepted by Client.Sprints.
const (
	SprintActive = "active"
	SprintClosed = "closed"
	SprintFuture = "future"
)

// Client is the interface for interacting with Jira.
type Client interface {
	Myself(ctx context.Context) (*User, error)
	Projects(ctx context.Context) ([]Project, error)
	Boards(ctx context.Context, projectKey string) ([]Board, error)
	Sprints(ctx context.Context, boardID int, states ...string) ([]Sprint, error)
	SprintIssues(ctx context.Context, sprintID int) ([]Issue, error)
	SearchByDateRange(ctx context.Context, projectKey string, start, end time.Time) ([]Issue, error)
}

// Config holds the authentication and connection settings for Jira.
type Config struct {
	BaseURL string

	// Cloud uses email + API token (basic auth). Data Center uses a PAT (bearer).
	Email string
	Token string

	StoryPointsField string

	// Performance Settings
	RequestDelay time.Duration
	PageSize     int
}

// NewClient creates a new Jira client based on the provided configuration.
func NewClient(cfg Config) Client {
	return NewHTTPClient(cfg)
}

// BoardFor returns the first board of a project.
func BoardFor(ctx context.Context, c Client, projectKey string) (Board, error) {
	boards, err := c.Boards(ctx, projectKey)
	if err != nil {
		return Board{}, err
	}
	if len(boards) == 0 {
		return Board{}, fmt.Errorf("no board for project %s: %w", projectKey, ErrNotFound)
	}
	return boards[0], nil
}
