package cache

import (
	"context"
	"errors"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"pulse-mcp/internal/jira"
)

// ErrInvalidKey is returned when a snapshot lacks its user or project.
var ErrInvalidKey = errors.New("cache key requires user and project")

// Snapshot is one cached capture of a sprint's (or a date range's) issues.
// A nil SprintID marks a date-range snapshot.
type Snapshot struct {
	UserID      string       `json:"user_id"`
	ProjectKey  string       `json:"project_key"`
	SprintID    *int         `json:"sprint_id,omitempty"`
	SprintName  string       `json:"sprint_name,omitempty"`
	SprintStart *time.Time   `json:"sprint_start,omitempty"`
	SprintEnd   *time.Time   `json:"sprint_end,omitempty"`
	RangeStart  *time.Time   `json:"range_start,omitempty"`
	RangeEnd    *time.Time   `json:"range_end,omitempty"`
	Issues      []jira.Issue `json:"issues"`
	CapturedAt  time.Time    `json:"captured_at"`
}

// Entry describes a stored snapshot without its issues.
type Entry struct {
	ID          string     `json:"id"`
	ProjectKey  string     `json:"project_key"`
	SprintID    *int       `json:"sprint_id,omitempty"`
	SprintName  string     `json:"sprint_name,omitempty"`
	SprintStart *time.Time `json:"sprint_start,omitempty"`
	SprintEnd   *time.Time `json:"sprint_end,omitempty"`
	RangeStart  *time.Time `json:"range_start,omitempty"`
	RangeEnd    *time.Time `json:"range_end,omitempty"`
	IssueCount  int        `json:"issue_count"`
	CapturedAt  time.Time  `json:"captured_at"`
}

// Store persists sprint snapshots keyed by (user, project, sprint).
//
// Expiry is checked at read time: a snapshot older than maxAge is reported
// as absent but stays stored until it is replaced or deleted. A maxAge of
// zero or less disables the check. Put replaces the whole record and stamps
// CapturedAt so it never moves backwards for a key.
type Store interface {
	Get(ctx context.Context, userID, projectKey string, sprintID *int, maxAge time.Duration) (*Snapshot, error)
	GetAll(ctx context.Context, userID, projectKey string, maxAge time.Duration) ([]Snapshot, error)
	Put(ctx context.Context, snap Snapshot) error
	Delete(ctx context.Context, userID, projectKey string) error
	List(ctx context.Context, userID string) ([]Entry, error)
	Close() error
}

// Option configures a Store backend.
type Option func(*options)

type options struct {
	now    func() time.Time
	prefix string
}

// WithClock replaces time.Now, used for expiry checks and CapturedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithPrefix namespaces tables, collections or directories.
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

func newOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// SprintRef builds the optional sprint id argument.
func SprintRef(id int) *int {
	return &id
}

func sprintKey(id *int) string {
	if id == nil {
		return "range"
	}
	return strconv.Itoa(*id)
}

func parseSprintKey(s string) *int {
	if s == "range" {
		return nil
	}
	id, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &id
}

// docID joins the key parts with ":", which QueryEscape always escapes inside a part.
func docID(userID, projectKey string, sprintID *int) string {
	return strings.Join([]string{url.QueryEscape(userID), url.QueryEscape(projectKey), sprintKey(sprintID)}, ":")
}

func validateKey(userID, projectKey string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(projectKey) == "" {
		return ErrInvalidKey
	}
	return nil
}

func expired(now, capturedAt time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	return now.Sub(capturedAt) > maxAge
}

// stamp returns the CapturedAt for a replace: now, unless the stored record is newer.
func stamp(now time.Time, previous *time.Time) time.Time {
	now = now.UTC()
	if previous != nil && previous.After(now) {
		return previous.UTC()
	}
	return now
}

// sortSnapshots orders by capture time, then sprint, so every backend iterates alike.
func sortSnapshots(snaps []Snapshot) {
	slices.SortStableFunc(snaps, func(a, b Snapshot) int {
		if c := a.CapturedAt.Compare(b.CapturedAt); c != 0 {
			return c
		}
		return strings.Compare(sprintKey(a.SprintID), sprintKey(b.SprintID))
	})
}

func sortEntries(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		if c := strings.Compare(a.ProjectKey, b.ProjectKey); c != 0 {
			return c
		}
		return b.CapturedAt.Compare(a.CapturedAt)
	})
}

func entryOf(s Snapshot) Entry {
	return Entry{
		ID:          docID(s.UserID, s.ProjectKey, s.SprintID),
		ProjectKey:  s.ProjectKey,
		SprintID:    s.SprintID,
		SprintName:  s.SprintName,
		SprintStart: s.SprintStart,
		SprintEnd:   s.SprintEnd,
		RangeStart:  s.RangeStart,
		RangeEnd:    s.RangeEnd,
		IssueCount:  len(s.Issues),
		CapturedAt:  s.CapturedAt,
	}
}

// payload is the serialized body for the SQL backends; the key and
// CapturedAt live in their own columns.
type payload struct {
	SprintName  string       `json:"sprint_name,omitempty"`
	SprintStart *time.Time   `json:"sprint_start,omitempty"`
	SprintEnd   *time.Time   `json:"sprint_end,omitempty"`
	RangeStart  *time.Time   `json:"range_start,omitempty"`
	RangeEnd    *time.Time   `json:"range_end,omitempty"`
	Issues      []jira.Issue `json:"issues"`
}

func payloadOf(s Snapshot) payload {
	return payload{
		SprintName:  s.SprintName,
		SprintStart: s.SprintStart,
		SprintEnd:   s.SprintEnd,
		RangeStart:  s.RangeStart,
		RangeEnd:    s.RangeEnd,
		Issues:      s.Issues,
	}
}

func (p payload) snapshot(userID, projectKey string, sprintID *int, capturedAt time.Time) Snapshot {
	return Snapshot{
		UserID:      userID,
		ProjectKey:  projectKey,
		SprintID:    sprintID,
		SprintName:  p.SprintName,
		SprintStart: p.SprintStart,
		SprintEnd:   p.SprintEnd,
		RangeStart:  p.RangeStart,
		RangeEnd:    p.RangeEnd,
		Issues:      p.Issues,
		CapturedAt:  capturedAt,
	}
}
