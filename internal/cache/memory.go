package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"pulse-mcp/internal/jira"
)

// MemoryStore keeps snapshots in process. Values are copied on the way in and out.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot
	opts  options
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		snaps: make(map[string]Snapshot),
		opts:  newOptions(opts),
	}
}

func (m *MemoryStore) Get(ctx context.Context, userID, projectKey string, sprintID *int, maxAge time.Duration) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.snaps[docID(userID, projectKey, sprintID)]
	if !ok || expired(m.opts.now(), snap.CapturedAt, maxAge) {
		return nil, nil
	}
	out := cloneSnapshot(snap)
	return &out, nil
}

func (m *MemoryStore) GetAll(ctx context.Context, userID, projectKey string, maxAge time.Duration) ([]Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.opts.now()
	var out []Snapshot
	for _, snap := range m.snaps {
		if snap.UserID != userID || snap.ProjectKey != projectKey {
			continue
		}
		if expired(now, snap.CapturedAt, maxAge) {
			continue
		}
		out = append(out, cloneSnapshot(snap))
	}
	sortSnapshots(out)
	return out, nil
}

func (m *MemoryStore) Put(ctx context.Context, snap Snapshot) error {
	if err := validateKey(snap.UserID, snap.ProjectKey); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := docID(snap.UserID, snap.ProjectKey, snap.SprintID)
	var prev *time.Time
	if existing, ok := m.snaps[id]; ok {
		prev = &existing.CapturedAt
	}

	stored := cloneSnapshot(snap)
	stored.CapturedAt = stamp(m.opts.now(), prev)
	m.snaps[id] = stored
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, userID, projectKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, snap := range m.snaps {
		if snap.UserID == userID && (projectKey == "" || snap.ProjectKey == projectKey) {
			delete(m.snaps, id)
		}
	}
	return nil
}

func (m *MemoryStore) List(ctx context.Context, userID string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []Entry
	for _, snap := range m.snaps {
		if snap.UserID == userID {
			entries = append(entries, entryOf(snap))
		}
	}
	sortEntries(entries)
	return entries, nil
}

func (m *MemoryStore) Close() error { return nil }

func cloneSnapshot(s Snapshot) Snapshot {
	out := s
	out.SprintID = cloneInt(s.SprintID)
	out.SprintStart = cloneTime(s.SprintStart)
	out.SprintEnd = cloneTime(s.SprintEnd)
	out.RangeStart = cloneTime(s.RangeStart)
	out.RangeEnd = cloneTime(s.RangeEnd)
	out.Issues = make([]jira.Issue, len(s.Issues))
	for i, issue := range s.Issues {
		c := issue
		c.Labels = slices.Clone(issue.Labels)
		if issue.StoryPoints != nil {
			p := *issue.StoryPoints
			c.StoryPoints = &p
		}
		out.Issues[i] = c
	}
	return out
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
