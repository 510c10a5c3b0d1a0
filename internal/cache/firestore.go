package cache

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"pulse-mcp/internal/jira"
)

type snapshotDocument struct {
	UserID      string       `firestore:"user_id"`
	ProjectKey  string       `firestore:"project_key"`
	SprintID    *int64       `firestore:"sprint_id"`
	SprintName  string       `firestore:"sprint_name"`
	SprintStart *time.Time   `firestore:"sprint_start"`
	SprintEnd   *time.Time   `firestore:"sprint_end"`
	RangeStart  *time.Time   `firestore:"range_start"`
	RangeEnd    *time.Time   `firestore:"range_end"`
	IssueCount  int          `firestore:"issue_count"`
	Issues      []jira.Issue `firestore:"issues"`
	CapturedAt  time.Time    `firestore:"captured_at"`
}

func snapshotToDocument(s Snapshot) *snapshotDocument {
	doc := &snapshotDocument{
		UserID:      s.UserID,
		ProjectKey:  s.ProjectKey,
		SprintName:  s.SprintName,
		SprintStart: s.SprintStart,
		SprintEnd:   s.SprintEnd,
		RangeStart:  s.RangeStart,
		RangeEnd:    s.RangeEnd,
		IssueCount:  len(s.Issues),
		Issues:      s.Issues,
		CapturedAt:  s.CapturedAt,
	}
	if s.SprintID != nil {
		id := int64(*s.SprintID)
		doc.SprintID = &id
	}
	return doc
}

func snapshotToModel(doc *snapshotDocument) Snapshot {
	s := Snapshot{
		UserID:      doc.UserID,
		ProjectKey:  doc.ProjectKey,
		SprintName:  doc.SprintName,
		SprintStart: doc.SprintStart,
		SprintEnd:   doc.SprintEnd,
		RangeStart:  doc.RangeStart,
		RangeEnd:    doc.RangeEnd,
		Issues:      doc.Issues,
		CapturedAt:  doc.CapturedAt.UTC(),
	}
	if doc.SprintID != nil {
		id := int(*doc.SprintID)
		s.SprintID = &id
	}
	return s
}

// FirestoreStore keeps one document per snapshot in a Firestore collection.
type FirestoreStore struct {
	client *firestore.Client
	opts   options
}

var _ Store = (*FirestoreStore)(nil)

// OpenFirestore connects to the given project and database ("" for the default database).
func OpenFirestore(ctx context.Context, projectID, databaseID string, opts ...Option) (*FirestoreStore, error) {
	var client *firestore.Client
	var err error
	if databaseID == "" {
		client, err = firestore.NewClient(ctx, projectID)
	} else {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client for %s: %w", projectID, err)
	}
	return &FirestoreStore{client: client, opts: newOptions(opts)}, nil
}

func (f *FirestoreStore) collection() *firestore.CollectionRef {
	if f.opts.prefix != "" {
		return f.client.Collection(f.opts.prefix + "_sprint_cache")
	}
	return f.client.Collection("sprint_cache")
}

func (f *FirestoreStore) load(ctx context.Context, ref *firestore.DocumentRef) (*Snapshot, error) {
	doc, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get snapshot %s: %w", ref.ID, err)
	}
	var sd snapshotDocument
	if err := doc.DataTo(&sd); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot %s: %w", ref.ID, err)
	}
	snap := snapshotToModel(&sd)
	return &snap, nil
}

func (f *FirestoreStore) Get(ctx context.Context, userID, projectKey string, sprintID *int, maxAge time.Duration) (*Snapshot, error) {
	snap, err := f.load(ctx, f.collection().Doc(docID(userID, projectKey, sprintID)))
	if err != nil || snap == nil {
		return nil, err
	}
	if expired(f.opts.now(), snap.CapturedAt, maxAge) {
		return nil, nil
	}
	return snap, nil
}

func (f *FirestoreStore) query(ctx context.Context, q firestore.Query, visit func(*snapshotDocument, *firestore.DocumentRef)) error {
	iter := q.Documents(ctx)
	defer iter.Stop()

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to iterate snapshots: %w", err)
		}
		var sd snapshotDocument
		if err := doc.DataTo(&sd); err != nil {
			return fmt.Errorf("failed to unmarshal snapshot %s: %w", doc.Ref.ID, err)
		}
		visit(&sd, doc.Ref)
	}
}

func (f *FirestoreStore) GetAll(ctx context.Context, userID, projectKey string, maxAge time.Duration) ([]Snapshot, error) {
	q := f.collection().Where("user_id", "==", userID).Where("project_key", "==", projectKey)

	now := f.opts.now()
	var out []Snapshot
	err := f.query(ctx, q, func(sd *snapshotDocument, _ *firestore.DocumentRef) {
		if !expired(now, sd.CapturedAt, maxAge) {
			out = append(out, snapshotToModel(sd))
		}
	})
	if err != nil {
		return nil, err
	}
	sortSnapshots(out)
	return out, nil
}

func (f *FirestoreStore) Put(ctx context.Context, snap Snapshot) error {
	if err := validateKey(snap.UserID, snap.ProjectKey); err != nil {
		return err
	}

	ref := f.collection().Doc(docID(snap.UserID, snap.ProjectKey, snap.SprintID))
	var prev *time.Time
	if existing, err := f.load(ctx, ref); err == nil && existing != nil {
		prev = &existing.CapturedAt
	}
	snap.CapturedAt = stamp(f.opts.now(), prev)

	if _, err := ref.Set(ctx, snapshotToDocument(snap)); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", ref.ID, err)
	}
	return nil
}

func (f *FirestoreStore) Delete(ctx context.Context, userID, projectKey string) error {
	q := f.collection().Where("user_id", "==", userID)
	if projectKey != "" {
		q = q.Where("project_key", "==", projectKey)
	}

	var refs []*firestore.DocumentRef
	if err := f.query(ctx, q, func(_ *snapshotDocument, ref *firestore.DocumentRef) {
		refs = append(refs, ref)
	}); err != nil {
		return err
	}

	for _, ref := range refs {
		if _, err := ref.Delete(ctx); err != nil {
			return fmt.Errorf("failed to delete snapshot %s: %w", ref.ID, err)
		}
	}
	return nil
}

func (f *FirestoreStore) List(ctx context.Context, userID string) ([]Entry, error) {
	q := f.collection().Where("user_id", "==", userID)

	var entries []Entry
	err := f.query(ctx, q, func(sd *snapshotDocument, _ *firestore.DocumentRef) {
		entry := entryOf(snapshotToModel(sd))
		entry.IssueCount = sd.IssueCount
		entries = append(entries, entry)
	})
	if err != nil {
		return nil, err
	}
	sortEntries(entries)
	return entries, nil
}

func (f *FirestoreStore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}
