package ledger

import (
	"context"
	"fmt"

	"github.com/starford/webring/internal/apperr"
	"github.com/starford/webring/internal/collection"
	"github.com/starford/webring/internal/models"
	"github.com/starford/webring/internal/storage"
)

// Snapshot is the ledger content at one document version.
type Snapshot = collection.Snapshot[models.Submission]

// Queue is the submission queue. It holds only pending submissions.
type Queue struct {
	docs *collection.Collection[models.Submission]
}

// NewQueue creates a queue backed by the ledger at path inside files.
// A missing ledger reads as empty and is created on first write.
func NewQueue(files storage.Provider, path string, opts ...collection.Option) *Queue {
	opts = append([]collection.Option{collection.WithMissingDocument(emptyDocument)}, opts...)
	return &Queue{docs: collection.New[models.Submission](files, path, Format{}, opts...)}
}

// Path returns the ledger path relative to its storage root.
func (q *Queue) Path() string { return q.docs.Path() }

// Enqueue appends s. Ids are not checked for uniqueness.
func (q *Queue) Enqueue(ctx context.Context, s models.Submission) (models.Submission, error) {
	_, err := q.docs.Update(ctx, func(cur Snapshot) ([]models.Submission, error) {
		return append(cur.Records, s), nil
	})
	if err != nil {
		return models.Submission{}, err
	}
	return s, nil
}

// List returns pending submissions in arrival order.
func (q *Queue) List(ctx context.Context) ([]models.Submission, error) {
	snap, err := q.docs.Load(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Records, nil
}

// Get returns the first pending submission with id.
func (q *Queue) Get(ctx context.Context, id string) (models.Submission, error) {
	subs, err := q.List(ctx)
	if err != nil {
		return models.Submission{}, err
	}
	if i := indexOf(subs, id); i >= 0 {
		return subs[i], nil
	}
	return models.Submission{}, fmt.Errorf("%w: submission %q", apperr.ErrNotFound, id)
}

// Take removes the first pending submission with id. While the ledger lock is
// held, fn is called with the submission; if it returns an error the ledger
// is left untouched and that error is returned. Take returns the number of
// submissions still pending.
func (q *Queue) Take(ctx context.Context, id string, fn func(models.Submission) error) (int, error) {
	snap, err := q.docs.Update(ctx, func(cur Snapshot) ([]models.Submission, error) {
		i := indexOf(cur.Records, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: submission %q", apperr.ErrNotFound, id)
		}
		if fn != nil {
			if err := fn(cur.Records[i]); err != nil {
				return nil, err
			}
		}
		next := make([]models.Submission, 0, len(cur.Records)-1)
		next = append(next, cur.Records[:i]...)
		return append(next, cur.Records[i+1:]...), nil
	})
	if err != nil {
		return 0, err
	}
	return len(snap.Records), nil
}

func indexOf(subs []models.Submission, id string) int {
	for i, s := range subs {
		if s.ID == id {
			return i
		}
	}
	return -1
}
