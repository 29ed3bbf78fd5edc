package registry

import (
	"context"
	"fmt"

	"github.com/starford/webring/internal/apperr"
	"github.com/starford/webring/internal/checksum"
	"github.com/starford/webring/internal/collection"
	"github.com/starford/webring/internal/models"
	"github.com/starford/webring/internal/storage"
)

// Snapshot is the registry content at one document version.
type Snapshot = collection.Snapshot[models.Member]

// Store provides create, read, update and delete over the registry document.
// The document must already exist and carry both markers.
type Store struct {
	docs  *collection.Collection[models.Member]
	codec *Codec
	files storage.Provider
}

// NewStore creates a store for the registry document at path inside files.
func NewStore(files storage.Provider, path string, codec *Codec, opts ...collection.Option) *Store {
	return &Store{
		docs:  collection.New[models.Member](files, path, codec, opts...),
		codec: codec,
		files: files,
	}
}

// Path returns the registry document path relative to its storage root.
func (s *Store) Path() string { return s.docs.Path() }

// List returns every member in document order with the document version.
func (s *Store) List(ctx context.Context) (Snapshot, error) {
	return s.docs.Load(ctx)
}

// Get returns the member with id.
func (s *Store) Get(ctx context.Context, id string) (models.Member, error) {
	snap, err := s.docs.Load(ctx)
	if err != nil {
		return models.Member{}, err
	}
	if i := indexOf(snap.Records, id); i >= 0 {
		return snap.Records[i], nil
	}
	return models.Member{}, fmt.Errorf("%w: member %q", apperr.ErrNotFound, id)
}

// Create appends m to the end of the managed region.
func (s *Store) Create(ctx context.Context, m models.Member) (models.Member, error) {
	m, err := prepare(m)
	if err != nil {
		return models.Member{}, err
	}
	_, err = s.docs.Update(ctx, func(cur Snapshot) ([]models.Member, error) {
		if indexOf(cur.Records, m.ID) >= 0 {
			return nil, fmt.Errorf("%w: member %q already exists", apperr.ErrConflict, m.ID)
		}
		return append(cur.Records, m), nil
	})
	if err != nil {
		return models.Member{}, err
	}
	return m, nil
}

// Update replaces the member identified by targetID with m, keeping its
// position. m.ID may differ from targetID to rename the entry. A non-empty
// ifMatch must equal the current document version.
func (s *Store) Update(ctx context.Context, targetID string, m models.Member, ifMatch string) (models.Member, error) {
	m, err := prepare(m)
	if err != nil {
		return models.Member{}, err
	}
	if targetID == "" {
		targetID = m.ID
	}
	_, err = s.docs.Update(ctx, func(cur Snapshot) ([]models.Member, error) {
		if !checksum.Matches(ifMatch, cur.Version) {
			return nil, fmt.Errorf("%w: registry changed since version %s", apperr.ErrConflict, ifMatch)
		}
		i := indexOf(cur.Records, targetID)
		if i < 0 {
			return nil, fmt.Errorf("%w: member %q", apperr.ErrNotFound, targetID)
		}
		if m.ID != targetID && indexOf(cur.Records, m.ID) >= 0 {
			return nil, fmt.Errorf("%w: member %q already exists", apperr.ErrConflict, m.ID)
		}
		next := append([]models.Member(nil), cur.Records...)
		next[i] = m
		return next, nil
	})
	if err != nil {
		return models.Member{}, err
	}
	return m, nil
}

// Delete removes the member with id.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.docs.Update(ctx, func(cur Snapshot) ([]models.Member, error) {
		i := indexOf(cur.Records, id)
		if i < 0 {
			return nil, fmt.Errorf("%w: member %q", apperr.ErrNotFound, id)
		}
		next := make([]models.Member, 0, len(cur.Records)-1)
		next = append(next, cur.Records[:i]...)
		return append(next, cur.Records[i+1:]...), nil
	})
	return err
}

// Inspect decodes the current document and reports dropped blocks and
// duplicate ids without modifying anything.
func (s *Store) Inspect(_ context.Context) (Report, string, error) {
	doc, err := s.files.Read(s.docs.Path())
	if err != nil {
		return Report{}, "", fmt.Errorf("%w: %w", apperr.ErrStorage, err)
	}
	rep, err := s.codec.Scan(doc)
	if err != nil {
		return Report{}, "", err
	}
	return rep, checksum.Sum(doc), nil
}

func prepare(m models.Member) (models.Member, error) {
	m = m.Normalize()
	if err := m.Validate(); err != nil {
		return models.Member{}, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	return m, nil
}

func indexOf(members []models.Member, id string) int {
	for i, m := range members {
		if m.ID == id {
			return i
		}
	}
	return -1
}
