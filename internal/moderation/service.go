// Package moderation implements the submission workflow and the member
// operations available to moderators.
//
// A submission is pending while it is in the ledger. Promotion appends it to
// the registry and then removes it from the ledger; rejection only removes
// it. Neither outcome is recorded anywhere else.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/starford/webring/internal/apperr"
	"github.com/starford/webring/internal/index"
	"github.com/starford/webring/internal/ledger"
	"github.com/starford/webring/internal/metrics"
	"github.com/starford/webring/internal/models"
	"github.com/starford/webring/internal/registry"
	"github.com/starford/webring/internal/sse"
)

const defaultSearchLimit = 20

// Notifier receives change notifications after successful operations.
type Notifier interface {
	PublishChange(kind, id string)
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	ID        string          `json:"id"`
	Action    models.Decision `json:"action"`
	Remaining int             `json:"remaining"`
}

// MemberDetail is a member plus the ids of members connected to it.
type MemberDetail struct {
	models.Member
	ConnectedFrom []string `json:"connectedFrom"`
}

// Service coordinates the submission queue, the registry and the derived
// search index.
type Service struct {
	queue    *ledger.Queue
	registry *registry.Store

	index   index.MemberIndex
	events  Notifier
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	syncMu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithIndex enables the SQLite search index.
func WithIndex(idx index.MemberIndex) Option { return func(s *Service) { s.index = idx } }

// WithNotifier sets where change notifications go.
func WithNotifier(n Notifier) Option { return func(s *Service) { s.events = n } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithClock overrides time.Now for submission timestamps.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService creates a moderation service.
func NewService(queue *ledger.Queue, reg *registry.Store, opts ...Option) *Service {
	s := &Service{
		queue:    queue,
		registry: reg,
		logger:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates a public application and appends it to the queue.
func (s *Service) Submit(ctx context.Context, in models.SubmissionInput) (models.Submission, error) {
	if err := in.Validate(); err != nil {
		return models.Submission{}, s.fail(fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err))
	}
	sub := in.Submission(s.now())
	if !models.SlugPattern.MatchString(sub.ID) {
		return models.Submission{}, s.fail(fmt.Errorf("%w: name must contain a letter or digit", apperr.ErrInvalidInput))
	}

	start := time.Now()
	sub, err := s.queue.Enqueue(ctx, sub)
	s.metrics.ObserveLatency("enqueue", time.Since(start))
	if err != nil {
		return models.Submission{}, s.fail(err)
	}

	s.metrics.IncSubmission()
	s.notify(sse.SubmissionCreated, sub.ID)
	s.logger.Info("submission received", slog.String("id", sub.ID))
	return sub, nil
}

// ListSubmissions returns pending submissions in arrival order.
func (s *Service) ListSubmissions(ctx context.Context) ([]models.Submission, error) {
	subs, err := s.queue.List(ctx)
	if err != nil {
		return nil, s.fail(err)
	}
	return subs, nil
}

// Resolve applies decision to the pending submission id. Promotion holds the
// ledger lock while the registry is written, so a failed registry write
// leaves the submission pending and a concurrent second resolve of the same
// id observes NotFound.
func (s *Service) Resolve(ctx context.Context, id string, decision models.Decision) (Resolution, error) {
	if strings.TrimSpace(id) == "" {
		return Resolution{}, s.fail(fmt.Errorf("%w: submission id is required", apperr.ErrInvalidInput))
	}
	if decision != models.DecisionPromote && decision != models.DecisionReject {
		return Resolution{}, s.fail(fmt.Errorf("%w: unknown decision %q", apperr.ErrInvalidInput, decision))
	}

	start := time.Now()
	remaining, err := s.queue.Take(ctx, id, func(sub models.Submission) error {
		if decision != models.DecisionPromote {
			return nil
		}
		m := sub.Member()
		_, err := s.registry.Create(ctx, m)
		if errors.Is(err, apperr.ErrConflict) {
			// A promotion whose ledger write failed after the registry write
			// left this exact member behind; finish it.
			if cur, getErr := s.registry.Get(ctx, m.ID); getErr == nil && cur.Equal(m.Normalize()) {
				return nil
			}
		}
		return err
	})
	s.metrics.ObserveLatency("resolve", time.Since(start))
	if err != nil {
		return Resolution{}, s.fail(err)
	}

	s.metrics.IncDecision(string(decision))
	if decision == models.DecisionPromote {
		s.notify(sse.SubmissionPromoted, id)
		s.notify(sse.MemberCreated, id)
		s.reindex(ctx)
		s.logger.Info("submission promoted", slog.String("id", id), slog.Int("remaining", remaining))
	} else {
		s.notify(sse.SubmissionRejected, id)
		s.logger.Info("submission rejected", slog.String("id", id), slog.Int("remaining", remaining))
	}
	return Resolution{ID: id, Action: decision, Remaining: remaining}, nil
}

// ListMembers returns the registry in document order with its version.
func (s *Service) ListMembers(ctx context.Context) (registry.Snapshot, error) {
	snap, err := s.registry.List(ctx)
	if err != nil {
		return registry.Snapshot{}, s.fail(err)
	}
	return snap, nil
}

// GetMember returns one member and the members that list it as a connection.
func (s *Service) GetMember(ctx context.Context, id string) (MemberDetail, error) {
	snap, err := s.registry.List(ctx)
	if err != nil {
		return MemberDetail{}, s.fail(err)
	}
	var (
		found bool
		d     MemberDetail
	)
	for _, m := range snap.Records {
		if m.ID == id {
			d.Member, found = m, true
		}
		for _, c := range m.Connections {
			if c == id {
				d.ConnectedFrom = append(d.ConnectedFrom, m.ID)
				break
			}
		}
	}
	if !found {
		return MemberDetail{}, s.fail(fmt.Errorf("%w: member %q", apperr.ErrNotFound, id))
	}
	if d.ConnectedFrom == nil {
		d.ConnectedFrom = []string{}
	}
	return d, nil
}

// SearchMembers returns members matching q. With an index configured the
// index is brought up to date first; otherwise the registry is scanned.
func (s *Service) SearchMembers(ctx context.Context, q string, limit int) ([]models.Member, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, s.fail(fmt.Errorf("%w: search query is required", apperr.ErrInvalidInput))
	}

	if s.index != nil {
		if _, err := s.Reindex(ctx); err != nil {
			return nil, s.fail(err)
		}
		hits, err := s.index.Search(ctx, q, limit)
		if err != nil {
			return nil, s.fail(fmt.Errorf("%w: %w", apperr.ErrStorage, err))
		}
		return hits, nil
	}

	snap, err := s.registry.List(ctx)
	if err != nil {
		return nil, s.fail(err)
	}
	needle := strings.ToLower(q)
	var hits []models.Member
	for _, m := range snap.Records {
		if len(hits) == limit {
			break
		}
		for _, field := range []string{m.ID, m.Name, m.Website, m.Program} {
			if strings.Contains(strings.ToLower(field), needle) {
				hits = append(hits, m)
				break
			}
		}
	}
	return hits, nil
}

// CreateMember adds a member directly, bypassing the queue.
func (s *Service) CreateMember(ctx context.Context, m models.Member) (models.Member, error) {
	start := time.Now()
	m, err := s.registry.Create(ctx, m)
	s.metrics.ObserveLatency("member_create", time.Since(start))
	if err != nil {
		return models.Member{}, s.fail(err)
	}
	s.mutated(ctx, "create", sse.MemberCreated, m.ID)
	return m, nil
}

// UpdateMember replaces the member identified by targetID (m.ID when empty).
// A non-empty ifMatch must equal the current registry version.
func (s *Service) UpdateMember(ctx context.Context, targetID string, m models.Member, ifMatch string) (models.Member, error) {
	start := time.Now()
	m, err := s.registry.Update(ctx, targetID, m, ifMatch)
	s.metrics.ObserveLatency("member_update", time.Since(start))
	if err != nil {
		return models.Member{}, s.fail(err)
	}
	s.mutated(ctx, "update", sse.MemberUpdated, m.ID)
	return m, nil
}

// DeleteMember removes the member with id.
func (s *Service) DeleteMember(ctx context.Context, id string) error {
	start := time.Now()
	err := s.registry.Delete(ctx, id)
	s.metrics.ObserveLatency("member_delete", time.Since(start))
	if err != nil {
		return s.fail(err)
	}
	s.mutated(ctx, "delete", sse.MemberDeleted, id)
	return nil
}

// Reindex brings the search index up to date with the registry document and
// reports whether it changed. It is a no-op without an index.
func (s *Service) Reindex(ctx context.Context) (bool, error) {
	if s.index == nil {
		return false, nil
	}
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	return index.Sync(ctx, s.index, s.registry, s.logger)
}

func (s *Service) mutated(ctx context.Context, op, event, id string) {
	s.metrics.IncMutation(op)
	s.notify(event, id)
	s.reindex(ctx)
	s.logger.Info("member "+op+"d", slog.String("id", id))
}

// reindex refreshes the index after a mutation. The registry is already
// written, so failures are only logged.
func (s *Service) reindex(ctx context.Context) {
	if _, err := s.Reindex(ctx); err != nil {
		s.logger.Warn("reindex failed", slog.String("error", err.Error()))
	}
}

func (s *Service) notify(kind, id string) {
	if s.events != nil {
		s.events.PublishChange(kind, id)
	}
}

func (s *Service) fail(err error) error {
	s.metrics.IncFailure(apperr.Kind(err))
	return err
}
