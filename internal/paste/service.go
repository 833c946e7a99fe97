// Package paste owns the paste lifecycle: creation, password-gated viewing,
// lazy and eager expiry, and ownership-based deletion.
package paste

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"pastebox/internal/expiry"
	"pastebox/internal/id"
	"pastebox/internal/metrics"
	"pastebox/internal/security"
	"pastebox/internal/storage"
)

var (
	ErrNotFound          = errors.New("paste not found")
	ErrPasswordRequired  = errors.New("password required")
	ErrPasswordIncorrect = errors.New("incorrect password")
)

const (
	// DefaultListLimit caps list queries when the caller passes no limit.
	DefaultListLimit = 50

	createAttempts = 3
)

// IDGenerator produces candidate paste ids.
type IDGenerator interface {
	Generate(ctx context.Context) (string, error)
}

// DeleteResult is the outcome of a delete request.
type DeleteResult int

const (
	Deleted DeleteResult = iota
	Forbidden
	NotFound
)

func (r DeleteResult) String() string {
	switch r {
	case Deleted:
		return "deleted"
	case Forbidden:
		return "forbidden"
	default:
		return "not_found"
	}
}

// CreateParams carries the submitted form values. Password and Expiration
// may be empty.
type CreateParams struct {
	Content    string
	Language   string
	Password   string
	Expiration string
	OwnerID    *int64
}

// View is a paste cleared for display.
type View struct {
	Paste   *storage.Paste
	IsOwner bool
}

// Service applies paste policy on top of a storage.PasteStore.
type Service struct {
	store  storage.PasteStore
	ids    IDGenerator
	now    func() time.Time
	logger zerolog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides the id source.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Service) {
		if g != nil {
			s.ids = g
		}
	}
}

// NewService wires a Service with an 8-character nanoid generator and the wall clock.
func NewService(store storage.PasteStore, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		ids:    id.New(0),
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With().Str("component", "paste").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new paste and returns its id.
func (s *Service) Create(ctx context.Context, params CreateParams) (string, error) {
	var hash string
	if params.Password != "" {
		h, err := security.HashPassword(params.Password)
		if err != nil {
			return "", errors.Wrap(err, "hash paste password")
		}
		hash = h
	}

	now := s.now().UTC()
	paste := &storage.Paste{
		Content:      params.Content,
		Language:     params.Language,
		PasswordHash: hash,
		CreatedAt:    now,
		OwnerID:      params.OwnerID,
	}
	if at, ok := expiry.Parse(params.Expiration).At(now); ok {
		paste.ExpiresAt = at
	}

	var err error
	for attempt := 1; attempt <= createAttempts; attempt++ {
		paste.ID, err = s.ids.Generate(ctx)
		if err != nil {
			return "", errors.Wrap(err, "generate paste id")
		}
		err = s.store.CreatePaste(ctx, paste)
		if err == nil {
			metrics.PastesCreated.Inc()
			s.logger.Debug().
				Str("paste_id", paste.ID).
				Bool("protected", paste.Protected()).
				Bool("expires", paste.HasExpiration()).
				Msg("paste created")
			return paste.ID, nil
		}
		if !errors.Is(err, storage.ErrDuplicateID) {
			break
		}
		s.logger.Warn().Str("paste_id", paste.ID).Int("attempt", attempt).Msg("paste id collision")
	}
	return "", errors.Wrap(err, "store paste")
}

// Get is a plain lookup with no expiry or password policy applied.
func (s *Service) Get(ctx context.Context, id string) (*storage.Paste, error) {
	paste, err := s.store.GetPaste(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "load paste")
	}
	return paste, nil
}

// Fetch loads a live paste, deleting it if it has expired. It neither checks
// passwords nor counts a view.
func (s *Service) Fetch(ctx context.Context, id string) (*storage.Paste, error) {
	paste, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if paste.ExpiredAt(s.now()) {
		s.expire(ctx, paste.ID)
		return nil, ErrNotFound
	}
	return paste, nil
}

// View resolves a paste for display to viewerID, checking password when the
// paste is gated and the viewer is not its owner. A nil password means none
// was submitted.
func (s *Service) View(ctx context.Context, id string, viewerID *int64, password *string) (*View, error) {
	paste, err := s.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	isOwner := paste.OwnedBy(viewerID)
	if paste.Protected() && !isOwner {
		if password == nil {
			metrics.PasteDenials.WithLabelValues("required").Inc()
			return nil, ErrPasswordRequired
		}
		if !security.VerifyPassword(paste.PasswordHash, *password) {
			metrics.PasteDenials.WithLabelValues("incorrect").Inc()
			return nil, ErrPasswordIncorrect
		}
	}

	if err := s.store.IncrementViews(ctx, paste.ID); err != nil {
		s.logger.Warn().Err(err).Str("paste_id", paste.ID).Msg("increment view count")
	} else {
		paste.ViewCount++
	}
	metrics.PastesViewed.Inc()
	return &View{Paste: paste, IsOwner: isOwner}, nil
}

// ListByOwner returns the owner's newest pastes, expired ones included until swept.
func (s *Service) ListByOwner(ctx context.Context, ownerID int64, limit int) ([]*storage.Paste, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	pastes, err := s.store.ListByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list owner pastes")
	}
	return pastes, nil
}

// ListPublic returns the newest ungated, unexpired pastes.
func (s *Service) ListPublic(ctx context.Context, limit int) ([]*storage.Paste, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	pastes, err := s.store.ListPublic(ctx, s.now().UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "list public pastes")
	}
	return pastes, nil
}

// Delete removes a paste if requesterID owns it or it has no owner.
func (s *Service) Delete(ctx context.Context, id string, requesterID *int64) (DeleteResult, error) {
	paste, err := s.Fetch(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return NotFound, nil
		}
		return NotFound, err
	}
	if !paste.Anonymous() && !paste.OwnedBy(requesterID) {
		return Forbidden, nil
	}
	if err := s.store.DeletePaste(ctx, paste.ID); err != nil {
		return NotFound, errors.Wrap(err, "delete paste")
	}
	metrics.PastesDeleted.WithLabelValues(metrics.CauseOwner).Inc()
	return Deleted, nil
}

// SweepExpired deletes every paste expired at now and reports how many went.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	removed, err := s.store.DeleteExpired(ctx, now.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "sweep expired pastes")
	}
	metrics.PastesDeleted.WithLabelValues(metrics.CauseSweep).Add(float64(removed))
	return removed, nil
}

// Now exposes the service clock for display code.
func (s *Service) Now() time.Time {
	return s.now()
}

func (s *Service) expire(ctx context.Context, id string) {
	if err := s.store.DeletePaste(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("paste_id", id).Msg("delete expired paste")
		return
	}
	metrics.PastesDeleted.WithLabelValues(metrics.CauseLazy).Inc()
}
