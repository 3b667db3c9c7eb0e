// Package store keeps the annotations of the loaded document in memory.
//
// The Store is owned by a single session and is not safe for concurrent use;
// callers serialize access.
package store

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/lewtec/pagetagger/internal/domain"
)

var (
	// ErrNotFound is returned by mutations that reference an unknown id.
	ErrNotFound = errors.New("annotation not found")
	// ErrTooSmall is returned when a rectangle is below domain.MinSize.
	ErrTooSmall = errors.New("annotation below minimum size")
	// ErrPending is returned by Create while another annotation is unassigned.
	ErrPending = errors.New("an unassigned annotation already exists")
	// ErrUnassigned is returned when classifying back to the unassigned type.
	ErrUnassigned = errors.New("cannot classify as unassigned")
)

// ChangeKind tells observers what happened.
type ChangeKind int

const (
	Created ChangeKind = iota
	Classified
	Moved
	Removed
	Cleared
)

func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Classified:
		return "classified"
	case Moved:
		return "moved"
	case Removed:
		return "removed"
	case Cleared:
		return "cleared"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// Change is delivered to observers after every successful mutation.
type Change struct {
	Kind ChangeKind
	ID   string
}

// Store is an ordered collection of annotations keyed by id.
type Store struct {
	items     []*domain.Annotation
	byID      map[string]*domain.Annotation
	observers map[int]func(Change)
	nextObs   int
	newID     func() string
	minSize   int
	logger    *slog.Logger
}

type Option func(*Store)

// WithIDGenerator replaces the UUID generator.
func WithIDGenerator(fn func() string) Option { return func(s *Store) { s.newID = fn } }

// WithLogger sets the logger used for referential diagnostics.
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

// WithMinSize overrides domain.MinSize.
func WithMinSize(n int) Option { return func(s *Store) { s.minSize = n } }

func New(opts ...Option) *Store {
	s := &Store{
		byID:      make(map[string]*domain.Annotation),
		observers: make(map[int]func(Change)),
		newID:     uuid.NewString,
		minSize:   domain.MinSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MinSize returns the minimum side length enforced by the store.
func (s *Store) MinSize() int { return s.minSize }

// Subscribe registers fn to be called after each mutation. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn func(Change)) (cancel func()) {
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	return func() { delete(s.observers, id) }
}

func (s *Store) notify(c Change) {
	for _, fn := range s.observers {
		fn(c)
	}
}

// Create inserts a new unassigned annotation on page and returns its id.
func (s *Store) Create(page int, frame domain.Frame, pos domain.Rect) (string, error) {
	if !pos.Valid(s.minSize) {
		return "", ErrTooSmall
	}
	if p, ok := s.Pending(); ok {
		return "", fmt.Errorf("%w: %s", ErrPending, p.ID)
	}
	id := s.newID()
	for s.byID[id] != nil {
		id = s.newID()
	}
	a := &domain.Annotation{
		ID:         id,
		Type:       domain.TypeUnassigned,
		Properties: domain.UnassignedProperties{},
		Page:       page,
		Rotation:   frame.Rotation,
		Scale:      frame.Scale,
		Position:   pos,
	}
	s.items = append(s.items, a)
	s.byID[id] = a
	s.logger.Debug("store: created", "id", id, "page", page, "position", pos)
	s.notify(Change{Kind: Created, ID: id})
	return id, nil
}

// Classify assigns a type and its properties to an annotation.
func (s *Store) Classify(id string, props domain.Properties) error {
	a, ok := s.byID[id]
	if !ok {
		s.logger.Warn("store: classify of unknown annotation", "id", id)
		return fmt.Errorf("classify %s: %w", id, ErrNotFound)
	}
	if props == nil || props.Type() == domain.TypeUnassigned {
		return ErrUnassigned
	}
	a.Type = props.Type()
	a.Properties = props
	s.logger.Debug("store: classified", "id", id, "type", a.Type)
	s.notify(Change{Kind: Classified, ID: id})
	return nil
}

// UpdateGeometry stores a new position for an annotation together with the
// frame it was measured in.
func (s *Store) UpdateGeometry(id string, pos domain.Rect, frame domain.Frame) error {
	a, ok := s.byID[id]
	if !ok {
		s.logger.Warn("store: geometry update of unknown annotation", "id", id)
		return fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	if !pos.Valid(s.minSize) {
		return ErrTooSmall
	}
	a.Position = pos
	a.Rotation = frame.Rotation
	a.Scale = frame.Scale
	s.notify(Change{Kind: Moved, ID: id})
	return nil
}

// Remove deletes an annotation. Unknown ids are ignored.
func (s *Store) Remove(id string) {
	if _, ok := s.byID[id]; !ok {
		s.logger.Debug("store: remove of unknown annotation", "id", id)
		return
	}
	delete(s.byID, id)
	for i, a := range s.items {
		if a.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
	s.notify(Change{Kind: Removed, ID: id})
}

// Clear removes every annotation.
func (s *Store) Clear() {
	s.items = nil
	s.byID = make(map[string]*domain.Annotation)
	s.notify(Change{Kind: Cleared})
}

// Get returns a copy of the annotation with the given id.
func (s *Store) Get(id string) (domain.Annotation, bool) {
	a, ok := s.byID[id]
	if !ok {
		return domain.Annotation{}, false
	}
	return *a, true
}

// Pending returns the unassigned annotation, if any.
func (s *Store) Pending() (domain.Annotation, bool) {
	for _, a := range s.items {
		if a.Type == domain.TypeUnassigned {
			return *a, true
		}
	}
	return domain.Annotation{}, false
}

// ForPage returns the annotations on page in creation order, unassigned ones
// included.
func (s *Store) ForPage(page int) []domain.Annotation {
	return s.filter(func(a *domain.Annotation) bool { return a.Page == page })
}

// Exportable returns every classified annotation in creation order.
func (s *Store) Exportable() []domain.Annotation {
	return s.filter(func(a *domain.Annotation) bool { return a.Exportable() })
}

// All returns every annotation in creation order.
func (s *Store) All() []domain.Annotation {
	return s.filter(func(*domain.Annotation) bool { return true })
}

// Len returns the number of annotations, unassigned included.
func (s *Store) Len() int { return len(s.items) }

func (s *Store) filter(keep func(*domain.Annotation) bool) []domain.Annotation {
	out := make([]domain.Annotation, 0, len(s.items))
	for _, a := range s.items {
		if keep(a) {
			out = append(out, *a)
		}
	}
	return out
}
