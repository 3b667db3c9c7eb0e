// Package interaction turns pointer and dialog commands into annotation store
// mutations.
//
// A Machine has four gesture states: Idle, Drawing, Resizing and Dragging.
// Only one gesture is active at a time; a pointer-down that arrives while a
// gesture is running, or while the classification dialog is open, is ignored.
// Live geometry during a gesture is kept in the machine and only written to
// the store when the gesture ends.
package interaction

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/lewtec/pagetagger/internal/domain"
	"github.com/lewtec/pagetagger/internal/store"
)

var (
	// ErrBusy is returned for a pointer-down while a gesture is active.
	ErrBusy = errors.New("another gesture is in progress")
	// ErrDialogOpen is returned for gestures while the dialog is open.
	ErrDialogOpen = errors.New("classification dialog is open")
	// ErrNoDialog is returned for dialog commands without an open dialog.
	ErrNoDialog = errors.New("no classification dialog is open")
)

// State is the gesture state of a Machine.
type State int

const (
	Idle State = iota
	Drawing
	Resizing
	Dragging
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Drawing:
		return "drawing"
	case Resizing:
		return "resizing"
	case Dragging:
		return "dragging"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Frame is the page view a command is evaluated against.
type Frame struct {
	Page        int
	Rotation    int
	Scale       float64
	View        domain.Size
	Annotations []domain.Annotation
}

func (f Frame) geometry() domain.Frame {
	return domain.Frame{Rotation: f.Rotation, Scale: f.Scale}
}

func (f Frame) inside(p domain.Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X <= f.View.Width && p.Y <= f.View.Height
}

func (f Frame) clamp(p domain.Point) domain.Point {
	return domain.Point{
		X: max(0, min(p.X, f.View.Width)),
		Y: max(0, min(p.Y, f.View.Height)),
	}
}

// Dialog is the classification form bound to one annotation.
type Dialog struct {
	AnnotationID string
	Type         domain.Type
	Values       map[string]string
	// New is set when the dialog was opened right after drawing.
	New bool
}

func (d *Dialog) clone() *Dialog {
	if d == nil {
		return nil
	}
	c := *d
	c.Values = make(map[string]string, len(d.Values))
	for k, v := range d.Values {
		c.Values[k] = v
	}
	return &c
}

// Overlay is the live rectangle of the active gesture.
type Overlay struct {
	// ID is empty for the provisional rectangle of a draw gesture.
	ID   string
	Rect domain.Rect
}

type Machine struct {
	store      *store.Store
	logger     *slog.Logger
	handleSize int

	state  State
	anchor domain.Point
	live   domain.Rect
	target string
	dir    Direction
	orig   domain.Rect
	offset domain.Point

	dialog *Dialog
}

type Option func(*Machine)

func WithLogger(l *slog.Logger) Option { return func(m *Machine) { m.logger = l } }
func WithHandleSize(n int) Option { return func(m *Machine) { m.handleSize = n } }

func New(s *store.Store, opts ...Option) *Machine {
	m := &Machine{
		store:      s,
		logger:     slog.Default(),
		handleSize: DefaultHandleSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current gesture state.
func (m *Machine) State() State { return m.state }

// Dialog returns a copy of the open dialog, nil when closed.
func (m *Machine) Dialog() *Dialog { return m.dialog.clone() }

// Overlay returns the live geometry of the active gesture.
func (m *Machine) Overlay() (Overlay, bool) {
	if m.state == Idle {
		return Overlay{}, false
	}
	return Overlay{ID: m.target, Rect: m.live}, true
}

// HitTest resolves what lies under p in frame f.
func (m *Machine) HitTest(f Frame, p domain.Point) Target {
	return HitTest(f.Annotations, p, m.handleSize)
}

// Handle applies one command. Commands that are not valid in the current
// state return an error and leave the machine unchanged.
func (m *Machine) Handle(f Frame, ev Event) error {
	switch ev := ev.(type) {
	case PointerDown:
		return m.pointerDown(f, ev.Pos)
	case PointerMove:
		m.pointerMove(f, ev.Pos)
		return nil
	case PointerUp:
		m.pointerUp(f, ev.Pos)
		return nil
	case DoubleActivate:
		return m.openEditor(ev.ID)
	case DoubleActivateAt:
		t := m.HitTest(f, ev.Pos)
		if t.Kind == TargetCanvas {
			return nil
		}
		return m.openEditor(t.ID)
	case Delete:
		m.delete(ev.ID)
		return nil
	case SelectType:
		return m.selectType(ev.Type)
	case Save:
		return m.save(ev)
	case Cancel:
		return m.cancel()
	default:
		return fmt.Errorf("unsupported event %T", ev)
	}
}

// Reset aborts the active gesture and cancels the open dialog. It is used
// when the page view is rebuilt.
func (m *Machine) Reset() {
	m.abort()
	if m.dialog != nil {
		_ = m.cancel()
	}
}

func (m *Machine) pointerDown(f Frame, p domain.Point) error {
	if m.state != Idle {
		m.logger.Debug("interaction: pointer-down ignored", "state", m.state)
		return ErrBusy
	}
	if m.dialog != nil {
		return ErrDialogOpen
	}
	if !f.inside(p) {
		return nil
	}
	t := m.HitTest(f, p)
	switch t.Kind {
	case TargetHandle:
		a, ok := m.store.Get(t.ID)
		if !ok {
			return nil
		}
		m.state = Resizing
		m.target = a.ID
		m.dir = t.Handle
		m.anchor = p
		m.orig = a.Position
		m.live = a.Position
	case TargetBody:
		a, ok := m.store.Get(t.ID)
		if !ok {
			return nil
		}
		m.state = Dragging
		m.target = a.ID
		m.orig = a.Position
		m.live = a.Position
		m.offset = p.Sub(a.Position.Origin())
	default:
		m.state = Drawing
		m.target = ""
		m.anchor = p
		m.live = domain.Rect{X: p.X, Y: p.Y}
	}
	return nil
}

func (m *Machine) pointerMove(f Frame, p domain.Point) {
	switch m.state {
	case Drawing:
		m.live = domain.Normalize(m.anchor, f.clamp(p))
	case Resizing:
		if !m.targetAlive() {
			return
		}
		m.live = m.resized(f, p)
	case Dragging:
		if !m.targetAlive() {
			return
		}
		m.live = m.orig.MoveTo(p.Sub(m.offset), f.View)
	}
}

func (m *Machine) pointerUp(f Frame, p domain.Point) {
	switch m.state {
	case Drawing:
		rect := domain.Normalize(m.anchor, f.clamp(p))
		m.abort()
		if !rect.Valid(m.store.MinSize()) {
			m.logger.Debug("interaction: rectangle too small, discarded", "rect", rect)
			return
		}
		id, err := m.store.Create(f.Page, f.geometry(), rect)
		if err != nil {
			m.logger.Warn("interaction: could not create annotation", "error", err)
			return
		}
		m.dialog = &Dialog{
			AnnotationID: id,
			Type:         domain.DefaultType,
			Values:       domain.FormValues(domain.DefaultProperties(domain.DefaultType)),
			New:          true,
		}
	case Resizing, Dragging:
		m.pointerMove(f, p)
		if m.state == Idle {
			return
		}
		id, rect := m.target, m.live
		m.abort()
		if err := m.store.UpdateGeometry(id, rect, f.geometry()); err != nil {
			m.logger.Warn("interaction: gesture commit failed", "id", id, "error", err)
		}
	}
}

// targetAlive aborts the gesture when its annotation left the store.
func (m *Machine) targetAlive() bool {
	if _, ok := m.store.Get(m.target); ok {
		return true
	}
	m.logger.Warn("interaction: gesture target vanished", "id", m.target)
	m.abort()
	return false
}

func (m *Machine) resized(f Frame, p domain.Point) domain.Rect {
	minSize := m.store.MinSize()
	dx, dy := p.X-m.anchor.X, p.Y-m.anchor.Y
	o := m.orig
	r := o

	switch {
	case m.dir.east():
		r.Width = max(minSize, min(o.Width+dx, f.View.Width-o.X))
	case m.dir.west():
		r.Width = max(minSize, min(o.Width-dx, o.Right()))
		r.X = o.Right() - r.Width
	}
	switch {
	case m.dir.south():
		r.Height = max(minSize, min(o.Height+dy, f.View.Height-o.Y))
	case m.dir.north():
		r.Height = max(minSize, min(o.Height-dy, o.Bottom()))
		r.Y = o.Bottom() - r.Height
	}
	return r
}

func (m *Machine) abort() {
	m.state = Idle
	m.target = ""
	m.dir = ""
	m.live = domain.Rect{}
	m.orig = domain.Rect{}
	m.offset = domain.Point{}
	m.anchor = domain.Point{}
}

func (m *Machine) openEditor(id string) error {
	a, ok := m.store.Get(id)
	if !ok {
		m.logger.Warn("interaction: edit of unknown annotation", "id", id)
		return nil
	}
	m.abort()
	if m.dialog != nil && m.dialog.AnnotationID != id {
		_ = m.cancel()
	}
	if m.dialog != nil {
		return nil
	}
	t, props := a.Type, a.Properties
	if t == domain.TypeUnassigned {
		t = domain.DefaultType
		props = domain.DefaultProperties(t)
	}
	m.dialog = &Dialog{
		AnnotationID: id,
		Type:         t,
		Values:       domain.FormValues(props),
		New:          a.Type == domain.TypeUnassigned,
	}
	return nil
}

func (m *Machine) selectType(t domain.Type) error {
	if m.dialog == nil {
		return ErrNoDialog
	}
	if t == domain.TypeUnassigned {
		return fmt.Errorf("cannot select type %q", t)
	}
	m.dialog.Type = t
	m.dialog.Values = domain.FormValues(domain.DefaultProperties(t))
	return nil
}

func (m *Machine) save(ev Save) error {
	if m.dialog == nil {
		return ErrNoDialog
	}
	t := ev.Type
	if t == "" || t == domain.TypeUnassigned {
		t = m.dialog.Type
	}
	values := ev.Values
	if values == nil {
		values = m.dialog.Values
	}
	id := m.dialog.AnnotationID
	m.dialog = nil
	if err := m.store.Classify(id, domain.ParseProperties(t, values)); err != nil {
		m.logger.Warn("interaction: save failed", "id", id, "error", err)
	}
	return nil
}

func (m *Machine) cancel() error {
	if m.dialog == nil {
		return ErrNoDialog
	}
	id := m.dialog.AnnotationID
	m.dialog = nil
	if a, ok := m.store.Get(id); ok && a.Type == domain.TypeUnassigned {
		m.store.Remove(id)
	}
	return nil
}

func (m *Machine) delete(id string) {
	if m.state != Idle && m.target == id {
		m.abort()
	}
	if m.dialog != nil && m.dialog.AnnotationID == id {
		m.dialog = nil
	}
	m.store.Remove(id)
}
