package interaction

import (
	"strings"

	"github.com/lewtec/pagetagger/internal/domain"
)

// Event is a command fed into the Machine. Transports translate their native
// input (HTTP requests, scripted commands, UI callbacks) into these values.
type Event interface {
	event()
}

// PointerDown starts a gesture at a page-local position.
type PointerDown struct{ Pos domain.Point }

// PointerMove reports the pointer position during a gesture.
type PointerMove struct{ Pos domain.Point }

// PointerUp ends the active gesture.
type PointerUp struct{ Pos domain.Point }

// DoubleActivate opens the classification dialog for an annotation.
type DoubleActivate struct{ ID string }

// DoubleActivateAt opens the classification dialog for the topmost
// annotation under Pos.
type DoubleActivateAt struct{ Pos domain.Point }

// Delete removes an annotation.
type Delete struct{ ID string }

// SelectType switches the open dialog to another type, resetting the form to
// that type's defaults.
type SelectType struct{ Type domain.Type }

// Save classifies the dialog's annotation. An empty Type keeps the type the
// dialog currently shows.
type Save struct {
	Type   domain.Type
	Values map[string]string
}

// Cancel closes the dialog, dropping the annotation if it was never
// classified.
type Cancel struct{}

func (PointerDown) event()      {}
func (PointerMove) event()      {}
func (PointerUp) event()        {}
func (DoubleActivate) event()   {}
func (DoubleActivateAt) event() {}
func (Delete) event()           {}
func (SelectType) event()       {}
func (Save) event()             {}
func (Cancel) event()           {}

// Direction is the compass position of a resize handle.
type Direction string

const (
	North     Direction = "n"
	South     Direction = "s"
	East      Direction = "e"
	West      Direction = "w"
	NorthEast Direction = "ne"
	NorthWest Direction = "nw"
	SouthEast Direction = "se"
	SouthWest Direction = "sw"
)

// Directions lists every handle, corners first.
var Directions = []Direction{NorthWest, NorthEast, SouthWest, SouthEast, North, South, East, West}

func (d Direction) north() bool { return strings.ContainsRune(string(d), 'n') }
func (d Direction) south() bool { return strings.ContainsRune(string(d), 's') }
func (d Direction) east() bool  { return strings.ContainsRune(string(d), 'e') }
func (d Direction) west() bool  { return strings.ContainsRune(string(d), 'w') }

// anchor returns the point of r the handle sits on.
func (d Direction) anchor(r domain.Rect) domain.Point {
	p := domain.Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
	switch {
	case d.west():
		p.X = r.X
	case d.east():
		p.X = r.Right()
	}
	switch {
	case d.north():
		p.Y = r.Y
	case d.south():
		p.Y = r.Bottom()
	}
	return p
}
