package interaction

import "github.com/lewtec/pagetagger/internal/domain"

// DefaultHandleSize is the side of the square hit area of a resize handle.
const DefaultHandleSize = 8

// TargetKind classifies what lies under the pointer.
type TargetKind int

const (
	TargetCanvas TargetKind = iota
	TargetHandle
	TargetBody
)

// Target is the result of a hit test.
type Target struct {
	Kind   TargetKind
	ID     string
	Handle Direction
}

// HandleRect returns the hit area of handle d on r.
func HandleRect(r domain.Rect, d Direction, size int) domain.Rect {
	p := d.anchor(r)
	return domain.Rect{X: p.X - size/2, Y: p.Y - size/2, Width: size, Height: size}
}

// HitTest finds the topmost annotation element under p. Later annotations are
// drawn above earlier ones; handles win over bodies. Unassigned annotations
// carry no handles.
func HitTest(annotations []domain.Annotation, p domain.Point, handleSize int) Target {
	for i := len(annotations) - 1; i >= 0; i-- {
		a := annotations[i]
		if a.Type == domain.TypeUnassigned {
			continue
		}
		for _, d := range Directions {
			if HandleRect(a.Position, d, handleSize).Contains(p) {
				return Target{Kind: TargetHandle, ID: a.ID, Handle: d}
			}
		}
	}
	for i := len(annotations) - 1; i >= 0; i-- {
		if annotations[i].Position.Contains(p) {
			return Target{Kind: TargetBody, ID: annotations[i].ID}
		}
	}
	return Target{Kind: TargetCanvas}
}
