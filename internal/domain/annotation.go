package domain

import (
	"encoding/json"
	"fmt"
)

// Frame is the page view context geometry was produced in: the rotation in
// degrees and the zoom factor of the rendered page.
type Frame struct {
	Rotation int
	Scale    float64
}

// Annotation is a rectangular region on one page of the document together
// with its classification.
type Annotation struct {
	ID         string
	Type       Type
	Properties Properties
	Page       int
	Rotation   int
	Scale      float64
	Position   Rect
}

// Frame returns the rotation and scale the position was recorded at.
func (a Annotation) Frame() Frame {
	return Frame{Rotation: a.Rotation, Scale: a.Scale}
}

// Exportable reports whether the annotation has been classified.
func (a Annotation) Exportable() bool {
	return a.Type != TypeUnassigned
}

type annotationJSON struct {
	ID         string          `json:"id"`
	Type       Type            `json:"type"`
	Properties json.RawMessage `json:"properties"`
	Page       int             `json:"page"`
	Rotation   int             `json:"rotation"`
	Scale      float64         `json:"scale"`
	Position   Rect            `json:"position"`
}

func (a Annotation) MarshalJSON() ([]byte, error) {
	props := a.Properties
	if props == nil {
		props = UnassignedProperties{}
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return nil, err
	}
	return json.Marshal(annotationJSON{
		ID:         a.ID,
		Type:       a.Type,
		Properties: raw,
		Page:       a.Page,
		Rotation:   a.Rotation,
		Scale:      a.Scale,
		Position:   a.Position,
	})
}

func (a *Annotation) UnmarshalJSON(data []byte) error {
	var aux annotationJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t, err := ParseType(string(aux.Type))
	if err != nil {
		return err
	}
	var props Properties
	switch t {
	case TypeColor:
		var p ColorProperties
		err = unmarshalProps(aux.Properties, &p)
		props = p
	case TypeCopy:
		var p CopyProperties
		err = unmarshalProps(aux.Properties, &p)
		props = p
	case TypeDrawing:
		var p DrawingProperties
		err = unmarshalProps(aux.Properties, &p)
		props = p
	default:
		props = UnassignedProperties{}
	}
	if err != nil {
		return fmt.Errorf("annotation %s: properties: %w", aux.ID, err)
	}
	*a = Annotation{
		ID:         aux.ID,
		Type:       t,
		Properties: props,
		Page:       aux.Page,
		Rotation:   aux.Rotation,
		Scale:      aux.Scale,
		Position:   aux.Position,
	}
	return nil
}

func unmarshalProps(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
