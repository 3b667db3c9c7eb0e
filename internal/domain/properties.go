package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Type is the classification of an annotation.
type Type string

const (
	TypeUnassigned Type = "unassigned"
	TypeColor      Type = "color"
	TypeCopy       Type = "copy"
	TypeDrawing    Type = "drawing"
)

// Types lists the types a user can pick in the classification dialog, in
// display order. The first one is the default.
var Types = []Type{TypeColor, TypeCopy, TypeDrawing}

// DefaultType is preselected when a freshly drawn rectangle is classified.
const DefaultType = TypeColor

// ParseType validates a type name coming from a transport.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.TrimSpace(s)); t {
	case TypeUnassigned, TypeColor, TypeCopy, TypeDrawing:
		return t, nil
	default:
		return "", fmt.Errorf("unknown annotation type %q", s)
	}
}

// Field is one property rendered as text, in the order the form shows it.
type Field struct {
	Key   string
	Value string
}

// Properties is the type specific payload of an annotation. Implementations
// are ColorProperties, CopyProperties, DrawingProperties and
// UnassignedProperties.
type Properties interface {
	Type() Type
	Fields() []Field
}

// UnassignedProperties is the empty payload of a pending annotation.
type UnassignedProperties struct{}

func (UnassignedProperties) Type() Type      { return TypeUnassigned }
func (UnassignedProperties) Fields() []Field { return nil }

type ColorProperties struct {
	Index    int `json:"index"`
	Filling  int `json:"filling"`
	Accuracy int `json:"accuracy"`
}

func (ColorProperties) Type() Type { return TypeColor }

func (p ColorProperties) Fields() []Field {
	return []Field{
		{"index", strconv.Itoa(p.Index)},
		{"filling", strconv.Itoa(p.Filling)},
		{"accuracy", strconv.Itoa(p.Accuracy)},
	}
}

type Closure string

const (
	ClosureOpen       Closure = "open"
	ClosureClose      Closure = "close"
	ClosureIrrelevant Closure = "irrelevant"
)

type Segments string

const (
	SegmentsTooMany    Segments = "too many"
	SegmentsTooFew     Segments = "too few"
	SegmentsIrrelevant Segments = "irrelevant"
)

type Jerkiness string

const (
	JerkinessFluid Jerkiness = "fluid"
	JerkinessJerky Jerkiness = "jerky"
)

type Pressure string

const (
	PressureTooMuch    Pressure = "too much"
	PressureTooLittle  Pressure = "too little"
	PressureIrrelevant Pressure = "irrelevant"
)

// CopyOptions returns the allowed values of each enumerated copy property.
func CopyOptions() map[string][]string {
	return map[string][]string{
		"closure":   {string(ClosureOpen), string(ClosureClose), string(ClosureIrrelevant)},
		"segments":  {string(SegmentsTooMany), string(SegmentsTooFew), string(SegmentsIrrelevant)},
		"jerkiness": {string(JerkinessFluid), string(JerkinessJerky)},
		"pressure":  {string(PressureTooMuch), string(PressureTooLittle), string(PressureIrrelevant)},
	}
}

type CopyProperties struct {
	Index     int       `json:"index"`
	Grade     int       `json:"grade"`
	NumLines  int       `json:"numLines"`
	Closure   Closure   `json:"closure"`
	Segments  Segments  `json:"segments"`
	Jerkiness Jerkiness `json:"jerkiness"`
	Pressure  Pressure  `json:"pressure"`
}

func (CopyProperties) Type() Type { return TypeCopy }

func (p CopyProperties) Fields() []Field {
	return []Field{
		{"index", strconv.Itoa(p.Index)},
		{"grade", strconv.Itoa(p.Grade)},
		{"numLines", strconv.Itoa(p.NumLines)},
		{"closure", string(p.Closure)},
		{"segments", string(p.Segments)},
		{"jerkiness", string(p.Jerkiness)},
		{"pressure", string(p.Pressure)},
	}
}

type DrawingProperties struct {
	BodyPartCount int `json:"bodyPartCount"`
}

func (DrawingProperties) Type() Type { return TypeDrawing }

func (p DrawingProperties) Fields() []Field {
	return []Field{{"bodyPartCount", strconv.Itoa(p.BodyPartCount)}}
}

// DefaultProperties returns the values the classification form starts with.
func DefaultProperties(t Type) Properties {
	switch t {
	case TypeColor:
		return ColorProperties{Index: 1}
	case TypeCopy:
		return CopyProperties{
			Index:     1,
			Closure:   ClosureIrrelevant,
			Segments:  SegmentsIrrelevant,
			Jerkiness: JerkinessFluid,
			Pressure:  PressureIrrelevant,
		}
	case TypeDrawing:
		return DrawingProperties{}
	default:
		return UnassignedProperties{}
	}
}

// FormValues flattens properties into the string map a form edits.
func FormValues(p Properties) map[string]string {
	values := make(map[string]string)
	for _, f := range p.Fields() {
		values[f.Key] = f.Value
	}
	return values
}

// ParseProperties builds the properties of type t from raw form values.
// Missing or malformed entries fall back to the defaults of t; it never
// fails.
func ParseProperties(t Type, values map[string]string) Properties {
	switch d := DefaultProperties(t).(type) {
	case ColorProperties:
		return ColorProperties{
			Index:    coerceInt(values["index"], d.Index),
			Filling:  coerceInt(values["filling"], d.Filling),
			Accuracy: coerceInt(values["accuracy"], d.Accuracy),
		}
	case CopyProperties:
		return CopyProperties{
			Index:     coerceInt(values["index"], d.Index),
			Grade:     coerceInt(values["grade"], d.Grade),
			NumLines:  coerceInt(values["numLines"], d.NumLines),
			Closure:   coerceEnum(values["closure"], d.Closure, ClosureOpen, ClosureClose, ClosureIrrelevant),
			Segments:  coerceEnum(values["segments"], d.Segments, SegmentsTooMany, SegmentsTooFew, SegmentsIrrelevant),
			Jerkiness: coerceEnum(values["jerkiness"], d.Jerkiness, JerkinessFluid, JerkinessJerky),
			Pressure:  coerceEnum(values["pressure"], d.Pressure, PressureTooMuch, PressureTooLittle, PressureIrrelevant),
		}
	case DrawingProperties:
		return DrawingProperties{BodyPartCount: coerceInt(values["bodyPartCount"], d.BodyPartCount)}
	default:
		return d
	}
}

// FormatProperties renders properties as "key:value;key:value".
func FormatProperties(p Properties) string {
	if p == nil {
		return ""
	}
	fields := p.Fields()
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.Key + ":" + f.Value
	}
	return strings.Join(parts, ";")
}

// ParseInt reads an integer the lenient way number inputs are read: leading
// sign and digits are taken, anything after them is ignored. ok is false when
// no digits were found or the number does not fit an int.
func ParseInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	end := 0
	if s[0] == '-' || s[0] == '+' {
		end = 1
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	v, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return v, true
}

func coerceInt(s string, def int) int {
	if v, ok := ParseInt(s); ok {
		return v
	}
	return def
}

func coerceEnum[T ~string](s string, def T, allowed ...T) T {
	s = strings.TrimSpace(s)
	for _, a := range allowed {
		if string(a) == s {
			return a
		}
	}
	return def
}
