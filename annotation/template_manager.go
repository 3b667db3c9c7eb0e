package annotation

import (
	"fmt"
	"html/template"
	"io"
	"io/fs"

	"github.com/abiosoft/mold"
)

// TemplateManager renders pages inside the shared layout using mold
type TemplateManager struct {
	engine mold.Engine
}

// NewTemplateManager parses every template found in fsys. layout names the
// file pages are rendered into.
func NewTemplateManager(fsys fs.FS, layout string, funcMap template.FuncMap) (*TemplateManager, error) {
	engine, err := mold.New(fsys,
		mold.WithLayout(layout),
		mold.WithFuncMap(funcMap),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &TemplateManager{engine: engine}, nil
}

// Render renders a page template (mold handles the layout)
func (tm *TemplateManager) Render(w io.Writer, pageName string, data any) error {
	return tm.engine.Render(w, pageName, data)
}
