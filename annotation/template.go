package annotation

import (
	"embed"
	"html/template"
	"io"
	"io/fs"

	"github.com/russross/blackfriday/v2"

	"github.com/lewtec/pagetagger/internal/domain"
)

var (
	//go:embed templates/*.html
	templateFS embed.FS

	templateManager *TemplateManager

	// TemplateFuncMap contains custom template functions available globally
	TemplateFuncMap = template.FuncMap{
		"markdown": func(text string) template.HTML {
			return template.HTML(blackfriday.Run([]byte(text)))
		},
	}
)

func init() {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		panic(err)
	}
	templateManager, err = NewTemplateManager(sub, "layout.html", TemplateFuncMap)
	if err != nil {
		panic(err)
	}
}

// PageData is what every page template receives.
type PageData struct {
	Title           string
	Content         string
	Document        string
	Page            int
	Dialog          *DialogState
	Types           []domain.Type
	DemographicKeys []string
}

// RenderPage renders pageName inside the layout.
func RenderPage(w io.Writer, pageName string, data PageData) error {
	return templateManager.Render(w, pageName, data)
}
