// Package render rasterizes document pages.
//
// Two adapters are provided: PDFRenderer for PDF files and ImageRenderer for a
// directory of page images. Both implement Renderer; pixel coordinates of a
// raster are the page-local coordinates annotations are stored in.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"path"
	"strings"

	"github.com/go-git/go-billy/v6"
)

var ErrNoPage = errors.New("no such page")

// Renderer produces the raster of a page at a view rotation (degrees,
// clockwise) and scale.
type Renderer interface {
	PageCount() int
	Render(ctx context.Context, page, rotation int, scale float64) (image.Image, error)
}

// Document is an opened Renderer together with the name it was opened from.
type Document struct {
	Renderer
	Name string
}

// Close releases resources held by the renderer.
func (d *Document) Close() error {
	if c, ok := d.Renderer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Open picks an adapter for name: PDFs are rasterized, directories are read
// as ordered page images and a single image file is a one page document.
func Open(fs billy.Filesystem, name string, opts ...PDFOption) (*Document, error) {
	st, err := fs.Stat(name)
	if err != nil {
		return nil, err
	}
	var r Renderer
	switch {
	case st.IsDir():
		r, err = OpenImageDir(fs, name)
	case strings.EqualFold(path.Ext(name), ".pdf"):
		r, err = OpenPDF(fs, name, opts...)
	case IsImage(name):
		r = NewImageRenderer(fs, []string{name})
	default:
		return nil, fmt.Errorf("unsupported document %s", name)
	}
	if err != nil {
		return nil, err
	}
	return &Document{Renderer: r, Name: name}, nil
}
