package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"os/exec"
	"strconv"

	"github.com/go-git/go-billy/v6"
	"github.com/ledongthuc/pdf"
)

// DefaultRasterizer is the poppler tool used to rasterize PDF pages.
const DefaultRasterizer = "pdftoppm"

// pointsPerInch maps scale 1 to the PDF user space unit.
const pointsPerInch = 72

// PageInfo describes one page of a PDF as stored in the file.
type PageInfo struct {
	Number int
	// Rotate is the /Rotate entry of the page dictionary.
	Rotate int
}

// PDFRenderer rasterizes PDF pages with an external poppler binary. The
// document is parsed once to read its page tree.
type PDFRenderer struct {
	path    string
	tmp     string
	command string
	pages   []PageInfo
}

type PDFOption func(*PDFRenderer)

// WithRasterizer overrides the pdftoppm binary.
func WithRasterizer(command string) PDFOption {
	return func(r *PDFRenderer) { r.command = command }
}

// OpenPDF reads name from fs. Files that do not live on the local disk are
// copied to a temporary file so the rasterizer can read them.
func OpenPDF(fs billy.Filesystem, name string, opts ...PDFOption) (*PDFRenderer, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	pages, err := ReadPageTree(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	r := &PDFRenderer{command: DefaultRasterizer, pages: pages}
	for _, opt := range opts {
		opt(r)
	}

	local := fs.Join(fs.Root(), name)
	if st, err := os.Stat(local); err == nil && !st.IsDir() {
		r.path = local
		return r, nil
	}
	tmp, err := os.CreateTemp("", "pagetagger-*.pdf")
	if err != nil {
		return nil, err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}
	r.path, r.tmp = tmp.Name(), tmp.Name()
	return r, nil
}

// ReadPageTree lists the pages of a PDF document.
func ReadPageTree(data []byte) ([]PageInfo, error) {
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	n := doc.NumPage()
	pages := make([]PageInfo, 0, n)
	for i := 1; i <= n; i++ {
		p := doc.Page(i)
		if p.V.IsNull() {
			return nil, fmt.Errorf("page %d: missing page object", i)
		}
		pages = append(pages, PageInfo{Number: i, Rotate: int(p.V.Key("Rotate").Int64())})
	}
	return pages, nil
}

func (r *PDFRenderer) PageCount() int { return len(r.pages) }

// Pages returns the page tree read at open time.
func (r *PDFRenderer) Pages() []PageInfo { return append([]PageInfo(nil), r.pages...) }

// Render rasterizes page at 72*scale DPI, then applies the view rotation.
// The rasterizer already honors the page's own /Rotate entry.
func (r *PDFRenderer) Render(ctx context.Context, page, rotation int, scale float64) (image.Image, error) {
	if page < 1 || page > len(r.pages) {
		return nil, fmt.Errorf("page %d of %d: %w", page, len(r.pages), ErrNoPage)
	}
	if scale <= 0 {
		return nil, fmt.Errorf("invalid scale %v", scale)
	}
	dpi := strconv.FormatFloat(pointsPerInch*scale, 'f', 2, 64)
	n := strconv.Itoa(page)
	cmd := exec.CommandContext(ctx, r.command, "-f", n, "-l", n, "-r", dpi, "-png", r.path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s page %d: %w: %s", r.command, page, err, bytes.TrimSpace(stderr.Bytes()))
	}
	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode page %d: %w", page, err)
	}
	return Rotate(img, rotation), nil
}

// Close removes the temporary copy of the document, if one was made.
func (r *PDFRenderer) Close() error {
	if r.tmp == "" {
		return nil
	}
	err := os.Remove(r.tmp)
	r.tmp = ""
	return err
}
