// Package export packages classified annotations, page images and
// demographics into one archive.
//
// Archive layout:
//
//	annotations.json
//	demographics.csv
//	page_<n>/page_<n>.png
//	page_<n>/annotations.csv
//	page_<n>/annotation_<k>_<type>.png
//	page_<n>/annotation_<k>_metadata.json
//
// Pages are processed one after the other in ascending order. Each crop is
// taken from a raster rendered at the rotation and scale its annotation was
// drawn at, so crops stay correct after the page view changed.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"path"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lewtec/pagetagger/internal/archive"
	"github.com/lewtec/pagetagger/internal/demographics"
	"github.com/lewtec/pagetagger/internal/domain"
	"github.com/lewtec/pagetagger/internal/render"
)

// DefaultDocumentName names archives of documents without a name.
const DefaultDocumentName = "pdf_document"

var ErrNothingToExport = errors.New("no annotations to export")

// Renderer rasterizes a page at a rotation and scale.
type Renderer interface {
	Render(ctx context.Context, page, rotation int, scale float64) (image.Image, error)
}

// Input is everything an export reads. The exporter never touches the
// annotation store itself.
type Input struct {
	Document     string
	Annotations  []domain.Annotation
	Rotations    map[int]int
	Scales       map[int]float64
	Demographics domain.Demographics
}

// Result is a finished archive.
type Result struct {
	Name        string
	Data        []byte
	Annotations int
	Pages       int
	Entries     []string
}

type Exporter struct {
	renderer     Renderer
	logger       *slog.Logger
	now          func() time.Time
	newWriter    func(time.Time) archive.Writer
	defaultScale float64
	workers      int
}

type Option func(*Exporter)

func WithLogger(l *slog.Logger) Option { return func(e *Exporter) { e.logger = l } }

// WithClock sets the time stamped on archive entries.
func WithClock(now func() time.Time) Option { return func(e *Exporter) { e.now = now } }

// WithWriter replaces the zip writer.
func WithWriter(fn func(time.Time) archive.Writer) Option {
	return func(e *Exporter) { e.newWriter = fn }
}

// WithDefaultScale sets the scale used for pages and annotations without one.
func WithDefaultScale(s float64) Option { return func(e *Exporter) { e.defaultScale = s } }

// WithWorkers bounds concurrent crop encoding.
func WithWorkers(n int) Option { return func(e *Exporter) { e.workers = n } }

func New(r Renderer, opts ...Option) *Exporter {
	e := &Exporter{
		renderer:     r,
		logger:       slog.Default(),
		now:          time.Now,
		newWriter:    func(t time.Time) archive.Writer { return archive.NewZipWriter(t) },
		defaultScale: 1.5,
		workers:      runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ArchiveName derives the archive file name from a document path.
func ArchiveName(document string) string {
	base := path.Base(strings.ReplaceAll(document, "\\", "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "" || base == "." || base == "/" {
		base = DefaultDocumentName
	}
	return base + "_annotations.zip"
}

type annotationsFile struct {
	Annotations   []domain.Annotation `json:"annotations"`
	PageRotations map[int]int         `json:"pageRotations"`
	PageScales    map[int]float64     `json:"pageScales"`
	Demographics  demographics.Report `json:"demographics"`
}

// Export builds the archive. Any failure aborts the export and no archive is
// returned.
func (e *Exporter) Export(ctx context.Context, in Input) (*Result, error) {
	var items []domain.Annotation
	for _, a := range in.Annotations {
		if a.Exportable() {
			items = append(items, a)
		}
	}
	if len(items) == 0 {
		return nil, ErrNothingToExport
	}

	byPage := make(map[int][]domain.Annotation)
	for _, a := range items {
		byPage[a.Page] = append(byPage[a.Page], a)
	}
	pages := make([]int, 0, len(byPage))
	for p := range byPage {
		pages = append(pages, p)
	}
	slices.Sort(pages)

	w := e.newWriter(e.now())
	res := &Result{Name: ArchiveName(in.Document), Annotations: len(items), Pages: len(pages)}
	add := func(name string, data []byte) error {
		if err := w.AddEntry(name, data); err != nil {
			return fmt.Errorf("add %s: %w", name, err)
		}
		res.Entries = append(res.Entries, name)
		return nil
	}

	report := demographics.Process(in.Demographics)
	summary, err := json.MarshalIndent(annotationsFile{
		Annotations:   items,
		PageRotations: in.Rotations,
		PageScales:    in.Scales,
		Demographics:  report,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode annotations.json: %w", err)
	}
	if err := add("annotations.json", summary); err != nil {
		return nil, err
	}
	demoCSV, err := report.CSV()
	if err != nil {
		return nil, fmt.Errorf("encode demographics.csv: %w", err)
	}
	if err := add("demographics.csv", demoCSV); err != nil {
		return nil, err
	}

	cache := newRasterCache()
	for _, page := range pages {
		view := domain.Frame{Rotation: in.Rotations[page], Scale: e.scale(in.Scales[page])}
		if err := e.exportPage(ctx, cache, page, view, byPage[page], add); err != nil {
			return nil, err
		}
	}

	data, err := w.Finalize(ctx)
	if err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	res.Data = data
	e.logger.Info("export: archive built", "name", res.Name, "annotations", res.Annotations, "pages", res.Pages, "bytes", len(data))
	return res, nil
}

func (e *Exporter) scale(s float64) float64 {
	if s <= 0 {
		return e.defaultScale
	}
	return s
}

func (e *Exporter) raster(ctx context.Context, cache *rasterCache, page int, f domain.Frame) (image.Image, error) {
	if img, ok := cache.Get(page, f); ok {
		return img, nil
	}
	img, err := e.renderer.Render(ctx, page, f.Rotation, f.Scale)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", page, err)
	}
	cache.Set(page, f, img)
	return img, nil
}

func (e *Exporter) exportPage(ctx context.Context, cache *rasterCache, page int, view domain.Frame, items []domain.Annotation, add func(string, []byte) error) error {
	dir := fmt.Sprintf("page_%d", page)

	pageImg, err := e.raster(ctx, cache, page, view)
	if err != nil {
		return err
	}
	pagePNG, err := encodePNG(pageImg)
	if err != nil {
		return fmt.Errorf("encode page %d: %w", page, err)
	}
	if err := add(fmt.Sprintf("%s/page_%d.png", dir, page), pagePNG); err != nil {
		return err
	}

	rows, err := annotationsCSV(items)
	if err != nil {
		return fmt.Errorf("encode page %d csv: %w", page, err)
	}
	if err := add(dir+"/annotations.csv", rows); err != nil {
		return err
	}

	// Rasters are rendered sequentially; only PNG encoding runs in parallel.
	sources := make([]image.Image, len(items))
	for k, a := range items {
		src, err := e.raster(ctx, cache, page, domain.Frame{Rotation: a.Rotation, Scale: e.scale(a.Scale)})
		if err != nil {
			return err
		}
		sources[k] = src
	}

	crops := make([][]byte, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, e.workers))
	for k, a := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img := render.Crop(sources[k], a.Position)
			if img == nil {
				e.logger.Warn("export: annotation outside page raster", "id", a.ID, "page", page, "position", a.Position)
				return nil
			}
			b, err := encodePNG(img)
			if err != nil {
				return fmt.Errorf("encode annotation %s: %w", a.ID, err)
			}
			crops[k] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for k, a := range items {
		n := k + 1
		if crops[k] != nil {
			if err := add(fmt.Sprintf("%s/annotation_%d_%s.png", dir, n, a.Type), crops[k]); err != nil {
				return err
			}
		}
		meta, err := json.MarshalIndent(a, "", "  ")
		if err != nil {
			return fmt.Errorf("encode annotation %s: %w", a.ID, err)
		}
		if err := add(fmt.Sprintf("%s/annotation_%d_metadata.json", dir, n), meta); err != nil {
			return err
		}
	}
	return nil
}

// annotationsCSV renders the per page CSV: Type,X,Y,Width,Height,Properties.
func annotationsCSV(items []domain.Annotation) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"Type", "X", "Y", "Width", "Height", "Properties"}); err != nil {
		return nil, err
	}
	for _, a := range items {
		p := a.Position
		if err := w.Write([]string{
			string(a.Type),
			strconv.Itoa(p.X),
			strconv.Itoa(p.Y),
			strconv.Itoa(p.Width),
			strconv.Itoa(p.Height),
			domain.FormatProperties(a.Properties),
		}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
