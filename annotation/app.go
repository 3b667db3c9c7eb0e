package annotation

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/osfs"

	"github.com/lewtec/pagetagger/internal/archive"
	"github.com/lewtec/pagetagger/internal/demographics"
	"github.com/lewtec/pagetagger/internal/domain"
	"github.com/lewtec/pagetagger/internal/export"
	"github.com/lewtec/pagetagger/internal/interaction"
	"github.com/lewtec/pagetagger/internal/pageview"
	"github.com/lewtec/pagetagger/internal/render"
	"github.com/lewtec/pagetagger/internal/store"
)

var (
	ErrNoDocument  = errors.New("no document loaded")
	ErrNotRendered = pageview.ErrNotRendered
)

// activeDocument is the renderer shared by the page view and the exporter.
// It follows document switches.
type activeDocument struct {
	mu  sync.RWMutex
	doc *render.Document
}

func (a *activeDocument) current() *render.Document {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.doc
}

func (a *activeDocument) swap(d *render.Document) *render.Document {
	a.mu.Lock()
	defer a.mu.Unlock()
	old := a.doc
	a.doc = d
	return old
}

func (a *activeDocument) PageCount() int {
	if d := a.current(); d != nil {
		return d.PageCount()
	}
	return 0
}

func (a *activeDocument) Render(ctx context.Context, page, rotation int, scale float64) (image.Image, error) {
	d := a.current()
	if d == nil {
		return nil, ErrNoDocument
	}
	return d.Render(ctx, page, rotation, scale)
}

// Session is the application context of one annotator: the loaded document,
// its annotations, the page view and the export side. Every command runs
// under the session lock.
type Session struct {
	mu sync.Mutex

	config       *Config
	logger       *slog.Logger
	output       billy.Filesystem
	ledger       domain.ExportRepository
	demographics demographics.Source
	now          func() time.Time

	doc      *activeDocument
	store    *store.Store
	machine  *interaction.Machine
	view     *pageview.Synchronizer
	exporter *export.Exporter
	stopLog  func()

	storeOpts []store.Option
}

type SessionOption func(*Session)

func WithLogger(l *slog.Logger) SessionOption { return func(s *Session) { s.logger = l } }

// WithOutput sets where export archives are saved. Defaults to
// Config.Output.Dir on the local disk.
func WithOutput(fs billy.Filesystem) SessionOption { return func(s *Session) { s.output = fs } }

// WithLedger records finished exports in repo.
func WithLedger(repo domain.ExportRepository) SessionOption {
	return func(s *Session) { s.ledger = repo }
}

// WithDemographics sets the participant record used by exports that do not
// carry their own.
func WithDemographics(src demographics.Source) SessionOption {
	return func(s *Session) { s.demographics = src }
}

func WithClock(now func() time.Time) SessionOption { return func(s *Session) { s.now = now } }

// WithIDGenerator replaces uuid annotation ids.
func WithIDGenerator(fn func() string) SessionOption {
	return func(s *Session) { s.storeOpts = append(s.storeOpts, store.WithIDGenerator(fn)) }
}

func NewSession(cfg *Config, opts ...SessionOption) *Session {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Session{
		config:       cfg,
		logger:       slog.Default(),
		demographics: demographics.MapSource(nil),
		now:          time.Now,
		doc:          &activeDocument{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.output == nil {
		s.output = osfs.New(cfg.Output.Dir)
	}
	s.store = store.New(append([]store.Option{
		store.WithLogger(s.logger),
		store.WithMinSize(cfg.Annotation.MinSize),
	}, s.storeOpts...)...)
	s.machine = interaction.New(s.store,
		interaction.WithLogger(s.logger),
		interaction.WithHandleSize(cfg.Annotation.HandleSize),
	)
	s.view = pageview.New(s.doc,
		pageview.WithLogger(s.logger),
		pageview.WithDefaultScale(cfg.View.DefaultScale),
		pageview.WithRenderCallback(s.rendered),
	)
	s.exporter = export.New(s.doc,
		export.WithLogger(s.logger),
		export.WithClock(func() time.Time { return s.now() }),
		export.WithDefaultScale(cfg.View.DefaultScale),
	)
	s.stopLog = s.store.Subscribe(func(c store.Change) {
		s.logger.Debug("session: store changed", "kind", c.Kind, "id", c.ID, "total", s.store.Len())
	})
	return s
}

func (s *Session) rendered(res pageview.Result) {
	if res.Err != nil {
		s.logger.Error("session: page render failed", "page", res.Page, "error", res.Err)
		return
	}
	s.logger.Debug("session: page rendered", "page", res.Page, "rotation", res.Rotation, "scale", res.Scale)
}

// Close stops the page view and releases the document.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLog()
	s.view.Close()
	if old := s.doc.swap(nil); old != nil {
		return old.Close()
	}
	return nil
}

// LoadDocument opens name from fs, drops every annotation and shows the first
// page.
func (s *Session) LoadDocument(fs billy.Filesystem, name string) error {
	doc, err := render.Open(fs, name, render.WithRasterizer(s.config.Renderer.Rasterizer))
	if err != nil {
		return fmt.Errorf("while opening document %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.machine.Reset()
	s.store.Clear()
	if old := s.doc.swap(doc); old != nil {
		if err := old.Close(); err != nil {
			s.logger.Warn("session: closing previous document", "document", old.Name, "error", err)
		}
	}
	s.view.Load(doc.PageCount())
	s.logger.Info("session: document loaded", "document", name, "pages", doc.PageCount())
	return nil
}

// Document returns the name of the loaded document.
func (s *Session) Document() string {
	if d := s.doc.current(); d != nil {
		return d.Name
	}
	return ""
}

// Handle applies a pointer or dialog command to the current page. Pointer
// commands are refused with ErrNotRendered until the raster on screen matches
// the page view; a gesture caught by that is aborted.
func (s *Session) Handle(ev interaction.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.current() == nil {
		return ErrNoDocument
	}
	f, err := s.view.Frame(s.store)
	if err != nil && positional(ev) {
		if s.machine.State() != interaction.Idle {
			s.machine.Reset()
		}
		s.logger.Debug("session: pointer command rejected", "event", fmt.Sprintf("%T", ev), "error", err)
		return err
	}
	err = s.machine.Handle(f, ev)
	if err != nil {
		s.logger.Debug("session: command rejected", "event", fmt.Sprintf("%T", ev), "error", err)
	}
	return err
}

func positional(ev interaction.Event) bool {
	switch ev.(type) {
	case interaction.PointerDown, interaction.PointerMove, interaction.PointerUp, interaction.DoubleActivateAt:
		return true
	}
	return false
}

// viewChange runs a page view command. View changes are refused while the
// dialog is open and abort a running gesture.
func (s *Session) viewChange(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.current() == nil {
		return ErrNoDocument
	}
	if s.machine.Dialog() != nil {
		return interaction.ErrDialogOpen
	}
	if s.machine.State() != interaction.Idle {
		s.machine.Reset()
	}
	return fn()
}

func (s *Session) Next() error {
	return s.viewChange(func() error { s.view.Next(); return nil })
}

func (s *Session) Prev() error {
	return s.viewChange(func() error { s.view.Prev(); return nil })
}

func (s *Session) GoTo(page int) error {
	return s.viewChange(func() error { return s.view.GoTo(page) })
}

func (s *Session) RotateLeft() error {
	return s.viewChange(func() error { s.view.RotateLeft(); return nil })
}

func (s *Session) RotateRight() error {
	return s.viewChange(func() error { s.view.RotateRight(); return nil })
}

func (s *Session) ZoomIn() error {
	return s.viewChange(func() error { s.view.ZoomIn(); return nil })
}

func (s *Session) ZoomOut() error {
	return s.viewChange(func() error { s.view.ZoomOut(); return nil })
}

func (s *Session) ZoomReset() error {
	return s.viewChange(func() error { s.view.ZoomReset(); return nil })
}

func (s *Session) ApplyZoomToAll() error {
	return s.viewChange(func() error { s.view.ApplyZoomToAll(); return nil })
}

// Wait blocks until the page view has no render in flight.
func (s *Session) Wait(ctx context.Context) error {
	return s.view.Wait(ctx)
}

// DialogState is the classification form as shown to the user.
type DialogState struct {
	AnnotationID string              `json:"annotationId"`
	Type         domain.Type         `json:"type"`
	Values       map[string]string   `json:"values"`
	Fields       []string            `json:"fields"`
	Options      map[string][]string `json:"options,omitempty"`
	New          bool                `json:"new"`
}

// GestureOverlay is the live rectangle of the running gesture.
type GestureOverlay struct {
	ID   string      `json:"id,omitempty"`
	Rect domain.Rect `json:"rect"`
}

// State is a snapshot of everything the user sees.
type State struct {
	Document    string              `json:"document"`
	View        pageview.View       `json:"view"`
	Gesture     string              `json:"gesture"`
	Dialog      *DialogState        `json:"dialog,omitempty"`
	Overlay     *GestureOverlay     `json:"overlay,omitempty"`
	Annotations []domain.Annotation `json:"annotations"`
	Total       int                 `json:"total"`
	Exportable  int                 `json:"exportable"`
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Document:    s.Document(),
		View:        s.view.View(),
		Gesture:     s.machine.State().String(),
		Annotations: s.store.ForPage(s.view.Page()),
		Total:       s.store.Len(),
		Exportable:  len(s.store.Exportable()),
	}
	if st.Annotations == nil {
		st.Annotations = []domain.Annotation{}
	}
	if d := s.machine.Dialog(); d != nil {
		ds := &DialogState{
			AnnotationID: d.AnnotationID,
			Type:         d.Type,
			Values:       d.Values,
			New:          d.New,
		}
		for _, f := range domain.DefaultProperties(d.Type).Fields() {
			ds.Fields = append(ds.Fields, f.Key)
		}
		if d.Type == domain.TypeCopy {
			ds.Options = domain.CopyOptions()
		}
		st.Dialog = ds
	}
	if o, ok := s.machine.Overlay(); ok {
		st.Overlay = &GestureOverlay{ID: o.ID, Rect: o.Rect}
	}
	return st
}

// Annotations returns every annotation in creation order.
func (s *Session) Annotations() []domain.Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.All()
}

// WritePage encodes the current page raster as PNG.
func (s *Session) WritePage(w io.Writer) error {
	img, _, ok := s.view.Raster()
	if !ok {
		if err := s.view.Err(); err != nil {
			return err
		}
		return ErrNotRendered
	}
	return WritePNG(w, img)
}

// ExportOutcome describes a saved export.
type ExportOutcome struct {
	*export.Result
	Record *domain.ExportRecord
}

// Export builds the archive of the loaded document, saves it to the output
// filesystem and records it in the ledger. values, when not nil, is the
// demographics form; otherwise the session demographics source is read. The
// annotations are left untouched whatever the outcome.
func (s *Session) Export(ctx context.Context, values map[string]string) (*ExportOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.doc.current()
	if doc == nil {
		return nil, ErrNoDocument
	}
	var src demographics.Source = s.demographics
	if values != nil {
		src = demographics.MapSource(values)
	}
	demo, err := src.Demographics(ctx)
	if err != nil {
		return nil, fmt.Errorf("while reading demographics: %w", err)
	}

	res, err := s.exporter.Export(ctx, export.Input{
		Document:     doc.Name,
		Annotations:  s.store.All(),
		Rotations:    s.view.Rotations(),
		Scales:       s.view.Scales(),
		Demographics: demo,
	})
	if err != nil {
		return nil, err
	}
	if err := archive.Save(s.output, res.Name, res.Data); err != nil {
		return nil, fmt.Errorf("while saving %s: %w", res.Name, err)
	}
	out := &ExportOutcome{Result: res}
	if s.ledger == nil {
		return out, nil
	}
	rec, err := s.ledger.Create(ctx, domain.ExportRecord{
		Document:    doc.Name,
		Archive:     res.Name,
		Annotations: res.Annotations,
		Pages:       res.Pages,
		SHA256:      HashBytes(res.Data),
		Size:        int64(len(res.Data)),
		ExportedAt:  s.now(),
	})
	if err != nil {
		// The archive is already saved.
		s.logger.Error("session: recording export", "archive", res.Name, "error", err)
		return out, nil
	}
	out.Record = rec
	s.logger.Info("session: export recorded", "id", rec.ID, "archive", res.Name, "sha256", rec.SHA256)
	return out, nil
}

// Exports lists the ledger, newest first.
func (s *Session) Exports(ctx context.Context, limit, offset int) ([]*domain.ExportRecord, error) {
	if s.ledger == nil {
		return nil, nil
	}
	return s.ledger.List(ctx, limit, offset)
}
