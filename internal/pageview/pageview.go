// Package pageview tracks which page is shown and how, and keeps its raster
// up to date.
//
// Every navigation, rotation or zoom change issues a render request. Requests
// are served one at a time by a background goroutine. While a render is in
// flight, new requests go to a single pending slot: the latest one replaces
// any older pending request, which is counted as a drop.
package pageview

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/lewtec/pagetagger/internal/domain"
	"github.com/lewtec/pagetagger/internal/interaction"
)

const (
	DefaultScale = 1.5
	MinScale     = 0.5
	MaxScale     = 3.0
	ScaleStep    = 0.25
)

var (
	ErrOutOfRange  = errors.New("page out of range")
	ErrNotRendered = errors.New("page has not been rendered")
)

// Renderer rasterizes one page of a document.
type Renderer interface {
	PageCount() int
	Render(ctx context.Context, page, rotation int, scale float64) (image.Image, error)
}

// Request identifies one raster.
type Request struct {
	Page     int
	Rotation int
	Scale    float64
}

// Result is handed to the render callback after every finished request.
type Result struct {
	Request
	Image image.Image
	Err   error
}

// Stats counts render queue activity.
type Stats struct {
	Requests uint64
	Renders  uint64
	Drops    uint64
	Failures uint64
}

// View is a snapshot of the page view state.
type View struct {
	Page      int         `json:"page"`
	PageCount int         `json:"pageCount"`
	Rotation  int         `json:"rotation"`
	Scale     float64     `json:"scale"`
	Size      domain.Size `json:"size"`
	Rendering bool        `json:"rendering"`
	Error     string      `json:"error,omitempty"`
}

type Synchronizer struct {
	renderer     Renderer
	logger       *slog.Logger
	onRender     func(Result)
	defaultScale float64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	cond      *sync.Cond
	page      int
	pageCount int
	rotations map[int]int
	scales    map[int]float64

	pending *Request
	busy    bool
	idle    chan struct{}
	closed  bool

	// gen changes on Load so renders of a previous document are discarded.
	gen       int
	raster    image.Image
	rasterReq Request
	err       error
	stats     Stats
}

type Option func(*Synchronizer)

func WithLogger(l *slog.Logger) Option { return func(s *Synchronizer) { s.logger = l } }

// WithRenderCallback registers fn to run after each finished render, outside
// the synchronizer lock.
func WithRenderCallback(fn func(Result)) Option {
	return func(s *Synchronizer) { s.onRender = fn }
}

// WithDefaultScale sets the zoom pages open at. Values outside
// [MinScale, MaxScale] are clamped.
func WithDefaultScale(v float64) Option {
	return func(s *Synchronizer) { s.defaultScale = max(MinScale, min(MaxScale, v)) }
}

// New starts the render goroutine. Call Close to stop it.
func New(r Renderer, opts ...Option) *Synchronizer {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Synchronizer{
		renderer:     r,
		logger:       slog.Default(),
		defaultScale: DefaultScale,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
		rotations:    make(map[int]int),
		scales:       make(map[int]float64),
		idle:         make(chan struct{}),
	}
	close(s.idle)
	s.cond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	go s.loop()
	return s
}

// Close cancels the in-flight render and stops the render goroutine.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
	s.cancel()
	<-s.done
}

// Load resets the view for a document of pageCount pages and shows the first
// page.
func (s *Synchronizer) Load(pageCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.pageCount = max(0, pageCount)
	s.rotations = make(map[int]int)
	s.scales = make(map[int]float64)
	s.raster = nil
	s.rasterReq = Request{}
	s.err = nil
	s.page = 0
	if s.pageCount > 0 {
		s.page = 1
		s.request()
	}
}

// GoTo shows page p.
func (s *Synchronizer) GoTo(p int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p < 1 || p > s.pageCount {
		return fmt.Errorf("%w: %d of %d", ErrOutOfRange, p, s.pageCount)
	}
	s.page = p
	s.request()
	return nil
}

// Next advances one page. It reports false on the last page.
func (s *Synchronizer) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page >= s.pageCount {
		return false
	}
	s.page++
	s.request()
	return true
}

// Prev goes back one page. It reports false on the first page.
func (s *Synchronizer) Prev() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page <= 1 {
		return false
	}
	s.page--
	s.request()
	return true
}

func (s *Synchronizer) RotateLeft()  { s.rotate(270) }
func (s *Synchronizer) RotateRight() { s.rotate(90) }

func (s *Synchronizer) rotate(delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page == 0 {
		return
	}
	s.rotations[s.page] = (s.rotations[s.page] + delta) % 360
	s.request()
}

func (s *Synchronizer) ZoomIn()    { s.zoom(func(v float64) float64 { return v + ScaleStep }) }
func (s *Synchronizer) ZoomOut()   { s.zoom(func(v float64) float64 { return v - ScaleStep }) }
func (s *Synchronizer) ZoomReset() { s.zoom(func(float64) float64 { return s.defaultScale }) }

func (s *Synchronizer) zoom(next func(float64) float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page == 0 {
		return
	}
	v := max(MinScale, min(MaxScale, next(s.scaleOf(s.page))))
	if v == s.scaleOf(s.page) {
		return
	}
	s.scales[s.page] = v
	s.request()
}

// ApplyZoomToAll copies the zoom of the current page to every page.
func (s *Synchronizer) ApplyZoomToAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.scaleOf(s.page)
	for p := 1; p <= s.pageCount; p++ {
		s.scales[p] = v
	}
}

func (s *Synchronizer) scaleOf(page int) float64 {
	if v, ok := s.scales[page]; ok {
		return v
	}
	return s.defaultScale
}

// Page returns the current page, 0 when nothing is loaded.
func (s *Synchronizer) Page() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// PageCount returns the number of pages of the loaded document.
func (s *Synchronizer) PageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageCount
}

// Rotation returns the view rotation of page in degrees.
func (s *Synchronizer) Rotation(page int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotations[page]
}

// Scale returns the zoom of page.
func (s *Synchronizer) Scale(page int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scaleOf(page)
}

// Rotations returns the rotation of every page.
func (s *Synchronizer) Rotations() map[int]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]int, s.pageCount)
	for p := 1; p <= s.pageCount; p++ {
		out[p] = s.rotations[p]
	}
	return out
}

// Scales returns the zoom of every page.
func (s *Synchronizer) Scales() map[int]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]float64, s.pageCount)
	for p := 1; p <= s.pageCount; p++ {
		out[p] = s.scaleOf(p)
	}
	return out
}

// Err returns the error of the last failed render, nil after a success.
func (s *Synchronizer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Synchronizer) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Raster returns the last successfully rendered raster and its request.
func (s *Synchronizer) Raster() (image.Image, Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raster, s.rasterReq, s.raster != nil
}

// View returns a snapshot of the current view.
func (s *Synchronizer) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		Page:      s.page,
		PageCount: s.pageCount,
		Rotation:  s.rotations[s.page],
		Scale:     s.scaleOf(s.page),
		Size:      s.size(),
		Rendering: s.busy,
	}
	if s.err != nil {
		v.Error = s.err.Error()
	}
	return v
}

func (s *Synchronizer) size() domain.Size {
	if s.raster == nil {
		return domain.Size{}
	}
	b := s.raster.Bounds()
	return domain.Size{Width: b.Dx(), Height: b.Dy()}
}

// AnnotationSource lists the annotations of a page in creation order.
type AnnotationSource interface {
	ForPage(page int) []domain.Annotation
}

// Frame builds the interaction frame of the raster on screen. The visible set
// is rebuilt from src on every call.
//
// Pointer positions are only meaningful against the raster they were taken
// on, so Frame fails with ErrNotRendered while that raster is not the one the
// current page, rotation and scale ask for: before the first render, while a
// render is queued or in flight and after a failed render. The returned frame
// then describes the requested view with an empty View size.
func (s *Synchronizer) Frame(src AnnotationSource) (interaction.Frame, error) {
	s.mu.Lock()
	cur := s.current()
	var err error
	switch {
	case s.page == 0:
		err = ErrNotRendered
	case s.err != nil:
		err = fmt.Errorf("%w: %v", ErrNotRendered, s.err)
	case s.raster == nil, s.busy, s.rasterReq != cur:
		err = fmt.Errorf("%w: page %d is rendering", ErrNotRendered, cur.Page)
	}
	f := interaction.Frame{Page: cur.Page, Rotation: cur.Rotation, Scale: cur.Scale}
	if err == nil {
		f = interaction.Frame{
			Page:     s.rasterReq.Page,
			Rotation: s.rasterReq.Rotation,
			Scale:    s.rasterReq.Scale,
			View:     s.size(),
		}
	}
	s.mu.Unlock()
	if f.Page > 0 {
		f.Annotations = src.ForPage(f.Page)
	}
	return f, err
}

// current is the request for the page view as it stands. Caller holds mu.
func (s *Synchronizer) current() Request {
	if s.page == 0 {
		return Request{}
	}
	return Request{Page: s.page, Rotation: s.rotations[s.page], Scale: s.scaleOf(s.page)}
}

// Wait blocks until no render is in flight or pending.
func (s *Synchronizer) Wait(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// request queues a render of the current view. Caller holds mu.
func (s *Synchronizer) request() {
	if s.closed {
		return
	}
	s.stats.Requests++
	if s.pending != nil {
		s.stats.Drops++
		s.logger.Debug("pageview: superseded render request", "page", s.pending.Page)
	}
	req := s.current()
	s.pending = &req
	if !s.busy {
		s.busy = true
		s.idle = make(chan struct{})
	}
	s.cond.Signal()
}

func (s *Synchronizer) loop() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for s.pending == nil && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			if s.busy {
				s.busy = false
				close(s.idle)
			}
			s.mu.Unlock()
			return
		}
		req, gen := *s.pending, s.gen
		s.pending = nil
		s.mu.Unlock()

		img, err := s.renderer.Render(s.ctx, req.Page, req.Rotation, req.Scale)

		s.mu.Lock()
		switch {
		case gen != s.gen:
			s.logger.Debug("pageview: discarded render of previous document", "page", req.Page)
		case err != nil:
			s.stats.Failures++
			s.err = fmt.Errorf("render page %d: %w", req.Page, err)
			s.logger.Error("pageview: render failed", "page", req.Page, "error", err)
		default:
			s.stats.Renders++
			s.raster = img
			s.rasterReq = req
			s.err = nil
		}
		cb := s.onRender
		s.mu.Unlock()

		if cb != nil {
			cb(Result{Request: req, Image: img, Err: err})
		}

		s.mu.Lock()
		if s.pending == nil && s.busy {
			s.busy = false
			close(s.idle)
		}
		s.mu.Unlock()
	}
}
