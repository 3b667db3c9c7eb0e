package annotation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lewtec/pagetagger/internal/demographics"
	"github.com/lewtec/pagetagger/internal/domain"
	"github.com/lewtec/pagetagger/internal/export"
)

// renderTimeout bounds how long /page.png waits for a render.
const renderTimeout = 30 * time.Second

// GetHTTPHandler exposes the session over HTTP. Every mutating route answers
// with the new State as JSON.
func (s *Session) GetHTTPHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(HTTPLogger(s.logger))

	r.Get("/", s.handleIndex)
	r.Get("/state", s.handleState)
	r.Get("/page.png", s.handlePage)
	r.Post("/events", s.handleEvent)

	r.Route("/dialog", func(r chi.Router) {
		r.Post("/save", s.handleDialogSave)
		r.Post("/cancel", s.command(func(*http.Request) error { return s.Apply(Command{Op: "cancel"}) }))
		r.Post("/type", s.command(func(r *http.Request) error {
			return s.Apply(Command{Op: "type", Type: r.FormValue("type")})
		}))
	})
	r.Route("/nav", func(r chi.Router) {
		r.Post("/next", s.command(func(*http.Request) error { return s.Next() }))
		r.Post("/prev", s.command(func(*http.Request) error { return s.Prev() }))
		r.Post("/goto", s.command(func(r *http.Request) error {
			page, err := strconv.Atoi(r.FormValue("page"))
			if err != nil {
				return fmt.Errorf("%w: page %q", errBadRequest, r.FormValue("page"))
			}
			return s.GoTo(page)
		}))
	})
	r.Post("/rotate/{dir}", s.command(func(r *http.Request) error {
		return s.Apply(Command{Op: "rotate", Dir: chi.URLParam(r, "dir")})
	}))
	r.Post("/zoom/{dir}", s.command(func(r *http.Request) error {
		return s.Apply(Command{Op: "zoom", Dir: chi.URLParam(r, "dir")})
	}))
	r.Delete("/annotations/{id}", s.command(func(r *http.Request) error {
		return s.Apply(Command{Op: "delete", ID: chi.URLParam(r, "id")})
	}))

	r.Post("/export", s.handleExport)
	r.Get("/exports", s.handleExports)
	return r
}

var errBadRequest = errors.New("bad request")

func (s *Session) command(fn func(*http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respond(w, fn(r))
	}
}

func (s *Session) respond(w http.ResponseWriter, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case Rejected(err), errors.Is(err, ErrNoDocument):
			status = http.StatusConflict
		case errors.Is(err, errBadRequest), errors.Is(err, ErrUnknownCommand), errors.Is(err, ErrBadCommand):
			status = http.StatusBadRequest
		}
		if status == http.StatusInternalServerError {
			s.logger.Error("http: command failed", "error", err)
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.State())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Session) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.State())
}

func (s *Session) handleEvent(w http.ResponseWriter, r *http.Request) {
	var c Command
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		s.respond(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	// Let a pending render land so positions refer to the page being shown.
	ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	s.respond(w, s.Apply(c))
}

// handleDialogSave reads the form: "type" picks the annotation type and every
// other field is a property value.
func (s *Session) handleDialogSave(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.respond(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	c := Command{Op: "save", Type: r.PostForm.Get("type")}
	for k := range r.PostForm {
		if k == "type" {
			continue
		}
		if c.Values == nil {
			c.Values = make(map[string]string)
		}
		c.Values[k] = r.PostForm.Get(k)
	}
	s.respond(w, s.Apply(c))
}

func (s *Session) handlePage(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	var buf bytes.Buffer
	if err := s.WritePage(&buf); err != nil {
		if errors.Is(err, ErrNotRendered) {
			http.NotFound(w, r)
			return
		}
		s.logger.Error("http: serving page", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

// handleExport builds the archive and sends it as an attachment. Posted form
// fields are the demographics; an empty form falls back to the session
// demographics source.
func (s *Session) handleExport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var values map[string]string
	if len(r.PostForm) > 0 {
		values = make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			values[k] = r.PostForm.Get(k)
		}
	}
	out, err := s.Export(r.Context(), values)
	switch {
	case errors.Is(err, export.ErrNothingToExport), errors.Is(err, ErrNoDocument):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		s.logger.Error("http: export failed", "error", err)
		http.Error(w, fmt.Sprintf("Export failed: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Data)))
	if out.Record != nil {
		w.Header().Set("X-Export-Id", out.Record.ID)
	}
	_, _ = w.Write(out.Data)
}

func (s *Session) handleExports(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	recs, err := s.Exports(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("http: listing exports", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if recs == nil {
		recs = []*domain.ExportRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Session) handleIndex(w http.ResponseWriter, r *http.Request) {
	st := s.State()
	var recent []*domain.ExportRecord
	if recs, err := s.Exports(r.Context(), 5, 0); err != nil {
		s.logger.Warn("http: listing exports", "error", err)
	} else {
		recent = recs
	}
	data := PageData{
		Title:           "Welcome",
		Content:         summaryMarkdown(st, s.Annotations(), recent),
		Document:        st.Document,
		Page:            st.View.Page,
		Dialog:          st.Dialog,
		Types:           domain.Types,
		DemographicKeys: demographics.Keys,
	}
	if st.Document != "" {
		data.Title = st.Document
	}
	var buf bytes.Buffer
	if err := RenderPage(&buf, "index.html", data); err != nil {
		s.logger.Error("http: rendering index", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func summaryMarkdown(st State, all []domain.Annotation, recent []*domain.ExportRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# pagetagger\n")
	if st.Document == "" {
		fmt.Fprintf(&b, "> No document loaded.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "## %s\n", st.Document)
	fmt.Fprintf(&b, "Page **%d** of **%d**, rotation %d°, zoom %.2f\n\n", st.View.Page, st.View.PageCount, st.View.Rotation, st.View.Scale)
	if st.View.Error != "" {
		fmt.Fprintf(&b, "> Render failed: %s\n\n", st.View.Error)
	}

	counts := map[domain.Type]int{}
	for _, a := range all {
		counts[a.Type]++
	}
	fmt.Fprintf(&b, "### Annotations\n")
	fmt.Fprintf(&b, "%d in total, %d ready to export.\n\n", st.Total, st.Exportable)
	for _, t := range domain.Types {
		fmt.Fprintf(&b, "- %s: %d\n", t, counts[t])
	}
	b.WriteString("\n")

	if len(st.Annotations) > 0 {
		fmt.Fprintf(&b, "#### This page\n\n")
		fmt.Fprintf(&b, "| type | x | y | width | height | properties |\n|---|---|---|---|---|---|\n")
		for _, a := range st.Annotations {
			p := a.Position
			fmt.Fprintf(&b, "| %s | %d | %d | %d | %d | %s |\n", a.Type, p.X, p.Y, p.Width, p.Height, domain.FormatProperties(a.Properties))
		}
		b.WriteString("\n")
	}

	if len(recent) > 0 {
		fmt.Fprintf(&b, "### Recent exports\n\n")
		for _, rec := range recent {
			fmt.Fprintf(&b, "- `%s` %s, %d annotations (%s)\n", rec.Archive, rec.ExportedAt.Format(time.RFC3339), rec.Annotations, rec.SHA256[:min(12, len(rec.SHA256))])
		}
	}
	return b.String()
}

// HTTPLogger logs one line per request.
func HTTPLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			initialTime := time.Now()
			wr := NewStatusCodeRecorderResponseWriter(w)
			handler.ServeHTTP(wr, r)
			logger.Info("http: request",
				"status", wr.Status,
				"method", r.Method,
				"path", r.URL.String(),
				"duration", time.Since(initialTime),
			)
		})
	}
}

type StatusCodeRecorderResponseWriter struct {
	http.ResponseWriter
	Status int
}

func (r *StatusCodeRecorderResponseWriter) WriteHeader(status int) {
	r.Status = status
	r.ResponseWriter.WriteHeader(status)
}

func NewStatusCodeRecorderResponseWriter(w http.ResponseWriter) *StatusCodeRecorderResponseWriter {
	return &StatusCodeRecorderResponseWriter{ResponseWriter: w, Status: 200}
}
