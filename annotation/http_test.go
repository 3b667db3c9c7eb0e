package annotation

import (
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func doRequest(t *testing.T, h http.Handler, method, target, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func postEvent(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	return doRequest(t, h, http.MethodPost, "/events", "application/json", body)
}

func postForm(t *testing.T, h http.Handler, target string, values url.Values) *httptest.ResponseRecorder {
	t.Helper()
	return doRequest(t, h, http.MethodPost, target, "application/x-www-form-urlencoded", values.Encode())
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) State {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var st State
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return st
}

func TestHTTP_AnnotateAndExport(t *testing.T) {
	ts := newTestSession(t)
	h := ts.GetHTTPHandler()

	t.Run("export without annotations", func(t *testing.T) {
		rec := postForm(t, h, "/export", nil)
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", rec.Code)
		}
	})

	postEvent(t, h, `{"op":"down","x":20,"y":20}`)
	postEvent(t, h, `{"op":"move","x":120,"y":80}`)
	st := decodeState(t, postEvent(t, h, `{"op":"up","x":120,"y":80}`))
	if st.Dialog == nil || st.Total != 1 {
		t.Fatalf("State = %+v, want open dialog on one annotation", st)
	}
	id := st.Dialog.AnnotationID

	t.Run("gesture while dialog open", func(t *testing.T) {
		rec := postEvent(t, h, `{"op":"down","x":200,"y":200}`)
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", rec.Code)
		}
	})

	st = decodeState(t, postForm(t, h, "/dialog/type", url.Values{"type": {"drawing"}}))
	if st.Dialog.Type != "drawing" {
		t.Errorf("dialog type = %v, want drawing", st.Dialog.Type)
	}
	st = decodeState(t, postForm(t, h, "/dialog/save", url.Values{"type": {"color"}, "index": {"1"}, "filling": {"2"}, "accuracy": {"3"}}))
	if st.Dialog != nil || st.Exportable != 1 {
		t.Fatalf("State = %+v, want closed dialog and one exportable", st)
	}
	if len(st.Annotations) != 1 || st.Annotations[0].ID != id {
		t.Errorf("Annotations = %+v, want %s", st.Annotations, id)
	}

	t.Run("export", func(t *testing.T) {
		rec := postForm(t, h, "/export", url.Values{"ageYears": {"7"}})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
			t.Errorf("Content-Type = %v, want application/zip", ct)
		}
		if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="doc_annotations.zip"` {
			t.Errorf("Content-Disposition = %v", cd)
		}
		if rec.Header().Get("X-Export-Id") == "" {
			t.Error("Expected X-Export-Id header")
		}
		files := readZip(t, rec.Body.Bytes())
		if !strings.Contains(files["page_1/annotations.csv"], "color,20,20,100,60,index:1;filling:2;accuracy:3") {
			t.Errorf("annotations.csv = %q", files["page_1/annotations.csv"])
		}
	})

	t.Run("exports", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/exports", "", "")
		var recs []map[string]any
		if err := json.NewDecoder(rec.Body).Decode(&recs); err != nil {
			t.Fatal(err)
		}
		if len(recs) != 1 {
			t.Errorf("len(exports) = %d, want 1", len(recs))
		}
	})

	t.Run("delete", func(t *testing.T) {
		st := decodeState(t, doRequest(t, h, http.MethodDelete, "/annotations/"+id, "", ""))
		if st.Total != 0 {
			t.Errorf("Total = %d, want 0", st.Total)
		}
	})
}

func TestHTTP_View(t *testing.T) {
	ts := newTestSession(t)
	h := ts.GetHTTPHandler()

	tests := []struct {
		name   string
		method string
		target string
		body   url.Values
		status int
	}{
		{"next", http.MethodPost, "/nav/next", nil, http.StatusOK},
		{"prev", http.MethodPost, "/nav/prev", nil, http.StatusOK},
		{"goto", http.MethodPost, "/nav/goto", url.Values{"page": {"2"}}, http.StatusOK},
		{"goto out of range", http.MethodPost, "/nav/goto", url.Values{"page": {"5"}}, http.StatusConflict},
		{"goto not a number", http.MethodPost, "/nav/goto", url.Values{"page": {"two"}}, http.StatusBadRequest},
		{"rotate", http.MethodPost, "/rotate/left", nil, http.StatusOK},
		{"zoom", http.MethodPost, "/zoom/in", nil, http.StatusOK},
		{"zoom all", http.MethodPost, "/zoom/all", nil, http.StatusOK},
		{"unknown zoom", http.MethodPost, "/zoom/sideways", nil, http.StatusBadRequest},
		{"cancel without dialog", http.MethodPost, "/dialog/cancel", nil, http.StatusConflict},
		{"bad event", http.MethodPost, "/events", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postForm(t, h, tt.target, tt.body)
			if rec.Code != tt.status {
				t.Errorf("%s %s status = %d, want %d: %s", tt.method, tt.target, rec.Code, tt.status, rec.Body)
			}
		})
	}

	t.Run("page image", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/page.png", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		img, err := png.Decode(rec.Body)
		if err != nil {
			t.Fatalf("png.Decode() error = %v", err)
		}
		// page 2, rotated left, zoomed to 1.25
		if b := img.Bounds(); b.Dx() != 375 || b.Dy() != 500 {
			t.Errorf("page size = %dx%d, want 375x500", b.Dx(), b.Dy())
		}
	})

	t.Run("state", func(t *testing.T) {
		st := decodeState(t, doRequest(t, h, http.MethodGet, "/state", "", ""))
		if st.View.Page != 2 || st.View.Rotation != 270 || st.View.Scale != 1.25 {
			t.Errorf("View = %+v, want page 2 rotation 270 scale 1.25", st.View)
		}
	})

	t.Run("index", func(t *testing.T) {
		rec := doRequest(t, h, http.MethodGet, "/", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
		}
		body := rec.Body.String()
		for _, want := range []string{"<h2>doc</h2>", "Page <strong>2</strong> of <strong>2</strong>", `src="/page.png"`} {
			if !strings.Contains(body, want) {
				t.Errorf("index does not contain %q", want)
			}
		}
	})
}
