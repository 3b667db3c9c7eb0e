package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/go-git/go-billy/v6/memfs"
	"github.com/go-git/go-billy/v6/util"
	"github.com/google/go-cmp/cmp"
)

func readZip(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader() error = %v", err)
	}
	out := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		out[f.Name] = string(b)
	}
	return out
}

func TestZipWriter(t *testing.T) {
	w := NewZipWriter(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	entries := map[string]string{
		"annotations.json":       "{}",
		"page_1/annotations.csv": "Type,X,Y,Width,Height,Properties\n",
	}
	for name, body := range entries {
		if err := w.AddEntry(name, []byte(body)); err != nil {
			t.Fatalf("AddEntry(%s) error = %v", name, err)
		}
	}

	t.Run("rejects duplicates", func(t *testing.T) {
		if err := w.AddEntry("/page_1/./annotations.csv", nil); !errors.Is(err, ErrDuplicate) {
			t.Errorf("AddEntry() error = %v, want ErrDuplicate", err)
		}
	})

	t.Run("rejects empty paths", func(t *testing.T) {
		for _, name := range []string{"", "/", "."} {
			if err := w.AddEntry(name, nil); !errors.Is(err, ErrEmptyPath) {
				t.Errorf("AddEntry(%q) error = %v, want ErrEmptyPath", name, err)
			}
		}
	})

	data, err := w.Finalize(context.Background())
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if diff := cmp.Diff(entries, readZip(t, data)); diff != "" {
		t.Errorf("archive content mismatch (-want +got):\n%s", diff)
	}

	t.Run("unusable after finalize", func(t *testing.T) {
		if err := w.AddEntry("late.txt", nil); !errors.Is(err, ErrFinalized) {
			t.Errorf("AddEntry() error = %v, want ErrFinalized", err)
		}
		if _, err := w.Finalize(context.Background()); !errors.Is(err, ErrFinalized) {
			t.Errorf("Finalize() error = %v, want ErrFinalized", err)
		}
	})
}

func TestZipWriter_CanceledFinalize(t *testing.T) {
	w := NewZipWriter(time.Now())
	_ = w.AddEntry("a.txt", []byte("a"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := w.Finalize(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Finalize() error = %v, want context.Canceled", err)
	}
}

func TestSave(t *testing.T) {
	fs := memfs.New()
	if err := Save(fs, "out/doc_annotations.zip", []byte("first")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := Save(fs, "out/doc_annotations.zip", []byte("second")); err != nil {
		t.Fatalf("Save() overwrite error = %v", err)
	}
	got, err := util.ReadFile(fs, "out/doc_annotations.zip")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Errorf("content = %q, want %q", got, "second")
	}
	if _, err := fs.Stat("out/doc_annotations.zip.part"); err == nil {
		t.Error("temporary file left behind")
	}
}
