// Package archive packages export entries into a single zip file.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/util"
)

var (
	ErrFinalized = errors.New("archive already finalized")
	ErrDuplicate = errors.New("duplicate archive entry")
	ErrEmptyPath = errors.New("empty archive path")
)

// Writer collects entries and produces the archive bytes.
type Writer interface {
	AddEntry(name string, data []byte) error
	Finalize(ctx context.Context) ([]byte, error)
}

// ZipWriter is a deflate compressed Writer. Entries are stored in the order
// they were added.
type ZipWriter struct {
	buf       bytes.Buffer
	zw        *zip.Writer
	names     map[string]struct{}
	modified  time.Time
	finalized bool
}

// NewZipWriter stamps every entry with modified.
func NewZipWriter(modified time.Time) *ZipWriter {
	w := &ZipWriter{names: make(map[string]struct{}), modified: modified}
	w.zw = zip.NewWriter(&w.buf)
	return w
}

func (w *ZipWriter) AddEntry(name string, data []byte) error {
	if w.finalized {
		return ErrFinalized
	}
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if name == "" {
		return ErrEmptyPath
	}
	if _, ok := w.names[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	fw, err := w.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: w.modified,
	})
	if err != nil {
		return err
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	w.names[name] = struct{}{}
	return nil
}

// Finalize closes the archive and returns its bytes. The writer cannot be
// used afterwards.
func (w *ZipWriter) Finalize(ctx context.Context) ([]byte, error) {
	if w.finalized {
		return nil, ErrFinalized
	}
	w.finalized = true
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := w.zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return w.buf.Bytes(), nil
}

// Len returns the number of entries added so far.
func (w *ZipWriter) Len() int { return len(w.names) }

// Save writes data to name on fs, replacing any existing file. The content is
// written to a temporary name first and renamed into place.
func Save(fs billy.Filesystem, name string, data []byte) error {
	if dir := path.Dir(name); dir != "." && dir != "/" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := name + ".part"
	if err := util.WriteFile(fs, tmp, data, 0o644); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := fs.Rename(tmp, name); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}
