package render

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v6"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".tif", ".tiff", ".bmp", ".webp"}

// IsImage reports whether name has an extension ImageRenderer can decode.
func IsImage(name string) bool {
	return slices.Contains(imageExtensions, strings.ToLower(path.Ext(name)))
}

// ImageRenderer serves a sequence of image files as document pages. A scale
// of 1 is the native resolution of each file.
type ImageRenderer struct {
	fs    billy.Filesystem
	pages []string

	mu      sync.RWMutex
	decoded map[int]image.Image
}

// NewImageRenderer uses the given files, in order, as pages 1..n.
func NewImageRenderer(fs billy.Filesystem, pages []string) *ImageRenderer {
	return &ImageRenderer{
		fs:      fs,
		pages:   pages,
		decoded: make(map[int]image.Image),
	}
}

// OpenImageDir collects every image in dir, ordered by name.
func OpenImageDir(fs billy.Filesystem, dir string) (*ImageRenderer, error) {
	entries, err := fs.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read page directory: %w", err)
	}
	var pages []string
	for _, e := range entries {
		if e.IsDir() || !IsImage(e.Name()) {
			continue
		}
		pages = append(pages, fs.Join(dir, e.Name()))
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no page images in %s", dir)
	}
	slices.Sort(pages)
	return NewImageRenderer(fs, pages), nil
}

func (r *ImageRenderer) PageCount() int { return len(r.pages) }

// Pages returns the file of every page.
func (r *ImageRenderer) Pages() []string { return slices.Clone(r.pages) }

func (r *ImageRenderer) Render(ctx context.Context, page, rotation int, scale float64) (image.Image, error) {
	if page < 1 || page > len(r.pages) {
		return nil, fmt.Errorf("page %d of %d: %w", page, len(r.pages), ErrNoPage)
	}
	if scale <= 0 {
		return nil, fmt.Errorf("invalid scale %v", scale)
	}
	src, err := r.source(page)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Decoded pages are cached; Rotate always hands out a copy.
	img := src
	if scale != 1 {
		img = Scale(src, scale)
	}
	return Rotate(img, rotation), nil
}

func (r *ImageRenderer) source(page int) (image.Image, error) {
	r.mu.RLock()
	img, ok := r.decoded[page]
	r.mu.RUnlock()
	if ok {
		return img, nil
	}

	f, err := r.fs.Open(r.pages[page-1])
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err = image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.pages[page-1], err)
	}

	r.mu.Lock()
	r.decoded[page] = img
	r.mu.Unlock()
	return img, nil
}
