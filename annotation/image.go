package annotation

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"sync"

	"github.com/go-git/go-billy/v6"
	"golang.org/x/sync/errgroup"

	"github.com/lewtec/pagetagger/internal/archive"
	"github.com/lewtec/pagetagger/internal/render"
)

var pngEncoder = png.Encoder{CompressionLevel: png.BestSpeed}

// WritePNG encodes img for display, favoring speed over size.
func WritePNG(w io.Writer, img image.Image) error {
	bw := bufio.NewWriter(w)
	if err := pngEncoder.Encode(bw, img); err != nil {
		return err
	}
	return bw.Flush()
}

// PageFileName names ingested pages so they sort in page order.
func PageFileName(page int) string {
	return fmt.Sprintf("page_%04d.png", page)
}

// IngestPages renders every page of r at scale, unrotated, into output as a
// directory of page images that can be opened as a document. Up to jobs pages
// are rendered at once; writes to output are serialized.
func IngestPages(ctx context.Context, r render.Renderer, output billy.Filesystem, scale float64, jobs int) ([]string, error) {
	names := make([]string, r.PageCount())
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, jobs))
	for page := 1; page <= r.PageCount(); page++ {
		g.Go(func() error {
			img, err := r.Render(ctx, page, 0, scale)
			if err != nil {
				return fmt.Errorf("while rendering page %d: %w", page, err)
			}
			var buf bytes.Buffer
			if err := png.Encode(&buf, img); err != nil {
				return fmt.Errorf("while encoding page %d: %w", page, err)
			}
			name := PageFileName(page)
			mu.Lock()
			err = archive.Save(output, name, buf.Bytes())
			mu.Unlock()
			if err != nil {
				return fmt.Errorf("while saving page %d: %w", page, err)
			}
			slog.Debug("ingest: page written", "page", page, "file", name)
			names[page-1] = name
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return names, nil
}
