package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os/exec"
	"testing"

	"github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/memfs"
	"github.com/go-git/go-billy/v6/util"
	"github.com/google/go-cmp/cmp"

	"github.com/lewtec/pagetagger/internal/domain"
)

var marker = color.RGBA{R: 255, A: 255}

// markedImage is a w x h white image with a red pixel at (0, 0).
func markedImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	img.Set(0, 0, marker)
	return img
}

func writePNG(t *testing.T, fs billy.Filesystem, name string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := util.WriteFile(fs, name, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNormalizeRotation(t *testing.T) {
	tests := map[int]int{0: 0, 90: 90, 360: 0, 450: 90, -90: 270, 135: 90, -360: 0}
	for in, want := range tests {
		if got := NormalizeRotation(in); got != want {
			t.Errorf("NormalizeRotation(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestRotate(t *testing.T) {
	src := markedImage(4, 2)
	tests := []struct {
		deg    int
		size   image.Point
		marker image.Point
	}{
		{0, image.Pt(4, 2), image.Pt(0, 0)},
		{90, image.Pt(2, 4), image.Pt(1, 0)},
		{180, image.Pt(4, 2), image.Pt(3, 1)},
		{270, image.Pt(2, 4), image.Pt(0, 3)},
		{-90, image.Pt(2, 4), image.Pt(0, 3)},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.deg), func(t *testing.T) {
			got := Rotate(src, tt.deg)
			if size := got.Bounds().Size(); size != tt.size {
				t.Errorf("size = %v, want %v", size, tt.size)
			}
			r, _, _, _ := got.At(tt.marker.X, tt.marker.Y).RGBA()
			_, g, _, _ := got.At(tt.marker.X, tt.marker.Y).RGBA()
			if r != 0xffff || g != 0 {
				t.Errorf("marker not found at %v", tt.marker)
			}
		})
	}
}

func TestScale(t *testing.T) {
	src := markedImage(100, 40)
	tests := []struct {
		factor float64
		want   image.Point
	}{
		{1, image.Pt(100, 40)},
		{1.5, image.Pt(150, 60)},
		{0.5, image.Pt(50, 20)},
		{0.001, image.Pt(1, 1)},
	}
	for _, tt := range tests {
		if got := Scale(src, tt.factor).Bounds().Size(); got != tt.want {
			t.Errorf("Scale(%v) size = %v, want %v", tt.factor, got, tt.want)
		}
	}
}

func TestCrop(t *testing.T) {
	src := markedImage(100, 80)
	src.Set(20, 20, marker)

	t.Run("inside", func(t *testing.T) {
		got := Crop(src, domain.Rect{X: 20, Y: 20, Width: 30, Height: 10})
		if got.Bounds() != image.Rect(0, 0, 30, 10) {
			t.Fatalf("bounds = %v, want 30x10", got.Bounds())
		}
		if got.RGBAAt(0, 0) != marker {
			t.Errorf("crop origin = %v, want marker", got.RGBAAt(0, 0))
		}
	})

	t.Run("clipped", func(t *testing.T) {
		got := Crop(src, domain.Rect{X: 90, Y: 70, Width: 30, Height: 30})
		if got.Bounds() != image.Rect(0, 0, 10, 10) {
			t.Errorf("bounds = %v, want 10x10", got.Bounds())
		}
	})

	t.Run("outside", func(t *testing.T) {
		if got := Crop(src, domain.Rect{X: 200, Y: 200, Width: 10, Height: 10}); got != nil {
			t.Errorf("Crop() = %v, want nil", got.Bounds())
		}
	})

	t.Run("offset source", func(t *testing.T) {
		sub := src.SubImage(image.Rect(20, 20, 100, 80))
		got := Crop(sub, domain.Rect{X: 0, Y: 0, Width: 10, Height: 10})
		if got.RGBAAt(0, 0) != marker {
			t.Errorf("crop origin = %v, want marker", got.RGBAAt(0, 0))
		}
	})
}

func TestImageRenderer(t *testing.T) {
	fs := memfs.New()
	writePNG(t, fs, "pages/002.png", markedImage(20, 10))
	writePNG(t, fs, "pages/001.png", markedImage(40, 30))
	if err := util.WriteFile(fs, "pages/notes.txt", []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := OpenImageDir(fs, "pages")
	if err != nil {
		t.Fatalf("OpenImageDir() error = %v", err)
	}
	if diff := cmp.Diff([]string{"pages/001.png", "pages/002.png"}, r.Pages()); diff != "" {
		t.Errorf("Pages() mismatch (-want +got):\n%s", diff)
	}

	img, err := r.Render(context.Background(), 1, 90, 2)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got := img.Bounds().Size(); got != image.Pt(60, 80) {
		t.Errorf("rendered size = %v, want 60x80", got)
	}

	if _, err := r.Render(context.Background(), 3, 0, 1); !errors.Is(err, ErrNoPage) {
		t.Errorf("Render(3) error = %v, want ErrNoPage", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Render(ctx, 2, 0, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("Render() with canceled context error = %v, want context.Canceled", err)
	}
}

func TestImageRenderer_RastersAreCopies(t *testing.T) {
	fs := memfs.New()
	writePNG(t, fs, "pages/001.png", markedImage(20, 10))
	r, err := OpenImageDir(fs, "pages")
	if err != nil {
		t.Fatal(err)
	}

	first, err := r.Render(context.Background(), 1, 0, 1)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	rgba, ok := first.(*image.RGBA)
	if !ok {
		t.Fatalf("Render() = %T, want *image.RGBA", first)
	}
	rgba.Set(0, 0, color.Black)

	second, err := r.Render(context.Background(), 1, 0, 1)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got := color.RGBAModel.Convert(second.At(0, 0)); got != marker {
		t.Errorf("pixel after drawing on an earlier raster = %v, want %v", got, marker)
	}
}

func TestTransformsCopy(t *testing.T) {
	src := markedImage(4, 4)
	for name, img := range map[string]image.Image{
		"Rotate 0": Rotate(src, 0),
		"Scale 1":  Scale(src, 1),
	} {
		dst, ok := img.(*image.RGBA)
		if !ok {
			t.Fatalf("%s = %T, want *image.RGBA", name, img)
		}
		if dst == src {
			t.Errorf("%s returned its input", name)
		}
		dst.Set(0, 0, color.Black)
		if got := color.RGBAModel.Convert(src.At(0, 0)); got != marker {
			t.Errorf("%s: source pixel = %v, want %v", name, got, marker)
		}
	}
}

func TestOpen(t *testing.T) {
	fs := memfs.New()
	writePNG(t, fs, "scan.png", markedImage(10, 10))
	writePNG(t, fs, "book/a.png", markedImage(10, 10))
	writePNG(t, fs, "book/b.png", markedImage(10, 10))
	if err := util.WriteFile(fs, "notes.txt", []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := fs.MkdirAll("empty", 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		pages   int
		wantErr bool
	}{
		{"scan.png", 1, false},
		{"book", 2, false},
		{"notes.txt", 0, true},
		{"empty", 0, true},
		{"missing.pdf", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Open(fs, tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer doc.Close()
			if doc.PageCount() != tt.pages {
				t.Errorf("PageCount() = %d, want %d", doc.PageCount(), tt.pages)
			}
		})
	}
}

// minimalPDF builds a document with one empty page per entry of rotations.
func minimalPDF(rotations ...int) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	kids := ""
	for i := range rotations {
		kids += fmt.Sprintf("%d 0 R ", i+3)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(rotations)))
	for _, rot := range rotations {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 200 100] /Rotate %d >>", rot))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestReadPageTree(t *testing.T) {
	pages, err := ReadPageTree(minimalPDF(0, 90, 0))
	if err != nil {
		t.Fatalf("ReadPageTree() error = %v", err)
	}
	want := []PageInfo{{Number: 1}, {Number: 2, Rotate: 90}, {Number: 3}}
	if diff := cmp.Diff(want, pages); diff != "" {
		t.Errorf("ReadPageTree() mismatch (-want +got):\n%s", diff)
	}

	if _, err := ReadPageTree([]byte("not a pdf")); err == nil {
		t.Error("ReadPageTree() on garbage succeeded")
	}
}

func TestPDFRenderer(t *testing.T) {
	fs := memfs.New()
	if err := util.WriteFile(fs, "doc.pdf", minimalPDF(0, 0), 0o644); err != nil {
		t.Fatal(err)
	}
	doc, err := Open(fs, "doc.pdf")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer doc.Close()
	if doc.PageCount() != 2 {
		t.Fatalf("PageCount() = %d, want 2", doc.PageCount())
	}

	if _, err := exec.LookPath(DefaultRasterizer); err != nil {
		t.Skipf("%s not installed", DefaultRasterizer)
	}
	img, err := doc.Render(context.Background(), 1, 90, 1)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got := img.Bounds().Size(); got != image.Pt(100, 200) {
		t.Errorf("rendered size = %v, want 100x200", got)
	}
}
