package annotation

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hashicorp/go-multierror"
)

func TestParseConfig(t *testing.T) {
	t.Run("empty file keeps defaults", func(t *testing.T) {
		got, err := ParseConfig(nil)
		if err != nil {
			t.Fatalf("ParseConfig() error = %v", err)
		}
		if diff := cmp.Diff(DefaultConfig(), got); diff != "" {
			t.Errorf("ParseConfig() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("overrides", func(t *testing.T) {
		got, err := ParseConfig([]byte("server:\n  addr: \":9000\"\nview:\n  default_scale: 2\n"))
		if err != nil {
			t.Fatalf("ParseConfig() error = %v", err)
		}
		if got.Server.Addr != ":9000" || got.View.DefaultScale != 2 {
			t.Errorf("Addr/DefaultScale = %v/%v, want :9000/2", got.Server.Addr, got.View.DefaultScale)
		}
		if got.Renderer.Rasterizer != "pdftoppm" {
			t.Errorf("Rasterizer = %v, want default", got.Renderer.Rasterizer)
		}
	})

	t.Run("reports every problem", func(t *testing.T) {
		_, err := ParseConfig([]byte("view:\n  default_scale: 7\nannotation:\n  min_size: 0\n  handle_size: -1\noutput:\n  dir: \"\"\n"))
		merr, ok := err.(*multierror.Error)
		if !ok {
			t.Fatalf("ParseConfig() error = %v, want *multierror.Error", err)
		}
		if len(merr.Errors) != 4 {
			t.Errorf("len(Errors) = %d, want 4: %v", len(merr.Errors), merr)
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		if _, err := ParseConfig([]byte("server: [")); err == nil {
			t.Error("Expected error for invalid YAML")
		}
	})
}

func TestSampleConfig(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSampleConfig(&buf); err != nil {
		t.Fatalf("WriteSampleConfig() error = %v", err)
	}
	if !strings.HasPrefix(buf.String(), "#") {
		t.Error("Expected sample config to start with a comment")
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), got); diff != "" {
		t.Errorf("sample config differs from defaults (-want +got):\n%s", diff)
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); !os.IsNotExist(err) {
		t.Errorf("LoadConfig() error = %v, want not exist", err)
	}
}

func TestHashBytes(t *testing.T) {
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := HashBytes([]byte("abc")); got != want {
		t.Errorf("HashBytes() = %v, want %v", got, want)
	}
	got, err := HashReader(strings.NewReader("abc"))
	if err != nil || got != want {
		t.Errorf("HashReader() = %v, %v, want %v", got, err, want)
	}
}
