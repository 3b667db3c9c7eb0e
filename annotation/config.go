package annotation

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/lewtec/pagetagger/internal/domain"
	"github.com/lewtec/pagetagger/internal/interaction"
	"github.com/lewtec/pagetagger/internal/pageview"
	"github.com/lewtec/pagetagger/internal/render"
)

//go:embed config.sample.yaml
var sampleConfig []byte

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	View struct {
		DefaultScale float64 `yaml:"default_scale"`
	} `yaml:"view"`
	Renderer struct {
		Rasterizer string `yaml:"rasterizer"`
	} `yaml:"renderer"`
	Output struct {
		Dir string `yaml:"dir"`
	} `yaml:"output"`
	Ledger struct {
		Path string `yaml:"path"`
	} `yaml:"ledger"`
	Annotation struct {
		MinSize    int `yaml:"min_size"`
		HandleSize int `yaml:"handle_size"`
	} `yaml:"annotation"`
	Demographics struct {
		File string `yaml:"file"`
	} `yaml:"demographics"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	var c Config
	c.Server.Addr = ":8080"
	c.View.DefaultScale = pageview.DefaultScale
	c.Renderer.Rasterizer = render.DefaultRasterizer
	c.Output.Dir = "exports"
	c.Ledger.Path = "exports.db"
	c.Annotation.MinSize = domain.MinSize
	c.Annotation.HandleSize = interaction.DefaultHandleSize
	return &c
}

// LoadConfig reads a YAML config file on top of the defaults.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML on top of the defaults and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	ret := DefaultConfig()
	if err := yaml.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("while parsing config: %w", err)
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}

// Validate reports every problem of the config at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	if c.Server.Addr == "" {
		result = multierror.Append(result, errors.New("server.addr is empty"))
	}
	if s := c.View.DefaultScale; s < pageview.MinScale || s > pageview.MaxScale {
		result = multierror.Append(result, fmt.Errorf("view.default_scale %v is outside [%v, %v]", s, pageview.MinScale, pageview.MaxScale))
	}
	if c.Renderer.Rasterizer == "" {
		result = multierror.Append(result, errors.New("renderer.rasterizer is empty"))
	}
	if c.Output.Dir == "" {
		result = multierror.Append(result, errors.New("output.dir is empty"))
	}
	if c.Ledger.Path == "" {
		result = multierror.Append(result, errors.New("ledger.path is empty"))
	}
	if c.Annotation.MinSize < 1 {
		result = multierror.Append(result, fmt.Errorf("annotation.min_size %d must be positive", c.Annotation.MinSize))
	}
	if c.Annotation.HandleSize < 1 {
		result = multierror.Append(result, fmt.Errorf("annotation.handle_size %d must be positive", c.Annotation.HandleSize))
	}
	return result.ErrorOrNil()
}

// WriteSampleConfig writes a commented config with the default values.
func WriteSampleConfig(w io.Writer) error {
	_, err := w.Write(sampleConfig)
	return err
}
