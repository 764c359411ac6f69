// Package config loads the label reader's YAML configuration.
//
// A configuration file only needs the keys it changes; everything else keeps
// the value from Default.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/NHMDenmark/NHMDlabelreader/internal/barcode"
	"github.com/NHMDenmark/NHMDlabelreader/internal/correspond"
	"github.com/NHMDenmark/NHMDlabelreader/internal/orient"
	"github.com/NHMDenmark/NHMDlabelreader/internal/pipeline"
	"github.com/NHMDenmark/NHMDlabelreader/internal/region"
	"github.com/NHMDenmark/NHMDlabelreader/internal/segment"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the application configuration loaded from YAML
type Config struct {
	// Background is "red", "blue" or "auto".
	Background string `yaml:"background"`

	// Sides maps a background color to the card face photographed on it.
	Sides map[string]string `yaml:"sides"`

	Segment struct {
		MinSaturation float64 `yaml:"minSaturation"`
		MinValue      float64 `yaml:"minValue"`
		Smooth        float64 `yaml:"smooth"`
		// Hues overrides the built-in hue ranges of the chosen background.
		Hues []segment.HueRange `yaml:"hues,omitempty"`
	} `yaml:"segment"`

	Refine struct {
		Radius       int `yaml:"radius"`
		BorderMargin int `yaml:"borderMargin"`
	} `yaml:"refine"`

	Regions struct {
		Connectivity  int     `yaml:"connectivity"`
		MaxAspect     float64 `yaml:"maxAspect"`
		MinArea       int     `yaml:"minArea"`
		ExpectedCount int     `yaml:"expectedCount"`
	} `yaml:"regions"`

	Orientation struct {
		// Strategy is "moment" or "line".
		Strategy   string             `yaml:"strategy"`
		MarkerHues []segment.HueRange `yaml:"markerHues"`
	} `yaml:"orientation"`

	OCR struct {
		Enabled   bool     `yaml:"enabled"`
		Languages []string `yaml:"languages"`
		Barcodes  []string `yaml:"barcodes"`
	} `yaml:"ocr"`

	Output struct {
		Dir     string `yaml:"dir"`
		CSV     string `yaml:"csv"`
		Format  string `yaml:"format"`
		Overlay bool   `yaml:"overlay"`
	} `yaml:"output"`
}

// Default returns the configuration for photographed card sheets: nine cards
// per sheet, red sheets for fronts and blue sheets for backs.
func Default() *Config {
	cfg := &Config{}
	opts := pipeline.DefaultOptions()

	cfg.Background = opts.Background.String()
	cfg.Sides = map[string]string{
		segment.Red.String():  correspond.Front.String(),
		segment.Blue.String(): correspond.Back.String(),
	}

	cfg.Segment.MinSaturation = opts.Segment.MinSaturation
	cfg.Segment.MinValue = opts.Segment.MinValue
	cfg.Segment.Smooth = opts.Segment.Smooth

	cfg.Refine.Radius = opts.RefineRadius
	cfg.Refine.BorderMargin = opts.BorderMargin

	cfg.Regions.Connectivity = int(opts.Connectivity)
	cfg.Regions.MaxAspect = opts.Filter.MaxAspect
	cfg.Regions.MinArea = opts.Filter.MinArea
	cfg.Regions.ExpectedCount = opts.ExpectedCount

	cfg.Orientation.Strategy = opts.Strategy.String()
	cfg.Orientation.MarkerHues = opts.MarkerHues

	cfg.OCR.Enabled = true
	cfg.OCR.Languages = []string{"dan", "eng"}
	cfg.OCR.Barcodes = []string{string(barcode.DataMatrix), string(barcode.QRCode)}

	cfg.Output.Dir = "labels"
	cfg.Output.CSV = "labels.csv"
	cfg.Output.Format = "tif"

	return cfg
}

// Load loads configuration from a YAML file over Default.
// If the file doesn't exist, it returns the default configuration.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating the directory if needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// Validate reports the first invalid setting, wrapped in ErrInvalid.
func (c *Config) Validate() error {
	if _, err := c.Pipeline(); err != nil {
		return err
	}
	for _, f := range c.OCR.Barcodes {
		if _, err := barcode.ParseFormat(f); err != nil {
			return fmt.Errorf("%w: ocr.barcodes: %v", ErrInvalid, err)
		}
	}
	switch c.Output.Format {
	case "tif", "tiff", "png", "jpg", "jpeg":
	default:
		return fmt.Errorf("%w: output.format %q (want tif, png or jpg)", ErrInvalid, c.Output.Format)
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("%w: output.dir is empty", ErrInvalid)
	}
	return nil
}

// Pipeline converts the detection settings into detector options.
func (c *Config) Pipeline() (pipeline.Options, error) {
	opts := pipeline.DefaultOptions()

	kind, err := segment.ParseBackgroundKind(c.Background)
	if err != nil {
		return opts, fmt.Errorf("%w: background: %v", ErrInvalid, err)
	}
	opts.Background = kind

	if len(c.Sides) > 0 {
		opts.Sides = make(map[segment.BackgroundKind]correspond.Side, len(c.Sides))
		for k, v := range c.Sides {
			bk, err := segment.ParseBackgroundKind(k)
			if err != nil || bk == segment.Unknown {
				return opts, fmt.Errorf("%w: sides: unknown background %q", ErrInvalid, k)
			}
			side, err := correspond.ParseSide(v)
			if err != nil {
				return opts, fmt.Errorf("%w: sides.%s: %v", ErrInvalid, k, err)
			}
			opts.Sides[bk] = side
		}
	}

	opts.Segment = segment.Options{
		MinSaturation: c.Segment.MinSaturation,
		MinValue:      c.Segment.MinValue,
		Smooth:        c.Segment.Smooth,
	}
	if len(c.Segment.Hues) > 0 {
		if kind == segment.Unknown {
			return opts, fmt.Errorf("%w: segment.hues needs a fixed background", ErrInvalid)
		}
		if err := validHues(c.Segment.Hues); err != nil {
			return opts, fmt.Errorf("%w: segment.hues: %v", ErrInvalid, err)
		}
		opts.Hues = append([]segment.HueRange(nil), c.Segment.Hues...)
	}

	if c.Refine.Radius < 0 || c.Refine.BorderMargin < 0 {
		return opts, fmt.Errorf("%w: refine values must not be negative", ErrInvalid)
	}
	opts.RefineRadius = c.Refine.Radius
	opts.BorderMargin = c.Refine.BorderMargin

	conn, err := region.ParseConnectivity(c.Regions.Connectivity)
	if err != nil {
		return opts, fmt.Errorf("%w: regions.connectivity: %v", ErrInvalid, err)
	}
	opts.Connectivity = conn
	if c.Regions.MaxAspect <= 0 || c.Regions.MaxAspect > 1 {
		return opts, fmt.Errorf("%w: regions.maxAspect %g not in (0,1]", ErrInvalid, c.Regions.MaxAspect)
	}
	if c.Regions.MinArea < 0 || c.Regions.ExpectedCount < 0 {
		return opts, fmt.Errorf("%w: regions values must not be negative", ErrInvalid)
	}
	opts.Filter = region.Filter{MaxAspect: c.Regions.MaxAspect, MinArea: c.Regions.MinArea}
	opts.ExpectedCount = c.Regions.ExpectedCount

	strategy, err := orient.ParseStrategy(c.Orientation.Strategy)
	if err != nil {
		return opts, fmt.Errorf("%w: orientation.strategy: %v", ErrInvalid, err)
	}
	opts.Strategy = strategy
	if strategy == orient.Line && len(c.Orientation.MarkerHues) == 0 {
		return opts, fmt.Errorf("%w: orientation.markerHues is required for the line strategy", ErrInvalid)
	}
	if err := validHues(c.Orientation.MarkerHues); err != nil {
		return opts, fmt.Errorf("%w: orientation.markerHues: %v", ErrInvalid, err)
	}
	opts.MarkerHues = append([]segment.HueRange(nil), c.Orientation.MarkerHues...)

	return opts, nil
}

// BarcodeFormats returns the configured symbologies in order.
func (c *Config) BarcodeFormats() []barcode.Format {
	var out []barcode.Format
	for _, s := range c.OCR.Barcodes {
		if f, err := barcode.ParseFormat(s); err == nil {
			out = append(out, f)
		}
	}
	return out
}

func validHues(hues []segment.HueRange) error {
	for _, h := range hues {
		if err := h.Validate(); err != nil {
			return err
		}
	}
	return nil
}
