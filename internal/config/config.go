package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	Sequence SequenceConfig `yaml:"sequence" toml:"sequence"`
	Loader   LoaderConfig   `yaml:"loader" toml:"loader"`
	Surface  SurfaceConfig  `yaml:"surface" toml:"surface"`
	Pin      PinConfig      `yaml:"pin" toml:"pin"`
	Reveal   []RevealRow    `yaml:"reveal" toml:"reveal"`
	Export   ExportConfig   `yaml:"export" toml:"export"`
	Log      LogConfig      `yaml:"log" toml:"log"`
}

type SequenceConfig struct {
	BasePath    string `yaml:"base_path" toml:"base_path"`
	Prefix      string `yaml:"prefix" toml:"prefix"`
	Digits      int    `yaml:"digits" toml:"digits"`
	Ext         string `yaml:"ext" toml:"ext"`
	TotalFrames int    `yaml:"total_frames" toml:"total_frames"`
	// DPI rasterizes pages when BasePath is a PDF document. 0 means 150.
	DPI int `yaml:"dpi,omitempty" toml:"dpi,omitempty"`
}

type LoaderConfig struct {
	// MaxConcurrent caps in-flight pipelines per priority tier. 0 derives it from the host.
	MaxConcurrent int `yaml:"max_concurrent" toml:"max_concurrent"`
	// HighPriorityCutoff is the first index of the low priority tier.
	HighPriorityCutoff int `yaml:"high_priority_cutoff" toml:"high_priority_cutoff"`
	IdleTimeoutMs      int `yaml:"idle_timeout_ms" toml:"idle_timeout_ms"`
	RequestTimeoutMs   int `yaml:"request_timeout_ms" toml:"request_timeout_ms"`
}

type SurfaceConfig struct {
	Width  int `yaml:"width" toml:"width"`
	Height int `yaml:"height" toml:"height"`
}

// PinConfig is the scroll range, in pixels, over which the sequence plays.
type PinConfig struct {
	Start float64 `yaml:"start" toml:"start"`
	End   float64 `yaml:"end" toml:"end"`
}

type RevealRow struct {
	Threshold float64 `yaml:"threshold" toml:"threshold"`
	Row       string  `yaml:"row" toml:"row"`
}

type ExportConfig struct {
	FPS          int     `yaml:"fps" toml:"fps"`
	Duration     float64 `yaml:"duration" toml:"duration"`
	VideoEncoder string  `yaml:"video_encoder" toml:"video_encoder"`
	Quality      int     `yaml:"quality" toml:"quality"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default mirrors the banner of the marketing site: 201 webp frames,
// the first 40 decoded eagerly.
func Default() *Config {
	return &Config{
		Sequence: SequenceConfig{
			BasePath:    "input/sequence",
			Prefix:      "Sequence_",
			Digits:      5,
			Ext:         "webp",
			TotalFrames: 201,
		},
		Loader: LoaderConfig{
			MaxConcurrent:      6,
			HighPriorityCutoff: 40,
			IdleTimeoutMs:      3000,
			RequestTimeoutMs:   15000,
		},
		Surface: SurfaceConfig{Width: 1280, Height: 720},
		Pin:     PinConfig{Start: 0, End: 3000},
		Reveal: []RevealRow{
			{Threshold: 0.15, Row: "headline"},
			{Threshold: 0.45, Row: "practice-areas"},
			{Threshold: 0.75, Row: "call-to-action"},
		},
		Export: ExportConfig{FPS: 30, Duration: 8},
		Log:    LogConfig{Level: "info", Format: "auto"},
	}
}

// Load reads a YAML or TOML file on top of Default. The format follows the
// file extension; anything other than .toml is parsed as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Write stores cfg as YAML or TOML depending on the extension of path.
func Write(cfg *Config, path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		data, err = toml.Marshal(cfg)
	default:
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.Sequence.TotalFrames <= 0 {
		return fmt.Errorf("%w: sequence.total_frames must be positive, got %d", ErrInvalid, c.Sequence.TotalFrames)
	}
	if c.Sequence.DPI < 0 {
		return fmt.Errorf("%w: sequence.dpi must not be negative", ErrInvalid)
	}
	if c.Sequence.Digits < 0 {
		return fmt.Errorf("%w: sequence.digits must not be negative", ErrInvalid)
	}
	if c.Sequence.Ext == "" {
		return fmt.Errorf("%w: sequence.ext is empty", ErrInvalid)
	}
	cutoff := c.Loader.HighPriorityCutoff
	if cutoff < 1 || cutoff > c.Sequence.TotalFrames {
		return fmt.Errorf("%w: loader.high_priority_cutoff %d outside [1, %d]", ErrInvalid, cutoff, c.Sequence.TotalFrames)
	}
	if c.Loader.MaxConcurrent < 0 {
		return fmt.Errorf("%w: loader.max_concurrent must not be negative", ErrInvalid)
	}
	if c.Loader.IdleTimeoutMs < 0 || c.Loader.RequestTimeoutMs < 0 {
		return fmt.Errorf("%w: loader timeouts must not be negative", ErrInvalid)
	}
	if c.Surface.Width <= 0 || c.Surface.Height <= 0 {
		return fmt.Errorf("%w: surface %dx%d", ErrInvalid, c.Surface.Width, c.Surface.Height)
	}
	if c.Pin.End <= c.Pin.Start {
		return fmt.Errorf("%w: pin.end (%.0f) must be greater than pin.start (%.0f)", ErrInvalid, c.Pin.End, c.Pin.Start)
	}
	for _, r := range c.Reveal {
		if r.Threshold < 0 || r.Threshold > 1 {
			return fmt.Errorf("%w: reveal row %q threshold %.3f outside [0, 1]", ErrInvalid, r.Row, r.Threshold)
		}
		if r.Row == "" {
			return fmt.Errorf("%w: reveal row without id", ErrInvalid)
		}
	}
	return nil
}
