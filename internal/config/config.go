package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the engine settings. Zero values are replaced by Default()
// values when loaded through Load.
type Config struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	FPS    int `yaml:"fps"`

	// Timeline geometry
	Duration        float64 `yaml:"duration"`         // Timeline length in seconds
	TrackCount      int     `yaml:"track_count"`      // Number of tracks
	TrackHeight     float64 `yaml:"track_height"`     // Track height in pixels
	ContainerWidth  float64 `yaml:"container_width"`  // Timeline viewport width in pixels
	Zoom            float64 `yaml:"zoom"`             // Percent, 100 = fit
	MinClipDuration float64 `yaml:"min_clip_duration"`
	HandleWidth     float64 `yaml:"handle_width"` // Resize hit zone in pixels
	OverlapPolicy   string  `yaml:"overlap_policy"`

	// Rendering
	RenderQuality string `yaml:"render_quality"` // low, medium, high
	CacheCapacity int    `yaml:"cache_capacity"`
	Background    string `yaml:"background"`
	DefaultFont   string `yaml:"default_font"` // Font source, empty = Go Regular

	HistoryLimit int    `yaml:"history_limit"`
	LogLevel     string `yaml:"log_level"`
	ShowStats    bool   `yaml:"show_stats"`
	BuildVersion string `yaml:"-"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Width:           1280,
		Height:          720,
		FPS:             30,
		Duration:        60,
		TrackCount:      4,
		TrackHeight:     48,
		ContainerWidth:  1200,
		Zoom:            100,
		MinClipDuration: 1,
		HandleWidth:     6,
		OverlapPolicy:   "reject",
		RenderQuality:   "medium",
		CacheCapacity:   1024,
		Background:      "#000000",
		HistoryLimit:    100,
		LogLevel:        "info",
	}
}

// Load reads a YAML config file on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) fillDefaults() {
	d := Default()
	if c.Width == 0 {
		c.Width = d.Width
	}
	if c.Height == 0 {
		c.Height = d.Height
	}
	if c.FPS == 0 {
		c.FPS = d.FPS
	}
	if c.Duration == 0 {
		c.Duration = d.Duration
	}
	if c.TrackCount == 0 {
		c.TrackCount = d.TrackCount
	}
	if c.TrackHeight == 0 {
		c.TrackHeight = d.TrackHeight
	}
	if c.ContainerWidth == 0 {
		c.ContainerWidth = d.ContainerWidth
	}
	if c.Zoom == 0 {
		c.Zoom = d.Zoom
	}
	if c.MinClipDuration == 0 {
		c.MinClipDuration = d.MinClipDuration
	}
	if c.HandleWidth == 0 {
		c.HandleWidth = d.HandleWidth
	}
	if c.OverlapPolicy == "" {
		c.OverlapPolicy = d.OverlapPolicy
	}
	if c.RenderQuality == "" {
		c.RenderQuality = d.RenderQuality
	}
	if c.CacheCapacity == 0 {
		c.CacheCapacity = d.CacheCapacity
	}
	if c.Background == "" {
		c.Background = d.Background
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// Validate reports the first setting that cannot drive an engine.
func (c Config) Validate() error {
	var errs []error
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("invalid size %dx%d", c.Width, c.Height))
	}
	if c.FPS <= 0 {
		errs = append(errs, fmt.Errorf("invalid fps %d", c.FPS))
	}
	if c.Duration < c.MinClipDuration {
		errs = append(errs, fmt.Errorf("timeline duration %.2f shorter than minimum clip %.2f", c.Duration, c.MinClipDuration))
	}
	if c.TrackCount <= 0 {
		errs = append(errs, fmt.Errorf("invalid track count %d", c.TrackCount))
	}
	switch strings.ToLower(c.OverlapPolicy) {
	case "reject", "allow", "shift":
	default:
		errs = append(errs, fmt.Errorf("unknown overlap policy %q", c.OverlapPolicy))
	}
	switch strings.ToLower(c.RenderQuality) {
	case "low", "medium", "high":
	default:
		errs = append(errs, fmt.Errorf("unknown render quality %q", c.RenderQuality))
	}
	return errors.Join(errs...)
}
