package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config holds graphlens configuration.
type Config struct {
	Source   SourceConfig   `toml:"source"`
	Explorer ExplorerConfig `toml:"explorer"`
	Layout   LayoutConfig   `toml:"layout"`
	Render   RenderConfig   `toml:"render"`
	View     ViewConfig     `toml:"view"`
	Log      LogConfig      `toml:"log"`
}

// SourceConfig locates the database service.
type SourceConfig struct {
	URL    string `toml:"url"`
	APIKey string `toml:"api_key"`
}

// ExplorerConfig controls fan-out and neighborhood expansion.
type ExplorerConfig struct {
	BatchSize   int  `toml:"batch_size"`
	TopK        int  `toml:"top_k"` // 0 means uncapped
	Concurrency int  `toml:"concurrency"`
	TypeMesh    bool `toml:"type_mesh"`
	StickyDrop  bool `toml:"sticky_drop"`

	// ResultKeys are response properties tried before the first array
	// property when extracting query results.
	ResultKeys []string `toml:"result_keys"`
}

// LayoutConfig controls the force layout.
type LayoutConfig struct {
	SettleDelayMS int `toml:"settle_delay_ms"`
}

// RenderConfig controls level-of-detail decisions and cards.
type RenderConfig struct {
	LowCount        int     `toml:"low_count"`
	LowZoom         float64 `toml:"low_zoom"`
	HighZoom        float64 `toml:"high_zoom"`
	ViewportPadding float64 `toml:"viewport_padding"`
	MaxFields       int     `toml:"max_fields"`
}

// ViewConfig controls the browser view server.
type ViewConfig struct {
	Addr          string  `toml:"addr"`
	FPS           int     `toml:"fps"`
	DragThreshold float64 `toml:"drag_threshold"` // pixels
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	Format     string `toml:"format"` // "text" or "json"
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// overrides are the environment variables that win over the file.
type overrides struct {
	URL      string `env:"GRAPHLENS_URL"`
	APIKey   string `env:"GRAPHLENS_API_KEY"`
	LogLevel string `env:"GRAPHLENS_LOG_LEVEL"`
	LogFile  string `env:"GRAPHLENS_LOG_FILE"`
	ViewAddr string `env:"GRAPHLENS_VIEW_ADDR"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Source:   SourceConfig{URL: "http://localhost:8080"},
		Explorer: ExplorerConfig{BatchSize: 10, Concurrency: 8, TypeMesh: true},
		Layout:   LayoutConfig{SettleDelayMS: 1500},
		Render:   RenderConfig{LowCount: 20, LowZoom: 0.5, HighZoom: 1.0, ViewportPadding: 120, MaxFields: 5},
		View:     ViewConfig{Addr: ":7070", FPS: 30, DragThreshold: 4},
		Log:      LogConfig{Level: "info", Format: "text", MaxSizeMB: 20, MaxBackups: 3, MaxAgeDays: 28},
	}
}

// Validate reports a zoom band that cannot work: detail must fade in
// between a positive low_zoom and a larger high_zoom.
func (r RenderConfig) Validate() error {
	if r.LowZoom <= 0 || r.HighZoom <= r.LowZoom {
		return fmt.Errorf("render.high_zoom (%g) must exceed render.low_zoom (%g) and both must be positive", r.HighZoom, r.LowZoom)
	}
	return nil
}

// ConfigDir returns the graphlens config directory path.
func ConfigDir() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "graphlens")
}

// Path returns the config file path.
func Path() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads the config file over the defaults, then applies a .env file
// from the working directory and the GRAPHLENS_* environment. A missing or
// malformed file leaves the defaults in place.
func Load() *Config {
	cfg := Default()
	if data, err := os.ReadFile(Path()); err == nil {
		_ = toml.Unmarshal(data, cfg)
	}

	_ = godotenv.Load()
	applyEnv(cfg)
	return cfg
}

func applyEnv(cfg *Config) {
	var o overrides
	if err := env.Parse(&o); err != nil {
		return
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Source.URL, o.URL)
	set(&cfg.Source.APIKey, o.APIKey)
	set(&cfg.Log.Level, o.LogLevel)
	set(&cfg.Log.File, o.LogFile)
	set(&cfg.View.Addr, o.ViewAddr)
}

// Save writes the config to disk.
func Save(cfg *Config) error {
	path := Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// EnsureExists creates the config file with defaults if it doesn't exist.
func EnsureExists() error {
	if _, err := os.Stat(Path()); err == nil {
		return nil // already exists
	}
	return Save(Default())
}
