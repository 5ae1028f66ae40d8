// SPDX-FileCopyrightText: Stepan Nazar
//
// SPDX-License-Identifier: MIT

// Package config provides the application's configuration handling.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Xuanwo/go-locale"
	"github.com/kkyr/fig"
)

const configEnv = "CITYREPORT"

// Config represents the application's configuration structure.
type Config struct {
	Locale   string     `fig:"locale"`
	LogLevel slog.Level `fig:"loglevel" default:"0"`

	API struct {
		BaseURL string `fig:"base_url" default:"http://localhost:8000/api"`
	} `fig:"api"`

	Auth struct {
		TokenFile       string        `fig:"token_file"`
		RefreshInterval time.Duration `fig:"refresh_interval" default:"10m"`
	} `fig:"auth"`

	Place struct {
		// Allowed values: nominatim, opencage
		Provider       string        `fig:"provider" default:"nominatim"`
		OpenCageAPIKey string        `fig:"opencage_apikey"`
		Debounce       time.Duration `fig:"debounce" default:"500ms"`
		CacheHitTTL    time.Duration `fig:"cache_hit_ttl" default:"1h"`
		CacheMissTTL   time.Duration `fig:"cache_miss_ttl" default:"5m"`
		SweepInterval  time.Duration `fig:"sweep_interval" default:"15m"`
	} `fig:"place"`

	Images struct {
		MaxCount     int    `fig:"max_count" default:"10"`
		SizeLimitMB  int    `fig:"size_limit_mb" default:"5"`
		MaxDimension int    `fig:"max_dimension" default:"2048"`
		PreviewDir   string `fig:"preview_dir"`
	} `fig:"images"`

	Location struct {
		DisableAccount  bool          `fig:"disable_account"`
		DisableFallback bool          `fig:"disable_fallback"`
		FallbackLat     float64       `fig:"fallback_lat" default:"50.4501"`
		FallbackLon     float64       `fig:"fallback_lon" default:"30.5234"`
		PollInterval    time.Duration `fig:"poll_interval" default:"5m"`
	} `fig:"location"`
}

func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read Config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func (c *Config) Validate() error {
	if c.Place.Provider != "nominatim" && c.Place.Provider != "opencage" {
		return fmt.Errorf("invalid place provider: %s", c.Place.Provider)
	}
	if c.Place.Provider == "opencage" && c.Place.OpenCageAPIKey == "" {
		return fmt.Errorf("opencage provider requires an API key")
	}
	if c.Place.Debounce <= 0 {
		return fmt.Errorf("invalid debounce window: %s", c.Place.Debounce)
	}
	if c.Images.MaxCount < 1 {
		return fmt.Errorf("invalid image max count: %d", c.Images.MaxCount)
	}
	if c.Images.SizeLimitMB < 1 {
		return fmt.Errorf("invalid image size limit: %d", c.Images.SizeLimitMB)
	}
	if c.Images.MaxDimension < 16 {
		return fmt.Errorf("invalid image max dimension: %d", c.Images.MaxDimension)
	}
	if c.Location.FallbackLat < -90 || c.Location.FallbackLat > 90 ||
		c.Location.FallbackLon < -180 || c.Location.FallbackLon > 180 {
		return fmt.Errorf("invalid fallback coordinates: %f/%f", c.Location.FallbackLat, c.Location.FallbackLon)
	}
	if c.Locale == "" {
		c.Locale = systemLocale()
	}
	if c.Auth.TokenFile == "" {
		home, _ := os.UserHomeDir()
		c.Auth.TokenFile = filepath.Join(home, ".config", "city-report", "token")
	}
	if c.Images.PreviewDir == "" {
		c.Images.PreviewDir = filepath.Join(os.TempDir(), "city-report-previews")
	}

	return nil
}

func systemLocale() string {
	tag, err := locale.Detect()
	if err != nil {
		return "en"
	}
	return tag.String()
}
