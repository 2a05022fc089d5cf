// SPDX-License-Identifier: MIT

// Package config loads daemon configuration from an optional YAML file with
// environment variable overrides. Environment always wins.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for the upload subsystem. Sizes are bytes.
const (
	DefaultListenAddr      = ":8080"
	DefaultMaxVideoBytes   = 500 << 20 // 500 MiB declared-size ceiling
	DefaultMaxChunkBytes   = 32 << 20  // per-chunk transfer ceiling
	DefaultSizeTolerance   = 1024      // assembled-vs-declared slack
	DefaultStationVideoCap = 20
	DefaultSessionTTL      = 24 * time.Hour
	DefaultReaperInterval  = 1 * time.Hour
	DefaultUploadRateLimit = 120 // requests per minute per IP
)

// Config holds all daemon settings.
type Config struct {
	ListenAddr string `yaml:"listen"`
	DataDir    string `yaml:"data_dir"`
	DBPath     string `yaml:"db_path"`
	LogLevel   string `yaml:"log_level"`

	MaxVideoBytes   int64 `yaml:"max_video_bytes"`
	MaxChunkBytes   int64 `yaml:"max_chunk_bytes"`
	SizeTolerance   int64 `yaml:"size_tolerance_bytes"`
	StationVideoCap int   `yaml:"station_video_cap"`

	SessionTTL     time.Duration `yaml:"session_ttl"`
	ReaperInterval time.Duration `yaml:"reaper_interval"`

	// UploadRateLimit is the per-IP request budget per minute on the upload
	// endpoint. Zero disables the limiter.
	UploadRateLimit int `yaml:"upload_rate_limit"`

	// StationChunkRate limits chunk ingest per station (chunks per second,
	// with StationChunkBurst headroom). Zero disables the limiter.
	StationChunkRate  float64 `yaml:"station_chunk_rate"`
	StationChunkBurst int     `yaml:"station_chunk_burst"`

	// AllowedExtensions is the lower-case extension allow-list for uploads.
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

func defaults() Config {
	return Config{
		ListenAddr:        DefaultListenAddr,
		DataDir:           "./data",
		DBPath:            "", // derived from DataDir when empty
		LogLevel:          "info",
		MaxVideoBytes:     DefaultMaxVideoBytes,
		MaxChunkBytes:     DefaultMaxChunkBytes,
		SizeTolerance:     DefaultSizeTolerance,
		StationVideoCap:   DefaultStationVideoCap,
		SessionTTL:        DefaultSessionTTL,
		ReaperInterval:    DefaultReaperInterval,
		UploadRateLimit:   DefaultUploadRateLimit,
		StationChunkRate:  10,
		StationChunkBurst: 20,
		AllowedExtensions: []string{".mp4", ".mov", ".avi", ".mkv", ".webm"},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// any), then environment overrides with the STATIONCAST_ prefix.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.ListenAddr = ParseString("STATIONCAST_LISTEN", cfg.ListenAddr)
	cfg.DataDir = ParseString("STATIONCAST_DATA", cfg.DataDir)
	cfg.DBPath = ParseString("STATIONCAST_DB", cfg.DBPath)
	cfg.LogLevel = ParseString("STATIONCAST_LOG_LEVEL", cfg.LogLevel)
	cfg.MaxVideoBytes = ParseInt64("STATIONCAST_MAX_VIDEO_BYTES", cfg.MaxVideoBytes)
	cfg.MaxChunkBytes = ParseInt64("STATIONCAST_MAX_CHUNK_BYTES", cfg.MaxChunkBytes)
	cfg.SizeTolerance = ParseInt64("STATIONCAST_SIZE_TOLERANCE", cfg.SizeTolerance)
	cfg.StationVideoCap = ParseInt("STATIONCAST_STATION_VIDEO_CAP", cfg.StationVideoCap)
	cfg.SessionTTL = ParseDuration("STATIONCAST_SESSION_TTL", cfg.SessionTTL)
	cfg.ReaperInterval = ParseDuration("STATIONCAST_REAPER_INTERVAL", cfg.ReaperInterval)
	cfg.UploadRateLimit = ParseInt("STATIONCAST_UPLOAD_RATE_LIMIT", cfg.UploadRateLimit)
	if v := ParseString("STATIONCAST_ALLOWED_EXTENSIONS", ""); v != "" {
		cfg.AllowedExtensions = splitExtensions(v)
	}

	if cfg.DBPath == "" {
		cfg.DBPath = cfg.DataDir + "/stationcast.db"
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func splitExtensions(csv string) []string {
	var exts []string
	for _, part := range strings.Split(csv, ",") {
		p := strings.ToLower(strings.TrimSpace(part))
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, ".") {
			p = "." + p
		}
		exts = append(exts, p)
	}
	return exts
}

// Validate rejects configurations the daemon cannot safely run with.
func (c Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen address must not be empty"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data dir must not be empty"))
	}
	if c.MaxVideoBytes <= 0 {
		errs = append(errs, errors.New("max video size must be positive"))
	}
	if c.MaxChunkBytes <= 0 {
		errs = append(errs, errors.New("max chunk size must be positive"))
	}
	if c.SizeTolerance < 0 {
		errs = append(errs, errors.New("size tolerance must not be negative"))
	}
	if c.StationVideoCap <= 0 {
		errs = append(errs, errors.New("station video cap must be positive"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("session TTL must be positive"))
	}
	if c.ReaperInterval <= 0 {
		errs = append(errs, errors.New("reaper interval must be positive"))
	}
	if len(c.AllowedExtensions) == 0 {
		errs = append(errs, errors.New("extension allow-list must not be empty"))
	}
	return errors.Join(errs...)
}
