// Package config builds the run configuration from defaults, an optional
// mosaic.toml, MOSAIC_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/ironsheep/photomosaic/internal/imaging"
	"github.com/spf13/viper"
)

const (
	configName = "mosaic"
	configType = "toml"
	envPrefix  = "MOSAIC"
	configDir  = ".config/mosaic"
)

// Keys understood by Load. Flags bound to the same viper instance must use
// these names.
const (
	KeyCacheSize      = "cache_size"
	KeySideCount      = "side_count"
	KeyBlendWeight    = "blend_weight"
	KeyResample       = "resample"
	KeyFillUnassigned = "fill_unassigned"
	KeyBackground     = "background"
	KeyMetric         = "metric"
	KeyMaxResidual    = "max_residual"
	KeyJPEGQuality    = "jpeg_quality"
	KeyLogLevel       = "log_level"
	KeyMetricsFile    = "metrics_file"
	KeyConfigFile     = "config"
)

// Config is the immutable settings value passed to every component that
// needs it.
type Config struct {
	CacheSize      int
	SideCount      int
	BlendWeight    float64
	Resample       imaging.Resample
	FillUnassigned bool
	Background     string
	Metric         string
	MaxResidual    float64
	JPEGQuality    int
	LogLevel       string
	MetricsFile    string

	// File is the config file that was read, empty when none was found.
	File string
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		CacheSize:   20,
		BlendWeight: imaging.DefaultBlendWeight,
		Resample:    imaging.ResampleBox,
		Background:  "#000000",
		Metric:      imaging.MetricRGB,
		JPEGQuality: imaging.DefaultJPEGQuality,
		LogLevel:    "info",
	}
}

// SetDefaults registers the defaults of every key on v.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault(KeyCacheSize, d.CacheSize)
	v.SetDefault(KeySideCount, d.SideCount)
	v.SetDefault(KeyBlendWeight, d.BlendWeight)
	v.SetDefault(KeyResample, string(d.Resample))
	v.SetDefault(KeyFillUnassigned, d.FillUnassigned)
	v.SetDefault(KeyBackground, d.Background)
	v.SetDefault(KeyMetric, d.Metric)
	v.SetDefault(KeyMaxResidual, d.MaxResidual)
	v.SetDefault(KeyJPEGQuality, d.JPEGQuality)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyMetricsFile, d.MetricsFile)
}

// Load reads the configuration from v. A nil v gets a fresh instance.
//
// When the "config" key names a file, that file must exist. Otherwise
// mosaic.toml is looked up in the working directory and in
// $HOME/.config/mosaic, and a missing file is not an error.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if explicit := v.GetString(KeyConfigFile); explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", explicit, err)
		}
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, configDir))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := Config{
		CacheSize:      v.GetInt(KeyCacheSize),
		SideCount:      v.GetInt(KeySideCount),
		BlendWeight:    v.GetFloat64(KeyBlendWeight),
		Resample:       imaging.Resample(strings.ToLower(v.GetString(KeyResample))),
		FillUnassigned: v.GetBool(KeyFillUnassigned),
		Background:     v.GetString(KeyBackground),
		Metric:         strings.ToLower(v.GetString(KeyMetric)),
		MaxResidual:    v.GetFloat64(KeyMaxResidual),
		JPEGQuality:    v.GetInt(KeyJPEGQuality),
		LogLevel:       strings.ToLower(v.GetString(KeyLogLevel)),
		MetricsFile:    v.GetString(KeyMetricsFile),
		File:           v.ConfigFileUsed(),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first out-of-range setting.
func (c Config) Validate() error {
	switch {
	case c.CacheSize < 1:
		return fmt.Errorf("%s must be at least 1, got %d", KeyCacheSize, c.CacheSize)
	case c.SideCount < 0:
		return fmt.Errorf("%s must not be negative, got %d", KeySideCount, c.SideCount)
	case math.IsNaN(c.BlendWeight) || c.BlendWeight < 0 || c.BlendWeight > 1:
		return fmt.Errorf("%s must be within [0,1], got %v", KeyBlendWeight, c.BlendWeight)
	case math.IsNaN(c.MaxResidual) || c.MaxResidual < 0:
		return fmt.Errorf("%s must not be negative, got %v", KeyMaxResidual, c.MaxResidual)
	case c.JPEGQuality < 1 || c.JPEGQuality > 100:
		return fmt.Errorf("%s must be within [1,100], got %d", KeyJPEGQuality, c.JPEGQuality)
	}
	if _, err := c.Resample.Filter(); err != nil {
		return fmt.Errorf("%s: %w", KeyResample, err)
	}
	if _, err := imaging.ParseBackground(c.Background); err != nil {
		return fmt.Errorf("%s: %w", KeyBackground, err)
	}
	if _, err := imaging.ParseMetric(c.Metric); err != nil {
		return err
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ComposeOptions translates the compositor settings. A background that
// does not parse leaves the canvas black; Validate reports it.
func (c Config) ComposeOptions() imaging.ComposeOptions {
	opts := imaging.DefaultComposeOptions()
	opts.Resample = c.Resample
	opts.FillUnassigned = c.FillUnassigned
	opts.BlendWeight = c.BlendWeight
	if bg, err := imaging.ParseBackground(c.Background); err == nil {
		opts.Background = bg
	}
	return opts
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown %s %q", KeyLogLevel, name)
	}
}

// NewLogger builds the text logger used by the commands. Output goes to w,
// which is stderr in production since stdout carries results and the MCP
// protocol.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
