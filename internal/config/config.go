// Package config loads epubinfo settings from flags, environment variables
// and a .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	epub "github.com/simp-lee/epubingest"
)

// Environment variable names.
const (
	EnvLogLevel           = "EPUB_LOG_LEVEL"
	EnvLogFormat          = "EPUB_LOG_FORMAT"
	EnvMaxCacheSize       = "EPUB_MAX_CACHE_SIZE"
	EnvCacheExpiration    = "EPUB_CACHE_EXPIRATION"
	EnvMaxConcurrent      = "EPUB_MAX_CONCURRENT_EXTRACTIONS"
	EnvBufferSize         = "EPUB_BUFFER_SIZE"
	EnvMaxChapterSize     = "EPUB_MAX_CHAPTER_SIZE"
	EnvLargeFileThreshold = "EPUB_LARGE_FILE_THRESHOLD"
	EnvIncludeNonLinear   = "EPUB_INCLUDE_NON_LINEAR"
)

// Config holds the resolved settings.
type Config struct {
	Logger LoggerConfig
	Epub   EpubConfig
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level  string
	Format string
}

// EpubConfig mirrors epub.Options.
type EpubConfig struct {
	MaxCacheSizeBytes        int64
	CacheExpiration          time.Duration
	MaxConcurrentExtractions int
	BufferSize               int
	MaxChapterSizeBytes      int64
	LargeFileThresholdBytes  int64
	IncludeNonLinear         bool
}

// Flags carries raw command-line values. Empty strings mean "not set".
// Sizes accept humanized values such as "50MB" or "8 KiB".
type Flags struct {
	EnvFile                  string
	LogLevel                 string
	LogFormat                string
	MaxCacheSize             string
	CacheExpiration          string
	MaxConcurrentExtractions string
	BufferSize               string
	MaxChapterSize           string
	LargeFileThreshold       string
	IncludeNonLinear         string
}

// Load resolves every setting with precedence:
// 1. Flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func Load(f Flags) (*Config, error) {
	envFile := f.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	// godotenv.Load never overrides variables that are already set.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	d := epub.DefaultOptions()
	cfg := &Config{
		Logger: LoggerConfig{
			Level:  getConfigValue(f.LogLevel, EnvLogLevel, "info"),
			Format: getConfigValue(f.LogFormat, EnvLogFormat, "pretty"),
		},
	}

	var err error
	if cfg.Epub.MaxCacheSizeBytes, err = getSizeConfigValue(f.MaxCacheSize, EnvMaxCacheSize, d.MaxCacheSizeBytes); err != nil {
		return nil, err
	}
	if cfg.Epub.MaxChapterSizeBytes, err = getSizeConfigValue(f.MaxChapterSize, EnvMaxChapterSize, d.MaxChapterSizeBytes); err != nil {
		return nil, err
	}
	if cfg.Epub.LargeFileThresholdBytes, err = getSizeConfigValue(f.LargeFileThreshold, EnvLargeFileThreshold, d.LargeFileThresholdBytes); err != nil {
		return nil, err
	}
	bufSize, err := getSizeConfigValue(f.BufferSize, EnvBufferSize, int64(d.BufferSize))
	if err != nil {
		return nil, err
	}
	cfg.Epub.BufferSize = int(bufSize)

	expStr := getConfigValue(f.CacheExpiration, EnvCacheExpiration, d.CacheExpiration.String())
	if cfg.Epub.CacheExpiration, err = time.ParseDuration(expStr); err != nil {
		return nil, fmt.Errorf("invalid cache expiration %q: %w", expStr, err)
	}

	concStr := getConfigValue(f.MaxConcurrentExtractions, EnvMaxConcurrent, strconv.Itoa(d.MaxConcurrentExtractions))
	if cfg.Epub.MaxConcurrentExtractions, err = strconv.Atoi(concStr); err != nil {
		return nil, fmt.Errorf("invalid max concurrent extractions %q: %w", concStr, err)
	}

	cfg.Epub.IncludeNonLinear = getBoolConfigValue(f.IncludeNonLinear, EnvIncludeNonLinear, false)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks that every value is usable.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}
	validFormats := map[string]bool{"json": true, "text": true, "pretty": true}
	if !validFormats[strings.ToLower(c.Logger.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json, text, or pretty)", c.Logger.Format)
	}

	e := c.Epub
	switch {
	case e.MaxCacheSizeBytes <= 0:
		return errors.New("max cache size must be positive")
	case e.CacheExpiration <= 0:
		return errors.New("cache expiration must be positive")
	case e.MaxConcurrentExtractions <= 0:
		return errors.New("max concurrent extractions must be positive")
	case e.BufferSize <= 0:
		return errors.New("buffer size must be positive")
	case e.MaxChapterSizeBytes <= 0:
		return errors.New("max chapter size must be positive")
	case e.LargeFileThresholdBytes <= 0:
		return errors.New("large file threshold must be positive")
	}
	return nil
}

// EpubOptions converts the configuration into library options.
func (c *Config) EpubOptions(log *slog.Logger) []epub.Option {
	return []epub.Option{
		epub.WithOptions(epub.Options{
			MaxCacheSizeBytes:        c.Epub.MaxCacheSizeBytes,
			CacheExpiration:          c.Epub.CacheExpiration,
			MaxConcurrentExtractions: c.Epub.MaxConcurrentExtractions,
			BufferSize:               c.Epub.BufferSize,
			MaxChapterSizeBytes:      c.Epub.MaxChapterSizeBytes,
			LargeFileThresholdBytes:  c.Epub.LargeFileThresholdBytes,
			IncludeNonLinear:         c.Epub.IncludeNonLinear,
			Logger:                   log,
		}),
	}
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue accepts "true", "1" and "yes" (case-insensitive) as true.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	s := getConfigValue(flagValue, envKey, "")
	if s == "" {
		return defaultValue
	}
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes"
}

// getSizeConfigValue parses humanized byte sizes.
func getSizeConfigValue(flagValue, envKey string, defaultValue int64) (int64, error) {
	s := getConfigValue(flagValue, envKey, "")
	if s == "" {
		return defaultValue, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q for %s: %w", s, envKey, err)
	}
	if n > uint64(1<<62) {
		return 0, fmt.Errorf("size %q for %s is too large", s, envKey)
	}
	return int64(n), nil
}
