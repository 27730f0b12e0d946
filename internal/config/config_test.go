package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	epub "github.com/simp-lee/epubingest"
)

func noEnvFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "missing.env")
}

// unsetEnv removes key for the duration of the test. Values the .env file
// writes to the process environment are rolled back with it.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(Flags{EnvFile: noEnvFile(t)})
	require.NoError(t, err)

	d := epub.DefaultOptions()
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "pretty", cfg.Logger.Format)
	assert.Equal(t, d.MaxCacheSizeBytes, cfg.Epub.MaxCacheSizeBytes)
	assert.Equal(t, d.CacheExpiration, cfg.Epub.CacheExpiration)
	assert.Equal(t, d.MaxConcurrentExtractions, cfg.Epub.MaxConcurrentExtractions)
	assert.Equal(t, d.BufferSize, cfg.Epub.BufferSize)
	assert.Equal(t, d.MaxChapterSizeBytes, cfg.Epub.MaxChapterSizeBytes)
	assert.Equal(t, d.LargeFileThresholdBytes, cfg.Epub.LargeFileThresholdBytes)
	assert.False(t, cfg.Epub.IncludeNonLinear)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"EPUB_LOG_LEVEL=error\n"+
			"EPUB_MAX_CACHE_SIZE=1MB\n"+
			"EPUB_CACHE_EXPIRATION=30s\n"+
			"EPUB_BUFFER_SIZE=4KiB\n"), 0o600))

	// Environment wins over .env; flags win over both.
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvMaxCacheSize, "2MB")
	unsetEnv(t, EnvCacheExpiration)
	unsetEnv(t, EnvBufferSize)
	t.Setenv(EnvIncludeNonLinear, "yes")

	cfg, err := Load(Flags{EnvFile: envFile, LogLevel: "debug"})
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, int64(2_000_000), cfg.Epub.MaxCacheSizeBytes)
	assert.Equal(t, 30*time.Second, cfg.Epub.CacheExpiration)
	assert.Equal(t, 4096, cfg.Epub.BufferSize)
	assert.True(t, cfg.Epub.IncludeNonLinear)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		flags Flags
	}{
		{"bad size", Flags{MaxChapterSize: "lots"}},
		{"bad duration", Flags{CacheExpiration: "soon"}},
		{"bad concurrency", Flags{MaxConcurrentExtractions: "four"}},
		{"zero concurrency", Flags{MaxConcurrentExtractions: "0"}},
		{"bad level", Flags{LogLevel: "loud"}},
		{"bad format", Flags{LogFormat: "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.flags.EnvFile = noEnvFile(t)
			_, err := Load(tt.flags)
			assert.Error(t, err)
		})
	}
}

func TestGetBoolConfigValue(t *testing.T) {
	t.Setenv("EPUB_TEST_BOOL", "TRUE")
	assert.True(t, getBoolConfigValue("", "EPUB_TEST_BOOL", false))
	assert.False(t, getBoolConfigValue("no", "EPUB_TEST_BOOL", true))
	assert.True(t, getBoolConfigValue("", "EPUB_TEST_UNSET", true))
}

func TestEpubOptions(t *testing.T) {
	cfg, err := Load(Flags{EnvFile: noEnvFile(t), MaxChapterSize: "1 MiB", IncludeNonLinear: "true"})
	require.NoError(t, err)

	opts := cfg.EpubOptions(nil)
	require.Len(t, opts, 1)

	var o epub.Options
	opts[0](&o)
	assert.Equal(t, int64(1<<20), o.MaxChapterSizeBytes)
	assert.True(t, o.IncludeNonLinear)
}
