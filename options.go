package epub

import (
	"log/slog"
	"time"
)

// Default values for Options.
const (
	DefaultMaxCacheSizeBytes        int64 = 50 * 1024 * 1024
	DefaultCacheExpiration                = 5 * time.Minute
	DefaultMaxConcurrentExtractions       = 4
	DefaultBufferSize                     = 8 * 1024
	DefaultMaxChapterSizeBytes      int64 = 10 * 1024 * 1024
	DefaultLargeFileThresholdBytes  int64 = 50 * 1024 * 1024
)

// Options configures parsers, the resource extractor and the streaming reader.
// Zero fields take their defaults.
type Options struct {
	// MaxCacheSizeBytes bounds the bytes held by a ResourceExtractor cache.
	MaxCacheSizeBytes int64

	// CacheExpiration evicts cache entries not accessed for this long.
	CacheExpiration time.Duration

	// MaxConcurrentExtractions bounds parallel archive reads per extractor.
	MaxConcurrentExtractions int

	// BufferSize is the I/O chunk size used for stream copies.
	BufferSize int

	// MaxChapterSizeBytes is the per-chapter hard cap; larger chapters are skipped.
	MaxChapterSizeBytes int64

	// LargeFileThresholdBytes selects the memory-mapped streaming path in
	// AdaptiveParser.ParseFile.
	LargeFileThresholdBytes int64

	// IncludeNonLinear keeps ePub 3 linear="no" spine items in the chapter
	// list (with Chapter.Linear false) instead of omitting them.
	IncludeNonLinear bool

	// Logger receives informational and warning events. Nil discards them.
	Logger *slog.Logger
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		MaxCacheSizeBytes:        DefaultMaxCacheSizeBytes,
		CacheExpiration:          DefaultCacheExpiration,
		MaxConcurrentExtractions: DefaultMaxConcurrentExtractions,
		BufferSize:               DefaultBufferSize,
		MaxChapterSizeBytes:      DefaultMaxChapterSizeBytes,
		LargeFileThresholdBytes:  DefaultLargeFileThresholdBytes,
		Logger:                   slog.New(slog.DiscardHandler),
	}
}

// Option mutates Options.
type Option func(*Options)

// WithOptions replaces every setting with o; zero fields still take defaults.
func WithOptions(o Options) Option {
	return func(dst *Options) { *dst = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithMaxCacheSize sets the cache byte budget.
func WithMaxCacheSize(n int64) Option {
	return func(o *Options) { o.MaxCacheSizeBytes = n }
}

// WithCacheExpiration sets the sliding expiration of cache entries.
func WithCacheExpiration(d time.Duration) Option {
	return func(o *Options) { o.CacheExpiration = d }
}

// WithMaxConcurrentExtractions sets the number of extraction permits.
func WithMaxConcurrentExtractions(n int) Option {
	return func(o *Options) { o.MaxConcurrentExtractions = n }
}

// WithBufferSize sets the I/O chunk size.
func WithBufferSize(n int) Option {
	return func(o *Options) { o.BufferSize = n }
}

// WithMaxChapterSize sets the per-chapter size cap.
func WithMaxChapterSize(n int64) Option {
	return func(o *Options) { o.MaxChapterSizeBytes = n }
}

// WithLargeFileThreshold sets the size at which ParseFile streams.
func WithLargeFileThreshold(n int64) Option {
	return func(o *Options) { o.LargeFileThresholdBytes = n }
}

// WithNonLinearChapters keeps linear="no" spine items as chapters.
func WithNonLinearChapters(include bool) Option {
	return func(o *Options) { o.IncludeNonLinear = include }
}

func buildOptions(opts []Option) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o.withDefaults()
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxCacheSizeBytes <= 0 {
		o.MaxCacheSizeBytes = d.MaxCacheSizeBytes
	}
	if o.CacheExpiration <= 0 {
		o.CacheExpiration = d.CacheExpiration
	}
	if o.MaxConcurrentExtractions <= 0 {
		o.MaxConcurrentExtractions = d.MaxConcurrentExtractions
	}
	if o.BufferSize <= 0 {
		o.BufferSize = d.BufferSize
	}
	if o.MaxChapterSizeBytes <= 0 {
		o.MaxChapterSizeBytes = d.MaxChapterSizeBytes
	}
	if o.LargeFileThresholdBytes <= 0 {
		o.LargeFileThresholdBytes = d.LargeFileThresholdBytes
	}
	if o.Logger == nil {
		o.Logger = d.Logger
	}
	return o
}
