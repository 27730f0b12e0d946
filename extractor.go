package epub

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/simp-lee/epubingest/internal/sizecache"
)

// ResourceInfo describes an archive entry without extracting it.
type ResourceInfo struct {
	Name           string
	Size           int64
	CompressedSize int64
	Modified       time.Time
	Compressed     bool
}

// CacheStatistics is a snapshot of a ResourceExtractor cache.
type CacheStatistics struct {
	CurrentSizeBytes      int64
	MaxSizeBytes          int64
	UtilizationPercentage float64
	Entries               int
	Hits                  int64
	Misses                int64

	// Scans counts archive reads performed on cache misses.
	Scans int64
}

func (s CacheStatistics) String() string {
	return fmt.Sprintf("%s / %s (%.1f%%), %d entries, %d hits, %d misses, %d scans",
		humanize.IBytes(uint64(s.CurrentSizeBytes)),
		humanize.IBytes(uint64(s.MaxSizeBytes)),
		s.UtilizationPercentage, s.Entries, s.Hits, s.Misses, s.Scans)
}

// ResourceExtractor serves resource bytes from one archive file through a
// byte-budgeted cache. Archive reads are bounded by a semaphore, and
// concurrent misses for the same key share one read.
type ResourceExtractor struct {
	path   string
	opts   Options
	log    *slog.Logger
	cache  *sizecache.Cache
	sem    *semaphore.Weighted
	flight singleflight.Group

	scans  atomic.Int64
	closed atomic.Bool
}

// NewResourceExtractor opens the archive at path once to check that it is
// a readable zip file and returns an extractor bound to it.
func NewResourceExtractor(path string, opts ...Option) (*ResourceExtractor, error) {
	o := buildOptions(opts)
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, parsingFailed("open archive "+path, err)
	}
	_ = zr.Close()

	e := &ResourceExtractor{
		path: path,
		opts: o,
		log:  o.Logger.With("archive", path),
		sem:  semaphore.NewWeighted(int64(o.MaxConcurrentExtractions)),
	}
	e.cache = sizecache.New(o.MaxCacheSizeBytes, o.CacheExpiration,
		sizecache.WithEvictionHook(func(key string, size int64) {
			e.log.Debug("cache eviction", "key", key, "size", humanize.IBytes(uint64(size)))
		}))
	return e, nil
}

// cacheKey folds a resource path so that case and Unicode variants share
// one cache entry.
func cacheKey(name string) string {
	return normalizeEntryName(name)
}

func partialKey(name string, offset, length int64) string {
	return cacheKey(name) + ":" + strconv.FormatInt(offset, 10) + ":" + strconv.FormatInt(length, 10)
}

// Extract returns the contents of the named entry. Lookups are
// case-insensitive. A missing entry yields an error wrapping ErrFileNotFound.
func (e *ResourceExtractor) Extract(ctx context.Context, name string) ([]byte, error) {
	data, err := e.extract(ctx, name)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(data), nil
}

func (e *ResourceExtractor) extract(ctx context.Context, name string) ([]byte, error) {
	if name == "" {
		return nil, ErrNilArgument
	}
	key := cacheKey(name)
	return e.load(ctx, key, name, func(_ context.Context, f *zip.File) ([]byte, error) {
		return readZipFile(f)
	})
}

// ExtractPartial returns length bytes of the named entry starting at
// offset. The range is clamped to the end of the entry. Negative values or
// an offset past the end yield ErrInvalidRange.
func (e *ResourceExtractor) ExtractPartial(ctx context.Context, name string, offset, length int64) ([]byte, error) {
	if name == "" {
		return nil, ErrNilArgument
	}
	if offset < 0 || length < 0 {
		return nil, ErrInvalidRange
	}
	key := partialKey(name, offset, length)
	data, err := e.load(ctx, key, name, func(ctx context.Context, f *zip.File) ([]byte, error) {
		return readZipRange(ctx, f, offset, length, e.opts.BufferSize)
	})
	if err != nil {
		return nil, err
	}
	return bytes.Clone(data), nil
}

// entryReader produces the cached value from a located entry.
type entryReader func(ctx context.Context, f *zip.File) ([]byte, error)

// load returns the cached value for key or reads it from the archive. The
// cache is checked again after a permit is acquired.
func (e *ResourceExtractor) load(ctx context.Context, key, name string, read entryReader) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if data, ok := e.cache.Get(key); ok {
		return data, nil
	}

	// The shared read must not be cancelled by whichever caller started it.
	flightCtx := context.WithoutCancel(ctx)
	ch := e.flight.DoChan(key, func() (any, error) {
		if err := e.sem.Acquire(flightCtx, 1); err != nil {
			return nil, err
		}
		defer e.sem.Release(1)

		if data, ok := e.cache.Peek(key); ok {
			return data, nil
		}
		data, err := e.scan(flightCtx, name, read)
		if err != nil {
			return nil, err
		}
		if !e.cache.Put(key, data) {
			e.log.Debug("resource too large to cache",
				"name", name, "size", humanize.IBytes(uint64(len(data))))
		}
		return data, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// scan opens an independent handle on the archive, walks the central
// directory for a case-insensitive match and reads it.
func (e *ResourceExtractor) scan(ctx context.Context, name string, read entryReader) ([]byte, error) {
	e.scans.Add(1)

	zr, err := zip.OpenReader(e.path)
	if err != nil {
		return nil, fmt.Errorf("epub: open %s: %w", e.path, err)
	}
	defer zr.Close()

	f := findEntry(zr.File, name)
	if f == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrFileNotFound)
	}
	return read(ctx, f)
}

func findEntry(files []*zip.File, name string) *zip.File {
	key := cacheKey(name)
	for _, f := range files {
		if normalizeEntryName(f.Name) == key {
			return f
		}
	}
	return nil
}

// ExtractBatch extracts every path concurrently. Missing entries are
// absent from the result; any other failure aborts the batch.
func (e *ResourceExtractor) ExtractBatch(ctx context.Context, paths []string) (map[string][]byte, error) {
	var (
		mu  sync.Mutex
		out = make(map[string][]byte, len(paths))
	)
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range paths {
		g.Go(func() error {
			data, err := e.Extract(ctx, p)
			if errors.Is(err, ErrFileNotFound) {
				e.log.Debug("batch entry not found", "name", p)
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			out[p] = data
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Preload warms the cache with paths. Failures are logged and skipped; it
// stops early and returns the context error on cancellation.
func (e *ResourceExtractor) Preload(ctx context.Context, paths []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.MaxConcurrentExtractions)
	for _, p := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if _, err := e.extract(gctx, p); err != nil && gctx.Err() == nil {
				e.log.Warn("preload failed", "name", p, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

// ResourceInfo returns size and compression details of the named entry
// without reading its contents.
func (e *ResourceExtractor) ResourceInfo(ctx context.Context, name string) (ResourceInfo, error) {
	if e.closed.Load() {
		return ResourceInfo{}, ErrClosed
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return ResourceInfo{}, err
	}
	defer e.sem.Release(1)

	zr, err := zip.OpenReader(e.path)
	if err != nil {
		return ResourceInfo{}, fmt.Errorf("epub: open %s: %w", e.path, err)
	}
	defer zr.Close()

	f := findEntry(zr.File, name)
	if f == nil {
		return ResourceInfo{}, fmt.Errorf("%s: %w", name, ErrFileNotFound)
	}
	return entryInfo(f), nil
}

func entryInfo(f *zip.File) ResourceInfo {
	return ResourceInfo{
		Name:           f.Name,
		Size:           int64(f.UncompressedSize64),
		CompressedSize: int64(f.CompressedSize64),
		Modified:       f.Modified,
		Compressed:     f.Method != zip.Store,
	}
}

// ClearCache drops every cached resource.
func (e *ResourceExtractor) ClearCache() {
	e.cache.Clear()
}

// CacheStatistics returns the current cache usage.
func (e *ResourceExtractor) CacheStatistics() CacheStatistics {
	st := e.cache.Stats()
	return CacheStatistics{
		CurrentSizeBytes:      st.Bytes,
		MaxSizeBytes:          st.MaxBytes,
		UtilizationPercentage: st.Utilization(),
		Entries:               st.Entries,
		Hits:                  st.Hits,
		Misses:                st.Misses,
		Scans:                 e.scans.Load(),
	}
}

// Close releases the cache. Later calls return ErrClosed.
func (e *ResourceExtractor) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.cache.Clear()
	return nil
}
