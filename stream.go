package epub

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/exp/mmap"
)

// StreamingReader reads large archives through a read-only memory map.
// Every operation indexes a fresh section view of the mapping, and chapters
// are produced one at a time. Nothing is cached between calls.
type StreamingReader struct {
	path string
	opts Options
	log  *slog.Logger

	mu     sync.RWMutex
	m      *mmap.ReaderAt
	closed bool
	views  sync.WaitGroup // open views; Close unmaps once they finish
}

// OpenStream maps the file at path.
func OpenStream(path string, opts ...Option) (*StreamingReader, error) {
	o := buildOptions(opts)
	m, err := mmap.Open(path)
	if err != nil {
		return nil, parsingFailed("map "+path, err)
	}
	s := &StreamingReader{
		path: path,
		opts: o,
		log:  o.Logger.With("archive", path),
		m:    m,
	}
	s.log.Debug("mapped archive", "size", humanize.IBytes(uint64(m.Len())))
	return s, nil
}

// Size returns the mapped file size.
func (s *StreamingReader) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return int64(s.m.Len())
}

// view indexes the archive over a new section of the mapping and runs fn
// while the mapping is held open. The lock only guards registration, so
// views may nest.
func (s *StreamingReader) view(fn func(a *archive) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	s.views.Add(1)
	m := s.m
	s.mu.RUnlock()
	defer s.views.Done()

	size := int64(m.Len())
	a, err := openArchive(io.NewSectionReader(m, 0, size), size)
	if err != nil {
		return parsingFailed("open archive", err)
	}
	return fn(a)
}

// dialectFor picks the rules for v the way Factory.CreateParser does.
func (s *StreamingReader) dialectFor(v Version) Dialect {
	if v == VersionUnknown {
		s.log.Warn("unknown package version, falling back to ePub 2 rules")
	}
	return DialectFor(v)
}

// Info parses the container and package metadata without loading chapters.
func (s *StreamingReader) Info(ctx context.Context) (PackageInfo, error) {
	var info PackageInfo
	err := s.view(func(a *archive) error {
		pkg, err := loadPackage(ctx, a)
		if err != nil {
			return err
		}
		v := ClassifyVersion(pkg.raw.Version)
		info, err = extractPackageInfo(pkg.raw, s.dialectFor(v), v, s.log)
		return err
	})
	return info, err
}

// Chapters yields chapters in reading order, loading each one only when
// the consumer asks for it. A failure is yielded once as the final pair.
// The mapping stays open while the sequence is being ranged over: a Close
// from another goroutine makes further reads fail with ErrClosed and
// returns once the loop ends. Close must not be called from the loop body.
func (s *StreamingReader) Chapters(ctx context.Context) iter.Seq2[Chapter, error] {
	return func(yield func(Chapter, error) bool) {
		stopped := false
		err := s.view(func(a *archive) error {
			pkg, err := loadPackage(ctx, a)
			if err != nil {
				return err
			}
			loader := newChapterLoader(a, pkg, s.dialectFor(ClassifyVersion(pkg.raw.Version)), s.opts)
			loader.log = s.log
			return loader.each(ctx, func(ch Chapter) bool {
				if !yield(ch, nil) {
					stopped = true
					return false
				}
				return true
			})
		})
		if err != nil && !stopped {
			yield(Chapter{}, err)
		}
	}
}

// Book parses the whole archive by draining the chapter sequence.
func (s *StreamingReader) Book(ctx context.Context) (*Book, error) {
	var book *Book
	err := s.view(func(a *archive) error {
		pkg, err := loadPackage(ctx, a)
		if err != nil {
			return err
		}
		v := ClassifyVersion(pkg.raw.Version)
		d := s.dialectFor(v)
		info, err := extractPackageInfo(pkg.raw, d, v, s.log)
		if err != nil {
			return err
		}

		loader := newChapterLoader(a, pkg, d, s.opts)
		loader.log = s.log
		var chapters []Chapter
		if err := loader.each(ctx, func(ch Chapter) bool {
			chapters = append(chapters, ch)
			return true
		}); err != nil {
			return err
		}

		book, err = NewBook(BookParams{Info: info, Chapters: chapters, Omissions: loader.omissions})
		if err != nil {
			return parsingFailed("assemble book", err)
		}
		return nil
	})
	return book, err
}

// Extract reads the named entry from the mapping.
func (s *StreamingReader) Extract(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.view(func(a *archive) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		data, err = a.read(name)
		return err
	})
	return data, err
}

// ExtractPartial reads length bytes of the named entry starting at offset.
func (s *StreamingReader) ExtractPartial(ctx context.Context, name string, offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, ErrInvalidRange
	}
	var data []byte
	err := s.view(func(a *archive) error {
		f := a.find(name)
		if f == nil {
			return fmt.Errorf("%s: %w", name, ErrFileNotFound)
		}
		var err error
		data, err = readZipRange(ctx, f, offset, length, s.opts.BufferSize)
		return err
	})
	return data, err
}

// ResourceInfo describes the named entry.
func (s *StreamingReader) ResourceInfo(name string) (ResourceInfo, error) {
	var info ResourceInfo
	err := s.view(func(a *archive) error {
		f := a.find(name)
		if f == nil {
			return fmt.Errorf("%s: %w", name, ErrFileNotFound)
		}
		info = entryInfo(f)
		return nil
	})
	return info, err
}

// Close unmaps the file. New reads fail with ErrClosed at once; Close
// itself waits for in-flight reads and chapter sequences to finish.
func (s *StreamingReader) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.views.Wait()
	return s.m.Close()
}
