package epub

import (
	"context"
	"io"
	"os"
)

// Open parses the ePub file at path and attaches its navigation and
// resource collection. Files at or above the large-file threshold are read
// through a memory map.
func Open(ctx context.Context, path string, opts ...Option) (*Book, error) {
	book, err := NewAdaptiveParser(opts...).ParseFile(ctx, path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, parsingFailed("open "+path, err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, parsingFailed("stat "+path, err)
	}
	return attachStructure(ctx, book, f, fi.Size(), opts)
}

// NewReader parses the ePub held in r with the parser matching its
// detected version and attaches its navigation and resource collection.
// The caller owns r.
func NewReader(ctx context.Context, r io.ReaderAt, size int64, opts ...Option) (*Book, error) {
	parser, _, err := NewFactory(opts...).CreateParserFrom(ctx, r, size)
	if err != nil {
		return nil, err
	}
	book, err := parser.Parse(ctx, r, size)
	if err != nil {
		return nil, err
	}
	return attachStructure(ctx, book, r, size, opts)
}

func attachStructure(ctx context.Context, book *Book, r io.ReaderAt, size int64, opts []Option) (*Book, error) {
	nav, err := BuildNavigation(ctx, r, size, opts...)
	if err != nil {
		return nil, err
	}
	if book, err = book.WithNavigation(nav); err != nil {
		return nil, err
	}

	rc, err := BuildResources(ctx, r, size, opts...)
	if err != nil {
		return nil, err
	}
	return book.WithResources(rc)
}
