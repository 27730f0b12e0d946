package epub

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// Dialect is the closed set of package document rule sets.
type Dialect int

const (
	DialectEpub2 Dialect = iota
	DialectEpub3
)

func (d Dialect) String() string {
	switch d {
	case DialectEpub3:
		return "epub3"
	default:
		return "epub2"
	}
}

// DialectFor maps a detected version to its dialect. Unknown versions use
// the ePub 2 rules.
func DialectFor(v Version) Dialect {
	switch v {
	case VersionEpub30, VersionEpub31, VersionEpub32, VersionEpub33:
		return DialectEpub3
	case VersionEpub2, VersionUnknown:
		return DialectEpub2
	default:
		return DialectEpub2
	}
}

// Parser builds Books from archives using the rules of one dialect.
// A Parser holds no per-call state and may be used concurrently.
type Parser struct {
	dialect Dialect
	opts    Options
	log     *slog.Logger
}

// NewParser returns a parser for dialect d.
func NewParser(d Dialect, opts ...Option) *Parser {
	return newParser(d, buildOptions(opts))
}

func newParser(d Dialect, opts Options) *Parser {
	return &Parser{
		dialect: d,
		opts:    opts,
		log:     opts.Logger.With("dialect", d.String()),
	}
}

// Dialect returns the rule set used by p.
func (p *Parser) Dialect() Dialect { return p.dialect }

// Parse reads the archive in r and returns the Book. Expected failures are
// returned as *ParseError; skipped chapters are listed in Book.Omissions.
func (p *Parser) Parse(ctx context.Context, r io.ReaderAt, size int64) (*Book, error) {
	if r == nil {
		return nil, ErrNilArgument
	}
	if err := ctx.Err(); err != nil {
		return nil, parsingFailed("parse", err)
	}

	a, err := openArchive(r, size)
	if err != nil {
		return nil, parsingFailed("open archive", err)
	}
	return p.parseArchive(ctx, a)
}

func (p *Parser) parseArchive(ctx context.Context, a *archive) (*Book, error) {
	pkg, err := loadPackage(ctx, a)
	if err != nil {
		return nil, err
	}
	log := p.log.With("package", pkg.path)

	info, err := extractPackageInfo(pkg.raw, p.dialect, ClassifyVersion(pkg.raw.Version), log)
	if err != nil {
		return nil, err
	}

	loader := newChapterLoader(a, pkg, p.dialect, p.opts)
	loader.log = log
	chapters, err := loader.load(ctx)
	if err != nil {
		return nil, err
	}

	book, err := NewBook(BookParams{Info: info, Chapters: chapters, Omissions: loader.omissions})
	if err != nil {
		if errors.Is(err, ErrNoChapters) {
			return nil, parsingFailed("assemble book", err)
		}
		return nil, asParseError("assemble book", err)
	}
	log.Debug("parsed book",
		"title", book.Title(),
		"chapters", len(chapters),
		"omissions", len(loader.omissions))
	return book, nil
}

// Validate checks the archive structure and returns nil or a
// *ValidationError listing every problem found.
func (p *Parser) Validate(ctx context.Context, r io.ReaderAt, size int64) error {
	if r == nil {
		return ErrNilArgument
	}
	if err := ctx.Err(); err != nil {
		return parsingFailed("validate", err)
	}
	v := newValidator(p.dialect, p.opts)
	return v.run(ctx, r, size)
}
