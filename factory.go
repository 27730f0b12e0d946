package epub

import (
	"context"
	"io"
)

// Factory hands out parsers keyed by detected version.
type Factory struct {
	opts  Options
	epub2 *Parser
	epub3 *Parser
}

// NewFactory returns a Factory whose parsers share opts.
func NewFactory(opts ...Option) *Factory {
	o := buildOptions(opts)
	return &Factory{
		opts:  o,
		epub2: newParser(DialectEpub2, o),
		epub3: newParser(DialectEpub3, o),
	}
}

// CreateParser returns the parser for v. VersionUnknown falls back to the
// ePub 2 parser and logs a warning.
func (f *Factory) CreateParser(v Version) *Parser {
	if v == VersionUnknown {
		f.opts.Logger.Warn("unknown package version, falling back to ePub 2 rules")
	}
	if DialectFor(v) == DialectEpub3 {
		return f.epub3
	}
	return f.epub2
}

// CreateParserFrom detects the version of the archive in r and returns the
// matching parser together with the detected version.
func (f *Factory) CreateParserFrom(ctx context.Context, r io.ReaderAt, size int64) (*Parser, Version, error) {
	v, err := DetectVersion(ctx, r, size)
	if err != nil {
		return nil, VersionUnknown, err
	}
	return f.CreateParser(v), v, nil
}
