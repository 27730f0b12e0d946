package epub

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"

	"github.com/dustin/go-humanize"
)

// bufferPool recycles the buffers AdaptiveParser copies input streams into.
var bufferPool = &sync.Pool{
	New: func() any {
		return bytes.NewBuffer(nil)
	},
}

func getBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// putBuffer returns buf to the pool unless it grew past the chapter cap,
// which would pin a large allocation for the life of the process.
func putBuffer(buf *bytes.Buffer) {
	if buf.Cap() > int(DefaultMaxChapterSizeBytes)*4 {
		return
	}
	bufferPool.Put(buf)
}

// AdaptiveParser accepts arbitrary byte streams, detects their version and
// dispatches to the matching dialect parser.
type AdaptiveParser struct {
	factory *Factory
	opts    Options
}

// NewAdaptiveParser returns an AdaptiveParser configured with opts.
func NewAdaptiveParser(opts ...Option) *AdaptiveParser {
	o := buildOptions(opts)
	return &AdaptiveParser{
		factory: NewFactory(WithOptions(o)),
		opts:    o,
	}
}

// Parse buffers r, detects its version and parses it with the selected
// dialect. The buffer is returned to the pool on every path.
func (p *AdaptiveParser) Parse(ctx context.Context, r io.Reader) (*Book, error) {
	if r == nil {
		return nil, ErrNilArgument
	}
	buf := getBuffer()
	defer putBuffer(buf)

	ra, size, err := p.fill(ctx, buf, r)
	if err != nil {
		return nil, err
	}
	parser, v, err := p.factory.CreateParserFrom(ctx, ra, size)
	if err != nil {
		return nil, err
	}
	p.opts.Logger.Debug("dispatching parse",
		"version", v.String(),
		"dialect", parser.Dialect().String(),
		"size", humanize.IBytes(uint64(size)))
	return parser.Parse(ctx, ra, size)
}

// Validate buffers r and validates it with the parser for its version.
// Inputs whose version cannot be detected are validated with the ePub 2
// rules so that every problem is still reported.
func (p *AdaptiveParser) Validate(ctx context.Context, r io.Reader) error {
	if r == nil {
		return ErrNilArgument
	}
	buf := getBuffer()
	defer putBuffer(buf)

	ra, size, err := p.fill(ctx, buf, r)
	if err != nil {
		return err
	}
	v, err := DetectVersion(ctx, ra, size)
	if err != nil {
		v = VersionUnknown
	}
	return p.factory.CreateParser(v).Validate(ctx, ra, size)
}

// ParseFile parses the archive at path. Files at or above
// LargeFileThresholdBytes are read through a memory-mapped StreamingReader.
func (p *AdaptiveParser) ParseFile(ctx context.Context, path string) (*Book, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, parsingFailed("stat "+path, err)
	}
	if fi.Size() >= p.opts.LargeFileThresholdBytes {
		p.opts.Logger.Info("large file, using streaming reader",
			"path", path,
			"size", humanize.IBytes(uint64(fi.Size())),
			"threshold", humanize.IBytes(uint64(p.opts.LargeFileThresholdBytes)))
		sr, err := OpenStream(path, WithOptions(p.opts))
		if err != nil {
			return nil, err
		}
		defer sr.Close()
		return sr.Book(ctx)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, parsingFailed("open "+path, err)
	}
	defer f.Close()

	parser, _, err := p.factory.CreateParserFrom(ctx, f, fi.Size())
	if err != nil {
		return nil, err
	}
	return parser.Parse(ctx, f, fi.Size())
}

// fill copies r into buf and returns a ReaderAt over the buffered bytes.
func (p *AdaptiveParser) fill(ctx context.Context, buf *bytes.Buffer, r io.Reader) (*bytes.Reader, int64, error) {
	if _, err := io.CopyBuffer(buf, &ctxReader{ctx: ctx, r: r}, make([]byte, p.opts.BufferSize)); err != nil {
		return nil, 0, parsingFailed("read input", err)
	}
	if buf.Len() == 0 {
		return nil, 0, parsingFailed("read input", io.ErrUnexpectedEOF)
	}
	return bytes.NewReader(buf.Bytes()), int64(buf.Len()), nil
}
