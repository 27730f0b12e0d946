package epub

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// Version is the package document version family.
type Version int

const (
	VersionUnknown Version = iota
	VersionEpub2
	VersionEpub30
	VersionEpub31
	VersionEpub32
	VersionEpub33
)

func (v Version) String() string {
	switch v {
	case VersionEpub2:
		return "EPUB 2"
	case VersionEpub30:
		return "EPUB 3.0"
	case VersionEpub31:
		return "EPUB 3.1"
	case VersionEpub32:
		return "EPUB 3.2"
	case VersionEpub33:
		return "EPUB 3.3"
	default:
		return "unknown"
	}
}

// IsEpub3 reports whether v is one of the 3.x variants.
func (v Version) IsEpub3() bool {
	return v >= VersionEpub30 && v <= VersionEpub33
}

// ClassifyVersion maps a package version attribute to a Version by prefix.
func ClassifyVersion(raw string) Version {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "2."):
		return VersionEpub2
	case strings.HasPrefix(raw, "3.0"):
		return VersionEpub30
	case strings.HasPrefix(raw, "3.1"):
		return VersionEpub31
	case strings.HasPrefix(raw, "3.2"):
		return VersionEpub32
	case strings.HasPrefix(raw, "3.3"):
		return VersionEpub33
	default:
		return VersionUnknown
	}
}

// packageHeadLimit bounds how much of the package document is fed to the
// version sniffer; the root element always appears well within it.
const packageHeadLimit = 64 * 1024

// DetectVersion reads only the version attribute of the package document.
// Missing container.xml, rootfile or package document are reported as
// structural ParseErrors.
func DetectVersion(ctx context.Context, r io.ReaderAt, size int64) (Version, error) {
	if r == nil {
		return VersionUnknown, ErrNilArgument
	}
	if err := ctx.Err(); err != nil {
		return VersionUnknown, parsingFailed("detect version", err)
	}

	a, err := openArchive(r, size)
	if err != nil {
		return VersionUnknown, parsingFailed("open archive", err)
	}
	return detectArchiveVersion(a)
}

func detectArchiveVersion(a *archive) (Version, error) {
	opfPath, err := locateRootfile(a)
	if err != nil {
		return VersionUnknown, err
	}
	f := a.find(opfPath)
	if f == nil {
		return VersionUnknown, structuralError(componentPackage, opfPath)
	}

	rc, err := f.Open()
	if err != nil {
		return VersionUnknown, parsingFailed("open package document", err)
	}
	defer rc.Close()

	raw, err := sniffPackageVersion(io.LimitReader(rc, packageHeadLimit))
	if err != nil {
		return VersionUnknown, parsingFailed("read package version", err)
	}
	return ClassifyVersion(raw), nil
}

// DetectVersionFromReader runs DetectVersion over a seekable stream and
// restores its original position before returning.
func DetectVersionFromReader(ctx context.Context, rs io.ReadSeeker) (v Version, err error) {
	if rs == nil {
		return VersionUnknown, ErrNilArgument
	}
	pos, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return VersionUnknown, parsingFailed("seek input", err)
	}
	defer func() {
		if _, serr := rs.Seek(pos, io.SeekStart); serr != nil && err == nil {
			err = parsingFailed("restore input position", serr)
		}
	}()

	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return VersionUnknown, parsingFailed("seek input", err)
	}

	if ra, ok := rs.(io.ReaderAt); ok {
		return DetectVersion(ctx, ra, size)
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return VersionUnknown, parsingFailed("seek input", err)
	}
	data, err := io.ReadAll(&ctxReader{ctx: ctx, r: rs})
	if err != nil {
		return VersionUnknown, parsingFailed("read input", err)
	}
	return DetectVersion(ctx, bytes.NewReader(data), int64(len(data)))
}

// sniffPackageVersion tokenises up to the root element and returns its
// version attribute without decoding the rest of the document.
func sniffPackageVersion(r io.Reader) (string, error) {
	d := xml.NewDecoder(&bomSkipper{r: r})
	d.CharsetReader = charset.NewReaderLabel
	d.Strict = false
	for {
		tok, err := d.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", errors.New("no root element")
			}
			return "", err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "package" {
			return "", fmt.Errorf("root element is <%s>, want <package>", start.Name.Local)
		}
		for _, attr := range start.Attr {
			if attr.Name.Local == "version" && attr.Name.Space == "" {
				return attr.Value, nil
			}
		}
		return "", nil
	}
}

// bomSkipper drops a leading UTF-8 BOM from a stream.
type bomSkipper struct {
	r       io.Reader
	checked bool
}

func (b *bomSkipper) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		var head [3]byte
		n, err := io.ReadFull(b.r, head[:])
		rest := head[:n]
		if n == 3 && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF {
			rest = nil
		}
		if len(rest) > 0 {
			b.r = io.MultiReader(bytes.NewReader(rest), b.r)
		}
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return 0, err
		}
	}
	return b.r.Read(p)
}
