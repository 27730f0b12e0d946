package epub

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// maxDecompressSize is the maximum allowed decompressed size for a single ZIP entry.
// This guards against zip bomb attacks. Defaults to 256 MB.
const maxDecompressSize int64 = 256 * 1024 * 1024

// archive is an indexed view over a ZIP container.
type archive struct {
	zr    *zip.Reader
	exact map[string]*zip.File // exact-match ZIP file index
	lower map[string]*zip.File // normalised lowercase ZIP file index
}

// openArchive reads the central directory of r and indexes its entries.
func openArchive(r io.ReaderAt, size int64) (*archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("epub: open zip: %w", err)
	}
	return newArchive(zr), nil
}

func newArchive(zr *zip.Reader) *archive {
	a := &archive{
		zr:    zr,
		exact: make(map[string]*zip.File, len(zr.File)),
		lower: make(map[string]*zip.File, len(zr.File)),
	}
	for _, f := range zr.File {
		if _, exists := a.exact[f.Name]; !exists {
			a.exact[f.Name] = f // first match wins for exact
		}
		key := normalizeEntryName(f.Name)
		if _, exists := a.lower[key]; !exists {
			a.lower[key] = f // first match wins for case-insensitive
		}
	}
	return a
}

// find looks up a ZIP entry by path, trying an exact match first and then a
// case-insensitive match.
func (a *archive) find(name string) *zip.File {
	if name == "" {
		return nil
	}
	if f, ok := a.exact[name]; ok {
		return f
	}
	return a.lower[normalizeEntryName(name)]
}

// read returns the full contents of the named entry.
func (a *archive) read(name string) ([]byte, error) {
	f := a.find(name)
	if f == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrFileNotFound)
	}
	return readZipFile(f)
}

// files returns the entries in central-directory order.
func (a *archive) files() []*zip.File {
	return a.zr.File
}

// normalizeEntryName folds an archive path into its lookup key: NFC,
// forward slashes, no leading "./" or "/", lower case.
func normalizeEntryName(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimLeft(name, "/")
	return strings.ToLower(name)
}

// equalFoldPath reports whether two archive paths name the same entry.
func equalFoldPath(a, b string) bool {
	return normalizeEntryName(a) == normalizeEntryName(b)
}

// resolveRelativePath resolves href relative to the directory of basePath.
// Both basePath and href are ZIP-internal paths (forward-slash separated).
// The result is cleaned and validated to stay within the ZIP root.
// If the resolved path escapes root or is absolute, an empty string is returned.
func resolveRelativePath(basePath, href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "/") {
		return ""
	}
	if decoded, err := url.PathUnescape(href); err == nil {
		href = decoded
	}
	dir := path.Dir(basePath)
	joined := path.Join(dir, href)
	cleaned := path.Clean(joined)
	if !isSafePath(cleaned) {
		return ""
	}
	return cleaned
}

// hrefWithoutFragment returns the href with the fragment (#...) removed.
func hrefWithoutFragment(href string) string {
	if idx := strings.IndexByte(href, '#'); idx >= 0 {
		return href[:idx]
	}
	return href
}

// isSafePath checks whether p is a safe ZIP-internal path that does not
// escape the archive root via path traversal (e.g., "../../../etc/passwd").
func isSafePath(p string) bool {
	cleaned := path.Clean(p)
	if strings.HasPrefix(cleaned, "/") {
		return false
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return false
	}
	return true
}

// stripBOM removes a leading UTF-8 BOM (0xEF 0xBB 0xBF) from data, if present.
func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

// readZipFile reads the full contents of a ZIP entry.
// It enforces maxDecompressSize to guard against zip bombs and validates
// that the entry path is safe (no path traversal).
func readZipFile(f *zip.File) ([]byte, error) {
	return readZipFileWithLimit(f, maxDecompressSize)
}

// errEntryTooLarge is wrapped by readZipFileWithLimit when an entry exceeds
// its limit, either by declared or by actual size.
var errEntryTooLarge = errors.New("epub: zip entry exceeds size limit")

// readZipFileWithLimit is the implementation of readZipFile with a configurable
// size limit.
func readZipFileWithLimit(f *zip.File, limit int64) ([]byte, error) {
	if !isSafePath(f.Name) {
		return nil, fmt.Errorf("epub: unsafe zip entry path: %s", f.Name)
	}

	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("%w: %s is %d bytes (max %d)", errEntryTooLarge, f.Name, f.UncompressedSize64, limit)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("epub: open zip entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	// Read up to limit+1 to detect if the actual decompressed data
	// exceeds the limit (the declared size might be wrong/forged).
	lr := io.LimitReader(rc, limit+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, fmt.Errorf("epub: read zip entry %s: %w", f.Name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s decompressed past %d bytes", errEntryTooLarge, f.Name, limit)
	}

	return data, nil
}

// readZipRange streams past offset bytes of the entry and returns the next
// length bytes. length is clamped to the bytes remaining after offset.
func readZipRange(ctx context.Context, f *zip.File, offset, length int64, bufSize int) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, ErrInvalidRange
	}
	if !isSafePath(f.Name) {
		return nil, fmt.Errorf("epub: unsafe zip entry path: %s", f.Name)
	}
	if f.UncompressedSize64 > uint64(maxDecompressSize) {
		return nil, fmt.Errorf("%w: %s is %d bytes (max %d)", errEntryTooLarge, f.Name, f.UncompressedSize64, maxDecompressSize)
	}
	size := int64(f.UncompressedSize64)
	if offset > size {
		return nil, fmt.Errorf("%w: offset %d past end of %s (%d bytes)", ErrInvalidRange, offset, f.Name, size)
	}
	if remaining := size - offset; length > remaining {
		length = remaining
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("epub: open zip entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	r := &ctxReader{ctx: ctx, r: rc}
	if offset > 0 {
		if _, err := io.CopyBuffer(io.Discard, io.LimitReader(r, offset), make([]byte, bufSize)); err != nil {
			return nil, fmt.Errorf("epub: skip %d bytes of %s: %w", offset, f.Name, err)
		}
	}
	// The declared size is untrusted, so the buffer grows with the data.
	data, err := io.ReadAll(io.LimitReader(r, length))
	if err != nil {
		return nil, fmt.Errorf("epub: read range of %s: %w", f.Name, err)
	}
	if int64(len(data)) < length {
		return nil, fmt.Errorf("epub: read range of %s: %w", f.Name, io.ErrUnexpectedEOF)
	}
	return data, nil
}

// ctxReader fails reads once its context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
