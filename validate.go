package epub

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/beevik/etree"
	"github.com/dustin/go-humanize"
	"golang.org/x/net/html/charset"
)

const (
	mimetypeEntry    = "mimetype"
	expectedMimetype = "application/epub+zip"
)

// validator walks an archive and records every structural problem instead
// of stopping at the first one.
type validator struct {
	dialect  Dialect
	opts     Options
	log      *slog.Logger
	problems []string
}

func newValidator(d Dialect, opts Options) *validator {
	return &validator{dialect: d, opts: opts, log: opts.Logger.With("dialect", d.String())}
}

func (v *validator) addf(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) result() error {
	if len(v.problems) == 0 {
		return nil
	}
	v.log.Info("validation failed", "problems", len(v.problems))
	return &ValidationError{Problems: v.problems}
}

func (v *validator) run(ctx context.Context, r io.ReaderAt, size int64) error {
	a, err := openArchive(r, size)
	if err != nil {
		v.addf("not a zip archive: %v", err)
		return v.result()
	}

	v.checkMimetype(a)

	opfPath, err := locateRootfile(a)
	if err != nil {
		v.addf("%v", err)
		if hints := findOPFCandidates(a); len(hints) > 0 {
			v.addf("package documents present but not referenced: %s", strings.Join(hints, ", "))
		}
		return v.result()
	}
	if err := ctx.Err(); err != nil {
		return parsingFailed("validate", err)
	}

	data, err := a.read(opfPath)
	if err != nil {
		v.addf("missing package document %s", opfPath)
		return v.result()
	}

	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charset.NewReaderLabel
	doc.ReadSettings.Permissive = true
	if err := doc.ReadFromBytes(preprocessHTMLEntities(stripBOM(data))); err != nil {
		v.addf("malformed package document %s: %v", opfPath, err)
		return v.result()
	}
	root := doc.SelectElement("package")
	if root == nil {
		v.addf("package document %s has no <package> root element", opfPath)
		return v.result()
	}

	version := ClassifyVersion(root.SelectAttrValue("version", ""))
	if version == VersionUnknown {
		v.addf("unrecognised package version %q", root.SelectAttrValue("version", ""))
	}

	v.checkMetadata(root)
	items := v.checkManifest(a, root, opfPath)
	v.checkSpine(a, root, opfPath, items)
	v.checkNavigation(root, items)
	return v.result()
}

// checkMimetype requires the first entry to be "mimetype" holding the ePub
// media type.
func (v *validator) checkMimetype(a *archive) {
	files := a.files()
	if len(files) == 0 {
		v.addf("empty zip archive")
		return
	}
	first := files[0]
	if first.Name != mimetypeEntry {
		v.addf("first zip entry is %q, want %q", first.Name, mimetypeEntry)
		return
	}
	data, err := readZipFileWithLimit(first, 1024)
	if err != nil {
		v.addf("unreadable mimetype entry: %v", err)
		return
	}
	if got := strings.TrimSpace(string(data)); got != expectedMimetype {
		v.addf("unexpected mimetype %q", got)
	}
}

func (v *validator) checkMetadata(root *etree.Element) {
	md := root.SelectElement("metadata")
	if md == nil {
		v.addf("missing metadata")
		return
	}

	if !hasText(md.SelectElements("title")) {
		v.addf("missing title")
	}
	if !hasText(md.SelectElements("language")) {
		v.addf("missing language")
	}

	ids := md.SelectElements("identifier")
	if !hasText(ids) {
		v.addf("missing identifier")
	}
	if unique := strings.TrimSpace(root.SelectAttrValue("unique-identifier", "")); unique != "" {
		found := false
		for _, id := range ids {
			if id.SelectAttrValue("id", "") == unique {
				found = true
				break
			}
		}
		if !found {
			v.addf("unique-identifier %q does not match any identifier", unique)
		}
	} else if v.dialect == DialectEpub3 {
		v.addf("package has no unique-identifier attribute")
	}
}

// checkManifest returns the manifest entries keyed by id for the later
// spine and navigation checks.
func (v *validator) checkManifest(a *archive, root *etree.Element, opfPath string) map[string]*etree.Element {
	items := make(map[string]*etree.Element)
	manifest := root.SelectElement("manifest")
	if manifest == nil {
		v.addf("missing manifest")
		return items
	}

	for i, item := range manifest.SelectElements("item") {
		id := strings.TrimSpace(item.SelectAttrValue("id", ""))
		href := strings.TrimSpace(item.SelectAttrValue("href", ""))
		mediaType := strings.TrimSpace(item.SelectAttrValue("media-type", ""))

		switch {
		case id == "":
			v.addf("manifest item %d has no id", i+1)
		case items[id] != nil:
			v.addf("duplicate manifest id %q", id)
		default:
			items[id] = item
		}
		if mediaType == "" {
			v.addf("manifest item %q has no media-type", id)
		}
		if href == "" {
			v.addf("manifest item %q has no href", id)
			continue
		}
		if isRemoteHref(href) {
			continue
		}
		target := resolveRelativePath(opfPath, hrefWithoutFragment(href))
		if target == "" {
			v.addf("manifest item %q href %q escapes the archive root", id, href)
			continue
		}
		if a.find(target) == nil {
			v.addf("manifest item %q references missing file %s", id, target)
		}
	}
	return items
}

func (v *validator) checkSpine(a *archive, root *etree.Element, opfPath string, items map[string]*etree.Element) {
	spine := root.SelectElement("spine")
	if spine == nil {
		v.addf("missing spine")
		return
	}
	refs := spine.SelectElements("itemref")
	if len(refs) == 0 {
		v.addf("empty spine")
		return
	}

	limit := v.opts.MaxChapterSizeBytes
	for _, ref := range refs {
		idref := strings.TrimSpace(ref.SelectAttrValue("idref", ""))
		item := items[idref]
		if item == nil {
			v.addf("spine idref %q not in manifest", idref)
			continue
		}
		target := resolveRelativePath(opfPath, hrefWithoutFragment(item.SelectAttrValue("href", "")))
		if f := a.find(target); f != nil && f.UncompressedSize64 > uint64(limit) {
			v.addf("chapter %s is %s, over the %s limit", target,
				humanize.IBytes(f.UncompressedSize64), humanize.IBytes(uint64(limit)))
		}
	}
}

// checkNavigation requires a nav document for ePub 3 and an NCX for ePub 2.
// A missing target file is reported by checkManifest.
func (v *validator) checkNavigation(root *etree.Element, items map[string]*etree.Element) {
	var nav *etree.Element
	switch v.dialect {
	case DialectEpub3:
		for _, item := range items {
			if hasToken(item.SelectAttrValue("properties", ""), "nav") {
				nav = item
				break
			}
		}
		if nav == nil {
			v.addf("no navigation document (manifest item with properties=\"nav\")")
			return
		}
	default:
		if spine := root.SelectElement("spine"); spine != nil {
			nav = items[strings.TrimSpace(spine.SelectAttrValue("toc", ""))]
		}
		if nav == nil {
			for _, item := range items {
				if strings.EqualFold(item.SelectAttrValue("media-type", ""), ncxMediaType) {
					nav = item
					break
				}
			}
		}
		if nav == nil {
			v.addf("no NCX table of contents")
			return
		}
	}
	v.log.Debug("navigation document found", "href", nav.SelectAttrValue("href", ""))
}

func hasText(elems []*etree.Element) bool {
	for _, e := range elems {
		if strings.TrimSpace(e.Text()) != "" {
			return true
		}
	}
	return false
}

func hasToken(list, token string) bool {
	for _, f := range splitFields(list) {
		if f == token {
			return true
		}
	}
	return false
}

func isRemoteHref(href string) bool {
	lower := strings.ToLower(href)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
