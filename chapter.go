package epub

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
)

// chapterCandidate is a manifest entry selected for loading.
type chapterCandidate struct {
	item   *manifestItem
	linear bool
}

// chapterLoader turns the spine (or, lacking one, the manifest) into
// ordered chapters.
type chapterLoader struct {
	archive *archive
	pkg     *packageDocument
	dialect Dialect
	opts    Options
	log     *slog.Logger

	omissions []Omission
}

func newChapterLoader(a *archive, pkg *packageDocument, d Dialect, opts Options) *chapterLoader {
	return &chapterLoader{
		archive: a,
		pkg:     pkg,
		dialect: d,
		opts:    opts,
		log:     opts.Logger,
	}
}

// load returns every loadable chapter; skipped candidates are available
// through l.omissions afterwards.
func (l *chapterLoader) load(ctx context.Context) ([]Chapter, error) {
	var chapters []Chapter
	err := l.each(ctx, func(ch Chapter) bool {
		chapters = append(chapters, ch)
		return true
	})
	return chapters, err
}

// each loads candidates one at a time and hands them to yield in order.
// Order is the position among yielded chapters. Iteration stops when yield
// returns false or ctx is done.
func (l *chapterLoader) each(ctx context.Context, yield func(Chapter) bool) error {
	candidates := l.candidates()
	order := 0
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return parsingFailed("load chapters", err)
		}
		ch, ok := l.loadOne(c, order)
		if !ok {
			continue
		}
		if !yield(ch) {
			return nil
		}
		order++
	}
	return nil
}

// candidates selects entries in spine order, or in manifest declaration
// order when the spine is empty.
func (l *chapterLoader) candidates() []chapterCandidate {
	nav := l.excludedNav()

	if len(l.pkg.spine) == 0 {
		l.log.Info("no spine found, using manifest order", "package", l.pkg.path)
		var out []chapterCandidate
		for _, mi := range l.pkg.manifestBy {
			if mi == nav || !isHTMLMediaType(mi.MediaType) {
				continue
			}
			out = append(out, chapterCandidate{item: mi, linear: true})
		}
		return out
	}

	out := make([]chapterCandidate, 0, len(l.pkg.spine))
	for _, ref := range l.pkg.spine {
		mi, ok := l.pkg.manifest[ref.IDRef]
		if !ok {
			l.omit(ref.IDRef, "", OmitUnknownIDRef, "spine idref not in manifest")
			continue
		}
		if mi == nav {
			l.log.Debug("skipping navigation document in spine", "href", mi.Href)
			continue
		}
		if !ref.Linear && l.dialect == DialectEpub3 && !l.opts.IncludeNonLinear {
			l.omit(mi.ID, l.pkg.resolve(mi.Href), OmitNonLinear, `spine itemref linear="no"`)
			continue
		}
		out = append(out, chapterCandidate{item: mi, linear: ref.Linear})
	}
	return out
}

// excludedNav returns the navigation document that must not become a chapter.
func (l *chapterLoader) excludedNav() *manifestItem {
	switch l.dialect {
	case DialectEpub3:
		return l.pkg.navItem()
	default:
		// A nav property in an ePub 2 manifest is still a known navigation
		// document when the manifest is used as a fallback.
		if len(l.pkg.spine) == 0 {
			return l.pkg.navItem()
		}
		return nil
	}
}

// loadOne reads and titles a single candidate. It returns false and records
// an omission when the entry is unsafe, missing, unreadable or too large.
func (l *chapterLoader) loadOne(c chapterCandidate, order int) (Chapter, bool) {
	mi := c.item
	href := l.pkg.resolve(mi.Href)
	if href == "" {
		l.omit(mi.ID, mi.Href, OmitUnsafeHref, "href is empty or escapes the archive root")
		return Chapter{}, false
	}

	f := l.archive.find(href)
	if f == nil {
		l.omit(mi.ID, href, OmitMissing, "entry not found in archive")
		return Chapter{}, false
	}

	limit := l.opts.MaxChapterSizeBytes
	if f.UncompressedSize64 > uint64(limit) {
		l.omit(mi.ID, href, OmitTooLarge, "chapter exceeds size limit: "+
			humanize.IBytes(f.UncompressedSize64)+" > "+humanize.IBytes(uint64(limit)))
		return Chapter{}, false
	}

	data, err := readZipFileWithLimit(f, limit)
	if err != nil {
		reason := OmitUnreadable
		if errors.Is(err, errEntryTooLarge) {
			reason = OmitTooLarge
		}
		l.omit(mi.ID, href, reason, err.Error())
		return Chapter{}, false
	}
	data = stripBOM(data)

	return Chapter{
		ID:      mi.ID,
		Title:   chapterTitle(data, order+1),
		Content: string(data),
		Order:   order,
		Href:    f.Name,
		Linear:  c.linear,
	}, true
}

func (l *chapterLoader) omit(id, href string, reason OmissionReason, detail string) {
	l.omissions = append(l.omissions, Omission{ID: id, Href: href, Reason: reason, Detail: detail})
	if reason == OmitNonLinear {
		l.log.Info("skipping non-linear spine item", "id", id, "href", href)
		return
	}
	l.log.Warn("skipping chapter", "id", id, "href", href, "reason", string(reason), "detail", detail)
}

// isHTMLMediaType reports whether mediaType is an (X)HTML content type.
func isHTMLMediaType(mediaType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt == "application/xhtml+xml" || mt == "text/html"
}

// Text extracts the plain text of the chapter. Block-level elements produce
// line breaks; script and style content is skipped.
func (c Chapter) Text() (string, error) {
	return extractText([]byte(c.Content))
}
