package epub

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// openPackage opens r and loads its package document.
func openPackage(ctx context.Context, r io.ReaderAt, size int64) (*archive, *packageDocument, error) {
	if r == nil {
		return nil, nil, ErrNilArgument
	}
	a, err := openArchive(r, size)
	if err != nil {
		return nil, nil, parsingFailed("open archive", err)
	}
	pkg, err := loadPackage(ctx, a)
	if err != nil {
		return nil, nil, err
	}
	return a, pkg, nil
}

// BuildNavigation reads the table of contents of the archive in r. ePub 3
// nav documents are preferred; the NCX is used otherwise. Every entry is
// annotated with the spine range it covers. A book without either yields
// an empty structure with Source NavSourceNone.
func BuildNavigation(ctx context.Context, r io.ReaderAt, size int64, opts ...Option) (NavigationStructure, error) {
	a, pkg, err := openPackage(ctx, r, size)
	if err != nil {
		return NavigationStructure{}, err
	}
	o := buildOptions(opts)
	nb := &navigationBuilder{archive: a, pkg: pkg, log: o.Logger.With("package", pkg.path)}
	return nb.build(), nil
}

type navigationBuilder struct {
	archive *archive
	pkg     *packageDocument
	log     *slog.Logger
}

func (nb *navigationBuilder) build() NavigationStructure {
	spineIndex := nb.spineIndex()

	if ClassifyVersion(nb.pkg.raw.Version).IsEpub3() {
		if toc, landmarks, ok := nb.fromNav(); ok {
			annotateSpine(toc, spineIndex)
			annotateSpine(landmarks, spineIndex)
			computeSpineRanges(toc, len(nb.pkg.spine))
			return NavigationStructure{Source: NavSourceNav, TOC: toc, Landmarks: landmarks}
		}
	}
	if toc, ok := nb.fromNCX(); ok {
		annotateSpine(toc, spineIndex)
		computeSpineRanges(toc, len(nb.pkg.spine))
		return NavigationStructure{Source: NavSourceNCX, TOC: toc}
	}

	nb.log.Info("no table of contents found")
	return NavigationStructure{Source: NavSourceNone, TOC: []TOCItem{}}
}

// spineIndex maps each spine document's normalised archive path to its
// spine position.
func (nb *navigationBuilder) spineIndex() map[string]int {
	idx := make(map[string]int, len(nb.pkg.spine))
	for i, ref := range nb.pkg.spine {
		mi, ok := nb.pkg.manifest[ref.IDRef]
		if !ok {
			continue
		}
		if p := nb.pkg.resolve(mi.Href); p != "" {
			key := normalizeEntryName(p)
			if _, seen := idx[key]; !seen {
				idx[key] = i
			}
		}
	}
	return idx
}

func (nb *navigationBuilder) readItem(mi *manifestItem) (string, []byte, bool) {
	if mi == nil {
		return "", nil, false
	}
	p := nb.pkg.resolve(mi.Href)
	data, err := nb.archive.read(p)
	if err != nil {
		nb.log.Warn("navigation document unreadable", "href", mi.Href, "error", err)
		return "", nil, false
	}
	return p, data, true
}

func (nb *navigationBuilder) fromNav() (toc, landmarks []TOCItem, ok bool) {
	p, data, ok := nb.readItem(nb.pkg.navItem())
	if !ok {
		return nil, nil, false
	}
	toc, landmarks, err := parseNavDocument(data, p)
	if err != nil {
		nb.log.Warn("failed to parse nav document", "href", p, "error", err)
		return nil, nil, false
	}
	return toc, landmarks, true
}

func (nb *navigationBuilder) fromNCX() ([]TOCItem, bool) {
	p, data, ok := nb.readItem(nb.pkg.ncxItem())
	if !ok {
		return nil, false
	}
	toc, err := parseNCX(data, p)
	if err != nil {
		nb.log.Warn("failed to parse NCX", "href", p, "error", err)
		return nil, false
	}
	return toc, true
}

// annotateSpine sets SpineIndex on every item whose target document is in
// the spine.
func annotateSpine(items []TOCItem, spineIndex map[string]int) {
	for i := range items {
		if items[i].Href != "" {
			if idx, ok := spineIndex[normalizeEntryName(hrefWithoutFragment(items[i].Href))]; ok {
				items[i].SpineIndex = idx
			}
		}
		annotateSpine(items[i].Children, spineIndex)
	}
}

// computeSpineRanges sets SpineEndIndex so each entry covers
// spine[SpineIndex:SpineEndIndex]. The range ends where the next distinct
// spine index referenced anywhere in the tree begins.
func computeSpineRanges(items []TOCItem, spineLen int) {
	var flat []*TOCItem
	var walk func([]TOCItem)
	walk = func(list []TOCItem) {
		for i := range list {
			flat = append(flat, &list[i])
			walk(list[i].Children)
		}
	}
	walk(items)

	var starts []int
	for _, it := range flat {
		if it.SpineIndex >= 0 {
			starts = append(starts, it.SpineIndex)
		}
	}
	slices.Sort(starts)
	starts = slices.Compact(starts)

	for _, it := range flat {
		if it.SpineIndex < 0 {
			it.SpineEndIndex = -1
			continue
		}
		i, _ := slices.BinarySearch(starts, it.SpineIndex)
		if i+1 < len(starts) {
			it.SpineEndIndex = starts[i+1]
		} else {
			it.SpineEndIndex = spineLen
		}
	}
}

// NCX (ePub 2) decoding structures.

type ncxDocument struct {
	NavMap struct {
		Points []ncxNavPoint `xml:"navPoint"`
	} `xml:"navMap"`
}

type ncxNavPoint struct {
	Label struct {
		Text string `xml:"text"`
	} `xml:"navLabel"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

// parseNCX decodes an NCX document. Hrefs are resolved against ncxPath.
func parseNCX(data []byte, ncxPath string) ([]TOCItem, error) {
	var doc ncxDocument
	if err := decodeXML(data, &doc); err != nil {
		return nil, fmt.Errorf("epub: parse NCX: %w", err)
	}
	return ncxItems(doc.NavMap.Points, ncxPath), nil
}

func ncxItems(points []ncxNavPoint, ncxPath string) []TOCItem {
	if len(points) == 0 {
		return nil
	}
	items := make([]TOCItem, 0, len(points))
	for _, np := range points {
		items = append(items, TOCItem{
			Title:         squashSpaces(np.Label.Text),
			Href:          resolveHref(ncxPath, np.Content.Src),
			Children:      ncxItems(np.Children, ncxPath),
			SpineIndex:    -1,
			SpineEndIndex: -1,
		})
	}
	return items
}

// parseNavDocument reads the toc and landmarks lists of an ePub 3 nav
// document located at navPath.
func parseNavDocument(data []byte, navPath string) (toc, landmarks []TOCItem, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(stripBOM(data)))
	if err != nil {
		return nil, nil, fmt.Errorf("epub: parse nav document: %w", err)
	}
	doc.Find("nav").Each(func(_ int, nav *goquery.Selection) {
		types := strings.Fields(nav.AttrOr("epub:type", ""))
		ol := nav.Find("ol").First()
		switch {
		case slices.Contains(types, "toc") && toc == nil:
			toc = navList(ol, navPath)
		case slices.Contains(types, "landmarks") && landmarks == nil:
			landmarks = navList(ol, navPath)
		}
	})
	return toc, landmarks, nil
}

// navList converts the <li> children of ol. Each <li> takes its title and
// target from its first <a>, or its title from a <span> heading.
func navList(ol *goquery.Selection, navPath string) []TOCItem {
	var items []TOCItem
	ol.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
		item := TOCItem{SpineIndex: -1, SpineEndIndex: -1}
		if a := li.ChildrenFiltered("a").First(); a.Length() > 0 {
			item.Title = squashSpaces(a.Text())
			item.Href = resolveHref(navPath, a.AttrOr("href", ""))
		} else {
			item.Title = squashSpaces(li.ChildrenFiltered("span").First().Text())
		}
		if sub := li.ChildrenFiltered("ol").First(); sub.Length() > 0 {
			item.Children = navList(sub, navPath)
		}
		items = append(items, item)
	})
	return items
}

// resolveHref resolves a navigation target against the document it appears
// in, keeping any fragment.
func resolveHref(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	return resolveRelativePath(base, href)
}
