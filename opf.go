package epub

import (
	"context"
	"encoding/xml"
	"path"
	"strings"
)

// opfPackage represents the root <package> element of a package document.
type opfPackage struct {
	XMLName          xml.Name     `xml:"package"`
	Version          string       `xml:"version,attr"`
	UniqueIdentifier string       `xml:"unique-identifier,attr"`
	Metadata         *opfMetadata `xml:"metadata"`
	Manifest         opfManifest  `xml:"manifest"`
	Spine            opfSpine     `xml:"spine"`
	Guide            opfGuide     `xml:"guide"`
}

// opfMetadata holds the raw metadata elements from the package document.
type opfMetadata struct {
	Titles       []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ title"`
	Creators     []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Contributors []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ contributor"`
	Languages    []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ language"`
	Identifiers  []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ identifier"`
	Publishers   []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ publisher"`
	Dates        []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ date"`
	Descriptions []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ description"`
	Subjects     []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ subject"`
	Rights       []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ rights"`
	Sources      []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ source"`
	Coverages    []opfDCElement `xml:"http://purl.org/dc/elements/1.1/ coverage"`
	Metas        []opfMeta      `xml:"meta"`
}

// opfDCElement holds a Dublin Core element with optional OPF attributes.
// ePub 2 uses opf:file-as, opf:role, opf:scheme attributes directly.
// ePub 3 uses <meta refines="..."> elements to express the same information.
type opfDCElement struct {
	Value  string `xml:",chardata"`
	ID     string `xml:"id,attr"`
	FileAs string `xml:"file-as,attr"`
	Role   string `xml:"role,attr"`
	Scheme string `xml:"scheme,attr"`
}

// opfMeta represents a <meta> element in the package metadata.
// ePub 2: <meta name="..." content="..."/>
// ePub 3: <meta property="..." refines="..." scheme="...">value</meta>
type opfMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`

	Property string `xml:"property,attr"`
	Refines  string `xml:"refines,attr"`
	Scheme   string `xml:"scheme,attr"`
	Value    string `xml:",chardata"`
}

// opfManifest wraps the <manifest> element.
type opfManifest struct {
	Items []opfManifestItem `xml:"item"`
}

// opfManifestItem represents a single <item> in the manifest.
type opfManifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

// opfSpine wraps the <spine> element.
type opfSpine struct {
	Toc      string            `xml:"toc,attr"`
	ItemRefs []opfSpineItemRef `xml:"itemref"`
}

// opfSpineItemRef represents a single <itemref> in the spine.
type opfSpineItemRef struct {
	IDRef  string `xml:"idref,attr"`
	Linear string `xml:"linear,attr"`
}

// opfGuide wraps the <guide> element.
type opfGuide struct {
	References []opfGuideReference `xml:"reference"`
}

// opfGuideReference represents a single <reference> in the guide.
type opfGuideReference struct {
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
	Href  string `xml:"href,attr"`
}

// packageDocument is a decoded package document together with the lookup
// structures the rest of the pipeline needs. The manifest is fully built
// before the spine is resolved.
type packageDocument struct {
	path       string // archive path of the package document
	dir        string // its directory, "." at the archive root
	raw        *opfPackage
	manifest   map[string]*manifestItem
	manifestBy []*manifestItem // declaration order
	spine      []spineEntry
}

// loadPackage runs LocateContainer → ResolveRootfile → LoadPackageDocument.
func loadPackage(ctx context.Context, a *archive) (*packageDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, parsingFailed("load package", err)
	}

	opfPath, err := locateRootfile(a)
	if err != nil {
		return nil, err
	}

	f := a.find(opfPath)
	if f == nil {
		return nil, structuralError(componentPackage, opfPath)
	}
	data, err := readZipFile(f)
	if err != nil {
		return nil, parsingFailed("read package document", err)
	}

	pkg, err := parseOPF(data)
	if err != nil {
		return nil, err
	}

	doc := &packageDocument{
		path: f.Name,
		dir:  path.Dir(f.Name),
		raw:  pkg,
	}
	doc.manifest, doc.manifestBy = buildManifest(pkg.Manifest)
	doc.spine = buildSpine(pkg.Spine)
	return doc, nil
}

// parseOPF decodes package document bytes.
func parseOPF(data []byte) (*opfPackage, error) {
	var pkg opfPackage
	if err := decodeXML(data, &pkg); err != nil {
		return nil, parsingFailed("parse package document", err)
	}
	pkg.Version = strings.TrimSpace(pkg.Version)
	return &pkg, nil
}

// buildManifest creates the id lookup and the declaration-ordered list.
// Later duplicates of an id are ignored.
func buildManifest(manifest opfManifest) (map[string]*manifestItem, []*manifestItem) {
	byID := make(map[string]*manifestItem, len(manifest.Items))
	ordered := make([]*manifestItem, 0, len(manifest.Items))

	for _, item := range manifest.Items {
		id := strings.TrimSpace(item.ID)
		if _, dup := byID[id]; dup && id != "" {
			continue
		}
		mi := &manifestItem{
			ID:         id,
			Href:       strings.TrimSpace(item.Href),
			MediaType:  strings.TrimSpace(item.MediaType),
			Properties: item.Properties,
		}
		if id != "" {
			byID[id] = mi
		}
		ordered = append(ordered, mi)
	}
	return byID, ordered
}

// buildSpine keeps the itemref order and the linear flag.
func buildSpine(spine opfSpine) []spineEntry {
	entries := make([]spineEntry, 0, len(spine.ItemRefs))
	for _, ref := range spine.ItemRefs {
		entries = append(entries, spineEntry{
			IDRef:  strings.TrimSpace(ref.IDRef),
			Linear: !strings.EqualFold(strings.TrimSpace(ref.Linear), "no"),
		})
	}
	return entries
}

// resolve maps a manifest href to an archive path, fragment removed.
// It returns "" when the href escapes the archive root.
func (d *packageDocument) resolve(href string) string {
	href = hrefWithoutFragment(href)
	if href == "" {
		return ""
	}
	return resolveRelativePath(d.path, href)
}

// navItem returns the ePub 3 navigation document entry, if declared.
func (d *packageDocument) navItem() *manifestItem {
	for _, mi := range d.manifestBy {
		if mi.hasProperty("nav") {
			return mi
		}
	}
	return nil
}

// ncxItem returns the ePub 2 NCX entry referenced by the spine toc
// attribute, falling back to the NCX media type.
func (d *packageDocument) ncxItem() *manifestItem {
	if mi, ok := d.manifest[strings.TrimSpace(d.raw.Spine.Toc)]; ok {
		return mi
	}
	for _, mi := range d.manifestBy {
		if strings.EqualFold(mi.MediaType, ncxMediaType) {
			return mi
		}
	}
	return nil
}

const ncxMediaType = "application/x-dtbncx+xml"

// splitFields splits a space-separated property list.
func splitFields(s string) []string {
	return strings.Fields(s)
}
