package epub

import "slices"

// Metadata holds the optional publication metadata extracted from the
// package document.
type Metadata struct {
	// Version is the raw package document version attribute (e.g., "2.0", "3.0").
	Version string

	// Publisher is the first non-empty dc:publisher value.
	Publisher string

	// Date is the first non-empty dc:date value (raw string).
	Date string

	// Description is the first non-empty dc:description value.
	Description string

	// Rights is the first non-empty dc:rights value.
	Rights string

	// Source is the first non-empty dc:source value.
	Source string

	// Coverage is the first non-empty dc:coverage value.
	Coverage string

	// Subjects contains all dc:subject values.
	Subjects []string

	// Custom holds <meta name="..." content="..."/> pairs and, for ePub 3,
	// every non-refining <meta property="...">value</meta> verbatim.
	Custom map[string]string
}

// Author represents a dc:creator (or ePub 3 dc:contributor) entry.
type Author struct {
	// Name is the display name.
	Name string

	// FileAs is the sort form (e.g., "Dickens, Charles").
	FileAs string

	// Role is the MARC relator or free-form role (e.g., "aut", "edt", "Contributor").
	Role string
}

// Identifier represents a dc:identifier entry.
type Identifier struct {
	// Value is the identifier text content (e.g., ISBN, UUID, URI).
	Value string

	// Scheme is opf:scheme for ePub 2 or the identifier-type refinement for ePub 3.
	Scheme string

	// ID is the xml id attribute of the identifier element.
	ID string
}

// Chapter is one reading-order document with its content loaded.
type Chapter struct {
	// ID is the manifest item ID.
	ID string

	// Title is the <title> text, else the first <h1>, else "Chapter N".
	Title string

	// Content is the raw XHTML with any leading BOM removed.
	Content string

	// Order is the zero-based position in Book.Chapters.
	Order int

	// Href is the archive-relative path, without fragment.
	Href string

	// Linear is false for spine items marked linear="no".
	Linear bool
}

// OmissionReason explains why a chapter candidate was left out.
type OmissionReason string

const (
	OmitMissing      OmissionReason = "missing"
	OmitTooLarge     OmissionReason = "too-large"
	OmitUnreadable   OmissionReason = "unreadable"
	OmitNonLinear    OmissionReason = "non-linear"
	OmitUnknownIDRef OmissionReason = "unknown-idref"
	OmitUnsafeHref   OmissionReason = "unsafe-href"
)

// Omission records a chapter candidate skipped during loading.
type Omission struct {
	ID     string
	Href   string
	Reason OmissionReason
	Detail string
}

// TOCItem represents a single entry in the table of contents.
// TOC is a tree structure; each item may have nested children.
type TOCItem struct {
	// Title is the display text of the TOC entry.
	Title string

	// Href is the content file reference (may include a fragment, e.g., "chapter01.xhtml#section2").
	Href string

	// Children contains nested TOC entries under this item.
	Children []TOCItem

	// SpineIndex is the index into the spine that this TOC entry points to.
	// A value of -1 indicates no spine association was found.
	SpineIndex int

	// SpineEndIndex is the exclusive end index into the spine for this TOC entry.
	// A value of -1 indicates no spine association was found.
	SpineEndIndex int
}

// NavigationSource identifies the document a NavigationStructure came from.
type NavigationSource string

const (
	NavSourceNone NavigationSource = ""
	NavSourceNav  NavigationSource = "nav"
	NavSourceNCX  NavigationSource = "ncx"
)

// NavigationStructure is the table of contents and landmarks of a book.
type NavigationStructure struct {
	Source    NavigationSource
	TOC       []TOCItem
	Landmarks []TOCItem
}

// ResourceKind is a coarse classification of a manifest media type.
type ResourceKind string

const (
	KindImage      ResourceKind = "image"
	KindFont       ResourceKind = "font"
	KindStylesheet ResourceKind = "stylesheet"
	KindAudio      ResourceKind = "audio"
	KindVideo      ResourceKind = "video"
	KindScript     ResourceKind = "script"
	KindOther      ResourceKind = "other"
)

// Resource is a non-chapter manifest entry.
type Resource struct {
	ID         string
	Href       string // archive-relative path
	MediaType  string
	Kind       ResourceKind
	Properties []string
}

// ResourceCollection lists the binary and style resources of a book.
type ResourceCollection struct {
	Items []Resource

	// Cover is the archive path of the detected cover image, or empty.
	Cover string
}

// Find returns the resource with the given archive path (case-insensitive).
func (rc ResourceCollection) Find(href string) (Resource, bool) {
	i := slices.IndexFunc(rc.Items, func(r Resource) bool {
		return equalFoldPath(r.Href, href)
	})
	if i < 0 {
		return Resource{}, false
	}
	return rc.Items[i], true
}

// PackageInfo is the book-level data parsed from the package document,
// before chapters are loaded.
type PackageInfo struct {
	Version         Version
	Title           string
	AlternateTitles []string
	Authors         []Author
	Identifiers     []Identifier
	Language        Language
	Metadata        Metadata
}

// manifestItem represents an entry in the package <manifest> element.
type manifestItem struct {
	// ID is the unique identifier of this manifest item.
	ID string

	// Href is the file path relative to the package document location.
	Href string

	// MediaType is the MIME type of the resource.
	MediaType string

	// Properties contains space-separated property values (ePub 3, e.g., "nav", "cover-image").
	Properties string
}

func (m *manifestItem) hasProperty(prop string) bool {
	return slices.Contains(splitFields(m.Properties), prop)
}

// spineEntry represents an <itemref> in the package spine.
type spineEntry struct {
	IDRef  string
	Linear bool
}
