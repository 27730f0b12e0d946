package epub

import (
	"errors"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/language"
)

// bookNamespace seeds the deterministic book IDs derived from identifiers.
var bookNamespace = uuid.MustParse("6f0c1d2e-61d4-4b7a-9a53-2b7f3f2f5e01")

// Errors returned by NewBook and NewLanguage.
var (
	ErrEmptyTitle      = errors.New("epub: book title is empty")
	ErrNoAuthors       = errors.New("epub: book has no authors")
	ErrInvalidLanguage = errors.New("epub: language code must have at least 2 characters")
)

// Language is a normalised, upper-case language code such as "EN" or "ZH-HANS".
type Language struct {
	code string
}

// UndeterminedLanguage is used when a package declares no usable dc:language.
var UndeterminedLanguage = Language{code: "UND"}

// NewLanguage canonicalises a BCP 47 tag and upper-cases it. Codes shorter
// than two characters are rejected.
func NewLanguage(code string) (Language, error) {
	code = strings.TrimSpace(code)
	if len(code) < 2 {
		return Language{}, ErrInvalidLanguage
	}
	if tag, err := language.Parse(code); err == nil {
		code = tag.String()
	}
	return Language{code: strings.ToUpper(code)}, nil
}

// Code returns the normalised code.
func (l Language) Code() string { return l.code }

func (l Language) String() string { return l.code }

// BookParams carries the fields of a Book under construction.
type BookParams struct {
	Info      PackageInfo
	Chapters  []Chapter
	Omissions []Omission
}

// Book is the immutable document model produced by a parse.
//
// Navigation and resources are attached afterwards with WithNavigation and
// WithResources, each of which returns a new Book.
type Book struct {
	id         uuid.UUID
	info       PackageInfo
	chapters   []Chapter
	omissions  []Omission
	navigation *NavigationStructure
	resources  *ResourceCollection
}

// NewBook validates params and builds a Book. Chapters are sorted by Order.
func NewBook(p BookParams) (*Book, error) {
	if strings.TrimSpace(p.Info.Title) == "" {
		return nil, ErrEmptyTitle
	}
	if len(p.Info.Authors) == 0 {
		return nil, ErrNoAuthors
	}
	if len(p.Chapters) == 0 {
		return nil, ErrNoChapters
	}

	chapters := slices.Clone(p.Chapters)
	slices.SortStableFunc(chapters, func(a, b Chapter) int { return a.Order - b.Order })

	b := &Book{
		info:      copyInfo(p.Info),
		chapters:  chapters,
		omissions: slices.Clone(p.Omissions),
	}
	if b.info.Language.code == "" {
		b.info.Language = UndeterminedLanguage
	}
	b.id = deriveBookID(b.info.Identifiers)
	return b, nil
}

// deriveBookID returns a name-based UUID for the first identifier so that
// re-parsing the same publication yields the same ID.
func deriveBookID(ids []Identifier) uuid.UUID {
	for _, id := range ids {
		if id.Value != "" {
			return uuid.NewSHA1(bookNamespace, []byte(strings.ToLower(id.Scheme)+":"+id.Value))
		}
	}
	return uuid.New()
}

// ID returns the book identifier.
func (b *Book) ID() uuid.UUID { return b.id }

// Version returns the detected package version.
func (b *Book) Version() Version { return b.info.Version }

// Title returns the primary title.
func (b *Book) Title() string { return b.info.Title }

// AlternateTitles returns every title after the primary one.
func (b *Book) AlternateTitles() []string { return slices.Clone(b.info.AlternateTitles) }

// Authors returns the creators (and, for ePub 3, contributors).
func (b *Book) Authors() []Author { return slices.Clone(b.info.Authors) }

// Identifiers returns the dc:identifier entries.
func (b *Book) Identifiers() []Identifier { return slices.Clone(b.info.Identifiers) }

// Language returns the normalised primary language.
func (b *Book) Language() Language { return b.info.Language }

// Metadata returns a copy of the optional metadata block.
func (b *Book) Metadata() Metadata { return copyMetadata(b.info.Metadata) }

// Chapters returns the chapters in reading order.
func (b *Book) Chapters() []Chapter { return slices.Clone(b.chapters) }

// Omissions lists chapter candidates skipped while loading. An empty result
// means the parse was complete.
func (b *Book) Omissions() []Omission { return slices.Clone(b.omissions) }

// Navigation returns the attached navigation structure, if any.
func (b *Book) Navigation() (NavigationStructure, bool) {
	if b.navigation == nil {
		return NavigationStructure{}, false
	}
	return copyNavigation(*b.navigation), true
}

// Resources returns the attached resource collection, if any.
func (b *Book) Resources() (ResourceCollection, bool) {
	if b.resources == nil {
		return ResourceCollection{}, false
	}
	rc := *b.resources
	rc.Items = slices.Clone(rc.Items)
	return rc, true
}

// WithNavigation returns a copy of b with nav attached. It fails with
// ErrAlreadyAttached if b already carries a navigation structure.
func (b *Book) WithNavigation(nav NavigationStructure) (*Book, error) {
	if b.navigation != nil {
		return nil, ErrAlreadyAttached
	}
	out := *b
	nav = copyNavigation(nav)
	out.navigation = &nav
	return &out, nil
}

// WithResources returns a copy of b with rc attached. It fails with
// ErrAlreadyAttached if b already carries a resource collection.
func (b *Book) WithResources(rc ResourceCollection) (*Book, error) {
	if b.resources != nil {
		return nil, ErrAlreadyAttached
	}
	out := *b
	rc.Items = slices.Clone(rc.Items)
	out.resources = &rc
	return &out, nil
}

func copyInfo(in PackageInfo) PackageInfo {
	out := in
	out.AlternateTitles = slices.Clone(in.AlternateTitles)
	out.Authors = slices.Clone(in.Authors)
	out.Identifiers = slices.Clone(in.Identifiers)
	out.Metadata = copyMetadata(in.Metadata)
	return out
}

func copyMetadata(in Metadata) Metadata {
	out := in
	out.Subjects = slices.Clone(in.Subjects)
	out.Custom = maps.Clone(in.Custom)
	return out
}

func copyNavigation(in NavigationStructure) NavigationStructure {
	out := in
	out.TOC = copyTOCItems(in.TOC)
	out.Landmarks = copyTOCItems(in.Landmarks)
	return out
}

func copyTOCItems(in []TOCItem) []TOCItem {
	if in == nil {
		return nil
	}
	out := make([]TOCItem, len(in))
	for i := range in {
		out[i] = in[i]
		out[i].Children = copyTOCItems(in[i].Children)
	}
	return out
}
