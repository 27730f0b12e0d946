package epub

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// BuildResources lists the manifest entries that are not reading-order
// documents and detects the cover image.
func BuildResources(ctx context.Context, r io.ReaderAt, size int64, opts ...Option) (ResourceCollection, error) {
	a, pkg, err := openPackage(ctx, r, size)
	if err != nil {
		return ResourceCollection{}, err
	}
	o := buildOptions(opts)
	rb := &resourceBuilder{archive: a, pkg: pkg, log: o.Logger.With("package", pkg.path)}
	return rb.build(), nil
}

type resourceBuilder struct {
	archive *archive
	pkg     *packageDocument
	log     *slog.Logger
}

func (rb *resourceBuilder) build() ResourceCollection {
	inSpine := make(map[string]bool, len(rb.pkg.spine))
	for _, ref := range rb.pkg.spine {
		inSpine[ref.IDRef] = true
	}
	nav := rb.pkg.navItem()

	rc := ResourceCollection{Items: []Resource{}}
	for _, mi := range rb.pkg.manifestBy {
		if inSpine[mi.ID] || mi == nav {
			continue
		}
		href := rb.pkg.resolve(mi.Href)
		if href == "" {
			rb.log.Warn("skipping resource with unsafe href", "id", mi.ID, "href", mi.Href)
			continue
		}
		rc.Items = append(rc.Items, Resource{
			ID:         mi.ID,
			Href:       href,
			MediaType:  mi.MediaType,
			Kind:       resourceKind(mi.MediaType),
			Properties: splitFields(mi.Properties),
		})
	}

	if cover := rb.cover(); cover != nil {
		rc.Cover = rb.pkg.resolve(cover.Href)
	} else {
		rb.log.Debug("no cover image detected")
	}
	return rc
}

// resourceKind classifies a media type.
func resourceKind(mediaType string) ResourceKind {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	switch {
	case strings.HasPrefix(mt, "image/"):
		return KindImage
	case strings.HasPrefix(mt, "font/"),
		strings.Contains(mt, "font-"),
		mt == "application/vnd.ms-opentype",
		mt == "application/x-font-ttf":
		return KindFont
	case mt == "text/css":
		return KindStylesheet
	case strings.HasPrefix(mt, "audio/"):
		return KindAudio
	case strings.HasPrefix(mt, "video/"):
		return KindVideo
	case strings.Contains(mt, "javascript"), strings.Contains(mt, "ecmascript"):
		return KindScript
	default:
		return KindOther
	}
}

// cover tries, in order: the ePub 3 cover-image property, the ePub 2
// <meta name="cover">, the guide cover page, an image named like a cover,
// and the first image of the first spine document.
func (rb *resourceBuilder) cover() *manifestItem {
	strategies := []func() *manifestItem{
		rb.coverFromProperty,
		rb.coverFromMeta,
		rb.coverFromGuide,
		rb.coverFromName,
		rb.coverFromFirstSpine,
	}
	for _, s := range strategies {
		if mi := s(); mi != nil {
			return mi
		}
	}
	return nil
}

func (rb *resourceBuilder) coverFromProperty() *manifestItem {
	for _, mi := range rb.pkg.manifestBy {
		if mi.hasProperty("cover-image") {
			return mi
		}
	}
	return nil
}

// coverFromMeta resolves <meta name="cover" content="id">. A non-image
// target is treated as a cover page and scanned for its first image.
func (rb *resourceBuilder) coverFromMeta() *manifestItem {
	md := rb.pkg.raw.Metadata
	if md == nil {
		return nil
	}
	for _, m := range md.Metas {
		if !strings.EqualFold(m.Name, "cover") || m.Content == "" {
			continue
		}
		mi, ok := rb.pkg.manifest[strings.TrimSpace(m.Content)]
		if !ok {
			continue
		}
		if isImageMediaType(mi.MediaType) {
			return mi
		}
		if img := rb.imageInPage(rb.pkg.resolve(mi.Href)); img != nil {
			return img
		}
	}
	return nil
}

func (rb *resourceBuilder) coverFromGuide() *manifestItem {
	for _, ref := range rb.pkg.raw.Guide.References {
		if !strings.EqualFold(ref.Type, "cover") {
			continue
		}
		if img := rb.imageInPage(rb.pkg.resolve(ref.Href)); img != nil {
			return img
		}
	}
	return nil
}

func (rb *resourceBuilder) coverFromName() *manifestItem {
	for _, mi := range rb.pkg.manifestBy {
		if !isImageMediaType(mi.MediaType) {
			continue
		}
		if containsFold(mi.ID, "cover") || containsFold(mi.Href, "cover") {
			return mi
		}
	}
	return nil
}

func (rb *resourceBuilder) coverFromFirstSpine() *manifestItem {
	if len(rb.pkg.spine) == 0 {
		return nil
	}
	mi, ok := rb.pkg.manifest[rb.pkg.spine[0].IDRef]
	if !ok {
		return nil
	}
	return rb.imageInPage(rb.pkg.resolve(mi.Href))
}

// imageInPage returns the image manifest item referenced first by the
// XHTML document at pagePath.
func (rb *resourceBuilder) imageInPage(pagePath string) *manifestItem {
	if pagePath == "" {
		return nil
	}
	data, err := rb.archive.read(pagePath)
	if err != nil {
		return nil
	}
	img := findFirstImageInHTML(data, pagePath)
	if img == "" {
		return nil
	}
	for _, mi := range rb.pkg.manifestBy {
		if isImageMediaType(mi.MediaType) && equalFoldPath(rb.pkg.resolve(mi.Href), img) {
			return mi
		}
	}
	return nil
}

// CoverResource returns the cover entry of rc, or ErrNoCover.
func (rc ResourceCollection) CoverResource() (Resource, error) {
	if rc.Cover == "" {
		return Resource{}, ErrNoCover
	}
	if r, ok := rc.Find(rc.Cover); ok {
		return r, nil
	}
	return Resource{}, ErrNoCover
}

// isImageMediaType returns true if the media type starts with "image/".
func isImageMediaType(mediaType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mediaType)), "image/")
}

// containsFold reports whether s contains substr, case-insensitively.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
