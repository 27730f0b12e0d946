package epub

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestOpen_Valid(t *testing.T) {
	fp := buildTestEPubFile(t, epub2Files())

	book, err := Open(context.Background(), fp)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if book.Title() != "A Tale of Two Cities" {
		t.Errorf("Title() = %q", book.Title())
	}
	if len(book.Omissions()) != 0 {
		t.Errorf("unexpected omissions: %v", book.Omissions())
	}
	nav, ok := book.Navigation()
	if !ok {
		t.Fatal("Open() did not attach navigation")
	}
	if nav.Source != NavSourceNCX || len(nav.TOC) != 2 {
		t.Errorf("Navigation() = %+v", nav)
	}
	rc, ok := book.Resources()
	if !ok {
		t.Fatal("Open() did not attach resources")
	}
	if rc.Cover != "OEBPS/images/cover.jpg" {
		t.Errorf("Resources().Cover = %q", rc.Cover)
	}
}

func TestOpen_LargeFileMatchesSmallFile(t *testing.T) {
	fp := buildTestEPubFile(t, epub3Files())
	ctx := context.Background()

	small, err := Open(ctx, fp)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	large, err := Open(ctx, fp, WithLargeFileThreshold(1))
	if err != nil {
		t.Fatalf("Open(streaming) error = %v", err)
	}

	if small.ID() != large.ID() {
		t.Errorf("IDs differ: %s vs %s", small.ID(), large.ID())
	}
	smallNav, _ := small.Navigation()
	largeNav, _ := large.Navigation()
	if len(smallNav.TOC) != len(largeNav.TOC) || smallNav.Source != largeNav.Source {
		t.Errorf("navigation differs: %+v vs %+v", smallNav, largeNav)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open(context.Background(), "/nonexistent/path/book.epub")
	if err == nil {
		t.Fatal("expected error for nonexistent file")
	}
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Kind != KindParsingFailed {
		t.Errorf("error = %v, want parsing failure", err)
	}
}

func TestNewReader_Valid(t *testing.T) {
	r, size := readerFor(t, epub3Files())

	book, err := NewReader(context.Background(), r, size)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}

	if book.Version() != VersionEpub30 {
		t.Errorf("Version() = %v, want 3.0", book.Version())
	}
	nav, ok := book.Navigation()
	if !ok || nav.Source != NavSourceNav {
		t.Errorf("Navigation() = %+v, %v", nav, ok)
	}
	if rc, ok := book.Resources(); !ok || rc.Cover != "OEBPS/img/cover.png" {
		t.Errorf("Resources() = %+v, %v", rc, ok)
	}
}

func TestNewReader_Errors(t *testing.T) {
	ctx := context.Background()

	if _, err := NewReader(ctx, nil, 0); !errors.Is(err, ErrNilArgument) {
		t.Errorf("NewReader(nil) error = %v, want ErrNilArgument", err)
	}

	r, size := readerFor(t, map[string]string{"mimetype": "application/epub+zip"})
	_, err := NewReader(ctx, r, size)
	if c, ok := MissingComponent(err); !ok || c != componentContainer {
		t.Errorf("MissingComponent(%v) = %q, %v", err, c, ok)
	}
}

func TestIntegration_EPub2_EndToEnd(t *testing.T) {
	r, size := readerFor(t, epub2Files())
	book, err := NewReader(context.Background(), r, size)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}

	chapters := book.Chapters()
	if len(chapters) != 3 {
		t.Fatalf("Chapters() returned %d, want 3", len(chapters))
	}
	for i, want := range []string{"Chapter I", "Chapter II", "Chapter III"} {
		if chapters[i].Title != want || chapters[i].Order != i || !chapters[i].Linear {
			t.Errorf("chapters[%d] = %q order %d linear %v", i, chapters[i].Title, chapters[i].Order, chapters[i].Linear)
		}
	}
	text, err := chapters[0].Text()
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	if !strings.Contains(text, "It was the best of times.") {
		t.Errorf("Text() = %q", text)
	}

	nav, _ := book.Navigation()
	if got := nav.TOC[1]; got.Title != "Book the Second" || got.SpineIndex != 2 || got.SpineEndIndex != 3 {
		t.Errorf("TOC[1] = %+v", got)
	}

	rc, _ := book.Resources()
	if _, ok := rc.Find("OEBPS/styles/main.css"); !ok {
		t.Error("stylesheet missing from resources")
	}
	if _, ok := rc.Find("OEBPS/text/ch1.xhtml"); ok {
		t.Error("spine document listed as a resource")
	}

	md := book.Metadata()
	if md.Publisher != "Penguin" || len(md.Subjects) != 2 {
		t.Errorf("Metadata() = %+v", md)
	}
}

func TestIntegration_EPub3_EndToEnd(t *testing.T) {
	r, size := readerFor(t, epub3Files())
	book, err := NewReader(context.Background(), r, size)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}

	if book.Title() != "Main Title" {
		t.Errorf("Title() = %q, want display-seq 1 title", book.Title())
	}
	if got := book.Language().Code(); got != "ZH-HANS" {
		t.Errorf("Language() = %q", got)
	}

	chapters := book.Chapters()
	if len(chapters) != 2 || chapters[0].ID != "intro" || chapters[1].ID != "body" {
		t.Fatalf("Chapters() = %v, want intro and body", chapterIDs(chapters))
	}
	if chapters[1].Title != "The Body" {
		t.Errorf("body title = %q, want first heading", chapters[1].Title)
	}

	omissions := book.Omissions()
	if len(omissions) != 1 || omissions[0].ID != "notes" || omissions[0].Reason != OmitNonLinear {
		t.Errorf("Omissions() = %+v", omissions)
	}

	nav, _ := book.Navigation()
	if len(nav.Landmarks) != 1 || nav.Landmarks[0].Href != "OEBPS/body.xhtml" {
		t.Errorf("Landmarks = %+v", nav.Landmarks)
	}
}

func TestIntegration_CaseInsensitivePaths(t *testing.T) {
	container := strings.Replace(validContainerXML, "OEBPS/content.opf", "OEBPS/Content.OPF", 1)
	opf := minimalOPF("2.0", xhtmlItem("ch1", "Chapter01.XHTML"), `<itemref idref="ch1"/>`)
	files := map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": container,
		"OEBPS/content.opf":      opf,
		"OEBPS/chapter01.xhtml":  `<html><body><p>Hello from ch1</p></body></html>`,
	}
	r, size := readerFor(t, files)

	book, err := NewReader(context.Background(), r, size)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	chapters := book.Chapters()
	if len(chapters) != 1 || !strings.Contains(chapters[0].Content, "Hello from ch1") {
		t.Errorf("Chapters() = %+v", chapters)
	}
}

func TestIntegration_BOMAndEntities(t *testing.T) {
	opf := "\xEF\xBB\xBF" + strings.Replace(
		minimalOPF("2.0", xhtmlItem("ch1", "ch.xhtml"), `<itemref idref="ch1"/>`),
		"<dc:title>Test Book</dc:title>", "<dc:title>Caf&eacute; &amp; Co&mdash;</dc:title>", 1)
	files := withPackage(opf, map[string]string{
		"OEBPS/ch.xhtml": "\xEF\xBB\xBF" + chapterXHTML("BOM &amp; Chapter", "<p>Body&nbsp;text</p>"),
	})
	r, size := readerFor(t, files)

	book, err := NewReader(context.Background(), r, size)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	if book.Title() != "Café & Co—" {
		t.Errorf("Title() = %q", book.Title())
	}
	ch := book.Chapters()[0]
	if strings.HasPrefix(ch.Content, "\xEF\xBB\xBF") {
		t.Error("chapter content kept its BOM")
	}
	if ch.Title != "BOM & Chapter" {
		t.Errorf("chapter title = %q", ch.Title)
	}
}
