// Package epub reads ePub 2 and ePub 3 publications into an immutable
// document model and serves their resources through a bounded cache.
//
// # Parsing
//
// [Open] and [NewReader] detect the package version, parse with the matching
// dialect and attach the table of contents and resource list:
//
//	book, err := epub.Open(ctx, "book.epub", epub.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(book.Title(), book.Language())
//
// Lower-level entry points are available when only part of the pipeline is
// needed: [DetectVersion], [Factory.CreateParser], [Parser.Parse],
// [AdaptiveParser.Parse] for arbitrary streams, [BuildNavigation] and
// [BuildResources].
//
// # Chapters
//
// [Book.Chapters] returns chapters in spine order. Chapters that are missing,
// unreadable or larger than [Options.MaxChapterSizeBytes] are skipped and
// listed by [Book.Omissions]. ePub 3 spine items marked linear="no" are
// omitted unless [WithNonLinearChapters] is set.
//
// # Resources
//
// A [ResourceExtractor] is bound to one archive file. Extracted bytes are
// cached under a byte budget with sliding expiration, and archive reads are
// limited to [Options.MaxConcurrentExtractions] at a time:
//
//	ex, err := epub.NewResourceExtractor("book.epub")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ex.Close()
//	img, err := ex.Extract(ctx, "OEBPS/images/cover.jpg")
//
// Large archives can be read lazily through a memory-mapped
// [StreamingReader]; see [OpenStream].
//
// # Errors
//
// Parse failures are returned as [*ParseError]. Structural errors name the
// missing component ("container.xml", "rootfile", "package document",
// "metadata" or "title") and match [ErrInvalidEPub] with errors.Is.
// Validation returns a [*ValidationError] listing every problem found.
package epub
