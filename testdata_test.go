package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

// validContainerXML is a well-formed META-INF/container.xml pointing to an OPF.
const validContainerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

// buildTestEPubBytes writes files into a ZIP archive and returns its bytes.
// "mimetype" is stored first and uncompressed; the remaining entries follow
// in lexical order so archives are reproducible.
func buildTestEPubBytes(t testing.TB, files map[string]string) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	if mt, ok := files["mimetype"]; ok {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
		if err != nil {
			t.Fatalf("buildTestEPubBytes: create mimetype: %v", err)
		}
		if _, err := io.WriteString(fw, mt); err != nil {
			t.Fatalf("buildTestEPubBytes: write mimetype: %v", err)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(files)) {
		if name == "mimetype" {
			continue
		}
		fw, err := zw.Create(name)
		if err != nil {
			t.Fatalf("buildTestEPubBytes: create %s: %v", name, err)
		}
		if _, err := io.WriteString(fw, files[name]); err != nil {
			t.Fatalf("buildTestEPubBytes: write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("buildTestEPubBytes: close writer: %v", err)
	}
	return buf.Bytes()
}

// buildTestZip returns a *zip.Reader over an in-memory archive of files.
func buildTestZip(t testing.TB, files map[string]string) *zip.Reader {
	t.Helper()
	data := buildTestEPubBytes(t, files)
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("buildTestZip: open reader: %v", err)
	}
	return r
}

// buildTestArchive returns the indexed archive view used by the parsers.
func buildTestArchive(t testing.TB, files map[string]string) *archive {
	t.Helper()
	return newArchive(buildTestZip(t, files))
}

// buildTestEPubFile writes the archive to a temporary file and returns its path.
func buildTestEPubFile(t testing.TB, files map[string]string) string {
	t.Helper()
	fp := filepath.Join(t.TempDir(), "test.epub")
	if err := os.WriteFile(fp, buildTestEPubBytes(t, files), 0o644); err != nil {
		t.Fatalf("buildTestEPubFile: write file: %v", err)
	}
	return fp
}

// readerFor returns an io.ReaderAt and size over the archive of files.
func readerFor(t testing.TB, files map[string]string) (*bytes.Reader, int64) {
	t.Helper()
	data := buildTestEPubBytes(t, files)
	return bytes.NewReader(data), int64(len(data))
}

// chapterXHTML renders a small XHTML document.
func chapterXHTML(title, body string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml"><head><title>%s</title></head>
<body>%s</body></html>`, title, body)
}

// withPackage returns a container pointing at OEBPS/content.opf with opf as
// its package document, plus extra entries.
func withPackage(opf string, extra map[string]string) map[string]string {
	files := map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": validContainerXML,
		"OEBPS/content.opf":      opf,
	}
	maps.Copy(files, extra)
	return files
}

const epub2OPF = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0" unique-identifier="BookId">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf">
    <dc:title>A Tale of Two Cities</dc:title>
    <dc:creator opf:role="aut" opf:file-as="Dickens, Charles">Charles Dickens</dc:creator>
    <dc:language>en</dc:language>
    <dc:identifier opf:scheme="UUID">urn:uuid:1b0e6f3a-0000-4000-8000-000000000001</dc:identifier>
    <dc:identifier id="BookId" opf:scheme="ISBN">9780141439600</dc:identifier>
    <dc:publisher>Penguin</dc:publisher>
    <dc:subject>Fiction</dc:subject>
    <dc:subject>History</dc:subject>
    <meta name="cover" content="cover-img"/>
  </metadata>
  <manifest>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
    <item id="ch1" href="text/ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch2" href="text/ch2.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch3" href="text/ch3.xhtml" media-type="application/xhtml+xml"/>
    <item id="css" href="styles/main.css" media-type="text/css"/>
    <item id="cover-img" href="images/cover.jpg" media-type="image/jpeg"/>
  </manifest>
  <spine toc="ncx">
    <itemref idref="ch1"/>
    <itemref idref="ch2"/>
    <itemref idref="ch3"/>
  </spine>
  <guide>
    <reference type="text" title="Start" href="text/ch1.xhtml"/>
  </guide>
</package>`

const epub2NCX = `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <navMap>
    <navPoint id="np1" playOrder="1">
      <navLabel><text>Book the First</text></navLabel>
      <content src="text/ch1.xhtml"/>
      <navPoint id="np2" playOrder="2">
        <navLabel><text>The Period</text></navLabel>
        <content src="text/ch1.xhtml#period"/>
      </navPoint>
    </navPoint>
    <navPoint id="np3" playOrder="3">
      <navLabel><text>Book the Second</text></navLabel>
      <content src="text/ch3.xhtml"/>
    </navPoint>
  </navMap>
</ncx>`

// epub2Files is a complete ePub 2 book with three chapters, an NCX, a
// stylesheet and a cover declared through <meta name="cover">.
func epub2Files() map[string]string {
	return withPackage(epub2OPF, map[string]string{
		"OEBPS/toc.ncx":          epub2NCX,
		"OEBPS/text/ch1.xhtml":   chapterXHTML("Chapter I", `<h1>The Period</h1><p>It was the best of times.</p>`),
		"OEBPS/text/ch2.xhtml":   chapterXHTML("Chapter II", `<p>The Mail.</p>`),
		"OEBPS/text/ch3.xhtml":   chapterXHTML("Chapter III", `<p>The Night Shadows.</p>`),
		"OEBPS/styles/main.css":  "body { margin: 0; }",
		"OEBPS/images/cover.jpg": "\xFF\xD8\xFFcover-bytes",
	})
}

const epub3OPF = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="pub-id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title id="t1">Subtitle Second</dc:title>
    <dc:title id="t2">Main Title</dc:title>
    <meta refines="#t1" property="display-seq">2</meta>
    <meta refines="#t2" property="display-seq">1</meta>
    <dc:creator id="c1">Ursula K. Le Guin</dc:creator>
    <meta refines="#c1" property="role" scheme="marc:relators">aut</meta>
    <meta refines="#c1" property="file-as">Le Guin, Ursula K.</meta>
    <dc:contributor id="c2">Some Editor</dc:contributor>
    <dc:identifier id="pub-id">urn:isbn:9780441478125</dc:identifier>
    <dc:language>zh-hans</dc:language>
    <meta property="dcterms:modified">2024-01-01T00:00:00Z</meta>
  </metadata>
  <manifest>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
    <item id="intro" href="intro.xhtml" media-type="application/xhtml+xml"/>
    <item id="notes" href="notes.xhtml" media-type="application/xhtml+xml"/>
    <item id="body" href="body.xhtml" media-type="application/xhtml+xml"/>
    <item id="cover" href="img/cover.png" media-type="image/png" properties="cover-image"/>
    <item id="font" href="fonts/serif.otf" media-type="font/otf"/>
  </manifest>
  <spine>
    <itemref idref="nav"/>
    <itemref idref="intro"/>
    <itemref idref="notes" linear="no"/>
    <itemref idref="body"/>
  </spine>
</package>`

const epub3Nav = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>Contents</title></head>
<body>
  <nav epub:type="toc">
    <ol>
      <li><a href="intro.xhtml">Introduction</a></li>
      <li><span>Part One</span>
        <ol>
          <li><a href="body.xhtml#s1">Section 1</a></li>
        </ol>
      </li>
    </ol>
  </nav>
  <nav epub:type="landmarks">
    <ol>
      <li><a epub:type="bodymatter" href="body.xhtml">Start Reading</a></li>
    </ol>
  </nav>
</body></html>`

// epub3Files is a complete ePub 3 book with a navigation document, a
// non-linear spine item and a cover-image property.
func epub3Files() map[string]string {
	return withPackage(epub3OPF, map[string]string{
		"OEBPS/nav.xhtml":       epub3Nav,
		"OEBPS/intro.xhtml":     chapterXHTML("Introduction", `<p>Hello.</p>`),
		"OEBPS/notes.xhtml":     chapterXHTML("Notes", `<p>Aside.</p>`),
		"OEBPS/body.xhtml":      chapterXHTML("", `<h1>The <em>Body</em></h1><p id="s1">Text.</p>`),
		"OEBPS/img/cover.png":   "\x89PNGcover",
		"OEBPS/fonts/serif.otf": "OTTO",
	})
}
