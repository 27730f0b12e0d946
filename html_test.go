package epub

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// preprocessHTMLEntities tests
// ---------------------------------------------------------------------------

func TestPreprocessHTMLEntities_BasicReplacements(t *testing.T) {
	input := []byte(`<title>Hello&nbsp;World &mdash; An&hellip; Introduction</title>`)
	got := preprocessHTMLEntities(input)
	want := `<title>Hello&#160;World &#8212; An&#8230; Introduction</title>`
	if string(got) != want {
		t.Errorf("preprocessHTMLEntities():\n got: %s\nwant: %s", got, want)
	}
}

func TestPreprocessHTMLEntities_QuotationMarks(t *testing.T) {
	input := []byte(`&ldquo;Hello&rdquo; &lsquo;World&rsquo;`)
	got := preprocessHTMLEntities(input)
	want := `&#8220;Hello&#8221; &#8216;World&#8217;`
	if string(got) != want {
		t.Errorf("preprocessHTMLEntities():\n got: %s\nwant: %s", got, want)
	}
}

func TestPreprocessHTMLEntities_Symbols(t *testing.T) {
	input := []byte(`&copy; 2024 &reg; Company&trade; &bull; Item &middot; Sub`)
	got := preprocessHTMLEntities(input)
	want := `&#169; 2024 &#174; Company&#8482; &#8226; Item &#183; Sub`
	if string(got) != want {
		t.Errorf("preprocessHTMLEntities():\n got: %s\nwant: %s", got, want)
	}
}

func TestPreprocessHTMLEntities_AccentedChars(t *testing.T) {
	input := []byte(`caf&eacute; na&iuml;ve r&eacute;sum&eacute;`)
	got := preprocessHTMLEntities(input)
	want := `caf&#233; na&#239;ve r&#233;sum&#233;`
	if string(got) != want {
		t.Errorf("preprocessHTMLEntities():\n got: %s\nwant: %s", got, want)
	}
}

func TestPreprocessHTMLEntities_PreservesXMLEntities(t *testing.T) {
	// &amp;, &lt;, &gt;, &quot;, &apos; are valid XML entities and must be preserved.
	input := []byte(`&amp; &lt; &gt; &quot; &apos;`)
	got := preprocessHTMLEntities(input)
	if string(got) != string(input) {
		t.Errorf("XML entities should be preserved:\n got: %s\nwant: %s", got, input)
	}
}

func TestPreprocessHTMLEntities_NoEntities(t *testing.T) {
	input := []byte(`<p>Plain text with no entities</p>`)
	got := preprocessHTMLEntities(input)
	if string(got) != string(input) {
		t.Errorf("Text without entities should be unchanged:\n got: %s\nwant: %s", got, input)
	}
}

func TestPreprocessHTMLEntities_Dashes(t *testing.T) {
	input := []byte(`2020&ndash;2024 &mdash; a range`)
	got := preprocessHTMLEntities(input)
	want := `2020&#8211;2024 &#8212; a range`
	if string(got) != want {
		t.Errorf("preprocessHTMLEntities():\n got: %s\nwant: %s", got, want)
	}
}

// ---------------------------------------------------------------------------
// extractText tests
// ---------------------------------------------------------------------------

func TestExtractText_SimpleParagraphs(t *testing.T) {
	input := []byte(`<html><body><p>First paragraph.</p><p>Second paragraph.</p></body></html>`)
	got, err := extractText(input)
	if err != nil {
		t.Fatalf("extractText() error: %v", err)
	}
	want := "First paragraph.\nSecond paragraph."
	if got != want {
		t.Errorf("extractText():\n got: %q\nwant: %q", got, want)
	}
}

func TestExtractText_LineBreaks(t *testing.T) {
	input := []byte(`<html><body><p>Line one<br/>Line two<br>Line three</p></body></html>`)
	got, err := extractText(input)
	if err != nil {
		t.Fatalf("extractText() error: %v", err)
	}
	want := "Line one\nLine two\nLine three"
	if got != want {
		t.Errorf("extractText():\n got: %q\nwant: %q", got, want)
	}
}

func TestExtractText_Headings(t *testing.T) {
	input := []byte(`<html><body><h1>Title</h1><p>Content</p><h2>Subtitle</h2><p>More</p></body></html>`)
	got, err := extractText(input)
	if err != nil {
		t.Fatalf("extractText() error: %v", err)
	}
	want := "Title\nContent\nSubtitle\nMore"
	if got != want {
		t.Errorf("extractText():\n got: %q\nwant: %q", got, want)
	}
}

func TestExtractText_SkipScriptAndStyle(t *testing.T) {
	input := []byte(`<html>
<head><style>body { color: red; }</style></head>
<body>
<p>Visible text</p>
<script>alert("hidden");</script>
<p>Also visible</p>
</body></html>`)
	got, err := extractText(input)
	if err != nil {
		t.Fatalf("extractText() error: %v", err)
	}
	if strings.Contains(got, "alert") {
		t.Errorf("script content should be skipped, got: %q", got)
	}
	if strings.Contains(got, "color") {
		t.Errorf("style content should be skipped, got: %q", got)
	}
	if !strings.Contains(got, "Visible text") || !strings.Contains(got, "Also visible") {
		t.Errorf("visible text should be present, got: %q", got)
	}
}

func TestExtractText_SelfClosingScriptAndStyle(t *testing.T) {
	input := []byte(`<html><body><p>Before</p><script/><style/><p>After</p></body></html>`)
	got, err := extractText(input)
	if err != nil {
		t.Fatalf("extractText() error: %v", err)
	}
	want := "Before\nAfter"
	if got != want {
		t.Errorf("extractText():\n got: %q\nwant: %q", got, want)
	}
}

func TestExtractText_DivAndList(t *testing.T) {
	input := []byte(`<html><body><div>Block one</div><div>Block two</div><ul><li>Item A</li><li>Item B</li></ul></body></html>`)
	got, err := extractText(input)
	if err != nil {
		t.Fatalf("extractText() error: %v", err)
	}
	want := "Block one\nBlock two\nItem A\nItem B"
	if got != want {
		t.Errorf("extractText():\n got: %q\nwant: %q", got, want)
	}
}

func TestExtractText_EmptyInput(t *testing.T) {
	got, err := extractText([]byte(""))
	if err != nil {
		t.Fatalf("extractText() error: %v", err)
	}
	if got != "" {
		t.Errorf("extractText(empty) = %q; want empty", got)
	}
}

func TestExtractText_InlineElements(t *testing.T) {
	input := []byte(`<html><body><p>This is <b>bold</b> and <i>italic</i> text.</p></body></html>`)
	got, err := extractText(input)
	if err != nil {
		t.Fatalf("extractText() error: %v", err)
	}
	want := "This is bold and italic text."
	if got != want {
		t.Errorf("extractText():\n got: %q\nwant: %q", got, want)
	}
}


// ---------------------------------------------------------------------------
// chapterTitle tests
// ---------------------------------------------------------------------------

func TestChapterTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		n     int
		want  string
	}{
		{"title element", `<html><head><title>  The   Beginning </title></head><body><h1>Ignored</h1></body></html>`, 1, "The Beginning"},
		{"empty title falls back to h1", `<html><head><title> </title></head><body><h1>Part <em>One</em></h1></body></html>`, 1, "Part One"},
		{"first h1 only", `<html><body><h1>First</h1><h1>Second</h1></body></html>`, 1, "First"},
		{"numbered fallback", `<html><body><p>No heading here.</p></body></html>`, 3, "Chapter 3"},
		{"empty document", ``, 7, "Chapter 7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := chapterTitle([]byte(tt.input), tt.n)
			if got != tt.want {
				t.Errorf("chapterTitle() = %q; want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// findFirstImageInHTML tests
// ---------------------------------------------------------------------------

func TestFindFirstImageInHTML(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"img src", `<html><body><p>x</p><img src="../images/cover.jpg"/></body></html>`, "OEBPS/images/cover.jpg"},
		{"svg image xlink", `<svg><image xlink:href="cover.png" width="10"/></svg>`, "OEBPS/text/cover.png"},
		{"first wins", `<img src="a.png"/><img src="b.png"/>`, "OEBPS/text/a.png"},
		{"img without src", `<img alt="none"/><img src="b.png"/>`, "OEBPS/text/b.png"},
		{"no image", `<html><body><p>text</p></body></html>`, ""},
		{"escaping path", `<img src="../../../x.png"/>`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := findFirstImageInHTML([]byte(tt.input), "OEBPS/text/cover.xhtml")
			if got != tt.want {
				t.Errorf("findFirstImageInHTML() = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestPreprocessHTMLEntities_AnyNamedEntity(t *testing.T) {
	tests := map[string]string{
		`&alpha;&Omega;`:   `&#945;&#937;`,
		`&NBSP;&Mdash;`:    `&#160;&#8212;`,
		`&unknownthing;`:   `&unknownthing;`,
		`&notit; &not;`:    `&notit; &#172;`,
		`&Eacute;&eacute;`: `&#201;&#233;`,
	}
	for in, want := range tests {
		if got := string(preprocessHTMLEntities([]byte(in))); got != want {
			t.Errorf("preprocessHTMLEntities(%q) = %q, want %q", in, got, want)
		}
	}
}
