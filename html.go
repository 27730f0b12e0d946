package epub

import (
	"bytes"
	"errors"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// namedEntityPattern matches a named character reference.
var namedEntityPattern = regexp.MustCompile(`&([A-Za-z][A-Za-z0-9]{0,31});`)

// xmlEntities are understood by encoding/xml and stay as they are.
var xmlEntities = map[string]bool{"amp": true, "lt": true, "gt": true, "quot": true, "apos": true}

// preprocessHTMLEntities rewrites HTML named entities as numeric character
// references so package and NCX documents parse as XML. Names that are not
// HTML entities in their own case are retried in lower case, since some
// producers write &NBSP; or &Mdash;. Unknown names are left alone.
func preprocessHTMLEntities(data []byte) []byte {
	if bytes.IndexByte(data, '&') < 0 {
		return data
	}
	return namedEntityPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := string(match[1 : len(match)-1])
		if xmlEntities[name] {
			return match
		}
		decoded, ok := decodeEntity(name)
		if !ok {
			if decoded, ok = decodeEntity(strings.ToLower(name)); !ok {
				return match
			}
		}
		var out []byte
		for _, r := range decoded {
			out = append(out, "&#"...)
			out = strconv.AppendInt(out, int64(r), 10)
			out = append(out, ';')
		}
		return out
	})
}

// decodeEntity resolves a full entity name. A decode that leaves the
// trailing ';' matched only a legacy prefix such as &not in &notit;.
func decodeEntity(name string) (string, bool) {
	ref := "&" + name + ";"
	decoded := html.UnescapeString(ref)
	if decoded == ref || (decoded != ";" && strings.HasSuffix(decoded, ";")) {
		return "", false
	}
	return decoded, true
}

// textExtractor accumulates the visible text of an HTML document, one line
// per block element.
type textExtractor struct {
	buf         strings.Builder
	skipDepth   int
	atLineStart bool
}

func isBlockAtom(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Br, atom.Div, atom.Li, atom.Tr, atom.Blockquote, atom.Hr,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return true
	}
	return false
}

func isSkippedAtom(a atom.Atom) bool {
	return a == atom.Script || a == atom.Style
}

func (x *textExtractor) open(a atom.Atom, selfClosing bool) {
	if isSkippedAtom(a) && !selfClosing {
		x.skipDepth++
		return
	}
	if x.skipDepth == 0 && isBlockAtom(a) && x.buf.Len() > 0 && !x.atLineStart {
		x.buf.WriteByte('\n')
		x.atLineStart = true
	}
}

func (x *textExtractor) close(a atom.Atom) {
	if isSkippedAtom(a) && x.skipDepth > 0 {
		x.skipDepth--
	}
}

func (x *textExtractor) text(raw []byte) {
	if x.skipDepth > 0 {
		return
	}
	if t := collapseWhitespace(string(raw)); t != "" {
		x.buf.WriteString(t)
		x.atLineStart = false
	}
}

var selfClosingSkipTagPattern = regexp.MustCompile(`(?is)<(script|style)\b([^>]*)/>`)

// normalizeSelfClosingSkipTags expands <script/> and <style/>, which the
// HTML tokenizer would otherwise treat as unclosed raw-text elements.
func normalizeSelfClosingSkipTags(htmlData []byte) []byte {
	if !selfClosingSkipTagPattern.Match(htmlData) {
		return htmlData
	}
	return selfClosingSkipTagPattern.ReplaceAll(htmlData, []byte(`<$1$2></$1>`))
}

// extractText returns the plain text of htmlData. Block elements start a
// new line; script and style content is dropped.
func extractText(htmlData []byte) (string, error) {
	tokenizer := html.NewTokenizer(bytes.NewReader(normalizeSelfClosingSkipTags(htmlData)))
	x := &textExtractor{atLineStart: true}
	tagAtom := func() atom.Atom {
		tn, _ := tokenizer.TagName()
		return atom.Lookup(tn)
	}

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			if err := tokenizer.Err(); !errors.Is(err, io.EOF) {
				return "", err
			}
			return strings.TrimSpace(x.buf.String()), nil
		case html.StartTagToken:
			x.open(tagAtom(), false)
		case html.SelfClosingTagToken:
			x.open(tagAtom(), true)
		case html.EndTagToken:
			x.close(tagAtom())
		case html.TextToken:
			x.text(tokenizer.Text())
		}
	}
}

// collapseWhitespace squeezes ASCII whitespace runs to one space. Leading
// and trailing runs survive as a single space so inline elements stay
// separated; an all-whitespace input yields "".
func collapseWhitespace(s string) string {
	fields := strings.FieldsFunc(s, isWhitespace)
	if len(fields) == 0 {
		return ""
	}
	out := strings.Join(fields, " ")
	if isWhitespace(rune(s[0])) {
		out = " " + out
	}
	if isWhitespace(rune(s[len(s)-1])) {
		out += " "
	}
	return out
}

// isWhitespace excludes U+00A0 so non-breaking spaces survive extraction.
func isWhitespace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// chapterTitle prefers the <title> text, then the first <h1> with nested
// markup flattened, then "Chapter n".
func chapterTitle(htmlData []byte, n int) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(htmlData))
	if err == nil {
		if t := squashSpaces(doc.Find("title").First().Text()); t != "" {
			return t
		}
		if t := squashSpaces(doc.Find("h1").First().Text()); t != "" {
			return t
		}
	}
	return "Chapter " + strconv.Itoa(n)
}

func squashSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// findFirstImageInHTML returns the resolved ZIP-internal path of the first
// <img src> or SVG <image href> in htmlData, or "" if there is none.
// basePath is the ZIP-internal path of the HTML file.
func findFirstImageInHTML(htmlData []byte, basePath string) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(htmlData))
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			if !hasAttr {
				continue
			}
			var want func(string) bool
			switch atom.Lookup(tn) {
			case atom.Img:
				want = func(k string) bool { return k == "src" }
			case atom.Image:
				want = func(k string) bool { return k == "href" || k == "xlink:href" }
			default:
				continue
			}
			for {
				key, val, more := tokenizer.TagAttr()
				if want(string(key)) && len(val) > 0 {
					return resolveRelativePath(basePath, string(val))
				}
				if !more {
					break
				}
			}
		}
	}
}
