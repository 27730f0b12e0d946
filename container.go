package epub

import (
	"bytes"
	"encoding/xml"
	"strings"

	"golang.org/x/net/html/charset"
)

// containerXML models the META-INF/container.xml file used to locate the
// package document.
type containerXML struct {
	XMLName   xml.Name   `xml:"container"`
	RootFiles []rootFile `xml:"rootfiles>rootfile"`
}

// rootFile represents a single <rootfile> element inside container.xml.
type rootFile struct {
	FullPath  string `xml:"full-path,attr"`
	MediaType string `xml:"media-type,attr"`
}

const (
	// containerPath is the well-known location of container.xml in an ePub archive.
	containerPath = "META-INF/container.xml"

	packageMediaType = "application/oebps-package+xml"

	// Component names reported by structural errors.
	componentContainer = "container.xml"
	componentRootfile  = "rootfile"
	componentPackage   = "package document"
	componentMetadata  = "metadata"
	componentTitle     = "title"
)

// locateRootfile reads container.xml and returns the package document path.
// A rootfile with the OPF media type wins; otherwise the first non-empty
// full-path is used.
func locateRootfile(a *archive) (string, error) {
	f := a.find(containerPath)
	if f == nil {
		return "", structuralError(componentContainer, containerPath)
	}

	data, err := readZipFile(f)
	if err != nil {
		return "", parsingFailed("read container.xml", err)
	}

	var c containerXML
	if err := decodeXML(data, &c); err != nil {
		return "", parsingFailed("parse container.xml", err)
	}

	var fallbackPath string
	for _, rf := range c.RootFiles {
		fullPath := strings.TrimSpace(rf.FullPath)
		if fullPath == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(rf.MediaType), packageMediaType) {
			return fullPath, nil
		}
		if fallbackPath == "" {
			fallbackPath = fullPath
		}
	}

	if fallbackPath == "" {
		return "", structuralError(componentRootfile, containerPath)
	}
	return fallbackPath, nil
}

// findOPFCandidates lists archive entries ending in ".opf". It is only used
// to enrich validation problems; parsing never guesses the package path.
func findOPFCandidates(a *archive) []string {
	var out []string
	for _, f := range a.files() {
		if strings.HasSuffix(strings.ToLower(f.Name), ".opf") {
			out = append(out, f.Name)
		}
	}
	return out
}

// decodeXML unmarshals an XML document after stripping a BOM and rewriting
// HTML named entities. Non-UTF-8 declared encodings are transcoded.
func decodeXML(data []byte, v any) error {
	data = preprocessHTMLEntities(stripBOM(data))
	d := xml.NewDecoder(bytes.NewReader(data))
	d.CharsetReader = charset.NewReaderLabel
	d.Strict = false
	return d.Decode(v)
}
