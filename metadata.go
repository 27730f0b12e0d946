package epub

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
)

// defaultContributorRole is assigned to ePub 3 contributors without a role.
const defaultContributorRole = "Contributor"

// unknownAuthor replaces an empty author list.
var unknownAuthor = Author{Name: "Unknown"}

// refinements maps a subject element id (without "#") to its refining
// properties: subject-id → property → value. The first non-empty value of a
// property wins.
type refinements map[string]map[string]string

// buildRefinements collects <meta refines="#id" property="..."> elements.
func buildRefinements(metas []opfMeta) refinements {
	r := make(refinements)
	for _, m := range metas {
		ref := strings.TrimSpace(m.Refines)
		prop := strings.TrimSpace(m.Property)
		if !strings.HasPrefix(ref, "#") || prop == "" {
			continue
		}
		v := strings.TrimSpace(m.Value)
		if v == "" {
			continue
		}
		id := ref[1:]
		props, ok := r[id]
		if !ok {
			props = make(map[string]string)
			r[id] = props
		}
		if _, seen := props[prop]; !seen {
			props[prop] = v
		}
	}
	return r
}

func (r refinements) get(id, property string) string {
	if id == "" {
		return ""
	}
	return r[id][property]
}

// extractPackageInfo runs ValidateMetadataPresence → ExtractTitles →
// ExtractAuthors → ExtractIdentifiers → ExtractLanguage →
// ExtractCustomMetadata using the rules of dialect d.
func extractPackageInfo(pkg *opfPackage, d Dialect, version Version, log *slog.Logger) (PackageInfo, error) {
	om := pkg.Metadata
	if om == nil {
		return PackageInfo{}, structuralError(componentMetadata, "package/metadata")
	}

	var refs refinements
	if d == DialectEpub3 {
		refs = buildRefinements(om.Metas)
	}

	titles := extractTitles(om.Titles, refs)
	if len(titles) == 0 {
		return PackageInfo{}, structuralError(componentTitle, "metadata/dc:title")
	}

	info := PackageInfo{
		Version:         version,
		Title:           titles[0],
		AlternateTitles: titles[1:],
	}

	switch d {
	case DialectEpub3:
		info.Authors = extractAuthorsEpub3(om.Creators, om.Contributors, refs)
		info.Identifiers = extractIdentifiersEpub3(om.Identifiers, refs)
	default:
		info.Authors = extractAuthorsEpub2(om.Creators)
		info.Identifiers = extractIdentifiersEpub2(om.Identifiers)
	}
	if len(info.Authors) == 0 {
		log.Warn("no authors declared, using placeholder", "author", unknownAuthor.Name)
		info.Authors = []Author{unknownAuthor}
	}

	info.Identifiers = primaryIdentifierFirst(info.Identifiers, pkg.UniqueIdentifier)
	info.Language = extractLanguage(om.Languages, log)
	info.Metadata = extractMetadata(pkg, d)
	return info, nil
}

// extractTitles extracts titles from dc:title elements.
// For ePub 3, titles are ordered by display-seq from refines metadata.
func extractTitles(titles []opfDCElement, refs refinements) []string {
	if len(titles) == 0 {
		return nil
	}

	type titleEntry struct {
		value string
		seq   int
		index int // original order
	}

	entries := make([]titleEntry, 0, len(titles))
	hasSeq := false

	for i, t := range titles {
		v := strings.TrimSpace(t.Value)
		if v == "" {
			continue
		}
		e := titleEntry{value: v, index: i}
		if seqStr := refs.get(t.ID, "display-seq"); seqStr != "" {
			if n, err := strconv.Atoi(seqStr); err == nil {
				e.seq = n
				hasSeq = true
			}
		}
		entries = append(entries, e)
	}

	// Sort by display-seq if any title has one; otherwise preserve original order.
	if hasSeq {
		sort.SliceStable(entries, func(i, j int) bool {
			// Titles without seq (0) go after titles with seq.
			si, sj := entries[i].seq, entries[j].seq
			if si == 0 && sj == 0 {
				return entries[i].index < entries[j].index
			}
			if si == 0 {
				return false
			}
			if sj == 0 {
				return true
			}
			return si < sj
		})
	}

	result := make([]string, len(entries))
	for i, e := range entries {
		result[i] = e.value
	}
	return result
}

// extractAuthorsEpub2 reads role and file-as from opf attributes.
func extractAuthorsEpub2(creators []opfDCElement) []Author {
	authors := make([]Author, 0, len(creators))
	for _, c := range creators {
		name := strings.TrimSpace(c.Value)
		if name == "" {
			continue
		}
		authors = append(authors, Author{
			Name:   name,
			FileAs: strings.TrimSpace(c.FileAs),
			Role:   strings.TrimSpace(c.Role),
		})
	}
	return authors
}

// extractAuthorsEpub3 resolves role and file-as through refinements, then
// appends contributors with the default role when none is given.
func extractAuthorsEpub3(creators, contributors []opfDCElement, refs refinements) []Author {
	authors := make([]Author, 0, len(creators)+len(contributors))
	add := func(elems []opfDCElement, defaultRole string) {
		for _, c := range elems {
			name := strings.TrimSpace(c.Value)
			if name == "" {
				continue
			}
			a := Author{
				Name:   name,
				FileAs: refs.get(c.ID, "file-as"),
				Role:   refs.get(c.ID, "role"),
			}
			// Tolerate ePub 2 style attributes in ePub 3 documents.
			if a.FileAs == "" {
				a.FileAs = strings.TrimSpace(c.FileAs)
			}
			if a.Role == "" {
				a.Role = strings.TrimSpace(c.Role)
			}
			if a.Role == "" {
				a.Role = defaultRole
			}
			authors = append(authors, a)
		}
	}
	add(creators, "")
	add(contributors, defaultContributorRole)
	return authors
}

func extractIdentifiersEpub2(ids []opfDCElement) []Identifier {
	out := make([]Identifier, 0, len(ids))
	for _, id := range ids {
		v := strings.TrimSpace(id.Value)
		if v == "" {
			continue
		}
		out = append(out, Identifier{Value: v, Scheme: strings.TrimSpace(id.Scheme), ID: id.ID})
	}
	return out
}

func extractIdentifiersEpub3(ids []opfDCElement, refs refinements) []Identifier {
	out := make([]Identifier, 0, len(ids))
	for _, id := range ids {
		v := strings.TrimSpace(id.Value)
		if v == "" {
			continue
		}
		scheme := refs.get(id.ID, "identifier-type")
		if scheme == "" {
			scheme = strings.TrimSpace(id.Scheme)
		}
		if scheme == "" {
			scheme = schemeFromURN(v)
		}
		out = append(out, Identifier{Value: v, Scheme: scheme, ID: id.ID})
	}
	return out
}

// schemeFromURN infers a scheme from "urn:isbn:..." style values.
func schemeFromURN(v string) string {
	lower := strings.ToLower(v)
	switch {
	case strings.HasPrefix(lower, "urn:isbn:"):
		return "ISBN"
	case strings.HasPrefix(lower, "urn:uuid:"):
		return "UUID"
	case strings.HasPrefix(lower, "urn:doi:"), strings.HasPrefix(lower, "doi:"):
		return "DOI"
	default:
		return ""
	}
}

// primaryIdentifierFirst moves the identifier named by the package
// unique-identifier attribute to the front.
func primaryIdentifierFirst(ids []Identifier, uniqueID string) []Identifier {
	uniqueID = strings.TrimSpace(uniqueID)
	if uniqueID == "" {
		return ids
	}
	for i, id := range ids {
		if id.ID == uniqueID {
			if i > 0 {
				primary := ids[i]
				copy(ids[1:i+1], ids[:i])
				ids[0] = primary
			}
			break
		}
	}
	return ids
}

// extractLanguage returns the first usable dc:language.
func extractLanguage(langs []opfDCElement, log *slog.Logger) Language {
	for _, l := range langs {
		lang, err := NewLanguage(l.Value)
		if err == nil {
			return lang
		}
		log.Warn("ignoring invalid language", "value", l.Value, "error", err)
	}
	log.Info("no language declared", "language", UndeterminedLanguage.Code())
	return UndeterminedLanguage
}

// extractMetadata collects the optional Dublin Core fields and the
// custom-metadata map.
func extractMetadata(pkg *opfPackage, d Dialect) Metadata {
	om := pkg.Metadata
	md := Metadata{
		Version:     pkg.Version,
		Publisher:   firstNonEmpty(om.Publishers),
		Date:        firstNonEmpty(om.Dates),
		Description: firstNonEmpty(om.Descriptions),
		Rights:      firstNonEmpty(om.Rights),
		Source:      firstNonEmpty(om.Sources),
		Coverage:    firstNonEmpty(om.Coverages),
	}
	for _, s := range om.Subjects {
		if v := strings.TrimSpace(s.Value); v != "" {
			md.Subjects = append(md.Subjects, v)
		}
	}

	custom := make(map[string]string)
	for _, m := range om.Metas {
		if name := strings.TrimSpace(m.Name); name != "" {
			if _, seen := custom[name]; !seen {
				custom[name] = m.Content
			}
			continue
		}
		// Refining metas describe another element, not the publication.
		if d == DialectEpub3 && m.Property != "" && m.Refines == "" {
			prop := strings.TrimSpace(m.Property)
			if _, seen := custom[prop]; !seen {
				custom[prop] = strings.TrimSpace(m.Value)
			}
		}
	}
	if len(custom) > 0 {
		md.Custom = custom
	}
	return md
}

func firstNonEmpty(elems []opfDCElement) string {
	for _, e := range elems {
		if v := strings.TrimSpace(e.Value); v != "" {
			return v
		}
	}
	return ""
}
