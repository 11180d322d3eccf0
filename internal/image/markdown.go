package image

import (
	"regexp"
	"strings"
)

// markdownImageRegex matches the exact ![alt](url) form. The URL may not
// contain whitespace or a closing parenthesis.
var markdownImageRegex = regexp.MustCompile(`!\[([^\]\n]*)\]\(([^)\s]+)\)`)

// Ref is an image reference found in model output.
type Ref struct {
	URL string
	Alt string
	Raw string // literal markup, reinserted when the reference cannot be resolved
}

// Segment is either a run of plain text or a single image reference.
type Segment struct {
	Text string
	Ref  *Ref
}

// ParsedText is the ordered, lossless split of a text buffer.
type ParsedText struct {
	Segments []Segment
}

// ParseImageRefs splits text into plain-text and image-reference segments in a
// single left-to-right pass. Malformed markup stays in the surrounding text.
func ParseImageRefs(text string) ParsedText {
	matches := markdownImageRegex.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		if text == "" {
			return ParsedText{}
		}
		return ParsedText{Segments: []Segment{{Text: text}}}
	}

	segments := make([]Segment, 0, 2*len(matches)+1)
	pos := 0
	for _, m := range matches {
		if m[0] > pos {
			segments = append(segments, Segment{Text: text[pos:m[0]]})
		}
		segments = append(segments, Segment{Ref: &Ref{
			Alt: text[m[2]:m[3]],
			URL: text[m[4]:m[5]],
			Raw: text[m[0]:m[1]],
		}})
		pos = m[1]
	}
	if pos < len(text) {
		segments = append(segments, Segment{Text: text[pos:]})
	}
	return ParsedText{Segments: segments}
}

// HasRefs reports whether at least one complete reference was found.
func (p ParsedText) HasRefs() bool {
	for _, s := range p.Segments {
		if s.Ref != nil {
			return true
		}
	}
	return false
}

// Refs returns the references in textual order.
func (p ParsedText) Refs() []Ref {
	var refs []Ref
	for _, s := range p.Segments {
		if s.Ref != nil {
			refs = append(refs, *s.Ref)
		}
	}
	return refs
}

// TextSegments returns the plain-text segments in order, dropping blank ones.
func (p ParsedText) TextSegments() []string {
	var out []string
	for _, s := range p.Segments {
		if s.Ref == nil && strings.TrimSpace(s.Text) != "" {
			out = append(out, s.Text)
		}
	}
	return out
}

// Trailing returns the plain text after the last reference, or "" when the
// text ends with a reference.
func (p ParsedText) Trailing() string {
	if n := len(p.Segments); n > 0 && p.Segments[n-1].Ref == nil {
		return p.Segments[n-1].Text
	}
	return ""
}

// mayContainRef is a cheap pre-check before running the regex.
func mayContainRef(text string) bool {
	return strings.Contains(text, "![") && strings.Contains(text, ")")
}

// ParseIfComplete parses text only when it could hold a completed reference.
func ParseIfComplete(text string) (ParsedText, bool) {
	if !mayContainRef(text) {
		return ParsedText{}, false
	}
	parsed := ParseImageRefs(text)
	return parsed, parsed.HasRefs()
}
