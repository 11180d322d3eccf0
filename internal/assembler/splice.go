package assembler

import (
	"strings"

	"github.com/samsaffron/gemchat/internal/image"
	"github.com/samsaffron/gemchat/internal/llm"
)

// expandPart returns the parts that replace src once the text from offset
// onward has been parsed and its references resolved. results is aligned
// with parsed.Refs().
//
// Text before offset and plain segments coalesce into the preceding text part.
// Each resolved reference becomes a binary part; an unresolved one puts its
// literal markup back into the text so nothing is lost. Whitespace-only text
// that would stand alone as a part is dropped, except for the trailing run
// when keepTrailingBlank is set (streaming keeps it so later text can join it).
//
// trailing is the number of bytes at the end of the last returned part that
// came from the text after the final reference.
func expandPart(src llm.Part, offset int, parsed image.ParsedText, results []*image.ImageResult, keepTrailingBlank bool) (out []llm.Part, trailing int) {
	var pendingBlank string

	appendText := func(text string) {
		if n := len(out); n > 0 && out[n-1].IsText() {
			out[n-1].Text += text
			return
		}
		out = append(out, llm.Part{Text: text, Thought: src.Thought})
	}
	addText := func(text string) {
		if text == "" {
			return
		}
		tailIsText := len(out) > 0 && out[len(out)-1].IsText()
		if !tailIsText && strings.TrimSpace(text) == "" {
			pendingBlank += text
			return
		}
		appendText(pendingBlank + text)
		pendingBlank = ""
	}

	addText(src.Text[:offset])

	ri := 0
	for _, seg := range parsed.Segments {
		if seg.Ref == nil {
			addText(seg.Text)
			continue
		}
		var res *image.ImageResult
		if ri < len(results) {
			res = results[ri]
		}
		ri++
		if res == nil {
			appendText(pendingBlank + seg.Ref.Raw)
			pendingBlank = ""
			continue
		}
		pendingBlank = ""
		out = append(out, llm.Part{
			InlineData: &llm.Blob{MimeType: res.MimeType, Data: res.Data},
			Thought:    src.Thought,
		})
	}

	if pendingBlank != "" && keepTrailingBlank {
		out = append(out, llm.Part{Text: pendingBlank, Thought: src.Thought})
	}

	if n := len(out); n > 0 {
		if len(src.ThoughtSig) > 0 {
			out[n-1].ThoughtSig = src.ThoughtSig
		}
		if last := out[n-1]; last.IsText() {
			if t := parsed.Trailing(); t != "" && strings.HasSuffix(last.Text, t) {
				trailing = len(t)
			}
		}
	}
	return out, trailing
}

func isBlankText(p llm.Part) bool {
	return p.IsText() && strings.TrimSpace(p.Text) == ""
}
