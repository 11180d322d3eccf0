package ui

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/samsaffron/gemchat/internal/image"
	"github.com/samsaffron/gemchat/internal/llm"
)

// RendererOptions configures a Renderer.
type RendererOptions struct {
	// Markdown renders committed text parts with glamour. When false, text is
	// streamed as it arrives.
	Markdown bool
	Width    int
	// Images selects the inline image protocol; CapNone prints a label only.
	Images image.TerminalImageCapability
}

// Renderer writes successive snapshots of an assembled response to a
// terminal. Every part except the last one of a snapshot is final, so parts
// are written once, when a later part appears. The last text part is streamed
// up to any unfinished image reference, which may still turn into an image.
type Renderer struct {
	out    io.Writer
	styles *Styles
	opts   RendererOptions

	committed   int    // parts fully written
	written     string // prefix of parts[committed].Text already written
	atLineStart bool
	lastThought bool
}

func NewRenderer(out io.Writer, opts RendererOptions) *Renderer {
	if opts.Width <= 0 {
		opts.Width = 80
	}
	return &Renderer{
		out:         out,
		styles:      NewStyles(out),
		opts:        opts,
		atLineStart: true,
	}
}

// Reset prepares the renderer for the next response.
func (r *Renderer) Reset() {
	r.committed = 0
	r.written = ""
	r.lastThought = false
}

// Update renders a streaming snapshot.
func (r *Renderer) Update(parts []llm.Part) error {
	for r.committed < len(parts)-1 {
		if err := r.commit(parts[r.committed]); err != nil {
			return err
		}
	}
	if r.committed < len(parts) && !r.opts.Markdown {
		last := parts[r.committed]
		if last.IsText() {
			return r.streamText(last, stablePrefix(last.Text))
		}
	}
	return nil
}

// Finish renders the final parts and ends the output on a fresh line.
func (r *Renderer) Finish(parts []llm.Part) error {
	for r.committed < len(parts) {
		if err := r.commit(parts[r.committed]); err != nil {
			return err
		}
	}
	if !r.atLineStart {
		return r.write("\n")
	}
	return nil
}

func (r *Renderer) commit(p llm.Part) error {
	var err error
	switch {
	case p.IsBlob():
		err = r.writeImage(p.InlineData)
	case r.opts.Markdown:
		err = r.writeBlock(p)
	default:
		err = r.streamText(p, p.Text)
	}
	r.committed++
	r.written = ""
	return err
}

// streamText writes the part of upto not yet written. A part whose text no
// longer starts with what was written (a dropped blank part was replaced) is
// written from the start.
func (r *Renderer) streamText(p llm.Part, upto string) error {
	if !strings.HasPrefix(upto, r.written) {
		r.written = ""
	}
	chunk := upto[len(r.written):]
	if chunk == "" {
		return nil
	}
	if r.written == "" && p.Thought != r.lastThought && !r.atLineStart {
		if err := r.write("\n"); err != nil {
			return err
		}
	}
	r.lastThought = p.Thought
	r.written = upto

	if p.Thought {
		chunk = renderLines(r.styles.Thought.Render, chunk)
	}
	return r.write(chunk)
}

func (r *Renderer) writeBlock(p llm.Part) error {
	if strings.TrimSpace(p.Text) == "" {
		return nil
	}
	var text string
	if p.Thought {
		text = renderLines(r.styles.Thought.Render, strings.TrimSpace(p.Text))
	} else {
		text = RenderMarkdown(p.Text, r.opts.Width)
	}
	r.lastThought = p.Thought
	if !r.atLineStart {
		if err := r.write("\n"); err != nil {
			return err
		}
	}
	return r.write(text + "\n")
}

func (r *Renderer) writeImage(blob *llm.Blob) error {
	if !r.atLineStart {
		if err := r.write("\n"); err != nil {
			return err
		}
	}
	if r.opts.Images != image.CapNone {
		var buf bytes.Buffer
		if err := image.RenderToWriter(&buf, r.opts.Images, blob.Data); err == nil {
			buf.WriteString("\n")
			return r.write(buf.String())
		}
	}
	return r.write(r.styles.Image.Render(ImageLabel(blob)) + "\n")
}

func (r *Renderer) write(s string) error {
	if s == "" {
		return nil
	}
	if _, err := io.WriteString(r.out, s); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	r.atLineStart = strings.HasSuffix(s, "\n")
	return nil
}

// ImageLabel describes a binary part for terminals that cannot draw it.
func ImageLabel(blob *llm.Blob) string {
	return fmt.Sprintf("%s [%s, %s]", ImageIcon, blob.MimeType, FormatBytes(len(blob.Data)))
}

// FormatBytes formats a byte count for display (e.g., 512 B, 1.5 KB, 2.0 MB).
func FormatBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// stablePrefix returns the leading part of text that cannot change when more
// text arrives: everything before an unfinished image reference.
func stablePrefix(text string) string {
	if strings.HasSuffix(text, "!") {
		text = text[:len(text)-1]
	}
	idx := strings.LastIndex(text, "![")
	if idx < 0 {
		return text
	}
	if image.ParseImageRefs(text[idx:]).HasRefs() {
		return text
	}
	return text[:idx]
}

// renderLines styles each line separately so lipgloss does not pad lines to
// a common width.
func renderLines(render func(...string) string, s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = render(line)
		}
	}
	return strings.Join(lines, "\n")
}

// ImageCapability resolves the image.display setting. "auto" detects the
// terminal's protocol; output that is not a terminal never gets images.
func ImageCapability(setting string, isTTY bool) image.TerminalImageCapability {
	if !isTTY {
		return image.CapNone
	}
	switch strings.ToLower(setting) {
	case "kitty":
		return image.CapKitty
	case "iterm":
		return image.CapITerm
	case "sixel":
		return image.CapSixel
	case "none", "off":
		return image.CapNone
	default:
		return image.DetectCapability()
	}
}
