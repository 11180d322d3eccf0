package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
	"github.com/samsaffron/gemchat/internal/image"
	"github.com/samsaffron/gemchat/internal/llm"
)

func text(s string) llm.Part    { return llm.TextPart(s, false) }
func thought(s string) llm.Part { return llm.TextPart(s, true) }

func TestRendererStreamsSplicedImage(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, RendererOptions{})

	blob := llm.BlobPart("image/png", []byte("ab"), false)
	snapshots := [][]llm.Part{
		{},
		{text("Look ")},
		{text("Look ![x](http://cdn")},
		{text("Look "), blob, text(" done")},
	}
	for _, snap := range snapshots {
		if err := r.Update(snap); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}
	if got := buf.String(); got != "Look \n▣ [image/png, 2 B]\n done" {
		t.Fatalf("streamed output = %q", got)
	}
	if err := r.Finish(snapshots[len(snapshots)-1]); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	if got := buf.String(); got != "Look \n▣ [image/png, 2 B]\n done\n" {
		t.Errorf("final output = %q", got)
	}
}

func TestRendererKeepsFailedLiteral(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, RendererOptions{})

	final := []llm.Part{text("see ![x](http://h/a.png) ok")}
	r.Update([]llm.Part{text("see ![x](http://h/a")})
	r.Update(final)
	r.Finish(final)

	if got := buf.String(); got != "see ![x](http://h/a.png) ok\n" {
		t.Errorf("output = %q", got)
	}
}

func TestRendererSeparatesThoughts(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, RendererOptions{})

	parts := []llm.Part{thought("planning\nmore"), text("answer")}
	r.Update(parts[:1])
	r.Update(parts)
	r.Finish(parts)

	if got := ansi.Strip(buf.String()); got != "planning\nmore\nanswer\n" {
		t.Errorf("output = %q", got)
	}
}

func TestRendererRestartsReplacedPart(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, RendererOptions{})

	r.Update([]llm.Part{text("a"), text("  ")})
	final := []llm.Part{text("a"), thought("why")}
	r.Update(final)
	r.Finish(final)

	if got := ansi.Strip(buf.String()); got != "a  \nwhy\n" {
		t.Errorf("output = %q", got)
	}
}

func TestRendererMarkdownCommitsWholeParts(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, RendererOptions{Markdown: true, Width: 60})

	parts := []llm.Part{text("# Title\n\nsome **bold** text")}
	r.Update(parts)
	if buf.Len() != 0 {
		t.Fatalf("expected markdown mode to hold the last part, got %q", buf.String())
	}
	r.Finish(parts)

	out := ansi.Strip(buf.String())
	if !strings.Contains(out, "Title") || !strings.Contains(out, "bold") {
		t.Errorf("rendered output missing content: %q", out)
	}
	if strings.Contains(out, "**") {
		t.Errorf("expected markdown emphasis to be rendered, got %q", out)
	}
}

func TestRendererReset(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, RendererOptions{})

	r.Finish([]llm.Part{text("one")})
	r.Reset()
	r.Finish([]llm.Part{text("two")})

	if got := buf.String(); got != "one\ntwo\n" {
		t.Errorf("output = %q", got)
	}
}

func TestStablePrefix(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"wow!", "wow"},
		{"look ![alt](http://h/a", "look "},
		{"look ![", "look "},
		{"done ![a](http://h/a.png) more", "done ![a](http://h/a.png) more"},
		{"![a](http://h/a.png) then ![b](", "![a](http://h/a.png) then "},
	}
	for _, tt := range tests {
		if got := stablePrefix(tt.in); got != tt.want {
			t.Errorf("stablePrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int]string{
		0:               "0 B",
		512:             "512 B",
		1536:            "1.5 KB",
		2 * 1024 * 1024: "2.0 MB",
	}
	for n, want := range tests {
		if got := FormatBytes(n); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestImageCapability(t *testing.T) {
	if got := ImageCapability("kitty", false); got != image.CapNone {
		t.Errorf("non-tty output got %v", got)
	}
	if got := ImageCapability("sixel", true); got != image.CapSixel {
		t.Errorf("sixel setting got %v", got)
	}
	if got := ImageCapability("none", true); got != image.CapNone {
		t.Errorf("none setting got %v", got)
	}
}

func TestTurnStats(t *testing.T) {
	s := NewTurnStats()
	s.Snapshot()
	s.Snapshot()
	s.Finalize([]llm.Part{
		thought("hmm"),
		text("hi"),
		llm.BlobPart("image/png", make([]byte, 2048), false),
	})

	if s.Parts != 3 || s.Images != 1 || s.Thoughts != 1 || s.Bytes != 2048 {
		t.Fatalf("unexpected stats %+v", s)
	}
	got := s.Render()
	for _, want := range []string{"3 parts", "1 thoughts", "1 images (2.0 KB)", "2 updates"} {
		if !strings.Contains(got, want) {
			t.Errorf("Render() = %q, missing %q", got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello world", 8); got != "hello..." {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("héllo", 10); got != "héllo" {
		t.Errorf("Truncate = %q", got)
	}
}
