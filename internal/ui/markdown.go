package ui

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

// rendererCache provides width-keyed caching of glamour renderers.
// Creating a renderer is expensive; caching by width avoids recreation.
var rendererCache sync.Map // map[int]*glamour.TermRenderer

// getRenderer returns a cached renderer for the given width, creating one if needed.
func getRenderer(width int) (*glamour.TermRenderer, error) {
	if cached, ok := rendererCache.Load(width); ok {
		return cached.(*glamour.TermRenderer), nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStyles(GlamourStyleFromTheme(DefaultTheme())),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}

	// Race-safe: if another goroutine stored first, ours is discarded
	actual, _ := rendererCache.LoadOrStore(width, renderer)
	return actual.(*glamour.TermRenderer), nil
}

// RenderMarkdown renders a text part with glamour. On error the content is
// returned unchanged.
func RenderMarkdown(content string, width int) string {
	if strings.TrimSpace(content) == "" {
		return content
	}

	renderer, err := getRenderer(width)
	if err != nil {
		return content
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(rendered, "\n")
}
