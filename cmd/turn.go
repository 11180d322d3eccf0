package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/samsaffron/gemchat/internal/assembler"
	"github.com/samsaffron/gemchat/internal/config"
	"github.com/samsaffron/gemchat/internal/image"
	"github.com/samsaffron/gemchat/internal/llm"
	"github.com/samsaffron/gemchat/internal/ui"
)

// newAssembler builds the assembler for cfg. Image resolution is off when
// disabled in config or by flag.
func newAssembler(cfg *config.Config, resolve bool) *assembler.Assembler {
	opts := assembler.Options{
		ResolveImages: resolve && cfg.CDN.Enabled,
		Concurrency:   cfg.CDN.Concurrency,
		Timeout:       cfg.CDN.Timeout(),
		Logger:        slog.Default(),
	}
	if !opts.ResolveImages {
		return assembler.New(nil, opts)
	}
	fetcher := image.NewFetcher(image.FetcherConfig{
		AllowedHosts: cfg.CDN.AllowedHosts,
		MaxBytes:     cfg.CDN.MaxBytes,
		Cache:        image.NewCache(cfg.CDN.CacheSize),
		Logger:       slog.Default(),
	})
	return assembler.New(fetcher, opts)
}

// newRenderer writes to stdout, with markdown and inline images only when
// stdout is a terminal.
func newRenderer(cfg *config.Config) *ui.Renderer {
	tty := ui.IsTerminal(os.Stdout)
	return ui.NewRenderer(os.Stdout, ui.RendererOptions{
		Markdown: tty,
		Width:    ui.TerminalWidth(os.Stdout),
		Images:   ui.ImageCapability(cfg.Image.Display, tty),
	})
}

// openDebugLogger starts a JSONL debug log when --debug-log is set.
func openDebugLogger(cfg *config.Config, id string) *llm.DebugLogger {
	if !debugLog {
		return nil
	}
	dir := cfg.Debug.LogDir
	if dir == "" {
		dir = config.GetDebugLogDir()
	}
	if err := llm.CleanupOldLogs(dir, 7*24*time.Hour); err != nil {
		slog.Debug("debug log cleanup failed", "dir", dir, "error", err)
	}
	logger, err := llm.NewDebugLogger(dir, id)
	if err != nil {
		warnf("debug log disabled: %v", err)
		return nil
	}
	fmt.Fprintf(os.Stderr, "debug log: %s\n", logger.Path())
	return logger
}

// turnRunner sends one request and renders the assembled response.
type turnRunner struct {
	provider  llm.Provider
	assembler *assembler.Assembler
	renderer  *ui.Renderer
	debug     *llm.DebugLogger
	streaming bool
	system    string
	thinking  bool
}

// turnResult is the outcome of one response. Parts holds whatever was
// assembled, including after an error or interruption.
type turnResult struct {
	Parts    []llm.Part
	Stats    *ui.TurnStats
	Duration time.Duration
}

func (t *turnRunner) run(ctx context.Context, messages []llm.Message) (turnResult, error) {
	res := turnResult{Stats: ui.NewTurnStats()}
	req := llm.Request{
		Messages: messages,
		System:   t.system,
		Thinking: t.thinking,
	}
	t.debug.LogRequest(t.provider.Name(), "", req)

	stream, err := t.provider.Stream(ctx, req)
	if err != nil {
		return res, fmt.Errorf("start response: %w", err)
	}
	stream = llm.WrapDebugStream(t.debug, stream)
	t.renderer.Reset()

	if t.streaming {
		err = t.stream(ctx, stream, &res)
	} else {
		res.Parts, err = t.assembler.Collect(ctx, stream)
	}

	if rerr := t.renderer.Finish(res.Parts); rerr != nil && err == nil {
		err = rerr
	}
	res.Stats.Finalize(res.Parts)
	res.Duration = res.Stats.Duration
	return res, err
}

func (t *turnRunner) stream(ctx context.Context, stream llm.FragmentStream, res *turnResult) error {
	for snapshot, err := range t.assembler.Stream(ctx, stream) {
		if err != nil {
			return err
		}
		res.Parts = snapshot
		res.Stats.Snapshot()
		if err := t.renderer.Update(snapshot); err != nil {
			return err
		}
	}
	return nil
}

// saveImages writes every binary part to dir and reports the saved paths.
func saveImages(w io.Writer, parts []llm.Part, dir, hint string) {
	styles := ui.NewStyles(w)
	n := 0
	for _, p := range parts {
		if !p.IsBlob() {
			continue
		}
		n++
		path, err := image.SaveImage(p.InlineData.Data, p.InlineData.MimeType, dir, fmt.Sprintf("%d %s", n, hint))
		if err != nil {
			warnf("save image: %v", err)
			continue
		}
		fmt.Fprintln(w, styles.Image.Render(ui.ImageIcon+" saved "+path))
	}
}
