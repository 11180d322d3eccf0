// Package assembler turns a provider's fragment stream into an ordered list
// of content parts, inlining images referenced by markdown in the text.
package assembler

import (
	"context"
	"log/slog"
	"time"

	"github.com/samsaffron/gemchat/internal/image"
	"github.com/samsaffron/gemchat/internal/llm"
)

// BatchFetcher resolves image URLs. The result must be aligned with urls;
// nil marks a URL that could not be resolved.
type BatchFetcher interface {
	BatchFetch(ctx context.Context, urls []string, concurrency int, timeout time.Duration) []*image.ImageResult
}

// Options controls image resolution.
type Options struct {
	ResolveImages bool
	Concurrency   int
	Timeout       time.Duration
	Logger        *slog.Logger
}

// DefaultOptions resolves images three at a time with a 10s timeout each.
func DefaultOptions() Options {
	return Options{
		ResolveImages: true,
		Concurrency:   image.DefaultConcurrency,
		Timeout:       image.DefaultTimeout,
	}
}

// Assembler drives MergeFragment over provider output and splices resolved
// images back into the part list. It holds no per-run state and may be
// shared between goroutines.
type Assembler struct {
	fetcher BatchFetcher
	opts    Options
	logger  *slog.Logger
}

// New creates an Assembler. A nil fetcher disables image resolution.
func New(fetcher BatchFetcher, opts Options) *Assembler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = image.DefaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = image.DefaultTimeout
	}
	if fetcher == nil {
		opts.ResolveImages = false
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{fetcher: fetcher, opts: opts, logger: logger}
}

// ResolvesImages reports whether CDN image resolution is active.
func (a *Assembler) ResolvesImages() bool {
	return a.opts.ResolveImages
}

// Assemble merges every fragment, then resolves all image references found
// in any text part with a single batch. It returns ctx.Err() if the context
// is cancelled before the batch starts or before its results are spliced.
func (a *Assembler) Assemble(ctx context.Context, fragments []llm.Fragment) ([]llm.Part, error) {
	parts := llm.MergeAll(fragments)
	if !a.opts.ResolveImages {
		return parts, nil
	}

	type pending struct {
		index  int
		parsed image.ParsedText
	}
	var (
		work []pending
		refs []image.Ref
	)
	for i, p := range parts {
		if !p.IsText() {
			continue
		}
		if parsed, ok := image.ParseIfComplete(p.Text); ok {
			work = append(work, pending{index: i, parsed: parsed})
			refs = append(refs, parsed.Refs()...)
		}
	}
	if len(work) == 0 {
		return parts, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results := a.resolve(ctx, refs)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]llm.Part, 0, len(parts)+len(refs))
	next, offset := 0, 0
	for _, w := range work {
		out = append(out, parts[next:w.index]...)
		n := len(w.parsed.Refs())
		replacement, _ := expandPart(parts[w.index], 0, w.parsed, results[offset:offset+n], false)
		out = append(out, replacement...)
		offset += n
		next = w.index + 1
	}
	out = append(out, parts[next:]...)
	return out, nil
}

// Collect drains stream and assembles the result in one pass. A stream
// failure is returned as *StreamError.
func (a *Assembler) Collect(ctx context.Context, stream llm.FragmentStream) ([]llm.Part, error) {
	defer stream.Close()
	fragments, err := llm.Drain(ctx, stream)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &StreamError{Err: err}
	}
	return a.Assemble(ctx, fragments)
}

func (a *Assembler) resolve(ctx context.Context, refs []image.Ref) []*image.ImageResult {
	urls := make([]string, len(refs))
	for i, r := range refs {
		urls[i] = r.URL
	}
	results := a.fetcher.BatchFetch(ctx, urls, a.opts.Concurrency, a.opts.Timeout)
	if len(results) != len(urls) {
		// A misbehaving fetcher must not shift images out of position.
		aligned := make([]*image.ImageResult, len(urls))
		copy(aligned, results)
		results = aligned
	}
	return results
}
