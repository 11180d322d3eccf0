package image

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// BatchFetch resolves urls in waves of at most concurrency parallel fetches.
// Each wave finishes before the next starts. The result is aligned with urls:
// a nil entry means the URL was rejected by the validator or failed to fetch.
// BatchFetch itself never fails.
func (f *Fetcher) BatchFetch(ctx context.Context, urls []string, concurrency int, timeout time.Duration) []*ImageResult {
	results := make([]*ImageResult, len(urls))
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	for start := 0; start < len(urls); start += concurrency {
		if ctx.Err() != nil {
			break
		}
		end := min(start+concurrency, len(urls))

		// Each goroutine owns results[i] for the duration of the wave.
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = f.fetchOne(ctx, urls[i], timeout)
				return nil
			})
		}
		_ = g.Wait()
	}

	resolved := 0
	for _, r := range results {
		if r != nil {
			resolved++
		}
	}
	f.logger.Debug("image batch complete", "requested", len(urls), "resolved", resolved, "concurrency", concurrency)
	return results
}

func (f *Fetcher) fetchOne(ctx context.Context, rawURL string, timeout time.Duration) *ImageResult {
	if !f.validator.IsFetchable(rawURL) {
		f.logger.Debug("image reference rejected", "url", rawURL)
		return nil
	}
	if cached, ok := f.cache.Get(rawURL); ok {
		return cached
	}

	result, err := f.Fetch(ctx, rawURL, timeout)
	if err != nil {
		f.logger.Debug("image fetch failed", "url", rawURL, "error", err)
		return nil
	}
	f.cache.Add(rawURL, result)
	return result
}
