package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// CuratedModels is the list offered for completion when the live list is unavailable.
var CuratedModels = []string{
	"gemini-3-pro-preview",
	"gemini-3-pro-preview-thinking",
	"gemini-3-flash-preview",
	"gemini-3-flash-preview-thinking",
	"gemini-2.5-flash",
	"gemini-2.5-flash-thinking",
	"gemini-2.5-flash-lite",
	"gemini-2.5-flash-image",
}

// ListModels returns the models that support content generation.
func (p *GeminiProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	client, err := p.newClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	var models []ModelInfo
	for m, err := range client.Models.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("list models: %w", err)
		}
		if !supportsGenerate(m.SupportedActions) {
			continue
		}
		models = append(models, ModelInfo{
			ID:          strings.TrimPrefix(m.Name, "models/"),
			DisplayName: m.DisplayName,
			Description: m.Description,
		})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

func supportsGenerate(actions []string) bool {
	if len(actions) == 0 {
		return true
	}
	for _, a := range actions {
		if a == "generateContent" {
			return true
		}
	}
	return false
}

// ModelLister fetches the live model list.
type ModelLister interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// ModelCatalog caches a provider's model list for a fixed TTL. Each catalog
// is owned by whoever created it; there is no shared package-level cache.
type ModelCatalog struct {
	lister ModelLister
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	models    []ModelInfo
	fetchedAt time.Time
}

// NewModelCatalog creates a catalog; ttl <= 0 caches for the catalog's lifetime.
func NewModelCatalog(lister ModelLister, ttl time.Duration) *ModelCatalog {
	return &ModelCatalog{lister: lister, ttl: ttl, now: time.Now}
}

// Models returns the cached list, refreshing it when stale.
func (c *ModelCatalog) Models(ctx context.Context) ([]ModelInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.models != nil && (c.ttl <= 0 || c.now().Sub(c.fetchedAt) < c.ttl) {
		return c.models, nil
	}

	models, err := c.lister.ListModels(ctx)
	if err != nil {
		if c.models != nil {
			// Serve the stale list rather than nothing
			return c.models, nil
		}
		return nil, err
	}
	if models == nil {
		models = []ModelInfo{}
	}
	c.models = models
	c.fetchedAt = c.now()
	return c.models, nil
}

// Invalidate drops the cached list.
func (c *ModelCatalog) Invalidate() {
	c.mu.Lock()
	c.models = nil
	c.mu.Unlock()
}

// Completions returns model IDs with the given prefix, falling back to the
// curated list when the live list cannot be fetched.
func (c *ModelCatalog) Completions(ctx context.Context, prefix string) []string {
	ids := CuratedModels
	if models, err := c.Models(ctx); err == nil && len(models) > 0 {
		ids = make([]string, 0, len(models))
		for _, m := range models {
			ids = append(ids, m.ID)
		}
	}
	var out []string
	for _, id := range ids {
		if strings.HasPrefix(id, prefix) {
			out = append(out, id)
		}
	}
	return out
}
