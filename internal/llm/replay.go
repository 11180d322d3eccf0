package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// replayPreset defines streaming rate configuration.
type replayPreset struct {
	ChunkSize int // 0 replays each fragment as recorded
	Delay     time.Duration
}

// replayPresets maps variant names to their streaming configurations.
var replayPresets = map[string]replayPreset{
	"instant":  {ChunkSize: 0, Delay: 0},
	"fast":     {ChunkSize: 50, Delay: 5 * time.Millisecond},
	"normal":   {ChunkSize: 20, Delay: 20 * time.Millisecond},
	"slow":     {ChunkSize: 10, Delay: 50 * time.Millisecond},
	"realtime": {ChunkSize: 5, Delay: 30 * time.Millisecond},
	"burst":    {ChunkSize: 200, Delay: 100 * time.Millisecond},
}

// ReplayVariants returns the preset names in sorted order.
func ReplayVariants() []string {
	names := make([]string, 0, len(replayPresets))
	for k := range replayPresets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Fixture is a recorded provider response.
//
//	model: gemini-2.5-flash-image
//	fragments:
//	  - text: "Here is a cat "
//	  - text: "![cat](https://placehold.co/64.png)"
//	  - mime_type: image/png
//	    file: cat.png
//	error: "stream reset"   # optional, fails after the fragments
type Fixture struct {
	Model     string            `yaml:"model"`
	Prompt    string            `yaml:"prompt"`
	Fragments []FixtureFragment `yaml:"fragments"`
	Error     string            `yaml:"error"`

	dir string
}

// FixtureFragment is one recorded fragment. Binary payloads come from Data
// (base64) or File (relative to the fixture).
type FixtureFragment struct {
	Text      string `yaml:"text"`
	Thought   bool   `yaml:"thought"`
	Signature string `yaml:"signature"`
	MimeType  string `yaml:"mime_type"`
	Data      string `yaml:"data"`
	File      string `yaml:"file"`
}

// LoadFixture reads a YAML fixture from path.
func LoadFixture(path string) (*Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var fx Fixture
	if err := yaml.Unmarshal(raw, &fx); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	fx.dir = filepath.Dir(path)
	return &fx, nil
}

// Build converts the recorded fragments, loading any binary payloads.
func (fx *Fixture) Build() ([]Fragment, error) {
	out := make([]Fragment, 0, len(fx.Fragments))
	for i, ff := range fx.Fragments {
		var sig []byte
		if ff.Signature != "" {
			sig = []byte(ff.Signature)
		}
		if ff.MimeType == "" {
			out = append(out, TextFragment(ff.Text, ff.Thought, sig))
			continue
		}

		var data []byte
		switch {
		case ff.File != "":
			path := ff.File
			if !filepath.IsAbs(path) {
				path = filepath.Join(fx.dir, path)
			}
			b, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("fragment %d: %w", i, err)
			}
			data = b
		case ff.Data != "":
			b, err := base64.StdEncoding.DecodeString(ff.Data)
			if err != nil {
				return nil, fmt.Errorf("fragment %d: decode data: %w", i, err)
			}
			data = b
		default:
			return nil, fmt.Errorf("fragment %d: %s fragment has no data or file", i, ff.MimeType)
		}
		out = append(out, BlobFragment(ff.MimeType, data, ff.Thought, sig))
	}
	return out, nil
}

// ReplayProvider streams a recorded response, re-chunked to mimic live output.
type ReplayProvider struct {
	fragments []Fragment
	err       error
	variant   string
	preset    replayPreset
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewReplayProvider creates a replay provider for fx.
// Valid variants: instant, fast, normal, slow, realtime, burst.
// Empty string defaults to "normal".
func NewReplayProvider(fx *Fixture, variant string) (*ReplayProvider, error) {
	if variant == "" {
		variant = "normal"
	}
	preset, ok := replayPresets[variant]
	if !ok {
		return nil, fmt.Errorf("unknown replay speed %q", variant)
	}
	fragments, err := fx.Build()
	if err != nil {
		return nil, err
	}
	p := &ReplayProvider{fragments: fragments, variant: variant, preset: preset, sleep: sleepCtx}
	if fx.Error != "" {
		p.err = errors.New(fx.Error)
	}
	return p, nil
}

// Name returns the provider name with variant.
func (p *ReplayProvider) Name() string {
	if p.variant == "normal" {
		return "replay"
	}
	return "replay:" + p.variant
}

// Stream replays the fixture. Text fragments are split into chunks of the
// preset size; binary fragments are sent whole.
func (p *ReplayProvider) Stream(ctx context.Context, req Request) (FragmentStream, error) {
	return newFragmentStream(ctx, func(ctx context.Context, out chan<- Fragment) error {
		for _, f := range p.fragments {
			for _, chunk := range chunkFragment(f, p.preset.ChunkSize) {
				if p.preset.Delay > 0 {
					if err := p.sleep(ctx, p.preset.Delay); err != nil {
						return err
					}
				}
				if err := sendFragment(ctx, out, chunk); err != nil {
					return err
				}
			}
		}
		return p.err
	}), nil
}

// chunkFragment splits a text fragment on rune boundaries. The signature
// stays on the final chunk.
func chunkFragment(f Fragment, size int) []Fragment {
	if !f.IsText() || size <= 0 || len(f.Text) <= size {
		return []Fragment{f}
	}
	runes := []rune(f.Text)
	var out []Fragment
	for i := 0; i < len(runes); i += size {
		end := min(i+size, len(runes))
		out = append(out, TextFragment(string(runes[i:end]), f.Thought, nil))
	}
	out[len(out)-1].ThoughtSig = f.ThoughtSig
	return out
}
