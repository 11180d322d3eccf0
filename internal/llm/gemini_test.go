package llm

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"google.golang.org/genai"
)

func TestParseGeminiModelThinking(t *testing.T) {
	tests := []struct {
		model      string
		wantBase   string
		wantLevel  genai.ThinkingLevel
		wantBudget *int32
	}{
		{"gemini-3-flash-preview", "gemini-3-flash-preview", genai.ThinkingLevelMinimal, nil},
		{"gemini-3-flash-preview-thinking", "gemini-3-flash-preview", genai.ThinkingLevelHigh, nil},
		{"gemini-3-pro-preview", "gemini-3-pro-preview", genai.ThinkingLevelLow, nil},
		{"gemini-2.5-flash", "gemini-2.5-flash", "", int32Ptr(0)},
		{"gemini-2.5-flash-thinking", "gemini-2.5-flash", "", int32Ptr(8192)},
		{"gemini-2.5-flash-image", "gemini-2.5-flash-image", "", nil},
		{"custom-model", "custom-model", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			base, cfg := parseGeminiModelThinking(tt.model)
			if base != tt.wantBase {
				t.Errorf("base = %q, want %q", base, tt.wantBase)
			}
			if cfg.level != tt.wantLevel {
				t.Errorf("level = %q, want %q", cfg.level, tt.wantLevel)
			}
			switch {
			case tt.wantBudget == nil && cfg.budget != nil:
				t.Errorf("budget = %d, want nil", *cfg.budget)
			case tt.wantBudget != nil && (cfg.budget == nil || *cfg.budget != *tt.wantBudget):
				t.Errorf("budget = %v, want %d", cfg.budget, *tt.wantBudget)
			}
		})
	}
}

func int32Ptr(v int32) *int32 { return &v }

func TestFragmentsFromResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role: genai.RoleModel,
				Parts: []*genai.Part{
					{Text: "pondering", Thought: true},
					{ThoughtSignature: []byte("sig")},
					{Text: "Here you go "},
					{InlineData: &genai.Blob{MIMEType: "image/png", Data: []byte{1, 2}}},
					{InlineData: &genai.Blob{Data: []byte{3}}},
					{FunctionCall: &genai.FunctionCall{Name: "noop"}},
					nil,
				},
			},
		}},
	}

	frags := FragmentsFromResponse(resp)
	if len(frags) != 5 {
		t.Fatalf("got %d fragments, want 5: %+v", len(frags), frags)
	}
	if !frags[0].Thought || frags[0].Text != "pondering" {
		t.Errorf("frag 0 = %+v", frags[0])
	}
	if !frags[1].IsText() || frags[1].Text != "" || !bytes.Equal(frags[1].ThoughtSig, []byte("sig")) {
		t.Errorf("frag 1 = %+v", frags[1])
	}
	if frags[3].IsText() || frags[3].MimeType != "image/png" {
		t.Errorf("frag 3 = %+v", frags[3])
	}
	if frags[4].MimeType != "application/octet-stream" {
		t.Errorf("frag 4 mime = %q", frags[4].MimeType)
	}
}

func TestFragmentsFromEmptyResponse(t *testing.T) {
	for _, resp := range []*genai.GenerateContentResponse{
		nil,
		{},
		{Candidates: []*genai.Candidate{{}}},
	} {
		if frags := FragmentsFromResponse(resp); len(frags) != 0 {
			t.Errorf("FragmentsFromResponse(%+v) = %+v", resp, frags)
		}
	}
}

func TestBuildGeminiContents(t *testing.T) {
	messages := []Message{
		{Role: RoleSystem, Parts: []Part{TextPart("ignored", false)}},
		UserText("draw a cat"),
		AssistantParts([]Part{
			{Text: "thinking about cats", Thought: true, ThoughtSig: []byte("t-sig")},
			TextPart("Here:", false),
			BlobPart("image/png", []byte{7}, false),
			TextPart("", false),
		}),
	}

	contents := buildGeminiContents(messages)
	if len(contents) != 2 {
		t.Fatalf("got %d contents, want 2", len(contents))
	}
	if contents[0].Role != genai.RoleUser || contents[0].Parts[0].Text != "draw a cat" {
		t.Errorf("user content = %+v", contents[0])
	}

	model := contents[1]
	if model.Role != genai.RoleModel {
		t.Fatalf("role = %q", model.Role)
	}
	if len(model.Parts) != 2 {
		t.Fatalf("got %d model parts, want 2 (thought text and empty text dropped)", len(model.Parts))
	}
	if model.Parts[0].Text != "Here:" || !bytes.Equal(model.Parts[0].ThoughtSignature, []byte("t-sig")) {
		t.Errorf("thought signature not carried to next part: %+v", model.Parts[0])
	}
	if model.Parts[1].InlineData == nil || model.Parts[1].InlineData.MIMEType != "image/png" {
		t.Errorf("image part = %+v", model.Parts[1])
	}
	if len(model.Parts[1].ThoughtSignature) != 0 {
		t.Errorf("signature replayed twice")
	}
}

func TestBuildRequest(t *testing.T) {
	p := NewGeminiProvider("key", "gemini-2.5-flash-image")
	model, contents, cfg, err := p.buildRequest(Request{
		System:   "be brief",
		Messages: []Message{UserText("hi")},
		Thinking: true,
	})
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if model != "gemini-2.5-flash-image" || len(contents) != 1 {
		t.Fatalf("model=%q contents=%d", model, len(contents))
	}
	if cfg.SystemInstruction == nil {
		t.Error("system instruction missing")
	}
	if cfg.ThinkingConfig == nil || !cfg.ThinkingConfig.IncludeThoughts {
		t.Error("IncludeThoughts not set")
	}
	if len(cfg.ResponseModalities) != 2 {
		t.Errorf("modalities = %v", cfg.ResponseModalities)
	}

	if _, _, _, err := p.buildRequest(Request{}); err == nil {
		t.Error("expected error for empty request")
	}
}

func TestBuildRequestLogsAtDebug(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	p := NewGeminiProvider("key", "gemini-2.5-flash")
	if _, _, _, err := p.buildRequest(Request{System: "secret prompt", Messages: []Message{UserText("hi")}}); err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "gemini request") || !strings.Contains(out, "model=gemini-2.5-flash") {
		t.Errorf("debug record missing: %q", out)
	}
	if strings.Contains(out, "secret prompt") {
		t.Errorf("system prompt leaked into log: %q", out)
	}
}

func TestGeminiProviderName(t *testing.T) {
	if got := NewGeminiProvider("k", "gemini-2.5-flash").Name(); got != "Gemini (gemini-2.5-flash, thinkingBudget=0)" {
		t.Errorf("Name() = %q", got)
	}
	if got := NewGeminiProvider("k", "gemini-3-pro-preview-thinking").Name(); got != "Gemini (gemini-3-pro-preview, thinking=high)" {
		t.Errorf("Name() = %q", got)
	}
	if got := NewGeminiProvider("k", "").Model(); got != "gemini-3-flash-preview" {
		t.Errorf("default model = %q", got)
	}
}
