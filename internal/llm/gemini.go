package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider streams fragments from the Google Gemini API.
type GeminiProvider struct {
	apiKey         string
	model          string
	thinkingLevel  genai.ThinkingLevel // for Gemini 3: MINIMAL, LOW, HIGH
	thinkingBudget *int32              // for Gemini 2.5: 0, 8192, etc.
}

// geminiThinkingConfig holds thinking configuration for a Gemini model
type geminiThinkingConfig struct {
	level  genai.ThinkingLevel // for Gemini 3
	budget *int32              // for Gemini 2.5 (nil = no config)
}

// parseGeminiModelThinking extracts the base model name and determines thinking config.
// Gemini 3 models use thinkingLevel (MINIMAL/LOW/HIGH).
// Gemini 2.5 models use thinkingBudget (0 = disabled).
func parseGeminiModelThinking(model string) (string, geminiThinkingConfig) {
	hasThinkingSuffix := strings.HasSuffix(model, "-thinking")
	baseModel := strings.TrimSuffix(model, "-thinking")

	switch {
	case strings.HasPrefix(baseModel, "gemini-3-flash"):
		if hasThinkingSuffix {
			return baseModel, geminiThinkingConfig{level: genai.ThinkingLevelHigh}
		}
		return baseModel, geminiThinkingConfig{level: genai.ThinkingLevelMinimal}

	// Gemini 3 Pro only supports LOW and HIGH
	case strings.HasPrefix(baseModel, "gemini-3-pro"):
		if hasThinkingSuffix {
			return baseModel, geminiThinkingConfig{level: genai.ThinkingLevelHigh}
		}
		return baseModel, geminiThinkingConfig{level: genai.ThinkingLevelLow}

	// Image models reject thinking configuration entirely
	case strings.Contains(baseModel, "-image"):
		return baseModel, geminiThinkingConfig{}

	case strings.HasPrefix(baseModel, "gemini-2.5"):
		if hasThinkingSuffix {
			budget := int32(8192)
			return baseModel, geminiThinkingConfig{budget: &budget}
		}
		zero := int32(0)
		return baseModel, geminiThinkingConfig{budget: &zero}

	default:
		return model, geminiThinkingConfig{}
	}
}

func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	if model == "" {
		model = "gemini-3-flash-preview"
	}
	baseModel, thinkingCfg := parseGeminiModelThinking(model)
	return &GeminiProvider{
		apiKey:         apiKey,
		model:          baseModel,
		thinkingLevel:  thinkingCfg.level,
		thinkingBudget: thinkingCfg.budget,
	}
}

func (p *GeminiProvider) Name() string {
	if p.thinkingLevel != "" {
		return fmt.Sprintf("Gemini (%s, thinking=%s)", p.model, strings.ToLower(string(p.thinkingLevel)))
	}
	if p.thinkingBudget != nil {
		return fmt.Sprintf("Gemini (%s, thinkingBudget=%d)", p.model, *p.thinkingBudget)
	}
	return fmt.Sprintf("Gemini (%s)", p.model)
}

// Model returns the resolved base model name.
func (p *GeminiProvider) Model() string {
	return p.model
}

func (p *GeminiProvider) newClient(ctx context.Context) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{APIKey: p.apiKey, Backend: genai.BackendGeminiAPI})
}

func (p *GeminiProvider) buildRequest(req Request) (string, []*genai.Content, *genai.GenerateContentConfig, error) {
	contents := buildGeminiContents(req.Messages)
	if len(contents) == 0 {
		return "", nil, nil, fmt.Errorf("no user content provided")
	}

	model := p.model
	if req.Model != "" {
		model = req.Model
	}

	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	switch {
	case p.thinkingLevel != "":
		config.ThinkingConfig = &genai.ThinkingConfig{ThinkingLevel: p.thinkingLevel}
	case p.thinkingBudget != nil:
		config.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: p.thinkingBudget}
	}
	if req.Thinking {
		if config.ThinkingConfig == nil {
			config.ThinkingConfig = &genai.ThinkingConfig{}
		}
		config.ThinkingConfig.IncludeThoughts = true
	}

	if strings.Contains(model, "-image") {
		config.ResponseModalities = append(config.ResponseModalities, "TEXT", "IMAGE")
	}

	slog.Debug("gemini request", "model", model, "contents", len(contents), "system", len(req.System) > 0, "thinking", req.Thinking)

	return model, contents, config, nil
}

// Stream issues a streaming request and yields fragments as chunks arrive.
func (p *GeminiProvider) Stream(ctx context.Context, req Request) (FragmentStream, error) {
	model, contents, config, err := p.buildRequest(req)
	if err != nil {
		return nil, err
	}
	return newFragmentStream(ctx, func(ctx context.Context, out chan<- Fragment) error {
		client, err := p.newClient(ctx)
		if err != nil {
			return fmt.Errorf("failed to create gemini client: %w", err)
		}

		for resp, err := range client.Models.GenerateContentStream(ctx, model, contents, config) {
			if err != nil {
				return fmt.Errorf("gemini streaming error: %w", err)
			}
			for _, f := range FragmentsFromResponse(resp) {
				if err := sendFragment(ctx, out, f); err != nil {
					return err
				}
			}
		}
		return nil
	}), nil
}

// FragmentsFromResponse maps the first candidate of a response chunk into
// fragments. Parts that are neither text nor inline data (function calls,
// executable code, empty parts) are dropped here. A thought signature that
// arrives on an otherwise empty part is kept as an empty text fragment so the
// signature still reaches the merged part.
func FragmentsFromResponse(resp *genai.GenerateContentResponse) []Fragment {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return nil
	}

	out := make([]Fragment, 0, len(cand.Content.Parts))
	for _, part := range cand.Content.Parts {
		if f, ok := fragmentFromPart(part); ok {
			out = append(out, f)
		}
	}
	return out
}

func fragmentFromPart(part *genai.Part) (Fragment, bool) {
	if part == nil {
		return Fragment{}, false
	}
	switch {
	case part.InlineData != nil && len(part.InlineData.Data) > 0:
		mimeType := part.InlineData.MIMEType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		return BlobFragment(mimeType, part.InlineData.Data, part.Thought, part.ThoughtSignature), true
	case part.Text != "":
		return TextFragment(part.Text, part.Thought, part.ThoughtSignature), true
	case len(part.ThoughtSignature) > 0 && part.FunctionCall == nil:
		return TextFragment("", part.Thought, part.ThoughtSignature), true
	default:
		return Fragment{}, false
	}
}

func buildGeminiContents(messages []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		var role string
		switch msg.Role {
		case RoleUser:
			role = genai.RoleUser
		case RoleAssistant:
			role = genai.RoleModel
		default:
			continue
		}
		if content := buildGeminiContent(role, msg.Parts); content != nil {
			contents = append(contents, content)
		}
	}
	return contents
}

// buildGeminiContent converts stored parts back into request parts. Thought
// text is not replayed, but its signature rides on the next replayed part so
// the provider keeps its reasoning context.
func buildGeminiContent(role string, parts []Part) *genai.Content {
	content := &genai.Content{Role: role}
	var pendingSig []byte
	for _, part := range parts {
		if part.Thought {
			if len(part.ThoughtSig) > 0 {
				pendingSig = part.ThoughtSig
			}
			continue
		}
		gp := &genai.Part{ThoughtSignature: part.ThoughtSig}
		if part.IsBlob() {
			gp.InlineData = &genai.Blob{MIMEType: part.InlineData.MimeType, Data: part.InlineData.Data}
		} else {
			if part.Text == "" {
				continue
			}
			gp.Text = part.Text
		}
		if len(gp.ThoughtSignature) == 0 && len(pendingSig) > 0 {
			gp.ThoughtSignature = pendingSig
		}
		pendingSig = nil
		content.Parts = append(content.Parts, gp)
	}
	if len(content.Parts) == 0 {
		return nil
	}
	return content
}
