package llm

import "strings"

// Role identifies a message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// FragmentKind identifies the payload carried by a Fragment.
type FragmentKind string

const (
	FragmentText FragmentKind = "text"
	FragmentBlob FragmentKind = "blob"
)

// Fragment is one atomic unit of a provider's incremental response.
// Exactly one of Text (FragmentText) or MimeType/Data (FragmentBlob) is meaningful.
type Fragment struct {
	Kind       FragmentKind
	Text       string
	MimeType   string
	Data       []byte
	Thought    bool
	ThoughtSig []byte // Opaque continuation signature, echoed back to the provider
}

// TextFragment builds a text fragment.
func TextFragment(text string, thought bool, sig []byte) Fragment {
	return Fragment{Kind: FragmentText, Text: text, Thought: thought, ThoughtSig: sig}
}

// BlobFragment builds a binary fragment.
func BlobFragment(mimeType string, data []byte, thought bool, sig []byte) Fragment {
	return Fragment{Kind: FragmentBlob, MimeType: mimeType, Data: data, Thought: thought, ThoughtSig: sig}
}

// IsText reports whether the fragment carries text.
func (f Fragment) IsText() bool { return f.Kind == FragmentText }

// Blob is an inline binary payload.
type Blob struct {
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data,omitempty"`
}

// Part is a single assembled content part: either text or an inline blob, never both.
type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inline_data,omitempty"`
	Thought    bool   `json:"thought,omitempty"`
	ThoughtSig []byte `json:"thought_sig,omitempty"`
}

// TextPart builds a text part.
func TextPart(text string, thought bool) Part {
	return Part{Text: text, Thought: thought}
}

// BlobPart builds a binary part.
func BlobPart(mimeType string, data []byte, thought bool) Part {
	return Part{InlineData: &Blob{MimeType: mimeType, Data: data}, Thought: thought}
}

// IsText reports whether the part is a text part.
func (p Part) IsText() bool { return p.InlineData == nil }

// IsBlob reports whether the part carries binary data.
func (p Part) IsBlob() bool { return p.InlineData != nil }

// Message holds a role with assembled parts.
type Message struct {
	Role  Role
	Parts []Part
}

// Request represents a single model turn.
type Request struct {
	Model    string
	System   string
	Messages []Message
	Thinking bool // Ask the provider to stream its reasoning as thought fragments
}

// ModelInfo represents a model available from the provider.
type ModelInfo struct {
	ID          string
	DisplayName string
	Description string
}

func UserText(text string) Message {
	return Message{
		Role:  RoleUser,
		Parts: []Part{{Text: text}},
	}
}

func AssistantParts(parts []Part) Message {
	return Message{Role: RoleAssistant, Parts: parts}
}

// CollectText concatenates the non-thought text parts in order.
func CollectText(parts []Part) string {
	var b strings.Builder
	for _, p := range parts {
		if p.IsText() && !p.Thought {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// CloneParts returns a copy of parts whose slice can be retained by the caller.
// Blob payloads are shared; they are never mutated after creation.
func CloneParts(parts []Part) []Part {
	if parts == nil {
		return []Part{}
	}
	out := make([]Part, len(parts))
	copy(out, parts)
	return out
}
