package session

import (
	"strings"
	"time"

	"github.com/samsaffron/gemchat/internal/llm"
)

// SessionStatus represents the current state of a session.
type SessionStatus string

const (
	StatusActive      SessionStatus = "active"      // Session is open/current (may or may not be streaming)
	StatusComplete    SessionStatus = "complete"    // Last turn finished normally
	StatusError       SessionStatus = "error"       // Last turn ended with an error
	StatusInterrupted SessionStatus = "interrupted" // Last turn was cancelled by user
)

// Session represents a conversation stored in the database.
type Session struct {
	ID        string        `json:"id"`
	Name      string        `json:"name,omitempty"`
	Summary   string        `json:"summary,omitempty"` // First user message
	Provider  string        `json:"provider"`          // Provider display label
	Model     string        `json:"model"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Archived  bool          `json:"archived,omitempty"`
	UserTurns int           `json:"user_turns,omitempty"`
	Status    SessionStatus `json:"status,omitempty"`
}

// Message represents a message in a session. Parts keeps every assembled part,
// including inline images and thought signatures.
type Message struct {
	ID          int64      `json:"id"`
	SessionID   string     `json:"session_id"`
	Role        llm.Role   `json:"role"`
	Parts       []llm.Part `json:"parts"`
	TextContent string     `json:"text_content"` // Extracted text for display/FTS
	DurationMs  int64      `json:"duration_ms,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Sequence    int        `json:"sequence"`
}

// SessionSummary is a lightweight view of a session for listing.
type SessionSummary struct {
	ID           string        `json:"id"`
	Name         string        `json:"name,omitempty"`
	Summary      string        `json:"summary,omitempty"`
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	MessageCount int           `json:"message_count"`
	ImageCount   int           `json:"image_count"`
	UserTurns    int           `json:"user_turns,omitempty"`
	Status       SessionStatus `json:"status,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// ListOptions configures session listing.
type ListOptions struct {
	Model    string        // Filter by model
	Status   SessionStatus // Filter by status
	Limit    int           // Max results (0 = use default)
	Offset   int           // Pagination offset
	Archived bool          // Include archived sessions
}

// SearchResult represents a search match.
type SearchResult struct {
	SessionID   string    `json:"session_id"`
	MessageID   int64     `json:"message_id"`
	SessionName string    `json:"session_name"`
	Summary     string    `json:"summary"`
	Snippet     string    `json:"snippet"` // Matched text snippet
	Model       string    `json:"model"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewMessage creates a new Message from an llm.Message with the given session ID and sequence.
// A negative sequence is allocated by the store.
func NewMessage(sessionID string, msg llm.Message, sequence int) *Message {
	m := &Message{
		SessionID: sessionID,
		Role:      msg.Role,
		Parts:     msg.Parts,
		CreatedAt: time.Now(),
		Sequence:  sequence,
	}
	m.TextContent = m.ExtractTextContent()
	return m
}

// ExtractTextContent concatenates the non-thought text parts, one per line.
func (m *Message) ExtractTextContent() string {
	var texts []string
	for _, p := range m.Parts {
		if p.IsText() && !p.Thought && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// ImageCount returns the number of binary parts in the message.
func (m *Message) ImageCount() int {
	n := 0
	for _, p := range m.Parts {
		if p.IsBlob() {
			n++
		}
	}
	return n
}

// ToLLMMessage converts a Message back to an llm.Message.
func (m *Message) ToLLMMessage() llm.Message {
	return llm.Message{
		Role:  m.Role,
		Parts: m.Parts,
	}
}

// TruncateSummary returns the first line of content, truncated to 100 chars.
func TruncateSummary(content string) string {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "\n"); idx != -1 {
		content = content[:idx]
	}
	if len(content) > 100 {
		content = content[:97] + "..."
	}
	return content
}
