package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samsaffron/gemchat/internal/llm"
	"github.com/samsaffron/gemchat/internal/session"
	"github.com/samsaffron/gemchat/internal/ui"
)

func seededStore(t *testing.T) (*session.SQLiteStore, *session.Session) {
	t.Helper()
	store, err := session.NewSQLiteStore(session.Config{
		Enabled: true,
		Path:    filepath.Join(t.TempDir(), "sessions.db"),
	})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	sess := &session.Session{
		ID:       session.NewID(),
		Provider: "gemini",
		Model:    "gemini-2.5-flash-image",
		Summary:  "draw a lighthouse",
		Status:   session.StatusComplete,
	}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	user := llm.UserText("draw a lighthouse at dusk")
	reply := llm.AssistantParts([]llm.Part{
		llm.TextPart("Here is your lighthouse:", false),
		llm.BlobPart("image/png", []byte("PNGDATA"), false),
	})
	for _, m := range []llm.Message{user, reply} {
		if err := store.AddMessage(ctx, sess.ID, session.NewMessage(sess.ID, m, -1)); err != nil {
			t.Fatalf("AddMessage failed: %v", err)
		}
	}
	return store, sess
}

func TestListHistory(t *testing.T) {
	store, sess := seededStore(t)

	var out bytes.Buffer
	if err := listHistory(context.Background(), &out, store); err != nil {
		t.Fatalf("listHistory failed: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, sess.ID) || !strings.Contains(got, "draw a lighthouse") {
		t.Errorf("listing missing conversation:\n%s", got)
	}
	if !strings.Contains(got, "complete") {
		t.Errorf("listing missing status:\n%s", got)
	}
}

func TestListHistoryEmpty(t *testing.T) {
	var out bytes.Buffer
	if err := listHistory(context.Background(), &out, &session.NoopStore{}); err != nil {
		t.Fatalf("listHistory failed: %v", err)
	}
	if strings.TrimSpace(out.String()) != "No conversations found." {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestSearchHistory(t *testing.T) {
	store, sess := seededStore(t)

	var out bytes.Buffer
	if err := searchHistory(context.Background(), &out, store, "dusk"); err != nil {
		t.Fatalf("searchHistory failed: %v", err)
	}
	if !strings.Contains(out.String(), sess.ID) || !strings.Contains(out.String(), "**dusk**") {
		t.Errorf("search output missing match:\n%s", out.String())
	}

	out.Reset()
	if err := searchHistory(context.Background(), &out, store, "volcano"); err != nil {
		t.Fatalf("searchHistory failed: %v", err)
	}
	if !strings.Contains(out.String(), "No results found") {
		t.Errorf("expected no results, got:\n%s", out.String())
	}
}

func TestShowHistory(t *testing.T) {
	store, sess := seededStore(t)
	messages, err := store.GetMessages(context.Background(), sess.ID, 0, 0)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}

	var out bytes.Buffer
	renderer := ui.NewRenderer(&out, ui.RendererOptions{})
	if err := showHistory(&out, renderer, sess, messages); err != nil {
		t.Fatalf("showHistory failed: %v", err)
	}
	got := out.String()
	for _, want := range []string{"Conversation: " + sess.ID, "Messages: 2", "draw a lighthouse at dusk", "[image/png, 7 B]"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestShowHistoryJSON(t *testing.T) {
	store, sess := seededStore(t)
	messages, err := store.GetMessages(context.Background(), sess.ID, 0, 0)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}

	var out bytes.Buffer
	if err := showHistoryJSON(&out, sess, messages); err != nil {
		t.Fatalf("showHistoryJSON failed: %v", err)
	}
	var decoded struct {
		Messages []struct {
			Role  string     `json:"role"`
			Parts []jsonPart `json:"parts"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(decoded.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(decoded.Messages))
	}
	img := decoded.Messages[1].Parts[1]
	if img.MimeType != "image/png" || img.Bytes != 7 || img.Text != "" {
		t.Errorf("unexpected image part %+v", img)
	}
}

func TestUpdateSession(t *testing.T) {
	store, sess := seededStore(t)
	ctx := context.Background()

	var out bytes.Buffer
	if err := updateSession(ctx, &out, store, sess, "lighthouse series", false); err != nil {
		t.Fatalf("updateSession failed: %v", err)
	}
	if want := "Updated conversation " + sess.ID + " (lighthouse series)\n"; out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
	out.Reset()
	if err := listHistory(ctx, &out, store); err != nil {
		t.Fatalf("listHistory failed: %v", err)
	}
	if !strings.Contains(out.String(), "lighthouse series") {
		t.Errorf("listing should show the new name:\n%s", out.String())
	}

	out.Reset()
	if err := updateSession(ctx, &out, store, sess, "", true); err != nil {
		t.Fatalf("archive failed: %v", err)
	}
	if !strings.HasSuffix(out.String(), "(lighthouse series) [archived]\n") {
		t.Errorf("output = %q", out.String())
	}
	loaded, err := store.Get(ctx, sess.ID)
	if err != nil || loaded == nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded.Name != "lighthouse series" || !loaded.Archived {
		t.Errorf("unexpected session %+v", loaded)
	}

	// Archived conversations drop out of the default listing.
	out.Reset()
	if err := listHistory(ctx, &out, store); err != nil {
		t.Fatalf("listHistory failed: %v", err)
	}
	if strings.Contains(out.String(), sess.ID) {
		t.Errorf("archived conversation still listed:\n%s", out.String())
	}
}

func TestUpdateSessionMissing(t *testing.T) {
	store, _ := seededStore(t)
	ghost := &session.Session{ID: "does-not-exist"}
	if err := updateSession(context.Background(), &bytes.Buffer{}, store, ghost, "x", false); err == nil {
		t.Error("expected error for unknown conversation")
	}
}
