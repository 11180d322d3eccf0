package cmd

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samsaffron/gemchat/internal/assembler"
	"github.com/samsaffron/gemchat/internal/config"
	"github.com/samsaffron/gemchat/internal/llm"
	"github.com/samsaffron/gemchat/internal/session"
	"github.com/samsaffron/gemchat/internal/ui"
)

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cat.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("PNGDATA"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig() *config.Config {
	return &config.Config{
		CDN: config.CDNConfig{
			Enabled:     true,
			Concurrency: 2,
			TimeoutMS:   2000,
			CacheSize:   4,
		},
	}
}

func newTestRunner(t *testing.T, fx *llm.Fixture, streaming bool, out *bytes.Buffer) *turnRunner {
	t.Helper()
	provider, err := llm.NewReplayProvider(fx, "instant")
	if err != nil {
		t.Fatalf("NewReplayProvider failed: %v", err)
	}
	return &turnRunner{
		provider:  provider,
		assembler: newAssembler(testConfig(), true),
		renderer:  ui.NewRenderer(out, ui.RendererOptions{}),
		streaming: streaming,
	}
}

func catFixture(srv *httptest.Server) *llm.Fixture {
	return &llm.Fixture{
		Prompt: "show me a cat",
		Fragments: []llm.FixtureFragment{
			{Text: "Here: ![cat](" + srv.URL + "/cat.png)"},
			{Text: " enjoy"},
		},
	}
}

func TestTurnRunnerResolvesImages(t *testing.T) {
	srv := imageServer(t)

	for _, streaming := range []bool{true, false} {
		name := "collect"
		if streaming {
			name = "stream"
		}
		t.Run(name, func(t *testing.T) {
			var out bytes.Buffer
			runner := newTestRunner(t, catFixture(srv), streaming, &out)

			res, err := runner.run(context.Background(), []llm.Message{llm.UserText("show me a cat")})
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}
			if len(res.Parts) != 3 {
				t.Fatalf("expected 3 parts, got %d: %+v", len(res.Parts), res.Parts)
			}
			if res.Parts[0].Text != "Here: " || res.Parts[2].Text != " enjoy" {
				t.Errorf("unexpected text parts %q, %q", res.Parts[0].Text, res.Parts[2].Text)
			}
			blob := res.Parts[1].InlineData
			if blob == nil || blob.MimeType != "image/png" || string(blob.Data) != "PNGDATA" {
				t.Errorf("expected resolved image, got %+v", res.Parts[1])
			}
			if !strings.Contains(out.String(), "[image/png, 7 B]") {
				t.Errorf("rendered output missing image label: %q", out.String())
			}
			if res.Stats.Images != 1 {
				t.Errorf("stats images = %d, want 1", res.Stats.Images)
			}
		})
	}
}

func TestTurnRunnerNoCDNKeepsLiteral(t *testing.T) {
	srv := imageServer(t)
	var out bytes.Buffer
	runner := newTestRunner(t, catFixture(srv), true, &out)
	runner.assembler = newAssembler(testConfig(), false)

	res, err := runner.run(context.Background(), nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(res.Parts) != 1 || !strings.Contains(res.Parts[0].Text, "![cat](") {
		t.Errorf("expected literal reference, got %+v", res.Parts)
	}
}

func TestTurnRunnerKeepsPartsOnStreamError(t *testing.T) {
	fx := &llm.Fixture{
		Fragments: []llm.FixtureFragment{{Text: "partial answer"}},
		Error:     "connection reset",
	}
	var out bytes.Buffer
	runner := newTestRunner(t, fx, true, &out)

	res, err := runner.run(context.Background(), nil)
	var streamErr *assembler.StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("expected *assembler.StreamError, got %v", err)
	}
	if streamErr.Error() != "connection reset" {
		t.Errorf("error = %q", streamErr.Error())
	}
	if len(res.Parts) != 1 || res.Parts[0].Text != "partial answer" {
		t.Errorf("expected partial parts to survive, got %+v", res.Parts)
	}
	if out.String() != "partial answer\n" {
		t.Errorf("rendered output = %q", out.String())
	}
}

func TestConversationTurnPersists(t *testing.T) {
	srv := imageServer(t)
	store, err := session.NewSQLiteStore(session.Config{
		Enabled: true,
		Path:    filepath.Join(t.TempDir(), "sessions.db"),
	})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	conv, err := openConversation(ctx, store, "", "replay", "test-model")
	if err != nil {
		t.Fatalf("openConversation failed: %v", err)
	}

	var out bytes.Buffer
	runner := newTestRunner(t, catFixture(srv), true, &out)
	if err := conv.turn(ctx, runner, testConfig(), "show me a cat"); err != nil {
		t.Fatalf("turn failed: %v", err)
	}

	sess, err := store.Get(ctx, conv.sess.ID)
	if err != nil || sess == nil {
		t.Fatalf("expected saved conversation: %v", err)
	}
	if sess.Status != session.StatusComplete || sess.UserTurns != 1 || sess.Summary != "show me a cat" {
		t.Errorf("unexpected session %+v", sess)
	}

	resumed, err := openConversation(ctx, store, "last", "replay", "test-model")
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if len(resumed.history) != 2 {
		t.Fatalf("expected 2 messages in history, got %d", len(resumed.history))
	}
	reply := resumed.history[1]
	if reply.Role != llm.RoleAssistant || len(reply.Parts) != 3 || !reply.Parts[1].IsBlob() {
		t.Errorf("unexpected reply %+v", reply)
	}
}

func TestOpenConversationUnknownID(t *testing.T) {
	_, err := openConversation(context.Background(), &session.NoopStore{}, "missing", "p", "m")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found error, got %v", err)
	}
}
