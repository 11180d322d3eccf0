package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/samsaffron/gemchat/internal/session"
	"github.com/samsaffron/gemchat/internal/ui"
	"github.com/spf13/cobra"
)

var (
	historyLimit   int
	historyStatus  string
	historyModel   string
	historySearch  string
	historyDelete  bool
	historyJSON    bool
	historyImages  bool
	historyName    string
	historyArchive bool
)

var historyCmd = &cobra.Command{
	Use:   "history [id]",
	Short: "List, show, search or delete saved conversations",
	Long: `Without an ID, list recent conversations. With an ID ('last' for the
most recent), show that conversation.

Examples:
  gemchat history
  gemchat history --search lighthouse
  gemchat history last
  gemchat history 20260101-120000-ab12cd34 --save-images
  gemchat history last --name "lighthouse series" --archive
  gemchat history 20260101-120000-ab12cd34 --delete`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of conversations to list")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "Filter by status (active, complete, error, interrupted)")
	historyCmd.Flags().StringVar(&historyModel, "model", "", "Filter by model")
	historyCmd.Flags().StringVar(&historySearch, "search", "", "Full-text search over message text")
	historyCmd.Flags().BoolVar(&historyDelete, "delete", false, "Delete the conversation")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Output as JSON")
	historyCmd.Flags().BoolVar(&historyImages, "save-images", false, "Save the conversation's images to image.output_dir")
	historyCmd.Flags().StringVar(&historyName, "name", "", "Rename the conversation")
	historyCmd.Flags().BoolVar(&historyArchive, "archive", false, "Archive the conversation so cleanup never removes it")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Sessions.Enabled {
		return fmt.Errorf("conversation history is disabled in config")
	}
	store, err := session.NewStore(session.Config{
		Enabled: true,
		Path:    cfg.Sessions.Path,
	})
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	switch {
	case historySearch != "":
		return searchHistory(ctx, os.Stdout, store, historySearch)
	case len(args) == 0:
		return listHistory(ctx, os.Stdout, store)
	}

	sess, err := findSession(ctx, store, args[0])
	if err != nil {
		return err
	}
	if historyDelete {
		if err := store.Delete(ctx, sess.ID); err != nil {
			return err
		}
		fmt.Printf("Deleted conversation %s\n", sess.ID)
		return nil
	}
	if historyName != "" || historyArchive {
		return updateSession(ctx, os.Stdout, store, sess, historyName, historyArchive)
	}

	messages, err := store.GetMessages(ctx, sess.ID, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to get messages: %w", err)
	}
	if historyImages {
		for _, m := range messages {
			saveImages(os.Stderr, m.Parts, cfg.Image.OutputDir, sess.Summary)
		}
	}
	if historyJSON {
		return showHistoryJSON(os.Stdout, sess, messages)
	}
	return showHistory(os.Stdout, newRenderer(cfg), sess, messages)
}

func findSession(ctx context.Context, store session.Store, id string) (*session.Session, error) {
	var sess *session.Session
	var err error
	if id == "last" {
		sess, err = store.GetCurrent(ctx)
	} else {
		sess, err = store.Get(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if sess == nil {
		return nil, fmt.Errorf("conversation '%s' not found", id)
	}
	return sess, nil
}

// updateSession renames and/or archives sess.
func updateSession(ctx context.Context, w io.Writer, store session.Store, sess *session.Session, name string, archive bool) error {
	if name != "" {
		sess.Name = name
	}
	if archive {
		sess.Archived = true
	}
	if err := store.Update(ctx, sess); err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	fmt.Fprintf(w, "Updated conversation %s", sess.ID)
	if sess.Name != "" {
		fmt.Fprintf(w, " (%s)", sess.Name)
	}
	if sess.Archived {
		fmt.Fprint(w, " [archived]")
	}
	fmt.Fprintln(w)
	return nil
}

func listHistory(ctx context.Context, w io.Writer, store session.Store) error {
	if historyStatus != "" {
		validStatuses := []string{"active", "complete", "error", "interrupted"}
		if !slices.Contains(validStatuses, historyStatus) {
			return fmt.Errorf("invalid status %q: must be one of %v", historyStatus, validStatuses)
		}
	}

	summaries, err := store.List(ctx, session.ListOptions{
		Model:  historyModel,
		Status: session.SessionStatus(historyStatus),
		Limit:  historyLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No conversations found.")
		return nil
	}

	fmt.Fprintf(w, "%-24s %-30s %4s %6s %-11s %s\n", "ID", "SUMMARY", "MSGS", "IMAGES", "STATUS", "AGE")
	fmt.Fprintln(w, strings.Repeat("-", 90))
	for _, s := range summaries {
		summary := s.Summary
		if s.Name != "" {
			summary = s.Name
		}
		status := string(s.Status)
		if status == "" {
			status = string(session.StatusActive)
		}
		fmt.Fprintf(w, "%-24s %-30s %4d %6d %-11s %s\n",
			s.ID, ui.Truncate(summary, 30), s.MessageCount, s.ImageCount, status, formatRelativeTime(s.UpdatedAt))
	}
	return nil
}

func searchHistory(ctx context.Context, w io.Writer, store session.Store, query string) error {
	results, err := store.Search(ctx, query, historyLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(results) == 0 {
		fmt.Fprintf(w, "No results found for '%s'\n", query)
		return nil
	}

	fmt.Fprintf(w, "Found %d matches for '%s':\n\n", len(results), query)
	for _, r := range results {
		name := r.SessionName
		if name == "" {
			name = r.Summary
		}
		fmt.Fprintf(w, "%s  %s (%s)\n", r.SessionID, name, r.Model)
		fmt.Fprintf(w, "  %s\n\n", r.Snippet)
	}
	return nil
}

func showHistory(w io.Writer, renderer *ui.Renderer, sess *session.Session, messages []session.Message) error {
	fmt.Fprintf(w, "Conversation: %s\n", sess.ID)
	if sess.Name != "" {
		fmt.Fprintf(w, "Name: %s\n", sess.Name)
	}
	fmt.Fprintf(w, "Provider: %s\n", sess.Provider)
	fmt.Fprintf(w, "Created: %s\n", sess.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Status: %s\n", sess.Status)
	fmt.Fprintf(w, "Messages: %d\n", len(messages))

	for _, m := range messages {
		fmt.Fprintf(w, "\n── %s ──\n", m.Role)
		renderer.Reset()
		if err := renderer.Finish(m.Parts); err != nil {
			return err
		}
	}
	return nil
}

// jsonPart replaces image bytes with their size in JSON output.
type jsonPart struct {
	Text     string `json:"text,omitempty"`
	Thought  bool   `json:"thought,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Bytes    int    `json:"bytes,omitempty"`
}

func showHistoryJSON(w io.Writer, sess *session.Session, messages []session.Message) error {
	type jsonMessage struct {
		Role      string     `json:"role"`
		Parts     []jsonPart `json:"parts"`
		CreatedAt time.Time  `json:"created_at"`
	}
	out := struct {
		Session  *session.Session `json:"session"`
		Messages []jsonMessage    `json:"messages"`
	}{Session: sess}

	for _, m := range messages {
		jm := jsonMessage{Role: string(m.Role), CreatedAt: m.CreatedAt}
		for _, p := range m.Parts {
			jp := jsonPart{Text: p.Text, Thought: p.Thought}
			if p.IsBlob() {
				jp.Text = ""
				jp.MimeType = p.InlineData.MimeType
				jp.Bytes = len(p.InlineData.Data)
			}
			jm.Parts = append(jm.Parts, jp)
		}
		out.Messages = append(out.Messages, jm)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func formatRelativeTime(t time.Time) string {
	dur := time.Since(t)
	switch {
	case dur < time.Minute:
		return "just now"
	case dur < time.Hour:
		return fmt.Sprintf("%dm ago", int(dur.Minutes()))
	case dur < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(dur.Hours()))
	case dur < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(dur.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}
