package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/samsaffron/gemchat/internal/assembler"
	"github.com/samsaffron/gemchat/internal/config"
	"github.com/samsaffron/gemchat/internal/llm"
	"github.com/samsaffron/gemchat/internal/session"
	"github.com/samsaffron/gemchat/internal/signal"
	"github.com/samsaffron/gemchat/internal/ui"
	"github.com/spf13/cobra"
)

var (
	chatNoStream    bool
	chatNoCDN       bool
	chatConcurrency int
	chatTimeout     time.Duration
	chatContinue    string
	chatSaveImages  bool
	chatModel       string
	chatThinking    bool
	chatStats       bool
)

var chatCmd = &cobra.Command{
	Use:   "chat [prompt]",
	Short: "Send a prompt, or start an interactive conversation",
	Long: `Send a prompt to Gemini and render the response as it streams.

With no prompt and a terminal on stdin, chat reads prompts line by line until
EOF (Ctrl-D). Ctrl-C stops the current response and keeps what was received.
Piped stdin is sent as a single prompt.

Examples:
  gemchat chat "draw a fox in the snow"
  gemchat chat --save-images "three app icon ideas for a weather app"
  gemchat chat --no-cdn "show me pictures of the eiffel tower"
  gemchat chat --continue last "now in watercolor"
  cat notes.md | gemchat chat --no-stream`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&chatNoStream, "no-stream", false, "Wait for the whole response, then render it")
	chatCmd.Flags().BoolVar(&chatNoCDN, "no-cdn", false, "Do not fetch images referenced by URL in the response")
	chatCmd.Flags().IntVar(&chatConcurrency, "concurrency", 0, "Parallel image fetches (default from config)")
	chatCmd.Flags().DurationVar(&chatTimeout, "timeout", 0, "Per-image fetch timeout (default from config)")
	chatCmd.Flags().StringVarP(&chatContinue, "continue", "c", "", "Continue a conversation by ID, or 'last'")
	chatCmd.Flags().BoolVar(&chatSaveImages, "save-images", false, "Save every image in the response to image.output_dir")
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "Gemini model (e.g. gemini-2.5-flash-image, gemini-3-pro-preview-thinking)")
	chatCmd.Flags().BoolVar(&chatThinking, "thinking", false, "Stream the model's thoughts")
	chatCmd.Flags().BoolVar(&chatStats, "stats", false, "Print statistics after each response")
	chatCmd.RegisterFlagCompletionFunc("model", completeModels)
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.ApplyOverrides(chatModel, chatConcurrency, chatTimeout)
	if chatThinking {
		cfg.Gemini.Thinking = true
	}

	provider, err := llm.NewProvider(cfg)
	if err != nil {
		return err
	}

	store := openSessionStore(cfg)
	defer store.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	conv, err := openConversation(ctx, store, chatContinue, provider.Name(), cfg.Gemini.Model)
	if err != nil {
		return err
	}

	debug := openDebugLogger(cfg, conv.sess.ID)
	defer debug.Close()

	runner := &turnRunner{
		provider:  provider,
		assembler: newAssembler(cfg, !chatNoCDN),
		renderer:  newRenderer(cfg),
		debug:     debug,
		streaming: !chatNoStream,
		system:    cfg.Gemini.System,
		thinking:  cfg.Gemini.Thinking,
	}

	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" && !ui.IsTerminal(os.Stdin) {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		prompt = strings.TrimSpace(string(data))
	}
	if prompt != "" {
		return conv.turn(ctx, runner, cfg, prompt)
	}
	return chatLoop(ctx, conv, runner, cfg)
}

// chatLoop reads prompts from stdin until EOF.
func chatLoop(ctx context.Context, conv *conversation, runner *turnRunner, cfg *config.Config) error {
	styles := ui.NewStyles(os.Stderr)
	fmt.Fprintln(os.Stderr, styles.Muted.Render(fmt.Sprintf("%s. Ctrl-D to exit.", runner.provider.Name())))

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(os.Stderr, styles.Bold.Render("> "))
		if !scanner.Scan() {
			fmt.Fprintln(os.Stderr)
			return scanner.Err()
		}
		prompt := strings.TrimSpace(scanner.Text())
		if prompt == "" {
			continue
		}
		if err := conv.turn(ctx, runner, cfg, prompt); err != nil {
			fmt.Fprintln(os.Stderr, styles.FormatResult(false, err.Error()))
		}
	}
}

// openSessionStore opens conversation storage. Storage failures never stop a
// chat: they fall back to a store that keeps nothing.
func openSessionStore(cfg *config.Config) session.Store {
	store, err := session.NewStore(session.Config{
		Enabled:    cfg.Sessions.Enabled,
		MaxAgeDays: cfg.Sessions.MaxAgeDays,
		MaxCount:   cfg.Sessions.MaxCount,
		Path:       cfg.Sessions.Path,
	})
	if err != nil {
		warnf("conversation history disabled: %v", err)
		return &session.NoopStore{}
	}
	return session.NewLoggingStore(store, warnf)
}

// conversation is the running message history and where it is saved.
type conversation struct {
	store   session.Store
	sess    *session.Session
	history []llm.Message
	isNew   bool
}

// openConversation resumes the conversation named by id ("last" for the most
// recent one) or prepares a new one.
func openConversation(ctx context.Context, store session.Store, id, providerName, model string) (*conversation, error) {
	if id == "" {
		return &conversation{
			store: store,
			sess:  &session.Session{ID: session.NewID(), Provider: providerName, Model: model},
			isNew: true,
		}, nil
	}

	var sess *session.Session
	var err error
	if id == "last" {
		sess, err = store.GetCurrent(ctx)
	} else {
		sess, err = store.Get(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if sess == nil {
		return nil, fmt.Errorf("conversation %q not found", id)
	}

	msgs, err := store.GetMessages(ctx, sess.ID, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	conv := &conversation{store: store, sess: sess}
	for i := range msgs {
		conv.history = append(conv.history, msgs[i].ToLLMMessage())
	}
	return conv, nil
}

// turn sends prompt with the conversation history, renders the response and
// saves both messages.
func (c *conversation) turn(parent context.Context, runner *turnRunner, cfg *config.Config, prompt string) error {
	ctx, stop := signal.NotifyContext(parent)
	defer stop()

	if c.isNew {
		c.sess.Summary = session.TruncateSummary(prompt)
		c.sess.CreatedAt = time.Now()
		if err := c.store.Create(ctx, c.sess); err == nil {
			c.isNew = false
		}
	}

	user := llm.UserText(prompt)
	c.history = append(c.history, user)
	c.store.AddMessage(ctx, c.sess.ID, session.NewMessage(c.sess.ID, user, -1))
	c.store.IncrementUserTurns(ctx, c.sess.ID)
	c.store.UpdateStatus(ctx, c.sess.ID, session.StatusActive)
	c.store.SetCurrent(ctx, c.sess.ID)

	res, err := runner.run(ctx, c.history)

	// Persist with a fresh context so an interrupted turn is still saved.
	saveCtx := context.WithoutCancel(ctx)
	if len(res.Parts) > 0 {
		reply := llm.AssistantParts(res.Parts)
		c.history = append(c.history, reply)
		msg := session.NewMessage(c.sess.ID, reply, -1)
		msg.DurationMs = res.Duration.Milliseconds()
		c.store.AddMessage(saveCtx, c.sess.ID, msg)
	}

	status := session.StatusComplete
	switch {
	case errors.Is(err, context.Canceled):
		status = session.StatusInterrupted
		fmt.Fprintln(os.Stderr, ui.NewStyles(os.Stderr).Muted.Render("(interrupted)"))
		err = nil
	case err != nil:
		status = session.StatusError
		var streamErr *assembler.StreamError
		if errors.As(err, &streamErr) {
			err = fmt.Errorf("response failed: %w", streamErr.Err)
		}
	}
	c.store.UpdateStatus(saveCtx, c.sess.ID, status)

	if chatSaveImages {
		saveImages(os.Stderr, res.Parts, cfg.Image.OutputDir, prompt)
	}
	if chatStats {
		fmt.Fprintln(os.Stderr, ui.NewStyles(os.Stderr).Status.Render(res.Stats.Render()))
	}
	return err
}
