package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/samsaffron/gemchat/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gemchat",
	Short: "Chat with Gemini, with images inlined as they stream",
	Long: `gemchat streams Gemini responses to the terminal. Images the model
returns inline, and images it links with markdown ![alt](url) syntax, are
shown in place as the response streams.

Examples:
  gemchat chat "draw a lighthouse at dusk"
  gemchat chat --no-stream "find a photo of a red panda"
  gemchat chat --continue last "make it night time"
  gemchat replay testdata/lighthouse.yaml --speed slow

  gemchat history                       # list conversations
  gemchat models                        # list available models
  gemchat config                        # view configuration`,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	SilenceUsage:      true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(debugMode)
	},
}

var (
	debugMode bool
	debugLog  bool
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Log image resolution and provider activity to stderr")
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug-log", false, "Record requests and fragments as JSONL in the debug log directory")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogging installs the default slog logger on stderr.
func setupLogging(debug bool) {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// warnf prints a non-fatal warning to stderr.
func warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "warning: "+format+"\n", args...)
}
