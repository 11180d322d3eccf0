package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/samsaffron/gemchat/internal/llm"
	"github.com/samsaffron/gemchat/internal/signal"
	"github.com/samsaffron/gemchat/internal/ui"
	"github.com/spf13/cobra"
)

var (
	replaySpeed    string
	replayNoStream bool
	replayNoCDN    bool
	replayStats    bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <fixture.yaml>",
	Short: "Assemble a recorded response without calling the API",
	Long: `Replay a YAML fixture of response fragments through the assembler.
Image references in the fixture are resolved like a live response.

Fixture format:
  model: gemini-2.5-flash-image
  prompt: draw a lighthouse
  fragments:
    - text: "Thinking about lighthouses"
      thought: true
    - text: "Here it is: ![lighthouse](https://picsum.photos/400)"
    - mime_type: image/png
      file: lighthouse.png        # or data: <base64>
  error: ""                       # optional failure after the fragments

Speeds: ` + strings.Join(llm.ReplayVariants(), ", "),
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replaySpeed, "speed", "normal", "Streaming speed preset")
	replayCmd.Flags().BoolVar(&replayNoStream, "no-stream", false, "Assemble the whole response, then render it")
	replayCmd.Flags().BoolVar(&replayNoCDN, "no-cdn", false, "Do not fetch images referenced by URL")
	replayCmd.Flags().BoolVar(&replayStats, "stats", false, "Print statistics after the response")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fx, err := llm.LoadFixture(args[0])
	if err != nil {
		return err
	}
	provider, err := llm.NewReplayProvider(fx, replaySpeed)
	if err != nil {
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent)
	defer stop()

	debug := openDebugLogger(cfg, "replay")
	defer debug.Close()

	runner := &turnRunner{
		provider:  provider,
		assembler: newAssembler(cfg, !replayNoCDN),
		renderer:  newRenderer(cfg),
		debug:     debug,
		streaming: !replayNoStream,
	}

	prompt := fx.Prompt
	if prompt == "" {
		prompt = "replay"
	}
	res, err := runner.run(ctx, []llm.Message{llm.UserText(prompt)})
	if replayStats {
		fmt.Fprintln(os.Stderr, ui.NewStyles(os.Stderr).Status.Render(res.Stats.Render()))
	}
	return err
}
