package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samsaffron/gemchat/internal/llm"
	"github.com/samsaffron/gemchat/internal/ui"
	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List Gemini models that can generate content",
	RunE:  runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

// newModelCatalog returns a catalog over the configured API key, or nil when
// no key is set.
func newModelCatalog() *llm.ModelCatalog {
	cfg, err := loadConfig()
	if err != nil || cfg.Gemini.APIKey == "" {
		return nil
	}
	return llm.NewModelCatalog(llm.NewGeminiProvider(cfg.Gemini.APIKey, cfg.Gemini.Model), 5*time.Minute)
}

func runModels(cmd *cobra.Command, args []string) error {
	catalog := newModelCatalog()
	if catalog == nil {
		return fmt.Errorf("gemini API key not configured. Set GEMINI_API_KEY or add gemini.api_key to config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	models, err := catalog.Models(ctx)
	if err != nil {
		return err
	}

	styles := ui.NewStyles(cmd.OutOrStdout())
	for _, m := range models {
		line := styles.Bold.Render(m.ID)
		if m.DisplayName != "" {
			line += "  " + styles.Muted.Render(m.DisplayName)
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}

func completeModels(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	catalog := newModelCatalog()
	if catalog == nil {
		return filterPrefix(llm.CuratedModels, toComplete), cobra.ShellCompDirectiveNoFileComp
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return catalog.Completions(ctx, toComplete), cobra.ShellCompDirectiveNoFileComp
}

func filterPrefix(ids []string, prefix string) []string {
	var out []string
	for _, id := range ids {
		if strings.HasPrefix(id, prefix) {
			out = append(out, id)
		}
	}
	return out
}
