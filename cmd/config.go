package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/samsaffron/gemchat/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage gemchat configuration",
	Long: `View or edit your gemchat configuration.

Examples:
  gemchat config                          # show effective config
  gemchat config init                     # write a starter config file
  gemchat config set cdn.concurrency 5
  gemchat config get gemini.model
  gemchat config path`,
	RunE: configShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	RunE:  configInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print configuration file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.GetConfigPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value (dotted key)",
	Args:  cobra.ExactArgs(2),
	RunE:  configSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a configuration value from the config file",
	Args:  cobra.ExactArgs(1),
	RunE:  configGet,
}

func init() {
	configCmd.AddCommand(configInitCmd, configPathCmd, configSetCmd, configGetCmd)
	rootCmd.AddCommand(configCmd)
}

func configShow(cmd *cobra.Command, args []string) error {
	configPath, err := config.GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if config.Exists() {
		fmt.Fprintf(w, "# %s\n\n", configPath)
	} else {
		fmt.Fprintf(w, "# No config file (using defaults)\n")
		fmt.Fprintf(w, "# Create one with: gemchat config init\n\n")
	}
	printConfig(w, cfg)
	return nil
}

func printConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "gemini:\n")
	fmt.Fprintf(w, "  model: %s\n", cfg.Gemini.Model)
	fmt.Fprintf(w, "  thinking: %t\n", cfg.Gemini.Thinking)
	if cfg.Gemini.APIKey != "" {
		fmt.Fprintf(w, "  api_key: [set]\n")
	} else {
		fmt.Fprintf(w, "  api_key: [NOT SET - export GEMINI_API_KEY]\n")
	}
	if cfg.Gemini.System != "" {
		fmt.Fprintf(w, "  system: %q\n", cfg.Gemini.System)
	}

	fmt.Fprintf(w, "\ncdn:\n")
	fmt.Fprintf(w, "  enabled: %t\n", cfg.CDN.Enabled)
	fmt.Fprintf(w, "  concurrency: %d\n", cfg.CDN.Concurrency)
	fmt.Fprintf(w, "  timeout_ms: %d\n", cfg.CDN.TimeoutMS)
	fmt.Fprintf(w, "  max_bytes: %d\n", cfg.CDN.MaxBytes)
	fmt.Fprintf(w, "  cache_size: %d\n", cfg.CDN.CacheSize)
	if len(cfg.CDN.AllowedHosts) > 0 {
		fmt.Fprintf(w, "  allowed_hosts: [%s]\n", strings.Join(cfg.CDN.AllowedHosts, ", "))
	} else {
		fmt.Fprintf(w, "  allowed_hosts: [built-in]\n")
	}

	fmt.Fprintf(w, "\nsessions:\n")
	fmt.Fprintf(w, "  enabled: %t\n", cfg.Sessions.Enabled)
	fmt.Fprintf(w, "  max_age_days: %d\n", cfg.Sessions.MaxAgeDays)
	fmt.Fprintf(w, "  max_count: %d\n", cfg.Sessions.MaxCount)
	if cfg.Sessions.Path != "" {
		fmt.Fprintf(w, "  path: %s\n", cfg.Sessions.Path)
	}

	fmt.Fprintf(w, "\nimage:\n")
	fmt.Fprintf(w, "  output_dir: %s\n", cfg.Image.OutputDir)
	fmt.Fprintf(w, "  display: %s\n", cfg.Image.Display)

	if cfg.Debug.LogDir != "" {
		fmt.Fprintf(w, "\ndebug:\n")
		fmt.Fprintf(w, "  log_dir: %s\n", cfg.Debug.LogDir)
	}
}

func configInit(cmd *cobra.Command, args []string) error {
	path, err := config.GetConfigPath()
	if err != nil {
		return err
	}
	if config.Exists() {
		return fmt.Errorf("config already exists at %s", path)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func configSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	configPath, err := config.GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	root := yaml.Node{
		Kind:    yaml.DocumentNode,
		Content: []*yaml.Node{{Kind: yaml.MappingNode}},
	}
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &root); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
	case !os.IsNotExist(err):
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := setYAMLValue(&root, strings.Split(key, "."), value); err != nil {
		return fmt.Errorf("failed to set value: %w", err)
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&root); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	encoder.Close()

	if err := os.WriteFile(configPath, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Printf("%s = %s\n", key, value)
	return nil
}

func configGet(cmd *cobra.Command, args []string) error {
	configPath, err := config.GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("config file does not exist")
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	value, err := getYAMLValue(&root, strings.Split(args[0], "."))
	if err != nil {
		return err
	}
	fmt.Println(value)
	return nil
}

// setYAMLValue sets the scalar at path, creating intermediate mappings.
// Comments elsewhere in the document are preserved.
func setYAMLValue(root *yaml.Node, path []string, value string) error {
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return fmt.Errorf("invalid document structure")
	}
	current := root.Content[0]
	if current.Kind != yaml.MappingNode {
		return fmt.Errorf("root is not a mapping")
	}

	for i, part := range path {
		isLast := i == len(path)-1
		next := mappingValue(current, part)
		if next == nil {
			next = &yaml.Node{Kind: yaml.MappingNode}
			if isLast {
				next = &yaml.Node{Kind: yaml.ScalarNode}
			}
			current.Content = append(current.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: part}, next)
		}
		if isLast {
			next.Kind = yaml.ScalarNode
			next.Tag = ""
			next.Value = value
			next.Content = nil
			return nil
		}
		if next.Kind != yaml.MappingNode {
			next.Kind = yaml.MappingNode
			next.Tag = ""
			next.Value = ""
			next.Content = nil
		}
		current = next
	}
	return nil
}

// getYAMLValue returns the scalar at path.
func getYAMLValue(root *yaml.Node, path []string) (string, error) {
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return "", fmt.Errorf("invalid document structure")
	}
	current := root.Content[0]
	for _, part := range path {
		if current.Kind != yaml.MappingNode {
			return "", fmt.Errorf("path not found: expected mapping")
		}
		current = mappingValue(current, part)
		if current == nil {
			return "", fmt.Errorf("key not found: %s", part)
		}
	}
	if current.Kind != yaml.ScalarNode {
		return "", fmt.Errorf("value is not a scalar")
	}
	return current.Value, nil
}

// mappingValue returns the value node for key in a mapping node, or nil.
func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for j := 0; j+1 < len(m.Content); j += 2 {
		if m.Content[j].Value == key {
			return m.Content[j+1]
		}
	}
	return nil
}
