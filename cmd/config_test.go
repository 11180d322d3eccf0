package cmd

import (
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestSetYAMLValue(t *testing.T) {
	src := `# gemchat config
gemini:
  model: gemini-2.5-flash  # current model
cdn:
  enabled: true
`
	var root yaml.Node
	if err := yaml.Unmarshal([]byte(src), &root); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	tests := []struct {
		key   string
		value string
	}{
		{"gemini.model", "gemini-3-pro-preview"},
		{"cdn.concurrency", "5"},
		{"image.output_dir", "/tmp/pics"},
	}
	for _, tt := range tests {
		if err := setYAMLValue(&root, strings.Split(tt.key, "."), tt.value); err != nil {
			t.Fatalf("setYAMLValue(%s) failed: %v", tt.key, err)
		}
	}
	for _, tt := range tests {
		got, err := getYAMLValue(&root, strings.Split(tt.key, "."))
		if err != nil {
			t.Fatalf("getYAMLValue(%s) failed: %v", tt.key, err)
		}
		if got != tt.value {
			t.Errorf("%s = %q, want %q", tt.key, got, tt.value)
		}
	}

	out, err := yaml.Marshal(&root)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), "# gemchat config") {
		t.Errorf("expected comments to be preserved:\n%s", out)
	}
	if got, _ := getYAMLValue(&root, []string{"cdn", "enabled"}); got != "true" {
		t.Errorf("cdn.enabled = %q, want untouched true", got)
	}
}

func TestGetYAMLValueErrors(t *testing.T) {
	var root yaml.Node
	if err := yaml.Unmarshal([]byte("gemini:\n  model: x\n"), &root); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, err := getYAMLValue(&root, []string{"gemini"}); err == nil {
		t.Error("expected error for non-scalar value")
	}
	if _, err := getYAMLValue(&root, []string{"cdn", "enabled"}); err == nil {
		t.Error("expected error for missing key")
	}
	if _, err := getYAMLValue(&yaml.Node{}, []string{"x"}); err == nil {
		t.Error("expected error for empty document")
	}
}

func TestFormatRelativeTime(t *testing.T) {
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{5 * time.Minute, "5m ago"},
		{3 * time.Hour, "3h ago"},
		{50 * time.Hour, "2d ago"},
	}
	for _, tt := range tests {
		if got := formatRelativeTime(time.Now().Add(-tt.ago)); got != tt.want {
			t.Errorf("formatRelativeTime(-%s) = %q, want %q", tt.ago, got, tt.want)
		}
	}
}

func TestFilterPrefix(t *testing.T) {
	got := filterPrefix([]string{"gemini-2.5-flash", "gemini-3-pro-preview", "other"}, "gemini-3")
	if len(got) != 1 || got[0] != "gemini-3-pro-preview" {
		t.Errorf("filterPrefix = %v", got)
	}
}
