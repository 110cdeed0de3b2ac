package workflow

import (
	"strings"
	"testing"
)

func TestRenderPromptSubstitutes(t *testing.T) {
	prompt, err := renderPrompt("provider_extraction", map[string]interface{}{
		"Query":     "make an s3 check",
		"Providers": "aws, gcp",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(prompt, "aws, gcp") {
		t.Errorf("providers not substituted:\n%s", prompt)
	}
	if !strings.Contains(prompt, "make an s3 check") {
		t.Errorf("query not substituted:\n%s", prompt)
	}
}

func TestRenderPromptUnknownName(t *testing.T) {
	if _, err := renderPrompt("no_such_prompt", nil); err == nil {
		t.Error("expected error for unknown prompt name")
	}
}

func TestAllPromptsRender(t *testing.T) {
	names := []string{
		"basic_filter", "provider_extraction", "service_extraction",
		"input_summary", "check_name_design", "audit_steps",
		"metadata_generation", "is_service_complete", "missing_attributes",
		"modify_service", "check_code_generation", "final_answer",
		"remediation", "fixer_code", "fixer_final_answer",
	}
	for _, name := range names {
		if _, err := renderPrompt(name, map[string]interface{}{}); err != nil {
			t.Errorf("prompt %s: %v", name, err)
		}
	}
}

func TestStripFence(t *testing.T) {
	cases := []struct{ in, want string }{
		{"no fence here", "no fence here"},
		{"```python\ncode\n```", "code"},
		{"```\ncode\n```", "code"},
		{"  ```python\nline1\nline2\n```  ", "line1\nline2"},
		{"```python\nunterminated", "unterminated"},
	}
	for _, c := range cases {
		if got := stripFence(c.in); got != c.want {
			t.Errorf("stripFence(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSanitizeAlnum(t *testing.T) {
	cases := []struct{ in, want string }{
		{"s3", "s3"},
		{"`s3`.", "s3"},
		{" ec2 \n", "ec2"},
		{"'unknown'", "unknown"},
	}
	for _, c := range cases {
		if got := sanitizeAlnum(c.in); got != c.want {
			t.Errorf("sanitizeAlnum(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
