package workflow

import (
	"context"
	"strings"
	"testing"
)

func TestFixerCreationSuccess(t *testing.T) {
	client := &fakeClient{
		script: []promptReply{
			{"Write the remediation fixer", "```python\ndef fixer(resource):\n    return True\n```"},
			{"requested a remediation fixer", "Your fixer is ready."},
		},
	}

	run := &Run{LLM: client, Store: buildTestStore(t)}
	result := NewFixerCreationWorkflow().Execute(context.Background(), run,
		FixerCreationInput{Provider: "aws", CheckID: "s3_bucket_public_access"})

	if result.StatusCode != StatusSuccess {
		t.Fatalf("StatusCode = %d, answer %q, error %q", result.StatusCode, result.UserAnswer, result.ErrorMessage)
	}
	if result.UserAnswer != "Your fixer is ready." {
		t.Errorf("UserAnswer = %q", result.UserAnswer)
	}
	if result.FixerCode != "def fixer(resource):\n    return True" {
		t.Errorf("FixerCode = %q", result.FixerCode)
	}
	want := "providers/aws/services/s3/s3_bucket_public_access/s3_bucket_public_access_fixer.py"
	if result.FixerPath != want {
		t.Errorf("FixerPath = %q", result.FixerPath)
	}

	// the generation prompt must carry the check's code as grounding
	var fixerPrompt string
	for _, prompt := range client.prompts {
		if strings.Contains(prompt, "Write the remediation fixer") {
			fixerPrompt = prompt
		}
	}
	if !strings.Contains(fixerPrompt, "class s3_bucket_public_access") {
		t.Errorf("fixer prompt missing the check code:\n%s", fixerPrompt)
	}
}

func TestFixerCreationAWSOnly(t *testing.T) {
	run := &Run{LLM: &fakeClient{}, Store: buildTestStore(t)}
	result := NewFixerCreationWorkflow().Execute(context.Background(), run,
		FixerCreationInput{Provider: "gcp", CheckID: "compute_firewall_open"})

	if result.StatusCode != StatusSoftFailure {
		t.Fatalf("StatusCode = %d", result.StatusCode)
	}
	if !strings.Contains(result.UserAnswer, "aws provider") {
		t.Errorf("UserAnswer = %q", result.UserAnswer)
	}
}

func TestFixerCreationUnknownCheck(t *testing.T) {
	run := &Run{LLM: &fakeClient{}, Store: buildTestStore(t)}
	result := NewFixerCreationWorkflow().Execute(context.Background(), run,
		FixerCreationInput{Provider: "aws", CheckID: "s3_bucket_does_not_exist"})

	if result.StatusCode != StatusSoftFailure {
		t.Fatalf("StatusCode = %d", result.StatusCode)
	}
	if !strings.Contains(result.UserAnswer, "does not exist in the index") {
		t.Errorf("UserAnswer = %q", result.UserAnswer)
	}
}

func TestFixerCreationUnconfigured(t *testing.T) {
	result := NewFixerCreationWorkflow().Execute(context.Background(), &Run{},
		FixerCreationInput{Provider: "aws", CheckID: "s3_bucket_public_access"})

	if result.StatusCode != StatusSoftFailure {
		t.Fatalf("StatusCode = %d", result.StatusCode)
	}
	if !strings.Contains(result.UserAnswer, "not configured") {
		t.Errorf("UserAnswer = %q", result.UserAnswer)
	}
}
