package workflow

import (
	"context"
	"strings"
	"testing"
)

func validComplianceDocument() *ComplianceDocument {
	return &ComplianceDocument{
		Framework:   "CIS",
		Version:     "2.0",
		Provider:    "AWS",
		Description: "CIS benchmark",
		Requirements: []ComplianceRequirement{
			{
				ID:          "1.1",
				Description: "The check 's3_bucket_public_access' titled 'S3 bucket public access' applies to the 's3' service in the provider 'aws'. It has a severity of 'high' The description states: 'Ensure S3 buckets block all public access' The risk is 'exposure' Additional notes: ''",
				Attributes:  []map[string]interface{}{{"Section": "1", "Service": "s3", "Type": "Automated"}},
				Checks:      []string{},
			},
			{
				ID:          "1.2",
				Description: "Employees must wear identification badges at all times",
				Attributes:  []map[string]interface{}{{"Section": "1", "Service": "hr", "Type": "Manual"}},
				Checks:      []string{},
			},
		},
	}
}

func TestComplianceDocumentValidate(t *testing.T) {
	doc := validComplianceDocument()
	if err := doc.Validate(); err != nil {
		t.Fatalf("valid document rejected: %v", err)
	}

	doc = validComplianceDocument()
	doc.Framework = ""
	if err := doc.Validate(); err == nil || !strings.Contains(err.Error(), "Framework") {
		t.Errorf("missing Framework: %v", err)
	}

	doc = validComplianceDocument()
	doc.Requirements = nil
	if err := doc.Validate(); err == nil || !strings.Contains(err.Error(), "Requirements") {
		t.Errorf("missing Requirements: %v", err)
	}

	doc = validComplianceDocument()
	doc.Requirements[0].ID = ""
	if err := doc.Validate(); err == nil || !strings.Contains(err.Error(), "Id") {
		t.Errorf("missing requirement Id: %v", err)
	}

	doc = validComplianceDocument()
	doc.Requirements[1].Checks = nil
	if err := doc.Validate(); err == nil || !strings.Contains(err.Error(), "Checks") {
		t.Errorf("missing Checks list: %v", err)
	}

	doc = validComplianceDocument()
	doc.Requirements[1].Attributes = nil
	if err := doc.Validate(); err == nil || !strings.Contains(err.Error(), "Attributes") {
		t.Errorf("missing Attributes list: %v", err)
	}
}

func TestComplianceUpdateMatchesRequirements(t *testing.T) {
	doc := validComplianceDocument()
	run := &Run{Store: buildTestStore(t)}
	result := NewComplianceUpdateWorkflow().Execute(context.Background(), run,
		ComplianceUpdateInput{Document: doc})

	if result.StatusCode != StatusSuccess {
		t.Fatalf("StatusCode = %d, answer %q, error %q", result.StatusCode, result.UserAnswer, result.ErrorMessage)
	}
	if result.ComplianceData == nil {
		t.Fatal("missing compliance data in result")
	}

	first := result.ComplianceData.Requirements[0]
	if !contains(first.Checks, "s3_bucket_public_access") {
		t.Errorf("requirement 1.1 missing the matching check, got %v", first.Checks)
	}

	// an unrelated requirement picks up nothing
	second := result.ComplianceData.Requirements[1]
	if len(second.Checks) != 0 {
		t.Errorf("requirement 1.2 unexpectedly matched checks: %v", second.Checks)
	}
}

func TestComplianceUpdatePreservesExistingChecks(t *testing.T) {
	doc := validComplianceDocument()
	doc.Requirements[0].Checks = []string{"s3_bucket_public_access", "some_manual_reference"}

	run := &Run{Store: buildTestStore(t)}
	result := NewComplianceUpdateWorkflow().Execute(context.Background(), run,
		ComplianceUpdateInput{Document: doc})

	if result.StatusCode != StatusSuccess {
		t.Fatalf("StatusCode = %d, error %q", result.StatusCode, result.ErrorMessage)
	}

	checks := result.ComplianceData.Requirements[0].Checks
	seen := 0
	for _, check := range checks {
		if check == "s3_bucket_public_access" {
			seen++
		}
	}
	if seen != 1 {
		t.Errorf("existing check duplicated: %v", checks)
	}
	if !contains(checks, "some_manual_reference") {
		t.Errorf("pre-existing reference dropped: %v", checks)
	}
}

func TestComplianceUpdateEmptyData(t *testing.T) {
	run := &Run{Store: buildTestStore(t)}
	result := NewComplianceUpdateWorkflow().Execute(context.Background(), run,
		ComplianceUpdateInput{Document: &ComplianceDocument{Framework: "CIS", Provider: "AWS"}})

	if result.StatusCode != StatusSoftFailure {
		t.Fatalf("StatusCode = %d", result.StatusCode)
	}
	if !strings.Contains(result.UserAnswer, "empty") {
		t.Errorf("UserAnswer = %q", result.UserAnswer)
	}
}

func TestComplianceUpdateUnconfigured(t *testing.T) {
	result := NewComplianceUpdateWorkflow().Execute(context.Background(), &Run{},
		ComplianceUpdateInput{Document: validComplianceDocument()})

	if result.StatusCode != StatusSoftFailure {
		t.Fatalf("StatusCode = %d", result.StatusCode)
	}
	if !strings.Contains(result.UserAnswer, "not configured") {
		t.Errorf("UserAnswer = %q", result.UserAnswer)
	}
}
