package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/user/checkforge/pkg/llm"
)

const (
	// Compliance matching casts a wider net than check creation: a
	// requirement benefits from loosely related checks too.
	complianceCutoff = 0.6

	complianceTimeout = 5 * time.Minute
)

// ComplianceRequirement is one requirement of a compliance framework.
// Attributes are kept untyped so a rewritten file preserves whatever fields
// the framework carries.
type ComplianceRequirement struct {
	ID          string                   `json:"Id"`
	Description string                   `json:"Description"`
	Attributes  []map[string]interface{} `json:"Attributes"`
	Checks      []string                 `json:"Checks"`
}

// ComplianceDocument is a compliance framework file: a set of requirements
// whose Checks lists reference checks by ID.
type ComplianceDocument struct {
	Framework    string                  `json:"Framework"`
	Version      string                  `json:"Version"`
	Provider     string                  `json:"Provider"`
	Description  string                  `json:"Description"`
	Requirements []ComplianceRequirement `json:"Requirements"`
}

// Validate reports whether the document has the shape of a compliance file.
func (d *ComplianceDocument) Validate() error {
	if d.Framework == "" {
		return fmt.Errorf("compliance data has no Framework")
	}
	if d.Provider == "" {
		return fmt.Errorf("compliance data has no Provider")
	}
	if d.Requirements == nil {
		return fmt.Errorf("compliance data has no Requirements list")
	}
	for i, req := range d.Requirements {
		if req.ID == "" {
			return fmt.Errorf("requirement %d has no Id", i)
		}
		if req.Checks == nil {
			return fmt.Errorf("requirement %s has no Checks list", req.ID)
		}
		if req.Attributes == nil {
			return fmt.Errorf("requirement %s has no Attributes list", req.ID)
		}
	}
	return nil
}

// requirementChecks pairs a requirement ID with the check IDs retrieval
// found relevant for it.
type requirementChecks struct {
	ID     string
	Checks []string
}

// NewComplianceUpdateWorkflow wires the linear compliance pipeline: validate
// the document, match every requirement against the indexed checks, merge
// the matches into the document.
func NewComplianceUpdateWorkflow() *Engine {
	e := NewEngine(complianceTimeout)
	e.AddStage("compliance_setup", RetryPolicy{Delay: 10 * time.Second, MaxAttempts: 3}, complianceSetup, KindComplianceUpdateInput)
	e.AddStage("match_compliance_checks", RetryPolicy{Delay: 5 * time.Second, MaxAttempts: 3}, matchComplianceChecks, KindComplianceBasicInfo)
	e.AddStage("compliance_return", RetryPolicy{Delay: 5 * time.Second, MaxAttempts: 3}, complianceReturn, KindComplianceMatches)
	return e
}

func complianceSetup(ctx context.Context, run *Run, ev Event) ([]Event, error) {
	in := ev.(ComplianceUpdateInput)
	llm.Infof("Initializing...")

	if run.Store == nil {
		return terminal(softFailure("The assistant is not configured yet. Build the check index first.")), nil
	}
	if in.Document == nil || len(in.Document.Requirements) == 0 {
		return terminal(softFailure("The provided compliance data is empty.")), nil
	}

	provider := strings.ToLower(in.Document.Provider)
	run.Provider = provider

	return []Event{ComplianceBasicInfo{Provider: provider, Document: in.Document}}, nil
}

// matchComplianceChecks retrieves the indexed checks relevant to every
// requirement description. Only checks of the document's provider count.
func matchComplianceChecks(ctx context.Context, run *Run, ev Event) ([]Event, error) {
	info := ev.(ComplianceBasicInfo)
	llm.Infof("Matching requirements against indexed checks...")

	matches := make([]requirementChecks, 0, len(info.Document.Requirements))
	for _, req := range info.Document.Requirements {
		if req.Description == "" {
			matches = append(matches, requirementChecks{ID: req.ID})
			continue
		}
		related, err := run.Store.RelatedChecks(ctx, req.Description, relatedChecksTopK, complianceCutoff)
		if err != nil {
			return nil, err
		}

		byService := related[info.Provider]
		services := make([]string, 0, len(byService))
		for service := range byService {
			services = append(services, service)
		}
		sort.Strings(services)

		var checks []string
		for _, service := range services {
			checks = append(checks, byService[service]...)
		}
		matches = append(matches, requirementChecks{ID: req.ID, Checks: checks})
	}

	return []Event{ComplianceMatches{Document: info.Document, Matches: matches}}, nil
}

// complianceReturn merges the matched checks into the document. Existing
// check references are preserved and never duplicated.
func complianceReturn(ctx context.Context, run *Run, ev Event) ([]Event, error) {
	result := ev.(ComplianceMatches)
	llm.Infof("Updating compliance data...")

	added := 0
	for _, match := range result.Matches {
		for i := range result.Document.Requirements {
			req := &result.Document.Requirements[i]
			if req.ID != match.ID {
				continue
			}
			for _, check := range match.Checks {
				if !contains(req.Checks, check) {
					req.Checks = append(req.Checks, check)
					added++
				}
			}
			break
		}
	}

	return terminal(&Result{
		StatusCode: StatusSuccess,
		UserAnswer: fmt.Sprintf("Compliance data updated: %d check reference(s) added across %d requirement(s).",
			added, len(result.Document.Requirements)),
		ComplianceData: result.Document,
	}), nil
}
