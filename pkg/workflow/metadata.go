package workflow

import "fmt"

// RemediationCode holds remediation snippets per IaC flavor.
type RemediationCode struct {
	NativeIaC string `json:"NativeIaC"`
	Terraform string `json:"Terraform"`
	CLI       string `json:"CLI"`
	Other     string `json:"Other"`
}

// Recommendation is a human-readable remediation recommendation.
type Recommendation struct {
	Text string `json:"Text"`
	Url  string `json:"Url"`
}

// Remediation pairs remediation code with a recommendation.
type Remediation struct {
	Code           RemediationCode `json:"Code"`
	Recommendation Recommendation  `json:"Recommendation"`
}

// CheckMetadata is the structured metadata record of a generated check.
// Field names match the metadata files of the audited repository.
type CheckMetadata struct {
	Provider           string      `json:"Provider"`
	CheckID            string      `json:"CheckID"`
	CheckTitle         string      `json:"CheckTitle"`
	CheckType          []string    `json:"CheckType"`
	ServiceName        string      `json:"ServiceName"`
	SubServiceName     string      `json:"SubServiceName"`
	ResourceIdTemplate string      `json:"ResourceIdTemplate"`
	Severity           string      `json:"Severity"`
	ResourceType       string      `json:"ResourceType"`
	Description        string      `json:"Description"`
	Risk               string      `json:"Risk"`
	RelatedUrl         string      `json:"RelatedUrl"`
	Remediation        Remediation `json:"Remediation"`
	Categories         []string    `json:"Categories"`
	DependsOn          []string    `json:"DependsOn"`
	RelatedTo          []string    `json:"RelatedTo"`
	Notes              string      `json:"Notes"`
}

var validSeverities = map[string]bool{
	"critical": true,
	"high":     true,
	"medium":   true,
	"low":      true,
}

// Validate reports whether the generated metadata is usable.
func (m *CheckMetadata) Validate() error {
	if m.CheckID == "" {
		return errEmptyField("CheckID")
	}
	if m.CheckTitle == "" {
		return errEmptyField("CheckTitle")
	}
	if m.Description == "" {
		return errEmptyField("Description")
	}
	if !validSeverities[m.Severity] {
		return fmt.Errorf("generated metadata has invalid severity %q", m.Severity)
	}
	return nil
}

func errEmptyField(name string) error {
	return fmt.Errorf("generated metadata has empty %s", name)
}
