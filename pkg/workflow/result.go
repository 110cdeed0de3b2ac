package workflow

// Result status codes.
const (
	StatusSuccess     = 0
	StatusSoftFailure = 1
	StatusHardError   = 2
)

// Result is the terminal event of every workflow run. It is transport
// agnostic: the CLI and any server wrapper render the same object.
// ErrorMessage carries internal detail for logging and is never shown to the
// user; UserAnswer is the only user-facing text.
type Result struct {
	StatusCode int    `json:"status_code"`
	UserAnswer string `json:"user_answer"`

	CheckMetadata      *CheckMetadata `json:"check_metadata,omitempty"`
	CheckCode          string         `json:"check_code,omitempty"`
	CheckPath          string         `json:"check_path,omitempty"`
	GenericRemediation string         `json:"generic_remediation,omitempty"`
	// ServiceCode is set only when the service source had to be modified.
	ServiceCode string `json:"service_code,omitempty"`

	FixerCode string `json:"fixer_code,omitempty"`
	FixerPath string `json:"fixer_path,omitempty"`

	ComplianceData *ComplianceDocument `json:"compliance_data,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
}

func (*Result) Kind() string { return KindResult }

func softFailure(answer string) *Result {
	return &Result{StatusCode: StatusSoftFailure, UserAnswer: answer}
}

func hardError(internal string) *Result {
	return &Result{
		StatusCode:   StatusHardError,
		UserAnswer:   "Sorry, something went wrong on our side while processing your request. Please try again later.",
		ErrorMessage: internal,
	}
}
