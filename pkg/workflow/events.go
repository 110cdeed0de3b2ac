package workflow

// Event is a typed message routed between workflow stages. Each stage
// declares the kinds it consumes; the engine dispatches every produced event
// to the stages that accept its kind.
type Event interface {
	Kind() string
}

// Event kinds for the check creation workflow.
const (
	KindCheckCreationInput = "check_creation_input"
	KindBasicInfo          = "check_basic_information"
	KindMetadataInfo       = "check_metadata_information"
	KindServiceInfo        = "check_service_information"
	KindMetadataResult     = "check_metadata_result"
	KindServiceResult      = "check_service_result"
	KindCodeResult         = "check_code_result"

	KindFixerCreationInput = "fixer_creation_input"
	KindFixerBasicInfo     = "fixer_basic_information"
	KindFixerCodeResult    = "fixer_code_result"

	KindComplianceUpdateInput = "compliance_update_input"
	KindComplianceBasicInfo   = "compliance_basic_information"
	KindComplianceMatches     = "compliance_data_result"

	KindResult = "result"
)

// CheckCreationInput starts a check creation run.
type CheckCreationInput struct {
	Query string
}

func (CheckCreationInput) Kind() string { return KindCheckCreationInput }

// BasicInfo carries the triaged request: what the check should do and the
// classified provider and service.
type BasicInfo struct {
	Summary  string
	Provider string
	Service  string
}

func (BasicInfo) Kind() string { return KindBasicInfo }

// MetadataInfo feeds the metadata generation branch.
type MetadataInfo struct {
	Summary       string
	CheckName     string
	Provider      string
	RelatedChecks []string
}

func (MetadataInfo) Kind() string { return KindMetadataInfo }

// ServiceInfo feeds the service augmentation branch.
type ServiceInfo struct {
	Provider      string
	CheckName     string
	AuditSteps    string
	RelatedChecks []string
}

func (ServiceInfo) Kind() string { return KindServiceInfo }

// MetadataResult is the metadata branch's contribution to the join.
type MetadataResult struct {
	Metadata *CheckMetadata
}

func (MetadataResult) Kind() string { return KindMetadataResult }

// ServiceResult carries the possibly rewritten service source forward to
// code generation.
type ServiceResult struct {
	ServiceCode   string
	CheckName     string
	Provider      string
	AuditSteps    string
	RelatedChecks []string
}

func (ServiceResult) Kind() string { return KindServiceResult }

// CodeResult is the code branch's contribution to the join.
// ModifiedServiceCode is empty when the service source was left untouched.
type CodeResult struct {
	CheckCode           string
	ModifiedServiceCode string
}

func (CodeResult) Kind() string { return KindCodeResult }

// FixerCreationInput starts a fixer creation run.
type FixerCreationInput struct {
	Provider string
	CheckID  string
}

func (FixerCreationInput) Kind() string { return KindFixerCreationInput }

// FixerBasicInfo carries the target check's description and code.
type FixerBasicInfo struct {
	Description string
	CheckCode   string
	CheckID     string
}

func (FixerBasicInfo) Kind() string { return KindFixerBasicInfo }

// FixerCodeResult is the generated fixer code and its repository path.
type FixerCodeResult struct {
	FixerCode string
	FilePath  string
}

func (FixerCodeResult) Kind() string { return KindFixerCodeResult }

// ComplianceUpdateInput starts a compliance update run.
type ComplianceUpdateInput struct {
	Document *ComplianceDocument
}

func (ComplianceUpdateInput) Kind() string { return KindComplianceUpdateInput }

// ComplianceBasicInfo carries the validated document and its provider.
type ComplianceBasicInfo struct {
	Provider string
	Document *ComplianceDocument
}

func (ComplianceBasicInfo) Kind() string { return KindComplianceBasicInfo }

// ComplianceMatches carries the retrieval matches per requirement, ready to
// be merged into the document.
type ComplianceMatches struct {
	Document *ComplianceDocument
	Matches  []requirementChecks
}

func (ComplianceMatches) Kind() string { return KindComplianceMatches }
