package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/user/checkforge/pkg/llm"
)

const (
	relatedChecksTopK = 15
	similarityCutoff  = 0.75

	structuredAttempts   = 5
	structuredRetryDelay = 5 * time.Second

	runTimeout = 15 * time.Minute
)

// NewCheckCreationWorkflow wires the check creation pipeline: triage and
// classification, input analysis, the parallel metadata and service/code
// branches, and the fan-in that composes the final answer.
func NewCheckCreationWorkflow() *Engine {
	e := NewEngine(runTimeout)
	e.AddStage("workflow_setup", RetryPolicy{Delay: 10 * time.Second, MaxAttempts: 2}, workflowSetup, KindCheckCreationInput)
	e.AddStage("user_input_analysis", RetryPolicy{Delay: 5 * time.Second, MaxAttempts: 3}, userInputAnalysis, KindBasicInfo)
	e.AddStage("create_check_metadata", RetryPolicy{Delay: 5 * time.Second, MaxAttempts: 5}, createCheckMetadata, KindMetadataInfo)
	e.AddStage("modify_service", RetryPolicy{Delay: 5 * time.Second, MaxAttempts: 5}, modifyService, KindServiceInfo)
	e.AddStage("create_check_code", RetryPolicy{Delay: 5 * time.Second, MaxAttempts: 8}, createCheckCode, KindServiceResult)
	e.SetJoin("check_return", RetryPolicy{Delay: 5 * time.Second, MaxAttempts: 2}, checkReturn, KindMetadataResult, KindCodeResult)
	return e
}

// workflowSetup validates the request and classifies its provider and
// service before any generation happens.
func workflowSetup(ctx context.Context, run *Run, ev Event) ([]Event, error) {
	in := ev.(CheckCreationInput)
	llm.Infof("Initializing...")

	query := strings.TrimSpace(in.Query)
	if query == "" {
		return terminal(softFailure("Please describe the security check you want to create.")), nil
	}
	run.Query = query

	if run.LLM == nil || run.Store == nil {
		return terminal(softFailure("The assistant is not configured yet. Configure a model provider and build the check index first.")), nil
	}

	providers := run.Store.Inventory().AvailableProviders()
	if len(providers) == 0 {
		return terminal(softFailure("The check index is empty. Build it from a repository checkout before creating checks.")), nil
	}

	verdict, err := completePrompt(ctx, run, "basic_filter", map[string]interface{}{
		"Query":     query,
		"Providers": strings.Join(providers, ", "),
	})
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(verdict, "yes") {
		return terminal(softFailure(verdict)), nil
	}

	provider, err := completePrompt(ctx, run, "provider_extraction", map[string]interface{}{
		"Query":     query,
		"Providers": strings.Join(providers, ", "),
	})
	if err != nil {
		return nil, err
	}
	provider = strings.ToLower(provider)
	if !contains(providers, provider) {
		return terminal(softFailure(fmt.Sprintf(
			"Sorry but I cannot create a check for that provider, please try again with a supported provider (%s).",
			strings.Join(providers, ", ")))), nil
	}

	services := run.Store.Inventory().AvailableServices(provider)
	service, err := completePrompt(ctx, run, "service_extraction", map[string]interface{}{
		"Query":    query,
		"Provider": provider,
		"Services": strings.Join(services, ", "),
	})
	if err != nil {
		return nil, err
	}
	service = sanitizeAlnum(strings.ToLower(service))
	if !contains(services, service) {
		if service == "unknown" {
			return terminal(softFailure(fmt.Sprintf(
				"Sorry but I am not able to detect the service you want to create the check for. Make sure the service is currently supported; the supported services for %s are: %s.",
				provider, strings.Join(services, ", ")))), nil
		}
		return terminal(softFailure(fmt.Sprintf(
			"Sorry but the service you are targeting is not supported in the %s provider, please try again with a supported service: %s.",
			provider, strings.Join(services, ", ")))), nil
	}

	summary, err := completePrompt(ctx, run, "input_summary", map[string]interface{}{
		"Query":    query,
		"Provider": provider,
		"Service":  service,
	})
	if err != nil {
		return nil, err
	}

	run.Provider = provider
	run.Service = service
	return []Event{BasicInfo{Summary: summary, Provider: provider, Service: service}}, nil
}

// userInputAnalysis checks for an already existing equivalent check, gathers
// reference material, designs the check name and fans out into the metadata
// and service branches.
func userInputAnalysis(ctx context.Context, run *Run, ev Event) ([]Event, error) {
	info := ev.(BasicInfo)
	llm.Infof("Analyzing user input...")

	exists, err := run.Store.CheckExists(ctx, run.LLM, info.Summary, similarityCutoff)
	if err != nil {
		return nil, err
	}

	related, err := run.Store.RelatedChecks(ctx, info.Summary, relatedChecksTopK, similarityCutoff)
	if err != nil {
		return nil, err
	}
	referenceChecks := related[info.Provider][info.Service]

	if len(referenceChecks) == 0 {
		available := run.Store.Inventory().AvailableChecks(info.Provider, info.Service)
		if len(available) > 5 {
			available = available[:5]
		}
		referenceChecks = available

		if len(referenceChecks) == 0 {
			return terminal(softFailure("Sorry but I cannot create a new check for this service because there are no existing checks to base it on.")), nil
		}
	}

	if exists {
		message := "This check seems to already exist."
		listed := referenceChecks
		if len(listed) > 3 {
			listed = listed[:3]
		}
		message += " Here is a list of related checks that you should review before creating a new one:\n"
		for _, name := range listed {
			message += "- " + name + "\n"
		}
		return terminal(softFailure(strings.TrimRight(message, "\n"))), nil
	}

	checkName, err := completePrompt(ctx, run, "check_name_design", map[string]interface{}{
		"Service":       info.Service,
		"Description":   info.Summary,
		"RelatedChecks": strings.Join(referenceChecks, "\n"),
	})
	if err != nil {
		return nil, err
	}
	checkName = strings.ToLower(checkName)

	// Guards against the model inventing a name for an unrelated service.
	if strings.SplitN(checkName, "_", 2)[0] != info.Service {
		return terminal(softFailure("Sorry but there was an internal error while designing the check name, please try again.")), nil
	}

	auditSteps, err := completePrompt(ctx, run, "audit_steps", map[string]interface{}{
		"Description": info.Summary,
	})
	if err != nil {
		return nil, err
	}

	run.CheckPath = path.Join("providers", info.Provider, "services", info.Service, checkName)

	return []Event{
		MetadataInfo{
			Summary:       info.Summary,
			CheckName:     checkName,
			Provider:      info.Provider,
			RelatedChecks: referenceChecks,
		},
		ServiceInfo{
			Provider:      info.Provider,
			CheckName:     checkName,
			AuditSteps:    auditSteps,
			RelatedChecks: referenceChecks,
		},
	}, nil
}

// createCheckMetadata generates the structured metadata record, grounded on
// the related checks' metadata. Structured output is not fully reliable, so
// parse failures are retried a bounded number of times before giving up.
func createCheckMetadata(ctx context.Context, run *Run, ev Event) ([]Event, error) {
	info := ev.(MetadataInfo)
	llm.Infof("Creating check metadata...")

	service := strings.SplitN(info.CheckName, "_", 2)[0]
	var relatedMetadata []string
	for _, name := range info.RelatedChecks {
		metadata, err := run.Store.Inventory().CheckMetadata(info.Provider, service, name)
		if err != nil {
			return nil, err
		}
		if len(metadata) == 0 {
			continue
		}
		raw, err := json.MarshalIndent(metadata, "", "  ")
		if err != nil {
			return nil, err
		}
		relatedMetadata = append(relatedMetadata, string(raw))
	}

	prompt, err := renderPrompt("metadata_generation", map[string]interface{}{
		"CheckName":       info.CheckName,
		"Provider":        info.Provider,
		"Description":     info.Summary,
		"RelatedMetadata": strings.Join(relatedMetadata, "\n---\n"),
	})
	if err != nil {
		return nil, err
	}

	var metadata CheckMetadata
	for attempt := 1; ; attempt++ {
		err = run.LLM.StructuredPredict(ctx, prompt, &metadata)
		if err == nil {
			err = metadata.Validate()
		}
		if err == nil {
			break
		}
		llm.Debugf("structured metadata attempt %d/%d failed: %v", attempt, structuredAttempts, err)
		if attempt == structuredAttempts || ctx.Err() != nil {
			return nil, err
		}
		select {
		case <-time.After(structuredRetryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// The identity fields are derived, not generated.
	metadata.CheckID = info.CheckName
	metadata.Provider = info.Provider
	metadata.ServiceName = service

	return []Event{MetadataResult{Metadata: &metadata}}, nil
}

// modifyService decides whether the service class already exposes everything
// the audit steps need, and rewrites the whole file when it does not. The
// whole-file rewrite trades output size for a much simpler validation story
// than applying patches.
func modifyService(ctx context.Context, run *Run, ev Event) ([]Event, error) {
	info := ev.(ServiceInfo)
	llm.Infof("Checking service...")

	service := strings.SplitN(info.CheckName, "_", 2)[0]
	serviceCode, err := run.Store.Inventory().ServiceCode(info.Provider, service)
	if err != nil {
		return nil, err
	}

	complete, err := completePrompt(ctx, run, "is_service_complete", map[string]interface{}{
		"ServiceCode": serviceCode,
		"AuditSteps":  info.AuditSteps,
	})
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(complete, "no") {
		missing, err := completePrompt(ctx, run, "missing_attributes", map[string]interface{}{
			"ServiceCode": serviceCode,
			"AuditSteps":  info.AuditSteps,
		})
		if err != nil {
			return nil, err
		}

		rewritten, err := completePrompt(ctx, run, "modify_service", map[string]interface{}{
			"ServiceCode":       serviceCode,
			"MissingAttributes": missing,
		})
		if err != nil {
			return nil, err
		}
		serviceCode = stripFence(rewritten)
	}

	return []Event{ServiceResult{
		ServiceCode:   serviceCode,
		CheckName:     info.CheckName,
		Provider:      info.Provider,
		AuditSteps:    info.AuditSteps,
		RelatedChecks: info.RelatedChecks,
	}}, nil
}

// createCheckCode generates the check code grounded on the related checks'
// code and the (possibly rewritten) service class.
func createCheckCode(ctx context.Context, run *Run, ev Event) ([]Event, error) {
	info := ev.(ServiceResult)
	llm.Infof("Creating check code...")

	var relatedCode []string
	for _, name := range info.RelatedChecks {
		code, err := run.Store.Inventory().CheckCode(info.Provider, strings.SplitN(name, "_", 2)[0], name)
		if err != nil {
			return nil, err
		}
		if code != "" {
			relatedCode = append(relatedCode, code)
		}
	}

	service := strings.SplitN(info.CheckName, "_", 2)[0]
	checkCode, err := completePrompt(ctx, run, "check_code_generation", map[string]interface{}{
		"CheckName":   info.CheckName,
		"ServiceName": service,
		"AuditSteps":  info.AuditSteps,
		"RelatedCode": strings.Join(relatedCode, "\n---\n"),
		"ServiceCode": info.ServiceCode,
	})
	if err != nil {
		return nil, err
	}

	originalServiceCode, err := run.Store.Inventory().ServiceCode(info.Provider, service)
	if err != nil {
		return nil, err
	}

	// stripFence trims trailing whitespace, so a rewrite that only differs
	// by a final newline is not a modification.
	modified := ""
	if strings.TrimRight(info.ServiceCode, "\n") != strings.TrimRight(originalServiceCode, "\n") {
		modified = info.ServiceCode
	}

	return []Event{CodeResult{
		CheckCode:           stripFence(checkCode),
		ModifiedServiceCode: modified,
	}}, nil
}

// checkReturn is the fan-in: it runs once both branch results arrived,
// composes the final answer and derives generic remediation guidance.
func checkReturn(ctx context.Context, run *Run, events map[string]Event) ([]Event, error) {
	metadataResult := events[KindMetadataResult].(MetadataResult)
	codeResult := events[KindCodeResult].(CodeResult)
	llm.Infof("Returning check...")

	serviceDiff := ""
	if codeResult.ModifiedServiceCode != "" {
		originalServiceCode, err := run.Store.Inventory().ServiceCode(run.Provider, run.Service)
		if err != nil {
			return nil, err
		}
		serviceDiff = unifiedDiff(
			originalServiceCode,
			codeResult.ModifiedServiceCode,
			run.Service+"_service.py",
			"modified_"+run.Service+"_service.py",
		)
	}

	metadataJSON, err := json.MarshalIndent(metadataResult.Metadata, "", "  ")
	if err != nil {
		return nil, err
	}

	finalAnswer, err := completePrompt(ctx, run, "final_answer", map[string]interface{}{
		"CheckName":     path.Base(run.CheckPath),
		"CheckPath":     run.CheckPath,
		"ServicePath":   path.Dir(run.CheckPath),
		"CheckMetadata": string(metadataJSON),
		"CheckCode":     codeResult.CheckCode,
		"ServiceDiff":   serviceDiff,
	})
	if err != nil {
		return nil, err
	}

	remediation, err := completePrompt(ctx, run, "remediation", map[string]interface{}{
		"FinalAnswer": finalAnswer,
	})
	if err != nil {
		return nil, err
	}

	return terminal(&Result{
		StatusCode:         StatusSuccess,
		UserAnswer:         finalAnswer,
		CheckMetadata:      metadataResult.Metadata,
		CheckCode:          codeResult.CheckCode,
		CheckPath:          run.CheckPath,
		GenericRemediation: remediation,
		ServiceCode:        codeResult.ModifiedServiceCode,
	}), nil
}

// completePrompt renders a template and sends it to the run's model.
func completePrompt(ctx context.Context, run *Run, promptName string, data map[string]interface{}) (string, error) {
	prompt, err := renderPrompt(promptName, data)
	if err != nil {
		return "", err
	}
	answer, err := run.LLM.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

func terminal(r *Result) []Event {
	return []Event{r}
}

func contains(haystack []string, needle string) bool {
	for _, item := range haystack {
		if item == needle {
			return true
		}
	}
	return false
}

// sanitizeAlnum drops everything but letters and digits, so a model answer
// like "`s3`." still matches the service list.
func sanitizeAlnum(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// stripFence removes a markdown code fence the model may have wrapped a
// source file in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
