package workflow

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/user/checkforge/pkg/llm"
)

// NewFixerCreationWorkflow wires the linear fixer pipeline: validate the
// target check, generate the fixer code, compose the final answer.
func NewFixerCreationWorkflow() *Engine {
	e := NewEngine(runTimeout)
	e.AddStage("fixer_setup", RetryPolicy{Delay: 10 * time.Second, MaxAttempts: 2}, fixerSetup, KindFixerCreationInput)
	e.AddStage("create_fixer_code", RetryPolicy{Delay: 5 * time.Second, MaxAttempts: 5}, createFixerCode, KindFixerBasicInfo)
	e.AddStage("fixer_return", RetryPolicy{Delay: 5 * time.Second, MaxAttempts: 2}, fixerReturn, KindFixerCodeResult)
	return e
}

func fixerSetup(ctx context.Context, run *Run, ev Event) ([]Event, error) {
	in := ev.(FixerCreationInput)
	llm.Infof("Initializing...")

	if run.LLM == nil || run.Store == nil {
		return terminal(softFailure("The assistant is not configured yet. Configure a model provider and build the check index first.")), nil
	}

	// Fixers are only supported for aws for now.
	if in.Provider != "aws" {
		return terminal(softFailure("Sorry but fixers can only be created for the aws provider for now. We are working on adding more providers soon.")), nil
	}

	service := strings.SplitN(in.CheckID, "_", 2)[0]
	available := run.Store.Inventory().AvailableChecks(in.Provider, service)
	if !contains(available, in.CheckID) {
		return terminal(softFailure(fmt.Sprintf(
			"The check %s does not exist in the index. Try rebuilding the index from the latest repository checkout.", in.CheckID))), nil
	}

	metadata, err := run.Store.Inventory().CheckMetadata(in.Provider, service, in.CheckID)
	if err != nil {
		return nil, err
	}
	code, err := run.Store.Inventory().CheckCode(in.Provider, service, in.CheckID)
	if err != nil {
		return nil, err
	}

	run.Provider = in.Provider
	run.Service = service

	description, _ := metadata["Description"].(string)
	return []Event{FixerBasicInfo{
		Description: description,
		CheckCode:   code,
		CheckID:     in.CheckID,
	}}, nil
}

func createFixerCode(ctx context.Context, run *Run, ev Event) ([]Event, error) {
	info := ev.(FixerBasicInfo)
	llm.Infof("Generating fixer code...")

	service := strings.SplitN(info.CheckID, "_", 2)[0]
	fixerCode, err := completePrompt(ctx, run, "fixer_code", map[string]interface{}{
		"CheckID":     info.CheckID,
		"ServiceName": service,
		"Description": info.Description,
		"CheckCode":   info.CheckCode,
	})
	if err != nil {
		return nil, err
	}

	return []Event{FixerCodeResult{
		FixerCode: stripFence(fixerCode),
		FilePath:  path.Join("providers", run.Provider, "services", service, info.CheckID, info.CheckID+"_fixer.py"),
	}}, nil
}

func fixerReturn(ctx context.Context, run *Run, ev Event) ([]Event, error) {
	result := ev.(FixerCodeResult)
	llm.Infof("Returning fixer...")

	checkID := strings.TrimSuffix(path.Base(result.FilePath), "_fixer.py")
	finalAnswer, err := completePrompt(ctx, run, "fixer_final_answer", map[string]interface{}{
		"CheckID":   checkID,
		"FixerCode": result.FixerCode,
		"FilePath":  result.FilePath,
	})
	if err != nil {
		return nil, err
	}

	return terminal(&Result{
		StatusCode: StatusSuccess,
		UserAnswer: finalAnswer,
		FixerCode:  result.FixerCode,
		FixerPath:  result.FilePath,
	}), nil
}
