package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/user/checkforge/pkg/config"
	"github.com/user/checkforge/pkg/llm"
	"github.com/user/checkforge/pkg/workflow"
)

var updateComplianceCmd = &cobra.Command{
	Use:   "update-compliance [compliance-file]",
	Short: "Fill a compliance file's requirements with relevant existing checks",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		llm.DebugEnabled = DebugMode
		compliancePath := args[0]

		raw, err := os.ReadFile(compliancePath)
		if err != nil {
			fmt.Printf("Error reading compliance file: %v\n", err)
			return
		}
		var doc workflow.ComplianceDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			fmt.Printf("Invalid JSON file at %s: %v\n", compliancePath, err)
			return
		}
		if err := doc.Validate(); err != nil {
			fmt.Printf("Invalid compliance JSON format: %v\n", err)
			return
		}

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			return
		}

		ctx := context.Background()
		store, err := resolveStore(ctx, cfg)
		if err != nil {
			fmt.Printf("Error opening check index: %v\n", err)
			return
		}

		engine := workflow.NewComplianceUpdateWorkflow()
		run := &workflow.Run{Store: store}
		result := engine.Execute(ctx, run, workflow.ComplianceUpdateInput{Document: &doc})

		fmt.Println(result.UserAnswer)
		if result.StatusCode != workflow.StatusSuccess {
			return
		}

		updated, err := json.MarshalIndent(result.ComplianceData, "", "    ")
		if err != nil {
			fmt.Printf("Error encoding updated compliance data: %v\n", err)
			return
		}
		if err := os.WriteFile(compliancePath, updated, 0644); err != nil {
			fmt.Printf("Error writing compliance file: %v\n", err)
			return
		}
		fmt.Printf("Updated compliance data written to %s\n", compliancePath)
	},
}

func init() {
	rootCmd.AddCommand(updateComplianceCmd)
}
