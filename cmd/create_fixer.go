package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/user/checkforge/pkg/config"
	"github.com/user/checkforge/pkg/llm"
	"github.com/user/checkforge/pkg/workflow"
)

var createFixerOutputDir string

var createFixerCmd = &cobra.Command{
	Use:   "create-fixer [check-id]",
	Short: "Generate a remediation fixer for an existing check",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		llm.DebugEnabled = DebugMode
		checkID := args[0]
		provider, _ := cmd.Flags().GetString("provider")

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			return
		}

		ctx := context.Background()
		client, err := resolveClient(ctx, cfg)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		store, err := resolveStore(ctx, cfg)
		if err != nil {
			fmt.Printf("Error opening check index: %v\n", err)
			return
		}

		engine := workflow.NewFixerCreationWorkflow()
		run := &workflow.Run{
			LLM:   client,
			Store: store,
		}
		result := engine.Execute(ctx, run, workflow.FixerCreationInput{Provider: provider, CheckID: checkID})

		fmt.Println(result.UserAnswer)
		if result.StatusCode != workflow.StatusSuccess || createFixerOutputDir == "" {
			return
		}

		fixerPath := filepath.Join(createFixerOutputDir, filepath.FromSlash(result.FixerPath))
		if err := os.MkdirAll(filepath.Dir(fixerPath), 0755); err != nil {
			fmt.Printf("Error writing fixer file: %v\n", err)
			return
		}
		if err := os.WriteFile(fixerPath, []byte(result.FixerCode), 0644); err != nil {
			fmt.Printf("Error writing fixer file: %v\n", err)
			return
		}
		fmt.Printf("Fixer written to %s\n", fixerPath)
	},
}

func init() {
	createFixerCmd.Flags().StringP("provider", "p", "aws", "Provider of the check")
	createFixerCmd.Flags().StringVarP(&createFixerOutputDir, "output", "o", "", "Directory to write the generated fixer into")
	rootCmd.AddCommand(createFixerCmd)
}
