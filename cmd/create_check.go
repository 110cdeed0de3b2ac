package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/user/checkforge/pkg/config"
	"github.com/user/checkforge/pkg/llm"
	"github.com/user/checkforge/pkg/workflow"
)

var createCheckOutputDir string

var createCheckCmd = &cobra.Command{
	Use:   "create-check [request]",
	Short: "Generate a new security check from a natural language request",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		llm.DebugEnabled = DebugMode
		query := strings.Join(args, " ")

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

		engine := workflow.NewCheckCreationWorkflow()
		run := &workflow.Run{
			Query: query,
			LLM:   client,
			Store: store,
		}
		result := engine.Execute(ctx, run, workflow.CheckCreationInput{Query: query})

		fmt.Println(result.UserAnswer)
		if result.StatusCode != workflow.StatusSuccess {
			return
		}

		if createCheckOutputDir != "" {
			if err := writeCheckFiles(createCheckOutputDir, result); err != nil {
				fmt.Printf("Error writing check files: %v\n", err)
			}
		}
	},
}

// writeCheckFiles materializes a successful result under the output
// directory, mirroring the repository layout of the check path.
func writeCheckFiles(outputDir string, result *workflow.Result) error {
	checkDir := filepath.Join(outputDir, filepath.FromSlash(result.CheckPath))
	if err := os.MkdirAll(checkDir, 0755); err != nil {
		return err
	}
	checkName := filepath.Base(checkDir)

	metadataJSON, err := json.MarshalIndent(result.CheckMetadata, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(checkDir, checkName+".metadata.json"), metadataJSON, 0644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(checkDir, checkName+".py"), []byte(result.CheckCode), 0644); err != nil {
		return err
	}
	if result.ServiceCode != "" {
		service := filepath.Base(filepath.Dir(checkDir))
		servicePath := filepath.Join(filepath.Dir(checkDir), "modified_"+service+"_service.py")
		if err := os.WriteFile(servicePath, []byte(result.ServiceCode), 0644); err != nil {
			return err
		}
	}
	fmt.Printf("Check files written under %s\n", checkDir)
	return nil
}

func init() {
	createCheckCmd.Flags().StringVarP(&createCheckOutputDir, "output", "o", "", "Directory to write the generated check files into")
	rootCmd.AddCommand(createCheckCmd)
}
