package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/user/checkforge/pkg/config"
	"github.com/user/checkforge/pkg/llm"
	"github.com/user/checkforge/pkg/rag"
)

var buildRagCmd = &cobra.Command{
	Use:   "build-rag [repository-path]",
	Short: "Build or update the check index from a repository checkout",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		llm.DebugEnabled = DebugMode
		overwrite, _ := cmd.Flags().GetBool("overwrite")

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

		llm.Infof("Building check vector store...")
		if err := store.BuildOrUpdate(ctx, args[0], overwrite); err != nil {
			if errors.Is(err, rag.ErrIndexExists) {
				fmt.Println("An index already exists. Re-run with --overwrite to update it incrementally.")
				return
			}
			fmt.Printf("Error building index: %v\n", err)
			return
		}
		fmt.Printf("Check index is up to date in %s\n", cfg.StoreDir)
	},
}

func init() {
	buildRagCmd.Flags().Bool("overwrite", false, "Update an existing index instead of failing")
	rootCmd.AddCommand(buildRagCmd)
}
