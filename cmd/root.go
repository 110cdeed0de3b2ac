package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "checkforge",
	Short: "AI-assisted security check authoring for cloud repositories",
	Long: `CheckForge generates new security audit checks and remediation fixers
for a cloud security repository, grounding the generation on an indexed
inventory of the checks that already exist.`,
}

var DebugMode bool

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&DebugMode, "debug", false, "Enable debug logging")
}
