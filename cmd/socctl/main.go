package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Abhaii11/Core-Event-Log-Alert-Analyzer/cmd/socctl/internal/commands"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "socctl",
		Short: "Operator CLI for the SOC alert pipeline",
		Long: `socctl runs the detection pipeline against the configured database:
classify pending evidence, correlate alerts, promote events to incidents
and verify the audit chain.`,
		SilenceUsage: true,
	}

	var actor string
	var outputFormat string
	rootCmd.PersistentFlags().StringVar(&actor, "actor", os.Getenv("USER"), "Analyst recorded in the audit log")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table or json")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		cmd.SetContext(commands.WithOptions(cmd.Context(), commands.Options{
			Actor:  actor,
			Output: outputFormat,
		}))
	}

	rootCmd.AddCommand(commands.NewIngestCommand())
	rootCmd.AddCommand(commands.NewAnalyzeCommand())
	rootCmd.AddCommand(commands.NewCorrelateCommand())
	rootCmd.AddCommand(commands.NewPromoteCommand())
	rootCmd.AddCommand(commands.NewVerifyCommand())
	rootCmd.AddCommand(commands.NewSummaryCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
