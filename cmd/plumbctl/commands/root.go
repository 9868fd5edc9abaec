// Package commands implements plumbctl, an offline tool for checking how the
// configured tables triage, price and split jobs.
package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"marketplace-service/internal/config"
)

// flag names
const (
	flagTables = "tables"
)

// environment variable names
const (
	envTablesFile = "TABLES_FILE"
)

var (
	// tablesFile is the tuning tables path. Empty means built-in defaults.
	tablesFile string
	// tables is loaded once flags are parsed
	tables config.Tables
)

func init() {
	RootCmd.PersistentFlags().StringVarP(&tablesFile, flagTables, "t", "", "Path to the urgency and pricing tables (env: TABLES_FILE)")

	RootCmd.AddCommand(GetClassifyCmd())
	RootCmd.AddCommand(GetQuoteCmd())
	RootCmd.AddCommand(GetPayoutCmd())
	RootCmd.AddCommand(GetTransitionsCmd())
}

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "plumbctl",
	Short: "plumbctl - inspect marketplace triage, pricing and payouts",
	Long: `plumbctl runs the marketplace urgency classifier, pricing engine and payout
split locally against the same tables the server loads.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		// Flag > Env Var > built-in defaults
		if !cmd.Flags().Changed(flagTables) {
			tablesFile = os.Getenv(envTablesFile)
		}

		loaded, err := config.LoadTables(tablesFile)
		if err != nil {
			return fmt.Errorf("failed to load tables: %w", err)
		}
		tables = loaded
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return RootCmd.Execute()
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
