package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"marketplace-service/internal/lifecycle"
	"marketplace-service/internal/payments"
)

var payoutCmd = &cobra.Command{
	Use:   "payout",
	Short: "Split a final price into platform fee and plumber payout",
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, _ := cmd.Flags().GetFloat64("amount")
		if amount < 0 {
			return fmt.Errorf("amount must not be negative")
		}
		return printJSON(cmd, payments.Split(amount))
	},
}

// GetPayoutCmd returns the payout command
func GetPayoutCmd() *cobra.Command {
	payoutCmd.Flags().Float64("amount", 0, "Final job price in dollars")
	_ = payoutCmd.MarkFlagRequired("amount")
	return payoutCmd
}

var transitionsCmd = &cobra.Command{
	Use:   "transitions",
	Short: "List the legal next states of a job",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetString("from")

		if from == "" {
			for _, status := range lifecycle.All() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", status, joinStatuses(lifecycle.Next(status)))
			}
			return nil
		}

		status, ok := lifecycle.Parse(from)
		if !ok {
			return fmt.Errorf("unknown status %q", from)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", status, joinStatuses(lifecycle.Next(status)))
		return nil
	},
}

// GetTransitionsCmd returns the transitions command
func GetTransitionsCmd() *cobra.Command {
	transitionsCmd.Flags().String("from", "", "Current status; omit to print the whole graph")
	return transitionsCmd
}

func joinStatuses(statuses []lifecycle.Status) string {
	if len(statuses) == 0 {
		return "(terminal)"
	}
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
