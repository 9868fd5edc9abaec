package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"marketplace-service/internal/pricing"
	"marketplace-service/internal/urgency"
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify the urgency of a job description",
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		jobType, _ := cmd.Flags().GetString("job-type")

		result := urgency.NewClassifier(tables.Urgency).Classify(text, jobType)
		return printJSON(cmd, result)
	},
}

// GetClassifyCmd returns the classify command
func GetClassifyCmd() *cobra.Command {
	classifyCmd.Flags().String("text", "", "Customer description of the problem")
	classifyCmd.Flags().String("job-type", "", "Job type, e.g. leak or emergency")
	_ = classifyCmd.MarkFlagRequired("text")
	return classifyCmd
}

// QuoteOutput is a price with the triage it was derived from
type QuoteOutput struct {
	Urgency urgency.Level     `json:"urgency_level"`
	Price   pricing.Breakdown `json:"price"`
}

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Price a job",
	Long: `Price a job for a job type and urgency tier. Without --urgency the tier is
classified from --text.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		jobType, _ := cmd.Flags().GetString("job-type")
		tier, _ := cmd.Flags().GetString("urgency")
		text, _ := cmd.Flags().GetString("text")
		zone, _ := cmd.Flags().GetString("zone")

		var flags pricing.TimeFlags
		flags.AfterHours, _ = cmd.Flags().GetBool("after-hours")
		flags.Weekend, _ = cmd.Flags().GetBool("weekend")
		flags.Holiday, _ = cmd.Flags().GetBool("holiday")

		var level urgency.Level
		if tier != "" {
			parsed, ok := urgency.ParseLevel(tier)
			if !ok {
				return fmt.Errorf("unknown urgency %q", tier)
			}
			level = parsed
		} else {
			level = urgency.NewClassifier(tables.Urgency).Classify(text, jobType).Level
		}

		quote := pricing.NewEngine(tables.Pricing).Quote(jobType, level, zone, flags)
		return printJSON(cmd, QuoteOutput{Urgency: level, Price: quote})
	},
}

// GetQuoteCmd returns the quote command
func GetQuoteCmd() *cobra.Command {
	quoteCmd.Flags().String("job-type", "", "Job type, e.g. leak or emergency")
	quoteCmd.Flags().String("urgency", "", "Urgency tier: LOW, MEDIUM, HIGH or CRITICAL")
	quoteCmd.Flags().String("text", "", "Description to classify when --urgency is not given")
	quoteCmd.Flags().String("zone", "", "Neighborhood of the job")
	quoteCmd.Flags().Bool("after-hours", false, "Requested outside business hours")
	quoteCmd.Flags().Bool("weekend", false, "Requested on a weekend")
	quoteCmd.Flags().Bool("holiday", false, "Requested on a holiday")
	_ = quoteCmd.MarkFlagRequired("job-type")
	return quoteCmd
}
