package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate and list compliance reports",
	}
	cmd.AddCommand(newReportGenerateCmd(), newReportListCmd())
	return cmd
}

func newReportGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a signed compliance report for a period",
		Long: `Count and sum the period's entries, check chain integrity and time
consistency, and store a signed report. Bounds are RFC 3339 and inclusive.
Without --start the period is the last 24 hours.`,
		Args: cobra.NoArgs,
		RunE: runReportGenerate,
	}
	cmd.Flags().String("start", "", "period start (RFC 3339)")
	cmd.Flags().String("end", "", "period end (RFC 3339, default now)")
	cmd.Flags().String("country", "", "ISO country code (defaults to the security config)")
	return cmd
}

func runReportGenerate(cmd *cobra.Command, args []string) error {
	start, _ := cmd.Flags().GetString("start")
	end, _ := cmd.Flags().GetString("end")
	country, _ := cmd.Flags().GetString("country")
	now := time.Now().UTC()
	if end == "" {
		end = now.Format(time.RFC3339Nano)
	}
	if start == "" {
		start = now.Add(-24 * time.Hour).Format(time.RFC3339Nano)
	}

	svc, _, closeFn, err := openService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	rep, err := svc.GetReport(cmd.Context(), start, end, country)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if wantJSON(cmd) {
		return printJSON(out, rep)
	}
	fmt.Fprintf(out, "Report %s (%s)\n", rep.ID, rep.CountryCode)
	fmt.Fprintf(out, "  Period:           %s to %s\n", rep.PeriodStart.Format(time.RFC3339), rep.PeriodEnd.Format(time.RFC3339))
	fmt.Fprintf(out, "  Transactions:     %d\n", rep.TotalTransactions)
	fmt.Fprintf(out, "  Total amount:     %.2f\n", rep.TotalAmount)
	fmt.Fprintf(out, "  Anomalies:        %d\n", rep.AnomaliesCount)
	fmt.Fprintf(out, "  Chain integrity:  %s\n", okFail(rep.ChainIntegrity))
	fmt.Fprintf(out, "  Time consistency: %s\n", okFail(rep.TimeConsistency))
	fmt.Fprintf(out, "  Signature:        %s\n", rep.ReportSignature)
	return nil
}

func newReportListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored reports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			svc, _, closeFn, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			reports, err := svc.ListReports(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if wantJSON(cmd) {
				return printJSON(out, reports)
			}
			if len(reports) == 0 {
				fmt.Fprintln(out, "No reports.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tGENERATED\tCOUNTRY\tTRANSACTIONS\tAMOUNT\tANOMALIES\tINTEGRITY")
			for _, r := range reports {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.2f\t%d\t%s\n",
					r.ID, r.GeneratedAt.Local().Format(time.DateTime), r.CountryCode,
					r.TotalTransactions, r.TotalAmount, r.AnomaliesCount, okFail(r.ChainIntegrity))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int("limit", 20, "maximum reports (0 = all)")
	return cmd
}
