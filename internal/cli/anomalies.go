package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/possuite/auditguard/internal/domain"
)

func newAnomaliesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "anomalies",
		Aliases: []string{"anomaly"},
		Short:   "List, detect and resolve anomalies",
	}
	cmd.AddCommand(newAnomaliesListCmd(), newAnomaliesDetectCmd(), newAnomaliesResolveCmd(), newAnomaliesTrailCmd())
	return cmd
}

// ─── anomalies list ─────────────────────────────────────────────────────────

func newAnomaliesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded anomalies, newest first",
		Args:  cobra.NoArgs,
		RunE:  runAnomaliesList,
	}
	cmd.Flags().String("resolved", "", "true or false; empty lists all")
	cmd.Flags().Int("limit", 0, "maximum anomalies (0 = all)")
	return cmd
}

func runAnomaliesList(cmd *cobra.Command, args []string) error {
	var resolved *bool
	if v, _ := cmd.Flags().GetString("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: --resolved %q", domain.ErrValidation, v)
		}
		resolved = &b
	}
	limit, _ := cmd.Flags().GetInt("limit")

	svc, _, closeFn, err := openService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	anomalies, err := svc.ListAnomalies(cmd.Context(), resolved, limit)
	if err != nil {
		return err
	}
	return printAnomalies(cmd, anomalies)
}

// ─── anomalies detect ───────────────────────────────────────────────────────

func newAnomaliesDetectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Run anomaly detection with the saved security configuration",
		Args:  cobra.NoArgs,
		RunE:  runAnomaliesDetect,
	}
	cmd.Flags().String("session", "", "session whose clock is checked (defaults to [session].id)")
	return cmd
}

func runAnomaliesDetect(cmd *cobra.Command, args []string) error {
	svc, cfg, closeFn, err := openService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	session, _ := cmd.Flags().GetString("session")
	if session == "" {
		session = cfg.Session.ID
	}
	found, err := svc.DetectAnomalies(cmd.Context(), session, "cli")
	if err != nil {
		return err
	}
	if !wantJSON(cmd) {
		fmt.Fprintf(cmd.OutOrStdout(), "Detection found %d anomalies.\n", len(found))
		if len(found) == 0 {
			return nil
		}
	}
	return printAnomalies(cmd, found)
}

// ─── anomalies resolve ──────────────────────────────────────────────────────

func newAnomaliesResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve ID",
		Short: "Record a resolution for an anomaly",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnomaliesResolve,
	}
	cmd.Flags().String("by", "", "who resolved it (required)")
	return cmd
}

func runAnomaliesResolve(cmd *cobra.Command, args []string) error {
	by, _ := cmd.Flags().GetString("by")
	svc, _, closeFn, err := openService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	a, err := svc.ResolveAnomaly(cmd.Context(), args[0], by)
	if err != nil {
		return err
	}
	if wantJSON(cmd) {
		return printJSON(cmd.OutOrStdout(), a)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Resolved %s by %s\n", a.ID, a.ResolvedBy)
	return nil
}

// ─── anomalies trail ────────────────────────────────────────────────────────

func newAnomaliesTrailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trail ID",
		Short: "Show every resolution recorded for an anomaly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, closeFn, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			trail, err := svc.Resolutions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if wantJSON(cmd) {
				if trail == nil {
					trail = []domain.Resolution{}
				}
				return printJSON(out, trail)
			}
			if len(trail) == 0 {
				fmt.Fprintln(out, "Unresolved.")
				return nil
			}
			for _, r := range trail {
				fmt.Fprintf(out, "%s  %s\n", r.ResolvedAt.Local().Format(time.DateTime), r.ResolvedBy)
			}
			return nil
		},
	}
}

func printAnomalies(cmd *cobra.Command, anomalies []domain.Anomaly) error {
	out := cmd.OutOrStdout()
	if wantJSON(cmd) {
		if anomalies == nil {
			anomalies = []domain.Anomaly{}
		}
		return printJSON(out, anomalies)
	}
	if len(anomalies) == 0 {
		fmt.Fprintln(out, "No anomalies.")
		return nil
	}
	return writeAnomalyTable(out, anomalies)
}

func writeAnomalyTable(w io.Writer, anomalies []domain.Anomaly) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDETECTED\tTYPE\tSEVERITY\tRESOLVED\tDESCRIPTION")
	for _, a := range anomalies {
		resolved := "no"
		if a.Resolved {
			resolved = a.ResolvedBy
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.Timestamp.Local().Format(time.DateTime), a.Type, a.Severity, resolved, a.Description)
	}
	return tw.Flush()
}
