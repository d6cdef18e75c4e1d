package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/possuite/auditguard/internal/app/guard"
	"github.com/possuite/auditguard/internal/domain"
)

// errChainInvalid makes `verify` exit non-zero without printing twice.
var errChainInvalid = errors.New("ledger failed verification")

// ─── record ─────────────────────────────────────────────────────────────────

func newRecordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record TITLE",
		Short: "Append an event to the ledger",
		Args:  cobra.ExactArgs(1),
		RunE:  runRecord,
	}
	f := cmd.Flags()
	f.String("type", string(domain.LogFinancial), "log type (financial, system, user, error, warning, info)")
	f.String("category", string(domain.CategorySale), "category (sale, refund, table_status, product, ...)")
	f.String("description", "", "event description")
	f.Float64("amount", 0, "amount; omitted when the flag is not given")
	f.String("session", "", "session id (defaults to [session].id)")
	f.String("signature", "", "user signature")
	f.String("table-id", "", "table id")
	f.String("table-name", "", "table name")
	f.String("product-id", "", "product id")
	f.String("product-name", "", "product name")
	f.String("user-id", "", "user id")
	f.String("user-name", "", "user name")
	f.String("metadata", "", "free-form metadata")
	return cmd
}

func runRecord(cmd *cobra.Command, args []string) error {
	svc, cfg, closeFn, err := openService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	f := cmd.Flags()
	str := func(name string) string { v, _ := f.GetString(name); return v }

	fields := domain.EntryFields{
		LogType:       domain.LogType(str("type")),
		Category:      domain.Category(str("category")),
		Title:         args[0],
		Description:   str("description"),
		SessionID:     str("session"),
		UserSignature: str("signature"),
		TableID:       str("table-id"),
		TableName:     str("table-name"),
		ProductID:     str("product-id"),
		ProductName:   str("product-name"),
		UserID:        str("user-id"),
		UserName:      str("user-name"),
		Metadata:      str("metadata"),
	}
	if fields.SessionID == "" {
		fields.SessionID = cfg.Session.ID
	}
	if f.Changed("amount") {
		amount, _ := f.GetFloat64("amount")
		fields.Amount = &amount
	}

	entry, err := svc.RecordEvent(cmd.Context(), fields)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if wantJSON(cmd) {
		return printJSON(out, entry)
	}
	fmt.Fprintf(out, "Recorded #%d %s\n", entry.ChainIndex, entry.ID)
	fmt.Fprintf(out, "  hash: %s\n", entry.CurrentHash)
	return nil
}

// ─── entries ────────────────────────────────────────────────────────────────

func newEntriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "List ledger entries",
		Args:  cobra.NoArgs,
		RunE:  runEntries,
	}
	f := cmd.Flags()
	f.Int("limit", 0, "maximum entries (0 = all)")
	f.String("type", "", "filter by log type")
	f.String("category", "", "filter by category")
	f.String("table", "", "filter by table id")
	f.String("product", "", "filter by product id")
	f.String("user", "", "filter by user id")
	f.String("from", "", "created at or after (RFC 3339)")
	f.String("to", "", "created at or before (RFC 3339)")
	return cmd
}

func runEntries(cmd *cobra.Command, args []string) error {
	filter, err := entryFilterFromFlags(cmd)
	if err != nil {
		return err
	}
	svc, _, closeFn, err := openService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	entries, err := svc.QueryEntries(cmd.Context(), filter)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if wantJSON(cmd) {
		if entries == nil {
			entries = []domain.LedgerEntry{}
		}
		return printJSON(out, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No entries.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tCREATED\tTYPE\tCATEGORY\tTITLE\tAMOUNT\tHASH")
	for _, e := range entries {
		amount := "-"
		if e.Amount != nil {
			amount = strconv.FormatFloat(*e.Amount, 'f', 2, 64)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ChainIndex, e.CreatedAt.Local().Format(time.DateTime), e.LogType, e.Category,
			e.Title, amount, shortHash(e.CurrentHash))
	}
	return tw.Flush()
}

func entryFilterFromFlags(cmd *cobra.Command) (domain.EntryFilter, error) {
	f := cmd.Flags()
	str := func(name string) string { v, _ := f.GetString(name); return v }

	filter := domain.EntryFilter{
		TableID:   str("table"),
		ProductID: str("product"),
		UserID:    str("user"),
	}
	filter.Limit, _ = f.GetInt("limit")

	var err error
	if v := str("type"); v != "" {
		if filter.LogType, err = domain.ParseLogType(v); err != nil {
			return filter, err
		}
	}
	if v := str("category"); v != "" {
		if filter.Category, err = domain.ParseCategory(v); err != nil {
			return filter, err
		}
	}
	if v := str("from"); v != "" {
		if filter.From, err = time.Parse(time.RFC3339, v); err != nil {
			return filter, fmt.Errorf("%w: --from: %v", domain.ErrValidation, err)
		}
	}
	if v := str("to"); v != "" {
		if filter.To, err = time.Parse(time.RFC3339, v); err != nil {
			return filter, fmt.Errorf("%w: --to: %v", domain.ErrValidation, err)
		}
	}
	return filter, nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// ─── verify ─────────────────────────────────────────────────────────────────

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify chain links, timestamps and hashes of the whole ledger",
		Long: `Recompute every entry hash and check each link to its predecessor.
Exits non-zero when any problem is found. Nothing is written.`,
		Args: cobra.NoArgs,
		RunE: runVerify,
	}
}

func runVerify(cmd *cobra.Command, args []string) error {
	svc, _, closeFn, err := openService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := svc.Verify(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if wantJSON(cmd) {
		if err := printJSON(out, res); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "Entries:          %d\n", res.Entries)
		fmt.Fprintf(out, "Chain integrity:  %s\n", okFail(res.ChainIntegrity))
		fmt.Fprintf(out, "Time consistency: %s\n", okFail(res.TimeConsistency))
		if len(res.BrokenLinks) > 0 {
			fmt.Fprintf(out, "Broken links at:  %v\n", res.BrokenLinks)
		}
		if len(res.HashMismatches) > 0 {
			fmt.Fprintf(out, "Hash mismatches:  %v\n", res.HashMismatches)
		}
	}
	if !res.OK() {
		return errChainInvalid
	}
	return nil
}

func okFail(ok bool) string {
	if ok {
		return "OK"
	}
	return "FAILED"
}

// ─── stats ──────────────────────────────────────────────────────────────────

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show ledger security statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, closeFn, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			st, err := svc.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if wantJSON(cmd) {
				return printJSON(out, st)
			}
			fmt.Fprintf(out, "Entries:              %d (chain length %d)\n", st.TotalEntries, st.ChainLength)
			fmt.Fprintf(out, "Total amount:         %.2f\n", st.TotalAmount)
			fmt.Fprintf(out, "Anomalies:            %d (%d unresolved)\n", st.TotalAnomalies, st.UnresolvedAnomalies)
			fmt.Fprintf(out, "Chain integrity:      %s\n", okFail(st.ChainIntegrity))
			fmt.Fprintf(out, "Time consistency:     %s\n", okFail(st.TimeConsistency))
			if st.LastAnomalyAt != nil {
				fmt.Fprintf(out, "Last anomaly:         %s\n", st.LastAnomalyAt.Local().Format(time.DateTime))
			}
			fmt.Fprintf(out, "Retention:            %d days, %d entries past it\n", st.RetentionPeriodDays, st.RetentionEligible)
			return nil
		},
	}
}

// ─── export ─────────────────────────────────────────────────────────────────

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the ledger as JSON or CSV",
		Args:  cobra.NoArgs,
		RunE:  runExport,
	}
	cmd.Flags().StringP("format", "f", guard.FormatJSON, "json or csv")
	cmd.Flags().StringP("output", "o", "", "write to file instead of stdout")
	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != guard.FormatJSON && format != guard.FormatCSV {
		return fmt.Errorf("%w: unknown export format %q", domain.ErrValidation, format)
	}
	svc, _, closeFn, err := openService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	path, _ := cmd.Flags().GetString("output")
	if path == "" {
		return svc.Export(cmd.Context(), cmd.OutOrStdout(), format)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := svc.Export(cmd.Context(), f, format); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Exported to %s\n", path)
	return nil
}
