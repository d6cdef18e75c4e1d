// Package cli implements the auditguard command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/possuite/auditguard/internal/app/guard"
	"github.com/possuite/auditguard/internal/daemon"
	"github.com/possuite/auditguard/internal/infra/sqlite"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// NewRootCmd builds the full command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "auditguard",
		Short: "Tamper-evident audit ledger for point-of-sale systems",
		Long: `auditguard records POS events in a hash-chained ledger, detects
anomalies (broken chains, clock drift, suspicious amounts) and produces
signed compliance reports for a period.

Data lives under --home (default $AUDITGUARD_HOME or ~/.auditguard).`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("home", "", "auditguard home directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "log at the configured level instead of warn")
	root.PersistentFlags().Bool("json", false, "print JSON instead of text")

	root.AddCommand(
		newServeCmd(),
		newRecordCmd(),
		newEntriesCmd(),
		newVerifyCmd(),
		newStatsCmd(),
		newExportCmd(),
		newAnomaliesCmd(),
		newReportCmd(),
		newConfigCmd(),
		newClockCmd(),
	)
	return root
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// loadConfig resolves --home and reads its config file.
func loadConfig(cmd *cobra.Command) (string, daemon.Config, error) {
	flag, _ := cmd.Flags().GetString("home")
	home, err := daemon.ResolveHome(flag)
	if err != nil {
		return "", daemon.Config{}, err
	}
	cfg, err := daemon.LoadConfig(home)
	if err != nil {
		return "", daemon.Config{}, err
	}
	return home, cfg, nil
}

// openService opens the store for a one-shot command. The caller must call
// the returned close func.
func openService(cmd *cobra.Command) (*guard.Service, daemon.Config, func(), error) {
	_, cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, daemon.Config{}, nil, err
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); !verbose {
		cfg.Log.Level = "warn"
	}
	logger := cfg.NewLogger(cmd.ErrOrStderr())

	db, err := sqlite.Open(cfg.Storage.Dir)
	if err != nil {
		return nil, daemon.Config{}, nil, fmt.Errorf("open store: %w", err)
	}
	return guard.New(db, logger), cfg, func() { db.Close() }, nil
}

func newLogger(cmd *cobra.Command, cfg daemon.Config) *slog.Logger {
	return cfg.NewLogger(cmd.ErrOrStderr())
}

func wantJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
