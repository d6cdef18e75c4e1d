package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/possuite/auditguard/internal/daemon"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the anomaly monitor",
		Long: `Serve the audit ledger over HTTP. When [monitor] is enabled in
config.toml, anomaly detection re-runs on its interval while real-time
monitoring is on in the security configuration.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().String("host", "", "listen host (overrides config)")
	cmd.Flags().Int("port", 0, "listen port (overrides config)")
	cmd.Flags().Bool("no-monitor", false, "disable the background monitor")
	cmd.Flags().String("session", "", "session whose clock the monitor checks")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.API.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.API.Port = port
	}
	if off, _ := cmd.Flags().GetBool("no-monitor"); off {
		cfg.Monitor.Enabled = false
	}
	if session, _ := cmd.Flags().GetString("session"); session != "" {
		cfg.Session.ID = session
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return daemon.Run(ctx, cfg, newLogger(cmd, cfg))
}
