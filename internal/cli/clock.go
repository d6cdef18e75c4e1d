package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/possuite/auditguard/internal/app/guard"
	"github.com/possuite/auditguard/internal/domain"
)

func newClockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clock",
		Short: "Manage per-session usage clocks",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "start SESSION",
			Short: "Start a session clock (no-op if it exists)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClock(cmd, func(ctx context.Context, svc *guard.Service) (domain.AppClock, error) {
					return svc.StartClock(ctx, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "tick SESSION SECONDS",
			Short: "Add usage seconds to a session clock",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				secs, err := strconv.ParseInt(args[1], 10, 64)
				if err != nil {
					return fmt.Errorf("%w: SECONDS %q", domain.ErrValidation, args[1])
				}
				return withClock(cmd, func(ctx context.Context, svc *guard.Service) (domain.AppClock, error) {
					return svc.TickClock(ctx, args[0], secs)
				})
			},
		},
		&cobra.Command{
			Use:   "show SESSION",
			Short: "Show a session clock",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClock(cmd, func(ctx context.Context, svc *guard.Service) (domain.AppClock, error) {
					return svc.GetClock(ctx, args[0])
				})
			},
		},
	)
	return cmd
}

// withClock runs one clock operation and prints the resulting clock.
func withClock(cmd *cobra.Command, fn func(context.Context, *guard.Service) (domain.AppClock, error)) error {
	svc, _, closeFn, err := openService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	c, err := fn(cmd.Context(), svc)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if wantJSON(cmd) {
		return printJSON(out, c)
	}
	fmt.Fprintf(out, "Session:    %s\n", c.SessionID)
	fmt.Fprintf(out, "Started:    %s\n", time.Unix(c.StartTime, 0).Local().Format(time.DateTime))
	fmt.Fprintf(out, "Usage:      %s\n", time.Duration(c.TotalUsageTime)*time.Second)
	fmt.Fprintf(out, "Signature:  %s\n", c.ClockSignature)
	return nil
}
