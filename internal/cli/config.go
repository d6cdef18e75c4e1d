package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/possuite/auditguard/internal/domain"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the security configuration",
	}
	cmd.AddCommand(newConfigShowCmd(), newConfigSetCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the security configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, closeFn, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			cfg, err := svc.SecurityConfig(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), cfg)
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY=VALUE...",
		Short: "Change security configuration keys",
		Long: `Set one or more keys, named as in 'config show':

  auditguard config set max_time_drift=120 suspicious_amount_threshold=500`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, closeFn, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			cfg, err := svc.SecurityConfig(cmd.Context())
			if err != nil {
				return err
			}
			for _, arg := range args {
				key, value, ok := strings.Cut(arg, "=")
				if !ok {
					return fmt.Errorf("%w: %q is not KEY=VALUE", domain.ErrValidation, arg)
				}
				if err := setConfigKey(&cfg, strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
					return err
				}
			}
			if err := svc.SaveSecurityConfig(cmd.Context(), cfg); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), cfg)
		},
	}
}

func setConfigKey(cfg *domain.SecurityConfig, key, value string) error {
	var err error
	switch key {
	case "enable_chain_validation":
		cfg.EnableChainValidation, err = strconv.ParseBool(value)
	case "enable_time_validation":
		cfg.EnableTimeValidation, err = strconv.ParseBool(value)
	case "enable_anomaly_detection":
		cfg.EnableAnomalyDetection, err = strconv.ParseBool(value)
	case "enable_real_time_monitoring":
		cfg.EnableRealTimeMonitoring, err = strconv.ParseBool(value)
	case "max_time_drift":
		cfg.MaxTimeDrift, err = strconv.ParseInt(value, 10, 64)
	case "min_transaction_interval":
		cfg.MinTransactionInterval, err = strconv.ParseInt(value, 10, 64)
	case "retention_period":
		cfg.RetentionPeriod, err = strconv.ParseInt(value, 10, 64)
	case "suspicious_amount_threshold":
		cfg.SuspiciousAmountThreshold, err = strconv.ParseFloat(value, 64)
	case "compliance_country":
		cfg.ComplianceCountry = strings.ToUpper(value)
	default:
		return fmt.Errorf("%w: unknown config key %q", domain.ErrValidation, key)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrValidation, key, err)
	}
	return nil
}
