package main

import (
	"fmt"

	"github.com/intellex-clms/tenantdb/pkg/config"
	"github.com/intellex-clms/tenantdb/pkg/tenantlog"
	"github.com/spf13/cobra"
)

// Overrides holds the flags that were set explicitly on the command line.
type Overrides struct {
	LogLevel      *string
	LogFile       *string
	PrettyLogging *bool
	MetricsAddr   *string
	Hosts         *[]string
	MaxPoolSize   *int
	MinPoolSize   *int
}

func collectOverrides(cmd *cobra.Command) Overrides {
	ov := Overrides{}

	if cmd.Flags().Changed("log-level") {
		ov.LogLevel = &logLevel
	}
	if cmd.Flags().Changed("log-file") {
		ov.LogFile = &logFile
	}
	if cmd.Flags().Changed("pretty-log") {
		ov.PrettyLogging = &prettyLogging
	}
	if cmd.Flags().Changed("metrics-addr") {
		ov.MetricsAddr = &metricsAddr
	}
	if cmd.Flags().Changed("hosts") {
		ov.Hosts = &hosts
	}
	if cmd.Flags().Changed("max-pool-size") {
		ov.MaxPoolSize = &maxPoolSize
	}
	if cmd.Flags().Changed("min-pool-size") {
		ov.MinPoolSize = &minPoolSize
	}

	return ov
}

// ApplyOverrides puts command line values over the loaded config and
// validates the result.
func ApplyOverrides(cfg *config.Manager, ov Overrides) error {
	if ov.LogLevel != nil {
		if !tenantlog.ValidLevel(*ov.LogLevel) {
			return fmt.Errorf("log-level: unknown level %q", *ov.LogLevel)
		}
		if *ov.LogLevel != "" {
			cfg.LogLevel = *ov.LogLevel
		}
	}
	if ov.LogFile != nil {
		cfg.LogFile = *ov.LogFile
	}
	if ov.PrettyLogging != nil {
		cfg.PrettyLogging = *ov.PrettyLogging
	}
	if ov.MetricsAddr != nil {
		cfg.MetricsAddr = *ov.MetricsAddr
	}
	if ov.Hosts != nil && len(*ov.Hosts) > 0 {
		cfg.Hosts = append([]string(nil), *ov.Hosts...)
	}
	if ov.MaxPoolSize != nil && *ov.MaxPoolSize != 0 {
		cfg.MaxPoolSize = *ov.MaxPoolSize
	}
	if ov.MinPoolSize != nil && *ov.MinPoolSize != 0 {
		cfg.MinPoolSize = *ov.MinPoolSize
	}

	return cfg.Validate()
}
