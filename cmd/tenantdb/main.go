package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/intellex-clms/tenantdb/pkg/config"
	"github.com/intellex-clms/tenantdb/pkg/conn"
	"github.com/intellex-clms/tenantdb/pkg/metrics"
	"github.com/intellex-clms/tenantdb/pkg/pool"
	"github.com/intellex-clms/tenantdb/pkg/tenantlog"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sevlyar/go-daemon"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgPath       string
	logLevel      string
	logFile       string
	prettyLogging bool
	metricsAddr   string
	hosts         []string
	maxPoolSize   int
	minPoolSize   int

	daemonize bool
	pidFile   string
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var rootCmd = &cobra.Command{
	Use:   "tenantdb run --config `path-to-config`",
	Short: "tenantdb",
	Long:  "tenantdb keeps per-tenant database connection pools",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		tenantlog.Zero.Fatal().Err(err).Msg("")
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "/etc/tenantdb/config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "log level, overrides config")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "log file, overrides config")
	rootCmd.PersistentFlags().BoolVarP(&prettyLogging, "pretty-log", "P", false, "write logs in human readable form")
	rootCmd.PersistentFlags().StringSliceVar(&hosts, "hosts", nil, "database hosts, overrides config")
	rootCmd.PersistentFlags().IntVar(&maxPoolSize, "max-pool-size", 0, "maximum connections per tenant pool")
	rootCmd.PersistentFlags().IntVar(&minPoolSize, "min-pool-size", 0, "minimum connections per tenant pool")

	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address of the metrics server, overrides config")
	runCmd.Flags().BoolVarP(&daemonize, "daemonize", "d", false, "run in background")
	runCmd.Flags().StringVar(&pidFile, "pid-file", "/var/run/tenantdb.pid", "pid file used with --daemonize")

	rootCmd.AddCommand(runCmd, resolveCmd, warmCmd)
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig(cmd *cobra.Command) (*config.Manager, error) {
	cfg, err := config.LoadManagerCfg(cfgPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load config %s", cfgPath)
	}
	if err := ApplyOverrides(cfg, collectOverrides(cmd)); err != nil {
		return nil, errors.Wrap(err, "invalid command line override")
	}

	if cfg.LogFile != "" || cfg.PrettyLogging {
		if err := tenantlog.ReloadLogger(cfg.LogFile, cfg.PrettyLogging); err != nil {
			return nil, errors.Wrap(err, "failed to open log file")
		}
	}
	if err := tenantlog.UpdateZeroLogLevel(cfg.LogLevel); err != nil {
		return nil, err
	}

	tenantlog.Zero.Debug().Str("config", cfg.String()).Msg("running with config")
	return cfg, nil
}

func newManager(cfg *config.Manager, opts ...pool.Option) (*pool.Manager, error) {
	dialer, err := conn.NewDialer(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build dialer")
	}
	m, err := pool.NewManager(cfg, dialer, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "invalid manager config")
	}
	return m, nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run connection manager",
	RunE: func(cmd *cobra.Command, args []string) error {
		if daemonize {
			dctx := &daemon.Context{
				PidFileName: pidFile,
				PidFilePerm: 0644,
				LogFileName: logFile,
				LogFilePerm: 0640,
				WorkDir:     "/",
				Umask:       027,
				Args:        os.Args,
			}

			child, err := dctx.Reborn()
			if err != nil {
				return errors.Wrap(err, "failed to daemonize")
			}
			if child != nil {
				// parent
				return nil
			}
			defer func() {
				if err := dctx.Release(); err != nil {
					tenantlog.Zero.Error().Err(err).Msg("failed to release pid file")
				}
			}()
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		promObserver := metrics.NewObserver()
		if err := promObserver.Register(reg); err != nil {
			return errors.Wrap(err, "failed to register metrics")
		}

		mgr, err := newManager(cfg, pool.WithObserver(pool.MultiObserver{pool.LogObserver{}, promObserver}))
		if err != nil {
			return err
		}
		reg.MustRegister(metrics.NewPoolCollector(mgr))

		ctx, cancelCtx := context.WithCancel(context.Background())
		defer cancelCtx()

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

		go func() {
			for {
				s := <-sigs
				tenantlog.Zero.Info().Str("signal", s.String()).Msg("received signal")

				switch s {
				case syscall.SIGHUP:
					// reopen log file, for logrotate
					if err := tenantlog.ReloadLogger(cfg.LogFile, cfg.PrettyLogging); err != nil {
						tenantlog.Zero.Error().Err(err).Msg("failed to reload logger")
					}
				case syscall.SIGINT, syscall.SIGTERM:
					cancelCtx()
					return
				}
			}
		}()

		if len(cfg.WarmTenants) > 0 {
			if err := mgr.Warm(ctx, cfg.WarmTenants...); err != nil {
				tenantlog.Zero.Error().Err(err).Msg("failed to warm tenant pools")
			}
		}

		mgr.Start(ctx)

		var srv *http.Server
		if cfg.MetricsAddr != "" {
			srv = metrics.StartMetricsServer(cfg.MetricsAddr, reg, mgr)
		}

		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if srv != nil {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				tenantlog.Zero.Error().Err(err).Msg("failed to stop metrics server")
			}
		}
		return mgr.Close(shutdownCtx)
	},
}

type resolution struct {
	Tenant string `json:"tenant"`
	pool.TenantDatabase
}

var resolveCmd = &cobra.Command{
	Use:   "resolve TENANT...",
	Short: "print the database serving each tenant",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		mgr, err := newManager(cfg)
		if err != nil {
			return err
		}
		defer mgr.Close(context.Background())

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		for _, tenant := range args {
			db, err := mgr.SwitchToTenantDatabase(cmd.Context(), tenant)
			if err != nil {
				return errors.Wrapf(err, "failed to resolve tenant %s", tenant)
			}
			if err := enc.Encode(resolution{Tenant: tenant, TenantDatabase: db}); err != nil {
				return err
			}
		}
		return nil
	},
}

var warmCmd = &cobra.Command{
	Use:   "warm TENANT...",
	Short: "open pools for tenants and print their statistics",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		mgr, err := newManager(cfg)
		if err != nil {
			return err
		}
		defer mgr.Close(context.Background())

		if err := mgr.Warm(cmd.Context(), args...); err != nil {
			return errors.Wrap(err, "failed to warm tenant pools")
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(mgr.View())
	},
}

func main() {
	Execute()
}
