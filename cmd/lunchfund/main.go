package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/lunchfund/internal/httpapi"
	"github.com/MarkoPoloResearchLab/lunchfund/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/lunchfund/internal/telemetry"
	"github.com/MarkoPoloResearchLab/lunchfund/pkg/fund"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	flagDatabaseURL    = "database-url"
	flagListenAddr     = "listen-addr"
	flagAllowedOrigins = "allowed-origins"
	flagRequestTimeout = "request-timeout"
	flagListLimit      = "list-limit"
	flagOutput         = "output"
	envPrefix          = "LUNCHFUND"
	defaultDatabaseURL = "sqlite://lunchfund.db"
	stdoutOutput       = "-"
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "lunchfund: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "lunchfund",
		Short:         "Shared lunch fund ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().String(flagDatabaseURL, defaultDatabaseURL, "postgres:// URL, sqlite:// URL or SQLite file path")
	cmd.AddCommand(newServeCommand(), newExportCommand())
	return cmd
}

func newViper(cmd *cobra.Command, flagNames ...string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for _, flagName := range append([]string{flagDatabaseURL}, flagNames...) {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func newServeCommand() *cobra.Command {
	var (
		databaseURL string
		cfg         httpapi.Config
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the fund HTTP API",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd, flagListenAddr, flagAllowedOrigins, flagRequestTimeout, flagListLimit)
			if err != nil {
				return err
			}
			databaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
			cfg.ListenAddr = strings.TrimSpace(v.GetString(flagListenAddr))
			cfg.AllowedOrigins = httpapi.ParseAllowedOrigins(v.GetString(flagAllowedOrigins))
			cfg.RequestTimeout = v.GetDuration(flagRequestTimeout)
			cfg.ListLimit = v.GetInt(flagListLimit)
			if databaseURL == "" {
				return fmt.Errorf("%s is required", flagDatabaseURL)
			}
			return cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, databaseURL, cfg)
		},
	}
	cmd.Flags().String(flagListenAddr, "", "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().Duration(flagRequestTimeout, 0, "per-request operation timeout (e.g. 5s)")
	cmd.Flags().Int(flagListLimit, 0, "default number of rows returned by list endpoints")
	return cmd
}

func newExportCommand() *cobra.Command {
	var (
		databaseURL string
		output      string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a JSON snapshot of every fund table",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd, flagOutput)
			if err != nil {
				return err
			}
			databaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
			output = strings.TrimSpace(v.GetString(flagOutput))
			if databaseURL == "" {
				return fmt.Errorf("%s is required", flagDatabaseURL)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), databaseURL, output, cmd.OutOrStdout())
		},
	}
	cmd.Flags().String(flagOutput, stdoutOutput, "file to write the snapshot to, - for stdout")
	return cmd
}

func runServer(ctx context.Context, databaseURL string, cfg httpapi.Config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := telemetry.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("metrics init: %w", err)
	}

	service, cleanup, err := openService(ctx, databaseURL, fund.WithOperationLogger(telemetry.NewOperationLogger(logger, metrics)))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := cleanup(); closeErr != nil {
			logger.Warn("database close error", zap.Error(closeErr))
		}
	}()

	return httpapi.Run(ctx, cfg, service, registry, logger)
}

func runExport(ctx context.Context, databaseURL string, output string, stdout io.Writer) error {
	service, cleanup, err := openService(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = cleanup() }()

	snapshot, err := service.Export(ctx)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	writer := stdout
	if output != "" && output != stdoutOutput {
		file, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer file.Close()
		writer = file
	}
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(snapshot); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func openService(ctx context.Context, databaseURL string, options ...fund.ServiceOption) (*fund.Service, func() error, error) {
	gormDB, cleanup, err := openDatabase(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("database open: %w", err)
	}
	if err := gormstore.Migrate(gormDB); err != nil {
		_ = cleanup()
		return nil, nil, err
	}

	store := gormstore.New(gormDB)
	clock := func() int64 { return time.Now().UTC().Unix() }
	service, err := fund.NewService(store, clock, append([]fund.ServiceOption{fund.WithAuditRecorder(store)}, options...)...)
	if err != nil {
		_ = cleanup()
		return nil, nil, fmt.Errorf("fund service init: %w", err)
	}
	return service, cleanup, nil
}
