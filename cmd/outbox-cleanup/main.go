// Command outbox-cleanup removes old terminal outbox rows.
//
// It is the retention tool for deployments that keep the outbox in
// plain (non-partitioned) tables, where dropping a partition is not an
// option and rows have to be deleted in bounded batches.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dundich/outbox/mysql"
	"github.com/dundich/outbox/zaplog"
)

type options struct {
	dsn             string
	table           string
	errorsTable     string
	retention       time.Duration
	checkEvery      time.Duration
	limit           int
	includeFailed   bool
	includeErrorLog bool
	lockName        string
	once            bool
	verbose         bool
}

func main() {
	var opts options

	cmd := &cobra.Command{
		Use:          "outbox-cleanup",
		Short:        "Delete delivered and failed outbox rows past their retention",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.dsn, "dsn", "", "MySQL DSN, e.g. user:pass@tcp(host:3306)/db?parseTime=true")
	flags.StringVar(&opts.table, "table", "outbox", "Outbox messages table name")
	flags.StringVar(&opts.errorsTable, "errors-table", "outbox_errors", "Error log table name")
	flags.DurationVar(&opts.retention, "retention", 7*24*time.Hour, "Delete terminal rows older than this duration")
	flags.DurationVar(&opts.checkEvery, "check-every", time.Hour, "How often to run cleanup")
	flags.IntVar(&opts.limit, "limit", 0, "Max rows deleted per run (0 uses the default)")
	flags.BoolVar(&opts.includeFailed, "include-failed", false, "Also delete permanently failed rows")
	flags.BoolVar(&opts.includeErrorLog, "include-error-log", false, "Also delete old error-log days")
	flags.StringVar(&opts.lockName, "lock-name", "", "Advisory lock name (optional)")
	flags.BoolVar(&opts.once, "once", false, "Run once and exit")
	flags.BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")
	_ = cmd.MarkFlagRequired("dsn")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	logger, err := newLogger(opts.verbose)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	db, err := sql.Open("mysql", opts.dsn)
	if err != nil {
		return fmt.Errorf("open mysql: %w", err)
	}
	defer db.Close()

	cleanup, err := mysql.NewCleanupMaintainer(db, mysql.CleanupConfig{
		Table:           opts.table,
		ErrorsTable:     opts.errorsTable,
		Retention:       opts.retention,
		CheckEvery:      opts.checkEvery,
		Limit:           opts.limit,
		IncludeFailed:   opts.includeFailed,
		IncludeErrorLog: opts.includeErrorLog,
		LockName:        opts.lockName,
		Logger:          zaplog.New(logger),
	})
	if err != nil {
		return err
	}

	if opts.once {
		result, err := cleanup.Ensure(ctx)
		if err != nil {
			return err
		}
		logger.Info("outbox cleanup done",
			zap.Int64("delivered", result.Delivered),
			zap.Int64("failed", result.Failed),
			zap.Int64("error_log", result.ErrorLog),
		)

		return nil
	}

	err = cleanup.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	return cfg.Build()
}
