// Command outbox-parts maintains MySQL outbox partitions.
//
// It wraps mysql.PartsMaintainer for use in cron/CronJobs when the
// application itself should not run ALTER TABLE statements.
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

var errInvalidPeriod = errors.New("outbox-parts: invalid period")

type options struct {
	dsn             string
	table           string
	typesTable      string
	errorsTable     string
	period          string
	lookahead       time.Duration
	checkEvery      time.Duration
	lockName        string
	retention       time.Duration
	errorsRetention time.Duration
	migrate         bool
	once            bool
	verbose         bool
}

func main() {
	var opts options

	cmd := &cobra.Command{
		Use:          "outbox-parts",
		Short:        "Maintain range partitions of the MySQL outbox tables",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.dsn, "dsn", "", "MySQL DSN, e.g. user:pass@tcp(host:3306)/db?parseTime=true")
	flags.StringVar(&opts.table, "table", "outbox", "Outbox messages table name")
	flags.StringVar(&opts.typesTable, "types-table", "outbox_types", "Type table name")
	flags.StringVar(&opts.errorsTable, "errors-table", "outbox_errors", "Error log table name")
	flags.StringVar(&opts.period, "period", "day", "Messages partition period: day or month")
	flags.DurationVar(&opts.lookahead, "lookahead", 0, "How far ahead to create partitions (e.g. 720h)")
	flags.DurationVar(&opts.checkEvery, "check-every", time.Hour, "How often to check for missing partitions")
	flags.StringVar(&opts.lockName, "lock-name", "", "Advisory lock name (optional)")
	flags.DurationVar(&opts.retention, "retention", 0, "Drop message partitions older than this duration (optional)")
	flags.DurationVar(&opts.errorsRetention, "errors-retention", 0, "Drop error-log days older than this duration (optional)")
	flags.BoolVar(&opts.migrate, "migrate", false, "Create the outbox tables when missing")
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

	period, err := parsePeriod(opts.period)
	if err != nil {
		return err
	}

	db, err := sql.Open("mysql", opts.dsn)
	if err != nil {
		return fmt.Errorf("open mysql: %w", err)
	}
	defer db.Close()

	parts, err := mysql.NewPartsMaintainer(db, mysql.PartsConfig{
		Table:           opts.table,
		TypesTable:      opts.typesTable,
		ErrorsTable:     opts.errorsTable,
		Period:          period,
		Lookahead:       opts.lookahead,
		CheckEvery:      opts.checkEvery,
		LockName:        opts.lockName,
		Retention:       opts.retention,
		ErrorsRetention: opts.errorsRetention,
		Logger:          zaplog.New(logger),
	})
	if err != nil {
		return err
	}

	if opts.migrate {
		applied, err := parts.Migrate(ctx)
		if err != nil {
			return err
		}
		logger.Info("outbox migrate applied", zap.Int("statements", applied))
	}

	if opts.once {
		return parts.Ensure(ctx)
	}

	err = parts.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

func parsePeriod(value string) (mysql.PartitionPeriod, error) {
	switch value {
	case "day":
		return mysql.PartitionDay, nil
	case "month":
		return mysql.PartitionMonth, nil
	default:
		return 0, fmt.Errorf("%w: %s", errInvalidPeriod, value)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	return cfg.Build()
}
