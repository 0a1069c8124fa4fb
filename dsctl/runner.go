// Package dsctl is a command line runner to check a managed datasource and
// migrate its database.
package dsctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cohesivestack/valgo"
	"github.com/urfave/cli/v2"

	"github.com/joshjon/txconn/config"
	"github.com/joshjon/txconn/conn"
	"github.com/joshjon/txconn/datasource"
	"github.com/joshjon/txconn/log"
	"github.com/joshjon/txconn/pgdb"
	"github.com/joshjon/txconn/sqlitedb"
	"github.com/joshjon/txconn/txn"
	"github.com/joshjon/txconn/valgoutil"
)

const cmdTimeout = 30 * time.Second

type RunnerConfig struct {
	Migrations fs.FS // required
	Logger     log.Logger
	Writer     io.Writer
}

type Runner struct {
	migrations fs.FS
	logger     log.Logger
	writer     io.Writer
}

func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Migrations == nil {
		return nil, errors.New("migrations config is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewLogger(log.WithDevelopment())
	}
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	return &Runner{
		migrations: cfg.Migrations,
		logger:     cfg.Logger,
		writer:     cfg.Writer,
	}, nil
}

func (r *Runner) Run(args []string) error {
	app := cli.NewApp()
	app.Name = "dsctl"
	app.Usage = "command line tool to check a managed datasource and migrate its database"
	app.Writer = r.writer

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to a yaml datasource config, TXCONN_* environment variables take precedence",
			EnvVars: []string{"TXCONN_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "driver",
			Usage: "database driver (sqlite or postgres), overrides the config",
		},
		&cli.StringFlag{
			Name:  "url",
			Usage: "postgres connection url, overrides the config",
		},
		&cli.StringFlag{
			Name:  "sqlite-dir",
			Usage: "directory of the sqlite database file, overrides the config",
		},
		&cli.StringFlag{
			Name:  "sqlite-name",
			Usage: "name of the sqlite database, overrides the config",
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:   "check",
			Usage:  "opens a managed connection and pings the database",
			Action: r.execCmd(r.check),
		},
		{
			Name:   "migrate",
			Usage:  "applies all pending database schema migrations",
			Action: r.execCmd(r.migrate),
		},
		{
			Name:  "migrate-version",
			Usage: "migrates the database to a specific schema version",
			Flags: []cli.Flag{
				&cli.UintFlag{
					Name:    "version",
					Aliases: []string{"v"},
					Usage:   "desired schema version",
				},
			},
			Action: r.execCmd(r.migrateVersion),
		},
		{
			Name:   "version",
			Usage:  "prints the current database schema version",
			Action: r.execCmd(r.version),
		},
	}

	return app.Run(args)
}

func (r *Runner) check(ctx context.Context, cfg datasource.Config, _ *cli.Context) error {
	l := r.logger.With("driver", cfg.Driver)

	l.Info("opening datasource")
	ds, err := datasource.Open(ctx, cfg, txn.NoTransaction, datasource.WithLogger(l))
	if err != nil {
		return err
	}
	defer ds.Close() //nolint:errcheck

	c, err := ds.Conn(ctx)
	if err != nil {
		return err
	}
	defer c.Close(ctx) //nolint:errcheck

	if err = c.Ping(ctx); err != nil {
		return err
	}
	autoCommit, err := c.AutoCommit(ctx)
	if err != nil {
		return err
	}
	readOnly, err := c.IsReadOnly(ctx)
	if err != nil {
		return err
	}

	if err = checkLocalTx(ctx, c); err != nil {
		return fmt.Errorf("local transaction: %w", err)
	}

	l.Info("datasource is healthy", "conn_id", c.ID())
	fmt.Fprintf(r.writer, "ok driver=%s auto_commit=%t read_only=%t local_tx=ok\n", cfg.Driver, autoCommit, readOnly) //nolint:errcheck
	return nil
}

// checkLocalTx runs a query in a local transaction on c and restores
// auto-commit.
func checkLocalTx(ctx context.Context, c conn.Conn) error {
	if err := c.SetAutoCommit(ctx, false); err != nil {
		return err
	}
	err := txn.Do(ctx, c, func(ctx context.Context) error {
		var one int
		return c.QueryRow(ctx, "SELECT 1").Scan(&one)
	})
	return errors.Join(err, c.SetAutoCommit(ctx, true))
}

func (r *Runner) migrate(ctx context.Context, cfg datasource.Config, _ *cli.Context) error {
	r.logger.Info("migrating database", "driver", cfg.Driver)
	if err := r.migrateTo(ctx, cfg, nil); err != nil {
		return err
	}
	r.logger.Info("successfully migrated database")
	return nil
}

func (r *Runner) migrateVersion(ctx context.Context, cfg datasource.Config, c *cli.Context) error {
	version := c.Uint("version")
	exitOnInvalidFlags(c, valgo.Is(valgo.Uint64(uint64(version), "version").GreaterThan(0)))

	l := r.logger.With("driver", cfg.Driver, "version", version)
	l.Info("migrating database")
	if err := r.migrateTo(ctx, cfg, &version); err != nil {
		return err
	}
	l.Info("successfully migrated database")
	return nil
}

func (r *Runner) version(ctx context.Context, cfg datasource.Config, _ *cli.Context) error {
	var (
		version uint
		dirty   bool
		err     error
	)
	if cfg.Driver == datasource.DriverPostgres {
		pool, derr := pgdb.DialURL(ctx, cfg.URL)
		if derr != nil {
			return derr
		}
		defer pool.Close()
		version, dirty, err = pgdb.Version(pool, r.migrations)
	} else {
		db, oerr := sqlitedb.Open(ctx, sqlitedb.WithDir(cfg.SQLiteDir), sqlitedb.WithDBName(cfg.SQLiteName))
		if oerr != nil {
			return oerr
		}
		defer db.Close() //nolint:errcheck
		version, dirty, err = sqlitedb.Version(db, r.migrations)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(r.writer, "version=%d dirty=%t\n", version, dirty) //nolint:errcheck
	return nil
}

func (r *Runner) migrateTo(ctx context.Context, cfg datasource.Config, version *uint) error {
	if cfg.Driver == datasource.DriverPostgres {
		pool, err := pgdb.DialURL(ctx, cfg.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		var opts []pgdb.MigrateOption
		if version != nil {
			opts = append(opts, pgdb.WithVersion(*version))
		}
		return pgdb.Migrate(pool, r.migrations, opts...)
	}

	db, err := sqlitedb.Open(ctx, sqlitedb.WithDir(cfg.SQLiteDir), sqlitedb.WithDBName(cfg.SQLiteName))
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	var opts []sqlitedb.MigrateOption
	if version != nil {
		opts = append(opts, sqlitedb.WithVersion(*version))
	}
	return sqlitedb.Migrate(db, r.migrations, opts...)
}

func (r *Runner) execCmd(cmd func(ctx context.Context, cfg datasource.Config, c *cli.Context) error) func(c *cli.Context) error {
	return func(c *cli.Context) error {
		ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer cancel()
		ctx, tcancel := context.WithTimeout(ctx, cmdTimeout)
		defer tcancel()

		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		return cmd(ctx, cfg, c)
	}
}

func loadConfig(c *cli.Context) (datasource.Config, error) {
	var cfg datasource.Config
	err := config.Load(c.String("config"), &cfg)
	var verr *valgo.Error
	if err != nil && !errors.As(err, &verr) {
		return cfg, err
	}

	if c.IsSet("driver") {
		cfg.Driver = c.String("driver")
	}
	if c.IsSet("url") {
		cfg.URL = c.String("url")
	}
	if c.IsSet("sqlite-dir") {
		cfg.SQLiteDir = c.String("sqlite-dir")
	}
	if c.IsSet("sqlite-name") {
		cfg.SQLiteName = c.String("sqlite-name")
	}

	if err = cfg.Validation().ToError(); err != nil {
		if errors.As(err, &verr) {
			return cfg, fmt.Errorf("invalid datasource config: %s", strings.Join(valgoutil.GetDetails(verr), "; "))
		}
		return cfg, err
	}
	return cfg, nil
}

func exitOnInvalidFlags(c *cli.Context, v *valgo.Validation) {
	if v.ToError() == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "Flag errors:") //nolint:errcheck

	for _, verr := range v.ToError().(*valgo.Error).Errors() {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", verr.Name(), strings.Join(verr.Messages(), ",")) //nolint:errcheck
	}

	fmt.Fprintln(os.Stdout) //nolint:errcheck
	cli.ShowAppHelpAndExit(c, 1)
}
