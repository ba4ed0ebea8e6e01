// Package cli implements the readless command line.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/bryan-buckman/readless/internal/config"
	"github.com/bryan-buckman/readless/internal/database"
	"github.com/bryan-buckman/readless/internal/manager"
	"github.com/bryan-buckman/readless/internal/rss"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// env carries what commands share. The store and manager are opened on
// first use so that help and flag errors never touch the database.
type env struct {
	cfg   *config.Config
	log   *logrus.Logger
	out   io.Writer
	store database.Store
	mgr   *manager.Manager
}

func (e *env) manager() (*manager.Manager, error) {
	if e.mgr != nil {
		return e.mgr, nil
	}
	store, err := database.Open(e.cfg.Database.Driver, e.cfg.DataSource())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	mgr, err := manager.New(store, rss.NewGofeedParser(e.cfg.Fetch.UserAgent),
		manager.WithLogger(e.log),
		manager.WithFetchTimeout(e.cfg.Fetch.Timeout),
	)
	if err != nil {
		store.Close()
		return nil, err
	}
	e.log.WithFields(logrus.Fields{"driver": store.DatabaseType(), "feeds": len(mgr.GetFeeds())}).Debug("Database opened")
	e.store, e.mgr = store, mgr
	return mgr, nil
}

func (e *env) close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

func (e *env) printf(format string, args ...any) {
	fmt.Fprintf(e.out, format, args...)
}

// App builds the readless application. Command output goes to out; logs go
// to stderr.
func App(out io.Writer) *cli.App {
	e := &env{out: out, log: logrus.New()}

	return &cli.App{
		Name:  "readless",
		Usage: "Ingest RSS feeds, categorize entries and write digests",
		Description: `readless keeps a database of RSS feeds and their entries. Feeds are
		fetched on demand (feed fetch) or on a schedule (serve). Only entries
		published after a feed's last update are stored.

		Flags can generally be set via environment variables, e.g.:

		--db => READLESS_DB=feeds.db
		--log-level => READLESS_LOG_LEVEL=debug
		`,
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a TOML or YAML config file",
				EnvVars: []string{"READLESS_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "db-driver",
				Usage:   "Database driver: sqlite or postgres",
				EnvVars: []string{"READLESS_DB_DRIVER"},
			},
			&cli.StringFlag{
				Name:    "db",
				Usage:   "SQLite database path, or PostgreSQL connection string",
				EnvVars: []string{"READLESS_DB"},
			},
			&cli.DurationFlag{
				Name:    "fetch-timeout",
				Usage:   "Timeout for fetching a single feed",
				EnvVars: []string{"READLESS_FETCH_TIMEOUT"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level: trace, debug, info, warn, error",
				EnvVars: []string{"READLESS_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format: text or json",
				EnvVars: []string{"READLESS_LOG_FORMAT"},
			},
		},
		Before: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			e.cfg = cfg
			configureLogger(e.log, cfg.Log)
			return nil
		},
		After: func(ctx *cli.Context) error {
			return e.close()
		},
		Commands: []*cli.Command{
			feedCmd(e),
			categoryCmd(e),
			entryCmd(e),
			digestCmd(e),
			serveCmd(e),
		},
	}
}

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return nil, err
	}
	if ctx.IsSet("db-driver") {
		cfg.Database.Driver = ctx.String("db-driver")
	}
	if ctx.IsSet("db") {
		if cfg.Database.Driver == "postgres" {
			cfg.Database.DSN = ctx.String("db")
		} else {
			cfg.Database.Path = ctx.String("db")
		}
	}
	if ctx.IsSet("fetch-timeout") {
		cfg.Fetch.Timeout = ctx.Duration("fetch-timeout")
	}
	if ctx.IsSet("log-level") {
		cfg.Log.Level = ctx.String("log-level")
	}
	if ctx.IsSet("log-format") {
		cfg.Log.Format = ctx.String("log-format")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configureLogger(log *logrus.Logger, cfg config.LogConfig) {
	log.SetOutput(os.Stderr)
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		log.SetLevel(level)
	}
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// openFile opens path for reading; "-" is stdin.
func openFile(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

// createFile opens path for writing; "" and "-" are the command output.
func (e *env) createFile(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopWriteCloser{e.out}, nil
	}
	return os.Create(path)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
