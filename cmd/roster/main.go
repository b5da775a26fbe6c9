package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "net/http/pprof"

	_ "github.com/joho/godotenv/autoload"

	"github.com/bluesky-social/roster/roster"
	"github.com/bluesky-social/roster/users"
	"github.com/bluesky-social/roster/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting process", "error", err)
		os.Exit(-1)
	}
}

func run(args []string) error {
	app := cli.App{
		Name:    "roster",
		Usage:   "cached user directory service",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "address and port to listen on for the HTTP API",
			Value:   ":8080",
			EnvVars: []string{"ROSTER_BIND"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "database connection string (sqlite:// or postgres://)",
			Value:   "sqlite://data/roster/roster.sqlite",
			EnvVars: []string{"ROSTER_DATABASE_URL", "DATABASE_URL"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			Usage:   "maximum number of database connections",
			Value:   40,
			EnvVars: []string{"ROSTER_MAX_DB_CONNECTIONS", "MAX_DB_CONNECTIONS"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics and pprof",
			Value:   ":2831",
			EnvVars: []string{"ROSTER_METRICS_LISTEN"},
		},
		&cli.BoolFlag{
			Name:    "seed-sample-data",
			Usage:   "insert an example user if the database is empty",
			EnvVars: []string{"ROSTER_SEED_SAMPLE_DATA"},
		},
		&cli.IntFlag{
			Name:    "seed-fake-users",
			Usage:   "insert this many randomly generated users on startup (development only)",
			Value:   0,
			EnvVars: []string{"ROSTER_SEED_FAKE_USERS"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (debug, info, warn, error)",
			Value:   "info",
			EnvVars: []string{"ROSTER_LOG_LEVEL", "LOG_LEVEL"},
		},
	}

	app.Action = runRoster

	return app.Run(args)
}

func runRoster(cctx *cli.Context) error {
	logger := configLogger(cctx, os.Stdout)
	slog.SetDefault(logger)

	db, err := cliutil.SetupDatabase(cctx.String("database-url"), cctx.Int("max-db-connections"))
	if err != nil {
		return err
	}

	store := users.NewDBStore(db)
	if err := store.InitSchema(cctx.Context); err != nil {
		return fmt.Errorf("initializing user schema: %w", err)
	}

	if cctx.Bool("seed-sample-data") {
		// non-fatal; the service comes up either way
		if err := store.SeedSampleData(cctx.Context); err != nil {
			logger.Warn("failed to seed sample data", "error", err)
		}
	}

	if n := cctx.Int("seed-fake-users"); n > 0 {
		inserted, err := users.SeedFakeUsers(cctx.Context, store, n)
		if err != nil {
			logger.Warn("failed to seed fake users", "error", err, "inserted", inserted)
		} else {
			logger.Info("seeded fake users", "count", inserted)
		}
	}

	logger.Info("creating roster service")
	srv, err := roster.NewServer(db, users.NewCachedStore(store), roster.Config{
		Logger:        logger.With("system", "roster"),
		Bind:          cctx.String("bind"),
		MetricsListen: cctx.String("metrics-listen"),
	})
	if err != nil {
		return err
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	svcErr := make(chan error, 1)

	go func() {
		if err := srv.RunMetrics(); err != nil {
			svcErr <- err
		}
	}()

	go func() {
		if err := srv.RunAPI(); err != nil {
			svcErr <- err
		}
	}()

	logger.Info("startup complete")
	select {
	case <-signals:
		logger.Info("received shutdown signal")
	case err := <-svcErr:
		if err != nil {
			logger.Error("service error", "error", err)
		}
	}

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during shutdown", "error", err)
		return err
	}

	if sqldb, err := db.DB(); err == nil {
		sqldb.Close()
	}

	logger.Info("shutdown complete")
	return nil
}

func configLogger(cctx *cli.Context, writer *os.File) *slog.Logger {
	var level slog.Level
	switch cctx.String("log-level") {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: level,
	}))

	return logger
}
