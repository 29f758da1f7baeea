package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mathfe/grader/store"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

const (
	migrateTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "path to config.yaml",
	Value:   "/app/config.yaml",
	EnvVars: []string{"GRADER_CONFIG"},
}

func main() {
	app := &cli.App{
		Name:   "grader",
		Usage:  "grade PDF scripts against a rubric",
		Flags:  []cli.Flag{configFlag},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API (default)",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations and exit",
				Action: migrate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) (Config, *logrus.Logger, *store.DB, error) {
	cfg, path, err := loadConfig(c.String("config"))
	if err != nil {
		return cfg, nil, nil, err
	}
	logger := newLogger(cfg)
	if path != "" {
		logger.WithField("path", path).Info("loaded config")
	} else {
		logger.Info("no config file found, using defaults")
	}

	db, err := store.OpenFromConfig(cfg.DatabaseURL, cfg.DatabasePath, cfg.DatabaseDriver)
	if err != nil {
		return cfg, logger, nil, fmt.Errorf("connect db: %w", err)
	}
	ctx, cancel := context.WithTimeout(c.Context, migrateTimeout)
	defer cancel()
	if err := store.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return cfg, logger, nil, fmt.Errorf("migrate: %w", err)
	}
	return cfg, logger, db, nil
}

func migrate(c *cli.Context) error {
	_, logger, db, err := setup(c)
	if err != nil {
		return err
	}
	defer db.Close()
	version, err := store.MigrationVersion(c.Context, db)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"driver": db.Driver, "version": version}).Info("migrations applied")
	return nil
}

func serve(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, db, err := setup(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if shutdown := initOTel(ctx, cfg, logger); shutdown != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), otelShutdownTimeout)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				logger.WithError(err).Warn("otel shutdown failed")
			}
		}()
	}

	rdb, closeRedis, err := openRedis(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	srv := newServer(cfg, logger, db, rdb)
	app := srv.GetMainEngine()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", cfg.Port).Info("listening")
		return app.Listen(cfg.Port)
	})
	g.Go(func() error {
		return srv.sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shut down")
	return nil
}
