package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"
	"go.temporal.io/server/common/log"
	"go.temporal.io/server/common/log/tag"

	"github.com/biferdou/ttlgate/common/config"
	"github.com/biferdou/ttlgate/server"
)

// Version is stamped at build time via -ldflags.
var Version = "1.0.0"

func main() {
	if err := buildApp().Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func buildApp() *cli.App {
	app := cli.NewApp()
	app.Name = "ttlgate"
	app.Usage = "TLS-terminating HTTP server with adaptive per-IP connection tracking"
	app.Version = Version

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config, c",
			Value:  "",
			Usage:  "path to the YAML configuration file",
			EnvVar: "TTLGATE_CONFIG",
		},
	}
	app.Action = runServer
	return app
}

func runServer(c *cli.Context) error {
	bootLogger := log.NewCLILogger()

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		bootLogger.Error("failed to load configuration", tag.Error(err))
		return err
	}

	logger := log.NewZapLogger(log.BuildZapLogger(log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Stdout: true,
	}))
	logger.Info("starting ttlgate", tag.NewStringTag("version", Version))

	srv, err := server.New(cfg, logger, nil, Version)
	if err != nil {
		logger.Error("failed to initialize server", tag.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error("server exited with error", tag.Error(err))
		return err
	}
	return nil
}
