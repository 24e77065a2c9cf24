package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hbomb79/Tikfetch/internal"
	"github.com/hbomb79/Tikfetch/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

var log = logger.Get("Bootstrap")

// main is the entry point to the program. Configuration is loaded
// from an optional YAML file and the environment (after any .env file
// has been applied), and then the service runs until interrupted.
func main() {
	app := cli.App{
		Name:        "tikfetch",
		Usage:       "download short-form videos and serve them back to the requester",
		Description: "a web service which fetches TikTok videos using yt-dlp and serves the resulting files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML configuration file",
				EnvVars: []string{"TIKFETCH_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "path to a .env file to load before reading the environment",
				Value: ".env",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Emit(logger.FATAL, "%v\n", err)
		os.Exit(1)
	}
}

func run(cliCtx *cli.Context) error {
	if err := loadEnvFile(cliCtx.String("env-file")); err != nil {
		return err
	}

	config, err := internal.LoadConfig(cliCtx.String("config"))
	if err != nil {
		return err
	}
	logger.SetMinLoggingLevel(config.MinLogLevel())

	service, err := internal.New(*config)
	if err != nil {
		return fmt.Errorf("failed to construct service: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Emit(logger.INFO, "Starting tikfetch (press Ctrl+C to stop)\n")
	if err := service.Run(ctx); err != nil {
		return fmt.Errorf("service stopped unexpectedly: %w", err)
	}

	log.Emit(logger.STOP, "Shutdown complete\n")
	return nil
}

// loadEnvFile applies the .env file at path to the process environment.
// A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}

	return nil
}
