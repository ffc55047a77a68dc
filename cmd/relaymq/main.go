// Package main provides the relaymq command line tool for sealing payloads,
// managing device key pairs and provisioning TLS material.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:    "relaymq",
		Usage:   "End-to-end encrypted pub/sub client tooling",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
				Sources: cli.EnvVars("RELAYMQ_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "seal",
				Usage: "Encrypt stdin into a base64 envelope",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withClient(ctx, cmd, func(env *environment) error {
						return runSeal(env, DefaultIO())
					})
				},
			},
			{
				Name:  "open",
				Usage: "Decrypt a base64 envelope read from stdin",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withClient(ctx, cmd, func(env *environment) error {
						return runOpen(env, DefaultIO())
					})
				},
			},
			{
				Name:     "keys",
				Usage:    "Manage device key pairs",
				Commands: getKeyCommands(),
			},
			{
				Name:  "provision",
				Usage: "Fetch and install the secrets issued to this device",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:    "interval",
						Aliases: []string{"i"},
						Value:   0,
						Usage:   "Provision again every interval until interrupted (0 runs once)",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "text",
						Usage:   "Output format: 'text' or 'json'",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withClient(ctx, cmd, func(env *environment) error {
						return runProvision(ctx, env, DefaultIO().Writer, cmd.Duration("interval"), cmd.String("format"))
					})
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		slog.Error("application error", slog.Any("error", err))
		os.Exit(1)
	}
}

func getKeyCommands() []*cli.Command {
	aliasFlag := &cli.StringFlag{
		Name:     "alias",
		Aliases:  []string{"a"},
		Required: true,
		Usage:    "Key pair alias",
	}

	return []*cli.Command{
		{
			Name:  "create",
			Usage: "Create a key pair, or print the public key of an existing one",
			Flags: []cli.Flag{aliasFlag},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withClient(ctx, cmd, func(env *environment) error {
					return runCreateKey(ctx, env, DefaultIO().Writer, cmd.String("alias"))
				})
			},
		},
		{
			Name:  "list",
			Usage: "List key pair aliases",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withClient(ctx, cmd, func(env *environment) error {
					return runListKeys(ctx, env, DefaultIO().Writer)
				})
			},
		},
		{
			Name:  "delete",
			Usage: "Delete a key pair",
			Flags: []cli.Flag{aliasFlag},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withClient(ctx, cmd, func(env *environment) error {
					return runDeleteKey(ctx, env, DefaultIO().Writer, cmd.String("alias"))
				})
			},
		},
		{
			Name:  "fingerprint",
			Usage: "Print the fingerprint the config service knows a key pair by",
			Flags: []cli.Flag{aliasFlag},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withClient(ctx, cmd, func(env *environment) error {
					return runFingerprint(ctx, env, DefaultIO().Writer, cmd.String("alias"))
				})
			},
		},
	}
}

// shutdownTimeout bounds how long the metrics server may take to drain.
const shutdownTimeout = 5 * time.Second
