package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/aussiebroadwan/bluebeam/internal/config"
	"github.com/aussiebroadwan/bluebeam/internal/tokenstore"
	"github.com/aussiebroadwan/bluebeam/pkg/bluebeam"
	"github.com/aussiebroadwan/bluebeam/pkg/slogx"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string, version string) error {
	return newRootCommand(version, os.Environ).Run(ctx, args)
}

func newRootCommand(version string, environ func() []string) *cli.Command {
	return &cli.Command{
		Name:    "bluebeam",
		Usage:   "Bluebeam Studio Sessions client",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to a TOML config file",
				Sources: cli.EnvVars("BLUEBEAM_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error), overrides config",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json), overrides config",
			},
		},
		Commands: []*cli.Command{
			authCommand(environ),
			sessionsCommand(environ),
		},
		Metadata: map[string]any{"version": version},
	}
}

// app is what every action needs, built from flags and config.
type app struct {
	cfg    config.Config
	client *bluebeam.Client
	store  *tokenstore.Store
	logger *slog.Logger
	out    io.Writer
}

func setup(cmd *cli.Command, environ func() []string) (*app, error) {
	cfg, err := config.Load(cmd.String("config"), environ)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if lvl := cmd.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if format := cmd.String("log-format"); format != "" {
		cfg.Log.Format = format
	}

	version, _ := cmd.Root().Metadata["version"].(string)
	logger := slogx.New(slogx.Config{
		Service: "bluebeam",
		Version: version,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cmd.Root().ErrWriter,
	})

	opts := []bluebeam.Option{bluebeam.WithLogger(logger)}
	if cfg.BaseURL != "" {
		opts = append(opts, bluebeam.WithBaseURL(cfg.BaseURL))
	}

	client, err := bluebeam.NewClient(cfg.Client(), opts...)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		client: client,
		store:  tokenstore.New(cfg.Keyring.Service, cfg.Keyring.User),
		logger: logger,
		out:    writer(cmd),
	}, nil
}

// withToken loads the stored token into the client, runs fn, and writes back
// the token if fn caused a refresh. The write-back ignores cancellation: a
// refresh may already have rotated the stored refresh token.
func (a *app) withToken(ctx context.Context, fn func(context.Context) error) error {
	stored, err := a.store.Load(ctx)
	if err != nil {
		return err
	}

	a.client.Tokens().Restore(stored)

	runErr := fn(ctx)

	if current, ok := a.client.Tokens().Token(); ok && current.AccessToken != stored.AccessToken {
		if err := a.store.Save(context.WithoutCancel(ctx), current); err != nil {
			a.logger.WarnContext(ctx, "failed to persist refreshed token", "err", err)
		}
	}

	return runErr
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writer(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}
