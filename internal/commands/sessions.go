package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/aussiebroadwan/bluebeam/pkg/bluebeam"
)

// sessionsCommand returns the 'sessions' subcommand. Every action loads the
// stored token and saves it back if it was refreshed.
func sessionsCommand(environ func() []string) *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Manage Studio sessions",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List sessions",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "page", Value: 1},
					&cli.IntFlag{Name: "page-size", Value: bluebeam.DefaultPageSize},
				},
				Action: sessionsAction(environ, func(ctx context.Context, a *app, cmd *cli.Command) error {
					list, err := a.client.ListSessions(ctx, bluebeam.ListSessionsOptions{
						Page:     cmd.Int("page"),
						PageSize: cmd.Int("page-size"),
					})
					if err != nil {
						return err
					}
					return a.printJSON(list)
				}),
			},
			{
				Name:      "get",
				Usage:     "Show one session",
				ArgsUsage: "<session-id>",
				Action: sessionsAction(environ, func(ctx context.Context, a *app, cmd *cli.Command) error {
					id, err := requireArg(cmd, "session ID")
					if err != nil {
						return err
					}
					session, err := a.client.GetSession(ctx, id)
					if err != nil {
						return err
					}
					return a.printJSON(session)
				}),
			},
			{
				Name:      "create",
				Usage:     "Create a session",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "description"},
					&cli.BoolFlag{Name: "restricted", Usage: "only invited attendees may join"},
				},
				Action: sessionsAction(environ, func(ctx context.Context, a *app, cmd *cli.Command) error {
					name, err := requireArg(cmd, "session name")
					if err != nil {
						return err
					}

					req := bluebeam.CreateSessionRequest{
						Name:        name,
						Description: cmd.String("description"),
					}
					if cmd.IsSet("restricted") {
						restricted := cmd.Bool("restricted")
						req.Restricted = &restricted
					}

					session, err := a.client.CreateSession(ctx, req)
					if err != nil {
						return err
					}
					return a.printJSON(session)
				}),
			},
			{
				Name:      "update",
				Usage:     "Rename or re-describe a session",
				ArgsUsage: "<session-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name"},
					&cli.StringFlag{Name: "description"},
				},
				Action: sessionsAction(environ, func(ctx context.Context, a *app, cmd *cli.Command) error {
					id, err := requireArg(cmd, "session ID")
					if err != nil {
						return err
					}

					req := bluebeam.UpdateSessionRequest{Name: cmd.String("name")}
					if cmd.IsSet("description") {
						desc := cmd.String("description")
						req.Description = &desc
					}

					if err := a.client.UpdateSession(ctx, id, req); err != nil {
						return err
					}
					_, err = fmt.Fprintf(a.out, "Session %s updated\n", id)
					return err
				}),
			},
			{
				Name:      "delete",
				Usage:     "Delete a session",
				ArgsUsage: "<session-id>",
				Action: sessionsAction(environ, func(ctx context.Context, a *app, cmd *cli.Command) error {
					id, err := requireArg(cmd, "session ID")
					if err != nil {
						return err
					}
					if err := a.client.DeleteSession(ctx, id); err != nil {
						return err
					}
					_, err = fmt.Fprintf(a.out, "Session %s deleted\n", id)
					return err
				}),
			},
		},
	}
}

func sessionsAction(
	environ func() []string,
	run func(ctx context.Context, a *app, cmd *cli.Command) error,
) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		a, err := setup(cmd, environ)
		if err != nil {
			return err
		}
		defer a.client.Close()

		return a.withToken(ctx, func(ctx context.Context) error {
			return run(ctx, a, cmd)
		})
	}
}

func requireArg(cmd *cli.Command, what string) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", fmt.Errorf("expected exactly one argument: %s", what)
	}
	return cmd.Args().First(), nil
}
