package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/aussiebroadwan/bluebeam/pkg/bluebeam"
)

// authCommand returns the 'auth' subcommand for managing the stored token.
func authCommand(environ func() []string) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage Bluebeam authentication",
		Commands: []*cli.Command{
			{
				Name:   "url",
				Usage:  "Print an authorization URL",
				Action: authURLAction(environ),
			},
			{
				Name:  "login",
				Usage: "Authorize in the browser and save the token",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "code",
						Usage: "authorization code or callback URL; prompts when omitted",
					},
				},
				Action: authLoginAction(environ),
			},
			{
				Name:   "refresh",
				Usage:  "Refresh the stored token now",
				Action: authRefreshAction(environ),
			},
			{
				Name:   "status",
				Usage:  "Show the stored token's expiry",
				Action: authStatusAction(environ),
			},
			{
				Name:   "logout",
				Usage:  "Delete the stored token",
				Action: authLogoutAction(environ),
			},
		},
	}
}

func authURLAction(environ func() []string) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		a, err := setup(cmd, environ)
		if err != nil {
			return err
		}
		defer a.client.Close()

		state, err := bluebeam.NewState()
		if err != nil {
			return err
		}

		authURL, err := a.client.AuthorizationURL(state)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(a.out, authURL)
		return err
	}
}

// authLoginAction runs the authorization code flow interactively.
func authLoginAction(environ func() []string) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		a, err := setup(cmd, environ)
		if err != nil {
			return err
		}
		defer a.client.Close()

		state, err := bluebeam.NewState()
		if err != nil {
			return err
		}

		authURL, err := a.client.AuthorizationURL(state)
		if err != nil {
			return err
		}

		input := cmd.String("code")
		if input == "" {
			fmt.Fprintln(a.out, "=== Bluebeam Studio Login ===")
			fmt.Fprintln(a.out)
			fmt.Fprintf(a.out, "1. Visit this URL in your browser:\n   %s\n\n", authURL)
			fmt.Fprintln(a.out, "2. Authorize the application")
			fmt.Fprintln(a.out, "3. Paste the code or the full URL you were redirected to")

			input, err = readSecureInput(ctx, cmd, "\nAuthorization code: ")
			if err != nil {
				return err
			}
		}

		code, err := codeFromInput(input, state)
		if err != nil {
			return err
		}

		tok, err := a.client.ExchangeCode(ctx, code)
		if err != nil {
			return fmt.Errorf("failed to exchange authorization code: %w", err)
		}

		if err := a.store.Save(ctx, tok); err != nil {
			return fmt.Errorf("failed to save token: %w", err)
		}

		fmt.Fprintln(a.out)
		fmt.Fprintln(a.out, "=== Login Successful ===")
		fmt.Fprintf(a.out, "Token saved, expires %s\n", tok.ExpiresAt.Local().Format(time.RFC1123))
		return nil
	}
}

// codeFromInput accepts either the bare code or the whole redirect URL. Only
// the URL form carries a state to check.
func codeFromInput(input, state string) (string, error) {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		return bluebeam.ParseAuthorizationCallback(input, state)
	}
	if input == "" {
		return "", errors.New("authorization code cannot be empty")
	}
	return input, nil
}

func authRefreshAction(environ func() []string) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		a, err := setup(cmd, environ)
		if err != nil {
			return err
		}
		defer a.client.Close()

		return a.withToken(ctx, func(ctx context.Context) error {
			tok, err := a.client.Tokens().Refresh(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.out, "Token refreshed, expires %s\n", tok.ExpiresAt.Local().Format(time.RFC1123))
			return err
		})
	}
}

type tokenStatus struct {
	ExpiresAt       time.Time `json:"expires_at"`
	Expired         bool      `json:"expired"`
	HasRefreshToken bool      `json:"has_refresh_token"`
	Scope           string    `json:"scope,omitempty"`
}

func authStatusAction(environ func() []string) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		a, err := setup(cmd, environ)
		if err != nil {
			return err
		}
		defer a.client.Close()

		tok, err := a.store.Load(ctx)
		if err != nil {
			return err
		}

		return a.printJSON(tokenStatus{
			ExpiresAt:       tok.ExpiresAt,
			Expired:         !time.Now().Before(tok.ExpiresAt.Add(-a.cfg.ExpirySkew)),
			HasRefreshToken: tok.RefreshToken != "",
			Scope:           tok.Scope,
		})
	}
}

func authLogoutAction(environ func() []string) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		a, err := setup(cmd, environ)
		if err != nil {
			return err
		}
		defer a.client.Close()

		if err := a.store.Delete(ctx); err != nil {
			return err
		}

		_, err = fmt.Fprintln(a.out, "Credentials cleared")
		return err
	}
}

// readSecureInput reads one line, hiding it when stdin is a terminal.
// Goroutine+select pattern required because term.ReadPassword has no native context support.
func readSecureInput(ctx context.Context, cmd *cli.Command, prompt string) (string, error) {
	out := cmd.Root().ErrWriter
	if out == nil {
		out = os.Stderr
	}
	in := cmd.Root().Reader
	if in == nil {
		in = os.Stdin
	}

	fmt.Fprint(out, prompt)
	defer fmt.Fprintln(out)

	type result struct {
		value string
		err   error
	}
	resultCh := make(chan result, 1)

	go func() {
		if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			b, err := term.ReadPassword(int(f.Fd()))
			resultCh <- result{value: string(b), err: err}
			return
		}

		line, err := bufio.NewReader(in).ReadString('\n')
		if errors.Is(err, io.EOF) && line != "" {
			err = nil
		}
		resultCh <- result{value: strings.TrimSpace(line), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return "", fmt.Errorf("failed to read input: %w", res.err)
		}
		return res.value, nil
	}
}
