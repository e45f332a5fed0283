package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/plx/internal/server"
	"github.com/desertthunder/plx/internal/shared"
)

// AuthURL prints the Spotify authorization URL for the configured client.
func (r *Runner) AuthURL(ctx context.Context, cmd *cli.Command) error {
	if r.spotify == nil {
		return fmt.Errorf("%w: spotify credentials not configured", shared.ErrMissingCredentials)
	}

	state := shared.GenerateID()
	r.writePlain("Open this URL in your browser to authorize:\n%s\n", r.spotify.GetAuthURL(state))
	return nil
}

// AuthToken exchanges an authorization code for an access token.
func (r *Runner) AuthToken(ctx context.Context, cmd *cli.Command) error {
	if r.spotify == nil {
		return fmt.Errorf("%w: spotify credentials not configured", shared.ErrMissingCredentials)
	}

	code := cmd.String("code")
	if err := r.spotify.Authenticate(ctx, map[string]string{"auth_code": code}); err != nil {
		return fmt.Errorf("token exchange failed: %w", err)
	}

	token, err := r.spotify.AccessToken()
	if err != nil {
		return err
	}

	r.writePlain("Authenticated with Spotify.\n")
	r.writePlainln("Add this to config.toml under [credentials.spotify]:")
	r.writePlain("access_token = %q\n", token)
	return nil
}

// AuthLogin runs the full browser flow: prints the authorization URL and
// waits on the redirect URI for the callback.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	if r.spotify == nil {
		return fmt.Errorf("%w: spotify credentials not configured", shared.ErrMissingCredentials)
	}

	state := shared.GenerateID()
	callback, err := server.NewCallbackServer(r.spotify.OAuthConfig(), state)
	if err != nil {
		return err
	}

	r.writePlain("Open this URL in your browser to authorize:\n%s\n\n", r.spotify.GetAuthURL(state))
	r.writePlain("Waiting for authorization...\n")

	token, err := callback.Listen(ctx, cmd.Duration("timeout"))
	if err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}

	r.spotify.SetToken(ctx, token)
	r.writePlain("Authenticated with Spotify.\n")
	r.writePlainln("Add this to config.toml under [credentials.spotify]:")
	r.writePlain("access_token = %q\n", token.AccessToken)
	return nil
}

func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with Spotify",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Authorize via the browser and capture the callback",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the browser callback",
						Value: 2 * time.Minute,
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "url",
				Usage:  "Print the Spotify authorization URL",
				Action: r.AuthURL,
			},
			{
				Name:  "token",
				Usage: "Exchange an authorization code for an access token",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "code",
						Usage:    "Authorization code from the redirect URL",
						Required: true,
					},
				},
				Action: r.AuthToken,
			},
		},
	}
}
