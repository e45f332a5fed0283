package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/plx/internal/shared"
)

// Limits shows the remaining transfer quota without consuming it.
func (r *Runner) Limits(ctx context.Context, cmd *cli.Command) error {
	if r.quota == nil {
		return fmt.Errorf("%w: quota store not configured", shared.ErrMissingConfig)
	}

	identity := cmd.String("identity")
	if identity == "" {
		if hostname, err := os.Hostname(); err == nil {
			identity = hostname
		} else {
			identity = "local"
		}
	}

	decision, err := r.quota.Peek(ctx, identity)
	if err != nil {
		return fmt.Errorf("failed to read quota: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(decision, true)
	}

	r.writePlain("Transfers remaining: %d of %d per %s\n",
		decision.Remaining, r.config.RateLimit.MaxTransfers, r.config.RateLimit.Window())
	if decision.Remaining < r.config.RateLimit.MaxTransfers {
		r.writePlain("Window resets at %s\n", decision.ResetAt.Format(time.RFC1123))
	}

	return nil
}

func limitsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "limits",
		Usage: "Show remaining transfer quota",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "identity",
				Usage: "Quota identity (defaults to the hostname)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print as JSON",
			},
		},
		Action: r.Limits,
	}
}
