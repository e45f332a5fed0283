package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/plx/internal/formatter"
	"github.com/desertthunder/plx/internal/shared"
	"github.com/desertthunder/plx/internal/tasks"
)

// TransferRun moves one playlist from its source platform to the chosen
// destination and prints the resulting report.
func (r *Runner) TransferRun(ctx context.Context, cmd *cli.Command) error {
	sourceURL := cmd.String("url")
	target, err := tasks.ResolveDestination(cmd.String("to"))
	if err != nil {
		return err
	}

	identity := cmd.String("identity")
	if identity == "" {
		if hostname, herr := os.Hostname(); herr == nil {
			identity = hostname
		} else {
			identity = "local"
		}
	}

	r.logger.Info("starting transfer", "url", sourceURL, "destination", target)

	progressCh := make(chan tasks.ProgressUpdate, 50)
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		for update := range progressCh {
			switch update.Phase {
			case tasks.PhaseResolve, tasks.PhaseFetch:
				r.writePlain("%s\n", update.Message)
			case tasks.PhaseMatch:
				if update.Current == update.Total {
					r.writePlain("%s\n", update.Message)
				}
			case tasks.PhaseBuild:
				if update.Current == update.Total {
					r.writePlain("%s\n", update.Message)
				}
			}
		}
	}()

	report, err := r.engine.TransferPlaylist(ctx, tasks.TransferRequest{
		SourceURL:    sourceURL,
		Destination:  target,
		Identity:     identity,
		PlaylistName: cmd.String("name"),
		Progress:     progressCh,
	})
	close(progressCh)
	<-progressDone

	// A failed build still carries a report recording the confirmed appends.
	if report != nil {
		if cmd.Bool("json") {
			if werr := r.writeJSON(report, true); werr != nil {
				return werr
			}
		} else {
			r.writePlain("%s", formatter.ReportText(report))
		}

		if path := cmd.String("report"); path != "" || cmd.String("format") != "" {
			written, werr := formatter.WriteReport(report, path, cmd.String("format"))
			if werr != nil {
				return werr
			}
			r.writePlainln("Report written to %s", written)
		}
	}

	if err != nil {
		var terr *tasks.TransferError
		if errors.As(err, &terr) && errors.Is(err, shared.ErrRateLimited) {
			r.writePlainln("Transfer limit reached. Try again in %s.", terr.RetryAfter.Round(time.Second))
		}
		return err
	}

	return nil
}

// transferCommand runs playlist transfers.
func transferCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "transfer",
		Usage: "Transfer a playlist to another service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "url",
				Aliases:  []string{"u"},
				Usage:    "Source playlist URL",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "to",
				Aliases:  []string{"t"},
				Usage:    "Destination service (spotify or youtube)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Destination playlist name (defaults to the source name)",
			},
			&cli.StringFlag{
				Name:  "identity",
				Usage: "Quota identity (defaults to the hostname)",
			},
			&cli.StringFlag{
				Name:  "report",
				Usage: "Write the transfer report to this path",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Report file format: json, markdown, or text",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the report as JSON instead of styled text",
			},
		},
		Action: r.TransferRun,
	}
}
