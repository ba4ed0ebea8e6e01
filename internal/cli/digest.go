package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/bryan-buckman/readless/internal/digest"
	"github.com/urfave/cli/v2"
)

func digestCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "digest",
		Usage: "Write the entries of a date range grouped by category",
		Description: `The range is chosen by --start/--end, then --range, then --days.
		Without any of them the digest covers the last 7 days.`,
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "days", Value: 7, Usage: "Cover today and the DAYS days before it"},
			&cli.StringFlag{Name: "range", Usage: "Preset range: day, week or month"},
			&cli.StringFlag{Name: "start", Usage: "First day, YYYY-MM-DD (UTC)"},
			&cli.StringFlag{Name: "end", Usage: "Last day, YYYY-MM-DD (UTC)"},
			&cli.StringFlag{Name: "format", Value: "markdown", Usage: "Output format: markdown or json"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output file (default stdout)"},
		},
		Action: func(ctx *cli.Context) error {
			start, end, err := digestRange(ctx, time.Now().UTC())
			if err != nil {
				return err
			}

			var render func(digest.Digest) ([]byte, error)
			switch ctx.String("format") {
			case "markdown", "md":
				render = func(d digest.Digest) ([]byte, error) { return []byte(digest.RenderMarkdown(d)), nil }
			case "json":
				render = digest.RenderJSON
			default:
				return fmt.Errorf("unknown format %q (want markdown or json)", ctx.String("format"))
			}

			mgr, err := e.manager()
			if err != nil {
				return err
			}
			entries, err := mgr.GetEntriesByDateRange(start, end)
			if err != nil {
				return err
			}
			data, err := render(digest.Build(entries, start, end))
			if err != nil {
				return err
			}

			w, err := e.createFile(ctx.String("out"))
			if err != nil {
				return err
			}
			if _, err := w.Write(data); err != nil {
				w.Close()
				return err
			}
			e.log.WithField("entries", len(entries)).Debug("Digest written")
			return w.Close()
		},
	}
}

func digestRange(ctx *cli.Context, now time.Time) (time.Time, time.Time, error) {
	switch {
	case ctx.IsSet("start") || ctx.IsSet("end"):
		if !ctx.IsSet("start") || !ctx.IsSet("end") {
			return time.Time{}, time.Time{}, errors.New("--start and --end must be given together")
		}
		return digest.ParseRange(ctx.String("start"), ctx.String("end"))
	case ctx.IsSet("range"):
		return digest.Range(ctx.String("range"), now)
	default:
		return digest.LastDays(ctx.Int("days"), now)
	}
}
