package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/bryan-buckman/readless/internal/importer"
	"github.com/bryan-buckman/readless/internal/manager"
	"github.com/bryan-buckman/readless/internal/model"
	"github.com/bryan-buckman/readless/internal/opml"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
)

func feedCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "feed",
		Usage: "Manage feed subscriptions",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Subscribe to a feed; its entries arrive on the first fetch",
				ArgsUsage: "URL",
				Action: func(ctx *cli.Context) error {
					url, err := arg(ctx, 0, "URL")
					if err != nil {
						return err
					}
					mgr, err := e.manager()
					if err != nil {
						return err
					}
					if err := mgr.AddFeed(ctx.Context, url); err != nil {
						return err
					}
					e.printf("Added %s\n", url)
					return nil
				},
			},
			{
				Name:      "fetch",
				Usage:     "Fetch new entries for one feed, or every enabled feed",
				ArgsUsage: "[URL]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "List skipped entries"},
				},
				Action: func(ctx *cli.Context) error {
					mgr, err := e.manager()
					if err != nil {
						return err
					}
					if url := ctx.Args().First(); url != "" {
						res, err := mgr.RefreshFeed(ctx.Context, url)
						if err != nil {
							return err
						}
						e.printRefresh(url, res, ctx.Bool("verbose"))
						return nil
					}

					failed := 0
					for _, r := range mgr.RefreshAll(ctx.Context) {
						if r.Err != nil {
							failed++
							e.printf("%s: %v\n", r.URL, r.Err)
							continue
						}
						e.printRefresh(r.URL, r.Result, ctx.Bool("verbose"))
					}
					if failed > 0 {
						return fmt.Errorf("%d feed(s) failed to refresh", failed)
					}
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "List subscribed feeds",
				Action: func(ctx *cli.Context) error {
					mgr, err := e.manager()
					if err != nil {
						return err
					}
					e.printFeeds(mgr.GetFeeds())
					return nil
				},
			},
			{
				Name:      "remove",
				Usage:     "Unsubscribe and delete the feed's entries",
				ArgsUsage: "URL",
				Action: func(ctx *cli.Context) error {
					url, err := arg(ctx, 0, "URL")
					if err != nil {
						return err
					}
					mgr, err := e.manager()
					if err != nil {
						return err
					}
					if err := mgr.RemoveFeed(url); err != nil {
						return err
					}
					e.printf("Removed %s\n", url)
					return nil
				},
			},
			{
				Name:      "toggle",
				Usage:     "Enable or disable a feed",
				ArgsUsage: "URL",
				Action: func(ctx *cli.Context) error {
					url, err := arg(ctx, 0, "URL")
					if err != nil {
						return err
					}
					mgr, err := e.manager()
					if err != nil {
						return err
					}
					enabled, err := mgr.ToggleFeedStatus(url)
					if err != nil {
						return err
					}
					e.printf("%s is now %s\n", url, status(enabled))
					return nil
				},
			},
			{
				Name:      "rename",
				Usage:     "Change a feed's title",
				ArgsUsage: "URL TITLE",
				Action: func(ctx *cli.Context) error {
					url, err := arg(ctx, 0, "URL")
					if err != nil {
						return err
					}
					title, err := arg(ctx, 1, "TITLE")
					if err != nil {
						return err
					}
					mgr, err := e.manager()
					if err != nil {
						return err
					}
					return mgr.UpdateFeedTitle(url, title)
				},
			},
			{
				Name:      "import",
				Usage:     `Add feeds from a JSON list: {"feeds": [{"url": "..."}]}`,
				ArgsUsage: "FILE",
				Action: func(ctx *cli.Context) error {
					path, err := arg(ctx, 0, "FILE")
					if err != nil {
						return err
					}
					f, err := openFile(path)
					if err != nil {
						return err
					}
					defer f.Close()

					list, err := importer.ReadFeedList(f)
					if err != nil {
						return err
					}
					mgr, err := e.manager()
					if err != nil {
						return err
					}
					e.printReport("feeds", importer.ImportFeeds(ctx.Context, mgr, list.URLs, list.Invalid))
					return nil
				},
			},
			{
				Name:      "import-opml",
				Usage:     "Add the feeds of an OPML file",
				ArgsUsage: "FILE",
				Action: func(ctx *cli.Context) error {
					path, err := arg(ctx, 0, "FILE")
					if err != nil {
						return err
					}
					f, err := openFile(path)
					if err != nil {
						return err
					}
					defer f.Close()

					feeds, err := opml.Parse(f)
					if err != nil {
						return err
					}
					urls := make([]string, len(feeds))
					for i, feed := range feeds {
						urls[i] = feed.URL
					}
					mgr, err := e.manager()
					if err != nil {
						return err
					}
					e.printReport("feeds", importer.ImportFeeds(ctx.Context, mgr, urls, 0))
					return nil
				},
			},
			{
				Name:  "export-opml",
				Usage: "Write every feed as OPML",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output file (default stdout)"},
				},
				Action: func(ctx *cli.Context) error {
					mgr, err := e.manager()
					if err != nil {
						return err
					}
					feeds := mgr.GetFeeds()
					entries := make([]opml.FeedEntry, len(feeds))
					for i, f := range feeds {
						entries[i] = opml.FeedEntry{Title: f.Title, URL: f.URL}
					}
					data, err := opml.Export("readless feeds", entries, time.Now())
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
					return w.Close()
				},
			},
			{
				Name:      "backdate",
				Usage:     "Rewind every feed to DAYS ago and delete newer entries so they are fetched again",
				ArgsUsage: "DAYS",
				Action: func(ctx *cli.Context) error {
					text, err := arg(ctx, 0, "DAYS")
					if err != nil {
						return err
					}
					var days int
					if _, err := fmt.Sscan(text, &days); err != nil {
						return fmt.Errorf("%w: DAYS must be a whole number, got %q", manager.ErrInvalidArgument, text)
					}
					mgr, err := e.manager()
					if err != nil {
						return err
					}
					report, err := mgr.BackdateFeeds(days)
					if err != nil {
						return err
					}
					e.printf("Backdated %d feed(s) to %s, removed %d entries\n",
						report.Updated, report.Cutoff.Format(time.RFC1123Z), report.Removed)
					for url, err := range report.Failed {
						e.printf("%s: %v\n", url, err)
					}
					if len(report.Failed) > 0 {
						return fmt.Errorf("%d feed(s) failed to backdate", len(report.Failed))
					}
					return nil
				},
			},
		},
	}
}

func (e *env) printRefresh(url string, res manager.RefreshResult, verbose bool) {
	e.printf("%s: %d new, %d skipped\n", url, res.NewEntries, len(res.Skipped))
	if !verbose {
		return
	}
	for _, s := range res.Skipped {
		link := s.Link
		if link == "" {
			link = "(no link)"
		}
		e.printf("  skipped %s: %s\n", link, s.Reason)
	}
}

func (e *env) printFeeds(feeds []model.Feed) {
	if len(feeds) == 0 {
		e.printf("No feeds\n")
		return
	}
	tw := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tURL\tSTATUS\tUPDATED")
	for _, f := range feeds {
		updated := "never"
		if f.LastUpdated.After(model.Epoch) {
			updated = humanize.Time(f.LastUpdated)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", f.ID, f.Title, f.URL, status(f.Enabled), updated)
	}
	tw.Flush()
}

func (e *env) printReport(kind string, report importer.Report) {
	e.printf("Imported %d %s, %d failed\n", report.Added, kind, report.Failed)
	for _, ie := range report.Errors {
		e.printf("  %v\n", ie)
	}
}

func status(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

func arg(ctx *cli.Context, i int, name string) (string, error) {
	if ctx.NArg() <= i || ctx.Args().Get(i) == "" {
		return "", fmt.Errorf("missing %s argument", name)
	}
	return ctx.Args().Get(i), nil
}
