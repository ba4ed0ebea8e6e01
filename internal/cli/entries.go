package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/bryan-buckman/readless/internal/importer"
	"github.com/bryan-buckman/readless/internal/model"
	"github.com/urfave/cli/v2"
)

func categoryCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "category",
		Usage: "Manage entry categories",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List categories",
				Action: func(ctx *cli.Context) error {
					mgr, err := e.manager()
					if err != nil {
						return err
					}
					cats, err := mgr.GetCategories()
					if err != nil {
						return err
					}
					for _, c := range cats {
						e.printf("%d\t%s\n", c.ID, c.Name)
					}
					return nil
				},
			},
			{
				Name:      "add",
				Usage:     "Create a category",
				ArgsUsage: "NAME",
				Action: func(ctx *cli.Context) error {
					name, err := arg(ctx, 0, "NAME")
					if err != nil {
						return err
					}
					mgr, err := e.manager()
					if err != nil {
						return err
					}
					return mgr.AddCategory(name)
				},
			},
			{
				Name:      "remove",
				Usage:     "Delete a category; its entries move to " + model.DefaultCategory,
				ArgsUsage: "NAME",
				Action: func(ctx *cli.Context) error {
					name, err := arg(ctx, 0, "NAME")
					if err != nil {
						return err
					}
					mgr, err := e.manager()
					if err != nil {
						return err
					}
					return mgr.RemoveCategory(name)
				},
			},
			{
				Name:      "rename",
				Usage:     "Rename a category",
				ArgsUsage: "OLD NEW",
				Action: func(ctx *cli.Context) error {
					oldName, err := arg(ctx, 0, "OLD")
					if err != nil {
						return err
					}
					newName, err := arg(ctx, 1, "NEW")
					if err != nil {
						return err
					}
					mgr, err := e.manager()
					if err != nil {
						return err
					}
					return mgr.RenameCategory(oldName, newName)
				},
			},
			{
				Name:      "import",
				Usage:     "Create categories from a file with one name per line",
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

					names, err := importer.ReadCategoryList(f)
					if err != nil {
						return err
					}
					mgr, err := e.manager()
					if err != nil {
						return err
					}
					e.printReport("categories", importer.ImportCategories(ctx.Context, mgr, names))
					return nil
				},
			},
		},
	}
}

func entryCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "entry",
		Usage: "Read and categorize entries",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List entries of enabled feeds, or of one feed",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "feed", Usage: "Only entries of this feed URL"},
					&cli.BoolFlag{Name: "unread", Usage: "Only unread entries"},
				},
				Action: func(ctx *cli.Context) error {
					mgr, err := e.manager()
					if err != nil {
						return err
					}
					var entries []model.Entry
					if url := ctx.String("feed"); url != "" {
						entries, err = mgr.GetEntries(url)
					} else {
						entries, err = mgr.GetAllEntries()
					}
					if err != nil {
						return err
					}

					tw := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
					fmt.Fprintln(tw, "READ\tPUBLISHED\tCATEGORY\tTITLE\tLINK")
					for _, en := range entries {
						if ctx.Bool("unread") && en.IsRead {
							continue
						}
						read := " "
						if en.IsRead {
							read = "x"
						}
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", read, en.Published, en.Category, en.Title, en.Link)
					}
					return tw.Flush()
				},
			},
			readCmd(e, "read", true),
			readCmd(e, "unread", false),
			{
				Name:      "categorize",
				Usage:     "Put an entry in a category",
				ArgsUsage: "LINK CATEGORY",
				Action: func(ctx *cli.Context) error {
					link, err := arg(ctx, 0, "LINK")
					if err != nil {
						return err
					}
					category, err := arg(ctx, 1, "CATEGORY")
					if err != nil {
						return err
					}
					mgr, err := e.manager()
					if err != nil {
						return err
					}
					return mgr.SetEntryCategory(link, category)
				},
			},
			{
				Name:      "category",
				Usage:     "Show an entry's category",
				ArgsUsage: "LINK",
				Action: func(ctx *cli.Context) error {
					link, err := arg(ctx, 0, "LINK")
					if err != nil {
						return err
					}
					mgr, err := e.manager()
					if err != nil {
						return err
					}
					category, err := mgr.GetEntryCategory(link)
					if err != nil {
						return err
					}
					e.printf("%s\n", category)
					return nil
				},
			},
		},
	}
}

func readCmd(e *env, name string, isRead bool) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     "Mark entries " + name,
		ArgsUsage: "LINK...",
		Action: func(ctx *cli.Context) error {
			links := ctx.Args().Slice()
			if len(links) == 0 {
				return fmt.Errorf("missing LINK argument")
			}
			mgr, err := e.manager()
			if err != nil {
				return err
			}
			return mgr.SetEntryReadStatus(isRead, links...)
		},
	}
}
