package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/abduss/sharefiles/internal/client"
	"github.com/urfave/cli/v2"
)

func newClient(ctx *cli.Context) *client.Client {
	return client.New(ctx.String("server"), client.WithChunkSize(ctx.Int("chunk-size")))
}

var uploadCmd = &cli.Command{
	Name:      "upload",
	Usage:     "Upload files and print the share link",
	ArgsUsage: "FILE...",
	Flags: []cli.Flag{
		&cli.DurationFlag{
			Name:  "expires",
			Value: 72 * time.Hour,
			Usage: "How long the link stays valid (at most 14 days)",
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Only print the share link",
		},
	},
	Action: func(ctx *cli.Context) error {
		paths := ctx.Args().Slice()
		if len(paths) == 0 {
			return errors.New("no files given")
		}

		var progress client.Progress
		if !ctx.Bool("quiet") {
			progress = func(name string, sent, total int64) {
				fmt.Fprintf(os.Stderr, "\r%s: %d/%d bytes", name, sent, total)
				if sent >= total {
					fmt.Fprintln(os.Stderr)
				}
			}
		}

		c := newClient(ctx)
		deleteDate := time.Now().Add(ctx.Duration("expires"))
		entryID, err := c.Upload(ctx.Context, deleteDate, paths, progress)
		if err != nil {
			return err
		}

		fmt.Println(c.ShareURL(entryID))
		return nil
	},
}

var downloadCmd = &cli.Command{
	Name:  "download",
	Usage: "Download an entry as a zip archive",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "entry",
			Required: true,
			Usage:    "Entry id from the share link",
		},
		&cli.StringFlag{
			Name:  "out",
			Value: "share-those-files.zip",
			Usage: "Where to write the archive",
		},
	},
	Action: func(ctx *cli.Context) error {
		out := ctx.String("out")
		f, err := os.Create(out)
		if err != nil {
			return err
		}

		n, err := newClient(ctx).Download(ctx.Context, ctx.String("entry"), f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(out)
			return err
		}

		fmt.Fprintf(os.Stderr, "wrote %d bytes to %s\n", n, out)
		return nil
	},
}

var infoCmd = &cli.Command{
	Name:  "info",
	Usage: "Show an entry and its files",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "entry",
			Required: true,
			Usage:    "Entry id from the share link",
		},
	},
	Action: func(ctx *cli.Context) error {
		info, err := newClient(ctx).Entry(ctx.Context, ctx.String("entry"))
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	},
}
