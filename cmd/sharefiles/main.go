package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "sharefiles",
		Usage: "upload files and share them as a single zip link",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Value:   "http://localhost:8080",
				Usage:   "Base URL of the sharefiles API",
				EnvVars: []string{"SHAREFILES_SERVER"},
			},
			&cli.IntFlag{
				Name:    "chunk-size",
				Value:   1 << 20,
				Usage:   "Raw bytes per upload chunk",
				EnvVars: []string{"SHAREFILES_CHUNK_SIZE"},
			},
		},
		Commands: []*cli.Command{
			uploadCmd,
			downloadCmd,
			infoCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "sharefiles:", err)
		os.Exit(1)
	}
}
