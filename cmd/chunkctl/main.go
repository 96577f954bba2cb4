package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/bluesky-social/peerchunk/chunk"
	"github.com/bluesky-social/peerchunk/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {
	return newApp().Run(args)
}

func newApp() *cli.App {
	app := cli.App{
		Name:    "chunkctl",
		Usage:   "content-addressed chunk store and persistent collections",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "store",
			Usage:   "block store to use: memory, flatfs:<dir>, or pebble:<dir>",
			Value:   "memory",
			EnvVars: []string{"CHUNKS_STORE"},
		},
		&cli.StringFlag{
			Name:    "seed-store",
			Usage:   "optional read-only block store consulted when a block is missing from --store",
			EnvVars: []string{"CHUNKS_SEED_STORE"},
		},
		&cli.StringFlag{
			Name:    "peers",
			Usage:   "peer directory, as comma-separated owner=url pairs",
			EnvVars: []string{"CHUNKS_PEERS"},
		},
		&cli.DurationFlag{
			Name:    "fetch-timeout",
			Usage:   "deadline for fetching a single chunk from a peer",
			Value:   chunk.DefaultFetchTimeout,
			EnvVars: []string{"CHUNKS_FETCH_TIMEOUT"},
		},
		&cli.IntFlag{
			Name:    "cache-size",
			Usage:   "number of blocks to keep in memory in front of the block store (0 disables)",
			Value:   0,
			EnvVars: []string{"CHUNKS_CACHE_SIZE"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"CHUNKS_LOG_LEVEL", "GOLOG_LOG_LEVEL", "LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "log output format: text or json",
			EnvVars: []string{"CHUNKS_LOG_FMT"},
		},
	}
	app.Before = func(cctx *cli.Context) error {
		_, err := cliutil.SetupSlog(cliutil.LogOptions{
			LogLevel:  cctx.String("log-level"),
			LogFormat: cctx.String("log-format"),
		})
		return err
	}
	app.Commands = []*cli.Command{
		cmdServe,
		cmdPut,
		cmdGet,
		cmdDescribe,
		cmdSet,
		cmdMap,
		cmdExport,
		cmdImport,
		cmdDump,
	}
	return &app
}

// Parses a single required identifier argument.
func argIdentifier(cctx *cli.Context, pos int, name string) (*chunk.Chunk, error) {
	s := cctx.Args().Get(pos)
	if s == "" {
		return nil, fmt.Errorf("need to provide %s as an argument", name)
	}
	c, err := chunk.FromIdentifier(s, cctx.String("owner"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return c, nil
}

var ownerFlag = &cli.StringFlag{
	Name:  "owner",
	Usage: "peer which owns the chunk; read through --peers when missing locally",
}

var statsFlag = &cli.BoolFlag{
	Name:  "stats",
	Usage: "report which local chunks the operation read",
}
