package main

import (
	"fmt"
	"io"
	"os"

	"github.com/bluesky-social/peerchunk/chunk"
	"github.com/bluesky-social/peerchunk/chunktree"

	"github.com/urfave/cli/v2"
)

var cmdPut = &cli.Command{
	Name:      "put",
	Usage:     "store a file (or stdin) as a raw chunk and print its identifier",
	ArgsUsage: `[<file>]`,
	Action:    runPut,
}

var cmdGet = &cli.Command{
	Name:      "get",
	Usage:     "print the contents of a chunk",
	ArgsUsage: `<identifier>`,
	Flags: []cli.Flag{
		ownerFlag,
		statsFlag,
		&cli.BoolFlag{
			Name:  "decode",
			Usage: "decode a dag-cbor chunk and print it as JSON",
		},
	},
	Action: runGet,
}

var cmdDescribe = &cli.Command{
	Name:      "describe",
	Usage:     "print a collection descriptor as JSON",
	ArgsUsage: `<descriptor>`,
	Flags:     []cli.Flag{ownerFlag},
	Action:    runDescribe,
}

func runPut(cctx *cli.Context) error {
	ctx := cctx.Context
	var r io.Reader = os.Stdin
	if p := cctx.Args().First(); p != "" && p != "-" {
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	e, err := openEnv(cctx)
	if err != nil {
		return err
	}
	defer e.Close()

	c, err := chunk.FromBytes(ctx, e.Store, data)
	if err != nil {
		return err
	}
	fmt.Fprintln(cctx.App.Writer, c.Identifier())
	return nil
}

func runGet(cctx *cli.Context) error {
	ctx := cctx.Context
	c, err := argIdentifier(cctx, 0, "identifier")
	if err != nil {
		return err
	}

	e, err := openEnv(cctx)
	if err != nil {
		return err
	}
	defer e.Close()
	defer e.reportStats(cctx)

	if cctx.Bool("decode") {
		v, err := c.Expand(ctx, e.Store, 0)
		if err != nil {
			return err
		}
		return printJSON(cctx, v)
	}

	data, err := c.Fetch(ctx, e.Store)
	if err != nil {
		return err
	}
	_, err = cctx.App.Writer.Write(data)
	return err
}

func runDescribe(cctx *cli.Context) error {
	ctx := cctx.Context
	c, err := argIdentifier(cctx, 0, "descriptor")
	if err != nil {
		return err
	}

	e, err := openEnv(cctx)
	if err != nil {
		return err
	}
	defer e.Close()

	d, err := chunktree.LoadDescriptor(ctx, e.Store, c.ID(), c.Owner())
	if err != nil {
		return err
	}
	return printJSON(cctx, d)
}
