package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/bluesky-social/peerchunk/chunktree"

	"github.com/urfave/cli/v2"
)

var cmdExport = &cli.Command{
	Name:      "export",
	Usage:     "write a collection and every container it references to a CAR file",
	ArgsUsage: `<descriptor>`,
	Flags: []cli.Flag{
		ownerFlag,
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "file path for CAR output (default stdout)",
		},
	},
	Action: runExport,
}

var cmdImport = &cli.Command{
	Name:      "import",
	Usage:     "verify and store every block of a CAR file, printing the descriptor it carries",
	ArgsUsage: `<car-file>`,
	Action:    runImport,
}

var cmdDump = &cli.Command{
	Name:      "dump",
	Usage:     "print the container tree of a collection",
	ArgsUsage: `<descriptor>`,
	Flags:     []cli.Flag{ownerFlag, statsFlag},
	Action:    runDump,
}

func runExport(cctx *cli.Context) error {
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

	var out io.Writer = cctx.App.Writer
	if p := cctx.String("output"); p != "" && p != "-" {
		f, err := os.Create(p)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	w := bufio.NewWriter(out)
	if err := chunktree.ExportCAR(ctx, w, e.Store, c.ID(), c.Owner()); err != nil {
		return err
	}
	return w.Flush()
}

func runImport(cctx *cli.Context) error {
	ctx := cctx.Context
	p := cctx.Args().First()
	if p == "" {
		return fmt.Errorf("need to provide path to CAR file as argument")
	}

	var r io.Reader = os.Stdin
	if p != "-" {
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	e, err := openEnv(cctx)
	if err != nil {
		return err
	}
	defer e.Close()

	root, err := chunktree.ImportCAR(ctx, bufio.NewReader(r), e.Store.Blocks)
	if err != nil {
		return err
	}
	fmt.Fprintln(cctx.App.Writer, root)
	return nil
}

func runDump(cctx *cli.Context) error {
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
	defer e.reportStats(cctx)

	d, err := chunktree.LoadDescriptor(ctx, e.Store, c.ID(), c.Owner())
	if err != nil {
		return err
	}
	fmt.Fprintf(cctx.App.Writer, "%s (degree %d)\n", d.Type, d.Degree)
	out, err := chunktree.DebugTree(ctx, e.Store, d.Root, c.Owner())
	if err != nil {
		return err
	}
	fmt.Fprint(cctx.App.Writer, out)
	return nil
}
