package main

import (
	"context"
	"fmt"

	"github.com/bluesky-social/peerchunk/chunk"
	"github.com/bluesky-social/peerchunk/chunktree"

	"github.com/ipfs/go-cid"
	"github.com/urfave/cli/v2"
)

var degreeFlag = &cli.IntFlag{
	Name:  "degree",
	Usage: "maximum elements per container, 1 to 10",
	Value: 4,
}

var textFlag = &cli.BoolFlag{
	Name:  "text",
	Usage: "treat keys and values as text: store each as a raw chunk and use its identifier",
}

var cmdSet = &cli.Command{
	Name:  "set",
	Usage: "sub-commands for persistent sets of chunk identifiers",
	Subcommands: []*cli.Command{
		&cli.Command{
			Name:   "new",
			Usage:  "create an empty set and print its descriptor",
			Flags:  []cli.Flag{degreeFlag},
			Action: runSetNew,
		},
		&cli.Command{
			Name:      "add",
			Usage:     "add keys, printing the new descriptor",
			ArgsUsage: `<descriptor> <key>...`,
			Flags:     []cli.Flag{textFlag},
			Action:    runSetAdd,
		},
		&cli.Command{
			Name:      "has",
			Usage:     "check whether a key is present",
			ArgsUsage: `<descriptor> <key>`,
			Flags:     []cli.Flag{ownerFlag, statsFlag, textFlag},
			Action:    runCollectionHas,
		},
		&cli.Command{
			Name:      "delete",
			Usage:     "remove keys, printing the new descriptor",
			ArgsUsage: `<descriptor> <key>...`,
			Flags:     []cli.Flag{textFlag},
			Action:    runCollectionDelete,
		},
		&cli.Command{
			Name:      "ls",
			Aliases:   []string{"list"},
			Usage:     "print every key in order",
			ArgsUsage: `<descriptor>`,
			Flags:     []cli.Flag{ownerFlag, statsFlag},
			Action:    runSetList,
		},
		&cli.Command{
			Name:      "len",
			Usage:     "print the number of keys",
			ArgsUsage: `<descriptor>`,
			Flags:     []cli.Flag{ownerFlag, statsFlag},
			Action:    runCollectionLen,
		},
	},
}

var cmdMap = &cli.Command{
	Name:  "map",
	Usage: "sub-commands for persistent maps between chunk identifiers",
	Subcommands: []*cli.Command{
		&cli.Command{
			Name:   "new",
			Usage:  "create an empty map and print its descriptor",
			Flags:  []cli.Flag{degreeFlag},
			Action: runMapNew,
		},
		&cli.Command{
			Name:      "set",
			Usage:     "associate a key with a value, printing the new descriptor",
			ArgsUsage: `<descriptor> <key> <value>`,
			Flags:     []cli.Flag{textFlag},
			Action:    runMapSet,
		},
		&cli.Command{
			Name:      "get",
			Usage:     "print the value for a key",
			ArgsUsage: `<descriptor> <key>`,
			Flags:     []cli.Flag{ownerFlag, statsFlag, textFlag},
			Action:    runMapGet,
		},
		&cli.Command{
			Name:      "has",
			Usage:     "check whether a key is present",
			ArgsUsage: `<descriptor> <key>`,
			Flags:     []cli.Flag{ownerFlag, statsFlag, textFlag},
			Action:    runCollectionHas,
		},
		&cli.Command{
			Name:      "delete",
			Usage:     "remove keys, printing the new descriptor",
			ArgsUsage: `<descriptor> <key>...`,
			Flags:     []cli.Flag{textFlag},
			Action:    runCollectionDelete,
		},
		&cli.Command{
			Name:      "ls",
			Aliases:   []string{"list"},
			Usage:     "print every entry in key order, as JSON lines",
			ArgsUsage: `<descriptor>`,
			Flags:     []cli.Flag{ownerFlag, statsFlag},
			Action:    runMapList,
		},
		&cli.Command{
			Name:      "len",
			Usage:     "print the number of entries",
			ArgsUsage: `<descriptor>`,
			Flags:     []cli.Flag{ownerFlag, statsFlag},
			Action:    runCollectionLen,
		},
	},
}

type entryJSON struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Loads the descriptor named by the first argument and opens it, with whichever type it declares.
func openCollection(cctx *cli.Context, e *env) (chunktree.Collection, error) {
	c, err := argIdentifier(cctx, 0, "descriptor")
	if err != nil {
		return nil, err
	}
	d, err := chunktree.LoadDescriptor(cctx.Context, e.Store, c.ID(), c.Owner())
	if err != nil {
		return nil, err
	}
	return chunktree.Open(cctx.Context, e.Store, d, c.Owner())
}

// Resolves a key or value argument. With --text the argument names the raw chunk holding that text, which is stored first when store is set.
func resolveArg(ctx context.Context, cctx *cli.Context, e *env, s string, store bool) (cid.Cid, error) {
	if s == "" {
		return cid.Undef, fmt.Errorf("missing key argument")
	}
	if cctx.Bool("text") && !store {
		return chunk.Sum(chunk.RawPrefix.Codec, []byte(s))
	}
	if cctx.Bool("text") {
		c, err := chunk.FromBytes(ctx, e.Store, []byte(s))
		if err != nil {
			return cid.Undef, err
		}
		return c.ID(), nil
	}
	return chunk.ParseIdentifier(s)
}

func saveDescriptor(cctx *cli.Context, e *env, d chunktree.Descriptor) error {
	c, err := chunktree.SaveDescriptor(cctx.Context, e.Store, d)
	if err != nil {
		return err
	}
	fmt.Fprintln(cctx.App.Writer, c.Identifier())
	return nil
}

func runSetNew(cctx *cli.Context) error {
	e, err := openEnv(cctx)
	if err != nil {
		return err
	}
	defer e.Close()

	s, err := chunktree.NewSet(e.Store, cctx.Int("degree"))
	if err != nil {
		return err
	}
	return saveDescriptor(cctx, e, s.Descriptor())
}

func runMapNew(cctx *cli.Context) error {
	e, err := openEnv(cctx)
	if err != nil {
		return err
	}
	defer e.Close()

	m, err := chunktree.NewMap(e.Store, cctx.Int("degree"))
	if err != nil {
		return err
	}
	return saveDescriptor(cctx, e, m.Descriptor())
}

func runSetAdd(cctx *cli.Context) error {
	ctx := cctx.Context
	if cctx.Args().Len() < 2 {
		return fmt.Errorf("need to provide a descriptor and at least one key")
	}
	e, err := openEnv(cctx)
	if err != nil {
		return err
	}
	defer e.Close()

	coll, err := openCollection(cctx, e)
	if err != nil {
		return err
	}
	s, ok := coll.(*chunktree.Set)
	if !ok {
		return fmt.Errorf("descriptor is a %q, not a set", coll.Descriptor().Type)
	}
	for _, arg := range cctx.Args().Slice()[1:] {
		key, err := resolveArg(ctx, cctx, e, arg, true)
		if err != nil {
			return err
		}
		if err := s.Add(ctx, key); err != nil {
			return err
		}
	}
	return saveDescriptor(cctx, e, s.Descriptor())
}

func runMapSet(cctx *cli.Context) error {
	ctx := cctx.Context
	if cctx.Args().Len() != 3 {
		return fmt.Errorf("need to provide a descriptor, a key, and a value")
	}
	e, err := openEnv(cctx)
	if err != nil {
		return err
	}
	defer e.Close()

	coll, err := openCollection(cctx, e)
	if err != nil {
		return err
	}
	m, ok := coll.(*chunktree.Map)
	if !ok {
		return fmt.Errorf("descriptor is a %q, not a map", coll.Descriptor().Type)
	}
	key, err := resolveArg(ctx, cctx, e, cctx.Args().Get(1), true)
	if err != nil {
		return err
	}
	val, err := resolveArg(ctx, cctx, e, cctx.Args().Get(2), true)
	if err != nil {
		return err
	}
	if err := m.Set(ctx, key, val); err != nil {
		return err
	}
	return saveDescriptor(cctx, e, m.Descriptor())
}

func runMapGet(cctx *cli.Context) error {
	ctx := cctx.Context
	e, err := openEnv(cctx)
	if err != nil {
		return err
	}
	defer e.Close()
	defer e.reportStats(cctx)

	coll, err := openCollection(cctx, e)
	if err != nil {
		return err
	}
	m, ok := coll.(*chunktree.Map)
	if !ok {
		return fmt.Errorf("descriptor is a %q, not a map", coll.Descriptor().Type)
	}
	key, err := resolveArg(ctx, cctx, e, cctx.Args().Get(1), false)
	if err != nil {
		return err
	}
	val, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	if val == nil {
		return fmt.Errorf("%w: %s", chunktree.ErrKeyNotFound, key)
	}
	fmt.Fprintln(cctx.App.Writer, val.Identifier())
	return nil
}

func runCollectionHas(cctx *cli.Context) error {
	ctx := cctx.Context
	e, err := openEnv(cctx)
	if err != nil {
		return err
	}
	defer e.Close()
	defer e.reportStats(cctx)

	coll, err := openCollection(cctx, e)
	if err != nil {
		return err
	}
	key, err := resolveArg(ctx, cctx, e, cctx.Args().Get(1), false)
	if err != nil {
		return err
	}
	ok, err := coll.Has(ctx, key)
	if err != nil {
		return err
	}
	fmt.Fprintln(cctx.App.Writer, ok)
	return nil
}

func runCollectionDelete(cctx *cli.Context) error {
	ctx := cctx.Context
	if cctx.Args().Len() < 2 {
		return fmt.Errorf("need to provide a descriptor and at least one key")
	}
	e, err := openEnv(cctx)
	if err != nil {
		return err
	}
	defer e.Close()

	coll, err := openCollection(cctx, e)
	if err != nil {
		return err
	}
	for _, arg := range cctx.Args().Slice()[1:] {
		key, err := resolveArg(ctx, cctx, e, arg, false)
		if err != nil {
			return err
		}
		if err := coll.Delete(ctx, key); err != nil {
			return err
		}
	}
	return saveDescriptor(cctx, e, coll.Descriptor())
}

func runCollectionLen(cctx *cli.Context) error {
	e, err := openEnv(cctx)
	if err != nil {
		return err
	}
	defer e.Close()
	defer e.reportStats(cctx)

	coll, err := openCollection(cctx, e)
	if err != nil {
		return err
	}
	n, err := coll.Len(cctx.Context)
	if err != nil {
		return err
	}
	fmt.Fprintln(cctx.App.Writer, n)
	return nil
}

func runSetList(cctx *cli.Context) error {
	ctx := cctx.Context
	e, err := openEnv(cctx)
	if err != nil {
		return err
	}
	defer e.Close()
	defer e.reportStats(cctx)

	coll, err := openCollection(cctx, e)
	if err != nil {
		return err
	}
	s, ok := coll.(*chunktree.Set)
	if !ok {
		return fmt.Errorf("descriptor is a %q, not a set", coll.Descriptor().Type)
	}
	for key, err := range s.All(ctx) {
		if err != nil {
			return err
		}
		fmt.Fprintln(cctx.App.Writer, key)
	}
	return nil
}

func runMapList(cctx *cli.Context) error {
	ctx := cctx.Context
	e, err := openEnv(cctx)
	if err != nil {
		return err
	}
	defer e.Close()
	defer e.reportStats(cctx)

	coll, err := openCollection(cctx, e)
	if err != nil {
		return err
	}
	m, ok := coll.(*chunktree.Map)
	if !ok {
		return fmt.Errorf("descriptor is a %q, not a map", coll.Descriptor().Type)
	}
	for el, err := range m.All(ctx) {
		if err != nil {
			return err
		}
		if err := printJSON(cctx, entryJSON{Key: el.Key.String(), Value: el.Value.String()}); err != nil {
			return err
		}
	}
	return nil
}
