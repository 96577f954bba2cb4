package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/bluesky-social/peerchunk/chunk"
	"github.com/bluesky-social/peerchunk/chunkstore"
	"github.com/bluesky-social/peerchunk/peer"
	"github.com/bluesky-social/peerchunk/pkg/robusthttp"
	"github.com/bluesky-social/peerchunk/util"

	"github.com/carlmjohnson/versioninfo"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	"github.com/urfave/cli/v2"
)

// Everything a command needs to read and write chunks. Close releases the backends.
type env struct {
	Store   *chunk.Store
	Backend *chunkstore.Backend

	recorder *util.RecordingBstore
	closers  []io.Closer
}

func (e *env) Close() error {
	var first error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Opens the configured block store, layering in the seed store and the peer directory.
func openEnv(cctx *cli.Context) (*env, error) {
	ctx := cctx.Context
	e := &env{}

	backend, err := chunkstore.Open(ctx, cctx.String("store"), chunkstore.Options{CacheSize: cctx.Int("cache-size")})
	if err != nil {
		return nil, err
	}
	e.Backend = backend
	e.closers = append(e.closers, backend)

	var bs blockstore.Blockstore = backend
	if seed := cctx.String("seed-store"); seed != "" {
		seedBackend, err := chunkstore.Open(ctx, seed, chunkstore.Options{})
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("opening seed store: %w", err)
		}
		e.closers = append(e.closers, seedBackend)
		bs = util.NewSeedBstore(bs, seedBackend)
	}

	if cctx.Bool("stats") {
		e.recorder = util.NewRecordingBstore(bs)
		bs = e.recorder
	}

	opts := []chunk.StoreOption{chunk.WithFetchTimeout(cctx.Duration("fetch-timeout"))}
	if s := cctx.String("peers"); s != "" {
		dir, err := peer.ParseDirectory(s)
		if err != nil {
			e.Close()
			return nil, err
		}
		f := peer.NewFetcher(dir, robusthttp.NewClient())
		f.UserAgent = fmt.Sprintf("chunkctl/%s", versioninfo.Short())
		opts = append(opts, chunk.WithPeers(f))
	}
	e.Store = chunk.NewStore(bs, opts...)
	return e, nil
}

// Logs how many local chunks were read, when --stats is set.
func (e *env) reportStats(cctx *cli.Context) {
	if e.recorder == nil {
		return
	}
	blks := e.recorder.RecordedBlocks()
	total := 0
	for _, blk := range blks {
		total += len(blk.RawData())
	}
	fmt.Fprintf(cctx.App.ErrWriter, "chunks read: %d (%d bytes)\n", len(blks), total)
	for _, blk := range blks {
		slog.Debug("chunk read", "cid", blk.Cid(), "size", len(blk.RawData()))
	}
}

func printJSON(cctx *cli.Context, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Fprintln(cctx.App.Writer, string(b))
	return nil
}
