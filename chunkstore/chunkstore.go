package chunkstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bluesky-social/peerchunk/util"

	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	flatfs "github.com/ipfs/go-ds-flatfs"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
)

// An opened block store backend. Close releases files and databases; it is a no-op for the memory backend.
type Backend struct {
	blockstore.Blockstore

	Kind   string
	closer io.Closer
}

func (b *Backend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

type Options struct {
	// number of blocks held in an LRU cache in front of the backend; zero disables it
	CacheSize int
}

// Opens a block store from a short description:
//
//	memory          in-process map, lost on exit
//	flatfs:<dir>    one file per block, sharded as in go-ipfs
//	pebble:<dir>    pebble key/value database
func Open(ctx context.Context, spec string, opts Options) (*Backend, error) {
	kind, arg, _ := strings.Cut(spec, ":")
	log := slog.Default().With("system", "chunkstore")

	var b *Backend
	switch kind {
	case "memory", "":
		ds := dssync.MutexWrap(datastore.NewMapDatastore())
		b = &Backend{Blockstore: blockstore.NewBlockstoreNoPrefix(ds), Kind: "memory"}
	case "flatfs":
		if arg == "" {
			return nil, fmt.Errorf("flatfs store needs a directory")
		}
		if err := os.MkdirAll(arg, 0775); err != nil {
			return nil, err
		}
		fds, err := flatfs.CreateOrOpen(arg, flatfs.IPFS_DEF_SHARD, false)
		if err != nil {
			return nil, fmt.Errorf("opening flatfs store %s: %w", arg, err)
		}
		b = &Backend{Blockstore: blockstore.NewBlockstoreNoPrefix(fds), Kind: "flatfs", closer: fds}
	case "pebble":
		if arg == "" {
			return nil, fmt.Errorf("pebble store needs a directory")
		}
		pbs, err := OpenPebbleBlockstore(arg)
		if err != nil {
			return nil, err
		}
		b = &Backend{Blockstore: pbs, Kind: "pebble", closer: pbs}
	default:
		return nil, fmt.Errorf("unknown block store type %q", kind)
	}

	if opts.CacheSize > 0 {
		cbs, err := util.NewCacheBlockstore(b.Blockstore, opts.CacheSize)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Blockstore = cbs
	}
	log.Info("opened block store", "type", b.Kind, "path", arg, "cache", opts.CacheSize)
	return b, nil
}
