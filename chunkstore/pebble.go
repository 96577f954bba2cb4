package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/pebble"
	blockformat "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	ipld "github.com/ipfs/go-ipld-format"
)

// Blocks are keyed by multihash, so the same bytes stored under raw and dag-cbor identifiers share one row, as in the datastore-backed blockstores.
//
// Inner schema:
// b{multihash} : {block bytes}
var blockPrefix = []byte{'b', '/'}

func blockKey(c cid.Cid) []byte {
	mh := c.Hash()
	out := make([]byte, len(blockPrefix)+len(mh))
	copy(out, blockPrefix)
	copy(out[len(blockPrefix):], mh)
	return out
}

// blockstore.Blockstore on a pebble database.
type PebbleBlockstore struct {
	db *pebble.DB

	hashOnRead bool

	log *slog.Logger
}

func OpenPebbleBlockstore(path string) (*PebbleBlockstore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("%s: could not open db, %w", path, err)
	}
	return &PebbleBlockstore{
		db:  db,
		log: slog.Default().With("system", "chunkstore", "path", path),
	}, nil
}

var _ blockstore.Blockstore = (*PebbleBlockstore)(nil)

func (bs *PebbleBlockstore) Close() error {
	err := bs.db.Flush()
	if err != nil {
		bs.log.Error("pebble flush", "err", err)
	}
	err = bs.db.Close()
	if err != nil {
		bs.log.Error("pebble close", "err", err)
	}
	return err
}

func (bs *PebbleBlockstore) Has(ctx context.Context, c cid.Cid) (bool, error) {
	_, closer, err := bs.db.Get(blockKey(c))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	return true, nil
}

func (bs *PebbleBlockstore) Get(ctx context.Context, c cid.Cid) (blockformat.Block, error) {
	if !c.Defined() {
		return nil, ipld.ErrNotFound{Cid: c}
	}
	val, closer, err := bs.db.Get(blockKey(c))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ipld.ErrNotFound{Cid: c}
	}
	if err != nil {
		return nil, err
	}
	data := make([]byte, len(val))
	copy(data, val)
	closer.Close()

	if bs.hashOnRead {
		rbcid, err := c.Prefix().Sum(data)
		if err != nil {
			return nil, err
		}
		if !rbcid.Equals(c) {
			return nil, blockstore.ErrHashMismatch
		}
	}
	return blockformat.NewBlockWithCid(data, c)
}

func (bs *PebbleBlockstore) GetSize(ctx context.Context, c cid.Cid) (int, error) {
	val, closer, err := bs.db.Get(blockKey(c))
	if errors.Is(err, pebble.ErrNotFound) {
		return -1, ipld.ErrNotFound{Cid: c}
	}
	if err != nil {
		return -1, err
	}
	size := len(val)
	closer.Close()
	return size, nil
}

func (bs *PebbleBlockstore) Put(ctx context.Context, blk blockformat.Block) error {
	return bs.db.Set(blockKey(blk.Cid()), blk.RawData(), pebble.NoSync)
}

func (bs *PebbleBlockstore) PutMany(ctx context.Context, blks []blockformat.Block) error {
	batch := bs.db.NewBatch()
	defer batch.Close()
	for _, blk := range blks {
		if err := batch.Set(blockKey(blk.Cid()), blk.RawData(), nil); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.NoSync)
}

func (bs *PebbleBlockstore) DeleteBlock(ctx context.Context, c cid.Cid) error {
	return bs.db.Delete(blockKey(c), pebble.NoSync)
}

// Streams the identifier of every stored block. Since rows are keyed by multihash, identifiers are reported with the raw codec, as go-ipfs-blockstore does.
func (bs *PebbleBlockstore) AllKeysChan(ctx context.Context) (<-chan cid.Cid, error) {
	upper := make([]byte, len(blockPrefix))
	copy(upper, blockPrefix)
	upper[len(upper)-1]++
	iter, err := bs.db.NewIterWithContext(ctx, &pebble.IterOptions{
		LowerBound: blockPrefix,
		UpperBound: upper,
	})
	if err != nil {
		return nil, err
	}

	out := make(chan cid.Cid)
	go func() {
		defer close(out)
		defer iter.Close()
		for iter.First(); iter.Valid(); iter.Next() {
			key := iter.Key()
			mh := make([]byte, len(key)-len(blockPrefix))
			copy(mh, key[len(blockPrefix):])
			select {
			case out <- cid.NewCidV1(cid.Raw, mh):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (bs *PebbleBlockstore) HashOnRead(enabled bool) {
	bs.hashOnRead = enabled
}
