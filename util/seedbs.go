package util

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	blockformat "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	ipld "github.com/ipfs/go-ipld-format"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var seedReads = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chunks_seedstore_reads_total",
	Help: "Block reads through a seeded store, by the tier which answered",
}, []string{"tier"})

// Working blockstore layered over a read-only seed store, such as an imported snapshot or a shared directory of chunks.
//
// Every write and delete goes to the working store. Reads that miss it are answered from the seed, and the seed is never modified.
type SeedBstore struct {
	working blockstore.Blockstore
	seed    blockstore.Blockstore

	seedHits atomic.Int64
	log      *slog.Logger
}

func NewSeedBstore(working, seed blockstore.Blockstore) *SeedBstore {
	return &SeedBstore{
		working: working,
		seed:    seed,
		log:     slog.Default().With("system", "seedstore"),
	}
}

var _ blockstore.Blockstore = (*SeedBstore)(nil)

// Number of reads the seed store has answered so far.
func (bs *SeedBstore) SeedHits() int64 {
	return bs.seedHits.Load()
}

// Runs fn against the working store, then against the seed if the block wasn't there.
func seedLookup[T any](bs *SeedBstore, c cid.Cid, fn func(blockstore.Blockstore) (T, error)) (T, error) {
	v, err := fn(bs.working)
	if err == nil {
		seedReads.WithLabelValues("working").Inc()
		return v, nil
	}
	if !ipld.IsNotFound(err) {
		return v, err
	}
	v, err = fn(bs.seed)
	if err != nil {
		return v, err
	}
	seedReads.WithLabelValues("seed").Inc()
	bs.seedHits.Add(1)
	bs.log.Debug("block read from seed store", "cid", c)
	return v, nil
}

func (bs *SeedBstore) Get(ctx context.Context, c cid.Cid) (blockformat.Block, error) {
	return seedLookup(bs, c, func(s blockstore.Blockstore) (blockformat.Block, error) {
		return s.Get(ctx, c)
	})
}

func (bs *SeedBstore) GetSize(ctx context.Context, c cid.Cid) (int, error) {
	return seedLookup(bs, c, func(s blockstore.Blockstore) (int, error) {
		return s.GetSize(ctx, c)
	})
}

func (bs *SeedBstore) Has(ctx context.Context, c cid.Cid) (bool, error) {
	ok, err := bs.working.Has(ctx, c)
	if err != nil || ok {
		return ok, err
	}
	return bs.seed.Has(ctx, c)
}

func (bs *SeedBstore) Put(ctx context.Context, blk blockformat.Block) error {
	return bs.working.Put(ctx, blk)
}

func (bs *SeedBstore) PutMany(ctx context.Context, blks []blockformat.Block) error {
	return bs.working.PutMany(ctx, blks)
}

// Only removes the block from the working store; a seeded copy stays readable.
func (bs *SeedBstore) DeleteBlock(ctx context.Context, c cid.Cid) error {
	return bs.working.DeleteBlock(ctx, c)
}

// Lists the working store only. Seeded blocks are not part of this store's own contents.
func (bs *SeedBstore) AllKeysChan(ctx context.Context) (<-chan cid.Cid, error) {
	ch, err := bs.working.AllKeysChan(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing working store: %w", err)
	}
	return ch, nil
}

func (bs *SeedBstore) HashOnRead(enabled bool) {
	bs.working.HashOnRead(enabled)
	bs.seed.HashOnRead(enabled)
}
