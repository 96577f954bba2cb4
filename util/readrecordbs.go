package util

import (
	"context"
	"fmt"
	"sync"

	blockformat "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
)

// Read-only blockstore wrapper which remembers every block successfully read through it, for reporting which chunks an operation touched.
type RecordingBstore struct {
	base blockstore.Blockstore

	lk    sync.Mutex
	set   map[cid.Cid]blockformat.Block
	order []cid.Cid
}

func NewRecordingBstore(base blockstore.Blockstore) *RecordingBstore {
	return &RecordingBstore{
		base: base,
		set:  make(map[cid.Cid]blockformat.Block),
	}
}

var _ blockstore.Blockstore = (*RecordingBstore)(nil)

// Returns the recorded blocks in the order they were first read.
func (bs *RecordingBstore) RecordedBlocks() []blockformat.Block {
	bs.lk.Lock()
	defer bs.lk.Unlock()
	out := make([]blockformat.Block, 0, len(bs.order))
	for _, c := range bs.order {
		out = append(out, bs.set[c])
	}
	return out
}

func (bs *RecordingBstore) Reset() {
	bs.lk.Lock()
	defer bs.lk.Unlock()
	bs.set = make(map[cid.Cid]blockformat.Block)
	bs.order = nil
}

func (bs *RecordingBstore) Has(ctx context.Context, c cid.Cid) (bool, error) {
	return bs.base.Has(ctx, c)
}

func (bs *RecordingBstore) Get(ctx context.Context, c cid.Cid) (blockformat.Block, error) {
	blk, err := bs.base.Get(ctx, c)
	if err != nil {
		return nil, err
	}

	bs.lk.Lock()
	if _, ok := bs.set[c]; !ok {
		bs.set[c] = blk
		bs.order = append(bs.order, c)
	}
	bs.lk.Unlock()

	return blk, nil
}

func (bs *RecordingBstore) GetSize(ctx context.Context, c cid.Cid) (int, error) {
	return bs.base.GetSize(ctx, c)
}

func (bs *RecordingBstore) DeleteBlock(ctx context.Context, c cid.Cid) error {
	return fmt.Errorf("deletes not allowed on recording blockstore")
}

func (bs *RecordingBstore) Put(context.Context, blockformat.Block) error {
	return fmt.Errorf("writes not allowed on recording blockstore")
}

func (bs *RecordingBstore) PutMany(context.Context, []blockformat.Block) error {
	return fmt.Errorf("writes not allowed on recording blockstore")
}

func (bs *RecordingBstore) AllKeysChan(ctx context.Context) (<-chan cid.Cid, error) {
	return nil, fmt.Errorf("iteration not allowed on recording blockstore")
}

func (bs *RecordingBstore) HashOnRead(enabled bool) {
	bs.base.HashOnRead(enabled)
}
