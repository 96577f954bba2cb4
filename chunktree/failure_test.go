package chunktree

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/bluesky-social/peerchunk/chunk"

	blockformat "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errInjected = errors.New("injected block store failure")

// Blockstore whose reads and writes can be switched to fail.
type flakyBstore struct {
	blockstore.Blockstore

	failPut atomic.Bool
	failGet atomic.Bool
}

func (bs *flakyBstore) Put(ctx context.Context, blk blockformat.Block) error {
	if bs.failPut.Load() {
		return errInjected
	}
	return bs.Blockstore.Put(ctx, blk)
}

func (bs *flakyBstore) PutMany(ctx context.Context, blks []blockformat.Block) error {
	if bs.failPut.Load() {
		return errInjected
	}
	return bs.Blockstore.PutMany(ctx, blks)
}

func (bs *flakyBstore) Get(ctx context.Context, c cid.Cid) (blockformat.Block, error) {
	if bs.failGet.Load() {
		return nil, errInjected
	}
	return bs.Blockstore.Get(ctx, c)
}

func countBlocks(t *testing.T, ctx context.Context, bs blockstore.Blockstore) int {
	ch, err := bs.AllKeysChan(ctx)
	require.NoError(t, err)
	n := 0
	for range ch {
		n++
	}
	return n
}

func TestFailedMutationKeepsRoot(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	bs := &flakyBstore{Blockstore: blockstore.NewBlockstore(datastore.NewMapDatastore())}
	st := chunk.NewStore(bs)
	k := sortedKeys(200)

	s, err := NewSet(st, 3)
	require.NoError(err)
	for _, key := range k[:150] {
		require.NoError(s.Add(ctx, key))
	}
	root := s.Root()
	depth, err := s.Depth(ctx)
	require.NoError(err)
	assert.Greater(depth, 2)

	// every add past the end eventually lands in a full leaf and splits
	bs.failPut.Store(true)
	for _, key := range k[150:] {
		err := s.Add(ctx, key)
		assert.ErrorIs(err, errInjected)
		assert.Equal(root, s.Root())
	}
	// leaves at the minimum must rebalance after a delete
	for _, key := range k[:30] {
		err := s.Delete(ctx, key)
		assert.ErrorIs(err, errInjected)
		assert.Equal(root, s.Root())
	}
	bs.failPut.Store(false)

	before := countBlocks(t, ctx, bs)
	bs.failGet.Store(true)
	assert.ErrorIs(s.Add(ctx, k[199]), errInjected)
	assert.ErrorIs(s.Delete(ctx, k[10]), errInjected)
	assert.Equal(root, s.Root())
	bs.failGet.Store(false)
	assert.Equal(before, countBlocks(t, ctx, bs))

	require.NoError(s.Verify(ctx))
	var got []cid.Cid
	require.NoError(s.ForEach(ctx, func(e Element) error {
		got = append(got, e.Key)
		return nil
	}))
	assert.Equal(k[:150], got)

	// the tree is still usable once the store recovers
	require.NoError(s.Add(ctx, k[150]))
	require.NoError(s.Delete(ctx, k[3]))
	require.NoError(s.Verify(ctx))
}
