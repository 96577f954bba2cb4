package util

import (
	"context"
	"testing"

	blockformat "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	ipld "github.com/ipfs/go-ipld-format"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memBlockstore() blockstore.Blockstore {
	return blockstore.NewBlockstore(datastore.NewMapDatastore())
}

func rawBlock(t *testing.T, s string) blockformat.Block {
	c, err := cid.NewPrefixV1(cid.Raw, multihash.SHA2_256).Sum([]byte(s))
	require.NoError(t, err)
	blk, err := blockformat.NewBlockWithCid([]byte(s), c)
	require.NoError(t, err)
	return blk
}

func TestCacheBlockstore(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	base := memBlockstore()

	a, b := rawBlock(t, "a"), rawBlock(t, "b")
	require.NoError(t, base.Put(ctx, a))

	bs, err := NewCacheBlockstore(base, 16)
	require.NoError(t, err)
	assert.Equal(0, bs.Len())

	got, err := bs.Get(ctx, a.Cid())
	assert.NoError(err)
	assert.Equal(a.RawData(), got.RawData())
	assert.Equal(1, bs.Len())

	assert.NoError(bs.PutMany(ctx, []blockformat.Block{b}))
	assert.Equal(2, bs.Len())
	has, err := base.Has(ctx, b.Cid())
	assert.NoError(err)
	assert.True(has)

	size, err := bs.GetSize(ctx, b.Cid())
	assert.NoError(err)
	assert.Equal(1, size)

	assert.NoError(bs.DeleteBlock(ctx, a.Cid()))
	_, err = bs.Get(ctx, a.Cid())
	assert.True(ipld.IsNotFound(err))
}

func TestSeedBstore(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	working, seed := memBlockstore(), memBlockstore()

	a, b := rawBlock(t, "seed"), rawBlock(t, "new")
	require.NoError(t, seed.Put(ctx, a))

	bs := NewSeedBstore(working, seed)
	has, err := bs.Has(ctx, a.Cid())
	assert.NoError(err)
	assert.True(has)
	got, err := bs.Get(ctx, a.Cid())
	assert.NoError(err)
	assert.Equal(a.RawData(), got.RawData())
	size, err := bs.GetSize(ctx, a.Cid())
	assert.NoError(err)
	assert.Equal(len(a.RawData()), size)
	assert.EqualValues(2, bs.SeedHits())

	assert.NoError(bs.Put(ctx, b))
	has, err = working.Has(ctx, b.Cid())
	assert.NoError(err)
	assert.True(has)
	has, err = seed.Has(ctx, b.Cid())
	assert.NoError(err)
	assert.False(has)
	_, err = bs.Get(ctx, b.Cid())
	assert.NoError(err)
	assert.EqualValues(2, bs.SeedHits())

	// deleting only affects the working store
	assert.NoError(bs.DeleteBlock(ctx, a.Cid()))
	has, err = bs.Has(ctx, a.Cid())
	assert.NoError(err)
	assert.True(has)

	_, err = bs.Get(ctx, rawBlock(t, "missing").Cid())
	assert.True(ipld.IsNotFound(err))
	assert.EqualValues(2, bs.SeedHits())

	var keys []cid.Cid
	ch, err := bs.AllKeysChan(ctx)
	require.NoError(t, err)
	for c := range ch {
		keys = append(keys, c)
	}
	assert.Len(keys, 1)
}

func TestRecordingBstore(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	base := memBlockstore()

	a, b := rawBlock(t, "a"), rawBlock(t, "b")
	require.NoError(t, base.PutMany(ctx, []blockformat.Block{a, b}))

	bs := NewRecordingBstore(base)
	for _, c := range []cid.Cid{b.Cid(), a.Cid(), b.Cid()} {
		_, err := bs.Get(ctx, c)
		assert.NoError(err)
	}
	rec := bs.RecordedBlocks()
	assert.Len(rec, 2)
	assert.Equal(b.Cid(), rec[0].Cid())
	assert.Equal(a.Cid(), rec[1].Cid())

	assert.Error(bs.Put(ctx, rawBlock(t, "c")))
	bs.Reset()
	assert.Empty(bs.RecordedBlocks())
}
