package chunkstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bluesky-social/peerchunk/chunk"
	"github.com/bluesky-social/peerchunk/chunktree"
	"github.com/bluesky-social/peerchunk/util"

	blockformat "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	ipld "github.com/ipfs/go-ipld-format"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBackends(t *testing.T) map[string]string {
	dir := t.TempDir()
	return map[string]string{
		"memory": "memory",
		"flatfs": "flatfs:" + filepath.Join(dir, "flatfs"),
		"pebble": "pebble:" + filepath.Join(dir, "pebble"),
	}
}

func TestBackendsStoreBlocks(t *testing.T) {
	ctx := context.Background()

	for name, spec := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			b, err := Open(ctx, spec, Options{})
			require.NoError(t, err)
			defer b.Close()
			assert.Equal(name, b.Kind)

			st := chunk.NewStore(b)
			id, err := st.Put(ctx, cid.Raw, []byte("hello"))
			require.NoError(t, err)

			has, err := b.Has(ctx, id)
			assert.NoError(err)
			assert.True(has)
			size, err := b.GetSize(ctx, id)
			assert.NoError(err)
			assert.Equal(5, size)

			data, err := st.Get(ctx, id, "")
			assert.NoError(err)
			assert.Equal([]byte("hello"), data)

			missing, err := chunk.Sum(cid.Raw, []byte("missing"))
			require.NoError(t, err)
			_, err = b.Get(ctx, missing)
			assert.True(ipld.IsNotFound(err))

			assert.NoError(b.DeleteBlock(ctx, id))
			has, err = b.Has(ctx, id)
			assert.NoError(err)
			assert.False(has)
		})
	}
}

func TestBackendsHoldTrees(t *testing.T) {
	ctx := context.Background()

	for name, spec := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			b, err := Open(ctx, spec, Options{CacheSize: 32})
			require.NoError(t, err)
			defer b.Close()
			_, cached := b.Blockstore.(*util.CacheBlockstore)
			assert.True(t, cached)

			st := chunk.NewStore(b)
			s, err := chunktree.NewSet(st, 4)
			require.NoError(t, err)
			for i := range 200 {
				k, err := chunk.Sum(cid.Raw, []byte{byte(i), byte(i >> 8)})
				require.NoError(t, err)
				require.NoError(t, s.Add(ctx, k))
			}
			n, err := s.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, 200, n)
			assert.NoError(t, s.Verify(ctx))
		})
	}
}

func TestPebbleReopenAndList(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "db")

	pbs, err := OpenPebbleBlockstore(dir)
	require.NoError(t, err)

	var blks []blockformat.Block
	for _, s := range []string{"a", "b", "c"} {
		c, err := chunk.Sum(cid.DagCBOR, []byte(s))
		require.NoError(t, err)
		blk, err := blockformat.NewBlockWithCid([]byte(s), c)
		require.NoError(t, err)
		blks = append(blks, blk)
	}
	require.NoError(t, pbs.PutMany(ctx, blks))
	require.NoError(t, pbs.Close())

	pbs, err = OpenPebbleBlockstore(dir)
	require.NoError(t, err)
	defer pbs.Close()
	pbs.HashOnRead(true)

	got, err := pbs.Get(ctx, blks[1].Cid())
	assert.NoError(err)
	assert.Equal([]byte("b"), got.RawData())

	keys, err := pbs.AllKeysChan(ctx)
	require.NoError(t, err)
	seen := map[string]bool{}
	for k := range keys {
		seen[string(k.Hash())] = true
	}
	assert.Len(seen, 3)
	for _, blk := range blks {
		assert.True(seen[string(blk.Cid().Hash())])
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), "s3:bucket", Options{})
	assert.Error(t, err)
	_, err = Open(context.Background(), "pebble:", Options{})
	assert.Error(t, err)
}
