package chunktree

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bluesky-social/peerchunk/chunk"

	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	ipld "github.com/ipfs/go-ipld-format"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Serves chunks straight out of other peers' block stores.
type storePeers map[string]blockstore.Blockstore

func (p storePeers) FetchChunk(ctx context.Context, id cid.Cid, owner string) ([]byte, error) {
	bs, ok := p[owner]
	if !ok {
		return nil, chunk.ErrNotFound
	}
	blk, err := bs.Get(ctx, id)
	if ipld.IsNotFound(err) {
		return nil, chunk.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return blk.RawData(), nil
}

func TestRemoteTreeIsReadOnly(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	k := sortedKeys(60)

	alice := testStore()
	m, err := NewMap(alice, 3)
	require.NoError(err)
	for i, key := range k[:50] {
		require.NoError(m.Set(ctx, key, keyCID(fmt.Sprintf("value-%d", i))))
	}
	desc, err := SaveDescriptor(ctx, alice, m.Descriptor())
	require.NoError(err)

	bob := chunk.NewStore(blockstore.NewBlockstore(datastore.NewMapDatastore()), chunk.WithPeers(storePeers{"alice": alice.Blocks}))

	d, err := LoadDescriptor(ctx, bob, desc.ID(), "alice")
	require.NoError(err)
	remote, err := OpenMap(bob, d, "alice")
	require.NoError(err)

	ok, err := remote.Has(ctx, k[10])
	require.NoError(err)
	assert.True(ok)

	v, err := remote.Get(ctx, k[10])
	require.NoError(err)
	require.NotNil(v)
	assert.Equal("alice", v.Owner())
	assert.False(v.Local())

	n, err := remote.Len(ctx)
	require.NoError(err)
	assert.Equal(50, n)
	require.NoError(remote.Verify(ctx))

	root := remote.Root()
	assert.True(errors.Is(remote.Set(ctx, k[55], k[55]), ErrReadOnlyTree))
	assert.True(errors.Is(remote.Delete(ctx, k[0]), ErrReadOnlyTree))
	assert.Equal(root, remote.Root())

	// nothing was copied into bob's store
	has, err := bob.Has(ctx, root)
	require.NoError(err)
	assert.False(has)

	// the same tree without an owner can't be resolved from bob's store
	local, err := OpenMap(bob, d, "")
	require.NoError(err)
	_, err = local.Has(ctx, k[0])
	assert.True(errors.Is(err, chunk.ErrNotFound))
}

func TestExportImportCAR(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	k := sortedKeys(80)

	src := testStore()
	s, err := NewSet(src, 3)
	require.NoError(err)
	for _, key := range k {
		require.NoError(s.Add(ctx, key))
	}
	desc, err := SaveDescriptor(ctx, src, s.Descriptor())
	require.NoError(err)

	buf := new(bytes.Buffer)
	require.NoError(ExportCAR(ctx, buf, src, desc.ID(), ""))

	dst := testStore()
	root, err := ImportCAR(ctx, bytes.NewReader(buf.Bytes()), dst.Blocks)
	require.NoError(err)
	assert.Equal(desc.ID(), root)

	d, err := LoadDescriptor(ctx, dst, root, "")
	require.NoError(err)
	coll, err := Open(ctx, dst, d, "")
	require.NoError(err)
	assert.Equal(k, collectKeys(t, ctx, coll))

	out, err := DebugTree(ctx, dst, d.Root, "")
	require.NoError(err)
	assert.Contains(out, d.Root.String())
	assert.Contains(out, k[0].String())
}

func TestImportRejectsCorruptBlock(t *testing.T) {
	ctx := context.Background()
	st := testStore()
	s, err := NewSet(st, 2)
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, keyCID("a")))
	desc, err := SaveDescriptor(ctx, st, s.Descriptor())
	require.NoError(t, err)

	buf := new(bytes.Buffer)
	require.NoError(t, writeCarHeader(buf, desc.ID()))
	_, err = ldWrite(buf, desc.ID().Bytes(), []byte("not the descriptor"))
	require.NoError(t, err)

	dst := testStore()
	_, err = ImportCAR(ctx, buf, dst.Blocks)
	assert.Error(t, err)
	has, err := dst.Has(ctx, desc.ID())
	assert.NoError(t, err)
	assert.False(t, has)
}
