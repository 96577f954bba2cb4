package chunktree

import (
	"context"
	"fmt"
	"slices"
	"testing"

	"github.com/bluesky-social/peerchunk/chunk"

	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	"github.com/stretchr/testify/require"
)

func testStore() *chunk.Store {
	return chunk.NewStore(blockstore.NewBlockstore(datastore.NewMapDatastore()))
}

func keyCID(name string) cid.Cid {
	c, err := chunk.Sum(cid.Raw, []byte(name))
	if err != nil {
		panic(err)
	}
	return c
}

// Returns n distinct keys, sorted in tree order.
func sortedKeys(n int) []cid.Cid {
	out := make([]cid.Cid, n)
	for i := range n {
		out[i] = keyCID(fmt.Sprintf("key-%d", i))
	}
	slices.SortFunc(out, chunk.Compare)
	return out
}

func collectKeys(t *testing.T, ctx context.Context, c Collection) []cid.Cid {
	var out []cid.Cid
	require.NoError(t, c.ForEach(ctx, func(e Element) error {
		out = append(out, e.Key)
		return nil
	}))
	return out
}

func leaf(kind Kind, keys ...cid.Cid) *Container {
	n := NewContainer(kind)
	for _, k := range keys {
		e := Element{Key: k}
		if kind == KindMap {
			e.Value = k
		}
		n.Push(e, ChildRef{})
	}
	return n
}

// Builds a two-level set tree by hand: a root with the given separators over the given leaves.
func twoLevelSet(t *testing.T, ctx context.Context, st *chunk.Store, degree int, seps []cid.Cid, leaves ...*Container) *Set {
	require.Equal(t, len(seps)+1, len(leaves))
	s, err := NewSet(st, degree)
	require.NoError(t, err)

	root := NewContainer(KindSet)
	root.Children[0] = ChildRef{Node: leaves[0]}
	for i, sep := range seps {
		root.Push(Element{Key: sep}, ChildRef{Node: leaves[i+1]})
	}
	id, err := s.persist(ctx, root)
	require.NoError(t, err)
	s.root = id
	require.NoError(t, s.Verify(ctx))
	return s
}

func rootContainer(t *testing.T, ctx context.Context, c *tree) *Container {
	n, err := c.load(ctx, c.root)
	require.NoError(t, err)
	return n
}
