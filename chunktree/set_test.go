package chunktree

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/bluesky-social/peerchunk/chunk"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDegreeBounds(t *testing.T) {
	assert := assert.New(t)
	st := testStore()

	for _, d := range []int{0, -1, 11} {
		_, err := NewSet(st, d)
		assert.True(errors.Is(err, ErrInvalidDegree), d)
	}
	for _, d := range []int{1, 5, 10} {
		_, err := NewSet(st, d)
		assert.NoError(err, d)
	}
	_, err := OpenSet(st, Descriptor{Type: "set", Degree: 12}, "")
	assert.True(errors.Is(err, ErrInvalidDegree))
}

func TestSetSmall(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	k := sortedKeys(3)

	s, err := NewSet(testStore(), 5)
	require.NoError(err)
	assert.True(s.IsEmpty())
	assert.False(s.Root().Defined())

	require.NoError(s.Add(ctx, k[2]))
	require.NoError(s.Add(ctx, k[0]))
	require.NoError(s.Add(ctx, k[1]))

	assert.Equal(k, collectKeys(t, ctx, s))
	assert.False(s.IsEmpty())

	root := rootContainer(t, ctx, &s.tree)
	assert.Equal(3, root.Len())
	assert.True(root.IsLeaf())
	depth, err := s.Depth(ctx)
	require.NoError(err)
	assert.Equal(1, depth)

	n, err := s.Len(ctx)
	require.NoError(err)
	assert.Equal(3, n)
}

func TestSetDuplicateAdd(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	k := sortedKeys(1)

	s, err := NewSet(testStore(), 3)
	assert.NoError(err)
	assert.NoError(s.Add(ctx, k[0]))
	root := s.Root()

	err = s.Add(ctx, k[0])
	assert.True(errors.Is(err, ErrDuplicateKey))
	assert.Equal(root, s.Root())

	assert.True(errors.Is(s.Add(ctx, cid.Undef), chunk.ErrInvalidIdentifier))
}

func TestSetManySequential(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	k := sortedKeys(1000)

	s, err := NewSet(testStore(), 5)
	require.NoError(err)
	for _, key := range k {
		require.NoError(s.Add(ctx, key))
	}

	got := collectKeys(t, ctx, s)
	assert.Equal(1000, len(got))
	assert.Equal(k, got)

	depth, err := s.Depth(ctx)
	require.NoError(err)
	assert.Greater(depth, 1)
	require.NoError(s.Verify(ctx))
	require.NoError(s.walk(ctx, func(n *Container, _ int) error {
		assert.LessOrEqual(n.Len(), 5)
		return nil
	}))

	// delete the first hundred, in insertion order
	for _, key := range k[:100] {
		require.NoError(s.Delete(ctx, key))
	}
	for i, key := range k {
		ok, err := s.Has(ctx, key)
		require.NoError(err)
		assert.Equal(i >= 100, ok, i)
	}
	got = collectKeys(t, ctx, s)
	assert.Equal(900, len(got))
	require.NoError(s.Verify(ctx))

	// and then everything else
	for _, key := range k[100:] {
		require.NoError(s.Delete(ctx, key))
	}
	assert.True(s.IsEmpty())
	assert.False(s.Root().Defined())
	assert.Empty(collectKeys(t, ctx, s))
}

func TestSetDeleteMissingKeepsRoot(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	k := sortedKeys(50)

	s, err := NewSet(testStore(), 4)
	assert.NoError(err)

	err = s.Delete(ctx, k[0])
	assert.True(errors.Is(err, ErrKeyNotFound))
	assert.False(s.Root().Defined())

	for _, key := range k[:40] {
		assert.NoError(s.Add(ctx, key))
	}
	root := s.Root()
	for _, key := range k[40:] {
		err := s.Delete(ctx, key)
		assert.True(errors.Is(err, ErrKeyNotFound))
		assert.Equal(root, s.Root())
	}
}

// Random adds and deletes, checked against a plain map after every step.
func TestSetRandomOperations(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(7, 11))
	pool := sortedKeys(300)

	for _, degree := range []int{1, 2, 3, 4, 7, 10} {
		s, err := NewSet(testStore(), degree)
		require.NoError(t, err)
		model := map[cid.Cid]bool{}

		for step := range 600 {
			key := pool[rng.IntN(len(pool))]
			if rng.IntN(3) == 0 {
				err := s.Delete(ctx, key)
				if model[key] {
					require.NoError(t, err)
					delete(model, key)
				} else {
					require.True(t, errors.Is(err, ErrKeyNotFound))
				}
			} else {
				err := s.Add(ctx, key)
				if model[key] {
					require.True(t, errors.Is(err, ErrDuplicateKey))
				} else {
					require.NoError(t, err)
					model[key] = true
				}
			}
			if step%50 == 0 {
				require.NoError(t, s.Verify(ctx), "degree %d step %d", degree, step)
			}
		}

		require.NoError(t, s.Verify(ctx))
		var want []cid.Cid
		for k := range model {
			want = append(want, k)
		}
		slices.SortFunc(want, chunk.Compare)
		got := collectKeys(t, ctx, s)
		if len(want) == 0 {
			assert.Empty(t, got)
		} else {
			assert.Equal(t, want, got, "degree %d", degree)
		}
		for _, key := range pool {
			ok, err := s.Has(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, model[key], ok)
		}
	}
}

func TestSetDegreeOneSplitsLikeTwo(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	k := sortedKeys(3)

	s, err := NewSet(testStore(), 1)
	assert.NoError(err)
	for _, key := range k {
		assert.NoError(s.Add(ctx, key))
	}
	root := rootContainer(t, ctx, &s.tree)
	assert.Equal([]cid.Cid{k[1]}, root.Keys)
	assert.False(root.IsLeaf())
	assert.NoError(s.Verify(ctx))
}

func TestDeleteInternalStealsFromFullerLeaf(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	k := sortedKeys(5)

	// tie: the left leaf gives up its last key
	s := twoLevelSet(t, ctx, testStore(), 3, []cid.Cid{k[2]}, leaf(KindSet, k[0], k[1]), leaf(KindSet, k[3], k[4]))
	assert.NoError(s.Delete(ctx, k[2]))
	root := rootContainer(t, ctx, &s.tree)
	assert.Equal([]cid.Cid{k[1]}, root.Keys)
	assert.NoError(s.Verify(ctx))
	assert.Equal([]cid.Cid{k[0], k[1], k[3], k[4]}, collectKeys(t, ctx, s))

	// right leaf is fuller: it gives up its first key
	s = twoLevelSet(t, ctx, testStore(), 3, []cid.Cid{k[1]}, leaf(KindSet, k[0]), leaf(KindSet, k[2], k[3]))
	assert.NoError(s.Delete(ctx, k[1]))
	root = rootContainer(t, ctx, &s.tree)
	assert.Equal([]cid.Cid{k[2]}, root.Keys)
	assert.NoError(s.Verify(ctx))
}

func TestDeleteRotatesFromSibling(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	k := sortedKeys(4)

	s := twoLevelSet(t, ctx, testStore(), 3, []cid.Cid{k[2]}, leaf(KindSet, k[0], k[1]), leaf(KindSet, k[3]))
	assert.NoError(s.Delete(ctx, k[3]))

	root := rootContainer(t, ctx, &s.tree)
	assert.Equal([]cid.Cid{k[1]}, root.Keys)
	right, err := s.load(ctx, root.Children[1].ID)
	assert.NoError(err)
	assert.Equal([]cid.Cid{k[2]}, right.Keys)
	assert.NoError(s.Verify(ctx))
}

func TestDeleteMergesAndShrinksRoot(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	k := sortedKeys(3)

	s := twoLevelSet(t, ctx, testStore(), 3, []cid.Cid{k[1]}, leaf(KindSet, k[0]), leaf(KindSet, k[2]))
	assert.NoError(s.Delete(ctx, k[2]))

	root := rootContainer(t, ctx, &s.tree)
	assert.True(root.IsLeaf())
	assert.Equal([]cid.Cid{k[0], k[1]}, root.Keys)
	depth, err := s.Depth(ctx)
	assert.NoError(err)
	assert.Equal(1, depth)

	// merging with a right sibling
	s = twoLevelSet(t, ctx, testStore(), 3, []cid.Cid{k[1]}, leaf(KindSet, k[0]), leaf(KindSet, k[2]))
	assert.NoError(s.Delete(ctx, k[0]))
	root = rootContainer(t, ctx, &s.tree)
	assert.Equal([]cid.Cid{k[1], k[2]}, root.Keys)
}

func TestSetPersistentSnapshots(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := testStore()
	k := sortedKeys(30)

	s, err := NewSet(st, 3)
	assert.NoError(err)
	for _, key := range k[:20] {
		assert.NoError(s.Add(ctx, key))
	}
	before := s.Descriptor()
	for _, key := range k[20:] {
		assert.NoError(s.Add(ctx, key))
	}
	assert.NoError(s.Delete(ctx, k[0]))

	// the old root still describes the old contents
	old, err := OpenSet(st, before, "")
	assert.NoError(err)
	assert.Equal(k[:20], collectKeys(t, ctx, old))
	assert.Equal(k[1:], collectKeys(t, ctx, s))
}

func TestSetAll(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	k := sortedKeys(12)

	s, err := NewSet(testStore(), 2)
	assert.NoError(err)
	for _, key := range k {
		assert.NoError(s.Add(ctx, key))
	}

	var got []cid.Cid
	for key, err := range s.All(ctx) {
		assert.NoError(err)
		got = append(got, key)
		if len(got) == 5 {
			break
		}
	}
	assert.Equal(k[:5], got)

	it := s.Keys()
	count := 0
	for it.Next(ctx) {
		count++
	}
	assert.NoError(it.Err())
	assert.Equal(12, count)
	it.Reset()
	assert.True(it.Next(ctx))
	assert.Equal(k[0], it.Element().Key)
}
