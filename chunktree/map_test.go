package chunktree

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapDegreeBounds(t *testing.T) {
	assert := assert.New(t)
	st := testStore()

	for _, d := range []int{0, 1, 11} {
		_, err := NewMap(st, d)
		assert.True(errors.Is(err, ErrInvalidDegree), d)
	}
	for _, d := range []int{2, 10} {
		_, err := NewMap(st, d)
		assert.NoError(err, d)
	}
}

func TestMapSetGetDelete(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	st := testStore()
	k := sortedKeys(100)

	m, err := NewMap(st, 3)
	require.NoError(err)

	vals := map[cid.Cid]cid.Cid{}
	for i, key := range k {
		v := keyCID(fmt.Sprintf("value-%d", i))
		require.NoError(m.Set(ctx, key, v))
		vals[key] = v
	}

	// update twenty
	for i, key := range k[:20] {
		v := keyCID(fmt.Sprintf("updated-%d", i))
		require.NoError(m.Set(ctx, key, v))
		vals[key] = v
	}
	// delete twenty others
	for _, key := range k[50:70] {
		require.NoError(m.Delete(ctx, key))
		delete(vals, key)
	}
	require.NoError(m.Verify(ctx))

	for i, key := range k[:20] {
		got, err := m.Get(ctx, key)
		require.NoError(err)
		require.NotNil(got)
		assert.Equal(keyCID(fmt.Sprintf("updated-%d", i)), got.ID())
		assert.True(got.Local())
	}
	for _, key := range k[50:70] {
		got, err := m.Get(ctx, key)
		assert.NoError(err)
		assert.Nil(got)
		ok, err := m.Has(ctx, key)
		assert.NoError(err)
		assert.False(ok)
		assert.True(errors.Is(m.Delete(ctx, key), ErrKeyNotFound))
	}

	count := 0
	var prev string
	for e, err := range m.All(ctx) {
		require.NoError(err)
		assert.Equal(vals[e.Key], e.Value)
		assert.Greater(e.Key.String(), prev)
		prev = e.Key.String()
		count++
	}
	assert.Equal(80, count)
	n, err := m.Len(ctx)
	assert.NoError(err)
	assert.Equal(80, n)
}

func TestMapSetSameValueKeepsRoot(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	k := sortedKeys(10)

	m, err := NewMap(testStore(), 2)
	assert.NoError(err)
	for _, key := range k {
		assert.NoError(m.Set(ctx, key, key))
	}
	root := m.Root()
	assert.NoError(m.Set(ctx, k[4], k[4]))
	assert.Equal(root, m.Root())

	assert.NoError(m.Set(ctx, k[4], k[5]))
	assert.NotEqual(root, m.Root())

	// replacing a value does not change the shape of the tree
	before, err := m.Depth(ctx)
	assert.NoError(err)
	assert.NoError(m.Verify(ctx))
	after, err := m.Depth(ctx)
	assert.NoError(err)
	assert.Equal(before, after)
}

func TestMapEmptiesCompletely(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	k := sortedKeys(40)

	m, err := NewMap(testStore(), 4)
	assert.NoError(err)
	for _, key := range k {
		assert.NoError(m.Set(ctx, key, key))
	}
	for i := len(k) - 1; i >= 0; i -= 2 {
		assert.NoError(m.Delete(ctx, k[i]))
	}
	assert.NoError(m.Verify(ctx))
	for i := 0; i < len(k); i += 2 {
		assert.NoError(m.Delete(ctx, k[i]))
	}
	assert.True(m.IsEmpty())
	assert.False(m.Root().Defined())

	e := m.Entries()
	assert.False(e.Next(ctx))
	assert.NoError(e.Err())
}

func TestMapRejectsUndefinedValue(t *testing.T) {
	ctx := context.Background()
	m, err := NewMap(testStore(), 2)
	assert.NoError(t, err)
	assert.Error(t, m.Set(ctx, keyCID("a"), cid.Undef))
	assert.True(t, m.IsEmpty())
}
