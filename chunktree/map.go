package chunktree

import (
	"context"
	"fmt"
	"iter"

	"github.com/bluesky-social/peerchunk/chunk"

	"github.com/ipfs/go-cid"
)

// Ordered map from chunk identifiers to chunk identifiers, stored as a B-tree whose containers carry a value alongside each key.
type Map struct {
	tree
}

// Creates an empty local map. Degree must be in [2, 10].
func NewMap(st *chunk.Store, degree int) (*Map, error) {
	t, err := newTree(st, KindMap, degree, cid.Undef, "")
	if err != nil {
		return nil, err
	}
	return &Map{tree: *t}, nil
}

// Opens an existing map from its descriptor. See OpenSet.
func OpenMap(st *chunk.Store, d Descriptor, owner string) (*Map, error) {
	if d.Type != tagMap {
		return nil, fmt.Errorf("%w: descriptor type %q is not a map", ErrUnknownKind, d.Type)
	}
	t, err := newTree(st, KindMap, d.Degree, d.Root, owner)
	if err != nil {
		return nil, err
	}
	return &Map{tree: *t}, nil
}

// Returns the value chunk for key, or nil if the key is absent. The chunk carries the map's owner.
func (m *Map) Get(ctx context.Context, key cid.Cid) (*chunk.Chunk, error) {
	ctx, span := m.startSpan(ctx, "Get", key)
	defer span.End()

	e, found, err := m.lookup(ctx, key)
	m.countOp("get", err)
	if err != nil || !found {
		return nil, err
	}
	return chunk.FromCID(e.Value, m.owner), nil
}

// Inserts key, or replaces its value if it is already present. Setting the value a key already has does not change the root.
func (m *Map) Set(ctx context.Context, key, value cid.Cid) error {
	ctx, span := m.startSpan(ctx, "Set", key)
	defer span.End()

	err := m.set(ctx, key, value)
	m.countOp("set", err)
	return err
}

func (m *Map) set(ctx context.Context, key, value cid.Cid) error {
	if err := m.writable(); err != nil {
		return err
	}
	if !key.Defined() {
		return fmt.Errorf("%w: undefined key", chunk.ErrInvalidIdentifier)
	}
	if !value.Defined() {
		return fmt.Errorf("%w: undefined value", chunk.ErrInvalidIdentifier)
	}
	b, err := m.descend(ctx, key)
	if err != nil {
		return err
	}
	if b.Found() {
		if b.Element().Value.Equals(value) {
			return nil
		}
		b.Replace(value)
	} else {
		b.Insert(Element{Key: key, Value: value})
	}
	return m.commit(ctx, b)
}

// Lazy in-order iterator over the entries present when it was created.
func (m *Map) Entries() *Iterator {
	return m.iterator()
}

// Range-over-func form of Entries. Iteration stops after yielding an error.
func (m *Map) All(ctx context.Context) iter.Seq2[Element, error] {
	return func(yield func(Element, error) bool) {
		it := m.iterator()
		for it.Next(ctx) {
			if !yield(it.Element(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(Element{}, err)
		}
	}
}
