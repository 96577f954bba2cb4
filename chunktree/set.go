package chunktree

import (
	"context"
	"fmt"
	"iter"

	"github.com/bluesky-social/peerchunk/chunk"

	"github.com/ipfs/go-cid"
)

// Ordered set of chunk identifiers, stored as a B-tree of content-addressed containers.
type Set struct {
	tree
}

// Creates an empty local set. Degree must be in [1, 10].
func NewSet(st *chunk.Store, degree int) (*Set, error) {
	t, err := newTree(st, KindSet, degree, cid.Undef, "")
	if err != nil {
		return nil, err
	}
	return &Set{tree: *t}, nil
}

// Opens an existing set from its descriptor. A non-empty owner makes the set read-only, and containers missing locally are fetched from that peer.
func OpenSet(st *chunk.Store, d Descriptor, owner string) (*Set, error) {
	if d.Type != tagSet {
		return nil, fmt.Errorf("%w: descriptor type %q is not a set", ErrUnknownKind, d.Type)
	}
	t, err := newTree(st, KindSet, d.Degree, d.Root, owner)
	if err != nil {
		return nil, err
	}
	return &Set{tree: *t}, nil
}

// Adds key to the set. Fails with ErrDuplicateKey if it is already present.
func (s *Set) Add(ctx context.Context, key cid.Cid) error {
	ctx, span := s.startSpan(ctx, "Add", key)
	defer span.End()

	err := s.add(ctx, key)
	s.countOp("add", err)
	return err
}

func (s *Set) add(ctx context.Context, key cid.Cid) error {
	if err := s.writable(); err != nil {
		return err
	}
	if !key.Defined() {
		return fmt.Errorf("%w: undefined key", chunk.ErrInvalidIdentifier)
	}
	b, err := s.descend(ctx, key)
	if err != nil {
		return err
	}
	if b.Found() {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, key)
	}
	b.Insert(Element{Key: key})
	return s.commit(ctx, b)
}

// Lazy in-order iterator over the keys present when it was created.
func (s *Set) Keys() *Iterator {
	return s.iterator()
}

// Range-over-func form of Keys. Iteration stops after yielding an error.
func (s *Set) All(ctx context.Context) iter.Seq2[cid.Cid, error] {
	return func(yield func(cid.Cid, error) bool) {
		it := s.iterator()
		for it.Next(ctx) {
			if !yield(it.Element().Key, nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(cid.Undef, err)
		}
	}
}
