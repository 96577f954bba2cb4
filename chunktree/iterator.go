package chunktree

import (
	"context"

	"github.com/ipfs/go-cid"
)

// In-order cursor over the elements of a tree snapshot.
//
// Containers are resolved lazily as the walk reaches them, so each call to Next may block on a chunk fetch. An Iterator keeps one container per level in memory, and never writes.
type Iterator struct {
	tree *tree
	root cid.Cid

	stack   []iterFrame
	started bool
	cur     Element
	err     error
}

type iterFrame struct {
	node *Container
	// next element index to yield
	next int
	// whether the child slot left of next has been visited
	descended bool
}

// Advances to the next element. Returns false at the end or on error; check Err.
func (it *Iterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	if !it.started {
		it.started = true
		if !it.root.Defined() {
			return false
		}
		root, err := it.tree.load(ctx, it.root)
		if err != nil {
			it.err = err
			return false
		}
		it.stack = append(it.stack, iterFrame{node: root})
	}

	for len(it.stack) > 0 {
		f := &it.stack[len(it.stack)-1]
		if !f.descended {
			f.descended = true
			child, err := it.tree.peek(ctx, f.node.Children[f.next])
			if err != nil {
				it.err = err
				return false
			}
			if child != nil {
				it.stack = append(it.stack, iterFrame{node: child})
				continue
			}
		}
		if f.next < f.node.Len() {
			it.cur = f.node.Element(f.next)
			f.next++
			f.descended = false
			return true
		}
		it.stack = it.stack[:len(it.stack)-1]
	}
	return false
}

// Current element, valid after Next returns true.
func (it *Iterator) Element() Element {
	return it.cur
}

func (it *Iterator) Err() error {
	return it.err
}

// Rewinds to the first element of the same snapshot.
func (it *Iterator) Reset() {
	it.stack = nil
	it.started = false
	it.cur = Element{}
	it.err = nil
}
