package chunktree

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"
)

// Path from the root container down to the container where a search for a key ended.
//
// A Branch holds working copies: containers on the path (and any siblings touched while rebalancing) are mutated in memory, and nothing reaches the block store until Update. Dropping a Branch without calling Update discards the mutation.
type Branch struct {
	tree *tree
	key  cid.Cid

	// path[0] is the root; path[i] is the child in slot slots[i] of path[i-1]. slots[0] is unused.
	path  []*Container
	slots []int

	found bool
	// element index in the terminal container if found; otherwise the (empty) child slot where key belongs
	index int
}

// Walks from the root towards key, linking each visited container into its parent.
func (t *tree) descend(ctx context.Context, key cid.Cid) (*Branch, error) {
	root, err := t.rootContainer(ctx)
	if err != nil {
		return nil, err
	}
	b := &Branch{
		tree:  t,
		key:   key,
		path:  []*Container{root},
		slots: []int{-1},
	}
	n := root
	for {
		i, found := n.Follow(key)
		if found {
			b.found = true
			b.index = i
			return b, nil
		}
		if n.Children[i].Empty() {
			b.index = i
			return b, nil
		}
		child, err := t.child(ctx, n, i)
		if err != nil {
			return nil, err
		}
		b.path = append(b.path, child)
		b.slots = append(b.slots, i)
		n = child
	}
}

// Whether the key was matched exactly.
func (b *Branch) Found() bool {
	return b.found
}

func (b *Branch) terminal() *Container {
	return b.path[len(b.path)-1]
}

// The matched element. Only meaningful if Found.
func (b *Branch) Element() Element {
	return b.terminal().Element(b.index)
}

// Number of containers on the path.
func (b *Branch) Depth() int {
	return len(b.path)
}

// Replaces the value of the matched element in place. No structural change is needed.
func (b *Branch) Replace(value cid.Cid) {
	n := b.terminal()
	n.Values[b.index] = value
	n.Dirty = true
}

// Inserts an element at the position found by the search (which must not have matched), then splits overflowing containers up the path. A split at the root grows the tree by one level.
//
// A container splits once it holds more than the tree's degree elements, so
// none is left above degree. Degree 1 splits like degree 2.
func (b *Branch) Insert(e Element) {
	max := b.tree.effectiveDegree()
	n := b.terminal()
	n.insertAt(b.index, e, ChildRef{})

	for depth := len(b.path) - 1; n.Len() > max; depth-- {
		mean, right := n.Split()
		containerSplits.Inc()

		if depth == 0 {
			root := NewContainer(b.tree.kind)
			root.Children[0] = ChildRef{Node: n}
			root.insertAt(0, mean, ChildRef{Node: right})
			b.path = append([]*Container{root}, b.path...)
			b.slots = append([]int{-1}, b.slots...)
			b.slots[1] = 0
			return
		}

		parent := b.path[depth-1]
		parent.insertAt(b.slots[depth], mean, ChildRef{Node: right})
		n = parent
	}
}

// Removes the matched element and rebalances.
//
// For an element in an internal container, a replacement is stolen from the fuller of the two leaves adjacent to it (the rightmost leaf under its left child, and the leftmost leaf under its right child; ties take from the left), and the donor leaf is then rebalanced as if the element had been deleted from it.
func (b *Branch) Remove(ctx context.Context) (Element, error) {
	n := b.terminal()
	if n.IsLeaf() {
		e, _ := n.removeAt(b.index)
		return e, b.rebalance(ctx)
	}

	removed := n.Element(b.index)
	leftPath, leftSlots, err := b.edge(ctx, n, b.index, true)
	if err != nil {
		return Element{}, err
	}
	rightPath, rightSlots, err := b.edge(ctx, n, b.index+1, false)
	if err != nil {
		return Element{}, err
	}

	leftLeaf := leftPath[len(leftPath)-1]
	rightLeaf := rightPath[len(rightPath)-1]
	var donor Element
	if leftLeaf.Len() >= rightLeaf.Len() {
		donor, _ = leftLeaf.Pop()
		b.path = append(b.path, leftPath...)
		b.slots = append(b.slots, leftSlots...)
	} else {
		_, donor = rightLeaf.Shift()
		b.path = append(b.path, rightPath...)
		b.slots = append(b.slots, rightSlots...)
	}
	n.Substitute(b.index, donor)
	return removed, b.rebalance(ctx)
}

// Follows the outermost children from the given slot of n down to a leaf. Returns the containers visited and their slots.
func (b *Branch) edge(ctx context.Context, n *Container, slot int, rightmost bool) ([]*Container, []int, error) {
	var path []*Container
	var slots []int
	for {
		c, err := b.tree.child(ctx, n, slot)
		if err != nil {
			return nil, nil, err
		}
		if c == nil {
			return nil, nil, fmt.Errorf("%w: empty child slot %d in internal container %s", ErrMalformedContainer, slot, n.CID)
		}
		path = append(path, c)
		slots = append(slots, slot)
		if c.IsLeaf() {
			return path, slots, nil
		}
		n = c
		slot = 0
		if rightmost {
			slot = len(c.Children) - 1
		}
	}
}

// Restores the minimum element count from the bottom of the path upwards.
//
// An underflowing container takes from the sibling with more elements (ties favor the left). If that sibling can spare an element, one is rotated through the parent; otherwise the two are merged around their separator, which may leave the parent underflowing in turn. A root left with no elements is replaced by its only child.
func (b *Branch) rebalance(ctx context.Context) error {
	min := b.tree.minElements()
	for depth := len(b.path) - 1; depth > 0; depth-- {
		n := b.path[depth]
		if n.Len() >= min {
			return nil
		}
		parent := b.path[depth-1]
		slot := b.slots[depth]

		var left, right *Container
		var err error
		if slot > 0 {
			if left, err = b.tree.child(ctx, parent, slot-1); err != nil {
				return err
			}
		}
		if slot < parent.Len() {
			if right, err = b.tree.child(ctx, parent, slot+1); err != nil {
				return err
			}
		}
		if left == nil && right == nil {
			return fmt.Errorf("%w: container %s has no siblings", ErrMalformedContainer, parent.CID)
		}

		useLeft := right == nil || (left != nil && left.Len() >= right.Len())
		switch {
		case useLeft && left.Len() > min:
			e, ch := left.Pop()
			sep := parent.Element(slot - 1)
			parent.Substitute(slot-1, e)
			n.Unshift(ch, sep)
			containerRotations.Inc()
			return nil
		case !useLeft && right.Len() > min:
			ch, e := right.Shift()
			sep := parent.Element(slot)
			parent.Substitute(slot, e)
			n.Push(sep, ch)
			containerRotations.Inc()
			return nil
		case useLeft:
			sep := parent.Element(slot - 1)
			n.MergeLeft(left, sep)
			parent.removeWithLeft(slot - 1)
		default:
			sep := parent.Element(slot)
			n.MergeRight(sep, right)
			parent.removeAt(slot)
		}
		containerMerges.Inc()

		if depth == 1 && parent.Len() == 0 {
			b.path = b.path[1:]
			b.slots = b.slots[1:]
			b.slots[0] = -1
			return nil
		}
	}
	return nil
}

// Persists every modified container, bottom-up, and returns the new root identifier. An empty tree has no root and returns cid.Undef.
func (b *Branch) Update(ctx context.Context) (cid.Cid, error) {
	root := b.path[0]
	if root.Len() == 0 && root.IsLeaf() {
		return cid.Undef, nil
	}
	return b.tree.persist(ctx, root)
}
