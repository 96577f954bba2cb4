package chunktree

import (
	"context"
	"fmt"
)

// Checks the structural invariants of the whole tree: keys in strictly ascending order across containers, no container over the degree, no non-root container under the minimum, and every leaf at the same depth.
func (t *tree) Verify(ctx context.Context) error {
	if !t.root.Defined() {
		return nil
	}
	root, err := t.load(ctx, t.root)
	if err != nil {
		return err
	}
	if root.Len() == 0 {
		return fmt.Errorf("%w: root container %s is empty", ErrMalformedContainer, t.root)
	}
	leafDepth := -1
	return t.verifyNode(ctx, root, 0, "", "", &leafDepth)
}

// lo and hi are exclusive bounds on the keys under n; empty means unbounded.
func (t *tree) verifyNode(ctx context.Context, n *Container, depth int, lo, hi string, leafDepth *int) error {
	if n.Len() > t.effectiveDegree() {
		return fmt.Errorf("%w: container %s has %d elements, degree is %d", ErrMalformedContainer, n.CID, n.Len(), t.degree)
	}
	if depth > 0 && n.Len() < t.minElements() {
		return fmt.Errorf("%w: container %s has %d elements, minimum is %d", ErrMalformedContainer, n.CID, n.Len(), t.minElements())
	}
	for _, k := range n.Keys {
		ks := k.String()
		if (lo != "" && ks <= lo) || (hi != "" && ks >= hi) {
			return fmt.Errorf("%w: key %s out of order in container %s", ErrMalformedContainer, k, n.CID)
		}
	}

	if n.IsLeaf() {
		if *leafDepth < 0 {
			*leafDepth = depth
		} else if *leafDepth != depth {
			return fmt.Errorf("%w: leaf %s at depth %d, expected %d", ErrMalformedContainer, n.CID, depth, *leafDepth)
		}
		return nil
	}

	for i, ch := range n.Children {
		c, err := t.peek(ctx, ch)
		if err != nil {
			return err
		}
		if c == nil {
			return fmt.Errorf("%w: internal container %s has an empty child slot", ErrMalformedContainer, n.CID)
		}
		clo, chi := lo, hi
		if i > 0 {
			clo = n.Keys[i-1].String()
		}
		if i < n.Len() {
			chi = n.Keys[i].String()
		}
		if err := t.verifyNode(ctx, c, depth+1, clo, chi, leafDepth); err != nil {
			return err
		}
	}
	return nil
}
