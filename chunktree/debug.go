package chunktree

import (
	"context"
	"fmt"

	"github.com/bluesky-social/peerchunk/chunk"

	"github.com/ipfs/go-cid"
	"github.com/xlab/treeprint"
)

// Renders the container structure under root, for either kind of tree.
func DebugTree(ctx context.Context, st *chunk.Store, root cid.Cid, owner string) (string, error) {
	out := treeprint.NewWithRoot(fmt.Sprintf("tree root %s", root))
	if !root.Defined() {
		return out.String(), nil
	}
	t := &tree{store: st, owner: owner, root: root}
	n, err := t.load(ctx, root)
	if err != nil {
		return "", err
	}
	if err := t.debugNode(ctx, n, out); err != nil {
		return "", err
	}
	return out.String(), nil
}

// Adds the children and elements of n, interleaved in key order, to out.
func (t *tree) debugNode(ctx context.Context, n *Container, out treeprint.Tree) error {
	for i, ch := range n.Children {
		c, err := t.peek(ctx, ch)
		if err != nil {
			return err
		}
		if c != nil {
			subtree := out.AddMetaBranch(c.Len(), "["+c.CID.String()+"]")
			if err := t.debugNode(ctx, c, subtree); err != nil {
				return err
			}
		}
		if i < n.Len() {
			e := n.Element(i)
			if e.Value.Defined() {
				out.AddNode(fmt.Sprintf("%s -> %s", e.Key, e.Value))
			} else {
				out.AddNode(e.Key.String())
			}
		}
	}
	return nil
}
