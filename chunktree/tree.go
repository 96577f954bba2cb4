package chunktree

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bluesky-social/peerchunk/chunk"

	"github.com/ipfs/go-cid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("chunktree")

// State shared by Set and Map: the block store, the root pointer, and the shape parameters.
//
// Only the root identifier changes between operations. Containers are loaded fresh for each operation and never cached across them, so reads against a root are safe to run concurrently; mutations are not, and must be serialized by the caller.
type tree struct {
	kind   Kind
	degree int
	store  *chunk.Store
	owner  string
	root   cid.Cid

	log *slog.Logger
}

func newTree(st *chunk.Store, kind Kind, degree int, root cid.Cid, owner string) (*tree, error) {
	if err := validateDegree(kind, degree); err != nil {
		return nil, err
	}
	if root.Defined() {
		if err := chunk.ValidateIdentifier(root); err != nil {
			return nil, err
		}
	}
	return &tree{
		kind:   kind,
		degree: degree,
		store:  st,
		owner:  owner,
		root:   root,
		log:    slog.Default().With("system", "chunktree", "type", kind.String()),
	}, nil
}

// Degree used for split and underflow decisions. A single element can't be split into two non-empty halves, so degree 1 behaves like degree 2.
func (t *tree) effectiveDegree() int {
	if t.degree < 2 {
		return 2
	}
	return t.degree
}

func (t *tree) minElements() int {
	return t.effectiveDegree() / 2
}

func (t *tree) writable() error {
	if t.owner != "" {
		return fmt.Errorf("%w: owner %s", ErrReadOnlyTree, t.owner)
	}
	return nil
}

// Identifier of the root container, or cid.Undef for an empty tree.
func (t *tree) Root() cid.Cid {
	return t.root
}

func (t *tree) Degree() int {
	return t.degree
}

// Peer which owns the tree; empty for local trees.
func (t *tree) Owner() string {
	return t.owner
}

func (t *tree) IsEmpty() bool {
	return !t.root.Defined()
}

func (t *tree) Descriptor() Descriptor {
	return Descriptor{
		Type:   t.kind.String(),
		Degree: t.degree,
		Root:   t.root,
	}
}

// Reads and decodes one container, through the remote fallback if the tree has an owner.
func (t *tree) load(ctx context.Context, id cid.Cid) (*Container, error) {
	data, err := t.store.Get(ctx, id, t.owner)
	if err != nil {
		return nil, fmt.Errorf("loading container %s: %w", id, err)
	}
	return decodeContainer(id, data, t.kind)
}

// Resolves the child in the given slot, linking it into the parent so later steps of the same operation share the working copy. Returns nil for an empty slot.
func (t *tree) child(ctx context.Context, n *Container, slot int) (*Container, error) {
	ref := n.Children[slot]
	if ref.Node != nil {
		return ref.Node, nil
	}
	if !ref.ID.Defined() {
		return nil, nil
	}
	c, err := t.load(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	n.Children[slot].Node = c
	return c, nil
}

// Like child, but without linking. Used on read-only paths.
func (t *tree) peek(ctx context.Context, ref ChildRef) (*Container, error) {
	if ref.Node != nil {
		return ref.Node, nil
	}
	if !ref.ID.Defined() {
		return nil, nil
	}
	return t.load(ctx, ref.ID)
}

// Returns a working copy of the root container; an empty leaf if the tree is empty.
func (t *tree) rootContainer(ctx context.Context) (*Container, error) {
	if !t.root.Defined() {
		return NewContainer(t.kind), nil
	}
	return t.load(ctx, t.root)
}

// Searches for key without building a branch.
func (t *tree) lookup(ctx context.Context, key cid.Cid) (Element, bool, error) {
	if !t.root.Defined() {
		return Element{}, false, nil
	}
	n, err := t.load(ctx, t.root)
	if err != nil {
		return Element{}, false, err
	}
	for n != nil {
		i, found := n.Follow(key)
		if found {
			return n.Element(i), true, nil
		}
		n, err = t.peek(ctx, n.Children[i])
		if err != nil {
			return Element{}, false, err
		}
	}
	return Element{}, false, nil
}

// Writes n and every dirty node linked below it, children first, and returns n's identifier.
//
// A child whose identifier changed marks its parent dirty, so a change anywhere on a path rewrites the path up to n.
func (t *tree) persist(ctx context.Context, n *Container) (cid.Cid, error) {
	for i, ch := range n.Children {
		if ch.Node == nil {
			continue
		}
		id, err := t.persist(ctx, ch.Node)
		if err != nil {
			return cid.Undef, err
		}
		if !id.Equals(ch.ID) {
			n.Children[i].ID = id
			n.Dirty = true
		}
	}
	if !n.Dirty && n.CID.Defined() {
		return n.CID, nil
	}

	data, err := encodeContainer(n)
	if err != nil {
		return cid.Undef, err
	}
	id, err := t.store.Put(ctx, chunk.NodePrefix.Codec, data)
	if err != nil {
		return cid.Undef, err
	}
	containersWritten.Inc()
	n.CID = id
	n.Dirty = false
	return id, nil
}

// Visits every container in pre-order along with its depth (root is zero).
func (t *tree) walk(ctx context.Context, fn func(n *Container, depth int) error) error {
	if !t.root.Defined() {
		return nil
	}
	root, err := t.load(ctx, t.root)
	if err != nil {
		return err
	}
	return t.walkNode(ctx, root, 0, fn)
}

func (t *tree) walkNode(ctx context.Context, n *Container, depth int, fn func(n *Container, depth int) error) error {
	if err := fn(n, depth); err != nil {
		return err
	}
	for _, ch := range n.Children {
		c, err := t.peek(ctx, ch)
		if err != nil {
			return err
		}
		if c == nil {
			continue
		}
		if err := t.walkNode(ctx, c, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

// Number of elements in the tree. Walks every container.
func (t *tree) Len(ctx context.Context) (int, error) {
	total := 0
	err := t.walk(ctx, func(n *Container, _ int) error {
		total += n.Len()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Height of the tree: 0 when empty, 1 for a single leaf root.
func (t *tree) Depth(ctx context.Context) (int, error) {
	depth := 0
	n, err := t.peek(ctx, ChildRef{ID: t.root})
	for n != nil && err == nil {
		depth++
		n, err = t.peek(ctx, n.Children[0])
	}
	if err != nil {
		return 0, err
	}
	return depth, nil
}

// Visits every element in order.
func (t *tree) ForEach(ctx context.Context, fn func(e Element) error) error {
	it := t.iterator()
	for it.Next(ctx) {
		if err := fn(it.Element()); err != nil {
			return err
		}
	}
	return it.Err()
}

func (t *tree) iterator() *Iterator {
	return &Iterator{tree: t, root: t.root}
}

func (t *tree) Has(ctx context.Context, key cid.Cid) (bool, error) {
	ctx, span := t.startSpan(ctx, "Has", key)
	defer span.End()

	_, found, err := t.lookup(ctx, key)
	t.countOp("has", err)
	return found, err
}

// Removes key from the tree. Fails with ErrKeyNotFound if it is absent, in which case the root is unchanged.
func (t *tree) Delete(ctx context.Context, key cid.Cid) error {
	ctx, span := t.startSpan(ctx, "Delete", key)
	defer span.End()

	err := t.delete(ctx, key)
	t.countOp("delete", err)
	return err
}

func (t *tree) delete(ctx context.Context, key cid.Cid) error {
	if err := t.writable(); err != nil {
		return err
	}
	b, err := t.descend(ctx, key)
	if err != nil {
		return err
	}
	if !b.Found() {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	if _, err := b.Remove(ctx); err != nil {
		return err
	}
	return t.commit(ctx, b)
}

// Persists a mutated branch and swaps in the new root. The root only changes if every write succeeded.
func (t *tree) commit(ctx context.Context, b *Branch) error {
	root, err := b.Update(ctx)
	if err != nil {
		return err
	}
	t.log.Debug("tree root updated", "prev", t.root, "root", root)
	t.root = root
	return nil
}

func (t *tree) startSpan(ctx context.Context, op string, key cid.Cid) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, t.kind.String()+"."+op)
	span.SetAttributes(
		attribute.String("key", key.String()),
		attribute.String("root", t.root.String()),
	)
	return ctx, span
}

func (t *tree) countOp(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	treeOps.WithLabelValues(t.kind.String(), op, status).Inc()
}
