package chunktree

import (
	"fmt"
	"slices"
	"sort"

	"github.com/ipfs/go-cid"
)

// A key, plus its value for map-kind trees (cid.Undef for sets).
type Element struct {
	Key   cid.Cid
	Value cid.Cid
}

// Pointer from a container to one of its children. An empty ref (no ID, no Node) marks a missing subtree, as in every slot of a leaf.
//
// ID is the persisted identifier of the child, if it has one. Node is set when the child has been loaded (or built) during the current operation; when both are set, Node takes precedence and ID may be stale.
type ChildRef struct {
	ID   cid.Cid
	Node *Container
}

func (r ChildRef) Empty() bool {
	return !r.ID.Defined() && r.Node == nil
}

// One B-tree node. Invariants: Keys strictly ascending by string form; len(Children) == len(Keys)+1; Values is non-nil (and parallel to Keys) iff Kind is KindMap.
type Container struct {
	Kind     Kind
	Keys     []cid.Cid
	Values   []cid.Cid
	Children []ChildRef

	// identifier this container was decoded from or last persisted as
	CID cid.Cid
	// if true, CID is out of date
	Dirty bool
}

// Returns an empty leaf.
func NewContainer(kind Kind) *Container {
	c := &Container{
		Kind:     kind,
		Keys:     []cid.Cid{},
		Children: make([]ChildRef, 1),
		Dirty:    true,
	}
	if kind == KindMap {
		c.Values = []cid.Cid{}
	}
	return c
}

func (c *Container) Len() int {
	return len(c.Keys)
}

func (c *Container) hasValues() bool {
	return c.Kind == KindMap
}

func (c *Container) IsLeaf() bool {
	for _, ch := range c.Children {
		if !ch.Empty() {
			return false
		}
	}
	return true
}

func (c *Container) Element(i int) Element {
	e := Element{Key: c.Keys[i]}
	if c.hasValues() {
		e.Value = c.Values[i]
	}
	return e
}

// Looks for key in this container.
//
// Returns (index, true) on an exact match. Otherwise returns the index of the child slot whose subtree would hold the key (0 if the key precedes every key here).
func (c *Container) Follow(key cid.Cid) (int, bool) {
	ks := key.String()
	i := sort.Search(len(c.Keys), func(i int) bool {
		return c.Keys[i].String() >= ks
	})
	if i < len(c.Keys) && c.Keys[i].String() == ks {
		return i, true
	}
	return i, false
}

// Inserts an element at its sorted position; right becomes the child slot immediately to the right of the new key. Returns the index of the element.
//
// The caller guarantees the key is not already present; adding a duplicate is a programming error and panics.
func (c *Container) Add(e Element, right ChildRef) int {
	i, found := c.Follow(e.Key)
	if found {
		panic(fmt.Sprintf("chunktree: duplicate key %s added to container", e.Key))
	}
	c.insertAt(i, e, right)
	return i
}

func (c *Container) insertAt(i int, e Element, right ChildRef) {
	c.Keys = slices.Insert(c.Keys, i, e.Key)
	if c.hasValues() {
		c.Values = slices.Insert(c.Values, i, e.Value)
	}
	c.Children = slices.Insert(c.Children, i+1, right)
	c.Dirty = true
}

// Removes the element at index i together with the child slot to its right. Returns the element and that child.
func (c *Container) removeAt(i int) (Element, ChildRef) {
	e := c.Element(i)
	right := c.Children[i+1]
	c.Keys = slices.Delete(c.Keys, i, i+1)
	if c.hasValues() {
		c.Values = slices.Delete(c.Values, i, i+1)
	}
	c.Children = slices.Delete(c.Children, i+1, i+2)
	c.Dirty = true
	return e, right
}

// Removes the element at index i together with the child slot to its left.
func (c *Container) removeWithLeft(i int) (ChildRef, Element) {
	e := c.Element(i)
	left := c.Children[i]
	c.Keys = slices.Delete(c.Keys, i, i+1)
	if c.hasValues() {
		c.Values = slices.Delete(c.Values, i, i+1)
	}
	c.Children = slices.Delete(c.Children, i, i+1)
	c.Dirty = true
	return left, e
}

// Removes key from the container, returning the removed element and the child slots which were on either side of it (the left one stays in place). Returns false if the key is not here.
func (c *Container) Remove(key cid.Cid) (Element, ChildRef, ChildRef, bool) {
	i, found := c.Follow(key)
	if !found {
		return Element{}, ChildRef{}, ChildRef{}, false
	}
	left := c.Children[i]
	e, right := c.removeAt(i)
	return e, left, right, true
}

// Replaces the element at index i (key and value), keeping both neighboring children.
func (c *Container) Substitute(i int, e Element) {
	c.Keys[i] = e.Key
	if c.hasValues() {
		c.Values[i] = e.Value
	}
	c.Dirty = true
}

// Splits the container around its mean element.
//
// With n elements, the mean index is (n-1)/2. Elements after the mean move to a new right container, along with the children after the mean key (the right container's first child is the subtree that was right of the mean key). The mean element itself is in neither half and is returned for promotion to the parent.
func (c *Container) Split() (Element, *Container) {
	mean := (len(c.Keys) - 1) / 2
	m := c.Element(mean)

	right := &Container{
		Kind:     c.Kind,
		Keys:     slices.Clone(c.Keys[mean+1:]),
		Children: slices.Clone(c.Children[mean+1:]),
		Dirty:    true,
	}
	if c.hasValues() {
		right.Values = slices.Clone(c.Values[mean+1:])
	}

	c.Keys = slices.Clone(c.Keys[:mean])
	if c.hasValues() {
		c.Values = slices.Clone(c.Values[:mean])
	}
	c.Children = slices.Clone(c.Children[:mean+1])
	c.Dirty = true
	return m, right
}

// Appends sep and then everything in right to this container.
func (c *Container) MergeRight(sep Element, right *Container) {
	c.Keys = append(append(c.Keys, sep.Key), right.Keys...)
	if c.hasValues() {
		c.Values = append(append(c.Values, sep.Value), right.Values...)
	}
	c.Children = append(c.Children, right.Children...)
	c.Dirty = true
}

// Prepends everything in left, then sep, to this container.
func (c *Container) MergeLeft(left *Container, sep Element) {
	c.Keys = slices.Concat(left.Keys, []cid.Cid{sep.Key}, c.Keys)
	if c.hasValues() {
		c.Values = slices.Concat(left.Values, []cid.Cid{sep.Value}, c.Values)
	}
	c.Children = slices.Concat(left.Children, c.Children)
	c.Dirty = true
}

// Removes the last element and the last child.
func (c *Container) Pop() (Element, ChildRef) {
	return c.removeAt(len(c.Keys) - 1)
}

// Removes the first child and the first element.
func (c *Container) Shift() (ChildRef, Element) {
	return c.removeWithLeft(0)
}

// Appends an element and the child to its right.
func (c *Container) Push(e Element, right ChildRef) {
	c.insertAt(len(c.Keys), e, right)
}

// Prepends a child and the element to its right.
func (c *Container) Unshift(left ChildRef, e Element) {
	c.Keys = slices.Insert(c.Keys, 0, e.Key)
	if c.hasValues() {
		c.Values = slices.Insert(c.Values, 0, e.Value)
	}
	c.Children = slices.Insert(c.Children, 0, left)
	c.Dirty = true
}

// Returns the child slot indexes to the left and right of the child slot holding childID, or -1 where there is no such sibling. Returns (-1, -1, false) if no child has that identifier.
func (c *Container) Siblings(childID cid.Cid) (int, int, bool) {
	for i, ch := range c.Children {
		if ch.ID.Defined() && ch.ID.Equals(childID) {
			left, right := i-1, i+1
			if right >= len(c.Children) {
				right = -1
			}
			return left, right, true
		}
	}
	return -1, -1, false
}
