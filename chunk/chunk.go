package chunk

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	cbg "github.com/whyrusleeping/cbor-gen"
)

// Handle to an immutable block. A Chunk with an empty owner is local and authoritative; otherwise it belongs to a remote peer, and reads fall back to that peer when the block is missing locally.
//
// A Chunk caches its bytes (and expanded value) for its own lifetime. It is not safe for concurrent use.
type Chunk struct {
	id    cid.Cid
	owner string

	raw      []byte
	value    any
	expanded int // depth the cached value was expanded to; -1 if none
}

// Builds a handle without fetching anything. Returns nil for cid.Undef.
func FromCID(id cid.Cid, owner string) *Chunk {
	if !id.Defined() {
		return nil
	}
	return &Chunk{id: id, owner: owner, expanded: -1}
}

// Builds a handle from the string form of an identifier, without fetching. An empty string returns (nil, nil).
func FromIdentifier(s string, owner string) (*Chunk, error) {
	id, err := ParseIdentifier(s)
	if err != nil {
		return nil, err
	}
	return FromCID(id, owner), nil
}

// Stores opaque bytes as a raw chunk, returning a local handle.
func FromBytes(ctx context.Context, st *Store, data []byte) (*Chunk, error) {
	id, err := st.Put(ctx, RawPrefix.Codec, data)
	if err != nil {
		return nil, err
	}
	return &Chunk{id: id, raw: data, expanded: -1}, nil
}

// Serializes a value as DAG-CBOR, stores it, and returns a local handle.
//
// Values implementing cbg.CBORMarshaler use their own encoding; anything else goes through go-ipld-cbor's generic encoder.
func FromValue(ctx context.Context, st *Store, v any) (*Chunk, error) {
	var data []byte
	if m, ok := v.(cbg.CBORMarshaler); ok {
		buf := new(bytes.Buffer)
		if err := m.MarshalCBOR(buf); err != nil {
			return nil, fmt.Errorf("encoding chunk value: %w", err)
		}
		data = buf.Bytes()
	} else {
		b, err := cbor.DumpObject(v)
		if err != nil {
			return nil, fmt.Errorf("encoding chunk value: %w", err)
		}
		data = b
	}
	id, err := st.Put(ctx, NodePrefix.Codec, data)
	if err != nil {
		return nil, err
	}
	return &Chunk{id: id, raw: data, expanded: -1}, nil
}

func (c *Chunk) ID() cid.Cid {
	return c.id
}

func (c *Chunk) Identifier() string {
	return c.id.String()
}

func (c *Chunk) Owner() string {
	return c.owner
}

func (c *Chunk) Local() bool {
	return c.owner == ""
}

// Returns the chunk's bytes, fetching them through the store on first use.
func (c *Chunk) Fetch(ctx context.Context, st *Store) ([]byte, error) {
	if c.raw != nil {
		return c.raw, nil
	}
	data, err := st.Get(ctx, c.id, c.owner)
	if err != nil {
		return nil, err
	}
	c.raw = data
	return data, nil
}

// Returns the value last produced by Expand, if any.
func (c *Chunk) Value() any {
	return c.value
}

// Decodes the chunk to a generic value.
//
// Raw chunks decode to their bytes. DAG-CBOR chunks decode to maps, slices, and scalars, with links left as cid.Cid when depth is zero. For depth > 0, each embedded link is replaced by a *Chunk (with the same owner) whose own value is expanded to depth-1.
func (c *Chunk) Expand(ctx context.Context, st *Store, depth int) (any, error) {
	if c.expanded >= 0 && c.expanded == depth {
		return c.value, nil
	}
	data, err := c.Fetch(ctx, st)
	if err != nil {
		return nil, err
	}
	if c.id.Type() == cid.Raw {
		c.value, c.expanded = data, depth
		return data, nil
	}

	var v any
	if err := cbor.DecodeInto(data, &v); err != nil {
		return nil, fmt.Errorf("decoding chunk %s: %w", c.id, err)
	}
	if depth > 0 {
		v, err = c.resolveLinks(ctx, st, v, depth)
		if err != nil {
			return nil, err
		}
	}
	c.value, c.expanded = v, depth
	return v, nil
}

func (c *Chunk) resolveLinks(ctx context.Context, st *Store, v any, depth int) (any, error) {
	switch t := v.(type) {
	case cid.Cid:
		return c.expandChild(ctx, st, t, depth)
	case *cid.Cid:
		if t == nil {
			return nil, nil
		}
		return c.expandChild(ctx, st, *t, depth)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			r, err := c.resolveLinks(ctx, st, val, depth)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			r, err := c.resolveLinks(ctx, st, val, depth)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

func (c *Chunk) expandChild(ctx context.Context, st *Store, id cid.Cid, depth int) (any, error) {
	child := FromCID(id, c.owner)
	if child == nil {
		return nil, nil
	}
	if _, err := child.Expand(ctx, st, depth-1); err != nil {
		return nil, fmt.Errorf("expanding %s: %w", id, err)
	}
	return child, nil
}

func (c *Chunk) String() string {
	if c.owner == "" {
		return c.id.String()
	}
	return c.owner + "/" + c.id.String()
}
