package chunktree

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/bluesky-social/peerchunk/chunk"

	"github.com/ipfs/go-cid"
	cbg "github.com/whyrusleeping/cbor-gen"
)

// Self-contained reference to a tree snapshot. A descriptor can itself be stored as a chunk, so other data can point at a collection by hash.
type Descriptor struct {
	// registered collection tag, "set" or "map" for the built-in kinds
	Type   string
	Degree int
	// cid.Undef for an empty tree
	Root cid.Cid
}

func (d *Descriptor) MarshalCBOR(w io.Writer) error {
	if d == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	cw := cbg.NewCborWriter(w)

	if err := cw.WriteMajorTypeHeader(cbg.MajMap, 3); err != nil {
		return err
	}

	// t.Root (cid.Cid) (struct)
	if err := writeText(cw, "root"); err != nil {
		return err
	}
	if d.Root.Defined() {
		if err := cbg.WriteCid(cw, d.Root); err != nil {
			return fmt.Errorf("failed to write cid field t.Root: %w", err)
		}
	} else {
		if _, err := cw.Write(cbg.CborNull); err != nil {
			return err
		}
	}

	// t.Type (string) (string)
	if len(d.Type) > cbg.MaxLength {
		return fmt.Errorf("value in field t.Type was too long")
	}
	if err := writeText(cw, "type"); err != nil {
		return err
	}
	if err := writeText(cw, d.Type); err != nil {
		return err
	}

	// t.Degree (int64) (int64)
	if d.Degree < 0 {
		return fmt.Errorf("negative degree %d", d.Degree)
	}
	if err := writeText(cw, "degree"); err != nil {
		return err
	}
	return cw.WriteMajorTypeHeader(cbg.MajUnsignedInt, uint64(d.Degree))
}

func (d *Descriptor) UnmarshalCBOR(r io.Reader) (err error) {
	*d = Descriptor{}

	cr := cbg.NewCborReader(r)
	maj, extra, err := cr.ReadHeader()
	if err != nil {
		return err
	}
	defer func() {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
	}()

	if maj != cbg.MajMap {
		return fmt.Errorf("cbor input should be of type map")
	}
	if extra > 3 {
		return fmt.Errorf("Descriptor: map struct too large (%d)", extra)
	}

	for i := uint64(0); i < extra; i++ {
		name, err := cbg.ReadString(cr)
		if err != nil {
			return err
		}
		switch name {
		case "root":
			b, err := cr.ReadByte()
			if err != nil {
				return err
			}
			if b == cbg.CborNull[0] {
				continue
			}
			if err := cr.UnreadByte(); err != nil {
				return err
			}
			c, err := cbg.ReadCid(cr)
			if err != nil {
				return fmt.Errorf("failed to read cid field t.Root: %w", err)
			}
			d.Root = c
		case "type":
			d.Type, err = cbg.ReadString(cr)
			if err != nil {
				return err
			}
		case "degree":
			maj, v, err := cr.ReadHeader()
			if err != nil {
				return err
			}
			if maj != cbg.MajUnsignedInt {
				return fmt.Errorf("wrong type for uint64 field t.Degree: %d", maj)
			}
			if v > 1<<16 {
				return fmt.Errorf("t.Degree out of range: %d", v)
			}
			d.Degree = int(v)
		default:
			return fmt.Errorf("Descriptor: unknown field %q", name)
		}
	}
	return nil
}

type descriptorJSON struct {
	Type   string  `json:"type"`
	Degree int     `json:"degree"`
	Root   *string `json:"root"`
}

func (d Descriptor) MarshalJSON() ([]byte, error) {
	out := descriptorJSON{Type: d.Type, Degree: d.Degree}
	if d.Root.Defined() {
		s := d.Root.String()
		out.Root = &s
	}
	return json.Marshal(out)
}

func (d *Descriptor) UnmarshalJSON(b []byte) error {
	var in descriptorJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	root := cid.Undef
	if in.Root != nil {
		c, err := chunk.ParseIdentifier(*in.Root)
		if err != nil {
			return err
		}
		root = c
	}
	*d = Descriptor{Type: in.Type, Degree: in.Degree, Root: root}
	return nil
}

// Stores the descriptor as a DAG-CBOR chunk.
func SaveDescriptor(ctx context.Context, st *chunk.Store, d Descriptor) (*chunk.Chunk, error) {
	return chunk.FromValue(ctx, st, &d)
}

// Reads a descriptor chunk, through the remote fallback if owner is set.
func LoadDescriptor(ctx context.Context, st *chunk.Store, id cid.Cid, owner string) (Descriptor, error) {
	var d Descriptor
	if !id.Defined() || id.Type() != cid.DagCBOR {
		return d, fmt.Errorf("%w: descriptor %s is not a DAG-CBOR chunk", chunk.ErrInvalidIdentifier, id)
	}
	data, err := st.Get(ctx, id, owner)
	if err != nil {
		return d, err
	}
	if err := d.UnmarshalCBOR(bytes.NewReader(data)); err != nil {
		return d, fmt.Errorf("decoding descriptor %s: %w", id, err)
	}
	return d, nil
}
