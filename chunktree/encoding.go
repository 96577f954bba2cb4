package chunktree

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ipfs/go-cid"
	cbg "github.com/whyrusleeping/cbor-gen"
)

// CBOR serialization struct for a tree container. Note that the CBOR fields are all single-character, written in canonical DAG-CBOR order.
type ContainerData struct {
	Children []*cid.Cid `cborgen:"c"` // one more entry than Keys; nil entries are empty subtrees (every entry of a leaf)
	Keys     []cid.Cid  `cborgen:"k"` // strictly ascending by string form
	Count    int64      `cborgen:"n"` // number of elements
	Values   []cid.Cid  `cborgen:"v"` // [map trees only] parallel to Keys; the field is absent for sets
}

func (d *ContainerData) MarshalCBOR(w io.Writer) error {
	if d == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	cw := cbg.NewCborWriter(w)

	fields := uint64(3)
	if d.Values != nil {
		fields++
	}
	if err := cw.WriteMajorTypeHeader(cbg.MajMap, fields); err != nil {
		return err
	}

	// t.Children ([]*cid.Cid) (slice)
	if err := writeText(cw, "c"); err != nil {
		return err
	}
	if len(d.Children) > cbg.MaxLength {
		return fmt.Errorf("slice value in field t.Children was too long")
	}
	if err := cw.WriteMajorTypeHeader(cbg.MajArray, uint64(len(d.Children))); err != nil {
		return err
	}
	for _, ch := range d.Children {
		if ch == nil {
			if _, err := cw.Write(cbg.CborNull); err != nil {
				return err
			}
			continue
		}
		if err := cbg.WriteCid(cw, *ch); err != nil {
			return fmt.Errorf("failed to write cid field t.Children: %w", err)
		}
	}

	// t.Keys ([]cid.Cid) (slice)
	if err := writeText(cw, "k"); err != nil {
		return err
	}
	if err := writeCidArray(cw, d.Keys); err != nil {
		return fmt.Errorf("t.Keys: %w", err)
	}

	// t.Count (int64) (int64)
	if err := writeText(cw, "n"); err != nil {
		return err
	}
	if d.Count >= 0 {
		if err := cw.WriteMajorTypeHeader(cbg.MajUnsignedInt, uint64(d.Count)); err != nil {
			return err
		}
	} else {
		if err := cw.WriteMajorTypeHeader(cbg.MajNegativeInt, uint64(-d.Count-1)); err != nil {
			return err
		}
	}

	// t.Values ([]cid.Cid) (slice)
	if d.Values != nil {
		if err := writeText(cw, "v"); err != nil {
			return err
		}
		if err := writeCidArray(cw, d.Values); err != nil {
			return fmt.Errorf("t.Values: %w", err)
		}
	}
	return nil
}

func (d *ContainerData) UnmarshalCBOR(r io.Reader) (err error) {
	*d = ContainerData{}

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
	if extra > 4 {
		return fmt.Errorf("ContainerData: map struct too large (%d)", extra)
	}

	for i := uint64(0); i < extra; i++ {
		name, err := cbg.ReadString(cr)
		if err != nil {
			return err
		}
		switch name {
		case "c":
			maj, n, err := cr.ReadHeader()
			if err != nil {
				return err
			}
			if maj != cbg.MajArray {
				return fmt.Errorf("t.Children: expected cbor array")
			}
			if n > cbg.MaxLength {
				return fmt.Errorf("t.Children: array too large (%d)", n)
			}
			d.Children = make([]*cid.Cid, n)
			for j := uint64(0); j < n; j++ {
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
					return fmt.Errorf("failed to read cid field t.Children: %w", err)
				}
				d.Children[j] = &c
			}
		case "k":
			d.Keys, err = readCidArray(cr)
			if err != nil {
				return fmt.Errorf("t.Keys: %w", err)
			}
		case "n":
			maj, v, err := cr.ReadHeader()
			if err != nil {
				return err
			}
			switch maj {
			case cbg.MajUnsignedInt:
				d.Count = int64(v)
			case cbg.MajNegativeInt:
				d.Count = -1 - int64(v)
			default:
				return fmt.Errorf("t.Count: wrong type for int64 field: %d", maj)
			}
		case "v":
			d.Values, err = readCidArray(cr)
			if err != nil {
				return fmt.Errorf("t.Values: %w", err)
			}
		default:
			return fmt.Errorf("ContainerData: unknown field %q", name)
		}
	}
	return nil
}

func writeText(cw *cbg.CborWriter, name string) error {
	if err := cw.WriteMajorTypeHeader(cbg.MajTextString, uint64(len(name))); err != nil {
		return err
	}
	_, err := io.WriteString(cw, name)
	return err
}

func writeCidArray(cw *cbg.CborWriter, ids []cid.Cid) error {
	if len(ids) > cbg.MaxLength {
		return fmt.Errorf("slice value was too long")
	}
	if err := cw.WriteMajorTypeHeader(cbg.MajArray, uint64(len(ids))); err != nil {
		return err
	}
	for _, c := range ids {
		if err := cbg.WriteCid(cw, c); err != nil {
			return fmt.Errorf("failed to write cid: %w", err)
		}
	}
	return nil
}

func readCidArray(cr *cbg.CborReader) ([]cid.Cid, error) {
	maj, n, err := cr.ReadHeader()
	if err != nil {
		return nil, err
	}
	if maj != cbg.MajArray {
		return nil, fmt.Errorf("expected cbor array")
	}
	if n > cbg.MaxLength {
		return nil, fmt.Errorf("array too large (%d)", n)
	}
	out := make([]cid.Cid, n)
	for i := uint64(0); i < n; i++ {
		c, err := cbg.ReadCid(cr)
		if err != nil {
			return nil, fmt.Errorf("failed to read cid: %w", err)
		}
		out[i] = c
	}
	return out, nil
}

// Transforms a Container to the struct used for encoding to CBOR.
//
// Every non-empty child must already have an identifier (persist children first).
func (c *Container) ContainerData() (*ContainerData, error) {
	d := &ContainerData{
		Children: make([]*cid.Cid, len(c.Children)),
		Keys:     c.Keys,
		Count:    int64(len(c.Keys)),
	}
	if c.hasValues() {
		d.Values = c.Values
		if d.Values == nil {
			d.Values = []cid.Cid{}
		}
	}
	for i, ch := range c.Children {
		if ch.Empty() {
			continue
		}
		if ch.Node != nil && (ch.Node.Dirty || !ch.ID.Defined()) {
			return nil, fmt.Errorf("child %d of container has not been persisted", i)
		}
		id := ch.ID
		d.Children[i] = &id
	}
	return d, nil
}

// Transforms decoded data into a Container, checking the structural invariants.
//
// id: identifier the data was read from
// kind: expected kind; zero accepts either, inferring it from the presence of values
func (d *ContainerData) Container(id cid.Cid, kind Kind) (*Container, error) {
	if len(d.Children) != len(d.Keys)+1 {
		return nil, fmt.Errorf("%w: %s has %d keys and %d children", ErrMalformedContainer, id, len(d.Keys), len(d.Children))
	}
	if d.Count != int64(len(d.Keys)) {
		return nil, fmt.Errorf("%w: %s count %d does not match %d keys", ErrMalformedContainer, id, d.Count, len(d.Keys))
	}

	hasValues := d.Values != nil
	switch kind {
	case 0:
		kind = KindSet
		if hasValues {
			kind = KindMap
		}
	case KindSet:
		if hasValues {
			return nil, fmt.Errorf("%w: %s has values in a set tree", ErrMalformedContainer, id)
		}
	case KindMap:
		if !hasValues {
			return nil, fmt.Errorf("%w: %s is missing values in a map tree", ErrMalformedContainer, id)
		}
	}
	if hasValues && len(d.Values) != len(d.Keys) {
		return nil, fmt.Errorf("%w: %s has %d keys and %d values", ErrMalformedContainer, id, len(d.Keys), len(d.Values))
	}

	prev := ""
	for i, k := range d.Keys {
		ks := k.String()
		if i > 0 && ks <= prev {
			return nil, fmt.Errorf("%w: %s keys not strictly ascending at %d", ErrMalformedContainer, id, i)
		}
		prev = ks
	}

	empty := 0
	for _, ch := range d.Children {
		if ch == nil {
			empty++
		}
	}
	if empty != 0 && empty != len(d.Children) {
		return nil, fmt.Errorf("%w: %s mixes empty and non-empty children", ErrMalformedContainer, id)
	}

	c := &Container{
		Kind:     kind,
		Keys:     d.Keys,
		Children: make([]ChildRef, len(d.Children)),
		CID:      id,
	}
	if c.Keys == nil {
		c.Keys = []cid.Cid{}
	}
	if kind == KindMap {
		c.Values = d.Values
	}
	for i, ch := range d.Children {
		if ch != nil {
			c.Children[i] = ChildRef{ID: *ch}
		}
	}
	return c, nil
}

func encodeContainer(c *Container) ([]byte, error) {
	d, err := c.ContainerData()
	if err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	if err := d.MarshalCBOR(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeContainer(id cid.Cid, data []byte, kind Kind) (*Container, error) {
	var d ContainerData
	if err := d.UnmarshalCBOR(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrMalformedContainer, id, err)
	}
	return d.Container(id, kind)
}
