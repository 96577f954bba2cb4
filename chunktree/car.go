package chunktree

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bluesky-social/peerchunk/chunk"

	"github.com/ipfs/go-cid"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	cbor "github.com/ipfs/go-ipld-cbor"
	car "github.com/ipld/go-car"
	carv2 "github.com/ipld/go-car/v2"
)

// Writes a CARv1 snapshot of a collection: the descriptor chunk is the single root and comes first, followed by every container of the tree in pre-order. Key and value chunks are not included.
func ExportCAR(ctx context.Context, w io.Writer, st *chunk.Store, descID cid.Cid, owner string) error {
	ctx, span := tracer.Start(ctx, "ExportCAR")
	defer span.End()

	d, err := LoadDescriptor(ctx, st, descID, owner)
	if err != nil {
		return err
	}
	kind, err := ParseKind(d.Type)
	if err != nil {
		return err
	}
	descData, err := st.Get(ctx, descID, owner)
	if err != nil {
		return err
	}

	if err := writeCarHeader(w, descID); err != nil {
		return fmt.Errorf("failed to write car header: %w", err)
	}
	if _, err := ldWrite(w, descID.Bytes(), descData); err != nil {
		return fmt.Errorf("failed to write descriptor block: %w", err)
	}

	t := &tree{kind: kind, degree: d.Degree, store: st, owner: owner, root: d.Root}
	return t.walk(ctx, func(n *Container, _ int) error {
		data, err := st.Get(ctx, n.CID, owner)
		if err != nil {
			return err
		}
		if _, err := ldWrite(w, n.CID.Bytes(), data); err != nil {
			return fmt.Errorf("failed to write block: %w", err)
		}
		return nil
	})
}

// Reads a CAR snapshot into the block store, verifying every block against its identifier. Returns the root, which for snapshots written by ExportCAR is the descriptor chunk.
func ImportCAR(ctx context.Context, r io.Reader, bs blockstore.Blockstore) (cid.Cid, error) {
	br, err := carv2.NewBlockReader(r)
	if err != nil {
		return cid.Undef, err
	}
	if len(br.Roots) != 1 {
		return cid.Undef, fmt.Errorf("CAR file has %d roots, expected one", len(br.Roots))
	}

	for {
		blk, err := br.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return cid.Undef, err
		}
		if err := chunk.Verify(blk.Cid(), blk.RawData()); err != nil {
			return cid.Undef, err
		}
		if err := bs.Put(ctx, blk); err != nil {
			return cid.Undef, err
		}
	}
	return br.Roots[0], nil
}

func writeCarHeader(w io.Writer, root cid.Cid) error {
	h := &car.CarHeader{
		Roots:   []cid.Cid{root},
		Version: 1,
	}
	hb, err := cbor.DumpObject(h)
	if err != nil {
		return err
	}
	_, err = ldWrite(w, hb)
	return err
}

// Writes a varint length prefix followed by the concatenation of d.
func ldWrite(w io.Writer, d ...[]byte) (int64, error) {
	var sum uint64
	for _, s := range d {
		sum += uint64(len(s))
	}

	buf := make([]byte, 8)
	n := binary.PutUvarint(buf, sum)
	nw, err := w.Write(buf[:n])
	if err != nil {
		return 0, err
	}

	for _, s := range d {
		onw, err := w.Write(s)
		if err != nil {
			return int64(nw), err
		}
		nw += onw
	}

	return int64(nw), nil
}
