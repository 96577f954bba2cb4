package chunk

import (
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// CID prefixes for the two chunk codecs. Tree nodes and descriptors are DAG-CBOR; opaque payloads are raw.
var (
	NodePrefix = cid.NewPrefixV1(cid.DagCBOR, multihash.SHA2_256)
	RawPrefix  = cid.NewPrefixV1(cid.Raw, multihash.SHA2_256)
)

// Parses the string form of an identifier.
//
// An empty string means "no chunk" and returns cid.Undef with no error. Anything else must decode as a CIDv1 with a supported codec and a SHA-256 multihash.
func ParseIdentifier(s string) (cid.Cid, error) {
	if s == "" {
		return cid.Undef, nil
	}
	c, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: %q: %v", ErrInvalidIdentifier, s, err)
	}
	if err := ValidateIdentifier(c); err != nil {
		return cid.Undef, err
	}
	return c, nil
}

// Checks that a CID is usable as a chunk identifier.
func ValidateIdentifier(c cid.Cid) error {
	if !c.Defined() {
		return fmt.Errorf("%w: undefined", ErrInvalidIdentifier)
	}
	p := c.Prefix()
	if p.Version != 1 {
		return fmt.Errorf("%w: unsupported CID version %d", ErrInvalidIdentifier, p.Version)
	}
	if p.Codec != cid.DagCBOR && p.Codec != cid.Raw {
		return fmt.Errorf("%w: unsupported codec 0x%x", ErrInvalidIdentifier, p.Codec)
	}
	if p.MhType != multihash.SHA2_256 || p.MhLength != 32 {
		return fmt.Errorf("%w: unsupported multihash 0x%x/%d", ErrInvalidIdentifier, p.MhType, p.MhLength)
	}
	return nil
}

// Computes the identifier for bytes stored with the given codec.
func Sum(codec uint64, data []byte) (cid.Cid, error) {
	return cid.NewPrefixV1(codec, multihash.SHA2_256).Sum(data)
}

// Re-hashes data with the identifier's own prefix and checks that the result reproduces the identifier.
func Verify(id cid.Cid, data []byte) error {
	got, err := id.Prefix().Sum(data)
	if err != nil {
		return fmt.Errorf("hashing chunk %s: %w", id, err)
	}
	if !got.Equals(id) {
		return fmt.Errorf("%w: expected %s, got %s", ErrCorruptChunk, id, got)
	}
	return nil
}

// Orders identifiers as opaque strings.
func Compare(a, b cid.Cid) int {
	return strings.Compare(a.String(), b.String())
}
