/*
Package chunk implements handles to immutable, content-addressed blocks ("chunks").

A chunk is named by its identifier: a CIDv1 whose multihash is the SHA-256 of the block's bytes. Structured values are stored as DAG-CBOR; opaque byte payloads use the raw codec. Identifiers are ordered by their string form, which is the sort order used by the tree collections in the chunktree package.

A Store wraps a local blockstore. Reads are local-first; on a local miss, a chunk with a known owner is requested from that peer through a PeerFetcher, bounded by a timeout, and the returned bytes are re-hashed and compared with the identifier before they are trusted.
*/
package chunk
