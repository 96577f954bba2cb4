// Package peer moves chunks between peers over HTTP.
//
// A Server exposes the chunks in a local store at GET /chunks/{cid}. A Fetcher resolves an owner name to that peer's base URL through a Directory and requests chunks from it; it implements chunk.PeerFetcher, so a chunk.Store configured with a Fetcher falls back to the owning peer on local misses. The Fetcher doesn't verify what it receives: the Store re-hashes every remote chunk before use.
package peer
