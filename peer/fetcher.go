package peer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/bluesky-social/peerchunk/chunk"
	"github.com/bluesky-social/peerchunk/pkg/robusthttp"

	"github.com/ipfs/go-cid"
)

// Largest chunk a Fetcher will accept from a peer.
const MaxChunkSize = 2 << 20

// Fetches chunks from the peer that owns them, over HTTP.
type Fetcher struct {
	Directory *Directory
	Client    *http.Client
	UserAgent string

	log *slog.Logger
}

var _ chunk.PeerFetcher = (*Fetcher)(nil)

func NewFetcher(dir *Directory, client *http.Client) *Fetcher {
	if client == nil {
		client = robusthttp.NewClient()
	}
	return &Fetcher{
		Directory: dir,
		Client:    client,
		UserAgent: "peerchunk-fetcher",
		log:       slog.Default().With("system", "peer"),
	}
}

// Requests GET {base}/chunks/{id} from the owner's peer. An unknown owner or a 404 yields chunk.ErrNotFound.
func (f *Fetcher) FetchChunk(ctx context.Context, id cid.Cid, owner string) ([]byte, error) {
	base, ok := f.Directory.Lookup(owner)
	if !ok {
		peerFetches.WithLabelValues(owner, "unknown_owner").Inc()
		return nil, fmt.Errorf("%w: no address for peer %q", chunk.ErrNotFound, owner)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/chunks/"+id.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/octet-stream")
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		peerFetches.WithLabelValues(owner, "error").Inc()
		return nil, fmt.Errorf("requesting chunk from %s: %w", owner, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		peerFetches.WithLabelValues(owner, "not_found").Inc()
		return nil, fmt.Errorf("%w: %s at peer %s", chunk.ErrNotFound, id, owner)
	default:
		peerFetches.WithLabelValues(owner, "error").Inc()
		return nil, fmt.Errorf("peer %s returned HTTP %d for chunk %s", owner, resp.StatusCode, id)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxChunkSize+1))
	if err != nil {
		peerFetches.WithLabelValues(owner, "error").Inc()
		return nil, fmt.Errorf("reading chunk %s from %s: %w", id, owner, err)
	}
	if len(data) > MaxChunkSize {
		peerFetches.WithLabelValues(owner, "too_large").Inc()
		return nil, fmt.Errorf("chunk %s from %s exceeds %d bytes", id, owner, MaxChunkSize)
	}
	peerFetches.WithLabelValues(owner, "ok").Inc()
	f.log.Debug("fetched chunk from peer", "cid", id, "owner", owner, "size", len(data))
	return data, nil
}
