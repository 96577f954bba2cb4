package chunk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	ipld "github.com/ipfs/go-ipld-format"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const DefaultFetchTimeout = 10 * time.Second

// Retrieves the raw bytes of a chunk from the peer which owns it. Implementations do not need to verify the bytes; the Store does that.
type PeerFetcher interface {
	FetchChunk(ctx context.Context, id cid.Cid, owner string) ([]byte, error)
}

// Content-addressed block store with local-first reads and an optional remote fallback for chunks owned by other peers.
//
// The Store is safe for concurrent use if the underlying blockstore and PeerFetcher are.
type Store struct {
	Blocks       blockstore.Blockstore
	Peers        PeerFetcher
	FetchTimeout time.Duration

	log *slog.Logger
}

type StoreOption func(*Store)

func WithPeers(p PeerFetcher) StoreOption {
	return func(s *Store) {
		s.Peers = p
	}
}

// Bounds each remote fetch. Non-positive values keep the default.
func WithFetchTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.FetchTimeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.log = logger
	}
}

func NewStore(bs blockstore.Blockstore, opts ...StoreOption) *Store {
	s := &Store{
		Blocks:       bs,
		FetchTimeout: DefaultFetchTimeout,
		log:          slog.Default().With("system", "chunk"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Writes bytes to the local block store under the identifier derived from hashing them with the given codec.
func (s *Store) Put(ctx context.Context, codec uint64, data []byte) (cid.Cid, error) {
	id, err := Sum(codec, data)
	if err != nil {
		return cid.Undef, err
	}
	blk, err := blocks.NewBlockWithCid(data, id)
	if err != nil {
		return cid.Undef, err
	}
	if err := s.Blocks.Put(ctx, blk); err != nil {
		return cid.Undef, fmt.Errorf("storing chunk %s: %w", id, err)
	}
	chunksStored.Inc()
	return id, nil
}

// Reports whether the chunk is present locally. Never consults peers.
func (s *Store) Has(ctx context.Context, id cid.Cid) (bool, error) {
	return s.Blocks.Has(ctx, id)
}

// Returns the bytes of a chunk.
//
// The local block store is consulted first. On a local miss, if owner is non-empty and the Store has a PeerFetcher, the chunk is requested from that peer and verified against the identifier. Remote chunks are not written to the local store.
func (s *Store) Get(ctx context.Context, id cid.Cid, owner string) ([]byte, error) {
	blk, err := s.Blocks.Get(ctx, id)
	if err == nil {
		fetchCount.WithLabelValues("local", "ok").Inc()
		return blk.RawData(), nil
	}
	if !ipld.IsNotFound(err) {
		fetchCount.WithLabelValues("local", "error").Inc()
		return nil, fmt.Errorf("reading chunk %s: %w", id, err)
	}
	if owner == "" || s.Peers == nil {
		fetchCount.WithLabelValues("local", "not_found").Inc()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.fetchRemote(ctx, id, owner)
}

func (s *Store) fetchRemote(ctx context.Context, id cid.Cid, owner string) ([]byte, error) {
	ctx, span := otel.Tracer("chunk").Start(ctx, "fetchRemote")
	defer span.End()
	span.SetAttributes(attribute.String("cid", id.String()), attribute.String("owner", owner))

	ctx, cancel := context.WithTimeout(ctx, s.FetchTimeout)
	defer cancel()

	start := time.Now()
	data, err := s.Peers.FetchChunk(ctx, id, owner)
	remoteFetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			fetchCount.WithLabelValues("remote", "timeout").Inc()
			return nil, fmt.Errorf("%w: %s from %s after %s", ErrTimeout, id, owner, s.FetchTimeout)
		}
		if errors.Is(err, ErrNotFound) {
			fetchCount.WithLabelValues("remote", "not_found").Inc()
			return nil, err
		}
		fetchCount.WithLabelValues("remote", "error").Inc()
		return nil, fmt.Errorf("fetching chunk %s from %s: %w", id, owner, err)
	}

	if err := Verify(id, data); err != nil {
		corruptChunks.Inc()
		fetchCount.WithLabelValues("remote", "corrupt").Inc()
		s.log.Warn("rejecting corrupt chunk from peer", "cid", id, "owner", owner, "size", len(data))
		return nil, err
	}
	fetchCount.WithLabelValues("remote", "ok").Inc()
	return data, nil
}
