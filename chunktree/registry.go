package chunktree

import (
	"context"
	"fmt"
	"sync"

	"github.com/bluesky-social/peerchunk/chunk"

	"github.com/ipfs/go-cid"
)

// Operations common to every collection type.
type Collection interface {
	Has(ctx context.Context, key cid.Cid) (bool, error)
	Delete(ctx context.Context, key cid.Cid) error
	IsEmpty() bool
	Len(ctx context.Context) (int, error)
	Root() cid.Cid
	Descriptor() Descriptor
	ForEach(ctx context.Context, fn func(e Element) error) error
}

// Opens a collection from its descriptor.
type OpenFunc func(ctx context.Context, st *chunk.Store, d Descriptor, owner string) (Collection, error)

var (
	registryLk sync.RWMutex
	registry   = map[string]OpenFunc{
		tagSet: func(ctx context.Context, st *chunk.Store, d Descriptor, owner string) (Collection, error) {
			s, err := OpenSet(st, d, owner)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		tagMap: func(ctx context.Context, st *chunk.Store, d Descriptor, owner string) (Collection, error) {
			m, err := OpenMap(st, d, owner)
			if err != nil {
				return nil, err
			}
			return m, nil
		},
	}
)

// Registers an additional collection type under tag. The built-in "set" and "map" tags can't be replaced.
func Register(tag string, fn OpenFunc) error {
	if tag == tagSet || tag == tagMap {
		return fmt.Errorf("collection type %q is built in", tag)
	}
	registryLk.Lock()
	defer registryLk.Unlock()
	registry[tag] = fn
	return nil
}

// Opens the collection a descriptor refers to, dispatching on its type tag.
func Open(ctx context.Context, st *chunk.Store, d Descriptor, owner string) (Collection, error) {
	registryLk.RLock()
	fn, ok := registry[d.Type]
	registryLk.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, d.Type)
	}
	return fn(ctx, st, d, owner)
}
