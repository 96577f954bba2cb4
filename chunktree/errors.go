package chunktree

import (
	"errors"
)

var ErrInvalidDegree = errors.New("tree degree out of range")

var ErrDuplicateKey = errors.New("key already present in set")

var ErrKeyNotFound = errors.New("tree does not contain key")

var ErrReadOnlyTree = errors.New("tree is owned by a remote peer and is read-only")

var ErrMalformedContainer = errors.New("malformed tree container")

var ErrUnknownKind = errors.New("unknown collection type")
