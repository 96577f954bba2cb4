package chunk

import (
	"errors"
	"fmt"
)

var ErrInvalidIdentifier = errors.New("invalid chunk identifier")

var ErrNotFound = errors.New("chunk not found")

// Remote fetches which run out of time are a special case of not-found: errors.Is(ErrTimeout, ErrNotFound) is true.
var ErrTimeout = fmt.Errorf("chunk fetch timed out: %w", ErrNotFound)

var ErrCorruptChunk = errors.New("chunk bytes do not match identifier")
