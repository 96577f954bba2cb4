package chunktree

import (
	"fmt"
)

// Shape of the containers in a tree. Sets store keys only; maps store a value alongside each key.
type Kind int

const (
	KindSet Kind = iota + 1
	KindMap
)

const (
	tagSet = "set"
	tagMap = "map"
)

func (k Kind) String() string {
	switch k {
	case KindSet:
		return tagSet
	case KindMap:
		return tagMap
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func ParseKind(tag string) (Kind, error) {
	switch tag {
	case tagSet:
		return KindSet, nil
	case tagMap:
		return KindMap, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, tag)
	}
}

// Allowed degree range for each kind.
func (k Kind) degreeBounds() (int, int) {
	if k == KindMap {
		return 2, 10
	}
	return 1, 10
}

func validateDegree(k Kind, degree int) error {
	lo, hi := k.degreeBounds()
	if degree < lo || degree > hi {
		return fmt.Errorf("%w: %s degree %d not in [%d, %d]", ErrInvalidDegree, k, degree, lo, hi)
	}
	return nil
}
