// Package equipment drives the physical relay outputs and is the source of
// truth for equipment state. Nothing is cached here: every read goes to the
// hardware line.
package equipment

import (
	"errors"
	"fmt"
)

// ErrUnknownKind is returned for equipment identifiers outside the closed
// kind set.
var ErrUnknownKind = errors.New("unknown equipment kind")

// Kind identifies one piece of controlled equipment.
type Kind string

const (
	KindBlower      Kind = "blower"
	KindVibrofeeder Kind = "vibrofeeder"
)

// Kinds returns all valid equipment kinds in a stable order.
func Kinds() []Kind {
	return []Kind{KindBlower, KindVibrofeeder}
}

// ParseKind validates an equipment identifier.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindBlower, KindVibrofeeder:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}
