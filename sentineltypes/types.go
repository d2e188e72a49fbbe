// Package sentineltypes holds the small value types shared across every
// package in the module: network identifiers, bridge sides and the byte
// widths the wire formats of spec section 6 are built from.
package sentineltypes

import (
	"encoding/hex"
	"fmt"
)

// NetworkID is the 4-byte chain identifier used throughout user-operation
// identity tuples and event payloads (spec section 3.3 / 6).
type NetworkID [4]byte

func (n NetworkID) String() string {
	return "0x" + hex.EncodeToString(n[:])
}

// NetworkIDFromBytes copies b into a NetworkID, returning an error unless
// b is exactly 4 bytes long.
func NetworkIDFromBytes(b []byte) (NetworkID, error) {
	var n NetworkID
	if len(b) != 4 {
		return n, fmt.Errorf("network id must be 4 bytes, got %d", len(b))
	}
	copy(n[:], b)
	return n, nil
}

// BridgeSide identifies which of the two paired chains a state transition
// was observed on (spec glossary: "Bridge side").
type BridgeSide uint8

const (
	// SideUnknown is the zero value and should never be persisted.
	SideUnknown BridgeSide = iota
	// SideNative is the chain on which user operations originate.
	SideNative
	// SideHost is the paired chain on which user operations are enqueued,
	// executed or cancelled.
	SideHost
)

func (s BridgeSide) String() string {
	switch s {
	case SideNative:
		return "native"
	case SideHost:
		return "host"
	default:
		return "unknown"
	}
}

// Opposite returns the other side of the bridge. Calling it on
// SideUnknown is a programmer error and panics, matching the teacher's
// convention of panicking only on invariant violations that indicate a bug
// rather than bad external input.
func (s BridgeSide) Opposite() BridgeSide {
	switch s {
	case SideNative:
		return SideHost
	case SideHost:
		return SideNative
	default:
		panic("sentineltypes: Opposite called on SideUnknown")
	}
}
