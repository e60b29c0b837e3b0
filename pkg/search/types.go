// Package search implements the concurrent PUCT tree-search core shared by
// the engine's playout loop, supervisor, and root preparation. It has no
// notion of board rules, move legality, or SGF/GTP I/O — those are supplied
// by the caller through the Board, History, and Evaluator interfaces in
// evaluator.go and board.go.
package search

import (
	"github.com/google/uuid"
)

// Player identifies a side to move. The zero value is not a valid player.
type Player int8

const (
	Black Player = 1
	White Player = -1
)

// Opp returns the opposing player.
func (p Player) Opp() Player {
	return -p
}

func (p Player) String() string {
	switch p {
	case Black:
		return "black"
	case White:
		return "white"
	default:
		return "empty"
	}
}

// Loc encodes a move location the same way the external Board does: a
// nonnegative board index, or one of the two sentinel values below.
type Loc int32

const (
	PassLoc   Loc = -1
	NullLoc   Loc = -2
)

// Hash128 is the search core's 128-bit identity type: position hashes,
// graph hashes, and pattern-bonus hashes are all this shape. It is backed
// by uuid.UUID purely for its [16]byte layout and fast equality/zero checks,
// not because positions are UUIDs.
type Hash128 uuid.UUID

var ZeroHash128 Hash128

func (h Hash128) IsZero() bool {
	return h == ZeroHash128
}

// XOR combines two hashes, used to build the non-graph-search per-node
// identity (positionHash XOR random128) and to salt derived indices.
func (h Hash128) XOR(o Hash128) Hash128 {
	var r Hash128
	for i := range r {
		r[i] = h[i] ^ o[i]
	}
	return r
}

// RandomHash128 draws a new random 128-bit value from the process CSPRNG.
// Used for non-graph-search node identity salts, where per-thread
// reproducibility is not required (§4.C).
func RandomHash128() Hash128 {
	return Hash128(uuid.New())
}
