// Package userop owns the UserOp content-addressed record and its
// persisted four-state lifecycle index (spec section 4.3).
//
// Grounded on
// _examples/original_source/v3_bridges/sentinel/src/lib/user_ops/user_op_flag.rs
// (bitset + total order) and user_op_list.rs
// (handle_is_not_in_list/handle_is_in_list/process_op/process_ops, renamed
// Process/ProcessBatch to match spec section 4.3's operation names) and
// user_ops.rs (from_sub_mat dual-address dispatch).
package userop

// State is one of the four UserOp lifecycle states (spec section 3.4).
type State int

const (
	StateWitnessed State = iota + 1
	StateEnqueued
	StateExecuted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateWitnessed:
		return "witnessed"
	case StateEnqueued:
		return "enqueued"
	case StateExecuted:
		return "executed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unset"
	}
}

// rank gives the total order of spec section 3.4: Witnessed < Enqueued <
// {Executed, Cancelled}. Executed and Cancelled share a rank so neither
// dominates the other, matching "incomparable; each dominates Enqueued".
func (s State) rank() int {
	switch s {
	case StateWitnessed:
		return 0
	case StateEnqueued:
		return 1
	case StateExecuted, StateCancelled:
		return 2
	default:
		return -1
	}
}

// StrictlyAfter reports whether s is a valid forward transition from prev:
// s must outrank prev. Equal-or-regressing transitions (including
// Executed<->Cancelled, which are incomparable) are not strictly after.
func (s State) StrictlyAfter(prev State) bool { return s.rank() > prev.rank() }

// Flag is the bit-packed record of every state ever observed for one uid
// (spec section 3.5): bit 0 witnessed, bit 1 enqueued, bit 2 executed, bit
// 3 cancelled.
type Flag uint8

const (
	FlagWitnessed Flag = 1 << 0
	FlagEnqueued  Flag = 1 << 1
	FlagExecuted  Flag = 1 << 2
	FlagCancelled Flag = 1 << 3
)

func flagForState(s State) Flag {
	switch s {
	case StateWitnessed:
		return FlagWitnessed
	case StateEnqueued:
		return FlagEnqueued
	case StateExecuted:
		return FlagExecuted
	case StateCancelled:
		return FlagCancelled
	default:
		return 0
	}
}

// Set ORs in the bit for s, matching UserOpFlag::set_flag.
func (f Flag) Set(s State) Flag { return f | flagForState(s) }

// IsSet reports whether s was ever observed.
func (f Flag) IsSet(s State) bool { return f&flagForState(s) != 0 }
