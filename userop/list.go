package userop

import "github.com/ethereum/go-ethereum/common"

// ListEntry is one row of the uid index: the uid, the timestamp of its
// first observation, and the bitset of every state ever observed for it.
// Equality between entries is defined only on Uid, matching
// UserOpListEntry's PartialEq in the Rust teacher.
type ListEntry struct {
	Uid                     common.Hash
	FirstWitnessedTimestamp uint64
	Flag                    Flag
}

// List is the persisted index of every uid ever processed, grounded on
// UserOpList. It is kept as a single JSON-encoded value rather than one row
// per uid so a lookup and an append commit atomically in one db.Put.
type List struct {
	Entries []ListEntry
}

// find returns a pointer into l.Entries for uid, or nil if absent. The
// pointer aliases the slice element so callers can mutate it in place.
func (l *List) find(uid common.Hash) *ListEntry {
	for i := range l.Entries {
		if l.Entries[i].Uid == uid {
			return &l.Entries[i]
		}
	}
	return nil
}

// Includes reports whether uid has ever been processed.
func (l *List) Includes(uid common.Hash) bool { return l.find(uid) != nil }
