package userop

import (
	"encoding/json"
	"errors"

	"github.com/pnetwork-association/sentinel-core/db"
)

// listKey is the single domain-prefixed key the whole uid index lives
// under, mirroring db_utils.rs's get_prefixed_db_key convention.
var listKey = db.PrefixedKey("USER_OP_LIST")

func opKey(uid [32]byte) db.Key { return db.KeyFromHash(uid) }

// Store persists Ops and the uid List behind a db.Database. It is
// constructed fresh around either the top-level db.Store or an open
// db.Transaction, so package pipeline can run a whole batch's Process calls
// inside one transaction.
type Store struct {
	backend db.Database
}

func NewStore(backend db.Database) *Store { return &Store{backend: backend} }

func (s *Store) loadList() (*List, error) {
	raw, err := s.backend.Get(listKey, db.MinSensitivity)
	if errors.Is(err, db.ErrKeyNotFound) {
		return &List{}, nil
	}
	if err != nil {
		return nil, err
	}
	var l List
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) saveList(l *List) error {
	b, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return s.backend.Put(listKey, b, db.MinSensitivity)
}

func (s *Store) loadOp(uid [32]byte) (*Op, error) {
	raw, err := s.backend.Get(opKey(uid), db.MinSensitivity)
	if err != nil {
		return nil, err
	}
	var op Op
	if err := json.Unmarshal(raw, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

func (s *Store) saveOp(uid [32]byte, op *Op) error {
	b, err := json.Marshal(op)
	if err != nil {
		return err
	}
	return s.backend.Put(opKey(uid), b, db.MinSensitivity)
}

// Process ingests one observation of op (spec section 4.3, grounded on
// process_op). If the uid is new, the op and an index entry are persisted;
// if it was Enqueued with no prior record at all, the op is returned to the
// caller so it can be signed for cancellation ("enqueued but never
// witnessed" is the one case the teacher flags as needing a defensive
// cancel). If the uid is already known, the two states are merged:
// identity and original witnessed provenance are kept from the stored op,
// the state fields move forward only if the new state strictly outranks
// the stored one.
func (s *Store) Process(op *Op) (*Op, error) {
	list, err := s.loadList()
	if err != nil {
		return nil, err
	}
	uid, err := op.UID()
	if err != nil {
		return nil, err
	}

	entry := list.find(uid)
	if entry == nil {
		return s.appendNew(list, op, uid)
	}
	if err := s.mergeExisting(op, uid, entry); err != nil {
		return nil, err
	}
	return nil, s.saveList(list)
}

func (s *Store) appendNew(list *List, op *Op, uid [32]byte) (*Op, error) {
	ts := op.WitnessedTimestamp
	if ts == 0 {
		ts = op.StateBlockTimestamp
	}
	list.Entries = append(list.Entries, ListEntry{
		Uid:                     uid,
		FirstWitnessedTimestamp: ts,
		Flag:                    flagForState(op.State),
	})
	if err := s.saveOp(uid, op); err != nil {
		return nil, err
	}
	if err := s.saveList(list); err != nil {
		return nil, err
	}
	if op.State == StateEnqueued {
		return op, nil
	}
	return nil, nil
}

func (s *Store) mergeExisting(op *Op, uid [32]byte, entry *ListEntry) error {
	stored, err := s.loadOp(uid)
	if err != nil {
		return err
	}
	entry.Flag = entry.Flag.Set(op.State)
	if !op.State.StrictlyAfter(stored.State) {
		return nil
	}
	stored.State = op.State
	stored.StateSide = op.StateSide
	stored.StateTxHash = op.StateTxHash
	stored.StateBlockTimestamp = op.StateBlockTimestamp
	return s.saveOp(uid, stored)
}

// ProcessBatch runs Process over every op in order, collecting the ops that
// must be submitted for cancellation (spec section 4.3, grounded on
// process_ops).
func (s *Store) ProcessBatch(ops []*Op) ([]*Op, error) {
	var toCancel []*Op
	for _, op := range ops {
		cancel, err := s.Process(op)
		if err != nil {
			return nil, err
		}
		if cancel != nil {
			toCancel = append(toCancel, cancel)
		}
	}
	return toCancel, nil
}

// Get returns the persisted Op for uid, or db.ErrKeyNotFound if it has
// never been processed.
func (s *Store) Get(uid [32]byte) (*Op, error) { return s.loadOp(uid) }

// List returns the full uid index, primarily for tests and debug tooling.
func (s *Store) List() (*List, error) { return s.loadList() }
