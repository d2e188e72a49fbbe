// Package dictionary implements the immutable-shape, mutable-content
// lookup table of spec section 3.8: a token<->token pairing with its fee
// basis points and a running accrued-fees total, read by the fee engine and
// transaction builder and mutated only by the core inside the same
// transaction that accrues fees (spec.md "The dictionary is mutated only by
// the core, inside the same transaction that accrues fees").
//
// Grounded on
// _examples/original_source/int_on_evm/src/evm/account_for_fees.rs's use of
// EthEvmTokenDictionary (looked up by either side's token address,
// incremented via increment_accrued_fees_and_save_in_db).
package dictionary

import (
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/pnetwork-association/sentinel-core/db"
)

// Entry pairs an origin-chain token with its destination-chain
// counterpart, the fee basis points charged on transfers of this token
// pair, and the running accrued-fees total.
type Entry struct {
	OriginTokenAddress      common.Address
	DestinationTokenAddress common.Address
	FeeBasisPoints          uint64
	AccruedFees             *uint256.Int
}

func entryKey(addr common.Address) db.Key {
	return db.PrefixedKey("dictionary/" + addr.Hex())
}

func destIndexKey(addr common.Address) db.Key {
	return db.PrefixedKey("dictionary/by_dest/" + addr.Hex())
}

// Table is the dictionary collaborator backed by a db.Database. Like
// userop.Store it is constructed around either the top-level db.Store or an
// open db.Transaction so the pipeline can mutate it atomically alongside
// everything else in a submitted batch.
type Table struct {
	backend db.Database
}

func NewTable(backend db.Database) *Table { return &Table{backend: backend} }

// Put stores e, indexed by both its origin and destination token
// addresses so GetByEitherAddress can find it from either side of the
// bridge.
func (t *Table) Put(e *Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := t.backend.Put(entryKey(e.OriginTokenAddress), b, db.MinSensitivity); err != nil {
		return err
	}
	return t.backend.Put(destIndexKey(e.DestinationTokenAddress), e.OriginTokenAddress.Bytes(), db.MinSensitivity)
}

// GetByOrigin looks up an entry by its origin-chain token address.
func (t *Table) GetByOrigin(origin common.Address) (*Entry, error) {
	raw, err := t.backend.Get(entryKey(origin), db.MinSensitivity)
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// GetByEitherAddress looks up an entry by either its origin or destination
// token address, matching EthEvmTokenDictionary's two-sided lookup.
func (t *Table) GetByEitherAddress(addr common.Address) (*Entry, error) {
	e, err := t.GetByOrigin(addr)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, db.ErrKeyNotFound) {
		return nil, err
	}
	originBytes, indexErr := t.backend.Get(destIndexKey(addr), db.MinSensitivity)
	if indexErr != nil {
		return nil, err
	}
	return t.GetByOrigin(common.BytesToAddress(originBytes))
}

// IncrementAccruedFees adds delta to the entry's running accrued-fees total
// (grounded on increment_accrued_fees_and_save_in_db), looked up from
// either side of the pair.
func (t *Table) IncrementAccruedFees(tokenAddress common.Address, delta *uint256.Int) error {
	e, err := t.GetByEitherAddress(tokenAddress)
	if err != nil {
		return err
	}
	if e.AccruedFees == nil {
		e.AccruedFees = uint256.NewInt(0)
	}
	e.AccruedFees = new(uint256.Int).Add(e.AccruedFees, delta)
	return t.Put(e)
}
