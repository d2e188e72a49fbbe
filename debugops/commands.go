package debugops

import (
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pnetwork-association/sentinel-core/chainstore"
	"github.com/pnetwork-association/sentinel-core/db"
	"github.com/pnetwork-association/sentinel-core/sentineltypes"
	"github.com/pnetwork-association/sentinel-core/submission"
)

func nonceKey(networkID sentineltypes.NetworkID) db.Key {
	return db.PrefixedKey("debug_account_nonce/" + networkID.String())
}

func gasPriceKey(networkID sentineltypes.NetworkID) db.Key {
	return db.PrefixedKey("debug_gas_price/" + networkID.String())
}

// ResetChain re-anchors store at m with the given canon-to-tip length,
// requiring a signature over the new anchor's block hash followed by
// canonToTipLength as 8 big-endian bytes (spec section 6, grounded on
// chainstore.Store.Reset).
func (c *Commands) ResetChain(store chainstore.ChainStore, m *submission.Material, canonToTipLength uint64, sig []byte) error {
	args := append(append([]byte{}, m.BlockHash.Bytes()...), encodeUint64(canonToTipLength)...)
	if _, err := c.authenticate("ResetChain", args, sig); err != nil {
		return err
	}
	return store.Reset(m, canonToTipLength)
}

// SetAccountNonce overrides the stored account nonce for networkID,
// bypassing the usual "nonce increments by exactly len(signed_txs)"
// discipline (spec section 4.4: "unless explicitly overridden by an
// authenticated debug command").
func (c *Commands) SetAccountNonce(networkID sentineltypes.NetworkID, nonce uint64, sig []byte) error {
	args := append(append([]byte{}, networkID[:]...), encodeUint64(nonce)...)
	if _, err := c.authenticate("SetAccountNonce", args, sig); err != nil {
		return err
	}
	return c.backend.Put(nonceKey(networkID), encodeUint64(nonce), db.MinSensitivity)
}

// AccountNonce returns the account nonce most recently set for networkID.
func (c *Commands) AccountNonce(networkID sentineltypes.NetworkID) (uint64, error) {
	raw, err := c.backend.Get(nonceKey(networkID), db.MinSensitivity)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(raw), nil
}

// IncrementAccountNonce advances the stored nonce for networkID by count and
// returns the new value, the ordinary post-batch path every successful
// signing pass takes ("nonce increment must match the signed-tx count
// exactly"). Unlike SetAccountNonce this requires no signature: it is driven
// internally by package pipeline after a batch signs count transactions,
// never by an external debug caller.
func (c *Commands) IncrementAccountNonce(networkID sentineltypes.NetworkID, count uint64) (uint64, error) {
	current, err := c.AccountNonce(networkID)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			return 0, err
		}
		current = 0
	}
	next := current + count
	return next, c.backend.Put(nonceKey(networkID), encodeUint64(next), db.MinSensitivity)
}

// SetGasPrice overrides the configured gas price for networkID.
func (c *Commands) SetGasPrice(networkID sentineltypes.NetworkID, gasPrice *big.Int, sig []byte) error {
	args := append(append([]byte{}, networkID[:]...), gasPrice.Bytes()...)
	if _, err := c.authenticate("SetGasPrice", args, sig); err != nil {
		return err
	}
	return c.backend.Put(gasPriceKey(networkID), gasPrice.Bytes(), db.MinSensitivity)
}

// GasPrice returns the gas price most recently set for networkID.
func (c *Commands) GasPrice(networkID sentineltypes.NetworkID) (*big.Int, error) {
	raw, err := c.backend.Get(gasPriceKey(networkID), db.MinSensitivity)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

// ForceReprocessBlock re-runs reprocess (normally wired to
// pipeline.ProcessBatch for the block's existing material) with fee
// accrual suppressed, matching the "some reprocess paths intentionally do
// not accrue fees" behaviour spec.md §9 calls out as
// ProcessBatchRequest.SkipFeeAccrual.
func (c *Commands) ForceReprocessBlock(blockHash common.Hash, sig []byte, reprocess func(skipFeeAccrual bool) error) error {
	args := blockHash.Bytes()
	if _, err := c.authenticate("ForceReprocessBlock", args, sig); err != nil {
		return err
	}
	return reprocess(true)
}

func encodeUint64(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b[:]
}
