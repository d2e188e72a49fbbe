// Package feeengine computes and accrues bridge fees (spec section 4.4
// "Fees"): fee = amount * basis_points / 10_000, erroring rather than
// wrapping if the fee would consume the whole amount, and accruing the fee
// into the dictionary inside the same transaction that subtracts it from
// the outgoing amount.
//
// Grounded on
// _examples/original_source/int_on_evm/src/evm/account_for_fees.rs: the
// FeeCalculator/FeesCalculator trait pair (GetAmount/SubtractAmount,
// GetFees/SubtractFees) becomes Fee/Subtract here, and the
// update_accrued_fees_in_dictionary_and_return_state +
// account_for_fees_in_eth_tx_infos_in_state pairing becomes the two
// composable steps Accrue then Subtract, tied together by Apply.
package feeengine

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/pnetwork-association/sentinel-core/dictionary"
	"github.com/pnetwork-association/sentinel-core/sentinelerr"
)

// TxInfo is the minimal shape feeengine needs from a tx-info builder's
// output: which token is moving, and how much of it.
type TxInfo struct {
	TokenAddress common.Address
	Amount       *uint256.Int
}

// basisPointsDenominator is the fixed-point scale fee basis points are
// expressed against.
const basisPointsDenominator = 10_000

// Fee computes amount * bps / 10_000 with full 256-bit precision, erroring
// (spec.md "Boundary behaviour": "Fee subtraction with fee >= amount must
// error, not wrap") rather than ever returning a fee that would consume the
// entire amount.
func Fee(amount *uint256.Int, bps uint64) (*uint256.Int, error) {
	if amount == nil || amount.IsZero() || bps == 0 {
		return uint256.NewInt(0), nil
	}
	product := new(uint256.Int)
	overflow := product.MulOverflow(amount, uint256.NewInt(bps))
	if overflow {
		return nil, sentinelerr.New(sentinelerr.KindFeeExceedsAmount, "fee computation overflowed for amount %s at %d bps", amount, bps)
	}
	fee := new(uint256.Int).Div(product, uint256.NewInt(basisPointsDenominator))
	if fee.Cmp(amount) >= 0 {
		return nil, sentinelerr.New(sentinelerr.KindFeeExceedsAmount, "fee %s >= amount %s at %d bps", fee, amount, bps)
	}
	return fee, nil
}

// Accrue adds each info's computed fee into the dictionary's running
// accrued-fees total for its token, grounded on
// update_accrued_fees_in_dictionary_and_return_state. A zero fee is not
// accrued.
func Accrue(dict *dictionary.Table, infos []TxInfo) error {
	for _, info := range infos {
		entry, err := dict.GetByEitherAddress(info.TokenAddress)
		if err != nil {
			return err
		}
		fee, err := Fee(info.Amount, entry.FeeBasisPoints)
		if err != nil {
			return err
		}
		if fee.IsZero() {
			continue
		}
		if err := dict.IncrementAccruedFees(info.TokenAddress, fee); err != nil {
			return err
		}
	}
	return nil
}

// Subtract returns infos with each entry's fee deducted from its amount,
// grounded on account_for_fees_in_eth_tx_infos_in_state.
func Subtract(dict *dictionary.Table, infos []TxInfo) ([]TxInfo, error) {
	out := make([]TxInfo, len(infos))
	for i, info := range infos {
		entry, err := dict.GetByEitherAddress(info.TokenAddress)
		if err != nil {
			return nil, err
		}
		fee, err := Fee(info.Amount, entry.FeeBasisPoints)
		if err != nil {
			return nil, err
		}
		if fee.IsZero() {
			out[i] = info
			continue
		}
		out[i] = TxInfo{
			TokenAddress: info.TokenAddress,
			Amount:       new(uint256.Int).Sub(info.Amount, fee),
		}
	}
	return out, nil
}

// Apply accrues then subtracts fees for infos (spec section 4.6), unless
// skipAccrual is set by a reprocess path
// (debugops.ForceReprocessBlock / ProcessBatchRequest.SkipFeeAccrual), in
// which case the amounts are still adjusted but nothing is added to the
// dictionary's running totals.
func Apply(dict *dictionary.Table, infos []TxInfo, skipAccrual bool) ([]TxInfo, error) {
	if !skipAccrual {
		if err := Accrue(dict, infos); err != nil {
			return nil, err
		}
	}
	return Subtract(dict, infos)
}
