// Package txbuilder implements the transaction / cancellation builder of
// spec section 4.4: canonical mint/pegOut/protocolCancel calldata, a
// nonce-per-index signing loop, and production of signed transactions
// against the destination chain.
//
// Grounded on
// _examples/original_source/v2_bridges/int_on_evm/src/evm/sign_txs.rs
// (to_eth_signed_tx/to_eth_signed_txs: nonce = start_nonce + i, zero value,
// destination is the vault contract) and
// v2_bridges/erc20_on_int/src/eth/sign_txs.rs (the mint-side calldata
// encoding), ported onto github.com/ethereum/go-ethereum/{accounts/abi,
// core/types, crypto} in place of the teacher's own EthTransaction type.
package txbuilder

import (
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const vaultABIJSON = `[
	{"type":"function","name":"mint","inputs":[
		{"name":"recipient","type":"address"},
		{"name":"tokenAddress","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"userData","type":"bytes"}
	]},
	{"type":"function","name":"pegOut","inputs":[
		{"name":"recipient","type":"address"},
		{"name":"tokenAddress","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"userData","type":"bytes"}
	]},
	{"type":"function","name":"protocolCancel","inputs":[
		{"name":"uid","type":"bytes32"}
	]}
]`

var vaultABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(vaultABIJSON))
	if err != nil {
		panic("txbuilder: invalid embedded ABI: " + err.Error())
	}
	vaultABI = parsed
}

// TransferInfo is the amount/recipient/token triple a mint or pegOut call
// encodes, already fee-adjusted by package feeengine.
type TransferInfo struct {
	Recipient    common.Address
	TokenAddress common.Address
	Amount       *big.Int
	UserData     []byte
}

// MintCalldata encodes a call to the vault's mint function.
func MintCalldata(info TransferInfo) ([]byte, error) {
	return vaultABI.Pack("mint", info.Recipient, info.TokenAddress, info.Amount, info.UserData)
}

// PegOutCalldata encodes a call to the vault's pegOut function.
func PegOutCalldata(info TransferInfo) ([]byte, error) {
	return vaultABI.Pack("pegOut", info.Recipient, info.TokenAddress, info.Amount, info.UserData)
}

// ProtocolCancelCalldata encodes a call cancelling the user op identified
// by uid (spec section 4.3's "enqueued but never witnessed" defensive
// cancel, and the state-manager/protocol cancel paths).
func ProtocolCancelCalldata(uid common.Hash) ([]byte, error) {
	return vaultABI.Pack("protocolCancel", uid)
}

// Builder signs calldata into transactions destined for one of a chain's
// two paired contracts (the vault, for mint/pegOut; the state manager, for
// protocolCancel, matching spec seed scenario 2's "a signed cancel
// transaction addressed to the state manager"), using a fixed gas
// price/limit and an EIP-155 signer for that chain id.
type Builder struct {
	ChainID             *big.Int
	VaultAddress        common.Address
	StateManagerAddress common.Address
	GasLimit            uint64
	GasPrice            *big.Int
	PrivateKey          *ecdsa.PrivateKey
}

func New(chainID *big.Int, vaultAddress, stateManagerAddress common.Address, gasLimit uint64, gasPrice *big.Int, privateKey *ecdsa.PrivateKey) *Builder {
	return &Builder{
		ChainID:             chainID,
		VaultAddress:        vaultAddress,
		StateManagerAddress: stateManagerAddress,
		GasLimit:            gasLimit,
		GasPrice:            gasPrice,
		PrivateKey:          privateKey,
	}
}

// sign wraps data in a zero-value legacy transaction to to and signs it
// with an EIP-155 signer for b.ChainID, matching
// EthTransaction::new_unsigned(...).sign(evm_private_key).
func (b *Builder) sign(nonce uint64, to common.Address, data []byte) (*types.Transaction, error) {
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: b.GasPrice,
		Gas:      b.GasLimit,
		To:       &to,
		Value:    big.NewInt(0),
		Data:     data,
	})
	return types.SignTx(tx, types.NewEIP155Signer(b.ChainID), b.PrivateKey)
}

// SignMintTxs builds and signs one mint transaction per info, with
// nonce = startNonce + index (spec section 4.4 "Nonce discipline"),
// grounded on to_eth_signed_txs's `start_nonce + i as u64` loop. If any
// call fails to encode or sign, no partial result is returned: the caller
// must not increment its nonce counter unless every transaction in the
// batch signed successfully (spec.md: "If the core fails to produce the
// expected number of signatures, the nonce is not incremented").
func (b *Builder) SignMintTxs(startNonce uint64, infos []TransferInfo) ([]*types.Transaction, error) {
	return b.signAll(startNonce, infos, MintCalldata)
}

// SignPegOutTxs is SignMintTxs' pegOut-side counterpart.
func (b *Builder) SignPegOutTxs(startNonce uint64, infos []TransferInfo) ([]*types.Transaction, error) {
	return b.signAll(startNonce, infos, PegOutCalldata)
}

func (b *Builder) signAll(startNonce uint64, infos []TransferInfo, encode func(TransferInfo) ([]byte, error)) ([]*types.Transaction, error) {
	txs := make([]*types.Transaction, len(infos))
	for i, info := range infos {
		data, err := encode(info)
		if err != nil {
			return nil, err
		}
		tx, err := b.sign(startNonce+uint64(i), b.VaultAddress, data)
		if err != nil {
			return nil, err
		}
		txs[i] = tx
	}
	return txs, nil
}

// SignProtocolCancelTxs builds and signs one protocolCancel transaction per
// uid, addressed to the state manager rather than the vault, following the
// same nonce-per-index discipline.
func (b *Builder) SignProtocolCancelTxs(startNonce uint64, uids []common.Hash) ([]*types.Transaction, error) {
	txs := make([]*types.Transaction, len(uids))
	for i, uid := range uids {
		data, err := ProtocolCancelCalldata(uid)
		if err != nil {
			return nil, err
		}
		tx, err := b.sign(startNonce+uint64(i), b.StateManagerAddress, data)
		if err != nil {
			return nil, err
		}
		txs[i] = tx
	}
	return txs, nil
}

// CalldataItem pairs one destination address with one call's encoded
// calldata, letting a caller interleave mint/pegOut/protocolCancel calls in
// a single nonce-ordered signing pass (package pipeline's combined output
// for one batch).
type CalldataItem struct {
	To   common.Address
	Data []byte
}

// SignCalldataBatch signs one transaction per item in order, nonce =
// startNonce + index, the same discipline as SignMintTxs but over a mixed
// sequence of call kinds.
func (b *Builder) SignCalldataBatch(startNonce uint64, items []CalldataItem) ([]*types.Transaction, error) {
	txs := make([]*types.Transaction, len(items))
	for i, item := range items {
		tx, err := b.sign(startNonce+uint64(i), item.To, item.Data)
		if err != nil {
			return nil, err
		}
		txs[i] = tx
	}
	return txs, nil
}
