// Package submission implements the SubmissionMaterial data model of spec
// section 3.1: a validated view of one block on a source chain, carrying
// either an EVM-family header+receipts body or an account-model
// round+action-proofs body (spec section 9, "dynamic dispatch across chain
// variants").
//
// Grounded on common/ethereum/src/eth_block_from_json_rpc.rs and
// src/chains/eth/eth_receipt.rs for the header/receipts invariant, and on
// core/types (block_test.go, receipt_test.go) for the Go RLP/JSON idiom.
package submission

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/mr-tron/base58"

	"github.com/pnetwork-association/sentinel-core/sentinelerr"
	"github.com/pnetwork-association/sentinel-core/sentineltypes"
)

// NormalizeActorAddress canonicalizes an account-model action proof's actor
// address by round-tripping it through base58 (spec section 1 lists
// base58 among the chain-specific codecs assumed available for the
// account-model family, e.g. the teacher's own Algorand support). An
// address that isn't valid base58 fails Material.Validate rather than
// being silently stored.
func NormalizeActorAddress(addr string) (string, error) {
	decoded, err := base58.FastBase58Decoding(addr)
	if err != nil {
		return "", sentinelerr.New(sentinelerr.KindInvalidReceipt, "action proof actor %q is not valid base58: %v", addr, err)
	}
	return base58.FastBase58Encoding(decoded), nil
}

// EVMBody is the header+receipts body of an EVM-family block.
type EVMBody struct {
	Header   *types.Header  `json:"header"`
	Receipts types.Receipts `json:"receipts"`
}

// ActionProof is one account-model chain (e.g. Algorand) action observed in
// a round, carrying enough to verify it was included.
type ActionProof struct {
	TxID    string   `json:"txId"`
	Actor   string   `json:"actor"`
	Payload []byte   `json:"payload"`
	Proof   [][]byte `json:"proof"`
}

// AccountModelBody is the round+action-proofs body of an account-model
// chain block.
type AccountModelBody struct {
	Round        uint64        `json:"round"`
	ActionProofs []ActionProof `json:"actionProofs"`
}

// Material is a validated view of one block on a source chain (spec
// section 3.1). Exactly one of EVM or AccountModel is non-nil.
type Material struct {
	NetworkID    sentineltypes.NetworkID `json:"networkId"`
	BlockNumber  uint64                  `json:"blockNumber"`
	BlockHash    common.Hash             `json:"blockHash"`
	ParentHash   common.Hash             `json:"parentHash"`
	ReceiptsRoot common.Hash             `json:"receiptsRoot"`
	Timestamp    uint64                  `json:"timestamp"`

	EVM          *EVMBody          `json:"evm,omitempty"`
	AccountModel *AccountModelBody `json:"accountModel,omitempty"`
}

// FromEVM builds a Material from an EVM-family header and its receipts,
// filling BlockHash/ParentHash/ReceiptsRoot/Timestamp from the header.
func FromEVM(networkID sentineltypes.NetworkID, header *types.Header, receipts types.Receipts) *Material {
	return &Material{
		NetworkID:    networkID,
		BlockNumber:  header.Number.Uint64(),
		BlockHash:    header.Hash(),
		ParentHash:   header.ParentHash,
		ReceiptsRoot: header.ReceiptHash,
		Timestamp:    header.Time,
		EVM:          &EVMBody{Header: header, Receipts: receipts},
	}
}

// Validate checks the invariant of spec section 3.1:
// hash = keccak(rlp(header)) (or the chain's analogue) and receipts_root
// matches the Merkle root of the included receipts. A violation returns a
// fatal KindInvalidHeader/KindInvalidReceipt CoreError and no state is
// assumed changed by the caller.
func (m *Material) Validate() error {
	switch {
	case m.EVM != nil:
		return m.validateEVM()
	case m.AccountModel != nil:
		// Action-proof verification for account-model chains is delegated
		// to the chain-family-specific proof verifier (out of scope per
		// spec section 1: "chain-specific low-level codecs... assumed
		// available"); structural validation only here.
		if len(m.AccountModel.ActionProofs) == 0 {
			return nil
		}
		for _, p := range m.AccountModel.ActionProofs {
			if p.TxID == "" {
				return sentinelerr.New(sentinelerr.KindInvalidReceipt, "action proof missing tx id")
			}
			if _, err := NormalizeActorAddress(p.Actor); err != nil {
				return err
			}
		}
		return nil
	default:
		return sentinelerr.New(sentinelerr.KindInvalidHeader, "material has neither an evm nor an account-model body")
	}
}

func (m *Material) validateEVM() error {
	recomputedHash := m.EVM.Header.Hash()
	if recomputedHash != m.BlockHash {
		return sentinelerr.New(
			sentinelerr.KindInvalidHeader,
			"recomputed header hash %s does not match material hash %s",
			recomputedHash, m.BlockHash,
		)
	}
	recomputedRoot := types.DeriveSha(m.EVM.Receipts, trie.NewStackTrie(nil))
	if recomputedRoot != m.EVM.Header.ReceiptHash {
		return sentinelerr.New(
			sentinelerr.KindInvalidReceipt,
			"computed receipts root %s does not match header receipt hash %s",
			recomputedRoot, m.EVM.Header.ReceiptHash,
		)
	}
	if recomputedRoot != m.ReceiptsRoot {
		return sentinelerr.New(
			sentinelerr.KindInvalidReceipt,
			"computed receipts root %s does not match material receipts root %s",
			recomputedRoot, m.ReceiptsRoot,
		)
	}
	return nil
}

// Bytes JSON-encodes the material for storage, following the teacher's own
// serde_json-everywhere convention translated to Go's encoding/json (see
// db_utils.rs's DbUtilsT::bytes()).
func (m *Material) Bytes() ([]byte, error) { return json.Marshal(m) }

// FromBytes decodes a Material previously produced by Bytes.
func FromBytes(b []byte) (*Material, error) {
	var m Material
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
