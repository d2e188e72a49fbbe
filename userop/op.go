package userop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/pnetwork-association/sentinel-core/events"
	"github.com/pnetwork-association/sentinel-core/sentineltypes"
)

// Op is the content-addressed user-operation record of spec section 3.3:
// an identity tuple that never changes once witnessed, provenance of the
// witnessing observation, and the current lifecycle state.
type Op struct {
	// Identity. Together these fields determine Uid(); two ops with the
	// same identity tuple are the same operation regardless of how many
	// times each side of the bridge has observed it.
	Nonce                    *big.Int
	OriginNetworkID          sentineltypes.NetworkID
	DestinationNetworkID     sentineltypes.NetworkID
	UnderlyingAssetNetworkID sentineltypes.NetworkID
	UnderlyingAssetAddress   common.Address
	OptionsMask              common.Hash
	OriginAccount            string
	DestinationAccount       string
	Amount                   *big.Int
	UserData                 []byte

	// Provenance of the witnessing observation. Preserved across every
	// later merge (spec section 4.3's "preserve original witnessed
	// timestamps").
	OriginBlockHash        common.Hash
	OriginTransactionHash  common.Hash
	WitnessedTimestamp     uint64
	BridgeSide             sentineltypes.BridgeSide

	// Current lifecycle state and the observation that produced it.
	State               State
	StateSide           sentineltypes.BridgeSide
	StateTxHash         common.Hash
	StateBlockTimestamp uint64
}

// identityTuple is rlp-encoded, then hashed, to derive Uid. Field order is
// fixed: changing it changes every uid already computed against it.
type identityTuple struct {
	Nonce                    *big.Int
	OriginNetworkID          [4]byte
	DestinationNetworkID     [4]byte
	UnderlyingAssetNetworkID [4]byte
	UnderlyingAssetAddress   common.Address
	OptionsMask              common.Hash
	OriginAccount            string
	DestinationAccount       string
	Amount                   *big.Int
	UserData                 []byte
}

// UID derives the content address of op's identity tuple: rlp-encode the
// tuple, then keccak256 it (spec section 3.3). Provenance and state play
// no part, so two independently witnessed observations of the same
// operation always collide to the same uid.
func (op *Op) UID() (common.Hash, error) {
	t := identityTuple{
		Nonce:                    op.Nonce,
		OriginNetworkID:          op.OriginNetworkID,
		DestinationNetworkID:     op.DestinationNetworkID,
		UnderlyingAssetNetworkID: op.UnderlyingAssetNetworkID,
		UnderlyingAssetAddress:   op.UnderlyingAssetAddress,
		OptionsMask:              op.OptionsMask,
		OriginAccount:            op.OriginAccount,
		DestinationAccount:       op.DestinationAccount,
		Amount:                   op.Amount,
		UserData:                 op.UserData,
	}
	b, err := rlp.EncodeToBytes(&t)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(b), nil
}

// stateForKind maps a decoded log's Kind onto the lifecycle State it
// represents. Both cancellation kinds (state-manager and protocol) collapse
// to StateCancelled; the spec treats them as the same terminal state.
func stateForKind(k events.Kind) State {
	switch k {
	case events.KindWitnessed:
		return StateWitnessed
	case events.KindEnqueued:
		return StateEnqueued
	case events.KindExecuted:
		return StateExecuted
	case events.KindCancelled, events.KindProtocolCancelled:
		return StateCancelled
	default:
		return StateWitnessed
	}
}

// FromEvent builds an Op from a decoded log (spec section 4.3's "from
// event" ingestion path, grounded on user_ops.rs's from_sub_mat). side
// identifies which chain the log was observed on; witnessedTimestamp is
// only meaningful (and only recorded) when ev is a witnessed event.
func FromEvent(ev events.UserOpEvent, side sentineltypes.BridgeSide, witnessedTimestamp uint64) *Op {
	state := stateForKind(ev.Kind)
	op := &Op{
		Nonce:                    ev.Nonce,
		OriginNetworkID:          ev.OriginNetworkID,
		DestinationNetworkID:     ev.DestinationNetworkID,
		UnderlyingAssetNetworkID: ev.UnderlyingAssetNetworkID,
		UnderlyingAssetAddress:   ev.UnderlyingAssetTokenAddress,
		OptionsMask:              ev.OptionsMask,
		OriginAccount:            ev.OriginAccount,
		DestinationAccount:       ev.DestinationAccount,
		Amount:                   ev.Amount,
		UserData:                 ev.UserData,
		OriginBlockHash:          ev.OriginBlockHash,
		OriginTransactionHash:    ev.OriginTransactionHash,
		BridgeSide:               side,
		State:                    state,
		StateSide:                side,
		StateTxHash:              ev.TxHash,
	}
	if state == StateWitnessed {
		op.WitnessedTimestamp = witnessedTimestamp
		op.StateBlockTimestamp = witnessedTimestamp
	}
	return op
}
