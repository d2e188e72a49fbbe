// Package events implements the event & receipt decoder of spec section
// 4.2: from a submission.Material and an address of interest, extract
// typed events of five kinds (witnessed, enqueued, executed, cancelled,
// protocol-cancelled user ops, plus challenge-pending) by dispatching on
// each log's topics[0] against a fixed set of topic hashes and decoding
// its data against a fixed ABI schema.
//
// Grounded on
// _examples/original_source/common/sentinel/src/user_ops/user_op_log.rs,
// user_op_log/user_op_state_manager_log.rs, user_op_log/user_op_protocol_log.rs,
// user_op_log/user_op_user_send_log.rs, and
// challenges/challenge_pending_event.rs for the exact field layouts and
// dispatch rules.
package events

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pnetwork-association/sentinel-core/sentineltypes"
	"github.com/pnetwork-association/sentinel-core/submission"
)

// Kind distinguishes the five event kinds spec section 4.2 extracts.
type Kind int

const (
	KindWitnessed Kind = iota
	KindEnqueued
	KindExecuted
	KindCancelled
	KindProtocolCancelled
)

func (k Kind) String() string {
	switch k {
	case KindWitnessed:
		return "witnessed"
	case KindEnqueued:
		return "enqueued"
	case KindExecuted:
		return "executed"
	case KindCancelled:
		return "cancelled"
	case KindProtocolCancelled:
		return "protocol_cancelled"
	default:
		return "unknown"
	}
}

// 20-field ABI tuple shared by witnessed/enqueued/executed/cancelled/
// protocol-cancelled logs (spec section 4.2 point 3). For a witnessed log,
// Decode replaces the origin block hash and origin transaction hash with
// the enclosing material's block hash and the log's transaction hash; all
// other fields are taken from the log as decoded.
const userOpTupleComponents = `[
	{"name":"originBlockHash","type":"bytes32"},
	{"name":"originTransactionHash","type":"bytes32"},
	{"name":"optionsMask","type":"bytes32"},
	{"name":"nonce","type":"uint256"},
	{"name":"underlyingAssetDecimals","type":"uint256"},
	{"name":"assetAmount","type":"uint256"},
	{"name":"protocolFeeAssetAmount","type":"uint256"},
	{"name":"networkFeeAssetAmount","type":"uint256"},
	{"name":"forwardNetworkFeeAssetAmount","type":"uint256"},
	{"name":"underlyingAssetTokenAddress","type":"address"},
	{"name":"originNetworkId","type":"bytes4"},
	{"name":"destinationNetworkId","type":"bytes4"},
	{"name":"forwardDestinationNetworkId","type":"bytes4"},
	{"name":"underlyingAssetNetworkId","type":"bytes4"},
	{"name":"originAccount","type":"string"},
	{"name":"destinationAccount","type":"string"},
	{"name":"underlyingAssetName","type":"string"},
	{"name":"underlyingAssetSymbol","type":"string"},
	{"name":"userData","type":"bytes"},
	{"name":"isForProtocol","type":"bool"}
]`

const contractABIJSON = `[
	{"type":"event","name":"UserOperationWitnessed","anonymous":false,"inputs":[{"name":"op","type":"tuple","components":` + userOpTupleComponents + `}]},
	{"type":"event","name":"UserOperationEnqueued","anonymous":false,"inputs":[{"name":"op","type":"tuple","components":` + userOpTupleComponents + `}]},
	{"type":"event","name":"UserOperationExecuted","anonymous":false,"inputs":[{"name":"op","type":"tuple","components":` + userOpTupleComponents + `}]},
	{"type":"event","name":"UserOperationCancelled","anonymous":false,"inputs":[{"name":"op","type":"tuple","components":` + userOpTupleComponents + `}]},
	{"type":"event","name":"UserOperationCancelledByProtocol","anonymous":false,"inputs":[
		{"name":"actorType","type":"uint8","indexed":true},
		{"name":"actor","type":"address","indexed":true},
		{"name":"op","type":"tuple","components":` + userOpTupleComponents + `}
	]},
	{"type":"event","name":"ChallengePending","anonymous":false,"inputs":[
		{"name":"nonce","type":"uint256"},
		{"name":"actorAddress","type":"address"},
		{"name":"challengerAddress","type":"address"},
		{"name":"actorType","type":"uint8"},
		{"name":"timestamp","type":"uint64"},
		{"name":"networkId","type":"bytes4"}
	]}
]`

var contractABI abi.ABI

var (
	witnessedTopic         common.Hash
	enqueuedTopic          common.Hash
	executedTopic          common.Hash
	cancelledTopic         common.Hash
	protocolCancelledTopic common.Hash
	challengePendingTopic  common.Hash
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(contractABIJSON))
	if err != nil {
		panic("events: invalid embedded ABI: " + err.Error())
	}
	contractABI = parsed
	witnessedTopic = contractABI.Events["UserOperationWitnessed"].ID
	enqueuedTopic = contractABI.Events["UserOperationEnqueued"].ID
	executedTopic = contractABI.Events["UserOperationExecuted"].ID
	cancelledTopic = contractABI.Events["UserOperationCancelled"].ID
	protocolCancelledTopic = contractABI.Events["UserOperationCancelledByProtocol"].ID
	challengePendingTopic = contractABI.Events["ChallengePending"].ID
}

// userOpTuple mirrors the 20-field ABI tuple field by field, in component
// order. accounts/abi fills it positionally from the decoded tuple, so it
// is always the Op field of the struct a user-op log is unpacked into
// (see decodeUserOp and protocolCancelledEvent).
type userOpTuple struct {
	OriginBlockHash              [32]byte
	OriginTransactionHash        [32]byte
	OptionsMask                  [32]byte
	Nonce                        *big.Int
	UnderlyingAssetDecimals      *big.Int
	AssetAmount                  *big.Int
	ProtocolFeeAssetAmount       *big.Int
	NetworkFeeAssetAmount        *big.Int
	ForwardNetworkFeeAssetAmount *big.Int
	UnderlyingAssetTokenAddress  common.Address
	OriginNetworkId              [4]byte
	DestinationNetworkId         [4]byte
	ForwardDestinationNetworkId  [4]byte
	UnderlyingAssetNetworkId     [4]byte
	OriginAccount                string
	DestinationAccount           string
	UnderlyingAssetName          string
	UnderlyingAssetSymbol        string
	UserData                     []byte
	IsForProtocol                bool
}

type protocolCancelledEvent struct {
	ActorType uint8
	Actor     common.Address
	Op        userOpTuple
}

type challengeTuple struct {
	Nonce             *big.Int
	ActorAddress      common.Address
	ChallengerAddress common.Address
	ActorType         uint8
	Timestamp         uint64
	NetworkId         [4]byte
}

// UserOpEvent is a decoded witnessed/enqueued/executed/cancelled/
// protocol-cancelled log, still in wire form (spec section 4.2). Package
// userop turns these into userop.Op records.
type UserOpEvent struct {
	Kind Kind

	OriginBlockHash              common.Hash
	OriginTransactionHash        common.Hash
	OptionsMask                  common.Hash
	Nonce                        *big.Int
	UnderlyingAssetDecimals      *big.Int
	Amount                       *big.Int
	ProtocolFeeAmount            *big.Int
	NetworkFeeAmount             *big.Int
	ForwardNetworkFeeAmount      *big.Int
	UnderlyingAssetTokenAddress  common.Address
	OriginNetworkID              sentineltypes.NetworkID
	DestinationNetworkID         sentineltypes.NetworkID
	ForwardDestinationNetworkID  sentineltypes.NetworkID
	UnderlyingAssetNetworkID     sentineltypes.NetworkID
	OriginAccount                string
	DestinationAccount           string
	UnderlyingAssetName          string
	UnderlyingAssetSymbol        string
	UserData                     []byte
	IsForProtocol                bool

	LogIndex uint
	TxHash   common.Hash
}

func userOpEventFromTuple(kind Kind, t *userOpTuple, lg *types.Log) UserOpEvent {
	ev := UserOpEvent{
		Kind:                        kind,
		OriginBlockHash:             common.Hash(t.OriginBlockHash),
		OriginTransactionHash:       common.Hash(t.OriginTransactionHash),
		OptionsMask:                 common.Hash(t.OptionsMask),
		Nonce:                       t.Nonce,
		UnderlyingAssetDecimals:     t.UnderlyingAssetDecimals,
		Amount:                      t.AssetAmount,
		ProtocolFeeAmount:           t.ProtocolFeeAssetAmount,
		NetworkFeeAmount:            t.NetworkFeeAssetAmount,
		ForwardNetworkFeeAmount:     t.ForwardNetworkFeeAssetAmount,
		UnderlyingAssetTokenAddress: t.UnderlyingAssetTokenAddress,
		OriginNetworkID:             sentineltypes.NetworkID(t.OriginNetworkId),
		DestinationNetworkID:        sentineltypes.NetworkID(t.DestinationNetworkId),
		ForwardDestinationNetworkID: sentineltypes.NetworkID(t.ForwardDestinationNetworkId),
		UnderlyingAssetNetworkID:    sentineltypes.NetworkID(t.UnderlyingAssetNetworkId),
		OriginAccount:               t.OriginAccount,
		DestinationAccount:          t.DestinationAccount,
		UnderlyingAssetName:         t.UnderlyingAssetName,
		UnderlyingAssetSymbol:       t.UnderlyingAssetSymbol,
		UserData:                    t.UserData,
		IsForProtocol:               t.IsForProtocol,
		LogIndex:                    lg.Index,
		TxHash:                      lg.TxHash,
	}
	return ev
}

// ChallengePendingEvent is a decoded challenge-pending log (spec section
// 4.2's fifth event kind).
type ChallengePendingEvent struct {
	Nonce             *big.Int
	ActorAddress      common.Address
	ChallengerAddress common.Address
	ActorType         uint8
	Timestamp         uint64
	NetworkID         sentineltypes.NetworkID

	LogIndex uint
	TxHash   common.Hash
}

func eventNameForKind(kind Kind) string {
	switch kind {
	case KindWitnessed:
		return "UserOperationWitnessed"
	case KindEnqueued:
		return "UserOperationEnqueued"
	case KindExecuted:
		return "UserOperationExecuted"
	case KindCancelled:
		return "UserOperationCancelled"
	default:
		return ""
	}
}

func decodeUserOp(lg *types.Log, kind Kind) (*UserOpEvent, error) {
	var t struct{ Op userOpTuple }
	if err := contractABI.UnpackIntoInterface(&t, eventNameForKind(kind), lg.Data); err != nil {
		return nil, err
	}
	ev := userOpEventFromTuple(kind, &t.Op, lg)
	return &ev, nil
}

func decodeProtocolCancelled(lg *types.Log) (*UserOpEvent, error) {
	var t protocolCancelledEvent
	if err := contractABI.UnpackIntoInterface(&t, "UserOperationCancelledByProtocol", lg.Data); err != nil {
		return nil, err
	}
	ev := userOpEventFromTuple(KindProtocolCancelled, &t.Op, lg)
	return &ev, nil
}

func decodeChallengePending(lg *types.Log) (*ChallengePendingEvent, error) {
	var t challengeTuple
	if err := contractABI.UnpackIntoInterface(&t, "ChallengePending", lg.Data); err != nil {
		return nil, err
	}
	return &ChallengePendingEvent{
		Nonce:             t.Nonce,
		ActorAddress:      t.ActorAddress,
		ChallengerAddress: t.ChallengerAddress,
		ActorType:         t.ActorType,
		Timestamp:         t.Timestamp,
		NetworkID:         sentineltypes.NetworkID(t.NetworkId),
		LogIndex:          lg.Index,
		TxHash:            lg.TxHash,
	}, nil
}

// Decode extracts every recognised event from m's receipts whose log
// address matches hubAddr (spec section 4.2 points 1-2). A log that fails
// to decode, or carries no topics, is skipped rather than failing the
// whole decode (spec section 4.2 "Failure semantics"). Witnessed logs
// have their origin block hash set from m and their origin transaction
// hash set from the log's own transaction hash.
func Decode(m *submission.Material, hubAddr common.Address) ([]UserOpEvent, []ChallengePendingEvent, error) {
	if m.EVM == nil {
		return nil, nil, nil
	}
	var userOps []UserOpEvent
	var challenges []ChallengePendingEvent
	for _, receipt := range m.EVM.Receipts {
		for _, lg := range receipt.Logs {
			if lg == nil || lg.Address != hubAddr || len(lg.Topics) == 0 {
				continue
			}
			switch lg.Topics[0] {
			case witnessedTopic:
				ev, err := decodeUserOp(lg, KindWitnessed)
				if err != nil {
					continue
				}
				ev.OriginBlockHash = m.BlockHash
				ev.OriginTransactionHash = lg.TxHash
				userOps = append(userOps, *ev)
			case enqueuedTopic:
				if ev, err := decodeUserOp(lg, KindEnqueued); err == nil {
					userOps = append(userOps, *ev)
				}
			case executedTopic:
				if ev, err := decodeUserOp(lg, KindExecuted); err == nil {
					userOps = append(userOps, *ev)
				}
			case cancelledTopic:
				if ev, err := decodeUserOp(lg, KindCancelled); err == nil {
					userOps = append(userOps, *ev)
				}
			case protocolCancelledTopic:
				if ev, err := decodeProtocolCancelled(lg); err == nil {
					userOps = append(userOps, *ev)
				}
			case challengePendingTopic:
				if ev, err := decodeChallengePending(lg); err == nil {
					challenges = append(challenges, *ev)
				}
			}
		}
	}
	return userOps, challenges, nil
}
