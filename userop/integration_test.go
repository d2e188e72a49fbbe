package userop

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/stretchr/testify/require"

	"github.com/pnetwork-association/sentinel-core/events"
	"github.com/pnetwork-association/sentinel-core/sentineltypes"
	"github.com/pnetwork-association/sentinel-core/submission"
)

// TestFromEventRoundTripsThroughProcess exercises the full path a real
// block walks: a decoded log becomes an Op via FromEvent, and Process
// indexes it under the uid derived purely from its identity tuple.
func TestFromEventRoundTripsThroughProcess(t *testing.T) {
	receipts := types.Receipts{}
	header := &types.Header{
		ParentHash:  common.HexToHash("0xaa"),
		Difficulty:  big.NewInt(1),
		Number:      big.NewInt(1),
		Time:        1700000000,
		ReceiptHash: types.DeriveSha(receipts, trie.NewStackTrie(nil)),
		GasLimit:    30_000_000,
	}
	m := submission.FromEVM(sentineltypes.NetworkID{0, 1, 2, 3}, header, receipts)

	ev := events.UserOpEvent{
		Kind:                        events.KindWitnessed,
		Nonce:                       big.NewInt(1),
		Amount:                      big.NewInt(500),
		UnderlyingAssetTokenAddress: common.HexToAddress("0x02"),
		OriginNetworkID:             sentineltypes.NetworkID{0, 1, 2, 3},
		DestinationNetworkID:        sentineltypes.NetworkID{4, 5, 6, 7},
		UnderlyingAssetNetworkID:    sentineltypes.NetworkID{0, 1, 2, 3},
		OriginAccount:               "0xaa",
		DestinationAccount:          "0xbb",
		OriginBlockHash:             m.BlockHash,
		TxHash:                      common.HexToHash("0x123"),
	}

	op := FromEvent(ev, sentineltypes.SideNative, 1700000000)
	s := newTestStore(t)
	toCancel, err := s.Process(op)
	require.NoError(t, err)
	require.Nil(t, toCancel)

	uid, err := op.UID()
	require.NoError(t, err)
	stored, err := s.Get(uid)
	require.NoError(t, err)
	require.Equal(t, StateWitnessed, stored.State)
	require.Equal(t, uint64(1700000000), stored.WitnessedTimestamp)
}
