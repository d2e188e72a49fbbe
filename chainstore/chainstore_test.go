package chainstore

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/stretchr/testify/require"

	"github.com/pnetwork-association/sentinel-core/db"
	"github.com/pnetwork-association/sentinel-core/sentinelerr"
	"github.com/pnetwork-association/sentinel-core/sentineltypes"
	"github.com/pnetwork-association/sentinel-core/submission"
)

var emptyReceiptsRoot = types.DeriveSha(types.Receipts{}, trie.NewStackTrie(nil))

func testNetworkID() sentineltypes.NetworkID { return sentineltypes.NetworkID{1, 2, 3, 4} }

func header(number uint64, parent common.Hash) *types.Header {
	return &types.Header{
		ParentHash:  parent,
		Difficulty:  big.NewInt(1),
		Number:      big.NewInt(int64(number)),
		Time:        1_000_000 + number,
		ReceiptHash: emptyReceiptsRoot,
		GasLimit:    30_000_000,
		Extra:       []byte{byte(number)},
	}
}

func material(number uint64, parent common.Hash) *submission.Material {
	return submission.FromEVM(testNetworkID(), header(number, parent), types.Receipts{})
}

func newTestStore(t *testing.T, canonToTipLength uint64) (*Store, *submission.Material) {
	t.Helper()
	backend, err := db.OpenEphemeral()
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	anchorMat := material(10, common.Hash{})
	s, err := New(backend, testNetworkID(), EVMFamily{}, canonToTipLength)
	require.NoError(t, err)
	require.NoError(t, s.Reset(anchorMat, canonToTipLength))
	return s, anchorMat
}

func TestResetInitialisesAllPointersToAnchor(t *testing.T) {
	s, anchorMat := newTestStore(t, 3)
	anchorHash := anchorMat.BlockHash

	latest, err := s.Latest()
	require.NoError(t, err)
	canon, err := s.Canon()
	require.NoError(t, err)
	tail, err := s.Tail()
	require.NoError(t, err)
	anchor, err := s.Anchor()
	require.NoError(t, err)
	linker, err := s.LinkerHash()
	require.NoError(t, err)

	require.Equal(t, anchorHash, latest)
	require.Equal(t, anchorHash, canon)
	require.Equal(t, anchorHash, tail)
	require.Equal(t, anchorHash, anchor)
	require.Equal(t, anchorHash, linker)
}

func TestAppendRejectsDuplicateBlock(t *testing.T) {
	s, anchorMat := newTestStore(t, 3)
	ctx := context.Background()
	b11 := material(11, anchorMat.BlockHash)
	require.NoError(t, s.Append(ctx, b11))

	err := s.Append(ctx, b11)
	require.True(t, sentinelerr.Is(err, sentinelerr.KindBlockAlreadyInDB))
}

func TestAppendRejectsOrphanBlock(t *testing.T) {
	s, _ := newTestStore(t, 3)
	ctx := context.Background()
	orphan := material(12, common.HexToHash("0xdeadbeef"))
	err := s.Append(ctx, orphan)
	require.True(t, sentinelerr.Is(err, sentinelerr.KindNoParent))
}

// TestReorgSafeTailPrune mirrors spec section 8 scenario 4: anchor at
// block 10, canon_to_tip_length=3, feed blocks 11..20 sequentially. After
// block 20: latest=20, canon=17, tail=16, anchor=10 retained, blocks
// 11..15 pruned, block 10 still retrievable.
func TestReorgSafeTailPrune(t *testing.T) {
	s, anchorMat := newTestStore(t, 3)
	ctx := context.Background()

	prev := anchorMat.BlockHash
	mats := make(map[uint64]*submission.Material)
	mats[10] = anchorMat
	for n := uint64(11); n <= 20; n++ {
		m := material(n, prev)
		require.NoError(t, s.Append(ctx, m))
		require.NoError(t, s.AdvanceLatest())
		require.NoError(t, s.MaybeUpdateCanon())
		require.NoError(t, s.MaybeUpdateTail())
		require.NoError(t, s.MaybeUpdateLinkerHash())
		tail, err := s.Tail()
		require.NoError(t, err)
		require.NoError(t, s.RemoveParentsIfNotAnchor(tail))
		mats[n] = m
		prev = m.BlockHash
	}

	latest, err := s.Latest()
	require.NoError(t, err)
	canon, err := s.Canon()
	require.NoError(t, err)
	tail, err := s.Tail()
	require.NoError(t, err)
	anchor, err := s.Anchor()
	require.NoError(t, err)

	latestNum, err := s.blockNumber(latest)
	require.NoError(t, err)
	canonNum, err := s.blockNumber(canon)
	require.NoError(t, err)
	tailNum, err := s.blockNumber(tail)
	require.NoError(t, err)

	require.Equal(t, uint64(20), latestNum)
	require.Equal(t, uint64(17), canonNum)
	require.Equal(t, uint64(16), tailNum)
	require.Equal(t, anchorMat.BlockHash, anchor)

	// Anchor itself is always retrievable.
	_, err = s.Block(anchorMat.BlockHash)
	require.NoError(t, err)

	// Blocks strictly between anchor and tail are pruned.
	for n := uint64(11); n <= 15; n++ {
		_, err := s.Block(mats[n].BlockHash)
		require.ErrorIs(t, err, db.ErrKeyNotFound)
	}

	// Tail itself and everything at or above it remains retrievable.
	for n := uint64(16); n <= 20; n++ {
		_, err := s.Block(mats[n].BlockHash)
		require.NoError(t, err)
	}
}

func TestLatestBlockNumberBeforeResetIsNotInitialized(t *testing.T) {
	backend, err := db.OpenEphemeral()
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	s, err := New(backend, testNetworkID(), EVMFamily{}, 3)
	require.NoError(t, err)

	_, err = s.LatestBlockNumber()
	require.True(t, sentinelerr.Is(err, sentinelerr.KindNotInitialized))
}

func TestResetClearsPreviousChain(t *testing.T) {
	s, anchorMat := newTestStore(t, 3)
	ctx := context.Background()
	b11 := material(11, anchorMat.BlockHash)
	require.NoError(t, s.Append(ctx, b11))

	newAnchor := material(100, common.Hash{})
	require.NoError(t, s.Reset(newAnchor, 5))

	_, err := s.Block(b11.BlockHash)
	require.ErrorIs(t, err, db.ErrKeyNotFound)

	latest, err := s.Latest()
	require.NoError(t, err)
	require.Equal(t, newAnchor.BlockHash, latest)
}
