package txbuilder

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func testBuilder(t *testing.T) *Builder {
	t.Helper()
	pk, err := crypto.HexToECDSA("0000000000000000000000000000000000000000000000000000000000000001")
	require.NoError(t, err)
	return New(big.NewInt(1), common.HexToAddress("0xaa"), common.HexToAddress("0xbb"), 300_000, big.NewInt(20_000_000_000), pk)
}

func sampleTransferInfo() TransferInfo {
	return TransferInfo{
		Recipient:    common.HexToAddress("0x01"),
		TokenAddress: common.HexToAddress("0x02"),
		Amount:       big.NewInt(998),
		UserData:     []byte{0xde, 0xca, 0xff},
	}
}

func TestMintCalldataEncodesSelectorAndArgs(t *testing.T) {
	data, err := MintCalldata(sampleTransferInfo())
	require.NoError(t, err)
	require.True(t, len(data) > 4)

	var got struct {
		Recipient    common.Address
		TokenAddress common.Address
		Amount       *big.Int
		UserData     []byte
	}
	require.NoError(t, vaultABI.UnpackIntoInterface(&got, "mint", data[4:]))
	require.Equal(t, sampleTransferInfo().Recipient, got.Recipient)
	require.Equal(t, 0, big.NewInt(998).Cmp(got.Amount))
}

func TestSignMintTxsAppliesNonceStartPlusIndex(t *testing.T) {
	b := testBuilder(t)
	infos := []TransferInfo{sampleTransferInfo(), sampleTransferInfo()}

	txs, err := b.SignMintTxs(5, infos)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Equal(t, uint64(5), txs[0].Nonce())
	require.Equal(t, uint64(6), txs[1].Nonce())
}

func TestSignedTxRecoversToSignerAddress(t *testing.T) {
	b := testBuilder(t)
	txs, err := b.SignMintTxs(0, []TransferInfo{sampleTransferInfo()})
	require.NoError(t, err)

	signer := types.NewEIP155Signer(b.ChainID)
	from, err := types.Sender(signer, txs[0])
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(b.PrivateKey.PublicKey), from)
}

func TestSignProtocolCancelTxsEncodesUid(t *testing.T) {
	b := testBuilder(t)
	uid := common.HexToHash("0xdeadbeef")
	txs, err := b.SignProtocolCancelTxs(0, []common.Hash{uid})
	require.NoError(t, err)
	require.Len(t, txs, 1)

	var got struct{ Uid [32]byte }
	require.NoError(t, vaultABI.UnpackIntoInterface(&got, "protocolCancel", txs[0].Data()[4:]))
	require.Equal(t, uid, common.Hash(got.Uid))
	require.Equal(t, b.StateManagerAddress, *txs[0].To())
}

func TestSignCalldataBatchInterleavesDestinations(t *testing.T) {
	b := testBuilder(t)
	mintData, err := MintCalldata(sampleTransferInfo())
	require.NoError(t, err)
	cancelData, err := ProtocolCancelCalldata(common.HexToHash("0xdeadbeef"))
	require.NoError(t, err)

	txs, err := b.SignCalldataBatch(7, []CalldataItem{
		{To: b.VaultAddress, Data: mintData},
		{To: b.StateManagerAddress, Data: cancelData},
	})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Equal(t, uint64(7), txs[0].Nonce())
	require.Equal(t, uint64(8), txs[1].Nonce())
	require.Equal(t, b.VaultAddress, *txs[0].To())
	require.Equal(t, b.StateManagerAddress, *txs[1].To())
}

func TestSignPegOutTxsUsesDistinctSelectorFromMint(t *testing.T) {
	b := testBuilder(t)
	mintTxs, err := b.SignMintTxs(0, []TransferInfo{sampleTransferInfo()})
	require.NoError(t, err)
	pegOutTxs, err := b.SignPegOutTxs(0, []TransferInfo{sampleTransferInfo()})
	require.NoError(t, err)

	require.NotEqual(t, mintTxs[0].Data()[:4], pegOutTxs[0].Data()[:4])
}
