package userop

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/pnetwork-association/sentinel-core/sentineltypes"
)

func sampleOp() *Op {
	return &Op{
		Nonce:                    big.NewInt(7),
		OriginNetworkID:          sentineltypes.NetworkID{0x00, 0xf2, 0x78, 0x3e},
		DestinationNetworkID:     sentineltypes.NetworkID{0x00, 0xe4, 0xb9, 0x2f},
		UnderlyingAssetNetworkID: sentineltypes.NetworkID{0x00, 0xf2, 0x78, 0x3e},
		UnderlyingAssetAddress:   common.HexToAddress("0x01"),
		OptionsMask:              common.HexToHash("0x00"),
		OriginAccount:            "0xaa",
		DestinationAccount:       "0xbb",
		Amount:                   big.NewInt(1000),
		UserData:                 []byte{0x01},
		State:                    StateWitnessed,
	}
}

func TestUIDIsDeterministic(t *testing.T) {
	a := sampleOp()
	b := sampleOp()
	uidA, err := a.UID()
	require.NoError(t, err)
	uidB, err := b.UID()
	require.NoError(t, err)
	require.Equal(t, uidA, uidB)
}

func TestUIDIgnoresProvenanceAndState(t *testing.T) {
	a := sampleOp()
	b := sampleOp()
	b.State = StateExecuted
	b.WitnessedTimestamp = 123456
	b.OriginBlockHash = common.HexToHash("0xff")

	uidA, err := a.UID()
	require.NoError(t, err)
	uidB, err := b.UID()
	require.NoError(t, err)
	require.Equal(t, uidA, uidB)
}

func TestUIDChangesWithIdentity(t *testing.T) {
	a := sampleOp()
	b := sampleOp()
	b.Nonce = big.NewInt(8)

	uidA, err := a.UID()
	require.NoError(t, err)
	uidB, err := b.UID()
	require.NoError(t, err)
	require.NotEqual(t, uidA, uidB)
}
