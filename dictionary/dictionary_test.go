package dictionary

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/pnetwork-association/sentinel-core/db"
)

func newTestTable(t *testing.T) *Table {
	t.Helper()
	backend, err := db.OpenEphemeral()
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return NewTable(backend)
}

func sampleEntry() *Entry {
	return &Entry{
		OriginTokenAddress:      common.HexToAddress("0x01"),
		DestinationTokenAddress: common.HexToAddress("0x02"),
		FeeBasisPoints:          25,
		AccruedFees:             uint256.NewInt(0),
	}
}

func TestGetByOriginRoundTrips(t *testing.T) {
	tbl := newTestTable(t)
	e := sampleEntry()
	require.NoError(t, tbl.Put(e))

	got, err := tbl.GetByOrigin(e.OriginTokenAddress)
	require.NoError(t, err)
	require.Equal(t, e.FeeBasisPoints, got.FeeBasisPoints)
}

func TestGetByEitherAddressFindsViaDestination(t *testing.T) {
	tbl := newTestTable(t)
	e := sampleEntry()
	require.NoError(t, tbl.Put(e))

	got, err := tbl.GetByEitherAddress(e.DestinationTokenAddress)
	require.NoError(t, err)
	require.Equal(t, e.OriginTokenAddress, got.OriginTokenAddress)
}

func TestGetByEitherAddressUnknownReturnsNotFound(t *testing.T) {
	tbl := newTestTable(t)
	_, err := tbl.GetByEitherAddress(common.HexToAddress("0xff"))
	require.ErrorIs(t, err, db.ErrKeyNotFound)
}

func TestIncrementAccruedFeesAccumulates(t *testing.T) {
	tbl := newTestTable(t)
	e := sampleEntry()
	require.NoError(t, tbl.Put(e))

	require.NoError(t, tbl.IncrementAccruedFees(e.OriginTokenAddress, uint256.NewInt(2)))
	require.NoError(t, tbl.IncrementAccruedFees(e.DestinationTokenAddress, uint256.NewInt(3)))

	got, err := tbl.GetByOrigin(e.OriginTokenAddress)
	require.NoError(t, err)
	require.True(t, got.AccruedFees.Eq(uint256.NewInt(5)))
}
