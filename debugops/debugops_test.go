package debugops

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/pnetwork-association/sentinel-core/db"
	"github.com/pnetwork-association/sentinel-core/sentineltypes"
)

func newTestCommands(t *testing.T) *Commands {
	t.Helper()
	backend, err := db.OpenEphemeral()
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return NewCommands(backend)
}

func safeSign(t *testing.T, functionName string, args []byte) []byte {
	t.Helper()
	safeKey, err := crypto.HexToECDSA("1111111111111111111111111111111111111111111111111111111111111111"[0:64])
	require.NoError(t, err)
	SafeSignatory = crypto.PubkeyToAddress(safeKey.PublicKey)
	digest := commandDigest(functionName, args)
	sig, err := crypto.Sign(digest.Bytes(), safeKey)
	require.NoError(t, err)
	return sig
}

func sampleNetworkID() sentineltypes.NetworkID {
	return sentineltypes.NetworkID{0x00, 0xf2, 0x78, 0x3e}
}

func TestAddDebugSignatoriesBootstrapsFromSafeAddress(t *testing.T) {
	c := newTestCommands(t)
	newAddr := common.HexToAddress("0x01")
	args := encodeAddresses([]common.Address{newAddr})
	sig := safeSign(t, "AddDebugSignatories", args)

	require.NoError(t, c.AddDebugSignatories([]common.Address{newAddr}, sig))

	list, err := c.Signatories()
	require.NoError(t, err)
	require.True(t, list.includes(newAddr))
}

func TestAddDebugSignatoriesRejectsWrongSignerWhenListEmpty(t *testing.T) {
	c := newTestCommands(t)
	newAddr := common.HexToAddress("0x01")
	args := encodeAddresses([]common.Address{newAddr})

	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	digest := commandDigest("AddDebugSignatories", args)
	sig, err := crypto.Sign(digest.Bytes(), otherKey)
	require.NoError(t, err)

	err = c.AddDebugSignatories([]common.Address{newAddr}, sig)
	require.Error(t, err)
}

func TestExistingSignatoryCanAddAnother(t *testing.T) {
	c := newTestCommands(t)
	firstKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	firstAddr := crypto.PubkeyToAddress(firstKey.PublicKey)

	args := encodeAddresses([]common.Address{firstAddr})
	sig := safeSign(t, "AddDebugSignatories", args)
	require.NoError(t, c.AddDebugSignatories([]common.Address{firstAddr}, sig))

	secondAddr := common.HexToAddress("0x02")
	args2 := encodeAddresses([]common.Address{secondAddr})
	digest2 := commandDigest("AddDebugSignatories", args2)
	sig2, err := crypto.Sign(digest2.Bytes(), firstKey)
	require.NoError(t, err)

	require.NoError(t, c.AddDebugSignatories([]common.Address{secondAddr}, sig2))

	list, err := c.Signatories()
	require.NoError(t, err)
	require.True(t, list.includes(firstAddr))
	require.True(t, list.includes(secondAddr))
}

func TestRemoveDebugSignatories(t *testing.T) {
	c := newTestCommands(t)
	firstKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	firstAddr := crypto.PubkeyToAddress(firstKey.PublicKey)

	args := encodeAddresses([]common.Address{firstAddr})
	sig := safeSign(t, "AddDebugSignatories", args)
	require.NoError(t, c.AddDebugSignatories([]common.Address{firstAddr}, sig))

	removeArgs := encodeAddresses([]common.Address{firstAddr})
	removeDigest := commandDigest("RemoveDebugSignatories", removeArgs)
	removeSig, err := crypto.Sign(removeDigest.Bytes(), firstKey)
	require.NoError(t, err)

	require.NoError(t, c.RemoveDebugSignatories([]common.Address{firstAddr}, removeSig))

	list, err := c.Signatories()
	require.NoError(t, err)
	require.False(t, list.includes(firstAddr))
}

func TestSetAndGetAccountNonce(t *testing.T) {
	c := newTestCommands(t)
	networkID := sampleNetworkID()
	sig := safeSign(t, "SetAccountNonce", append(append([]byte{}, networkID[:]...), encodeUint64(42)...))

	require.NoError(t, c.SetAccountNonce(networkID, 42, sig))
	got, err := c.AccountNonce(networkID)
	require.NoError(t, err)
	require.Equal(t, uint64(42), got)
}

func TestForceReprocessBlockInvokesCallbackWithSkipAccrualTrue(t *testing.T) {
	c := newTestCommands(t)
	blockHash := common.HexToHash("0xaa")
	sig := safeSign(t, "ForceReprocessBlock", blockHash.Bytes())

	var gotSkip bool
	err := c.ForceReprocessBlock(blockHash, sig, func(skipFeeAccrual bool) error {
		gotSkip = skipFeeAccrual
		return nil
	})
	require.NoError(t, err)
	require.True(t, gotSkip)
}
