package db

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenEphemeral()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPrefixedKeyDeterministic(t *testing.T) {
	a := PrefixedKey("USER_OP_LIST")
	b := PrefixedKey("USER_OP_LIST")
	c := PrefixedKey("DICTIONARY")
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	key := PrefixedKey("some_key")
	require.NoError(t, s.Put(key, []byte("hello"), MinSensitivity))
	got, err := s.Get(key, MinSensitivity)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestGetMissingKeyErrors(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(PrefixedKey("nope"), MinSensitivity)
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestHas(t *testing.T) {
	s := newTestStore(t)
	key := PrefixedKey("present")
	ok, err := s.Has(key)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, s.Put(key, []byte("x"), MinSensitivity))
	ok, err = s.Has(key)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestTransactionCommitIsVisibleAfterward(t *testing.T) {
	s := newTestStore(t)
	tx, err := s.Begin()
	require.NoError(t, err)
	key := PrefixedKey("tx_key")
	require.NoError(t, tx.Put(key, []byte("v1"), MinSensitivity))

	// Not yet visible on the parent store until commit.
	_, err = s.Get(key, MinSensitivity)
	require.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, tx.Commit())
	got, err := s.Get(key, MinSensitivity)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), got)
}

func TestTransactionRollbackDiscardsWrites(t *testing.T) {
	s := newTestStore(t)
	tx, err := s.Begin()
	require.NoError(t, err)
	key := PrefixedKey("rollback_key")
	require.NoError(t, tx.Put(key, []byte("v1"), MinSensitivity))
	require.NoError(t, tx.Rollback())

	_, err = s.Get(key, MinSensitivity)
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestTransactionReadsFallThroughToParent(t *testing.T) {
	s := newTestStore(t)
	key := PrefixedKey("parent_key")
	require.NoError(t, s.Put(key, []byte("from parent"), MinSensitivity))

	tx, err := s.Begin()
	require.NoError(t, err)
	got, err := tx.Get(key, MinSensitivity)
	require.NoError(t, err)
	require.Equal(t, []byte("from parent"), got)
}

func TestTransactionDeleteHidesParentValueUntilCommit(t *testing.T) {
	s := newTestStore(t)
	key := PrefixedKey("to_delete")
	require.NoError(t, s.Put(key, []byte("x"), MinSensitivity))

	tx, err := s.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.Delete(key))
	_, err = tx.Get(key, MinSensitivity)
	require.ErrorIs(t, err, ErrKeyNotFound)

	// Parent unaffected until commit.
	got, err := s.Get(key, MinSensitivity)
	require.NoError(t, err)
	require.Equal(t, []byte("x"), got)

	require.NoError(t, tx.Commit())
	_, err = s.Get(key, MinSensitivity)
	require.ErrorIs(t, err, ErrKeyNotFound)
}
