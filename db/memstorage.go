package db

import "github.com/syndtr/goleveldb/leveldb/storage"

// newMemStorage builds the in-memory goleveldb storage backend used by
// OpenEphemeral, following the same "ephemeral LevelDB" fixture pattern as
// the teacher's own test suites (e.g. core/blockchain_test.go's throwaway
// databases) and the Rust suite's get_test_database().
func newMemStorage() storage.Storage {
	return storage.NewMemStorage()
}
