// Package sentinelerr implements the structured error taxonomy of spec
// section 7: a small, closed set of error kinds, each either recoverable by
// the syncer (NoBlock, NoParent, BlockAlreadyInDB, NotInitialized,
// Timedout) or fatal to the current submission (InvalidHeader,
// InvalidReceipt, SignatureMismatch, NonceGap, KeyExists, PoisonedLock).
//
// Mirrors the Rust SentinelError enum (common/sentinel/src/error.rs) and
// the teacher's own errs.Errors severity/Fatal() split.
package sentinelerr

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// Kind tags a CoreError with one of the taxonomy entries from spec
// section 7.
type Kind string

const (
	KindNoBlock             Kind = "no_block"
	KindNoParent            Kind = "no_parent"
	KindBlockAlreadyInDB    Kind = "block_already_in_db"
	KindNotInitialized      Kind = "not_initialized"
	KindTimedout            Kind = "timedout"
	KindInvalidHeader       Kind = "invalid_header"
	KindInvalidReceipt      Kind = "invalid_receipt"
	KindSignatureMismatch   Kind = "signature_mismatch"
	KindNonceGap            Kind = "nonce_gap"
	KindKeyExists           Kind = "key_exists"
	KindPoisonedLock        Kind = "poisoned_lock"
	KindUnrecognizedTopic   Kind = "unrecognized_topic"
	KindUnexpectedResponse  Kind = "unexpected_response"
	KindFeeExceedsAmount    Kind = "fee_exceeds_amount"
)

// fatal reports whether an error of this kind aborts the current
// submission/transaction outright, as opposed to being recoverable by the
// syncer reacting and retrying.
var fatal = map[Kind]bool{
	KindNoBlock:            false,
	KindNoParent:           false,
	KindBlockAlreadyInDB:   false,
	KindNotInitialized:     false,
	KindTimedout:           false,
	KindInvalidHeader:      true,
	KindInvalidReceipt:     true,
	KindSignatureMismatch:  true,
	KindNonceGap:           true,
	KindKeyExists:          true,
	KindPoisonedLock:       true,
	KindUnrecognizedTopic:  true,
	KindUnexpectedResponse: true,
	KindFeeExceedsAmount:   true,
}

// CoreError is the structured error type returned across the pipeline /
// syncer request-response boundary. It serialises to the {"kind",
// "detail"} JSON object spec section 7 requires for user-visible errors.
type CoreError struct {
	Kind   Kind   `json:"kind"`
	Detail string `json:"detail"`
	Err    error  `json:"-"`
}

func (e *CoreError) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *CoreError) Unwrap() error { return e.Err }

// Fatal reports whether this error aborts the outer DB transaction rather
// than being handled by syncer-side recovery logic.
func (e *CoreError) Fatal() bool { return fatal[e.Kind] }

// New builds a CoreError of the given kind with a formatted detail string.
func New(kind Kind, format string, args ...interface{}) *CoreError {
	return &CoreError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap builds a CoreError of the given kind around an underlying error,
// preserving it for errors.Unwrap/errors.Is/errors.As.
func Wrap(kind Kind, err error) *CoreError {
	if err == nil {
		return nil
	}
	return &CoreError{Kind: kind, Detail: err.Error(), Err: err}
}

// NoParentDetail carries the block number/hash of a block whose parent was
// not found in the chain store (spec section 7: "NoParent{n}").
type NoParentDetail struct {
	Num  uint64
	Hash []byte
}

// NoParent builds the recoverable error the syncer reacts to by rewinding
// to Num-1 and enabling single-submission mode (spec section 4.5 step e).
func NoParent(num uint64, hash []byte) *CoreError {
	return &CoreError{
		Kind:   KindNoParent,
		Detail: fmt.Sprintf("block %d (0x%s) has no parent in the chain store", num, hex.EncodeToString(hash)),
		Err:    &noParentErr{num, hash},
	}
}

type noParentErr struct {
	Num  uint64
	Hash []byte
}

func (e *noParentErr) Error() string { return fmt.Sprintf("no parent for block %d", e.Num) }

// BlockNum extracts the block number from a NoParent- or
// BlockAlreadyInDB-kind CoreError, for the syncer's rewind and skip logic.
// Returns 0, false for any other error.
func BlockNum(err error) (uint64, bool) {
	var ce *CoreError
	if !errors.As(err, &ce) {
		return 0, false
	}
	var npe *noParentErr
	if errors.As(ce.Err, &npe) {
		return npe.Num, true
	}
	var bde *blockAlreadyInDBErr
	if errors.As(ce.Err, &bde) {
		return bde.Num, true
	}
	return 0, false
}

// BlockAlreadyInDBDetail carries the block number of a duplicate
// submission (spec section 7: "BlockAlreadyInDb{n}").
type BlockAlreadyInDBDetail struct {
	Num uint64
}

type blockAlreadyInDBErr struct {
	Num  uint64
	Hash []byte
}

func (e *blockAlreadyInDBErr) Error() string { return fmt.Sprintf("block %d already in db", e.Num) }

// BlockAlreadyInDB builds the recoverable duplicate-submission error the
// syncer reacts to by skipping to Num+1 (spec section 4.5 step f).
func BlockAlreadyInDB(num uint64, hash []byte) *CoreError {
	return &CoreError{
		Kind:   KindBlockAlreadyInDB,
		Detail: fmt.Sprintf("block %d (0x%s) already present", num, hex.EncodeToString(hash)),
		Err:    &blockAlreadyInDBErr{num, hash},
	}
}

// NotInitialized builds the error a syncer's bootstrap loop retries on
// (spec section 4.5 state 1, section 7).
func NotInitialized(chainID string) *CoreError {
	return New(KindNotInitialized, "chain %s not initialized", chainID)
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var ce *CoreError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Kind == kind
}
