// Package chainstore implements the per-chain block pipeline of spec
// section 4.1: a pointer-chasing tree of submission.Material values with
// five tracked pointers (latest/canon/tail/anchor/linker_hash),
// reorg-safe pruning and a chained linker hash.
//
// Grounded line-for-line on
// _examples/original_source/core/src/chains/eth/update_eth_linker_hash.rs
// (linker-hash formula, "no parent in store -> no-op") and
// src/chains/eth/remove_old_eth_tail_block.rs (recursive
// remove_parents_if_not_anchor, anchor-is-floor invariant); the Go idiom of
// a pointer-chasing chain over a KV store follows
// core/blockchain_test.go/core/headerchain_test.go.
package chainstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru"

	"github.com/pnetwork-association/sentinel-core/db"
	"github.com/pnetwork-association/sentinel-core/sentinelerr"
	"github.com/pnetwork-association/sentinel-core/sentineltypes"
	"github.com/pnetwork-association/sentinel-core/submission"
)

// ChainFamily abstracts the per-chain-variant operations chainstore.Store
// needs, so the same pointer-chasing/pruning logic is generic over the EVM
// header+receipts family and the account-model round+proofs family (design
// note in spec section 9, "dynamic dispatch across chain variants").
type ChainFamily interface {
	VerifyReceiptsRoot(m *submission.Material) error
	ParentHash(m *submission.Material) common.Hash
}

// EVMFamily is the ChainFamily for header+receipts chains: hash/receipts
// validation is submission.Material.Validate itself, and parent linkage is
// the header's ParentHash.
type EVMFamily struct{}

func (EVMFamily) VerifyReceiptsRoot(m *submission.Material) error { return m.Validate() }
func (EVMFamily) ParentHash(m *submission.Material) common.Hash   { return m.ParentHash }

// ChainStore is the contract package pipeline drives each submitted batch
// through (spec section 4.1).
type ChainStore interface {
	Append(ctx context.Context, m *submission.Material) error
	AdvanceLatest() error
	MaybeUpdateCanon() error
	MaybeUpdateTail() error
	MaybeUpdateLinkerHash() error
	RemoveParentsIfNotAnchor(hash common.Hash) error
	Reset(m *submission.Material, canonToTipLength uint64) error
}

var _ ChainStore = (*Store)(nil)

const recentCacheSize = 256

// Store is the concrete ChainStore implementation of spec section 4.1.
type Store struct {
	backend          db.Database
	family           ChainFamily
	networkID        sentineltypes.NetworkID
	canonToTipLength uint64
	recent           *lru.Cache
}

// New builds a Store for one chain's pointer tree over backend, which may
// be either the top-level db.Store or an open db.Transaction so callers
// (package pipeline) can run a whole batch's pointer movements inside one
// DB transaction.
// canonToTipLength is the steady-state gap between latest and canon
// (invariant 3 of spec section 7).
func New(backend db.Database, networkID sentineltypes.NetworkID, family ChainFamily, canonToTipLength uint64) (*Store, error) {
	cache, err := lru.New(recentCacheSize)
	if err != nil {
		return nil, err
	}
	return &Store{
		backend:          backend,
		family:           family,
		networkID:        networkID,
		canonToTipLength: canonToTipLength,
		recent:           cache,
	}, nil
}

func (s *Store) prefixedKey(name string) db.Key {
	return db.PrefixedKey(fmt.Sprintf("%s_chain_state/%s", s.networkID, name))
}

func (s *Store) blockKey(hash common.Hash) db.Key { return db.KeyFromHash(hash) }

func (s *Store) childrenKey(parent common.Hash) db.Key {
	return db.PrefixedKey(fmt.Sprintf("%s_children/%s", s.networkID, parent.Hex()))
}

func (s *Store) allBlocksKey() db.Key {
	return db.PrefixedKey(fmt.Sprintf("%s_chain_state/all_blocks", s.networkID))
}

func (s *Store) getHashPointer(name string) (common.Hash, error) {
	v, err := s.backend.Get(s.prefixedKey(name), db.MinSensitivity)
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(v), nil
}

func (s *Store) putHashPointer(name string, h common.Hash) error {
	return s.backend.Put(s.prefixedKey(name), h.Bytes(), db.MinSensitivity)
}

// Latest is the most recently accepted tip.
func (s *Store) Latest() (common.Hash, error) { return s.getHashPointer("latest") }

// Canon is the confirmed block, canonToTipLength blocks behind latest.
func (s *Store) Canon() (common.Hash, error) { return s.getHashPointer("canon") }

// Tail is the oldest retained block; its ancestors may be pruned.
func (s *Store) Tail() (common.Hash, error) { return s.getHashPointer("tail") }

// Anchor is the immutable origin block set at Reset; never pruned.
func (s *Store) Anchor() (common.Hash, error) { return s.getHashPointer("anchor") }

// LinkerHash is the rolling cryptographic witness of spec section 3.2.
func (s *Store) LinkerHash() (common.Hash, error) { return s.getHashPointer("linker") }

// LatestBlockNumber answers the bootstrap loop's "what block number are
// you at" query (spec section 4.5 state 1), returning a NotInitialized
// CoreError before the first Reset.
func (s *Store) LatestBlockNumber() (uint64, error) {
	latest, err := s.Latest()
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, sentinelerr.NotInitialized(s.networkID.String())
		}
		return 0, err
	}
	return s.blockNumber(latest)
}

// Block retrieves a previously appended block by hash.
func (s *Store) Block(hash common.Hash) (*submission.Material, error) { return s.getBlock(hash) }

func (s *Store) getBlock(hash common.Hash) (*submission.Material, error) {
	if v, ok := s.recent.Get(hash); ok {
		return v.(*submission.Material), nil
	}
	raw, err := s.backend.Get(s.blockKey(hash), db.MinSensitivity)
	if err != nil {
		return nil, err
	}
	m, err := submission.FromBytes(raw)
	if err != nil {
		return nil, err
	}
	s.recent.Add(hash, m)
	return m, nil
}

func (s *Store) blockNumber(hash common.Hash) (uint64, error) {
	m, err := s.getBlock(hash)
	if err != nil {
		return 0, err
	}
	return m.BlockNumber, nil
}

func (s *Store) getChildren(parent common.Hash) ([]common.Hash, error) {
	v, err := s.backend.Get(s.childrenKey(parent), db.MinSensitivity)
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var hexes []string
	if err := json.Unmarshal(v, &hexes); err != nil {
		return nil, err
	}
	out := make([]common.Hash, len(hexes))
	for i, h := range hexes {
		out[i] = common.HexToHash(h)
	}
	return out, nil
}

func (s *Store) addChild(parent, child common.Hash) error {
	children, err := s.getChildren(parent)
	if err != nil {
		return err
	}
	for _, c := range children {
		if c == child {
			return nil
		}
	}
	children = append(children, child)
	hexes := make([]string, len(children))
	for i, c := range children {
		hexes[i] = c.Hex()
	}
	b, err := json.Marshal(hexes)
	if err != nil {
		return err
	}
	return s.backend.Put(s.childrenKey(parent), b, db.MinSensitivity)
}

func (s *Store) listAllBlocks() ([]common.Hash, error) {
	v, err := s.backend.Get(s.allBlocksKey(), db.MinSensitivity)
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var hexes []string
	if err := json.Unmarshal(v, &hexes); err != nil {
		return nil, err
	}
	out := make([]common.Hash, len(hexes))
	for i, h := range hexes {
		out[i] = common.HexToHash(h)
	}
	return out, nil
}

func (s *Store) recordBlockHash(hash common.Hash) error {
	hashes, err := s.listAllBlocks()
	if err != nil {
		return err
	}
	hashes = append(hashes, hash)
	hexes := make([]string, len(hashes))
	for i, h := range hashes {
		hexes[i] = h.Hex()
	}
	b, err := json.Marshal(hexes)
	if err != nil {
		return err
	}
	return s.backend.Put(s.allBlocksKey(), b, db.MinSensitivity)
}

// Append validates and stores m, rejecting a duplicate (BlockAlreadyInDB)
// or parentless (NoParent) submission per spec section 7. It does not move
// any pointer; the caller (package pipeline) follows with AdvanceLatest,
// MaybeUpdateCanon, MaybeUpdateTail, MaybeUpdateLinkerHash and
// RemoveParentsIfNotAnchor in that order.
func (s *Store) Append(ctx context.Context, m *submission.Material) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.family.VerifyReceiptsRoot(m); err != nil {
		return err
	}
	hash := m.BlockHash
	if ok, err := s.backend.Has(s.blockKey(hash)); err != nil {
		return err
	} else if ok {
		return sentinelerr.BlockAlreadyInDB(m.BlockNumber, hash.Bytes())
	}

	anchor, err := s.Anchor()
	if err != nil {
		return err
	}
	parent := s.family.ParentHash(m)
	if parent != anchor {
		if ok, err := s.backend.Has(s.blockKey(parent)); err != nil {
			return err
		} else if !ok {
			return sentinelerr.NoParent(m.BlockNumber, hash.Bytes())
		}
	}

	raw, err := m.Bytes()
	if err != nil {
		return err
	}
	if err := s.backend.Put(s.blockKey(hash), raw, db.MinSensitivity); err != nil {
		return err
	}
	if err := s.addChild(parent, hash); err != nil {
		return err
	}
	if err := s.recordBlockHash(hash); err != nil {
		return err
	}
	s.recent.Add(hash, m)
	return nil
}

// AdvanceLatest sets latest to the highest-number descendant of the
// current latest, walking the children index to the tip of the longest
// path (spec section 4.1 "advance_latest").
func (s *Store) AdvanceLatest() error {
	latest, err := s.Latest()
	if err != nil {
		return err
	}
	for {
		children, err := s.getChildren(latest)
		if err != nil {
			return err
		}
		if len(children) == 0 {
			break
		}
		best := children[0]
		bestNum, err := s.blockNumber(best)
		if err != nil {
			return err
		}
		for _, c := range children[1:] {
			n, err := s.blockNumber(c)
			if err != nil {
				return err
			}
			if n > bestNum || (n == bestNum && c.Hex() < best.Hex()) {
				best, bestNum = c, n
			}
		}
		latest = best
	}
	return s.putHashPointer("latest", latest)
}

// walkBackToNumber follows ParentHash pointers from from until it reaches
// the block at number target.
func (s *Store) walkBackToNumber(from common.Hash, target uint64) (common.Hash, error) {
	cur := from
	for {
		m, err := s.getBlock(cur)
		if err != nil {
			return common.Hash{}, err
		}
		if m.BlockNumber == target {
			return cur, nil
		}
		if m.BlockNumber < target {
			return common.Hash{}, fmt.Errorf("chainstore: walked past target block number %d", target)
		}
		cur = s.family.ParentHash(m)
	}
}

// MaybeUpdateCanon advances canon to the ancestor of latest at
// latest-canonToTipLength once that gap is reached (invariant 3).
func (s *Store) MaybeUpdateCanon() error {
	latest, err := s.Latest()
	if err != nil {
		return err
	}
	canon, err := s.Canon()
	if err != nil {
		return err
	}
	latestNum, err := s.blockNumber(latest)
	if err != nil {
		return err
	}
	canonNum, err := s.blockNumber(canon)
	if err != nil {
		return err
	}
	if latestNum-canonNum < s.canonToTipLength {
		return nil
	}
	target := latestNum - s.canonToTipLength
	newCanon, err := s.walkBackToNumber(latest, target)
	if err != nil {
		return err
	}
	return s.putHashPointer("canon", newCanon)
}

// MaybeUpdateTail advances tail to lag canon by at least one block,
// never moving it below anchor.
func (s *Store) MaybeUpdateTail() error {
	canon, err := s.Canon()
	if err != nil {
		return err
	}
	tail, err := s.Tail()
	if err != nil {
		return err
	}
	anchor, err := s.Anchor()
	if err != nil {
		return err
	}
	canonNum, err := s.blockNumber(canon)
	if err != nil {
		return err
	}
	tailNum, err := s.blockNumber(tail)
	if err != nil {
		return err
	}
	anchorNum, err := s.blockNumber(anchor)
	if err != nil {
		return err
	}

	target := canonNum
	if target > 0 {
		target--
	}
	if target < anchorNum {
		target = anchorNum
	}
	if tailNum >= target {
		return nil
	}
	newTail, err := s.walkBackToNumber(canon, target)
	if err != nil {
		return err
	}
	return s.putHashPointer("tail", newTail)
}

// MaybeUpdateLinkerHash recomputes the rolling linker hash from the tail's
// parent (spec section 3.2's keccak(parent_of_tail || anchor ||
// previous_linker)), the instant before that parent is pruned. It is a
// no-op if the tail has no parent currently in store.
func (s *Store) MaybeUpdateLinkerHash() error {
	tail, err := s.Tail()
	if err != nil {
		return err
	}
	tailBlock, err := s.getBlock(tail)
	if err != nil {
		return err
	}
	parent := s.family.ParentHash(tailBlock)
	if ok, err := s.backend.Has(s.blockKey(parent)); err != nil {
		return err
	} else if !ok {
		return nil
	}
	anchor, err := s.Anchor()
	if err != nil {
		return err
	}
	linker, err := s.LinkerHash()
	if err != nil {
		return err
	}
	newLinker := crypto.Keccak256Hash(parent.Bytes(), anchor.Bytes(), linker.Bytes())
	return s.putHashPointer("linker", newLinker)
}

// RemoveParentsIfNotAnchor recursively deletes parent(hash) and its
// ancestors, stopping at (and never deleting) anchor. Called only after
// tail has moved forward (spec section 4.1).
func (s *Store) RemoveParentsIfNotAnchor(hash common.Hash) error {
	anchor, err := s.Anchor()
	if err != nil {
		return err
	}
	block, err := s.getBlock(hash)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil
		}
		return err
	}
	parent := s.family.ParentHash(block)
	for parent != anchor {
		parentBlock, err := s.getBlock(parent)
		if err != nil {
			if errors.Is(err, db.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		next := s.family.ParentHash(parentBlock)
		if err := s.backend.Delete(s.blockKey(parent)); err != nil {
			return err
		}
		s.recent.Remove(parent)
		parent = next
	}
	return nil
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// Reset wipes all blocks and pointers, then initialises all five pointers
// to the hash of m and sets the linker hash to the anchor. The caller must
// authenticate this via the debug-signer contract of package debugops
// (spec section 4.1 "reset").
func (s *Store) Reset(m *submission.Material, canonToTipLength uint64) error {
	if err := s.family.VerifyReceiptsRoot(m); err != nil {
		return err
	}
	hashes, err := s.listAllBlocks()
	if err != nil {
		return err
	}
	for _, h := range hashes {
		if err := s.backend.Delete(s.blockKey(h)); err != nil {
			return err
		}
		if err := s.backend.Delete(s.childrenKey(h)); err != nil {
			return err
		}
		s.recent.Remove(h)
	}
	if err := s.backend.Delete(s.allBlocksKey()); err != nil && !errors.Is(err, db.ErrKeyNotFound) {
		return err
	}

	hash := m.BlockHash
	raw, err := m.Bytes()
	if err != nil {
		return err
	}
	if err := s.backend.Put(s.blockKey(hash), raw, db.MinSensitivity); err != nil {
		return err
	}
	if err := s.recordBlockHash(hash); err != nil {
		return err
	}
	s.recent.Add(hash, m)

	s.canonToTipLength = canonToTipLength
	if err := s.backend.Put(s.prefixedKey("canon_to_tip_length"), encodeUint64(canonToTipLength), db.MinSensitivity); err != nil {
		return err
	}

	for _, name := range []string{"latest", "canon", "tail", "anchor", "linker"} {
		if err := s.putHashPointer(name, hash); err != nil {
			return err
		}
	}
	return nil
}
