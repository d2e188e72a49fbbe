// Package debugops implements the authenticated debug commands of spec
// section 6: ResetChain, SetAccountNonce, AddDebugSignatories,
// RemoveDebugSignatories, SetGasPrice and ForceReprocessBlock. Every
// command requires a signature from a member of the signatory list; while
// that list is empty, a signature from one hard-coded safe address
// authorises any command instead.
//
// Grounded on
// _examples/original_source/common/debug_signers/src/debug_functions/debug_add_multiple_debug_signers.rs:
// an empty signatory list is validated against SAFE_ETH_ADDRESS, after
// which any listed signatory can authorise further additions/removals.
package debugops

import (
	"encoding/json"
	"errors"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pnetwork-association/sentinel-core/db"
	"github.com/pnetwork-association/sentinel-core/sentinelerr"
)

// SafeSignatory is the hard-coded bootstrap address that authorises any
// debug command, the first signatory addition included, while the
// signatory list is empty, matching the teacher's own SAFE_ETH_ADDRESS
// test fixture.
var SafeSignatory = common.HexToAddress("0xfEDFe2616eb3661c8FeD2782F5f0cc91d59DcaC")

var signatoryListKey = db.PrefixedKey("debug_signatories")

// SignatoryList is the ordered set of addresses authorised to sign debug
// commands.
type SignatoryList struct {
	Addresses []common.Address
}

// includes checks membership via a mapset built fresh from Addresses:
// the persisted slice stays the JSON-ordered source of truth, while the
// set gives O(1) lookups for commands touching many addresses at once
// (AddDebugSignatories/RemoveDebugSignatories over a batch).
func (l *SignatoryList) includes(addr common.Address) bool {
	return mapset.NewThreadUnsafeSet(l.Addresses...).Contains(addr)
}

// Commands persists and authenticates debug commands behind a
// db.Database, mirroring the construction pattern of userop.Store and
// dictionary.Table so it too can run inside a pipeline-owned transaction.
type Commands struct {
	backend db.Database
}

func NewCommands(backend db.Database) *Commands { return &Commands{backend: backend} }

func (c *Commands) loadSignatories() (*SignatoryList, error) {
	raw, err := c.backend.Get(signatoryListKey, db.MinSensitivity)
	if errors.Is(err, db.ErrKeyNotFound) {
		return &SignatoryList{}, nil
	}
	if err != nil {
		return nil, err
	}
	var l SignatoryList
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (c *Commands) saveSignatories(l *SignatoryList) error {
	b, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return c.backend.Put(signatoryListKey, b, db.MinSensitivity)
}

// Signatories returns the current signatory list, for inspection/tests.
func (c *Commands) Signatories() (*SignatoryList, error) { return c.loadSignatories() }

// commandDigest hashes a function name and its RLP-free argument bytes
// together, matching the teacher's get_debug_command_hash! macro's
// "function name + arguments" hashing convention.
func commandDigest(functionName string, args []byte) common.Hash {
	return crypto.Keccak256Hash([]byte(functionName), args)
}

// recoverSignatory recovers the address that produced sig (65-byte
// r||s||v) over digest.
func recoverSignatory(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, sentinelerr.New(sentinelerr.KindSignatureMismatch, "signature must be 65 bytes, got %d", len(sig))
	}
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, sentinelerr.Wrap(sentinelerr.KindSignatureMismatch, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// authenticate checks sig over digest against the current signatory list,
// falling back to SafeSignatory when the list is empty (the chicken-and-egg
// bootstrap case the teacher's debug_add_multiple_debug_signers_with_options
// handles).
func (c *Commands) authenticate(functionName string, args []byte, sig []byte) (*SignatoryList, error) {
	list, err := c.loadSignatories()
	if err != nil {
		return nil, err
	}
	signer, err := recoverSignatory(commandDigest(functionName, args), sig)
	if err != nil {
		return nil, err
	}
	if len(list.Addresses) == 0 {
		if signer != SafeSignatory {
			return nil, sentinelerr.New(sentinelerr.KindSignatureMismatch, "empty signatory list requires the safe address's signature")
		}
		return list, nil
	}
	if !list.includes(signer) {
		return nil, sentinelerr.New(sentinelerr.KindSignatureMismatch, "signer %s is not a debug signatory", signer)
	}
	return list, nil
}

// AddDebugSignatories adds each of newSignatories to the list, requiring
// sig over the function name and the new addresses' concatenated bytes.
func (c *Commands) AddDebugSignatories(newSignatories []common.Address, sig []byte) error {
	args := encodeAddresses(newSignatories)
	list, err := c.authenticate("AddDebugSignatories", args, sig)
	if err != nil {
		return err
	}
	for _, addr := range newSignatories {
		if !list.includes(addr) {
			list.Addresses = append(list.Addresses, addr)
		}
	}
	return c.saveSignatories(list)
}

// RemoveDebugSignatories removes each of the given addresses from the
// list.
func (c *Commands) RemoveDebugSignatories(toRemove []common.Address, sig []byte) error {
	args := encodeAddresses(toRemove)
	list, err := c.authenticate("RemoveDebugSignatories", args, sig)
	if err != nil {
		return err
	}
	remaining := list.Addresses[:0]
	for _, addr := range list.Addresses {
		keep := true
		for _, r := range toRemove {
			if addr == r {
				keep = false
				break
			}
		}
		if keep {
			remaining = append(remaining, addr)
		}
	}
	list.Addresses = remaining
	return c.saveSignatories(list)
}

func encodeAddresses(addrs []common.Address) []byte {
	out := make([]byte, 0, len(addrs)*common.AddressLength)
	for _, a := range addrs {
		out = append(out, a.Bytes()...)
	}
	return out
}
