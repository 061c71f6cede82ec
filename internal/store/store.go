// Package store is the arena every protocol record and custody balance lives
// in. Records are keyed by derived address. All mutation happens inside a
// unit of work (Tx) that commits every touched record and balance together or
// not at all; no partial state is ever observable from outside the Tx.
package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/vaultpay/vaultpay/internal/types"
)

// Account is a token custody sub-account: a balance owned by a protocol
// identity rather than a private key.
type Account struct {
	Owner   types.Address
	Balance uint64
}

// Store holds committed state. Operations are serialized: one unit of work
// runs at a time, which is how the hosting model of "one operation per
// account, no interleaved writes" is realized in-process.
type Store struct {
	mu       sync.Mutex
	logger   *slog.Logger
	records  map[types.Address]any
	accounts map[types.Address]Account
	journal  []JournalEntry
}

func New(logger *slog.Logger) *Store {
	return &Store{
		logger:   logger,
		records:  make(map[types.Address]any),
		accounts: make(map[types.Address]Account),
	}
}

// Atomic runs fn inside a unit of work. If fn returns an error, every staged
// mutation is discarded; otherwise all of them are applied at once.
func (s *Store) Atomic(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{
		store:    s,
		records:  make(map[types.Address]any),
		accounts: make(map[types.Address]Account),
	}
	if err := fn(tx); err != nil {
		return err
	}

	for addr, rec := range tx.records {
		s.records[addr] = rec
	}
	for addr, acct := range tx.accounts {
		s.accounts[addr] = acct
	}
	s.journal = append(s.journal, tx.journal...)
	return nil
}

// View runs fn against a read-only unit of work. Mutations staged by fn are
// always discarded.
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{
		store:    s,
		records:  make(map[types.Address]any),
		accounts: make(map[types.Address]Account),
	}
	return fn(tx)
}

// Checksum fingerprints the committed custody balances for audit trails.
func (s *Store) Checksum() ([blake2b.Size256]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	addrs := make([]types.Address, 0, len(s.accounts))
	for addr := range s.accounts {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return string(addrs[i][:]) < string(addrs[j][:])
	})

	h, err := blake2b.New256(nil)
	if err != nil {
		return [blake2b.Size256]byte{}, fmt.Errorf("initializing checksum: %w", err)
	}
	var amount [8]byte
	for _, addr := range addrs {
		acct := s.accounts[addr]
		h.Write(addr[:])
		h.Write(acct.Owner[:])
		binary.BigEndian.PutUint64(amount[:], acct.Balance)
		h.Write(amount[:])
	}
	var sum [blake2b.Size256]byte
	copy(sum[:], h.Sum(nil))
	return sum, nil
}
