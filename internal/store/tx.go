package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vaultpay/vaultpay/internal/types"
)

// Tx is one unit of work over the arena. Reads see committed state overlaid
// with this Tx's own staged writes. Nothing reaches the store until the
// enclosing Atomic commits.
type Tx struct {
	store    *Store
	records  map[types.Address]any
	accounts map[types.Address]Account
	journal  []JournalEntry
}

// GetRecord returns the record at addr.
func (tx *Tx) GetRecord(addr types.Address) (any, error) {
	if rec, ok := tx.records[addr]; ok {
		return rec, nil
	}
	if rec, ok := tx.store.records[addr]; ok {
		return rec, nil
	}
	return nil, fmt.Errorf("no record at %s: %w", addr, types.ErrNotFound)
}

// HasRecord reports whether a record exists at addr.
func (tx *Tx) HasRecord(addr types.Address) bool {
	if _, ok := tx.records[addr]; ok {
		return true
	}
	_, ok := tx.store.records[addr]
	return ok
}

// CreateRecord stages a new record. Creating over an existing address is a
// duplicate-seed replay and is rejected.
func (tx *Tx) CreateRecord(addr types.Address, rec any) error {
	if tx.HasRecord(addr) {
		return fmt.Errorf("record at %s: %w", addr, types.ErrDuplicateRecord)
	}
	tx.records[addr] = rec
	return nil
}

// PutRecord stages an update to an existing record.
func (tx *Tx) PutRecord(addr types.Address, rec any) error {
	if !tx.HasRecord(addr) {
		return fmt.Errorf("no record at %s: %w", addr, types.ErrNotFound)
	}
	tx.records[addr] = rec
	return nil
}

func (tx *Tx) account(addr types.Address) (Account, bool) {
	if acct, ok := tx.accounts[addr]; ok {
		return acct, true
	}
	acct, ok := tx.store.accounts[addr]
	return acct, ok
}

// CreateAccount stages a new custody account with a zero balance.
func (tx *Tx) CreateAccount(addr, owner types.Address) error {
	if _, ok := tx.account(addr); ok {
		return fmt.Errorf("custody account at %s: %w", addr, types.ErrDuplicateRecord)
	}
	tx.accounts[addr] = Account{Owner: owner}
	return nil
}

// HasAccount reports whether a custody account exists at addr.
func (tx *Tx) HasAccount(addr types.Address) bool {
	_, ok := tx.account(addr)
	return ok
}

// Balance returns the custody balance at addr.
func (tx *Tx) Balance(addr types.Address) (uint64, error) {
	acct, ok := tx.account(addr)
	if !ok {
		return 0, fmt.Errorf("no custody account at %s: %w", addr, types.ErrNotFound)
	}
	return acct.Balance, nil
}

// Credit stages an increase of the balance at addr.
func (tx *Tx) Credit(addr types.Address, amount uint64) error {
	acct, ok := tx.account(addr)
	if !ok {
		return fmt.Errorf("no custody account at %s: %w", addr, types.ErrNotFound)
	}
	if acct.Balance+amount < acct.Balance {
		return fmt.Errorf("balance overflow at %s: %w", addr, types.ErrInvalidParameter)
	}
	acct.Balance += amount
	tx.accounts[addr] = acct
	return nil
}

// Debit stages a decrease of the balance at addr.
func (tx *Tx) Debit(addr types.Address, amount uint64) error {
	acct, ok := tx.account(addr)
	if !ok {
		return fmt.Errorf("no custody account at %s: %w", addr, types.ErrNotFound)
	}
	if acct.Balance < amount {
		return fmt.Errorf("balance %d < %d at %s: %w", acct.Balance, amount, addr, types.ErrInsufficientFunds)
	}
	acct.Balance -= amount
	tx.accounts[addr] = acct
	return nil
}

// Transfer moves amount between two custody accounts in this unit of work
// and stages a journal entry for it.
func (tx *Tx) Transfer(from, to types.Address, amount uint64) error {
	if err := tx.Debit(from, amount); err != nil {
		return err
	}
	if err := tx.Credit(to, amount); err != nil {
		return err
	}
	tx.journal = append(tx.journal, JournalEntry{
		ID:     uuid.New(),
		From:   from,
		To:     to,
		Amount: amount,
		At:     time.Now(),
	})
	return nil
}
