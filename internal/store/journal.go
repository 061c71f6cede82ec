package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/vaultpay/vaultpay/internal/types"
)

// JournalEntry records one committed custody transfer for audit.
type JournalEntry struct {
	ID     uuid.UUID
	From   types.Address
	To     types.Address
	Amount uint64
	At     time.Time
}

// Journal returns a copy of the committed transfer log.
func (s *Store) Journal() []JournalEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JournalEntry, len(s.journal))
	copy(out, s.journal)
	return out
}
