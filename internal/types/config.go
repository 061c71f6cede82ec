package types

import "time"

// MaxFeeBps is the upper bound for the platform fee rate (100%).
const MaxFeeBps = 10_000

// Config holds the protocol-wide economic parameters for one supported
// asset. Created once by the owner and immutable afterwards.
type Config struct {
	Authority               Address       // protocol owner; the only identity allowed to claim the treasury
	SupportedToken          Address       // asset this config governs
	TreasuryWallet          Address       // custody account accumulating platform fees
	Seed                    uint64        // creation seed supplied by the owner
	PlatformFeeBps          uint16        // fee rate in basis points, 0..10000
	MinSubscriptionDuration time.Duration // shortest contracted span a subscription may have
	MaxSubscriptionDuration time.Duration // longest contracted span a subscription may have
	Locked                  bool
	Bump                    uint8 // derivation disambiguation counter
	CreatedAt               time.Time
}
