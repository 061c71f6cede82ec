package types

import "time"

// SubscriptionStatus is the lifecycle state of a subscription. Transitions
// are monotonic: Active -> Cancelled or Active -> Completed, both terminal.
type SubscriptionStatus uint8

const (
	SubscriptionActive SubscriptionStatus = iota
	SubscriptionCancelled
	SubscriptionCompleted
)

func (s SubscriptionStatus) String() string {
	switch s {
	case SubscriptionActive:
		return "active"
	case SubscriptionCancelled:
		return "cancelled"
	case SubscriptionCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition may leave this state.
func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionCancelled || s == SubscriptionCompleted
}

// Subscription is a recurring-payment agreement between a user and a vendor.
// One per (vendor, user) pair. Terminal records are retained for audit.
type Subscription struct {
	Authority        Address // the user who created the agreement
	Vendor           Address
	User             Address
	Seed             uint64
	AmountPerPayment uint64
	NumberOfPayments uint8
	PaymentsMade     uint8
	StartTime        time.Time
	Status           SubscriptionStatus
	Locked           bool
	Bump             uint8
}

// NextPaymentDue returns the due time of the next uncollected payment for a
// fixed per-payment interval.
func (s *Subscription) NextPaymentDue(interval time.Duration) time.Time {
	return s.StartTime.Add(time.Duration(s.PaymentsMade) * interval)
}
