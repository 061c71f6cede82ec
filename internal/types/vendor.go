package types

// Vendor is a registered payee authorized to receive subscription income.
// One per (config, vendor-authority) pair.
type Vendor struct {
	Authority     Address // vendor signing identity; must co-sign registration and payment collection
	VendorWallet  Address // custody account credited with the vendor share of each payment
	Config        Address
	Seed          uint64
	IsWhitelisted bool
	Bump          uint8
}
