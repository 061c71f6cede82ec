package types

// VaultAuthority is the keyless signing identity the protocol controls on
// behalf of one user under one config. It is the only identity the yield
// source accepts for releasing funds from the user's position, which is what
// lets payment processing debit the position without the user's live
// signature. The credential is issued by the yield source when the position
// is opened and never leaves the protocol.
type VaultAuthority struct {
	User       Address
	Config     Address
	Position   Address // yield-source position handle owned by this authority
	Wallet     Address // custody account the authority stages transfers through
	Credential []byte  // capability presented to the yield source on withdrawal
	Bump       uint8
}
