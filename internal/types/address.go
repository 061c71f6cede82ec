package types

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/mr-tron/base58"
)

// AddressLen is the size in bytes of every protocol address.
const AddressLen = 32

// Address identifies every record and custody account in the protocol.
// Wallet addresses are ed25519 public keys; program-owned addresses are
// derived off-curve by the address deriver and have no private key.
type Address [AddressLen]byte

// ZeroAddress is the empty address. It is never a valid record key.
var ZeroAddress Address

func (a Address) String() string {
	return base58.Encode(a[:])
}

func (a Address) Bytes() []byte {
	return a[:]
}

func (a Address) IsZero() bool {
	return a == ZeroAddress
}

func (a Address) Equal(other Address) bool {
	return bytes.Equal(a[:], other[:])
}

// ParseAddress decodes a base58 address string.
func ParseAddress(s string) (Address, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return ZeroAddress, fmt.Errorf("decoding address %q: %w", s, ErrInvalidParameter)
	}
	if len(raw) != AddressLen {
		return ZeroAddress, fmt.Errorf("address %q has %d bytes, want %d: %w", s, len(raw), AddressLen, ErrInvalidParameter)
	}
	var a Address
	copy(a[:], raw)
	return a, nil
}

// AddressFromBytes copies raw into an Address.
func AddressFromBytes(raw []byte) (Address, error) {
	if len(raw) != AddressLen {
		return ZeroAddress, fmt.Errorf("address has %d bytes, want %d: %w", len(raw), AddressLen, ErrInvalidParameter)
	}
	var a Address
	copy(a[:], raw)
	return a, nil
}

// NewWalletAddress generates a fresh externally-ownable address backed by an
// ed25519 keypair. Key custody is out of scope; only the public half is kept.
func NewWalletAddress() (Address, error) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return ZeroAddress, fmt.Errorf("generating wallet key: %w", err)
	}
	return AddressFromBytes(pub)
}
