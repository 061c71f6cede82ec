package address

import (
	"testing"

	"filippo.io/edwards25519"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultpay/vaultpay/internal/types"
)

func TestDeriveIsDeterministic(t *testing.T) {
	d1 := NewDeriver()
	d2 := NewDeriver()

	user, err := types.NewWalletAddress()
	require.NoError(t, err)

	addr1, bump1, err := d1.Derive([]byte(TagVaultAuthority), user.Bytes())
	require.NoError(t, err)
	addr2, bump2, err := d2.Derive([]byte(TagVaultAuthority), user.Bytes())
	require.NoError(t, err)

	assert.Equal(t, addr1, addr2, "independent derivers must agree")
	assert.Equal(t, bump1, bump2)

	// Memoized second call returns the identical result.
	addr3, bump3, err := d1.Derive([]byte(TagVaultAuthority), user.Bytes())
	require.NoError(t, err)
	assert.Equal(t, addr1, addr3)
	assert.Equal(t, bump1, bump3)
}

func TestDeriveDistinctTuples(t *testing.T) {
	d := NewDeriver()

	a, err := types.NewWalletAddress()
	require.NoError(t, err)
	b, err := types.NewWalletAddress()
	require.NoError(t, err)

	tuples := [][][]byte{
		{[]byte(TagConfig), a.Bytes(), b.Bytes()},
		{[]byte(TagConfig), b.Bytes(), a.Bytes()},
		{[]byte(TagVendor), a.Bytes(), b.Bytes()},
		{[]byte(TagSubscription), a.Bytes(), b.Bytes()},
		{[]byte(TagTreasury), a.Bytes()},
	}

	seen := make(map[types.Address]bool)
	for _, seeds := range tuples {
		addr, _, err := d.Derive(seeds...)
		require.NoError(t, err)
		assert.False(t, seen[addr], "tuple produced a colliding address")
		seen[addr] = true
	}
}

func TestDerivedAddressesAreOffCurve(t *testing.T) {
	d := NewDeriver()

	for i := 0; i < 64; i++ {
		parent, err := types.NewWalletAddress()
		require.NoError(t, err)
		addr, _, err := d.Derive([]byte(TagYieldAccount), parent.Bytes())
		require.NoError(t, err)

		_, err = new(edwards25519.Point).SetBytes(addr.Bytes())
		assert.Error(t, err, "derived address must not be a valid curve point")
	}
}

func TestDeriveSeedOrderMatters(t *testing.T) {
	d := NewDeriver()

	a, err := types.NewWalletAddress()
	require.NoError(t, err)
	b, err := types.NewWalletAddress()
	require.NoError(t, err)

	addr1, _, err := d.Derive(a.Bytes(), b.Bytes())
	require.NoError(t, err)
	addr2, _, err := d.Derive(b.Bytes(), a.Bytes())
	require.NoError(t, err)
	assert.NotEqual(t, addr1, addr2)
}

func TestUint64Seed(t *testing.T) {
	assert.Equal(t, Uint64Seed(1), Uint64Seed(1))
	assert.NotEqual(t, Uint64Seed(1), Uint64Seed(2))
	assert.Len(t, Uint64Seed(42), 8)
}
