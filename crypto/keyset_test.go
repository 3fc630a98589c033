package crypto

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMaster(t *testing.T) *hdkeychain.ExtendedKey {
	t.Helper()
	seed, err := hdkeychain.GenerateSeed(hdkeychain.RecommendedSeedLen)
	require.NoError(t, err)
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	require.NoError(t, err)
	return master
}

func TestGenerateKeysetIsDense(t *testing.T) {
	master := testMaster(t)
	keyset, err := GenerateKeyset(master, 0, 100)
	require.NoError(t, err)

	assert.Len(t, keyset.Keys, NumDenominations)
	for i := 0; i < NumDenominations; i++ {
		amount := uint64(1) << uint(i)
		kp, ok := keyset.Keys[amount]
		assert.True(t, ok, "missing denomination %d", amount)
		assert.Equal(t, amount, kp.Amount)
	}
}

func TestKeysetIdIsPureFunctionOfPublicKeys(t *testing.T) {
	master := testMaster(t)
	ks1, err := GenerateKeyset(master, 1, 0)
	require.NoError(t, err)
	ks2, err := GenerateKeyset(master, 1, 0)
	require.NoError(t, err)

	assert.Equal(t, ks1.Id, ks2.Id)
	assert.Len(t, ks1.Id, 12)

	other, err := GenerateKeyset(master, 2, 0)
	require.NoError(t, err)
	assert.NotEqual(t, ks1.Id, other.Id)
}

func TestDeriveKeysetIdMatchesMintKeyset(t *testing.T) {
	master := testMaster(t)
	keyset, err := GenerateKeyset(master, 0, 0)
	require.NoError(t, err)

	var keypairs []KeyPair
	for amount, kp := range keyset.Keys {
		keypairs = append(keypairs, KeyPair{
			Amount:    amount,
			PublicKey: kp.PrivateKey.PubKey().SerializeCompressed(),
		})
	}

	assert.Equal(t, keyset.Id, DeriveKeysetId(keypairs))
}
