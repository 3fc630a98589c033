package crypto

import (
	"encoding/hex"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecode(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestHashToCurve(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "zero",
			input:    "0000000000000000000000000000000000000000000000000000000000000000",
			expected: "0266687aadf862bd776c8fc18b8e9f8e20089714856ee233b3902a591d0d5f2925",
		},
		{
			name:     "one",
			input:    "0000000000000000000000000000000000000000000000000000000000000001",
			expected: "02ec4916dd28fc4c10d78e287ca5d9cc51ee1ae73cbfde08c6b37324cbfaac8bc5",
		},
		{
			name:     "two, requires rehash",
			input:    "0000000000000000000000000000000000000000000000000000000000000002",
			expected: "02076c988b353fcbb748178ecb286bc9d0b4acf474d4ba31ba62334e46c97c416a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := mustDecode(t, tt.input)
			point, err := HashToCurve(msg)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, hex.EncodeToString(point.SerializeCompressed()))
		})
	}
}

func TestBDHKEFlow(t *testing.T) {
	r := secp256k1.PrivKeyFromBytes(mustDecode(t, "0000000000000000000000000000000000000000000000000000000000000001"))

	B_, gotR, err := BlindMessage([]byte("test_message"), r)
	require.NoError(t, err)
	require.Equal(t, r, gotR)
	assert.Equal(t, "02a9acc1e48c25eeeb9289b5031cc57da9fe72f3fe2861d264bdc074209b107ba2",
		hex.EncodeToString(B_.SerializeCompressed()))

	a := secp256k1.PrivKeyFromBytes(mustDecode(t, "0000000000000000000000000000000000000000000000000000000000000001"))
	C_ := SignBlindedMessage(B_, a)
	assert.Equal(t, "02a9acc1e48c25eeeb9289b5031cc57da9fe72f3fe2861d264bdc074209b107ba2",
		hex.EncodeToString(C_.SerializeCompressed()))

	A, err := secp256k1.ParsePubKey(mustDecode(t, "020000000000000000000000000000000000000000000000000000000000000001"))
	require.NoError(t, err)

	C := UnblindSignature(C_, r, A)
	assert.Equal(t, "03c724d7e6a5443b39ac8acf11f40420adc4f99a02e7cc1b57703d9391f6d129cd",
		hex.EncodeToString(C.SerializeCompressed()))
}

func TestVerify(t *testing.T) {
	a, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	secret := "abcdef0123456789"
	B_, r, err := BlindMessage([]byte(secret), nil)
	require.NoError(t, err)

	C_ := SignBlindedMessage(B_, a)
	C := UnblindSignature(C_, r, a.PubKey())

	assert.True(t, Verify(secret, a, C))
	assert.False(t, Verify("wrong secret", a, C))
}

func TestDLEQRoundTrip(t *testing.T) {
	a, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)

	B_, _, err := BlindMessage([]byte("dleq test"), nil)
	require.NoError(t, err)
	C_ := SignBlindedMessage(B_, a)

	e, s := GenerateDLEQ(a, B_, C_)
	assert.True(t, VerifyDLEQ(e, s, a.PubKey(), B_, C_))

	otherE, otherS := GenerateDLEQ(a, B_, C_)
	// different nonce each time, but both must still verify
	assert.True(t, VerifyDLEQ(otherE, otherS, a.PubKey(), B_, C_))
}
