package crypto_test

import (
	"crypto/rand"
	"testing"

	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	key, err := crypto.GenerateKey(rand.Reader)
	require.NoError(t, err)

	msg := utils.HexToFelt(t, "0x397e76d1667c4454bfb83514e120583af836f8e32a516765497823eabe16a3f")
	sig, err := key.Sign(msg)
	require.NoError(t, err)

	ok, err := key.PublicKey().Verify(sig, msg)
	require.NoError(t, err)
	assert.True(t, ok)

	t.Run("other message", func(t *testing.T) {
		ok, err := key.PublicKey().Verify(sig, new(felt.Felt).Add(msg, &felt.One))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("other key", func(t *testing.T) {
		other, err := crypto.GenerateKey(rand.Reader)
		require.NoError(t, err)
		ok, err := other.PublicKey().Verify(sig, msg)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("felt layout round trip", func(t *testing.T) {
		decoded, err := crypto.SignatureFromFelts(sig.Felts())
		require.NoError(t, err)
		assert.Equal(t, sig, decoded)

		_, err = crypto.SignatureFromFelts(sig.Felts()[:1])
		require.Error(t, err)
	})
}

func TestDeterministicKey(t *testing.T) {
	a, err := crypto.DeterministicKey([]byte("seed-0"))
	require.NoError(t, err)
	b, err := crypto.DeterministicKey([]byte("seed-0"))
	require.NoError(t, err)
	c, err := crypto.DeterministicKey([]byte("seed-1"))
	require.NoError(t, err)

	assert.Equal(t, a.PublicKey().Felt(), b.PublicKey().Felt())
	assert.Equal(t, a.Scalar(), b.Scalar())
	assert.NotEqual(t, a.PublicKey().Felt(), c.PublicKey().Felt())
}
