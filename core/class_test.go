package core_test

import (
	"testing"

	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassHash(t *testing.T) {
	account := core.NewClass(core.AccountClass, "[]", "__validate__", "__execute__")
	erc20 := core.NewClass(core.ERC20Class, "[]", "transfer", "balanceOf")

	accountHash, err := account.Hash()
	require.NoError(t, err)
	erc20Hash, err := erc20.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, accountHash, erc20Hash)

	t.Run("salt separates identical classes", func(t *testing.T) {
		salted := core.NewClass(core.AccountClass, "[]", "__validate__", "__execute__")
		salted.Salt = new(felt.Felt).SetUint64(1)
		saltedHash, err := salted.Hash()
		require.NoError(t, err)
		assert.NotEqual(t, accountHash, saltedHash)
	})

	t.Run("compiled hash differs from class hash", func(t *testing.T) {
		compiled, err := account.CompiledClassHash()
		require.NoError(t, err)
		assert.NotEqual(t, accountHash, compiled)
	})

	t.Run("entry point lookup", func(t *testing.T) {
		ep, ok := erc20.EntryPoint(crypto.Selector("transfer"))
		require.True(t, ok)
		assert.Equal(t, "transfer", ep.Name)

		_, ok = erc20.EntryPoint(crypto.Selector("mint"))
		assert.False(t, ok)
	})
}

func TestClassKindText(t *testing.T) {
	for _, kind := range []core.ClassKind{core.AccountClass, core.ERC20Class, core.GenericClass} {
		text, err := kind.MarshalText()
		require.NoError(t, err)
		var decoded core.ClassKind
		require.NoError(t, decoded.UnmarshalText(text))
		assert.Equal(t, kind, decoded)
	}
	var k core.ClassKind
	assert.Error(t, k.UnmarshalText([]byte("cairo0")))
}

func TestStateRoot(t *testing.T) {
	contracts := utils.HexToFelt(t, "0x1")
	assert.Equal(t, contracts, core.StateRoot(contracts, &felt.Zero))

	classes := utils.HexToFelt(t, "0x2")
	assert.Equal(t, crypto.PedersenArray(new(felt.Felt).SetBytes([]byte("STARKNET_STATE_V0")), contracts, classes),
		core.StateRoot(contracts, classes))
}
