package core_test

import (
	"testing"

	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/encoder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateDiffMerge(t *testing.T) {
	addr := *new(felt.Felt).SetUint64(1)
	key1, key2 := *new(felt.Felt).SetUint64(10), *new(felt.Felt).SetUint64(11)

	base := core.EmptyStateDiff()
	base.StorageDiffs[addr] = map[felt.Felt]*felt.Felt{key1: new(felt.Felt).SetUint64(1)}
	base.Nonces[addr] = new(felt.Felt).SetUint64(1)

	next := core.EmptyStateDiff()
	next.StorageDiffs[addr] = map[felt.Felt]*felt.Felt{
		key1: new(felt.Felt).SetUint64(2),
		key2: new(felt.Felt).SetUint64(3),
	}
	next.Nonces[addr] = new(felt.Felt).SetUint64(2)
	next.DeployedContracts[*new(felt.Felt).SetUint64(2)] = new(felt.Felt).SetUint64(99)

	merged := base.Copy()
	merged.Merge(next)

	assert.Equal(t, uint64(2), merged.StorageDiffs[addr][key1].Uint64())
	assert.Equal(t, uint64(3), merged.StorageDiffs[addr][key2].Uint64())
	assert.Equal(t, uint64(2), merged.Nonces[addr].Uint64())
	assert.Equal(t, uint64(4), merged.Length())
	assert.Len(t, merged.TouchedAddresses(), 2)

	// the original is untouched
	assert.Equal(t, uint64(1), base.StorageDiffs[addr][key1].Uint64())
	assert.Equal(t, uint64(2), base.Length())

	t.Run("merge into zero value", func(t *testing.T) {
		var d core.StateDiff
		d.Merge(next)
		assert.Equal(t, next.Length(), d.Length())
	})
}

func TestStateDiffHash(t *testing.T) {
	build := func(order []uint64) *core.StateDiff {
		d := core.EmptyStateDiff()
		for _, i := range order {
			f := *new(felt.Felt).SetUint64(i)
			d.Nonces[f] = new(felt.Felt).SetUint64(i * 2)
			d.StorageDiffs[f] = map[felt.Felt]*felt.Felt{f: new(felt.Felt).SetUint64(i)}
		}
		return d
	}

	a := build([]uint64{1, 2, 3})
	b := build([]uint64{3, 1, 2})
	assert.Equal(t, a.Hash(), b.Hash())

	b.Nonces[*new(felt.Felt).SetUint64(1)] = new(felt.Felt).SetUint64(5)
	assert.NotEqual(t, a.Hash(), b.Hash())

	t.Run("empty diffs hash equally", func(t *testing.T) {
		assert.Equal(t, core.EmptyStateDiff().Hash(), (&core.StateDiff{}).Hash())
	})

	t.Run("stored form keeps the hash", func(t *testing.T) {
		data, err := encoder.Marshal(a)
		require.NoError(t, err)
		var decoded core.StateDiff
		require.NoError(t, encoder.Unmarshal(data, &decoded))
		assert.Equal(t, a.Hash(), decoded.Hash())
	})
}
