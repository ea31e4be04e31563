package felt_test

import (
	"encoding/json"
	"testing"

	"github.com/NethermindEth/katana/core/felt"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalJson(t *testing.T) {
	var with felt.Felt
	require.NoError(t, with.UnmarshalJSON([]byte("0x4437ab")))

	var without felt.Felt
	require.NoError(t, without.UnmarshalJSON([]byte("4437ab")))
	assert.True(t, without.Equal(&with))

	var quoted felt.Felt
	require.NoError(t, quoted.UnmarshalJSON([]byte(`"0x4437ab"`)))
	assert.True(t, quoted.Equal(&with))

	t.Run("modulus is rejected", func(t *testing.T) {
		var f felt.Felt
		err := f.UnmarshalJSON([]byte("0x800000000000011000000000000000000000000000000000000000000000001"))
		require.ErrorIs(t, err, felt.ErrTooLarge)
	})
}

func TestFeltJSONRoundTrip(t *testing.T) {
	f := felt.FromUint64(0xdeadbeef)
	b, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Equal(t, `"0xdeadbeef"`, string(b))

	var got felt.Felt
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, *f, got)

	m := map[felt.Felt]uint64{*f: 1}
	b, err = json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"0xdeadbeef":1}`, string(b))
}

func TestFeltCbor(t *testing.T) {
	var val felt.Felt
	_, err := val.SetRandom()
	require.NoError(t, err)

	bytes, err := cbor.Marshal(val)
	require.NoError(t, err)

	var unmarshaledFelt felt.Felt
	require.NoError(t, cbor.Unmarshal(bytes, &unmarshaledFelt))
	assert.Equal(t, val, unmarshaledFelt)
}

func TestShortString(t *testing.T) {
	assert.Equal(t, "0x1234", felt.FromUint64(0x1234).ShortString())
	assert.Equal(t, "0x1234...cdef", felt.FromUint64(0x1234567890abcdef).ShortString())
}

func TestArithmetic(t *testing.T) {
	a := felt.FromUint64(10)
	b := felt.FromUint64(3)
	assert.Equal(t, uint64(13), new(felt.Felt).Add(a, b).Uint64())
	assert.Equal(t, uint64(7), new(felt.Felt).Sub(a, b).Uint64())
	assert.Equal(t, uint64(30), new(felt.Felt).Mul(a, b).Uint64())
	assert.Equal(t, 1, a.Cmp(b))
	assert.True(t, felt.Zero.IsZero())
	assert.True(t, felt.One.IsOne())
}
