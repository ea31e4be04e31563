package trie

import (
	"testing"

	"github.com/NethermindEth/katana/core/felt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pathOf(s string) Path {
	var p Path
	for _, c := range s {
		p.AppendBit(&p, uint8(c-'0'))
	}
	return p
}

func TestPathBits(t *testing.T) {
	p := pathOf("1011")
	assert.Equal(t, uint8(4), p.Len())
	assert.Equal(t, "1011", p.String())
	assert.Equal(t, uint8(1), p.MSB())
	assert.Equal(t, uint8(0), p.Bit(1))
	assert.Equal(t, uint8(1), p.Bit(3))

	f := p.Felt()
	assert.Equal(t, uint64(0b1011), f.Uint64())
}

func TestPathSlicing(t *testing.T) {
	p := pathOf("110010")

	var msbs, lsbs, empty Path
	assert.Equal(t, "110", msbs.MSBs(&p, 3).String())
	assert.Equal(t, "010", lsbs.LSBs(&p, 3).String())
	assert.Equal(t, "", empty.LSBs(&p, 6).String())

	var joined Path
	assert.True(t, joined.Append(&msbs, &lsbs).Equal(&p))

	// in place
	p.LSBs(&p, 1)
	assert.Equal(t, "10010", p.String())
}

func TestPathAcrossWords(t *testing.T) {
	key := new(felt.Felt).SetUint64(1)
	var p Path
	p.SetFelt(MaxPathLen, key)
	assert.Equal(t, uint8(MaxPathLen), p.Len())
	assert.Equal(t, uint8(0), p.MSB())
	assert.Equal(t, uint8(1), p.Bit(MaxPathLen-1))

	var head, tail Path
	head.MSBs(&p, 200)
	tail.LSBs(&p, 200)
	headFelt := head.Felt()
	assert.True(t, headFelt.IsZero())
	tailFelt := tail.Felt()
	assert.True(t, tailFelt.IsOne())

	var joined Path
	assert.True(t, joined.Append(&head, &tail).Equal(&p))
}

func TestCommonMSBs(t *testing.T) {
	tests := []struct {
		x, y, want string
	}{
		{"1011", "1001", "10"},
		{"1011", "1011", "1011"},
		{"0", "1", ""},
		{"101100", "101", "101"},
		{"", "1", ""},
	}
	for _, test := range tests {
		x, y := pathOf(test.x), pathOf(test.y)
		var common Path
		assert.Equal(t, test.want, common.CommonMSBs(&x, &y).String(), "%s %s", test.x, test.y)
	}

	prefix := pathOf("10")
	full := pathOf("1011")
	assert.True(t, prefix.EqualMSBs(&full))
	assert.False(t, full.EqualMSBs(&prefix))
}

func TestPathBinary(t *testing.T) {
	var p Path
	p.SetFelt(250, new(felt.Felt).SetUint64(0xdeadbeef))

	var decoded Path
	require.NoError(t, decoded.UnmarshalBinary(p.MarshalBinary()))
	assert.True(t, decoded.Equal(&p))

	one := pathOf("1")
	bad := one.MarshalBinary()
	bad[felt.Bytes] = 0xff
	require.Error(t, decoded.UnmarshalBinary(bad))
	require.Error(t, decoded.UnmarshalBinary([]byte{1}))
}
