package trie

import (
	"encoding/binary"
	"errors"
	"math/bits"
	"strings"

	"github.com/NethermindEth/katana/core/felt"
)

// MaxPathLen is the number of bits needed to address every leaf of a Starknet trie.
const MaxPathLen = 251

// pathEncodedSize is the length prefix followed by the 32 byte big-endian value.
const pathEncodedSize = 1 + felt.Bytes

// Path is a sequence of up to 255 bits read from the most significant end.
// The bits are kept right-aligned in four little-endian words, so a path of
// length n occupies the n low bits of the words.
type Path struct {
	len   uint8
	words [4]uint64
}

func (p *Path) Len() uint8 {
	return p.len
}

func (p *Path) IsEmpty() bool {
	return p.len == 0
}

// SetFelt sets p to the low length bits of f.
func (p *Path) SetFelt(length uint8, f *felt.Felt) *Path {
	b := f.Bytes()
	p.setBytes32(b[:])
	p.len = length
	p.words = truncate(p.words, length)
	return p
}

// SetUint64 sets p to the low length bits of v.
func (p *Path) SetUint64(length uint8, v uint64) *Path {
	p.words = truncate([4]uint64{v}, length)
	p.len = length
	return p
}

// SetBit sets p to the single bit path bit.
func (p *Path) SetBit(bit uint8) *Path {
	p.words = [4]uint64{uint64(bit & 1)}
	p.len = 1
	return p
}

func (p *Path) Set(x *Path) *Path {
	*p = *x
	return p
}

// Felt returns the path value as a field element.
func (p *Path) Felt() felt.Felt {
	b := p.bytes32()
	var f felt.Felt
	f.SetBytes(b[:])
	return f
}

// Bit returns the i-th bit counted from the most significant end.
func (p *Path) Bit(i uint8) uint8 {
	pos := p.len - 1 - i
	return uint8(p.words[pos/64] >> (pos % 64) & 1)
}

// MSB returns the most significant bit.
func (p *Path) MSB() uint8 {
	return p.Bit(0)
}

// MSBs sets p to the first n bits of x.
func (p *Path) MSBs(x *Path, n uint8) *Path {
	if n > x.len {
		n = x.len
	}
	words := rsh(x.words, uint(x.len-n))
	p.words, p.len = words, n
	return p
}

// LSBs sets p to x without its first n bits.
func (p *Path) LSBs(x *Path, n uint8) *Path {
	if n > x.len {
		n = x.len
	}
	length := x.len - n
	p.words, p.len = truncate(x.words, length), length
	return p
}

// Append sets p to the concatenation of x and y.
func (p *Path) Append(x, y *Path) *Path {
	shifted := lsh(x.words, uint(y.len))
	length := x.len + y.len
	for i := range shifted {
		shifted[i] |= y.words[i]
	}
	p.words, p.len = shifted, length
	return p
}

// AppendBit sets p to x followed by bit.
func (p *Path) AppendBit(x *Path, bit uint8) *Path {
	var b Path
	return p.Append(x, b.SetBit(bit))
}

// CommonMSBs sets p to the longest common prefix of x and y.
func (p *Path) CommonMSBs(x, y *Path) *Path {
	m := min(x.len, y.len)
	var a, b Path
	a.MSBs(x, m)
	b.MSBs(y, m)

	diff := 0
	for i := 3; i >= 0; i-- {
		if xor := a.words[i] ^ b.words[i]; xor != 0 {
			diff = i*64 + bits.Len64(xor)
			break
		}
	}
	return p.MSBs(&a, m-uint8(diff))
}

// EqualMSBs reports whether p is a prefix of x.
func (p *Path) EqualMSBs(x *Path) bool {
	if p.len > x.len {
		return false
	}
	var prefix Path
	return prefix.MSBs(x, p.len).Equal(p)
}

func (p *Path) Equal(x *Path) bool {
	return p.len == x.len && p.words == x.words
}

// MarshalBinary encodes the path as its length followed by its 32 byte value.
func (p *Path) MarshalBinary() []byte {
	out := make([]byte, pathEncodedSize)
	out[0] = p.len
	b := p.bytes32()
	copy(out[1:], b[:])
	return out
}

func (p *Path) UnmarshalBinary(data []byte) error {
	if len(data) != pathEncodedSize {
		return errors.New("invalid path encoding size")
	}
	p.setBytes32(data[1:])
	p.len = data[0]
	if truncate(p.words, p.len) != p.words {
		return errors.New("path value exceeds its length")
	}
	return nil
}

func (p *Path) String() string {
	var sb strings.Builder
	sb.Grow(int(p.len))
	for i := range p.len {
		sb.WriteByte('0' + p.Bit(i))
	}
	return sb.String()
}

func (p *Path) bytes32() [32]byte {
	var b [32]byte
	binary.BigEndian.PutUint64(b[0:8], p.words[3])
	binary.BigEndian.PutUint64(b[8:16], p.words[2])
	binary.BigEndian.PutUint64(b[16:24], p.words[1])
	binary.BigEndian.PutUint64(b[24:32], p.words[0])
	return b
}

func (p *Path) setBytes32(b []byte) {
	p.words[3] = binary.BigEndian.Uint64(b[0:8])
	p.words[2] = binary.BigEndian.Uint64(b[8:16])
	p.words[1] = binary.BigEndian.Uint64(b[16:24])
	p.words[0] = binary.BigEndian.Uint64(b[24:32])
}

func rsh(x [4]uint64, n uint) [4]uint64 {
	var out [4]uint64
	wordShift, bitShift := int(n/64), n%64
	for i := range out {
		src := i + wordShift
		if src > 3 {
			break
		}
		out[i] = x[src] >> bitShift
		if bitShift > 0 && src+1 <= 3 {
			out[i] |= x[src+1] << (64 - bitShift)
		}
	}
	return out
}

func lsh(x [4]uint64, n uint) [4]uint64 {
	var out [4]uint64
	wordShift, bitShift := int(n/64), n%64
	for i := 3; i >= 0; i-- {
		src := i - wordShift
		if src < 0 {
			break
		}
		out[i] = x[src] << bitShift
		if bitShift > 0 && src-1 >= 0 {
			out[i] |= x[src-1] >> (64 - bitShift)
		}
	}
	return out
}

// truncate keeps the low n bits of x.
func truncate(x [4]uint64, n uint8) [4]uint64 {
	for i := range x {
		lo := uint(i) * 64
		switch {
		case uint(n) >= lo+64:
		case uint(n) <= lo:
			x[i] = 0
		default:
			x[i] &= (uint64(1) << (uint(n) - lo)) - 1
		}
	}
	return x
}
