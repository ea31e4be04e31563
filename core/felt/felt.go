package felt

import (
	"errors"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
	"github.com/fxamacker/cbor/v2"
)

type Felt struct {
	val fp.Element
}

func NewFelt(element *fp.Element) *Felt {
	return &Felt{
		val: *element,
	}
}

const (
	Limbs = fp.Limbs // number of 64 bits words needed to represent a Element
	Bits  = fp.Bits  // number of bits needed to represent a Element
	Bytes = fp.Bytes // number of bytes needed to represent a Element
)

// Zero felt constant
var Zero = Felt{}

// One felt constant
var One = *new(Felt).SetUint64(1)

var ErrTooLarge = errors.New("value exceeds the field modulus")

var bigIntPool = sync.Pool{
	New: func() any {
		return new(big.Int)
	},
}

// Impl returns the underlying field element type
func (z *Felt) Impl() *fp.Element {
	return &z.val
}

// UnmarshalJSON accepts numbers and strings as input.
// See Element.SetString for valid prefixes (0x, 0b, ...).
// If there is an error, we try to explicitly unmarshal from hex before
// returning an error.
func (z *Felt) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) > fp.Bits*3 {
		return errors.New("value too large (max = Element.Bits * 3)")
	}

	// we accept numbers and strings, remove leading and trailing quotes if any
	if len(s) > 0 && s[0] == '"' {
		s = s[1:]
	}
	if len(s) > 0 && s[len(s)-1] == '"' {
		s = s[:len(s)-1]
	}

	vv := bigIntPool.Get().(*big.Int)
	defer bigIntPool.Put(vv)

	if _, ok := vv.SetString(s, 0); !ok {
		if _, ok := vv.SetString(s, 16); !ok {
			return errors.New("can't parse into a big.Int: " + s)
		}
	}
	if vv.Cmp(fp.Modulus()) >= 0 {
		return ErrTooLarge
	}

	z.val.SetBigInt(vv)
	return nil
}

// MarshalJSON renders the felt as a quoted hex string
func (z *Felt) MarshalJSON() ([]byte, error) {
	return []byte(`"` + z.String() + `"`), nil
}

// MarshalText lets felts be used as JSON object keys
func (z Felt) MarshalText() ([]byte, error) {
	return []byte(z.String()), nil
}

func (z *Felt) UnmarshalText(text []byte) error {
	return z.UnmarshalJSON(text)
}

// MarshalCBOR encodes the felt as a 32 byte big-endian byte string
func (z Felt) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(z.Marshal())
}

func (z *Felt) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := cbor.Unmarshal(data, &b); err != nil {
		return err
	}
	return z.SetBytesCanonical(b)
}

// SetBytes interprets e as big-endian and reduces it modulo the field
func (z *Felt) SetBytes(e []byte) *Felt {
	z.val.SetBytes(e)
	return z
}

// SetBytesCanonical sets z to e and fails if e is not in canonical form
func (z *Felt) SetBytesCanonical(e []byte) error {
	if len(e) > Bytes {
		return ErrTooLarge
	}
	var buf [Bytes]byte
	copy(buf[Bytes-len(e):], e)
	return z.val.SetBytesCanonical(buf[:])
}

// SetString forwards the call to underlying field element implementation
func (z *Felt) SetString(number string) (*Felt, error) {
	_, err := z.val.SetString(number)
	return z, err
}

// SetUint64 forwards the call to underlying field element implementation
func (z *Felt) SetUint64(v uint64) *Felt {
	z.val.SetUint64(v)
	return z
}

// SetBigInt reduces v modulo the field
func (z *Felt) SetBigInt(v *big.Int) *Felt {
	z.val.SetBigInt(v)
	return z
}

// SetRandom forwards the call to underlying field element implementation
func (z *Felt) SetRandom() (*Felt, error) {
	_, err := z.val.SetRandom()
	return z, err
}

// String returns the 0x prefixed hex representation
func (z *Felt) String() string {
	return "0x" + z.val.Text(16)
}

// ShortString abbreviates long values for log output
func (z *Felt) ShortString() string {
	hex := z.val.Text(16)
	if len(hex) <= 8 {
		return "0x" + hex
	}
	return "0x" + hex[:4] + "..." + hex[len(hex)-4:]
}

// Text forwards the call to underlying field element implementation
func (z *Felt) Text(base int) string {
	return z.val.Text(base)
}

// Equal forwards the call to underlying field element implementation
func (z *Felt) Equal(x *Felt) bool {
	return z.val.Equal(&x.val)
}

// Marshal returns the 32 byte big-endian representation
func (z *Felt) Marshal() []byte {
	return z.val.Marshal()
}

// Bytes forwards the call to underlying field element implementation
func (z *Felt) Bytes() [32]byte {
	return z.val.Bytes()
}

// IsOne forwards the call to underlying field element implementation
func (z *Felt) IsOne() bool {
	return z.val.IsOne()
}

// IsZero forwards the call to underlying field element implementation
func (z *Felt) IsZero() bool {
	return z.val.IsZero()
}

// IsUint64 reports whether the regular form fits in 64 bits
func (z *Felt) IsUint64() bool {
	return z.val.IsUint64()
}

// Uint64 returns the low 64 bits of the regular form
func (z *Felt) Uint64() uint64 {
	return z.val.Uint64()
}

// BigInt returns the regular form as a new big.Int
func (z *Felt) BigInt() *big.Int {
	return z.val.BigInt(new(big.Int))
}

// Bit forwards the call to underlying field element implementation
func (z *Felt) Bit(i uint64) uint64 {
	return z.val.Bit(i)
}

// Add forwards the call to underlying field element implementation
func (z *Felt) Add(x, y *Felt) *Felt {
	z.val.Add(&x.val, &y.val)
	return z
}

// Sub forwards the call to underlying field element implementation
func (z *Felt) Sub(x, y *Felt) *Felt {
	z.val.Sub(&x.val, &y.val)
	return z
}

// Mul forwards the call to underlying field element implementation
func (z *Felt) Mul(x, y *Felt) *Felt {
	z.val.Mul(&x.val, &y.val)
	return z
}

// Cmp compares the regular forms of z and x
func (z *Felt) Cmp(x *Felt) int {
	return z.val.Cmp(&x.val)
}

// FromUint64 is a shorthand for new(Felt).SetUint64(v)
func FromUint64(v uint64) *Felt {
	return new(Felt).SetUint64(v)
}

// FromBytes is a shorthand for new(Felt).SetBytes(b)
func FromBytes(b []byte) *Felt {
	return new(Felt).SetBytes(b)
}
