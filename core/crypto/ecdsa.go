package crypto

import (
	"errors"
	"io"

	"github.com/NethermindEth/katana/core/felt"
	starkcurve "github.com/consensys/gnark-crypto/ecc/stark-curve"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/ecdsa"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
	"golang.org/x/crypto/sha3"
)

var ErrInvalidPublicKey = errors.New("not a valid public key")

// curveBeta is the b coefficient of the stark curve y^2 = x^3 + x + b.
var curveBeta = func() fp.Element {
	var b fp.Element
	if _, err := b.SetString("0x6f21413efbe40de150e596d72f7a8c5609ad26c15c915c1f4cdfcb99cee9e89"); err != nil {
		panic(err)
	}
	return b
}()

type Signature struct {
	R felt.Felt
	S felt.Felt
}

// Felts returns the signature in the [r, s] layout carried by transactions.
func (s *Signature) Felts() []*felt.Felt {
	r, sv := s.R, s.S
	return []*felt.Felt{&r, &sv}
}

func SignatureFromFelts(sig []*felt.Felt) (*Signature, error) {
	if len(sig) != 2 {
		return nil, errors.New("signature must contain exactly two elements")
	}
	return &Signature{R: *sig[0], S: *sig[1]}, nil
}

// PublicKey is a stark curve public key identified by its x coordinate.
type PublicKey struct {
	x felt.Felt
}

func NewPublicKey(x *felt.Felt) *PublicKey {
	return &PublicKey{x: *x}
}

func (k *PublicKey) Felt() *felt.Felt {
	x := k.x
	return &x
}

// points returns both curve points with the key's x coordinate.
func (k *PublicKey) points() ([2]ecdsa.PublicKey, error) {
	var rhs, x3 fp.Element
	x := k.x.Impl()
	x3.Square(x).Mul(&x3, x)
	rhs.Add(&x3, x).Add(&rhs, &curveBeta)

	var y fp.Element
	if y.Sqrt(&rhs) == nil {
		return [2]ecdsa.PublicKey{}, ErrInvalidPublicKey
	}
	var negY fp.Element
	negY.Neg(&y)

	return [2]ecdsa.PublicKey{
		{A: starkcurve.G1Affine{X: *x, Y: y}},
		{A: starkcurve.G1Affine{X: *x, Y: negY}},
	}, nil
}

// Verify checks sig over msg. Either sign of the y coordinate is accepted.
func (k *PublicKey) Verify(sig *Signature, msg *felt.Felt) (bool, error) {
	keys, err := k.points()
	if err != nil {
		return false, err
	}

	sigBin := make([]byte, 0, 2*felt.Bytes)
	sigBin = append(sigBin, sig.R.Marshal()...)
	sigBin = append(sigBin, sig.S.Marshal()...)

	for i := range keys {
		ok, err := keys[i].Verify(sigBin, msg.Marshal(), nil)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

type PrivateKey struct {
	key *ecdsa.PrivateKey
}

// GenerateKey creates a key pair reading entropy from rand.
func GenerateKey(rand io.Reader) (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(rand)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: key}, nil
}

// DeterministicKey derives a key pair from seed. The same seed always yields
// the same key; dev account generation relies on it.
func DeterministicKey(seed []byte) (*PrivateKey, error) {
	shake := sha3.NewShake256()
	if _, err := shake.Write(seed); err != nil {
		return nil, err
	}
	return GenerateKey(shake)
}

func (k *PrivateKey) PublicKey() *PublicKey {
	return &PublicKey{x: *felt.NewFelt(&k.key.PublicKey.A.X)}
}

// Scalar returns the private scalar as a felt.
func (k *PrivateKey) Scalar() *felt.Felt {
	b := k.key.Bytes()
	return new(felt.Felt).SetBytes(b[len(b)-32:])
}

func (k *PrivateKey) Sign(msg *felt.Felt) (*Signature, error) {
	sigBin, err := k.key.Sign(msg.Marshal(), nil)
	if err != nil {
		return nil, err
	}
	var sig ecdsa.Signature
	if _, err = sig.SetBytes(sigBin); err != nil {
		return nil, err
	}
	return &Signature{
		R: *new(felt.Felt).SetBytes(sig.R[:]),
		S: *new(felt.Felt).SetBytes(sig.S[:]),
	}, nil
}
