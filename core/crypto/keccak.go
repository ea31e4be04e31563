package crypto

import (
	"sync"

	"github.com/NethermindEth/katana/core/felt"
	"golang.org/x/crypto/sha3"
)

var (
	keccakMu sync.Mutex
	keccak   = sha3.NewLegacyKeccak256()
)

// StarknetKeccak implements [StarkNet keccak]
//
// [StarkNet keccak]: https://docs.starknet.io/documentation/develop/Hashing/hash-functions/#starknet_keccak
func StarknetKeccak(b []byte) (*felt.Felt, error) {
	keccakMu.Lock()
	defer keccakMu.Unlock()

	keccak.Reset()
	if _, err := keccak.Write(b); err != nil {
		return nil, err
	}
	d := keccak.Sum(nil)
	// Remove the first 6 bits from the first byte
	d[0] &= 3
	return new(felt.Felt).SetBytes(d), nil
}

// Selector returns the entry point selector for name.
func Selector(name string) *felt.Felt {
	// writes to a keccak hasher never fail
	sel, _ := StarknetKeccak([]byte(name))
	return sel
}
