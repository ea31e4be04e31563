package genesis

import (
	"encoding/binary"
	"errors"

	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/vm"
	"github.com/holiman/uint256"
)

var ErrNoSigningKey = errors.New("account has no signing key")

// Account is an account that exists from genesis on.
type Account struct {
	Address    *felt.Felt `json:"address"`
	PublicKey  *felt.Felt `json:"public_key"`
	PrivateKey *felt.Felt `json:"private_key,omitempty"`
	Balance    *felt.Felt `json:"balance"`
	ClassHash  *felt.Felt `json:"class_hash"`

	key *crypto.PrivateKey
}

// Sign signs msg with the account's key. Only dev accounts carry one.
func (a *Account) Sign(msg *felt.Felt) (*crypto.Signature, error) {
	if a.key == nil {
		return nil, ErrNoSigningKey
	}
	return a.key.Sign(msg)
}

// DevAccounts derives count prefunded accounts from seed. The same seed always yields the
// same accounts, in the same order. Every account runs the built-in account class and is
// deployed at the address a deploy account transaction with salt and constructor calldata
// equal to its public key would give it.
func DevAccounts(seed string, count int, balance *uint256.Int) ([]Account, error) {
	classHash, err := vm.AccountClass().Hash()
	if err != nil {
		return nil, err
	}

	accounts := make([]Account, 0, count)
	for i := range count {
		keySeed := binary.BigEndian.AppendUint32([]byte(seed), uint32(i))
		key, err := crypto.DeterministicKey(keySeed)
		if err != nil {
			return nil, err
		}
		publicKey := key.PublicKey().Felt()
		accounts = append(accounts, Account{
			Address:    core.ContractAddress(&felt.Zero, classHash, publicKey, []*felt.Felt{publicKey}),
			PublicKey:  publicKey,
			PrivateKey: key.Scalar(),
			Balance:    feltFromU256(balance),
			ClassHash:  classHash,
			key:        key,
		})
	}
	return accounts, nil
}

func feltFromU256(v *uint256.Int) *felt.Felt {
	b := v.Bytes32()
	return new(felt.Felt).SetBytes(b[:])
}
