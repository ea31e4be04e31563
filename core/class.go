package core

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/encoder"
)

// ClassKind selects the built-in program a class runs on.
type ClassKind uint8

const (
	// AccountClass validates stark-curve signatures and forwards calls.
	AccountClass ClassKind = iota + 1
	// ERC20Class is a fungible token with balances and transfers.
	ERC20Class
	// GenericClass is a contract that stores values and emits events on request.
	GenericClass
)

func (k ClassKind) String() string {
	switch k {
	case AccountClass:
		return "account"
	case ERC20Class:
		return "erc20"
	case GenericClass:
		return "generic"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

func (k ClassKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ClassKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "account":
		*k = AccountClass
	case "erc20":
		*k = ERC20Class
	case "generic":
		*k = GenericClass
	default:
		return fmt.Errorf("unknown class kind %q", text)
	}
	return nil
}

type EntryPoint struct {
	Name     string     `cbor:"1,keyasint" json:"name"`
	Selector *felt.Felt `cbor:"2,keyasint" json:"selector"`
}

// Class unambiguously defines a contract's semantics. It is immutable once declared.
type Class struct {
	Kind        ClassKind    `cbor:"1,keyasint" json:"kind"`
	EntryPoints []EntryPoint `cbor:"2,keyasint" json:"entry_points"`
	Abi         string       `cbor:"3,keyasint" json:"abi"`
	// Salt distinguishes otherwise identical classes.
	Salt *felt.Felt `cbor:"4,keyasint,omitempty" json:"salt,omitempty"`
}

var (
	contractClassVersion = new(felt.Felt).SetBytes([]byte("CONTRACT_CLASS_V0.1.0"))
	compiledClassVersion = new(felt.Felt).SetBytes([]byte("COMPILED_CLASS_V1"))
	classLeafVersion     = new(felt.Felt).SetBytes([]byte("CONTRACT_CLASS_LEAF_V0"))
)

var ErrClassNotFound = errors.New("class not found")

// NewClass builds a class of the given kind exposing the named entry points.
func NewClass(kind ClassKind, abi string, entryPoints ...string) *Class {
	class := &Class{Kind: kind, Abi: abi}
	for _, name := range entryPoints {
		class.EntryPoints = append(class.EntryPoints, EntryPoint{Name: name, Selector: crypto.Selector(name)})
	}
	return class
}

// EntryPoint looks up an entry point by selector.
func (c *Class) EntryPoint(selector *felt.Felt) (EntryPoint, bool) {
	for _, ep := range c.EntryPoints {
		if ep.Selector.Equal(selector) {
			return ep, true
		}
	}
	return EntryPoint{}, false
}

func (c *Class) Hash() (*felt.Felt, error) {
	abiHash, err := crypto.StarknetKeccak([]byte(c.Abi))
	if err != nil {
		return nil, err
	}

	selectors := make([]*felt.Felt, 0, len(c.EntryPoints))
	for _, ep := range c.EntryPoints {
		selectors = append(selectors, ep.Selector)
	}
	salt := c.Salt
	if salt == nil {
		salt = &felt.Zero
	}
	return crypto.PedersenArray(
		contractClassVersion,
		new(felt.Felt).SetUint64(uint64(c.Kind)),
		crypto.PedersenArray(selectors...),
		abiHash,
		salt,
	), nil
}

// CompiledClassHash is the hash of the executable form of the class.
func (c *Class) CompiledClassHash() (*felt.Felt, error) {
	classHash, err := c.Hash()
	if err != nil {
		return nil, err
	}
	return crypto.PedersenArray(compiledClassVersion, classHash, new(felt.Felt).SetUint64(uint64(c.Kind))), nil
}

// DeclaredClass is a class together with the block that declared it.
type DeclaredClass struct {
	At                uint64     `cbor:"1,keyasint"`
	Class             *Class     `cbor:"2,keyasint"`
	CompiledClassHash *felt.Felt `cbor:"3,keyasint"`
}

func MarshalClass(c *DeclaredClass) ([]byte, error) {
	return encoder.Marshal(c)
}

func UnmarshalClass(data []byte) (*DeclaredClass, error) {
	var c DeclaredClass
	if err := encoder.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ClassLeafHash is the value a declared class has in the classes trie.
func ClassLeafHash(compiledClassHash *felt.Felt) *felt.Felt {
	return crypto.Pedersen(classLeafVersion, compiledClassHash)
}

// ContractLeafHash is the value a contract has in the contracts trie.
func ContractLeafHash(classHash, storageRoot, nonce *felt.Felt) *felt.Felt {
	// Pedersen(Pedersen(Pedersen(classHash, storageRoot), nonce), 0)
	return crypto.Pedersen(crypto.Pedersen(crypto.Pedersen(classHash, storageRoot), nonce), &felt.Zero)
}

var stateVersion = new(felt.Felt).SetBytes([]byte("STARKNET_STATE_V0"))

// StateRoot combines the contracts and classes trie roots into the global state root.
func StateRoot(contractsRoot, classesRoot *felt.Felt) *felt.Felt {
	if classesRoot.IsZero() {
		return contractsRoot
	}
	return crypto.PedersenArray(stateVersion, contractsRoot, classesRoot)
}
