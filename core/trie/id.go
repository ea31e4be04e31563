package trie

import (
	"github.com/NethermindEth/katana/core/felt"
)

type Kind uint8

const (
	Temporary Kind = iota
	ContractsTrie
	ClassesTrie
	StorageTrie
)

func (k Kind) String() string {
	switch k {
	case ContractsTrie:
		return "contracts"
	case ClassesTrie:
		return "classes"
	case StorageTrie:
		return "storage"
	default:
		return "temporary"
	}
}

// ID identifies a trie in the node store. Storage tries are owned by a contract address.
type ID struct {
	Kind  Kind
	Owner felt.Felt
}

func ContractsID() ID {
	return ID{Kind: ContractsTrie}
}

func ClassesID() ID {
	return ID{Kind: ClassesTrie}
}

func StorageID(owner *felt.Felt) ID {
	return ID{Kind: StorageTrie, Owner: *owner}
}

// Key is the node store prefix of the trie: the owner followed by the kind.
func (id ID) Key() []byte {
	key := make([]byte, 0, felt.Bytes+1)
	key = append(key, id.Owner.Marshal()...)
	return append(key, byte(id.Kind))
}
