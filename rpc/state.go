package rpc

import (
	"errors"
	"slices"

	"github.com/NethermindEth/katana/core"
	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/core/state"
	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/jsonrpc"
)

type StateUpdate struct {
	BlockHash *felt.Felt `json:"block_hash"`
	NewRoot   *felt.Felt `json:"new_root"`
	OldRoot   *felt.Felt `json:"old_root"`
	StateDiff *StateDiff `json:"state_diff"`
}

type StateDiff struct {
	StorageDiffs              []StorageDiff      `json:"storage_diffs"`
	Nonces                    []Nonce            `json:"nonces"`
	DeployedContracts         []DeployedContract `json:"deployed_contracts"`
	DeprecatedDeclaredClasses []*felt.Felt       `json:"deprecated_declared_classes"`
	DeclaredClasses           []DeclaredClass    `json:"declared_classes"`
	ReplacedClasses           []ReplacedClass    `json:"replaced_classes"`
}

type Nonce struct {
	ContractAddress felt.Felt `json:"contract_address"`
	Nonce           felt.Felt `json:"nonce"`
}

type StorageDiff struct {
	Address        felt.Felt `json:"address"`
	StorageEntries []Entry   `json:"storage_entries"`
}

type Entry struct {
	Key   felt.Felt `json:"key"`
	Value felt.Felt `json:"value"`
}

type DeployedContract struct {
	Address   felt.Felt `json:"address"`
	ClassHash felt.Felt `json:"class_hash"`
}

type ReplacedClass struct {
	ContractAddress felt.Felt `json:"contract_address"`
	ClassHash       felt.Felt `json:"class_hash"`
}

type DeclaredClass struct {
	ClassHash         felt.Felt `json:"class_hash"`
	CompiledClassHash felt.Felt `json:"compiled_class_hash"`
}

func feltCmp(a, b felt.Felt) int {
	return a.Cmp(&b)
}

// adaptStateDiff lists the changes sorted by address and key so equal diffs serialise equally.
func adaptStateDiff(diff *core.StateDiff) *StateDiff {
	adapted := &StateDiff{
		StorageDiffs:              make([]StorageDiff, 0, len(diff.StorageDiffs)),
		Nonces:                    make([]Nonce, 0, len(diff.Nonces)),
		DeployedContracts:         make([]DeployedContract, 0, len(diff.DeployedContracts)),
		DeprecatedDeclaredClasses: []*felt.Felt{},
		DeclaredClasses:           make([]DeclaredClass, 0, len(diff.DeclaredClasses)),
		ReplacedClasses:           make([]ReplacedClass, 0, len(diff.ReplacedClasses)),
	}

	for addr, entries := range diff.StorageDiffs {
		storageDiff := StorageDiff{Address: addr, StorageEntries: make([]Entry, 0, len(entries))}
		for key, value := range entries {
			storageDiff.StorageEntries = append(storageDiff.StorageEntries, Entry{Key: key, Value: *value})
		}
		slices.SortFunc(storageDiff.StorageEntries, func(a, b Entry) int { return feltCmp(a.Key, b.Key) })
		adapted.StorageDiffs = append(adapted.StorageDiffs, storageDiff)
	}
	slices.SortFunc(adapted.StorageDiffs, func(a, b StorageDiff) int { return feltCmp(a.Address, b.Address) })

	for addr, nonce := range diff.Nonces {
		adapted.Nonces = append(adapted.Nonces, Nonce{ContractAddress: addr, Nonce: *nonce})
	}
	slices.SortFunc(adapted.Nonces, func(a, b Nonce) int { return feltCmp(a.ContractAddress, b.ContractAddress) })

	for addr, classHash := range diff.DeployedContracts {
		adapted.DeployedContracts = append(adapted.DeployedContracts, DeployedContract{Address: addr, ClassHash: *classHash})
	}
	slices.SortFunc(adapted.DeployedContracts, func(a, b DeployedContract) int { return feltCmp(a.Address, b.Address) })

	for classHash, compiledClassHash := range diff.DeclaredClasses {
		adapted.DeclaredClasses = append(adapted.DeclaredClasses, DeclaredClass{
			ClassHash:         classHash,
			CompiledClassHash: *compiledClassHash,
		})
	}
	slices.SortFunc(adapted.DeclaredClasses, func(a, b DeclaredClass) int { return feltCmp(a.ClassHash, b.ClassHash) })

	for addr, classHash := range diff.ReplacedClasses {
		adapted.ReplacedClasses = append(adapted.ReplacedClasses, ReplacedClass{ContractAddress: addr, ClassHash: *classHash})
	}
	slices.SortFunc(adapted.ReplacedClasses, func(a, b ReplacedClass) int {
		return feltCmp(a.ContractAddress, b.ContractAddress)
	})
	return adapted
}

// StateUpdate returns the changes the block made to the state. The pending block's
// changes are not served.
func (h *Handler) StateUpdate(id BlockID) (*StateUpdate, *jsonrpc.Error) {
	if id.Pending {
		return nil, ErrCallOnPending
	}
	header, rpcErr := h.blockHeaderByID(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}

	diff, err := h.bcReader.StateUpdateByNumber(header.Number)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, ErrBlockNotFound
		}
		return nil, ErrInternal.CloneWithData(err)
	}

	oldRoot := &felt.Zero
	if header.Number > 0 {
		parent, err := h.bcReader.BlockHeaderByNumber(header.Number - 1)
		if err != nil {
			return nil, ErrInternal.CloneWithData(err)
		}
		oldRoot = parent.StateRoot
	}

	return &StateUpdate{
		BlockHash: header.Hash,
		NewRoot:   header.StateRoot,
		OldRoot:   oldRoot,
		StateDiff: adaptStateDiff(diff),
	}, nil
}

// StorageAt returns zero for unset keys of deployed contracts.
func (h *Handler) StorageAt(address, key felt.Felt, id BlockID) (*felt.Felt, *jsonrpc.Error) {
	stateReader, stateCloser, rpcErr := h.stateByBlockID(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}
	defer h.callAndLogErr(stateCloser, "Error closing state reader in getStorageAt")

	// unset keys read as zero, so check the contract exists first
	if _, err := stateReader.ContractClassHash(&address); err != nil {
		if errors.Is(err, state.ErrContractNotDeployed) {
			return nil, ErrContractNotFound
		}
		return nil, ErrInternal.CloneWithData(err)
	}

	value, err := stateReader.ContractStorage(&address, &key)
	if err != nil {
		return nil, ErrInternal.CloneWithData(err)
	}
	return &value, nil
}

func (h *Handler) Nonce(id BlockID, address felt.Felt) (*felt.Felt, *jsonrpc.Error) {
	stateReader, stateCloser, rpcErr := h.stateByBlockID(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}
	defer h.callAndLogErr(stateCloser, "Error closing state reader in getNonce")

	nonce, err := stateReader.ContractNonce(&address)
	if err != nil {
		if errors.Is(err, state.ErrContractNotDeployed) {
			return nil, ErrContractNotFound
		}
		return nil, ErrInternal.CloneWithData(err)
	}
	return &nonce, nil
}

func (h *Handler) ClassHashAt(id BlockID, address felt.Felt) (*felt.Felt, *jsonrpc.Error) {
	stateReader, stateCloser, rpcErr := h.stateByBlockID(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}
	defer h.callAndLogErr(stateCloser, "Error closing state reader in getClassHashAt")

	classHash, err := stateReader.ContractClassHash(&address)
	if err != nil {
		if errors.Is(err, state.ErrContractNotDeployed) {
			return nil, ErrContractNotFound
		}
		return nil, ErrInternal.CloneWithData(err)
	}
	return &classHash, nil
}

func (h *Handler) Class(id BlockID, classHash felt.Felt) (*ContractClass, *jsonrpc.Error) {
	stateReader, stateCloser, rpcErr := h.stateByBlockID(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}
	defer h.callAndLogErr(stateCloser, "Error closing state reader in getClass")

	declared, err := stateReader.Class(&classHash)
	if err != nil {
		if errors.Is(err, core.ErrClassNotFound) {
			return nil, ErrClassHashNotFound
		}
		return nil, ErrInternal.CloneWithData(err)
	}
	return adaptContractClass(declared.Class), nil
}

func (h *Handler) ClassAt(id BlockID, address felt.Felt) (*ContractClass, *jsonrpc.Error) {
	classHash, rpcErr := h.ClassHashAt(id, address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return h.Class(id, *classHash)
}
