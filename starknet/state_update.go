package starknet

import "github.com/NethermindEth/katana/core/felt"

// StateUpdate object returned by the feeder gateway in JSON format for the "get_state_update" endpoint
type StateUpdate struct {
	BlockHash *felt.Felt `json:"block_hash"`
	NewRoot   *felt.Felt `json:"new_root"`
	OldRoot   *felt.Felt `json:"old_root"`
	StateDiff StateDiff  `json:"state_diff"`
}

type StorageEntry struct {
	Key   *felt.Felt `json:"key"`
	Value *felt.Felt `json:"value"`
}

type AddressClassHash struct {
	Address   *felt.Felt `json:"address"`
	ClassHash *felt.Felt `json:"class_hash"`
}

type DeclaredClass struct {
	ClassHash         *felt.Felt `json:"class_hash"`
	CompiledClassHash *felt.Felt `json:"compiled_class_hash"`
}

// StateDiff keys contract addresses by their hex string, the way the gateway serves them.
type StateDiff struct {
	StorageDiffs      map[string][]StorageEntry `json:"storage_diffs"`
	Nonces            map[string]*felt.Felt     `json:"nonces"`
	DeployedContracts []AddressClassHash        `json:"deployed_contracts"`
	DeclaredClasses   []DeclaredClass           `json:"declared_classes"`
	ReplacedClasses   []AddressClassHash        `json:"replaced_classes"`
}

// StateUpdateWithBlock object returned by the feeder gateway in JSON format for the
// "get_state_update" endpoint with the includeBlock argument
type StateUpdateWithBlock struct {
	Block       *Block       `json:"block"`
	StateUpdate *StateUpdate `json:"state_update"`
}
