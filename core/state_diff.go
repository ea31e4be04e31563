package core

import (
	"maps"
	"slices"

	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/core/felt"
)

// StateDiff is the change one block makes to the state.
type StateDiff struct {
	StorageDiffs      map[felt.Felt]map[felt.Felt]*felt.Felt `cbor:"1,keyasint" json:"storage_diffs"`      // addr -> {key -> value, ...}
	Nonces            map[felt.Felt]*felt.Felt               `cbor:"2,keyasint" json:"nonces"`             // addr -> nonce
	DeployedContracts map[felt.Felt]*felt.Felt               `cbor:"3,keyasint" json:"deployed_contracts"` // addr -> class hash
	DeclaredClasses   map[felt.Felt]*felt.Felt               `cbor:"4,keyasint" json:"declared_classes"`   // class hash -> compiled class hash
	ReplacedClasses   map[felt.Felt]*felt.Felt               `cbor:"5,keyasint" json:"replaced_classes"`   // addr -> class hash
}

func EmptyStateDiff() *StateDiff {
	return &StateDiff{
		StorageDiffs:      make(map[felt.Felt]map[felt.Felt]*felt.Felt),
		Nonces:            make(map[felt.Felt]*felt.Felt),
		DeployedContracts: make(map[felt.Felt]*felt.Felt),
		DeclaredClasses:   make(map[felt.Felt]*felt.Felt),
		ReplacedClasses:   make(map[felt.Felt]*felt.Felt),
	}
}

// Merge applies the changes of other on top of d. Later writes win.
func (d *StateDiff) Merge(other *StateDiff) {
	d.ensureMaps()
	for addr, diff := range other.StorageDiffs {
		existing, ok := d.StorageDiffs[addr]
		if !ok {
			existing = make(map[felt.Felt]*felt.Felt, len(diff))
			d.StorageDiffs[addr] = existing
		}
		maps.Copy(existing, diff)
	}
	maps.Copy(d.Nonces, other.Nonces)
	maps.Copy(d.DeployedContracts, other.DeployedContracts)
	maps.Copy(d.DeclaredClasses, other.DeclaredClasses)
	maps.Copy(d.ReplacedClasses, other.ReplacedClasses)
}

func (d *StateDiff) ensureMaps() {
	if d.StorageDiffs == nil {
		d.StorageDiffs = make(map[felt.Felt]map[felt.Felt]*felt.Felt)
	}
	if d.Nonces == nil {
		d.Nonces = make(map[felt.Felt]*felt.Felt)
	}
	if d.DeployedContracts == nil {
		d.DeployedContracts = make(map[felt.Felt]*felt.Felt)
	}
	if d.DeclaredClasses == nil {
		d.DeclaredClasses = make(map[felt.Felt]*felt.Felt)
	}
	if d.ReplacedClasses == nil {
		d.ReplacedClasses = make(map[felt.Felt]*felt.Felt)
	}
}

func (d *StateDiff) Copy() *StateDiff {
	cp := EmptyStateDiff()
	cp.Merge(d)
	return cp
}

func (d *StateDiff) IsEmpty() bool {
	return d.Length() == 0
}

// Length is the number of entries in the diff, counting each storage slot separately.
func (d *StateDiff) Length() uint64 {
	var length int
	for _, storageDiff := range d.StorageDiffs {
		length += len(storageDiff)
	}
	length += len(d.Nonces)
	length += len(d.DeployedContracts)
	length += len(d.DeclaredClasses)
	length += len(d.ReplacedClasses)
	return uint64(length)
}

// TouchedAddresses returns every contract address the diff changes, sorted.
func (d *StateDiff) TouchedAddresses() []felt.Felt {
	seen := make(map[felt.Felt]struct{})
	for addr := range d.StorageDiffs {
		seen[addr] = struct{}{}
	}
	for addr := range d.Nonces {
		seen[addr] = struct{}{}
	}
	for addr := range d.DeployedContracts {
		seen[addr] = struct{}{}
	}
	for addr := range d.ReplacedClasses {
		seen[addr] = struct{}{}
	}
	return sortedKeys(seen)
}

var stateDiffMagic = new(felt.Felt).SetBytes([]byte("STARKNET_STATE_DIFF0"))

// Hash is the state diff commitment. Every map is hashed in ascending key order.
func (d *StateDiff) Hash() *felt.Felt {
	var digest crypto.PedersenDigest
	digest.Update(stateDiffMagic)

	// updated_contracts = deployedContracts + replacedClasses
	updatedContracts := make(map[felt.Felt]*felt.Felt, len(d.DeployedContracts)+len(d.ReplacedClasses))
	maps.Copy(updatedContracts, d.DeployedContracts)
	maps.Copy(updatedContracts, d.ReplacedClasses)
	digest.Update(new(felt.Felt).SetUint64(uint64(len(updatedContracts))))
	for _, addr := range sortedKeys(updatedContracts) {
		digest.Update(&addr, updatedContracts[addr])
	}

	digest.Update(new(felt.Felt).SetUint64(uint64(len(d.DeclaredClasses))))
	for _, classHash := range sortedKeys(d.DeclaredClasses) {
		digest.Update(&classHash, d.DeclaredClasses[classHash])
	}

	digest.Update(&felt.One, &felt.Zero) // DA mode marker

	digest.Update(new(felt.Felt).SetUint64(uint64(len(d.StorageDiffs))))
	for _, addr := range sortedKeys(d.StorageDiffs) {
		diff := d.StorageDiffs[addr]
		digest.Update(&addr, new(felt.Felt).SetUint64(uint64(len(diff))))
		for _, key := range sortedKeys(diff) {
			digest.Update(&key, diff[key])
		}
	}

	digest.Update(new(felt.Felt).SetUint64(uint64(len(d.Nonces))))
	for _, addr := range sortedKeys(d.Nonces) {
		digest.Update(&addr, d.Nonces[addr])
	}
	return digest.Finish()
}

func sortedKeys[V any](m map[felt.Felt]V) []felt.Felt {
	keys := slices.Collect(maps.Keys(m))
	slices.SortFunc(keys, func(a, b felt.Felt) int {
		return a.Cmp(&b)
	})
	return keys
}
