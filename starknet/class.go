package starknet

import "github.com/NethermindEth/katana/core/felt"

type EntryPoint struct {
	Name     string     `json:"name"`
	Selector *felt.Felt `json:"selector"`
}

// ClassDefinition object returned by the feeder gateway in JSON format for the
// "get_class_by_hash" endpoint
type ClassDefinition struct {
	Kind        string       `json:"kind"`
	EntryPoints []EntryPoint `json:"entry_points"`
	Abi         string       `json:"abi"`
	Salt        *felt.Felt   `json:"salt,omitempty"`
}
