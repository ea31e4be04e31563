package rpc

import (
	"errors"

	"github.com/NethermindEth/katana/core/felt"
	"github.com/NethermindEth/katana/core/state"
	"github.com/NethermindEth/katana/core/trie"
	"github.com/NethermindEth/katana/db"
	"github.com/NethermindEth/katana/jsonrpc"
	"github.com/NethermindEth/katana/utils"
)

const (
	MissingContractAddress = "missing field: contract_address"
	MissingStorageKeys     = "missing field: storage_keys"
)

type StorageKeys struct {
	Contract *felt.Felt  `json:"contract_address"`
	Keys     []felt.Felt `json:"storage_keys"`
}

// Node is a binary or an edge node of a merkle proof.
type Node interface {
	proofNode(hash *felt.Felt) trie.ProofNode
}

type BinaryNode struct {
	Left  *felt.Felt `json:"left"`
	Right *felt.Felt `json:"right"`
}

func (b *BinaryNode) proofNode(hash *felt.Felt) trie.ProofNode {
	return trie.ProofNode{Hash: *hash, Binary: &trie.BinaryProof{Left: *b.Left, Right: *b.Right}}
}

type EdgeNode struct {
	Path   *felt.Felt `json:"path"`
	Length uint8      `json:"length"`
	Child  *felt.Felt `json:"child"`
}

func (e *EdgeNode) proofNode(hash *felt.Felt) trie.ProofNode {
	return trie.ProofNode{Hash: *hash, Edge: &trie.EdgeProof{Child: *e.Child, Path: *e.Path, Length: e.Length}}
}

type HashToNode struct {
	Hash *felt.Felt `json:"node_hash"`
	Node Node       `json:"node"`
}

// ProofSet collects nodes back into a set trie.VerifyProof accepts.
func ProofSet(nodes []*HashToNode) *trie.ProofSet {
	set := trie.NewProofSet()
	for _, n := range nodes {
		set.Add(n.Node.proofNode(n.Hash))
	}
	return set
}

type LeafData struct {
	Nonce       *felt.Felt `json:"nonce"`
	ClassHash   *felt.Felt `json:"class_hash"`
	StorageRoot *felt.Felt `json:"storage_root"`
}

type ContractProof struct {
	Nodes      []*HashToNode `json:"nodes"`
	LeavesData []*LeafData   `json:"contract_leaves_data"`
}

type GlobalRoots struct {
	ContractsTreeRoot *felt.Felt `json:"contracts_tree_root"`
	ClassesTreeRoot   *felt.Felt `json:"classes_tree_root"`
	BlockHash         *felt.Felt `json:"block_hash"`
}

type StorageProofResult struct {
	ClassesProof           []*HashToNode   `json:"classes_proof"`
	ContractsProof         *ContractProof  `json:"contracts_proof"`
	ContractsStorageProofs [][]*HashToNode `json:"contracts_storage_proofs"`
	GlobalRoots            *GlobalRoots    `json:"global_roots"`
}

// StorageProof proves classes, contracts and storage slots against the tries committed by
// a sealed block. Any block still retained can be proven.
func (h *Handler) StorageProof(id BlockID, classes, contracts []felt.Felt, storageKeys []StorageKeys,
) (*StorageProofResult, *jsonrpc.Error) {
	if id.Pending {
		return nil, ErrCallOnPending
	}

	classes = utils.Set(classes)
	contracts = utils.Set(contracts)
	uniqueStorageKeys, rpcErr := processStorageKeys(storageKeys)
	if rpcErr != nil {
		return nil, rpcErr
	}
	requested := len(classes) + len(contracts)
	for _, sk := range uniqueStorageKeys {
		requested += len(sk.Keys)
	}
	if uint(requested) > h.maxProofKeys {
		return nil, ErrProofLimitExceeded.CloneWithData(requested)
	}

	header, rpcErr := h.blockHeaderByID(&id)
	if rpcErr != nil {
		return nil, rpcErr
	}
	snapshot, closer, err := h.bcReader.StateAtBlockNumber(header.Number)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) || errors.Is(err, state.ErrFutureBlock) {
			return nil, ErrBlockNotFound
		}
		return nil, ErrInternal.CloneWithData(err)
	}
	defer h.callAndLogErr(closer, "Error closing state reader in getStorageProof")

	classTrie, err := snapshot.ClassesTrie()
	if err != nil {
		return nil, ErrInternal.CloneWithData(err)
	}
	contractTrie, err := snapshot.ContractsTrie()
	if err != nil {
		return nil, ErrInternal.CloneWithData(err)
	}

	classProof, err := proveKeys(classTrie, classes)
	if err != nil {
		return nil, ErrInternal.CloneWithData(err)
	}
	contractProof, err := getContractProof(contractTrie, snapshot, contracts)
	if err != nil {
		return nil, ErrInternal.CloneWithData(err)
	}
	storageProofs, err := getContractStorageProofs(snapshot, uniqueStorageKeys)
	if err != nil {
		return nil, ErrInternal.CloneWithData(err)
	}

	return &StorageProofResult{
		ClassesProof:           classProof,
		ContractsProof:         contractProof,
		ContractsStorageProofs: storageProofs,
		GlobalRoots: &GlobalRoots{
			ContractsTreeRoot: contractTrie.Hash(),
			ClassesTreeRoot:   classTrie.Hash(),
			BlockHash:         header.Hash,
		},
	}, nil
}

// processStorageKeys merges the requests per contract and drops repeated keys.
func processStorageKeys(storageKeys []StorageKeys) ([]StorageKeys, *jsonrpc.Error) {
	if len(storageKeys) == 0 {
		return nil, nil
	}

	var order []felt.Felt
	merged := make(map[felt.Felt][]felt.Felt, len(storageKeys))
	for _, sk := range storageKeys {
		if sk.Contract == nil {
			return nil, jsonrpc.Err(jsonrpc.InvalidParams, MissingContractAddress)
		}
		if len(sk.Keys) == 0 {
			return nil, jsonrpc.Err(jsonrpc.InvalidParams, MissingStorageKeys)
		}
		if _, ok := merged[*sk.Contract]; !ok {
			order = append(order, *sk.Contract)
		}
		merged[*sk.Contract] = append(merged[*sk.Contract], sk.Keys...)
	}

	unique := make([]StorageKeys, 0, len(merged))
	for _, contract := range order {
		unique = append(unique, StorageKeys{Contract: &contract, Keys: utils.Set(merged[contract])})
	}
	return unique, nil
}

func proveKeys(t *trie.Trie, keys []felt.Felt) ([]*HashToNode, error) {
	proof := trie.NewProofSet()
	for _, key := range keys {
		if err := t.Prove(&key, proof); err != nil {
			return nil, err
		}
	}
	return adaptProofNodes(proof), nil
}

func getContractProof(t *trie.Trie, snapshot *state.Snapshot, contracts []felt.Felt) (*ContractProof, error) {
	proof := trie.NewProofSet()
	leaves := make([]*LeafData, len(contracts))
	for i, contract := range contracts {
		if err := t.Prove(&contract, proof); err != nil {
			return nil, err
		}

		nonce, err := snapshot.ContractNonce(&contract)
		if err != nil {
			// not deployed, the proof shows the leaf is absent
			if errors.Is(err, state.ErrContractNotDeployed) {
				continue
			}
			return nil, err
		}
		classHash, err := snapshot.ContractClassHash(&contract)
		if err != nil {
			return nil, err
		}
		storageRoot, err := snapshot.StorageRoot(&contract)
		if err != nil {
			return nil, err
		}
		leaves[i] = &LeafData{Nonce: &nonce, ClassHash: &classHash, StorageRoot: &storageRoot}
	}

	return &ContractProof{
		Nodes:      adaptProofNodes(proof),
		LeavesData: leaves,
	}, nil
}

func getContractStorageProofs(snapshot *state.Snapshot, storageKeys []StorageKeys) ([][]*HashToNode, error) {
	proofs := make([][]*HashToNode, len(storageKeys))
	for i, sk := range storageKeys {
		storageTrie, err := snapshot.StorageTrie(sk.Contract)
		if err != nil {
			return nil, err
		}
		if proofs[i], err = proveKeys(storageTrie, sk.Keys); err != nil {
			return nil, err
		}
	}
	return proofs, nil
}

func adaptProofNodes(proof *trie.ProofSet) []*HashToNode {
	nodes := make([]*HashToNode, 0, proof.Len())
	for _, n := range proof.Nodes() {
		hash := n.Hash
		var node Node
		switch {
		case n.Binary != nil:
			node = &BinaryNode{Left: &n.Binary.Left, Right: &n.Binary.Right}
		case n.Edge != nil:
			node = &EdgeNode{Path: &n.Edge.Path, Length: n.Edge.Length, Child: &n.Edge.Child}
		}
		nodes = append(nodes, &HashToNode{Hash: &hash, Node: node})
	}
	return nodes
}
