package trie

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/katana/core/felt"
)

const (
	binaryTag byte = iota
	edgeTag
)

const (
	binaryNodeSize = 1 + 2*felt.Bytes                 // tag + left + right
	edgeNodeSize   = 1 + felt.Bytes + pathEncodedSize // tag + child + path
)

// childRef is what a parent stores for a child: the node hash, or the value itself for leaves.
func childRef(n node) *felt.Felt {
	switch n := n.(type) {
	case *binaryNode:
		return n.flags.hash
	case *edgeNode:
		return n.flags.hash
	case *hashNode:
		return &n.Felt
	case *valueNode:
		return &n.Felt
	default:
		panic(fmt.Sprintf("unknown node type: %T", n))
	}
}

// encodeNode serialises a hashed inner node.
func encodeNode(n node) []byte {
	switch n := n.(type) {
	case *binaryNode:
		blob := make([]byte, 0, binaryNodeSize)
		blob = append(blob, binaryTag)
		blob = append(blob, childRef(n.children[0]).Marshal()...)
		return append(blob, childRef(n.children[1]).Marshal()...)
	case *edgeNode:
		blob := make([]byte, 0, edgeNodeSize)
		blob = append(blob, edgeTag)
		blob = append(blob, childRef(n.child).Marshal()...)
		return append(blob, n.path.MarshalBinary()...)
	default:
		panic(fmt.Sprintf("cannot encode node type: %T", n))
	}
}

// decodeNode rebuilds the node found at depth bits below the root. Children that land on
// the last level of the trie are leaves and carry their value instead of a hash.
func decodeNode(blob []byte, hash *felt.Felt, depth, height uint8) (node, error) {
	if len(blob) == 0 {
		return nil, errors.New("empty node blob")
	}
	ref := func(b []byte, childDepth uint8) node {
		f := felt.FromBytes(b)
		if childDepth == height {
			return &valueNode{Felt: *f}
		}
		return &hashNode{Felt: *f}
	}

	cached := new(felt.Felt)
	*cached = *hash
	switch blob[0] {
	case binaryTag:
		if len(blob) != binaryNodeSize {
			return nil, fmt.Errorf("invalid binary node size: %d", len(blob))
		}
		n := &binaryNode{flags: nodeFlag{hash: cached}}
		n.children[0] = ref(blob[1:1+felt.Bytes], depth+1)
		n.children[1] = ref(blob[1+felt.Bytes:], depth+1)
		return n, nil
	case edgeTag:
		if len(blob) != edgeNodeSize {
			return nil, fmt.Errorf("invalid edge node size: %d", len(blob))
		}
		n := &edgeNode{flags: nodeFlag{hash: cached}}
		if err := n.path.UnmarshalBinary(blob[1+felt.Bytes:]); err != nil {
			return nil, err
		}
		if n.path.Len() == 0 || uint(depth)+uint(n.path.Len()) > uint(height) {
			return nil, fmt.Errorf("invalid edge path length %d at depth %d", n.path.Len(), depth)
		}
		n.child = ref(blob[1:1+felt.Bytes], depth+n.path.Len())
		return n, nil
	default:
		return nil, fmt.Errorf("unknown node tag: %d", blob[0])
	}
}
