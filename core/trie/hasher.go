package trie

import (
	"fmt"

	"github.com/NethermindEth/katana/core/felt"
	"github.com/sourcegraph/conc"
)

// parallelDepth bounds how deep the hasher keeps forking goroutines for binary children.
const parallelDepth = 4

// hasher computes and caches node hashes bottom-up.
type hasher struct {
	parallel bool
}

func newHasher(parallel bool) hasher {
	return hasher{parallel: parallel}
}

func (h hasher) hash(n node) *felt.Felt {
	return h.hashAt(n, 0)
}

func (h hasher) hashAt(n node, depth int) *felt.Felt {
	switch n := n.(type) {
	case *binaryNode:
		if n.flags.hash != nil {
			return n.flags.hash
		}
		var left, right *felt.Felt
		if h.parallel && depth < parallelDepth {
			var wg conc.WaitGroup
			wg.Go(func() { left = h.hashAt(n.children[0], depth+1) })
			wg.Go(func() { right = h.hashAt(n.children[1], depth+1) })
			wg.Wait()
		} else {
			left = h.hashAt(n.children[0], depth+1)
			right = h.hashAt(n.children[1], depth+1)
		}
		n.flags.hash = binaryHash(left, right)
		return n.flags.hash
	case *edgeNode:
		if n.flags.hash != nil {
			return n.flags.hash
		}
		n.flags.hash = edgeHash(h.hashAt(n.child, depth+1), &n.path)
		return n.flags.hash
	case *hashNode:
		return &n.Felt
	case *valueNode:
		return &n.Felt
	default:
		panic(fmt.Sprintf("unknown node type: %T", n))
	}
}
