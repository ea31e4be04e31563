package trie

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/katana/core/felt"
)

var ErrProofNodeMissing = errors.New("proof node not found")

type BinaryProof struct {
	Left  felt.Felt
	Right felt.Felt
}

type EdgeProof struct {
	Child  felt.Felt
	Path   felt.Felt
	Length uint8
}

// ProofNode is one inner node on the way from a root to a key. Exactly one of Binary and
// Edge is set.
type ProofNode struct {
	Hash   felt.Felt
	Binary *BinaryProof
	Edge   *EdgeProof
}

func (p *ProofNode) computeHash() *felt.Felt {
	if p.Binary != nil {
		return binaryHash(&p.Binary.Left, &p.Binary.Right)
	}
	var path Path
	path.SetFelt(p.Edge.Length, &p.Edge.Path)
	return edgeHash(&p.Edge.Child, &path)
}

// ProofSet collects the nodes of one or more proofs against the same root, in the order
// they were first seen.
type ProofSet struct {
	nodes []ProofNode
	index map[felt.Felt]int
}

func NewProofSet() *ProofSet {
	return &ProofSet{index: make(map[felt.Felt]int)}
}

func (s *ProofSet) Add(n ProofNode) {
	if _, ok := s.index[n.Hash]; ok {
		return
	}
	s.index[n.Hash] = len(s.nodes)
	s.nodes = append(s.nodes, n)
}

func (s *ProofSet) Get(hash *felt.Felt) (ProofNode, bool) {
	i, ok := s.index[*hash]
	if !ok {
		return ProofNode{}, false
	}
	return s.nodes[i], true
}

func (s *ProofSet) Nodes() []ProofNode {
	return s.nodes
}

func (s *ProofSet) Len() int {
	return len(s.nodes)
}

// Prove adds the nodes on the path from the root towards key to proof. For a missing key
// the nodes prove where the path diverges.
func (t *Trie) Prove(key *felt.Felt, proof *ProofSet) error {
	k, err := t.keyPath(key)
	if err != nil {
		return err
	}
	t.Hash()

	var depth uint8
	n := t.root
	for n != nil {
		switch cur := n.(type) {
		case *hashNode:
			resolved, err := t.resolve(cur, depth)
			if err != nil {
				return err
			}
			n = resolved
		case *binaryNode:
			proof.Add(ProofNode{
				Hash: *cur.flags.hash,
				Binary: &BinaryProof{
					Left:  *childRef(cur.children[0]),
					Right: *childRef(cur.children[1]),
				},
			})
			bit := k.MSB()
			k.LSBs(&k, 1)
			depth++
			n = cur.children[bit]
		case *edgeNode:
			proof.Add(ProofNode{
				Hash: *cur.flags.hash,
				Edge: &EdgeProof{
					Child:  *childRef(cur.child),
					Path:   cur.path.Felt(),
					Length: cur.path.Len(),
				},
			})
			if !cur.pathMatches(&k) {
				return nil
			}
			k.LSBs(&k, cur.path.Len())
			depth += cur.path.Len()
			n = cur.child
		case *valueNode:
			return nil
		default:
			panic(fmt.Sprintf("unknown node type: %T", cur))
		}
	}
	return nil
}

// VerifyProof checks the proof of key against root and returns the proven value, which is
// felt.Zero when the proof shows the key is absent.
func VerifyProof(root, key *felt.Felt, height uint8, proof *ProofSet) (*felt.Felt, error) {
	if root.IsZero() {
		return new(felt.Felt), nil
	}
	var k Path
	k.SetFelt(height, key)

	expected := *root
	for {
		n, ok := proof.Get(&expected)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrProofNodeMissing, expected.String())
		}
		if got := n.computeHash(); !got.Equal(&expected) {
			return nil, fmt.Errorf("proof node hash mismatch, expected hash: %s, got hash: %s", expected.String(), got.String())
		}

		switch {
		case n.Binary != nil:
			if k.MSB() == 0 {
				expected = n.Binary.Left
			} else {
				expected = n.Binary.Right
			}
			k.LSBs(&k, 1)
		case n.Edge != nil:
			var path Path
			path.SetFelt(n.Edge.Length, &n.Edge.Path)
			if !path.EqualMSBs(&k) {
				return new(felt.Felt), nil
			}
			expected = n.Edge.Child
			k.LSBs(&k, path.Len())
		default:
			return nil, errors.New("empty proof node")
		}

		if k.IsEmpty() {
			return &expected, nil
		}
	}
}
