// Package trie implements the binary Merkle-Patricia trie used for Starknet state commitments.
//
// Nodes are content addressed: a committed node is stored under the hash that its parent
// refers to it by and is never overwritten. Committing an update therefore leaves every
// previous root readable, which is what gives each sealed block its own trie snapshot.
package trie

import (
	"errors"
	"fmt"

	"github.com/NethermindEth/katana/core/felt"
)

// parallelHashThreshold is the number of pending updates above which hashing forks goroutines.
const parallelHashThreshold = 64

var ErrKeyTooLarge = errors.New("key exceeds trie height")

// Trie is a sparse binary Merkle-Patricia trie of a fixed height.
//
// Terminology:
//   - path: the bits of a key consumed by an edge node on the way down.
//   - depth: the number of key bits consumed between the root and a node.
//   - leaf: a value at depth == height. A zero value is never stored.
type Trie struct {
	height uint8
	root   node
	store  NodeStore

	pendingUpdates int
}

// New opens the trie with the given root. A zero root opens an empty trie.
func New(store NodeStore, height uint8, root *felt.Felt) (*Trie, error) {
	if height == 0 || height > MaxPathLen {
		return nil, fmt.Errorf("trie height must be between 1 and %d, got: %d", MaxPathLen, height)
	}
	t := &Trie{
		height: height,
		store:  store,
	}
	if root != nil && !root.IsZero() {
		t.root = &hashNode{Felt: *root}
	}
	return t, nil
}

// NewTemp creates an in-memory trie, used for per-block commitments.
func NewTemp(height uint8) (*Trie, error) {
	return New(newMemStore(), height, nil)
}

// RunOnTempTrie creates an in-memory Trie of height `height` and runs `do` on that Trie
func RunOnTempTrie(height uint8, do func(*Trie) error) error {
	t, err := NewTemp(height)
	if err != nil {
		return err
	}
	return do(t)
}

func (t *Trie) Height() uint8 {
	return t.height
}

func (t *Trie) keyPath(key *felt.Felt) (Path, error) {
	var p Path
	p.SetFelt(t.height, key)
	if f := p.Felt(); !f.Equal(key) {
		return p, fmt.Errorf("%w: %s does not fit in %d bits", ErrKeyTooLarge, key, t.height)
	}
	return p, nil
}

// Get returns the value stored under key, felt.Zero if there is none.
func (t *Trie) Get(key *felt.Felt) (*felt.Felt, error) {
	k, err := t.keyPath(key)
	if err != nil {
		return nil, err
	}
	val, root, resolved, err := t.get(t.root, 0, &k)
	if err != nil {
		return nil, err
	}
	if resolved {
		t.root = root
	}
	if val == nil {
		return new(felt.Felt), nil
	}
	ret := *val
	return &ret, nil
}

// Put sets the value under key. A zero value deletes the key.
func (t *Trie) Put(key, value *felt.Felt) error {
	k, err := t.keyPath(key)
	if err != nil {
		return err
	}

	var root node
	if value.IsZero() {
		_, root, err = t.delete(t.root, 0, &k)
	} else {
		_, root, err = t.insert(t.root, 0, &k, &valueNode{Felt: *value})
	}
	if err != nil {
		return err
	}
	t.root = root
	t.pendingUpdates++
	return nil
}

// Hash returns the root hash, hashing every node that changed since the last call.
func (t *Trie) Hash() *felt.Felt {
	if t.root == nil {
		return new(felt.Felt)
	}
	h := newHasher(t.pendingUpdates > parallelHashThreshold)
	root := *h.hash(t.root)
	return &root
}

// Commit writes every node created since the trie was opened to its store and returns
// the new root hash. The trie stays usable after a commit.
func (t *Trie) Commit() (*felt.Felt, error) {
	root := t.Hash()
	if t.root == nil {
		return root, nil
	}
	if err := t.collect(t.root); err != nil {
		return nil, err
	}
	t.pendingUpdates = 0
	return root, nil
}

// collect stores dirty nodes children first, so a stored parent never references a missing child.
func (t *Trie) collect(n node) error {
	switch n := n.(type) {
	case *binaryNode:
		if !n.flags.dirty {
			return nil
		}
		for _, child := range n.children {
			if err := t.collect(child); err != nil {
				return err
			}
		}
		if err := t.store.Put(n.flags.hash, encodeNode(n)); err != nil {
			return err
		}
		n.flags.dirty = false
	case *edgeNode:
		if !n.flags.dirty {
			return nil
		}
		if err := t.collect(n.child); err != nil {
			return err
		}
		if err := t.store.Put(n.flags.hash, encodeNode(n)); err != nil {
			return err
		}
		n.flags.dirty = false
	}
	return nil
}

func (t *Trie) get(n node, depth uint8, key *Path) (*felt.Felt, node, bool, error) {
	switch n := n.(type) {
	case *edgeNode:
		if !n.pathMatches(key) {
			return nil, n, false, nil
		}
		val, child, resolved, err := t.get(n.child, depth+n.path.Len(), new(Path).LSBs(key, n.path.Len()))
		if err == nil && resolved {
			n = n.copy()
			n.child = child
		}
		return val, n, resolved, err
	case *binaryNode:
		bit := key.MSB()
		val, child, resolved, err := t.get(n.children[bit], depth+1, new(Path).LSBs(key, 1))
		if err == nil && resolved {
			n = n.copy()
			n.children[bit] = child
		}
		return val, n, resolved, err
	case *hashNode:
		child, err := t.resolve(n, depth)
		if err != nil {
			return nil, n, false, err
		}
		val, newNode, _, err := t.get(child, depth, key)
		return val, newNode, true, err
	case *valueNode:
		return &n.Felt, n, false, nil
	case nil:
		return nil, nil, false, nil
	default:
		panic(fmt.Sprintf("unknown node type: %T", n))
	}
}

// newSubtrie returns the node reaching child through the remaining path bits.
func newSubtrie(path *Path, child node) node {
	if path.IsEmpty() {
		return child
	}
	return &edgeNode{path: *path, child: child, flags: newFlag()}
}

//nolint:gocyclo
func (t *Trie) insert(n node, depth uint8, key *Path, value *valueNode) (bool, node, error) {
	if key.IsEmpty() {
		if v, ok := n.(*valueNode); ok && v.Equal(&value.Felt) {
			return false, n, nil
		}
		return true, value, nil
	}

	switch n := n.(type) {
	case *edgeNode:
		match := n.commonPath(key)
		// the edge is a prefix of the key, descend below it
		if match.Len() == n.path.Len() {
			dirty, child, err := t.insert(n.child, depth+n.path.Len(), new(Path).LSBs(key, match.Len()), value)
			if !dirty || err != nil {
				return false, n, err
			}
			return true, &edgeNode{path: n.path, child: child, flags: newFlag()}, nil
		}

		// otherwise branch out at the first differing bit
		branch := &binaryNode{flags: newFlag()}
		branch.children[n.path.Bit(match.Len())] = newSubtrie(new(Path).LSBs(&n.path, match.Len()+1), n.child)
		branch.children[key.Bit(match.Len())] = newSubtrie(new(Path).LSBs(key, match.Len()+1), value)
		if match.IsEmpty() {
			return true, branch, nil
		}
		return true, &edgeNode{path: match, child: branch, flags: newFlag()}, nil
	case *binaryNode:
		bit := key.MSB()
		dirty, child, err := t.insert(n.children[bit], depth+1, new(Path).LSBs(key, 1), value)
		if !dirty || err != nil {
			return false, n, err
		}
		n = n.copy()
		n.flags = newFlag()
		n.children[bit] = child
		return true, n, nil
	case *hashNode:
		resolved, err := t.resolve(n, depth)
		if err != nil {
			return false, n, err
		}
		dirty, newNode, err := t.insert(resolved, depth, key, value)
		if !dirty || err != nil {
			return false, resolved, err
		}
		return true, newNode, nil
	case nil:
		return true, newSubtrie(key, value), nil
	default:
		return false, n, fmt.Errorf("unexpected %T above the leaf level", n)
	}
}

//nolint:gocyclo
func (t *Trie) delete(n node, depth uint8, key *Path) (bool, node, error) {
	switch n := n.(type) {
	case *edgeNode:
		match := n.commonPath(key)
		if match.Len() < n.path.Len() {
			return false, n, nil
		}
		// the edge leads straight to the leaf being removed
		if match.Len() == key.Len() {
			return true, nil, nil
		}

		dirty, child, err := t.delete(n.child, depth+n.path.Len(), new(Path).LSBs(key, n.path.Len()))
		if !dirty || err != nil {
			return false, n, err
		}
		switch child := child.(type) {
		case nil:
			return true, nil, nil
		case *edgeNode:
			return true, &edgeNode{path: *new(Path).Append(&n.path, &child.path), child: child.child, flags: newFlag()}, nil
		default:
			return true, &edgeNode{path: n.path, child: child, flags: newFlag()}, nil
		}
	case *binaryNode:
		bit := key.MSB()
		dirty, child, err := t.delete(n.children[bit], depth+1, new(Path).LSBs(key, 1))
		if !dirty || err != nil {
			return false, n, err
		}
		if child != nil {
			n = n.copy()
			n.flags = newFlag()
			n.children[bit] = child
			return true, n, nil
		}

		// a single child is left, fold this node into an edge leading to it
		other := bit ^ 1
		sibling := n.children[other]
		if hn, ok := sibling.(*hashNode); ok {
			sibling, err = t.resolve(hn, depth+1)
			if err != nil {
				return false, n, err
			}
		}
		bitPath := new(Path).SetBit(other)
		if en, ok := sibling.(*edgeNode); ok {
			return true, &edgeNode{path: *new(Path).Append(bitPath, &en.path), child: en.child, flags: newFlag()}, nil
		}
		return true, &edgeNode{path: *bitPath, child: sibling, flags: newFlag()}, nil
	case *valueNode:
		return true, nil, nil
	case *hashNode:
		resolved, err := t.resolve(n, depth)
		if err != nil {
			return false, n, err
		}
		dirty, newNode, err := t.delete(resolved, depth, key)
		if !dirty || err != nil {
			return false, resolved, err
		}
		return true, newNode, nil
	case nil:
		return false, nil, nil
	default:
		panic(fmt.Sprintf("unknown node type: %T", n))
	}
}

func (t *Trie) resolve(n *hashNode, depth uint8) (node, error) {
	blob, err := t.store.Node(&n.Felt)
	if err != nil {
		return nil, err
	}
	return decodeNode(blob, &n.Felt, depth, t.height)
}

func (t *Trie) String() string {
	if t.root == nil {
		return ""
	}
	return t.root.String()
}
