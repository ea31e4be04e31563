package trie

import (
	"fmt"
	"strings"

	"github.com/NethermindEth/katana/core/crypto"
	"github.com/NethermindEth/katana/core/felt"
)

var (
	_ node = (*binaryNode)(nil)
	_ node = (*edgeNode)(nil)
	_ node = (*hashNode)(nil)
	_ node = (*valueNode)(nil)
)

type node interface {
	String() string
}

type (
	binaryNode struct {
		children [2]node // 0 = left, 1 = right
		flags    nodeFlag
	}
	edgeNode struct {
		child node
		path  Path
		flags nodeFlag
	}
	// hashNode is a reference to a node that has not been loaded from storage.
	hashNode  struct{ felt.Felt }
	valueNode struct{ felt.Felt }
)

type nodeFlag struct {
	hash  *felt.Felt
	dirty bool
}

func newFlag() nodeFlag { return nodeFlag{dirty: true} }

func binaryHash(left, right *felt.Felt) *felt.Felt {
	return crypto.Pedersen(left, right)
}

func edgeHash(child *felt.Felt, path *Path) *felt.Felt {
	pathFelt := path.Felt()
	length := new(felt.Felt).SetUint64(uint64(path.Len()))
	return new(felt.Felt).Add(crypto.Pedersen(child, &pathFelt), length)
}

func (n *binaryNode) copy() *binaryNode { cpy := *n; return &cpy }
func (n *edgeNode) copy() *edgeNode     { cpy := *n; return &cpy }

func (n *edgeNode) pathMatches(key *Path) bool {
	return n.path.EqualMSBs(key)
}

// commonPath returns the bits shared by the edge path and key, starting from the most significant bit
func (n *edgeNode) commonPath(key *Path) Path {
	var common Path
	common.CommonMSBs(&n.path, key)
	return common
}

func (n *binaryNode) String() string {
	var left, right string
	if n.children[0] != nil {
		left = n.children[0].String()
	}
	if n.children[1] != nil {
		right = n.children[1].String()
	}
	return fmt.Sprintf("Binary[\n  left: %s\n  right: %s\n]", indent(left), indent(right))
}

func (n *edgeNode) String() string {
	var child string
	if n.child != nil {
		child = n.child.String()
	}
	return fmt.Sprintf("Edge{\n  path: %s\n  child: %s\n}", n.path.String(), indent(child))
}

func (n *hashNode) String() string {
	return fmt.Sprintf("Hash(%s)", n.Felt.String())
}

func (n *valueNode) String() string {
	return fmt.Sprintf("Value(%s)", n.Felt.String())
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = "  " + line
	}
	return strings.Join(lines, "\n")
}
