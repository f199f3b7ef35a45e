package csgmarch

import "fmt"

// NodeType discriminates what a [Node] indexes into.
type NodeType int32

const (
	// NodePrimitive nodes index into the primitive catalog. They are always leaves.
	NodePrimitive NodeType = 0
	// NodeBinary nodes index into the operation catalog and combine exactly two children.
	NodeBinary NodeType = 1
)

func (nt NodeType) String() string {
	switch nt {
	case NodePrimitive:
		return "primitive"
	case NodeBinary:
		return "binary"
	}
	return fmt.Sprintf("NodeType(%d)", int32(nt))
}

// Node is one entry of a flattened CSG tree.
type Node struct {
	Type NodeType
	// Index is the position within the catalog selected by Type, not within the node array.
	Index int32
	// Sign is the orientation of the node within the tree: +1 for roots, and the
	// parent's sign multiplied by the operand selector that applies to the node.
	// It is computed during scene construction, overwriting any given value.
	// Sign is descriptive: evaluators never read it since the operand
	// selectors of each operation already orient its children.
	Sign int32
	// Parent is the index of the parent node or -1 for roots.
	Parent int32
}

// DeriveParents appends the parent of every node to dst and returns the result.
// Deriving twice from the same nodes yields identical arrays.
func DeriveParents(dst []int32, nodes []Node) []int32 {
	for i := range nodes {
		dst = append(dst, nodes[i].Parent)
	}
	return dst
}

// ValidateTree checks nodes form a forest that can be consumed by the evaluators.
// parents may be nil; when not nil it must agree pointwise with the nodes' Parent field.
// numPrimitives and numOperations are the catalog lengths Node.Index addresses.
func ValidateTree(nodes []Node, parents []int32, numPrimitives, numOperations int) error {
	_, err := validateTree(nodes, parents, numPrimitives, numOperations)
	return err
}

// validateTree returns the children of each node in ascending index order. Leaves get -1 entries.
func validateTree(nodes []Node, parents []int32, numPrimitives, numOperations int) ([][2]int32, error) {
	n := len(nodes)
	if parents != nil && len(parents) != n {
		return nil, constructionErr(-1, ErrParentMismatch, "%d parents for %d nodes", len(parents), n)
	}
	for i, node := range nodes {
		p := int(node.Parent)
		switch {
		case p == i:
			return nil, constructionErr(i, ErrSelfParent, "")
		case p < -1 || p >= n:
			return nil, constructionErr(i, ErrParentRange, "parent %d with %d nodes", p, n)
		case parents != nil && parents[i] != node.Parent:
			return nil, constructionErr(i, ErrParentMismatch, "parents[%d]=%d, node parent=%d", i, parents[i], p)
		}
		var catalogLen int
		switch node.Type {
		case NodePrimitive:
			catalogLen = numPrimitives
		case NodeBinary:
			catalogLen = numOperations
		default:
			return nil, constructionErr(i, ErrIndexRange, "unknown node type %d", int32(node.Type))
		}
		if node.Index < 0 || int(node.Index) >= catalogLen {
			return nil, constructionErr(i, ErrIndexRange, "%s index %d, catalog length %d", node.Type, node.Index, catalogLen)
		}
	}

	// Cycle detection. Every chain is walked once thanks to the memo.
	const (
		unvisited = iota
		visiting
		rooted
	)
	mark := make([]uint8, n)
	for i := range nodes {
		j := i
		steps := 0
		for j >= 0 && mark[j] == unvisited {
			mark[j] = visiting
			j = int(nodes[j].Parent)
			steps++
			if steps > n {
				break
			}
		}
		if j >= 0 && mark[j] == visiting {
			return nil, constructionErr(i, ErrCycle, "")
		}
		for j = i; j >= 0 && mark[j] == visiting; j = int(nodes[j].Parent) {
			mark[j] = rooted
		}
	}

	children := make([][2]int32, n)
	for i := range children {
		children[i] = [2]int32{-1, -1}
	}
	count := make([]int, n)
	for i, node := range nodes {
		p := int(node.Parent)
		if p < 0 {
			continue
		}
		if p > i {
			return nil, constructionErr(i, ErrOrder, "parent %d", p)
		} else if nodes[p].Type != NodeBinary {
			return nil, constructionErr(p, ErrPrimitiveParent, "child %d", i)
		} else if count[p] >= 2 {
			return nil, constructionErr(p, ErrArity, "extra child %d", i)
		}
		children[p][count[p]] = int32(i)
		count[p]++
	}
	for i, node := range nodes {
		if node.Type == NodeBinary && count[i] != 2 {
			return nil, constructionErr(i, ErrArity, "got %d children", count[i])
		}
	}
	return children, nil
}
