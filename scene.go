package csgmarch

import (
	"slices"

	"github.com/soypat/geometry/ms3"
)

// Scene is a validated, immutable CSG forest together with the catalogs its
// nodes index into. Node i's children are stored after it, so walking the node
// array backwards evaluates children before their parents.
type Scene struct {
	prims    []Primitive
	ops      []BinaryOperation
	nodes    []Node
	parents  []int32
	children [][2]int32
	roots    []int32
}

// NewScene validates the catalogs and node array and returns the resulting scene.
// The Sign field of the argument nodes is ignored and recomputed.
func NewScene(prims []Primitive, ops []BinaryOperation, nodes []Node) (*Scene, error) {
	return newScene(prims, ops, nodes, nil)
}

// NewSceneWithParents is like [NewScene] but also checks an independently
// authored parents array agrees with the nodes.
func NewSceneWithParents(prims []Primitive, ops []BinaryOperation, nodes []Node, parents []int32) (*Scene, error) {
	if parents == nil {
		parents = []int32{}
	}
	return newScene(prims, ops, nodes, parents)
}

func newScene(prims []Primitive, ops []BinaryOperation, nodes []Node, parents []int32) (*Scene, error) {
	for i, prim := range prims {
		if prim == nil {
			return nil, constructionErr(-1, ErrPrimitive, "nil primitive %d", i)
		} else if err := prim.validate(); err != nil {
			return nil, constructionErr(-1, err, "primitive %d", i)
		}
	}
	for i, op := range ops {
		if err := op.validate(); err != nil {
			return nil, constructionErr(-1, err, "operation %d", i)
		}
	}
	children, err := validateTree(nodes, parents, len(prims), len(ops))
	if err != nil {
		return nil, err
	}
	s := &Scene{
		prims:    slices.Clone(prims),
		ops:      slices.Clone(ops),
		nodes:    slices.Clone(nodes),
		children: children,
	}
	if s.nodes == nil {
		s.nodes = []Node{}
	}
	// Parents always come before children so a forward pass sees parent signs first.
	for i := range s.nodes {
		node := &s.nodes[i]
		if node.Parent < 0 {
			node.Sign = 1
			s.roots = append(s.roots, int32(i))
			continue
		}
		parent := s.nodes[node.Parent]
		which := 0
		if s.children[node.Parent][1] == int32(i) {
			which = 1
		}
		node.Sign = parent.Sign * s.ops[parent.Index].operandSign(which)
	}
	s.parents = DeriveParents(make([]int32, 0, len(s.nodes)), s.nodes)
	return s, nil
}

// NumNodes returns the amount of nodes in the scene's tree.
func (s *Scene) NumNodes() int { return len(s.nodes) }

// Primitives returns a copy of the primitive catalog.
func (s *Scene) Primitives() []Primitive { return slices.Clone(s.prims) }

// Operations returns a copy of the operation catalog.
func (s *Scene) Operations() []BinaryOperation { return slices.Clone(s.ops) }

// Nodes returns a copy of the flattened node array.
func (s *Scene) Nodes() []Node { return slices.Clone(s.nodes) }

// Parents returns a copy of the parents array, derived from the nodes.
func (s *Scene) Parents() []int32 { return slices.Clone(s.parents) }

// Roots returns the indices of nodes without a parent.
func (s *Scene) Roots() []int32 { return slices.Clone(s.roots) }

// Children returns the first and second child of node i. Leaves return -1, -1.
func (s *Scene) Children(i int) (a, b int32) {
	c := s.children[i]
	return c[0], c[1]
}

// Bounds returns the union of the bounds of all bounded primitives in the scene.
// Scenes with no bounded primitive return a unit box centered at the origin.
func (s *Scene) Bounds() ms3.Box {
	var bb ms3.Box
	found := false
	for _, prim := range s.prims {
		pb := prim.Bounds()
		if !isFinite(pb) {
			continue
		}
		if !found {
			bb = pb
			found = true
		} else {
			bb = bb.Union(pb)
		}
	}
	if !found {
		return ms3.Box{Min: ms3.Vec{X: -1, Y: -1, Z: -1}, Max: ms3.Vec{X: 1, Y: 1, Z: 1}}
	}
	return bb
}
