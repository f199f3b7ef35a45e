package csgmarch

import (
	"github.com/soypat/geometry/ms2"
)

// Shape is an authored CSG expression: either a primitive leaf or a binary
// operation over two shapes. Shapes are flattened into a [Scene] by [Builder.Flatten].
type Shape struct {
	prim Primitive
	op   BinaryOperation
	a, b *Shape
}

// IsPrimitive reports whether the shape is a leaf.
func (s *Shape) IsPrimitive() bool { return s.prim != nil }

// NewCylinder creates a cylinder of radius r centered at (x,y) spanning -depth..depth along z.
func (bld *Builder) NewCylinder(x, y, r, depth float32) *Shape {
	c := Cylinder{Offset: ms2.Vec{X: x, Y: y}, R: r, Depth: depth}
	if err := c.validate(); err != nil {
		bld.shapeErrorf("cylinder r=%g depth=%g", r, depth)
	}
	return &Shape{prim: c}
}

// NewBox creates a bar of thickness th starting at side center (x,y) running
// along slope m until xEnd, spanning -depth..depth along z.
func (bld *Builder) NewBox(x, y, m, xEnd, th, depth float32) *Shape {
	b := Box{SideCenter: ms2.Vec{X: x, Y: y}, M: m, XEnd: xEnd, Th: th, Depth: depth}
	if err := b.validate(); err != nil {
		bld.shapeErrorf("box xEnd=%g th=%g depth=%g", xEnd, th, depth)
	}
	return &Shape{prim: b}
}

// NewPlaneCutter creates the z <= 0 half-space.
func (bld *Builder) NewPlaneCutter() *Shape { return &Shape{prim: PlaneCutter{}} }

// NewFloor creates the half-space below y = [FloorHeight].
func (bld *Builder) NewFloor() *Shape { return &Shape{prim: Floor{}} }

// Union joins two shapes.
func (bld *Builder) Union(a, b *Shape) *Shape { return bld.Combine(UnionOp(0), a, b) }

// Intersect keeps the volume common to both shapes.
func (bld *Builder) Intersect(a, b *Shape) *Shape { return bld.Combine(IntersectOp(0), a, b) }

// Difference removes b from a.
func (bld *Builder) Difference(a, b *Shape) *Shape { return bld.Combine(DifferenceOp(0), a, b) }

// SmoothUnion joins two shapes with a smoothing blend of radius k.
func (bld *Builder) SmoothUnion(k float32, a, b *Shape) *Shape {
	return bld.Combine(UnionOp(k), a, b)
}

// SmoothIntersect intersects two shapes with a smoothing blend of radius k.
func (bld *Builder) SmoothIntersect(k float32, a, b *Shape) *Shape {
	return bld.Combine(IntersectOp(k), a, b)
}

// SmoothDifference removes b from a with a smoothing blend of radius k.
func (bld *Builder) SmoothDifference(k float32, a, b *Shape) *Shape {
	return bld.Combine(DifferenceOp(k), a, b)
}

// Combine joins a and b with an arbitrary operation.
func (bld *Builder) Combine(op BinaryOperation, a, b *Shape) *Shape {
	if a == nil || b == nil {
		bld.nilshape("Combine")
	}
	if err := op.validate(); err != nil {
		bld.shapeErrorf("operation %s", err)
	}
	return &Shape{op: op, a: a, b: b}
}

// Flatten lays out the argument shapes as a forest of index-addressed nodes.
// Nodes, primitives and operations are appended in depth-first pre-order so
// parents always precede their children. Shapes referenced more than once are
// duplicated since every node has exactly one parent.
func (bld *Builder) Flatten(roots ...*Shape) (*Scene, error) {
	if err := bld.Err(); err != nil {
		return nil, err
	}
	var (
		prims []Primitive
		ops   []BinaryOperation
		nodes []Node
	)
	var visit func(s *Shape, parent int32)
	visit = func(s *Shape, parent int32) {
		if s.prim != nil {
			nodes = append(nodes, Node{Type: NodePrimitive, Index: int32(len(prims)), Parent: parent})
			prims = append(prims, s.prim)
			return
		}
		self := int32(len(nodes))
		nodes = append(nodes, Node{Type: NodeBinary, Index: int32(len(ops)), Parent: parent})
		ops = append(ops, s.op)
		visit(s.a, self)
		visit(s.b, self)
	}
	for _, root := range roots {
		if root == nil {
			bld.nilshape("Flatten")
		}
		visit(root, -1)
	}
	return NewScene(prims, ops, nodes)
}
