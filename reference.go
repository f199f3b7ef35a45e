package csgmarch

import "github.com/soypat/geometry/ms2"

// Reference scene table sizes.
const (
	ReferenceNumPrimitives = 13
	ReferenceNumOperations = 12
	ReferenceNumNodes      = 25
)

// ReferencePrimitives returns the primitive catalog of the reference scene:
// the UFABC logo standing on a floor. Cylinders come in outer/hole pairs
// forming three rings, followed by the ring cutters, the yellow bar and the
// bar's cutters.
func ReferencePrimitives() [ReferenceNumPrimitives]Primitive {
	return [ReferenceNumPrimitives]Primitive{
		Floor{},
		Cylinder{Offset: ms2.Vec{X: -0.46, Y: -0.5}, R: 0.5, Depth: 0.5},
		Cylinder{Offset: ms2.Vec{X: -0.46, Y: -0.5}, R: 0.42, Depth: 0.51},
		Cylinder{Offset: ms2.Vec{X: 0, Y: 0.296743}, R: 0.5, Depth: 0.5},
		Cylinder{Offset: ms2.Vec{X: 0, Y: 0.296743}, R: 0.42, Depth: 0.51},
		Cylinder{Offset: ms2.Vec{X: 0.46, Y: -0.5}, R: 0.5, Depth: 0.5},
		Cylinder{Offset: ms2.Vec{X: 0.46, Y: -0.5}, R: 0.42, Depth: 0.51},
		Box{SideCenter: ms2.Vec{X: 0.46, Y: -0.5}, M: 1.690, XEnd: 1, Th: 0.16, Depth: 0.51},
		Box{SideCenter: ms2.Vec{X: 0.46, Y: -0.5}, M: -0.5774, XEnd: -1.15, Th: 0.16, Depth: 0.51},
		Box{SideCenter: ms2.Vec{X: 0.46, Y: -0.5}, M: -0.5774, XEnd: -1.15, Th: 0.16, Depth: 0.50},
		Box{SideCenter: ms2.Vec{X: 0.46, Y: -0.5}, M: -0.5774, XEnd: -1.15, Th: 0.02, Depth: 0.51},
		Cylinder{Offset: ms2.Vec{X: 0.46, Y: -0.5}, R: 0.42, Depth: 0.51},
		PlaneCutter{},
	}
}

// ReferenceOperations returns the operation catalog of the reference scene.
// Only the last operation blends its operands.
func ReferenceOperations() [ReferenceNumOperations]BinaryOperation {
	union := UnionOp(0)
	diff := DifferenceOp(0)
	return [ReferenceNumOperations]BinaryOperation{
		union, union, diff, union, union, diff, diff, diff, union, diff, union,
		UnionOp(0.060),
	}
}

// ReferenceTree returns the node array of the reference scene and its
// independently authored parents array.
func ReferenceTree() ([ReferenceNumNodes]Node, [ReferenceNumNodes]int32) {
	bin := func(idx, parent int32) Node { return Node{Type: NodeBinary, Index: idx, Parent: parent} }
	prim := func(idx, parent int32) Node { return Node{Type: NodePrimitive, Index: idx, Parent: parent} }
	nodes := [ReferenceNumNodes]Node{
		bin(0, -1),
		prim(0, 0),
		bin(1, 0),
		bin(2, 2),
		bin(3, 3),
		bin(4, 4),
		bin(5, 5),
		prim(1, 6),
		prim(2, 6),
		bin(6, 5),
		prim(3, 9),
		prim(4, 9),
		bin(7, 4),
		prim(5, 12),
		prim(6, 12),
		bin(8, 3),
		prim(7, 15),
		prim(8, 15),
		bin(9, 2),
		prim(9, 18),
		bin(10, 18),
		bin(11, 20),
		prim(10, 21),
		prim(11, 21),
		prim(12, 20),
	}
	parents := [ReferenceNumNodes]int32{
		-1, 0, 0,
		2, 3, 4, 5, 6, 6, 5, 9, 9, 4, 12, 12,
		3, 15, 15,
		2, 18, 18, 20, 21, 21, 20,
	}
	return nodes, parents
}

// ReferenceScene builds and validates the reference scene from its literal tables.
func ReferenceScene() (*Scene, error) {
	prims := ReferencePrimitives()
	ops := ReferenceOperations()
	nodes, parents := ReferenceTree()
	return NewSceneWithParents(prims[:], ops[:], nodes[:], parents[:])
}

// ReferenceShape authors the reference scene with the builder. Flattening it
// yields the same tables as [ReferenceScene].
func ReferenceShape(bld *Builder) *Shape {
	ring := func(x, y float32) *Shape {
		return bld.Difference(bld.NewCylinder(x, y, 0.5, 0.5), bld.NewCylinder(x, y, 0.42, 0.51))
	}
	rings := bld.Union(bld.Union(ring(-0.46, -0.5), ring(0, 0.296743)), ring(0.46, -0.5))
	cutters := bld.Union(
		bld.NewBox(0.46, -0.5, 1.690, 1, 0.16, 0.51),
		bld.NewBox(0.46, -0.5, -0.5774, -1.15, 0.16, 0.51),
	)
	logo := bld.Difference(rings, cutters)
	barCutters := bld.Union(
		bld.SmoothUnion(0.060,
			bld.NewBox(0.46, -0.5, -0.5774, -1.15, 0.02, 0.51),
			bld.NewCylinder(0.46, -0.5, 0.42, 0.51),
		),
		bld.NewPlaneCutter(),
	)
	bar := bld.Difference(bld.NewBox(0.46, -0.5, -0.5774, -1.15, 0.16, 0.50), barCutters)
	return bld.Union(bld.NewFloor(), bld.Union(logo, bar))
}
