package csgmarch

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

// FloorHeight is the height of the [Floor] plane along the y axis.
const FloorHeight = -1.0

// PrimitiveType identifies the kind of implicit surface of a [Primitive].
// Values are part of the GPU layout and must not be reordered.
type PrimitiveType int32

const (
	PrimitiveCylinder PrimitiveType = iota
	PrimitiveBox
	PrimitivePlaneCutter
	PrimitiveFloor
)

func (pt PrimitiveType) String() string {
	switch pt {
	case PrimitiveCylinder:
		return "cylinder"
	case PrimitiveBox:
		return "box"
	case PrimitivePlaneCutter:
		return "planecutter"
	case PrimitiveFloor:
		return "floor"
	}
	return fmt.Sprintf("PrimitiveType(%d)", int32(pt))
}

// Primitive is an implicit surface leaf of a CSG tree. Implemented by
// [Cylinder], [Box], [PlaneCutter] and [Floor]; each carries only the
// parameters its kind needs.
type Primitive interface {
	// Type returns the discriminant used to select the GPU distance function.
	Type() PrimitiveType
	// Distance returns the raw signed distance from p to the surface.
	Distance(p ms3.Vec) float32
	// Bounds returns the bounding box of the primitive's interior. Unbounded
	// primitives return a box of extent ±1e20.
	Bounds() ms3.Box
	validate() error
}

var (
	_ Primitive = Cylinder{}
	_ Primitive = Box{}
	_ Primitive = PlaneCutter{}
	_ Primitive = Floor{}
)

// Cylinder is a circle on the xy plane centered at Offset extruded along z
// from -Depth to +Depth.
type Cylinder struct {
	Offset ms2.Vec
	R      float32
	Depth  float32
}

func (Cylinder) Type() PrimitiveType { return PrimitiveCylinder }

func (c Cylinder) Distance(p ms3.Vec) float32 {
	dxy := math32.Hypot(p.X-c.Offset.X, p.Y-c.Offset.Y) - c.R
	return extrude(dxy, p.Z, c.Depth)
}

func (c Cylinder) Bounds() ms3.Box {
	return ms3.Box{
		Min: ms3.Vec{X: c.Offset.X - c.R, Y: c.Offset.Y - c.R, Z: -c.Depth},
		Max: ms3.Vec{X: c.Offset.X + c.R, Y: c.Offset.Y + c.R, Z: c.Depth},
	}
}

func (c Cylinder) validate() error {
	if c.R <= 0 {
		return fmt.Errorf("%w: zero or negative cylinder radius %g", ErrPrimitive, c.R)
	} else if c.Depth <= 0 {
		return fmt.Errorf("%w: zero or negative cylinder depth %g", ErrPrimitive, c.Depth)
	}
	return nil
}

// Box is a bar of thickness Th on the xy plane that starts at SideCenter and
// runs along a line of slope M until x reaches XEnd. It is extruded along z
// from -Depth to +Depth.
type Box struct {
	SideCenter ms2.Vec
	M          float32
	XEnd       float32
	Th         float32
	Depth      float32
}

func (Box) Type() PrimitiveType { return PrimitiveBox }

// Ends returns the centers of the two short sides of the bar.
func (b Box) Ends() (start, end ms2.Vec) {
	start = b.SideCenter
	end = ms2.Vec{X: b.XEnd, Y: b.SideCenter.Y + b.M*(b.XEnd-b.SideCenter.X)}
	return start, end
}

func (b Box) Distance(p ms3.Vec) float32 {
	a, e := b.Ends()
	dx, dy := e.X-a.X, e.Y-a.Y
	l := math32.Hypot(dx, dy)
	dx, dy = dx/l, dy/l
	qx := p.X - (a.X+e.X)*0.5
	qy := p.Y - (a.Y+e.Y)*0.5
	// Rotate into the bar's frame.
	qx, qy = dx*qx+dy*qy, -dy*qx+dx*qy
	qx = absf(qx) - l*0.5
	qy = absf(qy) - b.Th*0.5
	dxy := math32.Hypot(maxf(qx, 0), maxf(qy, 0)) + minf(maxf(qx, qy), 0)
	return extrude(dxy, p.Z, b.Depth)
}

func (b Box) Bounds() ms3.Box {
	a, e := b.Ends()
	h := b.Th / 2
	return ms3.Box{
		Min: ms3.Vec{X: minf(a.X, e.X) - h, Y: minf(a.Y, e.Y) - h, Z: -b.Depth},
		Max: ms3.Vec{X: maxf(a.X, e.X) + h, Y: maxf(a.Y, e.Y) + h, Z: b.Depth},
	}
}

func (b Box) validate() error {
	a, e := b.Ends()
	switch {
	case math32.Hypot(e.X-a.X, e.Y-a.Y) < epstol:
		return fmt.Errorf("%w: degenerate box, xEnd %g equals side center x", ErrPrimitive, b.XEnd)
	case b.Th <= 0:
		return fmt.Errorf("%w: zero or negative box thickness %g", ErrPrimitive, b.Th)
	case b.Depth <= 0:
		return fmt.Errorf("%w: zero or negative box depth %g", ErrPrimitive, b.Depth)
	}
	return nil
}

// PlaneCutter is the half-space z <= 0. It is used as a cutting tool.
type PlaneCutter struct{}

func (PlaneCutter) Type() PrimitiveType         { return PrimitivePlaneCutter }
func (PlaneCutter) Distance(p ms3.Vec) float32 { return p.Z }
func (PlaneCutter) Bounds() ms3.Box {
	return ms3.Box{
		Min: ms3.Vec{X: -largenum, Y: -largenum, Z: -largenum},
		Max: ms3.Vec{X: largenum, Y: largenum, Z: 0},
	}
}
func (PlaneCutter) validate() error { return nil }

// Floor is the half-space below y = [FloorHeight].
type Floor struct{}

func (Floor) Type() PrimitiveType         { return PrimitiveFloor }
func (Floor) Distance(p ms3.Vec) float32 { return p.Y - FloorHeight }
func (Floor) Bounds() ms3.Box {
	return ms3.Box{
		Min: ms3.Vec{X: -largenum, Y: -largenum, Z: -largenum},
		Max: ms3.Vec{X: largenum, Y: FloorHeight, Z: largenum},
	}
}
func (Floor) validate() error { return nil }

// extrude turns a 2D distance on the xy plane into a 3D distance of a slab
// spanning -halfDepth..halfDepth along z.
func extrude(dxy, z, halfDepth float32) float32 {
	dz := absf(z) - halfDepth
	return minf(maxf(dxy, dz), 0) + math32.Hypot(maxf(dxy, 0), maxf(dz, 0))
}

func isFinite(bb ms3.Box) bool {
	const lim = largenum / 2
	return bb.Min.X > -lim && bb.Min.Y > -lim && bb.Min.Z > -lim &&
		bb.Max.X < lim && bb.Max.Y < lim && bb.Max.Z < lim
}
