package glbuild

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/soypat/csgmarch"
	"github.com/soypat/geometry/ms2"
)

// Storage buffer binding slots of the scene tables.
const (
	SlotPrimitives = iota
	SlotOperations
	SlotNodes
	SlotParents
	SlotState
	NumSlots
)

// Record strides in bytes. They match the std430 layout of the GLSL
// declarations written by [AppendSceneDecls].
const (
	PrimitiveStride = 48
	OperationStride = 16
	NodeStride      = 16
	ParentStride    = 4
	StateStride     = 4
)

var (
	errTableLength = errors.New("table length not a multiple of record stride")
	errNodeCount   = errors.New("parent and state tables must have one entry per node")
)

// PrimitiveRecord is the flat GPU representation of a primitive. Fields not
// used by the primitive's kind are zero. Pad0 and Pad1 keep the record at 48
// bytes so every field lands where the shader-side struct expects it.
type PrimitiveRecord struct {
	SideCenterX float32 `glsl:"sideCenterX"`
	SideCenterY float32 `glsl:"sideCenterY"`
	M           float32 `glsl:"m"`
	XEnd        float32 `glsl:"xEnd"`
	Th          float32 `glsl:"th"`
	OffsetX     float32 `glsl:"offsetX"`
	OffsetY     float32 `glsl:"offsetY"`
	R           float32 `glsl:"r"`
	Depth       float32 `glsl:"depth"`
	Type        int32   `glsl:"kind"`
	Pad0        float32 `glsl:"pad0"`
	Pad1        float32 `glsl:"pad1"`
}

// OperationRecord is the GPU representation of a [csgmarch.BinaryOperation].
type OperationRecord struct {
	K  float32 `glsl:"k"`
	S  int32   `glsl:"s"`
	CA int32   `glsl:"ca"`
	CB int32   `glsl:"cb"`
}

// NodeRecord is the GPU representation of a [csgmarch.Node].
type NodeRecord struct {
	Type   int32 `glsl:"kind"`
	Index  int32 `glsl:"index"`
	Sign   int32 `glsl:"sign"` // Uploaded for inspection, unused by the evaluator.
	Parent int32 `glsl:"parent"`
}

// MakePrimitiveRecord flattens a primitive into its GPU record.
func MakePrimitiveRecord(p csgmarch.Primitive) (PrimitiveRecord, error) {
	var rec PrimitiveRecord
	switch prim := p.(type) {
	case csgmarch.Cylinder:
		rec.OffsetX = prim.Offset.X
		rec.OffsetY = prim.Offset.Y
		rec.R = prim.R
		rec.Depth = prim.Depth
	case csgmarch.Box:
		rec.SideCenterX = prim.SideCenter.X
		rec.SideCenterY = prim.SideCenter.Y
		rec.M = prim.M
		rec.XEnd = prim.XEnd
		rec.Th = prim.Th
		rec.Depth = prim.Depth
	case csgmarch.PlaneCutter, csgmarch.Floor:
		// No parameters.
	case nil:
		return rec, errors.New("nil primitive")
	default:
		return rec, fmt.Errorf("unsupported primitive %T", p)
	}
	rec.Type = int32(p.Type())
	return rec, nil
}

// Primitive returns the primitive the record describes.
func (rec PrimitiveRecord) Primitive() (csgmarch.Primitive, error) {
	switch csgmarch.PrimitiveType(rec.Type) {
	case csgmarch.PrimitiveCylinder:
		return csgmarch.Cylinder{Offset: ms2.Vec{X: rec.OffsetX, Y: rec.OffsetY}, R: rec.R, Depth: rec.Depth}, nil
	case csgmarch.PrimitiveBox:
		return csgmarch.Box{
			SideCenter: ms2.Vec{X: rec.SideCenterX, Y: rec.SideCenterY},
			M:          rec.M,
			XEnd:       rec.XEnd,
			Th:         rec.Th,
			Depth:      rec.Depth,
		}, nil
	case csgmarch.PrimitivePlaneCutter:
		return csgmarch.PlaneCutter{}, nil
	case csgmarch.PrimitiveFloor:
		return csgmarch.Floor{}, nil
	}
	return nil, fmt.Errorf("%w: unknown primitive type %d", csgmarch.ErrPrimitive, rec.Type)
}

// Tables holds the little-endian byte contents of the five scene storage
// buffers. State is the seed written to the state buffer before every
// evaluation run.
type Tables struct {
	Primitives []byte
	Operations []byte
	Nodes      []byte
	Parents    []byte
	State      []byte
}

// Slot returns the table bound at the argument slot.
func (t *Tables) Slot(slot int) []byte {
	switch slot {
	case SlotPrimitives:
		return t.Primitives
	case SlotOperations:
		return t.Operations
	case SlotNodes:
		return t.Nodes
	case SlotParents:
		return t.Parents
	case SlotState:
		return t.State
	}
	panic("invalid scene buffer slot")
}

// NumNodes returns the number of node records in the tables.
func (t *Tables) NumNodes() int { return len(t.Nodes) / NodeStride }

// Validate checks table lengths agree with record strides and node count.
func (t *Tables) Validate() error {
	strides := [NumSlots]int{PrimitiveStride, OperationStride, NodeStride, ParentStride, StateStride}
	for slot, stride := range strides {
		if len(t.Slot(slot))%stride != 0 {
			return fmt.Errorf("slot %d: %w %d", slot, errTableLength, stride)
		}
	}
	n := t.NumNodes()
	if len(t.Parents)/ParentStride != n || len(t.State)/StateStride != n {
		return errNodeCount
	}
	return nil
}

// EncodeScene lays out the scene as GPU tables. The state seed is zeroed.
func EncodeScene(s *csgmarch.Scene) (Tables, error) {
	var t Tables
	prims := s.Primitives()
	precs := make([]PrimitiveRecord, len(prims))
	for i, p := range prims {
		rec, err := MakePrimitiveRecord(p)
		if err != nil {
			return Tables{}, fmt.Errorf("primitive %d: %w", i, err)
		}
		precs[i] = rec
	}
	ops := s.Operations()
	orecs := make([]OperationRecord, len(ops))
	for i, op := range ops {
		orecs[i] = OperationRecord{K: op.K, S: op.S, CA: op.CA, CB: op.CB}
	}
	nodes := s.Nodes()
	nrecs := make([]NodeRecord, len(nodes))
	for i, node := range nodes {
		nrecs[i] = NodeRecord{Type: int32(node.Type), Index: node.Index, Sign: node.Sign, Parent: node.Parent}
	}
	var err error
	t.Primitives, err = appendTable(t.Primitives, precs)
	if err != nil {
		return Tables{}, err
	}
	t.Operations, err = appendTable(t.Operations, orecs)
	if err != nil {
		return Tables{}, err
	}
	t.Nodes, err = appendTable(t.Nodes, nrecs)
	if err != nil {
		return Tables{}, err
	}
	t.Parents, err = appendTable(t.Parents, s.Parents())
	if err != nil {
		return Tables{}, err
	}
	t.State = make([]byte, len(nodes)*StateStride)
	return t, nil
}

// DecodeScene rebuilds and validates the scene described by the tables.
func DecodeScene(t Tables) (*csgmarch.Scene, error) {
	err := t.Validate()
	if err != nil {
		return nil, err
	}
	precs := make([]PrimitiveRecord, len(t.Primitives)/PrimitiveStride)
	orecs := make([]OperationRecord, len(t.Operations)/OperationStride)
	nrecs := make([]NodeRecord, t.NumNodes())
	parents := make([]int32, len(nrecs))
	for _, dec := range []struct {
		b   []byte
		dst any
	}{
		{t.Primitives, precs},
		{t.Operations, orecs},
		{t.Nodes, nrecs},
		{t.Parents, parents},
	} {
		if len(dec.b) == 0 {
			continue
		}
		_, err = binary.Decode(dec.b, binary.LittleEndian, dec.dst)
		if err != nil {
			return nil, err
		}
	}
	prims := make([]csgmarch.Primitive, len(precs))
	for i, rec := range precs {
		prims[i], err = rec.Primitive()
		if err != nil {
			return nil, fmt.Errorf("primitive %d: %w", i, err)
		}
	}
	ops := make([]csgmarch.BinaryOperation, len(orecs))
	for i, rec := range orecs {
		ops[i] = csgmarch.BinaryOperation{K: rec.K, S: rec.S, CA: rec.CA, CB: rec.CB}
	}
	nodes := make([]csgmarch.Node, len(nrecs))
	for i, rec := range nrecs {
		nodes[i] = csgmarch.Node{Type: csgmarch.NodeType(rec.Type), Index: rec.Index, Sign: rec.Sign, Parent: rec.Parent}
	}
	return csgmarch.NewSceneWithParents(prims, ops, nodes, parents)
}

// DecodeState appends the float32 values of a state buffer to dst.
func DecodeState(dst []float32, b []byte) ([]float32, error) {
	if len(b)%StateStride != 0 {
		return dst, errTableLength
	}
	start := len(dst)
	dst = append(dst, make([]float32, len(b)/StateStride)...)
	if len(b) == 0 {
		return dst, nil
	}
	_, err := binary.Decode(b, binary.LittleEndian, dst[start:])
	return dst, err
}

// AppendState appends the little-endian encoding of state values to dst.
func AppendState(dst []byte, state []float32) []byte {
	for _, v := range state {
		dst = binary.LittleEndian.AppendUint32(dst, math32.Float32bits(v))
	}
	return dst
}

func appendTable[T any](dst []byte, records []T) ([]byte, error) {
	if len(records) == 0 {
		return dst, nil
	}
	return binary.Append(dst, binary.LittleEndian, records)
}
