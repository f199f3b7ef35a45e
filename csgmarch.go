// Package csgmarch describes scenes as constructive solid geometry trees of
// implicit-surface primitives combined with smooth boolean operations.
// Trees are flattened into index-addressed tables ready for GPU upload, see
// the glbuild package for the byte layout and the gleval package for the GPU side.
package csgmarch

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
)

const (
	largenum = 1e20
	// epstol is used to check for badly conditioned denominators such as segment lengths.
	epstol = 6e-7
)

// Sentinel errors wrapped by [ConstructionError].
var (
	ErrParentRange     = errors.New("parent index out of range")
	ErrSelfParent      = errors.New("node is its own parent")
	ErrCycle           = errors.New("parent relation contains a cycle")
	ErrIndexRange      = errors.New("catalog index out of range")
	ErrParentMismatch  = errors.New("parents array disagrees with node parent")
	ErrArity           = errors.New("binary node must have exactly two children")
	ErrPrimitiveParent = errors.New("primitive node cannot be a parent")
	ErrOrder           = errors.New("child stored before its parent")
	ErrOperand         = errors.New("invalid binary operation parameters")
	ErrPrimitive       = errors.New("invalid primitive parameters")
)

// ConstructionError is returned when a tree or catalog is malformed.
// A scene that fails construction never reaches the GPU.
type ConstructionError struct {
	// Node is the offending node index, or -1 when the error is not tied to a node.
	Node int
	Err  error
	msg  string
}

func (ce *ConstructionError) Error() string {
	if ce.Node < 0 {
		return "csg construction: " + ce.Err.Error() + ce.msg
	}
	return fmt.Sprintf("csg construction: node %d: %s%s", ce.Node, ce.Err.Error(), ce.msg)
}

func (ce *ConstructionError) Unwrap() error { return ce.Err }

func constructionErr(node int, sentinel error, format string, args ...any) error {
	ce := &ConstructionError{Node: node, Err: sentinel}
	if format != "" {
		ce.msg = ": " + fmt.Sprintf(format, args...)
	}
	return ce
}

// Builder authors CSG scenes. Provides error handling strategies with
// panics or error accumulation during shape generation.
type Builder struct {
	NoDimensionPanic bool
	accumErrs        []error
}

// Err returns all errors accumulated during shape creation joined together.
func (bld *Builder) Err() error {
	if len(bld.accumErrs) == 0 {
		return nil
	}
	return errors.Join(bld.accumErrs...)
}

func (bld *Builder) shapeErrorf(msg string, args ...any) {
	if !bld.NoDimensionPanic {
		panic(fmt.Sprintf(msg, args...))
	}
	bld.accumErrs = append(bld.accumErrs, fmt.Errorf("%w: "+msg, append([]any{ErrPrimitive}, args...)...))
}

func (*Builder) nilshape(msg string) {
	panic("nil shape argument: " + msg)
}

func minf(a, b float32) float32 {
	return math32.Min(a, b)
}

func maxf(a, b float32) float32 {
	return math32.Max(a, b)
}

func absf(a float32) float32 {
	return math32.Abs(a)
}

func clampf(v, Min, Max float32) float32 {
	if v < Min {
		return Min
	} else if v > Max {
		return Max
	}
	return v
}

func mixf(x, y, a float32) float32 {
	return x*(1-a) + y*a
}
