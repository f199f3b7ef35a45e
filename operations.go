package csgmarch

import "fmt"

// BinaryOperation is a smooth boolean combinator of two child distances.
//
// S selects the combinator: +1 for smooth minimum (union) and -1 for smooth
// maximum (intersection). CA and CB are +1 or -1 and multiply the first and
// second child distances before combining, so S=-1,CB=-1 subtracts the second
// child from the first. K is the blend radius; K=0 yields hard min/max.
type BinaryOperation struct {
	K  float32
	S  int32
	CA int32
	CB int32
}

// UnionOp returns the smooth union operation with blend radius k.
func UnionOp(k float32) BinaryOperation {
	return BinaryOperation{K: k, S: 1, CA: 1, CB: 1}
}

// IntersectOp returns the smooth intersection operation with blend radius k.
func IntersectOp(k float32) BinaryOperation {
	return BinaryOperation{K: k, S: -1, CA: 1, CB: 1}
}

// DifferenceOp returns the smooth difference operation with blend radius k.
// The second child is removed from the first.
func DifferenceOp(k float32) BinaryOperation {
	return BinaryOperation{K: k, S: -1, CA: 1, CB: -1}
}

// Combine applies the operation to the first child distance a and second child distance b.
func (op BinaryOperation) Combine(a, b float32) float32 {
	a *= float32(op.CA)
	b *= float32(op.CB)
	k := op.K
	if k <= 0 {
		if op.S > 0 {
			return minf(a, b)
		}
		return maxf(a, b)
	}
	if op.S > 0 {
		h := clampf(0.5+0.5*(b-a)/k, 0, 1)
		return mixf(b, a, h) - k*h*(1-h)
	}
	h := clampf(0.5-0.5*(b-a)/k, 0, 1)
	return mixf(b, a, h) + k*h*(1-h)
}

// operandSign returns the selector applied to the child at position which (0 or 1).
func (op BinaryOperation) operandSign(which int) int32 {
	if which == 0 {
		return op.CA
	}
	return op.CB
}

func (op BinaryOperation) validate() error {
	unit := func(v int32) bool { return v == 1 || v == -1 }
	if !unit(op.S) || !unit(op.CA) || !unit(op.CB) {
		return fmt.Errorf("%w: s=%d ca=%d cb=%d must be +1 or -1", ErrOperand, op.S, op.CA, op.CB)
	} else if op.K < 0 {
		return fmt.Errorf("%w: negative blend radius %g", ErrOperand, op.K)
	}
	return nil
}

func (op BinaryOperation) String() string {
	var name string
	switch {
	case op.S > 0:
		name = "union"
	case op.CA*op.CB < 0:
		name = "difference"
	default:
		name = "intersect"
	}
	if op.K > 0 {
		return fmt.Sprintf("smooth%s(k=%g)", name, op.K)
	}
	return name
}
