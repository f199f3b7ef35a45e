package gleval

import (
	"errors"

	"github.com/soypat/csgmarch/glbuild"
	"github.com/soypat/geometry/ms3"
)

// StateEvaluator runs the state compute program over an uploaded scene,
// evaluating every node once at a probe position.
type StateEvaluator struct {
	gl   GL
	prog *Program
	bufs *BufferSet
}

// NewStateEvaluator returns an evaluator running prog over bufs. prog must be
// a compute program written by [glbuild.Programmer.WriteCompute].
func NewStateEvaluator(gl GL, prog *Program, bufs *BufferSet) (*StateEvaluator, error) {
	if prog.ID() == 0 {
		return nil, errZeroProgram
	} else if bufs == nil {
		return nil, errors.New("nil buffer set")
	}
	if err := prog.CheckNodes(bufs.NumNodes()); err != nil {
		return nil, err
	}
	return &StateEvaluator{gl: gl, prog: prog, bufs: bufs}, nil
}

// Evaluate resets the state buffer, dispatches a single workgroup, waits on a
// memory barrier and reads back one distance per node, appended to dst.
// An empty scene returns dst without touching the GPU. Buffers replaced with a
// scene larger than the program's node capacity return an error wrapping [ErrCapacity].
func (se *StateEvaluator) Evaluate(probe ms3.Vec, dst []float32) ([]float32, error) {
	n := se.bufs.NumNodes()
	if n == 0 {
		return dst, nil
	}
	err := se.prog.CheckNodes(n)
	if err != nil {
		return dst, err
	}
	err = se.bufs.ResetState()
	if err != nil {
		return dst, err
	}
	err = se.prog.Bind()
	if err != nil {
		return dst, err
	}
	se.prog.SetUniform1i(glbuild.UniformNodeCount, int32(n))
	se.prog.SetUniform3f(glbuild.UniformProbe, probe.X, probe.Y, probe.Z)
	se.bufs.Bind()
	se.gl.DispatchCompute(1, 1, 1)
	se.gl.MemoryBarrier()
	if err := se.gl.Err(); err != nil {
		return dst, &ResourceError{Op: "dispatch state evaluation", Err: err}
	}
	return se.bufs.ReadState(dst)
}
