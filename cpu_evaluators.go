package csgmarch

import (
	"errors"

	"github.com/soypat/geometry/ms3"
)

var (
	errEmptyBuffers         = errors.New("empty buffers")
	errMismatchBufferLength = errors.New("position and distance buffer length mismatch")
	errStateLength          = errors.New("state buffer shorter than node count")
)

// EvaluateNodes evaluates every node of the scene at p and stores each node's
// distance in state, which must be at least [Scene.NumNodes] long. It returns
// the scene distance: the union of all root distances, or 1e20 for an empty scene.
//
// The evaluation order matches the GPU evaluator: nodes are visited from last
// to first so children are always resolved before their parent combines them.
func (s *Scene) EvaluateNodes(p ms3.Vec, state []float32) (float32, error) {
	if len(state) < len(s.nodes) {
		return 0, errStateLength
	}
	for i := len(s.nodes) - 1; i >= 0; i-- {
		node := s.nodes[i]
		switch node.Type {
		case NodePrimitive:
			state[i] = s.prims[node.Index].Distance(p)
		case NodeBinary:
			c := s.children[i]
			state[i] = s.ops[node.Index].Combine(state[c[0]], state[c[1]])
		}
	}
	var d float32 = largenum
	for _, root := range s.roots {
		d = minf(d, state[root])
	}
	return d, nil
}

// Evaluate evaluates the scene's signed distance field over pos positions and
// stores the result in dist. userData is unused.
func (s *Scene) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	if len(pos) != len(dist) {
		return errMismatchBufferLength
	} else if len(pos) == 0 {
		return errEmptyBuffers
	}
	state := make([]float32, len(s.nodes))
	for i, p := range pos {
		d, err := s.EvaluateNodes(p, state)
		if err != nil {
			return err
		}
		dist[i] = d
	}
	return nil
}
