// Package gleval drives scene evaluation on the GPU: it compiles and links
// programs, uploads scene tables to storage buffers and dispatches the state
// evaluation compute pass. All GPU access goes through the [GL] interface so
// the same code runs against OpenGL or the in-memory softgl package.
package gleval

import (
	"errors"
	"fmt"

	"github.com/soypat/geometry/ms3"
)

// SDF3 implements a 3D signed distance field in vectorized form.
// [csgmarch.Scene] implements it.
type SDF3 interface {
	// Evaluate evaluates the signed distance field over pos positions.
	// dist and pos must be of same length. Resulting distances are stored
	// in dist.
	Evaluate(pos []ms3.Vec, dist []float32, userData any) error
	// Bounds returns the SDF's bounding box such that all of the shape is contained within.
	Bounds() ms3.Box
}

// Stage is a programmable pipeline stage.
type Stage uint8

const (
	StageVertex Stage = iota
	StageFragment
	StageCompute
)

func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	}
	return fmt.Sprintf("Stage(%d)", uint8(s))
}

// GL is the set of GPU verbs the renderer needs. Object handles are GL names;
// zero is never a valid object. Implementations are not safe for concurrent
// use and must be called from the thread owning the context.
type GL interface {
	CreateShader(stage Stage) uint32
	// CompileShader sets the shader's source and compiles it.
	CompileShader(shader uint32, source string) (ok bool)
	ShaderInfoLog(shader uint32) string
	DeleteShader(shader uint32)

	CreateProgram() uint32
	AttachShader(program, shader uint32)
	DetachShader(program, shader uint32)
	LinkProgram(program uint32) (ok bool)
	ProgramInfoLog(program uint32) string
	UseProgram(program uint32)
	DeleteProgram(program uint32)
	// UniformLocation returns -1 if the program has no active uniform named name.
	UniformLocation(program uint32, name string) int32
	Uniform1i(loc int32, v int32)
	Uniform1f(loc int32, v float32)
	Uniform2f(loc int32, x, y float32)
	Uniform3f(loc int32, x, y, z float32)

	CreateBuffer() uint32
	// BufferData replaces the buffer's storage with a copy of data. data may be empty.
	BufferData(buf uint32, data []byte)
	// BindBufferBase binds buf to a shader storage binding point. buf=0 unbinds.
	BindBufferBase(slot, buf uint32)
	// ReadBuffer maps the buffer and copies len(dst) bytes of its contents to dst.
	ReadBuffer(buf uint32, dst []byte) error
	DeleteBuffer(buf uint32)

	// CreateQuad creates a vertex array of vec3 vertices at attribute
	// location 0 indexed by indices.
	CreateQuad(vertices []float32, indices []uint32) (vao uint32)
	// DrawQuad draws count indices of the vertex array as triangles.
	DrawQuad(vao uint32, count int32)
	DeleteQuad(vao uint32)

	DispatchCompute(x, y, z uint32)
	// MemoryBarrier orders all prior shader writes before subsequent reads and draws.
	MemoryBarrier()
	Viewport(x, y, width, height int32)
	Clear(r, g, b, a float32)
	// Err returns and clears accumulated GL errors.
	Err() error
}

var errZeroProgram = errors.New("program id is 0, was it linked?")

// ErrCapacity is returned when a scene has more nodes than the MAX_NODES bound
// its programs were generated for.
var ErrCapacity = errors.New("scene exceeds program node capacity")

// CompileError is returned when a shader stage fails to compile.
type CompileError struct {
	Stage Stage
	Log   string
}

func (ce *CompileError) Error() string {
	return fmt.Sprintf("%s shader compile failed: %s", ce.Stage, ce.Log)
}

// LinkError is returned when a program fails to link.
type LinkError struct {
	Log string
}

func (le *LinkError) Error() string { return "program link failed: " + le.Log }

// ResourceError is returned when the GPU fails to create, fill or map a resource.
type ResourceError struct {
	Op  string
	Err error
}

func (re *ResourceError) Error() string { return re.Op + ": " + re.Err.Error() }

func (re *ResourceError) Unwrap() error { return re.Err }

// resourceErr wraps pending GL errors, or msg if there are none.
func resourceErr(gl GL, op, msg string) error {
	err := gl.Err()
	if err == nil {
		err = errors.New(msg)
	}
	return &ResourceError{Op: op, Err: err}
}
