//go:build !tinygo && cgo

package gleval

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"unsafe"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/soypat/glgl/v4.6-core/glgl"
)

// Init1x1GLFW starts a 1x1 sized GLFW so that user can start working with GPU.
// It returns a termination function that should be called when user is done running loads on GPU.
func Init1x1GLFW() (terminate func(), err error) {
	_, terminate, err = glgl.InitWithCurrentWindow33(glgl.WindowConfig{
		Title:   "compute",
		Version: [2]int{4, 6},
		Width:   1,
		Height:  1,
	})
	return terminate, err
}

// NewGL returns the OpenGL implementation of [GL]. A context must be current
// on the calling thread.
func NewGL() (GL, error) {
	err := gl.Init()
	if err != nil {
		return nil, err
	}
	return &openGL{quads: make(map[uint32][2]uint32)}, nil
}

type openGL struct {
	// quads maps vertex arrays to their vertex and element buffers.
	quads map[uint32][2]uint32
}

func (*openGL) CreateShader(stage Stage) uint32 {
	var kind uint32
	switch stage {
	case StageVertex:
		kind = gl.VERTEX_SHADER
	case StageFragment:
		kind = gl.FRAGMENT_SHADER
	case StageCompute:
		kind = gl.COMPUTE_SHADER
	default:
		return 0
	}
	return gl.CreateShader(kind)
}

func (*openGL) CompileShader(shader uint32, source string) bool {
	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)
	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	return status == gl.TRUE
}

func (*openGL) ShaderInfoLog(shader uint32) string {
	var logLength int32
	gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
	if logLength <= 0 {
		return ""
	}
	log := strings.Repeat("\x00", int(logLength+1))
	gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))
	return strings.TrimRight(log, "\x00")
}

func (*openGL) DeleteShader(shader uint32) { gl.DeleteShader(shader) }

func (*openGL) CreateProgram() uint32 { return gl.CreateProgram() }

func (*openGL) AttachShader(program, shader uint32) { gl.AttachShader(program, shader) }

func (*openGL) DetachShader(program, shader uint32) { gl.DetachShader(program, shader) }

func (*openGL) LinkProgram(program uint32) bool {
	gl.LinkProgram(program)
	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	return status == gl.TRUE
}

func (*openGL) ProgramInfoLog(program uint32) string {
	var logLength int32
	gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
	if logLength <= 0 {
		return ""
	}
	log := strings.Repeat("\x00", int(logLength+1))
	gl.GetProgramInfoLog(program, logLength, nil, gl.Str(log))
	return strings.TrimRight(log, "\x00")
}

func (*openGL) UseProgram(program uint32) { gl.UseProgram(program) }

func (*openGL) DeleteProgram(program uint32) { gl.DeleteProgram(program) }

func (*openGL) UniformLocation(program uint32, name string) int32 {
	return gl.GetUniformLocation(program, gl.Str(name+"\x00"))
}

func (*openGL) Uniform1i(loc int32, v int32)         { gl.Uniform1i(loc, v) }
func (*openGL) Uniform1f(loc int32, v float32)       { gl.Uniform1f(loc, v) }
func (*openGL) Uniform2f(loc int32, x, y float32)    { gl.Uniform2f(loc, x, y) }
func (*openGL) Uniform3f(loc int32, x, y, z float32) { gl.Uniform3f(loc, x, y, z) }

func (*openGL) CreateBuffer() (ssbo uint32) {
	var p runtime.Pinner
	p.Pin(&ssbo)
	gl.GenBuffers(1, &ssbo)
	p.Unpin()
	return ssbo
}

func (*openGL) BufferData(buf uint32, data []byte) {
	var ptr unsafe.Pointer
	if len(data) > 0 {
		ptr = unsafe.Pointer(&data[0])
	}
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, buf)
	gl.BufferData(gl.SHADER_STORAGE_BUFFER, len(data), ptr, gl.DYNAMIC_DRAW)
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, 0)
}

func (*openGL) BindBufferBase(slot, buf uint32) {
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, slot, buf)
}

func (*openGL) ReadBuffer(buf uint32, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, buf)
	defer gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, 0)
	ptr := gl.MapBufferRange(gl.SHADER_STORAGE_BUFFER, 0, len(dst), gl.MAP_READ_BIT)
	if ptr == nil {
		return glErrOrMessage("failed to map SSBO buffer during copy")
	}
	copy(dst, unsafe.Slice((*byte)(ptr), len(dst)))
	if !gl.UnmapBuffer(gl.SHADER_STORAGE_BUFFER) {
		return glErrOrMessage("SSBO contents corrupted during read")
	}
	return nil
}

func (*openGL) DeleteBuffer(buf uint32) {
	var p runtime.Pinner
	p.Pin(&buf)
	gl.DeleteBuffers(1, &buf)
	p.Unpin()
}

func (o *openGL) CreateQuad(vertices []float32, indices []uint32) uint32 {
	if len(vertices) == 0 || len(indices) == 0 {
		return 0
	}
	var vao, vbo, ebo uint32
	var p runtime.Pinner
	p.Pin(&vao)
	p.Pin(&vbo)
	p.Pin(&ebo)
	defer p.Unpin()
	gl.GenVertexArrays(1, &vao)
	gl.GenBuffers(1, &vbo)
	gl.GenBuffers(1, &ebo)
	gl.BindVertexArray(vao)

	gl.BindBuffer(gl.ARRAY_BUFFER, vbo)
	gl.BufferData(gl.ARRAY_BUFFER, 4*len(vertices), unsafe.Pointer(&vertices[0]), gl.STATIC_DRAW)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, ebo)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, 4*len(indices), unsafe.Pointer(&indices[0]), gl.STATIC_DRAW)

	gl.VertexAttribPointerWithOffset(0, 3, gl.FLOAT, false, 3*4, 0)
	gl.EnableVertexAttribArray(0)
	gl.BindVertexArray(0)
	o.quads[vao] = [2]uint32{vbo, ebo}
	return vao
}

func (*openGL) DrawQuad(vao uint32, count int32) {
	gl.BindVertexArray(vao)
	gl.DrawElementsWithOffset(gl.TRIANGLES, count, gl.UNSIGNED_INT, 0)
	gl.BindVertexArray(0)
}

func (o *openGL) DeleteQuad(vao uint32) {
	bufs, ok := o.quads[vao]
	if !ok {
		return
	}
	delete(o.quads, vao)
	var p runtime.Pinner
	p.Pin(&vao)
	p.Pin(&bufs)
	gl.DeleteVertexArrays(1, &vao)
	gl.DeleteBuffers(2, &bufs[0])
	p.Unpin()
}

func (*openGL) DispatchCompute(x, y, z uint32) { gl.DispatchCompute(x, y, z) }

func (*openGL) MemoryBarrier() { gl.MemoryBarrier(gl.ALL_BARRIER_BITS) }

func (*openGL) Viewport(x, y, width, height int32) { gl.Viewport(x, y, width, height) }

func (*openGL) Clear(r, g, b, a float32) {
	gl.ClearColor(r, g, b, a)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
}

func (*openGL) Err() error { return glgl.Err() }

func glErrOrMessage(defaultMsg string) (err error) {
	err = glgl.Err()
	if err == nil {
		err = errors.New(defaultMsg)
	} else {
		err = fmt.Errorf("%s: %w", defaultMsg, err)
	}
	return err
}
