// Package softgl implements [gleval.GL] in memory. Compute dispatches decode
// the bound scene buffers and run the CPU evaluator, so programs, buffers and
// the frame loop can be exercised without a GPU. Shaders are checked for
// gross structural errors only.
package softgl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/soypat/csgmarch/gleval"
	"github.com/soypat/csgmarch/glbuild"
	"github.com/soypat/geometry/ms3"
)

var _ gleval.GL = (*GL)(nil)

var (
	errInvalidOperation = errors.New("GL_INVALID_OPERATION")
	errInvalidValue     = errors.New("GL_INVALID_VALUE")
	errUnsynchronized   = errors.New("storage buffer accessed after dispatch without memory barrier")
)

type shader struct {
	stage    gleval.Stage
	source   string
	compiled bool
	log      string
}

type program struct {
	attached []uint32
	linked   bool
	compute  bool
	log      string
	// maxNodes is the smallest MAX_NODES bound among the linked stages, 0 if none.
	maxNodes int
	// locations maps uniform names to locations.
	locations map[string]int32
	values    map[int32][]float32
}

func (p *program) value(name string) []float32 {
	loc, ok := p.locations[name]
	if !ok {
		return nil
	}
	return p.values[loc]
}

// checkNodeCount reports node counts the program's evaluator would not walk
// in full. A shader evaluates min(uNodeCount, MAX_NODES) nodes and leaves
// parents of the skipped nodes combining garbage.
func (p *program) checkNodeCount() error {
	v := p.value(glbuild.UniformNodeCount)
	if p.maxNodes == 0 || len(v) != 1 || int(v[0]) <= p.maxNodes {
		return nil
	}
	return fmt.Errorf("%w: %s=%d exceeds MAX_NODES=%d", errInvalidValue, glbuild.UniformNodeCount, int(v[0]), p.maxNodes)
}

type quad struct {
	vertices []float32
	indices  []uint32
}

// GL is an in-memory GL context. The zero value is not ready for use; use [New].
type GL struct {
	nextID   uint32
	shaders  map[uint32]*shader
	programs map[uint32]*program
	buffers  map[uint32][]byte
	quads    map[uint32]quad
	bindings map[uint32]uint32
	current  uint32
	// pending is set by a dispatch and cleared by a memory barrier.
	pending bool
	errs    []error

	// Calls records the name of every verb issued, in order.
	Calls []string
	// Draws, Dispatches and Barriers count issued commands.
	Draws      int
	Dispatches int
	Barriers   int
	// ViewportRect is the last viewport set.
	ViewportRect [4]int32
	// ClearColor is the color of the last clear.
	ClearColor [4]float32
}

// New returns a ready to use in-memory GL context.
func New() *GL {
	return &GL{
		shaders:  make(map[uint32]*shader),
		programs: make(map[uint32]*program),
		buffers:  make(map[uint32][]byte),
		quads:    make(map[uint32]quad),
		bindings: make(map[uint32]uint32),
	}
}

func (g *GL) newID() uint32 {
	g.nextID++
	return g.nextID
}

func (g *GL) call(name string) { g.Calls = append(g.Calls, name) }

func (g *GL) fail(verb string, err error) {
	g.errs = append(g.errs, fmt.Errorf("%s: %w", verb, err))
}

func (g *GL) CreateShader(stage gleval.Stage) uint32 {
	g.call("CreateShader")
	if stage > gleval.StageCompute {
		g.fail("CreateShader", errInvalidValue)
		return 0
	}
	id := g.newID()
	g.shaders[id] = &shader{stage: stage}
	return id
}

func (g *GL) CompileShader(id uint32, source string) bool {
	g.call("CompileShader")
	s, ok := g.shaders[id]
	if !ok {
		g.fail("CompileShader", errInvalidValue)
		return false
	}
	s.source = source
	s.log = checkSource(s.stage, source)
	s.compiled = s.log == ""
	return s.compiled
}

func (g *GL) ShaderInfoLog(id uint32) string {
	s, ok := g.shaders[id]
	if !ok {
		return ""
	}
	return s.log
}

func (g *GL) DeleteShader(id uint32) {
	g.call("DeleteShader")
	delete(g.shaders, id)
}

// NumShaders returns the number of live shader objects.
func (g *GL) NumShaders() int { return len(g.shaders) }

func (g *GL) CreateProgram() uint32 {
	g.call("CreateProgram")
	id := g.newID()
	g.programs[id] = &program{}
	return id
}

func (g *GL) AttachShader(prog, id uint32) {
	g.call("AttachShader")
	p, ok := g.programs[prog]
	if !ok || g.shaders[id] == nil {
		g.fail("AttachShader", errInvalidValue)
		return
	}
	p.attached = append(p.attached, id)
}

func (g *GL) DetachShader(prog, id uint32) {
	g.call("DetachShader")
	p, ok := g.programs[prog]
	if !ok {
		g.fail("DetachShader", errInvalidValue)
		return
	}
	for i, sid := range p.attached {
		if sid == id {
			p.attached = append(p.attached[:i], p.attached[i+1:]...)
			return
		}
	}
	g.fail("DetachShader", errInvalidOperation)
}

func (g *GL) LinkProgram(prog uint32) bool {
	g.call("LinkProgram")
	p, ok := g.programs[prog]
	if !ok {
		g.fail("LinkProgram", errInvalidValue)
		return false
	}
	var stages [3]int
	p.maxNodes = 0
	p.locations = make(map[string]int32)
	p.values = make(map[int32][]float32)
	for _, sid := range p.attached {
		s := g.shaders[sid]
		if s == nil {
			p.log = "error: attached shader was deleted"
			return false
		} else if !s.compiled {
			p.log = fmt.Sprintf("error: linking with uncompiled %s shader", s.stage)
			return false
		}
		stages[s.stage]++
		if n := glbuild.ParseMaxNodes(s.source); n > 0 && (p.maxNodes == 0 || n < p.maxNodes) {
			p.maxNodes = n
		}
		for _, name := range uniformNames(s.source) {
			if _, ok := p.locations[name]; !ok {
				p.locations[name] = int32(len(p.locations))
			}
		}
	}
	switch {
	case len(p.attached) == 0:
		p.log = "error: no shaders attached"
	case stages[gleval.StageCompute] > 0 && len(p.attached) != stages[gleval.StageCompute]:
		p.log = "error: compute shader linked with graphics stages"
	case stages[gleval.StageCompute] == 0 && (stages[gleval.StageVertex] != 1 || stages[gleval.StageFragment] != 1):
		p.log = "error: graphics program requires one vertex and one fragment shader"
	}
	p.linked = p.log == ""
	p.compute = stages[gleval.StageCompute] > 0
	return p.linked
}

func (g *GL) ProgramInfoLog(prog uint32) string {
	p, ok := g.programs[prog]
	if !ok {
		return ""
	}
	return p.log
}

func (g *GL) UseProgram(prog uint32) {
	g.call("UseProgram")
	if prog != 0 {
		p, ok := g.programs[prog]
		if !ok || !p.linked {
			g.fail("UseProgram", errInvalidOperation)
			return
		}
	}
	g.current = prog
}

func (g *GL) DeleteProgram(prog uint32) {
	g.call("DeleteProgram")
	delete(g.programs, prog)
	if g.current == prog {
		g.current = 0
	}
}

// NumPrograms returns the number of live program objects.
func (g *GL) NumPrograms() int { return len(g.programs) }

// CurrentProgram returns the program in use.
func (g *GL) CurrentProgram() uint32 { return g.current }

func (g *GL) UniformLocation(prog uint32, name string) int32 {
	p, ok := g.programs[prog]
	if !ok || !p.linked {
		g.fail("UniformLocation", errInvalidOperation)
		return -1
	}
	loc, ok := p.locations[name]
	if !ok {
		return -1
	}
	return loc
}

func (g *GL) Uniform1i(loc int32, v int32)         { g.setUniform("Uniform1i", loc, float32(v)) }
func (g *GL) Uniform1f(loc int32, v float32)       { g.setUniform("Uniform1f", loc, v) }
func (g *GL) Uniform2f(loc int32, x, y float32)    { g.setUniform("Uniform2f", loc, x, y) }
func (g *GL) Uniform3f(loc int32, x, y, z float32) { g.setUniform("Uniform3f", loc, x, y, z) }

func (g *GL) setUniform(verb string, loc int32, v ...float32) {
	g.call(verb)
	p, ok := g.programs[g.current]
	if !ok {
		g.fail(verb, errInvalidOperation)
		return
	} else if loc == -1 {
		return
	}
	p.values[loc] = v
}

// Uniform returns the last value set to a uniform of a program.
func (g *GL) Uniform(prog uint32, name string) ([]float32, bool) {
	p, ok := g.programs[prog]
	if !ok {
		return nil, false
	}
	v := p.value(name)
	return v, v != nil
}

func (g *GL) CreateBuffer() uint32 {
	g.call("CreateBuffer")
	id := g.newID()
	g.buffers[id] = []byte{}
	return id
}

func (g *GL) BufferData(buf uint32, data []byte) {
	g.call("BufferData")
	if _, ok := g.buffers[buf]; !ok {
		g.fail("BufferData", errInvalidValue)
		return
	}
	g.buffers[buf] = append([]byte{}, data...)
}

func (g *GL) BindBufferBase(slot, buf uint32) {
	g.call("BindBufferBase")
	if buf == 0 {
		delete(g.bindings, slot)
		return
	} else if _, ok := g.buffers[buf]; !ok {
		g.fail("BindBufferBase", errInvalidValue)
		return
	}
	g.bindings[slot] = buf
}

// Binding returns the buffer bound at slot or zero if unbound.
func (g *GL) Binding(slot uint32) uint32 { return g.bindings[slot] }

// Buffer returns a buffer's contents.
func (g *GL) Buffer(buf uint32) ([]byte, bool) {
	b, ok := g.buffers[buf]
	return b, ok
}

// NumBuffers returns the number of live buffers.
func (g *GL) NumBuffers() int { return len(g.buffers) }

func (g *GL) ReadBuffer(buf uint32, dst []byte) error {
	g.call("ReadBuffer")
	b, ok := g.buffers[buf]
	if !ok {
		return fmt.Errorf("ReadBuffer: %w", errInvalidValue)
	} else if g.pending {
		return fmt.Errorf("ReadBuffer: %w", errUnsynchronized)
	} else if len(dst) > len(b) {
		return fmt.Errorf("ReadBuffer: map range %d exceeds buffer size %d: %w", len(dst), len(b), errInvalidValue)
	}
	copy(dst, b)
	return nil
}

func (g *GL) DeleteBuffer(buf uint32) {
	g.call("DeleteBuffer")
	delete(g.buffers, buf)
	for slot, id := range g.bindings {
		if id == buf {
			delete(g.bindings, slot)
		}
	}
}

func (g *GL) CreateQuad(vertices []float32, indices []uint32) uint32 {
	g.call("CreateQuad")
	if len(vertices) == 0 || len(vertices)%3 != 0 || len(indices) == 0 {
		g.fail("CreateQuad", errInvalidValue)
		return 0
	}
	for _, idx := range indices {
		if int(idx) >= len(vertices)/3 {
			g.fail("CreateQuad", errInvalidValue)
			return 0
		}
	}
	id := g.newID()
	g.quads[id] = quad{
		vertices: append([]float32{}, vertices...),
		indices:  append([]uint32{}, indices...),
	}
	return id
}

func (g *GL) DrawQuad(vao uint32, count int32) {
	g.call("DrawQuad")
	q, ok := g.quads[vao]
	p := g.programs[g.current]
	switch {
	case !ok || count < 0 || int(count) > len(q.indices):
		g.fail("DrawQuad", errInvalidValue)
		return
	case p == nil || p.compute:
		g.fail("DrawQuad", errInvalidOperation)
		return
	case g.pending:
		g.fail("DrawQuad", errUnsynchronized)
	}
	if err := p.checkNodeCount(); err != nil {
		g.fail("DrawQuad", err)
	}
	g.Draws++
}

// Quad returns the vertices and indices of a vertex array.
func (g *GL) Quad(vao uint32) (vertices []float32, indices []uint32, ok bool) {
	q, ok := g.quads[vao]
	return q.vertices, q.indices, ok
}

func (g *GL) DeleteQuad(vao uint32) {
	g.call("DeleteQuad")
	delete(g.quads, vao)
}

// DispatchCompute evaluates the scene bound to the storage slots at the
// program's uProbe position and writes each node's distance to the state buffer.
func (g *GL) DispatchCompute(x, y, z uint32) {
	g.call("DispatchCompute")
	p := g.programs[g.current]
	if p == nil || !p.compute {
		g.fail("DispatchCompute", errInvalidOperation)
		return
	} else if x != 1 || y != 1 || z != 1 {
		g.fail("DispatchCompute", fmt.Errorf("%w: state evaluation runs a single workgroup, got %dx%dx%d", errInvalidValue, x, y, z))
		return
	}
	g.Dispatches++
	if err := p.checkNodeCount(); err != nil {
		g.fail("DispatchCompute", err)
		return
	}
	tables := glbuild.Tables{
		Primitives: g.buffers[g.bindings[glbuild.SlotPrimitives]],
		Operations: g.buffers[g.bindings[glbuild.SlotOperations]],
		Nodes:      g.buffers[g.bindings[glbuild.SlotNodes]],
		Parents:    g.buffers[g.bindings[glbuild.SlotParents]],
		State:      g.buffers[g.bindings[glbuild.SlotState]],
	}
	scene, err := glbuild.DecodeScene(tables)
	if err != nil {
		g.fail("DispatchCompute", err)
		return
	}
	var probe ms3.Vec
	if v := p.value(glbuild.UniformProbe); len(v) == 3 {
		probe = ms3.Vec{X: v[0], Y: v[1], Z: v[2]}
	}
	n := scene.NumNodes()
	if v := p.value(glbuild.UniformNodeCount); len(v) == 1 {
		n = max(0, min(n, int(v[0])))
	}
	state := make([]float32, scene.NumNodes())
	_, err = scene.EvaluateNodes(probe, state)
	if err != nil {
		g.fail("DispatchCompute", err)
		return
	}
	if stateBuf := g.bindings[glbuild.SlotState]; stateBuf != 0 {
		// Only the first n nodes are evaluated by the shader, the rest keep the seed.
		g.buffers[stateBuf] = glbuild.AppendState(g.buffers[stateBuf][:0], state[:n])[:len(tables.State)]
	}
	g.pending = true
}

func (g *GL) MemoryBarrier() {
	g.call("MemoryBarrier")
	g.Barriers++
	g.pending = false
}

func (g *GL) Viewport(x, y, width, height int32) {
	g.call("Viewport")
	if width < 0 || height < 0 {
		g.fail("Viewport", errInvalidValue)
		return
	}
	g.ViewportRect = [4]int32{x, y, width, height}
}

func (g *GL) Clear(r, gr, b, a float32) {
	g.call("Clear")
	g.ClearColor = [4]float32{r, gr, b, a}
}

// Err returns and clears accumulated errors.
func (g *GL) Err() error {
	err := errors.Join(g.errs...)
	g.errs = g.errs[:0]
	return err
}

// checkSource returns a compiler-like log describing the first structural
// error found in a stage's source, or the empty string.
func checkSource(stage gleval.Stage, src string) string {
	if !strings.HasPrefix(strings.TrimSpace(src), "#version") {
		return "0:1(1): error: missing #version directive"
	}
	if !strings.Contains(src, "void main(") {
		return "0:1(1): error: missing main function"
	}
	if stage == gleval.StageCompute && !strings.Contains(src, "local_size_x") {
		return "0:1(1): error: compute shader missing local size declaration"
	}
	line := 1
	var stack []byte
	pairs := map[byte]byte{'}': '{', ')': '(', ']': '['}
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch c {
		case '\n':
			line++
		case '{', '(', '[':
			stack = append(stack, c)
		case '}', ')', ']':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[c] {
				return fmt.Sprintf("0:%d(1): error: syntax error, unexpected '%c'", line, c)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return fmt.Sprintf("0:%d(1): error: syntax error, unexpected end of file", line)
	}
	return ""
}

// uniformNames returns the names of uniforms declared in src.
func uniformNames(src string) (names []string) {
	for _, line := range strings.Split(src, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 || fields[0] != "uniform" {
			continue
		}
		name := strings.TrimSuffix(fields[2], ";")
		if i := strings.IndexByte(name, '['); i >= 0 {
			name = name[:i]
		}
		names = append(names, name)
	}
	return names
}
