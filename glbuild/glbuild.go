// Package glbuild lays out CSG scenes as GPU storage buffers and writes the
// GLSL programs that consume them.
package glbuild

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/soypat/csgmarch"
	"github.com/soypat/csgmarch/glbuild/glsllib"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

const VersionStr = "#version 430\n"

// Uniform names set by the host.
const (
	UniformResolution = "iResolution"
	UniformTime       = "iTime"
	UniformNodeCount  = "uNodeCount"
	UniformProbe      = "uProbe"
)

// BufferDecl describes a Shader Storage Buffer Object (SSBO) of the scene.
type BufferDecl struct {
	// Block is the GLSL interface block name.
	Block string
	// Name is the name of the unsized array inside the block.
	Name string
	// Element is the Go type of each array element.
	Element reflect.Type
	// Binding is the binding point (slot) of the buffer.
	Binding  int
	ReadOnly bool
}

// SceneBuffers returns the declarations of the five scene buffers in slot order.
func SceneBuffers() [NumSlots]BufferDecl {
	return [NumSlots]BufferDecl{
		{Block: "PrimitivesBuffer", Name: "primitives", Element: reflect.TypeOf(PrimitiveRecord{}), Binding: SlotPrimitives, ReadOnly: true},
		{Block: "OperationsBuffer", Name: "operations", Element: reflect.TypeOf(OperationRecord{}), Binding: SlotOperations, ReadOnly: true},
		{Block: "NodesBuffer", Name: "nodes", Element: reflect.TypeOf(NodeRecord{}), Binding: SlotNodes, ReadOnly: true},
		{Block: "ParentsBuffer", Name: "parents", Element: reflect.TypeOf(int32(0)), Binding: SlotParents, ReadOnly: true},
		{Block: "StateBuffer", Name: "state", Element: reflect.TypeOf(float32(0)), Binding: SlotState},
	}
}

// AppendShaderBufferDecl appends the buffer declaration:
//
//	layout(std430,binding=<Binding>) [readonly] buffer <Block> {
//		<Element> <Name>[];
//	};
func AppendShaderBufferDecl(dst []byte, decl BufferDecl) ([]byte, error) {
	if decl.Block == "" || decl.Name == "" {
		return dst, errors.New("AppendShaderBufferDecl requires block and array names")
	} else if decl.Binding < 0 {
		return dst, errors.New("negative binding point")
	}
	typename, std, err := glTypename(decl.Element)
	if err != nil {
		return dst, fmt.Errorf("typename failed for %q: %w", decl.Name, err)
	}
	dst = append(dst, "layout("...)
	dst = append(dst, std...)
	dst = append(dst, ",binding="...)
	dst = strconv.AppendInt(dst, int64(decl.Binding), 10)
	dst = append(dst, ") "...)
	if decl.ReadOnly {
		dst = append(dst, "readonly "...)
	}
	dst = append(dst, "buffer "...)
	dst = append(dst, decl.Block...)
	dst = append(dst, " {\n\t"...)
	dst = append(dst, typename...)
	dst = append(dst, ' ')
	dst = append(dst, decl.Name...)
	dst = append(dst, "[];\n};\n"...)
	return dst, nil
}

// AppendStructDecl appends the GLSL struct declaration of a Go record type.
// Every field must carry a `glsl` tag naming the GLSL member and have a type
// with a GLSL equivalent.
func AppendStructDecl(dst []byte, tp reflect.Type) ([]byte, error) {
	if tp == nil || tp.Kind() != reflect.Struct {
		return dst, errors.New("AppendStructDecl requires a struct type")
	}
	dst = append(dst, "struct "...)
	dst = append(dst, structName(tp)...)
	dst = append(dst, " {\n"...)
	for i := 0; i < tp.NumField(); i++ {
		field := tp.Field(i)
		name := field.Tag.Get("glsl")
		if name == "" {
			return dst, fmt.Errorf("%s.%s missing glsl tag", tp.Name(), field.Name)
		}
		typename, _, err := glTypename(field.Type)
		if err != nil {
			return dst, fmt.Errorf("%s.%s: %w", tp.Name(), field.Name, err)
		}
		dst = append(dst, '\t')
		dst = append(dst, typename...)
		dst = append(dst, ' ')
		dst = append(dst, name...)
		dst = append(dst, ";\n"...)
	}
	dst = append(dst, "};\n"...)
	return dst, nil
}

// AppendSceneDecls appends everything the scene evaluator needs to compile:
// kind defines, array bound, record structs and buffer declarations.
// numNodes sizes the evaluator's scratch arrays and must be at least the
// scene's node count.
func AppendSceneDecls(dst []byte, numNodes int) ([]byte, error) {
	if numNodes < 0 {
		return dst, errors.New("negative node count")
	}
	dst = AppendDefineDecl(dst, "PRIMITIVE_CYLINDER", strconv.Itoa(int(csgmarch.PrimitiveCylinder)))
	dst = AppendDefineDecl(dst, "PRIMITIVE_BOX", strconv.Itoa(int(csgmarch.PrimitiveBox)))
	dst = AppendDefineDecl(dst, "PRIMITIVE_PLANE_CUTTER", strconv.Itoa(int(csgmarch.PrimitivePlaneCutter)))
	dst = AppendDefineDecl(dst, "PRIMITIVE_FLOOR", strconv.Itoa(int(csgmarch.PrimitiveFloor)))
	dst = AppendDefineDecl(dst, "NODE_PRIMITIVE", strconv.Itoa(int(csgmarch.NodePrimitive)))
	dst = AppendDefineDecl(dst, "NODE_BINARY", strconv.Itoa(int(csgmarch.NodeBinary)))
	dst = AppendDefineDecl(dst, "FLOOR_HEIGHT", string(AppendFloat(nil, '-', '.', csgmarch.FloorHeight)))
	// GLSL arrays can't be zero sized.
	dst = AppendDefineDecl(dst, "MAX_NODES", strconv.Itoa(max(numNodes, 1)))
	var err error
	for _, tp := range []reflect.Type{
		reflect.TypeOf(PrimitiveRecord{}),
		reflect.TypeOf(OperationRecord{}),
		reflect.TypeOf(NodeRecord{}),
	} {
		dst, err = AppendStructDecl(dst, tp)
		if err != nil {
			return dst, err
		}
	}
	for _, decl := range SceneBuffers() {
		dst, err = AppendShaderBufferDecl(dst, decl)
		if err != nil {
			return dst, err
		}
	}
	return dst, nil
}

// structName maps record types to the names used by the GLSL library.
func structName(tp reflect.Type) string {
	switch tp {
	case reflect.TypeOf(PrimitiveRecord{}):
		return "Primitive"
	case reflect.TypeOf(OperationRecord{}):
		return "BinaryOperation"
	case reflect.TypeOf(NodeRecord{}):
		return "Node"
	}
	return tp.Name()
}

func glTypename(tp reflect.Type) (typename, std string, err error) {
	std = "std430"
	switch tp {
	case reflect.TypeOf(float32(0)):
		typename = "float"
	case reflect.TypeOf(int32(0)):
		typename = "int"
	case reflect.TypeOf(uint32(0)):
		typename = "uint"
	case reflect.TypeOf(ms2.Vec{}):
		typename = "vec2"
	case reflect.TypeOf(ms3.Vec{}):
		typename = "vec3"
	case reflect.TypeOf([2]int32{}):
		typename = "ivec2"
	case reflect.TypeOf(PrimitiveRecord{}), reflect.TypeOf(OperationRecord{}), reflect.TypeOf(NodeRecord{}):
		typename = structName(tp)
	case nil:
		err = errors.New("nil element type")
	default:
		err = fmt.Errorf("equivalent type not implemented for %s", tp.String())
	}
	return typename, std, err
}

// ParseMaxNodes returns the MAX_NODES bound defined in a scene stage source,
// the most nodes the stage's evaluator can walk. It returns 0 if src does not define it.
func ParseMaxNodes(src string) int {
	for _, line := range strings.Split(src, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 3 || fields[0] != "#define" || fields[1] != "MAX_NODES" {
			continue
		}
		n, err := strconv.Atoi(fields[2])
		if err != nil || n < 0 {
			return 0
		}
		return n
	}
	return 0
}

func AppendDefineDecl(b []byte, aliasToDefine, aliasReplace string) []byte {
	b = append(b, "#define "...)
	b = append(b, aliasToDefine...)
	b = append(b, ' ')
	b = append(b, aliasReplace...)
	b = append(b, '\n')
	return b
}

const decimalDigits = 9

// AppendFloat appends v with a decimal point and trailing zeros trimmed.
func AppendFloat(b []byte, neg, decimal byte, v float32) []byte {
	start := len(b)
	b = strconv.AppendFloat(b, float64(v), 'f', decimalDigits, 32)
	idx := bytes.IndexByte(b[start:], '.')
	if decimal != '.' && idx >= 0 {
		b[start+idx] = decimal
	}
	if b[start] == '-' {
		b[start] = neg
	}
	end := len(b)
	for i := len(b) - 1; idx >= 0 && i > idx+start+1 && b[i] == '0'; i-- {
		end--
	}
	return b[:end]
}

// Sources holds complete GLSL sources of the raster and compute programs.
type Sources struct {
	Vertex   string
	Fragment string
	Compute  string
}

// Programmer writes the raymarch and state evaluation programs for a scene.
type Programmer struct {
	scratch []byte
}

// NewDefaultProgrammer returns a Programmer ready to write programs.
func NewDefaultProgrammer() *Programmer {
	return &Programmer{
		scratch: make([]byte, 0, 4096),
	}
}

// WriteVertex writes the full-screen quad vertex stage.
func (p *Programmer) WriteVertex(w io.Writer) (int, error) {
	p.scratch = append(p.scratch[:0], VersionStr...)
	p.scratch = append(p.scratch, glsllib.Vertex()...)
	return w.Write(p.scratch)
}

// WriteFragment writes the raymarching fragment stage for a scene of up to numNodes nodes.
func (p *Programmer) WriteFragment(w io.Writer, numNodes int) (int, error) {
	return p.writeSceneStage(w, numNodes, "", glsllib.Raymarch())
}

// WriteCompute writes the compute stage that evaluates the scene once and
// stores each node's distance in the state buffer.
func (p *Programmer) WriteCompute(w io.Writer, numNodes int) (int, error) {
	return p.writeSceneStage(w, numNodes, "state[i] = v", glsllib.State())
}

func (p *Programmer) writeSceneStage(w io.Writer, numNodes int, storeState string, main []byte) (int, error) {
	var err error
	p.scratch = append(p.scratch[:0], VersionStr...)
	p.scratch, err = AppendSceneDecls(p.scratch, numNodes)
	if err != nil {
		return 0, err
	}
	p.scratch = AppendDefineDecl(p.scratch, "STORE_STATE(i, v)", storeState)
	p.scratch = append(p.scratch, glsllib.Scene()...)
	p.scratch = append(p.scratch, '\n')
	p.scratch = append(p.scratch, main...)
	return w.Write(p.scratch)
}

// Sources returns the three stage sources for a scene of up to numNodes nodes.
func (p *Programmer) Sources(numNodes int) (Sources, error) {
	var vert, frag, comp bytes.Buffer
	_, err := p.WriteVertex(&vert)
	if err != nil {
		return Sources{}, err
	}
	_, err = p.WriteFragment(&frag, numNodes)
	if err != nil {
		return Sources{}, err
	}
	_, err = p.WriteCompute(&comp, numNodes)
	if err != nil {
		return Sources{}, err
	}
	return Sources{Vertex: vert.String(), Fragment: frag.String(), Compute: comp.String()}, nil
}

// WriteCombined writes the three stages as a single file split by
// "#shader vertex", "#shader fragment" and "#shader compute" lines.
func (p *Programmer) WriteCombined(w io.Writer, numNodes int) (n int, err error) {
	src, err := p.Sources(numNodes)
	if err != nil {
		return 0, err
	}
	for _, stage := range []struct{ name, src string }{
		{"vertex", src.Vertex},
		{"fragment", src.Fragment},
		{"compute", src.Compute},
	} {
		ngot, err := fmt.Fprintf(w, "#shader %s\n%s\n", stage.name, stage.src)
		n += ngot
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
