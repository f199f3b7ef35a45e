package glbuild_test

import (
	"bytes"
	"encoding/binary"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/soypat/csgmarch"
	"github.com/soypat/csgmarch/glbuild"
)

func TestRecordStrides(t *testing.T) {
	var tests = []struct {
		v    any
		want int
	}{
		{v: glbuild.PrimitiveRecord{}, want: glbuild.PrimitiveStride},
		{v: glbuild.OperationRecord{}, want: glbuild.OperationStride},
		{v: glbuild.NodeRecord{}, want: glbuild.NodeStride},
		{v: int32(0), want: glbuild.ParentStride},
		{v: float32(0), want: glbuild.StateStride},
	}
	for _, test := range tests {
		got := binary.Size(test.v)
		if got != test.want {
			t.Errorf("%T: want stride %d, got %d", test.v, test.want, got)
		}
	}
	for i, decl := range glbuild.SceneBuffers() {
		if decl.Binding != i {
			t.Errorf("buffer %s bound at %d, want %d", decl.Name, decl.Binding, i)
		}
	}
}

func TestEncodeReferenceScene(t *testing.T) {
	s, err := csgmarch.ReferenceScene()
	if err != nil {
		t.Fatal(err)
	}
	tables, err := glbuild.EncodeScene(s)
	if err != nil {
		t.Fatal(err)
	}
	lengths := [glbuild.NumSlots]int{
		csgmarch.ReferenceNumPrimitives * glbuild.PrimitiveStride,
		csgmarch.ReferenceNumOperations * glbuild.OperationStride,
		csgmarch.ReferenceNumNodes * glbuild.NodeStride,
		csgmarch.ReferenceNumNodes * glbuild.ParentStride,
		csgmarch.ReferenceNumNodes * glbuild.StateStride,
	}
	for slot, want := range lengths {
		if got := len(tables.Slot(slot)); got != want {
			t.Errorf("slot %d: want %d bytes, got %d", slot, want, got)
		}
	}
	if tables.NumNodes() != csgmarch.ReferenceNumNodes {
		t.Errorf("want %d nodes, got %d", csgmarch.ReferenceNumNodes, tables.NumNodes())
	}
	// Second primitive is a cylinder: offset at bytes 20..28, radius at 28, type at 36.
	rec := tables.Primitives[glbuild.PrimitiveStride:]
	if got := int32(binary.LittleEndian.Uint32(rec[36:])); got != int32(csgmarch.PrimitiveCylinder) {
		t.Errorf("want cylinder type in record, got %d", got)
	}
	var r float32
	_, err = binary.Decode(rec[28:32], binary.LittleEndian, &r)
	if err != nil {
		t.Fatal(err)
	} else if r != 0.5 {
		t.Errorf("want radius 0.5 at byte 28, got %g", r)
	}
	for i, b := range rec[:20] {
		if b != 0 {
			t.Fatalf("cylinder record byte %d (box field) not zeroed", i)
		}
	}

	got, err := glbuild.DecodeScene(tables)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got.Nodes(), s.Nodes()) || !slices.Equal(got.Parents(), s.Parents()) {
		t.Error("decoded tree differs from encoded tree")
	}
	if !slices.Equal(got.Primitives(), s.Primitives()) || !slices.Equal(got.Operations(), s.Operations()) {
		t.Error("decoded catalogs differ from encoded catalogs")
	}
}

func TestEncodeEmptyScene(t *testing.T) {
	s, err := csgmarch.NewScene(nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	tables, err := glbuild.EncodeScene(s)
	if err != nil {
		t.Fatal(err)
	}
	for slot := 0; slot < glbuild.NumSlots; slot++ {
		if len(tables.Slot(slot)) != 0 {
			t.Errorf("slot %d: want empty table", slot)
		}
	}
	got, err := glbuild.DecodeScene(tables)
	if err != nil {
		t.Fatal(err)
	} else if got.NumNodes() != 0 {
		t.Error("want empty decoded scene")
	}
}

func TestDecodeRejectsBadTables(t *testing.T) {
	s, err := csgmarch.ReferenceScene()
	if err != nil {
		t.Fatal(err)
	}
	tables, err := glbuild.EncodeScene(s)
	if err != nil {
		t.Fatal(err)
	}
	short := tables
	short.Primitives = short.Primitives[:len(short.Primitives)-1]
	if _, err := glbuild.DecodeScene(short); err == nil {
		t.Error("want error for truncated primitive table")
	}
	noState := tables
	noState.State = nil
	if _, err := glbuild.DecodeScene(noState); err == nil {
		t.Error("want error for missing state table")
	}
	badParent := tables
	badParent.Parents = slices.Clone(tables.Parents)
	binary.LittleEndian.PutUint32(badParent.Parents[4:], 5) // Node 1's parent is 0.
	if _, err := glbuild.DecodeScene(badParent); err == nil {
		t.Error("want error for parent table disagreeing with nodes")
	}
}

func TestStateRoundTrip(t *testing.T) {
	want := []float32{0, -1.5, 3.25, 1e20}
	b := glbuild.AppendState(nil, want)
	if len(b) != len(want)*glbuild.StateStride {
		t.Fatalf("want %d bytes, got %d", len(want)*glbuild.StateStride, len(b))
	}
	got, err := glbuild.DecodeState(nil, b)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, want) {
		t.Errorf("want %v, got %v", want, got)
	}
	if _, err := glbuild.DecodeState(nil, b[:3]); err == nil {
		t.Error("want error for partial float")
	}
}

func TestAppendSceneDecls(t *testing.T) {
	decls, err := glbuild.AppendSceneDecls(nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	src := string(decls)
	for _, want := range []string{
		"#define MAX_NODES 1\n",
		"#define FLOOR_HEIGHT -1.0\n",
		"layout(std430,binding=0) readonly buffer PrimitivesBuffer {\n\tPrimitive primitives[];\n};",
		"layout(std430,binding=1) readonly buffer OperationsBuffer {\n\tBinaryOperation operations[];\n};",
		"layout(std430,binding=2) readonly buffer NodesBuffer {\n\tNode nodes[];\n};",
		"layout(std430,binding=3) readonly buffer ParentsBuffer {\n\tint parents[];\n};",
		"layout(std430,binding=4) buffer StateBuffer {\n\tfloat state[];\n};",
		"struct Node {\n\tint kind;\n\tint index;\n\tint sign;\n\tint parent;\n};",
		"\tint kind;\n\tfloat pad0;\n\tfloat pad1;\n};",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("declarations missing %q:\n%s", want, src)
		}
	}
	// Struct members must be declared in record order.
	tp := reflect.TypeOf(glbuild.PrimitiveRecord{})
	last := -1
	for i := 0; i < tp.NumField(); i++ {
		idx := strings.Index(src, " "+tp.Field(i).Tag.Get("glsl")+";")
		if idx <= last {
			t.Fatalf("member %s out of order", tp.Field(i).Name)
		}
		last = idx
	}
	if _, err := glbuild.AppendStructDecl(nil, reflect.TypeOf(struct{ A float64 }{})); err == nil {
		t.Error("want error for untagged struct")
	}
}

func TestProgrammerSources(t *testing.T) {
	p := glbuild.NewDefaultProgrammer()
	src, err := p.Sources(csgmarch.ReferenceNumNodes)
	if err != nil {
		t.Fatal(err)
	}
	for name, s := range map[string]string{"vertex": src.Vertex, "fragment": src.Fragment, "compute": src.Compute} {
		if !strings.HasPrefix(s, glbuild.VersionStr) {
			t.Errorf("%s stage missing version header", name)
		}
		if strings.Count(s, "{") != strings.Count(s, "}") {
			t.Errorf("%s stage has unbalanced braces", name)
		}
	}
	if !strings.Contains(src.Fragment, glbuild.UniformResolution) || !strings.Contains(src.Fragment, glbuild.UniformTime) {
		t.Error("fragment stage missing resolution or time uniform")
	}
	if !strings.Contains(src.Compute, "#define STORE_STATE(i, v) state[i] = v") {
		t.Error("compute stage does not store state")
	}
	if !strings.Contains(src.Compute, glbuild.UniformProbe) || !strings.Contains(src.Compute, "local_size_x = 1") {
		t.Error("compute stage missing probe uniform or single invocation layout")
	}
	if !strings.Contains(src.Fragment, "#define MAX_NODES 25\n") {
		t.Error("fragment stage not sized to node count")
	}

	var combined bytes.Buffer
	n, err := p.WriteCombined(&combined, csgmarch.ReferenceNumNodes)
	if err != nil {
		t.Fatal(err)
	} else if n != combined.Len() {
		t.Errorf("reported %d bytes, wrote %d", n, combined.Len())
	}
	for _, stage := range []string{"#shader vertex\n", "#shader fragment\n", "#shader compute\n"} {
		if !strings.Contains(combined.String(), stage) {
			t.Errorf("combined source missing %q", stage)
		}
	}
}

func TestParseMaxNodes(t *testing.T) {
	p := glbuild.NewDefaultProgrammer()
	for _, numNodes := range []int{0, 3, csgmarch.ReferenceNumNodes} {
		src, err := p.Sources(numNodes)
		if err != nil {
			t.Fatal(err)
		}
		want := max(numNodes, 1)
		if got := glbuild.ParseMaxNodes(src.Compute); got != want {
			t.Errorf("compute for %d nodes: want MAX_NODES %d, got %d", numNodes, want, got)
		}
		if got := glbuild.ParseMaxNodes(src.Fragment); got != want {
			t.Errorf("fragment for %d nodes: want MAX_NODES %d, got %d", numNodes, want, got)
		}
		if got := glbuild.ParseMaxNodes(src.Vertex); got != 0 {
			t.Errorf("vertex stage should not be bounded, got %d", got)
		}
	}
	if got := glbuild.ParseMaxNodes("#define MAX_NODES lots\n"); got != 0 {
		t.Errorf("want 0 for malformed define, got %d", got)
	}
}
