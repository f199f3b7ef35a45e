package glrender_test

import (
	"errors"
	"image"
	"image/color"
	"slices"
	"testing"

	"github.com/soypat/csgmarch"
	"github.com/soypat/csgmarch/glbuild"
	"github.com/soypat/csgmarch/gleval"
	"github.com/soypat/csgmarch/gleval/softgl"
	"github.com/soypat/csgmarch/glrender"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

// window closes after a fixed number of presented frames.
type window struct {
	g       *softgl.GL
	closeAt int
	swaps   int
	polls   int
	// callsAtSwap is the length of the GL call log at each swap.
	callsAtSwap []int
}

func (w *window) ShouldClose() bool { return w.swaps >= w.closeAt }
func (w *window) SwapBuffers() {
	w.swaps++
	w.callsAtSwap = append(w.callsAtSwap, len(w.g.Calls))
}
func (w *window) PollEvents() { w.polls++ }

func newReferenceRenderer(t *testing.T, g *softgl.GL, cfg glrender.Config) *glrender.Renderer {
	t.Helper()
	s, err := csgmarch.ReferenceScene()
	if err != nil {
		t.Fatal(err)
	}
	tables, err := glbuild.EncodeScene(s)
	if err != nil {
		t.Fatal(err)
	}
	src, err := glbuild.NewDefaultProgrammer().Sources(s.NumNodes())
	if err != nil {
		t.Fatal(err)
	}
	r, err := glrender.NewRenderer(g, 800, 600, cfg)
	if err != nil {
		t.Fatal(err)
	}
	err = r.LinkPrograms(src)
	if err != nil {
		t.Fatal(err)
	}
	err = r.Upload(tables)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRendererStateMachine(t *testing.T) {
	g := softgl.New()
	win := &window{g: g, closeAt: 1}
	r, err := glrender.NewRenderer(g, 100, 100, glrender.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if r.State() != glrender.StateUninitialized {
		t.Fatalf("want uninitialized, got %s", r.State())
	}
	if err := r.Tick(win, 0); !errors.Is(err, glrender.ErrState) {
		t.Errorf("tick before link: want ErrState, got %v", err)
	}
	if err := r.Upload(glbuild.Tables{}); !errors.Is(err, glrender.ErrState) {
		t.Errorf("upload before link: want ErrState, got %v", err)
	}
	src, err := glbuild.NewDefaultProgrammer().Sources(1)
	if err != nil {
		t.Fatal(err)
	}
	src.Compute = ""
	if err := r.LinkPrograms(src); err != nil {
		t.Fatal(err)
	}
	if r.State() != glrender.StateProgramsLinked {
		t.Fatalf("want programs linked, got %s", r.State())
	}
	if err := r.LinkPrograms(src); !errors.Is(err, glrender.ErrState) {
		t.Errorf("second link: want ErrState, got %v", err)
	}
	if err := r.Tick(win, 0); !errors.Is(err, glrender.ErrState) {
		t.Errorf("tick before upload: want ErrState, got %v", err)
	}
	var bld csgmarch.Builder
	s, err := bld.Flatten(bld.NewFloor())
	if err != nil {
		t.Fatal(err)
	}
	tables, err := glbuild.EncodeScene(s)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Upload(tables); err != nil {
		t.Fatal(err)
	}
	if r.State() != glrender.StateBuffersUploaded {
		t.Fatalf("want buffers uploaded, got %s", r.State())
	}
	if err := r.Tick(win, 0); err != nil {
		t.Fatal(err)
	}
	if r.State() != glrender.StateRunning {
		t.Fatalf("want running, got %s", r.State())
	}
	if err := r.Upload(tables); err != nil {
		t.Errorf("re-upload while running: %v", err)
	}
	if err := r.Terminate(); err != nil {
		t.Fatal(err)
	}
	if r.State() != glrender.StateTerminated {
		t.Fatalf("want terminated, got %s", r.State())
	}
	if err := r.Tick(win, 0); !errors.Is(err, glrender.ErrState) {
		t.Errorf("tick after terminate: want ErrState, got %v", err)
	}
	if err := r.Terminate(); !errors.Is(err, glrender.ErrState) {
		t.Errorf("second terminate: want ErrState, got %v", err)
	}
	if g.NumBuffers() != 0 || g.NumPrograms() != 0 {
		t.Errorf("resources leaked: %d buffers %d programs", g.NumBuffers(), g.NumPrograms())
	}
}

func TestTickUniforms(t *testing.T) {
	g := softgl.New()
	r := newReferenceRenderer(t, g, glrender.Config{})
	win := &window{g: g, closeAt: 2}
	r.Resize(640, 480)
	if w, h := r.Size(); w != 640 || h != 480 {
		t.Errorf("want size 640x480, got %dx%d", w, h)
	}
	if g.ViewportRect != [4]int32{0, 0, 640, 480} {
		t.Errorf("viewport not updated on resize: %v", g.ViewportRect)
	}
	err := r.Tick(win, 1.5)
	if err != nil {
		t.Fatal(err)
	}
	raster := r.RasterProgram().ID()
	res, ok := g.Uniform(raster, glbuild.UniformResolution)
	if !ok || !slices.Equal(res, []float32{640, 480}) {
		t.Errorf("want resolution [640 480], got %v", res)
	}
	tm, ok := g.Uniform(raster, glbuild.UniformTime)
	if !ok || !slices.Equal(tm, []float32{1.5}) {
		t.Errorf("want time [1.5], got %v", tm)
	}
	count, ok := g.Uniform(raster, glbuild.UniformNodeCount)
	if !ok || !slices.Equal(count, []float32{csgmarch.ReferenceNumNodes}) {
		t.Errorf("want node count %d, got %v", csgmarch.ReferenceNumNodes, count)
	}
	if g.ClearColor != [4]float32{1, 1, 1, 1} {
		t.Errorf("want white clear color, got %v", g.ClearColor)
	}
	if g.Draws != 1 || g.Dispatches != 0 {
		t.Errorf("want 1 draw and no dispatch, got %d draws %d dispatches", g.Draws, g.Dispatches)
	}
	if win.swaps != 1 || win.polls != 1 {
		t.Errorf("want frame presented once, got %d swaps %d polls", win.swaps, win.polls)
	}
	// Resize is picked up on the next tick.
	r.Resize(320, 200)
	err = r.Tick(win, 2)
	if err != nil {
		t.Fatal(err)
	}
	res, _ = g.Uniform(raster, glbuild.UniformResolution)
	if !slices.Equal(res, []float32{320, 200}) {
		t.Errorf("want resolution [320 200] after resize, got %v", res)
	}
	if err := g.Err(); err != nil {
		t.Error(err)
	}
}

func TestQuadGeometry(t *testing.T) {
	g := softgl.New()
	newReferenceRenderer(t, g, glrender.Config{})
	var found bool
	for vao := uint32(1); vao < 100 && !found; vao++ {
		vertices, indices, ok := g.Quad(vao)
		if !ok {
			continue
		}
		found = true
		if !slices.Equal(indices, []uint32{0, 1, 3, 1, 2, 3}) {
			t.Errorf("want indices {0,1,3,1,2,3}, got %v", indices)
		}
		if len(vertices) != 4*3 {
			t.Errorf("want 4 vec3 vertices, got %d floats", len(vertices))
		}
	}
	if !found {
		t.Fatal("no quad created")
	}
}

func TestFrameOrderWithReadback(t *testing.T) {
	g := softgl.New()
	probe := ms3.Vec{X: 0.1, Y: -0.4, Z: 0.2}
	var frames []int
	var last []float32
	r := newReferenceRenderer(t, g, glrender.Config{
		Probe:         probe,
		ReadbackEvery: 2,
		OnState: func(frame int, state []float32) {
			frames = append(frames, frame)
			last = slices.Clone(state)
		},
	})
	win := &window{g: g, closeAt: 5}
	now := 0.0
	err := r.Run(win, func() float64 { now += 1.0 / 60; return now })
	if err != nil {
		t.Fatal(err)
	}
	if r.State() != glrender.StateTerminated {
		t.Errorf("want terminated after close, got %s", r.State())
	}
	if r.Frame() != 5 || win.swaps != 5 {
		t.Errorf("want 5 frames, got %d (%d swaps)", r.Frame(), win.swaps)
	}
	if !slices.Equal(frames, []int{0, 2, 4}) {
		t.Errorf("want readback on frames 0,2,4; got %v", frames)
	}
	if g.Dispatches != 3 || g.Barriers != 3 {
		t.Errorf("want 3 dispatches and barriers, got %d and %d", g.Dispatches, g.Barriers)
	}
	s, err := csgmarch.ReferenceScene()
	if err != nil {
		t.Fatal(err)
	}
	want := make([]float32, s.NumNodes())
	_, err = s.EvaluateNodes(probe, want)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(last, want) {
		t.Errorf("readback state differs from CPU evaluation:\ngot  %v\nwant %v", last, want)
	}

	// Within a frame: clear, draw, dispatch, barrier, readback, then present.
	calls := g.Calls[:win.callsAtSwap[0]]
	order := []string{"Clear", "DrawQuad", "DispatchCompute", "MemoryBarrier", "ReadBuffer"}
	last0 := -1
	for _, name := range order {
		idx := slices.Index(calls[last0+1:], name)
		if idx < 0 {
			t.Fatalf("call %s missing or out of order in first frame: %v", name, calls)
		}
		last0 += idx + 1
	}
	if g.NumBuffers() != 0 || g.NumPrograms() != 0 {
		t.Errorf("resources leaked after run: %d buffers %d programs", g.NumBuffers(), g.NumPrograms())
	}
}

func TestLinkFailureReleases(t *testing.T) {
	g := softgl.New()
	r, err := glrender.NewRenderer(g, 10, 10, glrender.Config{})
	if err != nil {
		t.Fatal(err)
	}
	src, err := glbuild.NewDefaultProgrammer().Sources(1)
	if err != nil {
		t.Fatal(err)
	}
	src.Compute = "#version 430\nvoid main() {}\n" // Missing local size.
	err = r.LinkPrograms(src)
	if err == nil {
		t.Fatal("want error for bad compute source")
	}
	if r.State() != glrender.StateUninitialized {
		t.Errorf("want uninitialized after failed link, got %s", r.State())
	}
	if g.NumPrograms() != 0 || g.NumShaders() != 0 {
		t.Errorf("objects leaked after failed link: %d programs %d shaders", g.NumPrograms(), g.NumShaders())
	}
}

func TestImageRendererSlice(t *testing.T) {
	s, err := csgmarch.ReferenceScene()
	if err != nil {
		t.Fatal(err)
	}
	ir, err := glrender.NewImageRendererSlice(256, nil)
	if err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	bb := ms2.Box{Min: ms2.Vec{X: -1.2, Y: -1.2}, Max: ms2.Vec{X: 1.2, Y: 1.2}}
	err = ir.Render(s, bb, 0, img, nil)
	if err != nil {
		t.Fatal(err)
	}
	black := color.RGBA{A: 255}
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	if got := img.RGBAAt(32, 63); got != black {
		t.Errorf("bottom row is under the floor, want black got %v", got)
	}
	if got := img.RGBAAt(32, 0); got != white {
		t.Errorf("top row is empty space, want white got %v", got)
	}
	if _, err := glrender.NewImageRendererSlice(8, nil); err == nil {
		t.Error("want error for small buffer")
	}
	if err := ir.Render(s, ms2.Box{}, 0, img, nil); err == nil {
		t.Error("want error for empty bounds")
	}
}

func TestUploadExceedsCapacity(t *testing.T) {
	g := softgl.New()
	s, err := csgmarch.ReferenceScene()
	if err != nil {
		t.Fatal(err)
	}
	big, err := glbuild.EncodeScene(s)
	if err != nil {
		t.Fatal(err)
	}
	var bld csgmarch.Builder
	small, err := bld.Flatten(bld.Union(bld.NewFloor(), bld.NewCylinder(0, 0, 0.5, 0.5)))
	if err != nil {
		t.Fatal(err)
	}
	smallTables, err := glbuild.EncodeScene(small)
	if err != nil {
		t.Fatal(err)
	}
	src, err := glbuild.NewDefaultProgrammer().Sources(small.NumNodes())
	if err != nil {
		t.Fatal(err)
	}
	r, err := glrender.NewRenderer(g, 64, 64, glrender.Config{ReadbackEvery: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Terminate()
	if err := r.LinkPrograms(src); err != nil {
		t.Fatal(err)
	}
	if err := r.Upload(big); !errors.Is(err, gleval.ErrCapacity) {
		t.Fatalf("want ErrCapacity uploading %d nodes, got %v", s.NumNodes(), err)
	}
	if r.State() != glrender.StateProgramsLinked {
		t.Errorf("failed upload changed state to %s", r.State())
	}
	if err := r.Upload(smallTables); err != nil {
		t.Fatal(err)
	}
	if err := r.Upload(big); !errors.Is(err, gleval.ErrCapacity) {
		t.Errorf("want ErrCapacity replacing with %d nodes, got %v", s.NumNodes(), err)
	}
	win := &window{g: g, closeAt: 1}
	if err := r.Tick(win, 0); err != nil {
		t.Fatal(err)
	}
	count, _ := g.Uniform(r.RasterProgram().ID(), glbuild.UniformNodeCount)
	if !slices.Equal(count, []float32{float32(small.NumNodes())}) {
		t.Errorf("want node count %d after rejected upload, got %v", small.NumNodes(), count)
	}
}

func TestTickZeroSize(t *testing.T) {
	g := softgl.New()
	r := newReferenceRenderer(t, g, glrender.Config{})
	win := &window{g: g, closeAt: 2}
	r.Resize(800, 0)
	if err := r.Tick(win, 0); err != nil {
		t.Fatal(err)
	}
	if g.Draws != 0 {
		t.Errorf("drew %d frames to a zero sized target", g.Draws)
	}
	if win.swaps != 1 || win.polls != 1 || r.Frame() != 1 {
		t.Errorf("want frame presented, got %d swaps %d polls frame %d", win.swaps, win.polls, r.Frame())
	}
	r.Resize(800, 600)
	if err := r.Tick(win, 0.1); err != nil {
		t.Fatal(err)
	}
	if g.Draws != 1 {
		t.Errorf("want 1 draw after restoring size, got %d", g.Draws)
	}
}

func TestReadbackRequiresCompute(t *testing.T) {
	g := softgl.New()
	r, err := glrender.NewRenderer(g, 10, 10, glrender.Config{ReadbackEvery: 1})
	if err != nil {
		t.Fatal(err)
	}
	src, err := glbuild.NewDefaultProgrammer().Sources(1)
	if err != nil {
		t.Fatal(err)
	}
	src.Compute = ""
	if err := r.LinkPrograms(src); err == nil {
		t.Fatal("want error linking without compute source while readback is enabled")
	}
	if r.State() != glrender.StateUninitialized {
		t.Errorf("want uninitialized, got %s", r.State())
	}
	if g.NumPrograms() != 0 || g.NumShaders() != 0 {
		t.Errorf("objects leaked: %d programs %d shaders", g.NumPrograms(), g.NumShaders())
	}
}
