// Package glrender drives the per-frame raymarch pass and the optional state
// readback over an uploaded scene.
package glrender

import (
	"errors"
	"fmt"

	"github.com/soypat/csgmarch/glbuild"
	"github.com/soypat/csgmarch/gleval"
	"github.com/soypat/geometry/ms3"
)

// ErrState is returned when a Renderer method is called in a state that does not allow it.
var ErrState = errors.New("renderer method called out of order")

// State is the lifecycle stage of a [Renderer].
type State uint8

const (
	StateUninitialized State = iota
	StateProgramsLinked
	StateBuffersUploaded
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateProgramsLinked:
		return "programs linked"
	case StateBuffersUploaded:
		return "buffers uploaded"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Window is the surface frames are presented to.
type Window interface {
	// ShouldClose reports whether the user requested the window be closed.
	ShouldClose() bool
	SwapBuffers()
	PollEvents()
}

// Full-viewport quad: top right, bottom right, bottom left, top left.
var (
	QuadVertices = [12]float32{
		1, 1, 0,
		1, -1, 0,
		-1, -1, 0,
		-1, 1, 0,
	}
	QuadIndices = [6]uint32{0, 1, 3, 1, 2, 3}
)

// Config configures a [Renderer].
type Config struct {
	// ClearColor is the RGBA color the target is cleared to. The zero value clears to white.
	ClearColor [4]float32
	// Probe is the position the state compute pass evaluates the scene at.
	Probe ms3.Vec
	// ReadbackEvery runs the state compute pass and readback every N frames.
	// Zero disables it.
	ReadbackEvery int
	// OnState receives the per-node state after each readback. The slice is reused between calls.
	OnState func(frame int, state []float32)
}

// Renderer is the frame driver. It owns the programs, scene buffers and the
// quad vertex array, and moves through
//
//	Uninitialized → ProgramsLinked → BuffersUploaded → Running → Terminated
//
// Methods must be called from the thread owning the GL context.
type Renderer struct {
	gl      gleval.GL
	cfg     Config
	state   State
	width   int
	height  int
	raster  *gleval.Program
	compute *gleval.Program
	bufs    *gleval.BufferSet
	eval    *gleval.StateEvaluator
	quad    uint32
	frame   int
	readbuf []float32
}

// NewRenderer returns an uninitialized renderer for a target of the given size.
func NewRenderer(gl gleval.GL, width, height int, cfg Config) (*Renderer, error) {
	if gl == nil {
		return nil, errors.New("nil GL")
	} else if width < 0 || height < 0 {
		return nil, errors.New("negative renderer size")
	} else if cfg.ReadbackEvery < 0 {
		return nil, errors.New("negative readback period")
	}
	if cfg.ClearColor == [4]float32{} {
		cfg.ClearColor = [4]float32{1, 1, 1, 1}
	}
	return &Renderer{gl: gl, cfg: cfg, width: width, height: height}, nil
}

// State returns the renderer's lifecycle stage.
func (r *Renderer) State() State { return r.state }

// Size returns the latest known target size.
func (r *Renderer) Size() (width, height int) { return r.width, r.height }

// Frame returns the number of frames drawn.
func (r *Renderer) Frame() int { return r.frame }

// RasterProgram returns the linked raymarch program or nil.
func (r *Renderer) RasterProgram() *gleval.Program { return r.raster }

// LinkPrograms compiles and links the raster program and, if src.Compute is
// not empty, the state compute program. It also creates the quad.
// Readback configured without a compute source is an error.
func (r *Renderer) LinkPrograms(src glbuild.Sources) (err error) {
	if r.state != StateUninitialized {
		return fmt.Errorf("%w: link programs in state %s", ErrState, r.state)
	} else if r.cfg.ReadbackEvery > 0 && src.Compute == "" {
		return errors.New("state readback configured but no compute source given")
	}
	defer func() {
		if err != nil {
			r.release()
		}
	}()
	pm := gleval.NewProgramManager(r.gl)
	r.raster, err = pm.CompileProgram(
		gleval.StageSource{Stage: gleval.StageVertex, Source: src.Vertex},
		gleval.StageSource{Stage: gleval.StageFragment, Source: src.Fragment},
	)
	if err != nil {
		return err
	}
	if src.Compute != "" {
		r.compute, err = pm.CompileProgram(gleval.StageSource{Stage: gleval.StageCompute, Source: src.Compute})
		if err != nil {
			return err
		}
	}
	r.quad = r.gl.CreateQuad(QuadVertices[:], QuadIndices[:])
	if r.quad == 0 {
		return &gleval.ResourceError{Op: "create quad", Err: errors.Join(errors.New("got zero id"), r.gl.Err())}
	}
	r.gl.Viewport(0, 0, int32(r.width), int32(r.height))
	r.state = StateProgramsLinked
	return nil
}

// Upload uploads the scene tables. Once uploaded, further calls replace the
// buffer contents wholesale. Scenes with more nodes than the linked programs
// evaluate are rejected with [gleval.ErrCapacity] and leave the buffers untouched.
func (r *Renderer) Upload(tables glbuild.Tables) (err error) {
	if r.state == StateProgramsLinked || r.state == StateBuffersUploaded || r.state == StateRunning {
		n := tables.NumNodes()
		err = errors.Join(r.raster.CheckNodes(n), r.compute.CheckNodes(n))
		if err != nil {
			return err
		}
	}
	switch r.state {
	case StateProgramsLinked:
		r.bufs, err = gleval.Upload(r.gl, tables)
		if err != nil {
			return err
		}
	case StateBuffersUploaded, StateRunning:
		err = r.bufs.Replace(tables)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: upload in state %s", ErrState, r.state)
	}
	if r.compute != nil && r.eval == nil {
		r.eval, err = gleval.NewStateEvaluator(r.gl, r.compute, r.bufs)
		if err != nil {
			return err
		}
	}
	if r.state == StateProgramsLinked {
		r.state = StateBuffersUploaded
	}
	return nil
}

// Resize records the new target size and updates the viewport. It is meant
// to be called from the window's framebuffer size callback.
func (r *Renderer) Resize(width, height int) {
	if r.state == StateTerminated || width < 0 || height < 0 {
		return
	}
	r.width, r.height = width, height
	if r.state != StateUninitialized {
		r.gl.Viewport(0, 0, int32(width), int32(height))
	}
}

// Tick draws one frame at time now in seconds, optionally runs the state
// readback and presents the frame to win.
func (r *Renderer) Tick(win Window, now float64) error {
	if r.state != StateBuffersUploaded && r.state != StateRunning {
		return fmt.Errorf("%w: tick in state %s", ErrState, r.state)
	}
	r.state = StateRunning
	var err error
	// A minimized window has a zero sized framebuffer: nothing to draw.
	if r.width > 0 && r.height > 0 {
		err = r.draw(now)
		if err != nil {
			return err
		}
	}
	if r.eval != nil && r.cfg.ReadbackEvery > 0 && r.frame%r.cfg.ReadbackEvery == 0 {
		r.readbuf, err = r.eval.Evaluate(r.cfg.Probe, r.readbuf[:0])
		if err != nil {
			return err
		}
		if r.cfg.OnState != nil {
			r.cfg.OnState(r.frame, r.readbuf)
		}
	}
	r.frame++
	win.SwapBuffers()
	win.PollEvents()
	return nil
}

func (r *Renderer) draw(now float64) error {
	c := r.cfg.ClearColor
	r.gl.Clear(c[0], c[1], c[2], c[3])
	err := r.raster.Bind()
	if err != nil {
		return err
	}
	r.raster.SetUniform2f(glbuild.UniformResolution, float32(r.width), float32(r.height))
	r.raster.SetUniform1f(glbuild.UniformTime, float32(now))
	r.raster.SetUniform1i(glbuild.UniformNodeCount, int32(r.bufs.NumNodes()))
	r.bufs.Bind()
	r.gl.DrawQuad(r.quad, int32(len(QuadIndices)))
	if err := r.gl.Err(); err != nil {
		return &gleval.ResourceError{Op: "draw frame", Err: err}
	}
	return nil
}

// Run draws frames until the window requests to close, then terminates the
// renderer. now returns the elapsed time in seconds.
func (r *Renderer) Run(win Window, now func() float64) error {
	if r.state != StateBuffersUploaded && r.state != StateRunning {
		return fmt.Errorf("%w: run in state %s", ErrState, r.state)
	}
	for !win.ShouldClose() {
		err := r.Tick(win, now())
		if err != nil {
			r.Terminate()
			return err
		}
	}
	return r.Terminate()
}

// Terminate releases all GPU resources. The renderer can't be used afterwards.
func (r *Renderer) Terminate() error {
	if r.state == StateTerminated {
		return fmt.Errorf("%w: already terminated", ErrState)
	}
	r.release()
	r.state = StateTerminated
	return r.gl.Err()
}

func (r *Renderer) release() {
	if r.bufs != nil {
		r.bufs.Delete()
		r.bufs = nil
	}
	r.eval = nil
	if r.quad != 0 {
		r.gl.DeleteQuad(r.quad)
		r.quad = 0
	}
	r.raster.Delete()
	r.compute.Delete()
	r.raster, r.compute = nil, nil
}
