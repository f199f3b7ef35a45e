//go:build !tinygo && cgo

package csgaux

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/soypat/csgmarch"
	"github.com/soypat/csgmarch/glbuild"
	"github.com/soypat/csgmarch/gleval"
	"github.com/soypat/csgmarch/glrender"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glgl/v4.6-core/glgl"
)

func ui(s *csgmarch.Scene, cfg UIConfig) error {
	log := logger(cfg.Silent)
	window, term, err := startGLFW(cfg.Width, cfg.Height, cfg.Title)
	if err != nil {
		return err
	}
	defer term()
	gl, err := gleval.NewGL()
	if err != nil {
		return err
	}
	log("max compute invocations:", glgl.MaxComputeInvocations())
	src, err := uiSources(s.NumNodes(), cfg.ShaderFile)
	if err != nil {
		return err
	}
	tables, err := glbuild.EncodeScene(s)
	if err != nil {
		return err
	}
	rcfg := glrender.Config{Probe: cfg.Probe, ReadbackEvery: cfg.ReadbackEvery}
	if !cfg.Silent {
		rcfg.OnState = func(frame int, state []float32) {
			log("frame", frame, "state", state)
		}
	}
	width, height := window.GetFramebufferSize()
	r, err := glrender.NewRenderer(gl, width, height, rcfg)
	if err != nil {
		return err
	}
	err = r.LinkPrograms(src)
	if err != nil {
		return err
	}
	err = r.Upload(tables)
	if err != nil {
		return errors.Join(err, r.Terminate())
	}
	window.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		r.Resize(width, height)
	})
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if action != glfw.Press {
			return
		}
		log("key:", key)
		if key == glfw.KeyEscape {
			w.SetShouldClose(true)
		}
	})
	log("running", s.NumNodes(), "node scene")
	return r.Run(glfwWindow{window}, glfw.GetTime)
}

func uiSources(numNodes int, shaderFile string) (glbuild.Sources, error) {
	if shaderFile != "" {
		return LoadShaderSource(shaderFile)
	}
	return glbuild.NewDefaultProgrammer().Sources(numNodes)
}

// glfwWindow adapts a GLFW window to [glrender.Window].
type glfwWindow struct {
	*glfw.Window
}

func (glfwWindow) PollEvents() { glfw.PollEvents() }

func startGLFW(width, height int, title string) (window *glfw.Window, term func(), err error) {
	if err := glfw.Init(); err != nil {
		return nil, nil, fmt.Errorf("initializing GLFW: %w", err)
	}
	// Shader storage buffers and compute shaders require OpenGL 4.3.
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 3)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	window, err = glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, nil, fmt.Errorf("creating GLFW window: %w", err)
	}
	window.MakeContextCurrent()
	return window, glfw.Terminate, nil
}

// LoadShaderSource reads a combined shader file with "#shader vertex",
// "#shader fragment" and optionally "#shader compute" sections.
func LoadShaderSource(path string) (glbuild.Sources, error) {
	fp, err := os.Open(path)
	if err != nil {
		return glbuild.Sources{}, err
	}
	defer fp.Close()
	ss, err := glgl.ParseCombined(fp)
	if err != nil {
		return glbuild.Sources{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	src := glbuild.Sources{
		Vertex:   strings.TrimRight(string(ss.Vertex), "\x00"),
		Fragment: strings.TrimRight(string(ss.Fragment), "\x00"),
		Compute:  strings.TrimRight(string(ss.Compute), "\x00"),
	}
	if src.Vertex == "" || src.Fragment == "" {
		return glbuild.Sources{}, fmt.Errorf("%s: missing vertex or fragment section", path)
	}
	return src, nil
}

// ProbeGPU runs [Probe] on a hidden 1x1 GLFW context.
func ProbeGPU(s *csgmarch.Scene, p ms3.Vec) ([]float32, error) {
	term, err := gleval.Init1x1GLFW()
	if err != nil {
		return nil, err
	}
	defer term()
	gl, err := gleval.NewGL()
	if err != nil {
		return nil, err
	}
	return Probe(gl, s, p)
}
