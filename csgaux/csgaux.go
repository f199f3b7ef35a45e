// Package csgaux bundles helpers to view, slice and probe csgmarch scenes
// without wiring the renderer by hand.
package csgaux

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log"
	"os"
	"time"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/soypat/csgmarch"
	"github.com/soypat/csgmarch/glbuild"
	"github.com/soypat/csgmarch/gleval"
	"github.com/soypat/csgmarch/gleval/softgl"
	"github.com/soypat/csgmarch/glrender"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

// UIConfig configures [UI].
type UIConfig struct {
	// Window size in screen coordinates. Defaults to 800x600.
	Width, Height int
	Title         string
	// Probe is the position per-node state is read back at.
	Probe ms3.Vec
	// ReadbackEvery reads back per-node state every N frames and logs it. Zero disables readback.
	ReadbackEvery int
	// ShaderFile is a combined shader file (see [LoadShaderSource]) used in place of the generated sources.
	ShaderFile string
	Silent     bool
}

// UI opens a window and raymarches the scene until the window is closed or
// Escape is pressed. It must be called from the main thread.
func UI(s *csgmarch.Scene, cfg UIConfig) error {
	if s == nil {
		return errors.New("nil scene")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 800, 600
	}
	if cfg.Title == "" {
		cfg.Title = "csgmarch raymarcher"
	}
	return ui(s, cfg)
}

// SliceConfig configures [RenderSlicePNG].
type SliceConfig struct {
	// Z is the height of the sliced plane.
	Z float32
	// Bounds is the sliced area. The zero value uses the scene's xy bounds plus a margin.
	Bounds ms2.Box
	// Height of the image in pixels. The width follows the aspect ratio of Bounds. Defaults to 512.
	Height int
	// Conversion maps distance to color. Nil uses [ColorConversionInigoQuilez].
	Conversion func(float32) color.Color
	// Caption is drawn at the top left corner of the image when not empty.
	Caption string
	Silent  bool
}

const captionSize = 14

// RenderSlice renders the cross section of s at z=cfg.Z on the CPU.
func RenderSlice(s *csgmarch.Scene, cfg SliceConfig) (*image.RGBA, error) {
	if s == nil {
		return nil, errors.New("nil scene")
	}
	bb := cfg.Bounds
	if bb == (ms2.Box{}) {
		sb := s.Bounds()
		margin := 0.1 * max(sb.Max.X-sb.Min.X, sb.Max.Y-sb.Min.Y)
		bb = ms2.Box{
			Min: ms2.Vec{X: sb.Min.X - margin, Y: sb.Min.Y - margin},
			Max: ms2.Vec{X: sb.Max.X + margin, Y: sb.Max.Y + margin},
		}
	}
	w, h := bb.Max.X-bb.Min.X, bb.Max.Y-bb.Min.Y
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("empty slice bounds %+v", bb)
	}
	height := cfg.Height
	if height <= 0 {
		height = 512
	}
	width := max(1, int(float32(height)*w/h))
	conv := cfg.Conversion
	if conv == nil {
		conv = ColorConversionInigoQuilez(max(w, h) / 3)
	}
	renderer, err := glrender.NewImageRendererSlice(max(4096, height), conv)
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	err = renderer.Render(s, bb, cfg.Z, img, nil)
	if err != nil {
		return nil, err
	}
	if cfg.Caption != "" {
		err = drawCaption(img, cfg.Caption)
		if err != nil {
			return nil, err
		}
	}
	return img, nil
}

// RenderSlicePNG renders the cross section of s at z=cfg.Z and saves it to a PNG file.
func RenderSlicePNG(filename string, s *csgmarch.Scene, cfg SliceConfig) error {
	log := logger(cfg.Silent)
	watch := stopwatch()
	img, err := RenderSlice(s, cfg)
	if err != nil {
		return err
	}
	log("rendered", img.Bounds().Dx(), "x", img.Bounds().Dy(), "slice in", watch())
	fp, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer fp.Close()
	err = png.Encode(fp, img)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filename, err)
	}
	log("wrote", filename)
	return fp.Sync()
}

func drawCaption(dst draw.Image, text string) error {
	font, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return err
	}
	ctx := freetype.NewContext()
	ctx.SetDPI(72)
	ctx.SetFont(font)
	ctx.SetFontSize(captionSize)
	ctx.SetClip(dst.Bounds())
	ctx.SetDst(dst)
	ctx.SetSrc(image.Black)
	origin := dst.Bounds().Min
	pt := fixed.P(origin.X+4, origin.Y+4)
	pt.Y += ctx.PointToFixed(captionSize)
	_, err = ctx.DrawString(text, pt)
	return err
}

// Probe evaluates every node of s at p with the state compute program on gl
// and returns the per-node distances read back from the buffer.
func Probe(gl gleval.GL, s *csgmarch.Scene, p ms3.Vec) ([]float32, error) {
	tables, err := glbuild.EncodeScene(s)
	if err != nil {
		return nil, err
	}
	var src bytes.Buffer
	_, err = glbuild.NewDefaultProgrammer().WriteCompute(&src, s.NumNodes())
	if err != nil {
		return nil, err
	}
	prog, err := gleval.NewProgramManager(gl).CompileProgram(gleval.StageSource{Stage: gleval.StageCompute, Source: src.String()})
	if err != nil {
		return nil, err
	}
	defer prog.Delete()
	bufs, err := gleval.Upload(gl, tables)
	if err != nil {
		return nil, err
	}
	defer bufs.Delete()
	eval, err := gleval.NewStateEvaluator(gl, prog, bufs)
	if err != nil {
		return nil, err
	}
	return eval.Evaluate(p, nil)
}

// ProbeHeadless runs [Probe] against the in-memory [softgl.GL] so it works without a GPU.
func ProbeHeadless(s *csgmarch.Scene, p ms3.Vec) ([]float32, error) {
	return Probe(softgl.New(), s, p)
}

func logger(silent bool) func(args ...any) {
	return func(args ...any) {
		if !silent {
			log.Println(args...)
		}
	}
}

func stopwatch() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}
