package csgaux

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	math "github.com/chewxy/math32"
	"github.com/soypat/csgmarch"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

func TestRenderSlicePNG(t *testing.T) {
	s, err := csgmarch.ReferenceScene()
	if err != nil {
		t.Fatal(err)
	}
	const size = 64
	bb := ms2.Box{Min: ms2.Vec{X: -1.2, Y: -1.2}, Max: ms2.Vec{X: 1.2, Y: 1.2}}
	filename := filepath.Join(t.TempDir(), "slice.png")
	err = RenderSlicePNG(filename, s, SliceConfig{
		Bounds:     bb,
		Height:     size,
		Conversion: ColorConversionLinearGradient(0, color.Black, color.White),
		Silent:     true,
	})
	if err != nil {
		t.Fatal(err)
	}
	fp, err := os.Open(filename)
	if err != nil {
		t.Fatal(err)
	}
	defer fp.Close()
	img, err := png.Decode(fp)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != size || img.Bounds().Dy() != size {
		t.Fatalf("want %dx%d image, got %v", size, size, img.Bounds())
	}
	const step = 2.4 / size
	state := make([]float32, s.NumNodes())
	for _, px := range []image.Point{{32, 45}, {32, 63}, {32, 0}, {5, 5}, {10, 40}, {55, 40}} {
		p := ms3.Vec{
			X: bb.Min.X + (float32(px.X)+0.5)*step,
			Y: bb.Max.Y - (float32(px.Y)+0.5)*step,
		}
		d, err := s.EvaluateNodes(p, state)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(d) < step {
			continue // Too close to the surface to tell.
		}
		r, _, _, _ := img.At(px.X, px.Y).RGBA()
		if inside := r == 0; inside != (d < 0) {
			t.Errorf("pixel %v at %+v: distance %g but inside=%v", px, p, d, inside)
		}
	}
}

func TestRenderSliceCaption(t *testing.T) {
	s, err := csgmarch.ReferenceScene()
	if err != nil {
		t.Fatal(err)
	}
	white := func(float32) color.Color { return color.White }
	img, err := RenderSlice(s, SliceConfig{Height: 100, Conversion: white, Caption: "UFABC z=0"})
	if err != nil {
		t.Fatal(err)
	}
	inked := 0
	for y := 0; y < 24; y++ {
		for x := 0; x < 60 && x < img.Bounds().Dx(); x++ {
			if img.RGBAAt(x, y) != (color.RGBA{R: 255, G: 255, B: 255, A: 255}) {
				inked++
			}
		}
	}
	if inked == 0 {
		t.Error("caption was not drawn")
	}
}

func TestRenderSliceDefaults(t *testing.T) {
	s, err := csgmarch.ReferenceScene()
	if err != nil {
		t.Fatal(err)
	}
	img, err := RenderSlice(s, SliceConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dy() != 512 || img.Bounds().Dx() <= 0 {
		t.Errorf("unexpected default image size %v", img.Bounds())
	}
	_, err = RenderSlice(nil, SliceConfig{})
	if err == nil {
		t.Error("expected error for nil scene")
	}
}

func TestProbeHeadlessMatchesCPU(t *testing.T) {
	s, err := csgmarch.ReferenceScene()
	if err != nil {
		t.Fatal(err)
	}
	want := make([]float32, s.NumNodes())
	for _, p := range []ms3.Vec{{}, {X: 0, Y: -0.5}, {X: 0.3, Y: 0.1, Z: 0.2}, {X: 5, Y: -3, Z: 1}} {
		got, err := ProbeHeadless(s, p)
		if err != nil {
			t.Fatal(err)
		}
		_, err = s.EvaluateNodes(p, want)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != len(want) {
			t.Fatalf("want %d state values, got %d", len(want), len(got))
		}
		for i := range got {
			if math.Abs(got[i]-want[i]) > 1e-6 {
				t.Errorf("probe %+v node %d: got %g, want %g", p, i, got[i], want[i])
			}
		}
	}
}

func TestColorConversions(t *testing.T) {
	iq := ColorConversionInigoQuilez(1)
	if iq(math.NaN()) != red {
		t.Error("NaN should be red")
	}
	inside := iq(-0.5).(color.RGBA)
	outside := iq(0.5).(color.RGBA)
	if inside.B <= inside.R {
		t.Errorf("inside should be blue tinted, got %+v", inside)
	}
	if outside.R <= outside.B {
		t.Errorf("outside should be orange tinted, got %+v", outside)
	}
	if edge := iq(0).(color.RGBA); edge != (color.RGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Errorf("surface should be white, got %+v", edge)
	}

	grad := ColorConversionLinearGradient(2, color.Black, color.White)
	if grad(-5) != color.Black || grad(5) != color.White {
		t.Error("gradient ends should be the given colors")
	}
	mid := grad(0).(color.RGBA)
	if mid.R < 120 || mid.R > 135 || mid.R != mid.G || mid.G != mid.B {
		t.Errorf("gradient midpoint should be mid gray, got %+v", mid)
	}
}
