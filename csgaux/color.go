package csgaux

import (
	"image/color"

	math "github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glgl/math/ms1"
)

var red = color.RGBA{R: 255, A: 255}

// ColorConversionInigoQuilez colors a distance slice using [Inigo Quilez]'s
// banded style: orange outside, blue inside and a white contour at the surface.
// A good value for the characteristic distance is the slice diagonal divided by 3.
// NaN distances are painted red.
//
// [Inigo Quilez]: https://iquilezles.org/articles/distfunctions2d/
func ColorConversionInigoQuilez(characteristicDistance float32) func(float32) color.Color {
	inv := 1 / characteristicDistance
	return func(d float32) color.Color {
		if math.IsNaN(d) {
			return red
		}
		d *= inv
		c := ms3.Vec{X: 0.65, Y: 0.85, Z: 1}
		if d > 0 {
			c = ms3.Vec{X: 0.9, Y: 0.6, Z: 0.3}
		}
		ad := math.Abs(d)
		c = ms3.Scale((1-math.Exp(-6*ad))*(0.8+0.2*math.Cos(150*d)), c)
		edge := 1 - ms1.SmoothStep(0, 0.01, ad)
		return color.RGBA{
			R: unitToByte(ms1.Interp(c.X, 1, edge)),
			G: unitToByte(ms1.Interp(c.Y, 1, edge)),
			B: unitToByte(ms1.Interp(c.Z, 1, edge)),
			A: 255,
		}
	}
}

// ColorConversionLinearGradient blends from inside color c0 to outside
// color c1 over a band of width gradientLength centered on the surface.
// A zero gradientLength yields a hard two-tone cut.
func ColorConversionLinearGradient(gradientLength float32, c0, c1 color.Color) func(d float32) color.Color {
	r0, g0, b0 := colorToUnit(c0)
	r1, g1, b1 := colorToUnit(c1)
	return func(d float32) color.Color {
		if math.IsNaN(d) {
			return red
		}
		if gradientLength == 0 {
			if d < 0 {
				return c0
			}
			return c1
		}
		t := d/gradientLength + 0.5
		if t <= 0 {
			return c0
		} else if t >= 1 {
			return c1
		}
		return color.RGBA{
			R: unitToByte(ms1.Interp(r0, r1, t)),
			G: unitToByte(ms1.Interp(g0, g1, t)),
			B: unitToByte(ms1.Interp(b0, b1, t)),
			A: 255,
		}
	}
}

func colorToUnit(c color.Color) (r, g, b float32) {
	r16, g16, b16, _ := c.RGBA()
	return float32(r16) / 0xffff, float32(g16) / 0xffff, float32(b16) / 0xffff
}

func unitToByte(v float32) uint8 {
	return uint8(ms1.Clamp(v, 0, 1) * math.MaxUint8)
}
