package glrender

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/chewxy/math32"
	"github.com/soypat/csgmarch/gleval"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

type setImage = interface {
	image.Image
	Set(x, y int, c color.Color)
}

// ImageRendererSlice renders planar cross sections of 3D SDFs to images.
type ImageRendererSlice struct {
	conv func(f float32) color.Color
	pos  []ms3.Vec
	dist []float32
}

// NewImageRendererSlice instances a new [ImageRendererSlice]. A nil float->color conversion
// function results in a simple black-white color scheme where black is the interior of the SDF (negative distance).
func NewImageRendererSlice(evalBufferSize int, conversion func(float32) color.Color) (*ImageRendererSlice, error) {
	if evalBufferSize <= 64 {
		return nil, errors.New("too small evaluation buffer size")
	}
	if conversion == nil {
		conversion = func(f float32) color.Color {
			switch {
			case math32.IsNaN(f) || math32.IsInf(f, 0):
				return color.RGBA{R: 255, A: 255}
			case f > 0:
				return color.White
			default:
				return color.Black
			}
		}
	}
	ir := &ImageRendererSlice{
		conv: conversion,
		pos:  make([]ms3.Vec, evalBufferSize),
		dist: make([]float32, evalBufferSize),
	}
	return ir, nil
}

// Render maps the area bb of the plane at height z onto img and renders the
// SDF's cross section there. The image's top row is bb's maximum y. It uses
// userData as an argument to all [gleval.SDF3.Evaluate] calls.
func (ir *ImageRendererSlice) Render(sdf gleval.SDF3, bb ms2.Box, z float32, img setImage, userData any) error {
	imgBB := img.Bounds()
	dxi := imgBB.Dx()
	dyi := imgBB.Dy()
	if len(ir.dist) < dyi {
		return fmt.Errorf("require evaluation buffer (%d) to be at least of length of image rows (%d)", len(ir.dist), dyi)
	}
	sz := bb.Size()
	if sz.X <= 0 || sz.Y <= 0 {
		return errors.New("empty slice bounds")
	}
	dx := sz.X / float32(dxi)
	dy := sz.Y / float32(dyi)
	xmin := bb.Min.X + dx/2 // Sample pixel centers.
	ymax := bb.Max.Y - dy/2
	for i := 0; i < dxi; i++ {
		x := float32(i)*dx + xmin
		err := ir.renderColumn(sdf, i, x, ymax, dy, z, imgBB, img, userData)
		if err != nil {
			return err
		}
	}
	return nil
}

func (ir *ImageRendererSlice) renderColumn(sdf gleval.SDF3, col int, x, ymax, dy, z float32, imgBB image.Rectangle, img setImage, userData any) error {
	dyi := imgBB.Dy()
	for j := 0; j < dyi; j++ {
		y := ymax - float32(j)*dy
		ir.pos[j] = ms3.Vec{X: x, Y: y, Z: z}
	}
	err := sdf.Evaluate(ir.pos[:dyi], ir.dist[:dyi], userData)
	if err != nil {
		return err
	}
	conv := ir.conv
	for j := 0; j < dyi; j++ {
		img.Set(col+imgBB.Min.X, j+imgBB.Min.Y, conv(ir.dist[j]))
	}
	return nil
}
