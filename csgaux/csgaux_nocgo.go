//go:build tinygo || !cgo

package csgaux

import (
	"errors"

	"github.com/soypat/csgmarch"
	"github.com/soypat/csgmarch/glbuild"
	"github.com/soypat/geometry/ms3"
)

var errNoCGO = errors.New("require cgo for GPU rendering")

func ui(s *csgmarch.Scene, cfg UIConfig) error { return errNoCGO }

// LoadShaderSource requires cgo.
func LoadShaderSource(path string) (glbuild.Sources, error) { return glbuild.Sources{}, errNoCGO }

// ProbeGPU requires cgo. Use [ProbeHeadless] instead.
func ProbeGPU(s *csgmarch.Scene, p ms3.Vec) ([]float32, error) { return nil, errNoCGO }
