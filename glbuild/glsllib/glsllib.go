// Package glsllib holds the GLSL sources of the CSG raymarcher. Sources are
// stage bodies without a #version line; the glbuild package assembles them
// with the scene declarations into complete programs.
package glsllib

import (
	_ "embed"
)

//go:embed scene.glsl
var sceneSrc []byte

// Scene is the scene evaluator shared by the fragment and compute stages. It
// requires the scene declarations, MAX_NODES and the STORE_STATE macro:
//
//	float sdPrimitive(vec3 p, Primitive prim)
//	float opCombine(float a, float b, BinaryOperation op)
//	float evalScene(vec3 p)
func Scene() []byte { return sceneSrc }

//go:embed vertex.glsl
var vertexSrc []byte

// Vertex passes the full-screen quad through and emits texture coordinates.
func Vertex() []byte { return vertexSrc }

//go:embed raymarch.glsl
var raymarchSrc []byte

// Raymarch is the fragment stage main. Uses iResolution and iTime uniforms.
func Raymarch() []byte { return raymarchSrc }

//go:embed state.glsl
var stateSrc []byte

// State is the compute stage main that evaluates the scene once at uProbe,
// storing every node's distance in the state buffer.
func State() []byte { return stateSrc }
