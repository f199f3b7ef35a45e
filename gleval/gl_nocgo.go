//go:build tinygo || !cgo

package gleval

import "errors"

var errNoCGO = errors.New("GPU evaluation requires CGo and is not supported on TinyGo")

// Init1x1GLFW starts a 1x1 sized GLFW so that user can start working with GPU.
func Init1x1GLFW() (terminate func(), err error) {
	return nil, errNoCGO
}

// NewGL returns the OpenGL implementation of [GL].
func NewGL() (GL, error) {
	return nil, errNoCGO
}
