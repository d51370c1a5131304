package core

import (
	"errors"
	"fmt"
)

var (
	// ErrSurfaceStale is returned when the swapchain no longer matches the surface.
	ErrSurfaceStale = errors.New("surface is out of date or suboptimal")
	// ErrFenceTimeout is returned when a bounded fence wait expires.
	ErrFenceTimeout = errors.New("fence wait timed out")
	// ErrAcquireTimeout is returned when no swapchain image became available in time.
	ErrAcquireTimeout = errors.New("swapchain image acquire timed out")
	// ErrDeviceLost is returned once the logical device became unreachable.
	ErrDeviceLost = errors.New("device lost")

	ErrShaderNotFound     = errors.New("shader not found")
	ErrMeshNotFound       = errors.New("mesh not found")
	ErrInvalidSPIRV       = errors.New("invalid SPIR-V bytecode")
	ErrSceneInvalid       = errors.New("invalid scene description")
	ErrPassNotInitialized = errors.New("render pass not initialized")
	ErrEngineStage        = errors.New("operation not allowed in the current engine stage")
	ErrUnknown            = errors.New("unknown")
)

// GPUError identifies the GPU object and the pass that failed to be created.
type GPUError struct {
	Pass   string
	Object string
	Err    error
}

func NewGPUError(pass, object string, err error) *GPUError {
	return &GPUError{Pass: pass, Object: object, Err: err}
}

func (e *GPUError) Error() string {
	if e.Pass == "" {
		return fmt.Sprintf("failed to create %s: %v", e.Object, e.Err)
	}
	return fmt.Sprintf("pass `%s`: failed to create %s: %v", e.Pass, e.Object, e.Err)
}

func (e *GPUError) Unwrap() error {
	return e.Err
}
