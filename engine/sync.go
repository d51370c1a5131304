package engine

import (
	"fmt"

	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
)

// frameSync is owned by one frame slot.
type frameSync struct {
	// signaled by the surface once the acquired image can be rendered into
	imageAvailable metadata.Handle
	// signaled by the submission, waited on by present
	renderFinished metadata.Handle
	// guards the slot's uniform buffers and command buffers
	inFlight metadata.Handle
}

// createSyncObjects creates one frameSync per slot. Fences start signaled
// so the first wait of every slot returns at once.
func createSyncObjects(backend renderer.Synchronizer, count uint32) ([]frameSync, error) {
	frames := make([]frameSync, 0, count)
	for i := uint32(0); i < count; i++ {
		var (
			fs  frameSync
			err error
		)
		if fs.imageAvailable, err = backend.CreateSemaphore(); err != nil {
			destroySyncObjects(backend, frames)
			return nil, core.NewGPUError("", fmt.Sprintf("image available semaphore %d", i), err)
		}
		if fs.renderFinished, err = backend.CreateSemaphore(); err != nil {
			backend.DestroySemaphore(fs.imageAvailable)
			destroySyncObjects(backend, frames)
			return nil, core.NewGPUError("", fmt.Sprintf("render finished semaphore %d", i), err)
		}
		if fs.inFlight, err = backend.CreateFence(true); err != nil {
			backend.DestroySemaphore(fs.imageAvailable)
			backend.DestroySemaphore(fs.renderFinished)
			destroySyncObjects(backend, frames)
			return nil, core.NewGPUError("", fmt.Sprintf("in flight fence %d", i), err)
		}
		frames = append(frames, fs)
	}
	return frames, nil
}

func destroySyncObjects(backend renderer.Synchronizer, frames []frameSync) {
	for _, fs := range frames {
		backend.DestroyFence(fs.inFlight)
		backend.DestroySemaphore(fs.renderFinished)
		backend.DestroySemaphore(fs.imageAvailable)
	}
}
