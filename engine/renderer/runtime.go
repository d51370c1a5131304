package renderer

import (
	"fmt"

	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
)

/**
 * @brief The read-only view of the shared rendering resources handed to
 * passes. Only the engine, through Runtime, creates or replaces them.
 */
type Resources interface {
	Backend() RendererBackend
	Builder() *ResourceBuilder
	Shaders() ShaderProvider
	FramesInFlight() uint32
	PerFrameBuffer(slot uint32) *BufferBlock
	PerObjectBuffer(slot uint32) *BufferBlock
	Attachments() *Attachments
	/** @brief The global NEAREST/clamp-to-edge sampler used for GBuffer reads. */
	Sampler() metadata.Handle
	SwapchainImages() []*ImageBlock
	SwapchainFormat() metadata.Format
	Extent() metadata.Extent2D
	DepthFormat() metadata.Format
	SSAOSeed() uint64
}

// Runtime owns the per-slot uniform buffers and the size dependent
// resources. It implements Resources for the passes.
type Runtime struct {
	builder        *ResourceBuilder
	shaders        ShaderProvider
	framesInFlight uint32
	ssaoSeed       uint64

	perFrame  []*BufferBlock
	perObject []*BufferBlock

	attachments *Attachments
	sampler     metadata.Handle
	swapchain   []*ImageBlock
	swapFormat  metadata.Format
}

func NewRuntime(builder *ResourceBuilder, shaders ShaderProvider, framesInFlight uint32, ssaoSeed uint64) (*Runtime, error) {
	if framesInFlight == 0 || framesInFlight > MaxFramesInFlight {
		return nil, fmt.Errorf("frames in flight must be in [1, %d], got %d", MaxFramesInFlight, framesInFlight)
	}
	return &Runtime{
		builder:        builder,
		shaders:        shaders,
		framesInFlight: framesInFlight,
		ssaoSeed:       ssaoSeed,
	}, nil
}

// CreateGlobalBuffers creates one host visible per-frame uniform buffer and
// one per-object storage buffer for every frame slot.
func (r *Runtime) CreateGlobalBuffers() error {
	if len(r.perFrame) != 0 {
		return fmt.Errorf("global buffers already created")
	}
	for i := uint32(0); i < r.framesInFlight; i++ {
		pf, err := r.builder.CreateBufferBlock(metadata.BufferConfig{
			Name:   fmt.Sprintf("per_frame_%d", i),
			Size:   PerFrameDataSize,
			Usage:  metadata.BUFFER_USAGE_UNIFORM_BUFFER,
			Memory: metadata.MEMORY_PROPERTY_HOST,
		})
		if err != nil {
			r.FreeGlobalBuffers()
			return err
		}
		r.perFrame = append(r.perFrame, pf)

		po, err := r.builder.CreateBufferBlock(metadata.BufferConfig{
			Name:   fmt.Sprintf("per_object_%d", i),
			Size:   PerObjectBufferSize,
			Usage:  metadata.BUFFER_USAGE_STORAGE_BUFFER,
			Memory: metadata.MEMORY_PROPERTY_HOST,
		})
		if err != nil {
			r.FreeGlobalBuffers()
			return err
		}
		r.perObject = append(r.perObject, po)
	}
	core.LogDebug("created global buffers for %d frames in flight", r.framesInFlight)
	return nil
}

func (r *Runtime) FreeGlobalBuffers() {
	for _, b := range r.perFrame {
		b.Release()
	}
	for _, b := range r.perObject {
		b.Release()
	}
	r.perFrame = nil
	r.perObject = nil
}

// WritePerFrame uploads the per-frame block of `slot`. The caller must have
// waited on the slot's fence.
func (r *Runtime) WritePerFrame(slot uint32, data *PerFrameData) error {
	if slot >= uint32(len(r.perFrame)) {
		return fmt.Errorf("frame slot %d out of range", slot)
	}
	return r.perFrame[slot].Write(0, data.Encode())
}

// WritePerObject uploads consecutive per-object records of `slot` starting
// at record 0.
func (r *Runtime) WritePerObject(slot uint32, objects []PerObjectData) error {
	if slot >= uint32(len(r.perObject)) {
		return fmt.Errorf("frame slot %d out of range", slot)
	}
	if len(objects) == 0 {
		return nil
	}
	if len(objects) > MaxObjects {
		return fmt.Errorf("%d objects exceed the maximum of %d", len(objects), MaxObjects)
	}
	buf := make([]byte, 0, len(objects)*PerObjectDataSize)
	for i := range objects {
		buf = append(buf, objects[i].Encode()...)
	}
	return r.perObject[slot].Write(0, buf)
}

func (r *Runtime) SetAttachments(a *Attachments) { r.attachments = a }
func (r *Runtime) SetSampler(s metadata.Handle)  { r.sampler = s }
func (r *Runtime) SetSwapchain(images []*ImageBlock, format metadata.Format) {
	r.swapchain = images
	r.swapFormat = format
}

func (r *Runtime) Backend() RendererBackend         { return r.builder.Backend() }
func (r *Runtime) Builder() *ResourceBuilder        { return r.builder }
func (r *Runtime) Shaders() ShaderProvider          { return r.shaders }
func (r *Runtime) FramesInFlight() uint32           { return r.framesInFlight }
func (r *Runtime) Attachments() *Attachments        { return r.attachments }
func (r *Runtime) Sampler() metadata.Handle         { return r.sampler }
func (r *Runtime) SwapchainImages() []*ImageBlock   { return r.swapchain }
func (r *Runtime) SwapchainFormat() metadata.Format { return r.swapFormat }
func (r *Runtime) DepthFormat() metadata.Format     { return r.builder.Backend().DepthFormat() }
func (r *Runtime) SSAOSeed() uint64                 { return r.ssaoSeed }

func (r *Runtime) PerFrameBuffer(slot uint32) *BufferBlock  { return r.perFrame[slot] }
func (r *Runtime) PerObjectBuffer(slot uint32) *BufferBlock { return r.perObject[slot] }

func (r *Runtime) Extent() metadata.Extent2D {
	if r.attachments != nil {
		return r.attachments.Extent()
	}
	if len(r.swapchain) > 0 {
		return r.swapchain[0].Extent()
	}
	return metadata.Extent2D{}
}
