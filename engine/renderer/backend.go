package renderer

import (
	"time"

	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
)

// DeviceContext exposes the logical device properties the frame loop needs.
type DeviceContext interface {
	WaitIdle() error
	DepthFormat() metadata.Format
	IsDeviceLost() bool
}

// ResourceAllocator creates and destroys memory backed GPU resources.
type ResourceAllocator interface {
	CreateImage(config metadata.ImageConfig) (metadata.Handle, error)
	DestroyImage(image metadata.Handle)
	CreateBuffer(config metadata.BufferConfig) (metadata.Handle, error)
	DestroyBuffer(buffer metadata.Handle)
	/** @brief Copies data into a host visible buffer. */
	WriteBuffer(buffer metadata.Handle, offset uint64, data []byte) error
	ReadBuffer(buffer metadata.Handle, offset, size uint64) ([]byte, error)
	CreateSampler(config metadata.SamplerConfig) (metadata.Handle, error)
	DestroySampler(sampler metadata.Handle)
	CreateShaderModule(name string, code []uint32) (metadata.Handle, error)
	DestroyShaderModule(module metadata.Handle)
}

// PassObjects creates the objects a render pass is built from.
type PassObjects interface {
	CreateRenderPass(config metadata.RenderPassConfig) (metadata.Handle, error)
	DestroyRenderPass(pass metadata.Handle)
	CreateFramebuffer(config metadata.FramebufferConfig) (metadata.Handle, error)
	DestroyFramebuffer(framebuffer metadata.Handle)
	CreateDescriptorSetLayout(config metadata.DescriptorSetLayoutConfig) (metadata.Handle, error)
	DestroyDescriptorSetLayout(layout metadata.Handle)
	CreateDescriptorPool(config metadata.DescriptorPoolConfig) (metadata.Handle, error)
	/** @brief Destroys the pool and every set allocated from it. */
	DestroyDescriptorPool(pool metadata.Handle)
	AllocateDescriptorSets(pool metadata.Handle, layouts []metadata.Handle) ([]metadata.Handle, error)
	UpdateDescriptorSets(writes []metadata.DescriptorWrite) error
	CreatePipelineLayout(config metadata.PipelineLayoutConfig) (metadata.Handle, error)
	DestroyPipelineLayout(layout metadata.Handle)
	CreateGraphicsPipeline(config metadata.PipelineConfig) (metadata.Handle, error)
	DestroyPipeline(pipeline metadata.Handle)
}

// CommandRecorder allocates command buffers from the graphics command pool
// and records into them.
type CommandRecorder interface {
	AllocateCommandBuffers(count uint32) ([]metadata.Handle, error)
	FreeCommandBuffers(buffers []metadata.Handle)
	BeginCommandBuffer(cmd metadata.Handle, oneTimeSubmit bool) error
	EndCommandBuffer(cmd metadata.Handle) error
	ResetCommandBuffer(cmd metadata.Handle) error

	CmdBeginRenderPass(cmd metadata.Handle, info metadata.RenderPassBeginInfo)
	CmdEndRenderPass(cmd metadata.Handle)
	CmdBindPipeline(cmd, pipeline metadata.Handle)
	CmdBindDescriptorSets(cmd, layout metadata.Handle, firstSet uint32, sets []metadata.Handle)
	CmdBindVertexBuffer(cmd, buffer metadata.Handle, offset uint64)
	CmdBindIndexBuffer(cmd, buffer metadata.Handle, offset uint64, indexType metadata.IndexType)
	CmdDraw(cmd metadata.Handle, vertexCount, firstInstance uint32)
	CmdDrawIndexed(cmd metadata.Handle, indexCount, firstInstance uint32)
	CmdCopyBuffer(cmd, src, dst metadata.Handle, regions []metadata.BufferCopy)
	CmdCopyBufferToImage(cmd, src, dst metadata.Handle, width, height uint32)
	CmdCopyImageToBuffer(cmd, src, dst metadata.Handle, width, height uint32)
	CmdPipelineBarrier(cmd metadata.Handle, barrier metadata.ImageBarrier)
}

// Synchronizer owns fences and semaphores and the graphics queue.
type Synchronizer interface {
	CreateSemaphore() (metadata.Handle, error)
	DestroySemaphore(semaphore metadata.Handle)
	CreateFence(signaled bool) (metadata.Handle, error)
	DestroyFence(fence metadata.Handle)
	/**
	 * @brief Blocks until the fence is signaled. Returns core.ErrFenceTimeout
	 * when the timeout elapses and core.ErrDeviceLost when the device is gone.
	 */
	WaitForFence(fence metadata.Handle, timeout time.Duration) error
	ResetFence(fence metadata.Handle) error
	Submit(info metadata.SubmitInfo) error
	/** @brief Submits a single command buffer and waits for the queue to drain. */
	SubmitAndWait(cmd metadata.Handle) error
}

// RendererBackend is the full capability set of a graphics device.
type RendererBackend interface {
	DeviceContext
	ResourceAllocator
	PassObjects
	CommandRecorder
	Synchronizer
}

// Surface is the presentation target: a swapchain and its images.
type Surface interface {
	/**
	 * @brief Acquires the next presentable image, signaling `signal` once it
	 * can be rendered into. Returns core.ErrAcquireTimeout when no image is
	 * available within the timeout.
	 */
	AcquireNextImage(signal metadata.Handle, timeout time.Duration) (uint32, metadata.SurfaceStatus, error)
	Present(imageIndex uint32, wait metadata.Handle) (metadata.SurfaceStatus, error)
	/** @brief Rebuilds the swapchain at the given size. */
	Resize(width, height uint32) error
	Extent() metadata.Extent2D
	ImageCount() uint32
	Format() metadata.Format
	/** @brief The swapchain images. They are owned by the surface. */
	Images() []metadata.Handle
}

// Window is the platform window the surface presents into.
type Window interface {
	PollEvents()
	WaitEvents()
	ShouldClose() bool
	RequestClose()
	FramebufferSize() (uint32, uint32)
	SetSize(width, height uint32)
}
