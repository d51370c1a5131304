package renderer

import (
	"fmt"

	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
)

/**
 * @brief A GPU image with its view, memory and an optional sampler.
 * Blocks created by the ResourceBuilder release everything they own exactly
 * once; blocks wrapping swapchain images are owned by the surface and
 * Release is a no-op for them.
 */
type ImageBlock struct {
	Name    string
	Image   metadata.Handle
	Sampler metadata.Handle
	Format  metadata.Format
	Width   uint32
	Height  uint32
	Usage   metadata.ImageUsage
	Aspect  metadata.ImageAspect

	allocator ResourceAllocator
	released  bool
}

// WrapExternalImage describes an image owned by somebody else.
func WrapExternalImage(name string, image metadata.Handle, format metadata.Format, extent metadata.Extent2D) *ImageBlock {
	return &ImageBlock{
		Name:   name,
		Image:  image,
		Format: format,
		Width:  extent.Width,
		Height: extent.Height,
		Aspect: metadata.IMAGE_ASPECT_COLOR,
	}
}

func (b *ImageBlock) Extent() metadata.Extent2D {
	return metadata.Extent2D{Width: b.Width, Height: b.Height}
}

func (b *ImageBlock) IsReleased() bool { return b.released }

func (b *ImageBlock) Release() {
	if b == nil || b.released {
		return
	}
	b.released = true
	if b.allocator == nil {
		return
	}
	if !b.Sampler.IsNull() {
		b.allocator.DestroySampler(b.Sampler)
	}
	if !b.Image.IsNull() {
		b.allocator.DestroyImage(b.Image)
	}
	b.Sampler = metadata.NullHandle
	b.Image = metadata.NullHandle
}

/** @brief A GPU buffer and its memory. */
type BufferBlock struct {
	Name   string
	Buffer metadata.Handle
	Size   uint64
	Usage  metadata.BufferUsage
	Memory metadata.MemoryProperty

	allocator ResourceAllocator
	released  bool
}

// Write copies data into a host visible buffer.
func (b *BufferBlock) Write(offset uint64, data []byte) error {
	if b.released {
		return fmt.Errorf("buffer `%s` used after release", b.Name)
	}
	if offset+uint64(len(data)) > b.Size {
		return fmt.Errorf("write of %d bytes at %d overflows buffer `%s` of %d bytes", len(data), offset, b.Name, b.Size)
	}
	return b.allocator.WriteBuffer(b.Buffer, offset, data)
}

func (b *BufferBlock) IsReleased() bool { return b.released }

func (b *BufferBlock) Release() {
	if b == nil || b.released {
		return
	}
	b.released = true
	if b.allocator != nil && !b.Buffer.IsNull() {
		b.allocator.DestroyBuffer(b.Buffer)
	}
	b.Buffer = metadata.NullHandle
}

// ResourceBuilder creates images, buffers and one-shot command buffers on
// top of a RendererBackend.
type ResourceBuilder struct {
	backend RendererBackend
}

func NewResourceBuilder(backend RendererBackend) *ResourceBuilder {
	return &ResourceBuilder{backend: backend}
}

func (rb *ResourceBuilder) Backend() RendererBackend {
	return rb.backend
}

// CreateImageBlock creates an image and, when sampler is not nil, a sampler
// for it. Nothing is leaked if the sampler fails.
func (rb *ResourceBuilder) CreateImageBlock(config metadata.ImageConfig, sampler *metadata.SamplerConfig) (*ImageBlock, error) {
	if config.Width == 0 || config.Height == 0 {
		return nil, fmt.Errorf("image `%s` has an empty extent %dx%d", config.Name, config.Width, config.Height)
	}
	if config.Memory == 0 {
		config.Memory = metadata.MEMORY_PROPERTY_DEVICE_LOCAL
	}
	img, err := rb.backend.CreateImage(config)
	if err != nil {
		return nil, core.NewGPUError("", "image "+config.Name, err)
	}
	block := &ImageBlock{
		Name:      config.Name,
		Image:     img,
		Format:    config.Format,
		Width:     config.Width,
		Height:    config.Height,
		Usage:     config.Usage,
		Aspect:    config.Aspect,
		allocator: rb.backend,
	}
	if sampler != nil {
		s, err := rb.backend.CreateSampler(*sampler)
		if err != nil {
			block.Release()
			return nil, core.NewGPUError("", "sampler "+sampler.Name, err)
		}
		block.Sampler = s
	}
	return block, nil
}

func (rb *ResourceBuilder) CreateBufferBlock(config metadata.BufferConfig) (*BufferBlock, error) {
	if config.Size == 0 {
		return nil, fmt.Errorf("buffer `%s` has size 0", config.Name)
	}
	buf, err := rb.backend.CreateBuffer(config)
	if err != nil {
		return nil, core.NewGPUError("", "buffer "+config.Name, err)
	}
	return &BufferBlock{
		Name:      config.Name,
		Buffer:    buf,
		Size:      config.Size,
		Usage:     config.Usage,
		Memory:    config.Memory,
		allocator: rb.backend,
	}, nil
}

/**
 * @brief Records `fn` into a freshly allocated command buffer, submits it and
 * waits for completion. The command buffer is freed on every path.
 */
func (rb *ResourceBuilder) WithOneTimeCommands(fn func(cmd metadata.Handle) error) error {
	cmds, err := rb.backend.AllocateCommandBuffers(1)
	if err != nil {
		return fmt.Errorf("failed to allocate one-time command buffer: %w", err)
	}
	defer rb.backend.FreeCommandBuffers(cmds)

	cmd := cmds[0]
	if err := rb.backend.BeginCommandBuffer(cmd, true); err != nil {
		return err
	}
	if err := fn(cmd); err != nil {
		// the buffer still has to leave the recording state before it is freed
		_ = rb.backend.EndCommandBuffer(cmd)
		return err
	}
	if err := rb.backend.EndCommandBuffer(cmd); err != nil {
		return err
	}
	return rb.backend.SubmitAndWait(cmd)
}

func (rb *ResourceBuilder) createStaging(name string, data []byte) (*BufferBlock, error) {
	staging, err := rb.CreateBufferBlock(metadata.BufferConfig{
		Name:   name + "_staging",
		Size:   uint64(len(data)),
		Usage:  metadata.BUFFER_USAGE_TRANSFER_SRC,
		Memory: metadata.MEMORY_PROPERTY_HOST,
	})
	if err != nil {
		return nil, err
	}
	if err := staging.Write(0, data); err != nil {
		staging.Release()
		return nil, err
	}
	return staging, nil
}

// UploadBuffer creates a device local buffer filled with data through a
// staging buffer.
func (rb *ResourceBuilder) UploadBuffer(name string, usage metadata.BufferUsage, data []byte) (*BufferBlock, error) {
	staging, err := rb.createStaging(name, data)
	if err != nil {
		return nil, err
	}
	defer staging.Release()

	dst, err := rb.CreateBufferBlock(metadata.BufferConfig{
		Name:   name,
		Size:   uint64(len(data)),
		Usage:  usage | metadata.BUFFER_USAGE_TRANSFER_DST,
		Memory: metadata.MEMORY_PROPERTY_DEVICE_LOCAL,
	})
	if err != nil {
		return nil, err
	}
	err = rb.WithOneTimeCommands(func(cmd metadata.Handle) error {
		rb.backend.CmdCopyBuffer(cmd, staging.Buffer, dst.Buffer, []metadata.BufferCopy{{Size: uint64(len(data))}})
		return nil
	})
	if err != nil {
		dst.Release()
		return nil, err
	}
	return dst, nil
}

// CreateTexture creates a sampled image and fills it with pixels. The image
// ends in the shader read-only layout.
func (rb *ResourceBuilder) CreateTexture(config metadata.ImageConfig, sampler metadata.SamplerConfig, pixels []byte) (*ImageBlock, error) {
	expected := int(config.Width * config.Height * config.Format.Size())
	if len(pixels) != expected {
		return nil, fmt.Errorf("texture `%s` expects %d bytes, got %d", config.Name, expected, len(pixels))
	}
	config.Usage |= metadata.IMAGE_USAGE_TRANSFER_DST | metadata.IMAGE_USAGE_SAMPLED
	if config.Aspect == 0 {
		config.Aspect = metadata.IMAGE_ASPECT_COLOR
	}
	staging, err := rb.createStaging(config.Name, pixels)
	if err != nil {
		return nil, err
	}
	defer staging.Release()

	block, err := rb.CreateImageBlock(config, &sampler)
	if err != nil {
		return nil, err
	}
	err = rb.WithOneTimeCommands(func(cmd metadata.Handle) error {
		rb.backend.CmdPipelineBarrier(cmd, metadata.ImageBarrier{
			Image:     block.Image,
			Aspect:    block.Aspect,
			OldLayout: metadata.IMAGE_LAYOUT_UNDEFINED,
			NewLayout: metadata.IMAGE_LAYOUT_TRANSFER_DST_OPTIMAL,
			DstAccess: metadata.ACCESS_TRANSFER_WRITE,
			SrcStage:  metadata.PIPELINE_STAGE_TOP_OF_PIPE,
			DstStage:  metadata.PIPELINE_STAGE_TRANSFER,
		})
		rb.backend.CmdCopyBufferToImage(cmd, staging.Buffer, block.Image, block.Width, block.Height)
		rb.backend.CmdPipelineBarrier(cmd, metadata.ImageBarrier{
			Image:     block.Image,
			Aspect:    block.Aspect,
			OldLayout: metadata.IMAGE_LAYOUT_TRANSFER_DST_OPTIMAL,
			NewLayout: metadata.IMAGE_LAYOUT_SHADER_READ_ONLY_OPTIMAL,
			SrcAccess: metadata.ACCESS_TRANSFER_WRITE,
			DstAccess: metadata.ACCESS_SHADER_READ,
			SrcStage:  metadata.PIPELINE_STAGE_TRANSFER,
			DstStage:  metadata.PIPELINE_STAGE_FRAGMENT_SHADER,
		})
		return nil
	})
	if err != nil {
		block.Release()
		return nil, err
	}
	return block, nil
}

// ReadbackImage copies a color image into host memory. The image is expected
// in `layout` and is returned to it afterwards.
func (rb *ResourceBuilder) ReadbackImage(image *ImageBlock, layout metadata.ImageLayout) ([]byte, error) {
	size := uint64(image.Width) * uint64(image.Height) * uint64(image.Format.Size())
	if size == 0 {
		return nil, fmt.Errorf("image `%s` cannot be read back", image.Name)
	}
	staging, err := rb.CreateBufferBlock(metadata.BufferConfig{
		Name:   image.Name + "_readback",
		Size:   size,
		Usage:  metadata.BUFFER_USAGE_TRANSFER_DST,
		Memory: metadata.MEMORY_PROPERTY_HOST,
	})
	if err != nil {
		return nil, err
	}
	defer staging.Release()

	err = rb.WithOneTimeCommands(func(cmd metadata.Handle) error {
		rb.backend.CmdPipelineBarrier(cmd, metadata.ImageBarrier{
			Image:     image.Image,
			Aspect:    metadata.IMAGE_ASPECT_COLOR,
			OldLayout: layout,
			NewLayout: metadata.IMAGE_LAYOUT_TRANSFER_SRC_OPTIMAL,
			SrcAccess: metadata.ACCESS_MEMORY_READ,
			DstAccess: metadata.ACCESS_TRANSFER_READ,
			SrcStage:  metadata.PIPELINE_STAGE_BOTTOM_OF_PIPE,
			DstStage:  metadata.PIPELINE_STAGE_TRANSFER,
		})
		rb.backend.CmdCopyImageToBuffer(cmd, image.Image, staging.Buffer, image.Width, image.Height)
		rb.backend.CmdPipelineBarrier(cmd, metadata.ImageBarrier{
			Image:     image.Image,
			Aspect:    metadata.IMAGE_ASPECT_COLOR,
			OldLayout: metadata.IMAGE_LAYOUT_TRANSFER_SRC_OPTIMAL,
			NewLayout: layout,
			SrcAccess: metadata.ACCESS_TRANSFER_READ,
			DstAccess: metadata.ACCESS_MEMORY_READ,
			SrcStage:  metadata.PIPELINE_STAGE_TRANSFER,
			DstStage:  metadata.PIPELINE_STAGE_BOTTOM_OF_PIPE,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rb.backend.ReadBuffer(staging.Buffer, 0, size)
}
