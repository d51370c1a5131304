package vulkan

import (
	"fmt"
	"math"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
)

func (b *Backend) allocateMemory(requirements vk.MemoryRequirements, properties metadata.MemoryProperty) (vk.DeviceMemory, error) {
	requirements.Deref()
	memoryType := b.context.FindMemoryIndex(requirements.MemoryTypeBits, uint32(vulkanMemoryProperty(properties)))
	if memoryType == -1 {
		return nil, fmt.Errorf("required memory type not found")
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memoryType),
	}
	var memory vk.DeviceMemory
	if err := b.check("vkAllocateMemory", vk.AllocateMemory(b.device(), &allocateInfo, b.context.Allocator, &memory)); err != nil {
		return nil, err
	}
	return memory, nil
}

func (b *Backend) CreateImage(config metadata.ImageConfig) (metadata.Handle, error) {
	if config.Width == 0 || config.Height == 0 {
		return metadata.NullHandle, fmt.Errorf("image `%s` has a zero extent", config.Name)
	}
	format := vulkanFormat(config.Format)
	if format == vk.FormatUndefined {
		return metadata.NullHandle, fmt.Errorf("image `%s` has an undefined format", config.Name)
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  config.Width,
			Height: config.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         vulkanImageUsage(config.Usage),
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}

	image := &VulkanImage{
		Name:   config.Name,
		Format: format,
		Aspect: vulkanAspect(config.Aspect),
		Width:  config.Width,
		Height: config.Height,
	}
	if err := b.check("vkCreateImage", vk.CreateImage(b.device(), &imageCreateInfo, b.context.Allocator, &image.Handle)); err != nil {
		return metadata.NullHandle, err
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(b.device(), image.Handle, &requirements)
	memory, err := b.allocateMemory(requirements, config.Memory)
	if err != nil {
		vk.DestroyImage(b.device(), image.Handle, b.context.Allocator)
		return metadata.NullHandle, fmt.Errorf("image `%s`: %w", config.Name, err)
	}
	image.Memory = memory
	if err := b.check("vkBindImageMemory", vk.BindImageMemory(b.device(), image.Handle, image.Memory, 0)); err != nil {
		b.destroyImage(image)
		return metadata.NullHandle, err
	}

	view, err := b.createImageView(image.Handle, format, viewAspectFor(config.Aspect, config.Usage))
	if err != nil {
		b.destroyImage(image)
		return metadata.NullHandle, err
	}
	image.View = view

	return b.objects.insert(image), nil
}

func (b *Backend) createImageView(image vk.Image, format vk.Format, aspect vk.ImageAspectFlags) (vk.ImageView, error) {
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if err := b.check("vkCreateImageView", vk.CreateImageView(b.device(), &viewCreateInfo, b.context.Allocator, &view)); err != nil {
		return nil, err
	}
	return view, nil
}

// registerExternalImage wraps an image owned elsewhere (a swapchain image)
// so framebuffers can reference it. Only the view is created.
func (b *Backend) registerExternalImage(name string, handle vk.Image, format vk.Format, width, height uint32) (metadata.Handle, error) {
	view, err := b.createImageView(handle, format, vk.ImageAspectFlags(vk.ImageAspectColorBit))
	if err != nil {
		return metadata.NullHandle, err
	}
	return b.objects.insert(&VulkanImage{
		Name:     name,
		Handle:   handle,
		View:     view,
		Format:   format,
		Aspect:   vk.ImageAspectFlags(vk.ImageAspectColorBit),
		Width:    width,
		Height:   height,
		External: true,
	}), nil
}

func (b *Backend) DestroyImage(image metadata.Handle) {
	if img, ok := take[*VulkanImage](b.objects, image); ok {
		b.destroyImage(img)
	}
}

func (b *Backend) destroyImage(image *VulkanImage) {
	if image.View != nil {
		vk.DestroyImageView(b.device(), image.View, b.context.Allocator)
		image.View = nil
	}
	if image.External {
		return
	}
	if image.Memory != nil {
		vk.FreeMemory(b.device(), image.Memory, b.context.Allocator)
		image.Memory = nil
	}
	if image.Handle != nil {
		vk.DestroyImage(b.device(), image.Handle, b.context.Allocator)
		image.Handle = nil
	}
}

func (b *Backend) CreateBuffer(config metadata.BufferConfig) (metadata.Handle, error) {
	if config.Size == 0 {
		return metadata.NullHandle, fmt.Errorf("buffer `%s` has a zero size", config.Name)
	}
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(config.Size),
		Usage:       vulkanBufferUsage(config.Usage),
		SharingMode: vk.SharingModeExclusive,
	}

	buffer := &VulkanBuffer{Name: config.Name, Size: config.Size}
	if err := b.check("vkCreateBuffer", vk.CreateBuffer(b.device(), &bufferInfo, b.context.Allocator, &buffer.Handle)); err != nil {
		return metadata.NullHandle, err
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(b.device(), buffer.Handle, &requirements)
	memory, err := b.allocateMemory(requirements, config.Memory)
	if err != nil {
		vk.DestroyBuffer(b.device(), buffer.Handle, b.context.Allocator)
		return metadata.NullHandle, fmt.Errorf("buffer `%s`: %w", config.Name, err)
	}
	buffer.Memory = memory

	if err := b.check("vkBindBufferMemory", vk.BindBufferMemory(b.device(), buffer.Handle, buffer.Memory, 0)); err != nil {
		b.destroyBuffer(buffer)
		return metadata.NullHandle, err
	}

	if config.Memory.IsHostVisible() {
		var mapped unsafe.Pointer
		if err := b.check("vkMapMemory", vk.MapMemory(b.device(), buffer.Memory, 0, vk.DeviceSize(config.Size), 0, &mapped)); err != nil {
			b.destroyBuffer(buffer)
			return metadata.NullHandle, err
		}
		buffer.Mapped = mapped
	}

	return b.objects.insert(buffer), nil
}

func (b *Backend) DestroyBuffer(buffer metadata.Handle) {
	if buf, ok := take[*VulkanBuffer](b.objects, buffer); ok {
		b.destroyBuffer(buf)
	}
}

func (b *Backend) destroyBuffer(buffer *VulkanBuffer) {
	if buffer.Mapped != nil {
		vk.UnmapMemory(b.device(), buffer.Memory)
		buffer.Mapped = nil
	}
	if buffer.Memory != nil {
		vk.FreeMemory(b.device(), buffer.Memory, b.context.Allocator)
		buffer.Memory = nil
	}
	if buffer.Handle != nil {
		vk.DestroyBuffer(b.device(), buffer.Handle, b.context.Allocator)
		buffer.Handle = nil
	}
}

func (b *Backend) mappedRange(handle metadata.Handle, offset, size uint64) ([]byte, error) {
	buffer, err := lookup[*VulkanBuffer](b.objects, handle)
	if err != nil {
		return nil, err
	}
	if buffer.Mapped == nil {
		return nil, fmt.Errorf("buffer `%s` is not host visible", buffer.Name)
	}
	if offset+size > buffer.Size {
		return nil, fmt.Errorf("buffer `%s`: range [%d, %d) exceeds size %d", buffer.Name, offset, offset+size, buffer.Size)
	}
	return unsafe.Slice((*byte)(unsafe.Add(buffer.Mapped, offset)), size), nil
}

func (b *Backend) WriteBuffer(buffer metadata.Handle, offset uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	dst, err := b.mappedRange(buffer, offset, uint64(len(data)))
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}

func (b *Backend) ReadBuffer(buffer metadata.Handle, offset, size uint64) ([]byte, error) {
	src, err := b.mappedRange(buffer, offset, size)
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)
	copy(out, src)
	return out, nil
}

func (b *Backend) CreateSampler(config metadata.SamplerConfig) (metadata.Handle, error) {
	addressMode := vulkanAddressMode(config.AddressMode)
	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vulkanFilter(config.MagFilter),
		MinFilter:               vulkanFilter(config.MinFilter),
		AddressModeU:            addressMode,
		AddressModeV:            addressMode,
		AddressModeW:            addressMode,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
		BorderColor:             vulkanBorderColor(config.BorderColor),
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		MipLodBias:              0,
		MinLod:                  0,
		MaxLod:                  config.MaxLod,
	}
	if b.context.Device.Features.SamplerAnisotropy == vk.True && config.MinFilter == metadata.FILTER_LINEAR {
		limits := b.context.Device.Properties.Limits
		limits.Deref()
		samplerInfo.AnisotropyEnable = vk.True
		samplerInfo.MaxAnisotropy = float32(math.Min(16, float64(limits.MaxSamplerAnisotropy)))
	}

	var sampler vk.Sampler
	if err := b.check("vkCreateSampler", vk.CreateSampler(b.device(), &samplerInfo, b.context.Allocator, &sampler)); err != nil {
		return metadata.NullHandle, err
	}
	return b.objects.insert(sampler), nil
}

func (b *Backend) DestroySampler(sampler metadata.Handle) {
	if s, ok := take[vk.Sampler](b.objects, sampler); ok {
		vk.DestroySampler(b.device(), s, b.context.Allocator)
	}
}

func (b *Backend) CreateShaderModule(name string, code []uint32) (metadata.Handle, error) {
	if len(code) == 0 {
		return metadata.NullHandle, fmt.Errorf("shader `%s`: %w", name, core.ErrInvalidSPIRV)
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code) * 4),
		PCode:    code,
	}
	var module vk.ShaderModule
	if err := b.check("vkCreateShaderModule", vk.CreateShaderModule(b.device(), &createInfo, b.context.Allocator, &module)); err != nil {
		return metadata.NullHandle, fmt.Errorf("shader `%s`: %w", name, err)
	}
	return b.objects.insert(module), nil
}

func (b *Backend) DestroyShaderModule(module metadata.Handle) {
	if m, ok := take[vk.ShaderModule](b.objects, module); ok {
		vk.DestroyShaderModule(b.device(), m, b.context.Allocator)
	}
}
