package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
)

func vulkanFormat(format metadata.Format) vk.Format {
	switch format {
	case metadata.FORMAT_R8_UNORM:
		return vk.FormatR8Unorm
	case metadata.FORMAT_R8G8B8A8_UNORM:
		return vk.FormatR8g8b8a8Unorm
	case metadata.FORMAT_B8G8R8A8_UNORM:
		return vk.FormatB8g8r8a8Unorm
	case metadata.FORMAT_B8G8R8A8_SRGB:
		return vk.FormatB8g8r8a8Srgb
	case metadata.FORMAT_R32G32_SFLOAT:
		return vk.FormatR32g32Sfloat
	case metadata.FORMAT_R32G32B32_SFLOAT:
		return vk.FormatR32g32b32Sfloat
	case metadata.FORMAT_R32G32B32A32_SFLOAT:
		return vk.FormatR32g32b32a32Sfloat
	case metadata.FORMAT_D32_SFLOAT:
		return vk.FormatD32Sfloat
	case metadata.FORMAT_D32_SFLOAT_S8_UINT:
		return vk.FormatD32SfloatS8Uint
	case metadata.FORMAT_D24_UNORM_S8_UINT:
		return vk.FormatD24UnormS8Uint
	}
	return vk.FormatUndefined
}

func metadataFormat(format vk.Format) metadata.Format {
	switch format {
	case vk.FormatR8Unorm:
		return metadata.FORMAT_R8_UNORM
	case vk.FormatR8g8b8a8Unorm:
		return metadata.FORMAT_R8G8B8A8_UNORM
	case vk.FormatB8g8r8a8Unorm:
		return metadata.FORMAT_B8G8R8A8_UNORM
	case vk.FormatB8g8r8a8Srgb:
		return metadata.FORMAT_B8G8R8A8_SRGB
	case vk.FormatR32g32Sfloat:
		return metadata.FORMAT_R32G32_SFLOAT
	case vk.FormatR32g32b32Sfloat:
		return metadata.FORMAT_R32G32B32_SFLOAT
	case vk.FormatR32g32b32a32Sfloat:
		return metadata.FORMAT_R32G32B32A32_SFLOAT
	case vk.FormatD32Sfloat:
		return metadata.FORMAT_D32_SFLOAT
	case vk.FormatD32SfloatS8Uint:
		return metadata.FORMAT_D32_SFLOAT_S8_UINT
	case vk.FormatD24UnormS8Uint:
		return metadata.FORMAT_D24_UNORM_S8_UINT
	}
	return metadata.FORMAT_UNDEFINED
}

// The usage, aspect, stage and access bits share their values with Vulkan.
func vulkanImageUsage(usage metadata.ImageUsage) vk.ImageUsageFlags {
	return vk.ImageUsageFlags(usage)
}

func vulkanAspect(aspect metadata.ImageAspect) vk.ImageAspectFlags {
	return vk.ImageAspectFlags(aspect)
}

// viewAspectFor narrows depth stencil images read from a shader to their
// depth aspect, since descriptors accept a single aspect.
func viewAspectFor(aspect metadata.ImageAspect, usage metadata.ImageUsage) vk.ImageAspectFlags {
	read := metadata.IMAGE_USAGE_SAMPLED | metadata.IMAGE_USAGE_INPUT_ATTACHMENT
	if aspect&metadata.IMAGE_ASPECT_DEPTH != 0 && usage&read != 0 {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vulkanAspect(aspect)
}

func vulkanBufferUsage(usage metadata.BufferUsage) vk.BufferUsageFlags {
	return vk.BufferUsageFlags(usage)
}

func vulkanMemoryProperty(memory metadata.MemoryProperty) vk.MemoryPropertyFlags {
	var flags vk.MemoryPropertyFlagBits
	if memory&metadata.MEMORY_PROPERTY_DEVICE_LOCAL != 0 {
		flags |= vk.MemoryPropertyDeviceLocalBit
	}
	if memory&metadata.MEMORY_PROPERTY_HOST_VISIBLE != 0 {
		flags |= vk.MemoryPropertyHostVisibleBit
	}
	if memory&metadata.MEMORY_PROPERTY_HOST_COHERENT != 0 {
		flags |= vk.MemoryPropertyHostCoherentBit
	}
	return vk.MemoryPropertyFlags(flags)
}

func vulkanStages(stages metadata.PipelineStage) vk.PipelineStageFlags {
	return vk.PipelineStageFlags(stages)
}

func vulkanAccess(access metadata.Access) vk.AccessFlags {
	return vk.AccessFlags(access)
}

func vulkanShaderStages(stages metadata.ShaderStage) vk.ShaderStageFlags {
	var flags vk.ShaderStageFlagBits
	if stages&metadata.SHADER_STAGE_VERTEX != 0 {
		flags |= vk.ShaderStageVertexBit
	}
	if stages&metadata.SHADER_STAGE_FRAGMENT != 0 {
		flags |= vk.ShaderStageFragmentBit
	}
	return vk.ShaderStageFlags(flags)
}

func vulkanImageLayout(layout metadata.ImageLayout) vk.ImageLayout {
	switch layout {
	case metadata.IMAGE_LAYOUT_GENERAL:
		return vk.ImageLayoutGeneral
	case metadata.IMAGE_LAYOUT_COLOR_ATTACHMENT_OPTIMAL:
		return vk.ImageLayoutColorAttachmentOptimal
	case metadata.IMAGE_LAYOUT_DEPTH_STENCIL_ATTACHMENT_OPTIMAL:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case metadata.IMAGE_LAYOUT_DEPTH_STENCIL_READ_ONLY_OPTIMAL:
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	case metadata.IMAGE_LAYOUT_SHADER_READ_ONLY_OPTIMAL:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case metadata.IMAGE_LAYOUT_TRANSFER_SRC_OPTIMAL:
		return vk.ImageLayoutTransferSrcOptimal
	case metadata.IMAGE_LAYOUT_TRANSFER_DST_OPTIMAL:
		return vk.ImageLayoutTransferDstOptimal
	case metadata.IMAGE_LAYOUT_PRESENT_SRC:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutUndefined
}

func vulkanLoadOp(op metadata.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case metadata.LOAD_OP_LOAD:
		return vk.AttachmentLoadOpLoad
	case metadata.LOAD_OP_CLEAR:
		return vk.AttachmentLoadOpClear
	}
	return vk.AttachmentLoadOpDontCare
}

func vulkanStoreOp(op metadata.StoreOp) vk.AttachmentStoreOp {
	if op == metadata.STORE_OP_STORE {
		return vk.AttachmentStoreOpStore
	}
	return vk.AttachmentStoreOpDontCare
}

func vulkanFilter(filter metadata.Filter) vk.Filter {
	if filter == metadata.FILTER_LINEAR {
		return vk.FilterLinear
	}
	return vk.FilterNearest
}

func vulkanAddressMode(mode metadata.AddressMode) vk.SamplerAddressMode {
	switch mode {
	case metadata.ADDRESS_MODE_MIRRORED_REPEAT:
		return vk.SamplerAddressModeMirroredRepeat
	case metadata.ADDRESS_MODE_CLAMP_TO_EDGE:
		return vk.SamplerAddressModeClampToEdge
	case metadata.ADDRESS_MODE_CLAMP_TO_BORDER:
		return vk.SamplerAddressModeClampToBorder
	}
	return vk.SamplerAddressModeRepeat
}

func vulkanBorderColor(color metadata.BorderColor) vk.BorderColor {
	switch color {
	case metadata.BORDER_COLOR_FLOAT_OPAQUE_BLACK:
		return vk.BorderColorFloatOpaqueBlack
	case metadata.BORDER_COLOR_FLOAT_OPAQUE_WHITE:
		return vk.BorderColorFloatOpaqueWhite
	}
	return vk.BorderColorFloatTransparentBlack
}

func vulkanDescriptorType(t metadata.DescriptorType) vk.DescriptorType {
	switch t {
	case metadata.DESCRIPTOR_TYPE_SAMPLER:
		return vk.DescriptorTypeSampler
	case metadata.DESCRIPTOR_TYPE_COMBINED_IMAGE_SAMPLER:
		return vk.DescriptorTypeCombinedImageSampler
	case metadata.DESCRIPTOR_TYPE_SAMPLED_IMAGE:
		return vk.DescriptorTypeSampledImage
	case metadata.DESCRIPTOR_TYPE_STORAGE_IMAGE:
		return vk.DescriptorTypeStorageImage
	case metadata.DESCRIPTOR_TYPE_UNIFORM_BUFFER:
		return vk.DescriptorTypeUniformBuffer
	case metadata.DESCRIPTOR_TYPE_STORAGE_BUFFER:
		return vk.DescriptorTypeStorageBuffer
	}
	return vk.DescriptorTypeInputAttachment
}

func vulkanCullMode(mode metadata.CullMode) vk.CullModeFlags {
	switch mode {
	case metadata.CULL_MODE_FRONT:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case metadata.CULL_MODE_BACK:
		return vk.CullModeFlags(vk.CullModeBackBit)
	}
	return vk.CullModeFlags(vk.CullModeNone)
}

func vulkanFrontFace(face metadata.FrontFace) vk.FrontFace {
	if face == metadata.FRONT_FACE_CLOCKWISE {
		return vk.FrontFaceClockwise
	}
	return vk.FrontFaceCounterClockwise
}

func vulkanCompareOp(op metadata.CompareOp) vk.CompareOp {
	switch op {
	case metadata.COMPARE_OP_NEVER:
		return vk.CompareOpNever
	case metadata.COMPARE_OP_LESS:
		return vk.CompareOpLess
	case metadata.COMPARE_OP_EQUAL:
		return vk.CompareOpEqual
	case metadata.COMPARE_OP_LESS_OR_EQUAL:
		return vk.CompareOpLessOrEqual
	case metadata.COMPARE_OP_GREATER:
		return vk.CompareOpGreater
	}
	return vk.CompareOpAlways
}

func vulkanIndexType(t metadata.IndexType) vk.IndexType {
	if t == metadata.INDEX_TYPE_UINT16 {
		return vk.IndexTypeUint16
	}
	return vk.IndexTypeUint32
}
