package metadata

type Format uint32

const (
	FORMAT_UNDEFINED Format = iota
	FORMAT_R8_UNORM
	FORMAT_R8G8B8A8_UNORM
	FORMAT_B8G8R8A8_UNORM
	FORMAT_B8G8R8A8_SRGB
	FORMAT_R32G32_SFLOAT
	FORMAT_R32G32B32_SFLOAT
	FORMAT_R32G32B32A32_SFLOAT
	FORMAT_D32_SFLOAT
	FORMAT_D32_SFLOAT_S8_UINT
	FORMAT_D24_UNORM_S8_UINT
)

func (f Format) IsDepth() bool {
	return f == FORMAT_D32_SFLOAT || f == FORMAT_D32_SFLOAT_S8_UINT || f == FORMAT_D24_UNORM_S8_UINT
}

func (f Format) HasStencil() bool {
	return f == FORMAT_D32_SFLOAT_S8_UINT || f == FORMAT_D24_UNORM_S8_UINT
}

// Size is the number of bytes of one texel.
func (f Format) Size() uint32 {
	switch f {
	case FORMAT_R8_UNORM:
		return 1
	case FORMAT_R8G8B8A8_UNORM, FORMAT_B8G8R8A8_UNORM, FORMAT_B8G8R8A8_SRGB, FORMAT_D32_SFLOAT, FORMAT_D24_UNORM_S8_UINT:
		return 4
	case FORMAT_D32_SFLOAT_S8_UINT, FORMAT_R32G32_SFLOAT:
		return 8
	case FORMAT_R32G32B32_SFLOAT:
		return 12
	case FORMAT_R32G32B32A32_SFLOAT:
		return 16
	}
	return 0
}

type ImageUsage uint32

const (
	IMAGE_USAGE_TRANSFER_SRC             ImageUsage = 0x01
	IMAGE_USAGE_TRANSFER_DST             ImageUsage = 0x02
	IMAGE_USAGE_SAMPLED                  ImageUsage = 0x04
	IMAGE_USAGE_STORAGE                  ImageUsage = 0x08
	IMAGE_USAGE_COLOR_ATTACHMENT         ImageUsage = 0x10
	IMAGE_USAGE_DEPTH_STENCIL_ATTACHMENT ImageUsage = 0x20
	IMAGE_USAGE_INPUT_ATTACHMENT         ImageUsage = 0x80
)

type ImageAspect uint32

const (
	IMAGE_ASPECT_COLOR   ImageAspect = 0x1
	IMAGE_ASPECT_DEPTH   ImageAspect = 0x2
	IMAGE_ASPECT_STENCIL ImageAspect = 0x4
)

type ImageLayout uint32

const (
	IMAGE_LAYOUT_UNDEFINED ImageLayout = iota
	IMAGE_LAYOUT_GENERAL
	IMAGE_LAYOUT_COLOR_ATTACHMENT_OPTIMAL
	IMAGE_LAYOUT_DEPTH_STENCIL_ATTACHMENT_OPTIMAL
	IMAGE_LAYOUT_DEPTH_STENCIL_READ_ONLY_OPTIMAL
	IMAGE_LAYOUT_SHADER_READ_ONLY_OPTIMAL
	IMAGE_LAYOUT_TRANSFER_SRC_OPTIMAL
	IMAGE_LAYOUT_TRANSFER_DST_OPTIMAL
	IMAGE_LAYOUT_PRESENT_SRC
)

/** @brief Describes an image, its view and its backing memory. */
type ImageConfig struct {
	/** @brief Debug name attached to the GPU objects. */
	Name   string
	Width  uint32
	Height uint32
	Format Format
	Usage  ImageUsage
	Aspect ImageAspect
	Memory MemoryProperty
}

type Filter uint32

const (
	FILTER_NEAREST Filter = iota
	FILTER_LINEAR
)

type AddressMode uint32

const (
	ADDRESS_MODE_REPEAT AddressMode = iota
	ADDRESS_MODE_MIRRORED_REPEAT
	ADDRESS_MODE_CLAMP_TO_EDGE
	ADDRESS_MODE_CLAMP_TO_BORDER
)

type BorderColor uint32

const (
	BORDER_COLOR_FLOAT_TRANSPARENT_BLACK BorderColor = iota
	BORDER_COLOR_FLOAT_OPAQUE_BLACK
	BORDER_COLOR_FLOAT_OPAQUE_WHITE
)

type SamplerConfig struct {
	Name        string
	MagFilter   Filter
	MinFilter   Filter
	AddressMode AddressMode
	BorderColor BorderColor
	MaxLod      float32
}

/** @brief Tightly packed RGBA8 pixels as decoded from, or encoded to, an image file. */
type ImageResourceData struct {
	Width  uint32
	Height uint32
	Pixels []uint8
}
