package metadata

type ShaderStage uint32

const (
	SHADER_STAGE_VERTEX   ShaderStage = 0x01
	SHADER_STAGE_FRAGMENT ShaderStage = 0x10
	SHADER_STAGE_ALL      ShaderStage = SHADER_STAGE_VERTEX | SHADER_STAGE_FRAGMENT
)

func (s ShaderStage) String() string {
	switch s {
	case SHADER_STAGE_VERTEX:
		return "vertex"
	case SHADER_STAGE_FRAGMENT:
		return "fragment"
	case SHADER_STAGE_ALL:
		return "all"
	}
	return "unknown"
}

type DescriptorType uint32

const (
	DESCRIPTOR_TYPE_SAMPLER DescriptorType = iota
	DESCRIPTOR_TYPE_COMBINED_IMAGE_SAMPLER
	DESCRIPTOR_TYPE_SAMPLED_IMAGE
	DESCRIPTOR_TYPE_STORAGE_IMAGE
	DESCRIPTOR_TYPE_UNIFORM_BUFFER
	DESCRIPTOR_TYPE_STORAGE_BUFFER
	DESCRIPTOR_TYPE_INPUT_ATTACHMENT
)

func (d DescriptorType) IsBuffer() bool {
	return d == DESCRIPTOR_TYPE_UNIFORM_BUFFER || d == DESCRIPTOR_TYPE_STORAGE_BUFFER
}

type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}

type DescriptorSetLayoutConfig struct {
	Name     string
	Bindings []DescriptorBinding
}

type DescriptorPoolSize struct {
	Type  DescriptorType
	Count uint32
}

type DescriptorPoolConfig struct {
	Name    string
	MaxSets uint32
	Sizes   []DescriptorPoolSize
}

/**
 * @brief One descriptor update. Buffer descriptors read Buffer, Offset and
 * Range; image descriptors read Image, Sampler and Layout.
 */
type DescriptorWrite struct {
	Set     Handle
	Binding uint32
	Type    DescriptorType
	Buffer  Handle
	Offset  uint64
	Range   uint64
	Image   Handle
	Sampler Handle
	Layout  ImageLayout
}

type PipelineLayoutConfig struct {
	Name       string
	SetLayouts []Handle
}

type CullMode uint32

const (
	CULL_MODE_NONE CullMode = iota
	CULL_MODE_FRONT
	CULL_MODE_BACK
)

type FrontFace uint32

const (
	FRONT_FACE_COUNTER_CLOCKWISE FrontFace = iota
	FRONT_FACE_CLOCKWISE
)

type CompareOp uint32

const (
	COMPARE_OP_NEVER CompareOp = iota
	COMPARE_OP_LESS
	COMPARE_OP_EQUAL
	COMPARE_OP_LESS_OR_EQUAL
	COMPARE_OP_GREATER
	COMPARE_OP_ALWAYS
)

type PipelineConfig struct {
	Name           string
	RenderPass     Handle
	Subpass        uint32
	Layout         Handle
	VertexShader   Handle
	FragmentShader Handle
	/** @brief An empty layout means vertices are generated in the shader. */
	Vertex               VertexLayout
	Extent               Extent2D
	CullMode             CullMode
	FrontFace            FrontFace
	DepthTest            bool
	DepthWrite           bool
	DepthCompare         CompareOp
	ColorAttachmentCount uint32
}
