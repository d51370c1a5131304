package metadata

type LoadOp uint32

const (
	LOAD_OP_LOAD LoadOp = iota
	LOAD_OP_CLEAR
	LOAD_OP_DONT_CARE
)

type StoreOp uint32

const (
	STORE_OP_STORE StoreOp = iota
	STORE_OP_DONT_CARE
)

type PipelineStage uint32

const (
	PIPELINE_STAGE_TOP_OF_PIPE             PipelineStage = 0x00000001
	PIPELINE_STAGE_VERTEX_SHADER           PipelineStage = 0x00000008
	PIPELINE_STAGE_FRAGMENT_SHADER         PipelineStage = 0x00000080
	PIPELINE_STAGE_EARLY_FRAGMENT_TESTS    PipelineStage = 0x00000100
	PIPELINE_STAGE_LATE_FRAGMENT_TESTS     PipelineStage = 0x00000200
	PIPELINE_STAGE_COLOR_ATTACHMENT_OUTPUT PipelineStage = 0x00000400
	PIPELINE_STAGE_TRANSFER                PipelineStage = 0x00001000
	PIPELINE_STAGE_BOTTOM_OF_PIPE          PipelineStage = 0x00002000
)

type Access uint32

const (
	ACCESS_NONE                           Access = 0
	ACCESS_INPUT_ATTACHMENT_READ          Access = 0x00000010
	ACCESS_SHADER_READ                    Access = 0x00000020
	ACCESS_COLOR_ATTACHMENT_READ          Access = 0x00000080
	ACCESS_COLOR_ATTACHMENT_WRITE         Access = 0x00000100
	ACCESS_DEPTH_STENCIL_ATTACHMENT_READ  Access = 0x00000200
	ACCESS_DEPTH_STENCIL_ATTACHMENT_WRITE Access = 0x00000400
	ACCESS_TRANSFER_READ                  Access = 0x00000800
	ACCESS_TRANSFER_WRITE                 Access = 0x00001000
	ACCESS_MEMORY_READ                    Access = 0x00008000
)

type AttachmentDescription struct {
	Format        Format
	LoadOp        LoadOp
	StoreOp       StoreOp
	InitialLayout ImageLayout
	FinalLayout   ImageLayout
}

type AttachmentReference struct {
	Attachment uint32
	Layout     ImageLayout
}

type SubpassDescription struct {
	Color        []AttachmentReference
	Input        []AttachmentReference
	DepthStencil *AttachmentReference
}

// SUBPASS_EXTERNAL refers to work outside of the render pass in a dependency.
const SUBPASS_EXTERNAL uint32 = ^uint32(0)

type SubpassDependency struct {
	SrcSubpass    uint32
	DstSubpass    uint32
	SrcStageMask  PipelineStage
	DstStageMask  PipelineStage
	SrcAccessMask Access
	DstAccessMask Access
	ByRegion      bool
}

type RenderPassConfig struct {
	Name         string
	Attachments  []AttachmentDescription
	Subpasses    []SubpassDescription
	Dependencies []SubpassDependency
}

/** @brief A framebuffer binds images (through their views) to a render pass. */
type FramebufferConfig struct {
	Name        string
	RenderPass  Handle
	Attachments []Handle
	Width       uint32
	Height      uint32
}

/**
 * @brief A clear value for one attachment. Depth attachments read Depth
 * and Stencil, color attachments read Color.
 */
type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
	IsDepth bool
}

func ClearColor(r, g, b, a float32) ClearValue {
	return ClearValue{Color: [4]float32{r, g, b, a}}
}

func ClearDepthStencil(depth float32, stencil uint32) ClearValue {
	return ClearValue{Depth: depth, Stencil: stencil, IsDepth: true}
}

type RenderPassBeginInfo struct {
	RenderPass  Handle
	Framebuffer Handle
	Extent      Extent2D
	ClearValues []ClearValue
}

type ImageBarrier struct {
	Image     Handle
	Aspect    ImageAspect
	OldLayout ImageLayout
	NewLayout ImageLayout
	SrcAccess Access
	DstAccess Access
	SrcStage  PipelineStage
	DstStage  PipelineStage
}
