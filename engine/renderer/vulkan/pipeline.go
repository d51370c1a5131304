package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
)

func (b *Backend) shaderStage(stage vk.ShaderStageFlagBits, module metadata.Handle) (vk.PipelineShaderStageCreateInfo, error) {
	m, err := lookup[vk.ShaderModule](b.objects, module)
	if err != nil {
		return vk.PipelineShaderStageCreateInfo{}, err
	}
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stage,
		Module: m,
		PName:  VulkanSafeString("main"),
	}, nil
}

/**
 * @brief Creates a graphics pipeline with a static viewport covering
 * config.Extent. Pipelines are rebuilt together with their pass on resize.
 */
func (b *Backend) CreateGraphicsPipeline(config metadata.PipelineConfig) (metadata.Handle, error) {
	fail := func(err error) (metadata.Handle, error) {
		return metadata.NullHandle, fmt.Errorf("pipeline `%s`: %w", config.Name, err)
	}
	if config.Extent.IsZero() {
		return fail(fmt.Errorf("zero extent"))
	}
	renderPass, err := lookup[vk.RenderPass](b.objects, config.RenderPass)
	if err != nil {
		return fail(err)
	}
	layout, err := lookup[vk.PipelineLayout](b.objects, config.Layout)
	if err != nil {
		return fail(err)
	}
	vertexStage, err := b.shaderStage(vk.ShaderStageVertexBit, config.VertexShader)
	if err != nil {
		return fail(err)
	}
	fragmentStage, err := b.shaderStage(vk.ShaderStageFragmentBit, config.FragmentShader)
	if err != nil {
		return fail(err)
	}
	stages := []vk.PipelineShaderStageCreateInfo{vertexStage, fragmentStage}

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports: []vk.Viewport{{
			X:        0,
			Y:        0,
			Width:    float32(config.Extent.Width),
			Height:   float32(config.Extent.Height),
			MinDepth: 0,
			MaxDepth: 1,
		}},
		ScissorCount: 1,
		PScissors: []vk.Rect2D{{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: config.Extent.Width, Height: config.Extent.Height},
		}},
	}

	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                vulkanCullMode(config.CullMode),
		FrontFace:               vulkanFrontFace(config.FrontFace),
		DepthBiasEnable:         vk.False,
	}

	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  vk.SampleCount1Bit,
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       vk.False,
		DepthWriteEnable:      vk.False,
		DepthCompareOp:        vulkanCompareOp(config.DepthCompare),
		DepthBoundsTestEnable: vk.False,
		StencilTestEnable:     vk.False,
		MinDepthBounds:        0,
		MaxDepthBounds:        1,
	}
	if config.DepthTest {
		depthStencil.DepthTestEnable = vk.True
	}
	if config.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
	}

	// One opaque blend state per color attachment.
	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, config.ColorAttachmentCount)
	for i := range blendAttachments {
		blendAttachments[i] = vk.PipelineColorBlendAttachmentState{
			BlendEnable:         vk.False,
			SrcColorBlendFactor: vk.BlendFactorOne,
			DstColorBlendFactor: vk.BlendFactorZero,
			ColorBlendOp:        vk.BlendOpAdd,
			SrcAlphaBlendFactor: vk.BlendFactorOne,
			DstAlphaBlendFactor: vk.BlendFactorZero,
			AlphaBlendOp:        vk.BlendOpAdd,
			ColorWriteMask:      vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit),
		}
	}
	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}

	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	if !config.Vertex.IsEmpty() {
		attributes := make([]vk.VertexInputAttributeDescription, len(config.Vertex.Attributes))
		for i, a := range config.Vertex.Attributes {
			attributes[i] = vk.VertexInputAttributeDescription{
				Location: a.Location,
				Binding:  0,
				Format:   vulkanFormat(a.Format),
				Offset:   a.Offset,
			}
		}
		vertexInputInfo.VertexBindingDescriptionCount = 1
		vertexInputInfo.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    config.Vertex.Stride,
			InputRate: vk.VertexInputRateVertex,
		}}
		vertexInputInfo.VertexAttributeDescriptionCount = uint32(len(attributes))
		vertexInputInfo.PVertexAttributeDescriptions = attributes
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		Layout:              layout,
		RenderPass:          renderPass,
		Subpass:             config.Subpass,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	if err := b.context.lockPool.SafeCall(PipelineManagement, func() error {
		return b.check("vkCreateGraphicsPipelines", vk.CreateGraphicsPipelines(
			b.device(),
			vk.NullPipelineCache,
			1,
			[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo},
			b.context.Allocator,
			pipelines))
	}); err != nil {
		return fail(err)
	}

	core.LogDebug("Graphics pipeline `%s` created.", config.Name)
	return b.objects.insert(pipelines[0]), nil
}

func (b *Backend) DestroyPipeline(pipeline metadata.Handle) {
	if p, ok := take[vk.Pipeline](b.objects, pipeline); ok {
		_ = b.context.lockPool.SafeCall(PipelineManagement, func() error {
			vk.DestroyPipeline(b.device(), p, b.context.Allocator)
			return nil
		})
	}
}
