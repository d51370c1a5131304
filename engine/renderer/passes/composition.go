package passes

import (
	"fmt"

	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
	"github.com/spaghettifunk/deferred/engine/scene"
)

// Composition input bindings, all combined image samplers.
const (
	compositionBindingColor = iota
	compositionBindingPosition
	compositionBindingNormal
	compositionBindingMaterial
	compositionBindingOcclusion
	compositionBindingCount
)

// CompositionPass shades the GBuffer into the swapchain image. It is always
// last and leaves the image ready to present.
type CompositionPass struct {
	base

	renderPass     metadata.Handle
	framebuffers   []metadata.Handle
	pipelineLayout metadata.Handle
	pipeline       metadata.Handle

	perFrameSets []metadata.Handle
	inputSet     metadata.Handle
}

func NewCompositionPass(res renderer.Resources) *CompositionPass {
	return &CompositionPass{base: newBase("composition", res)}
}

func (p *CompositionPass) AddEntityToDraw(*scene.Entity) {}

func (p *CompositionPass) Initialize() error {
	if p.initialized {
		return nil
	}
	if err := p.initialize(); err != nil {
		p.releaseAll()
		return err
	}
	p.initialized = true
	return nil
}

func (p *CompositionPass) initialize() error {
	att := p.res.Attachments()
	if att == nil {
		return p.fail("attachments", core.ErrPassNotInitialized)
	}
	extent := p.res.Extent()

	var err error
	p.renderPass, err = p.createRenderPass(metadata.RenderPassConfig{
		Name: "composition",
		Attachments: []metadata.AttachmentDescription{{
			Format:        p.res.SwapchainFormat(),
			LoadOp:        metadata.LOAD_OP_CLEAR,
			StoreOp:       metadata.STORE_OP_STORE,
			InitialLayout: metadata.IMAGE_LAYOUT_UNDEFINED,
			FinalLayout:   metadata.IMAGE_LAYOUT_PRESENT_SRC,
		}},
		Subpasses: []metadata.SubpassDescription{{
			Color: []metadata.AttachmentReference{{Attachment: 0, Layout: metadata.IMAGE_LAYOUT_COLOR_ATTACHMENT_OPTIMAL}},
		}},
		Dependencies: []metadata.SubpassDependency{{
			SrcSubpass:    metadata.SUBPASS_EXTERNAL,
			DstSubpass:    0,
			SrcStageMask:  metadata.PIPELINE_STAGE_COLOR_ATTACHMENT_OUTPUT,
			DstStageMask:  metadata.PIPELINE_STAGE_COLOR_ATTACHMENT_OUTPUT,
			SrcAccessMask: metadata.ACCESS_NONE,
			DstAccessMask: metadata.ACCESS_COLOR_ATTACHMENT_WRITE,
		}},
	})
	if err != nil {
		return err
	}

	images := p.res.SwapchainImages()
	p.framebuffers = make([]metadata.Handle, len(images))
	for i, img := range images {
		p.framebuffers[i], err = p.createFramebuffer(metadata.FramebufferConfig{
			Name:        fmt.Sprintf("composition_%d", i),
			RenderPass:  p.renderPass,
			Attachments: []metadata.Handle{img.Image},
			Width:       extent.Width,
			Height:      extent.Height,
		})
		if err != nil {
			return err
		}
	}

	if err := p.createDescriptors(att); err != nil {
		return err
	}

	vert, err := p.loadShader(ShaderFullscreenVert, metadata.SHADER_STAGE_VERTEX)
	if err != nil {
		return err
	}
	frag, err := p.loadShader(ShaderCompositionFrag, metadata.SHADER_STAGE_FRAGMENT)
	if err != nil {
		return err
	}
	p.pipeline, err = p.createPipeline(fullscreenPipeline("composition", p.renderPass, p.pipelineLayout, vert, frag, extent))
	if err != nil {
		return err
	}
	return p.allocateCommandBuffers()
}

func (p *CompositionPass) createDescriptors(att *renderer.Attachments) error {
	perFrameLayout, err := p.createSetLayout("composition_per_frame", perFrameBinding())
	if err != nil {
		return err
	}
	bindings := make([]metadata.DescriptorBinding, compositionBindingCount)
	for i := range bindings {
		bindings[i] = fragmentBinding(uint32(i), metadata.DESCRIPTOR_TYPE_COMBINED_IMAGE_SAMPLER)
	}
	inputLayout, err := p.createSetLayout("composition_inputs", bindings...)
	if err != nil {
		return err
	}
	p.pipelineLayout, err = p.createPipelineLayout("composition", perFrameLayout, inputLayout)
	if err != nil {
		return err
	}

	frames := p.res.FramesInFlight()
	layouts := make([]metadata.Handle, 0, frames+1)
	for i := uint32(0); i < frames; i++ {
		layouts = append(layouts, perFrameLayout)
	}
	layouts = append(layouts, inputLayout)
	sets, err := p.createDescriptorSets("composition", []metadata.DescriptorPoolSize{
		{Type: metadata.DESCRIPTOR_TYPE_UNIFORM_BUFFER, Count: frames},
		{Type: metadata.DESCRIPTOR_TYPE_COMBINED_IMAGE_SAMPLER, Count: compositionBindingCount},
	}, layouts)
	if err != nil {
		return err
	}
	p.perFrameSets = sets[:frames]
	p.inputSet = sets[frames]

	writes := make([]metadata.DescriptorWrite, 0, frames+compositionBindingCount)
	for i := uint32(0); i < frames; i++ {
		writes = append(writes, perFrameWrite(p.perFrameSets[i], p.res.PerFrameBuffer(i)))
	}
	inputs := [compositionBindingCount]*renderer.ImageBlock{
		compositionBindingColor:     att.Color,
		compositionBindingPosition:  att.Position,
		compositionBindingNormal:    att.Normal,
		compositionBindingMaterial:  att.Material,
		compositionBindingOcclusion: att.SSAOBlur,
	}
	for binding, img := range inputs {
		writes = append(writes, imageWrite(p.inputSet, uint32(binding), metadata.DESCRIPTOR_TYPE_COMBINED_IMAGE_SAMPLER, img, p.res.Sampler(), metadata.IMAGE_LAYOUT_SHADER_READ_ONLY_OPTIMAL))
	}
	return p.updateDescriptorSets(writes)
}

func (p *CompositionPass) Draw(ctx renderer.FrameContext) (metadata.Handle, error) {
	cmd, err := p.begin(ctx)
	if err != nil {
		return metadata.NullHandle, err
	}
	p.backend.CmdBeginRenderPass(cmd, metadata.RenderPassBeginInfo{
		RenderPass:  p.renderPass,
		Framebuffer: p.framebuffers[ctx.ImageIndex],
		Extent:      p.res.Extent(),
		ClearValues: []metadata.ClearValue{metadata.ClearColor(0, 0, 0.2, 1)},
	})
	p.backend.CmdBindPipeline(cmd, p.pipeline)
	p.backend.CmdBindDescriptorSets(cmd, p.pipelineLayout, 0, []metadata.Handle{p.perFrameSets[ctx.Slot], p.inputSet})
	p.backend.CmdDraw(cmd, 3, 0)
	p.backend.CmdEndRenderPass(cmd)
	return p.end(cmd)
}

func (p *CompositionPass) Shutdown() {
	p.releaseAll()
	p.framebuffers = nil
}
