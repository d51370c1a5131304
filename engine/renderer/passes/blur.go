package passes

import (
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
	"github.com/spaghettifunk/deferred/engine/scene"
)

// BlurPass box-filters the occlusion term into the ssao_blur attachment.
type BlurPass struct {
	base

	renderPass     metadata.Handle
	framebuffer    metadata.Handle
	pipelineLayout metadata.Handle
	pipeline       metadata.Handle
	sampler        metadata.Handle

	perFrameSets []metadata.Handle
	inputSet     metadata.Handle
}

func NewBlurPass(res renderer.Resources) *BlurPass {
	return &BlurPass{base: newBase("blur", res)}
}

func (p *BlurPass) AddEntityToDraw(*scene.Entity) {}

// Output is the blurred occlusion read by the composition pass.
func (p *BlurPass) Output() *renderer.ImageBlock {
	if att := p.res.Attachments(); att != nil {
		return att.SSAOBlur
	}
	return nil
}

func (p *BlurPass) Initialize() error {
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

func (p *BlurPass) initialize() error {
	att := p.res.Attachments()
	if att == nil {
		return p.fail("attachments", core.ErrPassNotInitialized)
	}

	sampler, err := p.backend.CreateSampler(metadata.SamplerConfig{
		Name:        "blur_linear",
		MagFilter:   metadata.FILTER_LINEAR,
		MinFilter:   metadata.FILTER_LINEAR,
		AddressMode: metadata.ADDRESS_MODE_CLAMP_TO_EDGE,
		BorderColor: metadata.BORDER_COLOR_FLOAT_OPAQUE_WHITE,
		MaxLod:      1,
	})
	if err != nil {
		return p.fail("sampler blur_linear", err)
	}
	p.sampler = sampler
	p.onRelease(func() { p.backend.DestroySampler(sampler) })

	p.renderPass, err = p.createRenderPass(metadata.RenderPassConfig{
		Name: "blur",
		Attachments: []metadata.AttachmentDescription{{
			Format:        att.SSAOBlur.Format,
			LoadOp:        metadata.LOAD_OP_CLEAR,
			StoreOp:       metadata.STORE_OP_STORE,
			InitialLayout: metadata.IMAGE_LAYOUT_UNDEFINED,
			FinalLayout:   metadata.IMAGE_LAYOUT_SHADER_READ_ONLY_OPTIMAL,
		}},
		Subpasses: []metadata.SubpassDescription{{
			Color: []metadata.AttachmentReference{{Attachment: 0, Layout: metadata.IMAGE_LAYOUT_COLOR_ATTACHMENT_OPTIMAL}},
		}},
		Dependencies: readAfterWrite(metadata.ACCESS_SHADER_READ, metadata.ACCESS_SHADER_READ),
	})
	if err != nil {
		return err
	}
	p.framebuffer, err = p.createFramebuffer(metadata.FramebufferConfig{
		Name:        "blur",
		RenderPass:  p.renderPass,
		Attachments: []metadata.Handle{att.SSAOBlur.Image},
		Width:       att.Extent().Width,
		Height:      att.Extent().Height,
	})
	if err != nil {
		return err
	}

	perFrameLayout, err := p.createSetLayout("blur_per_frame", perFrameBinding())
	if err != nil {
		return err
	}
	inputLayout, err := p.createSetLayout("blur_inputs", fragmentBinding(0, metadata.DESCRIPTOR_TYPE_COMBINED_IMAGE_SAMPLER))
	if err != nil {
		return err
	}
	p.pipelineLayout, err = p.createPipelineLayout("blur", perFrameLayout, inputLayout)
	if err != nil {
		return err
	}

	frames := p.res.FramesInFlight()
	layouts := make([]metadata.Handle, 0, frames+1)
	for i := uint32(0); i < frames; i++ {
		layouts = append(layouts, perFrameLayout)
	}
	layouts = append(layouts, inputLayout)
	sets, err := p.createDescriptorSets("blur", []metadata.DescriptorPoolSize{
		{Type: metadata.DESCRIPTOR_TYPE_UNIFORM_BUFFER, Count: frames},
		{Type: metadata.DESCRIPTOR_TYPE_COMBINED_IMAGE_SAMPLER, Count: 1},
	}, layouts)
	if err != nil {
		return err
	}
	p.perFrameSets = sets[:frames]
	p.inputSet = sets[frames]

	writes := make([]metadata.DescriptorWrite, 0, frames+1)
	for i := uint32(0); i < frames; i++ {
		writes = append(writes, perFrameWrite(p.perFrameSets[i], p.res.PerFrameBuffer(i)))
	}
	writes = append(writes, imageWrite(p.inputSet, 0, metadata.DESCRIPTOR_TYPE_COMBINED_IMAGE_SAMPLER, att.SSAO, p.sampler, metadata.IMAGE_LAYOUT_SHADER_READ_ONLY_OPTIMAL))
	if err := p.updateDescriptorSets(writes); err != nil {
		return err
	}

	vert, err := p.loadShader(ShaderFullscreenVert, metadata.SHADER_STAGE_VERTEX)
	if err != nil {
		return err
	}
	frag, err := p.loadShader(ShaderBlurFrag, metadata.SHADER_STAGE_FRAGMENT)
	if err != nil {
		return err
	}
	p.pipeline, err = p.createPipeline(fullscreenPipeline("blur", p.renderPass, p.pipelineLayout, vert, frag, att.Extent()))
	if err != nil {
		return err
	}
	return p.allocateCommandBuffers()
}

func (p *BlurPass) Draw(ctx renderer.FrameContext) (metadata.Handle, error) {
	cmd, err := p.begin(ctx)
	if err != nil {
		return metadata.NullHandle, err
	}
	p.backend.CmdBeginRenderPass(cmd, metadata.RenderPassBeginInfo{
		RenderPass:  p.renderPass,
		Framebuffer: p.framebuffer,
		Extent:      p.res.Attachments().Extent(),
		ClearValues: []metadata.ClearValue{metadata.ClearColor(1, 1, 1, 1)},
	})
	p.backend.CmdBindPipeline(cmd, p.pipeline)
	p.backend.CmdBindDescriptorSets(cmd, p.pipelineLayout, 0, []metadata.Handle{p.perFrameSets[ctx.Slot], p.inputSet})
	p.backend.CmdDraw(cmd, 3, 0)
	p.backend.CmdEndRenderPass(cmd)
	return p.end(cmd)
}

func (p *BlurPass) Shutdown() {
	p.releaseAll()
}
