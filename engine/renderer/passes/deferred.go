package passes

import (
	"fmt"

	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
	"github.com/spaghettifunk/deferred/engine/scene"
)

// GBuffer attachment indices inside the deferred render pass.
const (
	gbufferColor = iota
	gbufferPosition
	gbufferNormal
	gbufferMaterial
	gbufferDepth
	gbufferAttachmentCount
)

var gbufferFragmentShaders = [scene.MATERIAL_TYPE_COUNT]string{
	scene.MATERIAL_TYPE_DIFFUSE:     ShaderGBufferDiffuseFrag,
	scene.MATERIAL_TYPE_MICROFACETS: ShaderGBufferMicrofacetFrag,
}

// DeferredPass rasterizes the scene into the GBuffer, one pipeline per
// material type.
type DeferredPass struct {
	base
	drawRegistry

	renderPass     metadata.Handle
	framebuffer    metadata.Handle
	pipelineLayout metadata.Handle
	pipelines      [scene.MATERIAL_TYPE_COUNT]metadata.Handle

	// per frame slot: set 0 per-frame uniforms, set 1 per-object storage
	perFrameSets  []metadata.Handle
	perObjectSets []metadata.Handle
}

func NewDeferredPass(res renderer.Resources) *DeferredPass {
	return &DeferredPass{base: newBase("deferred", res)}
}

func (p *DeferredPass) AddEntityToDraw(e *scene.Entity) { p.add(e) }

func (p *DeferredPass) Initialize() error {
	if p.initialized {
		return nil
	}
	if err := p.initialize(); err != nil {
		p.releaseAll()
		return err
	}
	p.initialized = true
	core.LogDebug("deferred pass initialized (%d entities)", p.count())
	return nil
}

func (p *DeferredPass) initialize() error {
	att := p.res.Attachments()
	if att == nil {
		return p.fail("attachments", core.ErrPassNotInitialized)
	}
	if err := p.buildRenderPass(att); err != nil {
		return err
	}

	var err error
	p.framebuffer, err = p.createFramebuffer(metadata.FramebufferConfig{
		Name:       "gbuffer",
		RenderPass: p.renderPass,
		Attachments: []metadata.Handle{
			att.Color.Image,
			att.Position.Image,
			att.Normal.Image,
			att.Material.Image,
			att.Depth.Image,
		},
		Width:  att.Extent().Width,
		Height: att.Extent().Height,
	})
	if err != nil {
		return err
	}

	if err := p.createDescriptors(); err != nil {
		return err
	}
	if err := p.createPipelines(att.Extent()); err != nil {
		return err
	}
	return p.allocateCommandBuffers()
}

func (p *DeferredPass) buildRenderPass(att *renderer.Attachments) error {
	attachments := make([]metadata.AttachmentDescription, gbufferAttachmentCount)
	for i, img := range []*renderer.ImageBlock{att.Color, att.Position, att.Normal, att.Material} {
		attachments[i] = metadata.AttachmentDescription{
			Format:        img.Format,
			LoadOp:        metadata.LOAD_OP_CLEAR,
			StoreOp:       metadata.STORE_OP_STORE,
			InitialLayout: metadata.IMAGE_LAYOUT_UNDEFINED,
			FinalLayout:   metadata.IMAGE_LAYOUT_SHADER_READ_ONLY_OPTIMAL,
		}
	}
	attachments[gbufferDepth] = metadata.AttachmentDescription{
		Format:        att.Depth.Format,
		LoadOp:        metadata.LOAD_OP_CLEAR,
		StoreOp:       metadata.STORE_OP_STORE,
		InitialLayout: metadata.IMAGE_LAYOUT_UNDEFINED,
		FinalLayout:   metadata.IMAGE_LAYOUT_DEPTH_STENCIL_READ_ONLY_OPTIMAL,
	}

	colorRefs := make([]metadata.AttachmentReference, gbufferDepth)
	for i := range colorRefs {
		colorRefs[i] = metadata.AttachmentReference{Attachment: uint32(i), Layout: metadata.IMAGE_LAYOUT_COLOR_ATTACHMENT_OPTIMAL}
	}

	var err error
	p.renderPass, err = p.createRenderPass(metadata.RenderPassConfig{
		Name:        "gbuffer",
		Attachments: attachments,
		Subpasses: []metadata.SubpassDescription{{
			Color: colorRefs,
			DepthStencil: &metadata.AttachmentReference{
				Attachment: gbufferDepth,
				Layout:     metadata.IMAGE_LAYOUT_DEPTH_STENCIL_ATTACHMENT_OPTIMAL,
			},
		}},
		Dependencies: []metadata.SubpassDependency{
			{
				SrcSubpass:    metadata.SUBPASS_EXTERNAL,
				DstSubpass:    0,
				SrcStageMask:  metadata.PIPELINE_STAGE_FRAGMENT_SHADER,
				DstStageMask:  metadata.PIPELINE_STAGE_COLOR_ATTACHMENT_OUTPUT,
				SrcAccessMask: metadata.ACCESS_SHADER_READ,
				DstAccessMask: metadata.ACCESS_COLOR_ATTACHMENT_WRITE,
				ByRegion:      true,
			},
			{
				SrcSubpass:    0,
				DstSubpass:    metadata.SUBPASS_EXTERNAL,
				SrcStageMask:  metadata.PIPELINE_STAGE_COLOR_ATTACHMENT_OUTPUT,
				DstStageMask:  metadata.PIPELINE_STAGE_FRAGMENT_SHADER,
				SrcAccessMask: metadata.ACCESS_COLOR_ATTACHMENT_WRITE,
				DstAccessMask: metadata.ACCESS_SHADER_READ,
				ByRegion:      true,
			},
		},
	})
	return err
}

func (p *DeferredPass) createDescriptors() error {
	perFrameLayout, err := p.createSetLayout("gbuffer_per_frame", perFrameBinding())
	if err != nil {
		return err
	}
	perObjectLayout, err := p.createSetLayout("gbuffer_per_object", metadata.DescriptorBinding{
		Binding: 0,
		Type:    metadata.DESCRIPTOR_TYPE_STORAGE_BUFFER,
		Count:   1,
		Stages:  metadata.SHADER_STAGE_ALL,
	})
	if err != nil {
		return err
	}
	p.pipelineLayout, err = p.createPipelineLayout("gbuffer", perFrameLayout, perObjectLayout)
	if err != nil {
		return err
	}

	frames := p.res.FramesInFlight()
	layouts := make([]metadata.Handle, 0, 2*frames)
	for i := uint32(0); i < frames; i++ {
		layouts = append(layouts, perFrameLayout, perObjectLayout)
	}
	sets, err := p.createDescriptorSets("gbuffer", []metadata.DescriptorPoolSize{
		{Type: metadata.DESCRIPTOR_TYPE_UNIFORM_BUFFER, Count: frames},
		{Type: metadata.DESCRIPTOR_TYPE_STORAGE_BUFFER, Count: frames},
	}, layouts)
	if err != nil {
		return err
	}

	p.perFrameSets = make([]metadata.Handle, frames)
	p.perObjectSets = make([]metadata.Handle, frames)
	writes := make([]metadata.DescriptorWrite, 0, 2*frames)
	for i := uint32(0); i < frames; i++ {
		p.perFrameSets[i] = sets[2*i]
		p.perObjectSets[i] = sets[2*i+1]
		perObject := p.res.PerObjectBuffer(i)
		writes = append(writes,
			perFrameWrite(p.perFrameSets[i], p.res.PerFrameBuffer(i)),
			metadata.DescriptorWrite{
				Set:     p.perObjectSets[i],
				Binding: 0,
				Type:    metadata.DESCRIPTOR_TYPE_STORAGE_BUFFER,
				Buffer:  perObject.Buffer,
				Range:   perObject.Size,
			},
		)
	}
	return p.updateDescriptorSets(writes)
}

func (p *DeferredPass) createPipelines(extent metadata.Extent2D) error {
	vert, err := p.loadShader(ShaderGBufferVert, metadata.SHADER_STAGE_VERTEX)
	if err != nil {
		return err
	}
	for mt := scene.MaterialType(0); mt < scene.MATERIAL_TYPE_COUNT; mt++ {
		frag, err := p.loadShader(gbufferFragmentShaders[mt], metadata.SHADER_STAGE_FRAGMENT)
		if err != nil {
			return err
		}
		p.pipelines[mt], err = p.createPipeline(metadata.PipelineConfig{
			Name:                 fmt.Sprintf("gbuffer_%s", mt),
			RenderPass:           p.renderPass,
			Layout:               p.pipelineLayout,
			VertexShader:         vert,
			FragmentShader:       frag,
			Vertex:               renderer.MeshVertexLayout,
			Extent:               extent,
			CullMode:             metadata.CULL_MODE_BACK,
			FrontFace:            metadata.FRONT_FACE_COUNTER_CLOCKWISE,
			DepthTest:            true,
			DepthWrite:           true,
			DepthCompare:         metadata.COMPARE_OP_LESS_OR_EQUAL,
			ColorAttachmentCount: gbufferDepth,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *DeferredPass) Draw(ctx renderer.FrameContext) (metadata.Handle, error) {
	cmd, err := p.begin(ctx)
	if err != nil {
		return metadata.NullHandle, err
	}

	extent := p.res.Attachments().Extent()
	clearValues := make([]metadata.ClearValue, gbufferAttachmentCount)
	for i := 0; i < gbufferDepth; i++ {
		clearValues[i] = metadata.ClearColor(0, 0, 0, 0)
	}
	clearValues[gbufferDepth] = metadata.ClearDepthStencil(1, 0)

	p.backend.CmdBeginRenderPass(cmd, metadata.RenderPassBeginInfo{
		RenderPass:  p.renderPass,
		Framebuffer: p.framebuffer,
		Extent:      extent,
		ClearValues: clearValues,
	})
	for mt := scene.MaterialType(0); mt < scene.MATERIAL_TYPE_COUNT; mt++ {
		entities := p.DrawList(mt)
		if len(entities) == 0 {
			continue
		}
		p.backend.CmdBindPipeline(cmd, p.pipelines[mt])
		p.backend.CmdBindDescriptorSets(cmd, p.pipelineLayout, 0, []metadata.Handle{p.perFrameSets[ctx.Slot], p.perObjectSets[ctx.Slot]})
		for _, e := range entities {
			if e.Mesh == nil {
				continue
			}
			e.Mesh.Draw(p.backend, cmd, e.Offset)
		}
	}
	p.backend.CmdEndRenderPass(cmd)

	return p.end(cmd)
}

func (p *DeferredPass) Shutdown() {
	p.releaseAll()
}
