package passes

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
	"github.com/spaghettifunk/deferred/engine/scene"
)

const ShadowMapSize = 2048

const lightMatrixSize = 64

// ShadowPass renders scene depth from one light into a private shadow map.
// It is built and kept up to date with the scene but the frame chain does
// not submit it yet.
type ShadowPass struct {
	base
	drawRegistry

	renderPass     metadata.Handle
	framebuffer    metadata.Handle
	pipelineLayout metadata.Handle
	pipeline       metadata.Handle

	lightSets     []metadata.Handle
	perObjectSets []metadata.Handle

	shadowMap    *renderer.ImageBlock
	lightBuffers []*renderer.BufferBlock
	lightMatrix  mgl32.Mat4
}

func NewShadowPass(res renderer.Resources) *ShadowPass {
	return &ShadowPass{base: newBase("shadow", res), lightMatrix: mgl32.Ident4()}
}

func (p *ShadowPass) AddEntityToDraw(e *scene.Entity) { p.add(e) }

// SetLightMatrix sets the light view-projection used by the next Draw.
func (p *ShadowPass) SetLightMatrix(m mgl32.Mat4) { p.lightMatrix = m }

func (p *ShadowPass) LightMatrix() mgl32.Mat4 { return p.lightMatrix }

// Output is the shadow map, nil until initialized.
func (p *ShadowPass) Output() *renderer.ImageBlock { return p.shadowMap }

func (p *ShadowPass) Initialize() error {
	if p.initialized {
		return nil
	}
	if err := p.initialize(); err != nil {
		p.releaseAll()
		p.shadowMap = nil
		p.lightBuffers = nil
		return err
	}
	p.initialized = true
	return nil
}

func (p *ShadowPass) initialize() error {
	depthFormat := p.res.DepthFormat()
	aspect := metadata.IMAGE_ASPECT_DEPTH
	if depthFormat.HasStencil() {
		aspect |= metadata.IMAGE_ASPECT_STENCIL
	}
	shadowMap, err := p.res.Builder().CreateImageBlock(metadata.ImageConfig{
		Name:   "shadow_map",
		Width:  ShadowMapSize,
		Height: ShadowMapSize,
		Format: depthFormat,
		Usage:  metadata.IMAGE_USAGE_DEPTH_STENCIL_ATTACHMENT | metadata.IMAGE_USAGE_SAMPLED,
		Aspect: aspect,
		Memory: metadata.MEMORY_PROPERTY_DEVICE_LOCAL,
	}, &metadata.SamplerConfig{
		Name:        "shadow_map",
		MagFilter:   metadata.FILTER_LINEAR,
		MinFilter:   metadata.FILTER_LINEAR,
		AddressMode: metadata.ADDRESS_MODE_CLAMP_TO_BORDER,
		BorderColor: metadata.BORDER_COLOR_FLOAT_OPAQUE_WHITE,
		MaxLod:      1,
	})
	if err != nil {
		return p.fail("shadow map", err)
	}
	p.shadowMap = shadowMap
	p.onRelease(shadowMap.Release)

	frames := p.res.FramesInFlight()
	p.lightBuffers = make([]*renderer.BufferBlock, frames)
	for i := uint32(0); i < frames; i++ {
		buf, err := p.res.Builder().CreateBufferBlock(metadata.BufferConfig{
			Name:   fmt.Sprintf("shadow_light_%d", i),
			Size:   lightMatrixSize,
			Usage:  metadata.BUFFER_USAGE_UNIFORM_BUFFER,
			Memory: metadata.MEMORY_PROPERTY_HOST,
		})
		if err != nil {
			return p.fail("light buffer", err)
		}
		p.lightBuffers[i] = buf
		p.onRelease(buf.Release)
	}

	p.renderPass, err = p.createRenderPass(metadata.RenderPassConfig{
		Name: "shadow",
		Attachments: []metadata.AttachmentDescription{{
			Format:        depthFormat,
			LoadOp:        metadata.LOAD_OP_CLEAR,
			StoreOp:       metadata.STORE_OP_STORE,
			InitialLayout: metadata.IMAGE_LAYOUT_UNDEFINED,
			FinalLayout:   metadata.IMAGE_LAYOUT_DEPTH_STENCIL_READ_ONLY_OPTIMAL,
		}},
		Subpasses: []metadata.SubpassDescription{{
			DepthStencil: &metadata.AttachmentReference{Attachment: 0, Layout: metadata.IMAGE_LAYOUT_DEPTH_STENCIL_ATTACHMENT_OPTIMAL},
		}},
		Dependencies: []metadata.SubpassDependency{
			{
				SrcSubpass:    metadata.SUBPASS_EXTERNAL,
				DstSubpass:    0,
				SrcStageMask:  metadata.PIPELINE_STAGE_FRAGMENT_SHADER,
				DstStageMask:  metadata.PIPELINE_STAGE_EARLY_FRAGMENT_TESTS,
				SrcAccessMask: metadata.ACCESS_SHADER_READ,
				DstAccessMask: metadata.ACCESS_DEPTH_STENCIL_ATTACHMENT_WRITE,
				ByRegion:      true,
			},
			{
				SrcSubpass:    0,
				DstSubpass:    metadata.SUBPASS_EXTERNAL,
				SrcStageMask:  metadata.PIPELINE_STAGE_LATE_FRAGMENT_TESTS,
				DstStageMask:  metadata.PIPELINE_STAGE_FRAGMENT_SHADER,
				SrcAccessMask: metadata.ACCESS_DEPTH_STENCIL_ATTACHMENT_WRITE,
				DstAccessMask: metadata.ACCESS_SHADER_READ,
				ByRegion:      true,
			},
		},
	})
	if err != nil {
		return err
	}
	p.framebuffer, err = p.createFramebuffer(metadata.FramebufferConfig{
		Name:        "shadow",
		RenderPass:  p.renderPass,
		Attachments: []metadata.Handle{shadowMap.Image},
		Width:       ShadowMapSize,
		Height:      ShadowMapSize,
	})
	if err != nil {
		return err
	}

	if err := p.createDescriptors(); err != nil {
		return err
	}

	vert, err := p.loadShader(ShaderShadowVert, metadata.SHADER_STAGE_VERTEX)
	if err != nil {
		return err
	}
	frag, err := p.loadShader(ShaderShadowFrag, metadata.SHADER_STAGE_FRAGMENT)
	if err != nil {
		return err
	}
	p.pipeline, err = p.createPipeline(metadata.PipelineConfig{
		Name:           "shadow",
		RenderPass:     p.renderPass,
		Layout:         p.pipelineLayout,
		VertexShader:   vert,
		FragmentShader: frag,
		Vertex:         renderer.MeshVertexLayout,
		Extent:         shadowMap.Extent(),
		CullMode:       metadata.CULL_MODE_FRONT,
		FrontFace:      metadata.FRONT_FACE_COUNTER_CLOCKWISE,
		DepthTest:      true,
		DepthWrite:     true,
		DepthCompare:   metadata.COMPARE_OP_LESS_OR_EQUAL,
	})
	if err != nil {
		return err
	}
	return p.allocateCommandBuffers()
}

func (p *ShadowPass) createDescriptors() error {
	lightLayout, err := p.createSetLayout("shadow_light", metadata.DescriptorBinding{
		Binding: 0,
		Type:    metadata.DESCRIPTOR_TYPE_UNIFORM_BUFFER,
		Count:   1,
		Stages:  metadata.SHADER_STAGE_VERTEX,
	})
	if err != nil {
		return err
	}
	perObjectLayout, err := p.createSetLayout("shadow_per_object", metadata.DescriptorBinding{
		Binding: 0,
		Type:    metadata.DESCRIPTOR_TYPE_STORAGE_BUFFER,
		Count:   1,
		Stages:  metadata.SHADER_STAGE_VERTEX,
	})
	if err != nil {
		return err
	}
	p.pipelineLayout, err = p.createPipelineLayout("shadow", lightLayout, perObjectLayout)
	if err != nil {
		return err
	}

	frames := p.res.FramesInFlight()
	layouts := make([]metadata.Handle, 0, 2*frames)
	for i := uint32(0); i < frames; i++ {
		layouts = append(layouts, lightLayout, perObjectLayout)
	}
	sets, err := p.createDescriptorSets("shadow", []metadata.DescriptorPoolSize{
		{Type: metadata.DESCRIPTOR_TYPE_UNIFORM_BUFFER, Count: frames},
		{Type: metadata.DESCRIPTOR_TYPE_STORAGE_BUFFER, Count: frames},
	}, layouts)
	if err != nil {
		return err
	}

	p.lightSets = make([]metadata.Handle, frames)
	p.perObjectSets = make([]metadata.Handle, frames)
	writes := make([]metadata.DescriptorWrite, 0, 2*frames)
	for i := uint32(0); i < frames; i++ {
		p.lightSets[i] = sets[2*i]
		p.perObjectSets[i] = sets[2*i+1]
		perObject := p.res.PerObjectBuffer(i)
		writes = append(writes,
			perFrameWrite(p.lightSets[i], p.lightBuffers[i]),
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

// Draw writes the light matrix of the slot and records the depth pass. The
// caller must have waited on the slot's fence.
func (p *ShadowPass) Draw(ctx renderer.FrameContext) (metadata.Handle, error) {
	if p.initialized && ctx.Slot < uint32(len(p.lightBuffers)) {
		if err := p.lightBuffers[ctx.Slot].Write(0, encodeFloats(p.lightMatrix[:])); err != nil {
			return metadata.NullHandle, fmt.Errorf("%s: %w", p.name, err)
		}
	}
	cmd, err := p.begin(ctx)
	if err != nil {
		return metadata.NullHandle, err
	}
	p.backend.CmdBeginRenderPass(cmd, metadata.RenderPassBeginInfo{
		RenderPass:  p.renderPass,
		Framebuffer: p.framebuffer,
		Extent:      p.shadowMap.Extent(),
		ClearValues: []metadata.ClearValue{metadata.ClearDepthStencil(1, 0)},
	})
	p.backend.CmdBindPipeline(cmd, p.pipeline)
	p.backend.CmdBindDescriptorSets(cmd, p.pipelineLayout, 0, []metadata.Handle{p.lightSets[ctx.Slot], p.perObjectSets[ctx.Slot]})
	for mt := scene.MaterialType(0); mt < scene.MATERIAL_TYPE_COUNT; mt++ {
		for _, e := range p.DrawList(mt) {
			if e.Mesh == nil {
				continue
			}
			e.Mesh.Draw(p.backend, cmd, e.Offset)
		}
	}
	p.backend.CmdEndRenderPass(cmd)
	return p.end(cmd)
}

func (p *ShadowPass) Shutdown() {
	p.releaseAll()
	p.shadowMap = nil
	p.lightBuffers = nil
}
