package passes

import (
	"encoding/binary"
	stdmath "math"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
	"github.com/spaghettifunk/deferred/engine/scene"
	"golang.org/x/exp/rand"
)

const (
	SSAOKernelSize = 64
	SSAONoiseSize  = 4

	// mixed into the seed so the noise and the kernel draw from separate streams
	noiseStream uint64 = 0x9e3779b97f4a7c15
)

// GenerateKernel returns hemisphere samples oriented along +z. Sample i is
// scaled by lerp(0.1, 1, (i/n)^2) so more samples sit close to the origin.
func GenerateKernel(seed uint64) []mgl32.Vec4 {
	rng := rand.New(rand.NewSource(seed))
	uniform := func() float32 { return rng.Float32()*2 - 1 }

	kernel := make([]mgl32.Vec4, SSAOKernelSize)
	for i := range kernel {
		var sample mgl32.Vec3
		for sample.Len() == 0 {
			sample = mgl32.Vec3{uniform(), uniform(), uniform()*0.5 + 0.5}
		}
		sample = sample.Normalize()

		scale := float32(i) / SSAOKernelSize
		scale = 0.1 + scale*scale*(1.0-0.1)
		kernel[i] = sample.Mul(scale).Vec4(0)
	}
	return kernel
}

// GenerateNoise returns the 4x4 random rotation vectors, uniform in [-1, 1].
func GenerateNoise(seed uint64) []mgl32.Vec2 {
	rng := rand.New(rand.NewSource(seed ^ noiseStream))
	noise := make([]mgl32.Vec2, SSAONoiseSize*SSAONoiseSize)
	for i := range noise {
		noise[i] = mgl32.Vec2{rng.Float32()*2 - 1, rng.Float32()*2 - 1}
	}
	return noise
}

func encodeFloats(values []float32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], stdmath.Float32bits(v))
	}
	return out
}

func kernelBytes(kernel []mgl32.Vec4) []byte {
	flat := make([]float32, 0, len(kernel)*4)
	for _, k := range kernel {
		flat = append(flat, k[0], k[1], k[2], k[3])
	}
	return encodeFloats(flat)
}

func noiseBytes(noise []mgl32.Vec2) []byte {
	flat := make([]float32, 0, len(noise)*2)
	for _, n := range noise {
		flat = append(flat, n[0], n[1])
	}
	return encodeFloats(flat)
}

// SSAO input set bindings.
const (
	ssaoBindingPosition = iota
	ssaoBindingNormal
	ssaoBindingDepth
	ssaoBindingNoise
	ssaoBindingKernel
)

// SSAOPass reads position, normal and depth as input attachments and writes
// a single channel occlusion term.
type SSAOPass struct {
	base

	renderPass     metadata.Handle
	framebuffer    metadata.Handle
	pipelineLayout metadata.Handle
	pipeline       metadata.Handle

	perFrameSets []metadata.Handle
	inputSet     metadata.Handle

	kernel *renderer.BufferBlock
	noise  *renderer.ImageBlock
	seed   uint64
}

func NewSSAOPass(res renderer.Resources) *SSAOPass {
	return &SSAOPass{base: newBase("ssao", res)}
}

func (p *SSAOPass) AddEntityToDraw(*scene.Entity) {}

// Seed returns the seed the kernel and noise were generated from.
func (p *SSAOPass) Seed() uint64 { return p.seed }

func (p *SSAOPass) Initialize() error {
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

func (p *SSAOPass) initialize() error {
	att := p.res.Attachments()
	if att == nil {
		return p.fail("attachments", core.ErrPassNotInitialized)
	}

	p.seed = p.res.SSAOSeed()
	if p.seed == 0 {
		p.seed = uint64(time.Now().UnixNano())
	}
	if err := p.createKernel(); err != nil {
		return err
	}
	if err := p.createNoise(); err != nil {
		return err
	}
	if err := p.buildRenderPass(att); err != nil {
		return err
	}

	var err error
	p.framebuffer, err = p.createFramebuffer(metadata.FramebufferConfig{
		Name:        "ssao",
		RenderPass:  p.renderPass,
		Attachments: []metadata.Handle{att.Position.Image, att.Normal.Image, att.Depth.Image, att.SSAO.Image},
		Width:       att.Extent().Width,
		Height:      att.Extent().Height,
	})
	if err != nil {
		return err
	}
	if err := p.createDescriptors(att); err != nil {
		return err
	}

	vert, err := p.loadShader(ShaderFullscreenVert, metadata.SHADER_STAGE_VERTEX)
	if err != nil {
		return err
	}
	frag, err := p.loadShader(ShaderSSAOFrag, metadata.SHADER_STAGE_FRAGMENT)
	if err != nil {
		return err
	}
	p.pipeline, err = p.createPipeline(fullscreenPipeline("ssao", p.renderPass, p.pipelineLayout, vert, frag, att.Extent()))
	if err != nil {
		return err
	}
	return p.allocateCommandBuffers()
}

func (p *SSAOPass) createKernel() error {
	data := kernelBytes(GenerateKernel(p.seed))
	kernel, err := p.res.Builder().CreateBufferBlock(metadata.BufferConfig{
		Name:   "ssao_kernel",
		Size:   uint64(len(data)),
		Usage:  metadata.BUFFER_USAGE_STORAGE_BUFFER,
		Memory: metadata.MEMORY_PROPERTY_HOST,
	})
	if err != nil {
		return p.fail("kernel buffer", err)
	}
	p.kernel = kernel
	p.onRelease(kernel.Release)
	if err := kernel.Write(0, data); err != nil {
		return p.fail("kernel buffer", err)
	}
	return nil
}

func (p *SSAOPass) createNoise() error {
	noise, err := p.res.Builder().CreateTexture(metadata.ImageConfig{
		Name:   "ssao_noise",
		Width:  SSAONoiseSize,
		Height: SSAONoiseSize,
		Format: metadata.FORMAT_R32G32_SFLOAT,
		Aspect: metadata.IMAGE_ASPECT_COLOR,
	}, metadata.SamplerConfig{
		Name:        "ssao_noise",
		MagFilter:   metadata.FILTER_NEAREST,
		MinFilter:   metadata.FILTER_NEAREST,
		AddressMode: metadata.ADDRESS_MODE_REPEAT,
		BorderColor: metadata.BORDER_COLOR_FLOAT_OPAQUE_WHITE,
		MaxLod:      1,
	}, noiseBytes(GenerateNoise(p.seed)))
	if err != nil {
		return p.fail("noise texture", err)
	}
	p.noise = noise
	p.onRelease(noise.Release)
	return nil
}

func (p *SSAOPass) buildRenderPass(att *renderer.Attachments) error {
	readOnly := func(img *renderer.ImageBlock, layout metadata.ImageLayout) metadata.AttachmentDescription {
		return metadata.AttachmentDescription{
			Format:        img.Format,
			LoadOp:        metadata.LOAD_OP_LOAD,
			StoreOp:       metadata.STORE_OP_STORE,
			InitialLayout: layout,
			FinalLayout:   layout,
		}
	}
	var err error
	p.renderPass, err = p.createRenderPass(metadata.RenderPassConfig{
		Name: "ssao",
		Attachments: []metadata.AttachmentDescription{
			readOnly(att.Position, metadata.IMAGE_LAYOUT_SHADER_READ_ONLY_OPTIMAL),
			readOnly(att.Normal, metadata.IMAGE_LAYOUT_SHADER_READ_ONLY_OPTIMAL),
			readOnly(att.Depth, metadata.IMAGE_LAYOUT_DEPTH_STENCIL_READ_ONLY_OPTIMAL),
			{
				Format:        att.SSAO.Format,
				LoadOp:        metadata.LOAD_OP_CLEAR,
				StoreOp:       metadata.STORE_OP_STORE,
				InitialLayout: metadata.IMAGE_LAYOUT_UNDEFINED,
				FinalLayout:   metadata.IMAGE_LAYOUT_SHADER_READ_ONLY_OPTIMAL,
			},
		},
		Subpasses: []metadata.SubpassDescription{{
			Input: []metadata.AttachmentReference{
				{Attachment: 0, Layout: metadata.IMAGE_LAYOUT_SHADER_READ_ONLY_OPTIMAL},
				{Attachment: 1, Layout: metadata.IMAGE_LAYOUT_SHADER_READ_ONLY_OPTIMAL},
				{Attachment: 2, Layout: metadata.IMAGE_LAYOUT_DEPTH_STENCIL_READ_ONLY_OPTIMAL},
			},
			Color: []metadata.AttachmentReference{
				{Attachment: 3, Layout: metadata.IMAGE_LAYOUT_COLOR_ATTACHMENT_OPTIMAL},
			},
		}},
		Dependencies: readAfterWrite(metadata.ACCESS_INPUT_ATTACHMENT_READ, metadata.ACCESS_SHADER_READ),
	})
	return err
}

func (p *SSAOPass) createDescriptors(att *renderer.Attachments) error {
	perFrameLayout, err := p.createSetLayout("ssao_per_frame", perFrameBinding())
	if err != nil {
		return err
	}
	inputLayout, err := p.createSetLayout("ssao_inputs",
		fragmentBinding(ssaoBindingPosition, metadata.DESCRIPTOR_TYPE_INPUT_ATTACHMENT),
		fragmentBinding(ssaoBindingNormal, metadata.DESCRIPTOR_TYPE_INPUT_ATTACHMENT),
		fragmentBinding(ssaoBindingDepth, metadata.DESCRIPTOR_TYPE_INPUT_ATTACHMENT),
		fragmentBinding(ssaoBindingNoise, metadata.DESCRIPTOR_TYPE_COMBINED_IMAGE_SAMPLER),
		fragmentBinding(ssaoBindingKernel, metadata.DESCRIPTOR_TYPE_STORAGE_BUFFER),
	)
	if err != nil {
		return err
	}
	p.pipelineLayout, err = p.createPipelineLayout("ssao", perFrameLayout, inputLayout)
	if err != nil {
		return err
	}

	frames := p.res.FramesInFlight()
	layouts := make([]metadata.Handle, 0, frames+1)
	for i := uint32(0); i < frames; i++ {
		layouts = append(layouts, perFrameLayout)
	}
	layouts = append(layouts, inputLayout)
	sets, err := p.createDescriptorSets("ssao", []metadata.DescriptorPoolSize{
		{Type: metadata.DESCRIPTOR_TYPE_UNIFORM_BUFFER, Count: frames},
		{Type: metadata.DESCRIPTOR_TYPE_INPUT_ATTACHMENT, Count: 3},
		{Type: metadata.DESCRIPTOR_TYPE_COMBINED_IMAGE_SAMPLER, Count: 1},
		{Type: metadata.DESCRIPTOR_TYPE_STORAGE_BUFFER, Count: 1},
	}, layouts)
	if err != nil {
		return err
	}
	p.perFrameSets = sets[:frames]
	p.inputSet = sets[frames]

	writes := make([]metadata.DescriptorWrite, 0, frames+5)
	for i := uint32(0); i < frames; i++ {
		writes = append(writes, perFrameWrite(p.perFrameSets[i], p.res.PerFrameBuffer(i)))
	}
	writes = append(writes,
		imageWrite(p.inputSet, ssaoBindingPosition, metadata.DESCRIPTOR_TYPE_INPUT_ATTACHMENT, att.Position, metadata.NullHandle, metadata.IMAGE_LAYOUT_SHADER_READ_ONLY_OPTIMAL),
		imageWrite(p.inputSet, ssaoBindingNormal, metadata.DESCRIPTOR_TYPE_INPUT_ATTACHMENT, att.Normal, metadata.NullHandle, metadata.IMAGE_LAYOUT_SHADER_READ_ONLY_OPTIMAL),
		imageWrite(p.inputSet, ssaoBindingDepth, metadata.DESCRIPTOR_TYPE_INPUT_ATTACHMENT, att.Depth, metadata.NullHandle, metadata.IMAGE_LAYOUT_DEPTH_STENCIL_READ_ONLY_OPTIMAL),
		imageWrite(p.inputSet, ssaoBindingNoise, metadata.DESCRIPTOR_TYPE_COMBINED_IMAGE_SAMPLER, p.noise, p.noise.Sampler, metadata.IMAGE_LAYOUT_SHADER_READ_ONLY_OPTIMAL),
		metadata.DescriptorWrite{
			Set:     p.inputSet,
			Binding: ssaoBindingKernel,
			Type:    metadata.DESCRIPTOR_TYPE_STORAGE_BUFFER,
			Buffer:  p.kernel.Buffer,
			Range:   p.kernel.Size,
		},
	)
	return p.updateDescriptorSets(writes)
}

func (p *SSAOPass) Draw(ctx renderer.FrameContext) (metadata.Handle, error) {
	cmd, err := p.begin(ctx)
	if err != nil {
		return metadata.NullHandle, err
	}
	p.backend.CmdBeginRenderPass(cmd, metadata.RenderPassBeginInfo{
		RenderPass:  p.renderPass,
		Framebuffer: p.framebuffer,
		Extent:      p.res.Attachments().Extent(),
		ClearValues: []metadata.ClearValue{
			{}, {}, {},
			metadata.ClearColor(1, 1, 1, 1),
		},
	})
	p.backend.CmdBindPipeline(cmd, p.pipeline)
	p.backend.CmdBindDescriptorSets(cmd, p.pipelineLayout, 0, []metadata.Handle{p.perFrameSets[ctx.Slot], p.inputSet})
	p.backend.CmdDraw(cmd, 3, 0)
	p.backend.CmdEndRenderPass(cmd)
	return p.end(cmd)
}

func (p *SSAOPass) Shutdown() {
	p.releaseAll()
	p.kernel = nil
	p.noise = nil
}

// fullscreenPipeline draws one triangle generated in the vertex shader.
func fullscreenPipeline(name string, renderPass, layout, vert, frag metadata.Handle, extent metadata.Extent2D) metadata.PipelineConfig {
	return metadata.PipelineConfig{
		Name:                 name,
		RenderPass:           renderPass,
		Layout:               layout,
		VertexShader:         vert,
		FragmentShader:       frag,
		Extent:               extent,
		CullMode:             metadata.CULL_MODE_NONE,
		FrontFace:            metadata.FRONT_FACE_CLOCKWISE,
		ColorAttachmentCount: 1,
	}
}
