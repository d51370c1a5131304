package passes

import (
	"fmt"

	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
	"github.com/spaghettifunk/deferred/engine/scene"
)

// RenderPass is one stage of the frame. Passes record command buffers but
// never submit them.
type RenderPass interface {
	Name() string
	/** @brief Creates every GPU object of the pass. On failure nothing is left allocated. */
	Initialize() error
	/** @brief Releases what Initialize created, in reverse order. Safe to call more than once. */
	Shutdown()
	/** @brief Records the command buffer of ctx.ImageIndex and returns it. */
	Draw(ctx renderer.FrameContext) (metadata.Handle, error)
	AddEntityToDraw(entity *scene.Entity)
}

// Shader file names, relative to the shader directory.
const (
	ShaderGBufferVert           = "gbuffer.vert.spv"
	ShaderGBufferDiffuseFrag    = "gbuffer_diffuse.frag.spv"
	ShaderGBufferMicrofacetFrag = "gbuffer_microfacets.frag.spv"
	ShaderFullscreenVert        = "fullscreen.vert.spv"
	ShaderSSAOFrag              = "ssao.frag.spv"
	ShaderBlurFrag              = "blur.frag.spv"
	ShaderCompositionFrag       = "composition.frag.spv"
	ShaderShadowVert            = "shadow.vert.spv"
	ShaderShadowFrag            = "shadow.frag.spv"
)

// ShaderFiles lists every shader module a full pass chain loads.
var ShaderFiles = []string{
	ShaderGBufferVert,
	ShaderGBufferDiffuseFrag,
	ShaderGBufferMicrofacetFrag,
	ShaderFullscreenVert,
	ShaderSSAOFrag,
	ShaderBlurFrag,
	ShaderCompositionFrag,
	ShaderShadowVert,
	ShaderShadowFrag,
}

// drawRegistry buckets entities by material type. Buckets are iterated in
// material enumeration order, entities in registration order.
type drawRegistry struct {
	buckets [scene.MATERIAL_TYPE_COUNT][]*scene.Entity
}

func (r *drawRegistry) add(e *scene.Entity) {
	if e == nil || e.Material.Type >= scene.MATERIAL_TYPE_COUNT {
		core.LogWarn("entity with unknown material type ignored")
		return
	}
	r.buckets[e.Material.Type] = append(r.buckets[e.Material.Type], e)
}

// DrawList returns the entities registered for material type t.
func (r *drawRegistry) DrawList(t scene.MaterialType) []*scene.Entity {
	if t >= scene.MATERIAL_TYPE_COUNT {
		return nil
	}
	return r.buckets[t]
}

func (r *drawRegistry) count() int {
	n := 0
	for _, b := range r.buckets {
		n += len(b)
	}
	return n
}

// base carries what every pass owns: a stack of release functions and one
// command buffer per swapchain image.
type base struct {
	name        string
	res         renderer.Resources
	backend     renderer.RendererBackend
	initialized bool

	releases       []func()
	commandBuffers []metadata.Handle
}

func newBase(name string, res renderer.Resources) base {
	return base{name: name, res: res, backend: res.Backend()}
}

func (b *base) Name() string { return b.name }

func (b *base) onRelease(fn func()) {
	b.releases = append(b.releases, fn)
}

// releaseAll runs the release stack in reverse and empties it.
func (b *base) releaseAll() {
	for i := len(b.releases) - 1; i >= 0; i-- {
		b.releases[i]()
	}
	b.releases = nil
	b.commandBuffers = nil
	b.initialized = false
}

func (b *base) fail(object string, err error) error {
	gerr := core.NewGPUError(b.name, object, err)
	core.LogError(gerr.Error())
	return gerr
}

func (b *base) createRenderPass(config metadata.RenderPassConfig) (metadata.Handle, error) {
	h, err := b.backend.CreateRenderPass(config)
	if err != nil {
		return metadata.NullHandle, b.fail("render pass "+config.Name, err)
	}
	b.onRelease(func() { b.backend.DestroyRenderPass(h) })
	return h, nil
}

func (b *base) createFramebuffer(config metadata.FramebufferConfig) (metadata.Handle, error) {
	h, err := b.backend.CreateFramebuffer(config)
	if err != nil {
		return metadata.NullHandle, b.fail("framebuffer "+config.Name, err)
	}
	b.onRelease(func() { b.backend.DestroyFramebuffer(h) })
	return h, nil
}

func (b *base) createSetLayout(name string, bindings ...metadata.DescriptorBinding) (metadata.Handle, error) {
	h, err := b.backend.CreateDescriptorSetLayout(metadata.DescriptorSetLayoutConfig{Name: name, Bindings: bindings})
	if err != nil {
		return metadata.NullHandle, b.fail("descriptor set layout "+name, err)
	}
	b.onRelease(func() { b.backend.DestroyDescriptorSetLayout(h) })
	return h, nil
}

func (b *base) createPipelineLayout(name string, setLayouts ...metadata.Handle) (metadata.Handle, error) {
	h, err := b.backend.CreatePipelineLayout(metadata.PipelineLayoutConfig{Name: name, SetLayouts: setLayouts})
	if err != nil {
		return metadata.NullHandle, b.fail("pipeline layout "+name, err)
	}
	b.onRelease(func() { b.backend.DestroyPipelineLayout(h) })
	return h, nil
}

func (b *base) createPipeline(config metadata.PipelineConfig) (metadata.Handle, error) {
	h, err := b.backend.CreateGraphicsPipeline(config)
	if err != nil {
		return metadata.NullHandle, b.fail("pipeline "+config.Name, err)
	}
	b.onRelease(func() { b.backend.DestroyPipeline(h) })
	return h, nil
}

// createDescriptorSets creates a pool and allocates one set per layout. The
// sets are freed with the pool.
func (b *base) createDescriptorSets(name string, sizes []metadata.DescriptorPoolSize, layouts []metadata.Handle) ([]metadata.Handle, error) {
	pool, err := b.backend.CreateDescriptorPool(metadata.DescriptorPoolConfig{
		Name:    name,
		MaxSets: uint32(len(layouts)),
		Sizes:   sizes,
	})
	if err != nil {
		return nil, b.fail("descriptor pool "+name, err)
	}
	b.onRelease(func() { b.backend.DestroyDescriptorPool(pool) })

	sets, err := b.backend.AllocateDescriptorSets(pool, layouts)
	if err != nil {
		return nil, b.fail("descriptor sets "+name, err)
	}
	return sets, nil
}

func (b *base) updateDescriptorSets(writes []metadata.DescriptorWrite) error {
	if err := b.backend.UpdateDescriptorSets(writes); err != nil {
		return b.fail("descriptor writes", err)
	}
	return nil
}

func (b *base) loadShader(path string, stage metadata.ShaderStage) (metadata.Handle, error) {
	h, err := b.res.Shaders().LoadShader(path, stage)
	if err != nil {
		return metadata.NullHandle, b.fail("shader "+path, err)
	}
	return h, nil
}

func (b *base) allocateCommandBuffers() error {
	count := uint32(len(b.res.SwapchainImages()))
	if count == 0 {
		return b.fail("command buffers", fmt.Errorf("no swapchain images"))
	}
	cmds, err := b.backend.AllocateCommandBuffers(count)
	if err != nil {
		return b.fail("command buffers", err)
	}
	b.commandBuffers = cmds
	b.onRelease(func() { b.backend.FreeCommandBuffers(cmds) })
	return nil
}

// begin resets and opens the command buffer of the current image.
func (b *base) begin(ctx renderer.FrameContext) (metadata.Handle, error) {
	if !b.initialized {
		return metadata.NullHandle, fmt.Errorf("%s: %w", b.name, core.ErrPassNotInitialized)
	}
	if int(ctx.ImageIndex) >= len(b.commandBuffers) {
		return metadata.NullHandle, fmt.Errorf("%s: image index %d out of range", b.name, ctx.ImageIndex)
	}
	if ctx.Slot >= b.res.FramesInFlight() {
		return metadata.NullHandle, fmt.Errorf("%s: frame slot %d out of range", b.name, ctx.Slot)
	}
	cmd := b.commandBuffers[ctx.ImageIndex]
	if err := b.backend.ResetCommandBuffer(cmd); err != nil {
		return metadata.NullHandle, fmt.Errorf("%s: failed to reset command buffer: %w", b.name, err)
	}
	if err := b.backend.BeginCommandBuffer(cmd, false); err != nil {
		return metadata.NullHandle, fmt.Errorf("%s: failed to begin command buffer: %w", b.name, err)
	}
	return cmd, nil
}

func (b *base) end(cmd metadata.Handle) (metadata.Handle, error) {
	if err := b.backend.EndCommandBuffer(cmd); err != nil {
		return metadata.NullHandle, fmt.Errorf("%s: failed to end command buffer: %w", b.name, err)
	}
	return cmd, nil
}

// CommandBuffers returns the per image command buffers.
func (b *base) CommandBuffers() []metadata.Handle { return b.commandBuffers }

// perFrameBinding is set 0 of every pass: the per-frame uniform buffer.
func perFrameBinding() metadata.DescriptorBinding {
	return metadata.DescriptorBinding{
		Binding: 0,
		Type:    metadata.DESCRIPTOR_TYPE_UNIFORM_BUFFER,
		Count:   1,
		Stages:  metadata.SHADER_STAGE_ALL,
	}
}

func perFrameWrite(set metadata.Handle, buffer *renderer.BufferBlock) metadata.DescriptorWrite {
	return metadata.DescriptorWrite{
		Set:     set,
		Binding: 0,
		Type:    metadata.DESCRIPTOR_TYPE_UNIFORM_BUFFER,
		Buffer:  buffer.Buffer,
		Range:   buffer.Size,
	}
}

func imageWrite(set metadata.Handle, binding uint32, t metadata.DescriptorType, img *renderer.ImageBlock, sampler metadata.Handle, layout metadata.ImageLayout) metadata.DescriptorWrite {
	return metadata.DescriptorWrite{
		Set:     set,
		Binding: binding,
		Type:    t,
		Image:   img.Image,
		Sampler: sampler,
		Layout:  layout,
	}
}

func fragmentBinding(binding uint32, t metadata.DescriptorType) metadata.DescriptorBinding {
	return metadata.DescriptorBinding{Binding: binding, Type: t, Count: 1, Stages: metadata.SHADER_STAGE_FRAGMENT}
}

// readAfterWrite orders a previous pass's color writes before this pass's
// fragment reads, and this pass's color writes before the next reads.
func readAfterWrite(src metadata.Access, dst metadata.Access) []metadata.SubpassDependency {
	return []metadata.SubpassDependency{
		{
			SrcSubpass:    metadata.SUBPASS_EXTERNAL,
			DstSubpass:    0,
			SrcStageMask:  metadata.PIPELINE_STAGE_COLOR_ATTACHMENT_OUTPUT,
			DstStageMask:  metadata.PIPELINE_STAGE_FRAGMENT_SHADER,
			SrcAccessMask: metadata.ACCESS_COLOR_ATTACHMENT_WRITE,
			DstAccessMask: src,
			ByRegion:      true,
		},
		{
			SrcSubpass:    0,
			DstSubpass:    metadata.SUBPASS_EXTERNAL,
			SrcStageMask:  metadata.PIPELINE_STAGE_COLOR_ATTACHMENT_OUTPUT,
			DstStageMask:  metadata.PIPELINE_STAGE_FRAGMENT_SHADER,
			SrcAccessMask: metadata.ACCESS_COLOR_ATTACHMENT_WRITE,
			DstAccessMask: dst,
			ByRegion:      true,
		},
	}
}
