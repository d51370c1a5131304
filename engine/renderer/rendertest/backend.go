// Package rendertest provides an in-memory RendererBackend, Surface and
// Window for tests. Every handle is tracked; destroying a handle twice,
// leaking it, or touching memory the fake GPU still reads is recorded.
package rendertest

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
)

type Kind string

const (
	KindImage               Kind = "image"
	KindSwapchainImage      Kind = "swapchain_image"
	KindBuffer              Kind = "buffer"
	KindSampler             Kind = "sampler"
	KindShaderModule        Kind = "shader_module"
	KindRenderPass          Kind = "render_pass"
	KindFramebuffer         Kind = "framebuffer"
	KindDescriptorSetLayout Kind = "descriptor_set_layout"
	KindDescriptorPool      Kind = "descriptor_pool"
	KindDescriptorSet       Kind = "descriptor_set"
	KindPipelineLayout      Kind = "pipeline_layout"
	KindPipeline            Kind = "pipeline"
	KindCommandBuffer       Kind = "command_buffer"
	KindSemaphore           Kind = "semaphore"
	KindFence               Kind = "fence"
)

// Command is one recorded command.
type Command struct {
	Op      string
	Handles []metadata.Handle
	Values  []uint32
}

type object struct {
	kind Kind
	name string
	live bool

	data     []byte
	config   interface{}
	pool     metadata.Handle
	sets     []metadata.Handle
	bindings map[uint32]metadata.Handle

	// fence state
	signaled bool
	pending  []metadata.Handle

	// the fence guarding GPU work that reads this object
	inFlight metadata.Handle

	state    metadata.CommandBufferState
	commands []Command
}

// Backend is a recording renderer.RendererBackend.
type Backend struct {
	mu sync.Mutex

	next    metadata.Handle
	objects map[metadata.Handle]*object

	created   map[Kind]int
	destroyed map[Kind]int

	violations []string

	failOn map[Kind]error
	// HangFences makes every wait on an unsignaled fence time out.
	HangFences bool
	// DeviceLost makes waits and WaitIdle fail with core.ErrDeviceLost.
	DeviceLost bool
	// Depth is the format reported by DepthFormat.
	Depth metadata.Format

	submits       []metadata.SubmitInfo
	waitIdleCalls int
}

var _ renderer.RendererBackend = (*Backend)(nil)

func NewBackend() *Backend {
	return &Backend{
		objects:   make(map[metadata.Handle]*object),
		created:   make(map[Kind]int),
		destroyed: make(map[Kind]int),
		failOn:    make(map[Kind]error),
		Depth:     metadata.FORMAT_D32_SFLOAT_S8_UINT,
	}
}

// FailNext makes the next creation of an object of `kind` fail with err.
func (b *Backend) FailNext(kind Kind, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failOn[kind] = err
}

func (b *Backend) violation(format string, args ...interface{}) {
	b.violations = append(b.violations, fmt.Sprintf(format, args...))
}

// Violations returns every misuse recorded so far.
func (b *Backend) Violations() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.violations...)
}

func (b *Backend) create(kind Kind, name string) (metadata.Handle, *object, error) {
	if err, ok := b.failOn[kind]; ok {
		delete(b.failOn, kind)
		return metadata.NullHandle, nil, err
	}
	b.next++
	o := &object{kind: kind, name: name, live: true}
	b.objects[b.next] = o
	b.created[kind]++
	return b.next, o, nil
}

func (b *Backend) lookup(h metadata.Handle, kind Kind) *object {
	o, ok := b.objects[h]
	if !ok {
		b.violation("use of unknown %s handle %d", kind, h)
		return nil
	}
	if o.kind != kind {
		b.violation("handle %d is a %s, not a %s", h, o.kind, kind)
		return nil
	}
	if !o.live {
		b.violation("use of destroyed %s `%s` (%d)", kind, o.name, h)
		return nil
	}
	return o
}

func (b *Backend) destroy(h metadata.Handle, kind Kind) *object {
	if h.IsNull() {
		return nil
	}
	o, ok := b.objects[h]
	if !ok || o.kind != kind {
		b.violation("destroy of unknown %s handle %d", kind, h)
		return nil
	}
	if !o.live {
		b.violation("double destroy of %s `%s` (%d)", kind, o.name, h)
		return nil
	}
	if o.inFlight != metadata.NullHandle && b.isPending(o.inFlight) {
		b.violation("destroy of %s `%s` still in use by the GPU", kind, o.name)
	}
	o.live = false
	b.destroyed[kind]++
	return o
}

func (b *Backend) isPending(fence metadata.Handle) bool {
	f, ok := b.objects[fence]
	return ok && !f.signaled && len(f.pending) > 0
}

// Created returns how many objects of `kind` were ever created.
func (b *Backend) Created(kind Kind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.created[kind]
}

// Destroyed returns how many objects of `kind` were destroyed.
func (b *Backend) Destroyed(kind Kind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.destroyed[kind]
}

// LiveCount returns how many objects of `kind` are alive.
func (b *Backend) LiveCount(kind Kind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, o := range b.objects {
		if o.kind == kind && o.live {
			n++
		}
	}
	return n
}

// Leaks lists every live object except swapchain images.
func (b *Backend) Leaks() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for h, o := range b.objects {
		if o.live && o.kind != KindSwapchainImage {
			out = append(out, fmt.Sprintf("%s `%s` (%d)", o.kind, o.name, h))
		}
	}
	sort.Strings(out)
	return out
}

// IsLive reports whether the handle refers to a live object.
func (b *Backend) IsLive(h metadata.Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.objects[h]
	return ok && o.live
}

// Name returns the debug name the object was created with.
func (b *Backend) Name(h metadata.Handle) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.objects[h]; ok {
		return o.name
	}
	return ""
}

// Config returns the configuration an object was created with.
func (b *Backend) Config(h metadata.Handle) interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.objects[h]; ok {
		return o.config
	}
	return nil
}

// Handles returns the live handles of `kind` in creation order.
func (b *Backend) Handles(kind Kind) []metadata.Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []metadata.Handle
	for h, o := range b.objects {
		if o.kind == kind && o.live {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// BufferData returns a copy of a buffer's contents.
func (b *Backend) BufferData(h metadata.Handle) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.objects[h]; ok {
		return append([]byte(nil), o.data...)
	}
	return nil
}

// Commands returns the commands recorded into a command buffer since its
// last begin.
func (b *Backend) Commands(cmd metadata.Handle) []Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.objects[cmd]; ok {
		return append([]Command(nil), o.commands...)
	}
	return nil
}

// Submits returns every queue submission, one-time submissions excluded.
func (b *Backend) Submits() []metadata.SubmitInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]metadata.SubmitInfo(nil), b.submits...)
}

func (b *Backend) WaitIdleCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.waitIdleCalls
}

// DeviceContext

func (b *Backend) WaitIdle() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.waitIdleCalls++
	if b.DeviceLost {
		return core.ErrDeviceLost
	}
	for h, o := range b.objects {
		if o.kind == KindFence && len(o.pending) > 0 {
			b.complete(h, o)
		}
	}
	return nil
}

func (b *Backend) DepthFormat() metadata.Format { return b.Depth }

func (b *Backend) IsDeviceLost() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.DeviceLost
}

// ResourceAllocator

func (b *Backend) CreateImage(config metadata.ImageConfig) (metadata.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, o, err := b.create(KindImage, config.Name)
	if err != nil {
		return h, err
	}
	o.config = config
	return h, nil
}

func (b *Backend) DestroyImage(image metadata.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroy(image, KindImage)
}

// ImageConfig returns the configuration of a live or destroyed image.
func (b *Backend) ImageConfig(image metadata.Handle) (metadata.ImageConfig, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.objects[image]
	if !ok {
		return metadata.ImageConfig{}, false
	}
	cfg, ok := o.config.(metadata.ImageConfig)
	return cfg, ok
}

func (b *Backend) CreateBuffer(config metadata.BufferConfig) (metadata.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, o, err := b.create(KindBuffer, config.Name)
	if err != nil {
		return h, err
	}
	o.config = config
	o.data = make([]byte, config.Size)
	return h, nil
}

func (b *Backend) DestroyBuffer(buffer metadata.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroy(buffer, KindBuffer)
}

func (b *Backend) WriteBuffer(buffer metadata.Handle, offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	o := b.lookup(buffer, KindBuffer)
	if o == nil {
		return fmt.Errorf("invalid buffer %d", buffer)
	}
	if cfg, ok := o.config.(metadata.BufferConfig); ok && !cfg.Memory.IsHostVisible() {
		return fmt.Errorf("buffer `%s` is not host visible", o.name)
	}
	if offset+uint64(len(data)) > uint64(len(o.data)) {
		return fmt.Errorf("write out of range for buffer `%s`", o.name)
	}
	if o.inFlight != metadata.NullHandle && b.isPending(o.inFlight) {
		b.violation("write to buffer `%s` while the GPU may still read it", o.name)
	}
	copy(o.data[offset:], data)
	return nil
}

func (b *Backend) ReadBuffer(buffer metadata.Handle, offset, size uint64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o := b.lookup(buffer, KindBuffer)
	if o == nil {
		return nil, fmt.Errorf("invalid buffer %d", buffer)
	}
	if offset+size > uint64(len(o.data)) {
		return nil, fmt.Errorf("read out of range for buffer `%s`", o.name)
	}
	return append([]byte(nil), o.data[offset:offset+size]...), nil
}

func (b *Backend) CreateSampler(config metadata.SamplerConfig) (metadata.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, o, err := b.create(KindSampler, config.Name)
	if err != nil {
		return h, err
	}
	o.config = config
	return h, nil
}

func (b *Backend) DestroySampler(sampler metadata.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroy(sampler, KindSampler)
}

func (b *Backend) CreateShaderModule(name string, code []uint32) (metadata.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(code) == 0 {
		return metadata.NullHandle, core.ErrInvalidSPIRV
	}
	h, _, err := b.create(KindShaderModule, name)
	return h, err
}

func (b *Backend) DestroyShaderModule(module metadata.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroy(module, KindShaderModule)
}

// PassObjects

func (b *Backend) CreateRenderPass(config metadata.RenderPassConfig) (metadata.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(config.Subpasses) == 0 {
		return metadata.NullHandle, fmt.Errorf("render pass `%s` has no subpass", config.Name)
	}
	h, o, err := b.create(KindRenderPass, config.Name)
	if err != nil {
		return h, err
	}
	o.config = config
	return h, nil
}

func (b *Backend) DestroyRenderPass(pass metadata.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroy(pass, KindRenderPass)
}

func (b *Backend) CreateFramebuffer(config metadata.FramebufferConfig) (metadata.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rp := b.lookup(config.RenderPass, KindRenderPass)
	if rp == nil {
		return metadata.NullHandle, fmt.Errorf("framebuffer `%s`: invalid render pass", config.Name)
	}
	if rpc, ok := rp.config.(metadata.RenderPassConfig); ok && len(rpc.Attachments) != len(config.Attachments) {
		b.violation("framebuffer `%s` has %d attachments, render pass `%s` expects %d", config.Name, len(config.Attachments), rp.name, len(rpc.Attachments))
	}
	for _, a := range config.Attachments {
		o, ok := b.objects[a]
		if !ok || !o.live || (o.kind != KindImage && o.kind != KindSwapchainImage) {
			b.violation("framebuffer `%s` references an invalid image %d", config.Name, a)
			return metadata.NullHandle, fmt.Errorf("framebuffer `%s`: invalid attachment", config.Name)
		}
	}
	h, o, err := b.create(KindFramebuffer, config.Name)
	if err != nil {
		return h, err
	}
	o.config = config
	return h, nil
}

func (b *Backend) DestroyFramebuffer(framebuffer metadata.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroy(framebuffer, KindFramebuffer)
}

func (b *Backend) CreateDescriptorSetLayout(config metadata.DescriptorSetLayoutConfig) (metadata.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, o, err := b.create(KindDescriptorSetLayout, config.Name)
	if err != nil {
		return h, err
	}
	o.config = config
	return h, nil
}

func (b *Backend) DestroyDescriptorSetLayout(layout metadata.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroy(layout, KindDescriptorSetLayout)
}

func (b *Backend) CreateDescriptorPool(config metadata.DescriptorPoolConfig) (metadata.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, o, err := b.create(KindDescriptorPool, config.Name)
	if err != nil {
		return h, err
	}
	o.config = config
	return h, nil
}

func (b *Backend) DestroyDescriptorPool(pool metadata.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o := b.destroy(pool, KindDescriptorPool)
	if o == nil {
		return
	}
	for _, s := range o.sets {
		if so, ok := b.objects[s]; ok && so.live {
			so.live = false
			b.destroyed[KindDescriptorSet]++
		}
	}
}

func (b *Backend) AllocateDescriptorSets(pool metadata.Handle, layouts []metadata.Handle) ([]metadata.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.lookup(pool, KindDescriptorPool)
	if p == nil {
		return nil, fmt.Errorf("invalid descriptor pool %d", pool)
	}
	cfg := p.config.(metadata.DescriptorPoolConfig)
	if uint32(len(p.sets)+len(layouts)) > cfg.MaxSets {
		return nil, fmt.Errorf("descriptor pool `%s` exhausted", p.name)
	}
	sets := make([]metadata.Handle, 0, len(layouts))
	for _, l := range layouts {
		if b.lookup(l, KindDescriptorSetLayout) == nil {
			return nil, fmt.Errorf("invalid descriptor set layout %d", l)
		}
		h, o, err := b.create(KindDescriptorSet, p.name+"_set")
		if err != nil {
			return nil, err
		}
		o.pool = pool
		o.config = l
		o.bindings = make(map[uint32]metadata.Handle)
		p.sets = append(p.sets, h)
		sets = append(sets, h)
	}
	return sets, nil
}

func (b *Backend) UpdateDescriptorSets(writes []metadata.DescriptorWrite) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, w := range writes {
		s := b.lookup(w.Set, KindDescriptorSet)
		if s == nil {
			return fmt.Errorf("invalid descriptor set %d", w.Set)
		}
		if w.Type.IsBuffer() {
			if b.lookup(w.Buffer, KindBuffer) == nil {
				return fmt.Errorf("descriptor write references an invalid buffer %d", w.Buffer)
			}
			s.bindings[w.Binding] = w.Buffer
			continue
		}
		img, ok := b.objects[w.Image]
		if !ok || !img.live || (img.kind != KindImage && img.kind != KindSwapchainImage) {
			b.violation("descriptor write references an invalid image %d", w.Image)
			return fmt.Errorf("descriptor write references an invalid image %d", w.Image)
		}
		if !w.Sampler.IsNull() && b.lookup(w.Sampler, KindSampler) == nil {
			return fmt.Errorf("descriptor write references an invalid sampler %d", w.Sampler)
		}
		s.bindings[w.Binding] = w.Image
	}
	return nil
}

// SetBinding returns the resource a descriptor set binding points at.
func (b *Backend) SetBinding(set metadata.Handle, binding uint32) metadata.Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.objects[set]; ok && o.bindings != nil {
		return o.bindings[binding]
	}
	return metadata.NullHandle
}

func (b *Backend) CreatePipelineLayout(config metadata.PipelineLayoutConfig) (metadata.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, l := range config.SetLayouts {
		if b.lookup(l, KindDescriptorSetLayout) == nil {
			return metadata.NullHandle, fmt.Errorf("pipeline layout `%s`: invalid set layout", config.Name)
		}
	}
	h, o, err := b.create(KindPipelineLayout, config.Name)
	if err != nil {
		return h, err
	}
	o.config = config
	return h, nil
}

func (b *Backend) DestroyPipelineLayout(layout metadata.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroy(layout, KindPipelineLayout)
}

func (b *Backend) CreateGraphicsPipeline(config metadata.PipelineConfig) (metadata.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lookup(config.RenderPass, KindRenderPass) == nil ||
		b.lookup(config.Layout, KindPipelineLayout) == nil ||
		b.lookup(config.VertexShader, KindShaderModule) == nil ||
		b.lookup(config.FragmentShader, KindShaderModule) == nil {
		return metadata.NullHandle, fmt.Errorf("pipeline `%s`: invalid dependency", config.Name)
	}
	h, o, err := b.create(KindPipeline, config.Name)
	if err != nil {
		return h, err
	}
	o.config = config
	return h, nil
}

func (b *Backend) DestroyPipeline(pipeline metadata.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroy(pipeline, KindPipeline)
}

// Synchronizer

func (b *Backend) CreateSemaphore() (metadata.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, _, err := b.create(KindSemaphore, "semaphore")
	return h, err
}

func (b *Backend) DestroySemaphore(semaphore metadata.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroy(semaphore, KindSemaphore)
}

func (b *Backend) CreateFence(signaled bool) (metadata.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, o, err := b.create(KindFence, "fence")
	if err != nil {
		return h, err
	}
	o.signaled = signaled
	return h, nil
}

func (b *Backend) DestroyFence(fence metadata.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroy(fence, KindFence)
}

// complete finishes the fake GPU work guarded by a fence.
func (b *Backend) complete(h metadata.Handle, fence *object) {
	for _, p := range fence.pending {
		if o, ok := b.objects[p]; ok && o.inFlight == h {
			o.inFlight = metadata.NullHandle
			if o.kind == KindCommandBuffer && o.state == metadata.COMMAND_BUFFER_STATE_SUBMITTED {
				o.state = metadata.COMMAND_BUFFER_STATE_RECORDING_ENDED
			}
		}
	}
	fence.pending = nil
	fence.signaled = true
}

func (b *Backend) WaitForFence(fence metadata.Handle, timeout time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.lookup(fence, KindFence)
	if f == nil {
		return fmt.Errorf("invalid fence %d", fence)
	}
	if b.DeviceLost {
		return core.ErrDeviceLost
	}
	if f.signaled {
		return nil
	}
	if b.HangFences || len(f.pending) == 0 {
		// an unsignaled fence without submitted work never signals
		return core.ErrFenceTimeout
	}
	b.complete(fence, f)
	return nil
}

// IsSignaled reports the fence state without waiting.
func (b *Backend) IsSignaled(fence metadata.Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if f, ok := b.objects[fence]; ok {
		return f.signaled
	}
	return false
}

func (b *Backend) ResetFence(fence metadata.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.lookup(fence, KindFence)
	if f == nil {
		return fmt.Errorf("invalid fence %d", fence)
	}
	if len(f.pending) > 0 {
		b.violation("reset of fence %d with pending work", fence)
	}
	f.signaled = false
	return nil
}

// referenced collects the buffers read by the descriptor sets bound in a
// command buffer.
func (b *Backend) referenced(cmd *object) []metadata.Handle {
	var out []metadata.Handle
	for _, c := range cmd.commands {
		if c.Op != "bind_descriptor_sets" {
			continue
		}
		for _, s := range c.Handles[1:] {
			so, ok := b.objects[s]
			if !ok {
				continue
			}
			for _, res := range so.bindings {
				if ro, ok := b.objects[res]; ok && ro.kind == KindBuffer {
					out = append(out, res)
				}
			}
		}
	}
	return out
}

func (b *Backend) execute(cmd *object) {
	for _, c := range cmd.commands {
		switch c.Op {
		case "copy_buffer":
			src, dst := b.objects[c.Handles[0]], b.objects[c.Handles[1]]
			for i := 0; i+2 < len(c.Values); i += 3 {
				so, do, size := c.Values[i], c.Values[i+1], c.Values[i+2]
				copy(dst.data[do:do+size], src.data[so:so+size])
			}
		case "copy_buffer_to_image":
			src, dst := b.objects[c.Handles[0]], b.objects[c.Handles[1]]
			dst.data = append([]byte(nil), src.data...)
		case "copy_image_to_buffer":
			src, dst := b.objects[c.Handles[0]], b.objects[c.Handles[1]]
			copy(dst.data, src.data)
		}
	}
}

func (b *Backend) Submit(info metadata.SubmitInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.DeviceLost {
		return core.ErrDeviceLost
	}
	if len(info.WaitSemaphores) != len(info.WaitStages) {
		return fmt.Errorf("submit: %d wait semaphores with %d wait stages", len(info.WaitSemaphores), len(info.WaitStages))
	}
	var fence *object
	if !info.Fence.IsNull() {
		fence = b.lookup(info.Fence, KindFence)
		if fence == nil {
			return fmt.Errorf("submit: invalid fence")
		}
		if fence.signaled {
			b.violation("submit with fence %d still signaled", info.Fence)
		}
	}
	for _, s := range append(append([]metadata.Handle(nil), info.WaitSemaphores...), info.SignalSemaphores...) {
		if b.lookup(s, KindSemaphore) == nil {
			return fmt.Errorf("submit: invalid semaphore")
		}
	}
	for _, h := range info.CommandBuffers {
		cmd := b.lookup(h, KindCommandBuffer)
		if cmd == nil {
			return fmt.Errorf("submit: invalid command buffer")
		}
		if cmd.state != metadata.COMMAND_BUFFER_STATE_RECORDING_ENDED {
			b.violation("submit of command buffer %d in state %d", h, cmd.state)
		}
		b.execute(cmd)
		cmd.state = metadata.COMMAND_BUFFER_STATE_SUBMITTED
		if fence != nil {
			cmd.inFlight = info.Fence
			fence.pending = append(fence.pending, h)
			for _, buf := range b.referenced(cmd) {
				b.objects[buf].inFlight = info.Fence
				fence.pending = append(fence.pending, buf)
			}
		}
	}
	b.submits = append(b.submits, info)
	return nil
}

func (b *Backend) SubmitAndWait(cmdHandle metadata.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.DeviceLost {
		return core.ErrDeviceLost
	}
	cmd := b.lookup(cmdHandle, KindCommandBuffer)
	if cmd == nil {
		return fmt.Errorf("submit: invalid command buffer")
	}
	if cmd.state != metadata.COMMAND_BUFFER_STATE_RECORDING_ENDED {
		b.violation("submit of command buffer %d in state %d", cmdHandle, cmd.state)
	}
	b.execute(cmd)
	return nil
}

// MarkDeviceLost simulates a lost device from now on.
func (b *Backend) MarkDeviceLost() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.DeviceLost = true
}

func (b *Backend) registerExternal(kind Kind, name string, config interface{}) metadata.Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.objects[b.next] = &object{kind: kind, name: name, live: true, config: config}
	b.created[kind]++
	return b.next
}

func (b *Backend) releaseExternal(h metadata.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.objects[h]; ok && o.live {
		o.live = false
		b.destroyed[o.kind]++
	}
}
