package rendertest

import (
	"fmt"

	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
)

func (b *Backend) AllocateCommandBuffers(count uint32) ([]metadata.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]metadata.Handle, 0, count)
	for i := uint32(0); i < count; i++ {
		h, o, err := b.create(KindCommandBuffer, "command_buffer")
		if err != nil {
			for _, done := range out {
				b.destroy(done, KindCommandBuffer)
			}
			return nil, err
		}
		o.state = metadata.COMMAND_BUFFER_STATE_READY
		out = append(out, h)
	}
	return out, nil
}

func (b *Backend) FreeCommandBuffers(buffers []metadata.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, h := range buffers {
		b.destroy(h, KindCommandBuffer)
	}
}

func (b *Backend) checkNotPending(h metadata.Handle, o *object, action string) {
	if o.inFlight != metadata.NullHandle && b.isPending(o.inFlight) {
		b.violation("%s of command buffer %d while the GPU may still execute it", action, h)
	}
}

func (b *Backend) BeginCommandBuffer(cmd metadata.Handle, oneTimeSubmit bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	o := b.lookup(cmd, KindCommandBuffer)
	if o == nil {
		return fmt.Errorf("invalid command buffer %d", cmd)
	}
	b.checkNotPending(cmd, o, "begin")
	if o.state == metadata.COMMAND_BUFFER_STATE_RECORDING || o.state == metadata.COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		return fmt.Errorf("command buffer %d is already recording", cmd)
	}
	o.commands = nil
	o.state = metadata.COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (b *Backend) EndCommandBuffer(cmd metadata.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	o := b.lookup(cmd, KindCommandBuffer)
	if o == nil {
		return fmt.Errorf("invalid command buffer %d", cmd)
	}
	if o.state == metadata.COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		b.violation("end of command buffer %d inside a render pass", cmd)
	}
	if o.state != metadata.COMMAND_BUFFER_STATE_RECORDING && o.state != metadata.COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		return fmt.Errorf("command buffer %d is not recording", cmd)
	}
	o.state = metadata.COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (b *Backend) ResetCommandBuffer(cmd metadata.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	o := b.lookup(cmd, KindCommandBuffer)
	if o == nil {
		return fmt.Errorf("invalid command buffer %d", cmd)
	}
	b.checkNotPending(cmd, o, "reset")
	o.commands = nil
	o.state = metadata.COMMAND_BUFFER_STATE_READY
	return nil
}

func (b *Backend) record(cmd metadata.Handle, c Command) *object {
	o := b.lookup(cmd, KindCommandBuffer)
	if o == nil {
		return nil
	}
	if o.state != metadata.COMMAND_BUFFER_STATE_RECORDING && o.state != metadata.COMMAND_BUFFER_STATE_IN_RENDER_PASS {
		b.violation("`%s` recorded into command buffer %d outside of recording", c.Op, cmd)
	}
	o.commands = append(o.commands, c)
	return o
}

func (b *Backend) CmdBeginRenderPass(cmd metadata.Handle, info metadata.RenderPassBeginInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lookup(info.RenderPass, KindRenderPass) == nil || b.lookup(info.Framebuffer, KindFramebuffer) == nil {
		return
	}
	o := b.record(cmd, Command{Op: "begin_render_pass", Handles: []metadata.Handle{info.RenderPass, info.Framebuffer}, Values: []uint32{info.Extent.Width, info.Extent.Height}})
	if o != nil {
		if o.state == metadata.COMMAND_BUFFER_STATE_IN_RENDER_PASS {
			b.violation("nested render pass in command buffer %d", cmd)
		}
		o.state = metadata.COMMAND_BUFFER_STATE_IN_RENDER_PASS
	}
}

func (b *Backend) CmdEndRenderPass(cmd metadata.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o := b.record(cmd, Command{Op: "end_render_pass"})
	if o != nil {
		if o.state != metadata.COMMAND_BUFFER_STATE_IN_RENDER_PASS {
			b.violation("end of render pass outside a render pass in command buffer %d", cmd)
		}
		o.state = metadata.COMMAND_BUFFER_STATE_RECORDING
	}
}

func (b *Backend) CmdBindPipeline(cmd, pipeline metadata.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lookup(pipeline, KindPipeline)
	b.record(cmd, Command{Op: "bind_pipeline", Handles: []metadata.Handle{pipeline}})
}

func (b *Backend) CmdBindDescriptorSets(cmd, layout metadata.Handle, firstSet uint32, sets []metadata.Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lookup(layout, KindPipelineLayout)
	for _, s := range sets {
		b.lookup(s, KindDescriptorSet)
	}
	handles := append([]metadata.Handle{layout}, sets...)
	b.record(cmd, Command{Op: "bind_descriptor_sets", Handles: handles, Values: []uint32{firstSet}})
}

func (b *Backend) CmdBindVertexBuffer(cmd, buffer metadata.Handle, offset uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lookup(buffer, KindBuffer)
	b.record(cmd, Command{Op: "bind_vertex_buffer", Handles: []metadata.Handle{buffer}, Values: []uint32{uint32(offset)}})
}

func (b *Backend) CmdBindIndexBuffer(cmd, buffer metadata.Handle, offset uint64, indexType metadata.IndexType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lookup(buffer, KindBuffer)
	b.record(cmd, Command{Op: "bind_index_buffer", Handles: []metadata.Handle{buffer}, Values: []uint32{uint32(offset), uint32(indexType)}})
}

func (b *Backend) CmdDraw(cmd metadata.Handle, vertexCount, firstInstance uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(cmd, Command{Op: "draw", Values: []uint32{vertexCount, firstInstance}})
}

func (b *Backend) CmdDrawIndexed(cmd metadata.Handle, indexCount, firstInstance uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(cmd, Command{Op: "draw_indexed", Values: []uint32{indexCount, firstInstance}})
}

func (b *Backend) CmdCopyBuffer(cmd, src, dst metadata.Handle, regions []metadata.BufferCopy) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lookup(src, KindBuffer)
	b.lookup(dst, KindBuffer)
	values := make([]uint32, 0, len(regions)*3)
	for _, r := range regions {
		values = append(values, uint32(r.SrcOffset), uint32(r.DstOffset), uint32(r.Size))
	}
	b.record(cmd, Command{Op: "copy_buffer", Handles: []metadata.Handle{src, dst}, Values: values})
}

func (b *Backend) CmdCopyBufferToImage(cmd, src, dst metadata.Handle, width, height uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lookup(src, KindBuffer)
	b.record(cmd, Command{Op: "copy_buffer_to_image", Handles: []metadata.Handle{src, dst}, Values: []uint32{width, height}})
}

func (b *Backend) CmdCopyImageToBuffer(cmd, src, dst metadata.Handle, width, height uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lookup(dst, KindBuffer)
	b.record(cmd, Command{Op: "copy_image_to_buffer", Handles: []metadata.Handle{src, dst}, Values: []uint32{width, height}})
}

func (b *Backend) CmdPipelineBarrier(cmd metadata.Handle, barrier metadata.ImageBarrier) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(cmd, Command{Op: "pipeline_barrier", Handles: []metadata.Handle{barrier.Image}, Values: []uint32{uint32(barrier.OldLayout), uint32(barrier.NewLayout)}})
}

// SetImageData fills an image's fake contents, used by readback tests.
func (b *Backend) SetImageData(image metadata.Handle, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.objects[image]; ok {
		o.data = append([]byte(nil), data...)
	}
}
