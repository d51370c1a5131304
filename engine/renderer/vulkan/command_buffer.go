package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
)

func (b *Backend) AllocateCommandBuffers(count uint32) ([]metadata.Handle, error) {
	if count == 0 {
		return nil, nil
	}
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        b.context.Device.GraphicsCommandPool,
		CommandBufferCount: count,
		Level:              vk.CommandBufferLevelPrimary,
	}
	buffers := make([]vk.CommandBuffer, count)
	if err := b.context.lockPool.SafeCall(CommandBufferManagement, func() error {
		return b.check("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(b.device(), &allocateInfo, buffers))
	}); err != nil {
		return nil, err
	}

	handles := make([]metadata.Handle, count)
	for i, buffer := range buffers {
		handles[i] = b.objects.insert(&VulkanCommandBuffer{
			Handle: buffer,
			State:  metadata.COMMAND_BUFFER_STATE_READY,
		})
	}
	return handles, nil
}

func (b *Backend) FreeCommandBuffers(buffers []metadata.Handle) {
	vkBuffers := make([]vk.CommandBuffer, 0, len(buffers))
	for _, handle := range buffers {
		if cb, ok := take[*VulkanCommandBuffer](b.objects, handle); ok {
			vkBuffers = append(vkBuffers, cb.Handle)
			cb.State = metadata.COMMAND_BUFFER_STATE_NOT_ALLOCATED
		}
	}
	if len(vkBuffers) == 0 {
		return
	}
	_ = b.context.lockPool.SafeCall(CommandBufferManagement, func() error {
		vk.FreeCommandBuffers(b.device(), b.context.Device.GraphicsCommandPool, uint32(len(vkBuffers)), vkBuffers)
		return nil
	})
}

func (b *Backend) commandBuffer(cmd metadata.Handle) *VulkanCommandBuffer {
	cb, err := lookup[*VulkanCommandBuffer](b.objects, cmd)
	if err != nil {
		core.LogError("recording into command buffer: %s", err)
		return nil
	}
	return cb
}

func (b *Backend) BeginCommandBuffer(cmd metadata.Handle, oneTimeSubmit bool) error {
	cb, err := lookup[*VulkanCommandBuffer](b.objects, cmd)
	if err != nil {
		return err
	}
	beginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if oneTimeSubmit {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if err := b.check("vkBeginCommandBuffer", vk.BeginCommandBuffer(cb.Handle, beginInfo)); err != nil {
		return err
	}
	cb.State = metadata.COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (b *Backend) EndCommandBuffer(cmd metadata.Handle) error {
	cb, err := lookup[*VulkanCommandBuffer](b.objects, cmd)
	if err != nil {
		return err
	}
	if cb.State != metadata.COMMAND_BUFFER_STATE_RECORDING {
		return fmt.Errorf("command buffer %d is not recording", cmd)
	}
	if err := b.check("vkEndCommandBuffer", vk.EndCommandBuffer(cb.Handle)); err != nil {
		return err
	}
	cb.State = metadata.COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (b *Backend) ResetCommandBuffer(cmd metadata.Handle) error {
	cb, err := lookup[*VulkanCommandBuffer](b.objects, cmd)
	if err != nil {
		return err
	}
	if err := b.check("vkResetCommandBuffer", vk.ResetCommandBuffer(cb.Handle, 0)); err != nil {
		return err
	}
	cb.State = metadata.COMMAND_BUFFER_STATE_READY
	return nil
}

func (b *Backend) CmdBeginRenderPass(cmd metadata.Handle, info metadata.RenderPassBeginInfo) {
	cb := b.commandBuffer(cmd)
	renderPass, err := lookup[vk.RenderPass](b.objects, info.RenderPass)
	if cb == nil || err != nil {
		core.LogError("CmdBeginRenderPass: invalid render pass %d", info.RenderPass)
		return
	}
	framebuffer, err := lookup[vk.Framebuffer](b.objects, info.Framebuffer)
	if err != nil {
		core.LogError("CmdBeginRenderPass: %s", err)
		return
	}

	clearValues := make([]vk.ClearValue, len(info.ClearValues))
	for i, value := range info.ClearValues {
		if value.IsDepth {
			clearValues[i].SetDepthStencil(value.Depth, value.Stencil)
		} else {
			clearValues[i].SetColor(value.Color[:])
		}
	}

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  renderPass,
		Framebuffer: framebuffer,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: info.Extent.Width, Height: info.Extent.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(cb.Handle, &beginInfo, vk.SubpassContentsInline)
	cb.State = metadata.COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (b *Backend) CmdEndRenderPass(cmd metadata.Handle) {
	if cb := b.commandBuffer(cmd); cb != nil {
		vk.CmdEndRenderPass(cb.Handle)
		cb.State = metadata.COMMAND_BUFFER_STATE_RECORDING
	}
}

func (b *Backend) CmdBindPipeline(cmd, pipeline metadata.Handle) {
	cb := b.commandBuffer(cmd)
	p, err := lookup[vk.Pipeline](b.objects, pipeline)
	if cb == nil || err != nil {
		core.LogError("CmdBindPipeline: invalid pipeline %d", pipeline)
		return
	}
	vk.CmdBindPipeline(cb.Handle, vk.PipelineBindPointGraphics, p)
}

func (b *Backend) CmdBindDescriptorSets(cmd, layout metadata.Handle, firstSet uint32, sets []metadata.Handle) {
	cb := b.commandBuffer(cmd)
	l, err := lookup[vk.PipelineLayout](b.objects, layout)
	if cb == nil || err != nil {
		core.LogError("CmdBindDescriptorSets: invalid layout %d", layout)
		return
	}
	vkSets := make([]vk.DescriptorSet, len(sets))
	for i, set := range sets {
		s, err := lookup[vk.DescriptorSet](b.objects, set)
		if err != nil {
			core.LogError("CmdBindDescriptorSets: %s", err)
			return
		}
		vkSets[i] = s
	}
	vk.CmdBindDescriptorSets(cb.Handle, vk.PipelineBindPointGraphics, l, firstSet, uint32(len(vkSets)), vkSets, 0, nil)
}

func (b *Backend) CmdBindVertexBuffer(cmd, buffer metadata.Handle, offset uint64) {
	cb := b.commandBuffer(cmd)
	buf, err := lookup[*VulkanBuffer](b.objects, buffer)
	if cb == nil || err != nil {
		core.LogError("CmdBindVertexBuffer: invalid buffer %d", buffer)
		return
	}
	vk.CmdBindVertexBuffers(cb.Handle, 0, 1, []vk.Buffer{buf.Handle}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

func (b *Backend) CmdBindIndexBuffer(cmd, buffer metadata.Handle, offset uint64, indexType metadata.IndexType) {
	cb := b.commandBuffer(cmd)
	buf, err := lookup[*VulkanBuffer](b.objects, buffer)
	if cb == nil || err != nil {
		core.LogError("CmdBindIndexBuffer: invalid buffer %d", buffer)
		return
	}
	vk.CmdBindIndexBuffer(cb.Handle, buf.Handle, vk.DeviceSize(offset), vulkanIndexType(indexType))
}

func (b *Backend) CmdDraw(cmd metadata.Handle, vertexCount, firstInstance uint32) {
	if cb := b.commandBuffer(cmd); cb != nil {
		vk.CmdDraw(cb.Handle, vertexCount, 1, 0, firstInstance)
	}
}

func (b *Backend) CmdDrawIndexed(cmd metadata.Handle, indexCount, firstInstance uint32) {
	if cb := b.commandBuffer(cmd); cb != nil {
		vk.CmdDrawIndexed(cb.Handle, indexCount, 1, 0, 0, firstInstance)
	}
}

func (b *Backend) CmdCopyBuffer(cmd, src, dst metadata.Handle, regions []metadata.BufferCopy) {
	cb := b.commandBuffer(cmd)
	srcBuf, err1 := lookup[*VulkanBuffer](b.objects, src)
	dstBuf, err2 := lookup[*VulkanBuffer](b.objects, dst)
	if cb == nil || err1 != nil || err2 != nil {
		core.LogError("CmdCopyBuffer: invalid buffers %d -> %d", src, dst)
		return
	}
	vkRegions := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		vkRegions[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	vk.CmdCopyBuffer(cb.Handle, srcBuf.Handle, dstBuf.Handle, uint32(len(vkRegions)), vkRegions)
}

func bufferImageCopy(aspect vk.ImageAspectFlags, width, height uint32) vk.BufferImageCopy {
	return vk.BufferImageCopy{
		BufferOffset:      0,
		BufferRowLength:   0,
		BufferImageHeight: 0,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     aspect,
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		ImageOffset: vk.Offset3D{X: 0, Y: 0, Z: 0},
		ImageExtent: vk.Extent3D{Width: width, Height: height, Depth: 1},
	}
}

// CmdCopyBufferToImage expects dst in TRANSFER_DST_OPTIMAL.
func (b *Backend) CmdCopyBufferToImage(cmd, src, dst metadata.Handle, width, height uint32) {
	cb := b.commandBuffer(cmd)
	buf, err1 := lookup[*VulkanBuffer](b.objects, src)
	img, err2 := lookup[*VulkanImage](b.objects, dst)
	if cb == nil || err1 != nil || err2 != nil {
		core.LogError("CmdCopyBufferToImage: invalid objects %d -> %d", src, dst)
		return
	}
	region := bufferImageCopy(vk.ImageAspectFlags(vk.ImageAspectColorBit), width, height)
	vk.CmdCopyBufferToImage(cb.Handle, buf.Handle, img.Handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}

// CmdCopyImageToBuffer expects src in TRANSFER_SRC_OPTIMAL.
func (b *Backend) CmdCopyImageToBuffer(cmd, src, dst metadata.Handle, width, height uint32) {
	cb := b.commandBuffer(cmd)
	img, err1 := lookup[*VulkanImage](b.objects, src)
	buf, err2 := lookup[*VulkanBuffer](b.objects, dst)
	if cb == nil || err1 != nil || err2 != nil {
		core.LogError("CmdCopyImageToBuffer: invalid objects %d -> %d", src, dst)
		return
	}
	region := bufferImageCopy(vk.ImageAspectFlags(vk.ImageAspectColorBit), width, height)
	vk.CmdCopyImageToBuffer(cb.Handle, img.Handle, vk.ImageLayoutTransferSrcOptimal, buf.Handle, 1, []vk.BufferImageCopy{region})
}

func (b *Backend) CmdPipelineBarrier(cmd metadata.Handle, barrier metadata.ImageBarrier) {
	cb := b.commandBuffer(cmd)
	img, err := lookup[*VulkanImage](b.objects, barrier.Image)
	if cb == nil || err != nil {
		core.LogError("CmdPipelineBarrier: invalid image %d", barrier.Image)
		return
	}
	aspect := vulkanAspect(barrier.Aspect)
	if aspect == 0 {
		aspect = img.Aspect
	}
	imageBarrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           vulkanImageLayout(barrier.OldLayout),
		NewLayout:           vulkanImageLayout(barrier.NewLayout),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img.Handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		SrcAccessMask: vulkanAccess(barrier.SrcAccess),
		DstAccessMask: vulkanAccess(barrier.DstAccess),
	}
	srcStage := vulkanStages(barrier.SrcStage)
	if srcStage == 0 {
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	dstStage := vulkanStages(barrier.DstStage)
	if dstStage == 0 {
		dstStage = vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	}
	vk.CmdPipelineBarrier(cb.Handle, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{imageBarrier})
}
