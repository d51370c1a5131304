package vulkan

import (
	"fmt"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
)

func (b *Backend) CreateSemaphore() (metadata.Handle, error) {
	createInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var semaphore vk.Semaphore
	if err := b.check("vkCreateSemaphore", vk.CreateSemaphore(b.device(), &createInfo, b.context.Allocator, &semaphore)); err != nil {
		return metadata.NullHandle, err
	}
	return b.objects.insert(semaphore), nil
}

func (b *Backend) DestroySemaphore(semaphore metadata.Handle) {
	if s, ok := take[vk.Semaphore](b.objects, semaphore); ok {
		vk.DestroySemaphore(b.device(), s, b.context.Allocator)
	}
}

func (b *Backend) CreateFence(signaled bool) (metadata.Handle, error) {
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if err := b.check("vkCreateFence", vk.CreateFence(b.device(), &fenceCreateInfo, b.context.Allocator, &fence)); err != nil {
		return metadata.NullHandle, err
	}
	return b.objects.insert(fence), nil
}

func (b *Backend) DestroyFence(fence metadata.Handle) {
	if f, ok := take[vk.Fence](b.objects, fence); ok {
		vk.DestroyFence(b.device(), f, b.context.Allocator)
	}
}

func (b *Backend) WaitForFence(fence metadata.Handle, timeout time.Duration) error {
	if b.IsDeviceLost() {
		return core.ErrDeviceLost
	}
	f, err := lookup[vk.Fence](b.objects, fence)
	if err != nil {
		return err
	}
	result := vk.WaitForFences(b.device(), 1, []vk.Fence{f}, vk.True, uint64(timeout.Nanoseconds()))
	switch result {
	case vk.Success:
		return nil
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out")
		return fmt.Errorf("fence %d after %s: %w", fence, timeout, core.ErrFenceTimeout)
	}
	return b.check("vkWaitForFences", result)
}

func (b *Backend) ResetFence(fence metadata.Handle) error {
	f, err := lookup[vk.Fence](b.objects, fence)
	if err != nil {
		return err
	}
	return b.check("vkResetFences", vk.ResetFences(b.device(), 1, []vk.Fence{f}))
}

func (b *Backend) Submit(info metadata.SubmitInfo) error {
	if b.IsDeviceLost() {
		return core.ErrDeviceLost
	}
	if len(info.WaitSemaphores) != len(info.WaitStages) {
		return fmt.Errorf("submit: %d wait semaphores but %d wait stages", len(info.WaitSemaphores), len(info.WaitStages))
	}

	commandBuffers := make([]vk.CommandBuffer, len(info.CommandBuffers))
	submitted := make([]*VulkanCommandBuffer, len(info.CommandBuffers))
	for i, handle := range info.CommandBuffers {
		cb, err := lookup[*VulkanCommandBuffer](b.objects, handle)
		if err != nil {
			return err
		}
		commandBuffers[i] = cb.Handle
		submitted[i] = cb
	}
	waitSemaphores := make([]vk.Semaphore, len(info.WaitSemaphores))
	waitStages := make([]vk.PipelineStageFlags, len(info.WaitStages))
	for i, handle := range info.WaitSemaphores {
		s, err := lookup[vk.Semaphore](b.objects, handle)
		if err != nil {
			return err
		}
		waitSemaphores[i] = s
		waitStages[i] = vulkanStages(info.WaitStages[i])
	}
	signalSemaphores := make([]vk.Semaphore, len(info.SignalSemaphores))
	for i, handle := range info.SignalSemaphores {
		s, err := lookup[vk.Semaphore](b.objects, handle)
		if err != nil {
			return err
		}
		signalSemaphores[i] = s
	}
	fence := vk.NullFence
	if !info.Fence.IsNull() {
		f, err := lookup[vk.Fence](b.objects, info.Fence)
		if err != nil {
			return err
		}
		fence = f
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(waitSemaphores)),
		PWaitSemaphores:      waitSemaphores,
		PWaitDstStageMask:    waitStages,
		CommandBufferCount:   uint32(len(commandBuffers)),
		PCommandBuffers:      commandBuffers,
		SignalSemaphoreCount: uint32(len(signalSemaphores)),
		PSignalSemaphores:    signalSemaphores,
	}

	queueIndex := uint32(b.context.Device.GraphicsQueueIndex)
	if err := b.context.lockPool.SafeQueueCall(queueIndex, func() error {
		return b.check("vkQueueSubmit", vk.QueueSubmit(b.context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence))
	}); err != nil {
		return err
	}
	for _, cb := range submitted {
		cb.State = metadata.COMMAND_BUFFER_STATE_SUBMITTED
	}
	return nil
}

func (b *Backend) SubmitAndWait(cmd metadata.Handle) error {
	if err := b.Submit(metadata.SubmitInfo{CommandBuffers: []metadata.Handle{cmd}}); err != nil {
		return err
	}
	queueIndex := uint32(b.context.Device.GraphicsQueueIndex)
	return b.context.lockPool.SafeQueueCall(queueIndex, func() error {
		return b.check("vkQueueWaitIdle", vk.QueueWaitIdle(b.context.Device.GraphicsQueue))
	})
}
