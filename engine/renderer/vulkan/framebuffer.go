package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
)

func (b *Backend) CreateFramebuffer(config metadata.FramebufferConfig) (metadata.Handle, error) {
	renderPass, err := lookup[vk.RenderPass](b.objects, config.RenderPass)
	if err != nil {
		return metadata.NullHandle, fmt.Errorf("framebuffer `%s`: %w", config.Name, err)
	}

	views := make([]vk.ImageView, len(config.Attachments))
	for i, attachment := range config.Attachments {
		image, err := lookup[*VulkanImage](b.objects, attachment)
		if err != nil {
			return metadata.NullHandle, fmt.Errorf("framebuffer `%s` attachment %d: %w", config.Name, i, err)
		}
		views[i] = image.View
	}

	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderPass,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           config.Width,
		Height:          config.Height,
		Layers:          1,
	}

	var framebuffer vk.Framebuffer
	if err := b.check("vkCreateFramebuffer", vk.CreateFramebuffer(b.device(), &createInfo, b.context.Allocator, &framebuffer)); err != nil {
		return metadata.NullHandle, fmt.Errorf("framebuffer `%s`: %w", config.Name, err)
	}
	return b.objects.insert(framebuffer), nil
}

func (b *Backend) DestroyFramebuffer(framebuffer metadata.Handle) {
	if fb, ok := take[vk.Framebuffer](b.objects, framebuffer); ok {
		vk.DestroyFramebuffer(b.device(), fb, b.context.Allocator)
	}
}
