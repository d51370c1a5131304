package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
)

func attachmentReferences(refs []metadata.AttachmentReference) []vk.AttachmentReference {
	if len(refs) == 0 {
		return nil
	}
	out := make([]vk.AttachmentReference, len(refs))
	for i, ref := range refs {
		out[i] = vk.AttachmentReference{
			Attachment: ref.Attachment,
			Layout:     vulkanImageLayout(ref.Layout),
		}
	}
	return out
}

func (b *Backend) CreateRenderPass(config metadata.RenderPassConfig) (metadata.Handle, error) {
	if len(config.Subpasses) == 0 {
		return metadata.NullHandle, fmt.Errorf("render pass `%s` has no subpasses", config.Name)
	}

	attachments := make([]vk.AttachmentDescription, len(config.Attachments))
	for i, a := range config.Attachments {
		attachments[i] = vk.AttachmentDescription{
			Format:         vulkanFormat(a.Format),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vulkanLoadOp(a.LoadOp),
			StoreOp:        vulkanStoreOp(a.StoreOp),
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vulkanImageLayout(a.InitialLayout),
			FinalLayout:    vulkanImageLayout(a.FinalLayout),
		}
		// Stencil follows the depth load op.
		if a.Format.HasStencil() {
			attachments[i].StencilLoadOp = vulkanLoadOp(a.LoadOp)
		}
	}

	subpasses := make([]vk.SubpassDescription, len(config.Subpasses))
	for i, s := range config.Subpasses {
		color := attachmentReferences(s.Color)
		input := attachmentReferences(s.Input)
		subpasses[i] = vk.SubpassDescription{
			PipelineBindPoint:    vk.PipelineBindPointGraphics,
			ColorAttachmentCount: uint32(len(color)),
			PColorAttachments:    color,
			InputAttachmentCount: uint32(len(input)),
			PInputAttachments:    input,
		}
		if s.DepthStencil != nil {
			subpasses[i].PDepthStencilAttachment = &vk.AttachmentReference{
				Attachment: s.DepthStencil.Attachment,
				Layout:     vulkanImageLayout(s.DepthStencil.Layout),
			}
		}
	}

	dependencies := make([]vk.SubpassDependency, len(config.Dependencies))
	for i, d := range config.Dependencies {
		dependencies[i] = vk.SubpassDependency{
			SrcSubpass:    d.SrcSubpass,
			DstSubpass:    d.DstSubpass,
			SrcStageMask:  vulkanStages(d.SrcStageMask),
			DstStageMask:  vulkanStages(d.DstStageMask),
			SrcAccessMask: vulkanAccess(d.SrcAccessMask),
			DstAccessMask: vulkanAccess(d.DstAccessMask),
		}
		if d.ByRegion {
			dependencies[i].DependencyFlags = vk.DependencyFlags(vk.DependencyByRegionBit)
		}
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}

	var renderPass vk.RenderPass
	if err := b.check("vkCreateRenderPass", vk.CreateRenderPass(b.device(), &createInfo, b.context.Allocator, &renderPass)); err != nil {
		return metadata.NullHandle, fmt.Errorf("render pass `%s`: %w", config.Name, err)
	}
	return b.objects.insert(renderPass), nil
}

func (b *Backend) DestroyRenderPass(pass metadata.Handle) {
	if rp, ok := take[vk.RenderPass](b.objects, pass); ok {
		vk.DestroyRenderPass(b.device(), rp, b.context.Allocator)
	}
}
