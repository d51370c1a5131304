package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
)

func (b *Backend) CreateDescriptorSetLayout(config metadata.DescriptorSetLayoutConfig) (metadata.Handle, error) {
	bindings := make([]vk.DescriptorSetLayoutBinding, len(config.Bindings))
	for i, binding := range config.Bindings {
		count := binding.Count
		if count == 0 {
			count = 1
		}
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         binding.Binding,
			DescriptorType:  vulkanDescriptorType(binding.Type),
			DescriptorCount: count,
			StageFlags:      vulkanShaderStages(binding.Stages),
		}
	}

	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var layout vk.DescriptorSetLayout
	if err := b.check("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(b.device(), &createInfo, b.context.Allocator, &layout)); err != nil {
		return metadata.NullHandle, fmt.Errorf("descriptor set layout `%s`: %w", config.Name, err)
	}
	return b.objects.insert(layout), nil
}

func (b *Backend) DestroyDescriptorSetLayout(layout metadata.Handle) {
	if l, ok := take[vk.DescriptorSetLayout](b.objects, layout); ok {
		vk.DestroyDescriptorSetLayout(b.device(), l, b.context.Allocator)
	}
}

func (b *Backend) CreateDescriptorPool(config metadata.DescriptorPoolConfig) (metadata.Handle, error) {
	sizes := make([]vk.DescriptorPoolSize, len(config.Sizes))
	for i, size := range config.Sizes {
		sizes[i] = vk.DescriptorPoolSize{
			Type:            vulkanDescriptorType(size.Type),
			DescriptorCount: size.Count,
		}
	}
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       config.MaxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	pool := &VulkanDescriptorPool{Name: config.Name}
	if err := b.check("vkCreateDescriptorPool", vk.CreateDescriptorPool(b.device(), &createInfo, b.context.Allocator, &pool.Handle)); err != nil {
		return metadata.NullHandle, fmt.Errorf("descriptor pool `%s`: %w", config.Name, err)
	}
	return b.objects.insert(pool), nil
}

func (b *Backend) DestroyDescriptorPool(pool metadata.Handle) {
	p, ok := take[*VulkanDescriptorPool](b.objects, pool)
	if !ok {
		return
	}
	// Sets are freed implicitly with their pool.
	for _, set := range p.Sets {
		b.objects.remove(set)
	}
	vk.DestroyDescriptorPool(b.device(), p.Handle, b.context.Allocator)
}

func (b *Backend) AllocateDescriptorSets(pool metadata.Handle, layouts []metadata.Handle) ([]metadata.Handle, error) {
	if len(layouts) == 0 {
		return nil, nil
	}
	p, err := lookup[*VulkanDescriptorPool](b.objects, pool)
	if err != nil {
		return nil, err
	}
	vkLayouts := make([]vk.DescriptorSetLayout, len(layouts))
	for i, layout := range layouts {
		l, err := lookup[vk.DescriptorSetLayout](b.objects, layout)
		if err != nil {
			return nil, err
		}
		vkLayouts[i] = l
	}

	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.Handle,
		DescriptorSetCount: uint32(len(vkLayouts)),
		PSetLayouts:        vkLayouts,
	}
	sets := make([]vk.DescriptorSet, len(vkLayouts))
	err = b.context.lockPool.SafeCall(DescriptorManagement, func() error {
		return b.check("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(b.device(), &allocateInfo, &sets[0]))
	})
	if err != nil {
		return nil, fmt.Errorf("descriptor pool `%s`: %w", p.Name, err)
	}

	handles := make([]metadata.Handle, len(sets))
	for i, set := range sets {
		handles[i] = b.objects.insert(set)
	}
	p.Sets = append(p.Sets, handles...)
	return handles, nil
}

func (b *Backend) UpdateDescriptorSets(writes []metadata.DescriptorWrite) error {
	if len(writes) == 0 {
		return nil
	}
	vkWrites := make([]vk.WriteDescriptorSet, len(writes))
	for i, w := range writes {
		set, err := lookup[vk.DescriptorSet](b.objects, w.Set)
		if err != nil {
			return fmt.Errorf("descriptor write %d: %w", i, err)
		}
		vkWrites[i] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      w.Binding,
			DstArrayElement: 0,
			DescriptorCount: 1,
			DescriptorType:  vulkanDescriptorType(w.Type),
		}

		if w.Type.IsBuffer() {
			buffer, err := lookup[*VulkanBuffer](b.objects, w.Buffer)
			if err != nil {
				return fmt.Errorf("descriptor write %d: %w", i, err)
			}
			size := vk.DeviceSize(w.Range)
			if size == 0 {
				size = vk.DeviceSize(buffer.Size - w.Offset)
			}
			vkWrites[i].PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: buffer.Handle,
				Offset: vk.DeviceSize(w.Offset),
				Range:  size,
			}}
			continue
		}

		imageInfo := vk.DescriptorImageInfo{ImageLayout: vulkanImageLayout(w.Layout)}
		if !w.Image.IsNull() {
			image, err := lookup[*VulkanImage](b.objects, w.Image)
			if err != nil {
				return fmt.Errorf("descriptor write %d: %w", i, err)
			}
			imageInfo.ImageView = image.View
		}
		if !w.Sampler.IsNull() {
			sampler, err := lookup[vk.Sampler](b.objects, w.Sampler)
			if err != nil {
				return fmt.Errorf("descriptor write %d: %w", i, err)
			}
			imageInfo.Sampler = sampler
		}
		vkWrites[i].PImageInfo = []vk.DescriptorImageInfo{imageInfo}
	}

	return b.context.lockPool.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(b.device(), uint32(len(vkWrites)), vkWrites, 0, nil)
		return nil
	})
}

func (b *Backend) CreatePipelineLayout(config metadata.PipelineLayoutConfig) (metadata.Handle, error) {
	setLayouts := make([]vk.DescriptorSetLayout, len(config.SetLayouts))
	for i, handle := range config.SetLayouts {
		l, err := lookup[vk.DescriptorSetLayout](b.objects, handle)
		if err != nil {
			return metadata.NullHandle, fmt.Errorf("pipeline layout `%s`: %w", config.Name, err)
		}
		setLayouts[i] = l
	}
	createInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}
	var layout vk.PipelineLayout
	if err := b.check("vkCreatePipelineLayout", vk.CreatePipelineLayout(b.device(), &createInfo, b.context.Allocator, &layout)); err != nil {
		return metadata.NullHandle, fmt.Errorf("pipeline layout `%s`: %w", config.Name, err)
	}
	return b.objects.insert(layout), nil
}

func (b *Backend) DestroyPipelineLayout(layout metadata.Handle) {
	if l, ok := take[vk.PipelineLayout](b.objects, layout); ok {
		vk.DestroyPipelineLayout(b.device(), l, b.context.Allocator)
	}
}
