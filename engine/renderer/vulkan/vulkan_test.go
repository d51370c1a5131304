package vulkan

import (
	"errors"
	"sync"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
)

func TestResultError(t *testing.T) {
	if err := resultError("op", vk.Success); err != nil {
		t.Errorf("Expected nil for success, got %v", err)
	}
	cases := map[vk.Result]error{
		vk.ErrorDeviceLost: core.ErrDeviceLost,
		vk.Timeout:         core.ErrFenceTimeout,
		vk.ErrorOutOfDate:  core.ErrSurfaceStale,
	}
	for result, want := range cases {
		if err := resultError("op", result); !errors.Is(err, want) {
			t.Errorf("Expected %v for %s, got %v", want, VulkanResultString(result, false), err)
		}
	}
	if err := resultError("vkCreateImage", vk.ErrorOutOfDeviceMemory); err == nil {
		t.Errorf("Expected an error for out of device memory")
	}
}

func TestVulkanResultIsSuccess(t *testing.T) {
	if !VulkanResultIsSuccess(vk.Suboptimal) {
		t.Errorf("Expected suboptimal to be a success code")
	}
	if VulkanResultIsSuccess(vk.ErrorDeviceLost) {
		t.Errorf("Expected device lost to be an error code")
	}
}

func TestVulkanSafeStrings(t *testing.T) {
	if got := VulkanSafeString(""); got != "\x00" {
		t.Errorf("Expected a lone terminator, got %q", got)
	}
	if got := VulkanSafeString("main\x00"); got != "main\x00" {
		t.Errorf("Expected terminated string untouched, got %q", got)
	}
	in := []string{"a", "b"}
	out := VulkanSafeStrings(in)
	if out[0] != "a\x00" || out[1] != "b\x00" {
		t.Errorf("Expected terminated strings, got %q", out)
	}
	if in[0] != "a" {
		t.Errorf("Expected the input to be left alone, got %q", in[0])
	}
}

func TestFindFirstZeroInByteArray(t *testing.T) {
	if got := FindFirstZeroInByteArray([]byte{'a', 'b', 0, 'c'}); got != 2 {
		t.Errorf("Expected 2, got %d", got)
	}
	if got := FindFirstZeroInByteArray([]byte{'a', 'b'}); got != 2 {
		t.Errorf("Expected the full length without a terminator, got %d", got)
	}
}

func TestClampUint32(t *testing.T) {
	if got := clampUint32(5, 10, 20); got != 10 {
		t.Errorf("Expected 10, got %d", got)
	}
	if got := clampUint32(50, 10, 20); got != 20 {
		t.Errorf("Expected 20, got %d", got)
	}
	if got := clampUint32(15, 10, 20); got != 15 {
		t.Errorf("Expected 15, got %d", got)
	}
}

func TestObjectTable(t *testing.T) {
	table := newObjectTable()
	buffer := &VulkanBuffer{Name: "b", Size: 16}
	image := &VulkanImage{Name: "i"}

	hb := table.insert(buffer)
	hi := table.insert(image)
	if hb.IsNull() || hi.IsNull() || hb == hi {
		t.Fatalf("Expected distinct non null handles, got %d and %d", hb, hi)
	}

	got, err := lookup[*VulkanBuffer](table, hb)
	if err != nil || got != buffer {
		t.Errorf("Expected the buffer back, got %v (%v)", got, err)
	}
	if _, err := lookup[*VulkanBuffer](table, hi); err == nil {
		t.Errorf("Expected a type mismatch error for an image handle")
	}
	if _, err := lookup[*VulkanBuffer](table, metadata.Handle(999)); err == nil {
		t.Errorf("Expected an error for an unknown handle")
	}

	if _, ok := take[*VulkanImage](table, hb); ok {
		t.Errorf("Expected take with the wrong type to fail")
	}
	if table.len() != 2 {
		t.Errorf("Expected the failed take to keep the object, got %d objects", table.len())
	}
	if _, ok := take[*VulkanBuffer](table, hb); !ok {
		t.Errorf("Expected take to succeed")
	}
	if _, ok := take[*VulkanBuffer](table, hb); ok {
		t.Errorf("Expected a second take to fail")
	}
	if _, ok := take[*VulkanImage](table, metadata.NullHandle); ok {
		t.Errorf("Expected take of the null handle to fail")
	}

	// Handles are never reused.
	if h := table.insert(buffer); h == hb || h == hi {
		t.Errorf("Expected a fresh handle, got %d", h)
	}
}

func TestFormatConversionRoundTrip(t *testing.T) {
	formats := []metadata.Format{
		metadata.FORMAT_R8_UNORM,
		metadata.FORMAT_R8G8B8A8_UNORM,
		metadata.FORMAT_B8G8R8A8_UNORM,
		metadata.FORMAT_B8G8R8A8_SRGB,
		metadata.FORMAT_R32G32_SFLOAT,
		metadata.FORMAT_R32G32B32_SFLOAT,
		metadata.FORMAT_R32G32B32A32_SFLOAT,
		metadata.FORMAT_D32_SFLOAT,
		metadata.FORMAT_D32_SFLOAT_S8_UINT,
		metadata.FORMAT_D24_UNORM_S8_UINT,
	}
	for _, f := range formats {
		if got := metadataFormat(vulkanFormat(f)); got != f {
			t.Errorf("Expected format %d to round trip, got %d", f, got)
		}
	}
	if vulkanFormat(metadata.FORMAT_UNDEFINED) != vk.FormatUndefined {
		t.Errorf("Expected undefined to map to undefined")
	}
}

func TestFlagConversions(t *testing.T) {
	if got := vulkanShaderStages(metadata.SHADER_STAGE_ALL); got != vk.ShaderStageFlags(vk.ShaderStageVertexBit|vk.ShaderStageFragmentBit) {
		t.Errorf("Expected vertex and fragment stages, got %d", got)
	}
	if got := vulkanMemoryProperty(metadata.MEMORY_PROPERTY_HOST); got != vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit) {
		t.Errorf("Expected host visible and coherent, got %d", got)
	}
	if got := vulkanStages(metadata.PIPELINE_STAGE_COLOR_ATTACHMENT_OUTPUT); got != vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) {
		t.Errorf("Expected color attachment output stage, got %d", got)
	}
	if got := vulkanAccess(metadata.ACCESS_SHADER_READ); got != vk.AccessFlags(vk.AccessShaderReadBit) {
		t.Errorf("Expected shader read access, got %d", got)
	}
	if got := vulkanBufferUsage(metadata.BUFFER_USAGE_VERTEX_BUFFER); got != vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit) {
		t.Errorf("Expected vertex buffer usage, got %d", got)
	}
	if got := vulkanImageUsage(metadata.IMAGE_USAGE_DEPTH_STENCIL_ATTACHMENT); got != vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit) {
		t.Errorf("Expected depth stencil usage, got %d", got)
	}
	if vulkanImageLayout(metadata.IMAGE_LAYOUT_PRESENT_SRC) != vk.ImageLayoutPresentSrc {
		t.Errorf("Expected present layout")
	}
	if vulkanDescriptorType(metadata.DESCRIPTOR_TYPE_STORAGE_BUFFER) != vk.DescriptorTypeStorageBuffer {
		t.Errorf("Expected storage buffer descriptor")
	}
	if vulkanCullMode(metadata.CULL_MODE_FRONT) != vk.CullModeFlags(vk.CullModeFrontBit) {
		t.Errorf("Expected front culling")
	}
	if vulkanCompareOp(metadata.COMPARE_OP_LESS_OR_EQUAL) != vk.CompareOpLessOrEqual {
		t.Errorf("Expected less or equal")
	}
}

func TestViewAspectFor(t *testing.T) {
	depthStencil := metadata.IMAGE_ASPECT_DEPTH | metadata.IMAGE_ASPECT_STENCIL
	depthOnly := vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	tests := []struct {
		name   string
		aspect metadata.ImageAspect
		usage  metadata.ImageUsage
		want   vk.ImageAspectFlags
	}{
		{"color", metadata.IMAGE_ASPECT_COLOR, metadata.IMAGE_USAGE_COLOR_ATTACHMENT | metadata.IMAGE_USAGE_INPUT_ATTACHMENT, vk.ImageAspectFlags(vk.ImageAspectColorBit)},
		{"attachment only", depthStencil, metadata.IMAGE_USAGE_DEPTH_STENCIL_ATTACHMENT, vulkanAspect(depthStencil)},
		{"sampled", depthStencil, metadata.IMAGE_USAGE_DEPTH_STENCIL_ATTACHMENT | metadata.IMAGE_USAGE_SAMPLED, depthOnly},
		{"input attachment", depthStencil, metadata.IMAGE_USAGE_DEPTH_STENCIL_ATTACHMENT | metadata.IMAGE_USAGE_INPUT_ATTACHMENT, depthOnly},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := viewAspectFor(tt.aspect, tt.usage); got != tt.want {
				t.Errorf("Expected aspect %d, got %d", tt.want, got)
			}
		})
	}
}

func TestLockPoolSerializesGroups(t *testing.T) {
	pool := NewVulkanLockPool()
	pool.SetQueueFamily(0)

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = pool.SafeCall(ResourceManagement, func() error {
				counter++
				return nil
			})
		}()
		go func() {
			defer wg.Done()
			_ = pool.SafeQueueCall(0, func() error { return nil })
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Errorf("Expected 50 increments, got %d", counter)
	}

	boom := errors.New("boom")
	if err := pool.SafeQueueCall(7, func() error { return boom }); !errors.Is(err, boom) {
		t.Errorf("Expected the callback error, got %v", err)
	}
}
