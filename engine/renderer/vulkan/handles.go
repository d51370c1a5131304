package vulkan

import (
	"fmt"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
)

type VulkanBuffer struct {
	Name   string
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   uint64
	// Host visible buffers stay mapped for their whole lifetime.
	Mapped unsafe.Pointer
}

type VulkanImage struct {
	Name   string
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Format vk.Format
	Aspect vk.ImageAspectFlags
	Width  uint32
	Height uint32
	// Swapchain images are owned by the swapchain; only the view is ours.
	External bool
}

type VulkanDescriptorPool struct {
	Name   string
	Handle vk.DescriptorPool
	Sets   []metadata.Handle
}

type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	State  metadata.CommandBufferState
}

// objectTable maps the opaque handles handed out to the renderer onto
// Vulkan objects. Handles are never reused.
type objectTable struct {
	mu      sync.RWMutex
	next    metadata.Handle
	objects map[metadata.Handle]interface{}
}

func newObjectTable() *objectTable {
	return &objectTable{objects: make(map[metadata.Handle]interface{})}
}

func (t *objectTable) insert(object interface{}) metadata.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	t.objects[t.next] = object
	return t.next
}

func (t *objectTable) remove(handle metadata.Handle) (interface{}, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	object, ok := t.objects[handle]
	if ok {
		delete(t.objects, handle)
	}
	return object, ok
}

func (t *objectTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.objects)
}

func (t *objectTable) get(handle metadata.Handle) (interface{}, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	object, ok := t.objects[handle]
	return object, ok
}

func lookup[T any](t *objectTable, handle metadata.Handle) (T, error) {
	var zero T
	object, ok := t.get(handle)
	if !ok {
		return zero, fmt.Errorf("unknown handle %d", handle)
	}
	typed, ok := object.(T)
	if !ok {
		return zero, fmt.Errorf("handle %d refers to %T, not %T", handle, object, zero)
	}
	return typed, nil
}

func take[T any](t *objectTable, handle metadata.Handle) (T, bool) {
	var zero T
	if handle.IsNull() {
		return zero, false
	}
	if _, err := lookup[T](t, handle); err != nil {
		return zero, false
	}
	object, ok := t.remove(handle)
	if !ok {
		return zero, false
	}
	return object.(T), true
}
