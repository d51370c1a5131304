package vulkan

import (
	"fmt"
	"math"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
)

type VulkanSwapchainSupportInfo struct {
	Capabilities     vk.SurfaceCapabilities
	FormatCount      uint32
	Formats          []vk.SurfaceFormat
	PresentModeCount uint32
	PresentModes     []vk.PresentMode
}

// Swapchain implements renderer.Surface. Its images are registered with the
// backend so framebuffers can reference them like any other image.
type Swapchain struct {
	backend     *Backend
	Handle      vk.Swapchain
	ImageFormat vk.SurfaceFormat
	extent      metadata.Extent2D
	images      []metadata.Handle
}

var _ renderer.Surface = (*Swapchain)(nil)

func NewSwapchain(backend *Backend, width, height uint32) (*Swapchain, error) {
	sc := &Swapchain{backend: backend}
	if err := sc.create(width, height, vk.NullSwapchain); err != nil {
		return nil, err
	}
	return sc, nil
}

func (sc *Swapchain) create(width, height uint32, old vk.Swapchain) error {
	context := sc.backend.context
	device := context.Device

	if err := DeviceQuerySwapchainSupport(device.PhysicalDevice, context.Surface, &device.SwapchainSupport); err != nil {
		return err
	}
	support := device.SwapchainSupport
	if len(support.Formats) == 0 {
		return fmt.Errorf("surface reports no formats")
	}

	// Prefer BGRA8 in the sRGB nonlinear color space.
	sc.ImageFormat = support.Formats[0]
	for _, format := range support.Formats {
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			sc.ImageFormat = format
			break
		}
	}

	presentMode := vk.PresentModeFifo
	for _, mode := range support.PresentModes {
		if mode == vk.PresentModeMailbox {
			presentMode = mode
			break
		}
	}

	swapchainExtent := vk.Extent2D{Width: width, Height: height}
	if support.Capabilities.CurrentExtent.Width != math.MaxUint32 {
		swapchainExtent = support.Capabilities.CurrentExtent
	}
	min := support.Capabilities.MinImageExtent
	max := support.Capabilities.MaxImageExtent
	swapchainExtent.Width = clampUint32(swapchainExtent.Width, min.Width, max.Width)
	swapchainExtent.Height = clampUint32(swapchainExtent.Height, min.Height, max.Height)
	if swapchainExtent.Width == 0 || swapchainExtent.Height == 0 {
		return fmt.Errorf("cannot create a swapchain with a zero extent")
	}

	imageCount := support.Capabilities.MinImageCount + 1
	if support.Capabilities.MaxImageCount > 0 && imageCount > support.Capabilities.MaxImageCount {
		imageCount = support.Capabilities.MaxImageCount
	}

	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          context.Surface,
		MinImageCount:    imageCount,
		ImageFormat:      sc.ImageFormat.Format,
		ImageColorSpace:  sc.ImageFormat.ColorSpace,
		ImageExtent:      swapchainExtent,
		ImageArrayLayers: 1,
		// Transfer source allows frame captures straight from the swapchain.
		ImageUsage:     vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferSrcBit),
		PreTransform:   support.Capabilities.CurrentTransform,
		CompositeAlpha: vk.CompositeAlphaOpaqueBit,
		PresentMode:    presentMode,
		Clipped:        vk.True,
		OldSwapchain:   old,
	}
	if device.GraphicsQueueIndex != device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			uint32(device.GraphicsQueueIndex),
			uint32(device.PresentQueueIndex),
		}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var handle vk.Swapchain
	if err := sc.backend.check("vkCreateSwapchain", vk.CreateSwapchain(device.LogicalDevice, &swapchainCreateInfo, context.Allocator, &handle)); err != nil {
		return err
	}

	var count uint32
	if err := sc.backend.check("vkGetSwapchainImages", vk.GetSwapchainImages(device.LogicalDevice, handle, &count, nil)); err != nil {
		vk.DestroySwapchain(device.LogicalDevice, handle, context.Allocator)
		return err
	}
	images := make([]vk.Image, count)
	if err := sc.backend.check("vkGetSwapchainImages", vk.GetSwapchainImages(device.LogicalDevice, handle, &count, images)); err != nil {
		vk.DestroySwapchain(device.LogicalDevice, handle, context.Allocator)
		return err
	}

	handles := make([]metadata.Handle, 0, count)
	for i, image := range images {
		h, err := sc.backend.registerExternalImage(fmt.Sprintf("swapchain_%d", i), image, sc.ImageFormat.Format, swapchainExtent.Width, swapchainExtent.Height)
		if err != nil {
			for _, registered := range handles {
				sc.backend.DestroyImage(registered)
			}
			vk.DestroySwapchain(device.LogicalDevice, handle, context.Allocator)
			return err
		}
		handles = append(handles, h)
	}

	sc.Handle = handle
	sc.images = handles
	sc.extent = metadata.Extent2D{Width: swapchainExtent.Width, Height: swapchainExtent.Height}
	core.LogInfo("Swapchain created successfully (%dx%d, %d images).", sc.extent.Width, sc.extent.Height, count)
	return nil
}

func (sc *Swapchain) releaseImages() {
	for _, image := range sc.images {
		sc.backend.DestroyImage(image)
	}
	sc.images = nil
}

func (sc *Swapchain) AcquireNextImage(signal metadata.Handle, timeout time.Duration) (uint32, metadata.SurfaceStatus, error) {
	semaphore, err := lookup[vk.Semaphore](sc.backend.objects, signal)
	if err != nil {
		return 0, metadata.SURFACE_STATUS_OK, err
	}
	var imageIndex uint32
	result := vk.AcquireNextImage(sc.backend.device(), sc.Handle, uint64(timeout.Nanoseconds()), semaphore, vk.NullFence, &imageIndex)
	switch result {
	case vk.Success:
		return imageIndex, metadata.SURFACE_STATUS_OK, nil
	case vk.Suboptimal:
		return imageIndex, metadata.SURFACE_STATUS_SUBOPTIMAL, nil
	case vk.ErrorOutOfDate:
		return 0, metadata.SURFACE_STATUS_OUT_OF_DATE, nil
	case vk.Timeout, vk.NotReady:
		return 0, metadata.SURFACE_STATUS_OK, acquireTimeoutError(timeout)
	}
	return 0, metadata.SURFACE_STATUS_OK, sc.backend.check("vkAcquireNextImage", result)
}

func acquireTimeoutError(timeout time.Duration) error {
	return fmt.Errorf("vkAcquireNextImage after %s: %w", timeout, core.ErrAcquireTimeout)
}

func (sc *Swapchain) Present(imageIndex uint32, wait metadata.Handle) (metadata.SurfaceStatus, error) {
	semaphore, err := lookup[vk.Semaphore](sc.backend.objects, wait)
	if err != nil {
		return metadata.SURFACE_STATUS_OK, err
	}
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{semaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.Handle},
		PImageIndices:      []uint32{imageIndex},
	}

	device := sc.backend.context.Device
	var result vk.Result
	_ = sc.backend.context.lockPool.SafeQueueCall(uint32(device.PresentQueueIndex), func() error {
		result = vk.QueuePresent(device.PresentQueue, &presentInfo)
		return nil
	})
	switch result {
	case vk.Success:
		return metadata.SURFACE_STATUS_OK, nil
	case vk.Suboptimal:
		return metadata.SURFACE_STATUS_SUBOPTIMAL, nil
	case vk.ErrorOutOfDate:
		return metadata.SURFACE_STATUS_OUT_OF_DATE, nil
	}
	return metadata.SURFACE_STATUS_OK, sc.backend.check("vkQueuePresent", result)
}

// Resize waits for the device to go idle and rebuilds the swapchain.
// The previous image handles become invalid.
func (sc *Swapchain) Resize(width, height uint32) error {
	return sc.backend.context.lockPool.SafeCall(SwapchainManagement, func() error {
		if err := sc.backend.WaitIdle(); err != nil {
			return err
		}
		old := sc.Handle
		sc.releaseImages()
		err := sc.create(width, height, old)
		vk.DestroySwapchain(sc.backend.device(), old, sc.backend.context.Allocator)
		if err != nil {
			sc.Handle = vk.NullSwapchain
		}
		return err
	})
}

func (sc *Swapchain) Destroy() {
	if !sc.backend.IsDeviceLost() {
		vk.DeviceWaitIdle(sc.backend.device())
	}
	sc.releaseImages()
	if sc.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(sc.backend.device(), sc.Handle, sc.backend.context.Allocator)
		sc.Handle = vk.NullSwapchain
	}
}

func (sc *Swapchain) Extent() metadata.Extent2D { return sc.extent }

func (sc *Swapchain) ImageCount() uint32 { return uint32(len(sc.images)) }

func (sc *Swapchain) Format() metadata.Format { return metadataFormat(sc.ImageFormat.Format) }

func (sc *Swapchain) Images() []metadata.Handle {
	out := make([]metadata.Handle, len(sc.images))
	copy(out, sc.images)
	return out
}
