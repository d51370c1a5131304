package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/core"
)

// VulkanResultString returns the name of a result code. When getExtended is
// set, a short description is appended for the codes the renderer handles.
func VulkanResultString(result vk.Result, getExtended bool) string {
	var name, description string
	switch result {
	case vk.Success:
		name, description = "VK_SUCCESS", "Command successfully completed"
	case vk.NotReady:
		name, description = "VK_NOT_READY", "A fence or query has not yet completed"
	case vk.Timeout:
		name, description = "VK_TIMEOUT", "A wait operation has not completed in the specified time"
	case vk.Incomplete:
		name, description = "VK_INCOMPLETE", "A return array was too small for the result"
	case vk.Suboptimal:
		name, description = "VK_SUBOPTIMAL_KHR", "The swapchain no longer matches the surface exactly but can still present"
	case vk.ErrorOutOfHostMemory:
		name, description = "VK_ERROR_OUT_OF_HOST_MEMORY", "A host memory allocation has failed"
	case vk.ErrorOutOfDeviceMemory:
		name, description = "VK_ERROR_OUT_OF_DEVICE_MEMORY", "A device memory allocation has failed"
	case vk.ErrorInitializationFailed:
		name, description = "VK_ERROR_INITIALIZATION_FAILED", "Initialization of an object could not be completed"
	case vk.ErrorDeviceLost:
		name, description = "VK_ERROR_DEVICE_LOST", "The logical or physical device has been lost"
	case vk.ErrorMemoryMapFailed:
		name, description = "VK_ERROR_MEMORY_MAP_FAILED", "Mapping of a memory object has failed"
	case vk.ErrorLayerNotPresent:
		name, description = "VK_ERROR_LAYER_NOT_PRESENT", "A requested layer is not present or could not be loaded"
	case vk.ErrorExtensionNotPresent:
		name, description = "VK_ERROR_EXTENSION_NOT_PRESENT", "A requested extension is not supported"
	case vk.ErrorFeatureNotPresent:
		name, description = "VK_ERROR_FEATURE_NOT_PRESENT", "A requested feature is not supported"
	case vk.ErrorIncompatibleDriver:
		name, description = "VK_ERROR_INCOMPATIBLE_DRIVER", "The requested version of Vulkan is not supported by the driver"
	case vk.ErrorTooManyObjects:
		name, description = "VK_ERROR_TOO_MANY_OBJECTS", "Too many objects of the type have already been created"
	case vk.ErrorFormatNotSupported:
		name, description = "VK_ERROR_FORMAT_NOT_SUPPORTED", "A requested format is not supported on this device"
	case vk.ErrorFragmentedPool:
		name, description = "VK_ERROR_FRAGMENTED_POOL", "A pool allocation has failed due to fragmentation"
	case vk.ErrorSurfaceLost:
		name, description = "VK_ERROR_SURFACE_LOST_KHR", "A surface is no longer available"
	case vk.ErrorNativeWindowInUse:
		name, description = "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR", "The requested window is already in use"
	case vk.ErrorOutOfDate:
		name, description = "VK_ERROR_OUT_OF_DATE_KHR", "The surface changed and the swapchain must be recreated"
	case vk.ErrorOutOfPoolMemory:
		name, description = "VK_ERROR_OUT_OF_POOL_MEMORY", "A descriptor pool memory allocation has failed"
	default:
		name, description = fmt.Sprintf("VK_RESULT_%d", int32(result)), "Unknown result code"
	}
	if !getExtended {
		return name
	}
	return name + " " + description
}

// VulkanResultIsSuccess reports whether result is one of the non-error codes.
func VulkanResultIsSuccess(result vk.Result) bool {
	return result >= vk.Success
}

/**
 * @brief Turns a failed result into an error. Device loss and timeouts map to
 * the core sentinels so callers can match them with errors.Is.
 */
func resultError(op string, result vk.Result) error {
	switch result {
	case vk.Success:
		return nil
	case vk.ErrorDeviceLost:
		return fmt.Errorf("%s: %w", op, core.ErrDeviceLost)
	case vk.Timeout:
		return fmt.Errorf("%s: %w", op, core.ErrFenceTimeout)
	case vk.ErrorOutOfDate, vk.Suboptimal:
		return fmt.Errorf("%s: %w", op, core.ErrSurfaceStale)
	}
	return fmt.Errorf("%s failed with `%s`", op, VulkanResultString(result, true))
}

var end = "\x00"
var endChar byte = '\x00'

func VulkanSafeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

func VulkanSafeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = VulkanSafeString(list[i])
	}
	return out
}

func FindFirstZeroInByteArray(arr []byte) int {
	for i, b := range arr {
		if b == 0 {
			return i
		}
	}
	return len(arr)
}

func clampUint32(value, min, max uint32) uint32 {
	return uint32(math.Max(float64(min), math.Min(float64(value), float64(max))))
}
