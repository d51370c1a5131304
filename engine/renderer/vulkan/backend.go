package vulkan

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/deferred/engine/core"
	"github.com/spaghettifunk/deferred/engine/renderer"
	"github.com/spaghettifunk/deferred/engine/renderer/metadata"
)

const validationLayerName = "VK_LAYER_KHRONOS_validation"

// SurfaceSource is the window a backend presents into.
type SurfaceSource interface {
	RequiredExtensions() []string
	CreateSurface(instance vk.Instance) (vk.Surface, error)
}

type BackendConfig struct {
	ApplicationName string
	// Enables the Khronos validation layer and routes its reports to the logger.
	Validation bool
}

// Backend implements renderer.RendererBackend on top of a Vulkan device.
type Backend struct {
	config  BackendConfig
	context *VulkanContext
	objects *objectTable

	deviceLost atomic.Bool
}

var _ renderer.RendererBackend = (*Backend)(nil)

func NewBackend(config BackendConfig, window SurfaceSource) (*Backend, error) {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		err := fmt.Errorf("GetInstanceProcAddress is nil")
		core.LogError(err.Error())
		return nil, err
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return nil, err
	}

	b := &Backend{
		config: config,
		context: &VulkanContext{
			Allocator: nil,
			Device:    &VulkanDevice{GraphicsQueueIndex: -1, PresentQueueIndex: -1},
			lockPool:  NewVulkanLockPool(),
		},
		objects: newObjectTable(),
	}

	if err := b.createInstance(window.RequiredExtensions()); err != nil {
		return nil, err
	}

	if config.Validation {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(b.context.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogError("vk.CreateDebugReportCallback failed with %s", err)
			b.Shutdown()
			return nil, err
		}
		b.context.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}

	core.LogDebug("Creating Vulkan surface...")
	surface, err := window.CreateSurface(b.context.Instance)
	if err != nil {
		core.LogError("Failed to create platform surface: %s", err)
		b.Shutdown()
		return nil, err
	}
	b.context.Surface = surface
	core.LogDebug("Vulkan surface created.")

	if err := DeviceCreate(b.context); err != nil {
		core.LogError("Failed to create device!")
		b.Shutdown()
		return nil, err
	}

	core.LogInfo("Vulkan renderer initialized successfully.")
	return b, nil
}

func (b *Backend) createInstance(windowExtensions []string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(b.config.ApplicationName),
		PEngineName:        VulkanSafeString("deferred"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := append([]string{}, windowExtensions...)
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	requiredLayers := []string{}
	if b.config.Validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)

		core.LogInfo("Validation layers enabled. Enumerating...")
		var availableLayerCount uint32
		if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, nil); res != vk.Success {
			return resultError("vkEnumerateInstanceLayerProperties", res)
		}
		availableLayers := make([]vk.LayerProperties, availableLayerCount)
		if res := vk.EnumerateInstanceLayerProperties(&availableLayerCount, availableLayers); res != vk.Success {
			return resultError("vkEnumerateInstanceLayerProperties", res)
		}
		found := false
		for j := range availableLayers {
			availableLayers[j].Deref()
			end := FindFirstZeroInByteArray(availableLayers[j].LayerName[:])
			if string(availableLayers[j].LayerName[:end]) == validationLayerName {
				found = true
				break
			}
		}
		if found {
			requiredLayers = append(requiredLayers, validationLayerName)
		} else {
			core.LogWarn("Validation layer %s is missing, continuing without it.", validationLayerName)
		}
	}

	core.LogDebug("Required extensions: %v", requiredExtensions)
	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(requiredLayers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredLayers)

	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, b.context.Allocator, &instance); res != vk.Success {
		err := fmt.Errorf("failed in creating the Vulkan Instance with error `%s`", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	if err := vk.InitInstance(instance); err != nil {
		core.LogError(err.Error())
		return err
	}
	b.context.Instance = instance
	core.LogInfo("Vulkan Instance created.")
	return nil
}

/**
 * @brief Destroys the device, the surface and the instance. Objects still
 * owned by the renderer are reported as leaks. Surfaces must be destroyed first.
 */
func (b *Backend) Shutdown() {
	if b.context.Device.LogicalDevice != nil && !b.IsDeviceLost() {
		vk.DeviceWaitIdle(b.context.Device.LogicalDevice)
	}
	if n := b.objects.len(); n > 0 {
		core.LogWarn("Vulkan backend shut down with %d live objects.", n)
	}

	core.LogDebug("Destroying Vulkan device...")
	DeviceDestroy(b.context)

	if b.context.Instance == nil {
		return
	}
	core.LogDebug("Destroying Vulkan surface...")
	if b.context.Surface != vk.NullSurface {
		vk.DestroySurface(b.context.Instance, b.context.Surface, b.context.Allocator)
		b.context.Surface = vk.NullSurface
	}

	if b.context.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(b.context.Instance, b.context.debugMessenger, b.context.Allocator)
		b.context.debugMessenger = vk.NullDebugReportCallback
	}

	core.LogDebug("Destroying Vulkan instance...")
	vk.DestroyInstance(b.context.Instance, b.context.Allocator)
	b.context.Instance = nil
}

func (b *Backend) WaitIdle() error {
	if b.IsDeviceLost() {
		return core.ErrDeviceLost
	}
	return b.check("vkDeviceWaitIdle", vk.DeviceWaitIdle(b.device()))
}

func (b *Backend) DepthFormat() metadata.Format {
	return metadataFormat(b.context.Device.DepthFormat)
}

func (b *Backend) IsDeviceLost() bool {
	return b.deviceLost.Load()
}

func (b *Backend) device() vk.Device {
	return b.context.Device.LogicalDevice
}

// check converts a result into an error and latches device loss.
func (b *Backend) check(op string, res vk.Result) error {
	if res == vk.ErrorDeviceLost {
		if !b.deviceLost.Swap(true) {
			core.LogError("%s: the device has been lost", op)
		}
	}
	if res == vk.Success {
		return nil
	}
	err := resultError(op, res)
	core.LogError(err.Error())
	return err
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
