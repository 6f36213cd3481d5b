package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	// registers the vulkan backend with hal
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/spaghettifunk/frameq/engine/core"
)

// RenderContext owns the GPU device every renderer shares. Windows get
// their own Backend on top of the same context.
type RenderContext struct {
	Device      hal.Device
	Queue       hal.Queue
	AdapterName string
	IsNoop      bool

	instance hal.Instance
}

// NewRenderContext opens a device for cfg.Backend ("vulkan" or "noop").
// With AllowNoopFallback a missing vulkan driver or adapter yields the noop
// device instead of an error.
func NewRenderContext(cfg *core.RendererConfig) (*RenderContext, error) {
	if cfg.Backend == "noop" {
		return NewNoopContext()
	}
	ctx, err := newVulkanContext()
	if err != nil {
		if !cfg.AllowNoopFallback {
			core.LogError("failed to open a vulkan device: %s", err)
			return nil, err
		}
		core.LogWarn("vulkan unavailable (%s), falling back to the noop device", err)
		return NewNoopContext()
	}
	return ctx, nil
}

func newVulkanContext() (*RenderContext, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan backend not available", core.ErrUnsupported)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: no GPU adapters found", core.ErrUnsupported)
	}

	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU {
			selected = &adapters[i]
			break
		}
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("open device: %w", err)
	}
	core.LogInfo("GPU device opened on %s", selected.Info.Name)
	return &RenderContext{
		Device:      openDev.Device,
		Queue:       openDev.Queue,
		AdapterName: selected.Info.Name,
		instance:    instance,
	}, nil
}

// NewNoopContext opens the noop device. It accepts every call and renders
// nothing, which is what headless runs and tests want.
func NewNoopContext() (*RenderContext, error) {
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("create noop instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: noop backend exposes no adapter", core.ErrUnsupported)
	}
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("open noop device: %w", err)
	}
	return &RenderContext{
		Device:      openDev.Device,
		Queue:       openDev.Queue,
		AdapterName: "noop",
		IsNoop:      true,
		instance:    instance,
	}, nil
}

func (c *RenderContext) Destroy() {
	if c.Device != nil {
		c.Device.Destroy()
		c.Device = nil
	}
	if c.instance != nil {
		c.instance.Destroy()
		c.instance = nil
	}
}
