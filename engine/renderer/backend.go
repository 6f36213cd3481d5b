package renderer

import "github.com/spaghettifunk/frameq/engine/renderer/metadata"

// RendererBackend records and submits the GPU work of one frame. Calls
// arrive in the order BeginFrame, any number of render passes and
// post-process steps, EndFrame.
type RendererBackend interface {
	// BeginFrame acquires the screen target. A lost or outdated surface is
	// reported with core.ErrSurfaceLost or core.ErrSurfaceOutdated.
	BeginFrame() error
	BeginRenderPass(desc *metadata.PassDescriptor) error
	// DrawBatch draws every item of batch with its material. depthWrite is
	// false for transparent batches.
	DrawBatch(batch *metadata.DrawBatch, depthWrite bool) error
	EndRenderPass() error
	PostProcess(desc *metadata.PostProcessDescriptor) error
	// EndFrame submits everything recorded since BeginFrame and presents.
	EndFrame() error
	Resize(width, height uint32) error
	SurfaceSize() (uint32, uint32)
	Shutdown() error
}
