package engine

import (
	"github.com/spaghettifunk/frameq/engine/assets"
	"github.com/spaghettifunk/frameq/engine/core"
	"github.com/spaghettifunk/frameq/engine/renderer"
	"github.com/spaghettifunk/frameq/engine/systems"
)

// Application is what game hooks get to work with.
type Application struct {
	Config   *core.Config
	Assets   *assets.AssetManager
	Renderer *renderer.Renderer
	Cameras  *systems.CameraSystem
	Events   *core.EventBus

	// FrameNumber counts executed frames, starting at zero.
	FrameNumber uint64
}

// Quit asks the engine to stop after the current frame.
func (a *Application) Quit() {
	a.Events.Fire(core.EVENT_CODE_APPLICATION_QUIT, a, core.EventContext{})
}
