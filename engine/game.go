package engine

import "github.com/spaghettifunk/frameq/engine/renderer/wgpu"

// Game is the set of hooks the engine calls. Every hook is optional.
type Game struct {
	Name  string
	State interface{}
	// Surface backs the screen target. nil renders offscreen.
	Surface wgpu.Surface

	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

type Initialize func(app *Application) error
type Update func(app *Application, deltaTime float64) error

// Render queues the frame's draws. The engine executes the renderer right
// after it returns.
type Render func(app *Application, deltaTime float64) error
type OnResize func(app *Application, width uint32, height uint32) error
type Shutdown func(app *Application) error
