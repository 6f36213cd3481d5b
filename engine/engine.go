package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/frameq/engine/assets"
	"github.com/spaghettifunk/frameq/engine/core"
	"github.com/spaghettifunk/frameq/engine/renderer"
	"github.com/spaghettifunk/frameq/engine/renderer/wgpu"
	"github.com/spaghettifunk/frameq/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released every resource
	EngineStageShutDown
)

// metricsLogInterval is how often, in frames, frame timings are logged.
const metricsLogInterval = 120

const suspendedPollInterval = 50 * time.Millisecond

type Engine struct {
	currentStage Stage
	gameInstance *Game
	config       *core.Config
	app          *Application

	renderContext *wgpu.RenderContext
	backend       *wgpu.Backend
	assetManager  *assets.AssetManager
	renderer      *renderer.Renderer
	cameraSystem  *systems.CameraSystem
	events        *core.EventBus

	isRunning   atomic.Bool
	isSuspended bool
	width       uint32
	height      uint32
	clock       *core.Clock
	metrics     *core.Metrics
	lastTime    float64
}

// New creates the GPU device, the backend, the asset manager and the
// renderer. A nil cfg uses core.DefaultConfig.
func New(g *Game, cfg *core.Config) (*Engine, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: nil game", core.ErrInvalidConfig)
	}
	if cfg == nil {
		cfg = core.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		core.LogError("%s", err.Error())
		return nil, err
	}
	level, _ := core.ParseLogLevel(cfg.Log.Level)
	core.SetLogLevel(level)

	e := &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		config:       cfg,
		events:       core.NewEventBus(),
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		width:        cfg.Application.Width,
		height:       cfg.Application.Height,
	}
	if err := e.create(); err != nil {
		e.release()
		return nil, err
	}
	e.app = &Application{
		Config:   cfg,
		Assets:   e.assetManager,
		Renderer: e.renderer,
		Cameras:  e.cameraSystem,
		Events:   e.events,
	}
	return e, nil
}

func (e *Engine) create() error {
	var err error
	if e.renderContext, err = wgpu.NewRenderContext(&e.config.Renderer); err != nil {
		return err
	}
	if e.backend, err = wgpu.NewBackend(e.renderContext, e.gameInstance.Surface, &e.config.Renderer, e.width, e.height); err != nil {
		return err
	}
	if e.assetManager, err = assets.NewAssetManager(e.backend); err != nil {
		return err
	}
	if e.renderer, err = renderer.New(e.backend, e.assetManager, &e.config.Renderer); err != nil {
		core.LogError("%s", err.Error())
		return err
	}
	e.cameraSystem, err = systems.NewCameraSystem(&systems.CameraSystemConfig{
		MaxCameraCount: 61,
		Width:          e.width,
		Height:         e.height,
	})
	return err
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_RESIZED, e, e.onResized)

	dir, watch := e.config.Assets.Dir, e.config.Assets.Watch
	if _, err := os.Stat(dir); err != nil && watch {
		core.LogWarn("asset directory %s is not available, hot reload disabled: %s", dir, err)
		watch = false
	}
	if err := e.assetManager.Initialize(dir, watch); err != nil {
		return err
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e.app); err != nil {
			core.LogError("game initialization failed: %s", err)
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.app, e.width, e.height); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	return nil
}

// Run drives the frame loop until ctx is done, a quit event arrives or the
// configured frame limit is reached.
func (e *Engine) Run(ctx context.Context) error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine must be initialized before running, stage is %d", e.currentStage)
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	maxFrames := e.config.Application.MaxFrames
	for e.isRunning.Load() {
		select {
		case <-ctx.Done():
			core.LogInfo("context done, leaving the frame loop")
			e.isRunning.Store(false)
			continue
		default:
		}
		if e.isSuspended {
			time.Sleep(suspendedPollInterval)
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime

		if err := e.frame(delta); err != nil {
			e.isRunning.Store(false)
			return err
		}

		e.clock.Update()
		e.metrics.Update(e.clock.Elapsed() - currentTime)
		e.app.FrameNumber++
		if e.app.FrameNumber%metricsLogInterval == 0 {
			fps, frameTime := e.metrics.Frame()
			core.LogDebug("frame %d: %.1f fps, %.3f ms", e.app.FrameNumber, fps, frameTime)
		}
		if maxFrames > 0 && e.app.FrameNumber >= maxFrames {
			core.LogInfo("reached %d frames, stopping", maxFrames)
			e.isRunning.Store(false)
		}
		e.lastTime = currentTime
	}
	return nil
}

func (e *Engine) frame(delta float64) error {
	for _, name := range e.assetManager.ProcessReloads() {
		ctx := core.EventContext{}
		ctx.Data.C[0] = name
		e.events.Fire(core.EVENT_CODE_ASSET_RELOADED, e, ctx)
	}

	if e.gameInstance.FnUpdate != nil {
		if err := e.gameInstance.FnUpdate(e.app, delta); err != nil {
			core.LogError("game update failed, shutting down: %s", err)
			return err
		}
	}
	if e.gameInstance.FnRender != nil {
		if err := e.gameInstance.FnRender(e.app, delta); err != nil {
			core.LogError("game render failed, shutting down: %s", err)
			return err
		}
	}
	return e.execute()
}

// execute renders the queued frame. A lost or outdated surface is
// reconfigured and the frame retried once.
func (e *Engine) execute() error {
	err := e.renderer.Execute()
	if err == nil {
		return nil
	}
	if !core.IsSurfaceError(err) {
		core.LogError("frame %d failed: %s", e.app.FrameNumber, err)
		return err
	}
	w, h := e.backend.SurfaceSize()
	if w == 0 || h == 0 {
		w, h = e.width, e.height
	}
	core.LogWarn("%s, reconfiguring surface at %dx%d", err, w, h)
	if rerr := e.renderer.Resize(w, h); rerr != nil {
		return errors.Join(err, rerr)
	}
	if err := e.renderer.Execute(); err != nil {
		core.LogError("frame %d failed after reconfiguring the surface: %s", e.app.FrameNumber, err)
		return err
	}
	return nil
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutDown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	var errs []error
	if path := e.config.Application.CapturePath; path != "" && e.app.FrameNumber > 0 {
		if err := e.capture(path); err != nil {
			core.LogError("failed to capture the last frame: %s", err)
			errs = append(errs, err)
		} else {
			core.LogInfo("last frame written to %s", path)
		}
	}
	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(e.app); err != nil {
			errs = append(errs, err)
		}
	}
	e.events.Shutdown()
	errs = append(errs, e.release()...)
	e.currentStage = EngineStageShutDown
	return errors.Join(errs...)
}

func (e *Engine) capture(path string) error {
	offscreen, ok := e.backend.Surface().(*wgpu.OffscreenSurface)
	if !ok {
		return fmt.Errorf("%w: capture needs an offscreen surface, got %T", core.ErrUnsupported, e.backend.Surface())
	}
	return offscreen.Capture(path)
}

// release frees subsystems in reverse creation order. Asset records go
// before the backend since destroying them needs the device.
func (e *Engine) release() []error {
	var errs []error
	if e.cameraSystem != nil {
		errs = append(errs, e.cameraSystem.Shutdown())
	}
	if e.assetManager != nil {
		errs = append(errs, e.assetManager.Shutdown())
		e.assetManager = nil
	}
	if e.renderer != nil {
		errs = append(errs, e.renderer.Shutdown())
		e.renderer = nil
		e.backend = nil
	}
	if e.backend != nil {
		errs = append(errs, e.backend.Shutdown())
		e.backend = nil
	}
	if e.renderContext != nil {
		e.renderContext.Destroy()
		e.renderContext = nil
	}
	return errs
}

func (e *Engine) Application() *Application {
	return e.app
}

func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	switch code {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning.Store(false)
		return true
	}
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	width, height := data.Data.U32[0], data.Data.U32[1]
	if width == e.width && height == e.height && !e.isSuspended {
		return false
	}
	e.width, e.height = width, height
	core.LogDebug("Window resize: %d, %d", width, height)

	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return true
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if err := e.renderer.Resize(width, height); err != nil {
		return true
	}
	e.cameraSystem.Resize(width, height)
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.app, width, height); err != nil {
			core.LogError("game resize failed: %s", err)
		}
	}
	return false
}
