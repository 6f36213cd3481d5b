package testbed

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/frameq/engine"
	"github.com/spaghettifunk/frameq/engine/assets"
	"github.com/spaghettifunk/frameq/engine/core"
	"github.com/spaghettifunk/frameq/engine/renderer"
	"github.com/spaghettifunk/frameq/engine/renderer/components"
	"github.com/spaghettifunk/frameq/engine/renderer/metadata"
)

const (
	spriteCount   = 24
	particleCount = 12
	fogDensity    = 0.35
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	elapsed float64
	width   uint32
	height  uint32

	worldCamera *components.Camera

	sprite   metadata.MaterialHandle
	glow     metadata.MaterialHandle
	meshMat  metadata.MaterialHandle
	fog      metadata.ShaderHandle
	triangle assets.MeshHandles

	meshRotation float32
}

func NewTestGame() *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			Name:  "frameq testbed",
			State: &gameState{},
		},
	}
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown
	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Initialize(app *engine.Application) error {
	core.LogInfo("initializing testbed...")
	s := g.state()
	s.width, s.height = app.Config.Application.Width, app.Config.Application.Height

	if err := createTextures(app.Assets); err != nil {
		return err
	}

	var err error
	if s.sprite, err = app.Assets.LoadMaterial("materials/sprite.toml"); err != nil {
		return err
	}
	if s.glow, err = app.Assets.LoadMaterial("materials/glow.toml"); err != nil {
		return err
	}
	if s.meshMat, err = app.Assets.LoadMaterial("materials/mesh.toml"); err != nil {
		return err
	}
	if s.triangle, err = app.Assets.LoadMesh("meshes/triangle.toml"); err != nil {
		return err
	}
	if s.fog, err = app.Assets.LoadShader("shaders/fog.wgsl"); err != nil {
		return err
	}

	world, err := app.Renderer.CreateDynamicRenderTarget(s.width, s.height, "world")
	if err != nil {
		return err
	}
	schedule, err := renderer.NewScheduleBuilder().
		WithRenderTarget("world", world).
		AddPass("sprites", "world").
		AddPass("meshes", "world").
		AddPass("particles", "world").
		AddProcess("world", s.fog, "screen").
		AddPass("ui", "screen").
		Build()
	if err != nil {
		return err
	}
	app.Renderer.SetSchedule(schedule)
	app.Renderer.SetProcessParams(s.fog, fogDensity, 0, 0, 0, 0.7, 0.75, 0.8, 1)

	aspect := float32(s.width) / float32(s.height)
	s.worldCamera, err = app.Cameras.AcquireWith("world", components.NewPerspectiveCamera(mgl32.DegToRad(45), aspect, 0.1, 100))
	if err != nil {
		return err
	}
	s.worldCamera.SetPosition(mgl32.Vec3{0, 0, 4})
	app.Renderer.SetPassCamera("meshes", s.worldCamera)

	app.Events.Register(core.EVENT_CODE_ASSET_RELOADED, g, func(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
		core.LogInfo("asset %s reloaded", data.Data.C[0])
		return false
	})
	return nil
}

// createTextures generates the textures the material files reference.
func createTextures(am *assets.AssetManager) error {
	const size = 16
	checker := make([]uint8, 0, size*size*4)
	glow := make([]uint8, 0, size*size*4)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if (x/4+y/4)%2 == 0 {
				checker = append(checker, 230, 120, 40, 255)
			} else {
				checker = append(checker, 40, 60, 90, 255)
			}
			dx, dy := float64(x)-size/2+0.5, float64(y)-size/2+0.5
			a := 1 - math.Min(1, math.Sqrt(dx*dx+dy*dy)/(size/2))
			glow = append(glow, 255, 220, 120, uint8(a*255))
		}
	}
	if _, err := am.CreateTexture("checker", size, size, checker); err != nil {
		return err
	}
	if _, err := am.CreateTexture("glow", size, size, glow); err != nil {
		return err
	}
	_, err := am.CreateTexture("white", 1, 1, []uint8{255, 255, 255, 255})
	return err
}

func (g *TestGame) Update(app *engine.Application, deltaTime float64) error {
	s := g.state()
	s.elapsed += deltaTime
	s.meshRotation += float32(deltaTime)
	return nil
}

func (g *TestGame) Render(app *engine.Application, deltaTime float64) error {
	s := g.state()
	r := app.Renderer
	w, h := float32(s.width), float32(s.height)
	full := metadata.SpriteMapping{UVRect: metadata.FullUV}

	for i := 0; i < spriteCount; i++ {
		col, row := float32(i%6), float32(i/6)
		x := w*0.1 + col*w*0.14
		y := h*0.15 + row*h*0.18 + float32(math.Sin(s.elapsed+float64(i)))*8
		t := metadata.NewSpriteTransform(x, y, 48, 48, float32(i%3))
		if err := r.Queue(s.sprite, full, t, metadata.DefaultUniforms(), "sprites", false); err != nil {
			return err
		}
	}

	mt := metadata.NewMeshTransform(mgl32.Vec3{0, 0, 0})
	mt.Rotation = mgl32.QuatRotate(s.meshRotation, mgl32.Vec3{0, 1, 0})
	if err := r.Queue(s.meshMat, s.triangle.Mapping(), mt, metadata.DefaultUniforms(), "meshes", false); err != nil {
		return err
	}

	for i := 0; i < particleCount; i++ {
		phase := s.elapsed*0.8 + float64(i)*2*math.Pi/particleCount
		x := w/2 + float32(math.Cos(phase))*w*0.3
		y := h/2 + float32(math.Sin(phase))*h*0.3
		u := metadata.DefaultUniforms()
		u.Tint = mgl32.Vec4{1, 1, 1, 0.5 + 0.5*float32(math.Sin(phase*2))}
		t := metadata.NewSpriteTransform(x, y, 32, 32, 10)
		if err := r.Queue(s.glow, full, t, u, "particles", true); err != nil {
			return err
		}
	}

	// a health bar in screen space, drawn after the fog
	bar := metadata.NewSpriteTransform(16, 16, w*0.3, 12, 0)
	u := metadata.DefaultUniforms()
	u.Tint = mgl32.Vec4{0.2, 0.9, 0.3, 1}
	return r.Queue(s.sprite, metadata.SpriteMapping{UVRect: mgl32.Vec4{0, 0, 0.25, 0.25}}, bar, u, "ui", false)
}

func (g *TestGame) OnResize(app *engine.Application, width uint32, height uint32) error {
	s := g.state()
	s.width, s.height = width, height
	core.LogDebug("testbed resized to %dx%d", width, height)
	return nil
}

func (g *TestGame) Shutdown(app *engine.Application) error {
	s := g.state()
	stats := app.Renderer.Stats()
	core.LogInfo("testbed done after %d frames, last frame: %s", app.FrameNumber, fmt.Sprintf("%+v", stats))
	if s.worldCamera != nil {
		app.Cameras.Release("world")
	}
	return nil
}
