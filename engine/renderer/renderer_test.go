package renderer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/frameq/engine/assets"
	"github.com/spaghettifunk/frameq/engine/core"
	"github.com/spaghettifunk/frameq/engine/renderer/components"
	"github.com/spaghettifunk/frameq/engine/renderer/metadata"
)

type drawCall struct {
	pass       string
	batch      *metadata.DrawBatch
	depthWrite bool
}

// recordingBackend remembers every call so tests can assert on the command
// stream a frame produced.
type recordingBackend struct {
	calls     []string
	passes    []*metadata.PassDescriptor
	draws     []drawCall
	processes []*metadata.PostProcessDescriptor

	currentPass string
	beginErr    error
	passErr     error
	drawErr     error
	width       uint32
	height      uint32
	shutdown    bool
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{width: 800, height: 600}
}

func (b *recordingBackend) BeginFrame() error {
	if b.beginErr != nil {
		return b.beginErr
	}
	b.calls = append(b.calls, "begin_frame")
	return nil
}

func (b *recordingBackend) BeginRenderPass(desc *metadata.PassDescriptor) error {
	if b.passErr != nil {
		return b.passErr
	}
	b.calls = append(b.calls, "begin_pass:"+desc.Name)
	b.passes = append(b.passes, desc)
	b.currentPass = desc.Name
	return nil
}

func (b *recordingBackend) DrawBatch(batch *metadata.DrawBatch, depthWrite bool) error {
	if b.drawErr != nil {
		return b.drawErr
	}
	b.calls = append(b.calls, fmt.Sprintf("draw:%d", len(batch.Items)))
	b.draws = append(b.draws, drawCall{pass: b.currentPass, batch: batch, depthWrite: depthWrite})
	return nil
}

func (b *recordingBackend) EndRenderPass() error {
	b.calls = append(b.calls, "end_pass")
	return nil
}

func (b *recordingBackend) PostProcess(desc *metadata.PostProcessDescriptor) error {
	b.calls = append(b.calls, "process:"+desc.SubjectName)
	b.processes = append(b.processes, desc)
	return nil
}

func (b *recordingBackend) EndFrame() error {
	b.calls = append(b.calls, "end_frame")
	return nil
}

func (b *recordingBackend) Resize(width, height uint32) error {
	b.width, b.height = width, height
	return nil
}

func (b *recordingBackend) SurfaceSize() (uint32, uint32) {
	return b.width, b.height
}

func (b *recordingBackend) Shutdown() error {
	b.shutdown = true
	return nil
}

// materialsOf flattens the draw stream into one material handle per item.
func (b *recordingBackend) materialsOf(pass string) []metadata.MaterialHandle {
	var out []metadata.MaterialHandle
	for _, d := range b.draws {
		if d.pass != pass {
			continue
		}
		for range d.batch.Items {
			out = append(out, d.batch.MaterialHandle)
		}
	}
	return out
}

type fixture struct {
	backend  *recordingBackend
	assets   *assets.AssetManager
	renderer *Renderer
	shader   metadata.ShaderHandle
	matA     metadata.MaterialHandle
	matB     metadata.MaterialHandle
	matC     metadata.MaterialHandle
}

func newFixture(t *testing.T, cfg *core.RendererConfig) *fixture {
	t.Helper()
	am, err := assets.NewAssetManager(nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = am.Shutdown() })

	f := &fixture{backend: newRecordingBackend(), assets: am}
	f.shader, err = am.CreateShader("sprite", "@vertex fn vs_main() {}\n@fragment fn fs_main() {}\n")
	if err != nil {
		t.Fatal(err)
	}
	f.matA = f.material(t, "a")
	f.matB = f.material(t, "b")
	f.matC = f.material(t, "c")

	f.renderer, err = New(f.backend, am, cfg)
	if err != nil {
		t.Fatal(err)
	}
	f.renderer.SetSchedule(NewScheduleBuilder().AddPass("main", "screen").MustBuild())
	return f
}

func (f *fixture) material(t *testing.T, name string) metadata.MaterialHandle {
	t.Helper()
	h, err := f.assets.CreateNamedMaterial(name, metadata.Material{Shader: f.shader, BlendMode: metadata.BlendModeAlphaBlend})
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func (f *fixture) sprite(t *testing.T, m metadata.MaterialHandle, z float32, pass string, transparent bool) {
	t.Helper()
	err := f.renderer.Queue(m, metadata.SpriteMapping{UVRect: metadata.FullUV}, metadata.NewSpriteTransform(0, 0, 10, 10, z), metadata.DefaultUniforms(), pass, transparent)
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
}

func TestExecuteDrawsTransparentInSubmissionOrder(t *testing.T) {
	f := newFixture(t, nil)
	f.sprite(t, f.matA, 0, "main", false)
	f.sprite(t, f.matB, 1, "main", true)
	f.sprite(t, f.matC, 0.5, "main", true)

	if err := f.renderer.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got := f.backend.materialsOf("main")
	want := []metadata.MaterialHandle{f.matA, f.matB, f.matC}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("draw order = %v, want %v", got, want)
	}
	if !f.backend.draws[0].depthWrite || f.backend.draws[1].depthWrite || f.backend.draws[2].depthWrite {
		t.Error("opaque batches must write depth and transparent batches must not")
	}
	if !f.backend.draws[1].batch.Transparent {
		t.Error("transparent batch not flagged")
	}
}

func TestTransparentOrderUnderInterleaving(t *testing.T) {
	f := newFixture(t, nil)
	f.sprite(t, f.matB, 0, "main", true)
	f.sprite(t, f.matA, 0, "main", false)
	f.sprite(t, f.matB, 9, "main", true)
	f.sprite(t, f.matC, 3, "main", true)
	f.sprite(t, f.matA, 0, "main", false)
	f.sprite(t, f.matB, -4, "main", true)

	if err := f.renderer.Execute(); err != nil {
		t.Fatal(err)
	}

	var transparent []*metadata.DrawBatch
	for _, d := range f.backend.draws {
		if d.batch.Transparent {
			transparent = append(transparent, d.batch)
		}
	}
	// only neighbours sharing a material merge
	wantSizes := []int{2, 1, 1}
	if len(transparent) != len(wantSizes) {
		t.Fatalf("got %d transparent batches, want %d", len(transparent), len(wantSizes))
	}
	last := float32(-1)
	for i, b := range transparent {
		if len(b.Items) != wantSizes[i] {
			t.Errorf("batch %d has %d items, want %d", i, len(b.Items), wantSizes[i])
		}
		for _, item := range b.Items {
			if item.QueueDepth <= last {
				t.Errorf("queue depth %v drawn after %v", item.QueueDepth, last)
			}
			last = item.QueueDepth
		}
	}
}

func TestOpaqueBatchesGroupByMaterial(t *testing.T) {
	f := newFixture(t, nil)
	f.sprite(t, f.matB, 0, "main", false)
	f.sprite(t, f.matA, 0, "main", false)
	f.sprite(t, f.matB, 0, "main", false)
	f.sprite(t, f.matA, 0, "main", false)

	if err := f.renderer.Execute(); err != nil {
		t.Fatal(err)
	}
	if len(f.backend.draws) != 2 {
		t.Fatalf("got %d batches, want 2", len(f.backend.draws))
	}
	for _, d := range f.backend.draws {
		if len(d.batch.Items) != 2 {
			t.Errorf("batch %s has %d items", d.batch.MaterialHandle, len(d.batch.Items))
		}
		if d.batch.Items[0].QueueDepth > d.batch.Items[1].QueueDepth {
			t.Error("batching reordered submissions of one material")
		}
	}
	if s := f.renderer.Stats(); s.Batches != 2 || s.Draws != 4 || s.Passes != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestDrawCountsExcludeStaleSubmissions(t *testing.T) {
	f := newFixture(t, nil)
	gone := f.material(t, "gone")
	f.assets.RemoveMaterial(gone)
	f.assets.FlushRemovals()

	f.sprite(t, f.matA, 0, "main", false)
	f.sprite(t, gone, 0, "main", false)
	f.sprite(t, f.matB, 0, "main", true)
	f.sprite(t, gone, 0, "main", true)
	f.sprite(t, f.matC, 0, "main", true)

	if err := f.renderer.Execute(); err != nil {
		t.Fatalf("a stale submission must not fail the frame: %v", err)
	}
	s := f.renderer.Stats()
	if s.Draws != 3 || s.Skipped != 2 {
		t.Errorf("stats = %+v, want 3 draws and 2 skipped", s)
	}
	got := f.backend.materialsOf("main")
	want := []metadata.MaterialHandle{f.matA, f.matB, f.matC}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("draws = %v, want %v", got, want)
	}
}

func TestStaleSubmissionUsesFallbackMaterial(t *testing.T) {
	cfg := core.DefaultConfig().Renderer
	cfg.FallbackMaterial = "fallback"
	f := newFixture(t, &cfg)
	fallback := f.material(t, "fallback")
	gone := f.material(t, "gone")
	f.assets.RemoveMaterial(gone)
	f.assets.FlushRemovals()

	f.sprite(t, gone, 0, "main", true)
	if err := f.renderer.Execute(); err != nil {
		t.Fatal(err)
	}
	got := f.backend.materialsOf("main")
	if len(got) != 1 || got[0] != fallback {
		t.Errorf("draws = %v, want the fallback %v", got, fallback)
	}
	if s := f.renderer.Stats(); s.Skipped != 0 {
		t.Errorf("skipped = %d, want 0", s.Skipped)
	}
}

func TestSecondExecuteDrawsNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.sprite(t, f.matA, 0, "main", false)
	f.sprite(t, f.matB, 0, "main", true)
	if err := f.renderer.Execute(); err != nil {
		t.Fatal(err)
	}
	drawn := len(f.backend.draws)

	if err := f.renderer.Execute(); err != nil {
		t.Fatal(err)
	}
	if len(f.backend.draws) != drawn {
		t.Errorf("second Execute issued %d draws", len(f.backend.draws)-drawn)
	}
	if s := f.renderer.Stats(); s.Draws != 0 || s.Passes != 0 {
		t.Errorf("stats = %+v, want an empty frame", s)
	}

	// the depth counter restarts every frame
	f.sprite(t, f.matB, 0, "main", true)
	if err := f.renderer.Execute(); err != nil {
		t.Fatal(err)
	}
	if d := f.backend.draws[len(f.backend.draws)-1].batch.Items[0].QueueDepth; d != 0 {
		t.Errorf("queue depth = %v, want 0", d)
	}
}

func TestGhostPassIsDropped(t *testing.T) {
	f := newFixture(t, nil)
	f.sprite(t, f.matA, 0, "ghost_pass", false)
	f.sprite(t, f.matB, 0, "ghost_pass", true)
	f.sprite(t, f.matC, 0, "main", false)

	if err := f.renderer.Execute(); err != nil {
		t.Fatal(err)
	}
	for _, d := range f.backend.draws {
		if d.pass != "main" {
			t.Errorf("draw recorded in pass %s", d.pass)
		}
	}
	if s := f.renderer.Stats(); s.Dropped != 2 || s.Draws != 1 {
		t.Errorf("stats = %+v, want 2 dropped and 1 draw", s)
	}

	// nothing carries over
	if err := f.renderer.Execute(); err != nil {
		t.Fatal(err)
	}
	if s := f.renderer.Stats(); s.Dropped != 0 {
		t.Errorf("dropped = %d on the next frame", s.Dropped)
	}
}

func TestAbortedFrameCountsPendingPassesAsSkipped(t *testing.T) {
	f := newFixture(t, nil)
	f.renderer.SetSchedule(NewScheduleBuilder().
		AddPass("main", "screen").
		AddPass("ui", "screen").
		MustBuild())
	f.sprite(t, f.matA, 0, "main", false)
	f.sprite(t, f.matB, 0, "main", true)
	f.sprite(t, f.matC, 0, "ui", false)
	f.sprite(t, f.matC, 0, "ghost_pass", false)

	f.backend.passErr = errors.New("device lost")
	if err := f.renderer.Execute(); err == nil {
		t.Fatal("Execute succeeded although the pass could not begin")
	}
	if s := f.renderer.Stats(); s.Skipped != 3 || s.Dropped != 1 || s.Draws != 0 {
		t.Errorf("stats = %+v, want 3 skipped and 1 dropped", s)
	}
}

func TestQueueKeepsAtMostMaxUniformParams(t *testing.T) {
	f := newFixture(t, nil)
	u := metadata.DefaultUniforms()
	u.Params = make([]float32, metadata.MaxUniformParams+4)
	for i := range u.Params {
		u.Params[i] = float32(i)
	}
	if err := f.renderer.Queue(f.matA, metadata.SpriteMapping{UVRect: metadata.FullUV}, metadata.NewSpriteTransform(0, 0, 1, 1, 0), u, "main", false); err != nil {
		t.Fatal(err)
	}
	if len(u.Params) != metadata.MaxUniformParams+4 {
		t.Error("Queue modified the caller's params")
	}

	if err := f.renderer.Execute(); err != nil {
		t.Fatal(err)
	}
	got := f.backend.draws[0].batch.Items[0].Uniforms.Params
	if len(got) != metadata.MaxUniformParams || got[metadata.MaxUniformParams-1] != float32(metadata.MaxUniformParams-1) {
		t.Errorf("params = %v", got)
	}
}

func TestQueueDepthStaysUniqueBeyondFloatPrecision(t *testing.T) {
	f := newFixture(t, nil)
	f.renderer.depthCounter = 1 << 24
	f.sprite(t, f.matA, 0, "main", true)
	f.sprite(t, f.matA, 0, "main", true)

	q := f.renderer.queues["main"].transparent
	if q[0].queueDepth == q[1].queueDepth {
		t.Errorf("both submissions got queue depth %d", q[0].queueDepth)
	}
	if err := f.renderer.Execute(); err != nil {
		t.Fatal(err)
	}
	if f.renderer.depthCounter != 0 {
		t.Errorf("depth counter = %d after Execute", f.renderer.depthCounter)
	}
}

func TestQueueRejectsMismatchedPairing(t *testing.T) {
	f := newFixture(t, nil)
	tests := []struct {
		name      string
		mapping   metadata.Mapping
		transform metadata.Transform
	}{
		{"sprite mapping with mesh transform", metadata.SpriteMapping{UVRect: metadata.FullUV}, metadata.NewMeshTransform(mgl32.Vec3{})},
		{"mesh mapping with sprite transform", metadata.MeshMapping{}, metadata.NewSpriteTransform(0, 0, 1, 1, 0)},
		{"nil mapping", nil, metadata.NewSpriteTransform(0, 0, 1, 1, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.renderer.Queue(f.matA, tt.mapping, tt.transform, metadata.DefaultUniforms(), "main", false)
			if !errors.Is(err, core.ErrMappingTransformMismatch) {
				t.Errorf("err = %v, want ErrMappingTransformMismatch", err)
			}
		})
	}
	if err := f.renderer.Execute(); err != nil {
		t.Fatal(err)
	}
	if len(f.backend.draws) != 0 {
		t.Errorf("rejected submissions were drawn: %d", len(f.backend.draws))
	}
}

func TestSurfaceLossKeepsQueues(t *testing.T) {
	f := newFixture(t, nil)
	f.sprite(t, f.matA, 0, "main", false)
	f.sprite(t, f.matB, 0, "main", true)

	f.backend.beginErr = core.ErrSurfaceLost
	err := f.renderer.Execute()
	if !errors.Is(err, core.ErrSurfaceLost) || !core.IsSurfaceError(err) {
		t.Fatalf("err = %v, want ErrSurfaceLost", err)
	}
	if len(f.backend.calls) != 0 {
		t.Fatalf("backend recorded %v on a lost surface", f.backend.calls)
	}

	f.backend.beginErr = nil
	if err := f.renderer.Resize(1024, 768); err != nil {
		t.Fatal(err)
	}
	if err := f.renderer.Execute(); err != nil {
		t.Fatal(err)
	}
	if s := f.renderer.Stats(); s.Draws != 2 {
		t.Errorf("retry drew %d items, want 2", s.Draws)
	}
}

func TestCreateDynamicRenderTargetIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	fog, err := f.renderer.CreateDynamicRenderTarget(320, 240, "fog")
	if err != nil {
		t.Fatal(err)
	}
	again, err := f.renderer.CreateDynamicRenderTarget(640, 480, "fog")
	if err != nil {
		t.Fatal(err)
	}
	if fog != again {
		t.Errorf("fog keys differ: %v vs %v", fog, again)
	}
	bloom, err := f.renderer.CreateDynamicRenderTarget(320, 240, "bloom")
	if err != nil {
		t.Fatal(err)
	}
	if bloom == fog {
		t.Error("different names share a target")
	}
	if _, err := f.renderer.CreateDynamicRenderTarget(0, 240, "empty"); err == nil {
		t.Error("zero sized target accepted")
	}
}

func TestTargetsClearOnFirstUseOnly(t *testing.T) {
	f := newFixture(t, nil)
	fog, err := f.renderer.CreateDynamicRenderTarget(320, 240, "fog")
	if err != nil {
		t.Fatal(err)
	}
	f.renderer.SetSchedule(NewScheduleBuilder().
		WithRenderTarget("fog", fog).
		AddPass("world", "fog").
		AddPass("decals", "fog").
		AddProcess("fog", f.shader, "screen").
		AddPass("ui", "screen").
		MustBuild())
	f.renderer.SetProcessParams(f.shader, 0.25)

	for _, pass := range []string{"world", "decals", "ui"} {
		f.sprite(t, f.matA, 0, pass, false)
	}
	if err := f.renderer.Execute(); err != nil {
		t.Fatal(err)
	}

	wantCalls := []string{
		"begin_frame",
		"begin_pass:world", "draw:1", "end_pass",
		"begin_pass:decals", "draw:1", "end_pass",
		"process:fog",
		"begin_pass:ui", "draw:1", "end_pass",
		"end_frame",
	}
	if fmt.Sprint(f.backend.calls) != fmt.Sprint(wantCalls) {
		t.Fatalf("calls = %v\nwant %v", f.backend.calls, wantCalls)
	}

	clears := []bool{f.backend.passes[0].Clear, f.backend.passes[1].Clear, f.backend.processes[0].Clear, f.backend.passes[2].Clear}
	if fmt.Sprint(clears) != fmt.Sprint([]bool{true, false, true, false}) {
		t.Errorf("clears = %v", clears)
	}
	if tex := f.backend.passes[0].TargetTexture; tex == nil || tex.Width != 320 {
		t.Errorf("fog pass target = %+v", tex)
	}
	p := f.backend.processes[0]
	if p.Subject == nil || p.Sampler != metadata.DefaultPostProcessSampler || len(p.Params) != 1 {
		t.Errorf("post-process descriptor = %+v", p)
	}
}

func TestProcessWithRemovedSubjectIsSkipped(t *testing.T) {
	f := newFixture(t, nil)
	fog, _ := f.renderer.CreateDynamicRenderTarget(64, 64, "fog")
	f.renderer.SetSchedule(NewScheduleBuilder().
		WithRenderTarget("fog", fog).
		AddProcess("fog", f.shader, "screen").
		MustBuild())
	h, _ := fog.Texture()
	f.assets.RemoveTexture(h)

	if err := f.renderer.Execute(); err != nil {
		t.Fatal(err)
	}
	if len(f.backend.processes) != 0 {
		t.Error("a removed texture was used as a post-process subject")
	}
	if s := f.renderer.Stats(); s.Skipped != 1 || s.Processes != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestPassCameraSetsViewProjection(t *testing.T) {
	f := newFixture(t, nil)
	cam := components.NewPerspectiveCamera(mgl32.DegToRad(60), 4.0/3.0, 0.1, 100)
	cam.SetPosition(mgl32.Vec3{0, 0, 10})
	f.renderer.SetPassCamera("main", cam)

	f.sprite(t, f.matA, 0, "main", false)
	if err := f.renderer.Execute(); err != nil {
		t.Fatal(err)
	}
	if got := f.backend.passes[0].ViewProjection; !got.ApproxEqual(cam.ViewProjection()) {
		t.Errorf("view projection = %v, want the camera's", got)
	}

	f.renderer.SetPassCamera("main", nil)
	f.sprite(t, f.matA, 0, "main", false)
	if err := f.renderer.Execute(); err != nil {
		t.Fatal(err)
	}
	want := components.NewOrthographicCamera(800, 600).ViewProjection()
	if got := f.backend.passes[1].ViewProjection; !got.ApproxEqual(want) {
		t.Errorf("default view projection = %v, want %v", got, want)
	}
}

func TestQueueCopiesUniforms(t *testing.T) {
	f := newFixture(t, nil)
	u := metadata.DefaultUniforms()
	u.Params = []float32{1, 2}
	if err := f.renderer.Queue(f.matA, metadata.SpriteMapping{UVRect: metadata.FullUV}, metadata.NewSpriteTransform(0, 0, 1, 1, 0), u, "main", false); err != nil {
		t.Fatal(err)
	}
	u.Params[0] = 99

	if err := f.renderer.Execute(); err != nil {
		t.Fatal(err)
	}
	if got := f.backend.draws[0].batch.Items[0].Uniforms.Params[0]; got != 1 {
		t.Errorf("param = %v, want the value at queue time", got)
	}
}

func TestMaterialRemovalIsAppliedAfterExecute(t *testing.T) {
	f := newFixture(t, nil)
	f.sprite(t, f.matA, 0, "main", false)
	f.assets.RemoveMaterial(f.matA)

	if err := f.renderer.Execute(); err != nil {
		t.Fatal(err)
	}
	if s := f.renderer.Stats(); s.Draws != 1 {
		t.Errorf("material removed mid-frame: stats %+v", s)
	}
	if _, ok := f.assets.GetMaterial(f.matA); ok {
		t.Error("material still present after Execute")
	}
}

func TestMeshSubmissionsResolveBuffers(t *testing.T) {
	f := newFixture(t, nil)
	vertices := []metadata.Vertex{
		{Position: mgl32.Vec3{0, 0, 0}},
		{Position: mgl32.Vec3{1, 0, 0}},
		{Position: mgl32.Vec3{0, 1, 0}},
	}
	mesh, err := f.assets.CreateMesh("tri", vertices, []uint16{0, 1, 2})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.renderer.Queue(f.matA, mesh.Mapping(), metadata.NewMeshTransform(mgl32.Vec3{0, 0, -5}), metadata.DefaultUniforms(), "main", false); err != nil {
		t.Fatal(err)
	}
	stale := mesh.Mapping()
	stale.VertexBuffer = metadata.VertexBufferHandle{Index: 42, Generation: 1}
	if err := f.renderer.Queue(f.matA, stale, metadata.NewMeshTransform(mgl32.Vec3{}), metadata.DefaultUniforms(), "main", false); err != nil {
		t.Fatal(err)
	}

	if err := f.renderer.Execute(); err != nil {
		t.Fatal(err)
	}
	if s := f.renderer.Stats(); s.Draws != 1 || s.Skipped != 1 {
		t.Fatalf("stats = %+v", s)
	}
	item := f.backend.draws[0].batch.Items[0]
	if item.VertexBuffer == nil || item.IndexBuffer == nil || item.Depth != -5 {
		t.Errorf("mesh item = %+v", item)
	}
}

func TestFailedBatchIsCountedAsSkipped(t *testing.T) {
	f := newFixture(t, nil)
	f.backend.drawErr = errors.New("pipeline compile failed")
	f.sprite(t, f.matA, 0, "main", false)
	if err := f.renderer.Execute(); err != nil {
		t.Fatalf("a failed batch must not fail the frame: %v", err)
	}
	if s := f.renderer.Stats(); s.Skipped != 1 || s.Draws != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestShutdownForwardsToBackend(t *testing.T) {
	f := newFixture(t, nil)
	f.sprite(t, f.matA, 0, "main", false)
	if err := f.renderer.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if !f.backend.shutdown {
		t.Error("backend not shut down")
	}
}
