package renderer

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/frameq/engine/assets"
	"github.com/spaghettifunk/frameq/engine/containers"
	"github.com/spaghettifunk/frameq/engine/core"
	"github.com/spaghettifunk/frameq/engine/renderer/components"
	"github.com/spaghettifunk/frameq/engine/renderer/metadata"
)

// FrameStats describes the last executed frame.
type FrameStats struct {
	Passes    int
	Processes int
	Batches   int
	Draws     int
	// Skipped counts submissions and steps dropped because a resource they
	// reference no longer resolves.
	Skipped int
	// Dropped counts submissions queued to passes the schedule never runs.
	Dropped int
}

type queueEntry struct {
	material   metadata.MaterialHandle
	mapping    metadata.Mapping
	model      mgl32.Mat4
	depth      float32
	queueDepth uint32
	uniforms   metadata.MaterialUniforms
}

type passQueue struct {
	opaque      []queueEntry
	transparent []queueEntry
}

func (q *passQueue) len() int {
	return len(q.opaque) + len(q.transparent)
}

// Renderer collects draw submissions during a frame and replays them
// through its schedule on Execute. A Renderer belongs to one window and is
// driven from a single goroutine.
type Renderer struct {
	backend RendererBackend
	assets  *assets.AssetManager
	config  core.RendererConfig

	schedule      *RenderSchedule
	queues        map[string]*passQueue
	depthCounter  uint32
	cameras       map[string]*components.Camera
	processParams map[metadata.ShaderHandle][]float32
	clearColor    mgl32.Vec4

	stats FrameStats
}

func New(backend RendererBackend, am *assets.AssetManager, cfg *core.RendererConfig) (*Renderer, error) {
	if backend == nil {
		return nil, errors.New("renderer needs a backend")
	}
	if am == nil {
		return nil, errors.New("renderer needs an asset manager")
	}
	if cfg == nil {
		cfg = &core.DefaultConfig().Renderer
	}
	r := &Renderer{
		backend:       backend,
		assets:        am,
		config:        *cfg,
		schedule:      NewScheduleBuilder().MustBuild(),
		queues:        make(map[string]*passQueue),
		cameras:       make(map[string]*components.Camera),
		processParams: make(map[metadata.ShaderHandle][]float32),
		clearColor:    mgl32.Vec4(cfg.ClearColor),
	}
	return r, nil
}

// SetSchedule replaces the schedule used from the next Execute on.
func (r *Renderer) SetSchedule(schedule *RenderSchedule) {
	if schedule == nil {
		schedule = NewScheduleBuilder().MustBuild()
	}
	r.schedule = schedule
}

func (r *Renderer) Schedule() *RenderSchedule {
	return r.schedule
}

// CreateDynamicRenderTarget returns the offscreen target registered under
// name, allocating a width x height texture the first time the name is
// seen. Later calls return the same key whatever size they ask for.
func (r *Renderer) CreateDynamicRenderTarget(width, height uint32, name string) (metadata.RenderTargetKey, error) {
	if width == 0 || height == 0 {
		return metadata.RenderTargetKey{}, fmt.Errorf("render target %s: invalid size %dx%d", name, width, height)
	}
	label := fmt.Sprintf("%s-%s", name, uuid.New())
	key, created, err := r.assets.GetOrCreateRenderTarget(name, label, width, height)
	if err != nil {
		return metadata.RenderTargetKey{}, err
	}
	if created {
		core.LogDebug("render target %s created (%dx%d) as %s", name, width, height, label)
	}
	return key, nil
}

// Queue submits one drawable to pass for the current frame. The pass name
// is not checked against the schedule; entries for passes the schedule
// never runs are discarded at the end of the frame. Only the first
// metadata.MaxUniformParams uniform params are kept, with a warning when
// more are given.
func (r *Renderer) Queue(material metadata.MaterialHandle, mapping metadata.Mapping, transform metadata.Transform, uniforms metadata.MaterialUniforms, pass string, allowTransparency bool) error {
	if err := metadata.CheckPairing(mapping, transform); err != nil {
		return err
	}
	uniforms = uniforms.Clone()
	if n := len(uniforms.Params); n > metadata.MaxUniformParams {
		core.LogWarn("pass %s: %d uniform params given, only the first %d are uploaded", pass, n, metadata.MaxUniformParams)
		uniforms.Params = uniforms.Params[:metadata.MaxUniformParams]
	}
	entry := queueEntry{
		material:   material,
		mapping:    mapping,
		model:      transform.Matrix(),
		depth:      transform.Depth(),
		queueDepth: r.depthCounter,
		uniforms:   uniforms,
	}
	r.depthCounter++

	q, ok := r.queues[pass]
	if !ok {
		q = &passQueue{}
		r.queues[pass] = q
	}
	if allowTransparency {
		q.transparent = append(q.transparent, entry)
	} else {
		q.opaque = append(q.opaque, entry)
	}
	return nil
}

// SetPassCamera makes pass render through camera. A nil camera restores
// the default orthographic projection over the pass target.
func (r *Renderer) SetPassCamera(pass string, camera *components.Camera) {
	if camera == nil {
		delete(r.cameras, pass)
		return
	}
	r.cameras[pass] = camera
}

func (r *Renderer) SetClearColor(color mgl32.Vec4) {
	r.clearColor = color
}

// SetProcessParams sets the parameters uploaded to every post-process step
// running shader.
func (r *Renderer) SetProcessParams(shader metadata.ShaderHandle, params ...float32) {
	if len(params) == 0 {
		delete(r.processParams, shader)
		return
	}
	r.processParams[shader] = append([]float32(nil), params...)
}

func (r *Renderer) Stats() FrameStats {
	return r.stats
}

func (r *Renderer) Resize(width, height uint32) error {
	if width == 0 || height == 0 {
		return nil
	}
	return r.backend.Resize(width, height)
}

func (r *Renderer) Shutdown() error {
	r.reset()
	return r.backend.Shutdown()
}

// Execute renders every schedule step in order and submits the frame.
// When the surface cannot be acquired the queued work is kept, so the
// caller can resize and call Execute again.
func (r *Renderer) Execute() error {
	if err := r.backend.BeginFrame(); err != nil {
		if core.IsSurfaceError(err) {
			return fmt.Errorf("begin frame: %w", err)
		}
		core.LogError("failed to begin frame: %s", err)
		return err
	}

	f := &frame{
		renderer: r,
		cleared:  make(map[metadata.RenderTargetKey]bool),
	}
	err := f.run()
	if endErr := r.backend.EndFrame(); endErr != nil && err == nil {
		err = fmt.Errorf("end frame: %w", endErr)
	}

	for pass, q := range r.queues {
		if r.schedule.hasPass(pass) {
			// the frame was aborted before this pass ran
			f.stats.Skipped += q.len()
			core.LogWarn("skipped %d submissions for pass %s after the frame was aborted", q.len(), pass)
			continue
		}
		f.stats.Dropped += q.len()
		core.LogDebug("dropped %d submissions for pass %s, which is not scheduled", q.len(), pass)
	}
	r.stats = f.stats
	r.reset()
	r.assets.FlushRemovals()
	return err
}

func (r *Renderer) reset() {
	clear(r.queues)
	r.depthCounter = 0
}

// frame holds the state of one Execute call.
type frame struct {
	renderer *Renderer
	cleared  map[metadata.RenderTargetKey]bool
	fallback *resolvedMaterial
	stats    FrameStats

	fallbackResolved bool
}

type resolvedMaterial struct {
	handle   metadata.MaterialHandle
	material metadata.Material
	shader   *metadata.Shader
	textures []*metadata.Texture
}

type resolvedEntry struct {
	queueEntry
	mat          *resolvedMaterial
	vertexBuffer *metadata.VertexBuffer
	indexBuffer  *metadata.IndexBuffer
}

func (f *frame) run() error {
	for _, step := range f.renderer.schedule.steps {
		switch s := step.(type) {
		case PassStep:
			if err := f.runPass(s); err != nil {
				return err
			}
		case ProcessStep:
			if err := f.runProcess(s); err != nil {
				return err
			}
		}
	}
	return nil
}

// useTarget reports whether key has to be cleared, which is only the case
// the first time it is written in a frame.
func (f *frame) useTarget(key metadata.RenderTargetKey) bool {
	if f.cleared[key] {
		return false
	}
	f.cleared[key] = true
	return true
}

func (f *frame) targetTexture(key metadata.RenderTargetKey) (*metadata.Texture, bool) {
	h, ok := key.Texture()
	if !ok {
		return nil, true
	}
	return f.renderer.assets.GetTexture(h)
}

func (f *frame) targetSize(tex *metadata.Texture) (uint32, uint32) {
	if tex != nil {
		return tex.Width, tex.Height
	}
	return f.renderer.backend.SurfaceSize()
}

func (f *frame) runPass(step PassStep) error {
	r := f.renderer
	q, ok := r.queues[step.Pass]
	if !ok {
		return nil
	}
	delete(r.queues, step.Pass)

	key := r.schedule.targets[step.Target]
	target, ok := f.targetTexture(key)
	if !ok {
		core.LogWarn("pass %s: render target %s no longer exists, skipping %d submissions", step.Pass, step.Target, q.len())
		f.stats.Skipped += q.len()
		return nil
	}

	opaque := f.batchOpaque(f.resolveAll(q.opaque))
	transparent := f.batchTransparent(f.resolveAll(q.transparent))

	desc := &metadata.PassDescriptor{
		Name:           step.Pass,
		Target:         key,
		TargetTexture:  target,
		Clear:          f.useTarget(key),
		ClearColor:     r.clearColor,
		ViewProjection: f.viewProjection(step.Pass, target),
	}
	if err := r.backend.BeginRenderPass(desc); err != nil {
		core.LogError("failed to begin pass %s: %s", step.Pass, err)
		f.stats.Skipped += q.len()
		return err
	}
	f.stats.Passes++
	for _, b := range opaque {
		f.draw(step.Pass, b, true)
	}
	for _, b := range transparent {
		f.draw(step.Pass, b, false)
	}
	if err := r.backend.EndRenderPass(); err != nil {
		core.LogError("failed to end pass %s: %s", step.Pass, err)
		return err
	}
	return nil
}

func (f *frame) draw(pass string, b *metadata.DrawBatch, depthWrite bool) {
	if err := f.renderer.backend.DrawBatch(b, depthWrite); err != nil {
		core.LogError("pass %s: failed to draw %d items with %s: %s", pass, len(b.Items), b.MaterialHandle, err)
		f.stats.Skipped += len(b.Items)
		return
	}
	f.stats.Batches++
	f.stats.Draws += len(b.Items)
}

func (f *frame) viewProjection(pass string, target *metadata.Texture) mgl32.Mat4 {
	if cam, ok := f.renderer.cameras[pass]; ok {
		return cam.ViewProjection()
	}
	w, h := f.targetSize(target)
	return components.NewOrthographicCamera(float32(w), float32(h)).ViewProjection()
}

// resolveMaterial looks up a material together with its shader and
// textures. Any stale reference makes the whole material unusable.
func (f *frame) resolveMaterial(h metadata.MaterialHandle) (*resolvedMaterial, bool) {
	am := f.renderer.assets
	m, ok := am.GetMaterial(h)
	if !ok {
		return nil, false
	}
	shader, ok := am.GetShader(m.Shader)
	if !ok {
		return nil, false
	}
	textures := make([]*metadata.Texture, 0, len(m.Textures))
	for _, th := range m.Textures {
		tex, ok := am.GetTexture(th)
		if !ok {
			return nil, false
		}
		textures = append(textures, tex)
	}
	return &resolvedMaterial{handle: h, material: m, shader: shader, textures: textures}, true
}

func (f *frame) fallbackMaterial() (*resolvedMaterial, bool) {
	if !f.fallbackResolved {
		f.fallbackResolved = true
		if name := f.renderer.config.FallbackMaterial; name != "" {
			if h, ok := f.renderer.assets.GetMaterialKey(name); ok {
				f.fallback, _ = f.resolveMaterial(h)
			}
		}
	}
	return f.fallback, f.fallback != nil
}

func (f *frame) resolveAll(entries []queueEntry) []resolvedEntry {
	cache := make(map[metadata.MaterialHandle]*resolvedMaterial)
	out := make([]resolvedEntry, 0, len(entries))
	for _, e := range entries {
		mat, ok := cache[e.material]
		if !ok {
			mat, ok = f.resolveMaterial(e.material)
			if !ok {
				mat, ok = f.fallbackMaterial()
				if !ok {
					core.LogWarn("material %s no longer resolves, skipping submission", e.material)
					f.stats.Skipped++
					continue
				}
			}
			cache[e.material] = mat
		}
		re := resolvedEntry{queueEntry: e, mat: mat}
		if mm, isMesh := e.mapping.(metadata.MeshMapping); isMesh {
			vb, vok := f.renderer.assets.GetVertexBuffer(mm.VertexBuffer)
			ib, iok := f.renderer.assets.GetIndexBuffer(mm.IndexBuffer)
			if !vok || !iok {
				core.LogWarn("mesh buffers of submission %v no longer resolve, skipping", e.queueDepth)
				f.stats.Skipped++
				continue
			}
			re.vertexBuffer, re.indexBuffer = vb, ib
		}
		out = append(out, re)
	}
	return out
}

func compareHandles(a, b containers.Handle) int {
	switch {
	case a.Index != b.Index:
		if a.Index < b.Index {
			return -1
		}
		return 1
	case a.Generation < b.Generation:
		return -1
	case a.Generation > b.Generation:
		return 1
	}
	return 0
}

// batchOpaque groups entries by shader then material. The sort is stable
// so entries sharing a material keep their submission order.
func (f *frame) batchOpaque(entries []resolvedEntry) []*metadata.DrawBatch {
	slices.SortStableFunc(entries, func(a, b resolvedEntry) int {
		if c := compareHandles(containers.Handle(a.mat.material.Shader), containers.Handle(b.mat.material.Shader)); c != 0 {
			return c
		}
		return compareHandles(containers.Handle(a.mat.handle), containers.Handle(b.mat.handle))
	})
	return groupConsecutive(entries, false)
}

// batchTransparent keeps submission order and only merges neighbours that
// share a material.
func (f *frame) batchTransparent(entries []resolvedEntry) []*metadata.DrawBatch {
	return groupConsecutive(entries, true)
}

func groupConsecutive(entries []resolvedEntry, transparent bool) []*metadata.DrawBatch {
	var batches []*metadata.DrawBatch
	var current *metadata.DrawBatch
	for _, e := range entries {
		if current == nil || current.MaterialHandle != e.mat.handle {
			current = &metadata.DrawBatch{
				MaterialHandle: e.mat.handle,
				Material:       e.mat.material,
				Shader:         e.mat.shader,
				Textures:       e.mat.textures,
				Transparent:    transparent,
			}
			batches = append(batches, current)
		}
		current.Items = append(current.Items, metadata.DrawItem{
			Mapping:      e.mapping,
			Model:        e.model,
			Uniforms:     e.uniforms,
			Depth:        e.depth,
			QueueDepth:   float32(e.queueDepth),
			VertexBuffer: e.vertexBuffer,
			IndexBuffer:  e.indexBuffer,
		})
	}
	return batches
}

func (f *frame) runProcess(step ProcessStep) error {
	r := f.renderer
	subjectKey := r.schedule.targets[step.Subject]
	subjectHandle, ok := subjectKey.Texture()
	if !ok {
		core.LogWarn("post-process on %s: the screen cannot be sampled, skipping", step.Subject)
		f.stats.Skipped++
		return nil
	}
	subject, ok := r.assets.GetTexture(subjectHandle)
	if !ok {
		core.LogWarn("post-process subject %s no longer exists, skipping", step.Subject)
		f.stats.Skipped++
		return nil
	}
	shader, ok := r.assets.GetShader(step.Shader)
	if !ok {
		core.LogWarn("post-process shader %s no longer exists, skipping", step.Shader)
		f.stats.Skipped++
		return nil
	}
	targetKey := r.schedule.targets[step.Target]
	target, ok := f.targetTexture(targetKey)
	if !ok {
		core.LogWarn("post-process target %s no longer exists, skipping", step.Target)
		f.stats.Skipped++
		return nil
	}

	desc := &metadata.PostProcessDescriptor{
		SubjectName:   step.Subject,
		Subject:       subject,
		Shader:        shader,
		Target:        targetKey,
		TargetTexture: target,
		Clear:         f.useTarget(targetKey),
		Sampler:       metadata.DefaultPostProcessSampler,
		Params:        r.processParams[step.Shader],
	}
	if err := r.backend.PostProcess(desc); err != nil {
		core.LogError("post-process %s -> %s failed: %s", step.Subject, step.Target, err)
		f.stats.Skipped++
		return nil
	}
	f.stats.Processes++
	return nil
}
