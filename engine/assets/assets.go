package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/spaghettifunk/frameq/engine/assets/loaders"
	"github.com/spaghettifunk/frameq/engine/containers"
	"github.com/spaghettifunk/frameq/engine/core"
	"github.com/spaghettifunk/frameq/engine/renderer/metadata"
	"github.com/spaghettifunk/frameq/engine/systems"
)

// MeshHandles are the buffers backing one mesh.
type MeshHandles struct {
	VertexBuffer metadata.VertexBufferHandle
	IndexBuffer  metadata.IndexBufferHandle
	VertexCount  uint32
	IndexCount   uint32
}

// Mapping returns a mesh mapping drawing the whole mesh.
func (m MeshHandles) Mapping() metadata.MeshMapping {
	return metadata.MeshMapping{
		VertexBuffer: m.VertexBuffer,
		IndexBuffer:  m.IndexBuffer,
		VertexCount:  m.VertexCount,
		IndexCount:   m.IndexCount,
	}
}

// AssetManager owns the resource tables the renderer resolves handles
// against. Every table is guarded by its own read/write lock so lookups
// from several submitting goroutines run concurrently.
type AssetManager struct {
	backend ResourceBackend
	loaders map[metadata.ResourceType]Loader
	jobs    *systems.JobSystem
	baseDir string

	textures      *table[*metadata.Texture]
	shaders       *table[*metadata.Shader]
	materials     *table[metadata.Material]
	vertexBuffers *table[*metadata.VertexBuffer]
	indexBuffers  *table[*metadata.IndexBuffer]

	meshMu sync.RWMutex
	meshes map[string]MeshHandles

	targetMu      sync.Mutex
	renderTargets map[string]metadata.RenderTargetKey

	removalMu        sync.Mutex
	pendingRemovals  []metadata.MaterialHandle
	watcher          *watcher
	pendingReloadsMu sync.Mutex
	pendingReloads   map[string]struct{}
}

// NewAssetManager creates the tables. backend may be nil, in which case
// records are stored without GPU resources.
func NewAssetManager(backend ResourceBackend) (*AssetManager, error) {
	js, err := systems.NewJobSystem(runtime.NumCPU(), 64)
	if err != nil {
		core.LogError("%s", err.Error())
		return nil, err
	}
	am := &AssetManager{
		backend:        backend,
		loaders:        make(map[metadata.ResourceType]Loader),
		jobs:           js,
		textures:       newTable[*metadata.Texture](),
		shaders:        newTable[*metadata.Shader](),
		materials:      newTable[metadata.Material](),
		vertexBuffers:  newTable[*metadata.VertexBuffer](),
		indexBuffers:   newTable[*metadata.IndexBuffer](),
		meshes:         make(map[string]MeshHandles),
		renderTargets:  make(map[string]metadata.RenderTargetKey),
		pendingReloads: make(map[string]struct{}),
	}

	// Register loaders
	am.registerLoader(metadata.ResourceTypeImage, &loaders.ImageLoader{})
	am.registerLoader(metadata.ResourceTypeShader, &loaders.ShaderLoader{})
	am.registerLoader(metadata.ResourceTypeMaterial, &loaders.MaterialLoader{})
	am.registerLoader(metadata.ResourceTypeMesh, &loaders.MeshLoader{})

	return am, nil
}

// Initialize sets the directory relative asset paths resolve against and
// optionally starts watching it for changes.
func (am *AssetManager) Initialize(assetsDir string, watch bool) error {
	am.baseDir = assetsDir
	if !watch {
		return nil
	}
	w, err := newWatcher(am.onFileChanged)
	if err != nil {
		core.LogError("failed to create asset watcher: %s", err)
		return err
	}
	if err := w.addRecursive(assetsDir); err != nil {
		w.close()
		core.LogError("failed to watch %s: %s", assetsDir, err)
		return err
	}
	am.watcher = w
	go w.start()
	return nil
}

func (am *AssetManager) Shutdown() error {
	if am.watcher != nil {
		am.watcher.close()
	}
	if err := am.jobs.Shutdown(); err != nil {
		return err
	}
	if am.backend == nil {
		return nil
	}
	for _, t := range am.textures.drain() {
		am.backend.DestroyTexture(t)
	}
	for _, s := range am.shaders.drain() {
		am.backend.DestroyShader(s)
	}
	for _, vb := range am.vertexBuffers.drain() {
		am.backend.DestroyVertexBuffer(vb)
	}
	for _, ib := range am.indexBuffers.drain() {
		am.backend.DestroyIndexBuffer(ib)
	}
	return nil
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType metadata.ResourceType, loader Loader) {
	am.loaders[assetType] = loader
}

// Resolve returns path joined to the assets directory unless it is absolute
// or already exists as given.
func (am *AssetManager) Resolve(path string) string {
	if filepath.IsAbs(path) || am.baseDir == "" {
		return path
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return filepath.Join(am.baseDir, path)
}

// Load an asset using the appropriate loader
func (am *AssetManager) loadResource(path string, resourceType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	loader, ok := am.loaders[resourceType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrNoLoader, resourceType)
	}
	res, err := loader.Load(am.Resolve(path), resourceType, params)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %s: %w", resourceType, path, err)
	}
	return res, nil
}

// Textures

// LoadTexture decodes the image at path and uploads it. Loading a path
// twice returns the cached handle.
func (am *AssetManager) LoadTexture(path string) (metadata.TextureHandle, error) {
	if h, ok := am.GetTextureKey(path); ok {
		return h, nil
	}
	res, err := am.loadResource(path, metadata.ResourceTypeImage, &metadata.ImageResourceParams{})
	if err != nil {
		core.LogError("%s", err.Error())
		return metadata.TextureHandle{}, err
	}
	img := res.Data.(*metadata.ImageResourceData)
	return am.CreateTexture(path, img.Width, img.Height, img.Pixels)
}

// LoadTextures decodes every path on the job system workers, then uploads
// the results on the calling goroutine. Already loaded paths are skipped.
func (am *AssetManager) LoadTextures(paths []string) error {
	decoded := make([]*metadata.ImageResourceData, len(paths))
	var tasks []systems.JobTask
	seen := make(map[string]bool, len(paths))
	for i, p := range paths {
		if _, ok := am.GetTextureKey(p); ok || seen[p] {
			continue
		}
		seen[p] = true
		idx, path := i, p
		tasks = append(tasks, systems.JobTask{
			Name: "decode " + path,
			OnStart: func() error {
				res, err := am.loadResource(path, metadata.ResourceTypeImage, &metadata.ImageResourceParams{})
				if err != nil {
					return err
				}
				decoded[idx] = res.Data.(*metadata.ImageResourceData)
				return nil
			},
		})
	}
	if err := am.jobs.RunAll(tasks); err != nil {
		return err
	}
	for i, img := range decoded {
		if img == nil {
			continue
		}
		if _, err := am.CreateTexture(paths[i], img.Width, img.Height, img.Pixels); err != nil {
			return err
		}
	}
	return nil
}

// CreateTexture uploads RGBA8 pixels as a texture named name.
func (am *AssetManager) CreateTexture(name string, width, height uint32, pixels []uint8) (metadata.TextureHandle, error) {
	tex := &metadata.Texture{
		Name:       name,
		Width:      width,
		Height:     height,
		Format:     metadata.TextureFormatRGBA8,
		Generation: 1,
	}
	if am.backend != nil {
		if err := am.backend.CreateTexture(tex, pixels); err != nil {
			err = fmt.Errorf("failed to create texture %s: %w", name, err)
			core.LogError("%s", err.Error())
			return metadata.TextureHandle{}, err
		}
	}
	h := am.textures.insert(name, tex)
	core.LogDebug("texture %s created (%dx%d) as %s", name, width, height, metadata.TextureHandle(h))
	return metadata.TextureHandle(h), nil
}

func (am *AssetManager) GetTextureKey(name string) (metadata.TextureHandle, bool) {
	h, ok := am.textures.lookup(name)
	return metadata.TextureHandle(h), ok
}

func (am *AssetManager) GetTexture(h metadata.TextureHandle) (*metadata.Texture, bool) {
	return am.textures.get(containers.Handle(h))
}

// RemoveTexture frees the texture immediately. Materials referencing it go
// stale.
func (am *AssetManager) RemoveTexture(h metadata.TextureHandle) bool {
	tex, ok := am.textures.remove(containers.Handle(h))
	if ok && am.backend != nil {
		am.backend.DestroyTexture(tex)
	}
	return ok
}

// Render targets

// GetOrCreateRenderTarget returns the offscreen target cached under name or
// allocates a width x height texture for it. A cached target whose texture
// was removed is allocated again. created reports whether a new texture was
// allocated.
func (am *AssetManager) GetOrCreateRenderTarget(name, label string, width, height uint32) (key metadata.RenderTargetKey, created bool, err error) {
	am.targetMu.Lock()
	defer am.targetMu.Unlock()

	if existing, ok := am.renderTargets[name]; ok {
		h, _ := existing.Texture()
		if am.textures.contains(containers.Handle(h)) {
			return existing, false, nil
		}
		core.LogDebug("render target %s lost its texture, reallocating", name)
		delete(am.renderTargets, name)
	}
	tex := &metadata.Texture{
		Name:           label,
		Width:          width,
		Height:         height,
		Format:         metadata.TextureFormatRGBA8,
		IsRenderTarget: true,
		Generation:     1,
	}
	if am.backend != nil {
		if err := am.backend.CreateRenderTarget(tex); err != nil {
			err = fmt.Errorf("failed to create render target %s: %w", name, err)
			core.LogError("%s", err.Error())
			return metadata.RenderTargetKey{}, false, err
		}
	}
	h := am.textures.insert(label, tex)
	key = metadata.TextureTarget(metadata.TextureHandle(h))
	am.renderTargets[name] = key
	return key, true, nil
}

func (am *AssetManager) RenderTargetKey(name string) (metadata.RenderTargetKey, bool) {
	am.targetMu.Lock()
	defer am.targetMu.Unlock()
	key, ok := am.renderTargets[name]
	if !ok {
		return metadata.RenderTargetKey{}, false
	}
	h, _ := key.Texture()
	if !am.textures.contains(containers.Handle(h)) {
		return metadata.RenderTargetKey{}, false
	}
	return key, true
}

// Shaders

func (am *AssetManager) LoadShader(path string) (metadata.ShaderHandle, error) {
	if h, ok := am.GetShaderKey(path); ok {
		return h, nil
	}
	res, err := am.loadResource(path, metadata.ResourceTypeShader, nil)
	if err != nil {
		core.LogError("%s", err.Error())
		return metadata.ShaderHandle{}, err
	}
	h, err := am.createShader(path, res.FullPath, res.Data.(string))
	return h, err
}

// CreateShader compiles WGSL source under name.
func (am *AssetManager) CreateShader(name, source string) (metadata.ShaderHandle, error) {
	return am.createShader(name, "", source)
}

func (am *AssetManager) createShader(name, path, source string) (metadata.ShaderHandle, error) {
	shader := &metadata.Shader{
		Name:       name,
		Path:       path,
		Source:     source,
		Generation: 1,
	}
	if am.backend != nil {
		if err := am.backend.CreateShader(shader); err != nil {
			err = fmt.Errorf("failed to create shader %s: %w", name, err)
			core.LogError("%s", err.Error())
			return metadata.ShaderHandle{}, err
		}
	}
	return metadata.ShaderHandle(am.shaders.insert(name, shader)), nil
}

func (am *AssetManager) GetShaderKey(name string) (metadata.ShaderHandle, bool) {
	h, ok := am.shaders.lookup(name)
	return metadata.ShaderHandle(h), ok
}

func (am *AssetManager) GetShader(h metadata.ShaderHandle) (*metadata.Shader, bool) {
	return am.shaders.get(containers.Handle(h))
}

// Materials

// CreateMaterial stores a copy of m. Its shader and textures must resolve.
func (am *AssetManager) CreateMaterial(m metadata.Material) (metadata.MaterialHandle, error) {
	return am.CreateNamedMaterial("", m)
}

func (am *AssetManager) CreateNamedMaterial(name string, m metadata.Material) (metadata.MaterialHandle, error) {
	if !am.shaders.contains(containers.Handle(m.Shader)) {
		return metadata.MaterialHandle{}, fmt.Errorf("%w: material shader %s", core.ErrStaleHandle, m.Shader)
	}
	for _, t := range m.Textures {
		if !am.textures.contains(containers.Handle(t)) {
			return metadata.MaterialHandle{}, fmt.Errorf("%w: material texture %s", core.ErrStaleHandle, t)
		}
	}
	return metadata.MaterialHandle(am.materials.insert(name, m.Clone())), nil
}

// GetMaterial returns a copy of the material stored under h.
func (am *AssetManager) GetMaterial(h metadata.MaterialHandle) (metadata.Material, bool) {
	m, ok := am.materials.get(containers.Handle(h))
	if !ok {
		return metadata.Material{}, false
	}
	return m.Clone(), true
}

func (am *AssetManager) GetMaterialKey(name string) (metadata.MaterialHandle, bool) {
	h, ok := am.materials.lookup(name)
	return metadata.MaterialHandle(h), ok
}

// LoadMaterial reads a TOML material file, loading the shader and textures
// it names. The material is registered under its configured name.
func (am *AssetManager) LoadMaterial(path string) (metadata.MaterialHandle, error) {
	res, err := am.loadResource(path, metadata.ResourceTypeMaterial, nil)
	if err != nil {
		core.LogError("%s", err.Error())
		return metadata.MaterialHandle{}, err
	}
	cfg := res.Data.(*metadata.MaterialConfig)
	if h, ok := am.GetMaterialKey(cfg.Name); ok {
		return h, nil
	}

	m, err := loaders.MaterialFromConfig(cfg)
	if err != nil {
		return metadata.MaterialHandle{}, err
	}
	if m.Shader, err = am.LoadShader(cfg.Shader); err != nil {
		return metadata.MaterialHandle{}, err
	}
	if err := am.LoadTextures(cfg.Textures); err != nil {
		return metadata.MaterialHandle{}, err
	}
	for _, name := range cfg.Textures {
		th, _ := am.GetTextureKey(name)
		m.Textures = append(m.Textures, th)
	}
	return am.CreateNamedMaterial(cfg.Name, m)
}

// RemoveMaterial schedules h for removal. The material stays resolvable
// until FlushRemovals runs at the end of the current frame.
func (am *AssetManager) RemoveMaterial(h metadata.MaterialHandle) bool {
	if !am.materials.contains(containers.Handle(h)) {
		return false
	}
	am.removalMu.Lock()
	defer am.removalMu.Unlock()
	am.pendingRemovals = append(am.pendingRemovals, h)
	return true
}

// FlushRemovals drops every material scheduled by RemoveMaterial.
func (am *AssetManager) FlushRemovals() int {
	am.removalMu.Lock()
	pending := am.pendingRemovals
	am.pendingRemovals = nil
	am.removalMu.Unlock()

	removed := 0
	for _, h := range pending {
		if _, ok := am.materials.remove(containers.Handle(h)); ok {
			removed++
		}
	}
	return removed
}

// Meshes

func (am *AssetManager) LoadMesh(path string) (MeshHandles, error) {
	am.meshMu.RLock()
	mh, ok := am.meshes[path]
	am.meshMu.RUnlock()
	if ok {
		return mh, nil
	}
	res, err := am.loadResource(path, metadata.ResourceTypeMesh, nil)
	if err != nil {
		core.LogError("%s", err.Error())
		return MeshHandles{}, err
	}
	data := res.Data.(*metadata.MeshData)
	return am.CreateMesh(path, data.Vertices, data.Indices)
}

// CreateMesh uploads vertices and indices and caches the buffers by name.
func (am *AssetManager) CreateMesh(name string, vertices []metadata.Vertex, indices []uint16) (MeshHandles, error) {
	vb := &metadata.VertexBuffer{Name: name, Count: uint32(len(vertices))}
	ib := &metadata.IndexBuffer{Name: name, Count: uint32(len(indices))}
	if am.backend != nil {
		if err := am.backend.CreateVertexBuffer(vb, vertices); err != nil {
			return MeshHandles{}, fmt.Errorf("failed to create vertex buffer %s: %w", name, err)
		}
		if err := am.backend.CreateIndexBuffer(ib, indices); err != nil {
			am.backend.DestroyVertexBuffer(vb)
			return MeshHandles{}, fmt.Errorf("failed to create index buffer %s: %w", name, err)
		}
	}
	mh := MeshHandles{
		VertexBuffer: metadata.VertexBufferHandle(am.vertexBuffers.insert(name, vb)),
		IndexBuffer:  metadata.IndexBufferHandle(am.indexBuffers.insert(name, ib)),
		VertexCount:  vb.Count,
		IndexCount:   ib.Count,
	}
	am.meshMu.Lock()
	am.meshes[name] = mh
	am.meshMu.Unlock()
	return mh, nil
}

func (am *AssetManager) GetVertexBuffer(h metadata.VertexBufferHandle) (*metadata.VertexBuffer, bool) {
	return am.vertexBuffers.get(containers.Handle(h))
}

func (am *AssetManager) GetIndexBuffer(h metadata.IndexBufferHandle) (*metadata.IndexBuffer, bool) {
	return am.indexBuffers.get(containers.Handle(h))
}

// Hot reload

func (am *AssetManager) onFileChanged(path string) {
	am.pendingReloadsMu.Lock()
	am.pendingReloads[filepath.Clean(path)] = struct{}{}
	am.pendingReloadsMu.Unlock()
}

// ProcessReloads reloads every loaded texture or shader whose file changed
// since the last call. It must run on the frame goroutine, outside Execute.
// The names of reloaded assets are returned.
func (am *AssetManager) ProcessReloads() []string {
	am.pendingReloadsMu.Lock()
	if len(am.pendingReloads) == 0 {
		am.pendingReloadsMu.Unlock()
		return nil
	}
	changed := am.pendingReloads
	am.pendingReloads = make(map[string]struct{})
	am.pendingReloadsMu.Unlock()

	var reloaded []string
	for path := range changed {
		switch determineAssetType(path) {
		case metadata.ResourceTypeImage:
			if name, ok := am.reloadTexture(path); ok {
				reloaded = append(reloaded, name)
			}
		case metadata.ResourceTypeShader:
			if name, ok := am.reloadShader(path); ok {
				reloaded = append(reloaded, name)
			}
		}
	}
	return reloaded
}

// findByPath maps a changed file back to the name it was loaded under.
func findByPath[T any](t *table[T], am *AssetManager, path string) (string, containers.Handle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for name, h := range t.names {
		if filepath.Clean(am.Resolve(name)) == path {
			return name, h, true
		}
	}
	return "", containers.Handle{}, false
}

func (am *AssetManager) reloadTexture(path string) (string, bool) {
	name, h, ok := findByPath(am.textures, am, path)
	if !ok {
		return "", false
	}
	res, err := am.loadResource(path, metadata.ResourceTypeImage, &metadata.ImageResourceParams{})
	if err != nil {
		core.LogWarn("reload of texture %s failed, keeping previous version: %s", name, err)
		return "", false
	}
	img := res.Data.(*metadata.ImageResourceData)
	old, ok := am.textures.get(h)
	if !ok {
		return "", false
	}
	tex := &metadata.Texture{
		Name:       name,
		Width:      img.Width,
		Height:     img.Height,
		Format:     old.Format,
		Generation: old.Generation + 1,
	}
	if am.backend != nil {
		if err := am.backend.CreateTexture(tex, img.Pixels); err != nil {
			core.LogWarn("reload of texture %s failed, keeping previous version: %s", name, err)
			return "", false
		}
	}
	if prev, ok := am.textures.replace(h, tex); ok && am.backend != nil {
		am.backend.DestroyTexture(prev)
	}
	core.LogInfo("texture %s reloaded (generation %d)", name, tex.Generation)
	return name, true
}

func (am *AssetManager) reloadShader(path string) (string, bool) {
	name, h, ok := findByPath(am.shaders, am, path)
	if !ok {
		return "", false
	}
	res, err := am.loadResource(path, metadata.ResourceTypeShader, nil)
	if err != nil {
		core.LogWarn("reload of shader %s failed, keeping previous version: %s", name, err)
		return "", false
	}
	old, ok := am.shaders.get(h)
	if !ok {
		return "", false
	}
	shader := &metadata.Shader{
		Name:       name,
		Path:       res.FullPath,
		Source:     res.Data.(string),
		Generation: old.Generation + 1,
	}
	if am.backend != nil {
		if err := am.backend.CreateShader(shader); err != nil {
			core.LogWarn("reload of shader %s failed, keeping previous version: %s", name, err)
			return "", false
		}
	}
	if prev, ok := am.shaders.replace(h, shader); ok && am.backend != nil {
		am.backend.DestroyShader(prev)
	}
	core.LogInfo("shader %s reloaded (generation %d)", name, shader.Generation)
	return name, true
}

func determineAssetType(path string) metadata.ResourceType {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".mat.toml"):
		return metadata.ResourceTypeMaterial
	case strings.HasSuffix(lower, ".mesh.toml"):
		return metadata.ResourceTypeMesh
	}
	switch filepath.Ext(lower) {
	case ".wgsl":
		return metadata.ResourceTypeShader
	case ".png", ".jpg", ".jpeg", ".bmp", ".webp", ".tif", ".tiff":
		return metadata.ResourceTypeImage
	default:
		return metadata.ResourceTypeNone
	}
}
