package assets

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spaghettifunk/frameq/engine/core"
	"github.com/spaghettifunk/frameq/engine/renderer/metadata"
)

const testShaderSource = "@vertex fn vs_main() {}\n@fragment fn fs_main() {}\n"

type fakeBackend struct {
	mu        sync.Mutex
	textures  int
	targets   int
	shaders   int
	buffers   int
	destroyed []string
	failNext  bool
}

func (b *fakeBackend) CreateTexture(t *metadata.Texture, pixels []uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failNext {
		b.failNext = false
		return errors.New("out of memory")
	}
	if len(pixels) != int(t.Width*t.Height*4) {
		return errors.New("pixel size mismatch")
	}
	b.textures++
	t.InternalData = b.textures
	return nil
}

func (b *fakeBackend) CreateRenderTarget(t *metadata.Texture) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.targets++
	return nil
}

func (b *fakeBackend) DestroyTexture(t *metadata.Texture) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroyed = append(b.destroyed, "texture:"+t.Name)
}

func (b *fakeBackend) CreateShader(s *metadata.Shader) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shaders++
	return nil
}

func (b *fakeBackend) DestroyShader(s *metadata.Shader) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroyed = append(b.destroyed, "shader:"+s.Name)
}

func (b *fakeBackend) CreateVertexBuffer(vb *metadata.VertexBuffer, vertices []metadata.Vertex) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffers++
	return nil
}

func (b *fakeBackend) DestroyVertexBuffer(vb *metadata.VertexBuffer) {}

func (b *fakeBackend) CreateIndexBuffer(ib *metadata.IndexBuffer, indices []uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffers++
	return nil
}

func (b *fakeBackend) DestroyIndexBuffer(ib *metadata.IndexBuffer) {}

func newTestManager(t *testing.T, backend ResourceBackend) *AssetManager {
	t.Helper()
	am, err := NewAssetManager(backend)
	if err != nil {
		t.Fatalf("NewAssetManager: %v", err)
	}
	t.Cleanup(func() { _ = am.Shutdown() })
	return am
}

func writePNG(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func whitePixels(w, h int) []uint8 {
	p := make([]uint8, w*h*4)
	for i := range p {
		p[i] = 255
	}
	return p
}

func TestCreateTextureAndLookup(t *testing.T) {
	backend := &fakeBackend{}
	am := newTestManager(t, backend)

	h, err := am.CreateTexture("white", 2, 2, whitePixels(2, 2))
	if err != nil {
		t.Fatal(err)
	}
	if !h.IsValid() {
		t.Fatal("invalid handle returned")
	}
	if got, ok := am.GetTextureKey("white"); !ok || got != h {
		t.Errorf("GetTextureKey = %v, %v; want %v", got, ok, h)
	}
	tex, ok := am.GetTexture(h)
	if !ok || tex.Width != 2 || tex.InternalData == nil {
		t.Errorf("GetTexture = %+v, %v", tex, ok)
	}

	if !am.RemoveTexture(h) {
		t.Fatal("RemoveTexture returned false")
	}
	if _, ok := am.GetTexture(h); ok {
		t.Error("removed texture still resolves")
	}
	if _, ok := am.GetTextureKey("white"); ok {
		t.Error("removed texture name still cached")
	}
}

func TestCreateTextureBackendFailure(t *testing.T) {
	backend := &fakeBackend{failNext: true}
	am := newTestManager(t, backend)
	if _, err := am.CreateTexture("broken", 1, 1, whitePixels(1, 1)); err == nil {
		t.Fatal("expected backend error")
	}
	if _, ok := am.GetTextureKey("broken"); ok {
		t.Error("failed texture was registered")
	}
}

func TestLoadTextureCachesByPath(t *testing.T) {
	backend := &fakeBackend{}
	am := newTestManager(t, backend)
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 4, 2, color.White)
	if err := am.Initialize(dir, false); err != nil {
		t.Fatal(err)
	}

	first, err := am.LoadTexture("a.png")
	if err != nil {
		t.Fatal(err)
	}
	second, err := am.LoadTexture("a.png")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("handles differ: %v vs %v", first, second)
	}
	if backend.textures != 1 {
		t.Errorf("backend uploads = %d, want 1", backend.textures)
	}

	if _, err := am.LoadTexture("missing.png"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadTexturesParallel(t *testing.T) {
	backend := &fakeBackend{}
	am := newTestManager(t, backend)
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		p := filepath.Join(dir, name)
		writePNG(t, p, 1, 1, color.Black)
		paths = append(paths, p)
	}
	// duplicates load once
	paths = append(paths, paths[0])

	if err := am.LoadTextures(paths); err != nil {
		t.Fatal(err)
	}
	if backend.textures != 3 {
		t.Errorf("backend uploads = %d, want 3", backend.textures)
	}
	for _, p := range paths {
		if _, ok := am.GetTextureKey(p); !ok {
			t.Errorf("%s not registered", p)
		}
	}
}

func TestCreateMaterialValidatesHandles(t *testing.T) {
	am := newTestManager(t, &fakeBackend{})
	shader, err := am.CreateShader("sprite", testShaderSource)
	if err != nil {
		t.Fatal(err)
	}
	tex, _ := am.CreateTexture("t", 1, 1, whitePixels(1, 1))

	tests := []struct {
		name    string
		mat     metadata.Material
		wantErr bool
	}{
		{"valid", metadata.Material{Shader: shader, Textures: []metadata.TextureHandle{tex}}, false},
		{"zero shader", metadata.Material{}, true},
		{"unknown texture", metadata.Material{Shader: shader, Textures: []metadata.TextureHandle{{Index: 9, Generation: 1}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := am.CreateMaterial(tt.mat)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, core.ErrStaleHandle) {
				t.Errorf("err = %v, want ErrStaleHandle", err)
			}
		})
	}
}

func TestGetMaterialReturnsCopy(t *testing.T) {
	am := newTestManager(t, nil)
	shader, _ := am.CreateShader("sprite", testShaderSource)
	tex, _ := am.CreateTexture("t", 1, 1, whitePixels(1, 1))
	h, err := am.CreateNamedMaterial("wood", metadata.Material{Shader: shader, Textures: []metadata.TextureHandle{tex}})
	if err != nil {
		t.Fatal(err)
	}

	m, ok := am.GetMaterial(h)
	if !ok {
		t.Fatal("material not found")
	}
	m.Textures[0] = metadata.TextureHandle{}

	again, _ := am.GetMaterial(h)
	if again.Textures[0] != tex {
		t.Error("stored material was mutated through a returned copy")
	}
	if key, ok := am.GetMaterialKey("wood"); !ok || key != h {
		t.Errorf("GetMaterialKey = %v, %v", key, ok)
	}
}

func TestRemoveMaterialIsDeferred(t *testing.T) {
	am := newTestManager(t, nil)
	shader, _ := am.CreateShader("sprite", testShaderSource)
	h, _ := am.CreateMaterial(metadata.Material{Shader: shader})

	if !am.RemoveMaterial(h) {
		t.Fatal("RemoveMaterial returned false")
	}
	if _, ok := am.GetMaterial(h); !ok {
		t.Fatal("material removed before flush")
	}
	if n := am.FlushRemovals(); n != 1 {
		t.Errorf("FlushRemovals = %d, want 1", n)
	}
	if _, ok := am.GetMaterial(h); ok {
		t.Error("material still resolves after flush")
	}
	if am.RemoveMaterial(h) {
		t.Error("removing a stale handle should report false")
	}

	// a new material in the same slot does not answer to the old handle
	h2, _ := am.CreateMaterial(metadata.Material{Shader: shader})
	if h2 == h {
		t.Error("stale handle reused")
	}
}

func TestGetOrCreateRenderTargetIsIdempotent(t *testing.T) {
	backend := &fakeBackend{}
	am := newTestManager(t, backend)

	key, created, err := am.GetOrCreateRenderTarget("fog", "fog-1", 320, 240)
	if err != nil || !created {
		t.Fatalf("first call: created=%v err=%v", created, err)
	}
	again, created, err := am.GetOrCreateRenderTarget("fog", "fog-2", 640, 480)
	if err != nil || created {
		t.Fatalf("second call: created=%v err=%v", created, err)
	}
	if key != again {
		t.Errorf("keys differ: %v vs %v", key, again)
	}
	if backend.targets != 1 {
		t.Errorf("backend targets = %d, want 1", backend.targets)
	}
	h, _ := key.Texture()
	tex, ok := am.GetTexture(h)
	if !ok || !tex.IsRenderTarget || tex.Width != 320 {
		t.Errorf("target texture = %+v, %v", tex, ok)
	}
	if got, ok := am.RenderTargetKey("fog"); !ok || got != key {
		t.Errorf("RenderTargetKey = %v, %v", got, ok)
	}
}

func TestRemovedRenderTargetIsReallocated(t *testing.T) {
	backend := &fakeBackend{}
	am := newTestManager(t, backend)

	key, _, err := am.GetOrCreateRenderTarget("fog", "fog-1", 320, 240)
	if err != nil {
		t.Fatal(err)
	}
	h, _ := key.Texture()
	if !am.RemoveTexture(h) {
		t.Fatal("RemoveTexture returned false")
	}
	if _, ok := am.RenderTargetKey("fog"); ok {
		t.Error("RenderTargetKey still reports the removed target")
	}

	again, created, err := am.GetOrCreateRenderTarget("fog", "fog-2", 640, 480)
	if err != nil || !created {
		t.Fatalf("after removal: created=%v err=%v", created, err)
	}
	if again == key {
		t.Error("the removed key was handed out again")
	}
	nh, _ := again.Texture()
	tex, ok := am.GetTexture(nh)
	if !ok || tex.Width != 640 || tex.Height != 480 {
		t.Errorf("reallocated texture = %+v, %v", tex, ok)
	}
	if backend.targets != 2 {
		t.Errorf("backend targets = %d, want 2", backend.targets)
	}
	if got, ok := am.RenderTargetKey("fog"); !ok || got != again {
		t.Errorf("RenderTargetKey = %v, %v", got, ok)
	}
}

func TestConcurrentMaterialAccess(t *testing.T) {
	am := newTestManager(t, nil)
	shader, _ := am.CreateShader("sprite", testShaderSource)
	base, _ := am.CreateMaterial(metadata.Material{Shader: shader})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, ok := am.GetMaterial(base); !ok {
					t.Error("base material vanished")
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, err := am.CreateMaterial(metadata.Material{Shader: shader}); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
	if got := am.materials.len(); got != 1+8*100 {
		t.Errorf("materials = %d, want %d", got, 1+8*100)
	}
}

func TestLoadMaterialFile(t *testing.T) {
	am := newTestManager(t, &fakeBackend{})
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "glass.png"), 2, 2, color.White)
	if err := os.WriteFile(filepath.Join(dir, "sprite.wgsl"), []byte(testShaderSource), 0o644); err != nil {
		t.Fatal(err)
	}
	matFile := "name = \"glass\"\nshader = \"sprite.wgsl\"\ntextures = [\"glass.png\"]\nblend = \"alpha_blend\"\n"
	if err := os.WriteFile(filepath.Join(dir, "glass.mat.toml"), []byte(matFile), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := am.Initialize(dir, false); err != nil {
		t.Fatal(err)
	}

	h, err := am.LoadMaterial("glass.mat.toml")
	if err != nil {
		t.Fatal(err)
	}
	m, ok := am.GetMaterial(h)
	if !ok {
		t.Fatal("material not registered")
	}
	if m.BlendMode != metadata.BlendModeAlphaBlend || len(m.Textures) != 1 {
		t.Errorf("material = %+v", m)
	}
	if _, ok := am.GetShaderKey("sprite.wgsl"); !ok {
		t.Error("shader not loaded")
	}
	again, err := am.LoadMaterial("glass.mat.toml")
	if err != nil || again != h {
		t.Errorf("second load = %v, %v; want %v", again, err, h)
	}
}

func TestLoadMeshFile(t *testing.T) {
	backend := &fakeBackend{}
	am := newTestManager(t, backend)
	path := filepath.Join(t.TempDir(), "quad.mesh.toml")
	mesh := `name = "quad"
vertices = [
  0.0, 0.0, 0.0, 0.0, 0.0, 1.0, 1.0, 1.0, 1.0,
  1.0, 0.0, 0.0, 1.0, 0.0, 1.0, 1.0, 1.0, 1.0,
  1.0, 1.0, 0.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0,
  0.0, 1.0, 0.0, 0.0, 1.0, 1.0, 1.0, 1.0, 1.0,
]
indices = [0, 1, 2, 2, 3, 0]
`
	if err := os.WriteFile(path, []byte(mesh), 0o644); err != nil {
		t.Fatal(err)
	}
	mh, err := am.LoadMesh(path)
	if err != nil {
		t.Fatal(err)
	}
	if mh.VertexCount != 4 || mh.IndexCount != 6 {
		t.Errorf("counts = %d/%d", mh.VertexCount, mh.IndexCount)
	}
	mapping := mh.Mapping()
	if _, ok := am.GetVertexBuffer(mapping.VertexBuffer); !ok {
		t.Error("vertex buffer not resolvable")
	}
	if _, ok := am.GetIndexBuffer(mapping.IndexBuffer); !ok {
		t.Error("index buffer not resolvable")
	}
	if _, err := am.LoadMesh(path); err != nil || backend.buffers != 2 {
		t.Errorf("second load uploaded again: buffers=%d err=%v", backend.buffers, err)
	}
}

func TestProcessReloadsReplacesTextureInPlace(t *testing.T) {
	backend := &fakeBackend{}
	am := newTestManager(t, backend)
	path := filepath.Join(t.TempDir(), "hero.png")
	writePNG(t, path, 2, 2, color.White)

	h, err := am.LoadTexture(path)
	if err != nil {
		t.Fatal(err)
	}
	writePNG(t, path, 4, 4, color.Black)
	am.onFileChanged(path)

	reloaded := am.ProcessReloads()
	if len(reloaded) != 1 || reloaded[0] != path {
		t.Fatalf("reloaded = %v", reloaded)
	}
	tex, ok := am.GetTexture(h)
	if !ok {
		t.Fatal("handle went stale across reload")
	}
	if tex.Width != 4 || tex.Generation != 2 {
		t.Errorf("texture after reload = %dx? gen %d", tex.Width, tex.Generation)
	}
	if len(backend.destroyed) != 1 {
		t.Errorf("destroyed = %v, want previous texture", backend.destroyed)
	}
	if again := am.ProcessReloads(); again != nil {
		t.Errorf("second ProcessReloads = %v, want nil", again)
	}
}

func TestProcessReloadsKeepsShaderOnError(t *testing.T) {
	am := newTestManager(t, &fakeBackend{})
	path := filepath.Join(t.TempDir(), "fx.wgsl")
	if err := os.WriteFile(path, []byte(testShaderSource), 0o644); err != nil {
		t.Fatal(err)
	}
	h, err := am.LoadShader(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	am.onFileChanged(path)
	if got := am.ProcessReloads(); len(got) != 0 {
		t.Errorf("reloaded = %v, want none", got)
	}
	s, ok := am.GetShader(h)
	if !ok || s.Generation != 1 || s.Source != testShaderSource {
		t.Errorf("shader after failed reload = %+v", s)
	}
}

func TestDetermineAssetType(t *testing.T) {
	tests := []struct {
		path string
		want metadata.ResourceType
	}{
		{"a/b/wood.mat.toml", metadata.ResourceTypeMaterial},
		{"cube.mesh.toml", metadata.ResourceTypeMesh},
		{"sprite.WGSL", metadata.ResourceTypeShader},
		{"hero.png", metadata.ResourceTypeImage},
		{"hero.jpeg", metadata.ResourceTypeImage},
		{"tiles.webp", metadata.ResourceTypeImage},
		{"config.toml", metadata.ResourceTypeNone},
		{"notes.txt", metadata.ResourceTypeNone},
	}
	for _, tt := range tests {
		if got := determineAssetType(tt.path); got != tt.want {
			t.Errorf("determineAssetType(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
