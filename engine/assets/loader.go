package assets

import "github.com/spaghettifunk/frameq/engine/renderer/metadata"

type Loader interface {
	Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) // `interface{}` here allows loaders to return various asset types
	Unload(*metadata.Resource) error
}

// ResourceBackend creates the GPU side of resources the manager stores.
// Implementations fill InternalData on the records they are given.
type ResourceBackend interface {
	CreateTexture(texture *metadata.Texture, pixels []uint8) error
	CreateRenderTarget(texture *metadata.Texture) error
	DestroyTexture(texture *metadata.Texture)
	CreateShader(shader *metadata.Shader) error
	DestroyShader(shader *metadata.Shader)
	CreateVertexBuffer(buffer *metadata.VertexBuffer, vertices []metadata.Vertex) error
	DestroyVertexBuffer(buffer *metadata.VertexBuffer)
	CreateIndexBuffer(buffer *metadata.IndexBuffer, indices []uint16) error
	DestroyIndexBuffer(buffer *metadata.IndexBuffer)
}
