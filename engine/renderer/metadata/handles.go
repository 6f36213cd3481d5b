package metadata

import "github.com/spaghettifunk/frameq/engine/containers"

// Typed handles into the asset manager's resource tables. The zero value of
// every handle is invalid.
type (
	TextureHandle      containers.Handle
	ShaderHandle       containers.Handle
	MaterialHandle     containers.Handle
	VertexBufferHandle containers.Handle
	IndexBufferHandle  containers.Handle
)

func (h TextureHandle) IsValid() bool      { return containers.Handle(h).IsValid() }
func (h ShaderHandle) IsValid() bool       { return containers.Handle(h).IsValid() }
func (h MaterialHandle) IsValid() bool     { return containers.Handle(h).IsValid() }
func (h VertexBufferHandle) IsValid() bool { return containers.Handle(h).IsValid() }
func (h IndexBufferHandle) IsValid() bool  { return containers.Handle(h).IsValid() }

func (h TextureHandle) String() string  { return "texture#" + containers.Handle(h).String() }
func (h ShaderHandle) String() string   { return "shader#" + containers.Handle(h).String() }
func (h MaterialHandle) String() string { return "material#" + containers.Handle(h).String() }
