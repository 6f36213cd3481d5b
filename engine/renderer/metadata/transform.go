package metadata

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/frameq/engine/core"
)

// Transform places a submission. Its variant must match the Mapping
// variant it is queued with.
type Transform interface {
	Kind() GeometryKind
	// Matrix returns the model matrix.
	Matrix() mgl32.Mat4
	// Depth is the semantic depth of the drawable: z order for sprites and
	// the z component of the position for meshes.
	Depth() float32
	isTransform()
}

type SpriteTransform struct {
	Position mgl32.Vec2
	// Rotation around z in radians.
	Rotation float32
	Scale    mgl32.Vec2
	ZOrder   float32
}

func NewSpriteTransform(x, y, width, height, zOrder float32) SpriteTransform {
	return SpriteTransform{
		Position: mgl32.Vec2{x, y},
		Scale:    mgl32.Vec2{width, height},
		ZOrder:   zOrder,
	}
}

func (SpriteTransform) Kind() GeometryKind { return GeometryKindSprite }
func (SpriteTransform) isTransform()       {}

func (t SpriteTransform) Matrix() mgl32.Mat4 {
	return mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.ZOrder).
		Mul4(mgl32.HomogRotate3DZ(t.Rotation)).
		Mul4(mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), 1))
}

func (t SpriteTransform) Depth() float32 {
	return t.ZOrder
}

type MeshTransform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

func NewMeshTransform(position mgl32.Vec3) MeshTransform {
	return MeshTransform{
		Position: position,
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

func (MeshTransform) Kind() GeometryKind { return GeometryKindMesh }
func (MeshTransform) isTransform()       {}

func (t MeshTransform) Matrix() mgl32.Mat4 {
	return mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z()).
		Mul4(t.Rotation.Normalize().Mat4()).
		Mul4(mgl32.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z()))
}

func (t MeshTransform) Depth() float32 {
	return t.Position.Z()
}

// CheckPairing returns ErrMappingTransformMismatch unless both values are
// non-nil and of the same variant.
func CheckPairing(mapping Mapping, transform Transform) error {
	if mapping == nil || transform == nil {
		return fmt.Errorf("%w: nil mapping or transform", core.ErrMappingTransformMismatch)
	}
	if mapping.Kind() != transform.Kind() {
		return fmt.Errorf("%w: %s mapping with %s transform", core.ErrMappingTransformMismatch, mapping.Kind(), transform.Kind())
	}
	return nil
}
