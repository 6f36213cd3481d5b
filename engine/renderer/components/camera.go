package components

import (
	"github.com/go-gl/mathgl/mgl32"
)

type ProjectionKind uint8

const (
	ProjectionOrthographic ProjectionKind = iota
	ProjectionPerspective
)

// clipCorrection maps OpenGL clip depth [-1, 1] to the [0, 1] range the
// GPU backend expects.
var clipCorrection = mgl32.Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

/**
 * @brief Represents a camera that produces the view-projection matrix a
 * render pass draws with.
 */
type Camera struct {
	/**
	 * @brief The position of this camera.
	 * NOTE: Do not set this directly, use SetPosition() instead
	 * so the view matrix is recalculated when needed.
	 */
	Position mgl32.Vec3
	/**
	 * @brief The rotation of this camera using Euler angles (pitch, yaw, roll).
	 * NOTE: Do not set this directly, use SetEulerRotation() instead
	 * so the view matrix is recalculated when needed.
	 */
	EulerRotation mgl32.Vec3
	/** @brief Internal flag used to determine when the view matrix needs to be rebuilt. */
	IsDirty bool
	ViewMatrix mgl32.Mat4

	Projection ProjectionKind
	/** @brief Vertical field of view in radians, perspective only. */
	FOV float32
	/** @brief Visible width and height for orthographic projection. */
	Width, Height float32
	Near, Far     float32
}

/** @brief The name of the default camera. */
const DEFAULT_CAMERA_NAME string = "default"

// NewOrthographicCamera covers [0, width] x [0, height] with y pointing down,
// which is the pixel space sprites are positioned in. Larger z orders are
// closer to the viewer.
func NewOrthographicCamera(width, height float32) *Camera {
	camera := &Camera{
		Projection: ProjectionOrthographic,
		Width:      width,
		Height:     height,
		Near:       -1000,
		Far:        1000,
	}
	camera.Reset()
	return camera
}

func NewPerspectiveCamera(fov, aspect, near, far float32) *Camera {
	camera := &Camera{
		Projection: ProjectionPerspective,
		FOV:        fov,
		Width:      aspect,
		Height:     1,
		Near:       near,
		Far:        far,
	}
	camera.Reset()
	return camera
}

func (c *Camera) Reset() {
	c.EulerRotation = mgl32.Vec3{}
	c.Position = mgl32.Vec3{}
	c.IsDirty = false
	c.ViewMatrix = mgl32.Ident4()
}

func (c *Camera) SetPosition(position mgl32.Vec3) {
	c.Position = position
	c.IsDirty = true
}

func (c *Camera) SetEulerRotation(rotation mgl32.Vec3) {
	c.EulerRotation = rotation
	c.IsDirty = true
}

// Resize updates the projection extent, keeping the aspect for perspective
// cameras in Width.
func (c *Camera) Resize(width, height float32) {
	if c.Projection == ProjectionPerspective {
		if height > 0 {
			c.Width = width / height
		}
		return
	}
	c.Width = width
	c.Height = height
}

func (c *Camera) GetView() mgl32.Mat4 {
	if c.IsDirty {
		rotation := mgl32.HomogRotate3DX(c.EulerRotation.X()).
			Mul4(mgl32.HomogRotate3DY(c.EulerRotation.Y())).
			Mul4(mgl32.HomogRotate3DZ(c.EulerRotation.Z()))
		translation := mgl32.Translate3D(c.Position.X(), c.Position.Y(), c.Position.Z())

		c.ViewMatrix = translation.Mul4(rotation).Inv()
		c.IsDirty = false
	}
	return c.ViewMatrix
}

func (c *Camera) GetProjection() mgl32.Mat4 {
	var proj mgl32.Mat4
	switch c.Projection {
	case ProjectionPerspective:
		proj = mgl32.Perspective(c.FOV, c.Width/c.Height, c.Near, c.Far)
	default:
		proj = mgl32.Ortho(0, c.Width, c.Height, 0, c.Near, c.Far)
	}
	return clipCorrection.Mul4(proj)
}

func (c *Camera) ViewProjection() mgl32.Mat4 {
	return c.GetProjection().Mul4(c.GetView())
}

func (c *Camera) Yaw(amount float32) {
	c.EulerRotation[1] += amount
	c.IsDirty = true
}

func (c *Camera) Pitch(amount float32) {
	c.EulerRotation[0] += amount

	// Clamp to avoid Gimbal lock.
	limit := float32(1.55334306) // 89 degrees
	c.EulerRotation[0] = mgl32.Clamp(c.EulerRotation[0], -limit, limit)

	c.IsDirty = true
}
