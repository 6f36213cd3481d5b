package systems

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/frameq/engine/core"
	"github.com/spaghettifunk/frameq/engine/renderer/components"
)

type cameraLookup struct {
	referenceCount uint16
	camera         *components.Camera
}

type CameraSystem struct {
	Config *CameraSystemConfig

	mu      sync.Mutex
	cameras map[string]*cameraLookup
	width   float32
	height  float32
	// A default, non-registered camera that always exists as a fallback.
	defaultCamera *components.Camera
}

/** @brief The camera system configuration. */
type CameraSystemConfig struct {
	/**
	 * @brief NOTE: The maximum number of cameras that can be managed by
	 * the system.
	 */
	MaxCameraCount uint16
	// Extent of newly created orthographic cameras.
	Width, Height uint32
}

func NewCameraSystem(config *CameraSystemConfig) (*CameraSystem, error) {
	if config.MaxCameraCount == 0 {
		err := fmt.Errorf("func NewCameraSystem - config.MaxCameraCount must be > 0")
		core.LogError("%s", err.Error())
		return nil, err
	}
	w, h := float32(config.Width), float32(config.Height)
	return &CameraSystem{
		Config:        config,
		cameras:       make(map[string]*cameraLookup, config.MaxCameraCount),
		width:         w,
		height:        h,
		defaultCamera: components.NewOrthographicCamera(w, h),
	}, nil
}

func (cs *CameraSystem) Shutdown() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.cameras = make(map[string]*cameraLookup)
	return nil
}

/**
 * @brief Acquires a camera by name. If one is not found, a new orthographic
 * camera covering the current extent is created. Internal reference counter
 * is incremented.
 */
func (cs *CameraSystem) Acquire(name string) (*components.Camera, error) {
	return cs.acquire(name, nil)
}

// AcquireWith registers camera under name if the name is free, otherwise it
// returns the existing camera.
func (cs *CameraSystem) AcquireWith(name string, camera *components.Camera) (*components.Camera, error) {
	return cs.acquire(name, camera)
}

func (cs *CameraSystem) acquire(name string, camera *components.Camera) (*components.Camera, error) {
	if name == components.DEFAULT_CAMERA_NAME {
		return cs.defaultCamera, nil
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()

	lookup, ok := cs.cameras[name]
	if !ok {
		if len(cs.cameras) >= int(cs.Config.MaxCameraCount) {
			err := fmt.Errorf("func CameraSystem.Acquire failed to acquire new slot for '%s'. Adjust camera system config to allow more", name)
			core.LogError("%s", err.Error())
			return nil, err
		}
		if camera == nil {
			camera = components.NewOrthographicCamera(cs.width, cs.height)
		}
		core.LogDebug("Creating new camera named '%s'...", name)
		lookup = &cameraLookup{camera: camera}
		cs.cameras[name] = lookup
	}
	lookup.referenceCount++
	return lookup.camera, nil
}

/**
 * @brief Releases a camera with the given name. Internal reference
 * counter is decremented. If this reaches 0, the camera is dropped.
 */
func (cs *CameraSystem) Release(name string) {
	if name == components.DEFAULT_CAMERA_NAME {
		core.LogDebug("Cannot release default camera. Nothing was done.")
		return
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()

	lookup, ok := cs.cameras[name]
	if !ok {
		core.LogWarn("CameraSystem.Release failed lookup for '%s'. Nothing was done.", name)
		return
	}
	lookup.referenceCount--
	if lookup.referenceCount < 1 {
		delete(cs.cameras, name)
	}
}

// Resize updates the extent of every managed camera.
func (cs *CameraSystem) Resize(width, height uint32) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.width, cs.height = float32(width), float32(height)
	cs.defaultCamera.Resize(cs.width, cs.height)
	for _, l := range cs.cameras {
		l.camera.Resize(cs.width, cs.height)
	}
}

func (cs *CameraSystem) GetDefault() *components.Camera {
	return cs.defaultCamera
}
