package core

import (
	"errors"
)

var (
	// Surface errors are returned by a frame when the presentation surface
	// must be reconfigured. The frame loop resizes and retries.
	ErrSurfaceLost     = errors.New("surface lost")
	ErrSurfaceOutdated = errors.New("surface outdated")

	ErrStaleHandle              = errors.New("stale or unknown resource handle")
	ErrUnknownRenderTarget      = errors.New("unknown render target")
	ErrInvalidSchedule          = errors.New("invalid render schedule")
	ErrMappingTransformMismatch = errors.New("mapping and transform variants do not match")
	ErrAssetNotFound            = errors.New("asset not found")
	ErrNoLoader                 = errors.New("no loader registered for asset type")
	ErrInvalidConfig            = errors.New("invalid configuration")
	ErrUnsupported              = errors.New("unsupported")
	ErrUnknown                  = errors.New("unknown")
)

// IsSurfaceError reports whether err asks the caller to reconfigure the
// surface and retry the frame.
func IsSurfaceError(err error) bool {
	return errors.Is(err, ErrSurfaceLost) || errors.Is(err, ErrSurfaceOutdated)
}
