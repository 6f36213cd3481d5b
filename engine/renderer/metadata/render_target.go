package metadata

// ScreenTargetName is the target every schedule starts with.
const ScreenTargetName = "screen"

// RenderTargetKey names where a pass or post-process step writes: the
// presented surface or an offscreen texture.
type RenderTargetKey struct {
	screen  bool
	texture TextureHandle
}

func ScreenTarget() RenderTargetKey {
	return RenderTargetKey{screen: true}
}

func TextureTarget(h TextureHandle) RenderTargetKey {
	return RenderTargetKey{texture: h}
}

func (k RenderTargetKey) IsScreen() bool {
	return k.screen
}

// Texture returns the offscreen texture handle; ok is false for the screen.
func (k RenderTargetKey) Texture() (TextureHandle, bool) {
	if k.screen {
		return TextureHandle{}, false
	}
	return k.texture, true
}

func (k RenderTargetKey) String() string {
	if k.screen {
		return ScreenTargetName
	}
	return k.texture.String()
}
