package application

import "errors"

var (
	// ErrUnsupportedMessage is returned by GenerateSnapshot when the message has no renderable
	// segments and no reply preview. The renderer is not invoked.
	ErrUnsupportedMessage = errors.New("message has no renderable content, it may contain only unsupported segment types")

	// ErrRenderFailed wraps any failure reported by the renderer.
	ErrRenderFailed = errors.New("snapshot rendering failed")
)
