package domain

import "context"

// Renderer turns a named template plus its data map into image bytes.
type Renderer interface {
	Render(ctx context.Context, templateName string, data map[string]any) ([]byte, error)
}
