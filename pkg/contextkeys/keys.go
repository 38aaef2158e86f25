package contextkeys

// ContextKey is a distinct type for context keys to avoid collisions with other packages.
type ContextKey string

const (
	// RequestIDKey is the context key for storing and retrieving a request ID.
	RequestIDKey ContextKey = "request_id"

	// GroupIDKey is the context key for the chat group a snapshot is generated for.
	GroupIDKey ContextKey = "group_id"

	// UserIDKey is the context key for the sender of the message being rendered.
	UserIDKey ContextKey = "user_id"

	// AssetIDKey is the context key for the sticker/emoji asset being resolved.
	AssetIDKey ContextKey = "asset_id"
)

// String makes ContextKey satisfy fmt.Stringer to help with debugging/logging of keys themselves.
func (c ContextKey) String() string {
	return string(c)
}
