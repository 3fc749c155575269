package contextkey

type contextKey string

const (
	// ContextKeyRequestID carries the per-request UUID assigned by the
	// request ID middleware.
	ContextKeyRequestID contextKey = "request_id"

	// ContextKeyUserID carries the authenticated user's ObjectID hex.
	ContextKeyUserID contextKey = "user_id"

	// ContextKeyUserRole carries the authenticated user's role claim.
	ContextKeyUserRole contextKey = "user_role"
)
