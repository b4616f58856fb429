package middlewares

// gin context keys
const (
	CtxRequestID = "request_id"
	CtxActor     = "auth.actor"
)
