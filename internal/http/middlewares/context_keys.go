package middlewares

// Gin context keys owned by this package. Handlers read them through the
// helpers below instead of the raw strings.
const (
	CtxRequestID = "request_id"
	ctxPrincipal = "auth.principal"
)
