package httpproto

// Sentinel status codes the response builder falls back to when a request
// can't be served as asked; mirrors the original's CODE_400/403/404 set.
const (
	StatusBadRequest = 400
	StatusForbidden  = 403
	StatusNotFound   = 404
	StatusOK         = 200
)
