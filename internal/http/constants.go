package http

const (
	KeyHeaderContentType   = "Content-Type"
	KeyHeaderRequestID     = "X-Request-Id"
	KeyHeaderIdempotency   = "Idempotency-Key"
	ValueHeaderJson        = "application/json"
	ValueHeaderFormEncoded = "application/x-www-form-urlencoded"
)
