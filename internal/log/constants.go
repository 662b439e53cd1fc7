package log

const (
	KeyAppName       = "app"
	KeyTag           = "tag"
	KeyProcess       = "process"
	KeyRequestID     = "requestId"
	KeyConfig        = "config"
	KeyTraceID       = "traceId"
	KeySpanID        = "spanId"
	KeyRequest       = "request"
	KeyRequestBody   = "requestBody"
	KeyRequestHeader = "requestHeader"
	KeyRequestHost   = "host"
	KeyRequestIp     = "requesterIP"
	KeyRequestMethod = "requestMethod"
	KeyRequestURI    = "requestURI"
	KeyRequestURL    = "requestURL"

	KeySessionID   = "sessionId"
	KeyUserID      = "userId"
	KeyProductID   = "productId"
	KeyItemKey     = "itemKey"
	KeyQuantity    = "quantity"
	KeyAvailable   = "availableQuantity"
	KeyOrderID     = "orderId"
	KeyOrderStatus = "orderStatus"
	KeyCurrency    = "currency"
	KeyAmount      = "amount"
	KeyCacheKey    = "cacheKey"
	KeyChannel     = "channel"
	KeyCharge      = "charge"
	KeyWarnings    = "stockWarnings"
	KeyAttemptID   = "attemptId"
)
