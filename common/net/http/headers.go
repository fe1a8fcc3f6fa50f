package http

const (
	headerCorrelationID = "X-Correlation-ID"
	headerUserAgent     = "User-Agent"
	headerRealIP        = "X-Real-Ip"
	headerForwardedFor  = "X-Forwarded-For"

	// HeaderAPIKey is the peer-station bearer scheme: "Authorization: Api-Key <token>".
	HeaderAPIKey = "Authorization"
	apiKeyScheme = "Api-Key"
)
