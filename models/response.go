package models

// Error codes returned in failure envelopes.
const (
	CodeInvalidASIN       = "INVALID_ASIN"
	CodeMissingASIN       = "MISSING_ASIN"
	CodeInvalidJSON       = "INVALID_JSON"
	CodeProductNotFound   = "PRODUCT_NOT_FOUND"
	CodeRequestFailed     = "REQUEST_FAILED"
	CodeParseError        = "PARSE_ERROR"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeEndpointNotFound  = "ENDPOINT_NOT_FOUND"
	CodeInternalError     = "INTERNAL_ERROR"
)

// ProductResponse is the envelope shared by every product lookup surface.
type ProductResponse struct {
	Success    bool           `json:"success"`
	Data       *ProductRecord `json:"data,omitempty"`
	ScrapedAt  int64          `json:"scraped_at,omitempty"`
	Error      string         `json:"error,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	RetryAfter *int           `json:"retry_after,omitempty"`
}

// SuccessResponse wraps a record scraped at unix time scrapedAt.
func SuccessResponse(record *ProductRecord, scrapedAt int64) ProductResponse {
	return ProductResponse{Success: true, Data: record, ScrapedAt: scrapedAt}
}

// ErrorResponse builds a failure envelope.
func ErrorResponse(code, message string) ProductResponse {
	return ProductResponse{Error: message, ErrorCode: code}
}

// HealthResponse is returned by the health probe.
type HealthResponse struct {
	Status    string  `json:"status"`
	Timestamp float64 `json:"timestamp"`
}
