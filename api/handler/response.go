package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aluiziolira/go-scrape-asin/models"
	"github.com/aluiziolira/go-scrape-asin/parser"
)

const (
	msgInvalidASIN    = "Invalid ASIN format. ASIN must be 10 alphanumeric characters."
	msgMissingASIN    = `Missing ASIN in request body. Expected JSON: {"asin": "B08N5WRWNW"}`
	msgInvalidJSON    = "Malformed JSON request body."
	msgNotFound       = "Product not found or no longer available."
	msgBlocked        = "Request was blocked by the target site after multiple retries."
	msgExhausted      = "Failed to fetch product page after multiple retries."
	msgParseError     = "Failed to parse product page."
	msgInternal       = "Internal server error occurred."
	msgEndpointAbsent = "Endpoint not found."
)

// ProductResponse maps the result of one lookup to its HTTP status and
// envelope. now stamps scraped_at on success.
func ProductResponse(out models.ScrapeOutcome, err error, now time.Time) (int, models.ProductResponse) {
	if err != nil {
		var invalid *parser.InvalidCodeError
		if errors.As(err, &invalid) {
			return http.StatusBadRequest, models.ErrorResponse(models.CodeInvalidASIN, msgInvalidASIN)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return http.StatusServiceUnavailable, models.ErrorResponse(models.CodeRequestFailed, msgExhausted)
		}
		return InternalError()
	}

	switch out.Kind {
	case models.OutcomeSuccess:
		return http.StatusOK, models.SuccessResponse(out.Record, now.Unix())
	case models.OutcomeNotFound:
		return http.StatusNotFound, models.ErrorResponse(models.CodeProductNotFound, msgNotFound)
	case models.OutcomeBlocked:
		return http.StatusServiceUnavailable, models.ErrorResponse(models.CodeRequestFailed, msgBlocked)
	case models.OutcomeNetworkExhausted:
		return http.StatusServiceUnavailable, models.ErrorResponse(models.CodeRequestFailed, msgExhausted)
	case models.OutcomeParseFailed:
		return http.StatusInternalServerError, models.ErrorResponse(models.CodeParseError, msgParseError)
	default:
		return InternalError()
	}
}

// InternalError is the envelope for faults the caller cannot act on.
func InternalError() (int, models.ProductResponse) {
	return http.StatusInternalServerError, models.ErrorResponse(models.CodeInternalError, msgInternal)
}
