package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/aluiziolira/go-scrape-asin/models"
)

// Fetcher looks up one product by raw code.
type Fetcher interface {
	FetchProduct(ctx context.Context, raw string) (models.ScrapeOutcome, error)
}

// GetProduct returns a handler for GET /product/:asin.
func GetProduct(f Fetcher, now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		respond(c, f, c.Param("asin"), now)
	}
}

// PostProduct returns a handler for POST /product with body {"asin": "..."}.
//
// An empty body, a non-object body or a missing/null asin is MISSING_ASIN;
// unparseable JSON is INVALID_JSON; an asin that is not a string is
// INVALID_ASIN.
func PostProduct(f Fetcher, now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse(models.CodeInvalidJSON, msgInvalidJSON))
			return
		}
		if len(bytes.TrimSpace(data)) == 0 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse(models.CodeMissingASIN, msgMissingASIN))
			return
		}

		// BindBody stops after the first value; trailing data is malformed.
		if !json.Valid(data) {
			c.JSON(http.StatusBadRequest, models.ErrorResponse(models.CodeInvalidJSON, msgInvalidJSON))
			return
		}

		var body map[string]any
		if err := binding.JSON.BindBody(data, &body); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				c.JSON(http.StatusBadRequest, models.ErrorResponse(models.CodeMissingASIN, msgMissingASIN))
				return
			}
			c.JSON(http.StatusBadRequest, models.ErrorResponse(models.CodeInvalidJSON, msgInvalidJSON))
			return
		}

		value, ok := body["asin"]
		if !ok || value == nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse(models.CodeMissingASIN, msgMissingASIN))
			return
		}
		raw, ok := value.(string)
		if !ok {
			c.JSON(http.StatusBadRequest, models.ErrorResponse(models.CodeInvalidASIN, msgInvalidASIN))
			return
		}
		respond(c, f, raw, now)
	}
}

func respond(c *gin.Context, f Fetcher, raw string, now func() time.Time) {
	out, err := f.FetchProduct(c.Request.Context(), raw)
	status, resp := ProductResponse(out, err, now())
	c.JSON(status, resp)
}
