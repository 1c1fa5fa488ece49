package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aluiziolira/go-scrape-asin/models"
)

// Version is reported by the documentation root.
const Version = "1.0.0"

type docResponse struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Description  string            `json:"description"`
	Endpoints    map[string]string `json:"endpoints"`
	RateLimits   map[string]string `json:"rate_limits"`
	ExampleUsage exampleUsage      `json:"example_usage"`
}

type exampleUsage struct {
	URL            string                 `json:"url"`
	ResponseFormat models.ProductResponse `json:"response_format"`
}

// Home returns a handler for GET / describing the service.
func Home(defaultLimits, productLimits string) gin.HandlerFunc {
	example := models.NewProductRecord("B08N5WRWNW")
	title, price, availability := "Product Title", "$29.99", "In Stock"
	description, reviews, seller := "Product description", "1,234", "Seller Name"
	rating := 4.5
	example.Title, example.Price, example.Availability = &title, &price, &availability
	example.Description, example.ReviewCount, example.Seller = &description, &reviews, &seller
	example.Rating = &rating
	example.Images = []string{"image_url_1", "image_url_2"}

	doc := docResponse{
		Name:        "Amazon Product Scraper API",
		Version:     Version,
		Description: "RESTful API for scraping Amazon product information by ASIN",
		Endpoints: map[string]string{
			"GET /":              "API documentation",
			"GET /health":        "Health check",
			"GET /product/:asin": "Get product information by ASIN",
			"POST /product":      "Get product information by ASIN (JSON body)",
		},
		RateLimits: map[string]string{
			"default": defaultLimits,
			"product": productLimits,
		},
		ExampleUsage: exampleUsage{
			URL:            "/product/B08N5WRWNW",
			ResponseFormat: models.SuccessResponse(example, 1234567890),
		},
	}

	return func(c *gin.Context) {
		c.JSON(http.StatusOK, doc)
	}
}

// Health returns a handler for GET /health.
func Health(now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    "healthy",
			Timestamp: float64(now().UnixMicro()) / 1e6,
		})
	}
}

// NotFound answers unknown routes.
func NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, models.ErrorResponse(models.CodeEndpointNotFound, msgEndpointAbsent))
}
