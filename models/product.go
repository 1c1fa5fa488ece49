// Package models defines data structures shared by the scraper, the pipeline
// and the service layer.
package models

import (
	"maps"
	"net/http"
	"slices"
)

// ProductCode is a validated, upper-cased 10 character catalog identifier.
// Only parser.ValidateCode produces one from untrusted input.
type ProductCode string

func (c ProductCode) String() string { return string(c) }

// ProductRecord is the structured result of one successful extraction.
// Optional scalars are pointers so absence marshals as null.
type ProductRecord struct {
	Code           ProductCode       `json:"asin"`
	Title          *string           `json:"title"`
	Price          *string           `json:"price"`
	Availability   *string           `json:"availability"`
	Images         []string          `json:"images"`
	Description    *string           `json:"description"`
	Rating         *float64          `json:"rating"`
	ReviewCount    *string           `json:"review_count"`
	Seller         *string           `json:"seller"`
	Specifications map[string]string `json:"specifications"`
	Features       []string          `json:"features"`
}

// NewProductRecord returns an empty record for code with non-nil collections.
func NewProductRecord(code ProductCode) *ProductRecord {
	return &ProductRecord{
		Code:           code,
		Images:         []string{},
		Specifications: map[string]string{},
		Features:       []string{},
	}
}

// Clone returns a deep copy so cached records cannot be mutated by callers.
func (r *ProductRecord) Clone() *ProductRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Title = clonePtr(r.Title)
	out.Price = clonePtr(r.Price)
	out.Availability = clonePtr(r.Availability)
	out.Description = clonePtr(r.Description)
	out.Rating = clonePtr(r.Rating)
	out.ReviewCount = clonePtr(r.ReviewCount)
	out.Seller = clonePtr(r.Seller)
	out.Images = slices.Clone(r.Images)
	out.Features = slices.Clone(r.Features)
	out.Specifications = maps.Clone(r.Specifications)
	if out.Images == nil {
		out.Images = []string{}
	}
	if out.Features == nil {
		out.Features = []string{}
	}
	if out.Specifications == nil {
		out.Specifications = map[string]string{}
	}
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// TLSProfile names the browser family whose TLS ClientHello an identity
// presents.
type TLSProfile string

const (
	TLSChrome  TLSProfile = "chrome"
	TLSFirefox TLSProfile = "firefox"
	TLSSafari  TLSProfile = "safari"
)

// Identity is a coherent browser profile: a user agent, the companion
// headers that browser actually sends and the TLS handshake it makes.
type Identity struct {
	Name      string
	UserAgent string
	Headers   map[string]string
	// TLS is the handshake family used when fingerprinting is enabled. Empty
	// means Chrome.
	TLS TLSProfile
}

// Header renders the identity as request headers.
func (id Identity) Header() http.Header {
	h := make(http.Header, len(id.Headers)+1)
	for k, v := range id.Headers {
		h.Set(k, v)
	}
	h.Set("User-Agent", id.UserAgent)
	return h
}
