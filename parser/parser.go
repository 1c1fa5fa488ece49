// Package parser validates product codes and turns product pages into
// records.
package parser

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	priceStrip   = regexp.MustCompile(`[^\d.,$€£¥₹]`)
	priceRange   = regexp.MustCompile(`[-\x{2013}\x{2014}]|\bto\b`)
	ratingNumber = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	reviewNumber = regexp.MustCompile(`\d{1,3}(?:[,.]\d{3})+|\d+`)
)

// NormalizePrice keeps digits, separators and currency symbols, so
// "Price: $29.99" becomes "$29.99". A range such as "$10.99 - $15.99"
// yields its lower bound. Text without digits yields "".
func NormalizePrice(price string) string {
	for _, part := range priceRange.Split(price, -1) {
		part = priceStrip.ReplaceAllString(part, "")
		if strings.ContainsAny(part, "0123456789") {
			return part
		}
	}
	return ""
}

// NormalizeText collapses runs of whitespace and trims the result.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// ParseRating reads the first number out of locale formatted rating text
// such as "4.5 out of 5 stars" or "4,5 von 5 Sternen". Values outside
// [0, 5] are rejected.
func ParseRating(text string) (float64, bool) {
	match := ratingNumber.FindString(text)
	if match == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(strings.Replace(match, ",", ".", 1), 64)
	if err != nil || value < 0 || value > 5 {
		return 0, false
	}
	return value, true
}

// NormalizeReviewCount extracts the count from text like "1,234 ratings",
// keeping its thousands separators.
func NormalizeReviewCount(text string) string {
	return reviewNumber.FindString(text)
}
