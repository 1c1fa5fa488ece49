package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aluiziolira/go-scrape-asin/models"
)

// CodeLength is the fixed length of a product code.
const CodeLength = 10

var codePattern = regexp.MustCompile(`^[A-Za-z0-9]{10}$`)

// InvalidCodeError reports a raw code that failed syntactic validation.
type InvalidCodeError struct {
	Raw    string
	Reason string
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid product code %q: %s", e.Raw, e.Reason)
}

// ValidateCode accepts exactly ten ASCII letters or digits and returns the
// upper-cased code.
func ValidateCode(raw string) (models.ProductCode, error) {
	switch {
	case raw == "":
		return "", &InvalidCodeError{Raw: raw, Reason: "empty"}
	case len(raw) != CodeLength:
		return "", &InvalidCodeError{Raw: raw, Reason: fmt.Sprintf("length %d, want %d", len(raw), CodeLength)}
	case !codePattern.MatchString(raw):
		return "", &InvalidCodeError{Raw: raw, Reason: "must be alphanumeric"}
	}
	return models.ProductCode(strings.ToUpper(raw)), nil
}
