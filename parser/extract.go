package parser

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/aluiziolira/go-scrape-asin/models"
)

// ErrNoProductStructure means the document has no title region at all.
var ErrNoProductStructure = errors.New("no recognizable product structure")

// ParseError reports a document that passed classification but is not a
// product page.
type ParseError struct {
	Code models.ProductCode
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Code, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Selectors are tried in order; the first one yielding a usable value wins.
var (
	titleRegionSelectors = compile("#titleSection", "#title_feature_div", "#productTitle", "#title", ".product-title", "h1.a-size-large")
	titleSelectors       = compile("#productTitle", "#title", ".product-title", "h1.a-size-large")
	priceSelectors       = compile(
		"#corePrice_feature_div .a-price .a-offscreen",
		"#corePriceDisplay_desktop_feature_div .a-price .a-offscreen",
		"#priceblock_ourprice",
		"#priceblock_dealprice",
		"#price_inside_buybox",
		"#newBuyBoxPrice",
		".a-price .a-offscreen",
	)
	priceWholeSelector    = cascadia.MustCompile(".a-price-whole")
	availabilitySelectors = compile("#availability span", "#availability", "#outOfStock .a-color-price", ".a-color-success", ".a-color-state")
	descriptionSelectors  = compile("#productDescription", "#bookDescription_feature_div .a-expander-content", "#productDescription_feature_div")
	ratingAttrSelectors   = compile("#acrPopover")
	ratingTextSelectors   = compile("#averageCustomerReviews .a-icon-alt", `span[data-hook="rating-out-of-text"]`, ".a-icon-alt")
	reviewCountSelectors  = compile("#acrCustomerReviewText", `[data-hook="total-review-count"]`, "#acrCustomerReviewLink")
	sellerSelectors       = compile(
		"#sellerProfileTriggerId",
		"#merchant-info a",
		`#tabular-buybox .tabular-buybox-text[tabular-attribute-name="Sold by"] span`,
		"#merchantInfoFeature_feature_div .offer-display-feature-text-message",
	)
	featureSelectors = compile("#feature-bullets li span.a-list-item", "#feature-bullets li", "#featurebullets_feature_div li span.a-list-item")

	metaDescriptionSelector = cascadia.MustCompile(`meta[name="description"]`)
	noiseSelector           = cascadia.MustCompile("script, style, noscript")

	// Group selectors match in document order.
	imageSelector = cascadia.MustCompile(
		"#landingImage, #imgTagWrapperId img, #imgBlkFront, #ebooksImgBlkFront, " +
			"#main-image-container img.a-dynamic-image, #altImages .a-button-thumbnail img",
	)
	specBulletSelector = cascadia.MustCompile("#detailBullets_feature_div li, #detailBulletsWrapper_feature_div li")
	specRowSelector    = cascadia.MustCompile(
		"#productDetails_techSpec_section_1 tr, #productDetails_detailBullets_sections1 tr, " +
			"#technicalSpecifications_section_1 tr, #productDetailsTable tr, #prodDetails tr, " +
			"#productOverview_feature_div tr",
	)
)

const minFeatureLength = 10

var (
	bidiMarks  = strings.NewReplacer("\u200e", "", "\u200f", "", "\u200b", "")
	labelNoise = strings.NewReplacer("\u200e", "", "\u200f", "", "\u200b", "", ":", "")
)

func compile(selectors ...string) []cascadia.Selector {
	out := make([]cascadia.Selector, len(selectors))
	for i, sel := range selectors {
		out[i] = cascadia.MustCompile(sel)
	}
	return out
}

// FieldExtractor turns an accepted product page into a ProductRecord. It
// holds no per-document state and is safe for concurrent use.
type FieldExtractor struct {
	base *url.URL
}

// NewFieldExtractor returns an extractor resolving relative image URLs
// against baseURL. An unparsable baseURL leaves them untouched.
func NewFieldExtractor(baseURL string) *FieldExtractor {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		base = nil
	}
	return &FieldExtractor{base: base}
}

// Extract parses body into a record. Each field is independent and simply
// absent when no selector matches; only a page without any title region is
// an error.
func (e *FieldExtractor) Extract(body []byte, code models.ProductCode) (*models.ProductRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{Code: code, Err: err}
	}
	if !matchesAny(doc, titleRegionSelectors) {
		return nil, &ParseError{Code: code, Err: ErrNoProductStructure}
	}
	doc.FindMatcher(noiseSelector).Remove()

	record := models.NewProductRecord(code)
	record.Title = optional(firstText(doc, titleSelectors))
	record.Price = optional(extractPrice(doc))
	record.Availability = optional(firstText(doc, availabilitySelectors))
	record.Images = e.extractImages(doc)
	record.Description = optional(extractDescription(doc))
	record.Rating = extractRating(doc)
	record.ReviewCount = optional(NormalizeReviewCount(firstText(doc, reviewCountSelectors)))
	record.Seller = optional(firstText(doc, sellerSelectors))
	record.Specifications = extractSpecifications(doc)
	record.Features = extractFeatures(doc)
	return record, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func matchesAny(doc *goquery.Document, selectors []cascadia.Selector) bool {
	for _, sel := range selectors {
		if doc.FindMatcher(sel).Length() > 0 {
			return true
		}
	}
	return false
}

func firstText(doc *goquery.Document, selectors []cascadia.Selector) string {
	for _, sel := range selectors {
		var found string
		doc.FindMatcher(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			found = NormalizeText(s.Text())
			return found == ""
		})
		if found != "" {
			return found
		}
	}
	return ""
}

func extractPrice(doc *goquery.Document) string {
	for _, sel := range priceSelectors {
		var price string
		doc.FindMatcher(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			price = NormalizePrice(s.Text())
			return price == ""
		})
		if price != "" {
			return price
		}
	}

	// Split rendering: <span class="a-price-symbol">$</span>
	// <span class="a-price-whole">49<span class="a-price-decimal">.</span></span>
	// <span class="a-price-fraction">99</span>
	whole := doc.FindMatcher(priceWholeSelector).First()
	if whole.Length() == 0 {
		return ""
	}
	parent := whole.Parent()
	symbol := NormalizeText(parent.Find(".a-price-symbol").First().Text())
	wholeText := NormalizeText(whole.Text())
	fraction := NormalizeText(parent.Find(".a-price-fraction").First().Text())
	if fraction != "" && !strings.HasSuffix(wholeText, ".") && !strings.HasSuffix(wholeText, ",") {
		wholeText += "."
	}
	return NormalizePrice(symbol + wholeText + fraction)
}

func (e *FieldExtractor) extractImages(doc *goquery.Document) []string {
	images := []string{}
	seen := make(map[string]struct{})
	doc.FindMatcher(imageSelector).Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("data-old-hires", ""))
		if src == "" {
			src = strings.TrimSpace(s.AttrOr("src", ""))
		}
		if src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		src = e.resolve(src)
		if _, ok := seen[src]; ok {
			return
		}
		seen[src] = struct{}{}
		images = append(images, src)
	})
	return images
}

func (e *FieldExtractor) resolve(ref string) string {
	if e.base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return e.base.ResolveReference(u).String()
}

func extractDescription(doc *goquery.Document) string {
	if text := firstText(doc, descriptionSelectors); text != "" {
		return text
	}
	content, _ := doc.FindMatcher(metaDescriptionSelector).First().Attr("content")
	return NormalizeText(content)
}

func extractRating(doc *goquery.Document) *float64 {
	for _, sel := range ratingAttrSelectors {
		if title, ok := doc.FindMatcher(sel).First().Attr("title"); ok {
			if rating, ok := ParseRating(title); ok {
				return &rating
			}
		}
	}
	for _, sel := range ratingTextSelectors {
		var rating float64
		var found bool
		doc.FindMatcher(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			rating, found = ParseRating(s.Text())
			return !found
		})
		if found {
			return &rating
		}
	}
	return nil
}

func extractSpecifications(doc *goquery.Document) map[string]string {
	specs := make(map[string]string)
	add := func(label, value string) {
		label = NormalizeText(labelNoise.Replace(label))
		value = NormalizeText(bidiMarks.Replace(value))
		if label == "" || value == "" {
			return
		}
		if _, ok := specs[label]; !ok {
			specs[label] = value
		}
	}

	doc.FindMatcher(specBulletSelector).Each(func(_ int, li *goquery.Selection) {
		label := li.Find("span.a-text-bold").First()
		if label.Length() > 0 {
			add(label.Text(), label.NextAllFiltered("span").First().Text())
			return
		}
		spans := li.Find("span.a-list-item > span")
		if spans.Length() < 2 {
			return
		}
		add(spans.Eq(0).Text(), spans.Eq(1).Text())
	})

	doc.FindMatcher(specRowSelector).Each(func(_ int, tr *goquery.Selection) {
		if th := tr.ChildrenFiltered("th"); th.Length() > 0 {
			add(th.First().Text(), tr.ChildrenFiltered("td").First().Text())
			return
		}
		cells := tr.ChildrenFiltered("td")
		if cells.Length() < 2 {
			return
		}
		add(cells.Eq(0).Text(), cells.Eq(1).Text())
	})
	return specs
}

func extractFeatures(doc *goquery.Document) []string {
	for _, sel := range featureSelectors {
		features := []string{}
		seen := make(map[string]struct{})
		doc.FindMatcher(sel).Each(func(_ int, s *goquery.Selection) {
			text := NormalizeText(s.Text())
			if utf8.RuneCountInString(text) <= minFeatureLength {
				return
			}
			if strings.Contains(strings.ToLower(text), "see more product details") {
				return
			}
			if _, ok := seen[text]; ok {
				return
			}
			seen[text] = struct{}{}
			features = append(features, text)
		})
		if len(features) > 0 {
			return features
		}
	}
	return []string{}
}
