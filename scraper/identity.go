package scraper

import (
	"fmt"
	"math/rand/v2"

	"github.com/aluiziolira/go-scrape-asin/models"
)

// IdentityRotator hands out the browser identity for the next attempt.
type IdentityRotator interface {
	Next() models.Identity
}

// IdentityPool is a fixed, read-only set of browser profiles. It is shared by
// all invocations; each invocation draws from it through its own rotator.
type IdentityPool struct {
	identities []models.Identity
}

// NewIdentityPool wraps identities. It panics on an empty pool since no
// request could be issued.
func NewIdentityPool(identities []models.Identity) *IdentityPool {
	if len(identities) == 0 {
		panic("scraper: empty identity pool")
	}
	return &IdentityPool{identities: identities}
}

// Len reports the number of profiles in the pool.
func (p *IdentityPool) Len() int { return len(p.identities) }

// NewRotator returns a rotator for one retry sequence.
func (p *IdentityPool) NewRotator() IdentityRotator {
	return &RandomRotator{pool: p, last: -1, intn: rand.IntN}
}

// RandomRotator picks uniformly at random but never returns the same profile
// twice in a row. It is not safe for concurrent use; a sequence belongs to a
// single invocation.
type RandomRotator struct {
	pool *IdentityPool
	last int
	intn func(int) int
}

// Next returns a profile different from the previous one.
func (r *RandomRotator) Next() models.Identity {
	n := len(r.pool.identities)
	idx := r.intn(n)
	if n > 1 && idx == r.last {
		idx = (idx + 1 + r.intn(n-1)) % n
	}
	r.last = idx
	return r.pool.identities[idx]
}

// DefaultIdentityPool returns the built-in desktop browser profiles.
func DefaultIdentityPool() *IdentityPool {
	return defaultPool
}

var defaultPool = NewIdentityPool(buildDefaultIdentities())

type platform struct {
	name   string
	chUA   string // Sec-Ch-Ua-Platform
	uaPart string
}

var (
	windows = platform{name: "windows", chUA: `"Windows"`, uaPart: "Windows NT 10.0; Win64; x64"}
	macOS   = platform{name: "macos", chUA: `"macOS"`, uaPart: "Macintosh; Intel Mac OS X 10_15_7"}
	linux   = platform{name: "linux", chUA: `"Linux"`, uaPart: "X11; Linux x86_64"}
)

var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-US,en;q=0.8",
	"en-GB,en;q=0.9,en-US;q=0.8",
}

const chromeAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"

func buildDefaultIdentities() []models.Identity {
	var out []models.Identity
	for i, version := range []int{129, 130, 131} {
		for j, p := range []platform{windows, macOS, linux} {
			lang := acceptLanguages[(i+j)%len(acceptLanguages)]
			out = append(out, chromeIdentity(version, p, lang))
		}
		out = append(out, edgeIdentity(version, windows, acceptLanguages[i%len(acceptLanguages)]))
	}
	for i, version := range []int{131, 132, 133} {
		for j, p := range []platform{windows, macOS, linux} {
			out = append(out, firefoxIdentity(version, p, acceptLanguages[(i+j+1)%len(acceptLanguages)]))
		}
	}
	for i, version := range []string{"17.6", "18.0", "18.1"} {
		out = append(out, safariIdentity(version, acceptLanguages[i%len(acceptLanguages)]))
	}
	return out
}

func chromeIdentity(version int, p platform, lang string) models.Identity {
	return models.Identity{
		Name: fmt.Sprintf("chrome-%d-%s", version, p.name),
		UserAgent: fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36",
			p.uaPart, version),
		Headers: map[string]string{
			"Accept":                    chromeAccept,
			"Accept-Language":           lang,
			"Sec-Ch-Ua":                 fmt.Sprintf(`"Google Chrome";v="%d", "Chromium";v="%d", "Not_A Brand";v="24"`, version, version),
			"Sec-Ch-Ua-Mobile":          "?0",
			"Sec-Ch-Ua-Platform":        p.chUA,
			"Sec-Fetch-Dest":            "document",
			"Sec-Fetch-Mode":            "navigate",
			"Sec-Fetch-Site":            "none",
			"Sec-Fetch-User":            "?1",
			"Upgrade-Insecure-Requests": "1",
		},
		TLS: models.TLSChrome,
	}
}

func edgeIdentity(version int, p platform, lang string) models.Identity {
	id := chromeIdentity(version, p, lang)
	id.Name = fmt.Sprintf("edge-%d-%s", version, p.name)
	id.UserAgent += fmt.Sprintf(" Edg/%d.0.0.0", version)
	id.Headers["Sec-Ch-Ua"] = fmt.Sprintf(`"Microsoft Edge";v="%d", "Chromium";v="%d", "Not_A Brand";v="24"`, version, version)
	return id
}

func firefoxIdentity(version int, p platform, lang string) models.Identity {
	uaPart := p.uaPart
	if p == macOS {
		uaPart = "Macintosh; Intel Mac OS X 10.15"
	}
	return models.Identity{
		Name:      fmt.Sprintf("firefox-%d-%s", version, p.name),
		UserAgent: fmt.Sprintf("Mozilla/5.0 (%s; rv:%d.0) Gecko/20100101 Firefox/%d.0", uaPart, version, version),
		Headers: map[string]string{
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language":           lang,
			"Sec-Fetch-Dest":            "document",
			"Sec-Fetch-Mode":            "navigate",
			"Sec-Fetch-Site":            "none",
			"Sec-Fetch-User":            "?1",
			"Upgrade-Insecure-Requests": "1",
		},
		TLS: models.TLSFirefox,
	}
}

func safariIdentity(version, lang string) models.Identity {
	return models.Identity{
		Name: "safari-" + version + "-macos",
		UserAgent: fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/%s Safari/605.1.15",
			macOS.uaPart, version),
		Headers: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language": lang,
			"Sec-Fetch-Dest":  "document",
			"Sec-Fetch-Mode":  "navigate",
			"Sec-Fetch-Site":  "none",
		},
		TLS: models.TLSSafari,
	}
}
