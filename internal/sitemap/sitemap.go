// Package sitemap discovers URLs advertised via sitemap.xml and
// sitemap-index files (§4.C). The teacher has no equivalent package;
// this one probes a fixed set of conventional sitemap locations plus
// any robots.txt-advertised Sitemap directives, using
// github.com/gocolly/colly/v2 for the bounded, revisit-safe HTTP
// fetching and recursive index expansion (colly's own max-depth
// cap gives the cycle bound for free), matching the way the
// other_examples scraper repos (rummage, ariadne) lean on colly
// for crawl-shaped link discovery.
package sitemap

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"github.com/gocolly/colly/v2"
)

// candidatePaths are probed, in order, against a site's root when the
// caller has no robots.txt-advertised sitemap location.
var candidatePaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemap1.xml",
	"/sitemaps/sitemap.xml",
	"/sitemap/sitemap.xml",
}

// urlset/sitemapindex mirror the two sitemap XML schemas. Namespaces
// are stripped before unmarshalling (via localName matching below),
// so these structs match regardless of the declared xmlns.
type urlset struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

type sitemapIndex struct {
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// Resolver fetches and parses sitemaps for a single site.
type Resolver struct {
	maxIndexDepth int
	userAgent     string
}

// NewResolver builds a Resolver. maxIndexDepth bounds sitemap-index
// recursion (§4.C); 0 falls back to a conservative default of 3.
func NewResolver(maxIndexDepth int, userAgent string) Resolver {
	if maxIndexDepth <= 0 {
		maxIndexDepth = 3
	}
	return Resolver{maxIndexDepth: maxIndexDepth, userAgent: userAgent}
}

// Discover probes the conventional sitemap locations under root plus
// any explicit candidates (e.g. from robots.txt Sitemap: directives),
// and returns every page URL reachable by recursively expanding
// sitemap indexes.
func (r Resolver) Discover(root url.URL, fromRobots []string) ([]url.URL, error) {
	seen := make(map[string]struct{})
	var pages []url.URL

	candidates := make([]string, 0, len(candidatePaths)+len(fromRobots))
	candidates = append(candidates, fromRobots...)
	for _, path := range candidatePaths {
		u := root
		u.Path = path
		u.RawQuery = ""
		candidates = append(candidates, u.String())
	}

	for _, candidate := range candidates {
		if _, ok := seen[candidate]; ok {
			continue
		}
		found, err := r.expand(candidate, 0, seen)
		if err != nil {
			// A missing/unreachable candidate is not an error for the
			// overall discovery; only the first successful candidate
			// plus any index recursion off it needs to resolve.
			continue
		}
		pages = append(pages, found...)
	}

	return pages, nil
}

func (r Resolver) expand(sitemapURL string, depth int, seen map[string]struct{}) ([]url.URL, error) {
	if depth > r.maxIndexDepth {
		return nil, fmt.Errorf("sitemap: max index depth %d exceeded at %s", r.maxIndexDepth, sitemapURL)
	}
	if _, ok := seen[sitemapURL]; ok {
		return nil, nil
	}
	seen[sitemapURL] = struct{}{}

	body, err := r.fetch(sitemapURL)
	if err != nil {
		return nil, err
	}

	if locs, ok := parseURLSet(body); ok {
		pages := make([]url.URL, 0, len(locs))
		for _, loc := range locs {
			parsed, err := url.Parse(loc)
			if err != nil {
				continue
			}
			pages = append(pages, *parsed)
		}
		return pages, nil
	}

	if children, ok := parseSitemapIndex(body); ok {
		var pages []url.URL
		for _, child := range children {
			childPages, err := r.expand(child, depth+1, seen)
			if err != nil {
				continue
			}
			pages = append(pages, childPages...)
		}
		return pages, nil
	}

	return nil, fmt.Errorf("sitemap: %s is neither a urlset nor a sitemapindex", sitemapURL)
}

func (r Resolver) fetch(target string) ([]byte, error) {
	var body []byte
	var fetchErr error

	c := colly.NewCollector(
		colly.UserAgent(r.userAgent),
		colly.MaxDepth(1),
	)
	c.OnResponse(func(resp *colly.Response) {
		body = resp.Body
	})
	c.OnError(func(resp *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(target); err != nil {
		return nil, err
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("sitemap: empty response from %s", target)
	}
	return body, nil
}

// parseURLSet strips namespaces by decoding with a local-name-only
// token transform, then attempts to unmarshal as a <urlset>.
func parseURLSet(body []byte) ([]string, bool) {
	var set urlset
	if err := unmarshalStripNS(body, &set); err != nil || len(set.URLs) == 0 {
		return nil, false
	}
	locs := make([]string, 0, len(set.URLs))
	for _, u := range set.URLs {
		loc := strings.TrimSpace(u.Loc)
		if loc != "" {
			locs = append(locs, loc)
		}
	}
	return locs, len(locs) > 0
}

func parseSitemapIndex(body []byte) ([]string, bool) {
	var idx sitemapIndex
	if err := unmarshalStripNS(body, &idx); err != nil || len(idx.Sitemaps) == 0 {
		return nil, false
	}
	locs := make([]string, 0, len(idx.Sitemaps))
	for _, s := range idx.Sitemaps {
		loc := strings.TrimSpace(s.Loc)
		if loc != "" {
			locs = append(locs, loc)
		}
	}
	return locs, len(locs) > 0
}

// unmarshalStripNS decodes XML while dropping namespace prefixes from
// element names, so <ns:urlset> and <urlset> both match the structs
// above regardless of the declared xmlns.
func unmarshalStripNS(body []byte, v any) error {
	decoder := xml.NewDecoder(strings.NewReader(string(body)))
	decoder.Strict = false
	return decode(decoder, v)
}

func decode(decoder *xml.Decoder, v any) error {
	return xml.NewTokenDecoder(nsStrippingReader{decoder}).Decode(v)
}

// nsStrippingReader adapts an *xml.Decoder into an xml.TokenReader
// that strips namespace prefixes from element names.
type nsStrippingReader struct {
	d *xml.Decoder
}

func (r nsStrippingReader) Token() (xml.Token, error) {
	tok, err := r.d.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case xml.StartElement:
		t.Name.Space = ""
		return t, nil
	case xml.EndElement:
		t.Name.Space = ""
		return t, nil
	}
	return tok, nil
}
