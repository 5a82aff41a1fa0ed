package scraper

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"autoria_scraper/config"
)

// SearchCrawler walks search result pages one at a time and collects the
// listing links on each.
type SearchCrawler struct {
	renderer PageRenderer
	site     *config.SiteConfig
}

func NewSearchCrawler(renderer PageRenderer, site *config.SiteConfig) *SearchCrawler {
	return &SearchCrawler{renderer: renderer, site: site}
}

// Crawl renders baseURL with page=0,1,2,... and returns the listing URLs in
// page order. It stops at the first page with no links, at the first page
// that fails to render, or after maxPages non-empty pages when maxPages > 0.
// Only an unusable baseURL is reported as an error.
func (c *SearchCrawler) Crawl(ctx context.Context, baseURL string, maxPages int) ([]string, error) {
	var allLinks []string

	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			log.Printf("Search crawl cancelled at page %d: %v", page, err)
			break
		}

		pageURL, err := PageURL(baseURL, page)
		if err != nil {
			return nil, err
		}

		html, err := c.renderer.Render(ctx, pageURL)
		if err != nil {
			log.Printf("Failed to load search page %s: %v", pageURL, err)
			break
		}

		links, err := ParseListingLinks(html, c.site.TitleSelector, c.site.Origin)
		if err != nil {
			log.Printf("Failed to parse search page %s: %v", pageURL, err)
			break
		}

		log.Printf("Page %d: found %d car links", page, len(links))
		if len(links) == 0 {
			break
		}

		allLinks = append(allLinks, links...)

		if maxPages > 0 && page+1 >= maxPages {
			break
		}
	}

	return allLinks, nil
}

// PageURL sets the page query parameter on baseURL, replacing any existing
// value.
func PageURL(baseURL string, page int) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ParseListingLinks finds every element matching titleSelector, walks up to
// the enclosing anchor and returns its href made absolute against origin.
func ParseListingLinks(html, titleSelector, origin string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var links []string
	doc.Find(titleSelector).Each(func(i int, s *goquery.Selection) {
		href, ok := s.ParentsFiltered("a").First().Attr("href")
		if !ok {
			return
		}
		if href = strings.TrimSpace(href); href == "" {
			return
		}
		links = append(links, absoluteURL(href, origin))
	})

	return links, nil
}

func absoluteURL(href, origin string) string {
	switch {
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	case strings.HasPrefix(href, "/"):
		return strings.TrimRight(origin, "/") + href
	default:
		return href
	}
}
