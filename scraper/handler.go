package scraper

import (
	"context"

	"autoria_scraper/config"
	"autoria_scraper/models"
)

// PageRenderer loads a client-rendered page in a headless browser and
// returns the markup once the network has gone idle.
type PageRenderer interface {
	Render(ctx context.Context, pageURL string) (string, error)
	Close() error
}

// URLSource produces the listing URLs for one run.
type URLSource interface {
	Crawl(ctx context.Context, baseURL string, maxPages int) ([]string, error)
}

// Extractor turns one listing URL into a canonical listing, or nil when the
// listing cannot be processed.
type Extractor interface {
	Extract(ctx context.Context, listingURL string) *models.Listing
}

// ListingStore persists listings keyed by URL.
type ListingStore interface {
	EnsureSchema(ctx context.Context) error
	UpsertByURL(ctx context.Context, listing *models.Listing) error
}

// NewRenderer returns the renderer selected by cfg.Renderer.
func NewRenderer(cfg *config.ScraperConfig, site *config.SiteConfig) PageRenderer {
	switch cfg.Renderer {
	case config.RendererChromedp:
		return NewChromeRenderer(cfg, site.UserAgent)
	default:
		return NewPlaywrightRenderer(cfg, site.UserAgent)
	}
}
