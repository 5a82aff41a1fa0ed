package scraper

/*
Detail endpoint response (abridged)
===================================
GET /bff/final-page/public/{autoId}?langId=4&device=desktop-web&ssr=0

{
  "autoData": {
    "title": "Honda Civic 2012",      // sometimes "titleAuto"
    "raceInt": 150000,                // or "race": "150 000"
    "USD": 9000,                      // legacy price
    "number": "AA 1234 BB",           // or "stateNumber"
    "VIN": "JHMFA16586S000000"        // or "vin"
  },
  "priceInfo": { "price": "9000" },
  "photoData": {
    "seoLinkM": "https://cdn.riastatic.com/photos/auto/photo/...m.jpg",
    "photos": [ {...}, {...} ]
  }
}

Any of these may be missing, null or a different JSON type.
*/

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"autoria_scraper/config"
)

// Detail holds the fields recovered from the detail endpoint. Every field
// is optional.
type Detail struct {
	Title       *string
	PriceUSD    *float64
	Odometer    *int64
	ImageURL    *string
	ImagesCount *int
	PlateNumber *string
	VIN         *string
}

type DetailFetcher struct {
	client *http.Client
	site   *config.SiteConfig
}

func NewDetailFetcher(client *http.Client, site *config.SiteConfig) *DetailFetcher {
	return &DetailFetcher{client: client, site: site}
}

// Fetch returns the parsed detail payload for a listing, or nil when the
// endpoint fails or returns nothing. Failures are logged, never retried.
func (f *DetailFetcher) Fetch(ctx context.Context, autoID int64) *Detail {
	payload, err := f.fetch(ctx, autoID)
	if err != nil {
		log.Printf("Detail %d: %v", autoID, err)
		return nil
	}
	if len(payload) == 0 {
		log.Printf("Detail %d: empty payload", autoID)
		return nil
	}
	return parseDetail(payload)
}

func (f *DetailFetcher) fetch(ctx context.Context, autoID int64) (object, error) {
	endpoint := fmt.Sprintf(f.site.Endpoint("detail"), autoID)

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("User-Agent", f.site.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrUpstreamStatus, resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return payload, nil
}

func parseDetail(payload object) *Detail {
	autoData := payload.child("autoData")
	priceInfo := payload.child("priceInfo")
	photoData := payload.child("photoData")

	d := &Detail{
		Title:       autoData.stringField("title", "titleAuto"),
		Odometer:    autoData.digitsField("raceInt", "race"),
		ImageURL:    photoData.stringField("seoLinkM"),
		PlateNumber: autoData.trimmedField("number", "stateNumber"),
		VIN:         autoData.trimmedField("VIN", "vin"),
	}

	if price := priceInfo.decimalField("price"); price != nil {
		d.PriceUSD = price
	} else {
		d.PriceUSD = autoData.decimalField("USD")
	}

	if photos, ok := photoData["photos"].([]any); ok {
		n := len(photos)
		d.ImagesCount = &n
	}

	return d
}
