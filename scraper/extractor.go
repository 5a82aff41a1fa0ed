package scraper

import (
	"context"
	"log"

	"autoria_scraper/identity"
	"autoria_scraper/models"
)

type DetailSource interface {
	Fetch(ctx context.Context, autoID int64) *Detail
}

type ContactSource interface {
	Resolve(ctx context.Context, autoID int64, referer string) Contact
}

// ListingExtractor combines the detail and contact endpoints into one
// canonical listing per URL.
type ListingExtractor struct {
	details  DetailSource
	contacts ContactSource
}

func NewListingExtractor(details DetailSource, contacts ContactSource) *ListingExtractor {
	return &ListingExtractor{details: details, contacts: contacts}
}

// Extract returns nil when the URL carries no listing id or the detail
// endpoint yields nothing. A failed contact lookup only leaves the seller
// fields empty. FoundAt is left for the store to set.
func (e *ListingExtractor) Extract(ctx context.Context, listingURL string) *models.Listing {
	autoID, ok := identity.ListingID(listingURL)
	if !ok {
		log.Printf("Skipping %s: no listing id in URL", listingURL)
		return nil
	}

	detail := e.details.Fetch(ctx, autoID)
	if detail == nil {
		return nil
	}

	contact := e.contacts.Resolve(ctx, autoID, listingURL)

	return &models.Listing{
		URL:         listingURL,
		Title:       detail.Title,
		PriceUSD:    detail.PriceUSD,
		Odometer:    detail.Odometer,
		SellerName:  contact.SellerName,
		Phone:       contact.Phone,
		ImageURL:    detail.ImageURL,
		ImagesCount: detail.ImagesCount,
		PlateNumber: detail.PlateNumber,
		VIN:         detail.VIN,
	}
}
