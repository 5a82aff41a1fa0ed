package models

import "time"

// Listing is one vehicle listing in canonical form. URL is the natural key;
// every other field is optional because the upstream API is best effort.
type Listing struct {
	URL         string    `json:"url" db:"url"`
	Title       *string   `json:"title" db:"title"`
	PriceUSD    *float64  `json:"price_usd" db:"price_usd"`
	Odometer    *int64    `json:"odometer" db:"odometer"`
	SellerName  *string   `json:"username" db:"username"`
	Phone       *string   `json:"phone_number" db:"phone_number"`
	ImageURL    *string   `json:"image_url" db:"image_url"`
	ImagesCount *int      `json:"images_count" db:"images_count"`
	PlateNumber *string   `json:"car_number" db:"car_number"`
	VIN         *string   `json:"car_vin" db:"car_vin"`
	FoundAt     time.Time `json:"datetime_found" db:"datetime_found"`
}
