package models

// PriceUnknown is the sentinel stored when a listing exposes no readable
// price. It is never silently coerced to a zero amount.
const PriceUnknown = "unknown"

// RawListing is one candidate record as it came off a listing card, before
// normalization. Prices holds every price text discovered on the card — a
// card advertising multiple units carries one entry per inventory box and is
// later collapsed into a price range. An empty Prices slice means the card
// had no readable price at all.
type RawListing struct {
	Address    string
	DetailLink string
	Prices     []string
}

// ListingRecord is a normalized listing ready for submission. Address and
// DetailLink are non-empty; Price is either a cleaned monetary string (or
// range) or PriceUnknown.
type ListingRecord struct {
	Address    string `json:"address"`
	Price      string `json:"price"`
	DetailLink string `json:"link"`
}

// Key returns the identity of the physical unit this record describes.
// Two sightings sharing the same key are the same listing.
func (r ListingRecord) Key() ListingKey {
	return ListingKey{Address: r.Address, DetailLink: r.DetailLink}
}

// ListingKey is the run-scoped dedup key.
type ListingKey struct {
	Address    string
	DetailLink string
}
