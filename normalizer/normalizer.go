// Package normalizer canonicalizes raw listings into submission-ready
// records and drops repeat sightings within one scrape run.
package normalizer

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/nestware/homesift/models"
)

var (
	// Catalogs decorate price text with bedroom counts and billing
	// suffixes ("$1,608+ 2 bds", "$950/mo utilities"). Strip all of it.
	reBedCount   = regexp.MustCompile(`(?i)\+?\s*\d+\s*bds?(\s|$)`)
	reBareBed    = regexp.MustCompile(`(?i)\+?\s*bd(\s|$)`)
	reWhitespace = regexp.MustCompile(`\s+`)
	reNonNumeric = regexp.MustCompile(`[^\d,.]`)

	priceNoise = []string{"total price", "studio", "utilities", "/mo", "+"}
)

// CleanPrice strips decoration from a raw price text, leaving the monetary
// string itself. Returns empty when nothing price-like remains.
func CleanPrice(text string) string {
	cleaned := reBedCount.ReplaceAllString(text, " ")
	cleaned = reBareBed.ReplaceAllString(cleaned, " ")
	lower := cleaned
	for _, noise := range priceNoise {
		// Case-insensitive literal removal.
		for {
			idx := strings.Index(strings.ToLower(lower), noise)
			if idx < 0 {
				break
			}
			lower = lower[:idx] + lower[idx+len(noise):]
		}
	}
	cleaned = reWhitespace.ReplaceAllString(lower, " ")
	return strings.TrimSpace(cleaned)
}

// NumericPrice extracts the numeric value from a price text for comparisons.
// Returns 0 when the text holds no parseable amount.
func NumericPrice(text string) int {
	numeric := strings.ReplaceAll(reNonNumeric.ReplaceAllString(text, ""), ",", "")
	if numeric == "" {
		return 0
	}
	f, err := strconv.ParseFloat(numeric, 64)
	if err != nil {
		return 0
	}
	return int(f)
}

// FormatPriceRange collapses the prices of a multi-unit card into a single
// display value: one price stays as-is, several become "low - high" ordered
// by numeric value. When no price parses, the first text survives unchanged.
func FormatPriceRange(prices []string) string {
	if len(prices) == 0 {
		return ""
	}
	if len(prices) == 1 {
		return prices[0]
	}

	type priced struct {
		text  string
		value int
	}
	valid := make([]priced, 0, len(prices))
	for _, p := range prices {
		if v := NumericPrice(p); v > 0 {
			valid = append(valid, priced{text: p, value: v})
		}
	}
	if len(valid) == 0 {
		return prices[0]
	}

	low, high := valid[0], valid[0]
	for _, p := range valid[1:] {
		if p.value < low.value {
			low = p
		}
		if p.value > high.value {
			high = p
		}
	}
	if low.value == high.value {
		return low.text
	}
	return low.text + " - " + high.text
}

// Normalize turns a raw listing into a ListingRecord: fields trimmed, price
// cleaned and range-collapsed (PriceUnknown when the card had none), and the
// detail link resolved to absolute form against base. The caller guarantees
// address and link are non-empty; Normalize preserves that invariant.
func Normalize(raw models.RawListing, base *url.URL) models.ListingRecord {
	cleaned := make([]string, 0, len(raw.Prices))
	for _, p := range raw.Prices {
		if c := CleanPrice(p); c != "" {
			cleaned = append(cleaned, c)
		}
	}
	price := FormatPriceRange(cleaned)
	if price == "" {
		price = models.PriceUnknown
	}

	return models.ListingRecord{
		Address:    strings.TrimSpace(raw.Address),
		Price:      price,
		DetailLink: resolveLink(strings.TrimSpace(raw.DetailLink), base),
	}
}

// resolveLink makes href absolute against base. Unparseable links are kept
// verbatim so the record is not lost over a cosmetic defect.
func resolveLink(href string, base *url.URL) string {
	if href == "" || base == nil {
		return href
	}
	resolved, err := base.Parse(href)
	if err != nil {
		return href
	}
	return resolved.String()
}

// Deduper tracks (address, detailLink) pairs seen within one run. The
// zero-value is not usable; create one per run with NewDeduper.
type Deduper struct {
	seen map[models.ListingKey]struct{}
}

// NewDeduper returns an empty run-scoped dedup set.
func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[models.ListingKey]struct{})}
}

// Admit reports whether rec is a first sighting, recording it if so. Repeat
// sightings keep the first-seen price: the record that returned true earlier
// already carries it, later duplicates are simply refused.
func (d *Deduper) Admit(rec models.ListingRecord) bool {
	key := rec.Key()
	if _, ok := d.seen[key]; ok {
		return false
	}
	d.seen[key] = struct{}{}
	return true
}

// Dedupe filters records to first sightings, preserving order. It is
// idempotent: deduping an already-deduped sequence changes nothing.
func Dedupe(records []models.ListingRecord) []models.ListingRecord {
	d := NewDeduper()
	out := make([]models.ListingRecord, 0, len(records))
	for _, rec := range records {
		if d.Admit(rec) {
			out = append(out, rec)
		}
	}
	return out
}
