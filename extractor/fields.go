package extractor

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// fieldStrategy yields a single field value from a card, or empty when the
// variant it targets is absent.
type fieldStrategy func(card *goquery.Selection) string

// firstOf runs strategies in priority order and returns the first value.
func firstOf(card *goquery.Selection, strategies []fieldStrategy) string {
	for _, s := range strategies {
		if v := s(card); v != "" {
			return v
		}
	}
	return ""
}

// ── Address ───────────────────────────────────────────────────────

var addressStrategies = []fieldStrategy{
	// Semantic <address> element, the stable variant.
	func(card *goquery.Selection) string {
		return cleanAddress(card.Find("address").First().Text())
	},
	// Attribute-tagged fallback used by older card markup.
	func(card *goquery.Selection) string {
		return cleanAddress(card.Find(`[data-test="property-card-addr"]`).First().Text())
	},
}

// cleanAddress trims and drops the "|" separators some cards embed.
func cleanAddress(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "|", ""))
}

func extractAddress(card *goquery.Selection) string {
	return firstOf(card, addressStrategies)
}

// ── Detail link ───────────────────────────────────────────────────

var linkStrategies = []fieldStrategy{
	func(card *goquery.Selection) string {
		return hrefOf(card.Find(`a[data-test="property-card-link"]`).First())
	},
	func(card *goquery.Selection) string {
		return hrefOf(card.Find("a.property-card-link").First())
	},
	// Last resort: the first anchor that plausibly points at a detail page.
	func(card *goquery.Selection) string {
		var href string
		card.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			h := hrefOf(a)
			if strings.Contains(h, "/homedetails/") || strings.HasPrefix(h, "/") || strings.HasPrefix(h, "http") {
				href = h
				return false
			}
			return true
		})
		return href
	},
}

func hrefOf(a *goquery.Selection) string {
	href, _ := a.Attr("href")
	return strings.TrimSpace(href)
}

func extractLink(card *goquery.Selection) string {
	return firstOf(card, linkStrategies)
}

// ── Price ─────────────────────────────────────────────────────────

// currencyPattern recognizes price-shaped text for the generic fallback.
var currencyPattern = regexp.MustCompile(`[$€£¥₹]\s*\d`)

// extractPrices collects every price text on the card. A card advertising
// multiple units lists one price per inventory box; those take precedence
// over the headline price, mirroring how the catalog displays them.
func extractPrices(card *goquery.Selection) []string {
	if prices := inventoryPrices(card); len(prices) > 0 {
		return prices
	}
	if p := mainPrice(card); p != "" {
		return []string{p}
	}
	if p := currencyFallback(card); p != "" {
		return []string{p}
	}
	return nil
}

// mainPrice reads the headline price span. The outer span can contain
// sibling annotations ("Fees may apply") that concatenate without spaces
// when read whole, so prefer the innermost nested span.
func mainPrice(card *goquery.Selection) string {
	outer := card.Find(`span[data-test="property-card-price"]`).First()
	if outer.Length() == 0 {
		return ""
	}
	inner := outer.Find("span").First()
	if inner.Length() > 0 {
		if nested := inner.Find("span").First(); nested.Length() > 0 {
			inner = nested
		}
		if t := strings.TrimSpace(inner.Text()); t != "" {
			return t
		}
	}
	return strings.TrimSpace(outer.Text())
}

// inventoryPrices reads the per-unit price boxes of a multi-unit card.
func inventoryPrices(card *goquery.Selection) []string {
	section := card.Find(`div[class*="property-card-inventory-set"]`).First()
	if section.Length() == 0 {
		return nil
	}
	var prices []string
	section.Find(`div[data-testid="PropertyCardInventoryBox"]`).Each(func(_ int, box *goquery.Selection) {
		if t := strings.TrimSpace(box.Find("span").First().Text()); t != "" {
			prices = append(prices, t)
		}
	})
	return prices
}

// currencyFallback scans the card's spans for the first price-shaped text.
func currencyFallback(card *goquery.Selection) string {
	var price string
	card.Find("span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		t := strings.TrimSpace(s.Text())
		if currencyPattern.MatchString(t) && len(t) < 64 {
			price = t
			return false
		}
		return true
	})
	return price
}
