package extractor

import (
	"fmt"
	"strings"
	"testing"
)

// card renders one listing container in the current markup variant.
func card(addr, href, price string) string {
	var b strings.Builder
	b.WriteString(`<article data-test="property-card">`)
	if addr != "" {
		fmt.Fprintf(&b, `<address>%s</address>`, addr)
	}
	if price != "" {
		fmt.Fprintf(&b, `<span data-test="property-card-price"><span><span>%s</span><span>Fees may apply</span></span></span>`, price)
	}
	if href != "" {
		fmt.Fprintf(&b, `<a data-test="property-card-link" class="property-card-link" href="%s">details</a>`, href)
	}
	b.WriteString(`</article>`)
	return b.String()
}

func page(cards ...string) string {
	return `<html><body><div id="search-results">` + strings.Join(cards, "\n") + `</div></body></html>`
}

func TestExtractDocumentOrder(t *testing.T) {
	snapshot := page(
		card("11 Pine St", "/homedetails/11-pine", "$1,000/mo"),
		card("22 Oak Ave", "/homedetails/22-oak", "$2,000/mo"),
		card("33 Elm Rd", "/homedetails/33-elm", "$3,000/mo"),
	)

	got, err := Extract(snapshot)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(got.Listings) != 3 {
		t.Fatalf("extracted %d listings, want 3", len(got.Listings))
	}
	want := []string{"11 Pine St", "22 Oak Ave", "33 Elm Rd"}
	for i, addr := range want {
		if got.Listings[i].Address != addr {
			t.Errorf("listing %d address = %q, want %q (document order broken)", i, got.Listings[i].Address, addr)
		}
	}
}

func TestExtractNestedPriceSpan(t *testing.T) {
	// The headline span carries sibling annotations that corrupt the
	// price when the whole container text is read.
	got, err := Extract(page(card("11 Pine St", "/x", "$1,608+ 2 bds")))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(got.Listings) != 1 {
		t.Fatalf("extracted %d listings, want 1", len(got.Listings))
	}
	if len(got.Listings[0].Prices) != 1 || got.Listings[0].Prices[0] != "$1,608+ 2 bds" {
		t.Errorf("prices = %v, want the inner span text only", got.Listings[0].Prices)
	}
}

func TestExtractLegacyMarkupVariant(t *testing.T) {
	snapshot := `<html><body>
		<article class="property-card">
			<div data-test="property-card-addr">456 Oak Ave | Apt 3</div>
			<span>$2,000+ 1 bd</span>
			<a class="property-card-link" href="https://catalog.example.com/456-oak">view</a>
		</article>
	</body></html>`

	got, err := Extract(snapshot)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(got.Listings) != 1 {
		t.Fatalf("extracted %d listings, want 1", len(got.Listings))
	}
	l := got.Listings[0]
	if l.Address != "456 Oak Ave  Apt 3" {
		t.Errorf("address = %q, want pipe stripped", l.Address)
	}
	if l.DetailLink != "https://catalog.example.com/456-oak" {
		t.Errorf("link = %q", l.DetailLink)
	}
	if len(l.Prices) != 1 || l.Prices[0] != "$2,000+ 1 bd" {
		t.Errorf("prices = %v, want currency fallback to find the span", l.Prices)
	}
}

func TestExtractMixedMarkupVariants(t *testing.T) {
	// A page rendered mid-rollout mixes card generations; every variant's
	// cards must survive, still in document order.
	legacy := `<article class="property-card">
		<div data-test="property-card-addr">22 Oak Ave</div>
		<span>$2,000/mo</span>
		<a class="property-card-link" href="/homedetails/22-oak">view</a>
	</article>`
	snapshot := page(
		card("11 Pine St", "/homedetails/11-pine", "$1,000/mo"),
		legacy,
		card("33 Elm Rd", "/homedetails/33-elm", "$3,000/mo"),
	)

	got, err := Extract(snapshot)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(got.Listings) != 3 {
		t.Fatalf("extracted %d listings, want all 3 across markup variants", len(got.Listings))
	}
	want := []string{"11 Pine St", "22 Oak Ave", "33 Elm Rd"}
	for i, addr := range want {
		if got.Listings[i].Address != addr {
			t.Errorf("listing %d address = %q, want %q", i, got.Listings[i].Address, addr)
		}
	}
	if len(got.Skipped) != 0 {
		t.Errorf("skipped = %v, want none", got.Skipped)
	}
}

func TestExtractSkipsInvalidCards(t *testing.T) {
	snapshot := page(
		card("", "/homedetails/no-addr", "$1,000"),
		card("22 Oak Ave", "", "$2,000"),
		card("33 Elm Rd", "/homedetails/33-elm", "$3,000"),
	)

	got, err := Extract(snapshot)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(got.Listings) != 1 {
		t.Fatalf("extracted %d listings, want 1", len(got.Listings))
	}
	if len(got.Skipped) != 2 {
		t.Fatalf("skipped %d cards, want 2", len(got.Skipped))
	}
	if got.Skipped[0].Index != 0 || got.Skipped[0].Missing[0] != "address" {
		t.Errorf("skip 0 = %+v, want missing address at index 0", got.Skipped[0])
	}
	if got.Skipped[1].Index != 1 || got.Skipped[1].Missing[0] != "link" {
		t.Errorf("skip 1 = %+v, want missing link at index 1", got.Skipped[1])
	}
}

func TestExtractKeepsPricelessListing(t *testing.T) {
	got, err := Extract(page(card("11 Pine St", "/homedetails/11-pine", "")))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(got.Listings) != 1 {
		t.Fatalf("extracted %d listings, want 1 — missing price is not grounds for discarding", len(got.Listings))
	}
	if len(got.Listings[0].Prices) != 0 {
		t.Errorf("prices = %v, want none", got.Listings[0].Prices)
	}
	if len(got.Skipped) != 0 {
		t.Errorf("skipped = %v, want none", got.Skipped)
	}
}

func TestExtractInventoryPrices(t *testing.T) {
	snapshot := page(`<article data-test="property-card">
		<address>77 Birch Ln</address>
		<span data-test="property-card-price"><span><span>$1,500+</span></span></span>
		<div class="property-card-inventory-set">
			<a href="/homedetails/77-birch#bedrooms-1"><div data-testid="PropertyCardInventoryBox"><span>$1,800</span><span>1 bd</span></div></a>
			<a href="/homedetails/77-birch#bedrooms-2"><div data-testid="PropertyCardInventoryBox"><span>$2,400</span><span>2 bd</span></div></a>
		</div>
		<a data-test="property-card-link" href="/homedetails/77-birch">view</a>
	</article>`)

	got, err := Extract(snapshot)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(got.Listings) != 1 {
		t.Fatalf("extracted %d listings, want 1", len(got.Listings))
	}
	prices := got.Listings[0].Prices
	if len(prices) != 2 || prices[0] != "$1,800" || prices[1] != "$2,400" {
		t.Errorf("prices = %v, want the inventory boxes to take precedence", prices)
	}
}

func TestExtractEmptyPage(t *testing.T) {
	got, err := Extract(`<html><body><p>No results</p></body></html>`)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(got.Listings) != 0 || len(got.Skipped) != 0 {
		t.Errorf("empty page yielded %d listings, %d skips", len(got.Listings), len(got.Skipped))
	}
}
