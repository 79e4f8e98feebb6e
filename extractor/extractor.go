// Package extractor parses a rendered listing page snapshot into candidate
// listing records. Markup varies per catalog generation, so listing
// containers are matched against every known selector variant at once and
// each field is an ordered list of strategies tried in priority order;
// supporting a new markup variant is a data addition, not a control-flow
// change.
package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/nestware/homesift/models"
)

// containerSelectors locate one listing card each. All variants are matched
// together: a page rendered mid-rollout can mix markup generations, and cards
// of the minority variant must not vanish without a diagnostic.
var containerSelectors = []cascadia.Sel{
	mustSel(`article[data-test="property-card"]`),
	mustSel(`article.property-card`),
	mustSel(`li[data-test="search-result"] article`),
}

func mustSel(s string) cascadia.Sel {
	sel, err := cascadia.Parse(s)
	if err != nil {
		panic(err)
	}
	return sel
}

// findCards walks the tree once and collects every node matching any
// container variant, in document order. A node matching several variants is
// collected once.
func findCards(root *html.Node) []*html.Node {
	var cards []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, sel := range containerSelectors {
				if sel.Match(n) {
					cards = append(cards, n)
					break
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return cards
}

// Skip is the diagnostic recorded for a card discarded as invalid.
type Skip struct {
	Index   int      // document position of the card
	Missing []string // required fields that had no value
}

func (s Skip) Reason() string {
	return "missing " + strings.Join(s.Missing, ", ")
}

// PageExtract is everything one snapshot yielded, in document order.
type PageExtract struct {
	Listings []models.RawListing
	Skipped  []Skip
}

// Extract parses the snapshot and applies the field rules to every listing
// container found. Cards missing address or link are not silently dropped:
// they surface in Skipped so run counters stay honest. Cards missing only a
// price are kept — address and link alone still have downstream value.
func Extract(snapshot string) (*PageExtract, error) {
	root, err := html.Parse(strings.NewReader(snapshot))
	if err != nil {
		return nil, models.NewRunError(models.ErrCodeExtraction, "snapshot is not parseable HTML", err)
	}

	out := &PageExtract{}
	for i, node := range findCards(root) {
		card := goquery.NewDocumentFromNode(node).Selection
		raw := models.RawListing{
			Address:    extractAddress(card),
			DetailLink: extractLink(card),
			Prices:     extractPrices(card),
		}

		var missing []string
		if raw.Address == "" {
			missing = append(missing, "address")
		}
		if raw.DetailLink == "" {
			missing = append(missing, "link")
		}
		if len(missing) > 0 {
			out.Skipped = append(out.Skipped, Skip{Index: i, Missing: missing})
			continue
		}
		out.Listings = append(out.Listings, raw)
	}
	return out, nil
}
