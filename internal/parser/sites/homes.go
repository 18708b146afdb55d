package sites

import (
	"fmt"
	"regexp"
	"strings"

	"real-estate-portal/internal/canon"
	"real-estate-portal/internal/jsonctx"
	"real-estate-portal/internal/normalizer"
	"real-estate-portal/internal/parser"

	"github.com/PuerkitoBio/goquery"
)

// Homes embeds structured listing data in a `__SERVER_SIDE_CONTEXT__` JS
// blob on both list and detail pages, and declares a multi-source policy:
// two building-name candidates are extracted from the detail page (the H1
// title and a breadcrumb-derived name) and either matching the list name is
// accepted.
type Homes struct {
	BaseURL string
}

func NewHomes() *Homes { return &Homes{BaseURL: "https://www.homes.co.jp"} }

func (h *Homes) SourceSite() string { return "homes" }

func (h *Homes) BuildListURL(area string, page int) string {
	return fmt.Sprintf("%s/mansion/chuko/%s/list/?page=%d", h.BaseURL, area, page)
}

var homesIDRe = regexp.MustCompile(`^[A-Za-z0-9]+$`)

func (h *Homes) ValidateSitePropertyID(id, url string) bool {
	return len(id) >= 6 && len(id) <= 32 && homesIDRe.MatchString(id)
}

func (h *Homes) ParseList(html string) ([]parser.ListRow, error) {
	ctx, ok := jsonctx.ExtractContext(html)
	if !ok {
		return h.parseListFromDOM(html)
	}

	itemsRaw, ok := jsonctx.GetNestedValue(ctx, "searchResult.items")
	if !ok {
		return h.parseListFromDOM(html)
	}
	items, ok := itemsRaw.([]any)
	if !ok {
		return h.parseListFromDOM(html)
	}

	var rows []parser.ListRow
	for _, it := range items {
		item, ok := it.(map[string]any)
		if !ok {
			continue
		}
		id, _ := jsonctx.GetString(item, "bukkenId")
		url, _ := jsonctx.GetString(item, "detailUrl")
		price, _ := jsonctx.GetInt(item, "price")
		name, _ := jsonctx.GetString(item, "buildingName")
		address, _ := jsonctx.GetString(item, "address")
		rows = append(rows, parser.ListRow{
			URL: parser.ResolveHref(h.BaseURL, url), SitePropertyID: id, Price: price,
			BuildingNameFromList: name, ListPageAddress: address,
		})
	}
	return rows, nil
}

func (h *Homes) parseListFromDOM(html string) ([]parser.ListRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	var rows []parser.ListRow
	doc.Find(".mod-mergeBuilding, .bukkenList-item").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Find("a").First().Attr("href")
		url := parser.ResolveHref(h.BaseURL, href)
		id := extractDigitsID(url)
		price, _ := normalizer.ExtractPrice(sel.Find(".price").Text())
		name := strings.TrimSpace(sel.Find(".bukkenName, .buildingName").First().Text())
		rows = append(rows, parser.ListRow{URL: url, SitePropertyID: id, Price: price, BuildingNameFromList: name})
	})
	return rows, nil
}

func (h *Homes) IsLastPage(html string) bool {
	if ctx, ok := jsonctx.ExtractContext(html); ok {
		if hasNext, ok := jsonctx.GetNestedValue(ctx, "pagination.hasNext"); ok {
			if b, ok := hasNext.(bool); ok {
				return !b
			}
		}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return true
	}
	return doc.Find(".pagination-next").Length() == 0
}

func (h *Homes) ParseDetail(html string, hint parser.ListRow) (parser.DetailRecord, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return parser.DetailRecord{}, false
	}

	d := parser.DetailRecord{SitePropertyID: hint.SitePropertyID}
	d.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	d.BuildingName = h.primaryBuildingNameCandidate(doc)
	d.Address = normalizer.CleanAddress(doc.Find("[data-field=\"address\"]").Text())
	d.Price, _ = normalizer.ExtractPrice(doc.Find(".priceLabel").Text())
	if area, ok := normalizer.ExtractArea(doc.Find("[data-field=\"area\"]").Text()); ok {
		d.Area, d.HasArea = area, true
	}
	if layout, ok := normalizer.NormalizeLayout(doc.Find("[data-field=\"madori\"]").Text()); ok {
		d.Layout = layout
	}
	if floor, ok := normalizer.ExtractFloorNumber(doc.Find("[data-field=\"floor\"]").Text()); ok {
		d.Floor, d.HasFloor = floor, true
	}
	if direction, ok := normalizer.NormalizeDirection(doc.Find("[data-field=\"direction\"]").Text()); ok {
		d.Direction = direction
	}
	if year, ok := normalizer.ExtractBuiltYear(doc.Find("[data-field=\"builtDate\"]").Text()); ok {
		d.BuiltYear, d.HasBuiltYear = year, true
	}
	d.StationInfo = normalizer.FormatStationInfo(doc.Find("[data-field=\"access\"]").Text())
	d.AgencyName = strings.TrimSpace(doc.Find(".shopName").First().Text())
	d.BuildingNameAlt = h.secondaryBuildingNameCandidate(html)

	return d, true
}

// primaryBuildingNameCandidate picks the H1 title as the first candidate;
// the breadcrumb candidate is used by VerifyBuildingNamesMatch separately.
func (h *Homes) primaryBuildingNameCandidate(doc *goquery.Document) string {
	name := strings.TrimSpace(doc.Find(".bukkenName, h1.buildingName").First().Text())
	if name != "" {
		return name
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// secondaryBuildingNameCandidate reads the breadcrumb-derived name, the
// second source in the multi-source policy.
func (h *Homes) secondaryBuildingNameCandidate(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find(".breadcrumb li").Last().Text())
}

// VerifyBuildingNamesMatch implements the multi-source policy: a match is
// accepted if either the primary (H1 title) or alternate (breadcrumb)
// building-name candidate matches the list name.
func (h *Homes) VerifyBuildingNamesMatch(detail parser.DetailRecord, listName string) parser.MatchResult {
	canonList := canon.Canonicalize(listName)
	if canon.Canonicalize(detail.BuildingName) == canonList {
		return parser.MatchResult{OK: true, ResolvedName: detail.BuildingName}
	}
	if detail.BuildingNameAlt != "" && canon.Canonicalize(detail.BuildingNameAlt) == canonList {
		return parser.MatchResult{OK: true, ResolvedName: detail.BuildingNameAlt}
	}
	return parser.MatchResult{OK: false}
}

func (h *Homes) PartialRequiredFields() []string { return []string{"layout"} }
