package sites

import (
	"fmt"
	"regexp"
	"strings"

	"real-estate-portal/internal/canon"
	"real-estate-portal/internal/normalizer"
	"real-estate-portal/internal/parser"

	"github.com/PuerkitoBio/goquery"
)

// Nomu uses a partial-match policy with a looser 0.6 token-containment
// threshold than AtHome's: its list names frequently include a sub-building
// or room-block qualifier the detail page omits.
type Nomu struct {
	BaseURL string
}

func NewNomu() *Nomu { return &Nomu{BaseURL: "https://www.nomu.com"} }

func (n *Nomu) SourceSite() string { return "nomu" }

func (n *Nomu) BuildListURL(area string, page int) string {
	return fmt.Sprintf("%s/mansion/area/%s/list/?page=%d", n.BaseURL, area, page)
}

var nomuIDRe = regexp.MustCompile(`^\d+$`)

func (n *Nomu) ValidateSitePropertyID(id, url string) bool {
	return nomuIDRe.MatchString(id)
}

func (n *Nomu) ParseList(html string) ([]parser.ListRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	var rows []parser.ListRow
	doc.Find(".property-item, .bukken-item").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Find("a").First().Attr("href")
		url := parser.ResolveHref(n.BaseURL, href)
		id := extractDigitsID(url)
		price, _ := normalizer.ExtractPrice(sel.Find(".property-price, .price").First().Text())
		name := strings.TrimSpace(sel.Find(".property-name, .bukken-name").First().Text())
		address := strings.TrimSpace(sel.Find(".property-address, .address").First().Text())
		rows = append(rows, parser.ListRow{
			URL: url, SitePropertyID: id, Price: price,
			BuildingNameFromList: name, ListPageAddress: address,
		})
	})
	return rows, nil
}

func (n *Nomu) IsLastPage(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return true
	}
	return doc.Find(".next-page").Length() == 0
}

func (n *Nomu) ParseDetail(html string, hint parser.ListRow) (parser.DetailRecord, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return parser.DetailRecord{}, false
	}

	d := parser.DetailRecord{SitePropertyID: hint.SitePropertyID}
	d.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	d.BuildingName = strings.TrimSpace(doc.Find(".property-title, h1.bukken-name").First().Text())
	d.Address = normalizer.CleanAddress(doc.Find(".spec-row th:contains(\"所在地\")").Next().Text())
	d.Price, _ = normalizer.ExtractPrice(doc.Find(".price-value").First().Text())
	if area, ok := normalizer.ExtractArea(doc.Find(".spec-row th:contains(\"専有面積\")").Next().Text()); ok {
		d.Area, d.HasArea = area, true
	}
	if layout, ok := normalizer.NormalizeLayout(doc.Find(".spec-row th:contains(\"間取り\")").Next().Text()); ok {
		d.Layout = layout
	}
	if floor, ok := normalizer.ExtractFloorNumber(doc.Find(".spec-row th:contains(\"所在階\")").Next().Text()); ok {
		d.Floor, d.HasFloor = floor, true
	}
	if direction, ok := normalizer.NormalizeDirection(doc.Find(".spec-row th:contains(\"方位\")").Next().Text()); ok {
		d.Direction = direction
	}
	if year, ok := normalizer.ExtractBuiltYear(doc.Find(".spec-row th:contains(\"築年月\")").Next().Text()); ok {
		d.BuiltYear, d.HasBuiltYear = year, true
	}
	d.StationInfo = normalizer.FormatStationInfo(doc.Find(".spec-row th:contains(\"交通\")").Next().Text())
	d.AgencyName = strings.TrimSpace(doc.Find(".agent-name").First().Text())
	d.Description = strings.TrimSpace(doc.Find(".comment-body").First().Text())

	return d, true
}

const nomuPartialMatchThreshold = 0.6

func (n *Nomu) VerifyBuildingNamesMatch(detail parser.DetailRecord, listName string) parser.MatchResult {
	if canon.TokenContainmentScore(listName, detail.BuildingName) >= nomuPartialMatchThreshold {
		return parser.MatchResult{OK: true, ResolvedName: detail.BuildingName}
	}
	return parser.MatchResult{OK: false}
}

func (n *Nomu) PartialRequiredFields() []string { return []string{"layout"} }
