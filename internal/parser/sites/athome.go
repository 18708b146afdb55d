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

// AtHome uses a partial-match policy: list and detail building names diverge
// (e.g. list shows a marketing name, detail shows the registry name), so the
// verifier accepts a token-containment score at or above 0.8.
type AtHome struct {
	BaseURL string
}

func NewAtHome() *AtHome { return &AtHome{BaseURL: "https://www.athome.co.jp"} }

func (a *AtHome) SourceSite() string { return "athome" }

func (a *AtHome) BuildListURL(area string, page int) string {
	return fmt.Sprintf("%s/mansion/chuko/%s/list/?page=%d", a.BaseURL, area, page)
}

var athomeIDRe = regexp.MustCompile(`^b-\d+$`)

func (a *AtHome) ValidateSitePropertyID(id, url string) bool {
	return athomeIDRe.MatchString(id)
}

func (a *AtHome) ParseList(html string) ([]parser.ListRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	var rows []parser.ListRow
	doc.Find(".item-cassette, .bukken-list-item").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Find("a.item-link, a.bukken-link").First().Attr("href")
		url := parser.ResolveHref(a.BaseURL, href)
		id := athomeIDFromURL(url)
		price, _ := normalizer.ExtractPrice(sel.Find(".item-price, .bukken-price").First().Text())
		name := strings.TrimSpace(sel.Find(".item-bukken-name, .bukken-name").First().Text())
		address := strings.TrimSpace(sel.Find(".item-address, .bukken-address").First().Text())
		rows = append(rows, parser.ListRow{
			URL: url, SitePropertyID: id, Price: price,
			BuildingNameFromList: name, ListPageAddress: address,
		})
	})
	return rows, nil
}

var athomeIDFromURLRe = regexp.MustCompile(`(b-\d+)`)

func athomeIDFromURL(url string) string {
	m := athomeIDFromURLRe.FindStringSubmatch(url)
	if m == nil {
		return ""
	}
	return m[1]
}

func (a *AtHome) IsLastPage(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return true
	}
	return doc.Find("a.pagination-next, a.page-next").Length() == 0
}

func (a *AtHome) ParseDetail(html string, hint parser.ListRow) (parser.DetailRecord, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return parser.DetailRecord{}, false
	}

	d := parser.DetailRecord{SitePropertyID: hint.SitePropertyID}
	d.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	d.BuildingName = strings.TrimSpace(doc.Find(".building-name, h1.bukken-name").First().Text())
	d.Address = normalizer.CleanAddress(doc.Find(".spec-table th:contains(\"所在地\")").Next().Text())
	d.Price, _ = normalizer.ExtractPrice(doc.Find(".price-main").First().Text())
	if area, ok := normalizer.ExtractArea(doc.Find(".spec-table th:contains(\"専有面積\")").Next().Text()); ok {
		d.Area, d.HasArea = area, true
	}
	if layout, ok := normalizer.NormalizeLayout(doc.Find(".spec-table th:contains(\"間取り\")").Next().Text()); ok {
		d.Layout = layout
	}
	if floor, ok := normalizer.ExtractFloorNumber(doc.Find(".spec-table th:contains(\"所在階\")").Next().Text()); ok {
		d.Floor, d.HasFloor = floor, true
	}
	if direction, ok := normalizer.NormalizeDirection(doc.Find(".spec-table th:contains(\"方位\")").Next().Text()); ok {
		d.Direction = direction
	}
	if year, ok := normalizer.ExtractBuiltYear(doc.Find(".spec-table th:contains(\"築年月\")").Next().Text()); ok {
		d.BuiltYear, d.HasBuiltYear = year, true
	}
	d.StationInfo = normalizer.FormatStationInfo(doc.Find(".spec-table th:contains(\"交通\")").Next().Text())
	d.AgencyName = strings.TrimSpace(doc.Find(".shop-name").First().Text())
	d.Description = strings.TrimSpace(doc.Find(".bukken-comment").First().Text())

	return d, true
}

const athomePartialMatchThreshold = 0.8

func (a *AtHome) VerifyBuildingNamesMatch(detail parser.DetailRecord, listName string) parser.MatchResult {
	if canon.TokenContainmentScore(listName, detail.BuildingName) >= athomePartialMatchThreshold {
		return parser.MatchResult{OK: true, ResolvedName: detail.BuildingName}
	}
	return parser.MatchResult{OK: false}
}

func (a *AtHome) PartialRequiredFields() []string { return []string{"layout"} }
