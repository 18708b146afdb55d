// Package sites holds the five concrete Parser implementations,
// one per source site. Each struct owns nothing but its own HTML-parsing
// knowledge; the orchestrator never branches on site identity.
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

// SUUMO uses an abbreviation policy: its list pages often truncate long
// building names with an ellipsis, so the verifier falls back to a prefix
// match against the detail page's full name.
type SUUMO struct {
	BaseURL string
}

func NewSUUMO() *SUUMO { return &SUUMO{BaseURL: "https://suumo.jp"} }

func (s *SUUMO) SourceSite() string { return "suumo" }

func (s *SUUMO) BuildListURL(area string, page int) string {
	return fmt.Sprintf("%s/jj/bukken/ichiran/JJ010FJ001/?ar=%s&pc=%d", s.BaseURL, area, page)
}

var suumoIDRe = regexp.MustCompile(`^\d+$`)

func (s *SUUMO) ValidateSitePropertyID(id, url string) bool {
	return suumoIDRe.MatchString(id)
}

func (s *SUUMO) ParseList(html string) ([]parser.ListRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var rows []parser.ListRow
	doc.Find(".property_unit, .cassetteitem").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Find("a.js-cassette_link_href, a.property_unit-title").Attr("href")
		url := parser.ResolveHref(s.BaseURL, href)
		id := extractDigitsID(url)
		priceText := sel.Find(".dottable-value, .cassetteitem_price--rent").First().Text()
		price, _ := normalizer.ExtractPrice(priceText)
		buildingName := strings.TrimSpace(sel.Find(".property_unit-title, .cassetteitem_content-title").First().Text())
		address := strings.TrimSpace(sel.Find(".property_unit-info, .cassetteitem_detail-col1").First().Text())

		rows = append(rows, parser.ListRow{
			URL: url, SitePropertyID: id, Price: price,
			BuildingNameFromList: buildingName, ListPageAddress: address,
		})
	})
	return rows, nil
}

func (s *SUUMO) IsLastPage(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return true
	}
	return doc.Find(".pagination-parts a:contains(\"次へ\")").Length() == 0
}

func (s *SUUMO) ParseDetail(html string, hint parser.ListRow) (parser.DetailRecord, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return parser.DetailRecord{}, false
	}

	d := parser.DetailRecord{SitePropertyID: hint.SitePropertyID}
	d.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	d.BuildingName = strings.TrimSpace(doc.Find(".section_h1-header-title").First().Text())
	d.Address = normalizer.CleanAddress(doc.Find(".info_table td:contains(\"所在地\")").Next().Text())
	d.Price, _ = normalizer.ExtractPrice(doc.Find(".property_view_main-emphasis").First().Text())
	if area, ok := normalizer.ExtractArea(doc.Find(".info_table td:contains(\"専有面積\")").Next().Text()); ok {
		d.Area, d.HasArea = area, true
	}
	if layout, ok := normalizer.NormalizeLayout(doc.Find(".info_table td:contains(\"間取り\")").Next().Text()); ok {
		d.Layout = layout
	}
	if floor, ok := normalizer.ExtractFloorNumber(doc.Find(".info_table td:contains(\"所在階\")").Next().Text()); ok {
		d.Floor, d.HasFloor = floor, true
	}
	if direction, ok := normalizer.NormalizeDirection(doc.Find(".info_table td:contains(\"向き\")").Next().Text()); ok {
		d.Direction = direction
	}
	if year, ok := normalizer.ExtractBuiltYear(doc.Find(".info_table td:contains(\"築年月\")").Next().Text()); ok {
		d.BuiltYear, d.HasBuiltYear = year, true
	}
	d.StationInfo = normalizer.FormatStationInfo(doc.Find(".info_table td:contains(\"沿線・駅\")").Next().Text())
	d.AgencyName = strings.TrimSpace(doc.Find(".company_name").First().Text())
	d.Description = strings.TrimSpace(doc.Find(".section_comment-body").First().Text())

	return d, true
}

func (s *SUUMO) VerifyBuildingNamesMatch(detail parser.DetailRecord, listName string) parser.MatchResult {
	if canon.HasPrefixMatch(listName, detail.BuildingName) {
		return parser.MatchResult{OK: true, ResolvedName: detail.BuildingName}
	}
	return parser.MatchResult{OK: false}
}

func (s *SUUMO) PartialRequiredFields() []string { return []string{"layout"} }

var digitsRe = regexp.MustCompile(`(\d+)/?$`)

func extractDigitsID(url string) string {
	m := digitsRe.FindStringSubmatch(strings.TrimRight(url, "/"))
	if m == nil {
		return ""
	}
	return m[1]
}
