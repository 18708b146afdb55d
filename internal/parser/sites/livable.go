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

// Livable uses an abbreviation policy: its list pages render building names
// at full length, but occasionally drop a wing/orientation suffix the detail
// page keeps, so a prefix match against the canonicalized detail name covers
// both the truncated and the untruncated case.
type Livable struct {
	BaseURL string
}

func NewLivable() *Livable { return &Livable{BaseURL: "https://www.livable.co.jp"} }

func (l *Livable) SourceSite() string { return "livable" }

func (l *Livable) BuildListURL(area string, page int) string {
	return fmt.Sprintf("%s/kounyu/mansion/%s/list/?page=%d", l.BaseURL, area, page)
}

var livableIDRe = regexp.MustCompile(`^[A-Za-z0-9]{6,20}$`)

func (l *Livable) ValidateSitePropertyID(id, url string) bool {
	return livableIDRe.MatchString(id)
}

func (l *Livable) ParseList(html string) ([]parser.ListRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	var rows []parser.ListRow
	doc.Find(".bukken-card, .result-item").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Find("a").First().Attr("href")
		url := parser.ResolveHref(l.BaseURL, href)
		id := extractDigitsID(url)
		price, _ := normalizer.ExtractPrice(sel.Find(".price").First().Text())
		name := strings.TrimSpace(sel.Find(".bukken-name, .mansion-name").First().Text())
		address := strings.TrimSpace(sel.Find(".address").First().Text())
		rows = append(rows, parser.ListRow{
			URL: url, SitePropertyID: id, Price: price,
			BuildingNameFromList: name, ListPageAddress: address,
		})
	})
	return rows, nil
}

func (l *Livable) IsLastPage(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return true
	}
	return doc.Find(".pager-next:not(.disabled)").Length() == 0
}

func (l *Livable) ParseDetail(html string, hint parser.ListRow) (parser.DetailRecord, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return parser.DetailRecord{}, false
	}

	d := parser.DetailRecord{SitePropertyID: hint.SitePropertyID}
	d.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	d.BuildingName = strings.TrimSpace(doc.Find(".mansion-title, h1.bukken-title").First().Text())
	d.Address = normalizer.CleanAddress(doc.Find(".detail-table th:contains(\"所在地\")").Next().Text())
	d.Price, _ = normalizer.ExtractPrice(doc.Find(".detail-price").First().Text())
	if area, ok := normalizer.ExtractArea(doc.Find(".detail-table th:contains(\"専有面積\")").Next().Text()); ok {
		d.Area, d.HasArea = area, true
	}
	if layout, ok := normalizer.NormalizeLayout(doc.Find(".detail-table th:contains(\"間取り\")").Next().Text()); ok {
		d.Layout = layout
	}
	if floor, ok := normalizer.ExtractFloorNumber(doc.Find(".detail-table th:contains(\"階数\")").Next().Text()); ok {
		d.Floor, d.HasFloor = floor, true
	}
	if direction, ok := normalizer.NormalizeDirection(doc.Find(".detail-table th:contains(\"方位\")").Next().Text()); ok {
		d.Direction = direction
	}
	if year, ok := normalizer.ExtractBuiltYear(doc.Find(".detail-table th:contains(\"築年月\")").Next().Text()); ok {
		d.BuiltYear, d.HasBuiltYear = year, true
	}
	d.StationInfo = normalizer.FormatStationInfo(doc.Find(".detail-table th:contains(\"交通\")").Next().Text())
	d.AgencyName = strings.TrimSpace(doc.Find(".office-name").First().Text())
	d.Description = strings.TrimSpace(doc.Find(".pr-comment").First().Text())

	return d, true
}

func (l *Livable) VerifyBuildingNamesMatch(detail parser.DetailRecord, listName string) parser.MatchResult {
	if canon.HasPrefixMatch(listName, detail.BuildingName) {
		return parser.MatchResult{OK: true, ResolvedName: detail.BuildingName}
	}
	return parser.MatchResult{OK: false}
}

func (l *Livable) PartialRequiredFields() []string { return []string{"layout"} }
