// Package normalizer extracts and validates structured listing fields from
// free-form Japanese text. Every function fails by returning ok=false rather
// than by raising: callers decide whether an absent field is fatal.
package normalizer

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	priceManReOku  = regexp.MustCompile(`(\d+)億(?:(\d[\d,]*)万円?)?`)
	priceManRe     = regexp.MustCompile(`([\d,]+(?:\.\d+)?)万円`)
	areaRe         = regexp.MustCompile(`([\d,]+(?:\.\d+)?)\s*(?:㎡|m2|m²|平米)`)
	floorRe        = regexp.MustCompile(`(\d+)階(?:/|／)(\d+)階建`)
	floorOnlyRe    = regexp.MustCompile(`(\d+)階`)
	totalFloorsRe1 = regexp.MustCompile(`(\d+)階建(?:地下(\d+)階)?`)
	totalFloorsRe2 = regexp.MustCompile(`地下(\d+)階(\d+)階建`)
	builtYearRe    = regexp.MustCompile(`(\d{4})年`)
	reiwaRe        = regexp.MustCompile(`令和(\d+)年`)
	heiseiRe       = regexp.MustCompile(`平成(\d+)年`)
	showaRe        = regexp.MustCompile(`昭和(\d+)年`)

	fullWidthDigits = "０１２３４５６７８９"
	halfWidthDigits = "0123456789"
)

const (
	MinPriceMan = 100
	MaxPriceMan = 10_000_000
	MinAreaM2   = 10.0
	MaxAreaM2   = 500.0
)

// widthFoldDigits converts full-width ASCII digits to half-width, leaving
// katakana and other characters untouched.
func widthFoldDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if idx := strings.IndexRune(fullWidthDigits, r); idx >= 0 {
			b.WriteByte(halfWidthDigits[idx])
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func stripCommas(s string) string {
	return strings.ReplaceAll(s, ",", "")
}

// ExtractPrice parses values like "5,000万円", "1億2000万円", "1億" into 万円.
func ExtractPrice(text string) (int, bool) {
	text = widthFoldDigits(text)

	if m := priceManReOku.FindStringSubmatch(text); m != nil {
		oku, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, false
		}
		man := 0
		if m[2] != "" {
			man, err = strconv.Atoi(stripCommas(m[2]))
			if err != nil {
				return 0, false
			}
		}
		price := oku*10000 + man
		return validatePriceRange(price)
	}

	if m := priceManRe.FindStringSubmatch(text); m != nil {
		f, err := strconv.ParseFloat(stripCommas(m[1]), 64)
		if err != nil {
			return 0, false
		}
		return validatePriceRange(int(f))
	}

	return 0, false
}

func validatePriceRange(price int) (int, bool) {
	if price < MinPriceMan || price > MaxPriceMan {
		return 0, false
	}
	return price, true
}

// ValidatePrice reports whether price falls within the accepted 万円 range.
func ValidatePrice(price int) bool {
	return price >= MinPriceMan && price <= MaxPriceMan
}

// ExtractArea parses values like "60.5㎡", "60m2", "60平米", accepting
// [MinAreaM2, 1000]. parser.Validate applies the tighter MaxAreaM2 bound
// when deciding whether a record can be saved.
func ExtractArea(text string) (float64, bool) {
	text = widthFoldDigits(text)
	m := areaRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(stripCommas(m[1]), 64)
	if err != nil {
		return 0, false
	}
	return ValidateArea(f, 1000)
}

// ValidateArea checks f against [MinAreaM2, max] and rounds to 2dp.
func ValidateArea(f float64, max float64) (float64, bool) {
	if f < MinAreaM2 || f > max {
		return 0, false
	}
	rounded := roundTo2dp(f)
	return rounded, true
}

func roundTo2dp(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

// ExtractFloorNumber picks the unit's own floor from "N階/M階建" patterns,
// falling back to a bare "N階" when no total-floors suffix is present.
func ExtractFloorNumber(text string) (int, bool) {
	text = widthFoldDigits(text)
	if m := floorRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, false
		}
		return n, true
	}
	if m := floorOnlyRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// ExtractTotalFloors recognizes "N階建地下K階" and "地下K階N階建" variants,
// returning (above-ground total, basement count|0).
func ExtractTotalFloors(text string) (total int, basement int, ok bool) {
	text = widthFoldDigits(text)
	if m := totalFloorsRe2.FindStringSubmatch(text); m != nil {
		b, err1 := strconv.Atoi(m[1])
		t, err2 := strconv.Atoi(m[2])
		if err1 == nil && err2 == nil {
			return t, b, true
		}
	}
	if m := totalFloorsRe1.FindStringSubmatch(text); m != nil {
		t, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, 0, false
		}
		b := 0
		if m[2] != "" {
			if bb, err := strconv.Atoi(m[2]); err == nil {
				b = bb
			}
		}
		return t, b, true
	}
	return 0, 0, false
}

// ValidateFloorNumber enforces floor <= total_floors when both are present.
func ValidateFloorNumber(floor int, totalFloors *int) bool {
	if totalFloors == nil {
		return true
	}
	return floor <= *totalFloors
}

var studioRe = regexp.MustCompile(`(?i)ワンルーム|studio`)
var layoutRe = regexp.MustCompile(`(?i)(\d+)\s*(S)?(L)?(D)?(K|R)`)

// NormalizeLayout folds free-text room-layout descriptions into one of
// "1R","1K","1DK","…LDK","…SLDK".
func NormalizeLayout(text string) (string, bool) {
	t := widthFoldDigits(text)
	t = strings.ToUpper(strings.TrimSpace(t))
	t = strings.ReplaceAll(t, " ", "")
	t = strings.ReplaceAll(t, "　", "")

	if studioRe.MatchString(t) {
		return "1R", true
	}

	t = strings.ReplaceAll(t, "+WIC", "")
	t = strings.ReplaceAll(t, "+SIC", "")
	hasStorage := strings.Contains(t, "+S") || strings.Contains(t, "+納戸")
	t = strings.ReplaceAll(t, "+S", "")
	t = strings.ReplaceAll(t, "+納戸", "")

	m := layoutRe.FindStringSubmatch(t)
	if m == nil {
		return "", false
	}

	rooms := m[1]
	var suffix strings.Builder
	if m[2] != "" || hasStorage {
		suffix.WriteString("S")
	}
	if m[3] != "" {
		suffix.WriteString("L")
	}
	if m[4] != "" {
		suffix.WriteString("D")
	}
	suffix.WriteString(m[5])

	return rooms + suffix.String(), true
}

var directionMap = map[string]string{
	"東": "東", "西": "西", "南": "南", "北": "北",
	"南東": "南東", "東南": "南東",
	"南西": "南西", "西南": "南西",
	"北東": "北東", "東北": "北東",
	"北西": "北西", "西北": "北西",
}

// NormalizeDirection folds free-text facing descriptions into the eight
// canonical compass values.
func NormalizeDirection(text string) (string, bool) {
	t := strings.TrimSpace(text)
	t = strings.ReplaceAll(t, "向き", "")
	t = strings.ReplaceAll(t, "面", "")
	if v, ok := directionMap[t]; ok {
		return v, true
	}
	return "", false
}

// ExtractBuiltYear converts 令和/平成/昭和 era years (and bare 西暦 years) to
// the Gregorian calendar year, rejecting anything more than two years in the
// future (likely an OCR/parse artifact rather than a real construction date).
func ExtractBuiltYear(text string) (int, bool) {
	text = widthFoldDigits(text)
	currentYear := time.Now().Year()

	if m := reiwaRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return validateBuiltYear(2018+n, currentYear)
		}
	}
	if m := heiseiRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return validateBuiltYear(1988+n, currentYear)
		}
	}
	if m := showaRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return validateBuiltYear(1925+n, currentYear)
		}
	}
	if m := builtYearRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return validateBuiltYear(n, currentYear)
		}
	}
	return 0, false
}

func validateBuiltYear(year, currentYear int) (int, bool) {
	if year > currentYear+2 {
		return 0, false
	}
	return year, true
}

var adSuffixRe = regexp.MustCompile(`(?:‐|-|～|〜|\s)*(?:[0-9A-Za-z]+分|徒歩.*|[【\[（(].*[】\]）)])*$`)

// CleanAddress strips common advertising suffixes while preserving the
// "東京都<区>…" body of the address.
func CleanAddress(text string) string {
	t := strings.TrimSpace(text)
	t = adSuffixRe.ReplaceAllString(t, "")
	return strings.TrimSpace(t)
}

// ValidateAddress requires a prefecture and ward-level substring.
func ValidateAddress(address string) bool {
	if address == "" {
		return false
	}
	hasPrefecture := strings.Contains(address, "都") || strings.Contains(address, "道") ||
		strings.Contains(address, "府") || strings.Contains(address, "県")
	hasWard := strings.Contains(address, "区") || strings.Contains(address, "市") ||
		strings.Contains(address, "町") || strings.Contains(address, "村")
	return hasPrefecture && hasWard
}

// FormatStationInfo folds a free-form "station: walk N分" block into a
// canonical multi-line form, one station per line, trimmed of stray
// whitespace and trailing punctuation.
func FormatStationInfo(text string) string {
	lines := strings.FieldsFunc(text, func(r rune) bool {
		return r == '\n' || r == '、' || r == ';' || r == '；'
	})
	var out []string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		l = strings.Trim(l, "・")
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
