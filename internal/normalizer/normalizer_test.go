package normalizer

import "testing"

func TestExtractPrice(t *testing.T) {
	cases := []struct {
		text string
		want int
		ok   bool
	}{
		{"5,000万円", 5000, true},
		{"1億2,000万円", 12000, true},
		{"1億", 10000, true},
		{"50万円", 0, false}, // below MinPriceMan
		{"価格応談", 0, false},
	}
	for _, c := range cases {
		got, ok := ExtractPrice(c.text)
		if ok != c.ok || (ok && got != c.want) {
			t.Errorf("ExtractPrice(%q) = (%d, %v), want (%d, %v)", c.text, got, ok, c.want, c.ok)
		}
	}
}

func TestExtractArea(t *testing.T) {
	cases := []struct {
		text string
		want float64
		ok   bool
	}{
		{"60.55㎡", 60.55, true},
		{"70m2", 70, true},
		{"80平米", 80, true},
		{"5㎡", 0, false},
	}
	for _, c := range cases {
		got, ok := ExtractArea(c.text)
		if ok != c.ok || (ok && got != c.want) {
			t.Errorf("ExtractArea(%q) = (%v, %v), want (%v, %v)", c.text, got, ok, c.want, c.ok)
		}
	}
}

func TestExtractFloorNumber(t *testing.T) {
	if got, ok := ExtractFloorNumber("5階/10階建"); !ok || got != 5 {
		t.Errorf("got (%d, %v), want (5, true)", got, ok)
	}
	if got, ok := ExtractFloorNumber("3階部分"); !ok || got != 3 {
		t.Errorf("got (%d, %v), want (3, true)", got, ok)
	}
}

func TestExtractTotalFloors(t *testing.T) {
	total, basement, ok := ExtractTotalFloors("10階建地下2階")
	if !ok || total != 10 || basement != 2 {
		t.Errorf("got (%d, %d, %v), want (10, 2, true)", total, basement, ok)
	}
	total, basement, ok = ExtractTotalFloors("地下1階9階建")
	if !ok || total != 9 || basement != 1 {
		t.Errorf("got (%d, %d, %v), want (9, 1, true)", total, basement, ok)
	}
}

func TestNormalizeLayout(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"2LDK", "2LDK"},
		{"ワンルーム", "1R"},
		{"STUDIO", "1R"},
		{"3LDK+S", "3SLDK"},
		{"2LDK+WIC", "2LDK"},
		{"1K", "1K"},
	}
	for _, c := range cases {
		got, ok := NormalizeLayout(c.text)
		if !ok || got != c.want {
			t.Errorf("NormalizeLayout(%q) = (%q, %v), want %q", c.text, got, ok, c.want)
		}
	}
}

func TestNormalizeDirection(t *testing.T) {
	got, ok := NormalizeDirection("南東向き")
	if !ok || got != "南東" {
		t.Errorf("got (%q, %v), want (南東, true)", got, ok)
	}
}

func TestExtractBuiltYear(t *testing.T) {
	got, ok := ExtractBuiltYear("令和2年築")
	if !ok || got != 2020 {
		t.Errorf("got (%d, %v), want (2020, true)", got, ok)
	}
	got, ok = ExtractBuiltYear("平成10年3月")
	if !ok || got != 1998 {
		t.Errorf("got (%d, %v), want (1998, true)", got, ok)
	}
	if _, ok := ExtractBuiltYear("9999年"); ok {
		t.Error("expected far-future year to be rejected")
	}
}

func TestValidateAddress(t *testing.T) {
	if !ValidateAddress("東京都港区麻布1-1-1") {
		t.Error("expected valid address")
	}
	if ValidateAddress("麻布1-1-1") {
		t.Error("expected invalid address (no prefecture)")
	}
}

func TestValidateFloorNumber(t *testing.T) {
	total := 10
	if !ValidateFloorNumber(5, &total) {
		t.Error("5 <= 10 should be valid")
	}
	if ValidateFloorNumber(15, &total) {
		t.Error("15 > 10 should be invalid")
	}
	if !ValidateFloorNumber(5, nil) {
		t.Error("nil total floors should always validate")
	}
}
