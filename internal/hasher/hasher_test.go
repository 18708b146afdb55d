package hasher

import "testing"

func intp(i int) *int          { return &i }
func floatp(f float64) *float64 { return &f }

func TestHashStability(t *testing.T) {
	in := Input{BuildingID: 1, Floor: intp(5), Area: floatp(60.123), Layout: "2ldk", Direction: "南"}
	h1 := Hash(in)
	h2 := Hash(in)
	if h1 != h2 {
		t.Fatalf("hash not stable across calls: %s != %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("expected 64-char hex digest, got %d chars", len(h1))
	}
}

func TestHashRoomNumberExcluded(t *testing.T) {
	// Room number is not part of Input at all: two records differing only in
	// room number necessarily produce the same hash (testable property 2).
	a := Input{BuildingID: 1, Floor: intp(3), Area: floatp(50), Layout: "1LDK", Direction: "東"}
	b := Input{BuildingID: 1, Floor: intp(3), Area: floatp(50), Layout: "1LDK", Direction: "東"}
	if Hash(a) != Hash(b) {
		t.Fatal("expected identical hash for identical structural attributes")
	}
}

func TestHashAreaRounding(t *testing.T) {
	a := Input{BuildingID: 1, Area: floatp(60.001)}
	b := Input{BuildingID: 1, Area: floatp(60.004)}
	if Hash(a) != Hash(b) {
		t.Fatal("expected area rounding to 2dp to collapse near-equal areas")
	}
}

func TestHashAbsentFieldsDiffer(t *testing.T) {
	withArea := Input{BuildingID: 1, Area: floatp(60)}
	withoutArea := Input{BuildingID: 1}
	if Hash(withArea) == Hash(withoutArea) {
		t.Fatal("expected absent vs present area to produce different hashes")
	}
}

func TestHashLayoutCaseAndSpaceInsensitive(t *testing.T) {
	a := Input{BuildingID: 1, Layout: "2ldk"}
	b := Input{BuildingID: 1, Layout: " 2 LDK "}
	if Hash(a) != Hash(b) {
		t.Fatal("expected layout normalization to ignore case and whitespace")
	}
}
