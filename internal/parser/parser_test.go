package parser

import "testing"

func validRecord() DetailRecord {
	return DetailRecord{
		SitePropertyID: "12345",
		Price:          5000,
		BuildingName:   "麻布ハウス",
		Address:        "東京都港区麻布十番1-2-3",
		Area:           60.5,
		HasArea:        true,
		Layout:         "2LDK",
		Floor:          5,
		HasFloor:       true,
		TotalFloors:    10,
		HasTotalFloors: true,
	}
}

func TestValidateAcceptsCompleteRecord(t *testing.T) {
	report := Validate(validRecord())
	if !report.OK() {
		t.Fatalf("expected a fully populated record to validate, missing=%v", report.Missing)
	}
}

func TestValidateRejectsOutOfRangeArea(t *testing.T) {
	d := validRecord()
	d.Area = 600
	report := Validate(d)
	if report.OK() {
		t.Fatal("expected area above the 500m2 ceiling to be reported missing")
	}
}

func TestValidateRejectsAddressWithoutWard(t *testing.T) {
	d := validRecord()
	d.Address = "東京都" // prefecture only, no ward/city substring
	report := Validate(d)
	if report.OK() {
		t.Fatal("expected an address lacking a ward/city substring to be reported missing")
	}
}

func TestValidateRejectsFloorAboveTotalFloors(t *testing.T) {
	d := validRecord()
	d.Floor = 15
	d.TotalFloors = 10
	report := Validate(d)
	if report.OK() {
		t.Fatal("expected a floor above total_floors to be reported missing")
	}
}

func TestValidateToleratesMissingTotalFloors(t *testing.T) {
	d := validRecord()
	d.HasTotalFloors = false
	report := Validate(d)
	if !report.OK() {
		t.Fatalf("floor check should be skipped when total_floors is absent, missing=%v", report.Missing)
	}
}

func TestValidateReportsEveryMissingField(t *testing.T) {
	report := Validate(DetailRecord{})
	want := []string{"site_property_id", "price", "building_name", "address", "area", "layout"}
	if len(report.Missing) != len(want) {
		t.Fatalf("missing = %v, want %v", report.Missing, want)
	}
}
