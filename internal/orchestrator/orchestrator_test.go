package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"real-estate-portal/internal/config"
	"real-estate-portal/internal/fetch"
	"real-estate-portal/internal/models"
	"real-estate-portal/internal/parser"
	"real-estate-portal/internal/retrygate"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// A named shared-cache DSN so the retry gate and alert writes, which run
	// on their own connections while a batch transaction is open, see the
	// same in-memory database.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Building{}, &models.BuildingExternalID{}, &models.MasterProperty{},
		&models.PropertyListing{}, &models.ListingPriceHistory{},
		&models.Url404Retry{}, &models.ValidationErrorRetry{}, &models.PriceMismatchRetry{},
		&models.ScraperAlert{}, &models.JobExecutionLog{},
	))
	return db
}

// fakeFetcher echoes the requested URL back as the "HTML" so the fake parser
// can key its canned responses by URL, and counts every call.
type fakeFetcher struct {
	listCalls   map[string]int
	detailCalls map[string]int
	listErr     map[string]error
	detailErr   map[string]error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		listCalls:   map[string]int{},
		detailCalls: map[string]int{},
		listErr:     map[string]error{},
		detailErr:   map[string]error{},
	}
}

func (f *fakeFetcher) Get(_ context.Context, url string) (string, error) {
	f.listCalls[url]++
	if err := f.listErr[url]; err != nil {
		return "", err
	}
	return url, nil
}

func (f *fakeFetcher) GetDetail(_ context.Context, url string) (string, error) {
	f.detailCalls[url]++
	if err := f.detailErr[url]; err != nil {
		return "", err
	}
	return url, nil
}

func (f *fakeFetcher) totalDetailCalls() int {
	n := 0
	for _, c := range f.detailCalls {
		n += c
	}
	return n
}

type fakeParser struct {
	pages   [][]parser.ListRow
	details map[string]parser.DetailRecord
}

func (p *fakeParser) SourceSite() string { return "fake" }

func (p *fakeParser) BuildListURL(area string, page int) string {
	return fmt.Sprintf("https://fake.example/%s/page/%d", area, page)
}

func (p *fakeParser) pageOf(html string) int {
	idx := strings.LastIndex(html, "/")
	n, _ := strconv.Atoi(html[idx+1:])
	return n
}

func (p *fakeParser) ParseList(html string) ([]parser.ListRow, error) {
	n := p.pageOf(html)
	if n < 1 || n > len(p.pages) {
		return nil, nil
	}
	return p.pages[n-1], nil
}

func (p *fakeParser) ParseDetail(html string, _ parser.ListRow) (parser.DetailRecord, bool) {
	d, ok := p.details[html]
	return d, ok
}

func (p *fakeParser) IsLastPage(html string) bool { return p.pageOf(html) >= len(p.pages) }

func (p *fakeParser) ValidateSitePropertyID(id, _ string) bool {
	return !strings.HasPrefix(id, "bad-")
}

func (p *fakeParser) VerifyBuildingNamesMatch(d parser.DetailRecord, _ string) parser.MatchResult {
	return parser.MatchResult{OK: true, ResolvedName: d.BuildingName}
}

func (p *fakeParser) PartialRequiredFields() []string { return nil }

func detailURL(id string) string { return "https://fake.example/detail/" + id }

func listRowFor(id string, price int) parser.ListRow {
	return parser.ListRow{
		URL:                  detailURL(id),
		SitePropertyID:       id,
		Price:                price,
		BuildingNameFromList: "麻布ハウス",
	}
}

func completeDetail(id string, price int) parser.DetailRecord {
	return parser.DetailRecord{
		SitePropertyID: id,
		Price:          price,
		BuildingName:   "麻布ハウス",
		Address:        "東京都港区麻布1-1-1",
		Area:           60.0,
		HasArea:        true,
		Layout:         "2LDK",
		Floor:          5,
		HasFloor:       true,
		TotalFloors:    10,
		HasTotalFloors: true,
		Direction:      "南",
		BuiltYear:      2015,
		HasBuiltYear:   true,
	}
}

func newTestOrchestrator(db *gorm.DB, f Fetcher) *Orchestrator {
	o := New(db, f, config.DefaultOrchestratorConfig(), nil)
	o.PausePollInterval = 10 * time.Millisecond
	return o
}

func singleListingParser(id string, listPrice, detailPrice int) *fakeParser {
	return &fakeParser{
		pages:   [][]parser.ListRow{{listRowFor(id, listPrice)}},
		details: map[string]parser.DetailRecord{detailURL(id): completeDetail(id, detailPrice)},
	}
}

func TestRunNewListing(t *testing.T) {
	db := newTestDB(t)
	f := newFakeFetcher()
	o := newTestOrchestrator(db, f)

	stats, err := o.Run(context.Background(), Task{
		ID: "t1", SourceSite: "fake", Parser: singleListingParser("A1", 5000, 5000), AreaCode: "13",
	})
	require.NoError(t, err)
	require.Equal(t, 1, stats.New)
	require.Equal(t, 1, stats.DetailFetched)

	var buildings []models.Building
	require.NoError(t, db.Find(&buildings).Error)
	require.Len(t, buildings, 1)
	require.Equal(t, "麻布ハウス", buildings[0].NormalizedName)

	var props int64
	db.Model(&models.MasterProperty{}).Count(&props)
	require.EqualValues(t, 1, props)

	var listing models.PropertyListing
	require.NoError(t, db.Where("source_site = ? AND site_property_id = ?", "fake", "A1").First(&listing).Error)
	require.True(t, listing.IsActive)
	require.Equal(t, 5000, listing.CurrentPrice)

	var hist []models.ListingPriceHistory
	require.NoError(t, db.Where("property_listing_id = ?", listing.ID).Find(&hist).Error)
	require.Len(t, hist, 1)
	require.Equal(t, 5000, hist[0].Price)
}

func TestRunPriceChange(t *testing.T) {
	db := newTestDB(t)
	f := newFakeFetcher()
	o := newTestOrchestrator(db, f)

	_, err := o.Run(context.Background(), Task{
		ID: "t1", SourceSite: "fake", Parser: singleListingParser("A1", 5000, 5000), AreaCode: "13",
	})
	require.NoError(t, err)

	stats, err := o.Run(context.Background(), Task{
		ID: "t2", SourceSite: "fake", Parser: singleListingParser("A1", 4800, 4800), AreaCode: "13",
	})
	require.NoError(t, err)
	require.Equal(t, 1, stats.PriceUpdated)

	var listing models.PropertyListing
	require.NoError(t, db.Where("site_property_id = ?", "A1").First(&listing).Error)
	require.Equal(t, 4800, listing.CurrentPrice)

	var hist []models.ListingPriceHistory
	require.NoError(t, db.Where("property_listing_id = ?", listing.ID).Order("recorded_at").Find(&hist).Error)
	require.Len(t, hist, 2)
	require.Equal(t, 5000, hist[0].Price)
	require.Equal(t, 4800, hist[1].Price)
}

func TestRunPriceMismatchSkipsUpdateAndGatesRevisit(t *testing.T) {
	db := newTestDB(t)
	f := newFakeFetcher()
	o := newTestOrchestrator(db, f)

	_, err := o.Run(context.Background(), Task{
		ID: "t1", SourceSite: "fake", Parser: singleListingParser("A1", 5000, 5000), AreaCode: "13",
	})
	require.NoError(t, err)

	// List page says 4800 but the detail page still says 5000: the listing
	// must not be updated.
	mismatched := singleListingParser("A1", 4800, 5000)
	stats, err := o.Run(context.Background(), Task{
		ID: "t2", SourceSite: "fake", Parser: mismatched, AreaCode: "13",
	})
	require.NoError(t, err)
	require.Equal(t, 1, stats.PriceMismatch)

	var listing models.PropertyListing
	require.NoError(t, db.Where("site_property_id = ?", "A1").First(&listing).Error)
	require.Equal(t, 5000, listing.CurrentPrice)

	var mismatches int64
	db.Model(&models.PriceMismatchRetry{}).Count(&mismatches)
	require.EqualValues(t, 1, mismatches)

	// Within the retry window the listing is skipped without a detail fetch.
	before := f.totalDetailCalls()
	stats3, err := o.Run(context.Background(), Task{
		ID: "t3", SourceSite: "fake", Parser: mismatched, AreaCode: "13",
	})
	require.NoError(t, err)
	require.Equal(t, 1, stats3.DetailSkipped)
	require.Equal(t, before, f.totalDetailCalls())
}

func TestRunDelistsAbsentListing(t *testing.T) {
	db := newTestDB(t)
	f := newFakeFetcher()
	o := newTestOrchestrator(db, f)

	_, err := o.Run(context.Background(), Task{
		ID: "t1", SourceSite: "fake", Parser: singleListingParser("A1", 5000, 5000), AreaCode: "13",
	})
	require.NoError(t, err)

	// The next run finds nothing: first absence marks the listing inactive.
	empty := &fakeParser{pages: nil, details: map[string]parser.DetailRecord{}}
	stats, err := o.Run(context.Background(), Task{
		ID: "t2", SourceSite: "fake", Parser: empty, AreaCode: "13",
	})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Delisted)

	var listing models.PropertyListing
	require.NoError(t, db.Where("site_property_id = ?", "A1").First(&listing).Error)
	require.False(t, listing.IsActive)
	require.NotNil(t, listing.DelistedAt)
}

func TestRunPauseThenResumeProcessesEachListingOnce(t *testing.T) {
	db := newTestDB(t)
	f := newFakeFetcher()
	o := newTestOrchestrator(db, f)

	ids := []string{"A1", "A2", "A3", "A4", "A5"}
	rows := make([]parser.ListRow, len(ids))
	details := map[string]parser.DetailRecord{}
	for i, id := range ids {
		rows[i] = listRowFor(id, 5000)
		details[detailURL(id)] = completeDetail(id, 5000)
	}
	p := &fakeParser{pages: [][]parser.ListRow{rows}, details: details}

	control := NewControl()
	var saved ResumeState
	paused := false
	task := Task{
		ID: "t1", SourceSite: "fake", Parser: p, AreaCode: "13", Control: control,
		Progress: func(s Snapshot) {
			if s.Phase == PhaseProcessing && s.PropertiesProcessed == 2 && !paused {
				paused = true
				control.Pause()
			}
		},
		OnPause: func(s ResumeState) {
			saved = s
			control.Cancel()
		},
	}

	_, err := o.Run(context.Background(), task)
	require.ErrorIs(t, err, ErrTaskCancelled)
	require.Equal(t, PhaseProcessing, saved.Phase)
	require.Equal(t, 2, saved.ProcessedCount)
	require.Len(t, saved.CollectedRows, 5)

	stats, err := o.Run(context.Background(), Task{
		ID: "t1", SourceSite: "fake", Parser: p, AreaCode: "13", Resume: &saved,
	})
	require.NoError(t, err)
	require.Equal(t, 5, stats.PropertiesProcessed)
	require.Equal(t, 5, stats.New, "counters reflect all listings across both runs")

	for _, id := range ids {
		require.Equal(t, 1, f.detailCalls[detailURL(id)], "listing %s processed exactly once", id)
	}
	var count int64
	db.Model(&models.PropertyListing{}).Count(&count)
	require.EqualValues(t, 5, count)
}

func TestRunFieldCircuitBreakerAbortsRun(t *testing.T) {
	db := newTestDB(t)
	f := newFakeFetcher()
	o := newTestOrchestrator(db, f)

	// An intermittently drifting price selector: one listing mid-run still
	// parses. The miss count is cumulative for the run, so the success must
	// not push the trip point out.
	rows := make([]parser.ListRow, 7)
	details := map[string]parser.DetailRecord{}
	for i := 0; i < 7; i++ {
		id := fmt.Sprintf("A%d", i+1)
		rows[i] = listRowFor(id, 5000)
		d := completeDetail(id, 5000)
		if i != 2 {
			d.Price = 0
		}
		details[detailURL(id)] = d
	}
	p := &fakeParser{pages: [][]parser.ListRow{rows}, details: details}

	stats, err := o.Run(context.Background(), Task{
		ID: "t1", SourceSite: "fake", Parser: p, AreaCode: "13",
	})
	require.ErrorIs(t, err, ErrCircuitBreakerTripped)
	require.Equal(t, 5, stats.PropertiesProcessed, "the fifth cumulative price miss, on the sixth listing, aborts the run")

	var alert models.ScraperAlert
	require.NoError(t, db.Where("alert_type = ?", "critical_field_error").First(&alert).Error)
	require.Equal(t, "price", alert.FieldName)
}

func TestRunRetryGateSkips404URL(t *testing.T) {
	db := newTestDB(t)
	f := newFakeFetcher()
	o := newTestOrchestrator(db, f)

	// A 404 recorded moments ago is still inside its 2h back-off window.
	require.NoError(t, retrygate.New(db).RecordHTTP404("fake", detailURL("A1")))

	stats, err := o.Run(context.Background(), Task{
		ID: "t1", SourceSite: "fake", Parser: singleListingParser("A1", 5000, 5000), AreaCode: "13",
	})
	require.NoError(t, err)
	require.Equal(t, 1, stats.DetailSkipped)
	require.Zero(t, f.detailCalls[detailURL("A1")])

	var count int64
	db.Model(&models.PropertyListing{}).Count(&count)
	require.Zero(t, count)
}

func TestRun404OnDetailWritesRetryRecord(t *testing.T) {
	db := newTestDB(t)
	f := newFakeFetcher()
	f.detailErr[detailURL("A1")] = fetch.ErrNotFound
	o := newTestOrchestrator(db, f)

	stats, err := o.Run(context.Background(), Task{
		ID: "t1", SourceSite: "fake", Parser: singleListingParser("A1", 5000, 5000), AreaCode: "13",
	})
	require.NoError(t, err, "a 404 is never a fatal error")
	require.Equal(t, 1, stats.DetailSkipped)

	var retry models.Url404Retry
	require.NoError(t, db.Where("url = ?", detailURL("A1")).First(&retry).Error)
	require.Equal(t, 1, retry.ErrorCount)
}

func TestRunMaintenanceAbortsImmediately(t *testing.T) {
	db := newTestDB(t)
	f := newFakeFetcher()
	p := singleListingParser("A1", 5000, 5000)
	f.listErr[p.BuildListURL("13", 1)] = fetch.ErrMaintenance
	o := newTestOrchestrator(db, f)

	_, err := o.Run(context.Background(), Task{
		ID: "t1", SourceSite: "fake", Parser: p, AreaCode: "13",
	})
	require.ErrorIs(t, err, ErrMaintenance)

	var alert models.ScraperAlert
	require.NoError(t, db.Where("alert_type = ?", "maintenance").First(&alert).Error)

	var count int64
	db.Model(&models.PropertyListing{}).Count(&count)
	require.Zero(t, count, "no records written on a maintenance abort")
}

func TestCollectStopsOnRepeatedURLSet(t *testing.T) {
	db := newTestDB(t)
	f := newFakeFetcher()

	// A broken paginator serves the same two rows on every page.
	rows := []parser.ListRow{listRowFor("A1", 5000), listRowFor("A2", 5000)}
	p := &fakeParser{
		pages: [][]parser.ListRow{rows, rows, rows, rows},
		details: map[string]parser.DetailRecord{
			detailURL("A1"): completeDetail("A1", 5000),
			detailURL("A2"): completeDetail("A2", 5000),
		},
	}
	o := newTestOrchestrator(db, f)

	stats, err := o.Run(context.Background(), Task{
		ID: "t1", SourceSite: "fake", Parser: p, AreaCode: "13", MaxPages: 10,
	})
	require.NoError(t, err)
	require.Equal(t, 2, stats.PropertiesFound)

	pagesFetched := 0
	for _, c := range f.listCalls {
		pagesFetched += c
	}
	require.Equal(t, 2, pagesFetched, "two identical pages in a row end collection")
}

func TestCollectToleratesSingleEmptyPage(t *testing.T) {
	db := newTestDB(t)
	f := newFakeFetcher()

	p := &fakeParser{
		pages: [][]parser.ListRow{
			{listRowFor("A1", 5000)},
			{}, // transient empty page
			{listRowFor("A2", 5000)},
		},
		details: map[string]parser.DetailRecord{
			detailURL("A1"): completeDetail("A1", 5000),
			detailURL("A2"): completeDetail("A2", 5000),
		},
	}
	o := newTestOrchestrator(db, f)

	stats, err := o.Run(context.Background(), Task{
		ID: "t1", SourceSite: "fake", Parser: p, AreaCode: "13",
	})
	require.NoError(t, err)
	require.Equal(t, 2, stats.PropertiesFound)
	require.Equal(t, 2, stats.New)
}

func TestCollectDropsRowsMissingRequiredListFields(t *testing.T) {
	db := newTestDB(t)
	f := newFakeFetcher()

	incomplete := parser.ListRow{URL: detailURL("B1"), SitePropertyID: "B1"} // no price
	malformedID := listRowFor("bad-1", 5000)                                // id fails the site's shape rule
	p := &fakeParser{
		pages:   [][]parser.ListRow{{listRowFor("A1", 5000), incomplete, malformedID}},
		details: map[string]parser.DetailRecord{detailURL("A1"): completeDetail("A1", 5000)},
	}
	o := newTestOrchestrator(db, f)

	stats, err := o.Run(context.Background(), Task{
		ID: "t1", SourceSite: "fake", Parser: p, AreaCode: "13",
	})
	require.NoError(t, err)
	require.Equal(t, 1, stats.PropertiesFound)
	require.Equal(t, 2, stats.HTMLStructureErrors)
}

func TestRunMaxPropertiesCapsCollection(t *testing.T) {
	db := newTestDB(t)
	f := newFakeFetcher()

	rows := make([]parser.ListRow, 4)
	details := map[string]parser.DetailRecord{}
	for i := range rows {
		id := fmt.Sprintf("A%d", i+1)
		rows[i] = listRowFor(id, 5000)
		details[detailURL(id)] = completeDetail(id, 5000)
	}
	p := &fakeParser{pages: [][]parser.ListRow{rows}, details: details}
	o := newTestOrchestrator(db, f)

	stats, err := o.Run(context.Background(), Task{
		ID: "t1", SourceSite: "fake", Parser: p, AreaCode: "13", MaxProperties: 2,
	})
	require.NoError(t, err)
	require.Equal(t, 2, stats.PropertiesFound)
	require.Equal(t, 2, stats.New)
}
