// Package orchestrator drives the two-phase per-area scrape pipeline:
// Phase A collects list-page rows, Phase B decides which rows need a detail
// fetch, cross-checks the result against the list page, and hands validated
// records to the resolver. It owns pause/resume/cancel, progress reporting,
// and the run-level circuit breakers; it never touches site-specific HTML —
// that is entirely the Parser's job.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"real-estate-portal/internal/config"
	"real-estate-portal/internal/fetch"
	"real-estate-portal/internal/models"
	"real-estate-portal/internal/obslog"
	"real-estate-portal/internal/parser"
	"real-estate-portal/internal/resolver"
	"real-estate-portal/internal/retrygate"

	"gorm.io/gorm"
)

// ErrTaskCancelled is the sentinel that unwinds a run cleanly on cancel or
// pause-timeout escalation.
var ErrTaskCancelled = errors.New("orchestrator: task cancelled")

// ErrMaintenance re-exports fetch.ErrMaintenance: a maintenance page aborts
// the whole run immediately.
var ErrMaintenance = fetch.ErrMaintenance

// ErrCircuitBreakerTripped surfaces when a field- or suspicious-update
// circuit breaker trips.
var ErrCircuitBreakerTripped = errors.New("orchestrator: circuit breaker tripped")

const defaultMaxPagesHardCeiling = 200

// Fetcher is the HTTP surface the orchestrator needs; internal/fetch.Client
// satisfies it directly (Get and GetDetail aliased), and
// internal/ratelimit.SmartFetcher wraps it to add the SCRAPER_SMART_SCRAPING
// pacing policy, with separate limiters for list-page and detail-page fetches.
type Fetcher interface {
	Get(ctx context.Context, url string) (string, error)
	GetDetail(ctx context.Context, url string) (string, error)
}

// Task parameterizes one orchestrator run.
type Task struct {
	ID                 string
	SourceSite         string
	Parser             parser.Parser
	AreaCode           string
	MaxPages           int
	MaxProperties      int
	ForceDetailFetch   bool
	IgnoreErrorHistory bool
	Progress           func(Snapshot)
	Control            *Control
	Resume             *ResumeState
	// OnPause is invoked with the resume snapshot just before the run blocks
	// on a pause request, so a process restart can resume with loss of at
	// most one listing.
	OnPause func(ResumeState)
}

// Orchestrator holds the shared, process-lifetime dependencies for running
// scrape tasks: the database, the HTTP fetcher, and the governing config.
type Orchestrator struct {
	DB      *gorm.DB
	Fetcher Fetcher
	Config  config.OrchestratorConfig
	Logger  *obslog.Logger

	// PausePollInterval controls how often a paused run re-checks its pause
	// flag; defaults to 1s, overridable (tests use a much shorter interval).
	PausePollInterval time.Duration
}

// New constructs an Orchestrator with a 1s default pause poll interval.
func New(db *gorm.DB, fetcher Fetcher, cfg config.OrchestratorConfig, logger *obslog.Logger) *Orchestrator {
	if logger == nil {
		logger = obslog.New("orchestrator")
	}
	return &Orchestrator{DB: db, Fetcher: fetcher, Config: cfg, Logger: logger, PausePollInterval: time.Second}
}

// run carries all per-task mutable state; one is built fresh per Run call.
type run struct {
	o          *Orchestrator
	task       Task
	gate       *retrygate.Gate
	fieldBr    *FieldBreaker
	suspicious *SuspiciousGuard
	layout     layoutTolerance

	phase          Phase
	currentPage    int
	collectedRows  []parser.ListRow
	seenURLs       map[string]bool
	lastPageURLSet map[string]bool
	emptyPages     int
	processedCount int
	stats          Stats
}

type layoutTolerance struct {
	attempts, misses int
}

// record applies a missing-rate tolerance (<=30% with a sample floor of 10)
// for a partial-required field. Returns true once the run should abort.
func (lt *layoutTolerance) record(hit bool) bool {
	lt.attempts++
	if !hit {
		lt.misses++
	}
	if lt.attempts < 10 {
		return false
	}
	return float64(lt.misses)/float64(lt.attempts) > 0.30
}

// Run executes one two-phase scrape task to completion, abort, or pause.
// A pause that escalates to cancel, a cancel, a maintenance page, or a
// tripped circuit breaker all return a non-nil error after persisting
// whatever alert/resume state applies; the caller decides whether to log it,
// surface it to an operator, or schedule a resume.
func (o *Orchestrator) Run(ctx context.Context, task Task) (Stats, error) {
	if task.Control == nil {
		task.Control = NewControl()
	}
	if task.MaxPages <= 0 || task.MaxPages > defaultMaxPagesHardCeiling {
		task.MaxPages = defaultMaxPagesHardCeiling
	}

	r := &run{
		o:    o,
		task: task,
		gate: retrygate.New(o.DB,
			retrygate.WithIgnoreHistory(task.IgnoreErrorHistory),
			retrygate.WithForceDetailFetch(task.ForceDetailFetch),
			retrygate.WithPriceMismatchRetryDays(o.Config.PriceMismatchRetryDays),
		),
		fieldBr:        NewFieldBreaker(o.Config.ConsecutiveErrors, o.Config.CriticalErrorRate, o.Config.CriticalErrorCount),
		suspicious:     NewSuspiciousGuard(o.Config.SuspiciousUpdateThreshold),
		seenURLs:       map[string]bool{},
		lastPageURLSet: nil,
		phase:          PhaseCollecting,
	}

	startPage := 1
	if task.Resume != nil {
		r.stats = task.Resume.Stats
		switch task.Resume.Phase {
		case PhaseProcessing:
			if len(task.Resume.CollectedRows) > 0 {
				r.collectedRows = task.Resume.CollectedRows
				r.processedCount = task.Resume.ProcessedCount
				r.phase = PhaseProcessing
			}
		case PhaseCollecting:
			r.collectedRows = task.Resume.CollectedRows
			startPage = task.Resume.CurrentPage
			for _, row := range r.collectedRows {
				r.seenURLs[row.URL] = true
			}
		}
	}

	var runErr error
	if r.phase == PhaseCollecting {
		runErr = r.collect(ctx, startPage)
		if runErr == nil {
			if err := r.checkSuspension(ctx); err != nil {
				runErr = err
			} else {
				r.phase = PhaseProcessing
			}
		}
	}
	if runErr == nil && r.phase == PhaseProcessing {
		runErr = r.process(ctx)
	}
	if runErr == nil {
		if err := r.delistAbsent(); err != nil {
			o.Logger.Warn("delisting pass failed: %v", err)
		}
	}

	r.phase = PhaseCompleted
	r.emit()
	return r.stats, runErr
}

// checkSuspension consults pause/cancel at a suspension point. A
// pause blocks the caller, polling PausePollInterval, and persists a resume
// snapshot via OnPause before blocking. A pause exceeding
// PauseTimeoutSeconds escalates to cancel.
func (r *run) checkSuspension(ctx context.Context) error {
	if r.task.Control.IsCancelled() {
		return ErrTaskCancelled
	}
	if !r.task.Control.IsPaused() {
		return nil
	}

	if r.task.OnPause != nil {
		r.task.OnPause(r.snapshotResumeState())
	}

	timeout := time.Duration(r.o.Config.PauseTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	poll := r.o.PausePollInterval
	if poll <= 0 {
		poll = time.Second
	}

	var waited time.Duration
	for r.task.Control.IsPaused() {
		if r.task.Control.IsCancelled() {
			return ErrTaskCancelled
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
		waited += poll
		if waited >= timeout {
			r.task.Control.Cancel()
			return ErrTaskCancelled
		}
	}
	if r.task.Control.IsCancelled() {
		return ErrTaskCancelled
	}
	return nil
}

func (r *run) snapshotResumeState() ResumeState {
	return ResumeState{
		Phase:          r.phase,
		CurrentPage:    r.currentPage,
		CollectedRows:  append([]parser.ListRow{}, r.collectedRows...),
		ProcessedCount: r.processedCount,
		Stats:          r.stats,
	}
}

func (r *run) emit() {
	if r.task.Progress != nil {
		r.task.Progress(Snapshot{Phase: r.phase, Stats: r.stats})
	}
}

// collect implements Phase A: iterate list pages via BuildListURL,
// parse each, dedupe within this run, and stop on any of the documented
// termination conditions.
func (r *run) collect(ctx context.Context, startPage int) error {
	r.phase = PhaseCollecting
	if startPage < 1 {
		startPage = 1
	}
	for page := startPage; page <= r.task.MaxPages; page++ {
		r.currentPage = page
		if err := r.checkSuspension(ctx); err != nil {
			return err
		}

		url := r.task.Parser.BuildListURL(r.task.AreaCode, page)
		html, err := r.o.Fetcher.Get(ctx, url)
		if err != nil {
			if errors.Is(err, fetch.ErrMaintenance) {
				r.persistAlert("maintenance", "", 0, 0, "site under maintenance during list fetch: "+err.Error())
				return ErrMaintenance
			}
			// Soft HTTP errors during collection: treat as an empty page,
			// the next scheduled run retries naturally.
			r.emptyPages++
			if r.emptyPages >= 2 {
				break
			}
			continue
		}

		rows, parseErr := r.task.Parser.ParseList(html)
		if parseErr != nil || len(rows) == 0 {
			r.emptyPages++
			if r.emptyPages >= 2 {
				break
			}
			r.emit()
			if r.task.Parser.IsLastPage(html) {
				break
			}
			continue
		}
		r.emptyPages = 0

		pageURLSet := make(map[string]bool, len(rows))
		added := 0
		for _, row := range rows {
			pageURLSet[row.URL] = true
			if !row.Valid() || !r.task.Parser.ValidateSitePropertyID(row.SitePropertyID, row.URL) {
				r.stats.HTMLStructureErrors++
				continue
			}
			if r.seenURLs[row.URL] {
				continue
			}
			r.seenURLs[row.URL] = true
			r.collectedRows = append(r.collectedRows, row)
			added++
		}
		r.stats.PropertiesFound = len(r.collectedRows)

		if r.lastPageURLSet != nil && sameURLSet(r.lastPageURLSet, pageURLSet) {
			// Two consecutive pages yield the same URL set: pagination is
			// stuck.
			break
		}
		r.lastPageURLSet = pageURLSet

		r.emit()

		if r.task.MaxProperties > 0 && len(r.collectedRows) >= r.task.MaxProperties {
			r.collectedRows = r.collectedRows[:r.task.MaxProperties]
			r.stats.PropertiesFound = len(r.collectedRows)
			break
		}
		if r.task.Parser.IsLastPage(html) {
			break
		}
	}
	return nil
}

func sameURLSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for u := range a {
		if !b[u] {
			return false
		}
	}
	return true
}

// process implements Phase B: decide per row whether to fetch the
// detail page, cross-check, resolve, and classify.
func (r *run) process(ctx context.Context) error {
	r.phase = PhaseProcessing
	committer := newBatchCommitter(r.o.DB)
	if err := committer.begin(); err != nil {
		return err
	}

	for i := r.processedCount; i < len(r.collectedRows); i++ {
		if err := r.checkSuspension(ctx); err != nil {
			// A pause-timeout or cancel is handled control flow: keep the
			// listings already processed so the persisted resume state
			// (processedCount) stays truthful. Only a context abort rolls
			// the open batch back.
			if errors.Is(err, ErrTaskCancelled) {
				committer.commitPartial()
			} else {
				committer.rollback()
			}
			return err
		}

		row := r.collectedRows[i]
		r.stats.PropertiesAttempted++

		if err := r.processOne(ctx, committer.tx, row); err != nil {
			if errors.Is(err, ErrMaintenance) || errors.Is(err, ErrCircuitBreakerTripped) || errors.Is(err, ErrTaskCancelled) {
				committer.commitPartial()
				return err
			}
			r.stats.Errors++
			r.o.Logger.Warn("listing %s: %v", row.URL, err)
		}

		r.processedCount = i + 1
		r.stats.PropertiesProcessed = r.processedCount
		r.emit()

		if err := committer.maybeCommit(); err != nil {
			return err
		}
	}
	return committer.finish()
}

// processOne handles a single collected row: the fetch decision, the
// detail fetch (gated by the retry gate), cross-checks, and resolution.
func (r *run) processOne(ctx context.Context, tx *gorm.DB, row parser.ListRow) error {
	existing, err := resolver.FindListingBySitePropertyID(tx, r.task.SourceSite, row.SitePropertyID)
	if err != nil {
		return err
	}

	shouldFetch, _ := r.decideFetch(existing, row)
	if !shouldFetch {
		if existing != nil {
			if err := resolver.TouchListing(tx, existing, time.Now()); err != nil {
				return err
			}
		}
		r.stats.DetailSkipped++
		return nil
	}

	if skip, _ := r.gate.ShouldSkipDetailFetch(r.task.SourceSite, row.URL); skip && !r.task.ForceDetailFetch {
		r.stats.DetailSkipped++
		return nil
	}
	if row.SitePropertyID != "" {
		if skip, _ := r.gate.ShouldSkipPriceMismatchRevisit(r.task.SourceSite, row.SitePropertyID); skip {
			r.stats.DetailSkipped++
			return nil
		}
	}

	if err := r.checkSuspension(ctx); err != nil {
		return err
	}

	html, err := r.o.Fetcher.GetDetail(ctx, row.URL)
	if err != nil {
		return r.handleFetchError(row, err)
	}
	r.stats.DetailFetched++

	detail, ok := r.task.Parser.ParseDetail(html, row)
	if !ok {
		_ = r.gate.RecordValidationError(r.task.SourceSite, row.URL, "parse_failed", "")
		r.stats.Errors++
		return nil
	}

	if tripped, abortErr := r.evaluateFields(row.URL, detail); tripped {
		return abortErr
	}

	report := parser.Validate(detail)
	if !report.OK() {
		_ = r.gate.RecordValidationError(r.task.SourceSite, row.URL, "missing_fields", fmt.Sprint(report.Missing))
		if containsStr(report.Missing, "price") {
			r.stats.PriceMissing++
		}
		if containsStr(report.Missing, "building_name") || containsStr(report.Missing, "address") {
			r.stats.BuildingInfoMissing++
		}
		r.stats.Errors++
		return nil
	}

	// Price cross-check: abort this listing's update on disagreement.
	if row.Price > 0 && detail.Price > 0 && row.Price != detail.Price {
		r.stats.PriceMismatch++
		_ = r.gate.RecordPriceMismatch(r.task.SourceSite, row.SitePropertyID, row.URL, row.Price, detail.Price)
		return nil
	}

	// Building-name cross-check.
	listName := row.BuildingNameFromList
	resolvedName := detail.BuildingName
	if listName != "" && detail.BuildingName != "" {
		match := r.task.Parser.VerifyBuildingNamesMatch(detail, listName)
		if !match.OK {
			r.o.Logger.Warn("building name mismatch for %s: list=%q detail=%q", row.URL, listName, detail.BuildingName)
			return nil
		}
		resolvedName = match.ResolvedName
	}

	if err := r.checkSuspension(ctx); err != nil {
		return err
	}

	return tx.Transaction(func(innerTx *gorm.DB) error {
		return r.resolveAndSave(innerTx, row, detail, resolvedName)
	})
}

func containsStr(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// decideFetch applies the Phase B fetch decision.
func (r *run) decideFetch(existing *models.PropertyListing, row parser.ListRow) (bool, string) {
	if r.task.ForceDetailFetch {
		return true, "force"
	}
	if existing == nil {
		return true, "new"
	}
	if row.Price > 0 && existing.CurrentPrice != row.Price {
		return true, "price_changed"
	}
	refetchDays := r.o.Config.DetailRefetchDaysFor(r.task.SourceSite)
	if existing.DetailFetchedAt == nil || time.Since(*existing.DetailFetchedAt) > time.Duration(refetchDays)*24*time.Hour {
		return true, "stale"
	}
	return false, "skip"
}

func (r *run) handleFetchError(row parser.ListRow, err error) error {
	if errors.Is(err, fetch.ErrMaintenance) {
		r.persistAlert("maintenance", "", 0, 0, "site under maintenance during detail fetch: "+err.Error())
		return ErrMaintenance
	}
	if errors.Is(err, fetch.ErrNotFound) {
		_ = r.gate.RecordHTTP404(r.task.SourceSite, row.URL)
		r.stats.DetailSkipped++
		return nil
	}
	// Soft HTTP error: logged, no retry record, the next scheduled run
	// retries naturally.
	r.stats.Errors++
	r.o.Logger.Warn("detail fetch failed for %s: %v", row.URL, err)
	return nil
}

// evaluateFields feeds the per-field circuit breaker and the layout
// partial-required tolerance.
func (r *run) evaluateFields(url string, d parser.DetailRecord) (bool, error) {
	checks := []struct {
		field string
		hit   bool
	}{
		{"price", d.Price > 0},
		{"building_name", d.BuildingName != ""},
		{"area", d.HasArea},
		{"floor", d.HasFloor},
		{"built_year", d.HasBuiltYear},
	}
	for _, c := range checks {
		if !c.hit {
			// The miss is also counted in the in-memory field-error cache,
			// which never persists across runs (that is the retry gate's
			// job). Nothing in the run reads that count back; the breaker
			// below keeps its own counters.
			r.gate.RecordFieldMiss(c.field, url)
		}
		if tripped, reason := r.fieldBr.Record(c.field, c.hit); tripped {
			r.persistAlert("critical_field_error", c.field, 0, 0, reason)
			return true, ErrCircuitBreakerTripped
		}
	}

	isPartial := false
	for _, f := range r.task.Parser.PartialRequiredFields() {
		if f == "layout" {
			isPartial = true
		}
	}
	hasLayout := d.Layout != ""
	if isPartial {
		if r.layout.record(hasLayout) {
			r.persistAlert("layout_missing_rate", "layout", r.layout.misses, r.layout.attempts,
				fmt.Sprintf("layout missing-rate exceeded tolerance over %d attempts", r.layout.attempts))
			return true, ErrCircuitBreakerTripped
		}
	} else if tripped, reason := r.fieldBr.Record("layout", hasLayout); tripped {
		r.persistAlert("critical_field_error", "layout", 0, 0, reason)
		return true, ErrCircuitBreakerTripped
	}
	return false, nil
}

// resolveAndSave hands a validated, cross-checked detail record to the
// resolver and reconciler, then classifies the update for statistics.
func (r *run) resolveAndSave(tx *gorm.DB, row parser.ListRow, d parser.DetailRecord, resolvedName string) error {
	building, room, err := resolver.ResolveBuilding(tx, resolver.BuildingInput{
		SourceSite:         r.task.SourceSite,
		ExternalPropertyID: d.SitePropertyID,
		Name:               resolvedName,
		Address:            d.Address,
		BuiltYear:          optInt(d.HasBuiltYear, d.BuiltYear),
	})
	if err != nil && !errors.Is(err, resolver.ErrConflictingAddress) {
		return err
	}
	if errors.Is(err, resolver.ErrConflictingAddress) {
		r.stats.ConflictingAddress++
		r.o.Logger.Warn("conflicting address for %s: existing building binding kept", row.URL)
	}
	if building == nil {
		return fmt.Errorf("resolver: building resolution failed for %s", row.URL)
	}

	propResult, err := resolver.ResolveProperty(tx, building, resolver.PropertyInput{
		RoomNumber: room,
		Floor:      optInt(d.HasFloor, d.Floor),
		Area:       optFloat(d.HasArea, d.Area),
		Layout:     d.Layout,
		Direction:  d.Direction,
	})
	if err != nil {
		return err
	}

	upsertResult, err := resolver.UpsertListing(tx, propResult.Property.ID, resolver.ListingInput{
		SourceSite:          r.task.SourceSite,
		SitePropertyID:      d.SitePropertyID,
		URL:                 row.URL,
		Title:               d.Title,
		AgencyName:          d.AgencyName,
		Description:         d.Description,
		StationInfo:         d.StationInfo,
		Features:            d.Features,
		Price:               d.Price,
		ManagementFee:       optInt(d.HasManagementFee, d.ManagementFee),
		RepairFund:          optInt(d.HasRepairFund, d.RepairFund),
		ListingFloor:        optInt(d.HasFloor, d.Floor),
		ListingArea:         optFloat(d.HasArea, d.Area),
		ListingLayout:       d.Layout,
		ListingDirection:    d.Direction,
		ListingTotalFloors:  optInt(d.HasTotalFloors, d.TotalFloors),
		ListingBalconyArea:  optFloat(d.HasBalconyArea, d.BalconyArea),
		ListingAddress:      d.Address,
		ListingBuildingName: resolvedName,
	}, time.Now())
	if err != nil {
		return err
	}

	if upsertResult.SuspiciousUpdate && r.o.Config.PreventNullUpdates {
		// PREVENT_NULL_UPDATES: a suspicious update is not counted toward
		// the guard. The resolver has already applied it, so the existing
		// value is not preserved.
	} else if r.suspicious.Record(upsertResult.SuspiciousUpdate) {
		r.persistAlert("suspicious_update_streak", "", 0, 0, "suspicious update guard tripped")
		return ErrCircuitBreakerTripped
	}

	switch upsertResult.Type {
	case resolver.UpdateNew:
		r.stats.New++
	case resolver.UpdatePriceUpdated:
		r.stats.PriceUpdated++
	case resolver.UpdateOtherUpdates:
		r.stats.OtherUpdates++
	case resolver.UpdateRefetchedUnchanged:
		r.stats.RefetchedUnchanged++
	}

	if err := resolver.ReconcileMasterProperty(tx, propResult.Property.ID); err != nil {
		return err
	}
	return resolver.ReconcileBuilding(tx, building.ID)
}

func optInt(has bool, v int) *int {
	if !has {
		return nil
	}
	return &v
}

func optFloat(has bool, v float64) *float64 {
	if !has {
		return nil
	}
	return &v
}

// delistAbsent implements the N=1 delisting cadence: any active
// listing for this source site absent from this run's collected rows flips
// to is_active=false.
func (r *run) delistAbsent() error {
	active, err := resolver.ActiveSitePropertyIDs(r.o.DB, r.task.SourceSite)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(r.collectedRows))
	for _, row := range r.collectedRows {
		seen[row.SitePropertyID] = true
	}
	now := time.Now()
	for sitePropertyID, id := range active {
		if seen[sitePropertyID] {
			continue
		}
		var l models.PropertyListing
		if err := r.o.DB.First(&l, id).Error; err != nil {
			continue
		}
		if err := resolver.Delist(r.o.DB, &l, now); err != nil {
			return err
		}
		r.stats.Delisted++
	}
	return nil
}

func (r *run) persistAlert(alertType, field string, errorCount int, _ int, message string) {
	alert := models.ScraperAlert{
		SourceSite: r.task.SourceSite,
		AlertType:  alertType,
		FieldName:  field,
		ErrorCount: errorCount,
		Message:    message,
	}
	if err := r.o.DB.Create(&alert).Error; err != nil {
		r.o.Logger.Error("failed to persist scraper alert: %v", err)
	}
}

// batchCommitter wraps the "transactions committed every 10 processed
// listings and at task end" policy.
type batchCommitter struct {
	db    *gorm.DB
	tx    *gorm.DB
	count int
}

func newBatchCommitter(db *gorm.DB) *batchCommitter { return &batchCommitter{db: db} }

func (b *batchCommitter) begin() error {
	b.tx = b.db.Begin()
	return b.tx.Error
}

func (b *batchCommitter) maybeCommit() error {
	b.count++
	if b.count%10 != 0 {
		return nil
	}
	if err := b.tx.Commit().Error; err != nil {
		return err
	}
	return b.begin()
}

func (b *batchCommitter) finish() error {
	if b.tx == nil {
		return nil
	}
	return b.tx.Commit().Error
}

func (b *batchCommitter) commitPartial() {
	if b.tx != nil {
		b.tx.Commit()
	}
}

func (b *batchCommitter) rollback() {
	if b.tx != nil {
		b.tx.Rollback()
	}
}
