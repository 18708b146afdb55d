// Package retrygate implements the error-history / retry gate: a
// persistent, per-URL and per-(site, id) back-off that makes detail fetches
// and re-visits skip-safe in the face of repeated 404s, validation misses,
// and price mismatches.
package retrygate

import (
	"sync"
	"time"

	"real-estate-portal/internal/models"

	"gorm.io/gorm"
)

// Back-off schedule by error_count: 1 -> 2h; <=3 -> 24h; <=5 -> 72h;
// otherwise 168h.
func backoffFor(errorCount int) time.Duration {
	switch {
	case errorCount <= 1:
		return 2 * time.Hour
	case errorCount <= 3:
		return 24 * time.Hour
	case errorCount <= 5:
		return 72 * time.Hour
	default:
		return 168 * time.Hour
	}
}

// Gate is the retry gate for one task run. IgnoreHistory bypasses all gates
// and skips writing new records (dry-run style). ForceDetailFetch bypasses
// the gate for the detail-fetch decision only; failures are still recorded.
type Gate struct {
	db                 *gorm.DB
	priceMismatchDays  int
	ignoreHistory      bool
	forceDetailFetch   bool

	mu             sync.Mutex
	fieldErrCache  map[string]int // field_name|url -> miss count, in-memory only
}

// Option configures a Gate.
type Option func(*Gate)

func WithIgnoreHistory(ignore bool) Option {
	return func(g *Gate) { g.ignoreHistory = ignore }
}

func WithForceDetailFetch(force bool) Option {
	return func(g *Gate) { g.forceDetailFetch = force }
}

func WithPriceMismatchRetryDays(days int) Option {
	return func(g *Gate) {
		if days > 0 {
			g.priceMismatchDays = days
		}
	}
}

// New constructs a Gate bound to db, with a 7-day default price-mismatch
// retry window (overridable via WithPriceMismatchRetryDays, itself fed by
// the SCRAPER_PRICE_MISMATCH_RETRY_DAYS environment variable).
func New(db *gorm.DB, opts ...Option) *Gate {
	g := &Gate{db: db, priceMismatchDays: 7, fieldErrCache: make(map[string]int)}
	for _, o := range opts {
		o(g)
	}
	return g
}

// ShouldSkipDetailFetch consults the 404 and validation retry tables for
// (sourceSite, url). It returns (skip, reason). ForceDetailFetch bypasses
// this check entirely; IgnoreHistory also bypasses it (and, via Record*,
// never writes new rows).
func (g *Gate) ShouldSkipDetailFetch(sourceSite, url string) (bool, string) {
	if g.ignoreHistory || g.forceDetailFetch {
		return false, ""
	}

	var r404 models.Url404Retry
	if err := g.db.Where("source_site = ? AND url = ?", sourceSite, url).First(&r404).Error; err == nil {
		if time.Since(r404.LastErrorAt) < backoffFor(r404.ErrorCount) {
			return true, "404_retry_window"
		}
	}

	var rVal models.ValidationErrorRetry
	if err := g.db.Where("source_site = ? AND url = ?", sourceSite, url).Order("last_error_at desc").First(&rVal).Error; err == nil {
		if time.Since(rVal.LastErrorAt) < backoffFor(rVal.ErrorCount) {
			return true, "validation_retry_window"
		}
	}

	return false, ""
}

// ShouldSkipPriceMismatchRevisit reports whether (sourceSite, sitePropertyID)
// is still inside its price-mismatch cooldown window.
func (g *Gate) ShouldSkipPriceMismatchRevisit(sourceSite, sitePropertyID string) (bool, string) {
	if g.ignoreHistory {
		return false, ""
	}
	var r models.PriceMismatchRetry
	err := g.db.Where("source_site = ? AND site_property_id = ? AND is_resolved = ?", sourceSite, sitePropertyID, false).
		Order("attempted_at desc").First(&r).Error
	if err != nil {
		return false, ""
	}
	if time.Now().Before(r.RetryAfter) {
		return true, "price_mismatch_retry_window"
	}
	return false, ""
}

// RecordHTTP404 upserts the 404-retry record for (sourceSite, url),
// incrementing its error_count. A no-op under IgnoreHistory.
func (g *Gate) RecordHTTP404(sourceSite, url string) error {
	if g.ignoreHistory {
		return nil
	}
	var r models.Url404Retry
	err := g.db.Where("source_site = ? AND url = ?", sourceSite, url).First(&r).Error
	now := time.Now()
	if err == gorm.ErrRecordNotFound {
		return g.db.Create(&models.Url404Retry{SourceSite: sourceSite, URL: url, ErrorCount: 1, LastErrorAt: now}).Error
	} else if err != nil {
		return err
	}
	return g.db.Model(&r).Updates(map[string]any{"error_count": r.ErrorCount + 1, "last_error_at": now}).Error
}

// RecordValidationError upserts the validation-retry record for
// (sourceSite, url, errorType). A no-op under IgnoreHistory.
func (g *Gate) RecordValidationError(sourceSite, url, errorType, details string) error {
	if g.ignoreHistory {
		return nil
	}
	var r models.ValidationErrorRetry
	err := g.db.Where("source_site = ? AND url = ? AND error_type = ?", sourceSite, url, errorType).First(&r).Error
	now := time.Now()
	if err == gorm.ErrRecordNotFound {
		return g.db.Create(&models.ValidationErrorRetry{
			SourceSite: sourceSite, URL: url, ErrorType: errorType,
			ErrorDetails: details, ErrorCount: 1, LastErrorAt: now,
		}).Error
	} else if err != nil {
		return err
	}
	return g.db.Model(&r).Updates(map[string]any{"error_count": r.ErrorCount + 1, "last_error_at": now, "error_details": details}).Error
}

// RecordPriceMismatch inserts a PriceMismatchRetry row gating future visits
// for priceMismatchDays.
func (g *Gate) RecordPriceMismatch(sourceSite, sitePropertyID, url string, listPrice, detailPrice int) error {
	if g.ignoreHistory {
		return nil
	}
	now := time.Now()
	return g.db.Create(&models.PriceMismatchRetry{
		SourceSite: sourceSite, SitePropertyID: sitePropertyID, PropertyURL: url,
		ListPrice: listPrice, DetailPrice: detailPrice,
		AttemptedAt: now, RetryAfter: now.Add(time.Duration(g.priceMismatchDays) * 24 * time.Hour),
	}).Error
}

// RecordFieldMiss increments the in-memory, per-run field-error cache and
// returns the new count. It is never persisted, and it does not feed the
// orchestrator's circuit breaker, which keeps its own counters.
func (g *Gate) RecordFieldMiss(fieldName, url string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := fieldName + "|" + url
	g.fieldErrCache[key]++
	return g.fieldErrCache[key]
}

// FieldMissCount reads the in-memory field-miss count without incrementing it.
func (g *Gate) FieldMissCount(fieldName, url string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fieldErrCache[fieldName+"|"+url]
}
