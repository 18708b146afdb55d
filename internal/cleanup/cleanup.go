// Package cleanup performs retention-window purges of the retry-gate and
// alert bookkeeping tables. PropertyListing rows are never deleted here:
// delisting is a state change (is_active=false), not a deletion, so listing
// and price-history data persists indefinitely. Only the transient
// error-tracking rows that back retrygate and the orchestrator's circuit
// breakers are eligible for physical deletion once they are old enough to
// no longer influence any back-off decision.
package cleanup

import (
	"fmt"
	"log"
	"time"

	"real-estate-portal/internal/models"

	"gorm.io/gorm"
)

// Service handles physical deletion of expired retry-gate and alert rows.
type Service struct {
	db *gorm.DB
}

// NewService creates a new cleanup service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Config holds configuration for a cleanup run.
type Config struct {
	RetentionDays    int  // age, from last_error_at/created_at, before a row is eligible
	MaxDeletionCount int  // safety limit per table per run
	DryRun           bool // if true, only count what would be deleted
}

// DefaultConfig returns the package's baseline retention settings.
func DefaultConfig() Config {
	return Config{
		RetentionDays:    90,
		MaxDeletionCount: 10000,
		DryRun:           false,
	}
}

// Result holds the outcome of one cleanup run, broken down per table.
type Result struct {
	ExecutedAt        time.Time `json:"executed_at"`
	DryRun            bool      `json:"dry_run"`
	URL404Deleted     int64     `json:"url_404_deleted"`
	ValidationDeleted int64     `json:"validation_deleted"`
	PriceMismatchDeleted int64  `json:"price_mismatch_deleted"`
	AlertsDeleted     int64     `json:"alerts_deleted"`
	Errors            []string  `json:"errors,omitempty"`
}

// Run purges rows older than config.RetentionDays from the four retry-gate
// and alert tables. Resolved PriceMismatchRetry and ScraperAlert rows are
// purged unconditionally past the window; unresolved ones are kept since
// they may still gate a future visit or need an operator's attention.
func (s *Service) Run(config Config) (*Result, error) {
	result := &Result{ExecutedAt: time.Now(), DryRun: config.DryRun}
	cutoff := time.Now().AddDate(0, 0, -config.RetentionDays)

	if n, err := s.purge(&models.Url404Retry{}, "last_error_at < ?", cutoff, config); err != nil {
		result.Errors = append(result.Errors, err.Error())
	} else {
		result.URL404Deleted = n
	}

	if n, err := s.purge(&models.ValidationErrorRetry{}, "last_error_at < ?", cutoff, config); err != nil {
		result.Errors = append(result.Errors, err.Error())
	} else {
		result.ValidationDeleted = n
	}

	if n, err := s.purge(&models.PriceMismatchRetry{}, "is_resolved = ? AND attempted_at < ?", cutoff, config, true); err != nil {
		result.Errors = append(result.Errors, err.Error())
	} else {
		result.PriceMismatchDeleted = n
	}

	if n, err := s.purge(&models.ScraperAlert{}, "is_resolved = ? AND created_at < ?", cutoff, config, true); err != nil {
		result.Errors = append(result.Errors, err.Error())
	} else {
		result.AlertsDeleted = n
	}

	log.Printf("cleanup: 404=%d validation=%d price_mismatch=%d alerts=%d dry_run=%v",
		result.URL404Deleted, result.ValidationDeleted, result.PriceMismatchDeleted, result.AlertsDeleted, config.DryRun)
	return result, nil
}

// purge counts and, unless config.DryRun, deletes rows of model matching
// query/args, enforcing config.MaxDeletionCount as a safety ceiling.
func (s *Service) purge(model any, query string, cutoff time.Time, config Config, extraArgs ...any) (int64, error) {
	args := append([]any{}, extraArgs...)
	args = append(args, cutoff)

	var count int64
	if err := s.db.Model(model).Where(query, args...).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("cleanup: count failed: %w", err)
	}
	if count == 0 || config.DryRun {
		return count, nil
	}
	if count > int64(config.MaxDeletionCount) {
		return 0, fmt.Errorf("cleanup: %d rows exceed max deletion limit of %d", count, config.MaxDeletionCount)
	}
	if err := s.db.Where(query, args...).Delete(model).Error; err != nil {
		return 0, fmt.Errorf("cleanup: delete failed: %w", err)
	}
	return count, nil
}

// Stats reports current row counts for operator visibility.
func (s *Service) Stats() (map[string]int64, error) {
	stats := make(map[string]int64)
	for name, model := range map[string]any{
		"url_404_retries":        &models.Url404Retry{},
		"validation_error_retries": &models.ValidationErrorRetry{},
		"price_mismatch_retries": &models.PriceMismatchRetry{},
		"scraper_alerts":         &models.ScraperAlert{},
	} {
		var n int64
		if err := s.db.Model(model).Count(&n).Error; err != nil {
			return nil, err
		}
		stats[name] = n
	}
	return stats, nil
}
