package models

import "time"

// Url404Retry records a detail fetch that returned HTTP 404, gating future
// fetches of the same URL until the back-off window elapses.
type Url404Retry struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SourceSite   string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_404_url,priority:1" json:"source_site"`
	URL          string    `gorm:"type:varchar(500);not null;uniqueIndex:idx_404_url,priority:2" json:"url"`
	ErrorCount   int       `gorm:"not null;default:1" json:"error_count"`
	LastErrorAt  time.Time `gorm:"not null" json:"last_error_at"`
}

func (Url404Retry) TableName() string { return "url_404_retries" }

// ValidationErrorRetry records a detail fetch whose extracted record failed
// the required-fields contract, keyed additionally by error_type so
// distinct validation failures on the same URL back off independently.
type ValidationErrorRetry struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SourceSite   string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_validation_url,priority:1" json:"source_site"`
	URL          string    `gorm:"type:varchar(500);not null;uniqueIndex:idx_validation_url,priority:2" json:"url"`
	ErrorType    string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_validation_url,priority:3" json:"error_type"`
	ErrorDetails string    `gorm:"type:text" json:"error_details,omitempty"`
	ErrorCount   int       `gorm:"not null;default:1" json:"error_count"`
	LastErrorAt  time.Time `gorm:"not null" json:"last_error_at"`
}

func (ValidationErrorRetry) TableName() string { return "url_validation_error_retries" }

// PriceMismatchRetry records a list-vs-detail price disagreement, suppressing
// re-visits of the listing for SCRAPER_PRICE_MISMATCH_RETRY_DAYS.
type PriceMismatchRetry struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SourceSite     string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_pricemismatch,priority:1" json:"source_site"`
	SitePropertyID string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_pricemismatch,priority:2" json:"site_property_id"`
	PropertyURL    string    `gorm:"type:varchar(500);not null" json:"property_url"`
	ListPrice      int       `gorm:"not null" json:"list_price"`
	DetailPrice    int       `gorm:"not null" json:"detail_price"`
	AttemptedAt    time.Time `gorm:"not null" json:"attempted_at"`
	RetryAfter     time.Time `gorm:"not null" json:"retry_after"`
	IsResolved     bool      `gorm:"not null;default:false" json:"is_resolved"`
}

func (PriceMismatchRetry) TableName() string { return "price_mismatch_history" }

// ScraperAlert is a persisted circuit-breaker or maintenance-abort record.
type ScraperAlert struct {
	ID         uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SourceSite string     `gorm:"type:varchar(50);not null;index" json:"source_site"`
	AlertType  string     `gorm:"type:varchar(50);not null" json:"alert_type"`
	FieldName  string     `gorm:"type:varchar(50)" json:"field_name,omitempty"`
	ErrorCount int        `gorm:"not null;default:0" json:"error_count"`
	ErrorRate  float64    `gorm:"type:decimal(5,4)" json:"error_rate,omitempty"`
	Message    string     `gorm:"type:text" json:"message"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	IsResolved bool       `gorm:"not null;default:false" json:"is_resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

func (ScraperAlert) TableName() string { return "scraper_alerts" }

// JobExecutionLog is an optional record of one orchestrator run, for the
// outer scheduler.
type JobExecutionLog struct {
	ID         uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TaskID     string     `gorm:"type:varchar(100);not null;index" json:"task_id"`
	SourceSite string     `gorm:"type:varchar(50);not null" json:"source_site"`
	AreaCode   string     `gorm:"type:varchar(50)" json:"area_code,omitempty"`
	Phase      string     `gorm:"type:varchar(20)" json:"phase"`
	StartedAt  time.Time  `gorm:"not null" json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Outcome    string     `gorm:"type:varchar(50)" json:"outcome,omitempty"`
	StatsJSON  string     `gorm:"type:text" json:"stats_json,omitempty"`
}

func (JobExecutionLog) TableName() string { return "job_execution_log" }
