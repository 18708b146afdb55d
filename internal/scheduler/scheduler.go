// Package scheduler is the outer cron-driven trigger over the orchestrator:
// one daily job that fans out one task per configured source site, run
// concurrently via goroutines. Adapted from a cron.Cron-based daily
// scheduler, retargeted from per-property re-scraping to per-site
// orchestrator runs.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"real-estate-portal/internal/config"
	"real-estate-portal/internal/models"
	"real-estate-portal/internal/orchestrator"
	"real-estate-portal/internal/parser"
	"real-estate-portal/internal/parser/sites"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// Scheduler drives a daily orchestrator run across every configured site.
type Scheduler struct {
	cron      *cron.Cron
	db        *gorm.DB
	orch      *orchestrator.Orchestrator
	config    *config.Config
	isRunning bool
}

// NewScheduler creates a new scheduler bound to orch.
func NewScheduler(db *gorm.DB, cfg *config.Config, orch *orchestrator.Orchestrator) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		db:     db,
		orch:   orch,
		config: cfg,
	}
}

// allSites returns one Parser per configured source site, in the fixed
// registration order so logs and job_execution_log rows are stable.
func allSites() []parser.Parser {
	return []parser.Parser{
		sites.NewSUUMO(),
		sites.NewHomes(),
		sites.NewAtHome(),
		sites.NewLivable(),
		sites.NewNomu(),
	}
}

// Start registers the daily job if enabled in configuration.
func (s *Scheduler) Start() error {
	if !s.config.Scraper.DailyRunEnabled {
		log.Println("Scheduler: daily run is disabled in configuration")
		return nil
	}

	cronSpec := s.parseDailyRunTime(s.config.Scraper.DailyRunTime)
	_, err := s.cron.AddFunc(cronSpec, func() {
		log.Println("Scheduler: starting daily scrape job")
		s.RunAllSites(context.Background())
		log.Println("Scheduler: daily scrape job finished")
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.isRunning = true
	log.Printf("Scheduler: started with daily run at %s (cron: %s)", s.config.Scraper.DailyRunTime, cronSpec)
	return nil
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	if s.isRunning {
		s.cron.Stop()
		s.isRunning = false
		log.Println("Scheduler: stopped")
	}
}

// RunAllSites runs one orchestrator task per configured source site
// concurrently, logging a job_execution_log row per task.
func (s *Scheduler) RunAllSites(ctx context.Context) {
	var wg sync.WaitGroup
	for _, p := range allSites() {
		area, ok := s.config.Scraper.AreaCodes[p.SourceSite()]
		if !ok || area == "" {
			log.Printf("Scheduler: no area code configured for %s, skipping", p.SourceSite())
			continue
		}
		wg.Add(1)
		go func(p parser.Parser, area string) {
			defer wg.Done()
			s.runOne(ctx, p, area)
		}(p, area)
	}
	wg.Wait()
}

func (s *Scheduler) runOne(ctx context.Context, p parser.Parser, area string) {
	startedAt := time.Now()
	taskID := fmt.Sprintf("%s-%s-%d", p.SourceSite(), area, startedAt.UnixNano())
	jobLog := models.JobExecutionLog{
		TaskID:     taskID,
		SourceSite: p.SourceSite(),
		AreaCode:   area,
		Phase:      "collecting",
		StartedAt:  startedAt,
	}
	if err := s.db.Create(&jobLog).Error; err != nil {
		log.Printf("Scheduler: failed to create job_execution_log for %s: %v", p.SourceSite(), err)
	}

	task := orchestrator.Task{
		ID:         taskID,
		SourceSite: p.SourceSite(),
		Parser:     p,
		AreaCode:   area,
		Control:    orchestrator.NewControl(),
	}

	stats, err := s.orch.Run(ctx, task)
	outcome := "completed"
	if err != nil {
		outcome = "error: " + err.Error()
		log.Printf("Scheduler: %s run failed: %v", p.SourceSite(), err)
	} else {
		log.Printf("Scheduler: %s run completed: found=%d processed=%d new=%d price_updated=%d errors=%d",
			p.SourceSite(), stats.PropertiesFound, stats.PropertiesProcessed, stats.New, stats.PriceUpdated, stats.Errors)
	}

	finishedAt := time.Now()
	statsJSON, _ := json.Marshal(stats)
	if err := s.db.Model(&jobLog).Updates(map[string]any{
		"phase":       "completed",
		"finished_at": &finishedAt,
		"outcome":     outcome,
		"stats_json":  string(statsJSON),
	}).Error; err != nil {
		log.Printf("Scheduler: failed to finalize job_execution_log for %s: %v", p.SourceSite(), err)
	}
}

// RunNow immediately triggers every configured site (manual trigger).
func (s *Scheduler) RunNow() {
	log.Println("Scheduler: manual trigger, starting scrape job")
	s.RunAllSites(context.Background())
}

// parseDailyRunTime converts HH:MM to a five-field cron expression, e.g.
// "02:00" -> "0 2 * * *".
func (s *Scheduler) parseDailyRunTime(timeStr string) string {
	var hour, minute int
	n, _ := fmt.Sscanf(timeStr, "%d:%d", &hour, &minute)
	if n == 2 {
		return fmt.Sprintf("%d %d * * *", minute, hour)
	}
	log.Printf("Scheduler: failed to parse time %q, using default 02:00", timeStr)
	return "0 2 * * *"
}
