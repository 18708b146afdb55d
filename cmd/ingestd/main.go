// Command ingestd is the long-running ingestion daemon: it loads
// configuration, opens the MySQL-backed database, wires the orchestrator and
// its fetch client, and starts the cron-driven scheduler. There is no REST
// surface here; operators trigger and inspect runs via logs and the database
// tables the scheduler/orchestrator write to.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"real-estate-portal/internal/config"
	"real-estate-portal/internal/database"
	"real-estate-portal/internal/fetch"
	"real-estate-portal/internal/obslog"
	"real-estate-portal/internal/orchestrator"
	"real-estate-portal/internal/ratelimit"
	"real-estate-portal/internal/scheduler"
)

func main() {
	configPath := getEnv("CONFIG_PATH", "/app/config/scraper_config.yaml")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Printf("ingestd: failed to load config from %s: %v, using defaults", configPath, err)
		cfg = config.DefaultConfig()
	}

	mysqlCfg := cfg.Database.MySQL
	db, err := database.Open(
		getEnvOrConfig(mysqlCfg.Host, "DB_HOST", "mysql"),
		getEnvOrConfigInt(mysqlCfg.Port, "DB_PORT", "3306"),
		getEnvOrConfig(mysqlCfg.User, "DB_USER", "realestate_user"),
		getEnvOrConfig(mysqlCfg.Password, "DB_PASSWORD", "realestate_pass"),
		getEnvOrConfig(mysqlCfg.Database, "DB_NAME", "realestate_db"),
	)
	if err != nil {
		log.Fatalf("ingestd: failed to connect to database: %v", err)
	}
	if err := database.InitSchema(db); err != nil {
		log.Fatalf("ingestd: failed to migrate schema: %v", err)
	}

	baseFetcher := fetch.New(
		fetch.WithTimeout(cfg.Scraper.GetTimeout()),
		fetch.WithRetries(cfg.Scraper.MaxRetries, cfg.Scraper.GetRetryDelay()),
		fetch.WithPolitenessDelay(cfg.Scraper.GetRequestDelay()),
	)
	// All sites share one process-wide fetcher: the daily scheduler fans
	// every configured site out concurrently (scheduler.RunAllSites). homes
	// renders its list pages' __SERVER_SIDE_CONTEXT__ blob client-side, so
	// its Get goes through a headless browser; every other site's Get and
	// every site's GetDetail stay plain HTTP.
	var fetcher orchestrator.Fetcher = fetch.NewHybridFetcher(baseFetcher, getEnv("SCRAPER_CHROME_PATH", ""), "homes.co.jp")
	if cfg.RateLimit.Enabled {
		fetcher = ratelimit.NewGlobalFetcher(fetcher, cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.RequestsPerHour, 0)
	}
	if cfg.Orchestrator.SmartScraping {
		// SCRAPER_SMART_SCRAPING's adaptive detail-page pacing bounds this
		// process's total outbound request rate, not one site's.
		fetcher = ratelimit.NewSmartFetcher(fetcher, "ingestd",
			cfg.Orchestrator.SmartDayPerHour, cfg.Orchestrator.SmartNightPerHour, cfg.Orchestrator.SmartDefaultPerHour)
	}

	logger := obslog.New("ingestd")
	orch := orchestrator.New(db, fetcher, cfg.Orchestrator, logger)
	sched := scheduler.NewScheduler(db, cfg, orch)

	if err := sched.Start(); err != nil {
		log.Fatalf("ingestd: failed to start scheduler: %v", err)
	}
	log.Println("ingestd: started")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Println("ingestd: shutting down")
	sched.Stop()
	time.Sleep(500 * time.Millisecond)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvOrConfig(configValue, envKey, defaultValue string) string {
	if configValue != "" {
		return configValue
	}
	return getEnv(envKey, defaultValue)
}

func getEnvOrConfigInt(configValue int, envKey, defaultValue string) string {
	if configValue > 0 {
		return strconv.Itoa(configValue)
	}
	return getEnv(envKey, defaultValue)
}
