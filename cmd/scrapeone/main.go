// Command scrapeone is a manual harness for running a single orchestrator
// task against one site and area from the command line, without the cron
// scheduler. Useful for backfills, debugging a single source site, or
// verifying a parser change before it goes into the daily run.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"real-estate-portal/internal/config"
	"real-estate-portal/internal/database"
	"real-estate-portal/internal/fetch"
	"real-estate-portal/internal/obslog"
	"real-estate-portal/internal/orchestrator"
	"real-estate-portal/internal/parser"
	"real-estate-portal/internal/parser/sites"
	"real-estate-portal/internal/ratelimit"
)

func main() {
	var (
		site               = flag.String("site", "suumo", "source site: suumo, homes, athome, livable, nomu")
		area               = flag.String("area", "13", "area code passed to the site's BuildListURL")
		maxPages           = flag.Int("max-pages", 0, "page cap for this run (0 = config default)")
		maxProperties      = flag.Int("max-properties", 0, "property cap for this run (0 = unbounded)")
		forceDetailFetch   = flag.Bool("force-detail-fetch", false, "fetch detail pages even when refetch-interval/gate logic would skip")
		ignoreErrorHistory = flag.Bool("ignore-error-history", false, "bypass the retry gate without writing to it")
		configPath         = flag.String("config", getEnv("CONFIG_PATH", "/app/config/scraper_config.yaml"), "path to the YAML config file")
	)
	flag.Parse()

	p := resolveSite(*site)
	if p == nil {
		log.Fatalf("scrapeone: unknown site %q", *site)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Printf("scrapeone: failed to load config from %s: %v, using defaults", *configPath, err)
		cfg = config.DefaultConfig()
	}

	mysqlCfg := cfg.Database.MySQL
	db, err := database.Open(
		getEnv("DB_HOST", orDefault(mysqlCfg.Host, "mysql")),
		getEnv("DB_PORT", "3306"),
		getEnv("DB_USER", orDefault(mysqlCfg.User, "realestate_user")),
		getEnv("DB_PASSWORD", orDefault(mysqlCfg.Password, "realestate_pass")),
		getEnv("DB_NAME", orDefault(mysqlCfg.Database, "realestate_db")),
	)
	if err != nil {
		log.Fatalf("scrapeone: failed to connect to database: %v", err)
	}
	if err := database.InitSchema(db); err != nil {
		log.Fatalf("scrapeone: failed to migrate schema: %v", err)
	}

	baseFetcher := fetch.New(
		fetch.WithTimeout(cfg.Scraper.GetTimeout()),
		fetch.WithRetries(cfg.Scraper.MaxRetries, cfg.Scraper.GetRetryDelay()),
		fetch.WithPolitenessDelay(cfg.Scraper.GetRequestDelay()),
	)
	// homes renders its list pages' __SERVER_SIDE_CONTEXT__ blob client-side,
	// so its list-page fetch goes through a headless browser; every other
	// site and every detail fetch use the plain HTTP client.
	var fetcher orchestrator.Fetcher = baseFetcher
	if *site == "homes" {
		fetcher = fetch.NewChromeFetcher(baseFetcher, getEnv("SCRAPER_CHROME_PATH", ""))
	}
	if cfg.RateLimit.Enabled {
		fetcher = ratelimit.NewGlobalFetcher(fetcher, cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.RequestsPerHour, 0)
	}
	if cfg.Orchestrator.SmartScraping {
		fetcher = ratelimit.NewSmartFetcher(fetcher, *site,
			cfg.Orchestrator.SmartDayPerHour, cfg.Orchestrator.SmartNightPerHour, cfg.Orchestrator.SmartDefaultPerHour)
	}

	orch := orchestrator.New(db, fetcher, cfg.Orchestrator, obslog.New("scrapeone"))

	pages := *maxPages
	if pages == 0 {
		pages = cfg.Orchestrator.MaxPages
	}

	task := orchestrator.Task{
		ID:                 *site + "-" + *area + "-manual",
		SourceSite:          p.SourceSite(),
		Parser:              p,
		AreaCode:            *area,
		MaxPages:            pages,
		MaxProperties:       *maxProperties,
		ForceDetailFetch:    *forceDetailFetch,
		IgnoreErrorHistory:  *ignoreErrorHistory,
		Control:             orchestrator.NewControl(),
		Progress: func(s orchestrator.Snapshot) {
			log.Printf("scrapeone: progress phase=%s found=%d processed=%d new=%d price_updated=%d errors=%d",
				s.Phase, s.Stats.PropertiesFound, s.Stats.PropertiesProcessed, s.Stats.New, s.Stats.PriceUpdated, s.Stats.Errors)
		},
	}

	stats, err := orch.Run(context.Background(), task)
	if err != nil {
		log.Fatalf("scrapeone: run failed: %v", err)
	}

	log.Printf("scrapeone: run complete: found=%d processed=%d new=%d price_updated=%d other_updates=%d "+
		"refetched_unchanged=%d delisted=%d errors=%d conflicting_address=%d",
		stats.PropertiesFound, stats.PropertiesProcessed, stats.New, stats.PriceUpdated, stats.OtherUpdates,
		stats.RefetchedUnchanged, stats.Delisted, stats.Errors, stats.ConflictingAddress)
}

func resolveSite(name string) parser.Parser {
	switch name {
	case "suumo":
		return sites.NewSUUMO()
	case "homes":
		return sites.NewHomes()
	case "athome":
		return sites.NewAtHome()
	case "livable":
		return sites.NewLivable()
	case "nomu":
		return sites.NewNomu()
	default:
		return nil
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
