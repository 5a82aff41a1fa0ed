package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"autoria_scraper/config"
	"autoria_scraper/httputil"
	"autoria_scraper/logging"
	"autoria_scraper/metrics"
	"autoria_scraper/models"
	"autoria_scraper/scheduler"
	"autoria_scraper/scraper"
	"autoria_scraper/services"
	"autoria_scraper/storage"
	"autoria_scraper/tui"
)

var (
	scrapeNow = flag.Bool("scrape", false, "Run scrape once and exit")
	dumpNow   = flag.Bool("dump", false, "Write a database dump once and exit")
	enqueue   = flag.String("enqueue", "", "Queue a command for the running daemon: scrape_now, dump_now, pause, resume")
	monitor   = flag.Bool("monitor", false, "Open the terminal monitor for a running daemon")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *monitor {
		runMonitor(cfg.DBPath)
		return
	}

	logFile, err := logging.Setup(cfg.LogPath)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Printf("Starting autoria_scraper for %s (%s)", cfg.Site.Name, cfg.Site.ID)

	// SQLite holds runs, logs and the command queue
	sqliteStore, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}
	defer sqliteStore.Close()
	log.Printf("SQLite database: %s", cfg.DBPath)

	if *enqueue != "" {
		id, err := sqliteStore.EnqueueCommand(models.CommandType(*enqueue))
		if err != nil {
			log.Fatalf("Failed to queue command: %v", err)
		}
		log.Printf("Queued command %s (id %d)", *enqueue, id)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var listingStore scraper.ListingStore
	var dumper *services.DumpService
	switch cfg.ListingStore {
	case config.StoreSQLite:
		listingStore = sqliteStore
		dumper = services.NewSQLiteDump(cfg.Dump.Dir, cfg.DBPath)
		log.Println("Listings stored in SQLite")
	default:
		pgStore, err := storage.NewPostgresStore(ctx, cfg.Postgres.ConnString())
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer pgStore.Close()
		listingStore = pgStore
		dumper = services.NewPostgresDump(cfg.Dump.Dir, cfg.Postgres)
		log.Printf("Connected to Postgres: %s", maskConnectionString(cfg.Postgres.ConnString()))
	}

	if cfg.Dump.S3Bucket != "" {
		uploader, err := storage.NewS3Uploader(ctx, storage.S3Config{
			Bucket:          cfg.Dump.S3Bucket,
			Region:          cfg.Dump.S3Region,
			Endpoint:        cfg.Dump.S3Endpoint,
			AccessKeyID:     cfg.Dump.S3AccessKeyID,
			SecretAccessKey: cfg.Dump.S3SecretAccessKey,
		})
		if err != nil {
			log.Printf("Warning: dump upload disabled: %v", err)
		} else {
			dumper.SetUploader(uploader)
			log.Printf("Dumps will be uploaded to bucket %s", cfg.Dump.S3Bucket)
		}
	}

	if *dumpNow {
		path, err := dumper.Dump(ctx)
		if err != nil {
			log.Fatalf("Dump failed: %v", err)
		}
		log.Printf("Dump complete: %s", path)
		return
	}

	clients := httputil.NewClients(&cfg.Scraper)
	renderer := scraper.NewRenderer(&cfg.Scraper, cfg.Site)
	defer renderer.Close()
	log.Printf("Search pages rendered with %s (headless=%v)", cfg.Scraper.Renderer, cfg.Scraper.Headless)

	extractor := scraper.NewListingExtractor(
		scraper.NewDetailFetcher(clients.Detail, cfg.Site),
		scraper.NewContactResolver(clients.Contact, cfg.Site),
	)
	orchestrator := scraper.NewOrchestrator(cfg, scraper.NewSearchCrawler(renderer, cfg.Site), extractor, listingStore)
	orchestrator.SetRecorder(sqliteStore)

	if cfg.MetricsAddr != "" {
		m := metrics.New(nil)
		orchestrator.SetMetrics(m)
		go m.Serve(ctx, cfg.MetricsAddr)
	}

	// Handle one-shot commands
	if *scrapeNow {
		log.Println("Running scrape...")
		if err := orchestrator.Run(ctx); err != nil {
			log.Fatalf("Scrape failed: %v", err)
		}
		log.Println("Scrape complete!")
		return
	}

	// Daemon mode
	sched, err := scheduler.New(&cfg.Scheduler, orchestrator, dumper, sqliteStore)
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	cancel()
	sched.Stop()
	log.Println("Goodbye!")
}

// runMonitor keeps the standard logger off the terminal while the monitor
// owns the screen.
func runMonitor(dbPath string) {
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}
	defer store.Close()

	log.SetOutput(io.Discard)
	if err := tui.Run(store); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// maskConnectionString masks password in connection string for logging
func maskConnectionString(connStr string) string {
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	colonIdx := -1
	atIdx := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			atIdx = i
			break
		}
	}

	if colonIdx > 0 && atIdx > colonIdx {
		return connStr[:colonIdx+1] + "****" + connStr[atIdx:]
	}
	return connStr
}
