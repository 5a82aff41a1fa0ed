package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"autoria_scraper/config"
	"autoria_scraper/metrics"
	"autoria_scraper/models"
)

// ErrRunInProgress is returned when Run is triggered while another run is
// still going.
var ErrRunInProgress = errors.New("scrape run already in progress")

// RunRecorder keeps the operational history of runs. storage.SQLiteStore
// implements it.
type RunRecorder interface {
	CreateRun(run *models.ScrapeRun) (int64, error)
	UpdateRun(run *models.ScrapeRun) error
	Log(runID *int64, level models.LogLevel, message, siteID string) error
}

// Orchestrator runs one full pass: crawl every search page, then extract and
// store every listing found with at most cfg.Scraper.Concurrency extractions
// in flight.
type Orchestrator struct {
	cfg       *config.Config
	source    URLSource
	extractor Extractor
	store     ListingStore
	recorder  RunRecorder
	metrics   *metrics.Metrics

	running sync.Mutex
	paused  atomic.Bool
}

func NewOrchestrator(cfg *config.Config, source URLSource, extractor Extractor, store ListingStore) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		source:    source,
		extractor: extractor,
		store:     store,
	}
}

// SetRecorder attaches the run history store. Without one, progress only
// goes to the log.
func (o *Orchestrator) SetRecorder(recorder RunRecorder) {
	o.recorder = recorder
}

// SetMetrics attaches Prometheus counters. A nil value disables them.
func (o *Orchestrator) SetMetrics(m *metrics.Metrics) {
	o.metrics = m
}

type runStats struct {
	saved   atomic.Int64
	skipped atomic.Int64
	errors  atomic.Int64
}

func (o *Orchestrator) Run(ctx context.Context) error {
	if o.paused.Load() {
		log.Println("Scraper is paused, skipping run")
		return nil
	}
	if !o.running.TryLock() {
		return ErrRunInProgress
	}
	defer o.running.Unlock()

	run := &models.ScrapeRun{
		Key:       uuid.New(),
		SiteID:    o.cfg.Site.ID,
		StartedAt: time.Now(),
		Status:    models.RunStatusRunning,
	}
	o.startRun(run)

	stats := &runStats{}
	defer o.finishRun(run, stats)

	if err := o.store.EnsureSchema(ctx); err != nil {
		run.Status = models.RunStatusFailed
		o.log(run, models.LogLevelError, fmt.Sprintf("Store not ready: %v", err))
		return fmt.Errorf("ensure schema: %w", err)
	}

	urls, err := o.source.Crawl(ctx, o.cfg.Scraper.BaseURL, o.cfg.Scraper.MaxPages)
	if err != nil {
		run.Status = models.RunStatusFailed
		o.log(run, models.LogLevelError, fmt.Sprintf("Search crawl failed: %v", err))
		return fmt.Errorf("crawl: %w", err)
	}

	urls = uniqueURLs(urls)
	run.URLsFound = len(urls)
	o.metrics.SetURLsFound(len(urls))
	o.log(run, models.LogLevelInfo, fmt.Sprintf("Total car urls found: %d", len(urls)))

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.Scraper.Concurrency)
	for _, listingURL := range urls {
		g.Go(func() error {
			return o.processListing(ctx, listingURL, stats)
		})
	}

	if err := g.Wait(); err != nil {
		run.Status = models.RunStatusFailed
		return err
	}

	run.Status = models.RunStatusCompleted
	return nil
}

func (o *Orchestrator) processListing(ctx context.Context, listingURL string, stats *runStats) error {
	done := o.metrics.ExtractionStarted()
	listing := o.extractor.Extract(ctx, listingURL)
	done()
	if listing == nil {
		stats.skipped.Add(1)
		o.metrics.Listing(metrics.ResultSkipped)
		return nil
	}

	if err := o.store.UpsertByURL(ctx, listing); err != nil {
		stats.errors.Add(1)
		o.metrics.Listing(metrics.ResultError)
		log.Printf("Upsert error for %s: %v", listingURL, err)
		return fmt.Errorf("upsert %s: %w", listingURL, err)
	}

	stats.saved.Add(1)
	o.metrics.Listing(metrics.ResultSaved)
	return nil
}

func (o *Orchestrator) startRun(run *models.ScrapeRun) {
	if o.recorder != nil {
		id, err := o.recorder.CreateRun(run)
		if err != nil {
			log.Printf("Warning: failed to record run: %v", err)
		} else {
			run.ID = id
		}
	}
	o.log(run, models.LogLevelInfo, fmt.Sprintf("Starting scrape run %s", run.Key))
}

func (o *Orchestrator) finishRun(run *models.ScrapeRun, stats *runStats) {
	now := time.Now()
	run.FinishedAt = &now
	run.ListingsSaved = int(stats.saved.Load())
	run.ListingsSkipped = int(stats.skipped.Load())
	run.ErrorsCount = int(stats.errors.Load())
	o.metrics.RunFinished(string(run.Status), now.Sub(run.StartedAt))

	level := models.LogLevelInfo
	if run.Status == models.RunStatusFailed {
		level = models.LogLevelError
	}
	o.log(run, level, fmt.Sprintf("Run %s %s in %s: %d urls, %d saved, %d skipped, %d errors",
		run.Key, run.Status, now.Sub(run.StartedAt).Round(time.Second),
		run.URLsFound, run.ListingsSaved, run.ListingsSkipped, run.ErrorsCount))

	if o.recorder != nil && run.ID != 0 {
		if err := o.recorder.UpdateRun(run); err != nil {
			log.Printf("Warning: failed to update run: %v", err)
		}
	}
}

func (o *Orchestrator) log(run *models.ScrapeRun, level models.LogLevel, message string) {
	log.Printf("[%s] %s: %s", level, run.SiteID, message)
	if o.recorder == nil {
		return
	}
	var runID *int64
	if run.ID != 0 {
		runID = &run.ID
	}
	o.recorder.Log(runID, level, message, run.SiteID)
}

func (o *Orchestrator) Pause() {
	o.paused.Store(true)
	log.Println("Scraper paused")
}

func (o *Orchestrator) Resume() {
	o.paused.Store(false)
	log.Println("Scraper resumed")
}

func (o *Orchestrator) IsPaused() bool {
	return o.paused.Load()
}

// uniqueURLs drops repeated URLs, keeping first occurrences in order.
func uniqueURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
