package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"autoria_scraper/config"
	"autoria_scraper/metrics"
	"autoria_scraper/models"
)

type stubSource struct {
	urls  []string
	err   error
	calls atomic.Int32
}

func (s *stubSource) Crawl(ctx context.Context, baseURL string, maxPages int) ([]string, error) {
	s.calls.Add(1)
	return s.urls, s.err
}

// trackingExtractor records how many extractions run at once.
type trackingExtractor struct {
	delay    time.Duration
	skip     func(url string) bool
	inFlight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
	release  chan struct{}
}

func (e *trackingExtractor) Extract(ctx context.Context, url string) *models.Listing {
	e.calls.Add(1)
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		peak := e.peak.Load()
		if n <= peak || e.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	if e.release != nil {
		<-e.release
	}
	time.Sleep(e.delay)

	if e.skip != nil && e.skip(url) {
		return nil
	}
	return &models.Listing{URL: url}
}

type memoryStore struct {
	mu        sync.Mutex
	rows      map[string]*models.Listing
	schemaErr error
	failURL   string
	attempts  atomic.Int32
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rows: make(map[string]*models.Listing)}
}

func (m *memoryStore) EnsureSchema(ctx context.Context) error {
	return m.schemaErr
}

func (m *memoryStore) UpsertByURL(ctx context.Context, l *models.Listing) error {
	m.attempts.Add(1)
	if l.URL == m.failURL {
		return errors.New("connection reset")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[l.URL] = l
	return nil
}

type recordedRun struct {
	created []models.ScrapeRun
	updated []models.ScrapeRun
	logs    []string
}

func (r *recordedRun) CreateRun(run *models.ScrapeRun) (int64, error) {
	r.created = append(r.created, *run)
	return int64(len(r.created)), nil
}

func (r *recordedRun) UpdateRun(run *models.ScrapeRun) error {
	r.updated = append(r.updated, *run)
	return nil
}

func (r *recordedRun) Log(runID *int64, level models.LogLevel, message, siteID string) error {
	r.logs = append(r.logs, message)
	return nil
}

func testConfig(concurrency int) *config.Config {
	return &config.Config{
		Site: config.DefaultSite(),
		Scraper: config.ScraperConfig{
			BaseURL:     searchBase,
			Concurrency: concurrency,
		},
	}
}

func carURLs(n int) []string {
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://auto.ria.com/uk/auto_car_%d.html", i+1)
	}
	return urls
}

func TestRun_ConcurrencyCeiling(t *testing.T) {
	source := &stubSource{urls: carURLs(20)}
	extractor := &trackingExtractor{delay: 20 * time.Millisecond}
	store := newMemoryStore()
	o := NewOrchestrator(testConfig(5), source, extractor, store)

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if peak := extractor.peak.Load(); peak > 5 {
		t.Fatalf("expected at most 5 extractions in flight, saw %d", peak)
	}
	if peak := extractor.peak.Load(); peak < 2 {
		t.Fatalf("expected extractions to overlap, peak was %d", peak)
	}
	if len(store.rows) != 20 {
		t.Fatalf("expected 20 stored listings, got %d", len(store.rows))
	}
}

func TestRun_DropsNilListingsAndDuplicates(t *testing.T) {
	urls := carURLs(4)
	urls = append(urls, urls[0], urls[1])
	source := &stubSource{urls: urls}
	extractor := &trackingExtractor{skip: func(url string) bool {
		return strings.HasSuffix(url, "_2.html")
	}}
	store := newMemoryStore()
	recorder := &recordedRun{}

	o := NewOrchestrator(testConfig(5), source, extractor, store)
	o.SetRecorder(recorder)

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if extractor.calls.Load() != 4 {
		t.Fatalf("expected each unique url extracted once, got %d", extractor.calls.Load())
	}
	if len(store.rows) != 3 {
		t.Fatalf("expected 3 stored listings, got %d", len(store.rows))
	}
	if _, ok := store.rows[urls[1]]; ok {
		t.Fatalf("expected skipped listing to be absent from store")
	}

	if len(recorder.created) != 1 || len(recorder.updated) != 1 {
		t.Fatalf("expected one run created and updated, got %d/%d", len(recorder.created), len(recorder.updated))
	}
	run := recorder.updated[0]
	if run.Status != models.RunStatusCompleted {
		t.Fatalf("expected completed run, got %s", run.Status)
	}
	if run.URLsFound != 4 || run.ListingsSaved != 3 || run.ListingsSkipped != 1 || run.ErrorsCount != 0 {
		t.Fatalf("unexpected run stats %+v", run)
	}
	if run.FinishedAt == nil {
		t.Fatalf("expected finished_at to be set")
	}
}

func TestRun_SchemaFailureStopsBeforeCrawl(t *testing.T) {
	source := &stubSource{urls: carURLs(3)}
	store := newMemoryStore()
	store.schemaErr = errors.New("permission denied")

	o := NewOrchestrator(testConfig(5), source, &trackingExtractor{}, store)
	err := o.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "permission denied") {
		t.Fatalf("expected schema error, got %v", err)
	}
	if source.calls.Load() != 0 {
		t.Fatalf("expected crawl to be skipped")
	}
}

func TestRun_CrawlError(t *testing.T) {
	source := &stubSource{err: errors.New("parse base url: bad")}
	extractor := &trackingExtractor{}
	o := NewOrchestrator(testConfig(5), source, extractor, newMemoryStore())

	if err := o.Run(context.Background()); err == nil {
		t.Fatalf("expected crawl error")
	}
	if extractor.calls.Load() != 0 {
		t.Fatalf("expected no extractions")
	}
}

func TestRun_UpsertErrorAfterAllAttempted(t *testing.T) {
	urls := carURLs(6)
	store := newMemoryStore()
	store.failURL = urls[2]
	recorder := &recordedRun{}

	o := NewOrchestrator(testConfig(2), &stubSource{urls: urls}, &trackingExtractor{}, store)
	o.SetRecorder(recorder)

	err := o.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), urls[2]) {
		t.Fatalf("expected upsert error naming %s, got %v", urls[2], err)
	}
	if store.attempts.Load() != 6 {
		t.Fatalf("expected every listing attempted, got %d", store.attempts.Load())
	}

	run := recorder.updated[0]
	if run.Status != models.RunStatusFailed || run.ErrorsCount != 1 || run.ListingsSaved != 5 {
		t.Fatalf("unexpected run %+v", run)
	}
}

func TestRun_EmptyCrawl(t *testing.T) {
	store := newMemoryStore()
	o := NewOrchestrator(testConfig(5), &stubSource{}, &trackingExtractor{}, store)
	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("expected empty run to succeed, got %v", err)
	}
	if store.attempts.Load() != 0 {
		t.Fatalf("expected no upserts")
	}
}

func TestRun_RejectsOverlappingRun(t *testing.T) {
	extractor := &trackingExtractor{release: make(chan struct{})}
	o := NewOrchestrator(testConfig(5), &stubSource{urls: carURLs(1)}, extractor, newMemoryStore())

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background()) }()

	deadline := time.After(2 * time.Second)
	for extractor.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("first run never started extracting")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if err := o.Run(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}

	close(extractor.release)
	if err := <-done; err != nil {
		t.Fatalf("first run failed: %v", err)
	}
}

func TestRun_Paused(t *testing.T) {
	source := &stubSource{urls: carURLs(2)}
	o := NewOrchestrator(testConfig(5), source, &trackingExtractor{}, newMemoryStore())

	o.Pause()
	if !o.IsPaused() {
		t.Fatalf("expected paused")
	}
	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("paused run should be a no-op, got %v", err)
	}
	if source.calls.Load() != 0 {
		t.Fatalf("expected no crawl while paused")
	}

	o.Resume()
	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if source.calls.Load() != 1 {
		t.Fatalf("expected crawl after resume")
	}
}

func TestUniqueURLs(t *testing.T) {
	got := uniqueURLs([]string{"a", "b", "a", "c", "b"})
	if strings.Join(got, ",") != "a,b,c" {
		t.Fatalf("expected a,b,c, got %v", got)
	}
}

func TestRun_RecordsMetrics(t *testing.T) {
	source := &stubSource{urls: carURLs(4)}
	extractor := &trackingExtractor{skip: func(url string) bool {
		return strings.HasSuffix(url, "_4.html")
	}}
	store := newMemoryStore()
	store.failURL = source.urls[0]

	m := metrics.New(prometheus.NewRegistry())
	o := NewOrchestrator(testConfig(2), source, extractor, store)
	o.SetMetrics(m)

	if err := o.Run(context.Background()); err == nil {
		t.Fatalf("expected upsert error")
	}

	checks := map[string]float64{
		metrics.ResultSaved:   2,
		metrics.ResultSkipped: 1,
		metrics.ResultError:   1,
	}
	for result, want := range checks {
		if got := testutil.ToFloat64(m.ListingsTotal.WithLabelValues(result)); got != want {
			t.Fatalf("expected %v %s listings, got %v", want, result, got)
		}
	}
	if got := testutil.ToFloat64(m.URLsFound); got != 4 {
		t.Fatalf("expected 4 urls found, got %v", got)
	}
	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues(string(models.RunStatusFailed))); got != 1 {
		t.Fatalf("expected one failed run, got %v", got)
	}
	if got := testutil.ToFloat64(m.ExtractionsRunning); got != 0 {
		t.Fatalf("expected no extractions in flight, got %v", got)
	}
}
