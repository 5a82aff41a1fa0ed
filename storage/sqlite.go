package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"autoria_scraper/models"
)

// SQLiteStore holds the daemon's local state: run history, logs and the
// command queue. It can also hold the cars table when LISTING_STORE=sqlite.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db, path: dbPath, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path is the database file on disk.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scrape_runs (
		id INTEGER PRIMARY KEY,
		run_key TEXT,
		site_id TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		urls_found INTEGER,
		listings_saved INTEGER,
		listings_skipped INTEGER,
		errors_count INTEGER
	);

	CREATE TABLE IF NOT EXISTS scrape_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		site_id TEXT
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_logs_run ON scrape_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON scrape_runs(status, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// Runs and logs
// =============================================================================

func (s *SQLiteStore) CreateRun(run *models.ScrapeRun) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO scrape_runs (run_key, site_id, started_at, status, urls_found,
			listings_saved, listings_skipped, errors_count)
		VALUES (?, ?, ?, ?, 0, 0, 0, 0)`,
		run.Key.String(), run.SiteID, run.StartedAt, run.Status)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) UpdateRun(run *models.ScrapeRun) error {
	_, err := s.db.Exec(`
		UPDATE scrape_runs SET finished_at = ?, status = ?, urls_found = ?,
			listings_saved = ?, listings_skipped = ?, errors_count = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.URLsFound,
		run.ListingsSaved, run.ListingsSkipped, run.ErrorsCount, run.ID)
	return err
}

func (s *SQLiteStore) GetRun(id int64) (*models.ScrapeRun, error) {
	row := s.db.QueryRow(`
		SELECT id, run_key, site_id, started_at, finished_at, status, urls_found,
			listings_saved, listings_skipped, errors_count
		FROM scrape_runs WHERE id = ?`, id)

	var run models.ScrapeRun
	var key string
	err := row.Scan(&run.ID, &key, &run.SiteID, &run.StartedAt, &run.FinishedAt, &run.Status,
		&run.URLsFound, &run.ListingsSaved, &run.ListingsSkipped, &run.ErrorsCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := run.Key.UnmarshalText([]byte(key)); err != nil {
		return nil, fmt.Errorf("run %d key: %w", id, err)
	}
	return &run, nil
}

func (s *SQLiteStore) Log(runID *int64, level models.LogLevel, message, siteID string) error {
	_, err := s.db.Exec(`
		INSERT INTO scrape_logs (run_id, timestamp, level, message, site_id)
		VALUES (?, ?, ?, ?, ?)`,
		runID, s.now(), level, message, siteID)
	return err
}

func (s *SQLiteStore) GetLogs(runID int64) ([]models.ScrapeLog, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, timestamp, level, message, site_id
		FROM scrape_logs WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	return scanLogs(rows)
}

// RecentRuns returns the latest runs, newest first.
func (s *SQLiteStore) RecentRuns(limit int) ([]models.ScrapeRun, error) {
	rows, err := s.db.Query(`
		SELECT id, run_key, site_id, started_at, finished_at, status, urls_found,
			listings_saved, listings_skipped, errors_count
		FROM scrape_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.ScrapeRun
	for rows.Next() {
		var run models.ScrapeRun
		var key string
		if err := rows.Scan(&run.ID, &key, &run.SiteID, &run.StartedAt, &run.FinishedAt, &run.Status,
			&run.URLsFound, &run.ListingsSaved, &run.ListingsSkipped, &run.ErrorsCount); err != nil {
			return nil, err
		}
		run.Key, _ = uuid.Parse(key)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RecentLogs returns the latest log lines, newest first. A nil level
// returns every level.
func (s *SQLiteStore) RecentLogs(limit int, level *models.LogLevel) ([]models.ScrapeLog, error) {
	var rows *sql.Rows
	var err error
	if level != nil {
		rows, err = s.db.Query(`
			SELECT id, run_id, timestamp, level, message, site_id
			FROM scrape_logs WHERE level = ? ORDER BY id DESC LIMIT ?`, *level, limit)
	} else {
		rows, err = s.db.Query(`
			SELECT id, run_id, timestamp, level, message, site_id
			FROM scrape_logs ORDER BY id DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, err
	}
	return scanLogs(rows)
}

func scanLogs(rows *sql.Rows) ([]models.ScrapeLog, error) {
	defer rows.Close()

	var logs []models.ScrapeLog
	for rows.Next() {
		var l models.ScrapeLog
		if err := rows.Scan(&l.ID, &l.RunID, &l.Timestamp, &l.Level, &l.Message, &l.SiteID); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// =============================================================================
// Commands
// =============================================================================

func (s *SQLiteStore) EnqueueCommand(cmd models.CommandType) (int64, error) {
	result, err := s.db.Exec(`INSERT INTO commands (command, created_at) VALUES (?, ?)`, cmd, s.now())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, created_at, processed_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		if err := rows.Scan(&cmd.ID, &cmd.Command, &cmd.CreatedAt, &cmd.ProcessedAt); err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, s.now(), id)
	return err
}

// =============================================================================
// Listings
// =============================================================================

// EnsureSchema creates the cars table. It mirrors the Postgres layout with
// SQLite types.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS cars (
			id INTEGER PRIMARY KEY,
			url TEXT UNIQUE NOT NULL,
			title TEXT,
			price_usd REAL,
			odometer INTEGER,
			username TEXT,
			phone_number TEXT,
			image_url TEXT,
			images_count INTEGER,
			car_number TEXT,
			car_vin TEXT,
			datetime_found DATETIME
		)`)
	if err != nil {
		return fmt.Errorf("create cars table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpsertByURL(ctx context.Context, l *models.Listing) error {
	foundAt := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cars (url, title, price_usd, odometer, username, phone_number,
			image_url, images_count, car_number, car_vin, datetime_found)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			title = excluded.title,
			price_usd = excluded.price_usd,
			odometer = excluded.odometer,
			username = excluded.username,
			phone_number = excluded.phone_number,
			image_url = excluded.image_url,
			images_count = excluded.images_count,
			car_number = excluded.car_number,
			car_vin = excluded.car_vin,
			datetime_found = excluded.datetime_found`,
		l.URL, l.Title, l.PriceUSD, l.Odometer, l.SellerName, l.Phone,
		l.ImageURL, l.ImagesCount, l.PlateNumber, l.VIN, foundAt)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", l.URL, err)
	}
	l.FoundAt = foundAt
	return nil
}

func (s *SQLiteStore) GetByURL(ctx context.Context, url string) (*models.Listing, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT url, title, price_usd, odometer, username, phone_number,
			image_url, images_count, car_number, car_vin, datetime_found
		FROM cars WHERE url = ?`, url)

	var l models.Listing
	err := row.Scan(&l.URL, &l.Title, &l.PriceUSD, &l.Odometer, &l.SellerName, &l.Phone,
		&l.ImageURL, &l.ImagesCount, &l.PlateNumber, &l.VIN, &l.FoundAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *SQLiteStore) CountListings(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cars`).Scan(&n)
	return n, err
}
