package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"

	RendererPlaywright = "playwright"
	RendererChromedp   = "chromedp"
)

type Config struct {
	Postgres  PostgresConfig
	Scheduler SchedulerConfig
	Scraper   ScraperConfig
	Dump      DumpConfig
	Site      *SiteConfig

	// ListingStore selects where listings are upserted: postgres or sqlite.
	ListingStore string
	// DBPath is the SQLite file holding runs, logs and commands.
	DBPath  string
	LogPath string
	// MetricsAddr is the listen address for /metrics. Empty disables it.
	MetricsAddr string
}

type PostgresConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	DB       string
	SSLMode  string
}

// ConnString returns URL when set, otherwise builds one from the parts.
func (p PostgresConfig) ConnString() string {
	if p.URL != "" {
		return p.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.DB,
		RawQuery: "sslmode=" + p.SSLMode,
	}
	return u.String()
}

type SchedulerConfig struct {
	ScrapeTime string
	DumpTime   string
	Timezone   string
	Cron       string
	Interval   time.Duration
}

type ScraperConfig struct {
	BaseURL        string
	MaxPages       int
	Concurrency    int
	Renderer       string
	Headless       bool
	ProxyURL       string
	DetailTimeout  time.Duration
	ContactTimeout time.Duration
	PageTimeout    time.Duration
	// RequestRate caps API requests per second across all workers. Zero
	// disables the cap.
	RequestRate float64
}

type DumpConfig struct {
	Dir               string
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// SiteConfig describes the one site the scraper targets. Values come from
// YAML so selectors and endpoints can change without a rebuild.
type SiteConfig struct {
	ID            string            `yaml:"id"`
	Name          string            `yaml:"name"`
	Origin        string            `yaml:"origin"`
	UserAgent     string            `yaml:"user_agent"`
	TitleSelector string            `yaml:"title_selector"`
	LangID        int               `yaml:"lang_id"`
	Endpoints     map[string]string `yaml:"endpoints"`
}

// Endpoint returns the named endpoint or an empty string.
func (s *SiteConfig) Endpoint(name string) string {
	if s == nil || s.Endpoints == nil {
		return ""
	}
	return s.Endpoints[name]
}

func DefaultSite() *SiteConfig {
	return &SiteConfig{
		ID:            "auto_ria",
		Name:          "AUTO.RIA",
		Origin:        "https://auto.ria.com",
		UserAgent:     "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36",
		TitleSelector: "div.common-text.size-16-20.titleS.fw-bold.mb-4",
		LangID:        4,
		Endpoints: map[string]string{
			"detail":  "https://auto.ria.com/bff/final-page/public/%d?langId=4&device=desktop-web&ssr=0",
			"contact": "https://auto.ria.com/bff/final-page/public/auto/popUp/",
		},
	}
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Postgres: PostgresConfig{
			URL:      os.Getenv("DATABASE_URL"),
			Host:     getEnv("POSTGRES_HOST", "db"),
			Port:     getEnvInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "auto_ria_user"),
			Password: getEnv("POSTGRES_PASSWORD", "auto_ria_password"),
			DB:       getEnv("POSTGRES_DB", "auto_ria"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		Scheduler: SchedulerConfig{
			ScrapeTime: getEnv("SCRAPE_TIME", "12:00"),
			DumpTime:   getEnv("DUMP_TIME", "23:55"),
			Timezone:   getEnv("TIMEZONE", "Europe/Kyiv"),
			Cron:       os.Getenv("SCRAPE_CRON"),
			Interval:   getEnvDuration("SCRAPE_INTERVAL", 0),
		},
		Scraper: ScraperConfig{
			BaseURL:        getEnv("AUTO_RIA_BASE_URL", "https://auto.ria.com/uk/search/?indexName=auto&limit=100&page=0"),
			MaxPages:       getEnvInt("SCRAPE_MAX_PAGES", 0),
			Concurrency:    getEnvInt("SCRAPE_CONCURRENCY", 5),
			Renderer:       getEnv("RENDERER", RendererPlaywright),
			Headless:       getEnvBool("HEADLESS", true),
			ProxyURL:       os.Getenv("PROXY_URL"),
			DetailTimeout:  getEnvDuration("DETAIL_TIMEOUT", 15*time.Second),
			ContactTimeout: getEnvDuration("CONTACT_TIMEOUT", 10*time.Second),
			PageTimeout:    getEnvDuration("PAGE_TIMEOUT", 30*time.Second),
			RequestRate:    getEnvFloat("REQUEST_RATE", 0),
		},
		Dump: DumpConfig{
			Dir:               getEnv("DUMP_DIR", "/app/dumps"),
			S3Bucket:          os.Getenv("DUMP_S3_BUCKET"),
			S3Region:          getEnv("DUMP_S3_REGION", "us-east-1"),
			S3Endpoint:        os.Getenv("DUMP_S3_ENDPOINT"),
			S3AccessKeyID:     os.Getenv("DUMP_S3_ACCESS_KEY_ID"),
			S3SecretAccessKey: os.Getenv("DUMP_S3_SECRET_ACCESS_KEY"),
		},
		ListingStore: getEnv("LISTING_STORE", StorePostgres),
		DBPath:       getEnv("DB_PATH", "scraper.db"),
		LogPath:      getEnv("LOG_PATH", "daemon.log"),
		MetricsAddr:  os.Getenv("METRICS_ADDR"),
	}

	site, err := LoadSite(getEnv("SITE_CONFIG", "config/sites/auto_ria.yaml"))
	if err != nil {
		return nil, err
	}
	cfg.Site = site

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadSite reads a site definition from path. A missing file yields the
// built-in defaults; fields left empty in the file are filled from them.
func LoadSite(path string) (*SiteConfig, error) {
	site := DefaultSite()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return site, nil
		}
		return nil, err
	}

	var fromFile SiteConfig
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if fromFile.ID != "" {
		site.ID = fromFile.ID
	}
	if fromFile.Name != "" {
		site.Name = fromFile.Name
	}
	if fromFile.Origin != "" {
		site.Origin = strings.TrimRight(fromFile.Origin, "/")
	}
	if fromFile.UserAgent != "" {
		site.UserAgent = fromFile.UserAgent
	}
	if fromFile.TitleSelector != "" {
		site.TitleSelector = fromFile.TitleSelector
	}
	if fromFile.LangID != 0 {
		site.LangID = fromFile.LangID
	}
	for name, endpoint := range fromFile.Endpoints {
		site.Endpoints[name] = endpoint
	}

	return site, nil
}

func (c *Config) Validate() error {
	if _, _, err := ParseClock(c.Scheduler.ScrapeTime); err != nil {
		return fmt.Errorf("SCRAPE_TIME: %w", err)
	}
	if _, _, err := ParseClock(c.Scheduler.DumpTime); err != nil {
		return fmt.Errorf("DUMP_TIME: %w", err)
	}
	if c.Scraper.Concurrency <= 0 {
		return fmt.Errorf("SCRAPE_CONCURRENCY must be positive, got %d", c.Scraper.Concurrency)
	}
	if c.Scraper.RequestRate < 0 {
		return fmt.Errorf("REQUEST_RATE must not be negative, got %v", c.Scraper.RequestRate)
	}
	if c.Scraper.MaxPages < 0 {
		return fmt.Errorf("SCRAPE_MAX_PAGES must not be negative, got %d", c.Scraper.MaxPages)
	}
	switch c.ListingStore {
	case StorePostgres, StoreSQLite:
	default:
		return fmt.Errorf("unknown LISTING_STORE: %s", c.ListingStore)
	}
	switch c.Scraper.Renderer {
	case RendererPlaywright, RendererChromedp:
	default:
		return fmt.Errorf("unknown RENDERER: %s", c.Scraper.Renderer)
	}
	if c.Site == nil || c.Site.Endpoint("detail") == "" || c.Site.Endpoint("contact") == "" {
		return fmt.Errorf("site config is missing detail or contact endpoint")
	}
	return nil
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (hour, minute int, err error) {
	hourStr, minuteStr, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	hour, err = strconv.Atoi(hourStr)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("bad hour in %q", s)
	}
	minute, err = strconv.Atoi(minuteStr)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("bad minute in %q", s)
	}
	return hour, minute, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
