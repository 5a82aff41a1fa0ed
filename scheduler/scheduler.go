package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"autoria_scraper/config"
	"autoria_scraper/models"
	"autoria_scraper/scraper"
)

// Runner is one full scrape pass. scraper.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context) error
	Pause()
	Resume()
}

// Dumper writes a database snapshot. services.DumpService implements it.
type Dumper interface {
	Dump(ctx context.Context) (string, error)
}

// CommandQueue is the operator command table. storage.SQLiteStore
// implements it.
type CommandQueue interface {
	GetPendingCommands() ([]models.Command, error)
	MarkCommandProcessed(id int64) error
}

const defaultPollInterval = 2 * time.Second

type Scheduler struct {
	cfg      *config.SchedulerConfig
	runner   Runner
	dumper   Dumper
	commands CommandQueue
	cron     *cron.Cron
	ticker   *time.Ticker
	stopCh   chan struct{}
	stopOnce sync.Once

	pollInterval time.Duration
}

func New(cfg *config.SchedulerConfig, runner Runner, dumper Dumper, commands CommandQueue) (*Scheduler, error) {
	loc, err := LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		cfg:      cfg,
		runner:   runner,
		dumper:   dumper,
		commands: commands,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		stopCh:       make(chan struct{}),
		pollInterval: defaultPollInterval,
	}, nil
}

// LoadLocation resolves an IANA zone name. Europe/Kyiv falls back to its
// older spelling Europe/Kiev on systems with outdated zone data.
func LoadLocation(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc, nil
	}
	if name == "Europe/Kyiv" {
		if loc, kievErr := time.LoadLocation("Europe/Kiev"); kievErr == nil {
			return loc, nil
		}
	}
	return nil, fmt.Errorf("load timezone %q: %w", name, err)
}

// DailySpec turns "HH:MM" into a five-field cron expression firing once a
// day at that wall-clock time.
func DailySpec(clock string) (string, error) {
	hour, minute, err := config.ParseClock(clock)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.scheduleScrape(ctx); err != nil {
		return err
	}

	if s.dumper != nil && s.cfg.DumpTime != "" {
		spec, err := DailySpec(s.cfg.DumpTime)
		if err != nil {
			return fmt.Errorf("invalid dump time: %w", err)
		}
		if _, err := s.cron.AddFunc(spec, func() { s.dump(ctx) }); err != nil {
			return fmt.Errorf("schedule dump: %w", err)
		}
		log.Printf("Daily dump scheduled at %s (%s)", s.cfg.DumpTime, s.cfg.Timezone)
	}

	s.cron.Start()

	if s.commands != nil {
		go s.pollCommands(ctx)
	}
	return nil
}

// scheduleScrape registers the scrape job. SCRAPE_CRON wins over
// SCRAPE_INTERVAL, which wins over the daily SCRAPE_TIME.
func (s *Scheduler) scheduleScrape(ctx context.Context) error {
	switch {
	case s.cfg.Cron != "":
		if _, err := s.cron.AddFunc(s.cfg.Cron, func() { s.scrape(ctx) }); err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		log.Printf("Starting scheduler with cron: %s", s.cfg.Cron)
	case s.cfg.Interval > 0:
		log.Printf("Starting scheduler with interval: %s", s.cfg.Interval)
		s.ticker = time.NewTicker(s.cfg.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					s.scrape(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	case s.cfg.ScrapeTime != "":
		spec, err := DailySpec(s.cfg.ScrapeTime)
		if err != nil {
			return fmt.Errorf("invalid scrape time: %w", err)
		}
		if _, err := s.cron.AddFunc(spec, func() { s.scrape(ctx) }); err != nil {
			return fmt.Errorf("schedule scrape: %w", err)
		}
		log.Printf("Daily scrape scheduled at %s (%s)", s.cfg.ScrapeTime, s.cfg.Timezone)
	default:
		log.Println("No scrape schedule configured, daemon will only respond to commands")
	}
	return nil
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		<-s.cron.Stop().Done()
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
	})
}

func (s *Scheduler) scrape(ctx context.Context) {
	err := s.runner.Run(ctx)
	if errors.Is(err, scraper.ErrRunInProgress) {
		log.Println("Previous scrape still running, skipping")
		return
	}
	if err != nil {
		log.Printf("Scheduled run error: %v", err)
	}
}

func (s *Scheduler) dump(ctx context.Context) {
	if _, err := s.dumper.Dump(ctx); err != nil {
		log.Printf("Dump error: %v", err)
	}
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processCommands(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) processCommands(ctx context.Context) {
	cmds, err := s.commands.GetPendingCommands()
	if err != nil {
		log.Printf("Error getting commands: %v", err)
		return
	}

	for _, cmd := range cmds {
		log.Printf("Processing command: %s", cmd.Command)
		if err := s.handleCommand(ctx, &cmd); err != nil {
			log.Printf("Command error: %v", err)
		}
		if err := s.commands.MarkCommandProcessed(cmd.ID); err != nil {
			log.Printf("Error marking command processed: %v", err)
		}
	}
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) error {
	switch cmd.Command {
	case models.CmdScrapeNow:
		go s.scrape(ctx)
	case models.CmdDumpNow:
		if s.dumper == nil {
			return fmt.Errorf("dump not configured")
		}
		go s.dump(ctx)
	case models.CmdPause:
		s.runner.Pause()
	case models.CmdResume:
		s.runner.Resume()
	default:
		return fmt.Errorf("unknown command: %s", cmd.Command)
	}
	return nil
}
