package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	httpadapter "croaudit/internal/adapters/http"
	"croaudit/internal/adapters/memory"
	pg "croaudit/internal/adapters/postgres"
	"croaudit/internal/adapters/rediscache"
	"croaudit/internal/adapters/screenshot"
	"croaudit/internal/config"
	"croaudit/internal/logger"
	"croaudit/internal/ports"
	"croaudit/internal/revenue"
	"croaudit/internal/services/auditor"
	"croaudit/internal/services/contacts"
	"croaudit/internal/workers/scanrunner"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, logFile := logger.NewWithFile(cfg.Logging.Level, cfg.Logging.Format, logger.FileConfig{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if logFile != nil {
		defer logFile.Close()
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", map[string]interface{}{"error": err.Error()})
		_ = log.Sync()
		os.Exit(1)
	}
}

type repositories struct {
	sites    ports.SiteRepository
	sessions ports.SessionRepository
	reports  ports.ReportRepository
	contacts ports.ContactRepository
	close    func()
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	repos, err := openRepositories(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer repos.close()

	model := revenue.NewModel(catalogFor(cfg.Scan.Catalog),
		revenue.WithUpliftFactor(cfg.Scan.UpliftFactor),
		revenue.WithUpliftMode(revenue.UpliftMode(cfg.Scan.UpliftMode)),
	)

	schedOpts := []scanrunner.Option{
		scanrunner.WithClock(clockwork.NewRealClock()),
		scanrunner.WithTimeScale(cfg.Scan.TimeScale),
		scanrunner.WithIssueCounter(scanrunner.NewRandomIssueCounter(nil, cfg.Scan.IssueProbability)),
	}
	var serverOpts []httpadapter.Option
	if cfg.Screenshot.Enabled {
		shots, err := screenshot.New(screenshot.Config{
			BaseURL:   cfg.Screenshot.BaseURL,
			APIKey:    cfg.Screenshot.APIKey,
			Dimension: cfg.Screenshot.Dimension,
			Probe:     cfg.Screenshot.Probe,
			RateLimit: cfg.Screenshot.RateLimit,
			Timeout:   cfg.Screenshot.Timeout,
		}, nil)
		if err != nil {
			return err
		}
		schedOpts = append(schedOpts, scanrunner.WithScreenshotter(shots))
		serverOpts = append(serverOpts, httpadapter.WithScreenshots(shots))
	}

	audits := auditor.New(model, repos.sites, repos.sessions, repos.reports,
		auditor.WithMaxActive(cfg.Scan.MaxActive),
		auditor.WithSchedulerOptions(schedOpts...),
		auditor.WithLogger(log),
	)
	defer audits.Close()
	leads := contacts.New(repos.reports, repos.contacts, clockwork.NewRealClock(), log)

	srv := &http.Server{
		Addr:         cfg.HTTP.ListenAddr,
		Handler:      httpadapter.New(audits, leads, log, serverOpts...).Routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info("listening", map[string]interface{}{
		"addr":    cfg.HTTP.ListenAddr,
		"env":     cfg.App.Env,
		"catalog": cfg.Scan.Catalog,
	})

	select {
	case <-ctx.Done():
		log.Info("shutting down", nil)
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	audits.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openRepositories(ctx context.Context, cfg *config.Config, log logger.Logger) (*repositories, error) {
	var repos *repositories
	if cfg.Database.URL == "" {
		log.Warn("DATABASE_URL not set, using in-memory storage", nil)
		repos = &repositories{
			sites:    memory.NewSites(),
			sessions: memory.NewSessions(),
			reports:  memory.NewReports(),
			contacts: memory.NewContacts(),
			close:    func() {},
		}
	} else {
		db, err := pg.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		if cfg.Database.Migrate {
			if err := db.Migrate(ctx); err != nil {
				db.Close()
				return nil, fmt.Errorf("db migrate: %w", err)
			}
		}
		repos = &repositories{
			sites:    pg.NewSites(db),
			sessions: pg.NewSessions(db),
			reports:  pg.NewReports(db),
			contacts: pg.NewContacts(db),
			close:    db.Close,
		}
	}

	if cfg.Redis.Address == "" {
		return repos, nil
	}
	client := rediscache.NewClient(rediscache.Options{
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rediscache.Ping(ctx, client); err != nil {
		log.Warn("report cache disabled", map[string]interface{}{"error": err.Error()})
		_ = client.Close()
		return repos, nil
	}
	repos.reports = rediscache.NewReports(repos.reports, client, cfg.Redis.ReportTTL, log)
	closeStore := repos.close
	repos.close = func() {
		_ = client.Close()
		closeStore()
	}
	return repos, nil
}

func catalogFor(name string) revenue.Catalog {
	if name == config.CatalogTemplated {
		return revenue.TemplateCatalog{}
	}
	return revenue.StaticCatalog{}
}
