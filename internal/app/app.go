package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	httpapi "leadmarket-backend/internal/api/http"
	"leadmarket-backend/internal/cache"
	"leadmarket-backend/internal/config"
	"leadmarket-backend/internal/domain"
	"leadmarket-backend/internal/jobs"
	"leadmarket-backend/internal/logger"
	"leadmarket-backend/internal/metrics"
	"leadmarket-backend/internal/notification"
	"leadmarket-backend/internal/repository"
	"leadmarket-backend/internal/repository/memory"
	"leadmarket-backend/internal/repository/postgres"
	"leadmarket-backend/internal/security"
	"leadmarket-backend/internal/service"
)

// App is the fully wired backend shared by the server and cronjob binaries.
type App struct {
	Config       *config.Config
	Registry     *prometheus.Registry
	Metrics      *metrics.Metrics
	TokenManager security.TokenManager
	Services     httpapi.Services
	Dispatcher   *notification.Dispatcher
	Jobs         *jobs.JobRunner

	accounts repository.AccountRepository
	closers  []func() error
}

type repos struct {
	tx            repository.Transactor
	accounts      repository.AccountRepository
	leads         repository.LeadRepository
	purchases     repository.PurchaseRepository
	ledger        repository.LedgerRepository
	notifications repository.NotificationRepository
	dispatch      repository.DispatchRepository
}

// New opens storage and the cache, then builds every service. The
// dispatcher is built but not started.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &App{
		Config:       cfg,
		Registry:     reg,
		Metrics:      metrics.New(reg),
		TokenManager: security.NewTokenManager(cfg.JWT.Secret, cfg.AccessTokenTTL()),
	}

	r, err := a.openRepos(ctx)
	if err != nil {
		return nil, err
	}
	a.accounts = r.accounts
	c := a.openCache(ctx)

	var emailSvc service.EmailService
	if cfg.Email.Enabled {
		logger.Info("Email via SendGrid", "from", cfg.Email.From)
		emailSvc = service.NewSendGridEmailService(cfg.Email.APIKey, cfg.Email.From, cfg.Email.FromName)
	} else {
		logger.Info("Email disabled, messages will only be logged")
		emailSvc = service.NewLogEmailService()
	}

	notificationSvc := service.NewNotificationService(r.notifications, r.accounts, r.leads, emailSvc)
	a.Dispatcher = notification.NewDispatcher(notificationSvc, r.dispatch, notification.Config{
		Workers:     cfg.Dispatcher.Workers,
		QueueSize:   cfg.Dispatcher.QueueSize,
		MaxRetries:  cfg.Dispatcher.MaxRetries,
		BaseBackoff: cfg.DispatcherBackoff(),
	}, a.Metrics)

	ledgerSvc := service.NewLedgerService(r.tx, r.ledger, r.accounts, c, emailSvc, cfg.Email.AlertTo, a.Metrics)
	a.Services = httpapi.Services{
		Accounts:      service.NewAccountService(r.accounts, ledgerSvc, a.TokenManager),
		Leads:         service.NewLeadService(r.leads, c, cfg.LeadExpiry(), a.Metrics),
		Purchases:     service.NewPurchaseService(r.tx, r.purchases, r.accounts, ledgerSvc, a.Dispatcher, c, a.Metrics),
		Deposits:      service.NewDepositService(r.tx, ledgerSvc, a.Dispatcher, c, a.Metrics),
		Ledger:        ledgerSvc,
		Notifications: notificationSvc,
	}

	a.Jobs = jobs.NewJobRunner(&jobs.Services{
		Ledger:        ledgerSvc,
		Leads:         a.Services.Leads,
		Notifications: a.Dispatcher,
	}, cfg)
	return a, nil
}

func (a *App) openRepos(ctx context.Context) (*repos, error) {
	cfg := a.Config.Database
	if cfg.Driver == "memory" {
		logger.Warn("Using in-memory storage, data is lost on restart")
		s := memory.NewStore()
		return &repos{
			tx:            s,
			accounts:      s.AccountRepository,
			leads:         s.LeadRepository,
			purchases:     s.PurchaseRepository,
			ledger:        s.LedgerRepository,
			notifications: s.NotificationRepository,
			dispatch:      s.DispatchRepository,
		}, nil
	}

	logger.Info("Connecting to database...", "host", cfg.Host, "port", cfg.Port, "database", cfg.Database, "user", cfg.User)
	db, err := sql.Open("postgres", a.Config.GetDatabaseConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	logger.Info("Database connection established")

	s := postgres.NewStore(db)
	if cfg.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("Database schema applied")
	}
	return &repos{
		tx:            s,
		accounts:      s.AccountRepository,
		leads:         s.LeadRepository,
		purchases:     s.PurchaseRepository,
		ledger:        s.LedgerRepository,
		notifications: s.NotificationRepository,
		dispatch:      s.DispatchRepository,
	}, nil
}

// openCache returns nil when redis is disabled. An unreachable redis is
// logged and kept: lookups then degrade to misses.
func (a *App) openCache(ctx context.Context) *cache.Cache {
	cfg := a.Config.Redis
	if !cfg.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unreachable, cache lookups will miss", "addr", cfg.Addr, "error", err)
	} else {
		logger.Info("Redis connection established", "addr", cfg.Addr, "ttl", a.Config.CacheTTL())
	}
	a.closers = append(a.closers, client.Close)
	return cache.New(client, a.Config.CacheTTL(), a.Metrics)
}

// Handler returns the HTTP API including /metrics.
func (a *App) Handler() http.Handler {
	return httpapi.NewRouter(a.Services, a.TokenManager, a.Metrics, a.Registry)
}

// BootstrapAdmin creates the configured administrator if it does not exist.
func (a *App) BootstrapAdmin(ctx context.Context) error {
	admin := a.Config.Admin
	if admin.Email == "" || admin.Password == "" {
		return nil
	}
	account, err := a.Services.Accounts.Register(ctx, admin.Email, "Administrator", admin.Password, domain.AccountRoleAdmin)
	if errors.Is(err, domain.ErrEmailTaken) {
		logger.Debug("Admin account already exists", "email", admin.Email)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create admin account: %w", err)
	}
	logger.Info("Admin account created", "accountID", account.ID, "email", account.Email)
	return nil
}

// Close releases the database and redis connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
