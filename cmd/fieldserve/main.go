package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/aquaops/fieldserve/pkg/api"
	"github.com/aquaops/fieldserve/pkg/auth"
	"github.com/aquaops/fieldserve/pkg/billing"
	"github.com/aquaops/fieldserve/pkg/config"
	"github.com/aquaops/fieldserve/pkg/gate"
	"github.com/aquaops/fieldserve/pkg/invitations"
	"github.com/aquaops/fieldserve/pkg/notify"
	"github.com/aquaops/fieldserve/pkg/oauth"
	"github.com/aquaops/fieldserve/pkg/observability"
	"github.com/aquaops/fieldserve/pkg/onboarding"
	"github.com/aquaops/fieldserve/pkg/orgs"
	"github.com/aquaops/fieldserve/pkg/pending"
	"github.com/aquaops/fieldserve/pkg/rbac"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fieldserve: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithField("addr", net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)).
		Info("starting fieldserve")

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return err
	}

	redisClient, err := openRedis(cfg.Redis)
	if err != nil {
		db.Close()
		return err
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	users := auth.NewPostgresUserStore(db)
	invites := invitations.NewPostgresStore(db)
	subs := billing.NewPostgresStore(db)
	orgService := orgs.NewPostgresService(db)
	pendingCache := pending.NewRedisCache(redisClient, cfg.Onboarding.PendingTTL)
	sessions := auth.NewSessionManager(redisClient, cfg.Onboarding.SessionTTL)
	checker := rbac.NewChecker(nil)
	mailer := notify.NewLogMailer(cfg.BaseURL, nil)

	orchestrator := onboarding.NewOrchestrator(pendingCache, invites, orgService,
		users, sessions, logger, metrics)

	var google *oauth.Google
	if cfg.OAuth.Enabled() {
		google, err = oauth.NewGoogle(context.Background(), oauth.Config{
			ClientID:     cfg.OAuth.GoogleClientID,
			ClientSecret: cfg.OAuth.GoogleClientSecret,
			RedirectURL:  cfg.OAuth.GoogleRedirectURL,
		})
		if err != nil {
			return fmt.Errorf("failed to configure google sign-in: %w", err)
		}
		logger.Info("google sign-in enabled")
	} else {
		logger.Warn("google sign-in not configured; oauth routes will answer 503")
	}

	rulesWatcher, err := config.NewGateRulesWatcher(cfg.Gate.RulesPath, logger)
	if err != nil {
		return fmt.Errorf("failed to load gate rules: %w", err)
	}
	subscriptionGate := buildGate(cfg, rulesWatcher.Rules(), orgService, subs, logger, metrics)
	rulesWatcher.OnChange(func(rules config.GateRules) {
		subscriptionGate.UpdateRules(rules.AllowedPathPrefixes,
			toRoles(rules.ExemptRoles), rules.ExemptEmails)
	})

	healthChecker := observability.NewHealthChecker(db, redisClient)

	deps := api.Deps{
		Users:         users,
		Sessions:      sessions,
		Orgs:          orgService,
		Subscriptions: subs,
		Invitations:   invites,
		Pending:       pendingCache,
		Orchestrator:  orchestrator,
		Google:        google,
		Mailer:        mailer,
		Checker:       checker,
		Gate:          subscriptionGate,
		Logger:        logger,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		Config: api.HandlerConfig{
			InvitationTTL: cfg.Onboarding.InvitationTTL,
			SessionTTL:    cfg.Onboarding.SessionTTL,
			SecureCookies: cfg.Server.SecureCookies,
		},
	}
	if cfg.Observability.MetricsEnabled {
		deps.Registry = registry
	}
	server := api.NewServer(deps)

	sweeper := startSweeps(cfg.Onboarding.SweepSchedule, invites, pendingCache, logger, metrics)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	var background errgroup.Group
	background.Go(func() error {
		collectDBStats(bgCtx, db, metrics)
		return nil
	})

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		sweeper.Stop()
		return nil
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error { return rulesWatcher.Close() })
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		server.Close()
		return nil
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		bgCancel()
		return background.Wait()
	})
	shutdown.RegisterShutdownFunc(func(context.Context) error { return redisClient.Close() })
	shutdown.RegisterShutdownFunc(func(context.Context) error { return db.Close() })

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("http server failed")
			os.Exit(1)
		}
	}()

	return shutdown.WaitForShutdown()
}

// openDatabase connects to PostgreSQL and verifies the connection
func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// openRedis connects to Redis and verifies the connection
func openRedis(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// buildGate assembles the subscription gate from the static config plus
// the current rules file
func buildGate(cfg *config.Config, rules config.GateRules, orgService orgs.Service,
	subs billing.Store, logger *observability.Logger, metrics *observability.Metrics) *gate.Gate {
	gateConfig := gate.DefaultConfig()
	gateConfig.AllowedPathPrefixes = rules.AllowedPathPrefixes
	gateConfig.ExemptRoles = toRoles(rules.ExemptRoles)
	gateConfig.ExemptEmails = rules.ExemptEmails
	gateConfig.CacheSize = cfg.Gate.CacheSize
	gateConfig.CacheTTL = cfg.Gate.CacheTTL
	return gate.New(gateConfig, orgService, subs, logger, metrics)
}

func toRoles(names []string) []auth.Role {
	roles := make([]auth.Role, 0, len(names))
	for _, name := range names {
		roles = append(roles, auth.Role(name))
	}
	return roles
}

// startSweeps schedules the expiry sweeps for invitations and staged
// OAuth users
func startSweeps(schedule string, invites invitations.Store, pendingCache *pending.RedisCache,
	logger *observability.Logger, metrics *observability.Metrics) *cron.Cron {
	runner := cron.New()

	_, err := runner.AddFunc(schedule, func() {
		defer observability.RecoverPanic(logger, "expiry sweep")

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		swept, err := invites.CleanupExpired(ctx)
		if err != nil {
			logger.WithError(err).Error("invitation sweep failed")
		} else if swept > 0 {
			metrics.InvitationsSweptTotal.Add(float64(swept))
			logger.WithField("count", swept).Info("swept expired invitations")
		}

		removed, err := pendingCache.Sweep(ctx)
		if err != nil {
			logger.WithError(err).Error("pending user sweep failed")
		} else if removed > 0 {
			metrics.PendingUsersSweptTotal.Add(float64(removed))
			logger.WithField("count", removed).Info("swept stale pending users")
		}
	})
	if err != nil {
		logger.WithError(err).WithField("schedule", schedule).
			Error("invalid sweep schedule, sweeps disabled")
	}

	runner.Start()
	return runner
}

// collectDBStats mirrors connection pool stats into gauges
func collectDBStats(ctx context.Context, db *sql.DB, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			metrics.DBConnectionsActive.Set(float64(stats.InUse))
			metrics.DBConnectionsIdle.Set(float64(stats.Idle))
		}
	}
}
