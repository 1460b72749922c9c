package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/orbitnotes/entitlements/modules/entitlement"
	"github.com/orbitnotes/entitlements/pkg/billing"
	"github.com/orbitnotes/entitlements/pkg/catalog"
	"github.com/orbitnotes/entitlements/pkg/config"
	"github.com/orbitnotes/entitlements/pkg/httpserver"
	"github.com/orbitnotes/entitlements/pkg/ledger"
	"github.com/orbitnotes/entitlements/pkg/logger"
	"github.com/orbitnotes/entitlements/pkg/pg"
	"github.com/orbitnotes/entitlements/pkg/receipt"
	"github.com/orbitnotes/entitlements/pkg/reconciler"
	"github.com/orbitnotes/entitlements/pkg/redis"
	"github.com/orbitnotes/entitlements/pkg/subscription"
)

type appConfig struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"entitlements"`

	DefaultPlanID string `env:"DEFAULT_PLAN_ID" envDefault:"free"`
	// PlansFile overrides the plans table with a YAML catalog when set.
	PlansFile string `env:"PLANS_FILE"`

	// RedisEnabled moves webhook dedup from Postgres to Redis.
	RedisEnabled   bool          `env:"REDIS_ENABLED" envDefault:"false"`
	DedupRetention time.Duration `env:"BILLING_DEDUP_RETENTION" envDefault:"72h"`

	PendingSweepInterval time.Duration `env:"PENDING_SWEEP_INTERVAL" envDefault:"1h"`
	PendingSweepAge      time.Duration `env:"PENDING_SWEEP_AGE" envDefault:"24h"`
	CounterRetention     time.Duration `env:"COUNTER_RETENTION" envDefault:"2160h"`
}

func main() {
	var (
		appCfg    appConfig
		pgCfg     pg.Config
		httpCfg   httpserver.Config
		appleCfg  receipt.Config
		paddleCfg billing.PaddleConfig
	)
	config.MustLoad(&appCfg)
	config.MustLoad(&pgCfg)
	config.MustLoad(&httpCfg)
	config.MustLoad(&appleCfg)
	config.MustLoad(&paddleCfg)

	logOpts := []logger.Option{
		logger.WithService(appCfg.ServiceName, appCfg.Env),
		logger.WithContextValue("request_id", middleware.RequestIDKey),
	}
	if appCfg.Env == "development" {
		logOpts = append(logOpts, logger.WithDevelopment())
	}
	log := logger.New(logOpts...)
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, appCfg, pgCfg, httpCfg, appleCfg, paddleCfg); err != nil {
		log.ErrorContext(ctx, "service exited with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(
	ctx context.Context,
	log *slog.Logger,
	appCfg appConfig,
	pgCfg pg.Config,
	httpCfg httpserver.Config,
	appleCfg receipt.Config,
	paddleCfg billing.PaddleConfig,
) error {
	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		return err
	}

	var src catalog.Source = catalog.NewPGSource(pool)
	if appCfg.PlansFile != "" {
		src = catalog.YAMLSource{Path: appCfg.PlansFile}
	}
	cat, err := catalog.New(ctx, src, appCfg.DefaultPlanID)
	if err != nil {
		return err
	}

	healthProbes := []func(context.Context) error{pg.Healthcheck(pool)}

	var dedup billing.DedupSet = billing.NewPGDedupSet(pool)
	if appCfg.RedisEnabled {
		var redisCfg redis.Config
		config.MustLoad(&redisCfg)
		redisClient, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		dedup = billing.NewRedisDedupSet(redisClient, appCfg.DedupRetention)
		healthProbes = append(healthProbes, redis.Healthcheck(redisClient))
	}

	subStore := subscription.NewPGStore(pool)
	counterStore := ledger.NewPGStore(pool)

	ledgerSvc := ledger.New(cat, counterStore,
		ledger.SubscriptionPlanResolver(subStore, cat.DefaultPlanID()),
		ledger.WithLogger(log))

	rec := reconciler.New(subStore, cat, ledgerSvc, reconciler.WithLogger(log))

	validator := receipt.NewRetryingValidator(
		receipt.NewValidator(appleCfg, receipt.WithLogger(log)), appleCfg)

	intake := billing.NewIntake(dedup, log)

	var webhooks entitlement.WebhookSource
	if paddleCfg.WebhookSecret != "" {
		source, err := billing.NewPaddleSource(paddleCfg)
		if err != nil {
			return err
		}
		webhooks = source
	} else {
		log.WarnContext(ctx, "no webhook secret configured, billing webhooks disabled")
	}

	go maintenanceLoop(ctx, log, appCfg, rec, validator, ledgerSvc, dedup)

	api := entitlement.NewHandler(cat, ledgerSvc, rec, validator, intake, webhooks, log)

	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Get("/health", httpserver.HealthCheckHandler(ctx, log))
	router.Get("/ready", httpserver.HealthCheckHandler(ctx, log, healthProbes...))
	router.Mount("/entitlement", entitlement.Router(api))

	srv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))
	return srv.Run(ctx, router)
}

// maintenanceLoop periodically retries stuck pending validations and expires
// old windowed counters and dedup records.
func maintenanceLoop(
	ctx context.Context,
	log *slog.Logger,
	cfg appConfig,
	rec *reconciler.Reconciler,
	validator reconciler.Revalidator,
	ledgerSvc *ledger.Service,
	dedup billing.DedupSet,
) {
	ticker := time.NewTicker(cfg.PendingSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := rec.SweepPending(ctx, validator, cfg.PendingSweepAge); err != nil {
			log.ErrorContext(ctx, "pending sweep failed", logger.Error(err))
		}
		if err := ledgerSvc.GC(ctx, cfg.CounterRetention); err != nil {
			log.ErrorContext(ctx, "counter gc failed", logger.Error(err))
		}
		if gc, ok := dedup.(*billing.PGDedupSet); ok {
			if err := gc.GC(ctx, cfg.DedupRetention); err != nil {
				log.ErrorContext(ctx, "dedup gc failed", logger.Error(err))
			}
		}
	}
}
