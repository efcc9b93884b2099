package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xaenox/shieldbot/internal/activity"
	"github.com/xaenox/shieldbot/internal/api"
	"github.com/xaenox/shieldbot/internal/bot"
	"github.com/xaenox/shieldbot/internal/cache"
	"github.com/xaenox/shieldbot/internal/classifier"
	"github.com/xaenox/shieldbot/internal/coach"
	"github.com/xaenox/shieldbot/internal/lifecycle"
	"github.com/xaenox/shieldbot/internal/liveview"
	"github.com/xaenox/shieldbot/internal/metrics"
	"github.com/xaenox/shieldbot/internal/models"
	"github.com/xaenox/shieldbot/internal/reputation"
	"github.com/xaenox/shieldbot/internal/rules"
	"github.com/xaenox/shieldbot/internal/storage"
	"github.com/xaenox/shieldbot/pkg/config"
	"github.com/xaenox/shieldbot/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fallback, _ := zap.NewProduction()
		fallback.Fatal("Failed to load config", zap.Error(err), zap.String("path", *configPath))
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		fallback, _ := zap.NewProduction()
		fallback.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("Shieldbot stopped with error", zap.Error(err))
	}
	log.Info("Shieldbot stopped")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		log.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		log.Info("Using PostgreSQL storage", zap.String("host", cfg.Database.Host), zap.String("dbname", cfg.Database.DBName))
		pg, err := storage.NewPostgresStorage(ctx, cfg.Database.DSN(), log)
		if err != nil {
			return err
		}
		store = pg
	}
	defer store.Close()

	var detailsCache activity.DetailsCache
	if cfg.Redis.URL != "" {
		rc, err := cache.NewDetailsCache(ctx, cache.Config{
			URL:       cfg.Redis.URL,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.TTL,
		}, log)
		if err != nil {
			log.Warn("Redis unavailable, URL explanations will not be cached", zap.Error(err))
		} else {
			defer rc.Close()
			detailsCache = rc
		}
	}

	ruleSet := rules.DefaultRules()
	if cfg.Rules.Path != "" {
		loaded, err := rules.LoadRules(cfg.Rules.Path)
		if err != nil {
			return err
		}
		ruleSet = loaded
		log.Info("Loaded URL rules", zap.String("path", cfg.Rules.Path))
	}
	engine := rules.NewEngine(ruleSet)

	ai := classifier.NewAIClassifier(classifier.Config{
		APIKey:        cfg.AI.APIKey,
		BaseURL:       cfg.AI.BaseURL,
		MessageModel:  cfg.AI.MessageModel,
		AdviceModel:   cfg.AI.AdviceModel,
		Timeout:       cfg.AI.Timeout,
		MaxRetries:    cfg.AI.MaxRetries,
		RetryDelay:    cfg.AI.RetryDelay,
		FailurePolicy: models.RiskLevel(cfg.Classifier.FailurePolicy),
	}, m, log)

	ledger := reputation.NewLedger(store, reputation.Config{
		Threshold:               cfg.Reputation.Threshold,
		AllowDuplicateReporters: cfg.Reputation.AllowDuplicateReporters,
	}, m, log)

	manager := lifecycle.NewManager(store, store, ai, ledger, lifecycle.Config{
		PromoteSuspicious: cfg.Classifier.PromoteSuspicious,
		WatchWorkers:      cfg.Classifier.WatchWorkers,
	}, m, log)

	views := liveview.NewSynchronizer(store, store, m, log)
	defer views.CloseAll()

	recorder := activity.NewRecorder(engine, store, ai, detailsCache, m, log)
	assistant := coach.New(ai, recorder, cfg.Coach.MaxHistory, log)

	var wg sync.WaitGroup
	errCh := make(chan error, 3)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Component failed", zap.String("component", name), zap.Error(err))
				errCh <- err
				cancel()
			}
		}()
	}

	if cfg.Classifier.Watch {
		start("watch", manager.Watch)
	}

	if cfg.Server.Enabled {
		gin.SetMode(cfg.Server.Mode)
		deps := api.Deps{
			Scanner:    recorder,
			Messages:   manager,
			Reputation: ledger,
			Views:      views,
			Coach:      assistant,
		}
		if m != nil {
			deps.Metrics = m.Handler()
			deps.MetricsPath = cfg.Metrics.Path
		}
		router := api.NewRouter(deps, log)
		start("http", func(ctx context.Context) error {
			return router.Run(ctx, cfg.Server.Addr)
		})
	}

	if cfg.Telegram.Token != "" {
		b, err := bot.New(cfg.Telegram.Token, bot.Services{
			Scanner:  recorder,
			Messages: manager,
			Views:    views,
			Coach:    assistant,
		}, log)
		if err != nil {
			cancel()
			wg.Wait()
			return err
		}
		start("telegram", b.Start)
	}

	log.Info("Shieldbot started",
		zap.Bool("http", cfg.Server.Enabled),
		zap.Bool("telegram", cfg.Telegram.Token != ""),
		zap.Bool("watch", cfg.Classifier.Watch),
		zap.Bool("cache", detailsCache != nil))

	<-ctx.Done()
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}
