package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/herodrop/rewards-service/internal/advisor"
	"github.com/herodrop/rewards-service/internal/api"
	"github.com/herodrop/rewards-service/internal/app"
	"github.com/herodrop/rewards-service/internal/catalog"
	"github.com/herodrop/rewards-service/internal/config"
	"github.com/herodrop/rewards-service/internal/eligibility"
	"github.com/herodrop/rewards-service/internal/locator"
	"github.com/herodrop/rewards-service/internal/notify"
	"github.com/herodrop/rewards-service/internal/prompt"
	"github.com/herodrop/rewards-service/internal/store"
	"github.com/herodrop/rewards-service/internal/store/kv"
	"github.com/herodrop/rewards-service/pkg/rabbitmq"
	"github.com/herodrop/rewards-service/pkg/smsclient"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// components is the fully wired service. close releases everything in
// reverse order of acquisition.
type components struct {
	services  api.Services
	reminder  *app.ReminderJob
	sweeper   *app.HoldSweeper
	limiter   app.RateLimiter
	publisher rabbitmq.Publisher
	closers   []func()
}

func (c *components) onClose(f func()) { c.closers = append(c.closers, f) }

func (c *components) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func openPostgres(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// openRedis returns nil when Redis is not configured or unreachable.
func openRedis(ctx context.Context, cfg config.Config, logger *zap.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		logger.Warn("redis url missing; using in-process sessions and no rate limiting", zap.String("env", "REDIS_URL"))
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis url parse failed; redis features disabled", zap.Error(err))
		return nil
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed; redis features disabled", zap.Error(err))
		client.Close()
		return nil
	}
	logger.Info("redis connected")
	return client
}

func newModel(ctx context.Context, cfg config.Config, logger *zap.Logger) prompt.Model {
	if cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY not set; model-backed features will report unavailable")
		return prompt.WithLogging(prompt.Disabled{Reason: "GEMINI_API_KEY not set"}, logger)
	}
	model, err := prompt.NewGeminiModel(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiTemperature, time.Duration(cfg.GeminiTimeoutSecs)*time.Second)
	if err != nil {
		logger.Warn("model client init failed; model-backed features will report unavailable", zap.Error(err))
		return prompt.WithLogging(prompt.Disabled{Reason: err.Error()}, logger)
	}
	logger.Info("model client ready", zap.String("model", model.Name()))
	return prompt.WithLogging(model, logger)
}

// newSender falls back to logging messages when the provider lacks credentials.
func newSender(cfg config.Config, logger *zap.Logger) notify.Sender {
	if !cfg.SMSCredentialsPresent() {
		logger.Warn("sms credentials missing; messages will be logged, not sent", zap.String("provider", cfg.SMSProvider))
		return notify.ClientSender{Client: smsclient.NewLogSender(logger)}
	}
	switch cfg.SMSProvider {
	case "twilio":
		return notify.ClientSender{Client: smsclient.NewTwilio("", cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)}
	default:
		return notify.ClientSender{Client: smsclient.NewAfricasTalking(cfg.AfricasTalkingBaseURL, cfg.AfricasTalkingUsername, cfg.AfricasTalkingAPIKey, cfg.AfricasTalkingSenderID)}
	}
}

func newPublisher(cfg config.Config, logger *zap.Logger) rabbitmq.Publisher {
	if cfg.RabbitMQURL == "" {
		logger.Warn("rabbitmq url missing; events will not be published", zap.String("env", "RABBITMQ_URL"))
		return &rabbitmq.EventProducerFallback{Logger: logger}
	}
	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, cfg.EventExchange, logger)
	if err != nil {
		logger.Warn("rabbitmq producer unavailable; using fallback", zap.Error(err))
		return &rabbitmq.EventProducerFallback{Logger: logger}
	}
	logger.Info("rabbitmq producer connected", zap.String("exchange", cfg.EventExchange))
	return producer
}

func buildComponents(ctx context.Context, cfg config.Config, logger *zap.Logger) (*components, error) {
	c := &components{}
	ok := false
	defer func() {
		if !ok {
			c.close()
		}
	}()

	cat, err := catalog.Default()
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	var repo store.Repository
	if cfg.StoreDriver == "postgres" {
		pool, err := openPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		c.onClose(pool.Close)
		logger.Info("database connected")
		repo = store.NewPostgresRepository(pool)
	} else {
		logger.Warn("using in-memory store; data is lost on restart")
		repo = store.NewMemoryRepository()
	}

	state, err := kv.Open(cfg.KVPath)
	if err != nil {
		return nil, fmt.Errorf("open kv store: %w", err)
	}
	c.onClose(func() { state.Close() })

	redisClient := openRedis(ctx, cfg, logger)
	if redisClient != nil {
		c.onClose(func() { redisClient.Close() })
	}

	model := newModel(ctx, cfg, logger)
	c.publisher = newPublisher(cfg, logger)
	c.onClose(c.publisher.Close)

	var oracle eligibility.Oracle = eligibility.RuleOracle{}
	if cfg.EligibilityOracle == "model" {
		oracle = eligibility.NewModelOracle(model)
	}

	var (
		cache    locator.Cache
		sessions app.SessionStore
	)
	sessionTTL := time.Duration(cfg.RedemptionSessionTTLMinutes) * time.Minute
	if redisClient != nil {
		cache = locator.NewRedisCache(redisClient, cfg.RedisKeyPrefix, time.Duration(cfg.LocatorCacheTTLMinutes)*time.Minute)
		sessions = app.NewRedisSessionStore(redisClient, cfg.RedisKeyPrefix, sessionTTL)
		c.limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisKeyPrefix)
	} else {
		sessions = app.NewMemorySessionStore(sessionTTL)
	}

	loc := locator.New(locator.NewModelMatcher(model, cat), cat, cache, logger)
	composer := notify.NewComposer(model, logger)
	dispatcher := notify.NewDispatcher(newSender(cfg, logger), logger)

	pledges := app.NewPledgeService(repo, loc, state, composer, dispatcher, c.publisher, logger)
	c.services = api.Services{
		Eligibility: eligibility.NewEvaluator(oracle, logger),
		Locator:     loc,
		Catalog:     cat,
		Workflow:    app.NewWorkflow(repo, cat, loc, advisor.New(model), composer, dispatcher, sessions, c.publisher, logger),
		Pledges:     pledges,
		Donors:      app.NewDonorService(repo, c.publisher, logger),
		Notifier:    &notify.Notifier{Composer: composer, Dispatcher: dispatcher},
		Broadcaster: app.NewBroadcaster(dispatcher, logger),
	}
	c.reminder = app.NewReminderJob(repo, composer, dispatcher, logger)
	c.sweeper = app.NewHoldSweeper(repo, time.Duration(cfg.RedemptionHoldTTLMinutes)*time.Minute, logger)

	ok = true
	return c, nil
}
