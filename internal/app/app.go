package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"airdropbot/internal/config"
	"airdropbot/internal/handlers"
	"airdropbot/internal/middleware"
	"airdropbot/internal/repositories"
	"airdropbot/internal/routes"
	"airdropbot/internal/services"
	"airdropbot/internal/utils"
)

func Run() {
	cfg := config.LoadConfig()

	log := NewLogger(cfg.Log.Env)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("airdropbot stopped", zap.Error(err))
	}
	log.Info("airdropbot stopped")
}

// NewLogger: development-логгер для локальной разработки, иначе production JSON.
func NewLogger(env string) *zap.Logger {
	var (
		log *zap.Logger
		err error
	)
	if env == "development" {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		panic("Failed to init logger: " + err.Error())
	}
	zap.ReplaceGlobals(log)
	return log
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	// === Store ===
	sessions, closeStore, err := openSessionStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// === Telegram ===
	// long polling держит запрос 30s, таймаут клиента должен быть больше
	httpClient := &http.Client{Timeout: 60 * time.Second}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Telegram.BotToken, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	bot.Debug = cfg.Telegram.Debug
	log.Info("telegram bot authorized", zap.String("username", bot.Self.UserName))

	// === Services ===
	membership := services.NewTelegramMembershipChecker(bot)
	verifier := services.NewVerificationService(membership, cfg.Airdrop.Requirements, cfg.Engine.CheckTimeout, log)

	social := services.NewDisabledSocialChecker()
	if cfg.Twitter.Configured() {
		social = services.NewTwitterChecker(services.TwitterClientConfig{
			BaseURL:     cfg.Twitter.BaseURL,
			BearerToken: cfg.Twitter.BearerToken,
			APIKey:      cfg.Twitter.APIKey,
			APISecret:   cfg.Twitter.APISecret,
			Timeout:     cfg.Engine.CheckTimeout,
		}, log)
	} else {
		log.Warn("X credentials not set, social handle step is skipped")
	}

	var notifier services.ClaimNotifier
	if cfg.Email.SMTPHost != "" && cfg.Email.OperatorEmail != "" {
		project := cfg.Airdrop.ProjectName
		if project == "" {
			project = "airdrop"
		}
		notifier = services.NewEmailClaimNotifier(
			cfg.Email.SMTPHost,
			cfg.Email.SMTPPort,
			cfg.Email.SMTPUser,
			cfg.Email.SMTPPassword,
			cfg.Email.FromEmail,
			cfg.Email.OperatorEmail,
			project,
		)
	}

	engine := services.NewConversationEngine(sessions, verifier, social, notifier, cfg.Engine.CheckTimeout, log.Named("engine"))
	// письма по уже завершённым заявкам досылаются после остановки диспетчера
	defer engine.WaitNotifications()

	renderer := services.NewMessageRenderer(services.MessageTexts{
		ProjectName: cfg.Airdrop.ProjectName,
		SocialLink:  cfg.Airdrop.SocialLink,
		RewardText:  cfg.Airdrop.RewardText,
	})
	tg := services.NewTelegramService(bot, renderer, cfg.Telegram.SendRate, log)

	// обработчики апдейтов доживают до конца даже после сигнала остановки
	dispatcher := services.NewUpdateDispatcher(context.WithoutCancel(ctx), engine, tg, log)
	defer dispatcher.Wait()

	sweeper := services.NewSessionSweeper(sessions, cfg.Engine.IdleTimeout, cfg.Engine.TerminalRetention, cfg.Engine.SweepInterval, log)

	// === Handlers ===
	sessionHandler := handlers.NewSessionHandler(engine, log)
	var integrationsHandler *handlers.IntegrationsHandler
	if cfg.Telegram.Mode == "webhook" {
		if cfg.Telegram.WebhookSecret == "" {
			// без секрета кто угодно может слать фейковые апдейты
			secret, err := utils.NewWebhookSecret(32)
			if err != nil {
				return fmt.Errorf("webhook secret: %w", err)
			}
			cfg.Telegram.WebhookSecret = secret
		}
		integrationsHandler = handlers.NewIntegrationsHandler(dispatcher, cfg.Telegram.WebhookSecret, log)
	}

	// === Gin ===
	if cfg.Log.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RequestLogger(log.Named("http")))
	router.Use(gin.Recovery())
	routes.SetupRoutes(router, sessionHandler, integrationsHandler, cfg.Admin.JWTSecret)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// === Run ===
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})

	switch cfg.Telegram.Mode {
	case "webhook":
		if err := tg.SetWebhook(cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
			return err
		}
	default:
		if err := tg.DeleteWebhook(); err != nil {
			log.Warn("deleteWebhook failed", zap.Error(err))
		}
		g.Go(func() error {
			return tg.Poll(gctx, dispatcher.Dispatch)
		})
	}

	log.Info("airdropbot started",
		zap.String("mode", cfg.Telegram.Mode),
		zap.String("store", cfg.Store.Driver),
		zap.Int("requirements", len(cfg.Airdrop.Requirements)),
		zap.Bool("social", social.Configured()),
	)
	return g.Wait()
}

// openSessionStore selects the SessionRepository by store.driver.
func openSessionStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (repositories.SessionRepository, func(), error) {
	switch cfg.Store.Driver {
	case "postgres":
		db, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		if err := repositories.EnsureSessionSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Info("session store: postgres")
		return repositories.NewPostgresSessionRepository(db), func() {
			if err := db.Close(); err != nil {
				log.Warn("close postgres", zap.Error(err))
			}
		}, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		log.Info("session store: redis", zap.String("addr", cfg.Redis.Addr))
		return repositories.NewRedisSessionRepository(client, cfg.Engine.IdleTimeout, cfg.Engine.TerminalRetention), func() {
			if err := client.Close(); err != nil {
				log.Warn("close redis", zap.Error(err))
			}
		}, nil

	default:
		log.Info("session store: memory")
		return repositories.NewMemorySessionRepository(), func() {}, nil
	}
}
