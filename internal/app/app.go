// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт БД-пул, репозитории, сервисы, обработчики
// и собирает всё в HTTP-сервер и планировщик.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/passport/internal/common"
	"serotonyl.ru/passport/internal/config"
	"serotonyl.ru/passport/internal/db/postgres"
	"serotonyl.ru/passport/internal/features/achievements"
	"serotonyl.ru/passport/internal/features/checkin"
	"serotonyl.ru/passport/internal/features/credits"
	"serotonyl.ru/passport/internal/features/events"
	"serotonyl.ru/passport/internal/features/notify"
	"serotonyl.ru/passport/internal/features/passport"
	"serotonyl.ru/passport/internal/features/rewards"
	"serotonyl.ru/passport/internal/features/tiers"
	"serotonyl.ru/passport/internal/features/token"
	"serotonyl.ru/passport/internal/jobs"
	"serotonyl.ru/passport/internal/server"
)

// App содержит все компоненты приложения.
type App struct {
	Server      *http.Server
	Scheduler   *jobs.Scheduler
	DB          *pgxpool.Pool
	RateLimiter *server.RateLimiter
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	if err := postgres.RunMigrations(ctx, pool, migrations); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Правила домена ===
	table, err := tiers.FromMap(cfg.TierTable)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка таблицы уровней: %w", err)
	}
	codec, err := token.NewCodec(token.Config{
		Secret: []byte(cfg.TokenSecret),
		TTL:    cfg.TokenTTL,
	})
	if err != nil {
		pool.Close()
		return nil, err
	}
	policy := credits.NewPolicy(cfg.CreditsDefault, cfg.CreditsPremium)

	// === 3. Уведомления ===
	var notifier notify.Notifier = notify.Noop{}
	if cfg.NotifyEnabled() {
		tg, err := notify.NewTelegramNotifier(cfg.TelegramBotToken)
		if err != nil {
			// Без уведомлений сервис работает, падать незачем
			log.WithError(err).Warn("Telegram-уведомления отключены")
		} else {
			notifier = tg
		}
	}

	// === 4. Репозитории ===
	passportRepo := passport.NewRepository(pool, table.Lowest())
	eventRepo := events.NewRepository(pool)
	rewardRepo := rewards.NewRepository(pool)
	achievementRepo := achievements.NewRepository(pool)

	// === 5. Сервисы ===
	coordinator := passport.NewCoordinator(passportRepo, policy)
	engine := achievements.NewEngine(passportRepo, achievementRepo)
	reconciler := rewards.NewReconciler(passportRepo, rewardRepo, engine, notifier, table, cfg.RewardTTL)
	checkinService := checkin.NewService(codec, eventRepo, coordinator, reconciler, passportRepo)
	rewardService := rewards.NewService(rewardRepo)

	// === 6. HTTP ===
	limiter := server.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	router := server.NewRouter(server.Options{
		MaxBodyBytes: cfg.HTTPMaxBodyBytes,
		APIKeys:      cfg.APIKeySet(),
		RateLimiter:  limiter,
		Ready:        pool.Ping,
	},
		checkin.NewHandler(checkinService).Routes,
		rewards.NewHandler(rewardService).Routes,
	)

	// === 7. Планировщик ===
	scheduler := jobs.NewScheduler(common.LoadLocation(cfg.AppTimezone), rewardService, passportRepo, reconciler)

	log.WithFields(log.Fields{
		"addr":   cfg.HTTPAddr,
		"tiers":  len(table.Levels()),
		"notify": cfg.NotifyEnabled(),
	}).Info("Все компоненты инициализированы")

	return &App{
		Server:      server.NewHTTPServer(cfg.HTTPAddr, router),
		Scheduler:   scheduler,
		DB:          pool,
		RateLimiter: limiter,
	}, nil
}
