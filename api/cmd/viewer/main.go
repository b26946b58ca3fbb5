package main

import (
	"context"
	"database/sql"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"scan-viewer/api/internal/config"
	"scan-viewer/api/internal/handle"
	"scan-viewer/api/internal/httpserver"
	"scan-viewer/api/internal/service"
	"scan-viewer/api/internal/session"
	"scan-viewer/api/internal/store"
	"scan-viewer/api/internal/telegram"
	"scan-viewer/api/internal/vlm"
	"scan-viewer/api/internal/vlm/gemini"
	"scan-viewer/api/internal/vlm/ollama"
)

func newLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	if cfg.LogFormat == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	lvl, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithError(err).Warn("bad LOG_LEVEL, using info")
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- engines ---
	engines := &vlm.Engines{}
	if cfg.GeminiAPIKey != "" {
		engines.Gemini = gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiResearchModel, log)
	}
	if cfg.OllamaURL != "" {
		eng, err := ollama.New(cfg.OllamaURL, cfg.OllamaModel, log)
		if err != nil {
			log.WithError(err).Fatal("ollama")
		}
		engines.Ollama = eng
	}
	log.WithField("engines", engines.Available()).Info("engines configured")

	// --- analysis cache ---
	var (
		db    *sql.DB
		repo  *store.AnalysisRepo
		cache service.Cache
	)
	if cfg.DatabaseURL != "" {
		db, err = store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("database")
		}
		defer db.Close()
		if err := store.Migrate(ctx, db); err != nil {
			log.WithError(err).Fatal("migrate")
		}
		repo = store.NewAnalysisRepo(db)
		cache = repo
		log.Info("analysis cache enabled")
	}

	sessions := session.NewManager(cfg.SessionIdleTTL, log)
	svc := service.NewScanService(service.Options{
		Engines:       engines,
		Sessions:      sessions,
		DefaultEngine: cfg.DefaultEngine,
		Cache:         cache,
		CacheTTL:      cfg.AnalysisCacheTTL,
		MaxPixels:     cfg.MaxImagePixels,
		Logger:        log,
	})

	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handle.NewRouter(handle.New(svc, log, cfg.RequestTimeout, cfg.MaxUploadBytes), log)

	g, ctx := errgroup.WithContext(ctx)

	// --- telegram ---
	if cfg.TelegramBotToken != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			log.WithError(err).Fatal("telegram")
		}
		bot.Debug = false
		tg := &telegram.Router{API: bot, Svc: svc, Log: log, Timeout: cfg.RequestTimeout}
		if cfg.WebhookURL != "" {
			path := telegram.WebhookPath(cfg.TelegramBotToken)
			router.POST(path, tg.WebhookHandler(ctx))
			if err := tg.RegisterWebhook(cfg.WebhookURL, path); err != nil {
				log.WithError(err).Fatal("telegram webhook")
			}
		} else {
			if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
				log.WithError(err).Warn("telegram: delete webhook")
			}
			g.Go(func() error { return tg.RunPolling(ctx) })
		}
		log.WithField("bot", bot.Self.UserName).Info("telegram bot enabled")
	}

	srv := httpserver.New(net.JoinHostPort("0.0.0.0", strings.TrimSpace(cfg.Port)), router, log)
	g.Go(func() error { return srv.Serve(ctx) })
	g.Go(func() error { return sessions.RunJanitor(ctx, time.Minute) })
	if repo != nil {
		g.Go(func() error { return purgeLoop(ctx, repo, cfg.AnalysisCacheTTL, log) })
	}

	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
	log.Info("bye")
}

// purgeLoop drops cache rows older than ttl once an hour.
func purgeLoop(ctx context.Context, repo *store.AnalysisRepo, ttl time.Duration, log *logrus.Logger) error {
	if ttl <= 0 {
		return nil
	}
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n, err := repo.Purge(ctx, ttl)
			if err != nil {
				log.WithError(err).Warn("analysis cache purge failed")
				continue
			}
			if n > 0 {
				log.WithField("rows", n).Info("analysis cache purged")
			}
		}
	}
}
