package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/creativcreature/euongelion-sub003/internal/app"
	"github.com/creativcreature/euongelion-sub003/internal/config"
	"github.com/creativcreature/euongelion-sub003/internal/ratelimit"
	"github.com/creativcreature/euongelion-sub003/internal/server"
	"github.com/creativcreature/euongelion-sub003/internal/util"
	"github.com/creativcreature/euongelion-sub003/pkg/ai"
	"github.com/creativcreature/euongelion-sub003/pkg/corpus"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.InitLogger(cfg.LogLevel)

	var source corpus.Source
	if cfg.Corpus.Endpoint != "" {
		source, err = corpus.NewObjectSource(
			cfg.Corpus.Endpoint,
			cfg.Corpus.AccessKey,
			cfg.Corpus.SecretKey,
			cfg.Corpus.Bucket,
			cfg.Corpus.Prefix,
			cfg.Corpus.UseSSL,
		)
		if err != nil {
			util.Fatal("failed to init corpus object source", "err", err)
		}
	} else {
		source = corpus.NewDirSource(cfg.Corpus.Dir)
	}

	documents := corpus.New(source)
	loadCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	if err := documents.Load(loadCtx); err != nil {
		cancel()
		util.Fatal("failed to load corpus", "err", err)
	}
	cancel()
	if documents.Empty() {
		logger.Warn("corpus loaded empty, serving degraded placeholders")
	}

	var generator ai.TextGenerator
	if cfg.Generation.BaseURL != "" {
		generator = ai.NewOpenAICompatGenerator(
			cfg.Generation.BaseURL,
			cfg.Generation.APIKey,
			cfg.Generation.Model,
			time.Duration(cfg.Generation.TimeoutSeconds)*time.Second,
		)
	} else {
		logger.Warn("no generation endpoint configured, all options will be degraded")
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:       cfg.DatabaseURL,
		Corpus:            documents,
		Generator:         generator,
		ConsentSecret:     cfg.ConsentSecret,
		SessionSecret:     cfg.SessionSecret,
		AdminPasswordHash: cfg.AdminPasswordHash,
		GenerationTimeout: time.Duration(cfg.Generation.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}

	var limiter server.Limiter
	if cfg.RateLimit.RedisAddr != "" {
		window := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
		redisLimiter, err := ratelimit.NewRedisFixedWindowLimiter(
			cfg.RateLimit.RedisAddr,
			cfg.RateLimit.RedisPassword,
			"soulaudit:ratelimit",
			cfg.RateLimit.Limit,
			window,
		)
		if err != nil {
			util.Fatal("failed to init rate limiter", "err", err)
		}
		limiter = redisLimiter
	}

	httpServer := server.New(server.Config{
		App:               appCore,
		Limiter:           limiter,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("soulaudit server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
