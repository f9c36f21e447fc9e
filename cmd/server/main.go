package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"stash/internal/ai"
	"stash/internal/api"
	"stash/internal/classify"
	"stash/internal/config"
	"stash/internal/db"
	"stash/internal/enrich"
	"stash/internal/extract"
	"stash/internal/graphflow"
	"stash/internal/index"
	"stash/internal/jobs"
	"stash/internal/logging"
	"stash/internal/media"
	"stash/internal/queue"
	"stash/internal/screenshot"
	"stash/internal/settings"
	"stash/internal/storage"
	"stash/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	dsn := cfg.MySQLDSN
	if cfg.DBDriver == "sqlite" {
		dsn = cfg.SQLitePath
	}
	gdb, err := db.Connect(cfg.DBDriver, dsn)
	if err != nil {
		log.WithError(err).Fatal("db connect failed")
	}
	cards := store.NewCards(gdb)

	objects, err := storage.NewMinioStore(cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOSecure, cfg.MinIOBucket)
	if err != nil {
		log.WithError(err).Fatal("minio connect failed")
	}

	llm := ai.NewClient(ai.Settings{
		BaseURL:     cfg.LLMBaseURL,
		APIKey:      cfg.LLMAPIKey,
		Model:       cfg.LLMModel,
		VisionModel: cfg.VisionModel,
		EmbedModel:  cfg.EmbedModel,
	}, cfg.LLMTimeout)
	stored, err := settings.LoadLLM(context.Background(), gdb)
	if err != nil {
		log.WithError(err).Warn("load stored llm settings failed")
	}
	llm.Configure(stored)

	graph, err := graphflow.NewClassifier()
	if err != nil {
		log.WithError(err).Fatal("compile classify graph failed")
	}

	q, err := queue.New(cfg.QueueDriver, cfg.RedisURL, cfg.Workers, log)
	if err != nil {
		log.WithError(err).Fatal("queue init failed")
	}

	registry := extract.NewRegistry(extract.NewFetcher(cfg.HTTPTimeout), extract.Options{
		StrategyTimeout:      cfg.StrategyTimeout,
		InstagramMirrorURL:   cfg.InstagramMirrorURL,
		InstagramQueryHashes: cfg.InstagramQueryHashes,
	})

	svc := &enrich.Service{
		Cards:       cards,
		Extractor:   registry,
		Screenshots: screenshot.NewChrome(cfg.ChromeBin, log),
		Media:       media.New(objects, cfg.HTTPTimeout),
		Classifier: &classify.Orchestrator{
			Classifier:      classify.LLMClassifier{Graph: graph, LLM: llm},
			Images:          llm,
			Aligner:         llm,
			Vocabulary:      cards,
			Retries:         cfg.ClassifyRetries,
			Backoff:         cfg.ClassifyBackoff,
			NormalizeBudget: cfg.TagNormalizeBudget,
			Log:             log,
		},
		Index: &index.Indexer{
			Embedder: llm,
			Sink:     index.GormSink{DB: gdb},
			Model:    func() string { return llm.Settings().EmbedModel },
		},
		Queue: q,
		Config: enrich.Config{
			Deadline:             cfg.EnrichDeadline,
			ClaimStaleAfter:      cfg.ClaimStaleAfter,
			ScreenshotEnabled:    cfg.ScreenshotEnabled,
			ScreenshotServiceURL: cfg.ScreenshotServiceURL,
			BaseURL:              cfg.BaseURL,
		},
		Log: log,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		err := q.Run(ctx, func(ctx context.Context, job queue.Job) error {
			_, err := svc.Enrich(ctx, job.CardID, enrich.EnrichOptions{Force: job.Force})
			return err
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("queue stopped")
		}
	}()

	sweeper := &jobs.Sweeper{
		Cards:       cards,
		Queue:       q,
		Interval:    cfg.SweepInterval,
		StaleAfter:  cfg.ClaimStaleAfter,
		RetryFailed: cfg.SweepRetryFailed,
		Log:         log,
	}
	if err := sweeper.Start(ctx); err != nil {
		log.WithError(err).Fatal("sweeper start failed")
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), corsMiddleware())

	srv := &api.Server{
		DB:             gdb,
		Cards:          cards,
		Enrich:         svc,
		Store:          objects,
		LLM:            llm,
		Sweeper:        sweeper,
		InternalSecret: cfg.InternalSecret,
		Log:            log,
	}
	srv.RegisterRoutes(r)

	httpServer := &http.Server{Addr: cfg.Addr, Handler: r}
	go func() {
		log.WithField("addr", cfg.Addr).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if err := sweeper.Stop(); err != nil {
		log.WithError(err).Warn("sweeper shutdown")
	}
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		log.Warn("workers still running at exit")
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID, X-Internal-Secret")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
