package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"avatarsynth/internal/config"
	"avatarsynth/internal/httpapi"
	"avatarsynth/internal/httpapi/handlers"
	"avatarsynth/internal/jobs"
	"avatarsynth/internal/metrics"
	"avatarsynth/internal/pkg/logger"
	"avatarsynth/internal/pkg/shutdown"
	"avatarsynth/internal/speech"
	"avatarsynth/internal/storage"
	"avatarsynth/internal/synthesis"
	"avatarsynth/internal/worker"
)

const version = "0.1.0"

func main() {
	cfg, cfgErr := config.Load()

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "avatarsynth-api",
		AddSource:   cfg.Log.AddSource,
	})
	if cfgErr != nil {
		log.LogFatal("invalid configuration", cfgErr)
	}

	log.Info("starting avatar synthesis API",
		"version", version,
		"auth_mode", cfg.Auth.Mode,
		"storage", cfg.Storage.Provider,
	)

	ctx := context.Background()
	metrics.MustRegister()

	shutdownMgr := shutdown.NewManager(log, cfg.HTTP.ShutdownTimeout)

	// Speech service client
	auth, err := speech.NewAuthenticator(ctx, cfg.Auth)
	if err != nil {
		log.LogFatal("failed to initialize speech authenticator", err)
	}
	client := speech.NewClient(speech.Options{
		Endpoint:       cfg.Speech.Endpoint,
		APIVersion:     cfg.Speech.APIVersion,
		Auth:           auth,
		RequestTimeout: cfg.Speech.RequestTimeout,
	})

	// Job store
	var (
		store       jobs.Store
		redisPinger handlers.Pinger
	)
	if cfg.Redis.Addr != "" {
		log.Info("connecting to Redis")
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		shutdownMgr.Register("redis", func(ctx context.Context) error {
			return rdb.Close()
		})

		rs := jobs.NewRedisStore(rdb, cfg.Redis.JobTTL)
		if err := rs.Ping(ctx); err != nil {
			log.LogFatal("failed to ping Redis", err)
		}
		log.Info("Redis connected")
		store, redisPinger = rs, rs
	} else {
		log.Info("using in-memory job store")
		store = jobs.NewMemoryStore(cfg.Redis.JobTTL)
	}

	// Result archive
	var (
		archiver synthesis.Archiver
		archive  handlers.Archive
	)
	sp, err := storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}
	if sp != nil {
		a := storage.NewArchive(sp, client, log)
		archiver, archive = a, a
		log.Info("storage provider initialized", "provider", sp.Provider())
	}

	orch := synthesis.New(synthesis.Deps{
		Speech:   client,
		Store:    store,
		Archiver: archiver,
		Log:      log,
	}, synthesis.Config{
		PollInterval:  cfg.Poll.Interval,
		MaxWait:       cfg.Poll.MaxWait,
		MaxPollErrors: cfg.Poll.MaxErrors,
		Defaults:      avatarDefaults(cfg.Avatar),
	})

	runner := worker.NewRunner(orch, log)
	shutdownMgr.Register("runner", func(ctx context.Context) error {
		log.Info("canceling background jobs", "active", runner.Active())
		return runner.Shutdown(ctx)
	})

	router := httpapi.NewRouter(httpapi.Deps{
		Handlers: handlers.Deps{
			Synth:    orch,
			Runner:   runner,
			Store:    store,
			Speech:   client,
			Archive:  archive,
			Redis:    redisPinger,
			AuthMode: auth.Mode(),
			Version:  version,
			Log:      log,
		},
		AllowedOrigins: cfg.HTTP.CORSAllowedOrigins,
		Log:            log,
	})

	// POST /synthesize holds the connection until the job is done, so
	// in-flight requests are canceled before the server drains.
	reqCtx, cancelRequests := context.WithCancel(ctx)
	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Poll.MaxWait + time.Minute,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return reqCtx },
	}

	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		cancelRequests()
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening",
			"addr", server.Addr,
			"port", cfg.HTTP.Port,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	shutdownMgr.Wait()
}

func avatarDefaults(a config.AvatarConfig) speech.AvatarOptions {
	return speech.AvatarOptions{
		Text:            a.Text,
		Voice:           a.Voice,
		Character:       a.Character,
		Style:           a.Style,
		Customized:      a.Customized,
		VideoFormat:     a.VideoFormat,
		VideoCodec:      a.VideoCodec,
		SubtitleType:    a.SubtitleType,
		BackgroundColor: a.BackgroundColor,
		CustomVoices:    a.CustomVoices,
	}
}
