package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/obiente/voiceinput/internal/capture"
	"github.com/obiente/voiceinput/internal/config"
	"github.com/obiente/voiceinput/internal/engine"
	"github.com/obiente/voiceinput/internal/engine/backends"
	serverhttp "github.com/obiente/voiceinput/internal/http"
	"github.com/obiente/voiceinput/internal/metrics"
	"github.com/obiente/voiceinput/internal/model"
	"github.com/obiente/voiceinput/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using process environment")
	}

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	cfg.Logging.Install()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store, err := model.NewStore(cfg.Models.Dir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Models.Dir).Msg("open models dir")
	}
	factory := backends.NewFactory(cfg, m)
	available := backends.Available()
	models := model.NewCache(store)

	copts := capture.Options{
		SampleRate:        cfg.Audio.SampleRate,
		LiveBufferSamples: cfg.Audio.LiveBufferSamples,
		QueueSize:         cfg.Audio.QueueSize,
		FileChunkDelay:    cfg.Audio.FileChunkDelayDuration(),
		Metrics:           m,
	}
	wsServer := ws.NewServer(store, factory, ws.Options{
		Capture:      copts,
		Metrics:      m,
		DefaultModel: cfg.Models.Default,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	list, err := models.List()
	if err != nil {
		log.Warn().Err(err).Msg("models: list failed")
	}
	logModels(list, available)
	// Without the watcher the cache would go stale, so /models rescans instead.
	var listing *model.Cache
	if cfg.Models.Watch {
		listing = models
		go func() {
			err := store.Watch(ctx, 0, func(list []model.Installed) {
				models.Set(list)
				log.Info().Int("models", len(list)).Msg("models: refreshed")
				logModels(list, available)
			})
			if err != nil {
				log.Warn().Err(err).Msg("models: watch stopped")
			}
		}()
	}

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: serverhttp.NewRouter(serverhttp.Deps{
			Store:     store,
			Models:    listing,
			Factory:   factory,
			Available: available,
			Capture:   copts,
			Gatherer:  reg,
			WS:        wsServer,
		}),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Str("models", store.Dir()).Msg("voice input server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}

func logModels(list []model.Installed, available map[engine.Type]bool) {
	for _, inst := range list {
		log.Info().
			Str("id", inst.ID).
			Str("engine", inst.Engine).
			Bool("ready", inst.Ready).
			Bool("available", available[engine.Type(inst.Engine)]).
			Msg("models: installed")
	}
}
