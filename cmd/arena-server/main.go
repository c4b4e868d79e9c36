package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-arena/internal/archive"
	"github.com/park285/chess-arena/internal/auth"
	appcfg "github.com/park285/chess-arena/internal/config"
	"github.com/park285/chess-arena/internal/health"
	"github.com/park285/chess-arena/internal/matchqueue"
	"github.com/park285/chess-arena/internal/msgcat"
	"github.com/park285/chess-arena/internal/obslog"
	"github.com/park285/chess-arena/internal/registry"
	"github.com/park285/chess-arena/internal/router"
	"github.com/park285/chess-arena/internal/session"
	"github.com/park285/chess-arena/internal/transport"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("log init error: %v", err)
	}

	cat, err := msgcat.New(os.Getenv("MESSAGE_DIR"))
	if err != nil {
		log.Fatalf("message catalog error: %v", err)
	}

	// Durable append path is optional: without REDIS_URL games are
	// in-memory only.
	var recorder session.Recorder
	var queue *archive.Queue
	var workerCancel context.CancelFunc
	if cfg.RedisURL != "" {
		queue, err = archive.NewQueue(cfg.RedisURL)
		if err != nil {
			log.Fatalf("archive queue init error: %v", err)
		}
		recorder = archive.NewRecorder(queue)

		if cfg.DatabaseURL != "" {
			repo, rerr := archive.NewRepository(cfg.DatabaseURL)
			if rerr != nil {
				log.Fatalf("archive repository init error: %v", rerr)
			}
			defer repo.Close()

			rdb, rerr := archive.OpenRedis(cfg.RedisURL)
			if rerr != nil {
				log.Fatalf("archive worker redis error: %v", rerr)
			}
			var wctx context.Context
			wctx, workerCancel = context.WithCancel(context.Background())
			go archive.NewWorker(rdb, repo).Run(wctx)
		}
	}

	reg := registry.New()
	mq := matchqueue.New()
	rt := router.NewManager(router.Config{
		Registry:         reg,
		Queue:            mq,
		Catalog:          cat,
		Recorder:         recorder,
		DisconnectGrace:  cfg.DisconnectGrace,
		SessionRetention: cfg.SessionRetention,
		MaxGames:         cfg.MaxConcurrentGames,
	})

	ws := transport.NewServer(cfg.ListenAddr, auth.NewTokenService(cfg.JWTSecret), reg, rt)
	hs := health.NewServer(cfg.HealthAddr, statsView{rt: rt, reg: reg})

	go func() {
		if err := hs.Run(); err != nil {
			obslog.L().Error("health_server_error", zap.Error(err))
		}
	}()
	go func() {
		if err := ws.Run(); err != nil {
			obslog.L().Error("ws_server_error", zap.Error(err))
		}
	}()

	obslog.L().Info("server_start",
		zap.String("listen", cfg.ListenAddr),
		zap.String("health", cfg.HealthAddr),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = ws.Shutdown(sctx)
	cancel()
	_ = hs.Shutdown()
	if workerCancel != nil {
		workerCancel()
	}
	if queue != nil {
		_ = queue.Close()
	}
	obslog.L().Info("server_stop")
}

type statsView struct {
	rt  *router.Manager
	reg *registry.Registry
}

func (v statsView) ActiveGames() int    { return v.rt.ActiveGames() }
func (v statsView) ConnectedUsers() int { return v.reg.Count() }
func (v statsView) Waiting() int        { return v.rt.Waiting() }
