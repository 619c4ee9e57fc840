package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"resilience-sim/internal/config"
	"resilience-sim/internal/content"
	"resilience-sim/internal/engine"
	"resilience-sim/internal/llm"
	"resilience-sim/internal/logger"
	"resilience-sim/internal/service"
	"resilience-sim/internal/transport/rest"
	"resilience-sim/internal/transport/ws"
)

// sessionVerifier answers the WebSocket handler's "is this id live" check
// for both session kinds.
type sessionVerifier struct {
	game   *service.GameService
	crisis *service.CrisisService
}

func (v sessionVerifier) Exists(id string) bool {
	return v.game.HasSession(id) || v.crisis.HasConversation(id)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Encoding: cfg.Log.Encoding})
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	// Badge graphs are validated here; a broken graph never reaches a
	// player.
	catalog, err := content.Load()
	if err != nil {
		log.Fatal("badge catalog failed to load", zap.Error(err))
	}
	log.Info("badge catalog loaded", zap.Int("badges", len(catalog.List())))

	client := llm.NewClient(cfg.LLM.ProxyURL, cfg.LLM.Timeout)
	if client.Enabled() {
		log.Info("llm proxy configured", zap.String("url", cfg.LLM.ProxyURL))
	} else {
		log.Info("llm proxy not configured, evaluator runs on local fallback")
	}

	wsHub := ws.NewHub(log)

	evaluator := service.NewEvaluatorService(client, cfg.Game.EvalPassScore, log)
	gameSvc := service.NewGameService(catalog, evaluator, engine.Config{
		AutoAdvanceDelay:   cfg.Game.AutoAdvanceDelay,
		ForcedVariety:      cfg.Game.ForcedVariety,
		FreeformEvaluation: cfg.Game.FreeformEvaluation,
	}, log)
	crisisSvc := service.NewCrisisService(client, cfg.Game.TypingInterval, log)

	// Inject broadcaster (wsHub implements service.Broadcaster)
	gameSvc.SetBroadcaster(wsHub)
	crisisSvc.SetBroadcaster(wsHub)

	wsHandler := ws.NewHandler(wsHub, sessionVerifier{game: gameSvc, crisis: crisisSvc}, log)

	router := rest.NewRouter(&rest.Container{
		Catalog:       catalog,
		GameService:   gameSvc,
		CrisisService: crisisSvc,
		WSHub:         wsHub,
		WSHandler:     wsHandler,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen and serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}
