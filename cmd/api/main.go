package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/gchat-relay/internal/config"
	"github.com/zhouzirui/gchat-relay/internal/handler"
	"github.com/zhouzirui/gchat-relay/internal/handler/webhook"
	"github.com/zhouzirui/gchat-relay/internal/service/backend"
	"github.com/zhouzirui/gchat-relay/internal/service/dispatch"
	"github.com/zhouzirui/gchat-relay/internal/service/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	backendClient, err := backend.NewClient(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		APIKey:  cfg.Backend.APIKey,
		Timeout: cfg.Backend.Timeout,
	}, nil)
	if err != nil {
		log.Fatalf("failed to create backend client: %v", err)
	}

	sessions := session.NewDirectory(session.WithIdleTTL(cfg.Session.IdleTTL))
	if cfg.Session.IdleTTL > 0 {
		log.Printf("sessions expire after %s idle", cfg.Session.IdleTTL)
	}

	dispatcher := dispatch.New(sessions, backendClient, cfg.Chat.BotName)
	webhookHandler := webhook.New(cfg.Chat.NewVerifier(), dispatcher)
	router := handler.NewRouter(cfg.Server.WebhookPath, webhookHandler)

	log.Printf("relaying Google Chat project %s to %s", cfg.Chat.ProjectNumber, cfg.Backend.BaseURL)
	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("chat relay listening on %s (webhook %s)", addr, serverCfg.WebhookPath)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Printf("shutting down chat relay on %s", srv.Addr)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("graceful shutdown incomplete: %v", err)
		}
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
