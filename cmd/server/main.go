package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/temcen/affinity/internal/app"
	"github.com/temcen/affinity/internal/config"
)

// shutdownTimeout bounds the drain of in-flight requests and the ingestion
// worker once a termination signal arrives.
const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("affinity: failed to load configuration: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("affinity: failed to initialize: %v", err)
	}

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: application.Router(),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("affinity: server failed: %v", err)
		}
	}()

	log.Printf("affinity preference service listening on :%s", cfg.Server.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("affinity: shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := application.Shutdown(ctx); err != nil {
		log.Printf("affinity: shutdown error: %v", err)
	}
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("affinity: server forced to stop: %v", err)
	}

	log.Println("affinity: stopped")
}
