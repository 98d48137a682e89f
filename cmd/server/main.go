package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"avanspay/config"
	"avanspay/internal/database"
	"avanspay/internal/router"
	"avanspay/internal/service"
	"avanspay/pkg/gateway"
	"avanspay/pkg/sms"
)

func main() {
	cfg := config.Load()
	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	database.SeedAdmin(db, &cfg.Admin)

	var gw gateway.Provider
	if cfg.Gateway.UseStub {
		log.Printf("[Gateway] using stub provider")
		gw = &gateway.Stub{}
	} else {
		gw = gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.APIKey)
	}

	var smsSender sms.Sender
	if cfg.SMS.BaseURL != "" {
		smsSender = sms.NewClient(cfg.SMS.BaseURL, cfg.SMS.APIKey, cfg.SMS.SenderID)
	} else {
		log.Printf("[SMS] no gateway configured, notifications are logged only")
		smsSender = sms.NopSender{}
	}

	engine, reconciler := router.Setup(cfg, db, gw, smsSender)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go runStaleSweep(sweepCtx, reconciler, cfg.Poll)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Printf("server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")
	stopSweep()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("server shutdown:", err)
	}
	fmt.Println("server stopped")
}

// runStaleSweep periodically polls the gateway for transactions whose
// callback never arrived, so lost webhooks cannot strand a payment in
// PENDING forever.
func runStaleSweep(ctx context.Context, reconciler *service.Reconciler, cfg config.PollConfig) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
			reconciler.ReconcileStale(sweepCtx, cfg.StaleAge, cfg.BatchSize)
			cancel()
		}
	}
}
