// Package main, eventchat reference backend'inin giriş noktasıdır.
//
// Wire-up sırası:
//  1. Config
//  2. Database
//  3. Repository'ler
//  4. Metrics registry + WebSocket Hub
//  5. Service'ler (+ demo seed)
//  6. Handler'lar ve route'lar
//  7. CORS
//  8. HTTP Server + graceful shutdown
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/cors"

	"github.com/akinalp/eventchat/config"
	"github.com/akinalp/eventchat/database"
	"github.com/akinalp/eventchat/ws"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("[main] eventchat server starting...")

	// ─── 1. Config ───
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[main] failed to load config: %v", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Fatalf("[main] invalid server config: %v", err)
	}
	log.Printf("[main] config loaded (port=%d)", cfg.Server.Port)

	// ─── 2. Database ───
	db, err := database.New(cfg.Database.Path, database.Migrations())
	if err != nil {
		log.Fatalf("[main] failed to initialize database: %v", err)
	}
	defer db.Close()

	// ─── 3. Repositories ───
	repos := initRepositories(db.Conn)

	// ─── 4. Metrics + Hub ───
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Hub oda yetkisini chat service'e sorar, chat service de hub'a yayın
	// yapar. Closure, svcs atandıktan sonra çağrılır.
	var svcs *Services
	hub := ws.NewHub(ws.AuthorizerFunc(func(ctx context.Context, userID, chatID string) bool {
		return svcs.Chat.CanAccessChat(ctx, userID, chatID)
	}), ws.NewMetrics(reg))

	// ─── 5. Services ───
	limiters := initRateLimiters(cfg)
	defer limiters.Stop()

	svcs = initServices(repos, hub, limiters, cfg)
	registerHubCallbacks(hub, svcs.ReadState)
	go hub.Run()

	if cfg.Database.SeedDemo {
		seedDemoAccounts(context.Background(), svcs.Auth)
	}

	// ─── 6. Handlers + Routes ───
	mux := http.NewServeMux()
	initRoutes(mux, initHandlers(svcs, limiters, hub), svcs.Auth, repos.User, db.Conn, reg)

	// ─── 7. CORS ───
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	// ─── 8. HTTP Server ───
	// WriteTimeout yok: /ws bağlantıları uzun ömürlü, yazma deadline'ı
	// client.go'da mesaj başına ayarlanır.
	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           corsHandler.Handler(mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("[main] server listening on %s", cfg.Server.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[main] server error: %v", err)
		}
	}()

	<-done
	log.Println("[main] shutting down...")

	// Önce WS bağlantıları, sonra HTTP (mevcut istekler için 5sn)
	hub.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[main] forced shutdown: %v", err)
	}

	log.Println("[main] server stopped gracefully")
}
