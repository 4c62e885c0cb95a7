// TaskHive authorization server. Issues and validates OAuth 2.0 tokens for
// the TaskHive task-management platform.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taskhivehq/taskhive/cmd/taskhive/auth"
	oauthhttp "github.com/taskhivehq/taskhive/cmd/taskhive/oauth"
	"github.com/taskhivehq/taskhive/internal/cache"
	"github.com/taskhivehq/taskhive/internal/config"
	"github.com/taskhivehq/taskhive/internal/events"
	"github.com/taskhivehq/taskhive/internal/oauth"
)

func main() {
	config.LoadEnv(".env")

	cfg, err := oauth.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	store := openStore()
	defer store.Close()

	publisher, err := events.NewPublisherFromEnv()
	if err != nil {
		log.Printf("events: audit publishing disabled: %v", err)
		publisher = events.NopPublisher{}
	}
	defer publisher.Close()

	ctx := context.Background()
	if cfg.SeedFile != "" {
		n, err := oauth.SeedClients(ctx, store, cfg.SeedFile)
		if err != nil {
			log.Fatalf("seed: %v", err)
		}
		log.Printf("seed: loaded %d clients from %s", n, cfg.SeedFile)
	}

	registry := oauth.NewRegistry(store)
	tokens := oauth.NewTokenManager(store, cfg, publisher)
	issuer := oauth.NewCodeIssuer(store, cfg)
	device := oauth.NewDeviceFlow(store, cfg, publisher)
	exchanger := oauth.NewExchanger(store, registry, tokens, cfg, publisher)

	clientCache := cache.NewClientCache(5 * time.Minute)
	middleware := auth.RequireAuth(tokens, registry, clientCache)
	principals := auth.NewServiceTokenResolver(auth.NewBearerResolver(tokens))

	server := oauthhttp.NewServer(cfg, issuer, device, exchanger, registry, tokens, principals)

	mux := http.NewServeMux()
	server.Routes(mux, middleware.HandlerFunc)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	stopPurge := startPurgeLoop(store)
	defer stopPurge()

	addr := ":" + envOr("PORT", "8080")
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("taskhive: authorization server listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("taskhive: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("server: shutdown: %v", err)
	}
}

// openStore connects to Postgres/Redis when configured and falls back to the
// in-memory store for local development.
func openStore() oauth.Storage {
	if os.Getenv("TASKHIVE_DATABASE_URL") == "" && os.Getenv("DATABASE_URL") == "" {
		log.Println("storage: no database configured, using in-memory store (development only)")
		return oauth.NewMemoryStore()
	}
	store, err := oauth.NewStoreFromEnv()
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	return store
}

// startPurgeLoop deletes expired codes, requests, and tokens in the
// background. Expiry is also enforced lazily on every read, so the loop is
// about keeping tables small, not correctness.
func startPurgeLoop(store oauth.Storage) func() {
	interval := 10 * time.Minute
	if raw := os.Getenv("TASKHIVE_OAUTH_PURGE_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			interval = d
		}
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				if err := store.PurgeExpired(ctx, time.Now()); err != nil {
					log.Printf("storage: purge: %v", err)
				}
				cancel()
			case <-done:
				return
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(done)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
