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

	"github.com/joho/godotenv"

	"boltline/backend/internal/cache"
	"boltline/backend/internal/config"
	"boltline/backend/internal/httpapi"
	"boltline/backend/internal/service"
	"boltline/backend/internal/store"
	"boltline/backend/internal/store/pack"
	pgstore "boltline/backend/internal/store/postgres"
)

func main() {
	// .env is a development convenience; in production the environment is
	// already set.
	_ = godotenv.Load()

	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with the file store fallback", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Println("repository: postgres")
	} else {
		fileStore, err := pack.LoadOrInit(cfg.DataDir)
		if err != nil {
			log.Fatalf("open data dir %s: %v", cfg.DataDir, err)
		}
		repo = fileStore
		log.Printf("repository: file store at %s", cfg.DataDir)
	}

	infoCache := cache.InfoCache(cache.NoopInfoCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisInfoCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
		} else {
			infoCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	svc := service.New(repo, infoCache, time.Duration(cfg.InfoCacheTTLSeconds)*time.Second, log.Default())
	auth := httpapi.NewAuthManager(
		cfg.AuthSecret,
		time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute,
		cfg.SeedAdminPassword,
		cfg.SeedCashierPassword,
	)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("cart backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.SeedAdminPassword == "" && cfg.SeedCashierPassword == "" {
		return fmt.Errorf("at least one of SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD must be set")
	}
	for _, password := range []string{cfg.SeedAdminPassword, cfg.SeedCashierPassword} {
		if password != "" && len(password) < 8 {
			return fmt.Errorf("seed passwords must be at least 8 characters")
		}
	}
	return nil
}
