package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cristoferscalante/v1tr0-scheduling/internal/api"
	"github.com/cristoferscalante/v1tr0-scheduling/internal/config"
	"github.com/cristoferscalante/v1tr0-scheduling/internal/db"
	"github.com/cristoferscalante/v1tr0-scheduling/internal/gcal"
	redisclient "github.com/cristoferscalante/v1tr0-scheduling/internal/redis"
	"github.com/cristoferscalante/v1tr0-scheduling/internal/scheduling"
)

const version = "1.0.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s timezone=%s window=%s-%s",
		cfg.Env, cfg.HTTPPort, cfg.BusinessTimezone, cfg.WorkdayStart, cfg.WorkdayEnd)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	rules, err := scheduling.NewRules(cfg.BusinessTimezone, cfg.WorkdayStart, cfg.WorkdayEnd,
		cfg.SlotStepMinutes, cfg.LeadTime)
	if err != nil {
		log.Fatalf("invalid scheduling rules: %v", err)
	}

	mirror, err := gcal.NewMirror(rootCtx, cfg.GoogleCredentialsFile, cfg.GoogleCalendarID, rules.Location)
	if err != nil {
		log.Fatalf("calendar mirror setup error: %v", err)
	}
	if mirror.Enabled() {
		log.Printf("google calendar mirror enabled calendar_id=%s", cfg.GoogleCalendarID)
	} else {
		log.Println("google calendar mirror disabled (no credentials)")
	}

	repo := scheduling.NewPgRepository(pgPool)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	cache := scheduling.NewAvailabilityCache(cfg.AvailabilityTTL, nil)
	svc := scheduling.NewService(repo, locker, cache, mirror, rules, cfg.DefaultDuration, nil)

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		PgPool:  pgPool,
		Redis:   rdb,
		Env:     cfg.Env,
		Version: version,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()
	log.Println("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
}
