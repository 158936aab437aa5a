package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/cristoferscalante/v1tr0-scheduling/internal/config"
	"github.com/cristoferscalante/v1tr0-scheduling/internal/db"
	"github.com/cristoferscalante/v1tr0-scheduling/internal/gcal"
	redisclient "github.com/cristoferscalante/v1tr0-scheduling/internal/redis"
	"github.com/cristoferscalante/v1tr0-scheduling/internal/scheduling"
)

// The completion worker periodically marks meetings whose end time has
// passed as completed, which frees their (date, time) slot in the
// active-slot unique index.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("completion-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running completion worker in env=%s interval=%s", cfg.Env, cfg.WorkerInterval)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

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

	// The worker never mirrors anything, a disabled mirror keeps the wiring uniform.
	mirror, err := gcal.NewMirror(rootCtx, "", cfg.GoogleCalendarID, rules.Location)
	if err != nil {
		log.Fatalf("calendar mirror setup error: %v", err)
	}

	repo := scheduling.NewPgRepository(pgPool)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	cache := scheduling.NewAvailabilityCache(cfg.AvailabilityTTL, nil)
	svc := scheduling.NewService(repo, locker, cache, mirror, rules, cfg.DefaultDuration, nil)

	// Run once at startup
	runOnce(rootCtx, svc)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Println("shutdown signal received, stopping completion worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc)
		}
	}
}

func runOnce(ctx context.Context, svc *scheduling.Service) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := svc.CompletePastMeetings(runCtx); err != nil {
		log.Printf("completion run error: %v", err)
		return
	}
	log.Printf("completion run complete in %s", time.Since(start))
}
