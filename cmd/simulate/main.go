// simulate hammers the booking API with racing requests for a narrow set of
// slots and then verifies in Postgres that no (date, time) pair ended up with
// more than one active meeting.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/cristoferscalante/v1tr0-scheduling/internal/db"
)

type SimConfig struct {
	APIBaseURL  string
	Workers     int
	Duration    time.Duration
	Date        string
	PostgresDSN string
}

type Metrics struct {
	Total     int64
	Booked    int64
	Conflict  int64
	Rejected  int64
	Error     int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&m.Total, 1)
	switch {
	case err != nil:
		atomic.AddInt64(&m.Error, 1)
	case status == http.StatusCreated:
		atomic.AddInt64(&m.Booked, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&m.Conflict, 1)
	case status == http.StatusUnprocessableEntity:
		atomic.AddInt64(&m.Rejected, 1)
	default:
		atomic.AddInt64(&m.Error, 1)
	}

	m.mu.Lock()
	m.latencies = append(m.latencies, latency)
	m.mu.Unlock()
}

func (m *Metrics) Report() {
	m.mu.Lock()
	defer m.mu.Unlock()

	fmt.Printf("total=%d booked=%d conflict=%d rejected=%d error=%d\n",
		m.Total, m.Booked, m.Conflict, m.Rejected, m.Error)

	if len(m.latencies) == 0 {
		return
	}

	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	p := func(q int) time.Duration {
		idx := len(sorted) * q / 100
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		return sorted[idx]
	}
	fmt.Printf("latency min=%s p50=%s p95=%s max=%s\n",
		sorted[0], p(50), p(95), sorted[len(sorted)-1])
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := SimConfig{PostgresDSN: os.Getenv("POSTGRES_DSN")}
	flag.StringVar(&cfg.APIBaseURL, "api", "http://127.0.0.1:8080", "booking API base URL")
	flag.IntVar(&cfg.Workers, "workers", 20, "concurrent booking workers")
	flag.DurationVar(&cfg.Duration, "duration", 15*time.Second, "how long to run")
	flag.StringVar(&cfg.Date, "date", nextBusinessDay().Format("2006-01-02"), "target date (YYYY-MM-DD)")
	flag.Parse()

	slotTimes := []string{"14:00", "14:30", "15:00", "15:30", "16:00", "16:30", "17:00", "17:30"}

	log.Printf("simulating %d workers against %s for %s on %s",
		cfg.Workers, cfg.APIBaseURL, cfg.Duration, cfg.Date)

	gofakeit.Seed(time.Now().UnixNano())

	var metrics Metrics
	deadline := time.Now().Add(cfg.Duration)
	client := &http.Client{Timeout: 10 * time.Second}

	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				slot := slotTimes[rand.Intn(len(slotTimes))]
				attemptBooking(client, cfg.APIBaseURL, cfg.Date, slot, &metrics)
			}
		}()
	}
	wg.Wait()

	metrics.Report()

	if cfg.PostgresDSN != "" {
		if err := verifyNoDoubleBooking(cfg.PostgresDSN, cfg.Date); err != nil {
			log.Fatalf("verification failed: %v", err)
		}
		log.Println("verification passed: no slot holds more than one active meeting")
	} else {
		log.Println("POSTGRES_DSN not set, skipping database verification")
	}
}

func attemptBooking(client *http.Client, baseURL, date, slot string, metrics *Metrics) {
	payload := map[string]any{
		"date":  date,
		"time":  slot,
		"name":  gofakeit.Name(),
		"email": gofakeit.Email(),
	}
	body, _ := json.Marshal(payload)

	start := time.Now()
	resp, err := client.Post(baseURL+"/bookings", "application/json", bytes.NewReader(body))
	latency := time.Since(start)

	if err != nil {
		metrics.Record(latency, 0, err)
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	metrics.Record(latency, resp.StatusCode, nil)
}

func verifyNoDoubleBooking(dsn, date string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, `
		SELECT meeting_time, count(*)
		FROM meetings
		WHERE meeting_date = $1::date
		  AND status IN ('scheduled', 'confirmed')
		GROUP BY meeting_time
		HAVING count(*) > 1
	`, date)
	if err != nil {
		return err
	}
	defer rows.Close()

	var violations int
	for rows.Next() {
		var slot string
		var count int
		if err := rows.Scan(&slot, &count); err != nil {
			return err
		}
		log.Printf("DOUBLE BOOKING: slot %s has %d active meetings", slot, count)
		violations++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if violations > 0 {
		return fmt.Errorf("%d slots double-booked", violations)
	}
	return nil
}

func nextBusinessDay() time.Time {
	day := time.Now().AddDate(0, 0, 1)
	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, 1)
	}
	return day
}
