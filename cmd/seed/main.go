package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cristoferscalante/v1tr0-scheduling/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	clients, err := seedClients(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed clients: %v", err)
	}
	if err := seedMeetings(context.Background(), pool, clients, 10); err != nil {
		log.Fatalf("seed meetings: %v", err)
	}

	log.Println("seed complete")
}

func seedClients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d clients", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		phone := gofakeit.Phone()
		company := gofakeit.Company()

		_, err := tx.Exec(ctx, `
			INSERT INTO clients (id, name, email, phone, company, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
			ON CONFLICT (email) DO NOTHING
		`, id, gofakeit.Name(), gofakeit.Email(), phone, company)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("clients seeded")
	return ids, nil
}

// seedMeetings books random working-day slots over the coming weeks,
// one meeting per slot so the unique index never trips.
func seedMeetings(ctx context.Context, pool *pgxpool.Pool, clients []uuid.UUID, businessDays int) error {
	log.Printf("seeding meetings across %d business days", businessDays)

	slotTimes := []string{"14:00", "14:30", "15:00", "15:30", "16:00", "16:30", "17:00", "17:30"}
	meetingTypes := []string{"discovery", "kickoff", "review", "support"}
	statuses := []string{"scheduled", "confirmed"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	day := time.Now().AddDate(0, 0, 1)
	for seeded := 0; seeded < businessDays; {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			day = day.AddDate(0, 0, 1)
			continue
		}

		date := day.Format("2006-01-02")
		for _, slot := range slotTimes {
			if gofakeit.Number(0, 2) != 0 {
				continue // leave most slots open
			}

			client := clients[gofakeit.Number(0, len(clients)-1)]
			title := gofakeit.Sentence(4)
			mtype := meetingTypes[gofakeit.Number(0, len(meetingTypes)-1)]
			status := statuses[gofakeit.Number(0, len(statuses)-1)]

			_, err := tx.Exec(ctx, `
				INSERT INTO meetings (id, client_id, meeting_date, meeting_time, duration_minutes,
					status, title, meeting_type, created_at, updated_at)
				VALUES ($1, $2, $3::date, $4, 60, $5, $6, $7, now(), now())
			`, uuid.New(), client, date, slot, status, title, mtype)
			if err != nil {
				return err
			}
		}

		seeded++
		day = day.AddDate(0, 0, 1)
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("meetings seeded")
	return nil
}
