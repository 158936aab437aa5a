package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanClient(row pgx.Row) (*Client, error) {
	var c Client

	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Email,
		&c.Phone,
		&c.Company,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}

	return &c, nil
}

func scanMeeting(row pgx.Row) (*Meeting, error) {
	var m Meeting
	var date time.Time

	err := row.Scan(
		&m.ID,
		&m.ClientID,
		&date,
		&m.MeetingTime,
		&m.DurationMinutes,
		&m.Status,
		&m.Title,
		&m.Description,
		&m.MeetingType,
		&m.CalendarEventID,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMeetingNotFound
		}
		return nil, err
	}

	m.MeetingDate = date.Format(dateLayout)
	return &m, nil
}

func isActiveSlotConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

const meetingColumns = `id, client_id, meeting_date, meeting_time, duration_minutes, status,
		title, description, meeting_type, google_calendar_event_id, created_at, updated_at`

// Interface methods

func (r *PgRepository) FindOrCreateClient(ctx context.Context, name, email string, phone, company *string) (*Client, error) {
	// The no-op update makes the insert return the existing row on conflict,
	// so lookup and create stay a single statement. Existing name/phone are
	// deliberately left untouched.
	row := r.pool.QueryRow(ctx, `
		INSERT INTO clients (id, name, email, phone, company, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (email) DO UPDATE SET updated_at = now()
		RETURNING id, name, email, phone, company, created_at, updated_at
	`, uuid.New(), name, email, phone, company)
	return scanClient(row)
}

func (r *PgRepository) GetClientByID(ctx context.Context, id uuid.UUID) (*Client, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, company, created_at, updated_at
		FROM clients
		WHERE id = $1
	`, id)
	return scanClient(row)
}

func (r *PgRepository) ActiveMeetingsByDate(ctx context.Context, date string) ([]Meeting, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+meetingColumns+`
		FROM meetings
		WHERE meeting_date = $1::date
		  AND status IN ('scheduled', 'confirmed')
		ORDER BY meeting_time
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMeetings(rows)
}

func (r *PgRepository) ActiveMeetingsByDates(ctx context.Context, dates []string) (map[string][]Meeting, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+meetingColumns+`
		FROM meetings
		WHERE meeting_date = ANY($1::date[])
		  AND status IN ('scheduled', 'confirmed')
		ORDER BY meeting_date, meeting_time
	`, dates)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	meetings, err := collectMeetings(rows)
	if err != nil {
		return nil, err
	}

	byDate := make(map[string][]Meeting, len(dates))
	for _, m := range meetings {
		byDate[m.MeetingDate] = append(byDate[m.MeetingDate], m)
	}
	return byDate, nil
}

func (r *PgRepository) CreateMeeting(ctx context.Context, m Meeting) (*Meeting, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO meetings (id, client_id, meeting_date, meeting_time, duration_minutes, status,
			title, description, meeting_type, created_at, updated_at)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING `+meetingColumns+`
	`, uuid.New(), m.ClientID, m.MeetingDate, m.MeetingTime, m.DurationMinutes, m.Status,
		m.Title, m.Description, m.MeetingType)

	created, err := scanMeeting(row)
	if err != nil {
		if isActiveSlotConflict(err) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) GetMeetingByID(ctx context.Context, id uuid.UUID) (*Meeting, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+meetingColumns+`
		FROM meetings
		WHERE id = $1
	`, id)
	return scanMeeting(row)
}

func (r *PgRepository) GetMeetingDetail(ctx context.Context, id uuid.UUID) (*MeetingDetail, error) {
	meeting, err := r.GetMeetingByID(ctx, id)
	if err != nil {
		return nil, err
	}

	client, err := r.GetClientByID(ctx, meeting.ClientID)
	if err != nil {
		return nil, err
	}

	return &MeetingDetail{Meeting: *meeting, Client: client}, nil
}

func (r *PgRepository) UpdateMeeting(ctx context.Context, id uuid.UUID, patch MeetingPatch) (*Meeting, error) {
	var status *string
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE meetings
		SET meeting_date     = COALESCE($2::date, meeting_date),
		    meeting_time     = COALESCE($3, meeting_time),
		    duration_minutes = COALESCE($4::int, duration_minutes),
		    status           = COALESCE($5, status),
		    title            = COALESCE($6, title),
		    description      = COALESCE($7, description),
		    meeting_type     = COALESCE($8, meeting_type),
		    updated_at       = now()
		WHERE id = $1
		RETURNING `+meetingColumns+`
	`, id, patch.MeetingDate, patch.MeetingTime, patch.DurationMinutes, status,
		patch.Title, patch.Description, patch.MeetingType)

	updated, err := scanMeeting(row)
	if err != nil {
		if isActiveSlotConflict(err) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return updated, nil
}

func (r *PgRepository) DeleteMeeting(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM meetings WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMeetingNotFound
	}
	return nil
}

func (r *PgRepository) SetCalendarEventID(ctx context.Context, id uuid.UUID, eventID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE meetings
		SET google_calendar_event_id = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, eventID)
	if err != nil {
		return fmt.Errorf("set calendar event id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMeetingNotFound
	}
	return nil
}

func (r *PgRepository) FindActiveEndedBefore(ctx context.Context, cutoff time.Time) ([]Meeting, error) {
	// cutoff arrives as business-timezone wall-clock; compare against the
	// naive date+time columns without any timezone conversion.
	rows, err := r.pool.Query(ctx, `
		SELECT `+meetingColumns+`
		FROM meetings
		WHERE status IN ('scheduled', 'confirmed')
		  AND meeting_date + meeting_time::time
		      + make_interval(mins => duration_minutes) < $1::timestamp
	`, cutoff.Format("2006-01-02 15:04:05"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMeetings(rows)
}

func (r *PgRepository) ListMeetingsByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]MeetingDetail, error) {
	client, err := r.GetClientByID(ctx, clientID)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+meetingColumns+`
		FROM meetings
		WHERE client_id = $1
		ORDER BY meeting_date DESC, meeting_time DESC
		LIMIT $2 OFFSET $3
	`, clientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	meetings, err := collectMeetings(rows)
	if err != nil {
		return nil, err
	}

	details := make([]MeetingDetail, 0, len(meetings))
	for _, m := range meetings {
		details = append(details, MeetingDetail{Meeting: m, Client: client})
	}
	return details, nil
}

func collectMeetings(rows pgx.Rows) ([]Meeting, error) {
	var result []Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
