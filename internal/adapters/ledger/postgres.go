package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/okian/presence/internal/adapters/postgres"
	"github.com/okian/presence/internal/domain/model"
)

const (
	insertAttendanceSQL = `
		INSERT INTO attendance (event_id, identity_id, display_name, date, time, status)
		VALUES ($1, $2, $3, $4::date, $5::time, $6)
		ON CONFLICT (identity_id, date) DO NOTHING`

	selectAttendanceSQL = `
		SELECT identity_id, display_name, to_char(date, 'YYYY-MM-DD'), to_char(time, 'HH24:MI:SS'), status
		FROM attendance`

	upsertIdentitySQL = `
		INSERT INTO identities (id, display_name)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name`
)

// Postgres is a ledger backed by the attendance table. The unique
// (identity_id, date) constraint makes duplicate writes no-ops.
type Postgres struct {
	db postgres.DB
}

// NewPostgres creates a ledger over db.
func NewPostgres(db postgres.DB) *Postgres {
	return &Postgres{db: db}
}

// RecordPresent implements Ledger.
func (p *Postgres) RecordPresent(ctx context.Context, ev model.AttendanceEvent) (Outcome, error) {
	if err := validate(ev); err != nil {
		return "", err
	}
	rec := record(ev)

	tag, err := p.db.Exec(ctx, insertAttendanceSQL,
		ev.ID, rec.IdentityID, rec.DisplayName, rec.Date, rec.Time, rec.Status)
	if err != nil {
		return "", fmt.Errorf("insert attendance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return OutcomeAlreadyRecorded, nil
	}
	return OutcomeRecorded, nil
}

// Query implements Ledger.
func (p *Postgres) Query(ctx context.Context, date *string) ([]model.AttendanceRecord, error) {
	if err := validDate(date); err != nil {
		return nil, err
	}

	var (
		rows pgx.Rows
		err  error
	)
	if date != nil {
		rows, err = p.db.Query(ctx, selectAttendanceSQL+` WHERE date = $1::date ORDER BY time, identity_id`, *date)
	} else {
		rows, err = p.db.Query(ctx, selectAttendanceSQL+` ORDER BY date, time, identity_id`)
	}
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var out []model.AttendanceRecord
	for rows.Next() {
		var r model.AttendanceRecord
		if err := rows.Scan(&r.IdentityID, &r.DisplayName, &r.Date, &r.Time, &r.Status); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return out, nil
}

// RegisterIdentity implements IdentityRegistrar.
func (p *Postgres) RegisterIdentity(ctx context.Context, identity model.Identity) error {
	if _, err := p.db.Exec(ctx, upsertIdentitySQL, identity.ID, identity.Name()); err != nil {
		return fmt.Errorf("register identity: %w", err)
	}
	return nil
}
