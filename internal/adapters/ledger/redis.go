package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/okian/presence/internal/domain/model"
)

// Redis keeps one hash per date (field = identity id) plus a set of dates.
// HSETNX gives the once-per-day guarantee; the date set is updated in the
// same transaction.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis creates a ledger over client. Keys are namespaced by prefix.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "presence"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) dayKey(date string) string { return r.prefix + ":attendance:" + date }
func (r *Redis) datesKey() string         { return r.prefix + ":attendance:dates" }
func (r *Redis) identitiesKey() string    { return r.prefix + ":identities" }

// RecordPresent implements Ledger.
func (r *Redis) RecordPresent(ctx context.Context, ev model.AttendanceEvent) (Outcome, error) {
	if err := validate(ev); err != nil {
		return "", err
	}
	rec := record(ev)
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode attendance: %w", err)
	}

	// The record and its date index are written in one MULTI so a day is
	// never stored without being listed.
	var added *redis.BoolCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		added = pipe.HSetNX(ctx, r.dayKey(rec.Date), rec.IdentityID, payload)
		pipe.SAdd(ctx, r.datesKey(), rec.Date)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("record attendance: %w", err)
	}
	if !added.Val() {
		return OutcomeAlreadyRecorded, nil
	}
	return OutcomeRecorded, nil
}

// Query implements Ledger.
func (r *Redis) Query(ctx context.Context, date *string) ([]model.AttendanceRecord, error) {
	if err := validDate(date); err != nil {
		return nil, err
	}

	var dates []string
	if date != nil {
		dates = []string{*date}
	} else {
		var err error
		dates, err = r.client.SMembers(ctx, r.datesKey()).Result()
		if err != nil {
			return nil, fmt.Errorf("list attendance dates: %w", err)
		}
	}

	var out []model.AttendanceRecord
	for _, d := range dates {
		fields, err := r.client.HGetAll(ctx, r.dayKey(d)).Result()
		if err != nil {
			return nil, fmt.Errorf("read attendance %s: %w", d, err)
		}
		for id, raw := range fields {
			var rec model.AttendanceRecord
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				return nil, fmt.Errorf("decode attendance %s/%s: %w", d, id, err)
			}
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out, nil
}

// RegisterIdentity implements IdentityRegistrar.
func (r *Redis) RegisterIdentity(ctx context.Context, identity model.Identity) error {
	if err := r.client.HSet(ctx, r.identitiesKey(), identity.ID, identity.Name()).Err(); err != nil {
		return fmt.Errorf("register identity: %w", err)
	}
	return nil
}
