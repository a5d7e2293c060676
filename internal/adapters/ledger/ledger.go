// Package ledger stores attendance, at most one record per identity per date.
//
// Writing a duplicate is not an error: it reports OutcomeAlreadyRecorded.
package ledger

import (
	"context"
	"sort"

	"github.com/okian/presence/internal/domain/model"
)

// Outcome is the result of a RecordPresent call.
type Outcome string

// Outcomes of RecordPresent.
const (
	OutcomeRecorded        Outcome = "recorded"
	OutcomeAlreadyRecorded Outcome = "already_recorded"
)

// Ledger is the durable attendance store.
type Ledger interface {
	// RecordPresent stores ev unless the identity already has a record for ev's date.
	RecordPresent(ctx context.Context, ev model.AttendanceEvent) (Outcome, error)
	// Query returns records for date, or every record when date is nil.
	// A single date is ordered by time; all records by date then time.
	Query(ctx context.Context, date *string) ([]model.AttendanceRecord, error)
}

// IdentityRegistrar is implemented by ledgers that keep an identity roster.
type IdentityRegistrar interface {
	RegisterIdentity(ctx context.Context, identity model.Identity) error
}

func validate(ev model.AttendanceEvent) error {
	if ev.IdentityID == "" {
		return ErrInvalidEvent
	}
	return nil
}

func validDate(date *string) error {
	if date != nil && !model.ValidDate(*date) {
		return ErrInvalidDate
	}
	return nil
}

func record(ev model.AttendanceEvent) model.AttendanceRecord {
	status := ev.Status
	if status == "" {
		status = model.StatusPresent
	}
	return model.AttendanceRecord{
		IdentityID:  ev.IdentityID,
		DisplayName: ev.DisplayName,
		Date:        ev.Date(),
		Time:        ev.Time(),
		Status:      status,
	}
}

// sortRecords orders by date, then time, then identity for stable output.
func sortRecords(rs []model.AttendanceRecord) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Date != rs[j].Date {
			return rs[i].Date < rs[j].Date
		}
		if rs[i].Time != rs[j].Time {
			return rs[i].Time < rs[j].Time
		}
		return rs[i].IdentityID < rs[j].IdentityID
	})
}
