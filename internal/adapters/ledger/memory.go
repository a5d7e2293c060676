package ledger

import (
	"context"
	"sync"

	"github.com/okian/presence/internal/domain/model"
)

type dayKey struct {
	identity string
	date     string
}

// Memory is an in-process ledger. Records live until the process exits.
type Memory struct {
	mu         sync.RWMutex
	records    map[dayKey]model.AttendanceRecord
	identities map[string]model.Identity
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		records:    make(map[dayKey]model.AttendanceRecord),
		identities: make(map[string]model.Identity),
	}
}

// RecordPresent implements Ledger.
func (m *Memory) RecordPresent(_ context.Context, ev model.AttendanceEvent) (Outcome, error) {
	if err := validate(ev); err != nil {
		return "", err
	}
	rec := record(ev)

	m.mu.Lock()
	defer m.mu.Unlock()

	k := dayKey{identity: rec.IdentityID, date: rec.Date}
	if _, ok := m.records[k]; ok {
		return OutcomeAlreadyRecorded, nil
	}
	m.records[k] = rec
	return OutcomeRecorded, nil
}

// Query implements Ledger.
func (m *Memory) Query(_ context.Context, date *string) ([]model.AttendanceRecord, error) {
	if err := validDate(date); err != nil {
		return nil, err
	}

	m.mu.RLock()
	out := make([]model.AttendanceRecord, 0, len(m.records))
	for k, r := range m.records {
		if date != nil && k.date != *date {
			continue
		}
		out = append(out, r)
	}
	m.mu.RUnlock()

	sortRecords(out)
	return out, nil
}

// RegisterIdentity implements IdentityRegistrar.
func (m *Memory) RegisterIdentity(_ context.Context, identity model.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[identity.ID] = identity
	return nil
}

// Identities returns the registered roster.
func (m *Memory) Identities() []model.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Identity, 0, len(m.identities))
	for _, id := range m.identities {
		out = append(out, id)
	}
	return out
}
