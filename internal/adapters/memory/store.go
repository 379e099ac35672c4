// Package memory holds process-local repositories, used when no database is
// configured and in tests.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"croaudit/internal/domain"
	"croaudit/internal/ports"
)

type Sites struct {
	mu  sync.Mutex
	ids map[string]string
}

func NewSites() *Sites { return &Sites{ids: map[string]string{}} }

func (s *Sites) GetOrCreate(_ context.Context, registrable string) (string, error) {
	registrable = strings.ToLower(registrable)
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.ids[registrable]; ok {
		return id, nil
	}
	id := uuid.NewString()
	s.ids[registrable] = id
	return id, nil
}

type Sessions struct {
	mu   sync.RWMutex
	rows map[string]ports.SessionRecord
	now  func() time.Time
}

func NewSessions() *Sessions {
	return &Sessions{rows: map[string]ports.SessionRecord{}, now: time.Now}
}

func (s *Sessions) Create(_ context.Context, siteID string, in domain.AuditInputs) (string, error) {
	id := uuid.NewString()
	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[id] = ports.SessionRecord{
		ID:        id,
		SiteID:    siteID,
		Inputs:    in,
		Status:    domain.ScanRunning,
		State:     domain.SessionState{RevealedChecklist: []string{}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	return id, nil
}

func (s *Sessions) update(scanID string, fn func(*ports.SessionRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[scanID]
	if !ok {
		return domain.ErrNotFound
	}
	fn(&rec)
	rec.UpdatedAt = s.now().UTC()
	s.rows[scanID] = rec
	return nil
}

func (s *Sessions) UpdateProgress(_ context.Context, scanID string, state domain.SessionState) error {
	return s.update(scanID, func(r *ports.SessionRecord) { r.State = state.Clone() })
}

func (s *Sessions) MarkCompleted(_ context.Context, scanID, auditID string) error {
	return s.update(scanID, func(r *ports.SessionRecord) {
		r.Status = domain.ScanCompleted
		r.AuditID = auditID
		r.State.Progress = 100
	})
}

func (s *Sessions) MarkFailed(_ context.Context, scanID, reason string) error {
	return s.update(scanID, func(r *ports.SessionRecord) {
		r.Status = domain.ScanFailed
		r.FailureReason = reason
	})
}

func (s *Sessions) MarkCancelled(_ context.Context, scanID string) error {
	return s.update(scanID, func(r *ports.SessionRecord) { r.Status = domain.ScanCancelled })
}

func (s *Sessions) Get(_ context.Context, scanID string) (ports.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.rows[scanID]
	if !ok {
		return ports.SessionRecord{}, domain.ErrNotFound
	}
	rec.State = rec.State.Clone()
	return rec, nil
}

type Reports struct {
	mu   sync.RWMutex
	rows map[string]domain.AuditReport
}

func NewReports() *Reports { return &Reports{rows: map[string]domain.AuditReport{}} }

func (r *Reports) Save(_ context.Context, _ string, report domain.AuditReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[report.AuditID] = report
	return nil
}

func (r *Reports) Get(_ context.Context, auditID string) (domain.AuditReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rep, ok := r.rows[auditID]
	if !ok {
		return domain.AuditReport{}, domain.ErrNotFound
	}
	return rep, nil
}

type Contacts struct {
	mu   sync.Mutex
	rows map[string]domain.Contact
}

func NewContacts() *Contacts { return &Contacts{rows: map[string]domain.Contact{}} }

func (c *Contacts) Save(_ context.Context, contact domain.Contact) (bool, error) {
	key := contact.AuditID + "\x00" + strings.ToLower(contact.Email)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rows[key]; ok {
		return false, nil
	}
	c.rows[key] = contact
	return true, nil
}

// List returns the stored contacts for auditID.
func (c *Contacts) List(auditID string) []domain.Contact {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Contact
	for _, contact := range c.rows {
		if contact.AuditID == auditID {
			out = append(out, contact)
		}
	}
	return out
}
