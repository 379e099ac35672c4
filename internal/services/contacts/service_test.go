package contacts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"croaudit/internal/adapters/memory"
	"croaudit/internal/domain"
	"croaudit/internal/logger"
)

func setup(t *testing.T) (*Service, *memory.Contacts, *clockwork.FakeClock) {
	t.Helper()
	reports := memory.NewReports()
	require.NoError(t, reports.Save(context.Background(), "scan-1", domain.AuditReport{AuditID: "audit-1"}))
	store := memory.NewContacts()
	fc := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	return New(reports, store, fc, logger.NewTestLogger(t)), store, fc
}

func TestSubmit_CreatesThenReplays(t *testing.T) {
	svc, store, fc := setup(t)
	ctx := context.Background()
	lead := domain.Contact{AuditID: "audit-1", Name: " Sam Doe ", Email: "Sam@Example.com", Phone: "+1 555 0100"}

	created, err := svc.Submit(ctx, lead)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.Submit(ctx, lead)
	require.NoError(t, err)
	assert.False(t, created)

	saved := store.List("audit-1")
	require.Len(t, saved, 1)
	assert.Equal(t, "Sam Doe", saved[0].Name)
	assert.Equal(t, "sam@example.com", saved[0].Email)
	assert.Equal(t, fc.Now().UTC(), saved[0].SubmittedAt)
}

func TestSubmit_Validation(t *testing.T) {
	svc, _, _ := setup(t)
	tests := []struct {
		name  string
		lead  domain.Contact
		field string
	}{
		{"missing name", domain.Contact{AuditID: "audit-1", Email: "sam@example.com"}, "name"},
		{"bad email", domain.Contact{AuditID: "audit-1", Name: "Sam", Email: "sam"}, "email"},
		{"missing email", domain.Contact{AuditID: "audit-1", Name: "Sam"}, "email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), tt.lead)
			var invalid *domain.InvalidInputError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.field, invalid.Field)
		})
	}
}

func TestSubmit_UnknownAudit(t *testing.T) {
	svc, _, _ := setup(t)
	_, err := svc.Submit(context.Background(), domain.Contact{AuditID: "audit-2", Name: "Sam", Email: "sam@example.com"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

type failingStore struct{}

func (failingStore) Save(context.Context, domain.Contact) (bool, error) {
	return false, errors.New("connection reset")
}

func TestSubmit_StoreErrorIsReturned(t *testing.T) {
	reports := memory.NewReports()
	require.NoError(t, reports.Save(context.Background(), "scan-1", domain.AuditReport{AuditID: "audit-1"}))
	svc := New(reports, failingStore{}, nil, nil)

	_, err := svc.Submit(context.Background(), domain.Contact{AuditID: "audit-1", Name: "Sam", Email: "sam@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, domain.ErrCodeInternal, domain.CodeOf(err))
}
