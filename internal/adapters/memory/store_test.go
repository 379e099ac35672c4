package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"croaudit/internal/domain"
)

func TestSites_GetOrCreateIsStable(t *testing.T) {
	ctx := context.Background()
	s := NewSites()

	a, err := s.GetOrCreate(ctx, "Example.com")
	require.NoError(t, err)
	b, err := s.GetOrCreate(ctx, "example.com")
	require.NoError(t, err)
	c, err := s.GetOrCreate(ctx, "example.org")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestSessions_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewSessions()

	id, err := s.Create(ctx, "site-1", domain.AuditInputs{WebsiteURL: "https://example.com"})
	require.NoError(t, err)

	rec, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanRunning, rec.Status)
	assert.NotNil(t, rec.State.RevealedChecklist)

	state := domain.SessionState{Progress: 42, RevealedChecklist: []string{"Page Speed Analysis"}, IssuesFound: 2}
	require.NoError(t, s.UpdateProgress(ctx, id, state))
	state.RevealedChecklist[0] = "mutated"

	rec, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 42.0, rec.State.Progress)
	assert.Equal(t, []string{"Page Speed Analysis"}, rec.State.RevealedChecklist)

	require.NoError(t, s.MarkCompleted(ctx, id, "audit-9"))
	rec, err = s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanCompleted, rec.Status)
	assert.Equal(t, "audit-9", rec.AuditID)
	assert.Equal(t, 100.0, rec.State.Progress)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, s.MarkCancelled(ctx, "missing"), domain.ErrNotFound)
}

func TestReports_SaveGet(t *testing.T) {
	ctx := context.Background()
	r := NewReports()

	require.NoError(t, r.Save(ctx, "scan-1", domain.AuditReport{AuditID: "a1", ConfidenceScore: 87}))
	got, err := r.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 87, got.ConfidenceScore)

	_, err = r.Get(ctx, "a2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestContacts_SaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c := NewContacts()
	lead := domain.Contact{AuditID: "a1", Name: "Sam", Email: "sam@example.com"}

	created, err := c.Save(ctx, lead)
	require.NoError(t, err)
	assert.True(t, created)

	lead.Email = "SAM@example.com"
	created, err = c.Save(ctx, lead)
	require.NoError(t, err)
	assert.False(t, created)

	assert.Len(t, c.List("a1"), 1)
}
