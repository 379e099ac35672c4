package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"croaudit/internal/domain"
)

// openTestDB connects to CROAUDIT_TEST_DATABASE_URL and applies the
// migrations; the test is skipped when it is unset.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("CROAUDIT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CROAUDIT_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := Connect(ctx, url, 4)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))
	return db
}

func TestRepositories_Integration(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	sites, sessions, reports, contacts := NewSites(db), NewSessions(db), NewReports(db), NewContacts(db)

	host := uuid.NewString() + ".example.com"
	siteID, err := sites.GetOrCreate(ctx, host)
	require.NoError(t, err)
	again, err := sites.GetOrCreate(ctx, host)
	require.NoError(t, err)
	assert.Equal(t, siteID, again)

	in := domain.AuditInputs{
		WebsiteURL:            "https://" + host,
		MonthlyVisitors:       50000,
		CurrentConversionRate: 2.5,
		AverageOrderValue:     125,
		PrimaryGoal:           domain.GoalCartAbandonment,
	}
	scanID, err := sessions.Create(ctx, siteID, in)
	require.NoError(t, err)

	require.NoError(t, sessions.UpdateProgress(ctx, scanID, domain.SessionState{
		Progress:          40,
		ElapsedMS:         8000,
		CurrentPhaseLabel: "Scanning conversion funnels...",
		CurrentPhaseTag:   "funnels",
		RevealedChecklist: []string{"Page Speed Analysis"},
		IssuesFound:       2,
	}))
	rec, err := sessions.Get(ctx, scanID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanRunning, rec.Status)
	assert.Equal(t, in, rec.Inputs)
	assert.Equal(t, 40.0, rec.State.Progress)
	assert.Equal(t, []string{"Page Speed Analysis"}, rec.State.RevealedChecklist)

	report := domain.AuditReport{
		AuditID:    uuid.NewString(),
		WebsiteURL: in.WebsiteURL,
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, reports.Save(ctx, scanID, report))
	require.NoError(t, reports.Save(ctx, scanID, report))
	require.NoError(t, sessions.MarkCompleted(ctx, scanID, report.AuditID))

	// progress arriving after the terminal status is dropped
	require.NoError(t, sessions.UpdateProgress(ctx, scanID, domain.SessionState{Progress: 10, CurrentPhaseTag: "screenshot"}))
	rec, err = sessions.Get(ctx, scanID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanCompleted, rec.Status)
	assert.Equal(t, report.AuditID, rec.AuditID)
	assert.Equal(t, 100.0, rec.State.Progress)
	assert.Equal(t, "funnels", rec.State.CurrentPhaseTag)

	stored, err := reports.Get(ctx, report.AuditID)
	require.NoError(t, err)
	assert.Equal(t, report.AuditID, stored.AuditID)
	assert.Equal(t, report.WebsiteURL, stored.WebsiteURL)

	lead := domain.Contact{
		AuditID:     report.AuditID,
		Name:        "Sam Lee",
		Email:       "Sam@Example.com",
		SubmittedAt: time.Now().UTC(),
	}
	created, err := contacts.Save(ctx, lead)
	require.NoError(t, err)
	assert.True(t, created)
	lead.Email = "sam@example.com"
	created, err = contacts.Save(ctx, lead)
	require.NoError(t, err)
	assert.False(t, created)

	lead.AuditID = uuid.NewString()
	_, err = contacts.Save(ctx, lead)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRepositories_IntegrationMissingRows(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	sessions, reports := NewSessions(db), NewReports(db)

	_, err := sessions.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = sessions.Get(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, sessions.MarkCancelled(ctx, uuid.NewString()), domain.ErrNotFound)
	_, err = reports.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
