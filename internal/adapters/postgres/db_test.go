package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"croaudit/internal/domain"
)

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate(nil))
	assert.ErrorIs(t, translate(pgx.ErrNoRows), domain.ErrNotFound)
	assert.ErrorIs(t, translate(fmt.Errorf("scan: %w", pgx.ErrNoRows)), domain.ErrNotFound)
	assert.ErrorIs(t, translate(&pgconn.PgError{Code: codeInvalidText, Message: "invalid input syntax for type uuid"}), domain.ErrNotFound)
	assert.ErrorIs(t, translate(&pgconn.PgError{Code: codeForeignKey}), domain.ErrNotFound)

	other := errors.New("conn refused")
	assert.Equal(t, other, translate(other))
	assert.NotErrorIs(t, translate(&pgconn.PgError{Code: codeUniqueViolation}), domain.ErrNotFound)
}

func TestMustAffect(t *testing.T) {
	assert.ErrorIs(t, mustAffect(pgconn.NewCommandTag("UPDATE 0"), nil), domain.ErrNotFound)
	assert.NoError(t, mustAffect(pgconn.NewCommandTag("UPDATE 1"), nil))
	assert.ErrorIs(t, mustAffect(pgconn.CommandTag{}, pgx.ErrNoRows), domain.ErrNotFound)
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	assert.NoError(t, err)
	assert.Len(t, entries, 2)
}
