package postgres

import (
	"context"
	"strings"
)

// Sites implements ports.SiteRepository.
type Sites struct{ db *DB }

func NewSites(db *DB) *Sites { return &Sites{db: db} }

func (s *Sites) GetOrCreate(ctx context.Context, registrable string) (string, error) {
	registrable = strings.ToLower(registrable)
	var id string
	err := s.db.Pool.QueryRow(ctx, `
        INSERT INTO sites (registrable_domain)
        VALUES ($1)
        ON CONFLICT (registrable_domain) DO UPDATE SET registrable_domain = EXCLUDED.registrable_domain
        RETURNING id::text
    `, registrable).Scan(&id)
	return id, err
}
