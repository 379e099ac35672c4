// Package rediscache decorates a report repository with a redis read-through
// cache. Reports never change once written, so entries are only expired.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"croaudit/internal/domain"
	"croaudit/internal/logger"
	"croaudit/internal/ports"
)

const keyPrefix = "croaudit:report:"

// Options mirrors the redis section of the configuration.
type Options struct {
	Address  string
	Password string
	DB       int
}

// NewClient builds a redis client with the pool settings used across the service.
func NewClient(opts Options) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         opts.Address,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
}

// Ping tests the Redis connection.
func Ping(ctx context.Context, c *redis.Client) error {
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Reports caches ReportRepository reads. Cache failures are logged and fall
// through to the backing repository.
type Reports struct {
	next   ports.ReportRepository
	client *redis.Client
	ttl    time.Duration
	log    logger.Logger
}

func NewReports(next ports.ReportRepository, client *redis.Client, ttl time.Duration, log logger.Logger) *Reports {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Reports{next: next, client: client, ttl: ttl, log: log}
}

func key(auditID string) string { return keyPrefix + auditID }

func (r *Reports) Save(ctx context.Context, scanID string, report domain.AuditReport) error {
	if err := r.next.Save(ctx, scanID, report); err != nil {
		return err
	}
	r.store(ctx, report)
	return nil
}

func (r *Reports) Get(ctx context.Context, auditID string) (domain.AuditReport, error) {
	raw, err := r.client.Get(ctx, key(auditID)).Bytes()
	switch {
	case err == nil:
		var rep domain.AuditReport
		if uErr := json.Unmarshal(raw, &rep); uErr == nil {
			return rep, nil
		}
		r.log.Warn("discarding undecodable cached report", map[string]interface{}{"audit_id": auditID})
	case !errors.Is(err, redis.Nil):
		r.log.Warn("report cache read failed", map[string]interface{}{"audit_id": auditID, "error": err.Error()})
	}

	rep, err := r.next.Get(ctx, auditID)
	if err != nil {
		return domain.AuditReport{}, err
	}
	r.store(ctx, rep)
	return rep, nil
}

func (r *Reports) store(ctx context.Context, report domain.AuditReport) {
	raw, err := json.Marshal(report)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, key(report.AuditID), raw, r.ttl).Err(); err != nil {
		r.log.Warn("report cache write failed", map[string]interface{}{"audit_id": report.AuditID, "error": err.Error()})
	}
}
