// Package contacts captures leads against finished audits.
package contacts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"croaudit/internal/domain"
	"croaudit/internal/logger"
	"croaudit/internal/metrics"
	"croaudit/internal/ports"
	"croaudit/internal/schemas"
)

type Service struct {
	reports  ports.ReportRepository
	contacts ports.ContactRepository
	clock    clockwork.Clock
	log      logger.Logger
	tracer   trace.Tracer
}

func New(reports ports.ReportRepository, contacts ports.ContactRepository, clock clockwork.Clock, log logger.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Service{
		reports:  reports,
		contacts: contacts,
		clock:    clock,
		log:      log,
		tracer:   otel.Tracer("croaudit/contacts"),
	}
}

// Submit stores c for its audit. Replaying the same (audit, email) pair is
// accepted and reports created=false.
func (s *Service) Submit(ctx context.Context, c domain.Contact) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "contacts.Submit", trace.WithAttributes(attribute.String("audit_id", c.AuditID)))
	defer span.End()

	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	c.Phone = strings.TrimSpace(c.Phone)
	if err := validate(c); err != nil {
		metrics.ContactsSubmitted.WithLabelValues("invalid").Inc()
		return false, err
	}

	if _, err := s.reports.Get(ctx, c.AuditID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.ContactsSubmitted.WithLabelValues("unknown_audit").Inc()
			return false, fmt.Errorf("audit %s: %w", c.AuditID, domain.ErrNotFound)
		}
		metrics.ContactsSubmitted.WithLabelValues("error").Inc()
		return false, err
	}

	c.SubmittedAt = s.clock.Now().UTC()
	created, err := s.contacts.Save(ctx, c)
	if err != nil {
		metrics.ContactsSubmitted.WithLabelValues("error").Inc()
		return false, fmt.Errorf("save contact: %w", err)
	}
	result := "created"
	if !created {
		result = "replayed"
	}
	metrics.ContactsSubmitted.WithLabelValues(result).Inc()
	s.log.Info("contact submitted", map[string]interface{}{
		"audit_id": c.AuditID,
		"result":   result,
	})
	return created, nil
}

func validate(c domain.Contact) error {
	doc := map[string]any{"name": c.Name, "email": c.Email}
	if c.Phone != "" {
		doc["phone"] = c.Phone
	}
	err := schemas.ValidateValue(schemas.Contact, doc)
	var verr *schemas.ValidationError
	if errors.As(err, &verr) && len(verr.Errors) > 0 {
		first := verr.Errors[0]
		return &domain.InvalidInputError{Field: first.Field, Value: doc[first.Field], Reason: first.Message}
	}
	return err
}
