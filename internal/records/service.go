// Package records runs the medical record operations: look the subjects up,
// ask authz, touch the store, then leave an audit entry.
package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/geocoder89/medledger/internal/apperr"
	"github.com/geocoder89/medledger/internal/authz"
	auditdomain "github.com/geocoder89/medledger/internal/domain/audit"
	"github.com/geocoder89/medledger/internal/domain/record"
	"github.com/geocoder89/medledger/internal/domain/user"
	"github.com/geocoder89/medledger/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type UserStore interface {
	GetByID(ctx context.Context, id int64) (user.User, error)
}

type RecordStore interface {
	Create(ctx context.Context, patientID, doctorID int64, details string) (record.Record, error)
	GetByID(ctx context.Context, id int64) (record.Record, error)
	List(ctx context.Context) ([]record.Record, error)
	ListByPatient(ctx context.Context, patientID int64) ([]record.Record, error)
	ListByDoctor(ctx context.Context, doctorID int64) ([]record.Record, error)
	UpdateDetails(ctx context.Context, id int64, details string) (record.Record, error)
	Delete(ctx context.Context, id int64) error
}

// AuditTrail takes entries on a best effort basis.
type AuditTrail interface {
	Track(ctx context.Context, e auditdomain.Entry)
}

type Service struct {
	users   UserStore
	records RecordStore
	audit   AuditTrail
	prom    *observability.Prom
	log     *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// prom may be nil.
func NewService(users UserStore, records RecordStore, audit AuditTrail, prom *observability.Prom, log *slog.Logger) *Service {
	return &Service{
		users:   users,
		records: records,
		audit:   audit,
		prom:    prom,
		log:     log,
		tracer:  otel.Tracer("github.com/geocoder89/medledger/internal/records"),
		now:     time.Now,
	}
}

func (s *Service) Create(ctx context.Context, actor authz.Actor, req record.CreateRecordRequest) (rec record.Record, err error) {
	ctx, span := s.start(ctx, "records.Create", actor)
	defer func() { end(span, err) }()

	if err = s.requirePatient(ctx, req.PatientID); err != nil {
		return record.Record{}, err
	}

	if err = s.check(ctx, actor, authz.Decide(authz.ActionCreateRecord, authz.CanCreateRecord(actor))); err != nil {
		return record.Record{}, err
	}

	rec, err = s.records.Create(ctx, req.PatientID, actor.ID, req.Details)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return record.Record{}, apperr.NotFound("patient_not_found", "patient not found")
		}
		return record.Record{}, apperr.Internal("could not create record", err)
	}

	s.track(ctx, rec.PatientID, actor.ID, auditdomain.ActionCreated)

	return rec, nil
}

func (s *Service) ViewAll(ctx context.Context, actor authz.Actor) (out []record.Record, err error) {
	ctx, span := s.start(ctx, "records.ViewAll", actor)
	defer func() { end(span, err) }()

	if err = s.check(ctx, actor, authz.Decide(authz.ActionViewAllRecords, authz.CanViewAllRecords(actor))); err != nil {
		return nil, err
	}

	out, err = s.records.List(ctx)

	if err != nil {
		return nil, apperr.Internal("could not list records", err)
	}

	if len(out) == 0 {
		return nil, apperr.NotFound("records_not_found", "no medical records found")
	}

	return out, nil
}

// Get reads one record. Admins are not audited, doctors are.
func (s *Service) Get(ctx context.Context, actor authz.Actor, id int64) (rec record.Record, err error) {
	ctx, span := s.start(ctx, "records.Get", actor)
	defer func() { end(span, err) }()

	rec, err = s.find(ctx, id)

	if err != nil {
		return record.Record{}, err
	}

	allowed := authz.CanViewPatientRecords(actor, rec.PatientID) || authz.CanViewAllRecords(actor)

	if err = s.check(ctx, actor, authz.Decide(authz.ActionViewRecord, allowed)); err != nil {
		return record.Record{}, err
	}

	if actor.IsDoctor() && actor.ID != rec.PatientID {
		s.track(ctx, rec.PatientID, actor.ID, auditdomain.ActionViewed)
	}

	return rec, nil
}

func (s *Service) ViewByPatient(ctx context.Context, actor authz.Actor, patientID int64) (out []record.Record, err error) {
	ctx, span := s.start(ctx, "records.ViewByPatient", actor)
	defer func() { end(span, err) }()

	if err = s.requirePatient(ctx, patientID); err != nil {
		return nil, err
	}

	out, err = s.records.ListByPatient(ctx, patientID)

	if err != nil {
		return nil, apperr.Internal("could not list records", err)
	}

	if len(out) == 0 {
		return nil, apperr.NotFound("records_not_found", "no medical records found for this patient")
	}

	if err = s.check(ctx, actor, authz.Decide(authz.ActionViewPatient, authz.CanViewPatientRecords(actor, patientID))); err != nil {
		return nil, err
	}

	// a patient reading their own records is not audited
	if actor.ID != patientID {
		s.track(ctx, patientID, actor.ID, auditdomain.ActionViewed)
	}

	return out, nil
}

func (s *Service) ViewByDoctor(ctx context.Context, actor authz.Actor, doctorID int64) (out []record.Record, err error) {
	ctx, span := s.start(ctx, "records.ViewByDoctor", actor)
	defer func() { end(span, err) }()

	if err = s.check(ctx, actor, authz.Decide(authz.ActionViewDoctor, authz.CanViewDoctorRecords(actor, doctorID))); err != nil {
		return nil, err
	}

	out, err = s.records.ListByDoctor(ctx, doctorID)

	if err != nil {
		return nil, apperr.Internal("could not list records", err)
	}

	if len(out) == 0 {
		return nil, apperr.NotFound("records_not_found", "no medical records found for this doctor")
	}

	return out, nil
}

func (s *Service) Update(ctx context.Context, actor authz.Actor, id int64, req record.UpdateRecordRequest) (rec record.Record, err error) {
	ctx, span := s.start(ctx, "records.Update", actor)
	defer func() { end(span, err) }()

	rec, err = s.find(ctx, id)

	if err != nil {
		return record.Record{}, err
	}

	if err = s.check(ctx, actor, authz.Decide(authz.ActionModifyRecord, authz.CanModifyRecord(actor, rec))); err != nil {
		return record.Record{}, err
	}

	if req.Details == nil || strings.TrimSpace(*req.Details) == "" {
		return record.Record{}, apperr.Validation("no_changes", "at least one field must be provided")
	}

	rec, err = s.records.UpdateDetails(ctx, id, *req.Details)

	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			return record.Record{}, apperr.NotFound("record_not_found", "medical record not found")
		}
		return record.Record{}, apperr.Internal("could not update record", err)
	}

	s.track(ctx, rec.PatientID, actor.ID, auditdomain.ActionUpdated)

	return rec, nil
}

// Delete returns the confirmation message shown to the caller.
func (s *Service) Delete(ctx context.Context, actor authz.Actor, id int64) (msg string, err error) {
	ctx, span := s.start(ctx, "records.Delete", actor)
	defer func() { end(span, err) }()

	rec, err := s.find(ctx, id)

	if err != nil {
		return "", err
	}

	if err = s.check(ctx, actor, authz.Decide(authz.ActionDeleteRecord, authz.CanDeleteRecord(actor, rec))); err != nil {
		return "", err
	}

	// the entry goes in before the row goes away
	s.track(ctx, rec.PatientID, actor.ID, auditdomain.ActionDeleted)

	err = s.records.Delete(ctx, id)

	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			return "", apperr.NotFound("record_not_found", "medical record not found")
		}
		return "", apperr.Internal("could not delete record", err)
	}

	return fmt.Sprintf("The Patient %d has had their record: %d deleted.", rec.PatientID, rec.ID), nil
}

func (s *Service) requirePatient(ctx context.Context, patientID int64) error {
	u, err := s.users.GetByID(ctx, patientID)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return apperr.NotFound("patient_not_found", "patient not found")
		}
		return apperr.Internal("could not load patient", err)
	}

	if u.Role != user.RolePatient {
		return apperr.NotFound("patient_not_found", "patient not found")
	}

	return nil
}

func (s *Service) find(ctx context.Context, id int64) (record.Record, error) {
	rec, err := s.records.GetByID(ctx, id)

	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			return record.Record{}, apperr.NotFound("record_not_found", "medical record not found")
		}
		return record.Record{}, apperr.Internal("could not load record", err)
	}

	return rec, nil
}

// track outlives the request: the mutation has committed, so a client that
// hangs up must not cost the audit entry. The ledger's own timeout bounds it.
func (s *Service) track(ctx context.Context, patientID, doctorID int64, action auditdomain.Action) {
	s.audit.Track(context.WithoutCancel(ctx), auditdomain.NewEntry(patientID, doctorID, action, s.now()))
}

func (s *Service) check(ctx context.Context, actor authz.Actor, d authz.Decision) error {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("authz."+d.Action, d.Label()))

	if d.Allowed {
		return nil
	}

	if s.prom != nil {
		s.prom.ObserveDenial(d.Action)
	}

	s.log.InfoContext(ctx, "authorization denied", "action", d.Action, "subject_id", actor.ID)

	return apperr.Forbidden("forbidden", "you are not allowed to "+strings.ReplaceAll(d.Action, "_", " "))
}

func (s *Service) start(ctx context.Context, name string, actor authz.Actor) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.Int64("actor.id", actor.ID),
		attribute.String("actor.role", string(actor.Role)),
	))
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
