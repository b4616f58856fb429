package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/geocoder89/medledger/internal/actorctx"
	"github.com/geocoder89/medledger/internal/authz"
	"github.com/geocoder89/medledger/internal/domain/user"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLoggerStampsActor(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "dev", "")

	ctx := actorctx.With(context.Background(), authz.Actor{ID: 12, Role: user.RoleDoctor})
	log.InfoContext(ctx, "hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal: %v (%s)", err, buf.String())
	}

	if line["actor_id"] != float64(12) || line["actor_role"] != "doctor" {
		t.Fatalf("actor attrs missing: %v", line)
	}
}

func TestLoggerRedactsAndLevels(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "prod", "warn")

	log.Info("dropped")
	log.Warn("kept", "password", "hunter2", "details", "diagnosis", "record_id", 7)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected exactly one line: %v (%s)", err, buf.String())
	}

	if line["msg"] != "kept" {
		t.Fatalf("msg = %v", line["msg"])
	}
	if line["password"] != "[redacted]" || line["details"] != "[redacted]" {
		t.Fatalf("sensitive attrs leaked: %v", line)
	}
	if line["record_id"] != float64(7) || line["env"] != "prod" {
		t.Fatalf("plain attrs lost: %v", line)
	}
}

func TestClassifyDBErr(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&pgconn.PgError{Code: "23505"}, "unique_violation"},
		{&pgconn.PgError{Code: "23503"}, "foreign_key_violation"},
		{&pgconn.PgError{Code: "42P01"}, "pg_42P01"},
		{&pgconn.PgError{Code: "23514"}, "check_violation"},
		{fmt.Errorf("query: %w", context.DeadlineExceeded), "timeout"},
		{context.Canceled, "canceled"},
		{errors.New("boom"), "unknown"},
	}

	for _, tt := range tests {
		if got := classifyDBErr(tt.err); got != tt.want {
			t.Fatalf("classifyDBErr(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestObserveDB_NoRowsIsNotAnError(t *testing.T) {
	p := NewProm(prometheus.NewRegistry())

	_ = p.ObserveDB("users.get_by_id", func() error { return pgx.ErrNoRows })

	if got := testutil.CollectAndCount(p.DbErrorsTotal); got != 0 {
		t.Fatalf("errors recorded = %d, want 0", got)
	}

	_ = p.ObserveDB("users.get_by_id", func() error { return errors.New("boom") })

	if got := testutil.ToFloat64(p.DbErrorsTotal.WithLabelValues("users.get_by_id", "unknown")); got != 1 {
		t.Fatalf("errors = %v, want 1", got)
	}
}

func TestObserveAuditWrite(t *testing.T) {
	p := NewProm(prometheus.NewRegistry())

	p.ObserveAuditWrite("Created", nil)
	p.ObserveAuditWrite("Created", errors.New("down"))
	p.ObserveAuditWrite("Created", errors.New("down"))

	if got := testutil.ToFloat64(p.AuditWrites.WithLabelValues("Created", "failed")); got != 2 {
		t.Fatalf("failed = %v, want 2", got)
	}
}

func TestRootSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{0, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
		{1, "AlwaysOnSampler"},
	}

	for _, tt := range tests {
		if got := rootSampler(tt.ratio).Description(); got != tt.want {
			t.Fatalf("rootSampler(%v) = %q, want %q", tt.ratio, got, tt.want)
		}
	}
}
