package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/geocoder89/medledger/internal/db"
	"github.com/geocoder89/medledger/internal/domain/record"
	"github.com/geocoder89/medledger/internal/domain/user"
	"github.com/geocoder89/medledger/internal/repo/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Runs against a real database when TEST_DB_DSN is set.
func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	if err := db.Migrate(dsn); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	pool, err := db.NewPool(context.Background(), dsn, db.PoolConfig{MaxConns: 4})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	t.Cleanup(pool.Close)

	return pool
}

func uniqueEmail(prefix string) string {
	return prefix + "+" + uuid.NewString()[:8] + "@example.com"
}

func TestUsersAndRecords(t *testing.T) {
	pool := setupPool(t)
	ctx := context.Background()

	users := postgres.NewUsersRepo(pool, nil)
	records := postgres.NewRecordsRepo(pool, nil)

	patient, err := users.Create(ctx, user.User{Name: "Pat", Email: uniqueEmail("pat"), PasswordHash: "x", Role: user.RolePatient})
	if err != nil {
		t.Fatalf("Create patient: %v", err)
	}

	doctor, err := users.Create(ctx, user.User{Name: "Doc", Email: uniqueEmail("doc"), PasswordHash: "x", Role: user.RoleDoctor})
	if err != nil {
		t.Fatalf("Create doctor: %v", err)
	}

	if _, err := users.Create(ctx, user.User{Name: "Dup", Email: patient.Email, PasswordHash: "x", Role: user.RolePatient}); !errors.Is(err, user.ErrEmailTaken) {
		t.Fatalf("got %v, want ErrEmailTaken", err)
	}

	rec, err := records.Create(ctx, patient.ID, doctor.ID, "annual checkup")
	if err != nil {
		t.Fatalf("Create record: %v", err)
	}

	updated, err := records.UpdateDetails(ctx, rec.ID, "annual checkup, all clear")
	if err != nil || updated.Details != "annual checkup, all clear" {
		t.Fatalf("UpdateDetails = %+v, %v", updated, err)
	}

	referenced, err := users.IsReferenced(ctx, doctor.ID)
	if err != nil || !referenced {
		t.Fatalf("IsReferenced = %v, %v", referenced, err)
	}

	if err := users.Delete(ctx, doctor.ID); !errors.Is(err, user.ErrReferenced) {
		t.Fatalf("got %v, want ErrReferenced", err)
	}

	if err := records.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete record: %v", err)
	}

	if _, err := records.GetByID(ctx, rec.ID); !errors.Is(err, record.ErrNotFound) {
		t.Fatalf("got %v, want record.ErrNotFound", err)
	}

	renamed, err := users.Update(ctx, doctor.ID, user.Changes{Name: "Dr. Doc"})
	if err != nil || renamed.Name != "Dr. Doc" || renamed.Email != doctor.Email {
		t.Fatalf("Update = %+v, %v", renamed, err)
	}

	if err := users.Delete(ctx, doctor.ID); err != nil {
		t.Fatalf("Delete user: %v", err)
	}

	if _, err := users.GetByID(ctx, doctor.ID); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("got %v, want user.ErrNotFound", err)
	}
}
