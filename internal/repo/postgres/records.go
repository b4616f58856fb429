package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/medledger/internal/domain/record"
	"github.com/geocoder89/medledger/internal/domain/user"
	"github.com/geocoder89/medledger/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RecordsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewRecordsRepo(pool *pgxpool.Pool, prom *observability.Prom) *RecordsRepo {
	return &RecordsRepo{pool: pool, prom: prom}
}

func (r *RecordsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

const recordColumns = `id, patient_id, doctor_id, details, created_at, updated_at`

func scanRecord(row pgx.Row) (record.Record, error) {
	var rec record.Record

	err := row.Scan(
		&rec.ID,
		&rec.PatientID,
		&rec.DoctorID,
		&rec.Details,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)

	return rec, err
}

func (r *RecordsRepo) Create(ctx context.Context, patientID, doctorID int64, details string) (record.Record, error) {
	var rec record.Record

	err := r.observe("records.create", func() error {
		var e error
		rec, e = scanRecord(r.pool.QueryRow(ctx, `
			INSERT INTO patient_records (patient_id, doctor_id, details)
			VALUES ($1, $2, $3)
			RETURNING `+recordColumns,
			patientID, doctorID, details,
		))
		return e
	})

	if err != nil {
		// one of the two users vanished between the service check and the insert
		if isForeignKeyViolation(err) {
			return record.Record{}, user.ErrNotFound
		}
		return record.Record{}, err
	}

	return rec, nil
}

func (r *RecordsRepo) GetByID(ctx context.Context, id int64) (record.Record, error) {
	var rec record.Record

	err := r.observe("records.get_by_id", func() error {
		var e error
		rec, e = scanRecord(r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM patient_records WHERE id = $1`, id))
		return e
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return record.Record{}, record.ErrNotFound
		}
		return record.Record{}, err
	}

	return rec, nil
}

func (r *RecordsRepo) List(ctx context.Context) ([]record.Record, error) {
	return r.list(ctx, "records.list", `SELECT `+recordColumns+` FROM patient_records ORDER BY id`)
}

func (r *RecordsRepo) ListByPatient(ctx context.Context, patientID int64) ([]record.Record, error) {
	return r.list(ctx, "records.list_by_patient",
		`SELECT `+recordColumns+` FROM patient_records WHERE patient_id = $1 ORDER BY id`, patientID)
}

func (r *RecordsRepo) ListByDoctor(ctx context.Context, doctorID int64) ([]record.Record, error) {
	return r.list(ctx, "records.list_by_doctor",
		`SELECT `+recordColumns+` FROM patient_records WHERE doctor_id = $1 ORDER BY id`, doctorID)
}

func (r *RecordsRepo) list(ctx context.Context, op, query string, args ...any) ([]record.Record, error) {
	out := make([]record.Record, 0)

	err := r.observe(op, func() error {
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}

		return rows.Err()
	})

	if err != nil {
		return nil, err
	}

	return out, nil
}

func (r *RecordsRepo) UpdateDetails(ctx context.Context, id int64, details string) (record.Record, error) {
	var rec record.Record

	err := r.observe("records.update", func() error {
		var e error
		rec, e = scanRecord(r.pool.QueryRow(ctx, `
			UPDATE patient_records
			SET details = $2, updated_at = NOW()
			WHERE id = $1
			RETURNING `+recordColumns,
			id, details,
		))
		return e
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return record.Record{}, record.ErrNotFound
		}
		return record.Record{}, err
	}

	return rec, nil
}

func (r *RecordsRepo) Delete(ctx context.Context, id int64) error {
	var tag pgconn.CommandTag

	err := r.observe("records.delete", func() error {
		var e error
		tag, e = r.pool.Exec(ctx, `DELETE FROM patient_records WHERE id = $1`, id)
		return e
	})

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return record.ErrNotFound
	}

	return nil
}
