package memory

import (
	"context"
	"sort"

	"github.com/geocoder89/medledger/internal/domain/record"
	"github.com/geocoder89/medledger/internal/domain/user"
)

type RecordsRepo struct {
	s *Store
}

func (r *RecordsRepo) Create(ctx context.Context, patientID, doctorID int64, details string) (record.Record, error) {
	if err := ctx.Err(); err != nil {
		return record.Record{}, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[patientID]; !ok {
		return record.Record{}, user.ErrNotFound
	}
	if _, ok := r.s.users[doctorID]; !ok {
		return record.Record{}, user.ErrNotFound
	}

	r.s.nextRecordID++
	now := r.s.now()

	rec := record.Record{
		ID:        r.s.nextRecordID,
		PatientID: patientID,
		DoctorID:  doctorID,
		Details:   details,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.s.records[rec.ID] = rec

	return rec, nil
}

func (r *RecordsRepo) GetByID(ctx context.Context, id int64) (record.Record, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rec, ok := r.s.records[id]
	if !ok {
		return record.Record{}, record.ErrNotFound
	}

	return rec, nil
}

func (r *RecordsRepo) List(ctx context.Context) ([]record.Record, error) {
	return r.filter(func(record.Record) bool { return true }), nil
}

func (r *RecordsRepo) ListByPatient(ctx context.Context, patientID int64) ([]record.Record, error) {
	return r.filter(func(rec record.Record) bool { return rec.PatientID == patientID }), nil
}

func (r *RecordsRepo) ListByDoctor(ctx context.Context, doctorID int64) ([]record.Record, error) {
	return r.filter(func(rec record.Record) bool { return rec.DoctorID == doctorID }), nil
}

func (r *RecordsRepo) UpdateDetails(ctx context.Context, id int64, details string) (record.Record, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.records[id]
	if !ok {
		return record.Record{}, record.ErrNotFound
	}

	rec.Details = details
	rec.UpdatedAt = r.s.now()
	r.s.records[id] = rec

	return rec, nil
}

func (r *RecordsRepo) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.records[id]; !ok {
		return record.ErrNotFound
	}

	delete(r.s.records, id)

	return nil
}

func (r *RecordsRepo) filter(keep func(record.Record) bool) []record.Record {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]record.Record, 0)
	for _, rec := range r.s.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}
