// Package audit writes record-access entries to the ledger and reads them back.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/geocoder89/medledger/internal/apperr"
	auditdomain "github.com/geocoder89/medledger/internal/domain/audit"
	"github.com/geocoder89/medledger/internal/ledger"
	"github.com/geocoder89/medledger/internal/observability"
)

type Log struct {
	ledger ledger.Ledger
	log    *slog.Logger
	prom   *observability.Prom
}

// payload is the ledger value. Chain metadata lives on the ledger entry, not here.
type payload struct {
	PatientID   int64              `json:"patientId"`
	DoctorID    int64              `json:"doctorId"`
	Action      auditdomain.Action `json:"action"`
	At          string             `json:"at"`
	Description string             `json:"description"`
}

// prom may be nil.
func NewLog(l ledger.Ledger, log *slog.Logger, prom *observability.Prom) *Log {
	return &Log{ledger: l, log: log, prom: prom}
}

func patientKey(patientID int64) []byte {
	return []byte(strconv.FormatInt(patientID, 10))
}

// Record appends e under the patient's key.
func (a *Log) Record(ctx context.Context, e auditdomain.Entry) error {
	value, err := json.Marshal(toPayload(e))

	if err != nil {
		return apperr.Internal("could not encode audit entry", err)
	}

	err = a.observe("append", func() error {
		_, err := a.ledger.Append(ctx, patientKey(e.PatientID), value)
		return err
	})

	if a.prom != nil {
		a.prom.ObserveAuditWrite(string(e.Action), err)
	}

	if err != nil {
		return apperr.LedgerUnavailable(err)
	}

	return nil
}

// Track records e and swallows the failure. The mutation it describes has
// already been committed.
func (a *Log) Track(ctx context.Context, e auditdomain.Entry) {
	if err := a.Record(ctx, e); err != nil {
		a.log.WarnContext(ctx, "audit write failed",
			"patient_id", e.PatientID,
			"doctor_id", e.DoctorID,
			"action", e.Action,
			"err", err,
		)
	}
}

func (a *Log) History(ctx context.Context, patientID int64, q auditdomain.HistoryQuery) ([]auditdomain.Entry, error) {
	q = q.Normalize()

	var raws []ledger.Entry

	err := a.observe("history", func() error {
		var err error
		raws, err = a.ledger.History(ctx, patientKey(patientID), q.Offset, q.Limit, q.Ascending)
		return err
	})

	if err != nil {
		return nil, classify(err)
	}

	out := make([]auditdomain.Entry, 0, len(raws))

	for _, raw := range raws {
		e, err := fromLedger(raw)

		if err != nil {
			return nil, apperr.Internal("audit entry could not be read", err)
		}

		out = append(out, e)
	}

	return out, nil
}

// Verify reads the patient's whole chain in pages and recomputes every hash.
func (a *Log) Verify(ctx context.Context, patientID int64) (auditdomain.VerifyResult, error) {
	res := auditdomain.VerifyResult{PatientID: patientID, Intact: true}

	var chain []ledger.Entry

	for {
		var page []ledger.Entry

		err := a.observe("history", func() error {
			var err error
			page, err = a.ledger.History(ctx, patientKey(patientID), len(chain), auditdomain.MaxHistoryLimit, true)
			return err
		})

		if errors.Is(err, ledger.ErrChainBroken) {
			at := uint64(len(chain))

			var broken *ledger.BrokenEntryError
			if errors.As(err, &broken) {
				at = broken.Seq
			}

			a.log.WarnContext(ctx, "audit chain unreadable", "patient_id", patientID, "seq", at, "err", err)
			// only the entries before the unreadable one are known good
			res.Entries = at
			res.Intact = false
			res.BrokenAt = &at
			return res, nil
		}

		if err != nil {
			return auditdomain.VerifyResult{}, classify(err)
		}

		chain = append(chain, page...)

		if len(page) < auditdomain.MaxHistoryLimit {
			break
		}
	}

	res.Entries = uint64(len(chain))

	if len(chain) > 0 {
		res.Head = chain[len(chain)-1].Hash
	}

	if at, err := ledger.VerifyChain(chain); err != nil {
		a.log.WarnContext(ctx, "audit chain broken", "patient_id", patientID, "seq", at, "err", err)
		res.Intact = false
		res.BrokenAt = &at
	}

	return res, nil
}

func (a *Log) observe(op string, fn func() error) error {
	if a.prom == nil {
		return fn()
	}
	return a.prom.ObserveLedger(op, fn)
}

func classify(err error) error {
	if errors.Is(err, ledger.ErrChainBroken) {
		return apperr.Internal("audit entry could not be read", err)
	}
	return apperr.LedgerUnavailable(err)
}

func toPayload(e auditdomain.Entry) payload {
	return payload{
		PatientID:   e.PatientID,
		DoctorID:    e.DoctorID,
		Action:      e.Action,
		At:          e.At.UTC().Format(time.RFC3339Nano),
		Description: e.Description,
	}
}

func fromLedger(raw ledger.Entry) (auditdomain.Entry, error) {
	var p payload

	if err := json.Unmarshal(raw.Value, &p); err != nil {
		return auditdomain.Entry{}, err
	}

	at, err := time.Parse(time.RFC3339Nano, p.At)

	if err != nil {
		return auditdomain.Entry{}, err
	}

	return auditdomain.Entry{
		PatientID:   p.PatientID,
		DoctorID:    p.DoctorID,
		Action:      p.Action,
		At:          at,
		Description: p.Description,
		Seq:         raw.Seq,
		Hash:        raw.Hash,
	}, nil
}
