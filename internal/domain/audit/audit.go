package audit

import (
	"fmt"
	"time"
)

type Action string

const (
	ActionCreated Action = "Created"
	ActionViewed  Action = "Viewed"
	ActionUpdated Action = "Updated"
	ActionDeleted Action = "Deleted"
)

// Entry is one record access. Entries are appended and enumerated, never changed.
type Entry struct {
	PatientID   int64     `json:"patientId"`
	DoctorID    int64     `json:"doctorId"`
	Action      Action    `json:"action"`
	At          time.Time `json:"at"`
	Description string    `json:"description"`

	// filled in when read back from the ledger
	Seq  uint64 `json:"seq"`
	Hash string `json:"hash,omitempty"`
}

func NewEntry(patientID, doctorID int64, action Action, at time.Time) Entry {
	at = at.UTC()
	return Entry{
		PatientID:   patientID,
		DoctorID:    doctorID,
		Action:      action,
		At:          at,
		Description: Describe(patientID, doctorID, action, at),
	}
}

func Describe(patientID, doctorID int64, action Action, at time.Time) string {
	return fmt.Sprintf("Doctor %d %s medical record of Patient %d at %s.",
		doctorID, action, patientID, at.Format(time.RFC3339))
}

type HistoryQuery struct {
	Offset    int
	Limit     int
	Ascending bool
}

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

// Normalize clamps the window to sane bounds.
func (q HistoryQuery) Normalize() HistoryQuery {
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.Limit <= 0 {
		q.Limit = DefaultHistoryLimit
	}
	if q.Limit > MaxHistoryLimit {
		q.Limit = MaxHistoryLimit
	}
	return q
}

type VerifyResult struct {
	PatientID int64   `json:"patientId"`
	Entries   uint64  `json:"entries"`
	Intact    bool    `json:"intact"`
	BrokenAt  *uint64 `json:"brokenAt,omitempty"`
	Head      string  `json:"head,omitempty"`
}
