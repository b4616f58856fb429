package record

import (
	"errors"
	"time"
)

type Record struct {
	ID        int64     `json:"id"`
	PatientID int64     `json:"patientId"`
	DoctorID  int64     `json:"doctorId"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

var ErrNotFound = errors.New("record not found")

type CreateRecordRequest struct {
	PatientID int64  `json:"patientId" binding:"required,min=1"`
	Details   string `json:"details" binding:"required,min=1,max=10000"`
}

// a partial update, fields left nil or empty are not touched.
type UpdateRecordRequest struct {
	Details *string `json:"details" binding:"omitempty,max=10000"`
}
