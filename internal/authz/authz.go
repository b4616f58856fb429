// Package authz decides whether an actor may perform an action.
//
// Every check is a pure function over data the caller already loaded. Callers
// fetch, decide, then act, so a denial never leaves a partial side effect.
// Record mutation rights follow authorship, not the doctor role.
package authz

import (
	"github.com/geocoder89/medledger/internal/domain/record"
	"github.com/geocoder89/medledger/internal/domain/user"
)

// Actor is the authenticated identity executing an operation. Role comes from
// a verified token or a freshly loaded user, never from a request body.
type Actor struct {
	ID   int64
	Role user.Role
}

func (a Actor) IsAdmin() bool { return a.Role == user.RoleAdmin }
func (a Actor) IsDoctor() bool { return a.Role == user.RoleDoctor }

func CanCreateRecord(a Actor) bool {
	return a.IsDoctor()
}

func CanViewAllRecords(a Actor) bool {
	return a.IsAdmin()
}

func CanViewPatientRecords(a Actor, patientID int64) bool {
	return a.ID == patientID || a.IsDoctor()
}

// Strictly self only: a doctor cannot list another doctor's records.
func CanViewDoctorRecords(a Actor, doctorID int64) bool {
	return a.ID == doctorID
}

func CanModifyRecord(a Actor, r record.Record) bool {
	return a.ID == r.DoctorID
}

func CanDeleteRecord(a Actor, r record.Record) bool {
	return CanModifyRecord(a, r)
}

func CanDeleteUser(a Actor) bool {
	return a.IsAdmin()
}

func CanListUsers(a Actor) bool {
	return a.IsAdmin() || a.IsDoctor()
}

func CanViewUser(a Actor, userID int64) bool {
	return a.ID == userID || a.IsAdmin()
}

func CanUpdateUser(a Actor, userID int64) bool {
	return a.ID == userID || a.IsAdmin()
}

func CanChangeRole(a Actor) bool {
	return a.IsAdmin()
}

func CanViewAuditHistory(a Actor, patientID int64) bool {
	return a.ID == patientID
}

func CanVerifyLedger(a Actor) bool {
	return a.IsAdmin()
}
