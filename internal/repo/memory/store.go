package memory

import (
	"sync"
	"time"

	"github.com/geocoder89/medledger/internal/domain/record"
	"github.com/geocoder89/medledger/internal/domain/user"
)

// Store keeps users and records behind one lock so the referential checks a
// database would make (unique email, records pointing at live users) hold here too.
type Store struct {
	mu      sync.RWMutex
	users   map[int64]user.User
	records map[int64]record.Record

	nextUserID   int64
	nextRecordID int64

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:   make(map[int64]user.User),
		records: make(map[int64]record.Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Users() *UsersRepo {
	return &UsersRepo{s: s}
}

func (s *Store) Records() *RecordsRepo {
	return &RecordsRepo{s: s}
}

// caller holds s.mu
func (s *Store) referenced(userID int64) bool {
	for _, r := range s.records {
		if r.PatientID == userID || r.DoctorID == userID {
			return true
		}
	}
	return false
}
