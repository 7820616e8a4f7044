package reconcile

import (
	"context"
	"time"

	"github.com/username/attendance-bot/internal/attendance"
)

// AttendanceAPI is the part of the attendance client the store needs
type AttendanceAPI interface {
	FindRecords(ctx context.Context, teacherID string, date time.Time) ([]attendance.Record, error)
	CreateRecord(ctx context.Context, record *attendance.Record) (*attendance.Record, error)
}

// AttendanceStore binds RecordStore to the attendance backend
type AttendanceStore struct {
	api     AttendanceAPI
	comment string
}

// NewAttendanceStore creates a store; comment is attached to every holiday record
func NewAttendanceStore(api AttendanceAPI, comment string) *AttendanceStore {
	return &AttendanceStore{api: api, comment: comment}
}

// RecordExists reports whether the teacher already has a blocking record on date
func (s *AttendanceStore) RecordExists(ctx context.Context, teacherID string, date time.Time, mode ExistenceMode) (bool, error) {
	records, err := s.api.FindRecords(ctx, teacherID, date)
	if err != nil {
		return false, err
	}

	for i := range records {
		if mode != ExistenceHoliday || records[i].IsHoliday() {
			return true, nil
		}
	}
	return false, nil
}

// WriteHolidayRecord creates the automatic holiday record and returns its id
func (s *AttendanceStore) WriteHolidayRecord(ctx context.Context, teacherID string, date time.Time) (string, error) {
	created, err := s.api.CreateRecord(ctx, attendance.NewHolidayRecord(teacherID, date, s.comment))
	if err != nil {
		return "", err
	}
	return created.ID.String(), nil
}
