package reconcile

import (
	"context"
	"fmt"

	"github.com/username/attendance-bot/internal/attendance"
	"github.com/username/attendance-bot/pkg/dateutil"
	"go.uber.org/zap"
)

// RecordCreator creates manual attendance records
type RecordCreator interface {
	CreateRecord(ctx context.Context, record *attendance.Record) (*attendance.Record, error)
}

// MarkResult tells what a manual entry turned into
type MarkResult struct {
	// AutoMarked is set when the date is a holiday and the manual record was not sent
	AutoMarked bool               `json:"auto_marked"`
	Holiday    *DayOutcome        `json:"holiday,omitempty"`
	Record     *attendance.Record `json:"record,omitempty"`
	Message    string             `json:"message"`
}

// Marker records manual attendance, deferring to the holiday auto-mark
type Marker struct {
	reconciler *Reconciler
	classifier HolidayClassifier
	creator    RecordCreator
	logger     *zap.Logger
}

// NewMarker creates a new Marker
func NewMarker(reconciler *Reconciler, classifier HolidayClassifier, creator RecordCreator, logger *zap.Logger) *Marker {
	return &Marker{
		reconciler: reconciler,
		classifier: classifier,
		creator:    creator,
		logger:     logger,
	}
}

// Mark stores a manual record.
//
// On a holiday without overrideHoliday the day is auto-marked instead (or left
// alone when already marked) and the manual record is dropped. With
// overrideHoliday the manual record is always sent and no holiday record is
// written.
func (m *Marker) Mark(ctx context.Context, record *attendance.Record, overrideHoliday bool) (*MarkResult, error) {
	if err := record.Validate(); err != nil {
		return nil, err
	}

	teacherID := record.TeacherID.String()
	date := record.Date.Time

	if !overrideHoliday {
		isHoliday, err := m.classifier.IsHoliday(ctx, date, teacherID)
		if err != nil {
			m.logger.Warn("Holiday classification failed, recording manual entry",
				zap.String("teacher_id", teacherID),
				zap.String("date", dateutil.Format(date)),
				zap.Error(err))
		}

		if isHoliday && err == nil {
			res, err := m.reconciler.Reconcile(ctx, Single(teacherID), date, date, false)
			if err != nil {
				return nil, err
			}
			if res.Cancelled || len(res.Days) == 0 {
				return nil, fmt.Errorf("holiday auto-mark interrupted: %s", res.CancelErr)
			}
			if len(res.Errors) > 0 {
				return nil, fmt.Errorf("failed to auto-mark holiday: %w", res.Errors[0])
			}

			outcome := res.Days[0]
			m.logger.Info("Manual entry replaced by holiday",
				zap.String("teacher_id", teacherID),
				zap.String("date", dateutil.Format(date)),
				zap.String("outcome", string(outcome.Outcome)))

			return &MarkResult{
				AutoMarked: true,
				Holiday:    &outcome,
				Message:    "Attendance automatically marked as holiday",
			}, nil
		}
	}

	manual := *record
	manual.Source = attendance.SourceManual

	created, err := m.creator.CreateRecord(ctx, &manual)
	if err != nil {
		return nil, fmt.Errorf("failed to add attendance record: %w", err)
	}

	return &MarkResult{
		Record:  created,
		Message: "Attendance record added successfully",
	}, nil
}
