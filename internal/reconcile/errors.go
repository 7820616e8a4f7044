package reconcile

import (
	"errors"
	"fmt"
	"time"

	"github.com/username/attendance-bot/pkg/dateutil"
)

// ErrInvalidRange is wrapped by InvalidRangeError
var ErrInvalidRange = errors.New("invalid date range")

// InvalidRangeError is returned when start is after end
type InvalidRangeError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("%s: start %s is after end %s",
		ErrInvalidRange, dateutil.Format(e.Start), dateutil.Format(e.End))
}

func (e *InvalidRangeError) Unwrap() error {
	return ErrInvalidRange
}

// Operation names the collaborator call that failed for a day
type Operation string

const (
	OpClassify  Operation = "classify"
	OpExists    Operation = "exists"
	OpWrite     Operation = "write"
	OpDirectory Operation = "directory"
)

// DayError is a per-day failure kept in the Result.
// Classify and exists failures are recovered; write and directory failures
// make the run unsuccessful.
type DayError struct {
	TeacherID string    `json:"teacher_id,omitempty"`
	Date      time.Time `json:"-"`
	Op        Operation `json:"operation"`
	Message   string    `json:"message"`
	Err       error     `json:"-"`
}

func (e DayError) Error() string {
	if e.Date.IsZero() {
		return fmt.Sprintf("%s failed for teacher %s: %s", e.Op, e.TeacherID, e.Message)
	}
	return fmt.Sprintf("%s failed for teacher %s on %s: %s",
		e.Op, e.TeacherID, dateutil.Format(e.Date), e.Message)
}

func (e DayError) Unwrap() error {
	return e.Err
}

// MarshalJSON adds the date as YYYY-MM-DD
func (e DayError) MarshalJSON() ([]byte, error) {
	type plain DayError
	var date string
	if !e.Date.IsZero() {
		date = dateutil.Format(e.Date)
	}
	return marshalJSON(struct {
		plain
		Date string `json:"date,omitempty"`
	}{plain(e), date})
}

func newDayError(teacherID string, date time.Time, op Operation, err error) DayError {
	return DayError{
		TeacherID: teacherID,
		Date:      date,
		Op:        op,
		Message:   err.Error(),
		Err:       err,
	}
}
