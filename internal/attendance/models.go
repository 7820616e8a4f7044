package attendance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/username/attendance-bot/pkg/dateutil"
)

// FlexibleID handles the id shapes the attendance backend returns:
// - a string: "65f1c0a2e4b0a1b2c3d4e5f6"
// - a number: 42
// - a populated reference: {"_id": "65f1...", "name": "..."}
type FlexibleID string

// UnmarshalJSON implements json.Unmarshaler for FlexibleID
func (f *FlexibleID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = FlexibleID(s)
		return nil
	}

	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*f = FlexibleID(strconv.FormatInt(n, 10))
		return nil
	}

	var ref struct {
		MongoID *FlexibleID `json:"_id"`
		ID      *FlexibleID `json:"id"`
	}
	if err := json.Unmarshal(b, &ref); err == nil {
		switch {
		case ref.MongoID != nil:
			*f = *ref.MongoID
			return nil
		case ref.ID != nil:
			*f = *ref.ID
			return nil
		}
	}

	return fmt.Errorf("FlexibleID: cannot unmarshal %s", string(b))
}

// MarshalJSON implements json.Marshaler for FlexibleID
func (f FlexibleID) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(f))
}

// String returns string representation
func (f FlexibleID) String() string {
	return string(f)
}

// Date is a timezone-naive calendar date, serialized as YYYY-MM-DD.
// Timestamps from the backend are truncated to their calendar date.
type Date struct {
	time.Time
}

// NewDate returns the calendar date of t
func NewDate(t time.Time) Date {
	return Date{Time: dateutil.Date(t)}
}

// UnmarshalJSON implements json.Unmarshaler for Date
func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		d.Time = time.Time{}
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		d.Time = time.Time{}
		return nil
	}

	parsed, err := dateutil.ParseDate(s)
	if err != nil {
		return err
	}
	d.Time = parsed
	return nil
}

// MarshalJSON implements json.Marshaler for Date
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// String returns the date as YYYY-MM-DD
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return dateutil.Format(d.Time)
}

// Status is the attendance status of a teacher for a day
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
	StatusHalfDay Status = "half-day"
	StatusLeave   Status = "leave"
	StatusHoliday Status = "holiday"
)

// ParseStatus parses a status name, case-insensitively
func ParseStatus(s string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(s)))
	switch status {
	case StatusPresent, StatusAbsent, StatusLate, StatusHalfDay, StatusLeave, StatusHoliday:
		return status, nil
	}
	return "", fmt.Errorf("unknown attendance status %q", s)
}

// Source tells who created a record
type Source string

const (
	SourceManual      Source = "manual"
	SourceAutoHoliday Source = "auto-holiday"
)

// Record is one attendance entry for a teacher and a calendar date
type Record struct {
	ID        FlexibleID `json:"id,omitempty"`
	TeacherID FlexibleID `json:"teacher" validate:"required"`
	Date      Date       `json:"date"`
	Status    Status     `json:"status" validate:"required,oneof=present absent late half-day leave holiday"`
	CheckIn   *string    `json:"checkIn" validate:"omitempty,clock"`
	CheckOut  *string    `json:"checkOut" validate:"omitempty,clock"`
	WorkHours float64    `json:"workHours" validate:"gte=0,lte=24"`
	Comment   string     `json:"comment,omitempty" validate:"max=500"`
	Source    Source     `json:"source,omitempty" validate:"omitempty,oneof=manual auto-holiday"`
}

// UnmarshalJSON accepts the field aliases the backend uses:
// _id for id, teacherId for teacher, timeIn/timeOut for checkIn/checkOut
// and notes for comment.
func (r *Record) UnmarshalJSON(b []byte) error {
	type plain Record
	var wire struct {
		plain
		MongoID   FlexibleID `json:"_id"`
		TeacherID FlexibleID `json:"teacherId"`
		TimeIn    *string    `json:"timeIn"`
		TimeOut   *string    `json:"timeOut"`
		Notes     string     `json:"notes"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}

	*r = Record(wire.plain)
	if r.ID == "" {
		r.ID = wire.MongoID
	}
	if r.TeacherID == "" {
		r.TeacherID = wire.TeacherID
	}
	if r.CheckIn == nil {
		r.CheckIn = wire.TimeIn
	}
	if r.CheckOut == nil {
		r.CheckOut = wire.TimeOut
	}
	if r.Comment == "" {
		r.Comment = wire.Notes
	}
	if r.Source == "" {
		r.Source = SourceManual
	}
	return nil
}

// IsHoliday reports whether the record marks a holiday
func (r *Record) IsHoliday() bool {
	return r.Status == StatusHoliday
}

// NewHolidayRecord builds the automatic holiday record for a teacher and day
func NewHolidayRecord(teacherID string, date time.Time, comment string) *Record {
	return &Record{
		TeacherID: FlexibleID(teacherID),
		Date:      NewDate(date),
		Status:    StatusHoliday,
		Comment:   comment,
		Source:    SourceAutoHoliday,
	}
}

// recordPayload is the body of POST/PUT /attendance.
// Both naming conventions are sent for backend compatibility.
type recordPayload struct {
	Teacher   string  `json:"teacher"`
	TeacherID string  `json:"teacherId"`
	Date      string  `json:"date"`
	Status    Status  `json:"status"`
	CheckIn   *string `json:"checkIn"`
	CheckOut  *string `json:"checkOut"`
	TimeIn    *string `json:"timeIn"`
	TimeOut   *string `json:"timeOut"`
	WorkHours float64 `json:"workHours"`
	Comment   string  `json:"comment,omitempty"`
	Source    Source  `json:"source"`
}

func newRecordPayload(r *Record) recordPayload {
	source := r.Source
	if source == "" {
		source = SourceManual
	}
	return recordPayload{
		Teacher:   r.TeacherID.String(),
		TeacherID: r.TeacherID.String(),
		Date:      r.Date.String(),
		Status:    r.Status,
		CheckIn:   r.CheckIn,
		CheckOut:  r.CheckOut,
		TimeIn:    r.CheckIn,
		TimeOut:   r.CheckOut,
		WorkHours: r.WorkHours,
		Comment:   r.Comment,
		Source:    source,
	}
}

// Teacher represents a teacher known to the backend
type Teacher struct {
	ID            FlexibleID `json:"id"`
	Name          string     `json:"name"`
	GRNumber      string     `json:"grNumber,omitempty"`
	Designation   string     `json:"designation,omitempty"`
	Email         string     `json:"email,omitempty"`
	ContactNumber string     `json:"contactNumber,omitempty"`
	Status        string     `json:"status,omitempty"`
}

// UnmarshalJSON accepts _id for id and phoneNumber for contactNumber
func (t *Teacher) UnmarshalJSON(b []byte) error {
	type plain Teacher
	var wire struct {
		plain
		MongoID     FlexibleID `json:"_id"`
		PhoneNumber string     `json:"phoneNumber"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}

	*t = Teacher(wire.plain)
	if t.ID == "" {
		t.ID = wire.MongoID
	}
	if t.ContactNumber == "" {
		t.ContactNumber = wire.PhoneNumber
	}
	return nil
}

// IsActive reports whether the teacher should be reconciled.
// Teachers without a status are treated as active.
func (t *Teacher) IsActive() bool {
	switch strings.ToLower(t.Status) {
	case "", "active":
		return true
	default:
		return false
	}
}

// User is the authenticated account
type User struct {
	ID    FlexibleID `json:"id"`
	Name  string     `json:"name"`
	Email string     `json:"email,omitempty"`
	Role  string     `json:"role,omitempty"`
}

// UnmarshalJSON accepts _id for id
func (u *User) UnmarshalJSON(b []byte) error {
	type plain User
	var wire struct {
		plain
		MongoID FlexibleID `json:"_id"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}

	*u = User(wire.plain)
	if u.ID == "" {
		u.ID = wire.MongoID
	}
	return nil
}

// Summary is the backend's monthly attendance summary for a teacher
type Summary struct {
	TeacherID      FlexibleID `json:"teacherId,omitempty"`
	Month          int        `json:"month"`
	Year           int        `json:"year"`
	TotalDays      int        `json:"totalDays"`
	Present        int        `json:"present"`
	Absent         int        `json:"absent"`
	Late           int        `json:"late"`
	HalfDay        int        `json:"halfDay"`
	Leave          int        `json:"leave"`
	Holiday        int        `json:"holiday"`
	TotalWorkHours float64    `json:"totalWorkHours"`
}

// recordsEnvelope matches both response shapes of the attendance endpoints
type recordsEnvelope struct {
	Attendance        []Record `json:"attendance"`
	AttendanceRecords []Record `json:"attendanceRecords"`
}

func (e *recordsEnvelope) records() []Record {
	if len(e.Attendance) > 0 {
		return e.Attendance
	}
	if e.AttendanceRecords != nil {
		return e.AttendanceRecords
	}
	return []Record{}
}

type recordEnvelope struct {
	Attendance *Record `json:"attendance"`
	Record     *Record `json:"record"`
}

type teachersEnvelope struct {
	Teachers []Teacher `json:"teachers"`
}

type teacherEnvelope struct {
	Teacher Teacher `json:"teacher"`
}

type userEnvelope struct {
	User User `json:"user"`
}

type summaryEnvelope struct {
	Summary *Summary `json:"summary"`
}

type messageEnvelope struct {
	Message string `json:"message"`
}
