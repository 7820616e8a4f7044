package reconcile

import (
	"encoding/json"
	"time"

	"github.com/username/attendance-bot/pkg/dateutil"
)

// Outcome is the final state of one (teacher, date) unit
type Outcome string

const (
	OutcomeWritten           Outcome = "written"
	OutcomeSkippedExisting   Outcome = "skipped-existing"
	OutcomeSkippedNotHoliday Outcome = "skipped-not-holiday"
	OutcomeFailed            Outcome = "failed"
	// OutcomePlanned is a holiday that a dry run would have written
	OutcomePlanned Outcome = "planned"
)

// DayOutcome is the result for one teacher and one day
type DayOutcome struct {
	TeacherID string    `json:"teacher_id"`
	Date      time.Time `json:"-"`
	Outcome   Outcome   `json:"outcome"`
	RecordID  string    `json:"record_id,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// MarshalJSON adds the date as YYYY-MM-DD
func (o DayOutcome) MarshalJSON() ([]byte, error) {
	type plain DayOutcome
	return marshalJSON(struct {
		plain
		Date string `json:"date"`
	}{plain(o), dateutil.Format(o.Date)})
}

// ProcessedDay is a (teacher, date) unit that carries a holiday record after the run
type ProcessedDay struct {
	TeacherID string    `json:"teacher_id"`
	Date      time.Time `json:"-"`
}

// MarshalJSON adds the date as YYYY-MM-DD
func (p ProcessedDay) MarshalJSON() ([]byte, error) {
	type plain ProcessedDay
	return marshalJSON(struct {
		plain
		Date string `json:"date"`
	}{plain(p), dateutil.Format(p.Date)})
}

// Result is the outcome of one Reconcile call.
//
// Days lists every enumerated (teacher, date) in teacher order, then in
// ascending date order. Processed lists the units that were written or already
// marked; Count is its length.
type Result struct {
	Scope     Scope          `json:"scope"`
	Start     time.Time      `json:"-"`
	End       time.Time      `json:"-"`
	Override  bool           `json:"override"`
	DryRun    bool           `json:"dry_run,omitempty"`
	Teachers  []string       `json:"teachers"`
	Days      []DayOutcome   `json:"days"`
	Processed []ProcessedDay `json:"processed"`
	Count     int            `json:"count"`
	Written   int            `json:"written"`
	Success   bool           `json:"success"`
	Errors    []DayError     `json:"errors"`
	Recovered []DayError     `json:"recovered,omitempty"`
	Cancelled bool           `json:"cancelled,omitempty"`
	CancelErr string         `json:"cancel_error,omitempty"`
	Duration  time.Duration  `json:"-"`
}

// MarshalJSON adds the range dates and the duration in milliseconds
func (r *Result) MarshalJSON() ([]byte, error) {
	type plain Result
	return marshalJSON(struct {
		*plain
		Start      string `json:"start_date"`
		End        string `json:"end_date"`
		DurationMS int64  `json:"duration_ms"`
	}{(*plain)(r), dateutil.Format(r.Start), dateutil.Format(r.End), r.Duration.Milliseconds()})
}

// Outcomes counts the days per outcome
func (r *Result) Outcomes() map[Outcome]int {
	counts := make(map[Outcome]int)
	for _, d := range r.Days {
		counts[d.Outcome]++
	}
	return counts
}

// teacherRun is the result of one teacher's day loop
type teacherRun struct {
	days      []DayOutcome
	processed []ProcessedDay
	written   int
	errors    []DayError
	recovered []DayError
	cancelErr error
}

func (r *Result) merge(run *teacherRun) {
	r.Days = append(r.Days, run.days...)
	r.Processed = append(r.Processed, run.processed...)
	r.Written += run.written
	r.Errors = append(r.Errors, run.errors...)
	r.Recovered = append(r.Recovered, run.recovered...)
	if run.cancelErr != nil && !r.Cancelled {
		r.Cancelled = true
		r.CancelErr = run.cancelErr.Error()
	}
}

func (r *Result) finish(started time.Time) {
	r.Count = len(r.Processed)
	r.Success = len(r.Errors) == 0 && !r.Cancelled
	r.Duration = time.Since(started)
}

func marshalJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
