package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/username/attendance-bot/pkg/dateutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// HolidayClassifier decides whether a date is a holiday for a teacher
type HolidayClassifier interface {
	IsHoliday(ctx context.Context, date time.Time, teacherID string) (bool, error)
}

// ExistenceMode selects which records block an automatic holiday record
type ExistenceMode string

const (
	// ExistenceAny: any record for the teacher and date blocks the write
	ExistenceAny ExistenceMode = "any"
	// ExistenceHoliday: only a holiday-status record blocks the write
	ExistenceHoliday ExistenceMode = "holiday"
)

// ParseExistenceMode parses "any" or "holiday"; "" means any
func ParseExistenceMode(s string) (ExistenceMode, error) {
	switch ExistenceMode(s) {
	case "", ExistenceAny:
		return ExistenceAny, nil
	case ExistenceHoliday:
		return ExistenceHoliday, nil
	default:
		return "", fmt.Errorf("unknown existence mode %q (want any or holiday)", s)
	}
}

// RecordStore reads and writes attendance records
type RecordStore interface {
	RecordExists(ctx context.Context, teacherID string, date time.Time, mode ExistenceMode) (bool, error)
	WriteHolidayRecord(ctx context.Context, teacherID string, date time.Time) (string, error)
}

// TeacherDirectory lists the teachers an All scope expands to
type TeacherDirectory interface {
	ActiveTeacherIDs(ctx context.Context) ([]string, error)
}

// Options tunes a Reconciler
type Options struct {
	ExistenceMode ExistenceMode
	// Concurrency is the number of teachers reconciled in parallel; <= 1 is sequential
	Concurrency int
}

// Reconciler writes holiday attendance records for a teacher scope and date range
type Reconciler struct {
	classifier HolidayClassifier
	store      RecordStore
	directory  TeacherDirectory
	opts       Options
	locks      *keyedLock
	logger     *zap.Logger
}

// NewReconciler creates a new Reconciler
func NewReconciler(classifier HolidayClassifier, store RecordStore, directory TeacherDirectory, opts Options, logger *zap.Logger) *Reconciler {
	if opts.ExistenceMode == "" {
		opts.ExistenceMode = ExistenceAny
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	return &Reconciler{
		classifier: classifier,
		store:      store,
		directory:  directory,
		opts:       opts,
		locks:      newKeyedLock(),
		logger:     logger,
	}
}

// Reconcile marks every holiday in [start, end] for the scope.
//
// Only an inverted range or an empty Single scope is returned as an error, before
// any collaborator is called. Per-day failures are kept in Result.Errors and
// the loop continues. A cancelled ctx stops the run between days and returns
// the partial result with Cancelled set.
func (r *Reconciler) Reconcile(ctx context.Context, scope Scope, start, end time.Time, override bool) (*Result, error) {
	return r.run(ctx, scope, start, end, override, false)
}

// DryRun classifies and checks existence like Reconcile but never writes;
// days that would be written get OutcomePlanned.
func (r *Reconciler) DryRun(ctx context.Context, scope Scope, start, end time.Time, override bool) (*Result, error) {
	return r.run(ctx, scope, start, end, override, true)
}

func (r *Reconciler) run(ctx context.Context, scope Scope, start, end time.Time, override, dryRun bool) (*Result, error) {
	started := time.Now()
	start, end = dateutil.Date(start), dateutil.Date(end)

	if start.After(end) {
		return nil, &InvalidRangeError{Start: start, End: end}
	}
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	result := &Result{
		Scope:     scope,
		Start:     start,
		End:       end,
		Override:  override,
		DryRun:    dryRun,
		Teachers:  []string{},
		Days:      []DayOutcome{},
		Processed: []ProcessedDay{},
		Errors:    []DayError{},
	}

	r.logger.Info("Starting reconciliation",
		zap.Stringer("scope", scope),
		zap.String("from", dateutil.Format(start)),
		zap.String("to", dateutil.Format(end)),
		zap.Bool("override", override),
		zap.Bool("dry_run", dryRun))

	teachers, err := r.expand(ctx, scope)
	if err != nil {
		r.logger.Error("Failed to expand teacher scope",
			zap.Stringer("scope", scope),
			zap.Error(err))
		result.Errors = append(result.Errors, newDayError("", time.Time{}, OpDirectory, err))
		result.finish(started)
		return result, nil
	}
	result.Teachers = teachers

	days := dateutil.Days(start, end)
	runs := make([]*teacherRun, len(teachers))

	g := new(errgroup.Group)
	g.SetLimit(r.opts.Concurrency)
	for i, teacherID := range teachers {
		i, teacherID := i, teacherID
		g.Go(func() error {
			runs[i] = r.reconcileTeacher(ctx, teacherID, days, override, dryRun)
			return nil
		})
	}
	_ = g.Wait()

	for _, run := range runs {
		result.merge(run)
	}
	result.finish(started)

	r.logger.Info("Reconciliation completed",
		zap.Stringer("scope", scope),
		zap.Int("teachers", len(teachers)),
		zap.Int("days", len(result.Days)),
		zap.Int("processed", result.Count),
		zap.Int("written", result.Written),
		zap.Int("errors", len(result.Errors)),
		zap.Bool("success", result.Success),
		zap.Bool("cancelled", result.Cancelled),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// expand resolves the scope to teacher ids, dropping duplicates
func (r *Reconciler) expand(ctx context.Context, scope Scope) ([]string, error) {
	if !scope.IsAll() {
		return []string{scope.TeacherID()}, nil
	}
	if r.directory == nil {
		return nil, fmt.Errorf("no teacher directory configured")
	}

	ids, err := r.directory.ActiveTeacherIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active teachers: %w", err)
	}

	seen := make(map[string]bool, len(ids))
	teachers := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		teachers = append(teachers, id)
	}
	return teachers, nil
}

// reconcileTeacher runs the day loop for one teacher
func (r *Reconciler) reconcileTeacher(ctx context.Context, teacherID string, days []time.Time, override, dryRun bool) *teacherRun {
	run := &teacherRun{}

	for _, day := range days {
		if err := ctx.Err(); err != nil {
			run.cancelErr = err
			r.logger.Warn("Reconciliation cancelled",
				zap.String("teacher_id", teacherID),
				zap.String("next_date", dateutil.Format(day)),
				zap.Error(err))
			break
		}

		r.reconcileDay(ctx, teacherID, day, override, dryRun, run)
	}

	return run
}

// reconcileDay: classify, check existence, write
func (r *Reconciler) reconcileDay(ctx context.Context, teacherID string, day time.Time, override, dryRun bool, run *teacherRun) {
	outcome := DayOutcome{TeacherID: teacherID, Date: day}

	isHoliday, err := r.classifier.IsHoliday(ctx, day, teacherID)
	if err != nil {
		dayErr := newDayError(teacherID, day, OpClassify, err)
		run.recovered = append(run.recovered, dayErr)
		outcome.Error = dayErr.Message
		r.logger.Warn("Holiday classification failed, treating as workday",
			zap.String("teacher_id", teacherID),
			zap.String("date", dateutil.Format(day)),
			zap.Error(err))
		isHoliday = false
	}

	if !isHoliday {
		outcome.Outcome = OutcomeSkippedNotHoliday
		run.days = append(run.days, outcome)
		return
	}

	unlock := r.locks.Lock(teacherID + "|" + dateutil.Format(day))
	defer unlock()

	if !override {
		exists, err := r.store.RecordExists(ctx, teacherID, day, r.opts.ExistenceMode)
		if err != nil {
			dayErr := newDayError(teacherID, day, OpExists, err)
			run.recovered = append(run.recovered, dayErr)
			outcome.Outcome = OutcomeSkippedExisting
			outcome.Error = dayErr.Message
			run.days = append(run.days, outcome)
			r.logger.Warn("Existence check failed, skipping day",
				zap.String("teacher_id", teacherID),
				zap.String("date", dateutil.Format(day)),
				zap.Error(err))
			return
		}

		if exists {
			outcome.Outcome = OutcomeSkippedExisting
			run.days = append(run.days, outcome)
			run.processed = append(run.processed, ProcessedDay{TeacherID: teacherID, Date: day})
			r.logger.Debug("Record exists, skipping day",
				zap.String("teacher_id", teacherID),
				zap.String("date", dateutil.Format(day)))
			return
		}
	}

	if dryRun {
		outcome.Outcome = OutcomePlanned
		run.days = append(run.days, outcome)
		r.logger.Info("Holiday record planned",
			zap.String("teacher_id", teacherID),
			zap.String("date", dateutil.Format(day)))
		return
	}

	recordID, err := r.store.WriteHolidayRecord(ctx, teacherID, day)
	if err != nil {
		dayErr := newDayError(teacherID, day, OpWrite, err)
		run.errors = append(run.errors, dayErr)
		outcome.Outcome = OutcomeFailed
		outcome.Error = dayErr.Message
		run.days = append(run.days, outcome)
		r.logger.Error("Failed to write holiday record",
			zap.String("teacher_id", teacherID),
			zap.String("date", dateutil.Format(day)),
			zap.Error(err))
		return
	}

	outcome.Outcome = OutcomeWritten
	outcome.RecordID = recordID
	run.days = append(run.days, outcome)
	run.processed = append(run.processed, ProcessedDay{TeacherID: teacherID, Date: day})
	run.written++

	r.logger.Info("Holiday record written",
		zap.String("teacher_id", teacherID),
		zap.String("date", dateutil.Format(day)),
		zap.String("record_id", recordID))
}
