package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/username/attendance-bot/internal/attendance"
	"github.com/username/attendance-bot/internal/reconcile"
	"github.com/username/attendance-bot/internal/state"
	"github.com/username/attendance-bot/pkg/dateutil"
	"go.uber.org/zap"
)

var (
	// ErrAlreadyRunning is returned when a run is triggered while another is in progress
	ErrAlreadyRunning = errors.New("reconciliation already in progress")
	// ErrNotAdmin is returned when the configured token does not belong to an admin
	ErrNotAdmin = errors.New("scheduled reconciliation requires an admin account")
)

// Reconciler is the reconciliation entry point the daemon drives
type Reconciler interface {
	Reconcile(ctx context.Context, scope reconcile.Scope, start, end time.Time, override bool) (*reconcile.Result, error)
}

// UserSource returns the account behind the configured token
type UserSource interface {
	CurrentUser(ctx context.Context) (*attendance.User, error)
}

// Window selects the dates a scheduled run covers
type Window string

const (
	// WindowAhead covers today through today+DaysAhead
	WindowAhead Window = "ahead"
	// WindowMonthToDate covers the first of the month through today
	WindowMonthToDate Window = "month-to-date"
)

// DefaultDaysAhead is the length of the ahead window when none is configured
const DefaultDaysAhead = 30

// ParseWindow parses a window name; empty means WindowAhead
func ParseWindow(s string) (Window, error) {
	switch Window(s) {
	case "", WindowAhead:
		return WindowAhead, nil
	case WindowMonthToDate:
		return WindowMonthToDate, nil
	}
	return "", fmt.Errorf("unknown daemon window %q (want ahead or month-to-date)", s)
}

// Options tunes what a scheduled run covers
type Options struct {
	Window    Window
	DaysAhead int
	// Users, when set, gates every run on the token's account having the admin role
	Users UserSource
}

// Daemon reconciles holidays for all teachers once a day
type Daemon struct {
	reconciler  Reconciler
	state       *state.Store
	dailyHour   int // Hour to run (0-23)
	dailyMinute int // Minute to run (0-59)
	location    *time.Location
	systemTray  bool
	opts        Options
	logger      *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	trayApp     *TrayApp
	now         func() time.Time
	mu          sync.Mutex // Protect against concurrent runs
	running     bool
}

// NewDaemon creates a new daemon instance with a daily schedule
func NewDaemon(reconciler Reconciler, store *state.Store, dailyHour, dailyMinute int, location *time.Location, systemTray bool, opts Options, logger *zap.Logger) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())
	if location == nil {
		location = time.Local
	}
	if opts.Window == "" {
		opts.Window = WindowAhead
	}
	if opts.DaysAhead <= 0 {
		opts.DaysAhead = DefaultDaysAhead
	}

	return &Daemon{
		reconciler:  reconciler,
		state:       store,
		dailyHour:   dailyHour,
		dailyMinute: dailyMinute,
		location:    location,
		systemTray:  systemTray,
		opts:        opts,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		now:         time.Now,
	}
}

// Start starts the daemon and blocks until it is stopped
func (d *Daemon) Start() error {
	if d.systemTray {
		d.logger.Info("Initializing system tray")
		trayApp, err := NewTrayApp(d, d.logger)
		if err != nil {
			d.logger.Warn("Failed to initialize system tray", zap.Error(err))
			d.runScheduledLogic()
			return nil
		}
		d.trayApp = trayApp
		// Blocks until Quit
		d.trayApp.Run()
		return nil
	}

	d.logger.Info("Running without system tray")
	d.runScheduledLogic()
	return nil
}

// Stop stops the daemon and cancels a run in progress
func (d *Daemon) Stop() {
	d.cancel()
}

// runScheduledLogic runs the schedule loop (called from tray or standalone)
func (d *Daemon) runScheduledLogic() {
	d.logger.Info("Daemon scheduled logic started",
		zap.Int("daily_hour", d.dailyHour),
		zap.Int("daily_minute", d.dailyMinute),
		zap.String("timezone", d.location.String()))

	// Catch up when the scheduled time already passed today
	now := d.now().In(d.location)
	if !now.Before(d.scheduledOn(now)) {
		d.logger.Info("Scheduled time already passed today, running now",
			zap.Time("scheduled_time", d.scheduledOn(now)),
			zap.Time("current_time", now))
		d.runAndNotify("Reconciliation")
	}

	d.logNextRun()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			d.logger.Info("Daemon stopped")
			if d.trayApp != nil {
				d.trayApp.Stop()
			}
			return

		case sig := <-sigChan:
			d.logger.Info("Received signal, shutting down",
				zap.String("signal", sig.String()))
			if d.trayApp != nil {
				d.trayApp.Stop()
			}
			d.Stop()
			return

		case now := <-ticker.C:
			if !d.shouldRunAt(now) {
				continue
			}
			d.logger.Info("Starting scheduled reconciliation", zap.Time("time", now))
			d.runAndNotify("Reconciliation")
			d.logNextRun()
		}
	}
}

func (d *Daemon) runAndNotify(title string) {
	res, err := d.RunOnce(false)
	switch {
	case err != nil:
		d.logger.Error("Reconciliation failed", zap.Error(err))
		d.notify(title+" Failed", fmt.Sprintf("Error: %v", err))
	case res == nil:
		// already ran today
	case !res.Success:
		d.notify(title+" Incomplete", fmt.Sprintf("%d holiday records written, %d errors", res.Written, len(res.Errors)))
	default:
		d.notify(title+" Completed", fmt.Sprintf("%d holiday records written", res.Written))
	}
}

func (d *Daemon) notify(title, message string) {
	if d.trayApp != nil {
		d.trayApp.ShowNotification(title, message)
	}
}

func (d *Daemon) logNextRun() {
	nextRun := d.calculateNextRun(d.now())
	d.logger.Info("Next reconciliation scheduled",
		zap.Time("next_run", nextRun),
		zap.Duration("wait_duration", nextRun.Sub(d.now())))
}

// RunOnce reconciles the configured window for all teachers.
// Without force it returns (nil, nil) when today already had a successful run.
func (d *Daemon) RunOnce(force bool) (*reconcile.Result, error) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		d.logger.Warn("Reconciliation already running, skipping concurrent execution")
		return nil, ErrAlreadyRunning
	}
	d.running = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	today := dateutil.Date(d.now().In(d.location))
	if !force && d.state.RanOn(today) {
		d.logger.Info("Already reconciled today, skipping",
			zap.String("date", dateutil.Format(today)))
		return nil, nil
	}

	if err := d.checkAdmin(); err != nil {
		return nil, err
	}

	start, end := d.window(today)
	d.logger.Info("Running scheduled reconciliation",
		zap.String("window", string(d.opts.Window)),
		zap.String("from", dateutil.Format(start)),
		zap.String("to", dateutil.Format(end)))

	res, err := d.reconciler.Reconcile(d.ctx, reconcile.All(), start, end, false)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile: %w", err)
	}

	if err := d.state.Record(today, res); err != nil {
		d.logger.Error("Failed to save run state", zap.Error(err))
	}

	return res, nil
}

// window returns the dates a run on today covers
func (d *Daemon) window(today time.Time) (start, end time.Time) {
	if d.opts.Window == WindowMonthToDate {
		return dateutil.StartOfMonth(today), today
	}
	return today, today.AddDate(0, 0, d.opts.DaysAhead)
}

func (d *Daemon) checkAdmin() error {
	if d.opts.Users == nil {
		return nil
	}
	user, err := d.opts.Users.CurrentUser(d.ctx)
	if err != nil {
		return fmt.Errorf("failed to check account role: %w", err)
	}
	if user.Role != "admin" {
		d.logger.Warn("Skipping reconciliation, account is not an admin",
			zap.String("user", user.Name),
			zap.String("role", user.Role))
		return ErrNotAdmin
	}
	return nil
}

// ReconcileNow triggers an immediate run (called from tray menu)
func (d *Daemon) ReconcileNow() {
	d.logger.Info("Manual reconciliation triggered from tray")
	res, err := d.RunOnce(true)
	if err != nil {
		d.logger.Error("Manual reconciliation failed", zap.Error(err))
		d.notify("Reconciliation Failed", fmt.Sprintf("Error: %v", err))
		return
	}
	d.notify("Reconciliation Completed", fmt.Sprintf("%d holiday records written", res.Written))
}

// GetStatus returns daemon status
func (d *Daemon) GetStatus() map[string]interface{} {
	d.mu.Lock()
	running := d.running
	d.mu.Unlock()

	last := d.state.Current()
	status := map[string]interface{}{
		"running":  running,
		"timezone": d.location.String(),
		"window":   string(d.opts.Window),
		"next_run": d.calculateNextRun(d.now()).Format(time.RFC3339),
	}
	if last.LastRunDate != "" {
		status["last_run"] = map[string]interface{}{
			"date":    last.LastRunDate,
			"from":    last.LastStart,
			"to":      last.LastEnd,
			"written": last.LastWritten,
			"count":   last.LastCount,
			"success": last.LastSuccess,
			"errors":  len(last.LastErrors),
		}
	}
	return status
}

func (d *Daemon) scheduledOn(now time.Time) time.Time {
	now = now.In(d.location)
	return time.Date(now.Year(), now.Month(), now.Day(),
		d.dailyHour, d.dailyMinute, 0, 0, d.location)
}

// calculateNextRun calculates the next scheduled run time
func (d *Daemon) calculateNextRun(now time.Time) time.Time {
	today := d.scheduledOn(now)
	if !now.Before(today) {
		return today.AddDate(0, 0, 1)
	}
	return today
}

// shouldRunAt checks if the schedule matches the given minute
func (d *Daemon) shouldRunAt(now time.Time) bool {
	local := now.In(d.location)
	return local.Hour() == d.dailyHour && local.Minute() == d.dailyMinute
}
