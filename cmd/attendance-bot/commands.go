package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/username/attendance-bot/internal/attendance"
	"github.com/username/attendance-bot/internal/daemon"
	"github.com/username/attendance-bot/internal/reconcile"
	"github.com/username/attendance-bot/internal/server"
	"github.com/username/attendance-bot/internal/state"
	"github.com/username/attendance-bot/pkg/dateutil"
	"go.uber.org/zap"
)

// signalContext is cancelled on Ctrl+C so long runs stop between days
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func reconcileCmd() *cobra.Command {
	var teacherID string
	var all bool
	var fromStr, toStr string
	var override, dryRun, asJSON bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Write holiday records for a teacher or for all teachers",
		Long:  "Marks every holiday in the range as attended-holiday. Days that already carry a record are left alone unless --override is set. Defaults to month-to-date.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (teacherID != "") {
				return fmt.Errorf("exactly one of --teacher and --all is required")
			}

			c, err := initialize()
			if err != nil {
				return err
			}

			from, to, err := dateRange(fromStr, toStr, c.location)
			if err != nil {
				return err
			}

			scope := reconcile.All()
			if !all {
				scope = reconcile.Single(teacherID)
			}

			ctx, cancel := signalContext()
			defer cancel()

			run := c.reconciler.Reconcile
			if dryRun {
				run = c.reconciler.DryRun
			}
			res, err := run(ctx, scope, from, to, override)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, res)
			}
			printResult(out, res)

			if !res.Success {
				return fmt.Errorf("reconciliation finished with %d error(s)", len(res.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&teacherID, "teacher", "t", "", "Teacher id")
	cmd.Flags().BoolVar(&all, "all", false, "Reconcile every active teacher")
	cmd.Flags().StringVar(&fromStr, "from", "", "Start date (YYYY-MM-DD), default first day of month")
	cmd.Flags().StringVar(&toStr, "to", "", "End date (YYYY-MM-DD), default today")
	cmd.Flags().BoolVar(&override, "override", false, "Write holiday records even where a record exists")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview actions without writing records")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")

	return cmd
}

func printResult(out io.Writer, res *reconcile.Result) {
	header := "✅"
	if res.DryRun {
		header = "📋 [DRY RUN]"
	}
	fmt.Fprintf(out, "%s Reconciliation %s, %s .. %s\n", header, res.Scope,
		dateutil.Format(res.Start), dateutil.Format(res.End))
	fmt.Fprintln(out, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(out, "  Teacher                  | Date       | Outcome")
	fmt.Fprintln(out, "---------------------------+------------+--------------------")

	for _, d := range res.Days {
		if d.Outcome == reconcile.OutcomeSkippedNotHoliday && d.Error == "" {
			continue
		}
		line := fmt.Sprintf("  %-24s | %s | %s", d.TeacherID, dateutil.Format(d.Date), d.Outcome)
		if d.Error != "" {
			line += " (" + d.Error + ")"
		}
		fmt.Fprintln(out, line)
	}

	counts := res.Outcomes()
	fmt.Fprintf(out, "\n  Teachers:  %d\n", len(res.Teachers))
	fmt.Fprintf(out, "  Days:      %d\n", len(res.Days))
	fmt.Fprintf(out, "  Written:   %d\n", res.Written)
	if res.DryRun {
		fmt.Fprintf(out, "  Planned:   %d\n", counts[reconcile.OutcomePlanned])
	}
	fmt.Fprintf(out, "  Existing:  %d\n", counts[reconcile.OutcomeSkippedExisting])
	fmt.Fprintf(out, "  Processed: %d\n", res.Count)
	fmt.Fprintf(out, "  Duration:  %s\n", res.Duration.Round(time.Millisecond))

	for _, e := range res.Errors {
		fmt.Fprintf(out, "  ❌ %s\n", e.Error())
	}
	for _, e := range res.Recovered {
		fmt.Fprintf(out, "  ⚠️  %s\n", e.Error())
	}
	if res.Cancelled {
		fmt.Fprintf(out, "  ⛔ cancelled: %s\n", res.CancelErr)
	}
}

func markCmd() *cobra.Command {
	var teacherID, dateStr, statusStr, checkIn, checkOut, comment string
	var workHours float64
	var overrideHoliday bool

	cmd := &cobra.Command{
		Use:   "mark",
		Short: "Record manual attendance, deferring to holidays",
		Long:  "Adds a manual attendance record. On a holiday the day is marked as holiday instead unless --override-holiday is set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := initialize()
			if err != nil {
				return err
			}

			date := dateutil.Today(c.location)
			if dateStr != "" {
				if date, err = dateutil.ParseDate(dateStr); err != nil {
					return fmt.Errorf("invalid date: %w", err)
				}
			}
			status, err := attendance.ParseStatus(statusStr)
			if err != nil {
				return err
			}

			record := &attendance.Record{
				TeacherID: attendance.FlexibleID(teacherID),
				Date:      attendance.NewDate(date),
				Status:    status,
				WorkHours: workHours,
				Comment:   comment,
			}
			if checkIn != "" {
				record.CheckIn = &checkIn
			}
			if checkOut != "" {
				record.CheckOut = &checkOut
			}

			ctx, cancel := signalContext()
			defer cancel()

			marker := reconcile.NewMarker(c.reconciler, c.classifier, c.client, logger)
			res, err := marker.Mark(ctx, record, overrideHoliday)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✅ %s\n", res.Message)
			if res.Holiday != nil {
				fmt.Fprintf(out, "   %s %s: %s\n", res.Holiday.TeacherID, dateutil.Format(res.Holiday.Date), res.Holiday.Outcome)
			}
			if res.Record != nil {
				fmt.Fprintf(out, "   id %s, %s %s\n", res.Record.ID, res.Record.Date, res.Record.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&teacherID, "teacher", "t", "", "Teacher id")
	cmd.Flags().StringVar(&dateStr, "date", "", "Date (YYYY-MM-DD), default today")
	cmd.Flags().StringVar(&statusStr, "status", string(attendance.StatusPresent), "present, absent, late, half-day, leave or holiday")
	cmd.Flags().StringVar(&checkIn, "check-in", "", "Check-in time (HH:MM)")
	cmd.Flags().StringVar(&checkOut, "check-out", "", "Check-out time (HH:MM)")
	cmd.Flags().Float64Var(&workHours, "work-hours", 0, "Hours worked")
	cmd.Flags().StringVar(&comment, "comment", "", "Comment")
	cmd.Flags().BoolVar(&overrideHoliday, "override-holiday", false, "Record the entry even on a holiday")
	_ = cmd.MarkFlagRequired("teacher")

	return cmd
}

func holidaysCmd() *cobra.Command {
	var teacherID, fromStr, toStr string

	cmd := &cobra.Command{
		Use:   "holidays",
		Short: "List holidays in a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := initialize()
			if err != nil {
				return err
			}

			from, to, err := dateRange(fromStr, toStr, c.location)
			if err != nil {
				return err
			}
			// Whole month by default, holidays ahead are worth seeing
			if toStr == "" {
				to = dateutil.EndOfMonth(from)
			}
			if from.After(to) {
				return &reconcile.InvalidRangeError{Start: from, End: to}
			}

			holidays, err := c.classifier.Holidays(cmd.Context(), from, to, teacherID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "📅 Holidays %s .. %s\n", dateutil.Format(from), dateutil.Format(to))
			for _, h := range holidays {
				fmt.Fprintf(out, "  %s  %-9s  %s\n", dateutil.Format(h.Date), h.Date.Weekday(), h.Note)
			}
			fmt.Fprintf(out, "\nTotal: %d\n", len(holidays))
			return nil
		},
	}

	cmd.Flags().StringVarP(&teacherID, "teacher", "t", "", "Apply this teacher's overrides")
	cmd.Flags().StringVar(&fromStr, "from", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toStr, "to", "", "End date (YYYY-MM-DD)")

	return cmd
}

func recordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect, correct and delete attendance records",
	}
	cmd.AddCommand(recordsListCmd())
	cmd.AddCommand(recordsUpdateCmd())
	cmd.AddCommand(recordsDeleteCmd())
	return cmd
}

func recordsListCmd() *cobra.Command {
	var teacherID, fromStr, toStr, dateStr string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records for a teacher or for one date",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := initialize()
			if err != nil {
				return err
			}

			var records []attendance.Record
			switch {
			case dateStr != "":
				date, err := dateutil.ParseDate(dateStr)
				if err != nil {
					return fmt.Errorf("invalid date: %w", err)
				}
				records, err = c.client.GetAttendanceByDate(cmd.Context(), date)
				if err != nil {
					return err
				}
			case teacherID != "":
				from, to, err := dateRange(fromStr, toStr, c.location)
				if err != nil {
					return err
				}
				records, err = c.client.GetTeacherAttendance(cmd.Context(), teacherID, from, to)
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("--teacher or --date is required")
			}

			out := cmd.OutOrStdout()
			for _, r := range records {
				fmt.Fprintf(out, "  %s  %-24s  %-9s  %-12s  %s\n", r.Date, r.TeacherID, r.Status, r.Source, r.ID)
			}
			fmt.Fprintf(out, "\nTotal: %d\n", len(records))
			return nil
		},
	}

	cmd.Flags().StringVarP(&teacherID, "teacher", "t", "", "Teacher id")
	cmd.Flags().StringVar(&fromStr, "from", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toStr, "to", "", "End date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&dateStr, "date", "", "List every teacher's records for this date")

	return cmd
}

func recordsUpdateCmd() *cobra.Command {
	var teacherID, dateStr, statusStr, checkIn, checkOut, comment string
	var workHours float64

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Replace an attendance record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := initialize()
			if err != nil {
				return err
			}

			date, err := dateutil.ParseDate(dateStr)
			if err != nil {
				return fmt.Errorf("invalid date: %w", err)
			}
			status, err := attendance.ParseStatus(statusStr)
			if err != nil {
				return err
			}

			record := &attendance.Record{
				TeacherID: attendance.FlexibleID(teacherID),
				Date:      attendance.NewDate(date),
				Status:    status,
				WorkHours: workHours,
				Comment:   comment,
				Source:    attendance.SourceManual,
			}
			if checkIn != "" {
				record.CheckIn = &checkIn
			}
			if checkOut != "" {
				record.CheckOut = &checkOut
			}

			updated, err := c.client.UpdateRecord(cmd.Context(), args[0], record)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✏️  Updated record %s: %s %s\n", updated.ID, updated.Date, updated.Status)
			return nil
		},
	}

	cmd.Flags().StringVarP(&teacherID, "teacher", "t", "", "Teacher id")
	cmd.Flags().StringVar(&dateStr, "date", "", "Date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&statusStr, "status", "", "present, absent, late, half-day, leave or holiday")
	cmd.Flags().StringVar(&checkIn, "check-in", "", "Check-in time (HH:MM)")
	cmd.Flags().StringVar(&checkOut, "check-out", "", "Check-out time (HH:MM)")
	cmd.Flags().Float64Var(&workHours, "work-hours", 0, "Hours worked")
	cmd.Flags().StringVar(&comment, "comment", "", "Comment")
	_ = cmd.MarkFlagRequired("teacher")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("status")

	return cmd
}

func recordsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an attendance record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := initialize()
			if err != nil {
				return err
			}
			if err := c.client.DeleteRecord(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "🗑️  Deleted record %s\n", args[0])
			return nil
		},
	}
}

func summaryCmd() *cobra.Command {
	var teacherID string
	var year, month int

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show a teacher's monthly attendance summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := initialize()
			if err != nil {
				return err
			}

			today := dateutil.Today(c.location)
			if year == 0 {
				year = today.Year()
			}
			if month == 0 {
				month = int(today.Month())
			}
			if month < 1 || month > 12 {
				return fmt.Errorf("month must be between 1 and 12")
			}

			s, err := c.client.GetSummary(cmd.Context(), teacherID, year, time.Month(month))
			if err != nil {
				return err
			}

			name := teacherID
			if t, err := c.client.GetTeacher(cmd.Context(), teacherID); err == nil && t.Name != "" {
				name = t.Name
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "📊 %s %d-%02d\n", name, year, month)
			fmt.Fprintln(out, "═══════════════════════════════════════════════════════")
			fmt.Fprintf(out, "  Total days:  %d\n", s.TotalDays)
			fmt.Fprintf(out, "  Present:     %d\n", s.Present)
			fmt.Fprintf(out, "  Absent:      %d\n", s.Absent)
			fmt.Fprintf(out, "  Late:        %d\n", s.Late)
			fmt.Fprintf(out, "  Half-day:    %d\n", s.HalfDay)
			fmt.Fprintf(out, "  Leave:       %d\n", s.Leave)
			fmt.Fprintf(out, "  Holiday:     %d\n", s.Holiday)
			fmt.Fprintf(out, "  Work hours:  %.1fh\n", s.TotalWorkHours)
			return nil
		},
	}

	cmd.Flags().StringVarP(&teacherID, "teacher", "t", "", "Teacher id")
	cmd.Flags().IntVar(&year, "year", 0, "Year, default current")
	cmd.Flags().IntVar(&month, "month", 0, "Month 1-12, default current")
	_ = cmd.MarkFlagRequired("teacher")

	return cmd
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the account behind the configured token",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := initialize()
			if err != nil {
				return err
			}
			u, err := c.client.CurrentUser(cmd.Context())
			if errors.Is(err, attendance.ErrSessionExpired) {
				return fmt.Errorf("token expired, update api.token: %w", err)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "👤 %s <%s> (%s), id %s\n", u.Name, u.Email, u.Role, u.ID)
			return nil
		},
	}
}

func daemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Reconcile upcoming (or month-to-date) holidays for all teachers every day",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := initialize()
			if err != nil {
				return err
			}

			store := state.NewStore(c.cfg.State.File, logger)
			if err := store.Load(); err != nil {
				return fmt.Errorf("failed to load run state: %w", err)
			}

			hour, minute := c.cfg.Daemon.GetDailyTime()
			logger.Info("Starting daemon",
				zap.Int("daily_hour", hour),
				zap.Int("daily_minute", minute),
				zap.String("timezone", c.location.String()),
				zap.Bool("system_tray", c.cfg.Daemon.SystemTray))

			window, err := daemon.ParseWindow(c.cfg.Daemon.Window)
			if err != nil {
				return err
			}
			opts := daemon.Options{Window: window, DaysAhead: c.cfg.Daemon.DaysAhead}
			if c.cfg.Daemon.RequireAdmin {
				opts.Users = c.client
			}

			d := daemon.NewDaemon(c.reconciler, store, hour, minute, c.location, c.cfg.Daemon.SystemTray, opts, logger)
			return d.Start()
		},
	}
}

func serveCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the holiday and reconciliation HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := initialize()
			if err != nil {
				return err
			}
			if listen == "" {
				listen = c.cfg.Server.Listen
			}

			app := server.New(c.reconciler, c.classifier, logger)

			ctx, cancel := signalContext()
			defer cancel()
			go func() {
				<-ctx.Done()
				logger.Info("Shutting down HTTP server")
				if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
					logger.Error("HTTP server shutdown failed", zap.Error(err))
				}
			}()

			logger.Info("HTTP server listening", zap.String("listen", listen))
			return app.Listen(listen)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address, default server.listen")

	return cmd
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
