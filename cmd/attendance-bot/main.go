package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/username/attendance-bot/internal/attendance"
	"github.com/username/attendance-bot/internal/calendar"
	"github.com/username/attendance-bot/internal/config"
	"github.com/username/attendance-bot/internal/reconcile"
	"github.com/username/attendance-bot/pkg/dateutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	configPath string
	logger     *zap.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "attendance-bot",
		Short: "Holiday-aware teacher attendance reconciler",
		Long:  "Marks public holidays and teacher days off in the attendance system so that no one shows up as absent on a day the school was closed",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load config to get log file path
			cfg, err := config.Load(configPath)
			if err == nil && cfg.Daemon.LogFile != "" {
				logger, err = initFileLogger(cfg.Daemon.LogFile, cfg.Daemon.LogLevel)
				if err != nil {
					initLogger()
				}
			} else {
				initLogger()
			}
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Config file path")

	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(markCmd())
	rootCmd.AddCommand(holidaysCmd())
	rootCmd.AddCommand(recordsCmd())
	rootCmd.AddCommand(summaryCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// components is everything a command may need, built from config
type components struct {
	cfg        *config.Config
	client     *attendance.Client
	classifier *calendar.Classifier
	reconciler *reconcile.Reconciler
	location   *time.Location
}

func initialize() (*components, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	session := attendance.NewSession(cfg.API.Token, logger)
	client := attendance.NewClient(cfg.API.BaseURL, session, attendance.Options{
		Timeout:    cfg.API.GetTimeout(),
		Retries:    cfg.API.Retries,
		RetryDelay: cfg.API.GetRetryDelay(),
	}, logger)

	cal, err := buildCalendar(&cfg.Calendar, logger)
	if err != nil {
		return nil, err
	}

	overrides, err := cfg.Calendar.GetOverrides()
	if err != nil {
		return nil, err
	}
	classifier := calendar.NewClassifier(cal, cfg.Calendar.WeekendsAreHolidays, overrides, logger)

	mode, err := reconcile.ParseExistenceMode(cfg.Reconcile.ExistenceMode)
	if err != nil {
		return nil, err
	}
	reconciler := reconcile.NewReconciler(
		classifier,
		reconcile.NewAttendanceStore(client, cfg.Reconcile.Comment),
		client,
		reconcile.Options{ExistenceMode: mode, Concurrency: cfg.Reconcile.Concurrency},
		logger,
	)

	loc, err := cfg.Daemon.GetLocation()
	if err != nil {
		return nil, err
	}

	return &components{
		cfg:        cfg,
		client:     client,
		classifier: classifier,
		reconciler: reconciler,
		location:   loc,
	}, nil
}

// buildCalendar creates the calendar selected by calendar.type
func buildCalendar(cfg *config.CalendarConfig, logger *zap.Logger) (calendar.Calendar, error) {
	switch cfg.Type {
	case "", "rules":
		logger.Info("Using rule-based holiday calendar", zap.String("country", cfg.Country))
		return calendar.NewRuleCalendar(cfg.Country, cfg.GetExtraHolidays(), logger)

	case "file":
		logger.Info("Using static calendar file", zap.String("file", cfg.File))
		fileCal := calendar.NewFileCalendar(cfg.File, logger)
		if err := fileCal.Load(); err != nil {
			return nil, err
		}
		return fileCal, nil

	case "isdayoff":
		logger.Info("Using isdayoff.ru calendar API")
		return calendar.NewIsDayOffCalendar(cfg.BaseURL, cfg.FallbackURL, cfg.GetCacheTTL(), logger), nil

	case "composite":
		logger.Info("Using isdayoff.ru calendar API with static file fallback")
		primaryCal := calendar.NewIsDayOffCalendar(cfg.BaseURL, cfg.FallbackURL, cfg.GetCacheTTL(), logger)
		fallbackCal := calendar.NewFileCalendar(cfg.File, logger)
		compositeCal := calendar.NewCompositeCalendar(primaryCal, fallbackCal, logger)

		if err := compositeCal.LoadFallback(); err != nil {
			logger.Warn("Failed to load fallback calendar, continuing with API only",
				zap.Error(err))
		}
		return compositeCal, nil

	default:
		return nil, fmt.Errorf("unknown calendar type: %s", cfg.Type)
	}
}

// dateRange parses --from/--to, defaulting to month-to-date in loc
func dateRange(fromStr, toStr string, loc *time.Location) (from, to time.Time, err error) {
	today := dateutil.Today(loc)
	from, to = dateutil.StartOfMonth(today), today

	if fromStr != "" {
		if from, err = dateutil.ParseDate(fromStr); err != nil {
			return from, to, fmt.Errorf("invalid from date: %w", err)
		}
	}
	if toStr != "" {
		if to, err = dateutil.ParseDate(toStr); err != nil {
			return from, to, fmt.Errorf("invalid to date: %w", err)
		}
	}
	return from, to, nil
}

func initLogger() {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var err error
	logger, err = config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
}

func initFileLogger(logFile string, level string) (*zap.Logger, error) {
	logWriter := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    100,  // MB
		MaxBackups: 3,    // Keep max 3 old log files
		MaxAge:     28,   // days
		Compress:   true, // Compress old logs with gzip
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(logWriter),
		zapLevel,
	)

	return zap.New(core), nil
}
