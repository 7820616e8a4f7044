package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/username/attendance-bot/internal/calendar"
	"github.com/username/attendance-bot/internal/daemon"
	"github.com/username/attendance-bot/internal/reconcile"
	"github.com/username/attendance-bot/pkg/dateutil"
)

// Config represents application configuration
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Calendar  CalendarConfig  `mapstructure:"calendar"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Daemon    DaemonConfig    `mapstructure:"daemon"`
	Server    ServerConfig    `mapstructure:"server"`
	State     StateConfig     `mapstructure:"state"`
}

// APIConfig represents the attendance backend configuration
type APIConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	Token      string `mapstructure:"token"`
	Timeout    string `mapstructure:"timeout"`
	Retries    int    `mapstructure:"retries"`
	RetryDelay string `mapstructure:"retry_delay"`
}

// CalendarConfig represents calendar configuration
type CalendarConfig struct {
	Type                string                            `mapstructure:"type"`    // rules, file, isdayoff or composite
	Country             string                            `mapstructure:"country"` // rules: us, gb or none
	File                string                            `mapstructure:"file"`
	BaseURL             string                            `mapstructure:"base_url"` // isdayoff API, empty for the public one
	FallbackURL         string                            `mapstructure:"fallback_url"`
	CacheTTL            string                            `mapstructure:"cache_ttl"`
	WeekendsAreHolidays bool                              `mapstructure:"weekends_are_holidays"`
	ExtraHolidays       []HolidayEntry                    `mapstructure:"extra_holidays"`
	TeacherOverrides    map[string]TeacherOverrideConfig `mapstructure:"teacher_overrides"`
}

// HolidayEntry is an additional holiday date
type HolidayEntry struct {
	Date string `mapstructure:"date"`
	Note string `mapstructure:"note"`
}

// TeacherOverrideConfig lists the per-teacher exceptions to the calendar
type TeacherOverrideConfig struct {
	Holidays []string `mapstructure:"holidays"`
	Workdays []string `mapstructure:"workdays"`
}

// ReconcileConfig represents reconciler configuration
type ReconcileConfig struct {
	ExistenceMode string `mapstructure:"existence_mode"` // any or holiday
	Concurrency   int    `mapstructure:"concurrency"`
	Comment       string `mapstructure:"comment"`
}

// DaemonConfig represents daemon mode configuration
type DaemonConfig struct {
	DailyTime    string `mapstructure:"daily_time"` // HH:MM in Timezone
	Timezone     string `mapstructure:"timezone"`
	Window       string `mapstructure:"window"`     // ahead or month-to-date
	DaysAhead    int    `mapstructure:"days_ahead"` // ahead window length
	RequireAdmin bool   `mapstructure:"require_admin"`
	LogFile      string `mapstructure:"log_file"`
	LogLevel     string `mapstructure:"log_level"`
	SystemTray   bool   `mapstructure:"system_tray"` // Windows only
}

// ServerConfig represents the HTTP surface configuration
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// StateConfig represents state storage configuration
type StateConfig struct {
	File string `mapstructure:"file"`
}

// Load loads configuration from file.
// A .env file next to the config (or in the working directory) is loaded first.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(configPath); err != nil {
		return nil, err
	}

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.attendance-bot")
		v.AddConfigPath("/etc/attendance-bot")
	}

	setDefaults(v)

	// ATTENDANCE_API_TOKEN overrides api.token and so on
	v.SetEnvPrefix("attendance")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.ExpandEnvVars()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.token", "")
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("api.retries", 3)
	v.SetDefault("api.retry_delay", "1s")
	v.SetDefault("calendar.type", "rules")
	v.SetDefault("calendar.country", "us")
	v.SetDefault("calendar.cache_ttl", "24h")
	v.SetDefault("reconcile.existence_mode", "any")
	v.SetDefault("reconcile.concurrency", 1)
	v.SetDefault("reconcile.comment", "Public holiday")
	v.SetDefault("daemon.daily_time", "20:00")
	v.SetDefault("daemon.window", string(daemon.WindowAhead))
	v.SetDefault("daemon.days_ahead", daemon.DefaultDaysAhead)
	v.SetDefault("daemon.require_admin", true)
	v.SetDefault("daemon.log_level", "info")
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("state.file", "attendance-state.json")
}

func loadDotEnv(configPath string) error {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append([]string{filepath.Join(filepath.Dir(configPath), ".env")}, candidates...)
	}

	for _, f := range candidates {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
		return nil
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.Retries < 0 {
		return fmt.Errorf("api.retries must not be negative")
	}

	switch c.Calendar.Type {
	case "rules":
		switch strings.ToLower(c.Calendar.Country) {
		case "us", "gb", "none":
		default:
			return fmt.Errorf("calendar.country must be 'us', 'gb' or 'none', got '%s'", c.Calendar.Country)
		}
	case "file":
		if c.Calendar.File == "" {
			return fmt.Errorf("calendar.file is required for file type")
		}
	case "isdayoff", "composite":
		if c.Calendar.Type == "composite" && c.Calendar.File == "" {
			return fmt.Errorf("calendar.file is required for composite type")
		}
	default:
		return fmt.Errorf("calendar.type must be 'rules', 'file', 'isdayoff' or 'composite', got '%s'", c.Calendar.Type)
	}

	for _, h := range c.Calendar.ExtraHolidays {
		if _, err := dateutil.ParseDate(h.Date); err != nil {
			return fmt.Errorf("calendar.extra_holidays: %w", err)
		}
	}
	if _, err := c.Calendar.GetOverrides(); err != nil {
		return err
	}

	if _, err := reconcile.ParseExistenceMode(c.Reconcile.ExistenceMode); err != nil {
		return fmt.Errorf("reconcile.existence_mode: %w", err)
	}
	if c.Reconcile.Concurrency < 0 {
		return fmt.Errorf("reconcile.concurrency must not be negative")
	}

	if c.Daemon.DailyTime != "" {
		if _, _, ok := parseClock(c.Daemon.DailyTime); !ok {
			return fmt.Errorf("daemon.daily_time must be HH:MM, got '%s'", c.Daemon.DailyTime)
		}
	}
	if _, err := c.Daemon.GetLocation(); err != nil {
		return err
	}
	if _, err := daemon.ParseWindow(c.Daemon.Window); err != nil {
		return fmt.Errorf("daemon.window: %w", err)
	}
	if c.Daemon.DaysAhead < 0 || c.Daemon.DaysAhead > 366 {
		return fmt.Errorf("daemon.days_ahead must be between 0 and 366, got %d", c.Daemon.DaysAhead)
	}

	return nil
}

// GetCacheTTL returns cache TTL duration
func (c *CalendarConfig) GetCacheTTL() time.Duration {
	if c.CacheTTL == "" {
		return 24 * time.Hour
	}
	duration, err := time.ParseDuration(c.CacheTTL)
	if err != nil {
		return 24 * time.Hour
	}
	return duration
}

// GetExtraHolidays returns the extra holidays as date -> note
func (c *CalendarConfig) GetExtraHolidays() map[string]string {
	extra := make(map[string]string, len(c.ExtraHolidays))
	for _, h := range c.ExtraHolidays {
		d, err := dateutil.ParseDate(h.Date)
		if err != nil {
			continue
		}
		extra[dateutil.Format(d)] = h.Note
	}
	return extra
}

// GetOverrides parses the per-teacher override dates
func (c *CalendarConfig) GetOverrides() (map[string]calendar.Override, error) {
	overrides := make(map[string]calendar.Override, len(c.TeacherOverrides))
	for teacherID, o := range c.TeacherOverrides {
		holidays, err := parseDates(o.Holidays)
		if err != nil {
			return nil, fmt.Errorf("calendar.teacher_overrides.%s.holidays: %w", teacherID, err)
		}
		workdays, err := parseDates(o.Workdays)
		if err != nil {
			return nil, fmt.Errorf("calendar.teacher_overrides.%s.workdays: %w", teacherID, err)
		}
		overrides[teacherID] = calendar.Override{Holidays: holidays, Workdays: workdays}
	}
	return overrides, nil
}

func parseDates(values []string) ([]time.Time, error) {
	dates := make([]time.Time, 0, len(values))
	for _, v := range values {
		d, err := dateutil.ParseDate(v)
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// GetTimeout returns the backend request timeout
func (c *APIConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

// GetRetryDelay returns the base delay between retries
func (c *APIConfig) GetRetryDelay() time.Duration {
	return parseDuration(c.RetryDelay, time.Second)
}

// GetDailyTime returns the configured daily run time.
// Returns hour and minute (0-23, 0-59). Default: 20:00
func (c *DaemonConfig) GetDailyTime() (hour, minute int) {
	h, m, ok := parseClock(c.DailyTime)
	if !ok {
		return 20, 0
	}
	return h, m
}

// GetLocation returns the daemon timezone; empty means local time
func (c *DaemonConfig) GetLocation() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("daemon.timezone: %w", err)
	}
	return loc, nil
}

// ExpandEnvVars expands environment variables in config strings
func (c *Config) ExpandEnvVars() {
	c.API.BaseURL = os.ExpandEnv(c.API.BaseURL)
	c.API.Token = os.ExpandEnv(c.API.Token)
	c.Calendar.File = os.ExpandEnv(c.Calendar.File)
	c.State.File = os.ExpandEnv(c.State.File)
	c.Daemon.LogFile = os.ExpandEnv(c.Daemon.LogFile)
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func parseClock(s string) (hour, minute int, ok bool) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}
