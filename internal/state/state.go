package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/username/attendance-bot/internal/reconcile"
	"github.com/username/attendance-bot/pkg/dateutil"
	"go.uber.org/zap"
)

// RunState is what the daemon remembers between restarts
type RunState struct {
	LastRunDate string   `json:"last_run_date"`
	LastRunAt   string   `json:"last_run_at,omitempty"`
	LastScope   string   `json:"last_scope,omitempty"`
	LastStart   string   `json:"last_start_date,omitempty"`
	LastEnd     string   `json:"last_end_date,omitempty"`
	LastWritten int      `json:"last_written"`
	LastCount   int      `json:"last_count"`
	LastSuccess bool     `json:"last_success"`
	LastErrors  []string `json:"last_errors,omitempty"`
}

// Store persists RunState as a JSON file
type Store struct {
	file   string
	mu     sync.RWMutex
	state  *RunState
	logger *zap.Logger
}

// NewStore creates a new state store; an empty file keeps state in memory only
func NewStore(file string, logger *zap.Logger) *Store {
	return &Store{
		file:   file,
		state:  &RunState{},
		logger: logger,
	}
}

// Load reads the state file. A missing file starts a fresh state.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == "" {
		return nil
	}

	data, err := os.ReadFile(s.file)
	if err != nil {
		if os.IsNotExist(err) {
			s.state = &RunState{}
			return nil
		}
		return fmt.Errorf("failed to read state file: %w", err)
	}

	var st RunState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("failed to parse state file: %w", err)
	}

	s.state = &st
	s.logger.Info("Run state loaded",
		zap.String("file", s.file),
		zap.String("last_run_date", st.LastRunDate))

	return nil
}

func (s *Store) save() error {
	if s.file == "" {
		return nil
	}

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if dir := filepath.Dir(s.file); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	if err := os.WriteFile(s.file, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// Record stores the summary of a finished run for the given run date
func (s *Store) Record(runDate time.Time, res *reconcile.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &RunState{
		LastRunDate: dateutil.Format(runDate),
		LastRunAt:   time.Now().Format(time.RFC3339),
		LastScope:   res.Scope.String(),
		LastStart:   dateutil.Format(res.Start),
		LastEnd:     dateutil.Format(res.End),
		LastWritten: res.Written,
		LastCount:   res.Count,
		LastSuccess: res.Success,
	}
	for _, e := range res.Errors {
		st.LastErrors = append(st.LastErrors, e.Error())
	}
	s.state = st

	if err := s.save(); err != nil {
		return err
	}

	s.logger.Info("Run state saved",
		zap.String("last_run_date", st.LastRunDate),
		zap.Int("written", st.LastWritten),
		zap.Bool("success", st.LastSuccess))

	return nil
}

// RanOn reports whether a successful run was recorded for date
func (s *Store) RanOn(date time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.LastSuccess && s.state.LastRunDate == dateutil.Format(date)
}

// Current returns a copy of the state
func (s *Store) Current() RunState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := *s.state
	st.LastErrors = append([]string(nil), s.state.LastErrors...)
	return st
}
