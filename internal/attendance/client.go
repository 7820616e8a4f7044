package attendance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/username/attendance-bot/pkg/dateutil"
	"github.com/username/attendance-bot/pkg/random"
	"go.uber.org/zap"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultRetries    = 3
	defaultRetryDelay = time.Second
	retryJitter       = 20.0 // percent
)

// Options tunes the HTTP behaviour of a Client
type Options struct {
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
}

// Client represents the attendance backend REST client
type Client struct {
	baseURL    string
	session    *Session
	httpClient *http.Client
	retries    int
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewClient creates a new attendance API client
func NewClient(baseURL string, session *Session, opts Options, logger *zap.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Retries <= 0 {
		opts.Retries = defaultRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		session: session,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
		logger:     logger,
	}
}

// ListTeachers returns every teacher known to the backend
func (c *Client) ListTeachers(ctx context.Context) ([]Teacher, error) {
	var resp teachersEnvelope
	if err := c.doRequest(ctx, http.MethodGet, "/teachers", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list teachers: %w", err)
	}

	c.logger.Debug("Teachers listed", zap.Int("count", len(resp.Teachers)))

	return resp.Teachers, nil
}

// ActiveTeacherIDs returns the ids of active teachers in backend order
func (c *Client) ActiveTeacherIDs(ctx context.Context) ([]string, error) {
	teachers, err := c.ListTeachers(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(teachers))
	for _, t := range teachers {
		if t.IsActive() && t.ID != "" {
			ids = append(ids, t.ID.String())
		}
	}
	return ids, nil
}

// GetTeacher returns one teacher
func (c *Client) GetTeacher(ctx context.Context, teacherID string) (*Teacher, error) {
	var resp teacherEnvelope
	path := "/teachers/" + url.PathEscape(teacherID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get teacher %s: %w", teacherID, err)
	}
	return &resp.Teacher, nil
}

// GetTeacherAttendance returns a teacher's records between from and to inclusive.
// Zero bounds are omitted from the query.
func (c *Client) GetTeacherAttendance(ctx context.Context, teacherID string, from, to time.Time) ([]Record, error) {
	query := url.Values{}
	if !from.IsZero() {
		query.Set("startDate", dateutil.Format(from))
	}
	if !to.IsZero() {
		query.Set("endDate", dateutil.Format(to))
	}

	path := "/attendance/teacher/" + url.PathEscape(teacherID)
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var resp recordsEnvelope
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get attendance for teacher %s: %w", teacherID, err)
	}

	records := resp.records()
	c.logger.Debug("Teacher attendance retrieved",
		zap.String("teacher_id", teacherID),
		zap.String("from", dateutil.Format(from)),
		zap.String("to", dateutil.Format(to)),
		zap.Int("count", len(records)))

	return records, nil
}

// GetAttendanceByDate returns every teacher's records for one date
func (c *Client) GetAttendanceByDate(ctx context.Context, date time.Time) ([]Record, error) {
	path := "/attendance/date?" + url.Values{"date": {dateutil.Format(date)}}.Encode()

	var resp recordsEnvelope
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get attendance for %s: %w", dateutil.Format(date), err)
	}
	return resp.records(), nil
}

// FindRecords returns the teacher's records on date
func (c *Client) FindRecords(ctx context.Context, teacherID string, date time.Time) ([]Record, error) {
	records, err := c.GetTeacherAttendance(ctx, teacherID, date, date)
	if err != nil {
		return nil, err
	}

	// The backend range filter is inclusive on timestamps, not dates
	var matched []Record
	for _, r := range records {
		if dateutil.IsSameDay(r.Date.Time, date) {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

// CreateRecord validates and creates an attendance record
func (c *Client) CreateRecord(ctx context.Context, record *Record) (*Record, error) {
	if err := record.Validate(); err != nil {
		return nil, err
	}

	var resp recordEnvelope
	if err := c.doRequest(ctx, http.MethodPost, "/attendance", newRecordPayload(record), &resp); err != nil {
		return nil, fmt.Errorf("failed to create attendance for teacher %s on %s: %w",
			record.TeacherID, record.Date, err)
	}

	created := resp.Attendance
	if created == nil {
		created = resp.Record
	}
	if created == nil {
		copied := *record
		created = &copied
	}
	if created.Source == "" || created.Source == SourceManual {
		created.Source = record.Source
	}

	c.logger.Info("Attendance record created",
		zap.String("teacher_id", record.TeacherID.String()),
		zap.String("date", record.Date.String()),
		zap.String("status", string(record.Status)),
		zap.String("id", created.ID.String()))

	return created, nil
}

// UpdateRecord replaces an existing record
func (c *Client) UpdateRecord(ctx context.Context, id string, record *Record) (*Record, error) {
	if err := record.Validate(); err != nil {
		return nil, err
	}

	var resp recordEnvelope
	path := "/attendance/" + url.PathEscape(id)
	if err := c.doRequest(ctx, http.MethodPut, path, newRecordPayload(record), &resp); err != nil {
		return nil, fmt.Errorf("failed to update attendance %s: %w", id, err)
	}

	updated := resp.Attendance
	if updated == nil {
		updated = resp.Record
	}
	if updated == nil {
		copied := *record
		copied.ID = FlexibleID(id)
		updated = &copied
	}

	c.logger.Info("Attendance record updated", zap.String("id", id))

	return updated, nil
}

// DeleteRecord deletes an attendance record
func (c *Client) DeleteRecord(ctx context.Context, id string) error {
	var resp messageEnvelope
	path := "/attendance/" + url.PathEscape(id)
	if err := c.doRequest(ctx, http.MethodDelete, path, nil, &resp); err != nil {
		return fmt.Errorf("failed to delete attendance %s: %w", id, err)
	}

	c.logger.Info("Attendance record deleted",
		zap.String("id", id),
		zap.String("message", resp.Message))

	return nil
}

// GetSummary returns the backend's monthly summary for a teacher
func (c *Client) GetSummary(ctx context.Context, teacherID string, year int, month time.Month) (*Summary, error) {
	query := url.Values{
		"month": {strconv.Itoa(int(month))},
		"year":  {strconv.Itoa(year)},
	}
	path := "/attendance/summary/teacher/" + url.PathEscape(teacherID) + "?" + query.Encode()

	var raw json.RawMessage
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to get summary for teacher %s: %w", teacherID, err)
	}

	// The summary is returned either wrapped in {"summary": ...} or bare
	var wrapped summaryEnvelope
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Summary != nil {
		return fillSummary(wrapped.Summary, teacherID, year, month), nil
	}

	var summary Summary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, fmt.Errorf("failed to parse summary: %w", err)
	}
	return fillSummary(&summary, teacherID, year, month), nil
}

func fillSummary(s *Summary, teacherID string, year int, month time.Month) *Summary {
	if s.TeacherID == "" {
		s.TeacherID = FlexibleID(teacherID)
	}
	if s.Year == 0 {
		s.Year = year
	}
	if s.Month == 0 {
		s.Month = int(month)
	}
	return s
}

// CurrentUser returns the authenticated account
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var resp userEnvelope
	if err := c.doRequest(ctx, http.MethodGet, "/auth/user", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}

	c.logger.Info("Current user identified",
		zap.String("name", resp.User.Name),
		zap.String("id", resp.User.ID.String()))

	return &resp.User, nil
}

// doRequest performs HTTP request with authentication and retries
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	// One id for every attempt so the backend can correlate resends
	requestID := uuid.NewString()

	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		err := c.doRequestOnce(ctx, method, path, requestID, payload, result)
		if err == nil {
			return nil
		}

		lastErr = err
		if !shouldRetry(ctx, method, err) {
			return err
		}

		c.logger.Warn("Request failed, retrying",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", c.retries),
			zap.Error(err))

		if attempt < c.retries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(random.Backoff(attempt, c.retryDelay, retryJitter)):
			}
		}
	}

	return fmt.Errorf("request failed after %d attempts: %w", c.retries, lastErr)
}

// shouldRetry reports whether err is transient and the request safe to resend.
// A POST may have been stored before the failure, so it is resent only when
// the connection was never made.
func shouldRetry(ctx context.Context, method string, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, ErrNoToken) || errors.Is(err, ErrSessionExpired) {
		return false
	}
	if method == http.MethodPost {
		return neverSent(err)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.retryable()
	}

	var decodeErr *decodeError
	return !errors.As(err, &decodeErr)
}

// neverSent reports whether err happened while dialing, before any byte
// of the request reached the server
func neverSent(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return "failed to parse response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

// doRequestOnce performs a single HTTP request
func (c *Client) doRequestOnce(ctx context.Context, method, path, requestID string, payload []byte, result interface{}) error {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	token, err := c.session.Token()
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("x-auth-token", token)
	req.Header.Set("X-Request-Id", requestID)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("API request",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody),
		}
		if resp.StatusCode == http.StatusUnauthorized {
			c.session.Clear()
		}
		return apiErr
	}

	if result != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return &decodeError{err: err}
		}
	}

	return nil
}

// errorMessage extracts {"message": ...} from an error body, or a short raw excerpt
func errorMessage(body []byte) string {
	var msg messageEnvelope
	if err := json.Unmarshal(body, &msg); err == nil && msg.Message != "" {
		return msg.Message
	}

	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
