package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *Session) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	session := NewSession("test-token", zap.NewNop())
	client := NewClient(server.URL+"/api", session, Options{
		Timeout:    time.Second,
		Retries:    3,
		RetryDelay: time.Millisecond,
	}, zap.NewNop())
	return client, session
}

func TestClient_Headers(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("x-auth-token"); got != "test-token" {
			t.Errorf("x-auth-token = %q", got)
		}
		if _, err := uuid.Parse(r.Header.Get("X-Request-Id")); err != nil {
			t.Errorf("X-Request-Id is not a uuid: %v", err)
		}
		fmt.Fprint(w, `{"user":{"_id":"u-1","name":"Admin","role":"admin"}}`)
	})

	user, err := client.CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("CurrentUser() error = %v", err)
	}
	if user.ID != "u-1" || user.Role != "admin" {
		t.Errorf("CurrentUser() = %+v", user)
	}
}

func TestClient_GetTeacherAttendance(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"attendance key", `{"attendance":[{"_id":"r-1","teacher":"t-1","date":"2024-03-01","status":"holiday"}]}`, 1},
		{"attendanceRecords key", `{"attendanceRecords":[{"_id":"r-1","teacher":"t-1","date":"2024-03-01","status":"present"},{"_id":"r-2","teacher":"t-1","date":"2024-03-02","status":"absent"}]}`, 2},
		{"empty body object", `{}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/attendance/teacher/t-1" {
					t.Errorf("path = %s", r.URL.Path)
				}
				if r.URL.Query().Get("startDate") != "2024-03-01" || r.URL.Query().Get("endDate") != "2024-03-03" {
					t.Errorf("query = %s", r.URL.RawQuery)
				}
				fmt.Fprint(w, tt.body)
			})

			from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
			to := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)
			records, err := client.GetTeacherAttendance(context.Background(), "t-1", from, to)
			if err != nil {
				t.Fatalf("GetTeacherAttendance() error = %v", err)
			}
			if len(records) != tt.want {
				t.Errorf("records = %d, want %d", len(records), tt.want)
			}
			if records == nil {
				t.Error("records = nil, want empty slice")
			}
		})
	}
}

func TestClient_FindRecords(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"attendance":[
			{"_id":"r-1","teacher":"t-1","date":"2024-03-01","status":"present"},
			{"_id":"r-2","teacher":"t-1","date":"2024-03-02","status":"holiday"}
		]}`)
	})

	records, err := client.FindRecords(context.Background(), "t-1", time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FindRecords() error = %v", err)
	}
	if len(records) != 1 || records[0].ID != "r-2" {
		t.Errorf("FindRecords() = %+v, want only r-2", records)
	}
}

func TestClient_CreateRecord(t *testing.T) {
	var received map[string]interface{}
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/attendance" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("bad body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"message":"ok","attendance":{"_id":"r-9","teacher":"t-1","date":"2024-03-08T00:00:00.000Z","status":"holiday"}}`)
	})

	rec := NewHolidayRecord("t-1", time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), "Public holiday")
	created, err := client.CreateRecord(context.Background(), rec)
	if err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}

	if created.ID != "r-9" {
		t.Errorf("created ID = %q, want r-9", created.ID)
	}
	if created.Source != SourceAutoHoliday {
		t.Errorf("created Source = %q, want auto-holiday", created.Source)
	}
	if received["teacher"] != "t-1" || received["date"] != "2024-03-08" || received["status"] != "holiday" {
		t.Errorf("payload = %v", received)
	}
	if received["checkIn"] != nil {
		t.Errorf("payload checkIn = %v, want null", received["checkIn"])
	}
}

func TestClient_CreateRecordRejectsInvalid(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	_, err := client.CreateRecord(context.Background(), &Record{TeacherID: "t-1", Status: StatusPresent})
	if err == nil {
		t.Fatal("CreateRecord() expected validation error, got nil")
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("server called %d times for invalid record", calls)
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		wantErr      error
		wantCalls    int32
		wantCleared  bool
		wantAPIError bool
	}{
		{"unauthorized clears session", http.StatusUnauthorized, ErrSessionExpired, 1, true, true},
		{"forbidden", http.StatusForbidden, ErrForbidden, 1, false, true},
		{"not found", http.StatusNotFound, ErrNotFound, 1, false, true},
		{"bad request is not retried", http.StatusBadRequest, nil, 1, false, true},
		{"server error is retried", http.StatusInternalServerError, nil, 3, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			client, session := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"message":"nope"}`)
			})

			_, err := client.GetTeacher(context.Background(), "t-1")
			if err == nil {
				t.Fatal("GetTeacher() expected error, got nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}

			var apiErr *APIError
			if errors.As(err, &apiErr) != tt.wantAPIError {
				t.Errorf("errors.As(*APIError) = %v, want %v", !tt.wantAPIError, tt.wantAPIError)
			} else if apiErr != nil && apiErr.Message != "nope" {
				t.Errorf("APIError.Message = %q, want nope", apiErr.Message)
			}

			if got := atomic.LoadInt32(&calls); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}

			_, tokenErr := session.Token()
			if cleared := errors.Is(tokenErr, ErrNoToken); cleared != tt.wantCleared {
				t.Errorf("session cleared = %v, want %v", cleared, tt.wantCleared)
			}
		})
	}
}

func TestClient_RetryThenSuccess(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"teachers":[{"_id":"t-1","name":"A"},{"_id":"t-2","name":"B","status":"inactive"},{"_id":"t-3","name":"C","status":"active"}]}`)
	})

	ids, err := client.ActiveTeacherIDs(context.Background())
	if err != nil {
		t.Fatalf("ActiveTeacherIDs() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != "t-1" || ids[1] != "t-3" {
		t.Errorf("ActiveTeacherIDs() = %v, want [t-1 t-3]", ids)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestClient_NoTokenSkipsRequest(t *testing.T) {
	var calls int32
	client, session := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})
	session.Clear()

	if _, err := client.ListTeachers(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Errorf("ListTeachers() error = %v, want ErrNoToken", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestClient_GetSummary(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"wrapped", `{"summary":{"present":18,"holiday":2,"totalWorkHours":140.5}}`},
		{"bare", `{"present":18,"holiday":2,"totalWorkHours":140.5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/attendance/summary/teacher/t-1" {
					t.Errorf("path = %s", r.URL.Path)
				}
				if r.URL.Query().Get("month") != "3" || r.URL.Query().Get("year") != "2024" {
					t.Errorf("query = %s", r.URL.RawQuery)
				}
				fmt.Fprint(w, tt.body)
			})

			summary, err := client.GetSummary(context.Background(), "t-1", 2024, time.March)
			if err != nil {
				t.Fatalf("GetSummary() error = %v", err)
			}
			if summary.Present != 18 || summary.Holiday != 2 || summary.TotalWorkHours != 140.5 {
				t.Errorf("summary = %+v", summary)
			}
			if summary.TeacherID != "t-1" || summary.Year != 2024 || summary.Month != 3 {
				t.Errorf("summary identity = %s %d-%d", summary.TeacherID, summary.Year, summary.Month)
			}
		})
	}
}

func TestClient_DeleteAndUpdate(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodDelete:
			if r.URL.Path != "/api/attendance/r-1" {
				t.Errorf("delete path = %s", r.URL.Path)
			}
			fmt.Fprint(w, `{"message":"Attendance record deleted"}`)
		case http.MethodPut:
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	})

	if err := client.DeleteRecord(context.Background(), "r-1"); err != nil {
		t.Fatalf("DeleteRecord() error = %v", err)
	}

	rec := &Record{
		TeacherID: "t-1",
		Date:      NewDate(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)),
		Status:    StatusAbsent,
	}
	updated, err := client.UpdateRecord(context.Background(), "r-2", rec)
	if err != nil {
		t.Fatalf("UpdateRecord() error = %v", err)
	}
	if updated.ID != "r-2" || updated.Status != StatusAbsent {
		t.Errorf("UpdateRecord() = %+v", updated)
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.ListTeachers(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("ListTeachers() error = %v, want context.Canceled", err)
	}
}

func TestClient_ActiveTeacherIDs(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/teachers":
			fmt.Fprint(w, `{"teachers":[
				{"_id":"t-1","name":"Asha","status":"active"},
				{"_id":"t-2","name":"Bilal","status":"inactive"},
				{"_id":"t-3","name":"Chen"},
				{"name":"No Id"}
			]}`)
		case "/api/teachers/t-1":
			fmt.Fprint(w, `{"teacher":{"_id":"t-1","name":"Asha","phoneNumber":"+100"}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	ids, err := client.ActiveTeacherIDs(context.Background())
	if err != nil {
		t.Fatalf("ActiveTeacherIDs() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != "t-1" || ids[1] != "t-3" {
		t.Errorf("ActiveTeacherIDs() = %v, want [t-1 t-3]", ids)
	}

	teacher, err := client.GetTeacher(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("GetTeacher() error = %v", err)
	}
	if teacher.Name != "Asha" || teacher.ContactNumber != "+100" {
		t.Errorf("GetTeacher() = %+v", teacher)
	}
}

func TestClient_GetAttendanceByDate(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/attendance/date" || r.URL.Query().Get("date") != "2024-03-08" {
			t.Errorf("request = %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"attendanceRecords":[
			{"_id":"r-1","teacher":{"_id":"t-1","name":"Asha"},"date":"2024-03-08T00:00:00.000Z","status":"holiday","source":"auto-holiday"},
			{"_id":"r-2","teacherId":"t-2","date":"2024-03-08","status":"present","timeIn":"08:00"}
		]}`)
	})

	records, err := client.GetAttendanceByDate(context.Background(), time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("GetAttendanceByDate() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].TeacherID != "t-1" || records[0].Source != SourceAutoHoliday {
		t.Errorf("records[0] = %+v", records[0])
	}
	if records[1].TeacherID != "t-2" || records[1].CheckIn == nil || *records[1].CheckIn != "08:00" || records[1].Source != SourceManual {
		t.Errorf("records[1] = %+v", records[1])
	}
}

func TestClient_CreateRecordNotResent(t *testing.T) {
	var mu sync.Mutex
	stored := map[string]int{}
	var posts int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Teacher string `json:"teacher"`
			Date    string `json:"date"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		mu.Lock()
		stored[body.Teacher+"|"+body.Date]++
		mu.Unlock()

		// Stored, but the gateway loses the answer
		if atomic.AddInt32(&posts, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"attendance":{"_id":"r-1","teacher":"T1","date":"2024-03-02","status":"holiday"}}`)
	})

	_, err := client.CreateRecord(context.Background(), NewHolidayRecord("T1", time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), "Public holiday"))
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("CreateRecord() error = %v, want 502 APIError", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if n := atomic.LoadInt32(&posts); n != 1 || stored["T1|2024-03-02"] != 1 {
		t.Errorf("posts = %d, stored = %d, want exactly one", n, stored["T1|2024-03-02"])
	}
}

func TestClient_RetryKeepsRequestID(t *testing.T) {
	var mu sync.Mutex
	var ids []string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ids = append(ids, r.Header.Get("X-Request-Id"))
		n := len(ids)
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"teachers":[]}`)
	})

	if _, err := client.ListTeachers(context.Background()); err != nil {
		t.Fatalf("ListTeachers() error = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(ids) != 3 || ids[0] != ids[1] || ids[1] != ids[2] {
		t.Errorf("request ids = %v, want one id for all attempts", ids)
	}
}

func TestShouldRetry(t *testing.T) {
	dialErr := fmt.Errorf("HTTP request failed: %w", &url.Error{
		Op:  "Post",
		URL: "http://backend/api/attendance",
		Err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
	})
	readErr := fmt.Errorf("HTTP request failed: %w", &url.Error{
		Op:  "Post",
		URL: "http://backend/api/attendance",
		Err: &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")},
	})
	badGateway := &APIError{Method: http.MethodPost, Path: "/attendance", StatusCode: http.StatusBadGateway}

	tests := []struct {
		name   string
		method string
		err    error
		want   bool
	}{
		{"get on 502", http.MethodGet, badGateway, true},
		{"put on 502", http.MethodPut, badGateway, true},
		{"delete after reset", http.MethodDelete, readErr, true},
		{"post on 502", http.MethodPost, badGateway, false},
		{"post after reset", http.MethodPost, readErr, false},
		{"post never connected", http.MethodPost, dialErr, true},
		{"get on 400", http.MethodGet, &APIError{StatusCode: http.StatusBadRequest}, false},
		{"get bad json", http.MethodGet, &decodeError{err: errors.New("unexpected EOF")}, false},
		{"expired session", http.MethodGet, ErrSessionExpired, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldRetry(context.Background(), tt.method, tt.err); got != tt.want {
				t.Errorf("shouldRetry() = %v, want %v", got, tt.want)
			}
		})
	}
}
