package reconcile

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Scope selects the teachers a reconciliation covers:
// a single teacher or every active teacher.
type Scope struct {
	all       bool
	teacherID string
}

// Single scopes a run to one teacher
func Single(teacherID string) Scope {
	return Scope{teacherID: teacherID}
}

// All scopes a run to every active teacher in the directory
func All() Scope {
	return Scope{all: true}
}

// IsAll reports whether the scope expands through the directory
func (s Scope) IsAll() bool {
	return s.all
}

// TeacherID returns the teacher of a Single scope, "" for All
func (s Scope) TeacherID() string {
	if s.all {
		return ""
	}
	return s.teacherID
}

// Validate rejects a Single scope without a teacher
func (s Scope) Validate() error {
	if !s.all && strings.TrimSpace(s.teacherID) == "" {
		return fmt.Errorf("teacher scope requires a teacher id")
	}
	return nil
}

func (s Scope) String() string {
	if s.all {
		return "all"
	}
	return "teacher:" + s.teacherID
}

// MarshalJSON renders the scope as {"all":true} or {"teacher_id":"..."}
func (s Scope) MarshalJSON() ([]byte, error) {
	if s.all {
		return json.Marshal(struct {
			All bool `json:"all"`
		}{true})
	}
	return json.Marshal(struct {
		TeacherID string `json:"teacher_id"`
	}{s.teacherID})
}
