package attendance

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"rollcall/internal/roster"
)

var (
	// ErrNotFound is returned for unknown snapshots, drafts or rows.
	ErrNotFound = errors.New("not found")
	// ErrEmptySession is returned when saving without a group, weekday or rows.
	ErrEmptySession = errors.New("select a group and weekday with at least one student first")
	// ErrSaveInProgress is returned when another save for the same group and date holds the claim.
	ErrSaveInProgress = errors.New("attendance for this group is being saved, try again")
)

// ValidationError reports a malformed attendance field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Message)
}

// Status is the attendance mark of one student in a session.
type Status string

const (
	StatusUnset   Status = "unset"
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
)

// ParseStatus accepts the four status names; empty means unset.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return StatusUnset, nil
	case StatusUnset, StatusPresent, StatusAbsent, StatusLate:
		return st, nil
	}
	return "", ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", s)}
}

// Row is one student's line in a session or snapshot. In a snapshot it is a
// frozen copy and does not follow later roster edits.
type Row struct {
	StudentID   string `json:"id"`
	FullName    string `json:"full_name"`
	Group       string `json:"group"`
	Status      Status `json:"status"`
	LateMinutes *int   `json:"late_minutes,omitempty"`
}

// mark applies status to the row. Late keeps only explicitly supplied minutes,
// every other status drops them.
func (r *Row) mark(status Status, lateMinutes *int) {
	r.Status = status
	r.LateMinutes = nil
	if status == StatusLate && lateMinutes != nil {
		m := *lateMinutes
		r.LateMinutes = &m
	}
}

// Counts tallies rows by status.
type Counts struct {
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Late    int `json:"late"`
	Unset   int `json:"unset"`
}

func countRows(rows []Row) Counts {
	var c Counts
	for _, r := range rows {
		switch r.Status {
		case StatusPresent:
			c.Present++
		case StatusAbsent:
			c.Absent++
		case StatusLate:
			c.Late++
		default:
			c.Unset++
		}
	}
	return c
}

// Snapshot is a saved attendance session.
type Snapshot struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"owner_id"`
	Group     string         `json:"group"`
	Weekday   roster.Weekday `json:"weekday"`
	Date      string         `json:"date"`
	CreatedAt time.Time      `json:"created_at"`
	Students  []Row          `json:"students"`
}

// DateLayout is the calendar date format used for snapshot dates.
const DateLayout = "2006-01-02"

func parseDate(field, s string) (string, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", ValidationError{Field: field, Message: "expected YYYY-MM-DD"}
	}
	return t.Format(DateLayout), nil
}

func cloneSnapshot(s Snapshot) Snapshot {
	rows := make([]Row, len(s.Students))
	for i, r := range s.Students {
		if r.LateMinutes != nil {
			m := *r.LateMinutes
			r.LateMinutes = &m
		}
		rows[i] = r
	}
	s.Students = rows
	return s
}

func rosterWeekday(s string) roster.Weekday {
	if d, err := roster.ParseWeekday(s); err == nil {
		return d
	}
	return roster.Weekday(s)
}
