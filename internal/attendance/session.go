package attendance

import (
	"rollcall/internal/roster"
)

// Filter returns, in roster order, the students of group that attend on day.
// Without both selectors there is no session and the result is empty.
func Filter(students []roster.Student, group string, day roster.Weekday) []roster.Student {
	res := []roster.Student{}
	if group == "" || day == "" {
		return res
	}
	for _, st := range students {
		if st.Group == group && st.HasWeekday(day) {
			res = append(res, st)
		}
	}
	return res
}

// Session records statuses for the students eligible for one (group, weekday)
// selection. It is local state only; nothing is persisted until a save.
type Session struct {
	Group   string         `json:"group"`
	Weekday roster.Weekday `json:"weekday"`
	Rows    []Row          `json:"rows"`
}

// NewSession filters students for the selection and starts every row unset.
func NewSession(group string, day roster.Weekday, students []roster.Student) *Session {
	eligible := Filter(students, group, day)
	rows := make([]Row, len(eligible))
	for i, st := range eligible {
		rows[i] = Row{
			StudentID: st.ID,
			FullName:  st.FullName,
			Group:     st.Group,
			Status:    StatusUnset,
		}
	}
	return &Session{Group: group, Weekday: day, Rows: rows}
}

// SetStatus overwrites the status of one row. Repeating the same call leaves
// the session unchanged.
func (s *Session) SetStatus(studentID string, status Status, lateMinutes *int) error {
	if lateMinutes != nil && *lateMinutes < 0 {
		return ValidationError{Field: "late_minutes", Message: "must not be negative"}
	}
	for i := range s.Rows {
		if s.Rows[i].StudentID == studentID {
			s.Rows[i].mark(status, lateMinutes)
			return nil
		}
	}
	return ErrNotFound
}

// Status returns the current status of a row.
func (s *Session) Status(studentID string) (Status, bool) {
	for _, r := range s.Rows {
		if r.StudentID == studentID {
			return r.Status, true
		}
	}
	return "", false
}

// Counts tallies the session rows by status.
func (s *Session) Counts() Counts {
	return countRows(s.Rows)
}
