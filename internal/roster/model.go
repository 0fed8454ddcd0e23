package roster

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a student does not exist for the owner.
	ErrNotFound = errors.New("student not found")
)

// ValidationError reports a missing or malformed roster field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Message)
}

// Weekday is the canonical English name of a day of the week.
type Weekday string

const (
	Monday    Weekday = "Monday"
	Tuesday   Weekday = "Tuesday"
	Wednesday Weekday = "Wednesday"
	Thursday  Weekday = "Thursday"
	Friday    Weekday = "Friday"
	Saturday  Weekday = "Saturday"
	Sunday    Weekday = "Sunday"
)

// Weekdays lists every weekday in calendar order, Monday first.
var Weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// uzbek day names used by the staff UI.
var uzbekDays = map[string]Weekday{
	"dushanba":   Monday,
	"seshanba":   Tuesday,
	"chorshanba": Wednesday,
	"payshanba":  Thursday,
	"juma":       Friday,
	"shanba":     Saturday,
	"yakshanba":  Sunday,
}

// ParseWeekday accepts a full English name, a three letter abbreviation or an
// Uzbek day name, case-insensitively.
func ParseWeekday(s string) (Weekday, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return "", ValidationError{Field: "weekday", Message: "required"}
	}
	for _, d := range Weekdays {
		name := strings.ToLower(string(d))
		if v == name || v == name[:3] {
			return d, nil
		}
	}
	if d, ok := uzbekDays[v]; ok {
		return d, nil
	}
	return "", ValidationError{Field: "weekday", Message: fmt.Sprintf("unknown weekday %q", s)}
}

// WeekdayOf maps a time.Weekday onto the roster name.
func WeekdayOf(d time.Weekday) Weekday {
	if d == time.Sunday {
		return Sunday
	}
	return Weekdays[int(d)-1]
}

func (d Weekday) index() int {
	for i, w := range Weekdays {
		if w == d {
			return i
		}
	}
	return -1
}

// Student is one roster entry owned by a staff account.
type Student struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	FullName    string    `json:"full_name"`
	PhoneNumber string    `json:"phone_number"`
	Group       string    `json:"group"`
	WeekDays    []Weekday `json:"week_days"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasWeekday reports whether the student attends on d.
func (s Student) HasWeekday(d Weekday) bool {
	for _, w := range s.WeekDays {
		if w == d {
			return true
		}
	}
	return false
}

// Input carries the editable fields of a student.
type Input struct {
	FullName    string   `json:"full_name"`
	PhoneNumber string   `json:"phone_number"`
	Group       string   `json:"group"`
	WeekDays    []string `json:"week_days"`
}
