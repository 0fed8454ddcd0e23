package roster

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	phoneCountryCode = "998"
	phoneDigits      = 12
)

// NormalizeFullName title-cases every word and collapses runs of spaces.
func NormalizeFullName(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = capitalize(w)
	}
	return strings.Join(words, " ")
}

// NormalizeGroup trims the label and capitalizes its first letter only, so
// "  a1 " and "A1" land in the same group.
func NormalizeGroup(s string) string {
	return capitalize(strings.TrimSpace(s))
}

// NormalizePhone renders any digit sequence as "+998) XX XXX-XX-XX", adding the
// country code when missing and dropping digits past the twelfth.
func NormalizePhone(s string) string {
	digits := digitsOf(s)
	if digits == "" {
		return ""
	}
	if !strings.HasPrefix(digits, phoneCountryCode) {
		digits = phoneCountryCode + digits
	}
	if len(digits) > phoneDigits {
		digits = digits[:phoneDigits]
	}

	out := "+" + phoneCountryCode + ")"
	if len(digits) > 3 {
		out += " " + span(digits, 3, 5)
	}
	if len(digits) > 5 {
		out += " " + span(digits, 5, 8)
	}
	if len(digits) > 8 {
		out += "-" + span(digits, 8, 10)
	}
	if len(digits) > 10 {
		out += "-" + span(digits, 10, 12)
	}
	return out
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeWeekdays parses, de-duplicates and orders the given day names.
func NormalizeWeekdays(days []string) ([]Weekday, error) {
	seen := make(map[Weekday]bool, len(days))
	out := make([]Weekday, 0, len(days))
	for _, raw := range days {
		d, err := ParseWeekday(raw)
		if err != nil {
			return nil, ValidationError{Field: "week_days", Message: fmt.Sprintf("unknown weekday %q", raw)}
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].index() < out[j].index() })
	return out, nil
}

// normalize validates in and returns the cleaned student fields.
func normalize(in Input) (Student, error) {
	st := Student{
		FullName:    NormalizeFullName(in.FullName),
		PhoneNumber: NormalizePhone(in.PhoneNumber),
		Group:       NormalizeGroup(in.Group),
	}
	switch {
	case st.FullName == "":
		return Student{}, ValidationError{Field: "full_name", Message: "required"}
	case st.PhoneNumber == "":
		return Student{}, ValidationError{Field: "phone_number", Message: "required"}
	case len(digitsOf(st.PhoneNumber)) != phoneDigits:
		return Student{}, ValidationError{Field: "phone_number", Message: "incomplete phone number"}
	case st.Group == "":
		return Student{}, ValidationError{Field: "group", Message: "required"}
	case len(in.WeekDays) == 0:
		return Student{}, ValidationError{Field: "week_days", Message: "at least one weekday required"}
	}
	days, err := NormalizeWeekdays(in.WeekDays)
	if err != nil {
		return Student{}, err
	}
	st.WeekDays = days
	return st, nil
}

func capitalize(w string) string {
	if w == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(w)
	return string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
}

func span(s string, from, to int) string {
	if from >= len(s) {
		return ""
	}
	if to > len(s) {
		to = len(s)
	}
	return s[from:to]
}
