package prim

import (
	"fmt"
	"strconv"
)

// Date is a partial release date: year is always known, month and day are
// optional (zero means unset). This mirrors Vorbis comment ORIGINALDATE/DATE
// tags, which are commonly "YYYY", "YYYY-MM", or "YYYY-MM-DD".
type Date struct {
	Year  int16
	Month uint8
	Day   uint8
}

// ParseDate accepts exactly the lengths 4 ("YYYY"), 7 ("YYYY-MM"), and 10
// ("YYYY-MM-DD"), rejecting any other length, months above 12, or days
// above 31. A month or day of zero is allowed through (meaning "the entire
// year"/"the entire month" respectively) rather than rejected.
func ParseDate(s string) (Date, bool) {
	switch len(s) {
	case 4:
		y, ok := parseDigits(s, 4)
		if !ok {
			return Date{}, false
		}
		return Date{Year: int16(y)}, true
	case 7:
		if s[4] != '-' {
			return Date{}, false
		}
		y, ok1 := parseDigits(s[0:4], 4)
		m, ok2 := parseDigits(s[5:7], 2)
		if !ok1 || !ok2 || m > 12 {
			return Date{}, false
		}
		return Date{Year: int16(y), Month: uint8(m)}, true
	case 10:
		if s[4] != '-' || s[7] != '-' {
			return Date{}, false
		}
		y, ok1 := parseDigits(s[0:4], 4)
		m, ok2 := parseDigits(s[5:7], 2)
		d, ok3 := parseDigits(s[8:10], 2)
		if !ok1 || !ok2 || !ok3 || m > 12 || d > 31 {
			return Date{}, false
		}
		return Date{Year: int16(y), Month: uint8(m), Day: uint8(d)}, true
	default:
		return Date{}, false
	}
}

func parseDigits(s string, width int) (int, bool) {
	if len(s) != width {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// String re-formats the date at whatever resolution it was parsed with.
func (d Date) String() string {
	if d.Month == 0 {
		return fmt.Sprintf("%04d", d.Year)
	}
	if d.Day == 0 {
		return fmt.Sprintf("%04d-%02d", d.Year, d.Month)
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}
