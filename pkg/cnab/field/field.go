// Package field decodes fixed-width ASCII slices into typed values.
// All decoders are total: an out-of-range slice or malformed content
// yields the type's zero value plus a recoverable issue, never a
// panic, so a single bad field can't abort a file parse.
package field

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paynet/cnab/pkg/money"
)

// CenturyPivot is the two-digit-year cutoff for DDMMYY dates: years at
// or below the pivot map to 20YY, above it to 19YY.
const CenturyPivot = 50

// Issue records a field-level decode failure.
type Issue struct {
	Name string
	Err  error
}

// Reader extracts typed fields from one fixed-width line, collecting
// decode issues instead of returning per-call errors. Positions are
// 0-based, end-exclusive.
type Reader struct {
	line   string
	issues []Issue
}

// NewReader wraps one record line.
func NewReader(line string) *Reader {
	return &Reader{line: line}
}

// Issues returns the decode failures collected so far.
func (r *Reader) Issues() []Issue { return r.issues }

func (r *Reader) fail(name string, err error) {
	r.issues = append(r.issues, Issue{Name: name, Err: err})
}

// slice returns the raw field bytes, padded with spaces when the line
// is shorter than the requested range.
func (r *Reader) slice(start, end int) string {
	if start < 0 {
		start = 0
	}
	if start >= len(r.line) {
		return strings.Repeat(" ", end-start)
	}
	if end > len(r.line) {
		return r.line[start:] + strings.Repeat(" ", end-len(r.line))
	}
	return r.line[start:end]
}

// String extracts a trimmed ASCII field. Trailing spaces are padding
// in left-justified alphanumeric fields; leading spaces are stripped
// as well since no CNAB field is space-significant.
func (r *Reader) String(name string, start, end int) string {
	_ = name
	return strings.TrimSpace(r.slice(start, end))
}

// Int extracts a zero-padded integer field. Empty or all-space fields
// decode to 0; any non-digit content is an issue.
func (r *Reader) Int(name string, start, end int) int64 {
	raw := strings.TrimSpace(r.slice(start, end))
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		r.fail(name, fmt.Errorf("non-numeric field %q", raw))
		return 0
	}
	return n
}

// Money extracts a monetary field with an implied scale of 2.
func (r *Reader) Money(name string, start, end int) money.Amount {
	amount, err := money.ParseFixed(r.slice(start, end), 2)
	if err != nil {
		r.fail(name, err)
		return money.Zero
	}
	return amount
}

// Date6 extracts a DDMMYY date. All-zero or blank fields decode to
// the zero time without an issue; an impossible date decodes to the
// zero time with an issue.
func (r *Reader) Date6(name string, start, end int) time.Time {
	raw := strings.TrimSpace(r.slice(start, end))
	if raw == "" || raw == "000000" {
		return time.Time{}
	}
	if len(raw) != 6 {
		r.fail(name, fmt.Errorf("malformed DDMMYY date %q", raw))
		return time.Time{}
	}
	day, dErr := strconv.Atoi(raw[0:2])
	month, mErr := strconv.Atoi(raw[2:4])
	yy, yErr := strconv.Atoi(raw[4:6])
	if dErr != nil || mErr != nil || yErr != nil {
		r.fail(name, fmt.Errorf("malformed DDMMYY date %q", raw))
		return time.Time{}
	}
	year := 1900 + yy
	if yy <= CenturyPivot {
		year = 2000 + yy
	}
	return r.makeDate(name, raw, year, month, day)
}

// Date8 extracts a DDMMYYYY date. All-zero or blank fields decode to
// the zero time without an issue.
func (r *Reader) Date8(name string, start, end int) time.Time {
	raw := strings.TrimSpace(r.slice(start, end))
	if raw == "" || raw == "00000000" {
		return time.Time{}
	}
	if len(raw) != 8 {
		r.fail(name, fmt.Errorf("malformed DDMMYYYY date %q", raw))
		return time.Time{}
	}
	day, dErr := strconv.Atoi(raw[0:2])
	month, mErr := strconv.Atoi(raw[2:4])
	year, yErr := strconv.Atoi(raw[4:8])
	if dErr != nil || mErr != nil || yErr != nil {
		r.fail(name, fmt.Errorf("malformed DDMMYYYY date %q", raw))
		return time.Time{}
	}
	return r.makeDate(name, raw, year, month, day)
}

func (r *Reader) makeDate(name, raw string, year, month, day int) time.Time {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		r.fail(name, fmt.Errorf("invalid date %q", raw))
		return time.Time{}
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes Feb 30 into March; reject the drift.
	if t.Day() != day || int(t.Month()) != month {
		r.fail(name, fmt.Errorf("invalid date %q", raw))
		return time.Time{}
	}
	return t
}
