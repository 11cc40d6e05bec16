// Package cnabtest builds fixture records for parser, validator and
// ingest tests. Lines are assembled from the same layout tables the
// parsers read, so fixtures stay aligned with the schema.
package cnabtest

import (
	"fmt"
	"time"

	"github.com/paynet/cnab/pkg/cnab"
	"github.com/paynet/cnab/pkg/cnab/layout"
)

// Line is one fixed-width record under construction.
type Line struct {
	buf     []byte
	dialect cnab.Dialect
	bank    int
}

// New240 starts a 240-column line with the bank code, batch number and
// record type in their fixed positions.
func New240(bank, lote int, recordType byte) *Line {
	l := &Line{buf: blank(240), dialect: cnab.Dialect240, bank: bank}
	l.Raw(0, fmt.Sprintf("%03d", bank))
	l.Raw(3, fmt.Sprintf("%04d", lote))
	l.buf[7] = recordType
	return l
}

// New400 starts a 400-column line with the record type in position 0.
func New400(bank int, recordType byte) *Line {
	l := &Line{buf: blank(400), dialect: cnab.Dialect400, bank: bank}
	l.buf[0] = recordType
	return l
}

func blank(width int) []byte {
	buf := make([]byte, width)
	for i := range buf {
		buf[i] = ' '
	}
	return buf
}

func (l *Line) pos(key, name string) (layout.Field, bool) {
	schema, _ := layout.Resolve(l.dialect, l.bank, key)
	return schema.Get(name)
}

// Str writes a left-justified alphanumeric field.
func (l *Line) Str(key, name, value string) *Line {
	f, ok := l.pos(key, name)
	if !ok {
		panic(fmt.Sprintf("cnabtest: no field %s/%s", key, name))
	}
	for i := 0; i < f.End-f.Start; i++ {
		if i < len(value) {
			l.buf[f.Start+i] = value[i]
		} else {
			l.buf[f.Start+i] = ' '
		}
	}
	return l
}

// Num writes a zero-padded, right-justified numeric field.
func (l *Line) Num(key, name string, v int64) *Line {
	f, ok := l.pos(key, name)
	if !ok {
		panic(fmt.Sprintf("cnabtest: no field %s/%s", key, name))
	}
	l.Raw(f.Start, fmt.Sprintf("%0*d", f.End-f.Start, v))
	return l
}

// Money writes a monetary field from cents (implied scale 2).
func (l *Line) Money(key, name string, cents int64) *Line {
	return l.Num(key, name, cents)
}

// Date8 writes a DDMMYYYY date; the zero time writes all zeros.
func (l *Line) Date8(key, name string, t time.Time) *Line {
	if t.IsZero() {
		return l.Str(key, name, "00000000")
	}
	return l.Str(key, name, t.Format("02012006"))
}

// Date6 writes a DDMMYY date; the zero time writes all zeros.
func (l *Line) Date6(key, name string, t time.Time) *Line {
	if t.IsZero() {
		return l.Str(key, name, "000000")
	}
	return l.Str(key, name, t.Format("020106"))
}

// Raw copies value into the buffer at an absolute position.
func (l *Line) Raw(start int, value string) *Line {
	copy(l.buf[start:], value)
	return l
}

// String returns the finished fixed-width line.
func (l *Line) String() string { return string(l.buf) }
