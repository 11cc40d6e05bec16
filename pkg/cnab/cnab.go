// Package cnab holds the types shared by every stage of the CNAB
// pipeline: dialects, record-level diagnostics and line handling.
//
// CNAB (Centro Nacional de Automação Bancária) files are fixed-width
// text records exchanged between Brazilian banks and companies. The
// two dialects in circulation are named for their line widths: CNAB
// 240 (hierarchical, file → batches → segments) and CNAB 400 (flat,
// header → details → trailer).
package cnab

import "strings"

// Dialect identifies a CNAB line-width dialect.
type Dialect string

const (
	Dialect240     Dialect = "CNAB_240"
	Dialect400     Dialect = "CNAB_400"
	DialectUnknown Dialect = "UNKNOWN"
)

// Width returns the fixed line width of the dialect, or 0 when unknown.
func (d Dialect) Width() int {
	switch d {
	case Dialect240:
		return 240
	case Dialect400:
		return 400
	}
	return 0
}

// Record type codes shared by both dialects. The first byte of a CNAB
// 400 line, or the eighth byte of a CNAB 240 line, selects the record
// type.
const (
	RecordFileHeader   = '0'
	RecordBatchHeader  = '1'
	RecordDetail240    = '3'
	RecordBatchTrailer = '5'
	RecordFileTrailer  = '9'

	RecordDetail400 = '1'
)

// Severity grades a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic codes emitted by the parsers. Field-level codec failures
// are absorbed into diagnostics and never abort a parse.
const (
	CodeHeaderOutOfPlace = "HEADER_OUT_OF_PLACE"
	CodeBatchNested      = "BATCH_NESTED"
	CodeDetailOrphan     = "DETAIL_ORPHAN"
	CodeTrailerOrphan    = "TRAILER_ORPHAN"
	CodeTrailerMissing   = "TRAILER_MISSING"
	CodeHeaderMissing    = "HEADER_MISSING"
	CodeBankUnknown      = "BANK_UNKNOWN"
	CodeFieldInvalid     = "FIELD_INVALID"
	CodeLineWidth        = "LINE_WIDTH"
	CodeRecordUnknown    = "RECORD_UNKNOWN"
)

// Diagnostic is a per-line, per-field issue collected during parsing.
type Diagnostic struct {
	Line     int      `json:"line"`
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Field    string   `json:"field,omitempty"`
	Message  string   `json:"message"`
}

// Diagnostics is an ordered collection of parse issues.
type Diagnostics []Diagnostic

// Errorf appends an error-severity diagnostic.
func (d *Diagnostics) Errorf(line int, code, field, msg string) {
	*d = append(*d, Diagnostic{Line: line, Code: code, Severity: SeverityError, Field: field, Message: msg})
}

// Warnf appends a warning-severity diagnostic.
func (d *Diagnostics) Warnf(line int, code, field, msg string) {
	*d = append(*d, Diagnostic{Line: line, Code: code, Severity: SeverityWarning, Field: field, Message: msg})
}

// HasErrors reports whether any diagnostic carries error severity.
func (d Diagnostics) HasErrors() bool {
	for _, diag := range d {
		if diag.Severity == SeverityError {
			return true
		}
	}
	return false
}

// SplitLines normalizes raw CNAB content into logical lines: CR bytes
// are stripped first, then empty lines are dropped. Normalization
// always precedes the emptiness test so mixed \r\n input and trailing
// blank lines behave identically across dialects.
func SplitLines(content string) []string {
	raw := strings.Split(strings.ReplaceAll(content, "\r", ""), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// DigitsOnly strips every non-digit byte from s.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
