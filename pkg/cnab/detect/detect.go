// Package detect classifies raw content as CNAB 240 or CNAB 400 by
// line-width histogram, with a confidence score callers may use to
// reject ambiguous input.
package detect

import (
	"errors"
	"sort"

	"github.com/paynet/cnab/pkg/cnab"
)

// Stable error codes surfaced to callers.
const (
	CodeEmptyContent  = "EMPTY_CONTENT"
	CodeUnknownFormat = "FORMATO_NAO_DETECTADO"
)

var (
	ErrEmptyContent  = errors.New("empty content")
	ErrUnknownFormat = errors.New("unsupported line width")
)

// LowConfidence is the threshold below which a detection is flagged;
// callers decide whether to proceed.
const LowConfidence = 80

// Result is the outcome of one format detection.
type Result struct {
	Dialect       cnab.Dialect `json:"formato"`
	Confidence    int          `json:"confianca"`
	TotalLines    int          `json:"totalLinhas"`
	Histogram     map[int]int  `json:"histograma"`
	Consistent    bool         `json:"consistente"`
	LowConfidence bool         `json:"baixaConfianca"`
}

// Detect normalizes newlines, drops blank lines, histograms line
// widths and picks the dialect matching the modal width. Ties prefer
// a supported width; a 240/400 tie prefers 240, the modern standard.
func Detect(content string) (*Result, error) {
	lines := cnab.SplitLines(content)
	if len(lines) == 0 {
		return nil, ErrEmptyContent
	}

	histogram := make(map[int]int)
	for _, line := range lines {
		histogram[len(line)]++
	}

	widths := make([]int, 0, len(histogram))
	for w := range histogram {
		widths = append(widths, w)
	}
	sort.Slice(widths, func(i, j int) bool {
		ci, cj := histogram[widths[i]], histogram[widths[j]]
		if ci != cj {
			return ci > cj
		}
		// Equal counts: a supported width wins; 240 beats 400.
		si, sj := supported(widths[i]), supported(widths[j])
		if si != sj {
			return si
		}
		return widths[i] < widths[j]
	})
	mode := widths[0]

	confidence := 100 * histogram[mode] / len(lines)
	if extra := len(histogram) - 2; extra > 0 {
		confidence -= 5 * extra
	}
	if confidence < 0 {
		confidence = 0
	}

	result := &Result{
		Confidence:    confidence,
		TotalLines:    len(lines),
		Histogram:     histogram,
		Consistent:    len(histogram) == 1,
		LowConfidence: confidence < LowConfidence,
	}

	switch mode {
	case 240:
		result.Dialect = cnab.Dialect240
	case 400:
		result.Dialect = cnab.Dialect400
	default:
		result.Dialect = cnab.DialectUnknown
		return result, ErrUnknownFormat
	}
	return result, nil
}

func supported(width int) bool { return width == 240 || width == 400 }
