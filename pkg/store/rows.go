package store

import (
	"encoding/json"

	"github.com/paynet/cnab/pkg/cnab/cnab240"
	"github.com/paynet/cnab/pkg/cnab/cnab400"
)

// Row kinds, in the order they appear inside a file.
const (
	RowHeader       = "header"
	RowBatchHeader  = "batch_header"
	RowDetail       = "detail"
	RowBatchTrailer = "batch_trailer"
	RowTrailer      = "trailer"
)

// Flatten240 turns a hierarchical tree into ordered rows: file header,
// then per batch its header, details and trailer, then the file
// trailer. Foreign references always point backwards.
func Flatten240(f *cnab240.File) []Row {
	var rows []Row
	if f.HasHeader {
		rows = append(rows, row(RowHeader, 1, f.Header))
	}
	for _, batch := range f.Batches {
		rows = append(rows, row(RowBatchHeader, 0, batch.Header))
		for _, detail := range batch.Details {
			rows = append(rows, row(RowDetail, detail.LineNumber(), detail))
		}
		if batch.HasTrailer {
			rows = append(rows, row(RowBatchTrailer, 0, batch.Trailer))
		}
	}
	if f.HasTrailer {
		rows = append(rows, row(RowTrailer, f.LineCount, f.Trailer))
	}
	return rows
}

// Flatten400 turns a flat tree into ordered rows.
func Flatten400(f *cnab400.File) []Row {
	var rows []Row
	if f.HasHeader {
		rows = append(rows, row(RowHeader, 1, f.Header))
	}
	for _, rec := range f.Records {
		rows = append(rows, row(RowDetail, rec.Line, rec))
	}
	if f.HasTrailer {
		rows = append(rows, row(RowTrailer, f.LineCount, f.Trailer))
	}
	return rows
}

func row(kind string, line int, v any) Row {
	data, err := json.Marshal(v)
	if err != nil {
		data = nil
	}
	return Row{Kind: kind, Line: line, Data: data}
}
