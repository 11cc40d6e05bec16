// Package validate runs structural, arithmetic and field-level checks
// over parsed CNAB trees and produces a categorized report. All sum
// comparisons are integer-cent exact; rounding drift is never
// tolerated.
package validate

import (
	"fmt"
	"time"

	"github.com/paynet/cnab/pkg/cnab"
	"github.com/paynet/cnab/pkg/cnab/cnab240"
	"github.com/paynet/cnab/pkg/cnab/cnab400"
	"github.com/paynet/cnab/pkg/cnab/layout"
	"github.com/paynet/cnab/pkg/money"
)

// Category classifies a validation issue.
type Category string

const (
	CategoryStructural Category = "structural"
	CategoryField      Category = "field"
	CategoryIntegrity  Category = "integrity"
	CategoryBusiness   Category = "business"
)

// Issue codes.
const (
	CodeStructure              = "ESTRUTURA"
	CodeBatchCountMismatch     = "TOTAL_LOTES_DIVERGENTE"
	CodeRecordCountMismatch    = "TOTAL_REGISTROS_DIVERGENTE"
	CodeAmountMismatch         = "VALOR_TOTAL_DIVERGENTE"
	CodeBarcodeLength          = "CODIGO_BARRAS_TAMANHO"
	CodeDateRange              = "DATA_FORA_DO_INTERVALO"
	CodeDocumentInvalid        = "DOCUMENTO_INVALIDO"
	CodeBatchWithoutTrailer    = "LOTE_SEM_TRAILER"
)

// Issue is one validation finding.
type Issue struct {
	Category Category `json:"categoria"`
	Code     string   `json:"codigo"`
	Line     int      `json:"linha,omitempty"`
	Field    string   `json:"campo,omitempty"`
	Message  string   `json:"mensagem"`
	Expected string   `json:"esperado,omitempty"`
	Actual   string   `json:"obtido,omitempty"`
}

// Statistics summarizes the validated tree.
type Statistics struct {
	TotalLinhas   int          `json:"totalLinhas"`
	TotalLotes    int          `json:"totalLotes"`
	TotalDetalhes int          `json:"totalDetalhes"`
	ValorTotal    money.Amount `json:"valorTotal"`
}

// Report is the validator outcome. Valid is false iff Errors is
// non-empty; warnings never invalidate a file.
type Report struct {
	Valid      bool       `json:"valido"`
	Errors     []Issue    `json:"erros"`
	Warnings   []Issue    `json:"avisos"`
	Score      int        `json:"pontuacao"`
	Statistics Statistics `json:"estatisticas"`
}

// Options parameterizes bank-specific conventions.
type Options struct {
	// CountsDetailsOnly selects the bank convention for the CNAB 240
	// file-trailer total_registros field: detail lines only, instead
	// of every line in the file. Resolved from the layout table when
	// left nil.
	CountsDetailsOnly *bool
}

var (
	dateMin = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	dateMax = time.Date(2099, 12, 31, 23, 59, 59, 0, time.UTC)
)

type reporter struct {
	report Report
}

func (r *reporter) errf(cat Category, code string, line int, field, msg string) *Issue {
	r.report.Errors = append(r.report.Errors, Issue{Category: cat, Code: code, Line: line, Field: field, Message: msg})
	return &r.report.Errors[len(r.report.Errors)-1]
}

func (r *reporter) warnf(cat Category, code string, line int, field, msg string) {
	r.report.Warnings = append(r.report.Warnings, Issue{Category: cat, Code: code, Line: line, Field: field, Message: msg})
}

func (r *reporter) finish(totalRecords int) *Report {
	r.report.Valid = len(r.report.Errors) == 0
	if totalRecords < 1 {
		totalRecords = 1
	}
	score := 100 - 100*len(r.report.Errors)/totalRecords
	if score < 0 {
		score = 0
	}
	r.report.Score = score
	return &r.report
}

// File240 validates a parsed CNAB 240 tree.
func File240(f *cnab240.File, opts Options) *Report {
	r := &reporter{}

	if !f.HasHeader {
		r.errf(CategoryStructural, CodeStructure, 0, "", "file header missing")
	}
	if !f.HasTrailer {
		r.errf(CategoryStructural, CodeStructure, 0, "", "file trailer missing")
	}
	for _, d := range f.Diagnostics {
		if d.Severity == cnab.SeverityError {
			r.errf(CategoryStructural, d.Code, d.Line, d.Field, d.Message)
		}
	}

	var totalDetails int64
	var fileTotal money.Amount
	for _, batch := range f.Batches {
		totalDetails += batch.DetailLines
		if !batch.HasTrailer {
			r.errf(CategoryStructural, CodeBatchWithoutTrailer, 0, "",
				fmt.Sprintf("batch %d has no trailer", batch.Lote))
			continue
		}

		computed := batchSum(batch)
		fileTotal = fileTotal.Add(computed)
		if batch.Trailer.ValorTotal != computed {
			issue := r.errf(CategoryIntegrity, CodeAmountMismatch, 0, "valor_total",
				fmt.Sprintf("batch %d declared total diverges from detail sum", batch.Lote))
			issue.Expected = computed.String()
			issue.Actual = batch.Trailer.ValorTotal.String()
		}
		if batch.Trailer.QtdeRegistros != batch.DetailLines {
			issue := r.errf(CategoryIntegrity, CodeRecordCountMismatch, 0, "qtde_registros",
				fmt.Sprintf("batch %d declared record count diverges", batch.Lote))
			issue.Expected = fmt.Sprintf("%d", batch.DetailLines)
			issue.Actual = fmt.Sprintf("%d", batch.Trailer.QtdeRegistros)
		}

		for _, detail := range batch.Details {
			checkDetail240(r, detail)
		}
	}

	if f.HasTrailer {
		if f.Trailer.TotalLotes != int64(len(f.Batches)) {
			issue := r.errf(CategoryIntegrity, CodeBatchCountMismatch, 0, "total_lotes", "declared batch count diverges")
			issue.Expected = fmt.Sprintf("%d", len(f.Batches))
			issue.Actual = fmt.Sprintf("%d", f.Trailer.TotalLotes)
		}

		detailsOnly := layout.CountsDetailsOnly(f.Bank)
		if opts.CountsDetailsOnly != nil {
			detailsOnly = *opts.CountsDetailsOnly
		}
		expected := int64(f.LineCount)
		if detailsOnly {
			expected = totalDetails
		}
		if f.Trailer.TotalRegistros != expected {
			issue := r.errf(CategoryIntegrity, CodeRecordCountMismatch, 0, "total_registros", "declared file record count diverges")
			issue.Expected = fmt.Sprintf("%d", expected)
			issue.Actual = fmt.Sprintf("%d", f.Trailer.TotalRegistros)
		}
	}

	r.report.Statistics = Statistics{
		TotalLinhas:   f.LineCount,
		TotalLotes:    len(f.Batches),
		TotalDetalhes: int(totalDetails),
		ValorTotal:    fileTotal,
	}
	return r.finish(f.LineCount)
}

// batchSum computes the exact monetary sum of a batch's payable
// details: the paid value when present, the nominal value otherwise.
func batchSum(batch *cnab240.Batch) money.Amount {
	var sum money.Amount
	for _, detail := range batch.Details {
		switch d := detail.(type) {
		case *cnab240.SegmentJ:
			sum = sum.Add(effective(d.ValorPago, d.ValorTitulo))
		case *cnab240.SegmentO:
			sum = sum.Add(effective(d.ValorPago, d.ValorDocumento))
		case *cnab240.SegmentA:
			sum = sum.Add(effective(d.ValorEfetivado, d.ValorPagamento))
		}
	}
	return sum
}

func effective(paid, nominal money.Amount) money.Amount {
	if !paid.IsZero() {
		return paid
	}
	return nominal
}

func checkDetail240(r *reporter, detail cnab240.Detail) {
	switch d := detail.(type) {
	case *cnab240.SegmentJ:
		checkBarcode(r, d.Line, d.CodigoBarras)
		checkDate(r, d.Line, "data_vencimento", d.DataVencimento)
		checkDate(r, d.Line, "data_pagamento", d.DataPagamento)
		if d.Endereco != nil {
			checkDocument(r, d.Endereco.Line, d.Endereco.Documento)
		}
	case *cnab240.SegmentO:
		checkBarcode(r, d.Line, d.CodigoBarras)
		checkDate(r, d.Line, "data_vencimento", d.DataVencimento)
		checkDate(r, d.Line, "data_pagamento", d.DataPagamento)
	case *cnab240.SegmentA:
		checkDate(r, d.Line, "data_pagamento", d.DataPagamento)
		checkDate(r, d.Line, "data_efetivacao", d.DataEfetivacao)
	}
}

// File400 validates a parsed CNAB 400 tree.
func File400(f *cnab400.File) *Report {
	r := &reporter{}

	if !f.HasHeader {
		r.errf(CategoryStructural, CodeStructure, 0, "", "file header missing")
	}
	if !f.HasTrailer {
		r.errf(CategoryStructural, CodeStructure, 0, "", "file trailer missing")
	}
	for _, d := range f.Diagnostics {
		if d.Severity == cnab.SeverityError {
			r.errf(CategoryStructural, d.Code, d.Line, d.Field, d.Message)
		}
	}

	var total money.Amount
	for _, rec := range f.Records {
		total = total.Add(effective(rec.ValorPago, rec.ValorTitulo))
		if rec.CodigoBarras != "" {
			checkBarcode(r, rec.Line, rec.CodigoBarras)
		}
		checkDate(r, rec.Line, "data_vencimento", rec.DataVencimento)
		checkDate(r, rec.Line, "data_pagamento", rec.DataPagamento)
		if rec.PagadorDocumento != "" {
			checkDocument(r, rec.Line, rec.PagadorDocumento)
		}
	}

	if f.HasTrailer {
		if f.Trailer.TotalRegistros != int64(len(f.Records)) {
			issue := r.errf(CategoryIntegrity, CodeRecordCountMismatch, 0, "total_registros", "declared record count diverges")
			issue.Expected = fmt.Sprintf("%d", len(f.Records))
			issue.Actual = fmt.Sprintf("%d", f.Trailer.TotalRegistros)
		}
		if !f.Trailer.ValorTotal.IsZero() && f.Trailer.ValorTotal != total {
			issue := r.errf(CategoryIntegrity, CodeAmountMismatch, 0, "valor_total", "declared total diverges from record sum")
			issue.Expected = total.String()
			issue.Actual = f.Trailer.ValorTotal.String()
		}
	}

	r.report.Statistics = Statistics{
		TotalLinhas:   f.LineCount,
		TotalDetalhes: len(f.Records),
		ValorTotal:    total,
	}
	return r.finish(f.LineCount)
}

func checkBarcode(r *reporter, line int, barcode string) {
	digits := cnab.DigitsOnly(barcode)
	if len(digits) != len(barcode) {
		r.warnf(CategoryField, CodeBarcodeLength, line, "codigo_barras", "barcode contains non-digit characters")
		return
	}
	if len(digits) != 44 && len(digits) != 48 {
		r.warnf(CategoryField, CodeBarcodeLength, line, "codigo_barras",
			fmt.Sprintf("barcode has %d digits, expected 44 or 48", len(digits)))
	}
}

func checkDate(r *reporter, line int, name string, t time.Time) {
	if t.IsZero() {
		return
	}
	if t.Before(dateMin) || t.After(dateMax) {
		r.errf(CategoryField, CodeDateRange, line, name,
			fmt.Sprintf("date %s outside 1970-01-01..2099-12-31", t.Format("2006-01-02")))
	}
}

func checkDocument(r *reporter, line int, doc string) {
	digits := cnab.DigitsOnly(doc)
	// Left-padded documents carry leading zeros; CPF holds the last
	// 11 digits, CNPJ all 14.
	if len(digits) == 11 || len(digits) == 14 {
		return
	}
	r.warnf(CategoryField, CodeDocumentInvalid, line, "documento",
		fmt.Sprintf("document has %d digits, expected 11 (CPF) or 14 (CNPJ)", len(digits)))
}
