// Package extract enumerates payable items (barcodes) from parsed
// CNAB trees. Extraction is a pure function over the tree: running it
// twice yields identical lists.
package extract

import (
	"time"

	"github.com/paynet/cnab/pkg/cnab"
	"github.com/paynet/cnab/pkg/cnab/cnab240"
	"github.com/paynet/cnab/pkg/cnab/cnab400"
	"github.com/paynet/cnab/pkg/cnab/field"
	"github.com/paynet/cnab/pkg/cnab/layout"
	"github.com/paynet/cnab/pkg/money"
)

// Tipo classifies a payable by its barcode family.
type Tipo string

const (
	TipoTitulo  Tipo = "titulo"  // 44-digit bank slip
	TipoTributo Tipo = "tributo" // 48-digit tax or utility
	TipoOutro   Tipo = "outro"   // fallback position match
)

// Status of an extracted barcode in the processing pipeline.
type Status string

const (
	StatusExtracted Status = "extracted"
	StatusValidated Status = "validated"
	StatusProcessed Status = "processed"
	StatusSent      Status = "sent"
	StatusError     Status = "error"
)

// Barcode is one payable item found in a parsed file.
type Barcode struct {
	Codigo         string       `json:"codigoBarras"`
	LinhaDigitavel string       `json:"linhaDigitavel,omitempty"`
	Tipo           Tipo         `json:"tipo"`
	Segmento       string       `json:"segmento,omitempty"`
	Favorecido     string       `json:"favorecido,omitempty"`
	Pagador        string       `json:"pagador,omitempty"`
	Valor          money.Amount `json:"valor"`
	DataVencimento time.Time    `json:"dataVencimento,omitzero"`
	DataPagamento  time.Time    `json:"dataPagamento,omitzero"`
	Status         Status       `json:"status"`
	Line           int          `json:"linha"`
	Observacao     string       `json:"observacao,omitempty"`
}

// Valid reports whether the digit-only form has the exact length the
// barcode family requires.
func (b Barcode) Valid() bool {
	digits := cnab.DigitsOnly(b.Codigo)
	if len(digits) != len(b.Codigo) {
		return false
	}
	switch b.Tipo {
	case TipoTitulo:
		return len(digits) == 44
	case TipoTributo:
		return len(digits) == 48
	}
	return len(digits) == 44 || len(digits) == 48
}

// File240 walks a CNAB 240 tree in order. Rules, first match wins:
// segment J with a barcode is a título; segment O with a barcode is a
// tributo; any other detail is scanned only at the schema-bound
// fallback position.
func File240(f *cnab240.File) []Barcode {
	var out []Barcode
	for _, batch := range f.Batches {
		for _, detail := range batch.Details {
			switch d := detail.(type) {
			case *cnab240.SegmentJ:
				if d.CodigoBarras == "" {
					continue
				}
				out = append(out, Barcode{
					Codigo:         d.CodigoBarras,
					Tipo:           TipoTitulo,
					Segmento:       "J",
					Favorecido:     d.FavorecidoNome,
					Valor:          effective(d.ValorPago, d.ValorTitulo),
					DataVencimento: d.DataVencimento,
					DataPagamento:  d.DataPagamento,
					Status:         StatusExtracted,
					Line:           d.Line,
				})
			case *cnab240.SegmentO:
				if d.CodigoBarras == "" {
					continue
				}
				out = append(out, Barcode{
					Codigo:         d.CodigoBarras,
					Tipo:           TipoTributo,
					Segmento:       "O",
					Favorecido:     d.Concessionaria,
					Valor:          effective(d.ValorPago, d.ValorDocumento),
					DataVencimento: d.DataVencimento,
					DataPagamento:  d.DataPagamento,
					Status:         StatusExtracted,
					Line:           d.Line,
				})
			case *cnab240.SegmentGeneric:
				if code, ok := fallbackBarcode(d.Raw); ok {
					out = append(out, Barcode{
						Codigo:     code,
						Tipo:       TipoOutro,
						Segmento:   d.Letter,
						Status:     StatusExtracted,
						Line:       d.Line,
						Observacao: "fallback",
					})
				}
			}
		}
	}
	return out
}

// File400 emits one barcode per detail record carrying one.
func File400(f *cnab400.File) []Barcode {
	var out []Barcode
	for _, rec := range f.Records {
		if rec.CodigoBarras == "" {
			continue
		}
		b := Barcode{
			Codigo:         rec.CodigoBarras,
			LinhaDigitavel: rec.LinhaDigitavel,
			Tipo:           classify(rec.CodigoBarras),
			Pagador:        rec.PagadorNome,
			Valor:          effective(rec.ValorPago, rec.ValorTitulo),
			DataVencimento: rec.DataVencimento,
			DataPagamento:  rec.DataPagamento,
			Status:         StatusExtracted,
			Line:           rec.Line,
		}
		if b.LinhaDigitavel == "" && b.Tipo == TipoTitulo {
			b.LinhaDigitavel = LinhaDigitavel(rec.CodigoBarras)
		}
		out = append(out, b)
	}
	return out
}

// fallbackBarcode scans the layout's fallback entry of an unrecognized
// detail. Only an exact 44- or 48-digit run at that position counts;
// anything else is ignored, never guessed at.
func fallbackBarcode(raw string) (string, bool) {
	schema, _ := layout.Resolve(cnab.Dialect240, 0, layout.KeyFallback)
	pos, ok := schema.Get(layout.FallbackBarcode)
	if !ok {
		return "", false
	}
	r := field.NewReader(raw)
	candidate := r.String(layout.FallbackBarcode, pos.Start, pos.End)
	digits := cnab.DigitsOnly(candidate)
	if digits != candidate {
		return "", false
	}
	if len(digits) != 44 && len(digits) != 48 {
		return "", false
	}
	return digits, true
}

func classify(barcode string) Tipo {
	switch len(cnab.DigitsOnly(barcode)) {
	case 48:
		return TipoTributo
	case 44:
		return TipoTitulo
	}
	return TipoOutro
}

func effective(paid, nominal money.Amount) money.Amount {
	if !paid.IsZero() {
		return paid
	}
	return nominal
}

// LinhaDigitavel renders the 47-digit typeable form of a 44-digit
// título barcode: three field groups with check digits, the general
// check digit and the value factor block.
func LinhaDigitavel(barcode string) string {
	if len(barcode) != 44 {
		return ""
	}
	campo1 := barcode[0:4] + barcode[19:24]
	campo2 := barcode[24:34]
	campo3 := barcode[34:44]
	campo4 := barcode[4:5]
	campo5 := barcode[5:19]
	return campo1 + dv10(campo1) + campo2 + dv10(campo2) + campo3 + dv10(campo3) + campo4 + campo5
}

// dv10 is the módulo 10 check digit used by the linha digitável field
// groups.
func dv10(digits string) string {
	sum := 0
	weight := 2
	for i := len(digits) - 1; i >= 0; i-- {
		product := int(digits[i]-'0') * weight
		if product > 9 {
			product = product/10 + product%10
		}
		sum += product
		if weight == 2 {
			weight = 1
		} else {
			weight = 2
		}
	}
	dv := (10 - sum%10) % 10
	return string(rune('0' + dv))
}
