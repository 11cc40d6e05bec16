// Package cnab400 parses the flat 400-column CNAB dialect: one file
// header, a run of detail records, one trailer. Field positions come
// from the layout tables (Itaú is the reference layout).
package cnab400

import (
	"errors"
	"time"

	"github.com/paynet/cnab/pkg/cnab"
	"github.com/paynet/cnab/pkg/cnab/field"
	"github.com/paynet/cnab/pkg/cnab/layout"
	"github.com/paynet/cnab/pkg/money"
)

// ErrNoLines is returned when the content holds no usable lines; every
// other problem is absorbed into diagnostics.
var ErrNoLines = errors.New("cnab400: no lines to parse")

// Options tunes parse tolerance.
type Options struct {
	// StrictWidth rejects lines that are not exactly 400 columns.
	// When false, short lines are space-padded with a warning.
	StrictWidth bool
}

// Header is the file header record (type '0').
type Header struct {
	BancoCodigo      int       `json:"bancoCodigo"`
	BancoNome        string    `json:"bancoNome"`
	EmpresaCodigo    string    `json:"empresaCodigo"`
	EmpresaNome      string    `json:"empresaNome"`
	ArquivoSequencia int64     `json:"arquivoSequencia"`
	DataArquivo      time.Time `json:"dataArquivo"`
	VersaoLayout     string    `json:"versaoLayout"`
}

// Record is one detail record (type '1').
type Record struct {
	Line             int          `json:"linha"`
	NossoNumero      string       `json:"nossoNumero"`
	SeuNumero        string       `json:"seuNumero"`
	CodigoBarras     string       `json:"codigoBarras"`
	LinhaDigitavel   string       `json:"linhaDigitavel"`
	ValorTitulo      money.Amount `json:"valorTitulo"`
	ValorPago        money.Amount `json:"valorPago"`
	DataVencimento   time.Time    `json:"dataVencimento"`
	DataPagamento    time.Time    `json:"dataPagamento"`
	PagadorNome      string       `json:"pagadorNome"`
	PagadorDocumento string       `json:"pagadorDocumento"`
	CodigoOcorrencia string       `json:"codigoOcorrencia"`
	CodigoBanco      int64        `json:"codigoBanco"`
	Agencia          string       `json:"agencia"`
	Conta            string       `json:"conta"`
	Sequencial       int64        `json:"sequencial"`
	DadosCompletos   string       `json:"-"`
}

// Trailer is the file trailer record (type '9').
type Trailer struct {
	TotalRegistros int64        `json:"totalRegistros"`
	ValorTotal     money.Amount `json:"valorTotal"`
	Sequencial     int64        `json:"sequencial"`
}

// File is the parsed CNAB 400 tree.
type File struct {
	Bank        int              `json:"banco"`
	Header      Header           `json:"cabecalho"`
	Records     []Record         `json:"registros"`
	Trailer     Trailer          `json:"trailer"`
	HasHeader   bool             `json:"-"`
	HasTrailer  bool             `json:"-"`
	LineCount   int              `json:"totalLinhas"`
	Diagnostics cnab.Diagnostics `json:"-"`
}

// Parse assembles the flat CNAB 400 tree. Field-level problems become
// diagnostics on the file; only contentless input returns an error.
func Parse(content string, opts Options) (*File, error) {
	lines := cnab.SplitLines(content)
	if len(lines) == 0 {
		return nil, ErrNoLines
	}

	f := &File{LineCount: len(lines)}
	for i, line := range lines {
		num := i + 1
		if len(line) != 400 {
			if opts.StrictWidth {
				f.Diagnostics.Errorf(num, cnab.CodeLineWidth, "", "line is not 400 columns")
				continue
			}
			f.Diagnostics.Warnf(num, cnab.CodeLineWidth, "", "line padded to 400 columns")
		}

		switch line[0] {
		case cnab.RecordFileHeader:
			if i != 0 || f.HasHeader {
				f.Diagnostics.Errorf(num, cnab.CodeHeaderOutOfPlace, "", "file header must be the first line")
			}
			f.parseHeader(num, line)
		case cnab.RecordDetail400:
			f.parseRecord(num, line)
		case cnab.RecordFileTrailer:
			if f.HasTrailer {
				f.Diagnostics.Errorf(num, cnab.CodeTrailerOrphan, "", "duplicate file trailer")
				continue
			}
			f.parseTrailer(num, line)
		default:
			f.Diagnostics.Warnf(num, cnab.CodeRecordUnknown, "", "unrecognized record type "+string(line[0]))
		}
	}

	if !f.HasHeader {
		f.Diagnostics.Errorf(0, cnab.CodeHeaderMissing, "", "file header not found")
	}
	if !f.HasTrailer {
		f.Diagnostics.Errorf(0, cnab.CodeTrailerMissing, "", "file trailer not found")
	}
	return f, nil
}

func (f *File) parseHeader(num int, line string) {
	schema, _ := layout.Resolve(cnab.Dialect400, 0, layout.KeyFileHeader)
	r := field.NewReader(line)

	f.Header = Header{
		BancoCodigo:      int(readInt(r, schema, "banco_codigo")),
		BancoNome:        readString(r, schema, "banco_nome"),
		EmpresaCodigo:    readString(r, schema, "empresa_codigo"),
		EmpresaNome:      readString(r, schema, "empresa_nome"),
		ArquivoSequencia: readInt(r, schema, "arquivo_sequencia"),
		DataArquivo:      readDate6(r, schema, "data_arquivo"),
		VersaoLayout:     readString(r, schema, "versao_layout"),
	}
	f.Bank = f.Header.BancoCodigo
	if f.Header.BancoNome == "" {
		f.Header.BancoNome = layout.BankName(f.Bank)
	}
	if !layout.KnownBank(f.Bank) {
		f.Diagnostics.Warnf(num, cnab.CodeBankUnknown, "banco_codigo", "bank not in layout table, using base FEBRABAN layout")
	}
	f.HasHeader = true
	f.collect(num, r)
}

func (f *File) parseRecord(num int, line string) {
	schema, _ := layout.Resolve(cnab.Dialect400, f.Bank, layout.KeyDetail)
	r := field.NewReader(line)

	rec := Record{
		Line:             num,
		NossoNumero:      readString(r, schema, "nosso_numero"),
		SeuNumero:        readString(r, schema, "seu_numero"),
		CodigoBarras:     readString(r, schema, "codigo_barras"),
		LinhaDigitavel:   readString(r, schema, "linha_digitavel"),
		ValorTitulo:      readMoney(r, schema, "valor_titulo"),
		ValorPago:        readMoney(r, schema, "valor_pago"),
		DataVencimento:   readDate6(r, schema, "data_vencimento"),
		DataPagamento:    readDate6(r, schema, "data_pagamento"),
		PagadorNome:      readString(r, schema, "pagador_nome"),
		PagadorDocumento: readString(r, schema, "pagador_documento"),
		CodigoOcorrencia: readString(r, schema, "codigo_ocorrencia"),
		CodigoBanco:      readInt(r, schema, "codigo_banco"),
		Agencia:          readString(r, schema, "agencia"),
		Conta:            readString(r, schema, "conta"),
		Sequencial:       readInt(r, schema, "sequencial"),
		DadosCompletos:   line,
	}
	f.Records = append(f.Records, rec)
	f.collect(num, r)
}

func (f *File) parseTrailer(num int, line string) {
	schema, _ := layout.Resolve(cnab.Dialect400, f.Bank, layout.KeyFileTrailer)
	r := field.NewReader(line)

	f.Trailer = Trailer{
		TotalRegistros: readInt(r, schema, "total_registros"),
		ValorTotal:     readMoney(r, schema, "valor_total"),
		Sequencial:     readInt(r, schema, "sequencial"),
	}
	f.HasTrailer = true
	f.collect(num, r)
}

// collect converts field decode issues into warnings on the file.
func (f *File) collect(num int, r *field.Reader) {
	for _, issue := range r.Issues() {
		f.Diagnostics.Warnf(num, cnab.CodeFieldInvalid, issue.Name, issue.Err.Error())
	}
}

func readString(r *field.Reader, s layout.Schema, name string) string {
	pos, ok := s.Get(name)
	if !ok {
		return ""
	}
	return r.String(name, pos.Start, pos.End)
}

func readInt(r *field.Reader, s layout.Schema, name string) int64 {
	pos, ok := s.Get(name)
	if !ok {
		return 0
	}
	return r.Int(name, pos.Start, pos.End)
}

func readMoney(r *field.Reader, s layout.Schema, name string) money.Amount {
	pos, ok := s.Get(name)
	if !ok {
		return money.Zero
	}
	return r.Money(name, pos.Start, pos.End)
}

func readDate6(r *field.Reader, s layout.Schema, name string) time.Time {
	pos, ok := s.Get(name)
	if !ok {
		return time.Time{}
	}
	return r.Date6(name, pos.Start, pos.End)
}
