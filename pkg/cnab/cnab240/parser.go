// Package cnab240 parses the hierarchical 240-column CNAB dialect:
// file header, one or more batches of segment details, file trailer.
// A state machine keyed on the record type drives assembly; every
// field-level or structural problem is collected as a diagnostic and
// parsing continues.
package cnab240

import (
	"errors"
	"fmt"
	"time"

	"github.com/paynet/cnab/pkg/cnab"
	"github.com/paynet/cnab/pkg/cnab/field"
	"github.com/paynet/cnab/pkg/cnab/layout"
	"github.com/paynet/cnab/pkg/money"
)

// ErrNoLines is returned when the content holds no usable lines.
var ErrNoLines = errors.New("cnab240: no lines to parse")

// Options tunes parse tolerance.
type Options struct {
	// StrictWidth rejects lines that are not exactly 240 columns.
	StrictWidth bool
}

type parseState int

const (
	stateExpectFileHeader parseState = iota
	stateExpectBatchOrTrailer
	stateInBatch
	stateDone
)

// Parse assembles the CNAB 240 tree. Only contentless input returns
// an error; everything else is reported through diagnostics.
func Parse(content string, opts Options) (*File, error) {
	lines := cnab.SplitLines(content)
	if len(lines) == 0 {
		return nil, ErrNoLines
	}

	p := &parser{file: &File{LineCount: len(lines)}, state: stateExpectFileHeader}
	for i, line := range lines {
		p.line(i+1, line, opts)
	}
	p.finish()
	return p.file, nil
}

type parser struct {
	file    *File
	state   parseState
	current *Batch
	// lastPayable is the nearest preceding A/J/O detail in the open
	// batch, the attachment point for segment B.
	lastPayable Detail
}

func (p *parser) line(num int, line string, opts Options) {
	f := p.file
	if len(line) != 240 {
		if opts.StrictWidth {
			f.Diagnostics.Errorf(num, cnab.CodeLineWidth, "", "line is not 240 columns")
			return
		}
		f.Diagnostics.Warnf(num, cnab.CodeLineWidth, "", "line padded to 240 columns")
	}
	if len(line) < 8 {
		f.Diagnostics.Errorf(num, cnab.CodeRecordUnknown, "", "line too short for record prefix")
		return
	}
	if p.state == stateDone {
		f.Diagnostics.Errorf(num, cnab.CodeRecordUnknown, "", "record after file trailer")
		return
	}

	switch line[7] {
	case cnab.RecordFileHeader:
		if p.state != stateExpectFileHeader {
			f.Diagnostics.Errorf(num, cnab.CodeHeaderOutOfPlace, "", "file header after first record")
			return
		}
		p.parseFileHeader(num, line)
		p.state = stateExpectBatchOrTrailer

	case cnab.RecordBatchHeader:
		if p.state == stateExpectFileHeader {
			f.Diagnostics.Errorf(num, cnab.CodeHeaderOutOfPlace, "", "batch header before file header")
		}
		if p.current != nil {
			// Batches cannot nest; close the dangling batch so the
			// rest of the file still parses.
			f.Diagnostics.Errorf(num, cnab.CodeBatchNested, "", fmt.Sprintf("batch %d opened before batch %d closed", batchNumber(line), p.current.Lote))
			p.closeBatch()
		}
		p.openBatch(num, line)
		p.state = stateInBatch

	case cnab.RecordDetail240:
		if p.current == nil {
			f.Diagnostics.Errorf(num, cnab.CodeDetailOrphan, "", "detail outside any open batch")
			return
		}
		p.parseDetail(num, line)

	case cnab.RecordBatchTrailer:
		if p.current == nil {
			f.Diagnostics.Errorf(num, cnab.CodeTrailerOrphan, "", "batch trailer without open batch")
			return
		}
		p.parseBatchTrailer(num, line)
		p.closeBatch()
		p.state = stateExpectBatchOrTrailer

	case cnab.RecordFileTrailer:
		if p.current != nil {
			f.Diagnostics.Errorf(num, cnab.CodeTrailerOrphan, "", "file trailer with batch still open")
			p.closeBatch()
		}
		if f.HasTrailer {
			f.Diagnostics.Errorf(num, cnab.CodeTrailerOrphan, "", "duplicate file trailer")
			return
		}
		p.parseFileTrailer(num, line)
		p.state = stateDone

	default:
		f.Diagnostics.Warnf(num, cnab.CodeRecordUnknown, "", "unrecognized record type "+string(line[7]))
	}
}

func (p *parser) finish() {
	f := p.file
	if p.current != nil {
		f.Diagnostics.Errorf(f.LineCount, cnab.CodeTrailerMissing, "", fmt.Sprintf("batch %d never closed", p.current.Lote))
		p.closeBatch()
	}
	if !f.HasHeader {
		f.Diagnostics.Errorf(0, cnab.CodeHeaderMissing, "", "file header not found")
	}
	if !f.HasTrailer {
		f.Diagnostics.Errorf(0, cnab.CodeTrailerMissing, "", "file trailer not found")
	}
}

func (p *parser) openBatch(num int, line string) {
	f := p.file
	schema, _ := layout.Resolve(cnab.Dialect240, f.Bank, layout.KeyBatchHeader)
	r := field.NewReader(line)

	batch := &Batch{
		Lote: batchNumber(line),
		Header: BatchHeader{
			Lote:             batchNumber(line),
			TipoOperacao:     readString(r, schema, "tipo_operacao"),
			TipoServico:      readString(r, schema, "tipo_servico"),
			FormaPagamento:   readString(r, schema, "forma_pagamento"),
			EmpresaDocumento: readString(r, schema, "empresa_documento"),
			EmpresaNome:      readString(r, schema, "empresa_nome"),
		},
	}
	p.current = batch
	p.lastPayable = nil
	p.collect(num, r)
}

func (p *parser) closeBatch() {
	p.file.Batches = append(p.file.Batches, p.current)
	p.current = nil
	p.lastPayable = nil
}

func (p *parser) parseFileHeader(num int, line string) {
	f := p.file
	schema, _ := layout.Resolve(cnab.Dialect240, 0, layout.KeyFileHeader)
	r := field.NewReader(line)

	f.Header = FileHeader{
		BancoCodigo:      int(readInt(r, schema, "banco_codigo")),
		BancoNome:        readString(r, schema, "banco_nome"),
		EmpresaDocumento: readString(r, schema, "empresa_documento"),
		EmpresaNome:      readString(r, schema, "empresa_nome"),
		Convenio:         readString(r, schema, "convenio"),
		DataGeracao:      readDate8(r, schema, "data_geracao"),
		HoraGeracao:      readString(r, schema, "hora_geracao"),
		ArquivoSequencia: readInt(r, schema, "arquivo_sequencia"),
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
	p.collect(num, r)
}

func (p *parser) parseDetail(num int, line string) {
	f := p.file
	p.current.DetailLines++

	common, _ := layout.Resolve(cnab.Dialect240, f.Bank, layout.KeyDetail)
	r := field.NewReader(line)
	seq := readInt(r, common, "sequencia")
	letter := readString(r, common, "segmento")

	switch letter {
	case "J":
		p.appendPayable(p.parseSegmentJ(num, seq, line))
	case "O":
		p.appendPayable(p.parseSegmentO(num, seq, line))
	case "A":
		p.appendPayable(p.parseSegmentA(num, seq, line))
	case "B":
		p.attachSegmentB(num, line)
	default:
		p.current.Details = append(p.current.Details, &SegmentGeneric{Line: num, Sequencia: seq, Letter: letter, Raw: line})
		p.lastPayable = nil
	}
	p.collect(num, r)
}

func (p *parser) appendPayable(d Detail) {
	p.current.Details = append(p.current.Details, d)
	p.lastPayable = d
}

func (p *parser) parseSegmentJ(num int, seq int64, line string) *SegmentJ {
	schema, _ := layout.Resolve(cnab.Dialect240, p.file.Bank, layout.KeySegmentJ)
	r := field.NewReader(line)
	s := &SegmentJ{
		Line:           num,
		Sequencia:      seq,
		CodigoBarras:   readString(r, schema, "codigo_barras"),
		FavorecidoNome: readString(r, schema, "favorecido_nome"),
		DataVencimento: readDate8(r, schema, "data_vencimento"),
		DataPagamento:  readDate8(r, schema, "data_pagamento"),
		ValorTitulo:    readMoney(r, schema, "valor_titulo"),
		Desconto:       readMoney(r, schema, "desconto"),
		Acrescimo:      readMoney(r, schema, "acrescimo"),
		ValorPago:      readMoney(r, schema, "valor_pago"),
		SeuNumero:      readString(r, schema, "seu_numero"),
		NossoNumero:    readString(r, schema, "nosso_numero"),
		Ocorrencias:    readString(r, schema, "ocorrencias"),
	}
	p.collect(num, r)
	return s
}

func (p *parser) parseSegmentO(num int, seq int64, line string) *SegmentO {
	schema, _ := layout.Resolve(cnab.Dialect240, p.file.Bank, layout.KeySegmentO)
	r := field.NewReader(line)
	s := &SegmentO{
		Line:           num,
		Sequencia:      seq,
		CodigoBarras:   readString(r, schema, "codigo_barras"),
		Concessionaria: readString(r, schema, "concessionaria_nome"),
		DataVencimento: readDate8(r, schema, "data_vencimento"),
		DataPagamento:  readDate8(r, schema, "data_pagamento"),
		ValorDocumento: readMoney(r, schema, "valor_documento"),
		ValorPago:      readMoney(r, schema, "valor_pago"),
		SeuNumero:      readString(r, schema, "seu_numero"),
		NossoNumero:    readString(r, schema, "nosso_numero"),
		Ocorrencias:    readString(r, schema, "ocorrencias"),
	}
	p.collect(num, r)
	return s
}

func (p *parser) parseSegmentA(num int, seq int64, line string) *SegmentA {
	schema, _ := layout.Resolve(cnab.Dialect240, p.file.Bank, layout.KeySegmentA)
	r := field.NewReader(line)
	s := &SegmentA{
		Line:            num,
		Sequencia:       seq,
		Camara:          readString(r, schema, "camara"),
		FavorecidoBanco: readInt(r, schema, "favorecido_banco"),
		FavorecidoNome:  readString(r, schema, "favorecido_nome"),
		SeuNumero:       readString(r, schema, "seu_numero"),
		DataPagamento:   readDate8(r, schema, "data_pagamento"),
		ValorPagamento:  readMoney(r, schema, "valor_pagamento"),
		NossoNumero:     readString(r, schema, "nosso_numero"),
		DataEfetivacao:  readDate8(r, schema, "data_efetivacao"),
		ValorEfetivado:  readMoney(r, schema, "valor_efetivado"),
		Ocorrencias:     readString(r, schema, "ocorrencias"),
	}
	p.collect(num, r)
	return s
}

func (p *parser) attachSegmentB(num int, line string) {
	f := p.file
	schema, _ := layout.Resolve(cnab.Dialect240, f.Bank, layout.KeySegmentB)
	r := field.NewReader(line)
	b := &SegmentB{
		Line:          num,
		TipoInscricao: readString(r, schema, "tipo_inscricao"),
		Documento:     readString(r, schema, "documento"),
		Logradouro:    readString(r, schema, "logradouro"),
		Numero:        readString(r, schema, "numero"),
		Complemento:   readString(r, schema, "complemento"),
		Bairro:        readString(r, schema, "bairro"),
		Cidade:        readString(r, schema, "cidade"),
		CEP:           readString(r, schema, "cep"),
		Estado:        readString(r, schema, "estado"),
		ChavePix:      readString(r, schema, "chave_pix"),
	}
	p.collect(num, r)

	switch d := p.lastPayable.(type) {
	case *SegmentJ:
		d.Endereco = b
	case *SegmentO:
		d.Endereco = b
	case *SegmentA:
		d.Endereco = b
	default:
		f.Diagnostics.Warnf(num, cnab.CodeDetailOrphan, "segmento", "segment B without preceding A/J/O")
	}
}

func (p *parser) parseBatchTrailer(num int, line string) {
	schema, _ := layout.Resolve(cnab.Dialect240, p.file.Bank, layout.KeyBatchTrailer)
	r := field.NewReader(line)
	p.current.Trailer = BatchTrailer{
		Lote:          batchNumber(line),
		QtdeRegistros: readInt(r, schema, "qtde_registros"),
		ValorTotal:    readMoney(r, schema, "valor_total"),
	}
	p.current.HasTrailer = true
	p.collect(num, r)
}

func (p *parser) parseFileTrailer(num int, line string) {
	f := p.file
	schema, _ := layout.Resolve(cnab.Dialect240, f.Bank, layout.KeyFileTrailer)
	r := field.NewReader(line)
	f.Trailer = FileTrailer{
		TotalLotes:     readInt(r, schema, "total_lotes"),
		TotalRegistros: readInt(r, schema, "total_registros"),
	}
	f.HasTrailer = true
	p.collect(num, r)
}

func (p *parser) collect(num int, r *field.Reader) {
	for _, issue := range r.Issues() {
		p.file.Diagnostics.Warnf(num, cnab.CodeFieldInvalid, issue.Name, issue.Err.Error())
	}
}

// batchNumber reads the batch code from the fixed 3-7 prefix range.
func batchNumber(line string) int {
	r := field.NewReader(line)
	return int(r.Int("lote", 3, 7))
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

func readDate8(r *field.Reader, s layout.Schema, name string) time.Time {
	pos, ok := s.Get(name)
	if !ok {
		return time.Time{}
	}
	return r.Date8(name, pos.Start, pos.End)
}
