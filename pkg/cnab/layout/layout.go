// Package layout ships the positional schema tables for CNAB records,
// keyed by (dialect, bank, record or segment type). Positions follow
// the FEBRABAN base layouts; banks whose supplements diverge override
// individual fields. All positions are 0-based, end-exclusive.
package layout

import "github.com/paynet/cnab/pkg/cnab"

// Field is one fixed-width extraction: name plus byte range.
type Field struct {
	Name  string
	Start int
	End   int
}

// Schema is the ordered field list of one record or segment type.
type Schema []Field

// Get returns the named field's position.
func (s Schema) Get(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Record and segment keys into the schema tables.
const (
	KeyFileHeader   = "file_header"
	KeyBatchHeader  = "batch_header"
	KeyBatchTrailer = "batch_trailer"
	KeyFileTrailer  = "file_trailer"
	KeyDetail       = "detail"
	KeySegmentA     = "A"
	KeySegmentB     = "B"
	KeySegmentJ     = "J"
	KeySegmentO     = "O"
	KeyFallback     = "fallback"
)

// FallbackBarcode is the schema entry the extractor's fallback rule is
// bound to. Details with no recognized segment letter are only
// scanned at this exact position, never guessed at.
const FallbackBarcode = "fallback_codigo_barras"

var base240 = map[string]Schema{
	KeyFileHeader: {
		{"banco_codigo", 0, 3},
		{"empresa_tipo_inscricao", 17, 18},
		{"empresa_documento", 18, 32},
		{"convenio", 32, 52},
		{"agencia", 52, 57},
		{"conta", 58, 70},
		{"empresa_nome", 72, 102},
		{"banco_nome", 102, 132},
		{"data_geracao", 143, 151},
		{"hora_geracao", 151, 157},
		{"arquivo_sequencia", 157, 163},
		{"versao_layout", 163, 166},
	},
	KeyBatchHeader: {
		{"tipo_operacao", 8, 9},
		{"tipo_servico", 9, 11},
		{"forma_pagamento", 11, 13},
		{"versao_lote", 13, 16},
		{"empresa_documento", 18, 32},
		{"empresa_nome", 72, 102},
	},
	KeyDetail: {
		{"sequencia", 8, 13},
		{"segmento", 13, 14},
	},
	KeySegmentJ: {
		{"codigo_barras", 17, 61},
		{"favorecido_nome", 61, 91},
		{"data_vencimento", 91, 99},
		{"valor_titulo", 99, 114},
		{"desconto", 114, 129},
		{"acrescimo", 129, 144},
		{"data_pagamento", 144, 152},
		{"valor_pago", 152, 167},
		{"seu_numero", 182, 202},
		{"nosso_numero", 202, 222},
		{"ocorrencias", 230, 240},
	},
	KeySegmentO: {
		{"codigo_barras", 17, 65},
		{"concessionaria_nome", 65, 95},
		{"data_vencimento", 95, 103},
		{"valor_documento", 103, 118},
		{"data_pagamento", 118, 126},
		{"valor_pago", 126, 141},
		{"seu_numero", 141, 161},
		{"nosso_numero", 161, 181},
		{"ocorrencias", 230, 240},
	},
	KeySegmentA: {
		{"camara", 17, 20},
		{"favorecido_banco", 20, 23},
		{"favorecido_nome", 43, 73},
		{"seu_numero", 73, 93},
		{"data_pagamento", 93, 101},
		{"valor_pagamento", 119, 134},
		{"nosso_numero", 134, 154},
		{"data_efetivacao", 154, 162},
		{"valor_efetivado", 162, 177},
		{"ocorrencias", 230, 240},
	},
	KeySegmentB: {
		{"tipo_inscricao", 17, 18},
		{"documento", 18, 32},
		{"logradouro", 32, 62},
		{"numero", 62, 67},
		{"complemento", 67, 82},
		{"bairro", 82, 97},
		{"cidade", 97, 117},
		{"cep", 117, 125},
		{"estado", 125, 127},
		{"chave_pix", 127, 226},
	},
	KeyFallback: {
		{FallbackBarcode, 17, 65},
	},
	KeyBatchTrailer: {
		{"lote", 3, 7},
		{"qtde_registros", 17, 23},
		{"valor_total", 23, 41},
		{"qtde_moedas", 41, 59},
	},
	KeyFileTrailer: {
		{"total_lotes", 17, 23},
		{"total_registros", 23, 29},
	},
}

// base400 follows the Itaú layout, the de-facto reference for the 400
// dialect.
var base400 = map[string]Schema{
	KeyFileHeader: {
		{"operacao", 1, 2},
		{"literal_retorno", 2, 9},
		{"codigo_servico", 9, 11},
		{"empresa_codigo", 26, 46},
		{"empresa_nome", 46, 76},
		{"banco_codigo", 76, 79},
		{"banco_nome", 79, 94},
		{"data_arquivo", 94, 100},
		{"versao_layout", 100, 103},
		{"arquivo_sequencia", 385, 391},
		{"sequencial", 394, 400},
	},
	KeyDetail: {
		{"agencia", 17, 21},
		{"conta", 23, 28},
		{"seu_numero", 37, 62},
		{"nosso_numero", 62, 73},
		{"codigo_ocorrencia", 108, 110},
		{"data_pagamento", 110, 116},
		{"data_vencimento", 146, 152},
		{"valor_titulo", 152, 165},
		{"codigo_banco", 165, 168},
		{"pagador_documento", 220, 234},
		{"pagador_nome", 234, 264},
		{"valor_pago", 264, 277},
		{"codigo_barras", 284, 328},
		{"linha_digitavel", 328, 375},
		{"sequencial", 394, 400},
	},
	KeyFileTrailer: {
		{"total_registros", 17, 23},
		{"valor_total", 23, 41},
		{"sequencial", 394, 400},
	},
}

// overrides maps dialect → bank code → record key → replacement
// fields. Only fields that diverge from the base are listed.
var overrides = map[cnab.Dialect]map[int]map[string][]Field{
	cnab.Dialect400: {
		// Bradesco carries the nosso número in the carteira block.
		237: {
			KeyDetail: {
				{"nosso_numero", 70, 81},
			},
		},
	},
}

// Resolve returns the schema for (dialect, bank, key), applying any
// bank override on top of the base layout, and reports whether the
// bank is in the supported table. An unknown bank resolves to the
// base layout; callers emit a BANK_UNKNOWN warning.
func Resolve(dialect cnab.Dialect, bank int, key string) (Schema, bool) {
	var table map[string]Schema
	switch dialect {
	case cnab.Dialect240:
		table = base240
	case cnab.Dialect400:
		table = base400
	default:
		return nil, false
	}
	schema := table[key]
	known := KnownBank(bank)
	byBank, ok := overrides[dialect][bank]
	if !ok {
		return schema, known
	}
	patch, ok := byBank[key]
	if !ok {
		return schema, known
	}
	merged := make(Schema, 0, len(schema))
	for _, f := range schema {
		replaced := f
		for _, o := range patch {
			if o.Name == f.Name {
				replaced = o
				break
			}
		}
		merged = append(merged, replaced)
	}
	return merged, known
}
