package cnab240

import (
	"time"

	"github.com/paynet/cnab/pkg/cnab"
	"github.com/paynet/cnab/pkg/money"
)

// FileHeader is the record type '0' opening the file.
type FileHeader struct {
	BancoCodigo      int       `json:"bancoCodigo"`
	BancoNome        string    `json:"bancoNome"`
	EmpresaDocumento string    `json:"empresaDocumento"`
	EmpresaNome      string    `json:"empresaNome"`
	Convenio         string    `json:"convenio"`
	DataGeracao      time.Time `json:"dataGeracao"`
	HoraGeracao      string    `json:"horaGeracao"`
	ArquivoSequencia int64     `json:"arquivoSequencia"`
	VersaoLayout     string    `json:"versaoLayout"`
}

// BatchHeader is the record type '1' opening a batch.
type BatchHeader struct {
	Lote             int    `json:"lote"`
	TipoOperacao     string `json:"tipoOperacao"`
	TipoServico      string `json:"tipoServico"`
	FormaPagamento   string `json:"formaPagamento"`
	EmpresaDocumento string `json:"empresaDocumento"`
	EmpresaNome      string `json:"empresaNome"`
}

// BatchTrailer is the record type '5' closing a batch. Declared totals
// are checked against computed ones by the validator.
type BatchTrailer struct {
	Lote          int          `json:"lote"`
	QtdeRegistros int64        `json:"qtdeRegistros"`
	ValorTotal    money.Amount `json:"valorTotal"`
}

// FileTrailer is the record type '9' closing the file.
type FileTrailer struct {
	TotalLotes     int64 `json:"totalLotes"`
	TotalRegistros int64 `json:"totalRegistros"`
}

// Detail is a batch detail line, one variant per segment letter.
// Segment B lines are folded into the preceding A/J/O variant as its
// addressee and never appear standalone.
type Detail interface {
	// Segment returns the segment letter ("J", "O", "A", or the
	// letter of an unrecognized segment).
	Segment() string
	// LineNumber is the 1-based position in the normalized file.
	LineNumber() int
}

// SegmentJ carries a título payment: the payable is identified by a
// 44-digit barcode.
type SegmentJ struct {
	Line           int          `json:"linha"`
	Sequencia      int64        `json:"sequencia"`
	CodigoBarras   string       `json:"codigoBarras"`
	FavorecidoNome string       `json:"favorecidoNome"`
	DataVencimento time.Time    `json:"dataVencimento"`
	DataPagamento  time.Time    `json:"dataPagamento"`
	ValorTitulo    money.Amount `json:"valorTitulo"`
	Desconto       money.Amount `json:"desconto"`
	Acrescimo      money.Amount `json:"acrescimo"`
	ValorPago      money.Amount `json:"valorPago"`
	SeuNumero      string       `json:"seuNumero"`
	NossoNumero    string       `json:"nossoNumero"`
	Ocorrencias    string       `json:"ocorrencias"`
	Endereco       *SegmentB    `json:"endereco,omitempty"`
}

func (s *SegmentJ) Segment() string { return "J" }
func (s *SegmentJ) LineNumber() int { return s.Line }

// SegmentO carries a tributo (tax or utility) payment identified by a
// 48-digit barcode.
type SegmentO struct {
	Line           int          `json:"linha"`
	Sequencia      int64        `json:"sequencia"`
	CodigoBarras   string       `json:"codigoBarras"`
	Concessionaria string       `json:"concessionaria"`
	DataVencimento time.Time    `json:"dataVencimento"`
	DataPagamento  time.Time    `json:"dataPagamento"`
	ValorDocumento money.Amount `json:"valorDocumento"`
	ValorPago      money.Amount `json:"valorPago"`
	SeuNumero      string       `json:"seuNumero"`
	NossoNumero    string       `json:"nossoNumero"`
	Ocorrencias    string       `json:"ocorrencias"`
	Endereco       *SegmentB    `json:"endereco,omitempty"`
}

func (s *SegmentO) Segment() string { return "O" }
func (s *SegmentO) LineNumber() int { return s.Line }

// SegmentA carries a credit transfer to a bank account.
type SegmentA struct {
	Line            int          `json:"linha"`
	Sequencia       int64        `json:"sequencia"`
	Camara          string       `json:"camara"`
	FavorecidoBanco int64        `json:"favorecidoBanco"`
	FavorecidoNome  string       `json:"favorecidoNome"`
	SeuNumero       string       `json:"seuNumero"`
	DataPagamento   time.Time    `json:"dataPagamento"`
	ValorPagamento  money.Amount `json:"valorPagamento"`
	NossoNumero     string       `json:"nossoNumero"`
	DataEfetivacao  time.Time    `json:"dataEfetivacao"`
	ValorEfetivado  money.Amount `json:"valorEfetivado"`
	Ocorrencias     string       `json:"ocorrencias"`
	Endereco        *SegmentB    `json:"endereco,omitempty"`
}

func (s *SegmentA) Segment() string { return "A" }
func (s *SegmentA) LineNumber() int { return s.Line }

// SegmentB holds addressee and PIX information complementing the
// nearest preceding A/J/O segment in the same batch.
type SegmentB struct {
	Line          int    `json:"linha"`
	TipoInscricao string `json:"tipoInscricao"`
	Documento     string `json:"documento"`
	Logradouro    string `json:"logradouro"`
	Numero        string `json:"numero"`
	Complemento   string `json:"complemento"`
	Bairro        string `json:"bairro"`
	Cidade        string `json:"cidade"`
	CEP           string `json:"cep"`
	Estado        string `json:"estado"`
	ChavePix      string `json:"chavePix"`
}

// SegmentGeneric preserves details whose segment letter has no decoder.
// The raw line is kept so the extractor's fallback rule can scan the
// schema-bound fallback position.
type SegmentGeneric struct {
	Line      int    `json:"linha"`
	Sequencia int64  `json:"sequencia"`
	Letter    string `json:"segmento"`
	Raw       string `json:"-"`
}

func (s *SegmentGeneric) Segment() string { return s.Letter }
func (s *SegmentGeneric) LineNumber() int { return s.Line }

// Batch is one service batch: header, ordered details, trailer.
type Batch struct {
	Lote        int          `json:"lote"`
	Header      BatchHeader  `json:"cabecalho"`
	Details     []Detail     `json:"detalhes"`
	Trailer     BatchTrailer `json:"trailer"`
	HasTrailer  bool         `json:"-"`
	DetailLines int64        `json:"-"` // every type-'3' line, segment B included
}

// File is the parsed hierarchical CNAB 240 tree.
type File struct {
	Bank        int              `json:"banco"`
	Header      FileHeader       `json:"cabecalho"`
	Batches     []*Batch         `json:"lotes"`
	Trailer     FileTrailer      `json:"trailer"`
	HasHeader   bool             `json:"-"`
	HasTrailer  bool             `json:"-"`
	LineCount   int              `json:"totalLinhas"`
	Diagnostics cnab.Diagnostics `json:"-"`
}
