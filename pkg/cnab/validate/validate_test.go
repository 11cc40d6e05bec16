package validate

import (
	"strings"
	"testing"
	"time"

	"github.com/paynet/cnab/pkg/cnab"
	"github.com/paynet/cnab/pkg/cnab/cnab240"
	"github.com/paynet/cnab/pkg/cnab/cnab400"
	"github.com/paynet/cnab/pkg/cnab/cnabtest"
	"github.com/paynet/cnab/pkg/cnab/layout"
	"github.com/stretchr/testify/require"
)

const barcodeTitulo = "34191790010104351004791020150008291070026000"

// build240 assembles header + one batch with two J segments + batch
// trailer + file trailer, with the declared totals supplied by the
// caller.
func build240(declaredBatchTotal, declaredCount, declaredLotes, declaredRegistros int64) string {
	venc := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	lines := []string{
		cnabtest.New240(341, 0, cnab.RecordFileHeader).
			Str(layout.KeyFileHeader, "empresa_nome", "EMPRESA DEMO LTDA").
			String(),
		cnabtest.New240(341, 1, cnab.RecordBatchHeader).
			Str(layout.KeyBatchHeader, "tipo_servico", "20").
			String(),
		cnabtest.New240(341, 1, cnab.RecordDetail240).
			Num(layout.KeyDetail, "sequencia", 1).
			Str(layout.KeyDetail, "segmento", "J").
			Str(layout.KeySegmentJ, "codigo_barras", barcodeTitulo).
			Date8(layout.KeySegmentJ, "data_vencimento", venc).
			Money(layout.KeySegmentJ, "valor_titulo", 12000).
			String(),
		cnabtest.New240(341, 1, cnab.RecordDetail240).
			Num(layout.KeyDetail, "sequencia", 2).
			Str(layout.KeyDetail, "segmento", "J").
			Str(layout.KeySegmentJ, "codigo_barras", barcodeTitulo).
			Date8(layout.KeySegmentJ, "data_vencimento", venc).
			Money(layout.KeySegmentJ, "valor_titulo", 15000).
			String(),
		cnabtest.New240(341, 1, cnab.RecordBatchTrailer).
			Num(layout.KeyBatchTrailer, "qtde_registros", declaredCount).
			Money(layout.KeyBatchTrailer, "valor_total", declaredBatchTotal).
			String(),
		cnabtest.New240(341, 9999, cnab.RecordFileTrailer).
			Num(layout.KeyFileTrailer, "total_lotes", declaredLotes).
			Num(layout.KeyFileTrailer, "total_registros", declaredRegistros).
			String(),
	}
	return strings.Join(lines, "\n")
}

func TestFile240Valid(t *testing.T) {
	f, err := cnab240.Parse(build240(27000, 2, 1, 6), cnab240.Options{})
	require.NoError(t, err)

	report := File240(f, Options{})
	require.True(t, report.Valid, "errors: %v", report.Errors)
	require.Equal(t, 100, report.Score)
	require.Equal(t, "270.00", report.Statistics.ValorTotal.String())
	require.Equal(t, 1, report.Statistics.TotalLotes)
	require.Equal(t, 2, report.Statistics.TotalDetalhes)
}

func TestFile240AmountMismatch(t *testing.T) {
	f, err := cnab240.Parse(build240(27100, 2, 1, 6), cnab240.Options{})
	require.NoError(t, err)

	report := File240(f, Options{})
	require.False(t, report.Valid)
	require.Len(t, report.Errors, 1)

	issue := report.Errors[0]
	require.Equal(t, CategoryIntegrity, issue.Category)
	require.Equal(t, CodeAmountMismatch, issue.Code)
	require.Equal(t, "270.00", issue.Expected)
	require.Equal(t, "271.00", issue.Actual)
}

func TestFile240BatchCountMismatch(t *testing.T) {
	f, err := cnab240.Parse(build240(27000, 2, 3, 6), cnab240.Options{})
	require.NoError(t, err)

	report := File240(f, Options{})
	require.False(t, report.Valid)
	require.Len(t, report.Errors, 1)
	require.Equal(t, CodeBatchCountMismatch, report.Errors[0].Code)
}

func TestFile240RecordCountConventions(t *testing.T) {
	// Declared total_registros counts every line (base convention).
	f, err := cnab240.Parse(build240(27000, 2, 1, 6), cnab240.Options{})
	require.NoError(t, err)
	require.True(t, File240(f, Options{}).Valid)

	// A bank counting details only declares 2 instead of 6.
	f, err = cnab240.Parse(build240(27000, 2, 1, 2), cnab240.Options{})
	require.NoError(t, err)
	detailsOnly := true
	require.True(t, File240(f, Options{CountsDetailsOnly: &detailsOnly}).Valid)
	require.False(t, File240(f, Options{}).Valid)
}

func TestFile240BarcodeWarning(t *testing.T) {
	venc := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	lines := []string{
		cnabtest.New240(341, 0, cnab.RecordFileHeader).String(),
		cnabtest.New240(341, 1, cnab.RecordBatchHeader).String(),
		cnabtest.New240(341, 1, cnab.RecordDetail240).
			Num(layout.KeyDetail, "sequencia", 1).
			Str(layout.KeyDetail, "segmento", "J").
			Str(layout.KeySegmentJ, "codigo_barras", barcodeTitulo[:40]). // 40 digits
			Date8(layout.KeySegmentJ, "data_vencimento", venc).
			Money(layout.KeySegmentJ, "valor_titulo", 1000).
			String(),
		cnabtest.New240(341, 1, cnab.RecordBatchTrailer).
			Num(layout.KeyBatchTrailer, "qtde_registros", 1).
			Money(layout.KeyBatchTrailer, "valor_total", 1000).
			String(),
		cnabtest.New240(341, 9999, cnab.RecordFileTrailer).
			Num(layout.KeyFileTrailer, "total_lotes", 1).
			Num(layout.KeyFileTrailer, "total_registros", 5).
			String(),
	}
	f, err := cnab240.Parse(strings.Join(lines, "\n"), cnab240.Options{})
	require.NoError(t, err)

	report := File240(f, Options{})
	require.True(t, report.Valid) // warnings never invalidate
	require.NotEmpty(t, report.Warnings)
	require.Equal(t, CodeBarcodeLength, report.Warnings[0].Code)
}

func build400(declaredCount, declaredTotal int64) string {
	lines := []string{
		cnabtest.New400(341, cnab.RecordFileHeader).
			Num(layout.KeyFileHeader, "banco_codigo", 341).
			String(),
		cnabtest.New400(341, cnab.RecordDetail400).
			Str(layout.KeyDetail, "codigo_barras", barcodeTitulo).
			Money(layout.KeyDetail, "valor_titulo", 10050).
			String(),
		cnabtest.New400(341, cnab.RecordDetail400).
			Str(layout.KeyDetail, "codigo_barras", barcodeTitulo).
			Money(layout.KeyDetail, "valor_titulo", 10050).
			String(),
		cnabtest.New400(341, cnab.RecordFileTrailer).
			Num(layout.KeyFileTrailer, "total_registros", declaredCount).
			Money(layout.KeyFileTrailer, "valor_total", declaredTotal).
			String(),
	}
	return strings.Join(lines, "\n")
}

func TestFile400Valid(t *testing.T) {
	f, err := cnab400.Parse(build400(2, 20100), cnab400.Options{})
	require.NoError(t, err)

	report := File400(f)
	require.True(t, report.Valid, "errors: %v", report.Errors)
	require.Equal(t, "201.00", report.Statistics.ValorTotal.String())
	require.Equal(t, 2, report.Statistics.TotalDetalhes)
}

func TestFile400CountMismatch(t *testing.T) {
	f, err := cnab400.Parse(build400(5, 20100), cnab400.Options{})
	require.NoError(t, err)

	report := File400(f)
	require.False(t, report.Valid)
	require.Len(t, report.Errors, 1)
	require.Equal(t, CodeRecordCountMismatch, report.Errors[0].Code)
	require.Equal(t, "2", report.Errors[0].Expected)
	require.Equal(t, "5", report.Errors[0].Actual)
}

func TestScoreFloor(t *testing.T) {
	// A structurally broken file bottoms out at zero, never negative.
	f, err := cnab400.Parse(strings.Repeat("X", 400), cnab400.Options{})
	require.NoError(t, err)

	report := File400(f)
	require.False(t, report.Valid)
	require.GreaterOrEqual(t, report.Score, 0)
}
