package store

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/paynet/cnab/pkg/cnab/extract"
	"github.com/paynet/cnab/pkg/money"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleBarcodes() []extract.Barcode {
	return []extract.Barcode{
		{Codigo: "34191790010104351004791020150008291070026000", Tipo: extract.TipoTitulo, Valor: money.FromCents(12000), Status: extract.StatusExtracted, Line: 3},
		{Codigo: "846800000001855400240200240050024158306777332163", Tipo: extract.TipoTributo, Valor: money.FromCents(8550), Status: extract.StatusExtracted, Line: 4},
	}
}

func TestOperationLifecycle(t *testing.T) {
	s := openTest(t)

	id, err := s.RecordIngest("cnab240", json.RawMessage(`{"fileName":"pagamentos.rem"}`))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	op, err := s.GetOperation(id)
	require.NoError(t, err)
	require.Equal(t, StatusStarted, op.Status)

	require.NoError(t, s.MarkProcessing(id))
	require.NoError(t, s.MarkSuccess(id, json.RawMessage(`{"codigosBarras":2}`)))

	op, err = s.GetOperation(id)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, op.Status)
	require.JSONEq(t, `{"codigosBarras":2}`, string(op.ResponseData))
	require.False(t, op.UpdatedAt.Before(op.CreatedAt))
}

func TestMarkError(t *testing.T) {
	s := openTest(t)

	id, err := s.RecordIngest("auto", nil)
	require.NoError(t, err)
	require.NoError(t, s.MarkError(id, errors.New("formato nao detectado")))

	op, err := s.GetOperation(id)
	require.NoError(t, err)
	require.Equal(t, StatusError, op.Status)
	require.Equal(t, "formato nao detectado", op.ErrorDetails)
}

func TestGetOperationNotFound(t *testing.T) {
	s := openTest(t)
	_, err := s.GetOperation("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRecordFileAndQueries(t *testing.T) {
	s := openTest(t)
	content := []byte(strings.Repeat("A", 240) + "\n" + strings.Repeat("B", 240))

	opID, err := s.RecordIngest("cnab240", nil)
	require.NoError(t, err)

	rows := []Row{
		{Kind: RowHeader, Line: 1},
		{Kind: RowDetail, Line: 2},
	}
	res, err := s.RecordFile(opID, content, rows, sampleBarcodes(), FileMeta{
		FileName:         "pagamentos.rem",
		FileType:         "cnab240",
		ValidationStatus: ValidationValid,
	})
	require.NoError(t, err)
	require.False(t, res.Duplicated)
	require.NotEmpty(t, res.FileID)

	fp, err := s.GetFileByHash(Hash(content))
	require.NoError(t, err)
	require.Equal(t, res.FileID, fp.ID)
	require.Equal(t, opID, fp.OperationID)
	require.Equal(t, len(content), fp.FileSize)
	require.Equal(t, ValidationValid, fp.ValidationStatus)

	got, err := s.ListBarcodes(res.FileID)
	require.NoError(t, err)
	require.Equal(t, sampleBarcodes(), got)

	stored, err := s.ListRows(res.FileID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, RowHeader, stored[0].Kind)
	require.Equal(t, RowDetail, stored[1].Kind)
}

func TestRecordFileDuplicate(t *testing.T) {
	s := openTest(t)
	content := []byte("conteudo identico")

	opA, err := s.RecordIngest("cnab400", nil)
	require.NoError(t, err)
	first, err := s.RecordFile(opA, content, nil, nil, FileMeta{FileName: "a.ret"})
	require.NoError(t, err)
	require.False(t, first.Duplicated)

	opB, err := s.RecordIngest("cnab400", nil)
	require.NoError(t, err)
	second, err := s.RecordFile(opB, content, nil, nil, FileMeta{FileName: "b.ret"})
	require.NoError(t, err)
	require.True(t, second.Duplicated)
	require.Equal(t, first.FileID, second.FileID)
	require.Equal(t, opA, second.OperationID)

	// The loser's rows never landed.
	census, err := s.Inspect()
	require.NoError(t, err)
	require.Equal(t, 1, census.Files)
	require.Equal(t, 1, census.Hashes)
}

func TestRecordFileForceReprocess(t *testing.T) {
	s := openTest(t)
	content := []byte("conteudo identico")

	op, err := s.RecordIngest("cnab400", nil)
	require.NoError(t, err)
	first, err := s.RecordFile(op, content, nil, nil, FileMeta{})
	require.NoError(t, err)

	second, err := s.RecordFile(op, content, nil, nil, FileMeta{ForceReprocess: true})
	require.NoError(t, err)
	require.False(t, second.Duplicated)
	require.NotEqual(t, first.FileID, second.FileID)
}

func TestRecordFileConcurrentSameHash(t *testing.T) {
	s := openTest(t)
	content := []byte("corrida pelo mesmo hash")

	const callers = 4
	results := make([]*FileResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			opID, err := s.RecordIngest("cnab240", nil)
			require.NoError(t, err)
			res, err := s.RecordFile(opID, content, nil, nil, FileMeta{})
			require.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	var winners int
	var fileID string
	for _, res := range results {
		if !res.Duplicated {
			winners++
			fileID = res.FileID
		}
	}
	require.Equal(t, 1, winners)
	for _, res := range results {
		require.Equal(t, fileID, res.FileID)
	}

	census, err := s.Inspect()
	require.NoError(t, err)
	require.Equal(t, 1, census.Files)
}

func TestListOperationsNewestFirst(t *testing.T) {
	s := openTest(t)
	for i := 0; i < 3; i++ {
		_, err := s.RecordIngest("auto", nil)
		require.NoError(t, err)
	}

	ops, err := s.ListOperations(2)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	require.False(t, ops[0].CreatedAt.Before(ops[1].CreatedAt))
}

func TestPreviewTruncates(t *testing.T) {
	long := strings.Repeat("X", 240)
	content := strings.Join([]string{long, long, long, long, long, long, long}, "\r\n")

	p := preview([]byte(content))
	lines := strings.Split(p, "\n")
	require.Len(t, lines, 5)
	for _, line := range lines {
		require.Len(t, line, 100)
	}
}
