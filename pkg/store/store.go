// Package store is the content-addressed persistence layer. Files are
// identified by the SHA-256 of their raw bytes; re-ingesting known
// content short-circuits into a duplicate result instead of a second
// copy. All writes for one file go through a single transaction, so
// either the whole tree lands or none of it does.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paynet/cnab/pkg/cnab/extract"
)

// Key prefixes. Each prefix is one logical table.
const (
	prefixOperation = "op:"
	prefixFile      = "file:"
	prefixHash      = "hash:"
	prefixRow       = "rec:"
	prefixBarcode   = "bar:"
)

const (
	previewLines = 5
	previewCols  = 100
)

// ErrNotFound is returned by lookups that miss.
var ErrNotFound = errors.New("store: not found")

// Operation statuses.
const (
	StatusStarted    = "started"
	StatusProcessing = "processing"
	StatusSuccess    = "success"
	StatusError      = "error"
)

// Validation statuses recorded on a file.
const (
	ValidationValid   = "valid"
	ValidationInvalid = "invalid"
	ValidationWarning = "warning"
	ValidationPending = "pending"
)

// Operation is one ingest's audit row.
type Operation struct {
	ID               string          `json:"id"`
	Type             string          `json:"tipo"`
	Status           string          `json:"status"`
	CreatedAt        time.Time       `json:"criadoEm"`
	UpdatedAt        time.Time       `json:"atualizadoEm"`
	ProcessingTimeMS int64           `json:"tempoProcessamentoMs"`
	RequestData      json.RawMessage `json:"dadosRequisicao,omitempty"`
	ResponseData     json.RawMessage `json:"dadosResposta,omitempty"`
	ErrorDetails     string          `json:"detalhesErro,omitempty"`
}

// FilePrint is the stored identity of one ingested file.
type FilePrint struct {
	ID                string          `json:"id"`
	OperationID       string          `json:"operationId"`
	FileHash          string          `json:"fileHash"`
	FileName          string          `json:"fileName"`
	FileSize          int             `json:"fileSize"`
	FileType          string          `json:"fileType"`
	ContentPreview    string          `json:"contentPreview"`
	ValidationStatus  string          `json:"validationStatus"`
	ValidationDetails json.RawMessage `json:"validationDetails,omitempty"`
	CreatedAt         time.Time       `json:"criadoEm"`
}

// Row is one flattened tree record, written in tree order.
type Row struct {
	Kind string          `json:"kind"` // header, batch_header, detail, batch_trailer, trailer
	Line int             `json:"linha"`
	Data json.RawMessage `json:"dados"`
}

// FileResult is the outcome of RecordFile.
type FileResult struct {
	FileID      string
	OperationID string
	Duplicated  bool
}

// Store wraps the badger database.
type Store struct {
	db  *badger.DB
	log *zap.Logger
}

// Open opens or creates the database at path.
func Open(path string, log *zap.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	return &Store{db: db, log: log}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Hash returns the lowercase hex SHA-256 of content.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// RecordIngest creates the audit row for a new ingest and returns its
// operation id.
func (s *Store) RecordIngest(opType string, requestData json.RawMessage) (string, error) {
	now := time.Now().UTC()
	op := Operation{
		ID:          uuid.NewString(),
		Type:        opType,
		Status:      StatusStarted,
		CreatedAt:   now,
		UpdatedAt:   now,
		RequestData: requestData,
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return putJSON(txn, prefixOperation+op.ID, op)
	})
	if err != nil {
		return "", fmt.Errorf("store: record ingest: %w", err)
	}
	s.log.Debug("operation created", zap.String("operation_id", op.ID), zap.String("type", opType))
	return op.ID, nil
}

// MarkProcessing advances the operation from started to processing.
func (s *Store) MarkProcessing(operationID string) error {
	return s.transition(operationID, func(op *Operation) {
		op.Status = StatusProcessing
	})
}

// MarkSuccess closes the operation with its response summary.
func (s *Store) MarkSuccess(operationID string, response json.RawMessage) error {
	return s.transition(operationID, func(op *Operation) {
		op.Status = StatusSuccess
		op.ResponseData = response
		op.ProcessingTimeMS = time.Since(op.CreatedAt).Milliseconds()
	})
}

// MarkError closes the operation with the failure detail.
func (s *Store) MarkError(operationID string, cause error) error {
	return s.transition(operationID, func(op *Operation) {
		op.Status = StatusError
		op.ErrorDetails = cause.Error()
		op.ProcessingTimeMS = time.Since(op.CreatedAt).Milliseconds()
	})
}

func (s *Store) transition(operationID string, mutate func(*Operation)) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		var op Operation
		if err := getJSON(txn, prefixOperation+operationID, &op); err != nil {
			return err
		}
		mutate(&op)
		op.UpdatedAt = time.Now().UTC()
		return putJSON(txn, prefixOperation+operationID, op)
	})
	if err != nil {
		return fmt.Errorf("store: update operation %s: %w", operationID, err)
	}
	return nil
}

// FileMeta carries the caller-known attributes of the file being
// recorded.
type FileMeta struct {
	FileName          string
	FileType          string
	ValidationStatus  string
	ValidationDetails json.RawMessage
	ForceReprocess    bool
}

/// RecordFile persists one ingested file: the FilePrint, the flattened
// tree rows and the extracted barcodes, in that order, inside a single
// transaction. When the content hash is already known and reprocessing
// was not forced, nothing commits and the prior file is returned with
// Duplicated set.
//
// Two concurrent calls for the same hash race on the hash key; badger's
// conflict detection aborts the loser, which then reads the winner's
// row and reports the duplicate.
func (s *Store) RecordFile(operationID string, content []byte, rows []Row, barcodes []extract.Barcode, meta FileMeta) (*FileResult, error) {
	hash := Hash(content)

	fp := FilePrint{
		ID:                uuid.NewString(),
		OperationID:       operationID,
		FileHash:          hash,
		FileName:          meta.FileName,
		FileSize:          len(content),
		FileType:          meta.FileType,
		ContentPreview:    preview(content),
		ValidationStatus:  meta.ValidationStatus,
		ValidationDetails: meta.ValidationDetails,
		CreatedAt:         time.Now().UTC(),
	}
	if fp.ValidationStatus == "" {
		fp.ValidationStatus = ValidationPending
	}

	var dup *FileResult
	write := func(txn *badger.Txn) error {
		dup = nil
		prior, err := txn.Get([]byte(prefixHash + hash))
		if err == nil && !meta.ForceReprocess {
			priorID, err := prior.ValueCopy(nil)
			if err != nil {
				return err
			}
			var existing FilePrint
			if err := getJSON(txn, prefixFile+string(priorID), &existing); err != nil {
				return err
			}
			dup = &FileResult{FileID: existing.ID, OperationID: existing.OperationID, Duplicated: true}
			return nil
		}
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := putJSON(txn, prefixFile+fp.ID, fp); err != nil {
			return err
		}
		if err := txn.Set([]byte(prefixHash+hash), []byte(fp.ID)); err != nil {
			return err
		}
		for i, row := range rows {
			if err := putJSON(txn, fmt.Sprintf("%s%s:%08d", prefixRow, fp.ID, i), row); err != nil {
				return err
			}
		}
		for i, b := range barcodes {
			if err := putJSON(txn, fmt.Sprintf("%s%s:%06d", prefixBarcode, fp.ID, i), b); err != nil {
				return err
			}
		}
		return nil
	}

	err := s.db.Update(write)
	if errors.Is(err, badger.ErrConflict) {
		// Lost the race on the hash key. The winner's row is visible
		// now; a second pass resolves to the duplicate branch.
		err = s.db.Update(write)
	}
	if err != nil {
		return nil, fmt.Errorf("store: record file: %w", err)
	}
	if dup != nil {
		s.log.Info("duplicate content",
			zap.String("file_hash", hash),
			zap.String("prior_file_id", dup.FileID))
		return dup, nil
	}
	return &FileResult{FileID: fp.ID, OperationID: operationID}, nil
}

// GetOperation loads one operation by id.
func (s *Store) GetOperation(id string) (*Operation, error) {
	var op Operation
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, prefixOperation+id, &op)
	})
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// ListOperations returns up to limit operations, newest first.
func (s *Store) ListOperations(limit int) ([]Operation, error) {
	var ops []Operation
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(prefixOperation)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var op Operation
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &op)
			}); err != nil {
				return err
			}
			ops = append(ops, op)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(ops, func(i, j int) bool {
		return ops[i].CreatedAt.After(ops[j].CreatedAt)
	})
	if limit > 0 && len(ops) > limit {
		ops = ops[:limit]
	}
	return ops, nil
}

// GetFileByHash resolves content to its stored FilePrint.
func (s *Store) GetFileByHash(hash string) (*FilePrint, error) {
	var fp FilePrint
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixHash + hash))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(v []byte) error {
			return getJSON(txn, prefixFile+string(v), &fp)
		})
	})
	if err != nil {
		return nil, err
	}
	return &fp, nil
}

// ListBarcodes returns the extracted barcodes of a file in extraction
// order.
func (s *Store) ListBarcodes(fileID string) ([]extract.Barcode, error) {
	var out []extract.Barcode
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(prefixBarcode + fileID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var b extract.Barcode
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &b)
			}); err != nil {
				return err
			}
			out = append(out, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListRows returns a file's flattened tree rows in insertion order.
func (s *Store) ListRows(fileID string) ([]Row, error) {
	var out []Row
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(prefixRow + fileID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var row Row
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &row)
			}); err != nil {
				return err
			}
			out = append(out, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Census counts keys per logical table.
type Census struct {
	Operations int `json:"operations"`
	Files      int `json:"files"`
	Hashes     int `json:"hashes"`
	Rows       int `json:"rows"`
	Barcodes   int `json:"barcodes"`
}

// Inspect walks the whole keyspace and reports the census.
func (s *Store) Inspect() (*Census, error) {
	var c Census
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			switch {
			case strings.HasPrefix(key, prefixOperation):
				c.Operations++
			case strings.HasPrefix(key, prefixFile):
				c.Files++
			case strings.HasPrefix(key, prefixHash):
				c.Hashes++
			case strings.HasPrefix(key, prefixRow):
				c.Rows++
			case strings.HasPrefix(key, prefixBarcode):
				c.Barcodes++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// preview keeps the first lines of the content, each truncated, for
// display in audit queries.
func preview(content []byte) string {
	lines := strings.Split(string(content), "\n")
	if len(lines) > previewLines {
		lines = lines[:previewLines]
	}
	for i, line := range lines {
		line = strings.TrimRight(line, "\r")
		if len(line) > previewCols {
			line = line[:previewCols]
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

func putJSON(txn *badger.Txn, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), raw)
}

func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return item.Value(func(raw []byte) error {
		return json.Unmarshal(raw, v)
	})
}
