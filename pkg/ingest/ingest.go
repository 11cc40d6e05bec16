// Package ingest orchestrates the pipeline: detect, parse, validate,
// extract, persist, notify. One Process call is one operation; its
// audit row records the outcome either way.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/paynet/cnab/pkg/cnab"
	"github.com/paynet/cnab/pkg/cnab/cnab240"
	"github.com/paynet/cnab/pkg/cnab/cnab400"
	"github.com/paynet/cnab/pkg/cnab/detect"
	"github.com/paynet/cnab/pkg/cnab/extract"
	"github.com/paynet/cnab/pkg/cnab/validate"
	"github.com/paynet/cnab/pkg/metrics"
	"github.com/paynet/cnab/pkg/money"
	"github.com/paynet/cnab/pkg/store"
	"github.com/paynet/cnab/pkg/webhook"
)

// Options steers one ingest.
type Options struct {
	FileName string
	// Dialect forces the parser; empty runs the detector.
	Dialect cnab.Dialect
	// ForceReprocess ingests content whose hash is already stored.
	ForceReprocess bool
	// WebhookURL overrides the configured endpoint for this ingest.
	WebhookURL string
	// SkipWebhook suppresses dispatch even when the dispatcher is
	// enabled.
	SkipWebhook bool
	// IncludeValidation attaches the full validation report to the
	// result. Validation always runs either way; it drives the stored
	// status and the webhook's validado flag.
	IncludeValidation bool
	Validate          validate.Options
}

// Summary aggregates what one ingest found.
type Summary struct {
	TotalLinhas   int          `json:"totalLinhas"`
	TotalLotes    int          `json:"totalLotes"`
	TotalDetalhes int          `json:"totalDetalhes"`
	ValorTotal    money.Amount `json:"valorTotal"`
	CodigosBarras int          `json:"codigosBarras"`
}

// Result is the outcome of one Process call.
type Result struct {
	OperationID string            `json:"operationId"`
	FileID      string            `json:"arquivoId"`
	Duplicated  bool              `json:"duplicado"`
	Dialect     cnab.Dialect      `json:"formatoDetectado"`
	Confidence  int               `json:"confianca"`
	Validation  *validate.Report  `json:"validacao,omitempty"`
	Summary     Summary           `json:"somatorias"`
	Barcodes    []extract.Barcode `json:"codigosBarras"`
	Webhook     *webhook.Result   `json:"webhook,omitempty"`
}

// Service wires the pipeline stages together.
type Service struct {
	store      *store.Store
	dispatcher *webhook.Dispatcher
	metrics    *metrics.Metrics
	log        *zap.Logger
}

// New builds the orchestrator. metrics may be nil when no registry is
// wired (tests, one-shot CLI runs).
func New(st *store.Store, dispatcher *webhook.Dispatcher, m *metrics.Metrics, log *zap.Logger) *Service {
	return &Service{store: st, dispatcher: dispatcher, metrics: m, log: log}
}

// Process runs the whole pipeline over raw file content.
//
// Persistence happens atomically: either the operation ends with the
// file, its tree rows and barcodes stored, or with an error mark and
// nothing else. The webhook runs after commit and never affects the
// outcome.
func (s *Service) Process(ctx context.Context, content []byte, opts Options) (*Result, error) {
	start := time.Now()

	opType := "auto"
	if opts.Dialect != "" {
		opType = typeName(opts.Dialect)
	}
	reqData, _ := json.Marshal(map[string]any{
		"fileName":       opts.FileName,
		"forceReprocess": opts.ForceReprocess,
	})
	operationID, err := s.store.RecordIngest(opType, reqData)
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkProcessing(operationID); err != nil {
		return nil, err
	}

	result, err := s.run(ctx, operationID, content, opts)
	if err != nil {
		if markErr := s.store.MarkError(operationID, err); markErr != nil {
			s.log.Error("mark error failed", zap.String("operation_id", operationID), zap.Error(markErr))
		}
		s.observe(opts.Dialect, "error", start)
		return nil, fmt.Errorf("ingest %s: %w", operationID, err)
	}

	if result.Duplicated {
		s.observe(result.Dialect, "duplicate", start)
	} else {
		s.observe(result.Dialect, "success", start)
	}

	if s.dispatcher != nil && !opts.SkipWebhook && !result.Duplicated {
		result.Webhook = s.notify(ctx, content, opts, result)
	}
	if !opts.IncludeValidation {
		result.Validation = nil
	}
	return result, nil
}

// run covers the fallible stages between the operation marks.
func (s *Service) run(ctx context.Context, operationID string, content []byte, opts Options) (*Result, error) {
	if len(content) == 0 {
		return nil, detect.ErrEmptyContent
	}

	result := &Result{OperationID: operationID, Dialect: opts.Dialect}

	// Known content short-circuits before any parsing work. The
	// transactional check inside RecordFile stays as the backstop for
	// two first-time ingests of the same bytes racing each other.
	if !opts.ForceReprocess {
		prior, err := s.store.GetFileByHash(store.Hash(content))
		switch {
		case err == nil:
			return s.completeDuplicate(operationID, result, prior.ID)
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}

	if result.Dialect == "" {
		det, err := detect.Detect(string(content))
		if err != nil {
			return nil, err
		}
		result.Dialect = det.Dialect
		result.Confidence = det.Confidence
		if det.LowConfidence {
			s.log.Warn("format detected with low confidence",
				zap.String("operation_id", operationID),
				zap.Int("confidence", det.Confidence))
		}
	}

	var (
		rows     []store.Row
		report   *validate.Report
		barcodes []extract.Barcode
	)
	switch result.Dialect {
	case cnab.Dialect240:
		f, err := cnab240.Parse(string(content), cnab240.Options{})
		if err != nil {
			return nil, err
		}
		s.observeDiagnostics(f.Diagnostics)
		report = validate.File240(f, opts.Validate)
		barcodes = extract.File240(f)
		rows = store.Flatten240(f)
	case cnab.Dialect400:
		f, err := cnab400.Parse(string(content), cnab400.Options{})
		if err != nil {
			return nil, err
		}
		s.observeDiagnostics(f.Diagnostics)
		report = validate.File400(f)
		barcodes = extract.File400(f)
		rows = store.Flatten400(f)
	default:
		return nil, detect.ErrUnknownFormat
	}

	result.Validation = report
	result.Barcodes = barcodes
	result.Summary = Summary{
		TotalLinhas:   report.Statistics.TotalLinhas,
		TotalLotes:    report.Statistics.TotalLotes,
		TotalDetalhes: report.Statistics.TotalDetalhes,
		ValorTotal:    report.Statistics.ValorTotal,
		CodigosBarras: len(barcodes),
	}

	details, _ := json.Marshal(report)
	fileRes, err := s.store.RecordFile(operationID, content, rows, barcodes, store.FileMeta{
		FileName:          opts.FileName,
		FileType:          typeName(result.Dialect),
		ValidationStatus:  validationStatus(report),
		ValidationDetails: details,
		ForceReprocess:    opts.ForceReprocess,
	})
	if err != nil {
		return nil, err
	}
	result.FileID = fileRes.FileID
	result.Duplicated = fileRes.Duplicated

	if fileRes.Duplicated {
		return s.completeDuplicate(operationID, result, fileRes.FileID)
	}

	if s.metrics != nil {
		s.metrics.BarcodesExtracted.Add(float64(len(barcodes)))
	}
	summary, _ := json.Marshal(result.Summary)
	if err := s.store.MarkSuccess(operationID, summary); err != nil {
		return nil, err
	}

	s.log.Info("ingest complete",
		zap.String("operation_id", operationID),
		zap.String("dialect", string(result.Dialect)),
		zap.Int("barcodes", len(barcodes)),
		zap.Bool("valid", report.Valid))
	return result, nil
}

// completeDuplicate closes out an operation whose content hash is
// already stored.
func (s *Service) completeDuplicate(operationID string, result *Result, fileID string) (*Result, error) {
	result.FileID = fileID
	result.Duplicated = true
	s.log.Info("duplicate ingest short-circuited",
		zap.String("operation_id", operationID),
		zap.String("prior_file_id", fileID))
	if s.metrics != nil {
		s.metrics.DuplicatesTotal.Inc()
	}
	summary, _ := json.Marshal(map[string]any{"duplicado": true, "arquivoId": fileID})
	if err := s.store.MarkSuccess(operationID, summary); err != nil {
		return nil, err
	}
	return result, nil
}

// notify builds the webhook envelope and dispatches it. Failures are
// recorded on the result only.
func (s *Service) notify(ctx context.Context, content []byte, opts Options, result *Result) *webhook.Result {
	registros, _ := json.Marshal(result.Barcodes)
	resumo, _ := json.Marshal(result.Summary)
	valid := result.Validation != nil && result.Validation.Valid
	payload := webhook.Payload{
		Metadados: webhook.Metadados{
			OperationID: result.OperationID,
			Fonte:       "cnab-ingest",
			Versao:      "1.0.0",
			EnviadoEm:   time.Now().UTC(),
		},
		Arquivo: webhook.Arquivo{
			Nome:     opts.FileName,
			Hash:     store.Hash(content),
			Tamanho:  len(content),
			Formato:  typeName(result.Dialect),
			Validado: valid,
		},
		Registros: registros,
		Resumo:    resumo,
	}

	wr := s.dispatcher.Send(ctx, result.OperationID, payload, opts.WebhookURL)
	if s.metrics != nil {
		outcome := "failed"
		if wr.Delivered {
			outcome = "delivered"
		} else if wr.Reason != "" {
			outcome = "skipped"
		}
		s.metrics.WebhookAttempts.WithLabelValues(outcome).Add(float64(max(wr.Attempts, 1)))
	}
	return wr
}

func (s *Service) observeDiagnostics(diags cnab.Diagnostics) {
	if s.metrics == nil {
		return
	}
	for _, d := range diags {
		s.metrics.DiagnosticsTotal.WithLabelValues(string(d.Severity)).Inc()
	}
}

func (s *Service) observe(dialect cnab.Dialect, outcome string, start time.Time) {
	if s.metrics == nil {
		return
	}
	label := typeName(dialect)
	if label == "" {
		label = "unknown"
	}
	s.metrics.IngestsTotal.WithLabelValues(label, outcome).Inc()
	s.metrics.IngestDuration.Observe(time.Since(start).Seconds())
}

func typeName(d cnab.Dialect) string {
	switch d {
	case cnab.Dialect240:
		return "cnab240"
	case cnab.Dialect400:
		return "cnab400"
	}
	return ""
}

func validationStatus(report *validate.Report) string {
	switch {
	case report == nil:
		return store.ValidationPending
	case !report.Valid:
		return store.ValidationInvalid
	case len(report.Warnings) > 0:
		return store.ValidationWarning
	default:
		return store.ValidationValid
	}
}
