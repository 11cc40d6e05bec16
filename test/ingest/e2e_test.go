package ingest_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/paynet/cnab/pkg/cnab"
	"github.com/paynet/cnab/pkg/cnab/cnabtest"
	"github.com/paynet/cnab/pkg/cnab/extract"
	"github.com/paynet/cnab/pkg/cnab/layout"
	"github.com/paynet/cnab/pkg/cnab/validate"
	"github.com/paynet/cnab/pkg/ingest"
	"github.com/paynet/cnab/pkg/store"
	"github.com/paynet/cnab/pkg/swap"
	"github.com/paynet/cnab/pkg/webhook"
)

const barcodeTitulo = "34191790010104351004791020150008291070026000"

// file400TwoTitulos builds header + two details of 100.50 + trailer.
func file400TwoTitulos() []byte {
	detail := func(seq int64) string {
		return cnabtest.New400(341, cnab.RecordDetail400).
			Str(layout.KeyDetail, "codigo_barras", barcodeTitulo).
			Money(layout.KeyDetail, "valor_titulo", 10050).
			Num(layout.KeyDetail, "sequencial", seq).
			String()
	}
	lines := []string{
		cnabtest.New400(341, cnab.RecordFileHeader).
			Num(layout.KeyFileHeader, "banco_codigo", 341).
			String(),
		detail(2),
		detail(3),
		cnabtest.New400(341, cnab.RecordFileTrailer).
			Num(layout.KeyFileTrailer, "total_registros", 2).
			Money(layout.KeyFileTrailer, "valor_total", 20100).
			String(),
	}
	return []byte(strings.Join(lines, "\n"))
}

// file240TwoJ builds one batch with J segments of 120.00 and 150.00
// and the declared batch total given in cents.
func file240TwoJ(declaredTotal int64) []byte {
	venc := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	segJ := func(seq, cents int64) string {
		return cnabtest.New240(341, 1, cnab.RecordDetail240).
			Num(layout.KeyDetail, "sequencia", seq).
			Str(layout.KeyDetail, "segmento", "J").
			Str(layout.KeySegmentJ, "codigo_barras", barcodeTitulo).
			Date8(layout.KeySegmentJ, "data_vencimento", venc).
			Money(layout.KeySegmentJ, "valor_titulo", cents).
			String()
	}
	lines := []string{
		cnabtest.New240(341, 0, cnab.RecordFileHeader).
			Str(layout.KeyFileHeader, "empresa_nome", "EMPRESA DEMO LTDA").
			String(),
		cnabtest.New240(341, 1, cnab.RecordBatchHeader).String(),
		segJ(1, 12000),
		segJ(2, 15000),
		cnabtest.New240(341, 1, cnab.RecordBatchTrailer).
			Num(layout.KeyBatchTrailer, "qtde_registros", 2).
			Money(layout.KeyBatchTrailer, "valor_total", declaredTotal).
			String(),
		cnabtest.New240(341, 9999, cnab.RecordFileTrailer).
			Num(layout.KeyFileTrailer, "total_lotes", 1).
			Num(layout.KeyFileTrailer, "total_registros", 6).
			String(),
	}
	return []byte(strings.Join(lines, "\n"))
}

var _ = Describe("End to end ingest", func() {
	var (
		st      *store.Store
		tempDir string
	)

	newService := func(cfg webhook.Config) *ingest.Service {
		return ingest.New(st, webhook.New(cfg, zap.NewNop()), nil, zap.NewNop())
	}

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "cnab-e2e-*")
		Expect(err).NotTo(HaveOccurred())
		st, err = store.Open(tempDir, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(st.Close()).To(Succeed())
		os.RemoveAll(tempDir)
	})

	Context("CNAB 400 return file", func() {
		It("parses two títulos and sums their values", func() {
			result, err := newService(webhook.Config{}).Process(context.Background(), file400TwoTitulos(), ingest.Options{FileName: "retorno.ret", IncludeValidation: true})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Dialect).To(Equal(cnab.Dialect400))
			Expect(result.Validation.Valid).To(BeTrue())
			Expect(result.Summary.TotalDetalhes).To(Equal(2))
			Expect(result.Summary.ValorTotal.String()).To(Equal("201.00"))
			Expect(result.Summary.CodigosBarras).To(Equal(2))
			for _, b := range result.Barcodes {
				Expect(b.Tipo).To(Equal(extract.TipoTitulo))
			}
		})

		It("short-circuits a re-submission of the same bytes", func() {
			svc := newService(webhook.Config{})
			content := file400TwoTitulos()

			first, err := svc.Process(context.Background(), content, ingest.Options{})
			Expect(err).NotTo(HaveOccurred())
			second, err := svc.Process(context.Background(), content, ingest.Options{})
			Expect(err).NotTo(HaveOccurred())

			Expect(second.Duplicated).To(BeTrue())
			Expect(second.FileID).To(Equal(first.FileID))

			census, err := st.Inspect()
			Expect(err).NotTo(HaveOccurred())
			Expect(census.Files).To(Equal(1))
		})
	})

	Context("CNAB 240 payment file", func() {
		It("accepts a batch whose declared total matches the detail sum", func() {
			result, err := newService(webhook.Config{}).Process(context.Background(), file240TwoJ(27000), ingest.Options{IncludeValidation: true})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Validation.Valid).To(BeTrue())
			Expect(result.Summary.ValorTotal.String()).To(Equal("270.00"))
		})

		It("rejects a divergent declared total with one integrity error", func() {
			result, err := newService(webhook.Config{}).Process(context.Background(), file240TwoJ(27100), ingest.Options{IncludeValidation: true})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Validation.Valid).To(BeFalse())
			Expect(result.Validation.Errors).To(HaveLen(1))

			issue := result.Validation.Errors[0]
			Expect(issue.Category).To(Equal(validate.CategoryIntegrity))
			Expect(issue.Expected).To(Equal("270.00"))
			Expect(issue.Actual).To(Equal("271.00"))
		})
	})

	Context("webhook delivery", func() {
		It("retries with linear backoff until the endpoint accepts", func() {
			var calls atomic.Int64
			var timestamps [3]time.Time
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := calls.Add(1)
				timestamps[n-1] = time.Now()
				if n < 3 {
					w.WriteHeader(http.StatusInternalServerError)
					return
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			delay := 30 * time.Millisecond
			svc := newService(webhook.Config{
				Enabled:    true,
				URL:        server.URL,
				RetryDelay: delay,
			})

			result, err := svc.Process(context.Background(), file240TwoJ(27000), ingest.Options{})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Webhook.Delivered).To(BeTrue())
			Expect(result.Webhook.Attempts).To(Equal(3))
			Expect(timestamps[1].Sub(timestamps[0])).To(BeNumerically(">=", delay))
			Expect(timestamps[2].Sub(timestamps[1])).To(BeNumerically(">=", 2*delay))
		})

		It("carries the ingest envelope", func() {
			var payload webhook.Payload
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(json.NewDecoder(r.Body).Decode(&payload)).To(Succeed())
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			svc := newService(webhook.Config{Enabled: true, URL: server.URL, RetryDelay: time.Millisecond})
			content := file240TwoJ(27000)
			result, err := svc.Process(context.Background(), content, ingest.Options{FileName: "pagamentos.rem"})
			Expect(err).NotTo(HaveOccurred())

			Expect(payload.Metadados.OperationID).To(Equal(result.OperationID))
			Expect(payload.Arquivo.Hash).To(Equal(store.Hash(content)))
			Expect(payload.Arquivo.Formato).To(Equal("cnab240"))
		})
	})

	Context("settlement circuit breaker", func() {
		It("fails fast after the threshold and probes after the cooldown", func() {
			var calls atomic.Int64
			mux := http.NewServeMux()
			mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 3600})
			})
			mux.HandleFunc("/ledger/payments/boletos", func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) <= 5 {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				json.NewEncoder(w).Encode(map[string]any{"id": "bol-1", "barcode": r.URL.Path, "amount": 10.0})
			})
			server := httptest.NewServer(mux)
			defer server.Close()

			cooldown := 100 * time.Millisecond
			client := swap.New(swap.Config{
				BaseURL:          server.URL,
				TokenURL:         server.URL + "/oauth/token",
				BreakerThreshold: 5,
				BreakerCooldown:  cooldown,
			}, zap.NewNop())

			linha := barcodeTitulo + "123" // 47 digits
			for i := 0; i < 5; i++ {
				_, err := client.CheckBoleto(context.Background(), linha)
				Expect(swap.ErrCode(err)).To(Equal(swap.CodeUpstream))
			}
			Expect(client.Breaker().State()).To(Equal(swap.BreakerOpen))

			// The sixth call fails fast, synchronously, with no request.
			before := calls.Load()
			start := time.Now()
			_, err := client.CheckBoleto(context.Background(), linha)
			Expect(swap.ErrCode(err)).To(Equal(swap.CodeCircuitOpen))
			Expect(time.Since(start)).To(BeNumerically("<", cooldown/10))
			Expect(calls.Load()).To(Equal(before))

			// After the cooldown the probe goes through.
			time.Sleep(cooldown + 20*time.Millisecond)
			check, err := client.CheckBoleto(context.Background(), linha)
			Expect(err).NotTo(HaveOccurred())
			Expect(check.ID).To(Equal("bol-1"))
			Expect(client.Breaker().State()).To(Equal(swap.BreakerClosed))
		})
	})

	Context("boundary inputs", func() {
		It("rejects empty content", func() {
			_, err := newService(webhook.Config{}).Process(context.Background(), nil, ingest.Options{})
			Expect(err).To(HaveOccurred())
		})

		It("rejects a mode width of 239", func() {
			content := []byte(strings.Repeat("0", 239) + "\n" + strings.Repeat("1", 239))
			_, err := newService(webhook.Config{}).Process(context.Background(), content, ingest.Options{})
			Expect(err).To(HaveOccurred())
		})
	})
})
