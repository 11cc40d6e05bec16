package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/paynet/cnab/pkg/config"
	"github.com/paynet/cnab/pkg/ingest"
	"github.com/paynet/cnab/pkg/metrics"
	"github.com/paynet/cnab/pkg/store"
	"github.com/paynet/cnab/pkg/swap"
	"github.com/paynet/cnab/pkg/webhook"
)

// openStore opens the badger store under the application data dir.
func openStore() (*store.Store, error) {
	cfg := config.FromViper(app.Config)
	dir := cfg.DataDir
	if dir == "" {
		dir = filepath.Join(app.GetDataDir(), "store")
	}
	return store.Open(dir, app.Log)
}

// newIngestService wires the full pipeline for CLI runs.
func newIngestService(st *store.Store) *ingest.Service {
	cfg := config.FromViper(app.Config)
	dispatcher := webhook.New(cfg.Webhook, app.Log)
	m := metrics.New(prometheus.NewRegistry())
	return ingest.New(st, dispatcher, m, app.Log)
}

// newSwapClient builds the settlement client from configuration.
func newSwapClient() *swap.Client {
	cfg := config.FromViper(app.Config)
	m := metrics.New(prometheus.NewRegistry())
	cfg.Swap.Observe = func(outcome string) {
		m.SwapRequests.WithLabelValues(outcome).Inc()
	}
	return swap.New(cfg.Swap, app.Log)
}

// printJSON renders a command result for scripting.
func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
