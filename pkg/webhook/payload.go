package webhook

import (
	"encoding/json"
	"time"
)

// Payload is the envelope posted to the endpoint. Section contents are
// produced by the caller; the envelope only fixes their arrangement.
type Payload struct {
	Metadados Metadados       `json:"metadados"`
	Arquivo   Arquivo         `json:"arquivo"`
	Cabecalho json.RawMessage `json:"cabecalho,omitempty"`
	Registros json.RawMessage `json:"registros,omitempty"`
	Resumo    json.RawMessage `json:"resumo,omitempty"`
}

// Metadados identifies the ingest that produced the payload.
type Metadados struct {
	OperationID string    `json:"operationId"`
	Fonte       string    `json:"fonte"`
	Versao      string    `json:"versao"`
	EnviadoEm   time.Time `json:"enviadoEm"`
}

// Arquivo describes the ingested file.
type Arquivo struct {
	Nome     string `json:"nome"`
	Hash     string `json:"hash"`
	Tamanho  int    `json:"tamanho"`
	Formato  string `json:"formato"`
	Validado bool   `json:"validado"`
}
